package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/instrumentation"
	"github.com/teemow/slotkeeper/internal/logging"
	"github.com/teemow/slotkeeper/internal/store"
)

// Outcome is what happened to a resolved conflict.
type Outcome string

const (
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeRescheduled Outcome = "rescheduled"
	OutcomeNone        Outcome = "none"
)

// Layer is the strategy layer that resolved a conflict.
type Layer string

const (
	LayerType     Layer = "type"
	LayerPriority Layer = "priority"
	LayerFallback Layer = "fallback"
	LayerNone     Layer = "none"
)

// ResolvedConflict is a conflict that no longer overlaps the target.
// PreviousStart and PreviousEnd are set when it was rescheduled.
type ResolvedConflict struct {
	Appointment   calendar.Appointment `json:"appointment"`
	Action        Outcome              `json:"action"`
	Layer         Layer                `json:"layer"`
	Type          calendar.TypeTag     `json:"type"`
	PreviousStart time.Time            `json:"previous_start,omitzero"`
	PreviousEnd   time.Time            `json:"previous_end,omitzero"`
}

// UnresolvedConflict is a conflict no layer could resolve.
type UnresolvedConflict struct {
	Appointment calendar.Appointment `json:"appointment"`
	Type        calendar.TypeTag     `json:"type"`
	Reason      string               `json:"reason"`
}

// Resolution reports the outcome of ResolveConflicts per conflict.
type Resolution struct {
	RunID      string               `json:"run_id"`
	Target     calendar.Appointment `json:"target"`
	Resolved   []ResolvedConflict   `json:"resolved"`
	Unresolved []UnresolvedConflict `json:"unresolved"`
}

// ResolveConflicts resolves every non-cancelled appointment overlapping the
// target. Each conflict is resolved in its own transaction, so a failure
// leaves earlier resolutions committed. Running it again only sees the
// conflicts that remain.
func (s *Service) ResolveConflicts(ctx context.Context, targetID int64, strategies Strategies) (_ Resolution, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "scheduler.resolve_conflicts",
		instrumentation.NewSpanAttributeBuilder().
			WithOperation(instrumentation.OperationResolveConflicts).
			WithAppointment(targetID).
			Build()...)
	defer func() {
		if err != nil {
			instrumentation.SetSpanError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
	}()

	target, err := s.store.GetAppointment(ctx, targetID)
	if err != nil {
		return Resolution{}, err
	}
	if target.Status == calendar.StatusCancelled {
		return Resolution{}, calendar.Validationf("appointment %d is cancelled", targetID)
	}

	cal, err := s.store.GetCalendar(ctx, target.CalendarID)
	if err != nil {
		return Resolution{}, err
	}
	loc := s.location(cal)

	conflicts, err := s.store.QueryAppointments(ctx, store.Query{
		CalendarID: target.CalendarID,
		Start:      target.Start,
		End:        target.End,
		Statuses:   store.NonCancelled,
		ExcludeID:  target.ID,
	})
	if err != nil {
		return Resolution{}, err
	}

	res := Resolution{
		RunID:      uuid.NewString(),
		Target:     target,
		Resolved:   []ResolvedConflict{},
		Unresolved: []UnresolvedConflict{},
	}
	logger := logging.WithCalendar(s.logger, target.CalendarID).With("run_id", res.RunID)
	span.SetAttributes(
		attribute.Int64(instrumentation.SpanAttrCalendarID, target.CalendarID),
		attribute.Int(instrumentation.SpanAttrConflicts, len(conflicts)),
		attribute.String(instrumentation.SpanAttrRunID, res.RunID),
	)

	for _, c := range conflicts {
		resolved, unresolved := s.resolveOne(ctx, loc, target, c, strategies)
		if resolved != nil {
			res.Resolved = append(res.Resolved, *resolved)
			s.metrics.RecordConflictResolved(ctx, string(resolved.Layer), string(resolved.Action))
			instrumentation.AddSpanEvent(span, "conflict_resolved",
				attribute.Int64(instrumentation.SpanAttrAppointmentID, c.ID),
				attribute.String("action", string(resolved.Action)),
				attribute.String("layer", string(resolved.Layer)))
			logger.Info("conflict resolved",
				logging.Appointment(c.ID),
				"action", resolved.Action,
				"layer", resolved.Layer)
			continue
		}
		res.Unresolved = append(res.Unresolved, *unresolved)
		s.metrics.RecordConflictUnresolved(ctx)
		instrumentation.AddSpanEvent(span, "conflict_unresolved",
			attribute.Int64(instrumentation.SpanAttrAppointmentID, c.ID))
		logger.Info("conflict unresolved",
			logging.Appointment(c.ID),
			"reason", unresolved.Reason)
	}
	return res, nil
}

// resolveOne runs the strategy layers for one conflict inside a
// transaction. Exactly one of the results is non-nil.
func (s *Service) resolveOne(ctx context.Context, loc *time.Location, target, conflict calendar.Appointment, st Strategies) (*ResolvedConflict, *UnresolvedConflict) {
	var (
		resolved *ResolvedConflict
		reasons  []string
		current  = conflict
	)

	err := s.store.Update(ctx, target.CalendarID, func(tx store.Tx) error {
		resolved, reasons = nil, nil

		var err error
		current, err = tx.GetAppointment(ctx, conflict.ID)
		if err != nil {
			return err
		}
		tgt, err := tx.GetAppointment(ctx, target.ID)
		if err != nil {
			return err
		}
		typ := current.Type()

		if current.Status == calendar.StatusCancelled || tgt.Status == calendar.StatusCancelled ||
			!current.Overlaps(tgt.Start, tgt.End) {
			resolved = &ResolvedConflict{Appointment: current, Action: OutcomeNone, Layer: LayerNone, Type: typ}
			return nil
		}

		if rule, ok := st.ByType[typ]; ok {
			r, reason, err := s.applyRule(ctx, tx, loc, &current, rule, LayerType)
			if err != nil || r != nil {
				resolved = r
				return err
			}
			reasons = append(reasons, reason)
		}

		if st.ByPriority {
			if tgt.Priority < current.Priority {
				r, _, err := s.applyRule(ctx, tx, loc, &current, Rule{Action: ActionCancel}, LayerPriority)
				resolved = r
				return err
			}
			reasons = append(reasons, fmt.Sprintf("priority: target priority %d is not more important than %d", tgt.Priority, current.Priority))
		}

		if st.Fallback != nil {
			r, reason, err := s.applyRule(ctx, tx, loc, &current, *st.Fallback, LayerFallback)
			if err != nil || r != nil {
				resolved = r
				return err
			}
			reasons = append(reasons, reason)
		}
		return nil
	})

	if err != nil {
		return nil, &UnresolvedConflict{Appointment: conflict, Type: conflict.Type(), Reason: err.Error()}
	}
	typ := current.Type()
	if resolved != nil {
		return resolved, nil
	}
	if len(reasons) == 0 {
		reasons = append(reasons, "no strategy applies")
	}
	return nil, &UnresolvedConflict{Appointment: current, Type: typ, Reason: strings.Join(reasons, "; ")}
}

// applyRule applies one rule to the conflict. It returns the resolution,
// or a reason when the rule could not resolve it.
func (s *Service) applyRule(ctx context.Context, tx store.Tx, loc *time.Location, conflict *calendar.Appointment, rule Rule, layer Layer) (*ResolvedConflict, string, error) {
	typ := conflict.Type()

	switch rule.Action {
	case ActionCancel:
		conflict.Status = calendar.StatusCancelled
		conflict.UpdatedAt = s.Now()
		if err := tx.SaveAppointment(ctx, *conflict); err != nil {
			return nil, "", err
		}
		return &ResolvedConflict{Appointment: *conflict, Action: OutcomeCancelled, Layer: layer, Type: typ}, "", nil

	case ActionReschedule:
		rr := rule.Reschedule
		if rr == nil {
			rr = DefaultStrategies().Fallback.Reschedule
		}
		window := rescheduleWindow(rr, *conflict, loc)
		duration := conflict.Duration()

		slot, ok := s.findAvailableSlot(ctx, tx, conflict.CalendarID, conflict.ID, loc, window, duration, rr)
		if !ok {
			return nil, fmt.Sprintf("%s: no free slot in %s", layer, window), nil
		}

		prevStart, prevEnd := conflict.Start, conflict.End
		conflict.Start = slot
		conflict.End = slot.Add(duration)
		conflict.UpdatedAt = s.Now()
		if err := tx.SaveAppointment(ctx, *conflict); err != nil {
			return nil, "", err
		}
		return &ResolvedConflict{
			Appointment:   *conflict,
			Action:        OutcomeRescheduled,
			Layer:         layer,
			Type:          typ,
			PreviousStart: prevStart,
			PreviousEnd:   prevEnd,
		}, "", nil
	}
	return nil, fmt.Sprintf("%s: unknown action %q", layer, rule.Action), nil
}
