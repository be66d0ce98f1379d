package scheduler

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/teemow/slotkeeper/internal/calendar"
	"github.com/teemow/slotkeeper/internal/config"
)

//go:embed strategy.schema.json
var strategySchemaJSON []byte

var (
	strategySchemaOnce sync.Once
	strategySchema     *gojsonschema.Schema
	strategySchemaErr  error
)

func loadStrategySchema() (*gojsonschema.Schema, error) {
	strategySchemaOnce.Do(func() {
		strategySchema, strategySchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(strategySchemaJSON))
	})
	return strategySchema, strategySchemaErr
}

// Action is what a rule does with a conflicting appointment.
type Action string

const (
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

// Defaults for reschedule rules.
const (
	DefaultFallbackWindowDays = 7
	DefaultTargetWindowDays   = 1
)

// DefaultPreferredHours are tried first when a reschedule rule names none.
var DefaultPreferredHours = []int{9, 10, 11, 14, 15, 16}

// Rule resolves one conflict. Reschedule is set iff Action is
// ActionReschedule.
type Rule struct {
	Action     Action
	Reschedule *RescheduleRule
}

// RescheduleRule describes where a conflict may be moved to.
type RescheduleRule struct {
	// Window restricts the search to a daily time range starting on a
	// given date. Nil searches the WindowDays days after the conflict's day.
	Window *TargetWindow

	WindowDays     int
	PreferredHours []int
	AvoidLunch     bool
}

// Strategies is the layered conflict resolution policy: per-type rules,
// then priority, then the fallback.
type Strategies struct {
	ByType     map[calendar.TypeTag]Rule
	ByPriority bool
	Fallback   *Rule
}

// DefaultStrategies cancels less important conflicts and reschedules the
// rest within the following week.
func DefaultStrategies() Strategies {
	return Strategies{
		ByPriority: true,
		Fallback: &Rule{
			Action: ActionReschedule,
			Reschedule: &RescheduleRule{
				WindowDays:     DefaultFallbackWindowDays,
				PreferredHours: append([]int(nil), DefaultPreferredHours...),
				AvoidLunch:     true,
			},
		},
	}
}

// IsZero reports whether no layer is configured.
func (s Strategies) IsZero() bool {
	return len(s.ByType) == 0 && !s.ByPriority && s.Fallback == nil
}

// TargetWindow is a daily time range on the calendar's local clock,
// written as YYYY-MM-DDThh:mm-hh:mm.
type TargetWindow struct {
	Year  int
	Month time.Month
	Day   int
	From  config.ClockTime
	To    config.ClockTime
}

// ParseTargetWindow parses "YYYY-MM-DDThh:mm-hh:mm".
func ParseTargetWindow(s string) (TargetWindow, error) {
	datePart, hours, ok := strings.Cut(strings.TrimSpace(s), "T")
	if !ok {
		return TargetWindow{}, calendar.Validationf("invalid target window %q (expected YYYY-MM-DDThh:mm-hh:mm)", s)
	}
	date, err := time.Parse("2006-01-02", datePart)
	if err != nil {
		return TargetWindow{}, calendar.Validationf("invalid target window date %q", datePart)
	}
	fromStr, toStr, ok := strings.Cut(hours, "-")
	if !ok {
		return TargetWindow{}, calendar.Validationf("invalid target window %q (expected YYYY-MM-DDThh:mm-hh:mm)", s)
	}
	from, err := config.ParseClockTime(fromStr)
	if err != nil {
		return TargetWindow{}, calendar.Validationf("invalid target window start %q", fromStr)
	}
	to, err := config.ParseClockTime(toStr)
	if err != nil {
		return TargetWindow{}, calendar.Validationf("invalid target window end %q", toStr)
	}
	if !from.Before(to) {
		return TargetWindow{}, calendar.Validationf("target window %q ends before it starts", s)
	}
	y, m, d := date.Date()
	return TargetWindow{Year: y, Month: m, Day: d, From: from, To: to}, nil
}

// FirstDay returns local midnight of the window's date in loc.
func (w TargetWindow) FirstDay(loc *time.Location) time.Time {
	return time.Date(w.Year, w.Month, w.Day, 0, 0, 0, 0, loc)
}

func (w TargetWindow) String() string {
	return fmt.Sprintf("%04d-%02d-%02dT%s-%s", w.Year, int(w.Month), w.Day, w.From, w.To)
}

type ruleDoc struct {
	Action         string `json:"action,omitempty"`
	TargetWindow   string `json:"target_window,omitempty"`
	WindowDays     *int   `json:"window_days,omitempty"`
	PreferredHours []int  `json:"preferred_hours,omitempty"`
	AvoidLunchHour *bool  `json:"avoid_lunch_hour,omitempty"`
}

type strategiesDoc struct {
	ByType     map[string]ruleDoc `json:"by_type,omitempty"`
	ByPriority bool               `json:"by_priority,omitempty"`
	Fallback   *ruleDoc           `json:"fallback,omitempty"`
}

// ParseStrategies validates a JSON strategy document against the embedded
// schema and decodes it. Every schema violation is listed in the returned
// validation error.
func ParseStrategies(data []byte) (Strategies, error) {
	schema, err := loadStrategySchema()
	if err != nil {
		return Strategies{}, fmt.Errorf("failed to load strategy schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return Strategies{}, calendar.Validationf("strategy is not valid JSON: %v", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Strategies{}, calendar.Validationf("invalid strategy: %s", strings.Join(msgs, "; "))
	}

	var doc strategiesDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Strategies{}, calendar.Validationf("invalid strategy: %v", err)
	}
	return doc.decode()
}

// ParseStrategyMap decodes a strategy document that was read from YAML.
func ParseStrategyMap(m map[string]any) (Strategies, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return Strategies{}, calendar.Validationf("invalid strategy: %v", err)
	}
	return ParseStrategies(data)
}

func (d strategiesDoc) decode() (Strategies, error) {
	out := Strategies{ByPriority: d.ByPriority}

	if len(d.ByType) > 0 {
		out.ByType = make(map[calendar.TypeTag]Rule, len(d.ByType))
		for key, rd := range d.ByType {
			tag, err := calendar.ParseTypeTag(key)
			if err != nil {
				return Strategies{}, err
			}
			rule, err := rd.decode()
			if err != nil {
				return Strategies{}, fmt.Errorf("by_type.%s: %w", key, err)
			}
			out.ByType[tag] = rule
		}
	}

	if d.Fallback != nil {
		rule, err := d.Fallback.decode()
		if err != nil {
			return Strategies{}, fmt.Errorf("fallback: %w", err)
		}
		out.Fallback = &rule
	}
	return out, nil
}

// decode builds a Rule. A missing action means reschedule. An explicit
// target window spans one day by default, a relative window a week.
func (d ruleDoc) decode() (Rule, error) {
	action := Action(d.Action)
	if action == "" {
		action = ActionReschedule
	}

	switch action {
	case ActionCancel:
		return Rule{Action: ActionCancel}, nil
	case ActionReschedule:
	default:
		return Rule{}, calendar.Validationf("unknown action %q", d.Action)
	}

	rr := &RescheduleRule{AvoidLunch: true}
	if d.AvoidLunchHour != nil {
		rr.AvoidLunch = *d.AvoidLunchHour
	}

	rr.WindowDays = DefaultFallbackWindowDays
	if d.TargetWindow != "" {
		w, err := ParseTargetWindow(d.TargetWindow)
		if err != nil {
			return Rule{}, err
		}
		rr.Window = &w
		rr.WindowDays = DefaultTargetWindowDays
	}
	if d.WindowDays != nil {
		rr.WindowDays = *d.WindowDays
	}
	if rr.WindowDays < 1 || rr.WindowDays > 31 {
		return Rule{}, calendar.Validationf("window_days must be between 1 and 31, got %d", rr.WindowDays)
	}

	hours := d.PreferredHours
	if len(hours) == 0 {
		hours = DefaultPreferredHours
	}
	rr.PreferredHours = make([]int, 0, len(hours))
	for _, h := range hours {
		if h < 0 || h > 23 {
			return Rule{}, calendar.Validationf("preferred hour %d is outside 0..23", h)
		}
		rr.PreferredHours = append(rr.PreferredHours, h)
	}
	sort.Ints(rr.PreferredHours)

	return Rule{Action: ActionReschedule, Reschedule: rr}, nil
}

// MarshalJSON renders the strategies in the same shape ParseStrategies
// accepts.
func (s Strategies) MarshalJSON() ([]byte, error) {
	doc := strategiesDoc{ByPriority: s.ByPriority}
	if len(s.ByType) > 0 {
		doc.ByType = make(map[string]ruleDoc, len(s.ByType))
		for tag, rule := range s.ByType {
			doc.ByType[string(tag)] = rule.doc()
		}
	}
	if s.Fallback != nil {
		rd := s.Fallback.doc()
		doc.Fallback = &rd
	}
	return json.Marshal(doc)
}

func (r Rule) doc() ruleDoc {
	rd := ruleDoc{Action: string(r.Action)}
	if rr := r.Reschedule; rr != nil {
		if rr.Window != nil {
			rd.TargetWindow = rr.Window.String()
		}
		days := rr.WindowDays
		avoid := rr.AvoidLunch
		rd.WindowDays = &days
		rd.AvoidLunchHour = &avoid
		rd.PreferredHours = rr.PreferredHours
	}
	return rd
}
