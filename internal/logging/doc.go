// Package logging provides structured logging utilities for slotkeeper.
//
// All components log through log/slog. This package holds the attribute
// keys shared across the codebase, helpers that attach them, the handler
// setup driven by the log section of the configuration, and a small Logger
// interface for components that do not need the full slog API.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "schedule_appointment")
//	logger.Info("appointment scheduled",
//	    logging.Calendar(calendarID),
//	    logging.Appointment(appt.ID))
//
// In stdio mode the logger must write to stderr so the MCP channel on
// stdout stays clean:
//
//	logger := logging.New(os.Stderr, cfg.Log)
package logging
