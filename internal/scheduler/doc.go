// Package scheduler implements the appointment scheduling engine.
//
// A Service combines availability checks, admission-controlled scheduling,
// layered conflict resolution and utilization analysis on top of a
// store.Store. Every read-modify-write runs inside store.Store.Update, which
// holds the calendar lock for the duration of one transaction.
//
// Lower priority numbers are more important. Scheduling refuses a request
// that overlaps a strictly more important non-cancelled appointment and
// reports every other overlap as a conflict. ResolveConflicts then applies
// Strategies to those conflicts, one transaction per conflict.
package scheduler
