// Package digest runs the periodic utilization digest.
//
// On every tick of its cron schedule the Runner analyzes the upcoming
// weekdays of each calendar, logs the least busy day together with every
// underutilized day, and records digest metrics. A Runner without a
// schedule only runs when RunOnce is called, which is what
// `slotkeeper digest --once` does.
package digest
