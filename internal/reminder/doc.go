// Package reminder holds the reminder data model shared by storage, the
// scheduler wiring and the Telegram flows: ids, weekday sets, times of day,
// the durable record shape and the error kinds.
package reminder
