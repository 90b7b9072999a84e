// Package storage persists reminder rows and notifier dedup state.
//
// Every driver satisfies Store. Rows are reminder.Record values; ids are
// assigned by the driver on Create (autoincrement for sqlite and supabase,
// uuid strings for file and mongo).
package storage
