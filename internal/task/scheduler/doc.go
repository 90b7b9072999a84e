// Package scheduler arms recurring wall-clock jobs and keeps track of them.
//
// The package is split in three parts:
//   - Weekly, a cron.Schedule for "these weekdays at HH:MM"
//   - Engine, which turns any cron.Schedule into a chain of one-shot timers
//     (fire, then re-arm from the fire instant)
//   - Registry, which owns the id -> live job mapping so that every id has at
//     most one armed timer
//
// Time comes from a Clock so tests can drive the engine with ManualClock.
package scheduler
