// Package notifier delivers outbound messages through a transport.Adapter.
//
// Notify enqueues; a supervised worker pool drains the queue under a shared
// rate limit. Each send is bounded by a timeout, retried with jittered
// exponential backoff and guarded by a circuit breaker so a dead upstream
// does not pin every worker in retries.
//
// Notifications that carry a Key are deduplicated for DedupWindow. Reminder
// delivery keys on the reminder id and the scheduled instant, so a re-armed
// or re-registered job cannot deliver the same occurrence twice. With
// PersistDedup the window survives restarts through storage.Store.
package notifier
