// Package lifecycle ties the reminder store to the scheduler.
//
// Create persists then arms, UpdateMessage touches the store only (jobs
// re-read the message when they fire), Delete cancels then removes, and
// Reload reconciles the registry with the store. One weekly job exists per
// stored reminder once Reload has run.
package lifecycle
