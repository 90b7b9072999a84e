// Package selection implements the reminder setup dialogue.
//
// A Session walks days -> period -> hour and ends complete or cancelled.
// Transitions come from a fixed table; input that does not fit the current
// stage is rejected and the session stays put. Sessions tracks the open
// dialogue per chat and user, including the free-text "change message" wait.
package selection
