package scheduler

// Snapshot is a point-in-time view of the engine counters.
type Snapshot struct {
	Timezone      string `json:"timezone"`
	Stopped       bool   `json:"stopped"`
	Live          int    `json:"live"`
	Fired         uint64 `json:"fired"`
	Panics        uint64 `json:"panics"`
	RearmFailures uint64 `json:"rearm_failures"`
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	live := len(e.live)
	stopped := e.stopped
	e.mu.Unlock()
	return Snapshot{
		Timezone:      e.loc.String(),
		Stopped:       stopped,
		Live:          live,
		Fired:         e.fired.Load(),
		Panics:        e.panics.Load(),
		RearmFailures: e.rearmFailures.Load(),
	}
}
