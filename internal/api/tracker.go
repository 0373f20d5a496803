package api

import (
	"sync"

	"github.com/forPelevin/automv/internal/types"
)

// maxFinished bounds how many finished jobs keep their last event; older
// ones are still served from the ledger.
const maxFinished = 256

// Tracker remembers the latest progress event of running jobs and of the
// most recently finished ones.
type Tracker struct {
	mu       sync.RWMutex
	last     map[string]types.Event
	finished []string // oldest first
	limit    int
}

func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]types.Event), limit: maxFinished}
}

// Observe records e. It has the shape of a pipeline progress callback.
func (t *Tracker) Observe(e types.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.last[e.JobID]
	t.last[e.JobID] = e
	if !e.Stage.Terminal() || (seen && prev.Stage.Terminal()) {
		return
	}
	t.finished = append(t.finished, e.JobID)
	for len(t.finished) > t.limit {
		delete(t.last, t.finished[0])
		t.finished = t.finished[1:]
	}
}

func (t *Tracker) Last(jobID string) (types.Event, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.last[jobID]
	return e, ok
}
