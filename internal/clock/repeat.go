package clock

import (
	"sync"
	"time"
)

type repeater struct {
	clock  Clock
	period time.Duration
	f      func()

	mu      sync.Mutex
	current Timer
	stopped bool
}

func (r *repeater) schedule() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.current = r.clock.AfterFunc(r.period, r.fire)
}

func (r *repeater) fire() {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	r.f()
	r.schedule()
}

func (r *repeater) Stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.stopped = true
	if r.current != nil {
		r.current.Stop()
	}
	return true
}
