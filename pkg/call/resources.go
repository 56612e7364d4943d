package call

import (
	"log"
	"sync"
	"time"
)

// resourceBag owns every call-scoped timer. It is disposed exactly once
// at teardown so no timer callback can touch a finished call.
type resourceBag struct {
	mu       sync.Mutex
	disposed bool
	timers   []*time.Timer
}

func newResourceBag() *resourceBag {
	return &resourceBag{}
}

// afterFunc registers a timer with the bag. Returns nil after dispose.
func (b *resourceBag) afterFunc(d time.Duration, f func()) *time.Timer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return nil
	}
	t := time.AfterFunc(d, f)
	b.timers = append(b.timers, t)
	return t
}

// dispose stops every registered timer. Idempotent.
func (b *resourceBag) dispose() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.disposed {
		return
	}
	b.disposed = true
	for _, t := range b.timers {
		t.Stop()
	}
	b.timers = nil
}

func (b *resourceBag) isDisposed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disposed
}

// runStep executes one teardown step, converting panics and logging
// errors so a failing step never blocks the remaining steps.
func runStep(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Call] teardown step %q panicked: %v", name, r)
		}
	}()
	f()
}
