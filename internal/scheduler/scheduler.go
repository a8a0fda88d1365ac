package scheduler

import (
	"sync"
	"time"
)

// Interval runs callbacks on a real wall-clock ticker. Tests substitute a
// manual implementation of service.Scheduler instead of using this one.
type Interval struct{}

func NewInterval() Interval {
	return Interval{}
}

// Schedule runs fn every interval until the returned cancel func is called.
// The first run happens after one full interval; eager first runs are the
// caller's job. Cancel is idempotent and safe from any goroutine.
func (Interval) Schedule(interval time.Duration, fn func()) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(done)
		})
	}
}
