package watch

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ElapsedTracker derives "seconds since job start" from the snapshot's
// started-at timestamp on a one-second tick, independent of event
// delivery. The first value is computed immediately on Start so the
// display never flashes zero.
type ElapsedTracker struct {
	mu      sync.Mutex
	seconds int64
	cancel  context.CancelFunc
}

// Start begins tracking from startedAt, replacing any previous run.
func (t *ElapsedTracker) Start(startedAt time.Time) {
	t.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.seconds = secondsSince(startedAt)
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.mu.Lock()
				t.seconds = secondsSince(startedAt)
				t.mu.Unlock()
			}
		}
	}()
}

// Stop cancels the tick and resets the value to zero. Safe to call when
// not running.
func (t *ElapsedTracker) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.cancel = nil
	t.seconds = 0
	t.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Seconds returns the current elapsed value.
func (t *ElapsedTracker) Seconds() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seconds
}

func secondsSince(start time.Time) int64 {
	s := int64(time.Since(start) / time.Second)
	if s < 0 {
		return 0
	}
	return s
}

// FormatElapsed renders a second count for the operator view.
func FormatElapsed(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm %ds", seconds/60, seconds%60)
	default:
		return fmt.Sprintf("%dh %dm", seconds/3600, (seconds%3600)/60)
	}
}
