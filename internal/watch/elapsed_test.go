package watch

import (
	"testing"
	"time"
)

func TestFormatElapsed(t *testing.T) {
	testCases := []struct {
		seconds int64
		want    string
	}{
		{0, "0s"},
		{1, "1s"},
		{59, "59s"},
		{60, "1m 0s"},
		{61, "1m 1s"},
		{125, "2m 5s"},
		{3599, "59m 59s"},
		{3600, "1h 0m"},
		{3725, "1h 2m"},
		{7380, "2h 3m"},
	}

	for _, tc := range testCases {
		if got := FormatElapsed(tc.seconds); got != tc.want {
			t.Errorf("FormatElapsed(%d) = %q, want %q", tc.seconds, got, tc.want)
		}
	}
}

// The first value must be available immediately on Start, without waiting
// for the first one-second tick.
func TestElapsedTrackerImmediateFirstValue(t *testing.T) {
	var tracker ElapsedTracker
	defer tracker.Stop()

	tracker.Start(time.Now().Add(-90 * time.Second))

	if got := tracker.Seconds(); got < 90 || got > 92 {
		t.Errorf("Seconds() right after Start = %d, want ~90", got)
	}
}

func TestElapsedTrackerStopResets(t *testing.T) {
	var tracker ElapsedTracker
	tracker.Start(time.Now().Add(-30 * time.Second))
	tracker.Stop()

	if got := tracker.Seconds(); got != 0 {
		t.Errorf("Seconds() after Stop = %d, want 0", got)
	}

	// Stop is safe to call again.
	tracker.Stop()
}

func TestElapsedTrackerRestartReplacesRun(t *testing.T) {
	var tracker ElapsedTracker
	defer tracker.Stop()

	tracker.Start(time.Now().Add(-200 * time.Second))
	tracker.Start(time.Now().Add(-10 * time.Second))

	if got := tracker.Seconds(); got < 10 || got > 12 {
		t.Errorf("Seconds() after restart = %d, want ~10", got)
	}
}

func TestElapsedTrackerNeverNegative(t *testing.T) {
	var tracker ElapsedTracker
	defer tracker.Stop()

	// A started-at slightly in the future (clock skew between backend and
	// client) must clamp to zero, not go negative.
	tracker.Start(time.Now().Add(5 * time.Second))

	if got := tracker.Seconds(); got != 0 {
		t.Errorf("Seconds() with future start = %d, want 0", got)
	}
}
