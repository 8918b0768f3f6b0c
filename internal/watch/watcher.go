// Package watch reconciles REST snapshot polling with push events into a
// single authoritative view of the current ETL job.
package watch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/activity"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/client"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/config"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/push"
)

// unknownAfter is the number of consecutive poll failures after which the
// job is presented as unknown. It is never presented as not-running on a
// failure alone.
const unknownAfter = 3

// Poller supplies the authoritative job snapshot. Polling is the sole
// source of final tallies and of terminal-state corroboration.
type Poller interface {
	LatestJob(ctx context.Context) (*domain.JobSnapshot, error)
}

// Attacher is the connection lifecycle manager seen from the reconciler.
type Attacher interface {
	Attach(ctx context.Context, jobID string) error
	Detach()
}

// Watcher merges polled snapshots and push events by arrival order. A
// single goroutine (Run) owns the snapshot and activity buffer; every
// mutation goes through it.
type Watcher struct {
	poller   Poller
	conn     Attacher
	acts     *activity.Log
	elapsed  ElapsedTracker
	log      *logger.Logger
	interval config.WatchConfig

	// events receives push frames from the connection manager.
	// refresh coalesces out-of-band poll requests.
	events  chan domain.Envelope
	refresh chan struct{}

	// invalidate is called once per terminal transition so dependent
	// job-list and history views can refetch.
	invalidate func()

	mu           sync.RWMutex
	snapshot     *domain.JobSnapshot
	pollFailures int
	elapsedFrom  time.Time
	noCredential bool
	// terminalDone records job ids whose terminal transition was already
	// handled, so a push event and a corroborating poll cannot both
	// append a completion item.
	terminalDone map[string]bool
}

// New creates a watcher. conn may be nil, in which case the watcher runs
// poll-only.
func New(p Poller, conn Attacher, acts *activity.Log, cfg *config.WatchConfig, log *logger.Logger) *Watcher {
	if log == nil {
		log = logger.GetDefault()
	}
	interval := config.WatchConfig{RunningPoll: 2 * time.Second, IdlePoll: 10 * time.Second}
	if cfg != nil {
		if cfg.RunningPoll > 0 {
			interval.RunningPoll = cfg.RunningPoll
		}
		if cfg.IdlePoll > 0 {
			interval.IdlePoll = cfg.IdlePoll
		}
	}
	if acts == nil {
		acts = activity.NewLog(activity.DefaultCapacity)
	}
	return &Watcher{
		poller:       p,
		conn:         conn,
		acts:         acts,
		log:          log.WithField(logger.FieldComponent, "watch"),
		interval:     interval,
		events:       make(chan domain.Envelope, 64),
		refresh:      make(chan struct{}, 1),
		terminalDone: make(map[string]bool),
	}
}

// EventSink returns the channel the connection manager forwards server
// frames into.
func (w *Watcher) EventSink() chan<- domain.Envelope {
	return w.events
}

// SetInvalidateFunc registers the cache-invalidation hook fired on each
// terminal transition.
func (w *Watcher) SetInvalidateFunc(f func()) {
	w.invalidate = f
}

// SetAttacher installs the connection lifecycle manager. The manager needs
// EventSink at construction, so callers wire it after New and before Run.
func (w *Watcher) SetAttacher(a Attacher) {
	w.conn = a
}

// Snapshot returns a copy of the current job view, or nil when no job has
// been observed.
func (w *Watcher) Snapshot() *domain.JobSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.snapshot == nil {
		return nil
	}
	s := *w.snapshot
	return &s
}

// Activity returns the bounded activity buffer.
func (w *Watcher) Activity() *activity.Log {
	return w.acts
}

// ElapsedSeconds returns seconds since the running job started, zero when
// no job is running.
func (w *Watcher) ElapsedSeconds() int64 {
	return w.elapsed.Seconds()
}

// Unknown reports whether polling has failed often enough that the job
// state can no longer be trusted.
func (w *Watcher) Unknown() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.pollFailures >= unknownAfter
}

// Run polls and applies push events until ctx is cancelled. The poll
// interval is recomputed after every fetch from the current status.
func (w *Watcher) Run(ctx context.Context) {
	defer func() {
		w.elapsed.Stop()
		if w.conn != nil {
			w.conn.Detach()
		}
	}()

	w.poll(ctx)
	timer := time.NewTimer(w.pollInterval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			w.poll(ctx)
			timer.Reset(w.pollInterval())
		case <-w.refresh:
			w.poll(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.pollInterval())
		case env := <-w.events:
			w.handleEvent(ctx, env)
		}
	}
}

// pollInterval is a pure function of the current status: fast while a job
// is running, slow otherwise.
func (w *Watcher) pollInterval() time.Duration {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.snapshot != nil && w.snapshot.Status == domain.JobStatusRunning {
		return w.interval.RunningPoll
	}
	return w.interval.IdlePoll
}

// requestRefresh schedules one out-of-band poll; duplicate requests
// coalesce.
func (w *Watcher) requestRefresh() {
	select {
	case w.refresh <- struct{}{}:
	default:
	}
}

func (w *Watcher) poll(ctx context.Context) {
	snap, err := w.poller.LatestJob(ctx)
	if err != nil {
		if errors.Is(err, client.ErrNoJob) {
			w.mu.Lock()
			w.pollFailures = 0
			w.snapshot = nil
			w.mu.Unlock()
			return
		}
		// Transient failure: keep the last known snapshot so the view
		// does not flicker to "no job".
		w.mu.Lock()
		w.pollFailures++
		n := w.pollFailures
		w.mu.Unlock()
		w.log.Warnf("Snapshot poll failed (%d consecutive): %v", n, err)
		return
	}

	w.mu.Lock()
	w.pollFailures = 0
	w.mu.Unlock()
	w.apply(ctx, *snap)
}

// apply merges one observed snapshot copy, in arrival order, and drives
// the lifecycle transitions.
func (w *Watcher) apply(ctx context.Context, in domain.JobSnapshot) {
	w.mu.Lock()
	fresh := w.snapshot == nil || w.snapshot.ID != in.ID
	if fresh {
		// A new job id starts a fresh cycle.
		w.snapshot = &in
	} else {
		if w.snapshot.Status.IsTerminal() {
			// Terminal snapshots are immutable.
			w.mu.Unlock()
			return
		}
		merged := w.snapshot.Merge(in)
		w.snapshot = &merged
	}
	cur := *w.snapshot
	w.mu.Unlock()

	if fresh {
		w.acts.Reset()
		w.pruneTerminalDone(cur.ID)
		if cur.Status == domain.JobStatusRunning {
			w.acts.Add(domain.ActivityStart, "Job started", string(cur.Kind))
		}
	}

	switch {
	case cur.Status == domain.JobStatusRunning:
		if cur.StartedAt != nil {
			w.mu.Lock()
			restart := !w.elapsedFrom.Equal(*cur.StartedAt)
			w.elapsedFrom = *cur.StartedAt
			w.mu.Unlock()
			if restart {
				w.elapsed.Start(*cur.StartedAt)
			}
		}
		w.attach(ctx, cur.ID)
	case cur.Status.IsTerminal():
		w.finishJob(cur.ID, cur.Status, cur.ErrorMessage)
	}
}

func (w *Watcher) attach(ctx context.Context, jobID string) {
	w.mu.RLock()
	skip := w.conn == nil || w.noCredential
	w.mu.RUnlock()
	if skip {
		return
	}
	if err := w.conn.Attach(ctx, jobID); err != nil {
		if errors.Is(err, push.ErrNoCredential) {
			// Poll-only mode; not surfaced to the operator.
			w.mu.Lock()
			w.noCredential = true
			w.mu.Unlock()
			w.log.Debug("No push credential, staying poll-only")
			return
		}
		w.log.WithField(logger.FieldJobID, jobID).
			Warnf("Push channel attach failed, staying poll-only: %v", err)
	}
}

// finishJob handles a terminal transition exactly once per job id,
// regardless of whether a push event or a poll observed it first.
func (w *Watcher) finishJob(jobID string, status domain.JobStatus, errMsg string) {
	w.mu.Lock()
	if w.terminalDone[jobID] {
		w.mu.Unlock()
		return
	}
	w.terminalDone[jobID] = true
	w.mu.Unlock()

	switch status {
	case domain.JobStatusCompleted:
		w.acts.Add(domain.ActivitySuccess, "Job completed", "")
	case domain.JobStatusFailed:
		msg := errMsg
		if msg == "" {
			msg = "Job failed"
		}
		w.acts.Add(domain.ActivityError, msg, "")
	case domain.JobStatusCancelled:
		w.acts.Add(domain.ActivityWarning, "Job cancelled", "")
	}

	w.elapsed.Stop()
	w.mu.Lock()
	w.elapsedFrom = time.Time{}
	w.mu.Unlock()
	if w.conn != nil {
		w.conn.Detach()
	}
	if w.invalidate != nil {
		w.invalidate()
	}
	w.log.WithField(logger.FieldJobID, jobID).
		Infof("Job reached terminal status %s", status)
}

// pruneTerminalDone drops guard entries for jobs other than the current
// one so the map does not grow without bound.
func (w *Watcher) pruneTerminalDone(current string) {
	w.mu.Lock()
	for id := range w.terminalDone {
		if id != current {
			delete(w.terminalDone, id)
		}
	}
	w.mu.Unlock()
}

func (w *Watcher) handleEvent(ctx context.Context, env domain.Envelope) {
	switch env.Event {
	case domain.EventJobProgress:
		var ev domain.ProgressEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warnf("Dropping malformed event: %v", err)
			return
		}
		w.mergeProgress(ev)
		w.requestRefresh()

	case domain.EventBatchProgress:
		var ev domain.BatchEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warnf("Dropping malformed event: %v", err)
			return
		}
		w.acts.RecordBatch(ev)
		w.mergeProgress(domain.ProgressEvent{CurrentBatch: ev.CurrentBatch, TotalBatches: ev.TotalBatches, Message: ev.Message})
		w.requestRefresh()

	case domain.EventRowProcessed:
		var ev domain.RowEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warnf("Dropping malformed event: %v", err)
			return
		}
		w.acts.RecordRow(ev)

	case domain.EventJobLog:
		var ev domain.LogEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warnf("Dropping malformed event: %v", err)
			return
		}
		w.acts.RecordLogLine(ev)

	case domain.EventJobComplete:
		var ev domain.CompleteEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warnf("Dropping malformed event: %v", err)
			return
		}
		w.applyTerminalEvent(domain.JobStatusCompleted, "", func(s *domain.JobSnapshot) {
			s.CleanCount = ev.CleanCount
			s.LitigatorCount = ev.LitigatorCount
			s.DNCCount = ev.DNCCount
			s.BothCount = ev.BothCount
			s.TotalProcessed = ev.TotalProcessed
		})
		w.requestRefresh()

	case domain.EventJobError:
		var ev domain.ErrorEvent
		if err := env.Decode(&ev); err != nil {
			w.log.Warnf("Dropping malformed event: %v", err)
			return
		}
		w.applyTerminalEvent(domain.JobStatusFailed, ev.Error, nil)
		w.requestRefresh()

	default:
		w.log.WithField(logger.FieldEvent, env.Event).Debug("Ignoring unknown event")
	}
	_ = ctx
}

// mergeProgress folds push-carried counters into the snapshot without
// waiting for the next poll.
func (w *Watcher) mergeProgress(ev domain.ProgressEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot == nil || w.snapshot.Status.IsTerminal() {
		return
	}
	merged := w.snapshot.Merge(domain.JobSnapshot{
		ID:            w.snapshot.ID,
		CurrentRow:    ev.CurrentRow,
		TotalRows:     ev.TotalRows,
		CurrentBatch:  ev.CurrentBatch,
		TotalBatches:  ev.TotalBatches,
		RowsRemaining: ev.RowsRemaining,
		Message:       ev.Message,
	})
	w.snapshot = &merged
}

// applyTerminalEvent applies a terminal push event immediately for
// perceived latency; the corroborating poll supplies final state and is
// deduplicated by the terminal guard.
func (w *Watcher) applyTerminalEvent(status domain.JobStatus, errMsg string, mutate func(*domain.JobSnapshot)) {
	w.mu.Lock()
	if w.snapshot == nil {
		w.mu.Unlock()
		return
	}
	jobID := w.snapshot.ID
	if !w.snapshot.Status.IsTerminal() {
		s := *w.snapshot
		s.Status = status
		if errMsg != "" {
			s.ErrorMessage = errMsg
		}
		if mutate != nil {
			mutate(&s)
		}
		now := time.Now()
		if s.CompletedAt == nil {
			s.CompletedAt = &now
		}
		w.snapshot = &s
	}
	w.mu.Unlock()

	w.finishJob(jobID, status, errMsg)
}
