// Package service drives simulated extraction runs for the contract
// simulator: batches, per-row compliance tagging, progress events, and
// terminal transitions, published over the same wire contract the real
// backend uses.
package service

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/logger"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/repository"
)

// Notifier publishes a push event to every observer joined to a job's room.
type Notifier interface {
	Publish(jobID string, env domain.Envelope)
}

// RunnerConfig shapes the simulated pipeline.
type RunnerConfig struct {
	BatchSize     int
	RowDelay      time.Duration
	LitigatorRate float64
	DNCRate       float64
}

// Runner owns at most one in-flight simulated job.
type Runner struct {
	repo     *repository.JobRepository
	notifier Notifier
	log      *logger.Logger
	cfg      RunnerConfig

	mu      sync.Mutex
	current string
}

// NewRunner creates a runner.
func NewRunner(repo *repository.JobRepository, notifier Notifier, log *logger.Logger, cfg *RunnerConfig) *Runner {
	if log == nil {
		log = logger.GetDefault()
	}
	c := RunnerConfig{BatchSize: 250, RowDelay: 5 * time.Millisecond, LitigatorRate: 0.04, DNCRate: 0.12}
	if cfg != nil {
		if cfg.BatchSize > 0 {
			c.BatchSize = cfg.BatchSize
		}
		if cfg.RowDelay > 0 {
			c.RowDelay = cfg.RowDelay
		}
		if cfg.LitigatorRate > 0 {
			c.LitigatorRate = cfg.LitigatorRate
		}
		if cfg.DNCRate > 0 {
			c.DNCRate = cfg.DNCRate
		}
	}
	return &Runner{
		repo:     repo,
		notifier: notifier,
		log:      log.WithField(logger.FieldComponent, "runner"),
		cfg:      c,
	}
}

// Busy reports whether a simulated job is currently in flight.
func (r *Runner) Busy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != ""
}

// StartJob creates a running job for the script and launches the pipeline
// in the background. Returns the initial snapshot.
func (r *Runner) StartJob(ctx context.Context, scriptID string, kind domain.JobKind, rowLimit *int64) (*domain.JobSnapshot, error) {
	r.mu.Lock()
	if r.current != "" {
		r.mu.Unlock()
		return nil, fmt.Errorf("job %s is already running", r.current)
	}

	total := scriptRowCount(scriptID)
	if rowLimit != nil && *rowLimit > 0 && *rowLimit < total {
		total = *rowLimit
	}
	batches := int((total + int64(r.cfg.BatchSize) - 1) / int64(r.cfg.BatchSize))

	now := time.Now()
	job := &domain.JobSnapshot{
		ID:           uuid.New().String(),
		ScriptID:     scriptID,
		Kind:         kind,
		Status:       domain.JobStatusRunning,
		TotalRows:    &total,
		TotalBatches: batches,
		StartedAt:    &now,
	}
	r.current = job.ID
	r.mu.Unlock()

	if err := r.repo.Create(ctx, job); err != nil {
		r.clearCurrent()
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	go r.run(*job)
	return job, nil
}

func (r *Runner) clearCurrent() {
	r.mu.Lock()
	r.current = ""
	r.mu.Unlock()
}

// run is the simulated pipeline. It survives the originating HTTP request,
// so it uses a background context.
func (r *Runner) run(job domain.JobSnapshot) {
	defer r.clearCurrent()

	ctx := context.Background()
	log := r.log.WithField(logger.FieldJobID, job.ID)

	r.emitLog(ctx, job.ID, "snowflake", fmt.Sprintf("Executing extraction query for script %s", job.ScriptID))
	r.emitLog(ctx, job.ID, "idicore", "idiCORE enrichment session opened")

	total := *job.TotalRows
	// Scripts named *fail* blow up partway through; handy for exercising
	// the job_error path from the CLI.
	failAt := int64(-1)
	if strings.Contains(job.ScriptID, "fail") {
		failAt = total * 2 / 5
	}

	for row := int64(1); row <= total; row++ {
		time.Sleep(r.cfg.RowDelay)

		batch := int((row-1)/int64(r.cfg.BatchSize)) + 1
		if (row-1)%int64(r.cfg.BatchSize) == 0 {
			// Batch boundary: check for operator cancellation before
			// starting the next batch.
			status, err := r.repo.GetStatus(ctx, job.ID)
			if err == nil && status == domain.JobStatusCancelled {
				r.emitLog(ctx, job.ID, "warn", "Job cancelled by operator")
				r.finish(ctx, &job, domain.JobStatusCancelled, "")
				return
			}

			job.CurrentBatch = batch
			r.publish(job.ID, domain.EventBatchProgress, domain.BatchEvent{
				CurrentBatch: batch,
				TotalBatches: job.TotalBatches,
				Message:      fmt.Sprintf("Batch %d/%d", batch, job.TotalBatches),
			})
			r.emitLog(ctx, job.ID, "batch", fmt.Sprintf("Starting batch %d of %d", batch, job.TotalBatches))
		}

		if row == failAt {
			msg := fmt.Sprintf("idiCORE enrichment failed at row %d", row)
			r.emitLog(ctx, job.ID, "error", msg)
			job.ErrorMessage = msg
			r.finish(ctx, &job, domain.JobStatusFailed, msg)
			r.publish(job.ID, domain.EventJobError, domain.ErrorEvent{Error: msg})
			return
		}

		rowData := r.makeRow(job.ID, row)
		switch {
		case rowData.IsLitigator():
			if rowData.HasDNCHit() {
				job.BothCount++
			}
			job.LitigatorCount++
		case rowData.HasDNCHit():
			job.DNCCount++
		default:
			job.CleanCount++
		}
		job.CurrentRow = row
		job.TotalProcessed = row
		job.RowsRemaining = total - row

		r.publish(job.ID, domain.EventRowProcessed, domain.RowEvent{RowData: rowData})

		// Persist and broadcast coarse progress on a stride so the poll
		// endpoint keeps up without a write per row.
		if row%25 == 0 || row == total {
			job.Message = fmt.Sprintf("Processing row %d of %d", row, total)
			if err := r.repo.UpdateProgress(ctx, &job); err != nil {
				log.Warnf("Failed to persist progress: %v", err)
			}
			r.publish(job.ID, domain.EventJobProgress, domain.ProgressEvent{
				Progress:      float64(row) / float64(total),
				Message:       job.Message,
				CurrentRow:    row,
				TotalRows:     &total,
				RowsRemaining: job.RowsRemaining,
				CurrentBatch:  job.CurrentBatch,
				TotalBatches:  job.TotalBatches,
			})
		}
	}

	r.emitLog(ctx, job.ID, "success", fmt.Sprintf("Processed %d rows", total))
	r.finish(ctx, &job, domain.JobStatusCompleted, "")
	r.publish(job.ID, domain.EventJobComplete, domain.CompleteEvent{
		CleanCount:     job.CleanCount,
		LitigatorCount: job.LitigatorCount,
		DNCCount:       job.DNCCount,
		BothCount:      job.BothCount,
		TotalProcessed: job.TotalProcessed,
		Message:        "Job completed",
	})
}

func (r *Runner) finish(ctx context.Context, job *domain.JobSnapshot, status domain.JobStatus, errMsg string) {
	now := time.Now()
	job.Status = status
	job.CompletedAt = &now
	if errMsg != "" {
		job.ErrorMessage = errMsg
	}
	if err := r.repo.Update(ctx, job); err != nil {
		r.log.WithField(logger.FieldJobID, job.ID).Warnf("Failed to persist terminal state: %v", err)
	}
}

func (r *Runner) publish(jobID, event string, payload interface{}) {
	if r.notifier == nil {
		return
	}
	env, err := domain.NewEnvelope(event, payload)
	if err != nil {
		r.log.Warnf("Failed to build %s event: %v", event, err)
		return
	}
	r.notifier.Publish(jobID, env)
}

// emitLog persists one log line and mirrors it onto the push channel.
func (r *Runner) emitLog(ctx context.Context, jobID, level, message string) {
	if err := r.repo.AppendLog(ctx, jobID, level, message); err != nil {
		r.log.WithField(logger.FieldJobID, jobID).Warnf("Failed to persist log line: %v", err)
	}
	ts := time.Now()
	r.publish(jobID, domain.EventJobLog, domain.LogEvent{Level: level, Message: message, Timestamp: &ts})
}

// Preview computes deterministic row counts for the selected scripts
// without starting a job. A preview never reports compliance tallies.
func (r *Runner) Preview(ctx context.Context, scriptIDs []string, rowLimit *int64) (*domain.PreviewResult, error) {
	if len(scriptIDs) == 0 {
		return nil, fmt.Errorf("no scripts selected")
	}

	var total int64
	for _, id := range scriptIDs {
		total += scriptRowCount(id)
	}
	if rowLimit != nil && *rowLimit > 0 && *rowLimit < total {
		total = *rowLimit
	}

	// Deterministic split so repeated previews of the same scripts agree.
	processed := int64(float64(total) * float64(hash(strings.Join(scriptIDs, ","))%40) / 100.0)

	sample := make([]domain.RowData, 0, 5)
	for i := int64(1); i <= 5 && i <= total; i++ {
		row := r.makeRow(scriptIDs[0], i)
		// Preview rows carry no compliance flags; tagging happens only
		// during a full run.
		row.InLitigatorList = ""
		row.Phone1InDNC = ""
		row.Phone2InDNC = ""
		row.Phone3InDNC = ""
		sample = append(sample, row)
	}

	return &domain.PreviewResult{
		TotalRows:        total,
		AlreadyProcessed: processed,
		NewToProcess:     total - processed,
		Rows:             sample,
	}, nil
}

var (
	firstNames = []string{"James", "Maria", "Robert", "Linda", "Michael", "Patricia", "David", "Jennifer", "Carlos", "Susan"}
	lastNames  = []string{"Smith", "Garcia", "Johnson", "Brown", "Martinez", "Davis", "Lopez", "Wilson", "Anderson", "Taylor"}
)

// makeRow builds a deterministic record for (seed, row): the same job
// replays identically, which keeps tests stable.
func (r *Runner) makeRow(seed string, row int64) domain.RowData {
	h := hash(fmt.Sprintf("%s:%d", seed, row))
	data := domain.RowData{
		RowNumber: row,
		FirstName: firstNames[h%uint64(len(firstNames))],
		LastName:  lastNames[(h/7)%uint64(len(lastNames))],
		Status:    "processed",
	}

	data.InLitigatorList = yesNo(float64(h%1000)/1000.0 < r.cfg.LitigatorRate)
	data.Phone1InDNC = yesNo(float64((h/13)%1000)/1000.0 < r.cfg.DNCRate)
	data.Phone2InDNC = yesNo(float64((h/31)%1000)/1000.0 < r.cfg.DNCRate/2)
	data.Phone3InDNC = "No"
	return data
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// scriptRowCount derives a stable row count in [400, 3400) from the
// script id.
func scriptRowCount(scriptID string) int64 {
	return 400 + int64(hash(scriptID)%3000)
}

func hash(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}
