package domain

import "time"

// JobStatus represents the lifecycle status of an ETL job.
// Values include JobStatusPending, JobStatusRunning, JobStatusCompleted,
// JobStatusFailed, and JobStatusCancelled.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// JobKind classifies what kind of extraction run a job performs.
type JobKind string

const (
	JobKindPreview  JobKind = "preview"
	JobKindSingle   JobKind = "single-script"
	JobKindCombined JobKind = "combined-scripts"
)

// JobSnapshot is the server-owned description of one ETL run. The client
// never mutates a snapshot in place; it only merges newly observed copies.
type JobSnapshot struct {
	ID       string    `gorm:"type:text;primaryKey" json:"id"`
	ScriptID string    `gorm:"type:text;index" json:"script_id,omitempty"`
	Kind     JobKind   `gorm:"type:text" json:"job_type"`
	Status   JobStatus `gorm:"default:pending;index" json:"status"`

	// Progress counters. TotalRows is a pointer because a preview run may
	// not know its total up front.
	CurrentRow    int64  `gorm:"default:0" json:"current_row"`
	TotalRows     *int64 `json:"total_rows,omitempty"`
	CurrentBatch  int    `gorm:"default:0" json:"current_batch"`
	TotalBatches  int    `gorm:"default:0" json:"total_batches"`
	RowsRemaining int64  `gorm:"default:0" json:"rows_remaining"`
	Message       string `json:"message,omitempty"`

	// Compliance tallies. While the job is running these are a running
	// count and must never decrease; they are final only once the job
	// reaches completed.
	CleanCount     int64 `gorm:"default:0" json:"clean_count"`
	LitigatorCount int64 `gorm:"default:0" json:"litigator_count"`
	DNCCount       int64 `gorm:"default:0" json:"dnc_count"`
	BothCount      int64 `gorm:"default:0" json:"both_count"`
	TotalProcessed int64 `gorm:"default:0" json:"total_processed"`

	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName returns the database table name for JobSnapshot.
func (JobSnapshot) TableName() string {
	return "etl_jobs"
}

// Merge folds a newly observed copy of the same job into s and returns the
// result. Fields the incoming copy actually carries win (last write by
// arrival order, not by embedded timestamp); tallies and row counters are
// clamped so a stale poll response can never roll back progress a push
// event already advanced.
func (s JobSnapshot) Merge(in JobSnapshot) JobSnapshot {
	out := s
	if in.Kind != "" {
		out.Kind = in.Kind
	}
	if in.ScriptID != "" {
		out.ScriptID = in.ScriptID
	}
	if in.Status != "" {
		out.Status = in.Status
	}
	if in.Message != "" {
		out.Message = in.Message
	}
	if in.ErrorMessage != "" {
		out.ErrorMessage = in.ErrorMessage
	}
	if in.TotalRows != nil {
		out.TotalRows = in.TotalRows
	}
	if in.TotalBatches != 0 {
		out.TotalBatches = in.TotalBatches
	}
	if in.StartedAt != nil {
		out.StartedAt = in.StartedAt
	}
	if in.CompletedAt != nil {
		out.CompletedAt = in.CompletedAt
	}
	if in.CurrentRow > out.CurrentRow {
		out.CurrentRow = in.CurrentRow
		out.RowsRemaining = in.RowsRemaining
	}

	out.CurrentBatch = maxInt(out.CurrentBatch, in.CurrentBatch)
	out.CleanCount = maxInt64(out.CleanCount, in.CleanCount)
	out.LitigatorCount = maxInt64(out.LitigatorCount, in.LitigatorCount)
	out.DNCCount = maxInt64(out.DNCCount, in.DNCCount)
	out.BothCount = maxInt64(out.BothCount, in.BothCount)
	out.TotalProcessed = maxInt64(out.TotalProcessed, in.TotalProcessed)
	return out
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
