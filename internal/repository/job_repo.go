package repository

import (
	"context"
	"strings"
	"time"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
	"gorm.io/gorm"
)

// JobLogLine is one persisted line of a job's full log file, served back
// verbatim by GET /jobs/{id}/log.
type JobLogLine struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	JobID     string    `gorm:"type:text;not null;index" json:"job_id"`
	Level     string    `gorm:"type:text" json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for JobLogLine.
func (JobLogLine) TableName() string {
	return "etl_job_logs"
}

// JobRepository handles job snapshot persistence for the simulator.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.JobSnapshot) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Update saves a mutated job record.
func (r *JobRepository) Update(ctx context.Context, job *domain.JobSnapshot) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// GetByID retrieves a job by its ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.JobSnapshot, error) {
	var job domain.JobSnapshot
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// List retrieves jobs with pagination, most recent first.
func (r *JobRepository) List(ctx context.Context, limit, offset int) ([]domain.JobSnapshot, error) {
	var jobs []domain.JobSnapshot
	if err := r.db.WithContext(ctx).
		Limit(limit).
		Offset(offset).
		Order("created_at DESC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateProgress persists only the progress counters and tallies of a
// running job. It deliberately leaves status untouched so a concurrent
// cancellation request cannot be overwritten by the runner's stride writes.
func (r *JobRepository) UpdateProgress(ctx context.Context, job *domain.JobSnapshot) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobSnapshot{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"current_row":     job.CurrentRow,
			"current_batch":   job.CurrentBatch,
			"rows_remaining":  job.RowsRemaining,
			"message":         job.Message,
			"clean_count":     job.CleanCount,
			"litigator_count": job.LitigatorCount,
			"dnc_count":       job.DNCCount,
			"both_count":      job.BothCount,
			"total_processed": job.TotalProcessed,
		}).Error
}

// SetStatus updates only the lifecycle status of a job.
func (r *JobRepository) SetStatus(ctx context.Context, id string, status domain.JobStatus) error {
	return r.db.WithContext(ctx).
		Model(&domain.JobSnapshot{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// GetStatus fetches only the lifecycle status of a job. The runner polls
// this to observe operator cancellation.
func (r *JobRepository) GetStatus(ctx context.Context, id string) (domain.JobStatus, error) {
	var job domain.JobSnapshot
	if err := r.db.WithContext(ctx).
		Select("status").
		First(&job, "id = ?", id).Error; err != nil {
		return "", err
	}
	return job.Status, nil
}

// AppendLog persists one log line for a job.
func (r *JobRepository) AppendLog(ctx context.Context, jobID, level, message string) error {
	return r.db.WithContext(ctx).Create(&JobLogLine{
		JobID:   jobID,
		Level:   level,
		Message: message,
	}).Error
}

// LogText returns the full log file text for a job, oldest line first.
func (r *JobRepository) LogText(ctx context.Context, jobID string) (string, error) {
	var lines []JobLogLine
	if err := r.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Find(&lines).Error; err != nil {
		return "", err
	}

	var b strings.Builder
	for _, line := range lines {
		b.WriteString(line.CreatedAt.UTC().Format(time.RFC3339))
		b.WriteString(" [")
		b.WriteString(strings.ToUpper(line.Level))
		b.WriteString("] ")
		b.WriteString(line.Message)
		b.WriteString("\n")
	}
	return b.String(), nil
}
