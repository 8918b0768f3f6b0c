package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Push channel event names. Client to server: EventJoinJob, EventLeaveJob.
// Server to client: the rest.
const (
	EventJoinJob  = "join_job"
	EventLeaveJob = "leave_job"

	EventJobProgress   = "job_progress"
	EventBatchProgress = "batch_progress"
	EventRowProcessed  = "row_processed"
	EventJobLog        = "job_log"
	EventJobComplete   = "job_complete"
	EventJobError      = "job_error"
)

// Envelope is the wire frame for every push channel message:
// {"event": "<name>", "data": {...}}.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals payload into a ready-to-send envelope.
func NewEnvelope(event string, payload interface{}) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode unmarshals the envelope data into out.
func (e Envelope) Decode(out interface{}) error {
	if err := json.Unmarshal(e.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", e.Event, err)
	}
	return nil
}

// JoinPayload is the body of join_job and leave_job frames.
type JoinPayload struct {
	JobID string `json:"job_id"`
}

// ProgressEvent reports overall job progress.
type ProgressEvent struct {
	Progress      float64 `json:"progress"`
	Message       string  `json:"message"`
	CurrentRow    int64   `json:"current_row"`
	TotalRows     *int64  `json:"total_rows,omitempty"`
	RowsRemaining int64   `json:"rows_remaining"`
	CurrentBatch  int     `json:"current_batch"`
	TotalBatches  int     `json:"total_batches"`
}

// BatchEvent reports that the runner moved to a new batch.
type BatchEvent struct {
	CurrentBatch int    `json:"current_batch"`
	TotalBatches int    `json:"total_batches"`
	Message      string `json:"message,omitempty"`
}

// RowEvent carries the outcome of a single processed record.
type RowEvent struct {
	RowData RowData `json:"row_data"`
}

// RowData is the per-record payload. Compliance flags arrive as the
// strings "Yes"/"No", matching the warehouse export format.
type RowData struct {
	RowNumber       int64  `json:"row_number"`
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Status          string `json:"status,omitempty"`
	InLitigatorList string `json:"in_litigator_list,omitempty"`
	Phone1InDNC     string `json:"phone_1_in_dnc,omitempty"`
	Phone2InDNC     string `json:"phone_2_in_dnc,omitempty"`
	Phone3InDNC     string `json:"phone_3_in_dnc,omitempty"`
}

// IsLitigator reports whether the record is on the litigator list.
func (r RowData) IsLitigator() bool {
	return flagSet(r.InLitigatorList)
}

// HasDNCHit reports whether any of the record's phone numbers is on the
// do-not-call list.
func (r RowData) HasDNCHit() bool {
	return flagSet(r.Phone1InDNC) || flagSet(r.Phone2InDNC) || flagSet(r.Phone3InDNC)
}

func flagSet(v string) bool {
	return strings.EqualFold(strings.TrimSpace(v), "yes")
}

// LogEvent is a free-text log line from the runner.
type LogEvent struct {
	Level     string     `json:"level"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// CompleteEvent carries the final tallies of a finished job.
type CompleteEvent struct {
	CleanCount     int64  `json:"clean_count"`
	LitigatorCount int64  `json:"litigator_count"`
	DNCCount       int64  `json:"dnc_count"`
	BothCount      int64  `json:"both_count"`
	TotalProcessed int64  `json:"total_processed"`
	Message        string `json:"message,omitempty"`
}

// ErrorEvent reports a terminal job failure.
type ErrorEvent struct {
	Error string `json:"error"`
}
