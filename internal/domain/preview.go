package domain

// PreviewResult is the response to a preview request: row counts for the
// selected scripts plus a sample of rows. A preview never carries
// compliance tallies; those exist only on a completed full job.
type PreviewResult struct {
	TotalRows        int64     `json:"total_rows"`
	AlreadyProcessed int64     `json:"already_processed"`
	NewToProcess     int64     `json:"new_to_process"`
	Rows             []RowData `json:"rows,omitempty"`
}
