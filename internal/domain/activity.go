package domain

import "time"

// ActivityType tags one entry in the operator-facing activity log.
// The set is closed; classification in the activity package maps every
// incoming push event onto exactly one of these.
type ActivityType string

const (
	ActivityStart     ActivityType = "start"
	ActivityBatch     ActivityType = "batch"
	ActivitySuccess   ActivityType = "success"
	ActivityError     ActivityType = "error"
	ActivityWarning   ActivityType = "warning"
	ActivityInfo      ActivityType = "info"
	ActivitySnowflake ActivityType = "snowflake"
	ActivityIdiCore   ActivityType = "idicore"
	// ActivityCCC marks a record found on the litigator list.
	ActivityCCC ActivityType = "ccc"
	// ActivityDNC marks a record with a phone number on the do-not-call list.
	ActivityDNC ActivityType = "dnc"
)

// ActivityItem is one entry in the bounded activity log.
type ActivityItem struct {
	ID        string       `json:"id"`
	Type      ActivityType `json:"type"`
	Message   string       `json:"message"`
	Details   string       `json:"details,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}
