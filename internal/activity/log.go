// Package activity classifies push events into the operator-facing
// activity taxonomy and keeps a bounded, append-only buffer of them.
package activity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
)

// DefaultCapacity is the number of items retained when no explicit
// capacity is configured.
const DefaultCapacity = 100

// Log is the bounded activity buffer. Insertion is append-only; once the
// capacity is exceeded the oldest items are evicted from the front. The
// whole buffer is cleared when a new job starts.
type Log struct {
	mu     sync.Mutex
	cap    int
	items  []domain.ActivityItem
	notify func(domain.ActivityItem)
}

// NewLog creates a buffer holding at most capacity items. A capacity of
// zero or less falls back to DefaultCapacity.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		cap:   capacity,
		items: make([]domain.ActivityItem, 0, capacity),
	}
}

// SetNotifyFunc registers a hook called for every appended item; the
// operator CLI uses it to stream the log as it grows.
func (l *Log) SetNotifyFunc(f func(domain.ActivityItem)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.notify = f
}

// Append adds one classified item, evicting from the front when full.
func (l *Log) Append(item domain.ActivityItem) {
	l.mu.Lock()
	l.items = append(l.items, item)
	if over := len(l.items) - l.cap; over > 0 {
		l.items = append(l.items[:0:0], l.items[over:]...)
	}
	notify := l.notify
	l.mu.Unlock()

	if notify != nil {
		notify(item)
	}
}

// Add builds an item with a fresh id and local timestamp, then appends it.
func (l *Log) Add(typ domain.ActivityType, message, details string) {
	l.AddAt(typ, message, details, time.Now())
}

// AddAt is Add with an explicit timestamp, used when the server supplied one.
func (l *Log) AddAt(typ domain.ActivityType, message, details string, ts time.Time) {
	l.Append(domain.ActivityItem{
		ID:        uuid.New().String(),
		Type:      typ,
		Message:   message,
		Details:   details,
		Timestamp: ts,
	})
}

// Reset clears the buffer. Called before the first event of a new job.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = l.items[:0]
}

// Items returns a copy of the buffer in arrival order.
func (l *Log) Items() []domain.ActivityItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]domain.ActivityItem, len(l.items))
	copy(out, l.items)
	return out
}

// Len returns the current number of buffered items.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// RecordRow classifies and buffers a row_processed event. Litigator hits
// win over DNC hits when a record carries both flags.
func (l *Log) RecordRow(ev domain.RowEvent) {
	typ := ClassifyRow(ev.RowData)
	name := fmt.Sprintf("%s %s", ev.RowData.FirstName, ev.RowData.LastName)
	var msg string
	switch typ {
	case domain.ActivityCCC:
		msg = fmt.Sprintf("Litigator match: %s (row %d)", name, ev.RowData.RowNumber)
	case domain.ActivityDNC:
		msg = fmt.Sprintf("DNC hit: %s (row %d)", name, ev.RowData.RowNumber)
	default:
		msg = fmt.Sprintf("Processed row %d", ev.RowData.RowNumber)
	}
	l.Add(typ, msg, ev.RowData.Status)
}

// RecordBatch buffers a batch_progress event.
func (l *Log) RecordBatch(ev domain.BatchEvent) {
	msg := fmt.Sprintf("Batch %d/%d", ev.CurrentBatch, ev.TotalBatches)
	l.Add(domain.ActivityBatch, msg, ev.Message)
}

// RecordLogLine classifies and buffers a job_log event, preferring the
// server-supplied timestamp when present.
func (l *Log) RecordLogLine(ev domain.LogEvent) {
	ts := time.Now()
	if ev.Timestamp != nil {
		ts = *ev.Timestamp
	}
	l.AddAt(ClassifyLevel(ev.Level), ev.Message, "", ts)
}

// ClassifyRow maps a record's compliance flags onto an activity type.
// Priority order: litigator list, then DNC, then clean.
func ClassifyRow(row domain.RowData) domain.ActivityType {
	switch {
	case row.IsLitigator():
		return domain.ActivityCCC
	case row.HasDNCHit():
		return domain.ActivityDNC
	default:
		return domain.ActivitySuccess
	}
}

// levelRules maps lower-cased substrings of a log level onto activity
// types. First match wins.
var levelRules = []struct {
	substr string
	typ    domain.ActivityType
}{
	{"error", domain.ActivityError},
	{"warn", domain.ActivityWarning},
	{"success", domain.ActivitySuccess},
	{"complete", domain.ActivitySuccess},
	{"snowflake", domain.ActivitySnowflake},
	{"idicore", domain.ActivityIdiCore},
	{"ccc", domain.ActivityCCC},
	{"litigator", domain.ActivityCCC},
	{"dnc", domain.ActivityDNC},
	{"batch", domain.ActivityBatch},
}

// ClassifyLevel maps a server-supplied level string onto an activity type,
// defaulting to info.
func ClassifyLevel(level string) domain.ActivityType {
	lower := strings.ToLower(level)
	for _, rule := range levelRules {
		if strings.Contains(lower, rule.substr) {
			return rule.typ
		}
	}
	return domain.ActivityInfo
}
