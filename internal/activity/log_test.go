package activity

import (
	"fmt"
	"testing"

	"github.com/priority1ahmad/p1lending-etl-sub000/internal/domain"
)

func TestLogEvictsOldestAtCapacity(t *testing.T) {
	l := NewLog(100)

	for i := 0; i < 150; i++ {
		l.Add(domain.ActivityInfo, fmt.Sprintf("item %d", i), "")
	}

	if l.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", l.Len())
	}

	items := l.Items()
	if items[0].Message != "item 50" {
		t.Errorf("oldest retained item = %q, want item 50", items[0].Message)
	}
	if items[len(items)-1].Message != "item 149" {
		t.Errorf("newest item = %q, want item 149", items[len(items)-1].Message)
	}
}

func TestNewLogDefaultCapacity(t *testing.T) {
	l := NewLog(0)
	for i := 0; i < DefaultCapacity+10; i++ {
		l.Add(domain.ActivityInfo, "x", "")
	}
	if l.Len() != DefaultCapacity {
		t.Errorf("Len() = %d, want %d", l.Len(), DefaultCapacity)
	}
}

func TestReset(t *testing.T) {
	l := NewLog(10)
	l.Add(domain.ActivityStart, "Job started", "")
	l.Add(domain.ActivityInfo, "something", "")

	l.Reset()

	if l.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", l.Len())
	}
	// Buffer remains usable after a reset.
	l.Add(domain.ActivityInfo, "again", "")
	if l.Len() != 1 {
		t.Errorf("Len() after re-add = %d, want 1", l.Len())
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	l := NewLog(10)
	l.Add(domain.ActivityInfo, "original", "")

	items := l.Items()
	items[0].Message = "mutated"

	if got := l.Items()[0].Message; got != "original" {
		t.Errorf("buffer mutated through Items() copy: %q", got)
	}
}

func TestClassifyRowPriority(t *testing.T) {
	testCases := []struct {
		name string
		row  domain.RowData
		want domain.ActivityType
	}{
		{
			name: "clean row",
			row:  domain.RowData{InLitigatorList: "No", Phone1InDNC: "No"},
			want: domain.ActivitySuccess,
		},
		{
			name: "dnc hit",
			row:  domain.RowData{Phone1InDNC: "Yes"},
			want: domain.ActivityDNC,
		},
		{
			name: "litigator",
			row:  domain.RowData{InLitigatorList: "Yes"},
			want: domain.ActivityCCC,
		},
		{
			// A record on both lists classifies as litigator, not DNC.
			name: "litigator wins over dnc",
			row:  domain.RowData{InLitigatorList: "Yes", Phone1InDNC: "Yes", Phone2InDNC: "Yes"},
			want: domain.ActivityCCC,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyRow(tc.row); got != tc.want {
				t.Errorf("ClassifyRow() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClassifyLevel(t *testing.T) {
	testCases := []struct {
		level string
		want  domain.ActivityType
	}{
		{"error", domain.ActivityError},
		{"ERROR", domain.ActivityError},
		{"warn", domain.ActivityWarning},
		{"warning", domain.ActivityWarning},
		{"success", domain.ActivitySuccess},
		{"complete", domain.ActivitySuccess},
		{"snowflake", domain.ActivitySnowflake},
		{"idicore", domain.ActivityIdiCore},
		{"ccc", domain.ActivityCCC},
		{"litigator", domain.ActivityCCC},
		{"dnc", domain.ActivityDNC},
		{"batch", domain.ActivityBatch},
		{"info", domain.ActivityInfo},
		{"", domain.ActivityInfo},
		{"debug", domain.ActivityInfo},
	}

	for _, tc := range testCases {
		if got := ClassifyLevel(tc.level); got != tc.want {
			t.Errorf("ClassifyLevel(%q) = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestRecordRowMessages(t *testing.T) {
	l := NewLog(10)

	l.RecordRow(domain.RowEvent{RowData: domain.RowData{
		RowNumber: 7, FirstName: "Maria", LastName: "Garcia", InLitigatorList: "Yes",
	}})
	l.RecordRow(domain.RowEvent{RowData: domain.RowData{
		RowNumber: 8, FirstName: "James", LastName: "Smith", Phone1InDNC: "Yes",
	}})
	l.RecordRow(domain.RowEvent{RowData: domain.RowData{RowNumber: 9}})

	items := l.Items()
	if len(items) != 3 {
		t.Fatalf("Len() = %d, want 3", len(items))
	}
	if items[0].Type != domain.ActivityCCC || items[0].Message != "Litigator match: Maria Garcia (row 7)" {
		t.Errorf("litigator item = %+v", items[0])
	}
	if items[1].Type != domain.ActivityDNC || items[1].Message != "DNC hit: James Smith (row 8)" {
		t.Errorf("dnc item = %+v", items[1])
	}
	if items[2].Type != domain.ActivitySuccess || items[2].Message != "Processed row 9" {
		t.Errorf("clean item = %+v", items[2])
	}

	// Every item gets a unique id.
	if items[0].ID == items[1].ID || items[0].ID == "" {
		t.Errorf("item ids not unique: %q %q", items[0].ID, items[1].ID)
	}
}

func TestNotifyFuncSeesEveryAppend(t *testing.T) {
	l := NewLog(2)
	var seen []string
	l.SetNotifyFunc(func(item domain.ActivityItem) {
		seen = append(seen, item.Message)
	})

	l.Add(domain.ActivityInfo, "a", "")
	l.Add(domain.ActivityInfo, "b", "")
	l.Add(domain.ActivityInfo, "c", "")

	if len(seen) != 3 {
		t.Fatalf("notify called %d times, want 3", len(seen))
	}
	// Eviction does not suppress notification.
	if seen[2] != "c" || l.Len() != 2 {
		t.Errorf("seen = %v, Len() = %d", seen, l.Len())
	}
}
