package filter

import (
	"testing"
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

func day(d int) *time.Time {
	t := time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC)
	return &t
}

func sample() []domain.Task {
	return []domain.Task{
		{ID: "a", ProjectID: "p1", Priority: domain.PriorityHigh, DueDate: day(5)},
		{ID: "b", ProjectID: "p1", Priority: domain.PriorityLow},
		{ID: "c", ProjectID: "p2", Priority: domain.PriorityHigh, DueDate: day(10)},
		{ID: "d", ProjectID: "p2", Priority: domain.PriorityMedium, DueDate: day(20)},
	}
}

func ids(tasks []domain.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestApply(t *testing.T) {
	tests := []struct {
		name string
		c    Criteria
		want []string
	}{
		{"no filters", Criteria{}, []string{"a", "b", "c", "d"}},
		{"project", Criteria{ProjectID: "p1"}, []string{"a", "b"}},
		{"priority", Criteria{Priority: domain.PriorityHigh}, []string{"a", "c"}},
		{"project and priority", Criteria{ProjectID: "p2", Priority: domain.PriorityHigh}, []string{"c"}},
		{"due after inclusive", Criteria{DueAfter: day(10)}, []string{"c", "d"}},
		{"due before inclusive", Criteria{DueBefore: day(10)}, []string{"a", "c"}},
		{"due range", Criteria{DueAfter: day(6), DueBefore: day(19)}, []string{"c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.c.Apply(sample()))
			if !equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	c := Criteria{ProjectID: "p1", DueAfter: day(1)}
	once := c.Apply(sample())
	twice := c.Apply(once)
	if !equal(ids(once), ids(twice)) {
		t.Fatalf("expected %v, got %v", ids(once), ids(twice))
	}
}

func TestTaskWithoutDueDateExcludedByAnyBound(t *testing.T) {
	undated := domain.Task{ID: "x", ProjectID: "p1"}
	for _, d := range []int{1, 15, 28} {
		if (Criteria{DueAfter: day(d)}).Match(undated) {
			t.Fatalf("undated task passed DueAfter=%d", d)
		}
		if (Criteria{DueBefore: day(d)}).Match(undated) {
			t.Fatalf("undated task passed DueBefore=%d", d)
		}
	}
	if !(Criteria{ProjectID: "p1"}).Match(undated) {
		t.Fatal("undated task should pass when no date bound is set")
	}
}

func TestActive(t *testing.T) {
	if n := (Criteria{}).Active(); n != 0 {
		t.Fatalf("expected 0 active filters, got %d", n)
	}
	if n := (Criteria{ProjectID: "p", Priority: domain.PriorityLow, DueBefore: day(2)}).Active(); n != 3 {
		t.Fatalf("expected 3 active filters, got %d", n)
	}
}
