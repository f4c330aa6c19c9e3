// Package filter narrows the task collection to the board's visible subset.
package filter

import (
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

// Criteria holds optional task filters. Zero values mean "no filter".
type Criteria struct {
	ProjectID string
	Priority  domain.Priority
	DueAfter  *time.Time
	DueBefore *time.Time
}

// Active returns how many filters are set.
func (c Criteria) Active() int {
	n := 0
	if c.ProjectID != "" {
		n++
	}
	if c.Priority != "" {
		n++
	}
	if c.DueAfter != nil {
		n++
	}
	if c.DueBefore != nil {
		n++
	}
	return n
}

// Match reports whether t passes every set filter. Date bounds are inclusive
// and a task without a due date never passes a date bound.
func (c Criteria) Match(t domain.Task) bool {
	if c.ProjectID != "" && t.ProjectID != c.ProjectID {
		return false
	}
	if c.Priority != "" && t.Priority != c.Priority {
		return false
	}
	if c.DueAfter == nil && c.DueBefore == nil {
		return true
	}
	if t.DueDate == nil {
		return false
	}
	if c.DueAfter != nil && t.DueDate.Before(*c.DueAfter) {
		return false
	}
	if c.DueBefore != nil && t.DueDate.After(*c.DueBefore) {
		return false
	}
	return true
}

// Apply returns the matching tasks in their original order.
func (c Criteria) Apply(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, 0, len(tasks))
	for _, t := range tasks {
		if c.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
