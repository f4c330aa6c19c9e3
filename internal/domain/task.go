package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Status is the board pipeline stage of a task.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// Statuses lists every status in board column order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusReview, StatusDone}

func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusReview, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", raw)}
	}
	return s, nil
}

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Priorities lists priorities from most to least urgent.
var Priorities = []Priority{PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// ParsePriority converts raw input into a Priority.
func ParsePriority(raw string) (Priority, error) {
	p := Priority(strings.TrimSpace(raw))
	if !p.Valid() {
		return "", &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", raw)}
	}
	return p, nil
}

// Task is a single unit of work on the board.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ProjectID   string     `json:"project_id"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so cached tasks never share slices or pointers.
func (t Task) Clone() Task {
	out := t
	if t.DueDate != nil {
		d := *t.DueDate
		out.DueDate = &d
	}
	if t.Tags != nil {
		out.Tags = slices.Clone(t.Tags)
	}
	return out
}

// TaskDraft carries the fields accepted when creating a task. The remote
// store assigns the identifier and timestamps.
type TaskDraft struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	ProjectID   string     `json:"project_id"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
}

// Normalize trims input, fills defaults and validates the draft.
func (d TaskDraft) Normalize() (TaskDraft, error) {
	d.Title = strings.TrimSpace(d.Title)
	d.ProjectID = strings.TrimSpace(d.ProjectID)
	if d.Title == "" {
		return d, &ValidationError{Field: "title", Reason: "title is required"}
	}
	if d.ProjectID == "" {
		return d, &ValidationError{Field: "project_id", Reason: "project is required"}
	}
	if d.Priority == "" {
		d.Priority = PriorityMedium
	}
	if !d.Priority.Valid() {
		return d, &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", d.Priority)}
	}
	if d.Status == "" {
		d.Status = StatusTodo
	}
	if !d.Status.Valid() {
		return d, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", d.Status)}
	}
	if d.Tags == nil {
		d.Tags = []string{}
	}
	return d, nil
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title        *string    `json:"title,omitempty"`
	Description  *string    `json:"description,omitempty"`
	AssignedTo   *string    `json:"assigned_to,omitempty"`
	Priority     *Priority  `json:"priority,omitempty"`
	Status       *Status    `json:"status,omitempty"`
	DueDate      *time.Time `json:"due_date,omitempty"`
	ClearDueDate bool       `json:"clear_due_date,omitempty"`
	Tags         *[]string  `json:"tags,omitempty"`
}

// StatusPatch is the patch issued by a board drop.
func StatusPatch(s Status) TaskPatch {
	return TaskPatch{Status: &s}
}

func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.AssignedTo == nil && p.Priority == nil &&
		p.Status == nil && p.DueDate == nil && !p.ClearDueDate && p.Tags == nil
}

func (p TaskPatch) Validate() error {
	if p.Empty() {
		return &ValidationError{Field: "patch", Reason: "no fields to update"}
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	if p.Priority != nil && !p.Priority.Valid() {
		return &ValidationError{Field: "priority", Reason: fmt.Sprintf("unknown priority %q", *p.Priority)}
	}
	if p.Status != nil && !p.Status.Valid() {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", *p.Status)}
	}
	if p.ClearDueDate && p.DueDate != nil {
		return &ValidationError{Field: "due_date", Reason: "cannot set and clear the due date together"}
	}
	return nil
}

// Apply merges the patch into t and returns the result; t is not modified.
func (p TaskPatch) Apply(t Task) Task {
	out := t.Clone()
	if p.Title != nil {
		out.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		out.Description = *p.Description
	}
	if p.AssignedTo != nil {
		out.AssignedTo = *p.AssignedTo
	}
	if p.Priority != nil {
		out.Priority = *p.Priority
	}
	if p.Status != nil {
		out.Status = *p.Status
	}
	if p.DueDate != nil {
		d := *p.DueDate
		out.DueDate = &d
	}
	if p.ClearDueDate {
		out.DueDate = nil
	}
	if p.Tags != nil {
		out.Tags = slices.Clone(*p.Tags)
	}
	return out
}
