package domain

import (
	"strings"
	"time"
)

// Project groups tasks under a single owner.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectStats decorates a project with counters derived from the task
// collection. The counters are never stored.
type ProjectStats struct {
	Project
	TaskCount      int `json:"task_count"`
	CompletedCount int `json:"completed_count"`
}

// WithStats recomputes project counters from tasks, keeping project order.
func WithStats(projects []Project, tasks []Task) []ProjectStats {
	total := make(map[string]int, len(projects))
	done := make(map[string]int, len(projects))
	for _, t := range tasks {
		total[t.ProjectID]++
		if t.Status == StatusDone {
			done[t.ProjectID]++
		}
	}
	out := make([]ProjectStats, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectStats{Project: p, TaskCount: total[p.ID], CompletedCount: done[p.ID]})
	}
	return out
}

type ProjectDraft struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (d ProjectDraft) Normalize() (ProjectDraft, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return d, &ValidationError{Field: "name", Reason: "name is required"}
	}
	return d, nil
}

type ProjectPatch struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (p ProjectPatch) Validate() error {
	if p.Name == nil && p.Description == nil {
		return &ValidationError{Field: "patch", Reason: "no fields to update"}
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return &ValidationError{Field: "name", Reason: "name is required"}
	}
	return nil
}

func (p ProjectPatch) Apply(pr Project) Project {
	if p.Name != nil {
		pr.Name = strings.TrimSpace(*p.Name)
	}
	if p.Description != nil {
		pr.Description = *p.Description
	}
	return pr
}

// Profile is the display identity of a user that tasks can be assigned to.
type Profile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
}
