// Package analytics derives productivity rollups from the task collection.
// Nothing here is cached: every call recomputes from the given snapshot.
package analytics

import (
	"math"
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

// WindowDays is the length of the trailing window used for velocity.
const WindowDays = 7

type VelocityPoint struct {
	Day       string `json:"date"`
	Date      string `json:"full_date"`
	Completed int    `json:"completed"`
	Created   int    `json:"created"`
}

type Productivity struct {
	UserID     string `json:"user_id"`
	Name       string `json:"name"`
	Completed  int    `json:"completed"`
	InProgress int    `json:"in_progress"`
	Total      int    `json:"total"`
}

type ProjectProgress struct {
	ProjectID  string `json:"project_id"`
	Name       string `json:"name"`
	Total      int    `json:"total"`
	Completed  int    `json:"completed"`
	Percentage int    `json:"percentage"`
}

type PriorityCount struct {
	Priority domain.Priority `json:"priority"`
	Count    int             `json:"count"`
}

type Metrics struct {
	TotalTasks        int     `json:"total_tasks"`
	CompletedThisWeek int     `json:"completed_this_week"`
	OverdueTasks      int     `json:"overdue_tasks"`
	AvgCompletionDays float64 `json:"avg_completion_days"`
}

// Report is the full analytics view.
type Report struct {
	Velocity             []VelocityPoint   `json:"velocity"`
	TeamProductivity     []Productivity    `json:"team_productivity"`
	ProjectProgress      []ProjectProgress `json:"project_progress"`
	PriorityDistribution []PriorityCount   `json:"priority_distribution"`
	Metrics              Metrics           `json:"metrics"`
}

// Compute builds a Report anchored at now, with calendar days evaluated in loc.
func Compute(tasks []domain.Task, projects []domain.Project, profiles []domain.Profile, now time.Time, loc *time.Location) Report {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	return Report{
		Velocity:             Velocity(tasks, now),
		TeamProductivity:     TeamProductivity(tasks, profiles),
		ProjectProgress:      Progress(tasks, projects),
		PriorityDistribution: PriorityDistribution(tasks),
		Metrics:              Headline(tasks, now),
	}
}

// Velocity returns one point per calendar day, oldest first, ending on the
// day of now. Day bounds are closed: [00:00, 23:59:59.999999999].
func Velocity(tasks []domain.Task, now time.Time) []VelocityPoint {
	out := make([]VelocityPoint, 0, WindowDays)
	for i := WindowDays - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
		end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)
		p := VelocityPoint{Day: start.Format("Mon"), Date: start.Format("2006-01-02")}
		for _, t := range tasks {
			if t.Status == domain.StatusDone && within(t.UpdatedAt, start, end) {
				p.Completed++
			}
			if within(t.CreatedAt, start, end) {
				p.Created++
			}
		}
		out = append(out, p)
	}
	return out
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

// TeamProductivity counts each profile's assigned tasks.
func TeamProductivity(tasks []domain.Task, profiles []domain.Profile) []Productivity {
	out := make([]Productivity, 0, len(profiles))
	for _, p := range profiles {
		row := Productivity{UserID: p.UserID, Name: p.Name}
		for _, t := range tasks {
			if t.AssignedTo != p.UserID {
				continue
			}
			row.Total++
			switch t.Status {
			case domain.StatusDone:
				row.Completed++
			case domain.StatusInProgress:
				row.InProgress++
			}
		}
		out = append(out, row)
	}
	return out
}

// Progress reports completion per project from counters recomputed over tasks.
func Progress(tasks []domain.Task, projects []domain.Project) []ProjectProgress {
	stats := domain.WithStats(projects, tasks)
	out := make([]ProjectProgress, 0, len(stats))
	for _, s := range stats {
		out = append(out, ProjectProgress{
			ProjectID:  s.ID,
			Name:       s.Name,
			Total:      s.TaskCount,
			Completed:  s.CompletedCount,
			Percentage: Percentage(s.CompletedCount, s.TaskCount),
		})
	}
	return out
}

// Percentage rounds half up and is 0 for an empty total.
func Percentage(completed, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*completed + total) / (2 * total)
}

// PriorityDistribution counts tasks per priority, high first.
func PriorityDistribution(tasks []domain.Task) []PriorityCount {
	out := make([]PriorityCount, len(domain.Priorities))
	for i, p := range domain.Priorities {
		out[i].Priority = p
		for _, t := range tasks {
			if t.Priority == p {
				out[i].Count++
			}
		}
	}
	return out
}

// Headline computes the summary metrics. Completed-this-week counts done
// tasks last updated within [now-7d, now]; overdue counts unfinished
// tasks due strictly before now.
func Headline(tasks []domain.Task, now time.Time) Metrics {
	weekAgo := now.AddDate(0, 0, -WindowDays)
	m := Metrics{TotalTasks: len(tasks)}
	var spent time.Duration
	var finished int
	for _, t := range tasks {
		if t.Status == domain.StatusDone {
			if within(t.UpdatedAt, weekAgo, now) {
				m.CompletedThisWeek++
			}
			if !t.CreatedAt.IsZero() && t.UpdatedAt.After(t.CreatedAt) {
				spent += t.UpdatedAt.Sub(t.CreatedAt)
				finished++
			}
		}
		if t.DueDate != nil && t.DueDate.Before(now) && t.Status != domain.StatusDone {
			m.OverdueTasks++
		}
	}
	if finished > 0 {
		days := spent.Hours() / 24 / float64(finished)
		m.AvgCompletionDays = math.Round(days*10) / 10
	}
	return m
}

// Source is a snapshot provider, normally the task store. AllTasks must not be
// narrowed to a project view.
type Source interface {
	AllTasks() []domain.Task
	Projects() []domain.Project
	Profiles() []domain.Profile
}

// Aggregator recomputes a Report from its source on every call.
type Aggregator struct {
	src Source
	loc *time.Location
	now func() time.Time
}

func NewAggregator(src Source, loc *time.Location) *Aggregator {
	return &Aggregator{src: src, loc: loc, now: time.Now}
}

func (a *Aggregator) Report() Report {
	return Compute(a.src.AllTasks(), a.src.Projects(), a.src.Profiles(), a.now(), a.loc)
}
