// Package board partitions tasks into status columns and resolves drag and
// drop gestures into status changes.
package board

import (
	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

var titles = map[domain.Status]string{
	domain.StatusTodo:       "To Do",
	domain.StatusInProgress: "In Progress",
	domain.StatusReview:     "Review",
	domain.StatusDone:       "Done",
}

// Column is the ordered list of tasks currently in one status.
type Column struct {
	Status domain.Status `json:"id"`
	Title  string        `json:"title"`
	Tasks  []domain.Task `json:"tasks"`
}

// Columns are always the four statuses in pipeline order.
type Columns []Column

// ColumnsFor partitions tasks by status. Within a column tasks keep their
// order in the source slice.
func ColumnsFor(tasks []domain.Task) Columns {
	cols := make(Columns, len(domain.Statuses))
	index := make(map[domain.Status]int, len(domain.Statuses))
	for i, s := range domain.Statuses {
		cols[i] = Column{Status: s, Title: titles[s], Tasks: []domain.Task{}}
		index[s] = i
	}
	for _, t := range tasks {
		i, ok := index[t.Status]
		if !ok {
			continue
		}
		cols[i].Tasks = append(cols[i].Tasks, t)
	}
	return cols
}

// Column returns the column for s.
func (c Columns) Column(s domain.Status) Column {
	for _, col := range c {
		if col.Status == s {
			return col
		}
	}
	return Column{Status: s, Title: titles[s]}
}

// IDs lists the task ids of a column in order.
func (c Column) IDs() []string {
	ids := make([]string, len(c.Tasks))
	for i, t := range c.Tasks {
		ids[i] = t.ID
	}
	return ids
}

// ResolveDrop turns a drop of draggedID onto targetID into a new status.
// targetID is either a column id (a status) or another task's id, in which
// case the dragged task takes that task's current status. The bool is false
// when the drop is inert: no target, an unknown target, or the status would
// not change. A dragged task missing from tasks yields *domain.StaleDragError.
func ResolveDrop(draggedID, targetID string, tasks []domain.Task) (domain.Status, bool, error) {
	dragged, ok := find(tasks, draggedID)
	if !ok {
		return "", false, &domain.StaleDragError{TaskID: draggedID}
	}
	if targetID == "" {
		return dragged.Status, false, nil
	}
	next := domain.Status(targetID)
	if !next.Valid() {
		target, ok := find(tasks, targetID)
		if !ok {
			return dragged.Status, false, nil
		}
		next = target.Status
	}
	if next == dragged.Status {
		return next, false, nil
	}
	return next, true, nil
}

func find(tasks []domain.Task, id string) (domain.Task, bool) {
	for _, t := range tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}
