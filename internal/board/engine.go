package board

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/filter"
	"github.com/thribhuvan003/task-flow-main/internal/taskstore"
)

// Store is the part of the task store the board reads and mutates.
type Store interface {
	Tasks() []domain.Task
	Task(id string) (domain.Task, bool)
	UpdateAsync(ctx context.Context, id string, patch domain.TaskPatch) <-chan taskstore.Result
}

// Drop describes what a finished drag did.
type Drop struct {
	TaskID string        `json:"task_id"`
	From   domain.Status `json:"from,omitempty"`
	To     domain.Status `json:"to,omitempty"`
	Moved  bool          `json:"moved"`
}

// Engine holds the drag state of one board. It keeps no copy of the tasks.
type Engine struct {
	store Store
	log   *log.Entry

	mu       sync.Mutex
	dragging *domain.Task
}

func NewEngine(store Store, logger *log.Entry) *Engine {
	if logger == nil {
		logger = log.WithField("component", "board")
	}
	return &Engine{store: store, log: logger}
}

// Columns partitions the store's tasks that pass c.
func (e *Engine) Columns(c filter.Criteria) Columns {
	return ColumnsFor(c.Apply(e.store.Tasks()))
}

// DragStart captures the dragged task for overlay rendering. A task that is
// no longer in the store leaves the engine idle.
func (e *Engine) DragStart(id string) (domain.Task, bool) {
	t, ok := e.store.Task(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !ok {
		e.dragging = nil
		e.log.WithField("task", id).Debug("drag started on unknown task")
		return domain.Task{}, false
	}
	e.dragging = &t
	return t, true
}

// Dragging returns the captured task while a drag is in progress.
func (e *Engine) Dragging() (domain.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dragging == nil {
		return domain.Task{}, false
	}
	return *e.dragging, true
}

func (e *Engine) DragCancel() {
	e.mu.Lock()
	e.dragging = nil
	e.mu.Unlock()
}

// DragEnd returns the engine to idle and resolves the drop. When the status
// changes the store applies it optimistically; the returned channel yields
// the remote outcome (nil or a *domain.SyncError) and is then closed. Inert
// and stale drops return an already closed channel.
func (e *Engine) DragEnd(ctx context.Context, draggedID, targetID string) (Drop, <-chan error) {
	e.DragCancel()

	done := make(chan error, 1)
	drop := Drop{TaskID: draggedID}
	next, move, err := ResolveDrop(draggedID, targetID, e.store.Tasks())
	if err != nil {
		var stale *domain.StaleDragError
		if errors.As(err, &stale) {
			e.log.WithField("task", draggedID).Info("ignoring drop of a task that no longer exists")
		}
		close(done)
		return drop, done
	}
	if t, ok := e.store.Task(draggedID); ok {
		drop.From = t.Status
	}
	drop.To = next
	if !move {
		close(done)
		return drop, done
	}
	drop.Moved = true

	res := e.store.UpdateAsync(ctx, draggedID, domain.StatusPatch(next))
	go func() {
		defer close(done)
		r := <-res
		if r.Err != nil {
			e.log.WithError(r.Err).WithField("task", draggedID).Warn("status change from drop failed")
			done <- r.Err
		}
	}()
	return drop, done
}
