package taskstore

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/metrics"
)

const (
	kindCreate = "create"
	kindUpdate = "update"
	kindRemove = "remove"
)

// mutation tags an optimistic change with the generation that produced it.
// previous is the state the change was applied on; supersededBy is the
// generation of the next mutation of the same task, zero while none exists.
type mutation struct {
	gen          uint64
	kind         string
	id           string
	patch        domain.TaskPatch
	previous     *domain.Task
	index        int
	supersededBy uint64
}

// Update applies patch optimistically and waits for the remote outcome.
func (s *Store) Update(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	r := <-s.UpdateAsync(ctx, id, patch)
	return r.Task, r.Err
}

// UpdateAsync applies patch to the cached task immediately and persists it in
// the background, queued behind any in-flight write to the same task. The
// returned channel yields exactly one Result: the server copy on success, or
// a *domain.SyncError after the optimistic change was rolled back.
func (s *Store) UpdateAsync(ctx context.Context, id string, patch domain.TaskPatch) <-chan Result {
	out := make(chan Result, 1)
	if err := patch.Validate(); err != nil {
		out <- Result{Err: err}
		return out
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		out <- Result{Err: ErrClosed}
		return out
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		out <- Result{Err: ErrUnknownTask}
		return out
	}
	prev := s.tasks[i].Clone()
	m := s.recordLocked(kindUpdate, id, &prev, i)
	m.patch = patch
	next := patch.Apply(prev)
	next.UpdatedAt = s.now()
	s.tasks[i] = next
	s.notifyLocked()
	wait, done, epoch := s.enqueueLocked(id)
	s.mu.Unlock()

	go func() {
		defer close(done)
		if wait != nil {
			<-wait
		}
		var (
			server domain.Task
			err    = ctx.Err()
		)
		if err == nil {
			server, err = s.remote.UpdateTask(ctx, id, patch)
		} else {
			err = domain.Transport("update", err)
		}
		out <- s.settle(m, epoch, &server, err)
	}()
	return out
}

// Remove drops the task from the cache immediately and deletes it remotely.
// On failure the task is restored at its previous position and a
// *domain.SyncError is returned.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return ErrUnknownTask
	}
	prev := s.tasks[i].Clone()
	m := s.recordLocked(kindRemove, id, &prev, i)
	s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	s.notifyLocked()
	wait, done, epoch := s.enqueueLocked(id)
	s.mu.Unlock()

	defer close(done)
	if wait != nil {
		<-wait
	}
	err := ctx.Err()
	if err == nil {
		err = s.remote.DeleteTask(ctx, id)
	} else {
		err = domain.Transport("delete", err)
	}
	return s.settle(m, epoch, nil, err).Err
}

// recordLocked registers a new mutation for id and marks the previous one,
// if any, as superseded by it.
func (s *Store) recordLocked(kind, id string, prev *domain.Task, index int) *mutation {
	s.gen++
	m := &mutation{gen: s.gen, kind: kind, id: id, previous: prev, index: index}
	if recs := s.pending[id]; len(recs) > 0 {
		recs[len(recs)-1].supersededBy = m.gen
	}
	s.pending[id] = append(s.pending[id], m)
	return m
}

// enqueueLocked appends a ticket to the per-task write chain. The caller must
// wait on the returned wait channel (nil when the chain was idle) before
// talking to the remote store and close done once it has settled.
func (s *Store) enqueueLocked(id string) (wait <-chan struct{}, done chan struct{}, epoch uint64) {
	done = make(chan struct{})
	if tail, ok := s.tails[id]; ok {
		wait = tail
	}
	s.tails[id] = done
	go func() {
		<-done
		s.mu.Lock()
		if s.tails[id] == done {
			delete(s.tails, id)
		}
		s.mu.Unlock()
	}()
	return wait, done, s.epoch
}

func (s *Store) settle(m *mutation, epoch uint64, server *domain.Task, err error) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := s.log.WithFields(log.Fields{"task": m.id, "op": m.kind, "generation": m.gen})
	if s.epoch != epoch {
		metrics.Mutations.WithLabelValues(m.kind, metrics.OutcomeStale).Inc()
		if err != nil {
			logger.WithError(err).Debug("discarding failed mutation for a stale view")
		}
		if err == nil && server != nil {
			return Result{Task: *server, Err: ErrStaleView}
		}
		return Result{Err: ErrStaleView}
	}

	recs := s.pending[m.id]
	pos := -1
	for i, r := range recs {
		if r == m {
			pos = i
			break
		}
	}
	if pos < 0 {
		logger.Warn("settling unknown mutation")
		return Result{Err: ErrStaleView}
	}
	recs = append(recs[:pos:pos], recs[pos+1:]...)
	if len(recs) == 0 {
		delete(s.pending, m.id)
	} else {
		s.pending[m.id] = recs
	}

	if err == nil {
		metrics.Mutations.WithLabelValues(m.kind, metrics.OutcomeConfirmed).Inc()
		var base *domain.Task
		if m.kind == kindUpdate && server != nil {
			c := server.Clone()
			base = &c
		}
		s.putLocked(m.id, s.replay(base, recs), m.index, false)
		s.notifyLocked()
		if base != nil {
			return Result{Task: base.Clone()}
		}
		return Result{}
	}

	syncErr := &domain.SyncError{Op: m.kind, TaskID: m.id, Err: err}
	if m.supersededBy != 0 && len(recs) > 0 {
		// A newer mutation owns the visible state; it inherits our base so
		// its own rollback lands on the last confirmed value.
		recs[0].previous = clonePtr(m.previous)
		metrics.Mutations.WithLabelValues(m.kind, metrics.OutcomeSuperseded).Inc()
		logger.WithError(err).Info("superseded mutation failed, newer change kept")
		return Result{Err: syncErr}
	}

	metrics.Mutations.WithLabelValues(m.kind, metrics.OutcomeRolledBack).Inc()
	metrics.Rollbacks.WithLabelValues(m.kind).Inc()
	s.putLocked(m.id, clonePtr(m.previous), m.index, m.kind == kindRemove)
	s.notifyLocked()
	logger.WithError(err).Warn("remote write failed, optimistic change rolled back")
	return Result{Err: syncErr}
}

// replay re-applies pending mutations on top of base, refreshing each
// record's previous snapshot, and returns the resulting visible state.
func (s *Store) replay(base *domain.Task, recs []*mutation) *domain.Task {
	for _, r := range recs {
		r.previous = clonePtr(base)
		if base == nil {
			continue
		}
		switch r.kind {
		case kindUpdate:
			next := r.patch.Apply(*base)
			next.UpdatedAt = s.now()
			base = &next
		case kindRemove:
			base = nil
		}
	}
	return base
}

// putLocked sets the cached state of id. A nil task removes it. A task that
// is absent from the cache is only inserted (at hint) when reinsert is set,
// so a task dropped by a reload is not resurrected.
func (s *Store) putLocked(id string, t *domain.Task, hint int, reinsert bool) {
	i := s.indexLocked(id)
	switch {
	case t == nil && i >= 0:
		s.tasks = append(s.tasks[:i:i], s.tasks[i+1:]...)
	case t != nil && i >= 0:
		s.tasks[i] = *t
	case t != nil && reinsert:
		if hint < 0 || hint > len(s.tasks) {
			hint = len(s.tasks)
		}
		s.tasks = append(s.tasks[:hint:hint], append([]domain.Task{*t}, s.tasks[hint:]...)...)
	}
}

// rebaseLocked re-applies in-flight mutations to a freshly fetched collection.
func (s *Store) rebaseLocked(fresh []domain.Task) []domain.Task {
	if len(s.pending) == 0 {
		return fresh
	}
	out := make([]domain.Task, 0, len(fresh))
	for _, t := range fresh {
		recs, ok := s.pending[t.ID]
		if !ok {
			out = append(out, t)
			continue
		}
		base := t.Clone()
		if res := s.replay(&base, recs); res != nil {
			out = append(out, *res)
		}
	}
	for id, recs := range s.pending {
		if !containsTask(fresh, id) {
			s.replay(nil, recs)
		}
	}
	return out
}

func containsTask(tasks []domain.Task, id string) bool {
	for i := range tasks {
		if tasks[i].ID == id {
			return true
		}
	}
	return false
}

func clonePtr(t *domain.Task) *domain.Task {
	if t == nil {
		return nil
	}
	c := t.Clone()
	return &c
}
