package taskstore

import (
	"context"
	"errors"
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/metrics"
)

const pushReloadTimeout = 30 * time.Second

// ApplyRemoteChange reacts to a push notification about the tasks table. The
// event payload is not trusted: a full reload of the current view is
// scheduled on the trailing edge, so a burst of events causes one reload.
func (s *Store) ApplyRemoteChange(ev domain.ChangeEvent) {
	metrics.PushEvents.Inc()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.log.WithField("event", ev.ID).Debug("remote change received, scheduling reload")
	if s.reload != nil {
		s.reload.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(s.debounce, func() {
		s.mu.Lock()
		if s.reload != t {
			s.mu.Unlock()
			return
		}
		s.reload = nil
		s.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), pushReloadTimeout)
		defer cancel()
		if _, err := s.load(ctx, "push"); err != nil && !errors.Is(err, ErrStaleView) && !errors.Is(err, ErrClosed) {
			s.log.WithError(err).Warn("reload after remote change failed")
		}
	})
	s.reload = t
}

// CreateProject persists a project; the gateway also records the owner as a
// member. The project is listed first once confirmed.
func (s *Store) CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Project{}, err
	}
	epoch, err := s.currentEpoch()
	if err != nil {
		return domain.Project{}, err
	}
	p, err := s.remote.CreateProject(ctx, draft)
	if err != nil {
		return domain.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return p, ErrStaleView
	}
	s.projects = append([]domain.Project{p}, s.projects...)
	s.notifyLocked()
	return p, nil
}

func (s *Store) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := patch.Validate(); err != nil {
		return domain.Project{}, err
	}
	epoch, err := s.currentEpoch()
	if err != nil {
		return domain.Project{}, err
	}
	p, err := s.remote.UpdateProject(ctx, id, patch)
	if err != nil {
		return domain.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return p, ErrStaleView
	}
	for i := range s.projects {
		if s.projects[i].ID == id {
			s.projects[i] = p
		}
	}
	s.notifyLocked()
	return p, nil
}

// DeleteProject deletes a project remotely. Its tasks are removed by the
// storage layer, so the store reloads instead of cascading locally.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.currentEpoch(); err != nil {
		return err
	}
	if err := s.remote.DeleteProject(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	reset := s.view == id
	if reset {
		s.resetLocked("")
	}
	s.mu.Unlock()
	if _, err := s.load(ctx, "cascade"); err != nil && !errors.Is(err, ErrStaleView) {
		s.log.WithError(err).WithField("project", id).Warn("reload after project delete failed")
	}
	return nil
}

func (s *Store) currentEpoch() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.epoch, nil
}
