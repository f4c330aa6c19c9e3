// Package taskstore keeps the session's authoritative in-memory copy of tasks,
// projects and profiles and funnels every mutation through it.
package taskstore

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/metrics"
)

var (
	// ErrStaleView is returned when a result arrives after the view that
	// requested it was reset or closed. The result is not applied.
	ErrStaleView = errors.New("result discarded: view changed")
	// ErrClosed is returned by operations issued after Close.
	ErrClosed = errors.New("task store closed")
	// ErrUnknownTask is returned when a mutation targets a task that is not
	// in the local cache.
	ErrUnknownTask = errors.New("task not found")
)

const defaultDebounce = 250 * time.Millisecond

// Remote is the gateway the store reads from and persists through.
type Remote interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchProjects(ctx context.Context) ([]domain.Project, error)
	FetchProfiles(ctx context.Context) ([]domain.Profile, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error)
	UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error
	Subscribe(onChange func(domain.ChangeEvent)) (func(), error)
}

// Result is delivered once an asynchronous mutation settles.
type Result struct {
	Task domain.Task
	Err  error
}

type Option func(*Store)

// WithDebounce sets how long push notifications are coalesced before a reload.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.debounce = d
		}
	}
}

func WithLogger(l *log.Entry) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the source of provisional timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store is the single serialization point for the session's task state.
type Store struct {
	remote   Remote
	log      *log.Entry
	debounce time.Duration
	now      func() time.Time

	mu       sync.Mutex
	tasks    []domain.Task
	outside  []domain.Task
	projects []domain.Project
	profiles []domain.Profile
	loading  bool
	view     string
	epoch    uint64
	closed   bool

	loadSeq    uint64
	appliedSeq uint64

	gen     uint64
	pending map[string][]*mutation
	tails   map[string]chan struct{}

	reload      *time.Timer
	unsubscribe func()

	subs map[chan struct{}]struct{}
}

// New builds an empty store in the loading state.
func New(remote Remote, opts ...Option) *Store {
	s := &Store{
		remote:   remote,
		log:      log.WithField("component", "taskstore"),
		debounce: defaultDebounce,
		now:      time.Now,
		loading:  true,
		pending:  make(map[string][]*mutation),
		tails:    make(map[string]chan struct{}),
		subs:     make(map[chan struct{}]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open subscribes to remote change notifications and performs the first load
// of the given project view ("" for all projects).
func (s *Store) Open(ctx context.Context, projectID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.view = projectID
	subscribed := s.unsubscribe != nil
	s.mu.Unlock()

	if !subscribed {
		unsub, err := s.remote.Subscribe(s.ApplyRemoteChange)
		if err != nil {
			return err
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsub()
			return ErrClosed
		}
		s.unsubscribe = unsub
		s.mu.Unlock()
	}
	_, err := s.load(ctx, "open")
	return err
}

// Close unsubscribes from the push channel, stops any scheduled reload and
// causes every in-flight result to be discarded.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.epoch++
	if s.reload != nil {
		s.reload.Stop()
		s.reload = nil
	}
	unsub := s.unsubscribe
	s.unsubscribe = nil
	for ch := range s.subs {
		close(ch)
	}
	s.subs = map[chan struct{}]struct{}{}
	s.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Reset switches the store to another project view. The cache and pending
// mutation records are dropped and results started under the old view are
// discarded when they arrive.
func (s *Store) Reset(projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.resetLocked(projectID)
}

func (s *Store) resetLocked(projectID string) {
	s.epoch++
	s.view = projectID
	s.outside = cloneTasks(s.allLocked())
	s.tasks = nil
	s.loading = true
	s.pending = make(map[string][]*mutation)
	s.notifyLocked()
}

// Load fetches the task collection for projectID together with projects and
// profiles and replaces the cache wholesale. On any failure the cache is left
// untouched. Passing a project other than the current view switches views.
func (s *Store) Load(ctx context.Context, projectID string) ([]domain.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	if projectID != s.view {
		s.resetLocked(projectID)
	}
	s.mu.Unlock()
	return s.load(ctx, "explicit")
}

func (s *Store) load(ctx context.Context, reason string) ([]domain.Task, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	epoch := s.epoch
	view := s.view
	s.loadSeq++
	seq := s.loadSeq
	s.loading = true
	s.mu.Unlock()

	metrics.Reloads.WithLabelValues(reason).Inc()
	tasks, outside, projects, profiles, err := s.fetch(ctx, view)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return nil, ErrStaleView
	}
	if seq == s.loadSeq {
		s.loading = false
	}
	if err != nil {
		s.log.WithError(err).WithField("reason", reason).Warn("task reload failed, keeping cached collection")
		s.notifyLocked()
		return nil, err
	}
	if seq < s.appliedSeq {
		return cloneTasks(s.tasks), nil
	}
	s.appliedSeq = seq
	s.tasks = s.rebaseLocked(tasks)
	s.outside = outside
	s.projects = projects
	s.profiles = profiles
	s.notifyLocked()
	s.log.WithFields(log.Fields{"reason": reason, "tasks": len(s.tasks)}).Debug("task collection reloaded")
	return cloneTasks(s.tasks), nil
}

// fetch reads the view's tasks and, for a project view, the tasks of every
// other project so rollups still see the whole collection.
func (s *Store) fetch(ctx context.Context, view string) (tasks, outside []domain.Task, projects []domain.Project, profiles []domain.Profile, err error) {
	if tasks, err = s.remote.FetchTasks(ctx, view); err != nil {
		return
	}
	if view != "" {
		var all []domain.Task
		if all, err = s.remote.FetchTasks(ctx, ""); err != nil {
			return
		}
		inView := make(map[string]struct{}, len(tasks))
		for _, t := range tasks {
			inView[t.ID] = struct{}{}
		}
		for _, t := range all {
			if _, ok := inView[t.ID]; !ok {
				outside = append(outside, t)
			}
		}
	}
	if projects, err = s.remote.FetchProjects(ctx); err != nil {
		return
	}
	profiles, err = s.remote.FetchProfiles(ctx)
	return
}

// Create persists a new task. Nothing is shown until the remote store has
// assigned an id; the task is then inserted at the head of the cache.
func (s *Store) Create(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	draft, err := draft.Normalize()
	if err != nil {
		return domain.Task{}, err
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.Task{}, ErrClosed
	}
	epoch := s.epoch
	s.mu.Unlock()

	task, err := s.remote.CreateTask(ctx, draft)
	if err != nil {
		metrics.Mutations.WithLabelValues(kindCreate, metrics.OutcomeFailed).Inc()
		return domain.Task{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		metrics.Mutations.WithLabelValues(kindCreate, metrics.OutcomeStale).Inc()
		return task, ErrStaleView
	}
	metrics.Mutations.WithLabelValues(kindCreate, metrics.OutcomeConfirmed).Inc()
	if s.view != "" && task.ProjectID != s.view {
		s.outside = append([]domain.Task{task.Clone()}, s.outside...)
		s.notifyLocked()
		return task, nil
	}
	if i := s.indexLocked(task.ID); i >= 0 {
		s.tasks[i] = task.Clone()
	} else {
		s.tasks = append([]domain.Task{task.Clone()}, s.tasks...)
	}
	s.notifyLocked()
	return task, nil
}

// Tasks returns a copy of the cached collection in store order.
func (s *Store) Tasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.tasks)
}

// AllTasks returns every known task regardless of the current view: the view's
// tasks, including optimistic changes, followed by those of other projects.
func (s *Store) AllTasks() []domain.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneTasks(s.allLocked())
}

func (s *Store) allLocked() []domain.Task {
	if len(s.outside) == 0 {
		return s.tasks
	}
	out := make([]domain.Task, 0, len(s.tasks)+len(s.outside))
	out = append(out, s.tasks...)
	for _, t := range s.outside {
		if s.indexLocked(t.ID) < 0 {
			out = append(out, t)
		}
	}
	return out
}

func (s *Store) Task(id string) (domain.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.tasks[i].Clone(), true
	}
	return domain.Task{}, false
}

func (s *Store) Projects() []domain.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Project(nil), s.projects...)
}

// ProjectsWithStats decorates projects with counters recomputed from every
// known task, not only the current view.
func (s *Store) ProjectsWithStats() []domain.ProjectStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.WithStats(s.projects, s.allLocked())
}

func (s *Store) Profiles() []domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Profile(nil), s.profiles...)
}

func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// View returns the project id the store is scoped to ("" for all).
func (s *Store) View() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Subscribe returns a channel that receives a signal whenever the cached
// state changes. Bursts coalesce into a single pending signal. The channel is
// closed by the returned cancel func or by Close.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if _, ok := s.subs[ch]; ok {
				delete(s.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers reports how many Subscribe channels are still open.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

func (s *Store) notifyLocked() {
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tasks {
		if s.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

func cloneTasks(tasks []domain.Task) []domain.Task {
	out := make([]domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}
