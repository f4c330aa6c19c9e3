// Package gateway is the network-facing boundary of a board session. It binds
// a storage backend and a change channel to the signed-in user.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

// Backend is a persistent store. Implementations classify their own driver
// errors into the domain taxonomy.
type Backend interface {
	FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error)
	FetchProjects(ctx context.Context) ([]domain.Project, error)
	FetchProfiles(ctx context.Context) ([]domain.Profile, error)
	CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error)
	UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	DeleteTask(ctx context.Context, id string) error
	CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error)
	AddMember(ctx context.Context, projectID, userID string) error
	UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error)
	DeleteProject(ctx context.Context, id string) error
}

// Listener delivers change events until ctx is cancelled, reconnecting on
// its own when the underlying channel drops.
type Listener interface {
	Listen(ctx context.Context, onChange func(domain.ChangeEvent)) error
}

// Publisher announces persisted writes to other sessions and consumers.
type Publisher interface {
	Publish(ctx context.Context, ev domain.ChangeEvent) error
}

// Remote is the session-scoped gateway used by the task store.
type Remote struct {
	backend    Backend
	listener   Listener
	publishers []Publisher
	userID     string
	log        *log.Entry
	now        func() time.Time
}

// NewRemote binds backend to userID. An empty userID means there is no
// session and every call fails with domain.ErrAuthRequired.
func NewRemote(backend Backend, listener Listener, publishers []Publisher, userID string, logger *log.Entry) *Remote {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Remote{
		backend:    backend,
		listener:   listener,
		publishers: publishers,
		userID:     userID,
		log:        logger.WithField("user", userID),
		now:        time.Now,
	}
}

func (r *Remote) UserID() string { return r.userID }

func (r *Remote) authorize() error {
	if r.userID == "" {
		return domain.ErrAuthRequired
	}
	return nil
}

func (r *Remote) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if err := r.authorize(); err != nil {
		return nil, err
	}
	tasks, err := r.backend.FetchTasks(ctx, projectID)
	return tasks, domain.Transport("fetch tasks", err)
}

func (r *Remote) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	if err := r.authorize(); err != nil {
		return nil, err
	}
	projects, err := r.backend.FetchProjects(ctx)
	return projects, domain.Transport("fetch projects", err)
}

func (r *Remote) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	if err := r.authorize(); err != nil {
		return nil, err
	}
	profiles, err := r.backend.FetchProfiles(ctx)
	return profiles, domain.Transport("fetch profiles", err)
}

func (r *Remote) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	if err := r.authorize(); err != nil {
		return domain.Task{}, err
	}
	t, err := r.backend.CreateTask(ctx, draft)
	if err != nil {
		return domain.Task{}, domain.Transport("create task", err)
	}
	r.publish(ctx, domain.TableTasks, domain.OpInsert, t.ID)
	return t, nil
}

func (r *Remote) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := r.authorize(); err != nil {
		return domain.Task{}, err
	}
	t, err := r.backend.UpdateTask(ctx, id, patch)
	if err != nil {
		return domain.Task{}, domain.Transport("update task", err)
	}
	r.publish(ctx, domain.TableTasks, domain.OpUpdate, id)
	return t, nil
}

func (r *Remote) DeleteTask(ctx context.Context, id string) error {
	if err := r.authorize(); err != nil {
		return err
	}
	if err := r.backend.DeleteTask(ctx, id); err != nil {
		return domain.Transport("delete task", err)
	}
	r.publish(ctx, domain.TableTasks, domain.OpDelete, id)
	return nil
}

// CreateProject persists the project and records its owner as a member.
func (r *Remote) CreateProject(ctx context.Context, draft domain.ProjectDraft) (domain.Project, error) {
	if err := r.authorize(); err != nil {
		return domain.Project{}, err
	}
	p, err := r.backend.CreateProject(ctx, r.userID, draft)
	if err != nil {
		return domain.Project{}, domain.Transport("create project", err)
	}
	if err := r.backend.AddMember(ctx, p.ID, r.userID); err != nil {
		return p, domain.Transport("add project member", err)
	}
	r.publish(ctx, domain.TableProjects, domain.OpInsert, p.ID)
	r.publish(ctx, domain.TableMembers, domain.OpInsert, p.ID)
	return p, nil
}

func (r *Remote) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	if err := r.authorize(); err != nil {
		return domain.Project{}, err
	}
	p, err := r.backend.UpdateProject(ctx, id, patch)
	if err != nil {
		return domain.Project{}, domain.Transport("update project", err)
	}
	r.publish(ctx, domain.TableProjects, domain.OpUpdate, id)
	return p, nil
}

// DeleteProject removes the project; the backend cascades to its tasks, so a
// tasks change is announced as well.
func (r *Remote) DeleteProject(ctx context.Context, id string) error {
	if err := r.authorize(); err != nil {
		return err
	}
	if err := r.backend.DeleteProject(ctx, id); err != nil {
		return domain.Transport("delete project", err)
	}
	r.publish(ctx, domain.TableProjects, domain.OpDelete, id)
	r.publish(ctx, domain.TableTasks, domain.OpDelete, "")
	return nil
}

// Subscribe starts delivering tasks-table change events to onChange. The
// returned func stops the subscription and waits for the listener to exit.
func (r *Remote) Subscribe(onChange func(domain.ChangeEvent)) (func(), error) {
	if err := r.authorize(); err != nil {
		return nil, err
	}
	if r.listener == nil {
		return func() {}, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		err := r.listener.Listen(ctx, func(ev domain.ChangeEvent) {
			if ev.Table != domain.TableTasks {
				return
			}
			onChange(ev)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			r.log.WithError(err).Error("change subscription stopped")
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			wg.Wait()
		})
	}, nil
}

func (r *Remote) publish(ctx context.Context, table, op, entityID string) {
	if len(r.publishers) == 0 {
		return
	}
	ev := domain.NewChangeEvent(uuid.NewString(), table, op, entityID, r.userID, r.now())
	for _, p := range r.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			r.log.WithError(err).WithFields(log.Fields{"table": table, "op": op}).Warn("failed to publish change event")
		}
	}
}
