package taskstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

var serverTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

type fakeRemote struct {
	mu         sync.Mutex
	tasks      []domain.Task
	projects   []domain.Project
	profiles   []domain.Profile
	fetchErr   error
	fetchCalls int
	fetchHook  func(call int)
	updateFn   func(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	deleteFn   func(ctx context.Context, id string) error
	onChange   func(domain.ChangeEvent)
	unsubbed   bool
	nextID     int
}

func (f *fakeRemote) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	f.mu.Lock()
	f.fetchCalls++
	call := f.fetchCalls
	hook := f.fetchHook
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []domain.Task
	for _, t := range f.tasks {
		if projectID == "" || t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (f *fakeRemote) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Project(nil), f.projects...), nil
}

func (f *fakeRemote) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Profile(nil), f.profiles...), nil
}

func (f *fakeRemote) CreateTask(ctx context.Context, d domain.TaskDraft) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := domain.Task{
		ID:          fmt.Sprintf("new-%d", f.nextID),
		Title:       d.Title,
		Description: d.Description,
		ProjectID:   d.ProjectID,
		Priority:    d.Priority,
		Status:      d.Status,
		DueDate:     d.DueDate,
		Tags:        d.Tags,
		CreatedAt:   serverTime,
		UpdatedAt:   serverTime,
	}
	f.tasks = append([]domain.Task{t}, f.tasks...)
	return t.Clone(), nil
}

func (f *fakeRemote) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, id, patch)
	}
	return f.applyUpdate(id, patch)
}

func (f *fakeRemote) applyUpdate(id string, patch domain.TaskPatch) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i] = patch.Apply(f.tasks[i])
			f.tasks[i].UpdatedAt = serverTime
			return f.tasks[i].Clone(), nil
		}
	}
	return domain.Task{}, domain.Rejected("update", "task not found", nil)
}

func (f *fakeRemote) DeleteTask(ctx context.Context, id string) error {
	if f.deleteFn != nil {
		return f.deleteFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return domain.Rejected("delete", "task not found", nil)
}

func (f *fakeRemote) CreateProject(ctx context.Context, d domain.ProjectDraft) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := domain.Project{ID: "proj-" + d.Name, Name: d.Name, Description: d.Description, CreatedAt: serverTime, UpdatedAt: serverTime}
	f.projects = append([]domain.Project{p}, f.projects...)
	return p, nil
}

func (f *fakeRemote) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.projects {
		if f.projects[i].ID == id {
			f.projects[i] = patch.Apply(f.projects[i])
			return f.projects[i], nil
		}
	}
	return domain.Project{}, domain.Rejected("update project", "project not found", nil)
}

func (f *fakeRemote) DeleteProject(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []domain.Task
	for _, t := range f.tasks {
		if t.ProjectID != id {
			kept = append(kept, t)
		}
	}
	f.tasks = kept
	for i := range f.projects {
		if f.projects[i].ID == id {
			f.projects = append(f.projects[:i], f.projects[i+1:]...)
			return nil
		}
	}
	return domain.Rejected("delete project", "project not found", nil)
}

func (f *fakeRemote) Subscribe(onChange func(domain.ChangeEvent)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onChange = onChange
	return func() {
		f.mu.Lock()
		f.unsubbed = true
		f.onChange = nil
		f.mu.Unlock()
	}, nil
}

func (f *fakeRemote) push(ev domain.ChangeEvent) {
	f.mu.Lock()
	fn := f.onChange
	f.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (f *fakeRemote) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCalls
}

func (f *fakeRemote) setTaskStatus(id string, s domain.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Status = s
		}
	}
}

var errNetwork = errors.New("connection reset")

func seedTasks() []domain.Task {
	return []domain.Task{
		{ID: "t1", Title: "First", ProjectID: "p1", Priority: domain.PriorityHigh, Status: domain.StatusTodo, Tags: []string{}},
		{ID: "t2", Title: "Second", ProjectID: "p1", Priority: domain.PriorityLow, Status: domain.StatusInProgress, Tags: []string{}},
		{ID: "t3", Title: "Third", ProjectID: "p2", Priority: domain.PriorityMedium, Status: domain.StatusDone, Tags: []string{}},
	}
}

func openStore(t *testing.T, remote *fakeRemote, opts ...Option) *Store {
	t.Helper()
	s := New(remote, append([]Option{WithClock(func() time.Time { return serverTime.Add(time.Hour) })}, opts...)...)
	if err := s.Open(context.Background(), ""); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func statusOf(t *testing.T, s *Store, id string) domain.Status {
	t.Helper()
	task, ok := s.Task(id)
	if !ok {
		t.Fatalf("task %s missing from cache", id)
	}
	return task.Status
}
