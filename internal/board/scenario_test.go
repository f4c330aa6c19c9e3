package board

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/filter"
	"github.com/thribhuvan003/task-flow-main/internal/taskstore"
)

type memRemote struct {
	mu       sync.Mutex
	tasks    []domain.Task
	projects []domain.Project
}

func (m *memRemote) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Task(nil), m.tasks...), nil
}

func (m *memRemote) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	return m.projects, nil
}

func (m *memRemote) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	return nil, nil
}

func (m *memRemote) CreateTask(ctx context.Context, d domain.TaskDraft) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	t := domain.Task{ID: "t-1", Title: d.Title, ProjectID: d.ProjectID, Priority: d.Priority, Status: d.Status, Tags: d.Tags, CreatedAt: now, UpdatedAt: now}
	m.tasks = append([]domain.Task{t}, m.tasks...)
	return t, nil
}

func (m *memRemote) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks[i] = patch.Apply(m.tasks[i])
			return m.tasks[i], nil
		}
	}
	return domain.Task{}, domain.Rejected("update task", "not found", nil)
}

func (m *memRemote) DeleteTask(ctx context.Context, id string) error { return nil }

func (m *memRemote) CreateProject(ctx context.Context, d domain.ProjectDraft) (domain.Project, error) {
	return domain.Project{}, nil
}

func (m *memRemote) UpdateProject(ctx context.Context, id string, p domain.ProjectPatch) (domain.Project, error) {
	return domain.Project{}, nil
}

func (m *memRemote) DeleteProject(ctx context.Context, id string) error { return nil }

func (m *memRemote) Subscribe(func(domain.ChangeEvent)) (func(), error) { return func() {}, nil }

func TestCreateThenDropIntoDone(t *testing.T) {
	remote := &memRemote{projects: []domain.Project{{ID: "P", Name: "Docs"}}}
	store := taskstore.New(remote)
	if err := store.Open(context.Background(), ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(store.Close)
	e := NewEngine(store, nil)

	task, err := store.Create(context.Background(), domain.TaskDraft{Title: "Write spec", ProjectID: "P", Priority: domain.PriorityHigh})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if task.Status != domain.StatusTodo {
		t.Fatalf("expected todo, got %s", task.Status)
	}
	if ids := e.Columns(filter.Criteria{}).Column(domain.StatusTodo).IDs(); len(ids) != 1 {
		t.Fatalf("expected the new task in todo, got %v", ids)
	}

	e.DragStart(task.ID)
	if _, errc := e.DragEnd(context.Background(), task.ID, string(domain.StatusDone)); <-errc != nil {
		t.Fatal("drop failed")
	}
	cols := e.Columns(filter.Criteria{})
	if len(cols.Column(domain.StatusTodo).Tasks) != 0 || len(cols.Column(domain.StatusDone).Tasks) != 1 {
		t.Fatalf("expected the task to move from todo to done, got %+v", cols)
	}
	if got := store.ProjectsWithStats()[0].CompletedCount; got != 1 {
		t.Fatalf("expected completed count 1, got %d", got)
	}
}
