package storage

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

type stubBackend struct {
	fetchTasksFn    func(ctx context.Context, projectID string) ([]domain.Task, error)
	fetchProjectsFn func(ctx context.Context) ([]domain.Project, error)
	updateTaskFn    func(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error)
	deleteProjectFn func(ctx context.Context, id string) error
}

func (s *stubBackend) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	if s.fetchTasksFn == nil {
		return nil, errors.New("unexpected FetchTasks call")
	}
	return s.fetchTasksFn(ctx, projectID)
}

func (s *stubBackend) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	if s.fetchProjectsFn == nil {
		return nil, errors.New("unexpected FetchProjects call")
	}
	return s.fetchProjectsFn(ctx)
}

func (s *stubBackend) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	return nil, errors.New("unexpected FetchProfiles call")
}

func (s *stubBackend) UpsertProfile(ctx context.Context, p domain.Profile) error {
	return nil
}

func (s *stubBackend) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	return domain.Task{}, errors.New("unexpected CreateTask call")
}

func (s *stubBackend) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if s.updateTaskFn == nil {
		return domain.Task{}, errors.New("unexpected UpdateTask call")
	}
	return s.updateTaskFn(ctx, id, patch)
}

func (s *stubBackend) DeleteTask(ctx context.Context, id string) error {
	return errors.New("unexpected DeleteTask call")
}

func (s *stubBackend) CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error) {
	return domain.Project{}, errors.New("unexpected CreateProject call")
}

func (s *stubBackend) AddMember(ctx context.Context, projectID, userID string) error {
	return errors.New("unexpected AddMember call")
}

func (s *stubBackend) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	return domain.Project{}, errors.New("unexpected UpdateProject call")
}

func (s *stubBackend) DeleteProject(ctx context.Context, id string) error {
	if s.deleteProjectFn == nil {
		return errors.New("unexpected DeleteProject call")
	}
	return s.deleteProjectFn(ctx, id)
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheFetchTasksMissThenHit(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	expected := []domain.Task{{ID: "t1", Title: "Write code", ProjectID: "p1", Status: domain.StatusTodo, Priority: domain.PriorityLow, Tags: []string{"go"}, CreatedAt: created, UpdatedAt: created}}

	var calls int
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, projectID string) ([]domain.Task, error) {
			calls++
			if projectID != "p1" {
				t.Fatalf("unexpected project id: %s", projectID)
			}
			return append([]domain.Task(nil), expected...), nil
		},
	}, client, time.Minute)

	for i := 0; i < 2; i++ {
		tasks, err := cache.FetchTasks(ctx, "p1")
		if err != nil {
			t.Fatalf("fetch tasks: %v", err)
		}
		if !reflect.DeepEqual(tasks, expected) {
			t.Fatalf("unexpected tasks: %#v", tasks)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 call to backend, got %d", calls)
	}
	if ttl := mr.TTL(tasksCacheKey("p1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
}

func TestCacheFallsBackOnCorruptEntry(t *testing.T) {
	mr, client := newRedis(t)
	if err := mr.Set(projectsCacheKey, "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var calls int
	cache := NewCache(&stubBackend{
		fetchProjectsFn: func(ctx context.Context) ([]domain.Project, error) {
			calls++
			return []domain.Project{{ID: "p1"}}, nil
		},
	}, client, time.Minute)

	projects, err := cache.FetchProjects(context.Background())
	if err != nil {
		t.Fatalf("fetch projects: %v", err)
	}
	if calls != 1 || len(projects) != 1 {
		t.Fatalf("expected backend fallback, calls=%d projects=%v", calls, projects)
	}
}

func TestCacheTaskWriteEvictsEveryTaskCollection(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, projectID string) ([]domain.Task, error) {
			return []domain.Task{}, nil
		},
		fetchProjectsFn: func(ctx context.Context) ([]domain.Project, error) {
			return []domain.Project{}, nil
		},
		updateTaskFn: func(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
			return domain.Task{ID: id}, nil
		},
	}, client, time.Minute)

	for _, p := range []string{"", "p1", "p2"} {
		if _, err := cache.FetchTasks(ctx, p); err != nil {
			t.Fatalf("fetch tasks: %v", err)
		}
	}
	if _, err := cache.FetchProjects(ctx); err != nil {
		t.Fatalf("fetch projects: %v", err)
	}

	if _, err := cache.UpdateTask(ctx, "t1", domain.StatusPatch(domain.StatusDone)); err != nil {
		t.Fatalf("update: %v", err)
	}
	for _, p := range []string{"", "p1", "p2"} {
		if mr.Exists(tasksCacheKey(p)) {
			t.Fatalf("expected %s to be evicted", tasksCacheKey(p))
		}
	}
	if !mr.Exists(projectsCacheKey) {
		t.Fatal("task write should keep the projects entry")
	}
}

func TestCacheProjectDeleteEvictsProjectsAndTasks(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	cache := NewCache(&stubBackend{
		deleteProjectFn: func(ctx context.Context, id string) error { return nil },
	}, client, time.Minute)
	_ = mr.Set(projectsCacheKey, "[]")
	_ = mr.Set(tasksCacheKey("p1"), "[]")

	if err := cache.DeleteProject(ctx, "p1"); err != nil {
		t.Fatalf("delete project: %v", err)
	}
	if mr.Exists(projectsCacheKey) || mr.Exists(tasksCacheKey("p1")) {
		t.Fatal("expected projects and tasks to be evicted")
	}
}

func TestCacheProfileUpsertEvictsProfiles(t *testing.T) {
	mr, client := newRedis(t)
	cache := NewCache(&stubBackend{}, client, time.Minute)
	_ = mr.Set(profilesCacheKey, "[]")
	_ = mr.Set(projectsCacheKey, "[]")

	if err := cache.UpsertProfile(context.Background(), domain.Profile{UserID: "u1", Name: "Ada"}); err != nil {
		t.Fatalf("upsert profile: %v", err)
	}
	if mr.Exists(profilesCacheKey) {
		t.Fatal("expected profiles to be evicted")
	}
	if !mr.Exists(projectsCacheKey) {
		t.Fatal("profile write should keep the projects entry")
	}
}

func TestCacheWriteFailureKeepsEntries(t *testing.T) {
	mr, client := newRedis(t)
	boom := domain.Rejected("delete project", "not found", nil)
	cache := NewCache(&stubBackend{
		deleteProjectFn: func(ctx context.Context, id string) error { return boom },
	}, client, time.Minute)
	_ = mr.Set(projectsCacheKey, "[]")

	if err := cache.DeleteProject(context.Background(), "p1"); err != boom {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !mr.Exists(projectsCacheKey) {
		t.Fatal("failed write must not evict")
	}
}

func TestCacheWithoutRedisPassesThrough(t *testing.T) {
	var calls int
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, projectID string) ([]domain.Task, error) {
			calls++
			return nil, nil
		},
	}, nil, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.FetchTasks(context.Background(), ""); err != nil {
			t.Fatalf("fetch tasks: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("expected every call to reach the backend, got %d", calls)
	}
}

func TestCacheFetchDoesNotRefillAfterConcurrentWrite(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()

	var mu sync.Mutex
	status := domain.StatusTodo
	entered := make(chan struct{})
	release := make(chan struct{})
	var gated bool
	cache := NewCache(&stubBackend{
		fetchTasksFn: func(ctx context.Context, projectID string) ([]domain.Task, error) {
			mu.Lock()
			snapshot := []domain.Task{{ID: "t1", Status: status}}
			first := !gated
			gated = true
			mu.Unlock()
			if first {
				close(entered)
				<-release
			}
			return snapshot, nil
		},
		updateTaskFn: func(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
			mu.Lock()
			defer mu.Unlock()
			status = *patch.Status
			return domain.Task{ID: id, Status: status}, nil
		},
	}, client, time.Minute)

	done := make(chan []domain.Task, 1)
	go func() {
		tasks, err := cache.FetchTasks(ctx, "")
		if err != nil {
			t.Errorf("fetch tasks: %v", err)
		}
		done <- tasks
	}()
	<-entered
	if _, err := cache.UpdateTask(ctx, "t1", domain.StatusPatch(domain.StatusDone)); err != nil {
		t.Fatalf("update: %v", err)
	}
	close(release)
	if tasks := <-done; len(tasks) != 1 || tasks[0].Status != domain.StatusTodo {
		t.Fatalf("expected the in-flight read to return what it saw, got %+v", tasks)
	}
	if mr.Exists(tasksCacheKey("")) {
		t.Fatal("read that overlapped a write was cached")
	}

	tasks, err := cache.FetchTasks(ctx, "")
	if err != nil {
		t.Fatalf("fetch tasks: %v", err)
	}
	if tasks[0].Status != domain.StatusDone {
		t.Fatalf("expected the written status, got %s", tasks[0].Status)
	}
	if !mr.Exists(tasksCacheKey("")) {
		t.Fatal("expected a read without a concurrent write to be cached")
	}
}
