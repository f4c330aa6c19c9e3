package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/thribhuvan003/task-flow-main/internal/assistant"
	"github.com/thribhuvan003/task-flow-main/internal/domain"
)

// mockAuth treats the bearer token as the user id.
type mockAuth struct{}

func (mockAuth) UserIDFromAuthHeader(h string) (string, error) {
	user := strings.TrimPrefix(h, "Bearer ")
	if user == "" || user == h {
		return "", errMissingAuthorization
	}
	return user, nil
}

// memBackend is an in-memory gateway.Backend.
type memBackend struct {
	mu       sync.Mutex
	tasks    []domain.Task
	projects []domain.Project
	profiles []domain.Profile
	seq      int
	now      time.Time

	updateErr error
}

func newMemBackend() *memBackend {
	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	due := now.Add(48 * time.Hour)
	return &memBackend{
		now:      now,
		profiles: []domain.Profile{{UserID: "user-1", Name: "Ada"}},
		projects: []domain.Project{
			{ID: "p1", Name: "Launch", OwnerID: "user-1", CreatedAt: now, UpdatedAt: now},
		},
		tasks: []domain.Task{
			{ID: "t1", Title: "Design", ProjectID: "p1", Priority: domain.PriorityHigh, Status: domain.StatusTodo, DueDate: &due, Tags: []string{}, CreatedAt: now, UpdatedAt: now},
			{ID: "t2", Title: "Build", ProjectID: "p1", Priority: domain.PriorityMedium, Status: domain.StatusInProgress, Tags: []string{}, CreatedAt: now, UpdatedAt: now},
			{ID: "t3", Title: "Ship", ProjectID: "p2", Priority: domain.PriorityLow, Status: domain.StatusDone, Tags: []string{}, CreatedAt: now, UpdatedAt: now},
		},
	}
}

func (b *memBackend) FetchTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []domain.Task{}
	for _, t := range b.tasks {
		if projectID == "" || t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	return out, nil
}

func (b *memBackend) FetchProjects(ctx context.Context) ([]domain.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Project(nil), b.projects...), nil
}

func (b *memBackend) FetchProfiles(ctx context.Context) ([]domain.Profile, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Profile(nil), b.profiles...), nil
}

func (b *memBackend) UpsertProfile(ctx context.Context, p domain.Profile) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.profiles {
		if b.profiles[i].UserID == p.UserID {
			b.profiles[i] = p
			return nil
		}
	}
	b.profiles = append(b.profiles, p)
	return nil
}

func (b *memBackend) CreateTask(ctx context.Context, draft domain.TaskDraft) (domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	t := domain.Task{
		ID:        "n" + strconv.Itoa(b.seq),
		Title:     draft.Title,
		ProjectID: draft.ProjectID,
		Priority:  draft.Priority,
		Status:    draft.Status,
		DueDate:   draft.DueDate,
		Tags:      draft.Tags,
		CreatedAt: b.now,
		UpdatedAt: b.now,
	}
	b.tasks = append([]domain.Task{t}, b.tasks...)
	return t.Clone(), nil
}

func (b *memBackend) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updateErr != nil {
		return domain.Task{}, b.updateErr
	}
	for i, t := range b.tasks {
		if t.ID == id {
			b.tasks[i] = patch.Apply(t)
			return b.tasks[i].Clone(), nil
		}
	}
	return domain.Task{}, domain.Rejected("update task", "not found", nil)
}

func (b *memBackend) DeleteTask(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, t := range b.tasks {
		if t.ID == id {
			b.tasks = append(b.tasks[:i], b.tasks[i+1:]...)
			return nil
		}
	}
	return domain.Rejected("delete task", "not found", nil)
}

func (b *memBackend) CreateProject(ctx context.Context, ownerID string, draft domain.ProjectDraft) (domain.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	p := domain.Project{ID: "p" + strconv.Itoa(100+b.seq), Name: draft.Name, OwnerID: ownerID, CreatedAt: b.now, UpdatedAt: b.now}
	b.projects = append([]domain.Project{p}, b.projects...)
	return p, nil
}

func (b *memBackend) AddMember(ctx context.Context, projectID, userID string) error { return nil }

func (b *memBackend) UpdateProject(ctx context.Context, id string, patch domain.ProjectPatch) (domain.Project, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.projects {
		if p.ID == id {
			b.projects[i] = patch.Apply(p)
			return b.projects[i], nil
		}
	}
	return domain.Project{}, domain.Rejected("update project", "not found", nil)
}

func (b *memBackend) DeleteProject(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.projects {
		if p.ID == id {
			b.projects = append(b.projects[:i], b.projects[i+1:]...)
			kept := b.tasks[:0]
			for _, t := range b.tasks {
				if t.ProjectID != id {
					kept = append(kept, t)
				}
			}
			b.tasks = kept
			return nil
		}
	}
	return domain.Rejected("delete project", "not found", nil)
}

func (b *memBackend) setUpdateErr(err error) {
	b.mu.Lock()
	b.updateErr = err
	b.mu.Unlock()
}

type stubAssistant struct {
	last assistant.Request
	resp assistant.Response
	err  error
}

func (s *stubAssistant) Do(ctx context.Context, req assistant.Request) (assistant.Response, error) {
	s.last = req
	return s.resp, s.err
}

type testEnv struct {
	e        *echo.Echo
	backend  *memBackend
	sessions *Manager
	ai       *stubAssistant
	hook     *test.Hook
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger, hook := test.NewNullLogger()
	backend := newMemBackend()
	sessions := NewManager(SessionConfig{
		Backend:  backend,
		Profiles: backend,
		Debounce: 10 * time.Millisecond,
		IdleTTL:  time.Hour,
		Location: time.UTC,
		Logger:   logger,
	})
	t.Cleanup(sessions.Close)
	ai := &stubAssistant{}
	e := echo.New()
	e.Use(GzipRequestMiddleware())
	Register(e, sessions, mockAuth{}, ai, logger)
	return &testEnv{e: e, backend: backend, sessions: sessions, ai: ai, hook: hook}
}

func (env *testEnv) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(echo.HeaderAuthorization, "Bearer user-1")
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

var errBoom = errors.New("boom")
