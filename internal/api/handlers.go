// Package api exposes board sessions over HTTP, Server-Sent Events and
// WebSocket.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/assistant"
	"github.com/thribhuvan003/task-flow-main/internal/board"
	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/filter"
)

// Assistant answers AI requests.
type Assistant interface {
	Do(ctx context.Context, req assistant.Request) (assistant.Response, error)
}

type server struct {
	sessions *Manager
	auth     Authenticator
	ai       Assistant
	log      *log.Logger
}

// Register wires up all routes on the provided Echo instance.
func Register(e *echo.Echo, sessions *Manager, auth Authenticator, ai Assistant, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &server{sessions: sessions, auth: auth, ai: ai, log: logger}

	e.GET("/healthz", healthz)

	e.GET("/api/board", s.getBoard)
	e.POST("/api/board/drag/start", s.dragStart)
	e.POST("/api/board/drag/end", s.dragEnd)
	e.POST("/api/board/drag/cancel", s.dragCancel)

	e.GET("/api/tasks", s.getTasks)
	e.POST("/api/tasks", s.postTask)
	e.PATCH("/api/tasks/:id", s.patchTask)
	e.DELETE("/api/tasks/:id", s.deleteTask)

	e.GET("/api/projects", s.getProjects)
	e.POST("/api/projects", s.postProject)
	e.PATCH("/api/projects/:id", s.patchProject)
	e.DELETE("/api/projects/:id", s.deleteProject)

	e.PUT("/api/profile", s.putProfile)
	e.POST("/api/reload", s.postReload)
	e.GET("/api/analytics", s.getAnalytics)
	e.POST("/api/assistant", s.postAssistant)

	e.GET("/stream", s.stream)
	e.GET("/ws", s.boardSocket)
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func (s *server) fail(c echo.Context, err error) error {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return c.JSON(he.Code, errorResponse{Error: fmt.Sprint(he.Message)})
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

// session authenticates the request and returns the caller's board session.
func (s *server) session(c echo.Context) (*Session, error) {
	userID, err := s.auth.UserIDFromAuthHeader(requestAuthHeader(c))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	return s.sessions.Session(c.Request().Context(), userID)
}

// background detaches ctx from the request so writes already applied
// optimistically still settle when the client goes away.
func background(c echo.Context) context.Context {
	return context.WithoutCancel(c.Request().Context())
}

// ensureView switches the session store to the "view" query parameter when it
// is present and differs from the current view. The view belongs to the
// user's session, so the last switch wins for every client of that user.
// Responses carry the view they were built from; analytics and project
// counters do not depend on it.
func ensureView(c echo.Context, sess *Session) error {
	if !c.QueryParams().Has("view") {
		return nil
	}
	view := strings.TrimSpace(c.QueryParam("view"))
	if view == sess.Store.View() {
		return nil
	}
	_, err := sess.Store.Load(c.Request().Context(), view)
	return err
}

func criteriaFromQuery(c echo.Context) (filter.Criteria, error) {
	crit := filter.Criteria{ProjectID: strings.TrimSpace(c.QueryParam("project_id"))}
	if raw := c.QueryParam("priority"); raw != "" {
		p, err := domain.ParsePriority(raw)
		if err != nil {
			return filter.Criteria{}, err
		}
		crit.Priority = p
	}
	var err error
	if crit.DueAfter, err = parseBound(c.QueryParam("due_after"), "due_after", false); err != nil {
		return filter.Criteria{}, err
	}
	if crit.DueBefore, err = parseBound(c.QueryParam("due_before"), "due_before", true); err != nil {
		return filter.Criteria{}, err
	}
	return crit, nil
}

// parseBound accepts RFC 3339 timestamps or plain dates. A plain date used as
// an upper bound covers the whole day.
func parseBound(raw, field string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, &domain.ValidationError{Field: field, Reason: "expected a date or RFC 3339 timestamp"}
	}
	if upper {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

type boardResponse struct {
	View          string        `json:"view"`
	Loading       bool          `json:"loading"`
	FiltersActive int           `json:"filters_active"`
	Columns       board.Columns `json:"columns"`
	Dragging      *domain.Task  `json:"dragging,omitempty"`
}

func (s *server) getBoard(c echo.Context) (err error) {
	m, spanCtx := newRequestMetrics(c.Request().Context(), s.log, "/api/board")
	c.SetRequest(c.Request().WithContext(spanCtx))
	defer func() {
		m.Log(c.Response().Status, err)
	}()

	sess, stage, err := s.timedSession(c, m)
	if err != nil {
		m.SetErrorStage(stage)
		return s.fail(c, err)
	}
	if err = ensureView(c, sess); err != nil {
		m.SetErrorStage("load")
		return s.fail(c, err)
	}
	crit, err := criteriaFromQuery(c)
	if err != nil {
		m.SetErrorStage("invalid_filter")
		return s.fail(c, err)
	}
	m.SetView(sess.Store.View())
	m.SetFiltersActive(crit.Active())

	resp := boardResponse{
		View:          sess.Store.View(),
		Loading:       sess.Store.Loading(),
		FiltersActive: crit.Active(),
		Columns:       sess.Board.Columns(crit),
	}
	if t, ok := sess.Board.Dragging(); ok {
		resp.Dragging = &t
	}
	n := 0
	for _, col := range resp.Columns {
		n += len(col.Tasks)
	}
	m.SetTasksReturned(n)

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, resp)
	m.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

// timedSession resolves the session while recording auth and session timings.
// The returned stage names the step that failed.
func (s *server) timedSession(c echo.Context, m *requestMetrics) (*Session, string, error) {
	authStart := time.Now()
	userID, err := s.auth.UserIDFromAuthHeader(requestAuthHeader(c))
	m.ObserveAuth(time.Since(authStart))
	if err != nil {
		return nil, "auth", echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	sessStart := time.Now()
	sess, err := s.sessions.Session(c.Request().Context(), userID)
	m.ObserveSession(time.Since(sessStart))
	if err != nil {
		return nil, "session", err
	}
	return sess, "", nil
}

type tasksResponse struct {
	View  string        `json:"view"`
	Tasks []domain.Task `json:"tasks"`
}

func (s *server) getTasks(c echo.Context) (err error) {
	m, spanCtx := newRequestMetrics(c.Request().Context(), s.log, "/api/tasks")
	c.SetRequest(c.Request().WithContext(spanCtx))
	defer func() {
		m.Log(c.Response().Status, err)
	}()

	sess, stage, err := s.timedSession(c, m)
	if err != nil {
		m.SetErrorStage(stage)
		return s.fail(c, err)
	}
	if err = ensureView(c, sess); err != nil {
		m.SetErrorStage("load")
		return s.fail(c, err)
	}
	crit, err := criteriaFromQuery(c)
	if err != nil {
		m.SetErrorStage("invalid_filter")
		return s.fail(c, err)
	}
	tasks := crit.Apply(sess.Store.Tasks())
	m.SetView(sess.Store.View())
	m.SetFiltersActive(crit.Active())
	m.SetTasksReturned(len(tasks))

	encodeStart := time.Now()
	err = c.JSON(http.StatusOK, tasksResponse{View: sess.Store.View(), Tasks: tasks})
	m.ObserveEncode(time.Since(encodeStart))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

func (s *server) postTask(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var draft domain.TaskDraft
	if err := decodeBody(c, &draft); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	t, err := sess.Store.Create(background(c), draft)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *server) patchTask(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var patch domain.TaskPatch
	if err := decodeBody(c, &patch); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	t, err := sess.Store.Update(background(c), c.Param("id"), patch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *server) deleteTask(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := sess.Store.Remove(background(c), c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) getProjects(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Store.ProjectsWithStats())
}

func (s *server) postProject(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var draft domain.ProjectDraft
	if err := decodeBody(c, &draft); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	p, err := sess.Store.CreateProject(background(c), draft)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *server) patchProject(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var patch domain.ProjectPatch
	if err := decodeBody(c, &patch); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	p, err := sess.Store.UpdateProject(background(c), c.Param("id"), patch)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

func (s *server) deleteProject(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	if err := sess.Store.DeleteProject(background(c), c.Param("id")); err != nil {
		return s.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *server) postReload(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	tasks, err := sess.Store.Load(c.Request().Context(), sess.Store.View())
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, tasksResponse{View: sess.Store.View(), Tasks: tasks})
}

func (s *server) getAnalytics(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, sess.Analytics.Report())
}

type profileRequest struct {
	Name string `json:"name"`
}

func (s *server) putProfile(c echo.Context) error {
	if s.sessions.cfg.Profiles == nil {
		return c.JSON(http.StatusNotImplemented, errorResponse{Error: "profiles are not stored by this backend"})
	}
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var body profileRequest
	if err := decodeBody(c, &body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	p, err := s.sessions.UpdateProfile(background(c), sess, body.Name)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

type assistantRequest struct {
	Type    assistant.RequestType `json:"type"`
	Message string                `json:"message,omitempty"`
}

func (s *server) postAssistant(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	if s.ai == nil {
		return s.fail(c, assistant.ErrUnavailable)
	}
	var body assistantRequest
	if err := decodeBody(c, &body); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	actx := assistant.ContextFrom(body.Type, sess.Store.AllTasks(), sess.Store.Projects())
	actx.Message = body.Message
	resp, err := s.ai.Do(c.Request().Context(), assistant.Request{Type: body.Type, Context: actx})
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

type dragRequest struct {
	TaskID   string `json:"task_id"`
	TargetID string `json:"target_id,omitempty"`
	Wait     bool   `json:"wait,omitempty"`
}

type dragStartResponse struct {
	Dragging bool         `json:"dragging"`
	Task     *domain.Task `json:"task,omitempty"`
}

func (s *server) dragStart(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req dragRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	t, ok := sess.Board.DragStart(req.TaskID)
	resp := dragStartResponse{Dragging: ok}
	if ok {
		resp.Task = &t
	}
	return c.JSON(http.StatusOK, resp)
}

// dragEnd resolves a drop. With wait set the response carries the remote
// outcome; otherwise a move is acknowledged with 202 once applied locally.
func (s *server) dragEnd(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	var req dragRequest
	if err := decodeBody(c, &req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid body"})
	}
	drop, outcome := sess.Board.DragEnd(background(c), req.TaskID, req.TargetID)
	if !drop.Moved {
		return c.JSON(http.StatusOK, drop)
	}
	if !req.Wait {
		return c.JSON(http.StatusAccepted, drop)
	}
	select {
	case err := <-outcome:
		if err != nil {
			return s.fail(c, err)
		}
	case <-c.Request().Context().Done():
		return c.Request().Context().Err()
	}
	return c.JSON(http.StatusOK, drop)
}

func (s *server) dragCancel(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	sess.Board.DragCancel()
	return c.NoContent(http.StatusNoContent)
}
