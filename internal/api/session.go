package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/thribhuvan003/task-flow-main/internal/analytics"
	"github.com/thribhuvan003/task-flow-main/internal/board"
	"github.com/thribhuvan003/task-flow-main/internal/domain"
	"github.com/thribhuvan003/task-flow-main/internal/gateway"
	"github.com/thribhuvan003/task-flow-main/internal/metrics"
	"github.com/thribhuvan003/task-flow-main/internal/taskstore"
)

// ProfileStore records user display names.
type ProfileStore interface {
	UpsertProfile(ctx context.Context, p domain.Profile) error
}

// SessionConfig holds what every board session is built from.
type SessionConfig struct {
	Backend    gateway.Backend
	Profiles   ProfileStore
	Listener   gateway.Listener
	Publishers []gateway.Publisher
	Debounce   time.Duration
	IdleTTL    time.Duration
	Location   *time.Location
	Logger     *log.Logger
}

// Session is the engine state of one signed-in user.
type Session struct {
	UserID    string
	Store     *taskstore.Store
	Board     *board.Engine
	Analytics *analytics.Aggregator
}

func (s *Session) close() {
	s.Store.Close()
}

type sessionEntry struct {
	ready    chan struct{}
	session  *Session
	err      error
	lastUsed time.Time
}

// Manager owns the sessions keyed by user id. Sessions are created on first
// use and closed after IdleTTL without requests.
type Manager struct {
	cfg SessionConfig
	log *log.Entry
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

func NewManager(cfg SessionConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Manager{
		cfg:      cfg,
		log:      cfg.Logger.WithField("component", "sessions"),
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Session returns the session of userID, opening it if needed. Concurrent
// callers for the same user share one open.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	if e, ok := m.sessions[userID]; ok {
		e.lastUsed = m.now()
		m.mu.Unlock()
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e.session, nil
	}
	e := &sessionEntry{ready: make(chan struct{}), lastUsed: m.now()}
	m.sessions[userID] = e
	m.mu.Unlock()

	s, err := m.open(ctx, userID)
	if err != nil {
		m.mu.Lock()
		if m.sessions[userID] == e {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
		e.err = err
		close(e.ready)
		return nil, err
	}
	m.mu.Lock()
	e.session = s
	m.mu.Unlock()
	close(e.ready)
	metrics.SessionsActive.Inc()
	m.log.WithField("user", userID).Info("board session opened")
	return s, nil
}

func (m *Manager) open(ctx context.Context, userID string) (*Session, error) {
	logger := m.cfg.Logger.WithField("user", userID)
	remote := gateway.NewRemote(m.cfg.Backend, m.cfg.Listener, m.cfg.Publishers, userID, logger.WithField("component", "gateway"))
	opts := []taskstore.Option{taskstore.WithLogger(logger.WithField("component", "taskstore"))}
	if m.cfg.Debounce > 0 {
		opts = append(opts, taskstore.WithDebounce(m.cfg.Debounce))
	}
	store := taskstore.New(remote, opts...)
	if err := store.Open(ctx, ""); err != nil {
		store.Close()
		return nil, err
	}
	return &Session{
		UserID:    userID,
		Store:     store,
		Board:     board.NewEngine(store, logger.WithField("component", "board")),
		Analytics: analytics.NewAggregator(store, m.cfg.Location),
	}, nil
}

// UpdateProfile stores the display name of the session's user and reloads
// the session so its team view picks the name up.
func (m *Manager) UpdateProfile(ctx context.Context, sess *Session, name string) (domain.Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Profile{}, &domain.ValidationError{Field: "name", Reason: "name is required"}
	}
	p := domain.Profile{UserID: sess.UserID, Name: name}
	if err := m.cfg.Profiles.UpsertProfile(ctx, p); err != nil {
		return domain.Profile{}, err
	}
	if _, err := sess.Store.Load(ctx, sess.Store.View()); err != nil && !errors.Is(err, taskstore.ErrStaleView) {
		m.log.WithError(err).WithField("user", sess.UserID).Warn("reload after profile update failed")
	}
	return p, nil
}

// Sweep closes sessions idle for longer than IdleTTL and reports how many
// were closed. A session with an open stream is in use: its idle clock
// restarts instead.
func (m *Manager) Sweep() int {
	if m.cfg.IdleTTL <= 0 {
		return 0
	}
	now := m.now()
	cutoff := now.Add(-m.cfg.IdleTTL)
	var idle []*Session
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.session == nil {
			continue
		}
		if e.session.Store.Subscribers() > 0 {
			e.lastUsed = now
			continue
		}
		if !e.lastUsed.Before(cutoff) {
			continue
		}
		delete(m.sessions, id)
		idle = append(idle, e.session)
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.close()
		metrics.SessionsActive.Dec()
		m.log.WithField("user", s.UserID).Info("idle board session closed")
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is cancelled, then closes the rest.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.IdleTTL / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.Close()
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close closes every open session.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*sessionEntry)
	m.mu.Unlock()
	for _, e := range sessions {
		if e.session == nil {
			continue
		}
		e.session.close()
		metrics.SessionsActive.Dec()
	}
}
