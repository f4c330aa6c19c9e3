package api

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/thribhuvan003/task-flow-main/internal/filter"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	readLimit  = 4096
)

func snapshot(sess *Session, crit filter.Criteria) boardResponse {
	resp := boardResponse{
		View:          sess.Store.View(),
		Loading:       sess.Store.Loading(),
		FiltersActive: crit.Active(),
		Columns:       sess.Board.Columns(crit),
	}
	if t, ok := sess.Board.Dragging(); ok {
		resp.Dragging = &t
	}
	return resp
}

// stream pushes a board snapshot as a Server-Sent Event on connect and after
// every change to the session's store.
func (s *server) stream(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	crit, err := criteriaFromQuery(c)
	if err != nil {
		return s.fail(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
	c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
	c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
	c.Response().Header().Set("X-Accel-Buffering", "no")
	flusher, ok := c.Response().Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	c.Response().WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	changes, unsubscribe := sess.Store.Subscribe()
	defer unsubscribe()
	for {
		data, err := sonic.Marshal(snapshot(sess, crit))
		if err != nil {
			s.log.WithError(err).Error("marshal board snapshot")
			return err
		}
		if _, err := c.Response().Write([]byte("event: board\ndata: ")); err != nil {
			return nil
		}
		if _, err := c.Response().Write(data); err != nil {
			return nil
		}
		if _, err := c.Response().Write([]byte("\n\n")); err != nil {
			return nil
		}
		flusher.Flush()
		select {
		case <-ctx.Done():
			return nil
		case _, open := <-changes:
			if !open {
				return nil
			}
		}
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsCommand is a client message on the board socket.
type wsCommand struct {
	Type     string `json:"type"`
	TaskID   string `json:"task_id,omitempty"`
	TargetID string `json:"target_id,omitempty"`
}

type wsMessage struct {
	Type  string         `json:"type"`
	Board *boardResponse `json:"board,omitempty"`
	Drop  any            `json:"drop,omitempty"`
	Error string         `json:"error,omitempty"`
}

// boardSocket streams board snapshots like stream and additionally accepts drag
// commands from the client.
func (s *server) boardSocket(c echo.Context) error {
	sess, err := s.session(c)
	if err != nil {
		return s.fail(c, err)
	}
	crit, err := criteriaFromQuery(c)
	if err != nil {
		return s.fail(c, err)
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.log.WithError(err).Warn("ws upgrade failed")
		return nil
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request().Context()))
	defer cancel()
	send := make(chan wsMessage, 16)
	go s.readPump(ctx, cancel, conn, sess, send)
	s.writePump(ctx, conn, sess, crit, send)
	return nil
}

func (s *server) readPump(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *Session, send chan<- wsMessage) {
	defer cancel()
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reply := func(m wsMessage) {
		select {
		case send <- m:
		case <-ctx.Done():
		}
	}
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := sonic.Unmarshal(raw, &cmd); err != nil {
			reply(wsMessage{Type: "error", Error: "invalid message"})
			continue
		}
		switch cmd.Type {
		case "drag_start":
			sess.Board.DragStart(cmd.TaskID)
		case "drag_cancel":
			sess.Board.DragCancel()
		case "drag_end":
			drop, outcome := sess.Board.DragEnd(context.WithoutCancel(ctx), cmd.TaskID, cmd.TargetID)
			reply(wsMessage{Type: "drop", Drop: drop})
			go func() {
				if err := <-outcome; err != nil {
					reply(wsMessage{Type: "error", Error: err.Error()})
				}
			}()
		case "reload":
			go func() {
				if _, err := sess.Store.Load(ctx, sess.Store.View()); err != nil {
					reply(wsMessage{Type: "error", Error: err.Error()})
				}
			}()
		default:
			reply(wsMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

func (s *server) writePump(ctx context.Context, conn *websocket.Conn, sess *Session, crit filter.Criteria, send <-chan wsMessage) {
	ticker := time.NewTicker(pingPeriod)
	changes, unsubscribe := sess.Store.Subscribe()
	defer func() {
		ticker.Stop()
		unsubscribe()
		_ = conn.Close()
	}()

	write := func(m wsMessage) bool {
		data, err := sonic.Marshal(m)
		if err != nil {
			s.log.WithError(err).Error("marshal ws message")
			return false
		}
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteMessage(websocket.TextMessage, data) == nil
	}
	board := func() bool {
		b := snapshot(sess, crit)
		return write(wsMessage{Type: "board", Board: &b})
	}

	if !board() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case _, open := <-changes:
			if !open || !board() {
				return
			}
		case m := <-send:
			if !write(m) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
