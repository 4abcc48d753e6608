package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/martijn/vmorch/internal/api/dto"
	"github.com/martijn/vmorch/internal/events"
	"github.com/martijn/vmorch/internal/presets"
)

const (
	wsWriteWait   = 10 * time.Second
	wsPongWait    = 60 * time.Second
	wsPingPeriod  = 25 * time.Second
	wsMaxMessage  = 64 * 1024
	wsOutboxSize  = 32
	eventJoined   = "job-joined"
	eventLeft     = "job-left"
	eventActive   = "active-jobs"
	eventReqError = "request-error"
)

// wsRequest is one inbound socket message. Execute payloads are carried
// inline next to the action.
type wsRequest struct {
	Action string `json:"action"`
	JobID  string `json:"jobId,omitempty"`
	dto.ExecuteRequest
}

type wsMessage struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type WSHandler struct {
	executor Executor
	events   Subscriber
	presets  *presets.Catalog
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

func NewWSHandler(executor Executor, events Subscriber, catalog *presets.Catalog, allowedOrigins []string, logger *slog.Logger) *WSHandler {
	if catalog == nil {
		catalog = &presets.Catalog{Commands: map[string]presets.Preset{}}
	}
	return &WSHandler{
		executor: executor,
		events:   events,
		presets:  catalog,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

// originChecker mirrors the CORS policy: no list or "*" allows everything.
func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 || slices.Contains(allowed, "*") {
			return true
		}
		origin := r.Header.Get("Origin")
		return origin == "" || slices.Contains(allowed, origin)
	}
}

// Serve handles GET /ws/jobs
func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	s := &wsSession{
		h:      h,
		ctx:    c.Request.Context(),
		conn:   conn,
		sub:    h.events.Subscribe(),
		outbox: make(chan wsMessage, wsOutboxSize),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
	go s.writePump()
	s.readPump()
}

type wsSession struct {
	h      *WSHandler
	ctx    context.Context
	conn   *websocket.Conn
	sub    *events.Subscription
	outbox chan wsMessage
	done   chan struct{} // read side finished
	closed chan struct{} // write side finished
}

func (s *wsSession) readPump() {
	defer func() {
		close(s.done)
		s.sub.Close()
		s.conn.Close()
	}()

	s.conn.SetReadLimit(wsMaxMessage)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.h.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var req wsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			s.requestError("", "", "invalid message: "+err.Error())
			continue
		}
		s.handle(req)
	}
}

func (s *wsSession) handle(req wsRequest) {
	switch req.Action {
	case "execute":
		s.execute(req)
	case "join":
		if req.JobID == "" {
			s.requestError(req.Action, "", "jobId is required")
			return
		}
		s.sub.Join(req.JobID)
		s.send(eventJoined, gin.H{"jobId": req.JobID})
	case "leave":
		if req.JobID == "" {
			s.requestError(req.Action, "", "jobId is required")
			return
		}
		s.sub.Leave(req.JobID)
		s.send(eventLeft, gin.H{"jobId": req.JobID})
	case "cancel":
		if req.JobID == "" {
			s.requestError(req.Action, "", "jobId is required")
			return
		}
		// Join first so this socket sees the job-canceled event.
		s.sub.Join(req.JobID)
		if err := s.h.executor.Cancel(s.ctx, req.JobID); err != nil {
			s.requestError(req.Action, req.JobID, err.Error())
		}
	case "active":
		s.send(eventActive, toActiveJobsResponse(s.h.executor.ActiveDetails()))
	default:
		s.requestError(req.Action, "", "unknown action: "+req.Action)
	}
}

func (s *wsSession) execute(req wsRequest) {
	execReq, err := buildRequest(req.ExecuteRequest, s.h.presets)
	if err != nil {
		s.requestError(req.Action, "", err.Error())
		return
	}

	execReq.ID = s.h.executor.NewJobID()
	s.sub.Join(execReq.ID)

	id, err := s.h.executor.Execute(s.ctx, execReq)
	if err != nil {
		if id == "" {
			s.sub.Leave(execReq.ID)
		}
		s.requestError(req.Action, id, err.Error())
	}
}

func (s *wsSession) send(event string, data any) {
	select {
	case s.outbox <- wsMessage{Event: event, Data: data}:
	case <-s.closed:
	}
}

func (s *wsSession) requestError(action, jobID, message string) {
	data := gin.H{"action": action, "message": message}
	if jobID != "" {
		data["jobId"] = jobID
	}
	s.send(eventReqError, data)
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		close(s.closed)
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case <-s.ctx.Done():
			_ = s.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(wsWriteWait))
			return
		case msg := <-s.outbox:
			if err := s.write(msg); err != nil {
				return
			}
		case e, ok := <-s.sub.Events():
			if !ok {
				// Evicted as a slow consumer, or closed by the read side.
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "event buffer overflow"),
					time.Now().Add(wsWriteWait))
				return
			}
			if err := s.write(wsMessage{Event: string(e.Type), Data: e}); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *wsSession) write(msg wsMessage) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	err := s.conn.WriteJSON(msg)
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.h.logger.Debug("websocket write failed", "error", err)
	}
	return err
}
