package websocket

import (
	"context"
	"errors"
	"sync"
	"time"

	"codesync-backend/core"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
)

// defaultSaveDelay is the quiescence window for content persistence: a
// connection's edits are coalesced until no new edit has arrived for this
// long, then the latest content is written once.
const defaultSaveDelay = 2000 * time.Millisecond

// Error codes surfaced to a failing connection via connection_error.
const (
	CodeProjectNotFound = "PROJECT_NOT_FOUND"
	CodeJoinError       = "JOIN_ERROR"
)

// Emitter is the outbound half of a client connection. The hub only ever
// pushes events; delivery is best-effort and never acknowledged.
type Emitter interface {
	Emit(event string, data any) error
}

// ProjectStore is the slice of the project store the relay consumes.
// core.ProjectStore satisfies it.
type ProjectStore interface {
	FindID(ctx context.Context, projectID string) (*core.Project, error)
	UpdateContent(ctx context.Context, projectID, content string) error
	UpdateLanguage(ctx context.Context, projectID, language string) error
	IncrementActiveUsers(ctx context.Context, projectID string) error
	DecrementActiveUsers(ctx context.Context, projectID string) error
}

// SessionStore is the audit-record interface the relay consumes.
type SessionStore interface {
	CreateSession(ctx context.Context, session *core.Session) error
	MarkLeft(ctx context.Context, projectID, userID string, totalEdits int) error
}

type (
	JoinRequest struct {
		ProjectID string `json:"projectId"`
		UserID    string `json:"userId"`
		UserName  string `json:"userName"`
	}

	LeaveRequest struct {
		ProjectID string `json:"projectId"`
		UserID    string `json:"userId"`
	}

	// Operation carries the full current content of the document, not a
	// diff. Concurrent edits resolve as last broadcast wins.
	Operation struct {
		Content string `json:"content"`
	}

	CodeChangeRequest struct {
		ProjectID string    `json:"projectId"`
		UserID    string    `json:"userId"`
		Operation Operation `json:"operation"`
	}

	CursorMoveRequest struct {
		ProjectID string `json:"projectId"`
		Position  any    `json:"position"`
		Selection any    `json:"selection"`
	}

	LanguageChangeRequest struct {
		ProjectID string `json:"projectId"`
		Language  string `json:"language"`
	}
)

// Hub owns the presence registry, the color allocator and the relay logic.
// One instance per process, constructed in main and shared by every
// connection.
type Hub struct {
	projects ProjectStore
	sessions SessionStore
	presence *Presence
	colors   *ColorAllocator

	// saveDelay is the debounce window; a field so tests can shorten it.
	saveDelay time.Duration
}

func NewHub(projects ProjectStore, sessions SessionStore) *Hub {
	return &Hub{
		projects:  projects,
		sessions:  sessions,
		presence:  NewPresence(),
		colors:    NewColorAllocator(),
		saveDelay: defaultSaveDelay,
	}
}

// Presence exposes the live registry, used by anything that wants the true
// member count instead of the persisted activeUsers counter.
func (h *Hub) Presence() *Presence {
	return h.presence
}

// Conn is the hub-side state of one client connection. A connection joins
// at most one project; joining again rebinds it.
type Conn struct {
	hub     *Hub
	emitter Emitter

	mu        sync.Mutex
	projectID string
	userID    string
	userName  string
	joined    bool
	left      bool
	edits     int

	saveTimer  *time.Timer
	pending    string
	hasPending bool
}

// NewConn wraps a client connection for use with the hub.
func (h *Hub) NewConn(emitter Emitter) *Conn {
	return &Conn{hub: h, emitter: emitter}
}

// Join validates the project, records a session, registers presence and
// sends the initial snapshot. A missing project terminates the attempt with
// connection_error and leaves no trace.
func (h *Hub) Join(ctx context.Context, c *Conn, req JoinRequest) {
	log := logrus.WithFields(logrus.Fields{
		"project_id": req.ProjectID,
		"user_id":    req.UserID,
	})

	project, err := h.projects.FindID(ctx, req.ProjectID)
	if err != nil {
		if errors.Is(err, core.ErrProjectNotFound) {
			log.Warn("join rejected, project does not exist")
			_ = c.emitter.Emit("connection_error", map[string]any{
				"message": "Failed to join project. Project may not exist.",
				"code":    CodeProjectNotFound,
			})
			return
		}
		log.WithError(err).Error("join failed, project lookup error")
		_ = c.emitter.Emit("connection_error", map[string]any{
			"message": "Failed to join project",
			"code":    CodeJoinError,
		})
		return
	}

	session := &core.Session{
		ProjectID: req.ProjectID,
		SessionID: ulid.Make().String(),
		UserID:    req.UserID,
		UserName:  req.UserName,
		UserColor: h.colors.Next(),
		JoinedAt:  time.Now(),
	}
	if err := h.sessions.CreateSession(ctx, session); err != nil {
		log.WithError(err).Error("join failed, could not create session record")
		_ = c.emitter.Emit("connection_error", map[string]any{
			"message": "Failed to join project",
			"code":    CodeJoinError,
		})
		return
	}

	c.mu.Lock()
	c.projectID = req.ProjectID
	c.userID = req.UserID
	c.userName = req.UserName
	c.joined = true
	c.left = false
	c.edits = 0
	c.mu.Unlock()

	h.presence.Register(req.ProjectID, &Participant{
		UserID:    req.UserID,
		UserName:  req.UserName,
		UserColor: session.UserColor,
		conn:      c.emitter,
	})

	// The persisted counter is best-effort; the member list below is the
	// authoritative one.
	if err := h.projects.IncrementActiveUsers(ctx, req.ProjectID); err != nil {
		log.WithError(err).Error("failed to increment active user count")
	}

	members := h.presence.Members(req.ProjectID)

	h.broadcastToOthers(req.ProjectID, req.UserID, "user_joined", map[string]any{
		"userId":       req.UserID,
		"userName":     req.UserName,
		"userColor":    session.UserColor,
		"currentUsers": members,
	})

	_ = c.emitter.Emit("sync_state", map[string]any{
		"content":      project.Content,
		"language":     project.Language,
		"currentUsers": members,
	})

	log.WithField("session_id", session.SessionID).Info("user joined project")
}

// Leave handles an explicit leave_project event. An event naming a project
// the connection is not bound to is dropped.
func (h *Hub) Leave(ctx context.Context, c *Conn, req LeaveRequest) {
	c.mu.Lock()
	bound := c.joined && !c.left && c.projectID == req.ProjectID
	c.mu.Unlock()
	if !bound {
		return
	}
	h.teardown(ctx, c)
}

// Disconnect handles transport-level loss of the connection. It runs the
// same teardown as an explicit leave; whichever arrives first wins and the
// other becomes a no-op.
func (h *Hub) Disconnect(ctx context.Context, c *Conn) {
	h.teardown(ctx, c)
}

// teardown is the single cleanup path shared by leave and disconnect. It
// executes at most once per join: it flushes any pending debounced content,
// stamps the session record, decrements the persisted counter and tells the
// rest of the room.
func (h *Hub) teardown(ctx context.Context, c *Conn) {
	c.mu.Lock()
	if !c.joined || c.left {
		c.mu.Unlock()
		return
	}
	c.left = true
	projectID, userID, edits := c.projectID, c.userID, c.edits
	var flushContent string
	flush := c.hasPending
	if flush {
		flushContent = c.pending
		c.hasPending = false
	}
	if c.saveTimer != nil {
		c.saveTimer.Stop()
		c.saveTimer = nil
	}
	c.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{
		"project_id": projectID,
		"user_id":    userID,
	})

	// A still-pending debounce write is flushed now rather than abandoned,
	// so the last known content is never lost to a disconnect.
	if flush {
		if err := h.projects.UpdateContent(ctx, projectID, flushContent); err != nil {
			log.WithError(err).Error("failed to flush content on teardown")
		}
	}

	if err := h.sessions.MarkLeft(ctx, projectID, userID, edits); err != nil {
		log.WithError(err).Error("failed to close session record")
	}
	if err := h.projects.DecrementActiveUsers(ctx, projectID); err != nil {
		log.WithError(err).Error("failed to decrement active user count")
	}

	h.presence.Unregister(projectID, userID)

	h.broadcastToOthers(projectID, userID, "user_left", map[string]any{
		"userId":       userID,
		"currentUsers": h.presence.Members(projectID),
	})

	log.WithField("total_edits", edits).Info("user left project")
}

// CodeChange relays an edit to the rest of the room and re-arms the
// connection's debounce timer. The matching-room check is the only
// authorization in the system; a mismatch is dropped without a reply.
func (h *Hub) CodeChange(ctx context.Context, c *Conn, req CodeChangeRequest) {
	c.mu.Lock()
	if !c.joined || c.left || c.projectID != req.ProjectID {
		c.mu.Unlock()
		return
	}
	c.edits++
	senderID := c.userID
	c.mu.Unlock()

	h.broadcastToOthers(req.ProjectID, senderID, "code_broadcast", map[string]any{
		"operation": req.Operation,
		"userId":    req.UserID,
	})

	c.armSave(req.ProjectID, req.Operation.Content)
}

// armSave replaces the connection's pending debounce timer with a fresh one
// holding the latest content. Only the newest content survives a burst.
func (c *Conn) armSave(projectID, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pending = content
	c.hasPending = true
	if c.saveTimer != nil {
		c.saveTimer.Stop()
	}
	c.saveTimer = time.AfterFunc(c.hub.saveDelay, func() {
		c.flushPending(projectID)
	})
}

// flushPending persists the latest debounced content, if any is still
// pending. Last write wins; a failed write is logged and lost until the
// next edit re-arms the timer.
func (c *Conn) flushPending(projectID string) {
	c.mu.Lock()
	if !c.hasPending {
		c.mu.Unlock()
		return
	}
	content := c.pending
	c.hasPending = false
	c.saveTimer = nil
	c.mu.Unlock()

	if err := c.hub.projects.UpdateContent(context.Background(), projectID, content); err != nil {
		logrus.WithFields(logrus.Fields{
			"project_id": projectID,
		}).WithError(err).Error("failed to save project content")
	}
}

// CursorMove relays a cursor or selection update. Never persisted.
func (h *Hub) CursorMove(ctx context.Context, c *Conn, req CursorMoveRequest) {
	c.mu.Lock()
	if !c.joined || c.left || c.projectID != req.ProjectID {
		c.mu.Unlock()
		return
	}
	senderID := c.userID
	c.mu.Unlock()

	h.broadcastToOthers(req.ProjectID, senderID, "cursor_broadcast", map[string]any{
		"userId":    senderID,
		"position":  req.Position,
		"selection": req.Selection,
	})
}

// LanguageChange persists the new language synchronously, then relays it.
// A failed write does not hold back the broadcast.
func (h *Hub) LanguageChange(ctx context.Context, c *Conn, req LanguageChangeRequest) {
	c.mu.Lock()
	if !c.joined || c.left || c.projectID != req.ProjectID {
		c.mu.Unlock()
		return
	}
	senderID := c.userID
	c.mu.Unlock()

	if err := h.projects.UpdateLanguage(ctx, req.ProjectID, req.Language); err != nil {
		logrus.WithFields(logrus.Fields{
			"project_id": req.ProjectID,
			"language":   req.Language,
		}).WithError(err).Error("failed to save project language")
	}

	h.broadcastToOthers(req.ProjectID, senderID, "language_broadcast", map[string]any{
		"language": req.Language,
		"userId":   senderID,
	})
}

// broadcastToOthers fans an event out to every room member except the
// sender. Delivery is fire-and-forget.
func (h *Hub) broadcastToOthers(projectID, senderUserID, event string, data any) {
	for _, p := range h.presence.Members(projectID) {
		if p.UserID == senderUserID || p.conn == nil {
			continue
		}
		_ = p.conn.Emit(event, data)
	}
}
