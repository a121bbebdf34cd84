package collab

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	namespaceEditing = "editing"
	namespaceChat    = "chat"
)

// HubConfig describes the dependencies of a Hub.
type HubConfig struct {
	Logger *zap.Logger
	Clock  func() time.Time
	// Access, when set, gates join-room and join-chat.
	Access AccessChecker
}

// Hub owns all in-memory collaboration state of the process: editing rooms with
// their field locks, chat rooms with their typing state, and the per-user
// connection index used for notifications. Every operation runs to completion
// under one mutex, so handlers never interleave.
type Hub struct {
	mu       sync.Mutex
	logger   *zap.Logger
	clock    func() time.Time
	access   AccessChecker
	sessions map[string]*session
	editing  *registry[*lockTable]
	chat     *registry[*typingSet]
	users    *userIndex
}

type session struct {
	conn  Conn
	rooms map[RoomID]struct{}
	chats map[RoomID]struct{}
}

// NewHub constructs an empty Hub.
func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Hub{
		logger:   logger,
		clock:    clock,
		access:   cfg.Access,
		sessions: make(map[string]*session),
		editing:  newRegistry(namespaceEditing, newLockTable, logger),
		chat:     newRegistry(namespaceChat, newTypingSet, logger),
		users:    newUserIndex(),
	}
}

// Connect registers a freshly authenticated connection. It must be paired with Disconnect.
func (h *Hub) Connect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionFor(conn)
	h.users.add(conn)
	h.logger.Debug("connection registered",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", conn.Participant().UserID))
}

func (h *Hub) sessionFor(conn Conn) *session {
	current, ok := h.sessions[conn.ID()]
	if !ok {
		current = &session{
			conn:  conn,
			rooms: make(map[RoomID]struct{}),
			chats: make(map[RoomID]struct{}),
		}
		h.sessions[conn.ID()] = current
	}
	return current
}

// RoomCount returns the number of live editing rooms.
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.editing.count()
}

// ChatRoomCount returns the number of live chat rooms.
func (h *Hub) ChatRoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.chat.count()
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Roster returns the current editing roster of a room.
func (h *Hub) Roster(roomID RoomID) []RosterEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.editing.get(roomID)
	if !ok {
		return []RosterEntry{}
	}
	return rosterOf(current)
}

// LockHolder returns the holder of a field lock, if any.
func (h *Hub) LockHolder(roomID RoomID, field string) (FieldLock, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.editing.get(roomID)
	if !ok {
		return FieldLock{}, false
	}
	lock, held := current.state.locks[field]
	return lock, held
}
