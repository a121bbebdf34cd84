package collab

import (
	"sort"

	"go.uber.org/zap"
)

// FieldLock records which connection currently holds the advisory lock on a field.
type FieldLock struct {
	Field        string
	ConnectionID string
	UserID       string
	UserName     string
	seq          uint64
}

type lockTable struct {
	locks map[string]FieldLock
	seq   uint64
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]FieldLock)}
}

// acquire sets the holder, overwriting any other holder. It reports false when
// the connection already held the field.
func (t *lockTable) acquire(field string, conn Conn) bool {
	if existing, ok := t.locks[field]; ok && existing.ConnectionID == conn.ID() {
		return false
	}
	participant := conn.Participant()
	t.seq++
	t.locks[field] = FieldLock{
		Field:        field,
		ConnectionID: conn.ID(),
		UserID:       participant.UserID,
		UserName:     participant.Name,
		seq:          t.seq,
	}
	return true
}

// release drops the lock only if the connection is its holder.
func (t *lockTable) release(field string, conn Conn) bool {
	existing, ok := t.locks[field]
	if !ok || existing.ConnectionID != conn.ID() {
		return false
	}
	delete(t.locks, field)
	return true
}

// releaseAll drops every lock the connection holds and returns them by field name.
func (t *lockTable) releaseAll(conn Conn) []FieldLock {
	var released []FieldLock
	for field, lock := range t.locks {
		if lock.ConnectionID == conn.ID() {
			released = append(released, lock)
			delete(t.locks, field)
		}
	}
	sort.Slice(released, func(i, j int) bool {
		return released[i].Field < released[j].Field
	})
	return released
}

// activeField returns the most recently focused field held by the connection.
func (t *lockTable) activeField(connectionID string) string {
	var latest FieldLock
	for _, lock := range t.locks {
		if lock.ConnectionID == connectionID && lock.seq > latest.seq {
			latest = lock
		}
	}
	return latest.Field
}

// heldByOthers lists the locks not held by the connection, by field name.
func (t *lockTable) heldByOthers(connectionID string) []FieldLock {
	held := make([]FieldLock, 0, len(t.locks))
	for _, lock := range t.locks {
		if lock.ConnectionID != connectionID {
			held = append(held, lock)
		}
	}
	sort.Slice(held, func(i, j int) bool {
		return held[i].Field < held[j].Field
	})
	return held
}

// FocusField locks the field for the connection. A field held by someone else is
// taken over: the last focuser wins, because the lock only drives the UI.
func (h *Hub) FocusField(conn Conn, roomID RoomID, rawField string) error {
	path, err := ParseFieldPath(rawField)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.editing.get(roomID)
	if !ok || !h.editing.isMember(roomID, conn) {
		return ErrNotInRoom
	}

	previous, hadHolder := current.state.locks[path.String()]
	if !current.state.acquire(path.String(), conn) {
		return nil
	}

	participant := conn.Participant()
	if hadHolder {
		h.logger.Debug("field lock reassigned",
			zap.Int64("itinerary_id", int64(roomID)),
			zap.String("field", path.String()),
			zap.String("previous_user_id", previous.UserID),
			zap.String("user_id", participant.UserID))
	}
	h.editing.broadcast(roomID, EventFieldLocked, fieldLockedPayload{
		Field:    path.String(),
		UserID:   participant.UserID,
		UserName: participant.Name,
	}, conn.ID())
	return nil
}

// BlurField releases the field if the connection holds it. A blur arriving after
// someone else took the field over is ignored.
func (h *Hub) BlurField(conn Conn, roomID RoomID, rawField string) error {
	path, err := ParseFieldPath(rawField)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.editing.get(roomID)
	if !ok || !h.editing.isMember(roomID, conn) {
		return ErrNotInRoom
	}
	if !current.state.release(path.String(), conn) {
		return nil
	}

	h.editing.broadcast(roomID, EventFieldUnlocked, fieldUnlockedPayload{
		Field:  path.String(),
		UserID: conn.Participant().UserID,
	}, conn.ID())
	return nil
}

func (h *Hub) releaseLocksLocked(conn Conn, roomID RoomID) {
	current, ok := h.editing.get(roomID)
	if !ok {
		return
	}
	for _, lock := range current.state.releaseAll(conn) {
		h.editing.broadcast(roomID, EventFieldUnlocked, fieldUnlockedPayload{
			Field:  lock.Field,
			UserID: lock.UserID,
		}, conn.ID())
	}
}
