package collab

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// Disconnect tears down everything a closed connection left behind: locks and
// presence in every editing room, typing state and presence in every chat
// room, and its entry in the user index. A failure while cleaning one room is
// logged and does not stop the others.
func (h *Hub) Disconnect(conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.sessions[conn.ID()]
	if !ok {
		h.users.remove(conn)
		return
	}

	for _, roomID := range sortedRooms(current.rooms) {
		h.isolate(namespaceEditing, roomID, conn, func() {
			h.leaveRoomLocked(conn, roomID)
		})
	}
	for _, roomID := range sortedRooms(current.chats) {
		h.isolate(namespaceChat, roomID, conn, func() {
			h.leaveChatLocked(conn, roomID)
		})
	}

	h.users.remove(conn)
	delete(h.sessions, conn.ID())
	h.logger.Debug("connection released",
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", conn.Participant().UserID))
}

// isolate runs one room's cleanup step. If the step panics part way, the
// membership is still removed so no stale presence survives the connection.
func (h *Hub) isolate(namespace string, roomID RoomID, conn Conn, step func()) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		h.logger.Error("room cleanup failed",
			zap.String("namespace", namespace),
			zap.Int64("itinerary_id", int64(roomID)),
			zap.String("connection_id", conn.ID()),
			zap.Error(fmt.Errorf("panic: %v", recovered)))
		switch namespace {
		case namespaceEditing:
			if current, ok := h.editing.get(roomID); ok {
				current.state.releaseAll(conn)
			}
			h.editing.leave(roomID, conn)
		case namespaceChat:
			if current, ok := h.chat.get(roomID); ok {
				current.state.set(conn.ID(), false)
			}
			h.chat.leave(roomID, conn)
		}
	}()
	step()
}

func sortedRooms(rooms map[RoomID]struct{}) []RoomID {
	ids := make([]RoomID, 0, len(rooms))
	for id := range rooms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
