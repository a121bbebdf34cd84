package collab

import "go.uber.org/zap"

type typingSet struct {
	typing map[string]bool
}

func newTypingSet() *typingSet {
	return &typingSet{typing: make(map[string]bool)}
}

// set records the typing flag and reports whether it changed.
func (s *typingSet) set(connectionID string, isTyping bool) bool {
	if s.typing[connectionID] == isTyping {
		return false
	}
	if isTyping {
		s.typing[connectionID] = true
	} else {
		delete(s.typing, connectionID)
	}
	return true
}

type chatUserPayload struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// JoinChat adds the connection to the itinerary's chat room. It mirrors JoinRoom
// in its own namespace so chat presence never shows up in the editing roster.
func (h *Hub) JoinChat(conn Conn, roomID RoomID) ([]ChatRosterEntry, error) {
	if !roomID.valid() {
		return nil, ErrInvalidRoom
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, added := h.chat.join(roomID, conn)
	h.sessionFor(conn).chats[roomID] = struct{}{}

	roster := chatRosterOf(current)
	sendTo(h.logger, conn, EventChatParticipants, roster)

	if added {
		participant := conn.Participant()
		h.chat.broadcast(roomID, EventChatUserJoined, chatUserPayload{
			UserID:    participant.UserID,
			Name:      participant.Name,
			Email:     participant.Email,
			AvatarURL: participant.AvatarURL,
		}, conn.ID())
		h.logger.Debug("participant joined chat",
			zap.Int64("itinerary_id", int64(roomID)),
			zap.String("user_id", participant.UserID))
	}
	return roster, nil
}

// LeaveChat removes the connection from a chat room, clearing its typing flag first.
func (h *Hub) LeaveChat(conn Conn, roomID RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveChatLocked(conn, roomID)
}

func (h *Hub) leaveChatLocked(conn Conn, roomID RoomID) {
	if current, ok := h.sessions[conn.ID()]; ok {
		delete(current.chats, roomID)
	}
	current, ok := h.chat.get(roomID)
	if !ok || !h.chat.isMember(roomID, conn) {
		return
	}

	participant := conn.Participant()
	if current.state.set(conn.ID(), false) {
		h.chat.broadcast(roomID, EventUserTyping, userTypingPayload{
			UserID:   participant.UserID,
			UserName: participant.Name,
			IsTyping: false,
		}, conn.ID())
	}
	h.chat.leave(roomID, conn)
	h.chat.broadcast(roomID, EventChatUserLeft, chatUserPayload{
		UserID: participant.UserID,
		Name:   participant.Name,
	}, conn.ID())
}

// SetTyping relays the connection's typing indicator to the rest of the chat room.
func (h *Hub) SetTyping(conn Conn, roomID RoomID, isTyping bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	current, ok := h.chat.get(roomID)
	if !ok || !h.chat.isMember(roomID, conn) {
		return ErrNotInRoom
	}
	current.state.set(conn.ID(), isTyping)

	participant := conn.Participant()
	h.chat.broadcast(roomID, EventUserTyping, userTypingPayload{
		UserID:   participant.UserID,
		UserName: participant.Name,
		IsTyping: isTyping,
	}, conn.ID())
	return nil
}

// BroadcastChat sends an event to every member of the chat room, author included.
// It satisfies the chat service's Broadcaster.
func (h *Hub) BroadcastChat(roomID int64, event string, payload interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chat.broadcast(RoomID(roomID), event, payload, "")
}

// ChatRoster returns the current chat roster of a room.
func (h *Hub) ChatRoster(roomID RoomID) []ChatRosterEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.chat.get(roomID)
	if !ok {
		return []ChatRosterEntry{}
	}
	return chatRosterOf(current)
}

func chatRosterOf(current *room[*typingSet]) []ChatRosterEntry {
	members := current.ordered()
	roster := make([]ChatRosterEntry, 0, len(members))
	for _, member := range members {
		participant := member.conn.Participant()
		roster = append(roster, ChatRosterEntry{
			UserID:    participant.UserID,
			Name:      participant.Name,
			Email:     participant.Email,
			AvatarURL: participant.AvatarURL,
			IsTyping:  current.state.typing[member.conn.ID()],
		})
	}
	return roster
}
