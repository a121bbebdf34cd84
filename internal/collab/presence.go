package collab

import "go.uber.org/zap"

// JoinRoom adds the connection to an editing room, replies to it alone with the
// roster followed by one field-locked per lock held by someone else, and tells
// everyone else about the newcomer. Joining again is idempotent: the roster is
// re-sent but nobody is told twice.
func (h *Hub) JoinRoom(conn Conn, roomID RoomID) ([]RosterEntry, error) {
	if !roomID.valid() {
		return nil, ErrInvalidRoom
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	current, added := h.editing.join(roomID, conn)
	h.sessionFor(conn).rooms[roomID] = struct{}{}

	roster := rosterOf(current)
	sendTo(h.logger, conn, EventCurrentEditors, roster)
	for _, lock := range current.state.heldByOthers(conn.ID()) {
		sendTo(h.logger, conn, EventFieldLocked, fieldLockedPayload{
			Field:    lock.Field,
			UserID:   lock.UserID,
			UserName: lock.UserName,
		})
	}

	if added {
		participant := conn.Participant()
		h.editing.broadcast(roomID, EventParticipantJoined, participantJoinedPayload{
			UserID: participant.UserID,
			Name:   participant.Name,
			Email:  participant.Email,
		}, conn.ID())
		h.logger.Info("participant joined room",
			zap.Int64("itinerary_id", int64(roomID)),
			zap.String("user_id", participant.UserID),
			zap.Int("participants", len(current.members)))
	}
	return roster, nil
}

// LeaveRoom removes the connection from an editing room, releasing every lock
// it held there first. Leaving a room the connection is not in does nothing.
func (h *Hub) LeaveRoom(conn Conn, roomID RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveRoomLocked(conn, roomID)
}

func (h *Hub) leaveRoomLocked(conn Conn, roomID RoomID) {
	if current, ok := h.sessions[conn.ID()]; ok {
		delete(current.rooms, roomID)
	}
	if !h.editing.isMember(roomID, conn) {
		return
	}

	h.releaseLocksLocked(conn, roomID)
	h.editing.leave(roomID, conn)

	participant := conn.Participant()
	h.editing.broadcast(roomID, EventParticipantLeft, participantLeftPayload{
		UserID: participant.UserID,
		Name:   participant.Name,
	}, conn.ID())
	h.logger.Info("participant left room",
		zap.Int64("itinerary_id", int64(roomID)),
		zap.String("user_id", participant.UserID))
}

func rosterOf(current *room[*lockTable]) []RosterEntry {
	members := current.ordered()
	roster := make([]RosterEntry, 0, len(members))
	for _, member := range members {
		participant := member.conn.Participant()
		roster = append(roster, RosterEntry{
			UserID:       participant.UserID,
			Name:         participant.Name,
			Email:        participant.Email,
			ConnectionID: member.conn.ID(),
			ActiveField:  current.state.activeField(member.conn.ID()),
		})
	}
	return roster
}
