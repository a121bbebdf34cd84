package collab

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ActivityChange is one add, update, or delete applied to an itinerary's
// activity list. Index is interpreted against each receiver's own list.
type ActivityChange struct {
	Action   string
	Index    *int
	Activity json.RawMessage
}

func (c ActivityChange) validate() error {
	switch c.Action {
	case ActivityAdd:
	case ActivityUpdate, ActivityDelete:
		if c.Index == nil {
			return fmt.Errorf("%w: %s requires an index", ErrInvalidAction, c.Action)
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, c.Action)
	}
	if c.Index != nil && *c.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidAction, *c.Index)
	}
	return nil
}

// PropagateFieldChange relays a field value to every other member of the room,
// attributed to the sender. The sender already applied it locally.
func (h *Hub) PropagateFieldChange(conn Conn, roomID RoomID, rawField string, value json.RawMessage) error {
	path, err := ParseFieldPath(rawField)
	if err != nil {
		return err
	}
	if len(value) == 0 {
		value = json.RawMessage("null")
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.editing.isMember(roomID, conn) {
		return ErrNotInRoom
	}

	participant := conn.Participant()
	h.editing.broadcast(roomID, EventFieldUpdate, fieldUpdatePayload{
		Field:     path.String(),
		Value:     value,
		UserID:    participant.UserID,
		UserName:  participant.Name,
		Timestamp: h.clock().UnixMilli(),
	}, conn.ID())
	return nil
}

// PropagateActivityChange relays an activity list mutation to every other member.
func (h *Hub) PropagateActivityChange(conn Conn, roomID RoomID, change ActivityChange) error {
	change.Action = strings.ToLower(strings.TrimSpace(change.Action))
	if err := change.validate(); err != nil {
		return err
	}
	if len(change.Activity) == 0 || string(change.Activity) == "null" {
		change.Activity = nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.editing.isMember(roomID, conn) {
		return ErrNotInRoom
	}

	participant := conn.Participant()
	h.editing.broadcast(roomID, EventActivityUpdate, activityUpdatePayload{
		Action:    change.Action,
		Index:     change.Index,
		Activity:  change.Activity,
		UserID:    participant.UserID,
		UserName:  participant.Name,
		Timestamp: h.clock().UnixMilli(),
	}, conn.ID())
	return nil
}
