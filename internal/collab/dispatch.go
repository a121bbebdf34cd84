package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// AccessChecker decides whether a user may join the rooms of an itinerary.
type AccessChecker interface {
	CanJoin(ctx context.Context, userID string, roomID RoomID) (bool, error)
}

// AccessCheckerFunc adapts a function to AccessChecker.
type AccessCheckerFunc func(ctx context.Context, userID string, roomID RoomID) (bool, error)

// CanJoin calls f.
func (f AccessCheckerFunc) CanJoin(ctx context.Context, userID string, roomID RoomID) (bool, error) {
	return f(ctx, userID, roomID)
}

// Dispatch decodes one inbound frame and applies it. Any rejection is reported
// to the sending connection as an error event and returned to the caller; no
// other connection observes it.
func (h *Hub) Dispatch(ctx context.Context, conn Conn, raw []byte) error {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || frame.Event == "" {
		return h.reject(conn, "", ErrMalformedFrame)
	}

	err := h.route(ctx, conn, frame)
	if err != nil {
		return h.reject(conn, frame.Event, err)
	}
	return nil
}

func (h *Hub) route(ctx context.Context, conn Conn, frame Frame) error {
	switch frame.Event {
	case EventJoinRoom:
		var request roomRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		if err := h.authorize(ctx, conn, request.ItineraryID); err != nil {
			return err
		}
		_, err := h.JoinRoom(conn, request.ItineraryID)
		return err
	case EventLeaveRoom:
		var request roomRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		h.LeaveRoom(conn, request.ItineraryID)
		return nil
	case EventFieldFocus:
		var request fieldRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		return h.FocusField(conn, request.ItineraryID, request.Field)
	case EventFieldBlur:
		var request fieldRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		return h.BlurField(conn, request.ItineraryID, request.Field)
	case EventFieldChange:
		var request fieldChangeRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		return h.PropagateFieldChange(conn, request.ItineraryID, request.Field, request.Value)
	case EventActivityChange:
		var request activityChangeRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		return h.PropagateActivityChange(conn, request.ItineraryID, ActivityChange{
			Action:   request.Action,
			Index:    request.Index,
			Activity: request.Activity,
		})
	case EventJoinChat:
		var request roomRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		if err := h.authorize(ctx, conn, request.ItineraryID); err != nil {
			return err
		}
		_, err := h.JoinChat(conn, request.ItineraryID)
		return err
	case EventLeaveChat:
		var request roomRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		h.LeaveChat(conn, request.ItineraryID)
		return nil
	case EventChatTyping:
		var request typingRequest
		if err := decodeData(frame.Data, &request); err != nil {
			return err
		}
		return h.SetTyping(conn, request.ItineraryID, request.IsTyping)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

// authorize runs outside the hub lock because the checker may hit the database.
func (h *Hub) authorize(ctx context.Context, conn Conn, roomID RoomID) error {
	if !roomID.valid() {
		return ErrInvalidRoom
	}
	if h.access == nil {
		return nil
	}
	userID := conn.Participant().UserID
	allowed, err := h.access.CanJoin(ctx, userID, roomID)
	if err != nil {
		h.logger.Error("access check failed",
			zap.Int64("itinerary_id", int64(roomID)),
			zap.String("user_id", userID),
			zap.Error(err))
		return fmt.Errorf("%w: access check failed", ErrAccessDenied)
	}
	if !allowed {
		return ErrAccessDenied
	}
	return nil
}

func (h *Hub) reject(conn Conn, event string, err error) error {
	sendTo(h.logger, conn, EventError, errorPayload{Message: clientMessage(err)})
	h.logger.Debug("rejected realtime intent",
		zap.String("event", event),
		zap.String("connection_id", conn.ID()),
		zap.String("user_id", conn.Participant().UserID),
		zap.Error(err))
	return err
}

func decodeData(data json.RawMessage, target interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: missing data", ErrMalformedFrame)
	}
	if err := json.Unmarshal(data, target); err != nil {
		if errors.Is(err, ErrInvalidRoom) {
			return ErrInvalidRoom
		}
		return fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	return nil
}

func clientMessage(err error) string {
	switch {
	case errors.Is(err, ErrMalformedFrame):
		return "malformed message"
	case errors.Is(err, ErrUnknownEvent):
		return "unknown event"
	case errors.Is(err, ErrInvalidRoom):
		return "invalid itinerary id"
	case errors.Is(err, ErrNotInRoom):
		return "not joined to this itinerary"
	case errors.Is(err, ErrInvalidField):
		return "invalid field"
	case errors.Is(err, ErrInvalidAction):
		return "invalid activity action"
	case errors.Is(err, ErrAccessDenied):
		return "access denied"
	default:
		return "request failed"
	}
}
