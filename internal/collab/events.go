package collab

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Inbound intents sent by clients.
const (
	EventJoinRoom       = "join-room"
	EventLeaveRoom      = "leave-room"
	EventFieldFocus     = "field-focus"
	EventFieldBlur      = "field-blur"
	EventFieldChange    = "field-change"
	EventActivityChange = "activity-change"
	EventJoinChat       = "join-chat"
	EventLeaveChat      = "leave-chat"
	EventChatTyping     = "chat-typing"
)

// Outbound events pushed to clients.
const (
	EventCurrentEditors     = "current-editors"
	EventParticipantJoined  = "participant-joined"
	EventParticipantLeft    = "participant-left"
	EventFieldLocked        = "field-locked"
	EventFieldUnlocked      = "field-unlocked"
	EventFieldUpdate        = "field-update"
	EventActivityUpdate     = "activity-update"
	EventChatParticipants   = "chat-participants"
	EventChatUserJoined     = "chat-user-joined"
	EventChatUserLeft       = "chat-user-left"
	EventUserTyping         = "user-typing"
	EventChatMessage        = "chat-message"
	EventChatMessageDeleted = "chat-message-deleted"
	EventNotification       = "notification"
	EventError              = "error"
)

// Activity actions.
const (
	ActivityAdd    = "add"
	ActivityUpdate = "update"
	ActivityDelete = "delete"
)

var (
	ErrMalformedFrame = errors.New("collab: malformed frame")
	ErrUnknownEvent   = errors.New("collab: unknown event")
	ErrInvalidRoom    = errors.New("collab: invalid itinerary id")
	ErrNotInRoom      = errors.New("collab: not joined to room")
	ErrInvalidField   = errors.New("collab: invalid field")
	ErrInvalidAction  = errors.New("collab: invalid activity action")
	ErrAccessDenied   = errors.New("collab: access denied")
)

// RoomID identifies an editing or chat room by its itinerary id.
type RoomID int64

// UnmarshalJSON accepts the id as a JSON number or a numeric string.
func (id *RoomID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*id = 0
		return nil
	}
	raw := string(trimmed)
	if strings.HasPrefix(raw, `"`) {
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRoom, err)
		}
		raw = strings.TrimSpace(text)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidRoom, raw)
	}
	*id = RoomID(value)
	return nil
}

func (id RoomID) valid() bool {
	return id > 0
}

// Frame is the envelope of every message on the socket, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: data})
}

type roomRequest struct {
	ItineraryID RoomID `json:"itineraryId"`
}

type fieldRequest struct {
	ItineraryID RoomID `json:"itineraryId"`
	Field       string `json:"field"`
}

type fieldChangeRequest struct {
	ItineraryID RoomID          `json:"itineraryId"`
	Field       string          `json:"field"`
	Value       json.RawMessage `json:"value"`
}

type activityChangeRequest struct {
	ItineraryID RoomID          `json:"itineraryId"`
	Action      string          `json:"action"`
	Index       *int            `json:"index,omitempty"`
	Activity    json.RawMessage `json:"activity,omitempty"`
}

type typingRequest struct {
	ItineraryID RoomID `json:"itineraryId"`
	IsTyping    bool   `json:"isTyping"`
}

// RosterEntry describes one connection present in an editing room.
type RosterEntry struct {
	UserID       string `json:"userId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ConnectionID string `json:"connectionId"`
	ActiveField  string `json:"activeField,omitempty"`
}

// ChatRosterEntry describes one connection present in a chat room.
type ChatRosterEntry struct {
	UserID    string `json:"userId"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsTyping  bool   `json:"isTyping"`
}

type participantJoinedPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
}

type participantLeftPayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

type fieldLockedPayload struct {
	Field    string `json:"field"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type fieldUnlockedPayload struct {
	Field  string `json:"field"`
	UserID string `json:"userId"`
}

type fieldUpdatePayload struct {
	Field     string          `json:"field"`
	Value     json.RawMessage `json:"value"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Timestamp int64           `json:"timestamp"`
}

type activityUpdatePayload struct {
	Action    string          `json:"action"`
	Index     *int            `json:"index,omitempty"`
	Activity  json.RawMessage `json:"activity,omitempty"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Timestamp int64           `json:"timestamp"`
}

type userTypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	IsTyping bool   `json:"isTyping"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// Notification is the envelope pushed to one user's live connections.
type Notification struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	ItineraryID *int64 `json:"itineraryId,omitempty"`
}

// MessageDeleted is broadcast to a chat room when a message is removed.
type MessageDeleted struct {
	MessageID   int64 `json:"messageId"`
	ItineraryID int64 `json:"itineraryId"`
}
