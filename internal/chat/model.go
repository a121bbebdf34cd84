package chat

import (
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/itineraries"
)

// Message is one persisted chat line of an itinerary.
type Message struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	ItineraryID int64     `gorm:"column:itinerary_id;not null;index:idx_chats_itinerary_created,priority:1"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Body        string    `gorm:"column:message;type:text;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index:idx_chats_itinerary_created,priority:2"`
}

// TableName exposes the table backing chat messages.
func (Message) TableName() string {
	return "collaboration_chats"
}

// MessageView is a message together with a snapshot of its author.
type MessageView struct {
	ID                 int64     `json:"id"`
	ItineraryID        int64     `json:"itinerary_id"`
	UserID             string    `json:"user_id"`
	Message            string    `json:"message"`
	CreatedAt          time.Time `json:"created_at"`
	UserName           string    `json:"user_name"`
	UserEmail          string    `json:"user_email"`
	UserProfilePicture *string   `json:"user_profile_picture"`
}

// Page is one window of an itinerary's chat history, oldest first.
type Page struct {
	Messages     []MessageView             `json:"messages"`
	Participants []itineraries.Participant `json:"participants"`
	HasMore      bool                      `json:"hasMore"`
}

// UnreadCount is the number of messages from others since the user last wrote.
type UnreadCount struct {
	ItineraryID int64  `json:"itinerary_id"`
	Destination string `json:"destination"`
	UnreadCount int64  `json:"unread_count"`
}

// SendRequest carries a new chat message.
type SendRequest struct {
	ItineraryID itineraries.ID
	AuthorID    string
	Body        string
}

// ListRequest selects a window of history. Before, when positive, excludes
// messages with an id at or above it.
type ListRequest struct {
	ItineraryID itineraries.ID
	RequesterID string
	Limit       int
	Before      int64
}
