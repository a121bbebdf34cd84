package itineraries

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CollaboratorStatus enumerates invitation states of a collaborator row.
type CollaboratorStatus string

const (
	CollaboratorStatusPending  CollaboratorStatus = "pending"
	CollaboratorStatusAccepted CollaboratorStatus = "accepted"
	CollaboratorStatusRejected CollaboratorStatus = "rejected"
)

// ErrInvalidItineraryID indicates the identifier is not a positive integer.
var ErrInvalidItineraryID = errors.New("itineraries: invalid itinerary id")

// ID identifies an itinerary. It doubles as the key of its editing and chat rooms.
type ID int64

// ParseID validates a textual identifier such as a path parameter.
func ParseID(raw string) (ID, error) {
	value, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidItineraryID, raw)
	}
	return NewID(value)
}

// NewID validates a numeric identifier.
func NewID(value int64) (ID, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidItineraryID, value)
	}
	return ID(value), nil
}

// Int64 exposes the raw identifier.
func (id ID) Int64() int64 {
	return int64(id)
}

// String renders the identifier in base 10.
func (id ID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// Itinerary is the slice of the itinerary record this service reads.
type Itinerary struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	UserID      string    `gorm:"column:user_id;size:190;not null;index"`
	Destination string    `gorm:"column:destination;size:255"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Itinerary) TableName() string {
	return "itineraries"
}

// Collaborator links a user to an itinerary they were invited to.
type Collaborator struct {
	ID          int64              `gorm:"column:id;primaryKey;autoIncrement"`
	ItineraryID int64              `gorm:"column:itinerary_id;not null;index:idx_collaborators_itinerary_user,priority:1"`
	UserID      string             `gorm:"column:user_id;size:190;not null;index:idx_collaborators_itinerary_user,priority:2"`
	Permission  string             `gorm:"column:permission;size:16;not null;default:'edit'"`
	Status      CollaboratorStatus `gorm:"column:status;size:16;not null;default:'pending'"`
	InvitedBy   string             `gorm:"column:invited_by;size:190"`
	InvitedAt   time.Time          `gorm:"column:invited_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (Collaborator) TableName() string {
	return "itinerary_collaborators"
}

// Participant is a denormalized member snapshot used for rendering chat rosters.
type Participant struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Email          string `json:"email"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}
