package notifications

import "time"

// Notification is a stored notification row addressed to one user.
type Notification struct {
	ID        int64     `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UserID    string    `gorm:"column:user_id;size:190;not null;index:idx_notifications_user_created,priority:1" json:"user_id"`
	Type      string    `gorm:"column:type;size:64;not null" json:"type"`
	Title     string    `gorm:"column:title;size:255;not null" json:"title"`
	Content   string    `gorm:"column:content;type:text" json:"content"`
	Link      string    `gorm:"column:link;size:512" json:"link,omitempty"`
	IsRead    bool      `gorm:"column:is_read;not null;default:false" json:"is_read"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_notifications_user_created,priority:2" json:"created_at"`
}

// TableName exposes the table backing notifications.
func (Notification) TableName() string {
	return "notifications"
}

// Delivery describes one notification to store and push. Preview is the live
// text; Content is stored and used live when Preview is blank.
type Delivery struct {
	UserID      string
	Type        string
	Title       string
	Content     string
	Preview     string
	Link        string
	ItineraryID *int64
}

// ListOptions narrows a notification listing.
type ListOptions struct {
	UnreadOnly bool
	Limit      int
}
