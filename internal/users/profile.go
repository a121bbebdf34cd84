package users

import (
	"strings"
	"time"
)

// Profile is the locally cached projection of an account from the external user store.
type Profile struct {
	ID             string    `gorm:"column:id;primaryKey;size:190;not null"`
	Name           string    `gorm:"column:name;size:320"`
	Email          string    `gorm:"column:email;size:320;index"`
	ProfilePicture string    `gorm:"column:profile_picture;size:512"`
	LastSeenAt     time.Time `gorm:"column:last_seen_at"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "users"
}

// DisplayName returns the name to show next to the user's activity.
func (p Profile) DisplayName() string {
	if name := normalize(p.Name); name != "" {
		return name
	}
	if email := normalize(p.Email); email != "" {
		return email
	}
	return "User"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
