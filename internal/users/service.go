package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/auth"
	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/gorm"
)

var (
	// ErrInvalidIdentity indicates the identity did not carry a usable user id.
	ErrInvalidIdentity = errors.New("users: invalid identity")
	// ErrProfileNotFound indicates no profile row exists for the id.
	ErrProfileNotFound = errors.New("users: profile not found")
)

const defaultCacheSize = 4096

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	// CacheSize bounds the number of profiles kept in memory.
	CacheSize int
}

// Service keeps the users table in step with the identities seen on authenticated connections.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache *lru.Cache[string, Profile]
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, Profile](size)
	if err != nil {
		return nil, fmt.Errorf("users: profile cache: %w", err)
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: cache,
	}, nil
}

// Touch creates the profile on first sight, refreshes changed claim fields, and
// returns the stored profile.
func (s *Service) Touch(ctx context.Context, identity auth.Identity) (Profile, error) {
	userID := normalize(identity.UserID)
	if userID == "" {
		return Profile{}, ErrInvalidIdentity
	}

	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&profile).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		profile = Profile{
			ID:             userID,
			Name:           normalize(identity.DisplayName),
			Email:          normalize(identity.Email),
			ProfilePicture: normalize(identity.AvatarURL),
			LastSeenAt:     s.now().UTC(),
		}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return Profile{}, err
		}
	case err != nil:
		return Profile{}, err
	default:
		updates := map[string]interface{}{"last_seen_at": s.now().UTC()}
		if name := normalize(identity.DisplayName); name != "" && name != profile.Name {
			updates["name"] = name
			profile.Name = name
		}
		if email := normalize(identity.Email); email != "" && email != profile.Email {
			updates["email"] = email
			profile.Email = email
		}
		if avatar := normalize(identity.AvatarURL); avatar != "" && avatar != profile.ProfilePicture {
			updates["profile_picture"] = avatar
			profile.ProfilePicture = avatar
		}
		if err := s.db.WithContext(ctx).Model(&Profile{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return Profile{}, err
		}
	}

	s.cache.Add(userID, profile)
	return profile, nil
}

// Lookup returns the profile for the user id, served from cache when possible.
func (s *Service) Lookup(ctx context.Context, userID string) (Profile, error) {
	userID = normalize(userID)
	if profile, ok := s.cache.Get(userID); ok {
		return profile, nil
	}
	var profile Profile
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&profile).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Profile{}, ErrProfileNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	s.cache.Add(userID, profile)
	return profile, nil
}
