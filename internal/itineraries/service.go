package itineraries

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/tripsync/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrItineraryNotFound indicates there is no itinerary with the id.
	ErrItineraryNotFound = errors.New("itineraries: itinerary not found")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew    = "itineraries.service.new"
	opHasAccess     = "itineraries.has_access"
	opParticipants  = "itineraries.participants"
	opMemberIDs     = "itineraries.member_ids"
	opDestination   = "itineraries.destination"
	opAccessibleIDs = "itineraries.accessible_ids"
)

// ServiceError carries a stable operation.reason code alongside its cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service answers membership questions against the itinerary store: an itinerary's
// members are its owner plus every collaborator whose invitation was accepted.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

// HasAccess reports whether the user owns the itinerary or is an accepted collaborator.
func (s *Service) HasAccess(ctx context.Context, userID string, itineraryID ID) (bool, error) {
	var owned int64
	if err := s.db.WithContext(ctx).Model(&Itinerary{}).
		Where("id = ? AND user_id = ?", itineraryID.Int64(), userID).
		Count(&owned).Error; err != nil {
		s.logError(opHasAccess, "owner_query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return false, newServiceError(opHasAccess, "owner_query_failed", err)
	}
	if owned > 0 {
		return true, nil
	}

	var collaborating int64
	if err := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("itinerary_id = ? AND user_id = ? AND status = ?", itineraryID.Int64(), userID, CollaboratorStatusAccepted).
		Count(&collaborating).Error; err != nil {
		s.logError(opHasAccess, "collaborator_query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return false, newServiceError(opHasAccess, "collaborator_query_failed", err)
	}
	return collaborating > 0, nil
}

// MemberIDs returns the owner and accepted collaborator ids, owner first.
func (s *Service) MemberIDs(ctx context.Context, itineraryID ID) ([]string, error) {
	var itinerary Itinerary
	err := s.db.WithContext(ctx).Where("id = ?", itineraryID.Int64()).Take(&itinerary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItineraryNotFound
	}
	if err != nil {
		s.logError(opMemberIDs, "itinerary_query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return nil, newServiceError(opMemberIDs, "itinerary_query_failed", err)
	}

	var collaboratorIDs []string
	if err := s.db.WithContext(ctx).Model(&Collaborator{}).
		Where("itinerary_id = ? AND status = ?", itineraryID.Int64(), CollaboratorStatusAccepted).
		Order("id ASC").
		Pluck("user_id", &collaboratorIDs).Error; err != nil {
		s.logError(opMemberIDs, "collaborator_query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return nil, newServiceError(opMemberIDs, "collaborator_query_failed", err)
	}

	seen := map[string]struct{}{itinerary.UserID: {}}
	members := []string{itinerary.UserID}
	for _, id := range collaboratorIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}
	return members, nil
}

// Participants returns the rendered member list of the itinerary.
func (s *Service) Participants(ctx context.Context, itineraryID ID) ([]Participant, error) {
	memberIDs, err := s.MemberIDs(ctx, itineraryID)
	if err != nil {
		return nil, err
	}

	var profiles []users.Profile
	if err := s.db.WithContext(ctx).
		Where("id IN ?", memberIDs).
		Order("name ASC").
		Find(&profiles).Error; err != nil {
		s.logError(opParticipants, "query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return nil, newServiceError(opParticipants, "query_failed", err)
	}

	participants := make([]Participant, 0, len(profiles))
	for _, profile := range profiles {
		participants = append(participants, Participant{
			ID:             profile.ID,
			Name:           profile.DisplayName(),
			Email:          profile.Email,
			ProfilePicture: profile.ProfilePicture,
		})
	}
	return participants, nil
}

// Destination returns the itinerary's destination label.
func (s *Service) Destination(ctx context.Context, itineraryID ID) (string, error) {
	var itinerary Itinerary
	err := s.db.WithContext(ctx).Select("id", "destination").Where("id = ?", itineraryID.Int64()).Take(&itinerary).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrItineraryNotFound
	}
	if err != nil {
		s.logError(opDestination, "query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return "", newServiceError(opDestination, "query_failed", err)
	}
	return itinerary.Destination, nil
}

// AccessibleIDs lists every itinerary the user owns or collaborates on.
func (s *Service) AccessibleIDs(ctx context.Context, userID string) ([]ID, error) {
	var raw []int64
	collaborating := s.db.WithContext(ctx).Model(&Collaborator{}).
		Select("itinerary_id").
		Where("user_id = ? AND status = ?", userID, CollaboratorStatusAccepted)
	if err := s.db.WithContext(ctx).Model(&Itinerary{}).
		Where("user_id = ? OR id IN (?)", userID, collaborating).
		Order("id ASC").
		Pluck("id", &raw).Error; err != nil {
		s.logError(opAccessibleIDs, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opAccessibleIDs, "query_failed", err)
	}
	ids := make([]ID, 0, len(raw))
	for _, value := range raw {
		ids = append(ids, ID(value))
	}
	return ids, nil
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.logger.Error("itineraries service error", attrs...)
}
