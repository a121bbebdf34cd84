package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/collab"
	"github.com/MarcoPoloResearchLab/tripsync/internal/itineraries"
	"github.com/MarcoPoloResearchLab/tripsync/internal/notifications"
	"github.com/MarcoPoloResearchLab/tripsync/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize        = 50
	maxPageSize            = 200
	notificationTypeChat   = "chat"
	pushPreviewRunes       = 50
	storedPreviewRunes     = 100
	fallbackDestination    = "your itinerary"
	fallbackAuthorName     = "User"
	notificationLinkFormat = "/itinerary/%d/chat"
)

const (
	opServiceNew   = "chat.service.new"
	opSend         = "chat.send"
	opDelete       = "chat.delete"
	opList         = "chat.list"
	opUnreadCounts = "chat.unread_counts"
	opNotify       = "chat.notify"
)

var (
	errMissingDatabase  = errors.New("database handle is required")
	errMissingDirectory = errors.New("itinerary directory is required")

	// ErrEmptyMessage indicates a message body that is blank after trimming.
	ErrEmptyMessage = errors.New("chat: message cannot be empty")
	// ErrAccessDenied indicates the user is neither owner nor accepted collaborator.
	ErrAccessDenied = errors.New("chat: access denied to this itinerary")
	// ErrMessageNotFound indicates there is no message with the id.
	ErrMessageNotFound = errors.New("chat: message not found")
	// ErrNotMessageOwner indicates the requester did not write the message.
	ErrNotMessageOwner = errors.New("chat: cannot delete this message")
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

// Broadcaster fans an event out to everyone in an itinerary's chat room.
type Broadcaster interface {
	BroadcastChat(itineraryID int64, event string, payload interface{})
}

// Notifier stores and pushes a notification to one user.
type Notifier interface {
	Notify(ctx context.Context, delivery notifications.Delivery) (notifications.Notification, error)
}

// ItineraryDirectory answers access and membership questions.
type ItineraryDirectory interface {
	HasAccess(ctx context.Context, userID string, itineraryID itineraries.ID) (bool, error)
	MemberIDs(ctx context.Context, itineraryID itineraries.ID) ([]string, error)
	Participants(ctx context.Context, itineraryID itineraries.ID) ([]itineraries.Participant, error)
	Destination(ctx context.Context, itineraryID itineraries.ID) (string, error)
	AccessibleIDs(ctx context.Context, userID string) ([]itineraries.ID, error)
}

// ProfileLookup resolves a user id to its stored profile.
type ProfileLookup interface {
	Lookup(ctx context.Context, userID string) (users.Profile, error)
}

type ServiceConfig struct {
	Database    *gorm.DB
	Itineraries ItineraryDirectory
	Profiles    ProfileLookup
	Broadcaster Broadcaster
	Notifier    Notifier
	Logger      *zap.Logger
	Clock       func() time.Time
}

// Service persists chat messages and fans them out to the chat room.
type Service struct {
	db          *gorm.DB
	itineraries ItineraryDirectory
	profiles    ProfileLookup
	broadcaster Broadcaster
	notifier    Notifier
	logger      *zap.Logger
	clock       func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}
	if cfg.Itineraries == nil {
		return nil, newServiceError(opServiceNew, "missing_directory", errMissingDirectory)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:          cfg.Database,
		itineraries: cfg.Itineraries,
		profiles:    cfg.Profiles,
		broadcaster: cfg.Broadcaster,
		notifier:    cfg.Notifier,
		logger:      logger,
		clock:       clock,
	}, nil
}

// Send stores the message, broadcasts it to the chat room including the author,
// and then notifies the other members. Notification failures never fail the send.
func (s *Service) Send(ctx context.Context, request SendRequest) (MessageView, error) {
	body := strings.TrimSpace(request.Body)
	if body == "" {
		return MessageView{}, ErrEmptyMessage
	}
	if err := s.requireAccess(ctx, opSend, request.AuthorID, request.ItineraryID); err != nil {
		return MessageView{}, err
	}

	message := Message{
		ItineraryID: request.ItineraryID.Int64(),
		UserID:      request.AuthorID,
		Body:        body,
		CreatedAt:   s.clock().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&message).Error; err != nil {
		s.logError(opSend, "insert_failed", err, zap.Int64("itinerary_id", message.ItineraryID))
		return MessageView{}, newServiceError(opSend, "insert_failed", err)
	}

	author := s.author(ctx, request.AuthorID)
	view := newMessageView(message, author)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastChat(message.ItineraryID, collab.EventChatMessage, view)
	}
	s.notifyMembers(ctx, request.ItineraryID, author, body)
	return view, nil
}

// Delete removes a message written by the requester and tells the chat room.
func (s *Service) Delete(ctx context.Context, messageID int64, requesterID string) error {
	var message Message
	err := s.db.WithContext(ctx).Where("id = ?", messageID).Take(&message).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMessageNotFound
	}
	if err != nil {
		s.logError(opDelete, "query_failed", err, zap.Int64("message_id", messageID))
		return newServiceError(opDelete, "query_failed", err)
	}
	if message.UserID != requesterID {
		return ErrNotMessageOwner
	}

	if err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", messageID, requesterID).Delete(&Message{}).Error; err != nil {
		s.logError(opDelete, "delete_failed", err, zap.Int64("message_id", messageID))
		return newServiceError(opDelete, "delete_failed", err)
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastChat(message.ItineraryID, collab.EventChatMessageDeleted, collab.MessageDeleted{
			MessageID:   message.ID,
			ItineraryID: message.ItineraryID,
		})
	}
	return nil
}

// List returns up to Limit of the newest messages older than Before, in
// chronological order, with the itinerary's participants.
func (s *Service) List(ctx context.Context, request ListRequest) (Page, error) {
	if err := s.requireAccess(ctx, opList, request.RequesterID, request.ItineraryID); err != nil {
		return Page{}, err
	}
	limit := request.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	query := s.db.WithContext(ctx).Where("itinerary_id = ?", request.ItineraryID.Int64())
	if request.Before > 0 {
		query = query.Where("id < ?", request.Before)
	}
	var messages []Message
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.Int64("itinerary_id", request.ItineraryID.Int64()))
		return Page{}, newServiceError(opList, "query_failed", err)
	}

	authors, err := s.authors(ctx, messages)
	if err != nil {
		s.logError(opList, "author_query_failed", err, zap.Int64("itinerary_id", request.ItineraryID.Int64()))
		return Page{}, newServiceError(opList, "author_query_failed", err)
	}
	views := make([]MessageView, 0, len(messages))
	for index := len(messages) - 1; index >= 0; index-- {
		views = append(views, newMessageView(messages[index], authors[messages[index].UserID]))
	}

	participants, err := s.itineraries.Participants(ctx, request.ItineraryID)
	if err != nil {
		return Page{}, err
	}
	return Page{
		Messages:     views,
		Participants: participants,
		HasMore:      len(messages) == limit,
	}, nil
}

// UnreadCounts reports, per accessible itinerary, the messages other members
// wrote after the user's own latest message. Itineraries with nothing unread are
// left out.
func (s *Service) UnreadCounts(ctx context.Context, userID string) ([]UnreadCount, error) {
	itineraryIDs, err := s.itineraries.AccessibleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	counts := make([]UnreadCount, 0)
	for _, itineraryID := range itineraryIDs {
		query := s.db.WithContext(ctx).Model(&Message{}).
			Where("itinerary_id = ? AND user_id <> ?", itineraryID.Int64(), userID)

		var latestOwn Message
		err := s.db.WithContext(ctx).
			Where("itinerary_id = ? AND user_id = ?", itineraryID.Int64(), userID).
			Order("created_at DESC").
			Take(&latestOwn).Error
		switch {
		case err == nil:
			query = query.Where("created_at > ?", latestOwn.CreatedAt)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			s.logError(opUnreadCounts, "latest_query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
			return nil, newServiceError(opUnreadCounts, "latest_query_failed", err)
		}

		var unread int64
		if err := query.Count(&unread).Error; err != nil {
			s.logError(opUnreadCounts, "count_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
			return nil, newServiceError(opUnreadCounts, "count_failed", err)
		}
		if unread == 0 {
			continue
		}
		destination, err := s.itineraries.Destination(ctx, itineraryID)
		if err != nil {
			return nil, err
		}
		counts = append(counts, UnreadCount{
			ItineraryID: itineraryID.Int64(),
			Destination: destination,
			UnreadCount: unread,
		})
	}
	return counts, nil
}

func (s *Service) requireAccess(ctx context.Context, operation, userID string, itineraryID itineraries.ID) error {
	allowed, err := s.itineraries.HasAccess(ctx, userID, itineraryID)
	if err != nil {
		s.logger.Debug("access check failed",
			zap.String("operation", operation),
			zap.Int64("itinerary_id", itineraryID.Int64()),
			zap.Error(err))
		return err
	}
	if !allowed {
		return ErrAccessDenied
	}
	return nil
}

func (s *Service) author(ctx context.Context, userID string) users.Profile {
	fallback := users.Profile{ID: userID, Name: fallbackAuthorName}
	if s.profiles == nil {
		return fallback
	}
	profile, err := s.profiles.Lookup(ctx, userID)
	if err != nil {
		if !errors.Is(err, users.ErrProfileNotFound) {
			s.logger.Warn("author lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return fallback
	}
	return profile
}

func (s *Service) authors(ctx context.Context, messages []Message) (map[string]users.Profile, error) {
	ids := make([]string, 0, len(messages))
	seen := make(map[string]struct{}, len(messages))
	for _, message := range messages {
		if _, ok := seen[message.UserID]; ok {
			continue
		}
		seen[message.UserID] = struct{}{}
		ids = append(ids, message.UserID)
	}
	result := make(map[string]users.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var profiles []users.Profile
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&profiles).Error; err != nil {
		return nil, err
	}
	for _, profile := range profiles {
		result[profile.ID] = profile
	}
	for _, id := range ids {
		if _, ok := result[id]; !ok {
			result[id] = users.Profile{ID: id, Name: fallbackAuthorName}
		}
	}
	return result, nil
}

func (s *Service) notifyMembers(ctx context.Context, itineraryID itineraries.ID, author users.Profile, body string) {
	if s.notifier == nil {
		return
	}
	memberIDs, err := s.itineraries.MemberIDs(ctx, itineraryID)
	if err != nil {
		s.logError(opNotify, "members_query_failed", err, zap.Int64("itinerary_id", itineraryID.Int64()))
		return
	}
	destination, err := s.itineraries.Destination(ctx, itineraryID)
	if err != nil || strings.TrimSpace(destination) == "" {
		destination = fallbackDestination
	}

	id := itineraryID.Int64()
	name := author.DisplayName()
	for _, memberID := range memberIDs {
		if memberID == author.ID {
			continue
		}
		_, err := s.notifier.Notify(ctx, notifications.Delivery{
			UserID:      memberID,
			Type:        notificationTypeChat,
			Title:       fmt.Sprintf("New message in %s", destination),
			Content:     fmt.Sprintf("%s: %s", name, truncateRunes(body, storedPreviewRunes)),
			Preview:     fmt.Sprintf("%s: %s...", name, truncateRunes(body, pushPreviewRunes)),
			Link:        fmt.Sprintf(notificationLinkFormat, id),
			ItineraryID: &id,
		})
		if err != nil {
			s.logger.Warn("chat notification failed",
				zap.Int64("itinerary_id", id),
				zap.String("user_id", memberID),
				zap.Error(err))
		}
	}
}

func newMessageView(message Message, author users.Profile) MessageView {
	view := MessageView{
		ID:          message.ID,
		ItineraryID: message.ItineraryID,
		UserID:      message.UserID,
		Message:     message.Body,
		CreatedAt:   message.CreatedAt,
		UserName:    author.DisplayName(),
		UserEmail:   author.Email,
	}
	if author.ProfilePicture != "" {
		picture := author.ProfilePicture
		view.UserProfilePicture = &picture
	}
	return view
}

func truncateRunes(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit])
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
	s.logger.Error("chat service error", attrs...)
}
