package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/collab"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

const (
	opServiceNew = "notifications.service.new"
	opNotify     = "notifications.notify"
	opList       = "notifications.list"
	opMarkRead   = "notifications.mark_read"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	// ErrInvalidDelivery indicates a delivery without a recipient or title.
	ErrInvalidDelivery = errors.New("notifications: invalid delivery")
	// ErrNotificationNotFound indicates no notification with the id belongs to the user.
	ErrNotificationNotFound = errors.New("notifications: notification not found")
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

// UserPusher delivers a live notification to a user's open connections.
type UserPusher interface {
	PushToUser(userID string, notification collab.Notification) int
}

type ServiceConfig struct {
	Database *gorm.DB
	Pusher   UserPusher
	Logger   *zap.Logger
	Clock    func() time.Time
}

// Service stores notifications and pushes them to whoever is online.
type Service struct {
	db     *gorm.DB
	pusher UserPusher
	logger *zap.Logger
	clock  func() time.Time
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
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
		db:     cfg.Database,
		pusher: cfg.Pusher,
		logger: logger,
		clock:  clock,
	}, nil
}

// Notify stores the notification and pushes it live. The push is attempted even
// when the insert fails; the insert error is still returned.
func (s *Service) Notify(ctx context.Context, delivery Delivery) (Notification, error) {
	delivery.UserID = strings.TrimSpace(delivery.UserID)
	delivery.Title = strings.TrimSpace(delivery.Title)
	if delivery.UserID == "" || delivery.Title == "" {
		return Notification{}, ErrInvalidDelivery
	}

	row := Notification{
		UserID:    delivery.UserID,
		Type:      delivery.Type,
		Title:     delivery.Title,
		Content:   delivery.Content,
		Link:      delivery.Link,
		CreatedAt: s.clock().UTC(),
	}
	var insertErr error
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logError(opNotify, "insert_failed", err, zap.String("user_id", delivery.UserID))
		insertErr = newServiceError(opNotify, "insert_failed", err)
	}

	if s.pusher != nil {
		preview := delivery.Preview
		if preview == "" {
			preview = delivery.Content
		}
		s.pusher.PushToUser(delivery.UserID, collab.Notification{
			Type:        delivery.Type,
			Title:       delivery.Title,
			Content:     preview,
			ItineraryID: delivery.ItineraryID,
		})
	}
	return row, insertErr
}

// List returns the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, options ListOptions) ([]Notification, error) {
	limit := options.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if options.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	var rows []Notification
	if err := query.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		s.logError(opList, "query_failed", err, zap.String("user_id", userID))
		return nil, newServiceError(opList, "query_failed", err)
	}
	return rows, nil
}

// MarkRead flags one of the user's notifications as read.
func (s *Service) MarkRead(ctx context.Context, userID string, notificationID int64) error {
	result := s.db.WithContext(ctx).Model(&Notification{}).
		Where("id = ? AND user_id = ?", notificationID, userID).
		Update("is_read", true)
	if result.Error != nil {
		s.logError(opMarkRead, "update_failed", result.Error, zap.Int64("notification_id", notificationID))
		return newServiceError(opMarkRead, "update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
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
	s.logger.Error("notifications service error", attrs...)
}
