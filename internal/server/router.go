package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/auth"
	"github.com/MarcoPoloResearchLab/tripsync/internal/chat"
	"github.com/MarcoPoloResearchLab/tripsync/internal/collab"
	"github.com/MarcoPoloResearchLab/tripsync/internal/itineraries"
	"github.com/MarcoPoloResearchLab/tripsync/internal/notifications"
	"github.com/MarcoPoloResearchLab/tripsync/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey   = "tripsync_user_id"
	identityContextKey = "tripsync_identity"
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingHub              = errors.New("collaboration hub dependency required")
	errMissingChatService      = errors.New("chat service dependency required")
	errMissingNotifications    = errors.New("notification service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// SessionValidator authenticates bearer tokens and websocket upgrade requests.
type SessionValidator interface {
	ValidateToken(token string) (auth.SessionClaims, error)
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// ProfileToucher records the profile behind each authenticated connection.
type ProfileToucher interface {
	Touch(ctx context.Context, identity auth.Identity) (users.Profile, error)
}

type Dependencies struct {
	SessionValidator SessionValidator
	Hub              *collab.Hub
	ChatService      *chat.Service
	Notifications    *notifications.Service
	Profiles         ProfileToucher
	Logger           *zap.Logger
	AllowedOrigins   []string
	Realtime         RealtimeConfig
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Hub == nil {
		return nil, errMissingHub
	}
	if deps.ChatService == nil {
		return nil, errMissingChatService
	}
	if deps.Notifications == nil {
		return nil, errMissingNotifications
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:      deps.SessionValidator,
		hub:           deps.Hub,
		chat:          deps.ChatService,
		notifications: deps.Notifications,
		profiles:      deps.Profiles,
		logger:        logger,
		realtime:      deps.Realtime.withDefaults(),
		origins:       deps.AllowedOrigins,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/ws", handler.handleWebsocket)

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/chat/unread/counts", handler.handleUnreadCounts)
	protected.GET("/chat/:itineraryId", handler.handleListMessages)
	protected.POST("/chat/:itineraryId", handler.handleSendMessage)
	protected.DELETE("/chat/message/:messageId", handler.handleDeleteMessage)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.POST("/notifications/:id/read", handler.handleMarkNotificationRead)

	return router, nil
}

type httpHandler struct {
	sessions      SessionValidator
	hub           *collab.Hub
	chat          *chat.Service
	notifications *notifications.Service
	profiles      ProfileToucher
	logger        *zap.Logger
	realtime      RealtimeConfig
	origins       []string
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if allowsAnyOrigin(allowedOrigins) {
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = allowedOrigins
	}
	return cors.New(config)
}

func allowsAnyOrigin(allowedOrigins []string) bool {
	if len(allowedOrigins) == 0 {
		return true
	}
	for _, origin := range allowedOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.hub.ConnectionCount(),
		"rooms":       h.hub.RoomCount(),
		"chatRooms":   h.hub.ChatRoomCount(),
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.sessions.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	identity := claims.Identity()
	c.Set(userIDContextKey, identity.UserID)
	c.Set(identityContextKey, identity)
	c.Next()
}

func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

// respondError maps service errors onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Message cannot be empty"})
	case errors.Is(err, chat.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to this itinerary"})
	case errors.Is(err, chat.ErrNotMessageOwner):
		c.JSON(http.StatusForbidden, gin.H{"error": "Cannot delete this message"})
	case errors.Is(err, chat.ErrMessageNotFound),
		errors.Is(err, notifications.ErrNotificationNotFound),
		errors.Is(err, itineraries.ErrItineraryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	default:
		code := operation + ".failed"
		var coded interface{ Code() string }
		if errors.As(err, &coded) {
			code = coded.Code()
		}
		h.logger.Error("request failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": code})
	}
}
