package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/tripsync/internal/chat"
	"github.com/MarcoPoloResearchLab/tripsync/internal/itineraries"
	"github.com/MarcoPoloResearchLab/tripsync/internal/notifications"
	"github.com/gin-gonic/gin"
)

type sendMessagePayload struct {
	Message string `json:"message"`
}

type sendMessageResponse struct {
	Message     string           `json:"message"`
	ChatMessage chat.MessageView `json:"chatMessage"`
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	itineraryID, err := itineraries.ParseID(c.Param("itineraryId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_itinerary_id"})
		return
	}
	limit, err := optionalInt(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}
	before, err := optionalInt(c.Query("before"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_before"})
		return
	}

	page, err := h.chat.List(c.Request.Context(), chat.ListRequest{
		ItineraryID: itineraryID,
		RequesterID: c.GetString(userIDContextKey),
		Limit:       int(limit),
		Before:      before,
	})
	if err != nil {
		h.respondError(c, "chat.list", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleSendMessage(c *gin.Context) {
	itineraryID, err := itineraries.ParseID(c.Param("itineraryId"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_itinerary_id"})
		return
	}
	var payload sendMessagePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	view, err := h.chat.Send(c.Request.Context(), chat.SendRequest{
		ItineraryID: itineraryID,
		AuthorID:    c.GetString(userIDContextKey),
		Body:        payload.Message,
	})
	if err != nil {
		h.respondError(c, "chat.send", err)
		return
	}
	c.JSON(http.StatusCreated, sendMessageResponse{
		Message:     "Message sent successfully",
		ChatMessage: view,
	})
}

func (h *httpHandler) handleDeleteMessage(c *gin.Context) {
	messageID, err := strconv.ParseInt(c.Param("messageId"), 10, 64)
	if err != nil || messageID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_message_id"})
		return
	}
	if err := h.chat.Delete(c.Request.Context(), messageID, c.GetString(userIDContextKey)); err != nil {
		h.respondError(c, "chat.delete", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

func (h *httpHandler) handleUnreadCounts(c *gin.Context) {
	counts, err := h.chat.UnreadCounts(c.Request.Context(), c.GetString(userIDContextKey))
	if err != nil {
		h.respondError(c, "chat.unread_counts", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"unreadChats": counts})
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	limit, err := optionalInt(c.Query("limit"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit"})
		return
	}
	unreadOnly, _ := strconv.ParseBool(strings.TrimSpace(c.Query("unread")))

	rows, err := h.notifications.List(c.Request.Context(), c.GetString(userIDContextKey), notifications.ListOptions{
		UnreadOnly: unreadOnly,
		Limit:      int(limit),
	})
	if err != nil {
		h.respondError(c, "notifications.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}

func (h *httpHandler) handleMarkNotificationRead(c *gin.Context) {
	notificationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || notificationID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_notification_id"})
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), c.GetString(userIDContextKey), notificationID); err != nil {
		h.respondError(c, "notifications.mark_read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification marked as read"})
}

func optionalInt(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 0 {
		return 0, strconv.ErrSyntax
	}
	return value, nil
}
