package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/tripsync/internal/collab"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultPingInterval    = 54 * time.Second
	defaultPongWait        = 60 * time.Second
	defaultWriteWait       = 10 * time.Second
	defaultSendBuffer      = 256
	defaultMaxMessageBytes = 64 * 1024
	socketReadBuffer       = 4096
	socketWriteBuffer      = 4096
)

var (
	errSocketClosed  = errors.New("socket closed")
	errSendQueueFull = errors.New("send queue full")
)

// RealtimeConfig tunes websocket liveness and buffering.
type RealtimeConfig struct {
	PingInterval    time.Duration
	PongWait        time.Duration
	WriteWait       time.Duration
	SendBuffer      int
	MaxMessageBytes int64
}

func (c RealtimeConfig) withDefaults() RealtimeConfig {
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = defaultMaxMessageBytes
	}
	return c
}

// socketClient is one websocket connection registered with the hub. Frames are
// queued on send and written by a single writer goroutine.
type socketClient struct {
	id          string
	participant collab.Participant
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	hub         *collab.Hub
	config      RealtimeConfig
	logger      *zap.Logger
}

func (c *socketClient) ID() string {
	return c.id
}

func (c *socketClient) Participant() collab.Participant {
	return c.participant
}

func (c *socketClient) Send(frame []byte) error {
	select {
	case <-c.done:
		return errSocketClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return errSendQueueFull
	}
}

func (c *socketClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

func (c *socketClient) readPump(ctx context.Context) {
	defer func() {
		c.hub.Disconnect(c)
		c.close()
	}()

	c.conn.SetReadLimit(c.config.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Info("websocket closed unexpectedly",
					zap.String("connection_id", c.id),
					zap.String("user_id", c.participant.UserID),
					zap.Error(err))
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		// Rejections were already sent to this client as error events.
		_ = c.hub.Dispatch(ctx, c, message)
	}
}

func (c *socketClient) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("websocket write failed", zap.String("connection_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (h *httpHandler) handleWebsocket(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	identity := claims.Identity()

	participant := collab.Participant{
		UserID:    identity.UserID,
		Name:      identity.DisplayName,
		Email:     identity.Email,
		AvatarURL: identity.AvatarURL,
	}
	if h.profiles != nil {
		profile, touchErr := h.profiles.Touch(c.Request.Context(), identity)
		if touchErr != nil {
			h.logger.Warn("profile refresh failed", zap.String("user_id", identity.UserID), zap.Error(touchErr))
		} else {
			participant.Name = profile.DisplayName()
			participant.Email = profile.Email
			participant.AvatarURL = profile.ProfilePicture
		}
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  socketReadBuffer,
		WriteBufferSize: socketWriteBuffer,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("user_id", identity.UserID), zap.Error(err))
		return
	}

	client := &socketClient{
		id:          newConnectionID(),
		participant: participant,
		conn:        conn,
		send:        make(chan []byte, h.realtime.SendBuffer),
		done:        make(chan struct{}),
		hub:         h.hub,
		config:      h.realtime,
		logger:      h.logger,
	}
	h.hub.Connect(client)
	h.logger.Info("websocket connected",
		zap.String("connection_id", client.id),
		zap.String("user_id", participant.UserID))

	go client.writePump()
	client.readPump(c.Request.Context())
}

func (h *httpHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || allowsAnyOrigin(h.origins) {
		return true
	}
	for _, allowed := range h.origins {
		if strings.EqualFold(strings.TrimSpace(allowed), origin) {
			return true
		}
	}
	return false
}

func newConnectionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
