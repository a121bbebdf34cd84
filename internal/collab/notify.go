package collab

import (
	"sort"

	"go.uber.org/zap"
)

// userIndex maps a user id to that user's live connections. One user may have
// several tabs open; notifications reach all of them.
type userIndex struct {
	connections map[string]map[string]Conn
}

func newUserIndex() *userIndex {
	return &userIndex{connections: make(map[string]map[string]Conn)}
}

func (u *userIndex) add(conn Conn) {
	userID := conn.Participant().UserID
	if userID == "" {
		return
	}
	if _, ok := u.connections[userID]; !ok {
		u.connections[userID] = make(map[string]Conn)
	}
	u.connections[userID][conn.ID()] = conn
}

func (u *userIndex) remove(conn Conn) {
	userID := conn.Participant().UserID
	connections := u.connections[userID]
	if connections == nil {
		return
	}
	delete(connections, conn.ID())
	if len(connections) == 0 {
		delete(u.connections, userID)
	}
}

func (u *userIndex) lookup(userID string) []Conn {
	connections := u.connections[userID]
	result := make([]Conn, 0, len(connections))
	for _, conn := range connections {
		result = append(result, conn)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID() < result[j].ID()
	})
	return result
}

// PushToUser writes a notification to every live connection of the user and
// returns how many connections it was queued for. Offline users are skipped.
func (h *Hub) PushToUser(userID string, notification Notification) int {
	if userID == "" {
		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	targets := h.users.lookup(userID)
	if len(targets) == 0 {
		return 0
	}
	frame, err := encodeFrame(EventNotification, notification)
	if err != nil {
		h.logger.Error("failed to encode notification", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	delivered := 0
	for _, conn := range targets {
		if sendErr := conn.Send(frame); sendErr != nil {
			h.logger.Debug("dropped notification",
				zap.String("user_id", userID),
				zap.String("connection_id", conn.ID()),
				zap.Error(sendErr))
			continue
		}
		delivered++
	}
	return delivered
}

// OnlineConnections returns the number of live connections for a user.
func (h *Hub) OnlineConnections(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.users.connections[userID])
}
