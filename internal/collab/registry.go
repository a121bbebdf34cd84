package collab

import (
	"sort"

	"go.uber.org/zap"
)

// Participant is the identity attached to a connection at authentication time.
type Participant struct {
	UserID    string
	Name      string
	Email     string
	AvatarURL string
}

// Conn is one authenticated duplex channel. Send must not block: it either
// queues the frame for delivery or returns an error.
type Conn interface {
	ID() string
	Participant() Participant
	Send(frame []byte) error
}

type roomMember struct {
	conn Conn
	seq  uint64
}

type room[S any] struct {
	id      RoomID
	members map[string]*roomMember
	state   S
}

// registry maps room ids to the connections currently joined. Rooms are created
// on first join and dropped when their last member leaves. It is not safe for
// concurrent use; the Hub serializes access.
type registry[S any] struct {
	namespace string
	rooms     map[RoomID]*room[S]
	newState  func() S
	seq       uint64
	logger    *zap.Logger
}

func newRegistry[S any](namespace string, newState func() S, logger *zap.Logger) *registry[S] {
	return &registry[S]{
		namespace: namespace,
		rooms:     make(map[RoomID]*room[S]),
		newState:  newState,
		logger:    logger,
	}
}

// join adds the connection and reports whether it was newly added.
func (r *registry[S]) join(id RoomID, conn Conn) (*room[S], bool) {
	current, ok := r.rooms[id]
	if !ok {
		current = &room[S]{
			id:      id,
			members: make(map[string]*roomMember),
			state:   r.newState(),
		}
		r.rooms[id] = current
	}
	if _, present := current.members[conn.ID()]; present {
		return current, false
	}
	r.seq++
	current.members[conn.ID()] = &roomMember{conn: conn, seq: r.seq}
	return current, true
}

// leave removes the connection and reports whether it was a member. The room
// entry is deleted once empty.
func (r *registry[S]) leave(id RoomID, conn Conn) bool {
	current, ok := r.rooms[id]
	if !ok {
		return false
	}
	if _, present := current.members[conn.ID()]; !present {
		return false
	}
	delete(current.members, conn.ID())
	if len(current.members) == 0 {
		delete(r.rooms, id)
	}
	return true
}

func (r *registry[S]) get(id RoomID) (*room[S], bool) {
	current, ok := r.rooms[id]
	return current, ok
}

func (r *registry[S]) isMember(id RoomID, conn Conn) bool {
	current, ok := r.rooms[id]
	if !ok {
		return false
	}
	_, present := current.members[conn.ID()]
	return present
}

func (r *registry[S]) count() int {
	return len(r.rooms)
}

// broadcast encodes the event once and queues it for every member except the
// connection with id exclude. Delivery failures are logged and swallowed.
func (r *registry[S]) broadcast(id RoomID, event string, payload interface{}, exclude string) {
	current, ok := r.rooms[id]
	if !ok {
		return
	}
	frame, err := encodeFrame(event, payload)
	if err != nil {
		r.logger.Error("failed to encode broadcast",
			zap.String("namespace", r.namespace),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	for _, member := range current.ordered() {
		if member.conn.ID() == exclude {
			continue
		}
		deliver(r.logger, member.conn, event, frame)
	}
}

// ordered returns members in join order.
func (rm *room[S]) ordered() []*roomMember {
	members := make([]*roomMember, 0, len(rm.members))
	for _, member := range rm.members {
		members = append(members, member)
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i].seq < members[j].seq
	})
	return members
}

func deliver(logger *zap.Logger, conn Conn, event string, frame []byte) {
	if err := conn.Send(frame); err != nil {
		logger.Debug("dropped realtime event",
			zap.String("event", event),
			zap.String("connection_id", conn.ID()),
			zap.String("user_id", conn.Participant().UserID),
			zap.Error(err))
	}
}

func sendTo(logger *zap.Logger, conn Conn, event string, payload interface{}) {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		logger.Error("failed to encode event", zap.String("event", event), zap.Error(err))
		return
	}
	deliver(logger, conn, event, frame)
}
