package collab

import (
	"errors"
	"math/rand"
	"sort"
	"strings"
	"testing"
)

func TestJoinRoomRepliesWithRosterAndAnnouncesToOthers(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)

	mustJoin(t, hub, alice, 42)
	roster := mustJoin(t, hub, bob, 42)

	if len(roster) != 2 {
		t.Fatalf("expected roster of 2, got %d", len(roster))
	}
	if roster[0].UserID != "alice" || roster[1].UserID != "bob" {
		t.Fatalf("expected join order alice, bob; got %s, %s", roster[0].UserID, roster[1].UserID)
	}

	bobRosters := bob.received(EventCurrentEditors)
	if len(bobRosters) != 1 {
		t.Fatalf("expected bob to receive one roster, got %d", len(bobRosters))
	}
	var entries []RosterEntry
	decodePayload(t, bobRosters[0], &entries)
	if len(entries) != 2 || entries[1].ConnectionID != "c-bob" {
		t.Fatalf("unexpected roster payload %+v", entries)
	}

	joined := alice.received(EventParticipantJoined)
	if len(joined) != 1 {
		t.Fatalf("expected alice to see one participant-joined, got %d", len(joined))
	}
	var payload participantJoinedPayload
	decodePayload(t, joined[0], &payload)
	if payload.UserID != "bob" || payload.Name != "Bob" || payload.Email != "bob@example.com" {
		t.Fatalf("unexpected participant-joined payload %+v", payload)
	}
	if len(bob.received(EventParticipantJoined)) != 0 {
		t.Fatalf("joiner must not be told about itself")
	}
	if len(alice.received(EventCurrentEditors)) != 1 {
		t.Fatalf("roster must only be sent to the joining connection")
	}
}

func TestJoinRoomTwiceIsIdempotent(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)

	mustJoin(t, hub, alice, 7)
	mustJoin(t, hub, bob, 7)
	roster := mustJoin(t, hub, bob, 7)

	if len(roster) != 2 {
		t.Fatalf("expected roster of 2 after rejoin, got %d", len(roster))
	}
	if len(hub.Roster(7)) != 2 {
		t.Fatalf("expected hub roster of 2, got %d", len(hub.Roster(7)))
	}
	if got := len(alice.received(EventParticipantJoined)); got != 1 {
		t.Fatalf("expected a single participant-joined, got %d", got)
	}
	if got := len(bob.received(EventCurrentEditors)); got != 2 {
		t.Fatalf("expected roster re-sent on rejoin, got %d", got)
	}
}

func TestSameUserWithTwoConnectionsAppearsTwice(t *testing.T) {
	hub := newTestHub(t)
	tabOne := newFakeConn("c-1", "alice", "Alice")
	tabTwo := newFakeConn("c-2", "alice", "Alice")
	connectAll(hub, tabOne, tabTwo)

	mustJoin(t, hub, tabOne, 3)
	roster := mustJoin(t, hub, tabTwo, 3)

	if len(roster) != 2 {
		t.Fatalf("expected one entry per connection, got %d", len(roster))
	}
	if roster[0].ConnectionID == roster[1].ConnectionID {
		t.Fatalf("expected distinct connection ids")
	}
}

func TestLeaveRoomAnnouncesAndDropsEmptyRoom(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)

	mustJoin(t, hub, alice, 5)
	mustJoin(t, hub, bob, 5)

	hub.LeaveRoom(bob, 5)
	left := alice.received(EventParticipantLeft)
	if len(left) != 1 {
		t.Fatalf("expected alice to see participant-left, got %d", len(left))
	}
	var payload participantLeftPayload
	decodePayload(t, left[0], &payload)
	if payload.UserID != "bob" || payload.Name != "Bob" {
		t.Fatalf("unexpected participant-left payload %+v", payload)
	}
	if len(hub.Roster(5)) != 1 {
		t.Fatalf("expected roster of 1, got %d", len(hub.Roster(5)))
	}

	hub.LeaveRoom(alice, 5)
	if hub.RoomCount() != 0 {
		t.Fatalf("expected empty room to be deleted, got %d rooms", hub.RoomCount())
	}
}

func TestLeaveRoomWithoutMembershipIsNoop(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)

	mustJoin(t, hub, alice, 9)
	hub.LeaveRoom(bob, 9)
	hub.LeaveRoom(bob, 10)

	if len(alice.received(EventParticipantLeft)) != 0 {
		t.Fatalf("non-member leave must not broadcast")
	}
	if hub.RoomCount() != 1 {
		t.Fatalf("expected room count 1, got %d", hub.RoomCount())
	}
}

func TestJoinRoomRejectsInvalidID(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	hub.Connect(alice)

	if _, err := hub.JoinRoom(alice, 0); !errors.Is(err, ErrInvalidRoom) {
		t.Fatalf("expected ErrInvalidRoom, got %v", err)
	}
	if hub.RoomCount() != 0 {
		t.Fatalf("invalid join must not create a room")
	}
}

func TestBroadcastSurvivesFailingMember(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	stalled := newFakeConn("c-stalled", "sam", "Sam")
	carol := newFakeConn("c-carol", "carol", "Carol")
	connectAll(hub, alice, stalled, carol)

	mustJoin(t, hub, stalled, 11)
	stalled.failing = true
	mustJoin(t, hub, carol, 11)
	mustJoin(t, hub, alice, 11)

	if len(carol.received(EventParticipantJoined)) != 1 {
		t.Fatalf("expected carol to receive participant-joined despite a stalled member")
	}
}

func TestRosterTracksMembershipAcrossMixedSequences(t *testing.T) {
	const (
		steps = 500
		rooms = 3
	)
	hub := newTestHub(t)
	conns := []*fakeConn{
		newFakeConn("c-alice", "alice", "Alice"),
		newFakeConn("c-bob", "bob", "Bob"),
		newFakeConn("c-carol", "carol", "Carol"),
		newFakeConn("c-alice-2", "alice", "Alice"),
	}
	connectAll(hub, conns...)

	members := make(map[RoomID]map[string]bool)
	for roomID := RoomID(1); roomID <= rooms; roomID++ {
		members[roomID] = make(map[string]bool)
	}

	random := rand.New(rand.NewSource(42))
	for step := 0; step < steps; step++ {
		conn := conns[random.Intn(len(conns))]
		roomID := RoomID(random.Intn(rooms) + 1)

		var action string
		switch random.Intn(5) {
		case 0, 1:
			action = "join"
			mustJoin(t, hub, conn, roomID)
			members[roomID][conn.id] = true
		case 2:
			action = "leave"
			hub.LeaveRoom(conn, roomID)
			delete(members[roomID], conn.id)
		case 3:
			action = "focus"
			err := hub.FocusField(conn, roomID, "destination")
			if members[roomID][conn.id] != (err == nil) {
				t.Fatalf("step %d: focus by %s in %d returned %v", step, conn.id, roomID, err)
			}
		default:
			action = "disconnect"
			hub.Disconnect(conn)
			hub.Connect(conn)
			for _, set := range members {
				delete(set, conn.id)
			}
		}

		live := 0
		for id, set := range members {
			want := sortedKeys(set)
			got := rosterConnections(hub.Roster(id))
			if strings.Join(got, ",") != strings.Join(want, ",") {
				t.Fatalf("step %d (%s %s room %d): room %d roster %v, want %v", step, action, conn.id, roomID, id, got, want)
			}
			if len(set) > 0 {
				live++
			}
			if holder, held := hub.LockHolder(id, "destination"); held && !set[holder.ConnectionID] {
				t.Fatalf("step %d: room %d lock held by departed %s", step, id, holder.ConnectionID)
			}
		}
		if got := hub.RoomCount(); got != live {
			t.Fatalf("step %d (%s): room count %d, want %d", step, action, got, live)
		}
	}

	for _, conn := range conns {
		hub.Disconnect(conn)
	}
	if hub.RoomCount() != 0 || hub.ConnectionCount() != 0 {
		t.Fatalf("expected empty hub, got %d rooms and %d connections", hub.RoomCount(), hub.ConnectionCount())
	}
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func rosterConnections(roster []RosterEntry) []string {
	ids := make([]string, 0, len(roster))
	for _, entry := range roster {
		ids = append(ids, entry.ConnectionID)
	}
	sort.Strings(ids)
	return ids
}
