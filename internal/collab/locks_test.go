package collab

import (
	"errors"
	"testing"
)

func TestLockHandOverAndDisconnectInRoomFortyTwo(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)
	mustJoin(t, hub, alice, 42)
	mustJoin(t, hub, bob, 42)

	if err := hub.FocusField(alice, 42, "destination"); err != nil {
		t.Fatalf("alice focus: %v", err)
	}
	locked := bob.received(EventFieldLocked)
	if len(locked) != 1 {
		t.Fatalf("expected bob to see field-locked, got %d", len(locked))
	}
	var lockPayload fieldLockedPayload
	decodePayload(t, locked[0], &lockPayload)
	if lockPayload.Field != "destination" || lockPayload.UserID != "alice" || lockPayload.UserName != "Alice" {
		t.Fatalf("unexpected field-locked payload %+v", lockPayload)
	}
	if len(alice.received(EventFieldLocked)) != 0 {
		t.Fatalf("focuser must not receive its own lock")
	}

	if err := hub.FocusField(bob, 42, "destination"); err != nil {
		t.Fatalf("bob focus: %v", err)
	}
	reassigned := alice.received(EventFieldLocked)
	if len(reassigned) != 1 {
		t.Fatalf("expected alice to see the reassignment, got %d", len(reassigned))
	}
	decodePayload(t, reassigned[0], &lockPayload)
	if lockPayload.UserID != "bob" {
		t.Fatalf("expected lock reassigned to bob, got %s", lockPayload.UserID)
	}
	holder, held := hub.LockHolder(42, "destination")
	if !held || holder.ConnectionID != "c-bob" {
		t.Fatalf("expected bob to hold destination, got %+v held=%v", holder, held)
	}

	hub.Disconnect(alice)
	if got := len(bob.received(EventFieldUnlocked)); got != 0 {
		t.Fatalf("alice held no lock, expected no field-unlocked, got %d", got)
	}
	left := bob.received(EventParticipantLeft)
	if len(left) != 1 {
		t.Fatalf("expected participant-left for alice, got %d", len(left))
	}
	var leftPayload participantLeftPayload
	decodePayload(t, left[0], &leftPayload)
	if leftPayload.UserID != "alice" {
		t.Fatalf("expected participant-left for alice, got %s", leftPayload.UserID)
	}
	if _, held := hub.LockHolder(42, "destination"); !held {
		t.Fatalf("bob's lock must survive alice's disconnect")
	}
}

func TestDisconnectReleasesHeldLocks(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)
	mustJoin(t, hub, alice, 42)
	mustJoin(t, hub, bob, 42)

	for _, field := range []string{"destination", "activities.0.name"} {
		if err := hub.FocusField(alice, 42, field); err != nil {
			t.Fatalf("focus %s: %v", field, err)
		}
	}

	hub.Disconnect(alice)

	unlocked := bob.received(EventFieldUnlocked)
	if len(unlocked) != 2 {
		t.Fatalf("expected two field-unlocked events, got %d", len(unlocked))
	}
	var first fieldUnlockedPayload
	decodePayload(t, unlocked[0], &first)
	if first.Field != "activities.0.name" || first.UserID != "alice" {
		t.Fatalf("unexpected field-unlocked payload %+v", first)
	}
	for _, field := range []string{"destination", "activities.0.name"} {
		if _, held := hub.LockHolder(42, field); held {
			t.Fatalf("expected %s to be released", field)
		}
	}
}

func TestStaleBlurDoesNotDropNewHolder(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)
	mustJoin(t, hub, alice, 8)
	mustJoin(t, hub, bob, 8)

	if err := hub.FocusField(alice, 8, "budget"); err != nil {
		t.Fatalf("alice focus: %v", err)
	}
	if err := hub.FocusField(bob, 8, "budget"); err != nil {
		t.Fatalf("bob focus: %v", err)
	}
	if err := hub.BlurField(alice, 8, "budget"); err != nil {
		t.Fatalf("alice blur: %v", err)
	}

	holder, held := hub.LockHolder(8, "budget")
	if !held || holder.UserID != "bob" {
		t.Fatalf("expected bob to keep the lock, got %+v held=%v", holder, held)
	}
	if len(bob.received(EventFieldUnlocked)) != 0 {
		t.Fatalf("stale blur must not broadcast field-unlocked")
	}

	if err := hub.BlurField(bob, 8, "budget"); err != nil {
		t.Fatalf("bob blur: %v", err)
	}
	if _, held := hub.LockHolder(8, "budget"); held {
		t.Fatalf("expected lock released by holder blur")
	}
	if len(alice.received(EventFieldUnlocked)) != 1 {
		t.Fatalf("expected alice to see field-unlocked")
	}
}

func TestRefocusByHolderDoesNotRebroadcast(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)
	mustJoin(t, hub, alice, 8)
	mustJoin(t, hub, bob, 8)

	for i := 0; i < 3; i++ {
		if err := hub.FocusField(alice, 8, "notes"); err != nil {
			t.Fatalf("focus: %v", err)
		}
	}
	if got := len(bob.received(EventFieldLocked)); got != 1 {
		t.Fatalf("expected one field-locked, got %d", got)
	}
}

func TestLateJoinerSeesActiveField(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	carol := newFakeConn("c-carol", "carol", "Carol")
	connectAll(hub, alice, bob, carol)
	mustJoin(t, hub, alice, 4)
	mustJoin(t, hub, bob, 4)

	if err := hub.FocusField(alice, 4, "destination"); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if err := hub.FocusField(alice, 4, "startDate"); err != nil {
		t.Fatalf("focus: %v", err)
	}
	if err := hub.FocusField(bob, 4, "startDate"); err != nil {
		t.Fatalf("focus: %v", err)
	}

	roster := mustJoin(t, hub, carol, 4)
	active := map[string]string{}
	for _, entry := range roster {
		active[entry.UserID] = entry.ActiveField
	}
	if active["alice"] != "destination" {
		t.Fatalf("expected alice active on destination, got %q", active["alice"])
	}
	if active["bob"] != "startDate" {
		t.Fatalf("expected bob active on startDate, got %q", active["bob"])
	}
	if active["carol"] != "" {
		t.Fatalf("expected carol without active field, got %q", active["carol"])
	}
}

func TestLateJoinerLearnsEveryLockHeld(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	bob := newFakeConn("c-bob", "bob", "Bob")
	connectAll(hub, alice, bob)
	mustJoin(t, hub, alice, 42)

	for _, field := range []string{"destination", "notes"} {
		if err := hub.FocusField(alice, 42, field); err != nil {
			t.Fatalf("focus %s: %v", field, err)
		}
	}

	roster := mustJoin(t, hub, bob, 42)
	if roster[0].ActiveField != "notes" {
		t.Fatalf("expected alice active on notes, got %q", roster[0].ActiveField)
	}

	locked := bob.received(EventFieldLocked)
	if len(locked) != 2 {
		t.Fatalf("expected bob to learn both locks, got %d", len(locked))
	}
	for i, want := range []string{"destination", "notes"} {
		var payload fieldLockedPayload
		decodePayload(t, locked[i], &payload)
		if payload.Field != want || payload.UserID != "alice" || payload.UserName != "Alice" {
			t.Fatalf("unexpected field-locked %d: %+v", i, payload)
		}
	}
	if len(alice.received(EventFieldLocked)) != 0 {
		t.Fatalf("holder must not be told about its own locks")
	}

	hub.Disconnect(alice)
	if got := len(bob.received(EventFieldUnlocked)); got != 2 {
		t.Fatalf("expected both locks released to bob, got %d", got)
	}
}

func TestRejoinDoesNotReplayOwnLocks(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	hub.Connect(alice)
	mustJoin(t, hub, alice, 9)
	if err := hub.FocusField(alice, 9, "destination"); err != nil {
		t.Fatalf("focus: %v", err)
	}

	mustJoin(t, hub, alice, 9)
	if got := len(alice.received(EventFieldLocked)); got != 0 {
		t.Fatalf("expected no field-locked for own lock, got %d", got)
	}
}

func TestLockIntentsRequireMembership(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	outsider := newFakeConn("c-out", "mallory", "Mallory")
	connectAll(hub, alice, outsider)
	mustJoin(t, hub, alice, 6)

	if err := hub.FocusField(outsider, 6, "destination"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom on focus, got %v", err)
	}
	if err := hub.BlurField(outsider, 6, "destination"); !errors.Is(err, ErrNotInRoom) {
		t.Fatalf("expected ErrNotInRoom on blur, got %v", err)
	}
	if _, held := hub.LockHolder(6, "destination"); held {
		t.Fatalf("outsider must not acquire a lock")
	}
	if alice.total() != 1 {
		t.Fatalf("expected alice to receive only her roster, got %d frames", alice.total())
	}
}

func TestFocusRejectsInvalidField(t *testing.T) {
	hub := newTestHub(t)
	alice := newFakeConn("c-alice", "alice", "Alice")
	hub.Connect(alice)
	mustJoin(t, hub, alice, 6)

	if err := hub.FocusField(alice, 6, "activities.x.name"); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("expected ErrInvalidField, got %v", err)
	}
}
