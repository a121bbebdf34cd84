package itineraries

import (
	"context"
	"errors"
	"testing"

	"github.com/MarcoPoloResearchLab/tripsync/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&users.Profile{}, &Itinerary{}, &Collaborator{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}

func seedItinerary(t *testing.T, db *gorm.DB) ID {
	t.Helper()
	records := []interface{}{
		&users.Profile{ID: "owner", Name: "Olive", Email: "olive@example.com"},
		&users.Profile{ID: "guest", Name: "Gus", Email: "gus@example.com"},
		&users.Profile{ID: "pending", Name: "Pat", Email: "pat@example.com"},
	}
	for _, record := range records {
		if err := db.Create(record).Error; err != nil {
			t.Fatalf("failed to seed: %v", err)
		}
	}
	itinerary := Itinerary{UserID: "owner", Destination: "Lisbon"}
	if err := db.Create(&itinerary).Error; err != nil {
		t.Fatalf("failed to seed itinerary: %v", err)
	}
	collaborators := []Collaborator{
		{ItineraryID: itinerary.ID, UserID: "guest", Status: CollaboratorStatusAccepted},
		{ItineraryID: itinerary.ID, UserID: "pending", Status: CollaboratorStatusPending},
	}
	if err := db.Create(&collaborators).Error; err != nil {
		t.Fatalf("failed to seed collaborators: %v", err)
	}
	return ID(itinerary.ID)
}

func TestHasAccessCoversOwnerAndAcceptedCollaborators(t *testing.T) {
	service, db := newTestService(t)
	itineraryID := seedItinerary(t, db)
	ctx := context.Background()

	for userID, expected := range map[string]bool{"owner": true, "guest": true, "pending": false, "stranger": false} {
		allowed, err := service.HasAccess(ctx, userID, itineraryID)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", userID, err)
		}
		if allowed != expected {
			t.Fatalf("%s: expected access=%v, got %v", userID, expected, allowed)
		}
	}
}

func TestMemberIDsAndParticipants(t *testing.T) {
	service, db := newTestService(t)
	itineraryID := seedItinerary(t, db)
	ctx := context.Background()

	members, err := service.MemberIDs(ctx, itineraryID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(members) != 2 || members[0] != "owner" || members[1] != "guest" {
		t.Fatalf("unexpected members: %v", members)
	}

	participants, err := service.Participants(ctx, itineraryID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(participants) != 2 || participants[0].Name != "Gus" || participants[1].Name != "Olive" {
		t.Fatalf("unexpected participants: %#v", participants)
	}

	if _, err := service.MemberIDs(ctx, ID(999)); !errors.Is(err, ErrItineraryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestAccessibleIDsAndDestination(t *testing.T) {
	service, db := newTestService(t)
	itineraryID := seedItinerary(t, db)
	ctx := context.Background()

	ids, err := service.AccessibleIDs(ctx, "guest")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 1 || ids[0] != itineraryID {
		t.Fatalf("unexpected accessible ids: %v", ids)
	}
	ids, err = service.AccessibleIDs(ctx, "pending")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected no accessible itineraries for pending invitee, got %v", ids)
	}

	destination, err := service.Destination(ctx, itineraryID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if destination != "Lisbon" {
		t.Fatalf("unexpected destination: %q", destination)
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID(" 42 "); err != nil || id != ID(42) {
		t.Fatalf("expected 42, got %v (%v)", id, err)
	}
	for _, raw := range []string{"", "abc", "0", "-3"} {
		if _, err := ParseID(raw); !errors.Is(err, ErrInvalidItineraryID) {
			t.Fatalf("ParseID(%q): expected invalid id error, got %v", raw, err)
		}
	}
}
