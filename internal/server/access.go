package server

import (
	"context"

	"github.com/MarcoPoloResearchLab/tripsync/internal/collab"
	"github.com/MarcoPoloResearchLab/tripsync/internal/itineraries"
)

// AccessDirectory answers whether a user may see an itinerary.
type AccessDirectory interface {
	HasAccess(ctx context.Context, userID string, itineraryID itineraries.ID) (bool, error)
}

// ItineraryAccess gates room joins on itinerary ownership or accepted collaboration.
func ItineraryAccess(directory AccessDirectory) collab.AccessChecker {
	return collab.AccessCheckerFunc(func(ctx context.Context, userID string, roomID collab.RoomID) (bool, error) {
		return directory.HasAccess(ctx, userID, itineraries.ID(roomID))
	})
}
