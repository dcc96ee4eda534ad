package models

// InterestRecord is the confirmed like-state of one listing.
type InterestRecord struct {
	UniquePropertyID string `json:"unique_property_id"`
	Liked            bool   `json:"liked"`
}

// InterestAction is the value the remote toggle endpoint expects.
type InterestAction int

const (
	InterestRemove InterestAction = 0
	InterestAdd    InterestAction = 1
)

// ActionFor maps a desired like-state to the remote action.
func ActionFor(liked bool) InterestAction {
	if liked {
		return InterestAdd
	}
	return InterestRemove
}

// InterestToggle is one queued remote toggle call.
type InterestToggle struct {
	UniquePropertyID string
	UserID           string
	Liked            bool
	Seq              uint64

	// Receives the outcome once the call has been applied
	Done chan error
}

// NewInterestToggle creates a toggle job with a buffered completion channel.
func NewInterestToggle(userID, propertyID string, liked bool, seq uint64) *InterestToggle {
	return &InterestToggle{
		UniquePropertyID: propertyID,
		UserID:           userID,
		Liked:            liked,
		Seq:              seq,
		Done:             make(chan error, 1),
	}
}
