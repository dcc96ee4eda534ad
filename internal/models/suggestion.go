package models

import "time"

// Suggestion is one locality autocomplete entry.
type Suggestion struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Profile is the signed-in user's profile as shown on the profile screen.
type Profile struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Mobile string `json:"mobile"`
}

// CachedProfile is the persisted form of a profile with its fetch time.
type CachedProfile struct {
	Profile   Profile   `json:"data"`
	FetchedAt time.Time `json:"timestamp"`
}
