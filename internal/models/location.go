package models

// City is a supported city as returned by the cities endpoint.
type City struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

type LocationSource string

const (
	LocationNone   LocationSource = "none"
	LocationDevice LocationSource = "device"
	LocationManual LocationSource = "manual"
)

// ActiveLocation is the city the feed is currently scoped to. An empty
// CityID means the location is display-only.
type ActiveLocation struct {
	Source LocationSource `json:"source"`
	CityID string         `json:"city_id,omitempty"`
	Label  string         `json:"label"`
}

// Usable reports whether the location can scope a listings query.
func (l ActiveLocation) Usable() bool {
	return l.CityID != ""
}

// UnknownLocation is the neutral state after a failed resolution.
func UnknownLocation() ActiveLocation {
	return ActiveLocation{Source: LocationNone, Label: "Unknown City"}
}
