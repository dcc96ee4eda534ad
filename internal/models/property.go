package models

import (
	"fmt"
	"strings"
	"time"
)

// Listing is one property record as shown in the feed.
type Listing struct {
	UniquePropertyID string  `json:"unique_property_id"`
	Name             string  `json:"property_name"`
	CostAmount       float64 `json:"property_cost"`
	PropertyFor      string  `json:"property_for"`
	PropertyType     string  `json:"property_type"`
	Bedrooms         string  `json:"bedrooms"`
	Bathrooms        string  `json:"bathrooms"`
	CarParking       string  `json:"car_parking"`
	Facing           string  `json:"facing"`
	AreaValue        float64 `json:"builtup_area"`
	Address          string  `json:"google_address"`
	ImageRef         string  `json:"image"`
	StatusCode       int     `json:"property_status"`

	// Derived from the interest overlay, never taken from the server
	IsInterested bool `json:"is_interested"`
}

// Validate reports whether the listing can be displayed.
func (l Listing) Validate() error {
	if strings.TrimSpace(l.UniquePropertyID) == "" {
		return fmt.Errorf("%w: listing %q has no unique_property_id", ErrMalformedResponse, l.Name)
	}
	return nil
}

// FeedSnapshot is the first page of a result set kept for instant first paint.
type FeedSnapshot struct {
	Signature string    `json:"signature"`
	Listings  []Listing `json:"listings"`
	FetchedAt time.Time `json:"fetched_at"`
}

// ListingsPage is one decoded page of the listings endpoint.
type ListingsPage struct {
	Listings []Listing

	// Number of records the server sent, including dropped ones
	Received int

	TotalMatched *int
}
