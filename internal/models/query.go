package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strconv"
	"strings"
)

// ListingFilters holds the user-selectable filter set.
type ListingFilters struct {
	PropertyFor      string `json:"property_for" form:"property_for"`
	PropertyType     string `json:"property_type" form:"property_type"`
	Bedrooms         string `json:"bedrooms" form:"bedrooms"`
	PossessionStatus string `json:"possession_status" form:"possession_status"`
	MinPrice         int64  `json:"min_price" form:"min_price"`
	MaxPrice         int64  `json:"max_price" form:"max_price"`
}

// ListingQuery is the complete parameter set that determines a result set.
type ListingQuery struct {
	CityID           string
	SearchText       string
	PropertyFor      string
	PropertyType     string
	Bedrooms         string
	PossessionStatus string
	MinPrice         int64
	MaxPrice         int64
	Page             int
	PageSize         int
}

// WithFilters returns a copy of q with the filter fields replaced.
func (q ListingQuery) WithFilters(f ListingFilters) ListingQuery {
	q.PropertyFor = f.PropertyFor
	q.PropertyType = f.PropertyType
	q.Bedrooms = f.Bedrooms
	q.PossessionStatus = f.PossessionStatus
	q.MinPrice = f.MinPrice
	q.MaxPrice = f.MaxPrice
	return q
}

// Filters extracts the filter fields of q.
func (q ListingQuery) Filters() ListingFilters {
	return ListingFilters{
		PropertyFor:      q.PropertyFor,
		PropertyType:     q.PropertyType,
		Bedrooms:         q.Bedrooms,
		PossessionStatus: q.PossessionStatus,
		MinPrice:         q.MinPrice,
		MaxPrice:         q.MaxPrice,
	}
}

// Params builds the request parameters for q. Encoding the result is
// deterministic because url.Values sorts by key.
func (q ListingQuery) Params() url.Values {
	v := url.Values{}
	v.Set("searched_location", normalizeSearch(q.SearchText))
	v.Set("searched_city", q.CityID)
	v.Set("searched_property_for", q.PropertyFor)
	v.Set("searched_property_sub", q.PropertyType)
	v.Set("searched_beds", q.Bedrooms)
	v.Set("searched_occupancy", q.PossessionStatus)
	v.Set("searched_min_price", formatPrice(q.MinPrice))
	v.Set("searched_max_price", formatPrice(q.MaxPrice))
	v.Set("limit", strconv.Itoa(q.PageSize))
	v.Set("page", strconv.Itoa(q.Page))
	return v
}

// Signature identifies the equivalence class of q: every field except Page.
func (q ListingQuery) Signature() string {
	params := q.Params()
	params.Del("page")
	sum := sha256.Sum256([]byte(params.Encode()))
	return hex.EncodeToString(sum[:16])
}

// Equivalent reports whether q and other only differ by page.
func (q ListingQuery) Equivalent(other ListingQuery) bool {
	return q.Signature() == other.Signature()
}

func normalizeSearch(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func formatPrice(p int64) string {
	if p <= 0 {
		return ""
	}
	return strconv.FormatInt(p, 10)
}
