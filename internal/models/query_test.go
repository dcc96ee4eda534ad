package models

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestListingQuery_Signature(t *testing.T) {
	base := ListingQuery{CityID: "6", PropertyFor: "Sell", Page: 1, PageSize: 10}

	tests := []struct {
		name  string
		other ListingQuery
		equal bool
	}{
		{
			name:  "Different page is equivalent",
			other: ListingQuery{CityID: "6", PropertyFor: "Sell", Page: 3, PageSize: 10},
			equal: true,
		},
		{
			name:  "Search text is normalized",
			other: ListingQuery{CityID: "6", PropertyFor: "Sell", SearchText: "  ", Page: 1, PageSize: 10},
			equal: true,
		},
		{
			name:  "Different city",
			other: ListingQuery{CityID: "7", PropertyFor: "Sell", Page: 1, PageSize: 10},
			equal: false,
		},
		{
			name:  "Different page size",
			other: ListingQuery{CityID: "6", PropertyFor: "Sell", Page: 1, PageSize: 20},
			equal: false,
		},
		{
			name:  "Different price range",
			other: ListingQuery{CityID: "6", PropertyFor: "Sell", MaxPrice: 500000, Page: 1, PageSize: 10},
			equal: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.equal, base.Equivalent(tt.other))
		})
	}
}

func TestListingQuery_Params(t *testing.T) {
	q := ListingQuery{
		CityID:     "6",
		SearchText: " Gachibowli ",
		MinPrice:   1000,
		Page:       2,
		PageSize:   10,
	}

	params := q.Params()
	assert.Equal(t, "gachibowli", params.Get("searched_location"))
	assert.Equal(t, "6", params.Get("searched_city"))
	assert.Equal(t, "1000", params.Get("searched_min_price"))
	assert.Equal(t, "", params.Get("searched_max_price"))
	assert.Equal(t, "2", params.Get("page"))
	assert.Equal(t, "10", params.Get("limit"))
	assert.Equal(t, q.Params().Encode(), params.Encode())
}

func TestListingQuery_WithFilters(t *testing.T) {
	f := ListingFilters{PropertyFor: "Rent", Bedrooms: "2 BHK", MinPrice: 1000, MaxPrice: 5000}
	q := ListingQuery{CityID: "4"}.WithFilters(f)

	assert.Equal(t, "4", q.CityID)
	assert.Equal(t, f, q.Filters())
}

func TestListing_Validate(t *testing.T) {
	assert.NoError(t, Listing{UniquePropertyID: "MO-1"}.Validate())

	err := Listing{Name: "No key"}.Validate()
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}
