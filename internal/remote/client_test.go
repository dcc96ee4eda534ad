package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefeed/client/internal/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, Options{UserAgent: "test-agent", Strict: true}, logrus.New())
}

func TestClient_GetListings(t *testing.T) {
	var gotQuery map[string]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, listingsPath, r.URL.Path)
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		gotQuery = map[string]string{
			"city":  r.URL.Query().Get("searched_city"),
			"for":   r.URL.Query().Get("searched_property_for"),
			"page":  r.URL.Query().Get("page"),
			"limit": r.URL.Query().Get("limit"),
		}
		w.Write([]byte(`{
			"propertiesData": [
				{"unique_property_id": "MO-1", "property_name": "Lake View", "property_cost": 4567890.55,
				 "property_for": "Sell", "property_subtype": "Apartment", "bedrooms": 3, "bathrooms": "2",
				 "builtup_area": "1450.5", "google_address": "Gachibowli", "property_status": 1},
				{"unique_property_id": 1002, "property_name": "Numeric id", "property_cost": "2500000"},
				{"property_name": "Missing key"},
				{"unique_property_id": "MO-3", "property_cost": "not a number"}
			],
			"total_count": 42
		}`))
	})

	q := models.ListingQuery{CityID: "6", PropertyFor: "Sell", Page: 1, PageSize: 10}
	page, err := client.GetListings(context.Background(), q)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"city": "6", "for": "Sell", "page": "1", "limit": "10"}, gotQuery)
	assert.Equal(t, 4, page.Received)
	require.NotNil(t, page.TotalMatched)
	assert.Equal(t, 42, *page.TotalMatched)
	require.Len(t, page.Listings, 2)

	first := page.Listings[0]
	assert.Equal(t, "MO-1", first.UniquePropertyID)
	assert.Equal(t, 4567890.55, first.CostAmount)
	assert.Equal(t, 1450.5, first.AreaValue)
	assert.Equal(t, "3", first.Bedrooms)
	assert.Equal(t, "2", first.Bathrooms)
	assert.Equal(t, "Apartment", first.PropertyType)
	assert.Equal(t, 1, first.StatusCode)
	assert.False(t, first.IsInterested)

	assert.Equal(t, "1002", page.Listings[1].UniquePropertyID)
	assert.Equal(t, float64(2500000), page.Listings[1].CostAmount)
}

func TestClient_GetListings_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message": "no properties"}`))
	})

	page, err := client.GetListings(context.Background(), models.ListingQuery{PageSize: 10})
	require.NoError(t, err)
	assert.Empty(t, page.Listings)
	assert.Equal(t, 0, page.Received)
}

func TestClient_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
	}{
		{"Server error", http.StatusBadGateway, `oops`, models.ErrNetwork},
		{"Not found", http.StatusNotFound, `{}`, models.ErrNetwork},
		{"Invalid JSON", http.StatusOK, `<html>`, models.ErrMalformedResponse},
		{"Wrong shape", http.StatusOK, `{"propertiesData": "nope"}`, models.ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			_, err := client.GetListings(context.Background(), models.ListingQuery{PageSize: 10})
			assert.True(t, errors.Is(err, tt.expected), "got %v", err)
		})
	}
}

func TestClient_TransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(server.URL, Options{}, logrus.New())
	_, err := client.GetCities(context.Background())
	assert.True(t, errors.Is(err, models.ErrNetwork))
}

func TestClient_ToggleInterest(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, togglePath, r.URL.Path)
		assert.Equal(t, "u-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "MO-1", r.URL.Query().Get("unique_property_id"))
		if r.URL.Query().Get("action") == "1" {
			w.Write([]byte(`{"status": "success"}`))
			return
		}
		w.Write([]byte(`{"status": "error", "message": "not allowed"}`))
	})

	assert.NoError(t, client.ToggleInterest(context.Background(), "u-1", "MO-1", models.InterestAdd))

	err := client.ToggleInterest(context.Background(), "u-1", "MO-1", models.InterestRemove)
	assert.True(t, errors.Is(err, models.ErrNetwork))
}

func TestClient_GetInterestedListings(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "u-1", r.URL.Query().Get("user_id"))
		w.Write([]byte(`{"data": [
			{"property_details": {"unique_property_id": "MO-1", "property_name": "A"}},
			{"property_details": {"property_name": "B"}}
		]}`))
	})

	listings, err := client.GetInterestedListings(context.Background(), "u-1")
	require.NoError(t, err)
	require.Len(t, listings, 1)
	assert.Equal(t, "MO-1", listings[0].UniquePropertyID)
}

func TestClient_GetCities(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"cities": [
			{"label": "Hyderabad", "value": 4},
			{"label": "Chennai", "value": "6"},
			{"label": "", "value": 9}
		]}`))
	})

	cities, err := client.GetCities(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []models.City{{ID: "4", Label: "Hyderabad"}, {ID: "6", Label: "Chennai"}}, cities)
}

func TestClient_GetLocalities(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "4", r.URL.Query().Get("city_id"))
		if r.URL.Query().Get("input") == "none" {
			w.Write([]byte(`{"status": "failed"}`))
			return
		}
		w.Write([]byte(`{"status": "success", "places": [
			{"id": 11, "label": "Hitech City"},
			{"place_id": "p-2", "locality": "Hyderguda"},
			{"name": "Hydershakote"},
			{"id": 12}
		]}`))
	})

	got, err := client.GetLocalities(context.Background(), "4", "Hyd")
	require.NoError(t, err)
	assert.Equal(t, []models.Suggestion{
		{ID: "11", Label: "Hitech City"},
		{ID: "p-2", Label: "Hyderguda"},
		{ID: "hydershakote", Label: "Hydershakote"},
	}, got)

	got, err = client.GetLocalities(context.Background(), "4", "none")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestClient_GetProfile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("user_id") == "u-1" {
			w.Write([]byte(`[{"name": "Ravi", "email": "ravi@example.com", "mobile": 9876543210}]`))
			return
		}
		w.Write([]byte(`[]`))
	})

	p, err := client.GetProfile(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, models.Profile{UserID: "u-1", Name: "Ravi", Email: "ravi@example.com", Mobile: "9876543210"}, p)

	_, err = client.GetProfile(context.Background(), "u-2")
	assert.True(t, errors.Is(err, models.ErrMalformedResponse))
}

func TestFlexNumber(t *testing.T) {
	tests := []struct {
		in       string
		expected float64
		invalid  bool
	}{
		{`12.75`, 12.75, false},
		{`"3000000"`, 3000000, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`"abc"`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var f flexNumber
			err := f.UnmarshalJSON([]byte(tt.in))
			if tt.invalid {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, float64(f))
		})
	}
}

func TestWireListing_Keys(t *testing.T) {
	var w wireListing
	require.NoError(t, json.Unmarshal([]byte(`{
		"unique_property_id": "MO-1", "bedrooms": "3", "bathrooms": "2",
		"car_parking": "1", "facing": "East"
	}`), &w))

	l, err := w.listing()
	require.NoError(t, err)
	assert.Equal(t, "3", l.Bedrooms)
	assert.Equal(t, "2", l.Bathrooms)
	assert.Equal(t, "1", l.CarParking)
	assert.Equal(t, "East", l.Facing)
}
