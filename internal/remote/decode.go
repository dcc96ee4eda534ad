package remote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"homefeed/client/internal/models"
)

type listingsResponse struct {
	PropertiesData []json.RawMessage `json:"propertiesData"`
	TotalCount     *int              `json:"total_count"`
}

type interestedResponse struct {
	Data []struct {
		PropertyDetails json.RawMessage `json:"property_details"`
	} `json:"data"`
}

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type citiesResponse struct {
	Cities []struct {
		Label string     `json:"label"`
		Value flexString `json:"value"`
	} `json:"cities"`
}

type localitiesResponse struct {
	Status string      `json:"status"`
	Places []wirePlace `json:"places"`
}

type wirePlace struct {
	ID       flexString `json:"id"`
	PlaceID  flexString `json:"place_id"`
	Value    flexString `json:"value"`
	Label    string     `json:"label"`
	Locality string     `json:"locality"`
	Name     string     `json:"name"`
}

func (p wirePlace) suggestion() (models.Suggestion, error) {
	s := models.Suggestion{
		ID:    firstNonEmpty(string(p.ID), string(p.PlaceID), string(p.Value)),
		Label: firstNonEmpty(p.Label, p.Locality, p.Name),
	}
	if s.Label == "" {
		return s, fmt.Errorf("%w: locality without label", models.ErrMalformedResponse)
	}
	if s.ID == "" {
		s.ID = strings.ToLower(s.Label)
	}
	return s, nil
}

type wireProfile struct {
	Name   flexString `json:"name"`
	Email  flexString `json:"email"`
	Mobile flexString `json:"mobile"`
}

type wireListing struct {
	UniquePropertyID flexString `json:"unique_property_id"`
	PropertyName     flexString `json:"property_name"`
	PropertyCost     flexNumber `json:"property_cost"`
	PropertyFor      flexString `json:"property_for"`
	PropertySubtype  flexString `json:"property_subtype"`
	Bedrooms         flexString `json:"bedrooms"`
	Bathrooms        flexString `json:"bathrooms"`
	CarParking       flexString `json:"car_parking"`
	Facing           flexString `json:"facing"`
	BuiltupArea      flexNumber `json:"builtup_area"`
	GoogleAddress    flexString `json:"google_address"`
	Image            flexString `json:"image"`
	PropertyStatus   flexNumber `json:"property_status"`
}

func (w wireListing) listing() (models.Listing, error) {
	l := models.Listing{
		UniquePropertyID: strings.TrimSpace(string(w.UniquePropertyID)),
		Name:             string(w.PropertyName),
		CostAmount:       float64(w.PropertyCost),
		PropertyFor:      string(w.PropertyFor),
		PropertyType:     string(w.PropertySubtype),
		Bedrooms:         string(w.Bedrooms),
		Bathrooms:        string(w.Bathrooms),
		CarParking:       string(w.CarParking),
		Facing:           string(w.Facing),
		AreaValue:        float64(w.BuiltupArea),
		Address:          string(w.GoogleAddress),
		ImageRef:         string(w.Image),
		StatusCode:       int(w.PropertyStatus),
	}
	return l, l.Validate()
}

// decodeListings decodes each record on its own so one bad record does not
// poison the page. Records that fail decoding or validation are dropped.
func (c *Client) decodeListings(raw []json.RawMessage) []models.Listing {
	listings := make([]models.Listing, 0, len(raw))
	for _, r := range raw {
		var w wireListing
		if err := json.Unmarshal(r, &w); err != nil {
			c.logDropped("listing", fmt.Errorf("%w: %v", models.ErrMalformedResponse, err))
			continue
		}
		l, err := w.listing()
		if err != nil {
			c.logDropped("listing", err)
			continue
		}
		listings = append(listings, l)
	}
	return listings
}

// flexString accepts a JSON string, number, bool or null.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if len(data) > 0 && (data[0] == '{' || data[0] == '[') {
		return fmt.Errorf("expected scalar, got %s", data)
	}
	*f = flexString(data)
	return nil
}

// flexNumber accepts a JSON number, a numeric string, an empty string or null.
// Values are kept as parsed, never rounded.
type flexNumber float64

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	text := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		text = strings.TrimSpace(text)
		if text == "" {
			*f = 0
			return nil
		}
	}

	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", text)
	}
	*f = flexNumber(v)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
