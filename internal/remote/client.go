package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"homefeed/client/internal/models"
)

const (
	listingsPath    = "/listings/getallpropertiesnew"
	interestedPath  = "/listings/interested"
	togglePath      = "/favourites_exe"
	citiesPath      = "/general/getcities"
	localitiesPath  = "/general/getlocalitiesbycitynamenew"
	profilePath     = "/users/profile"
	maxErrorBodyLen = 512
)

type Options struct {
	Timeout   time.Duration
	UserAgent string

	// Log dropped records at warn level instead of debug
	Strict bool

	HTTPClient *http.Client
}

// Client talks to the remote listings REST API.
type Client struct {
	baseURL   string
	client    *http.Client
	logger    *logrus.Logger
	userAgent string
	strict    bool
}

func NewClient(baseURL string, opts Options, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    httpClient,
		logger:    logger,
		userAgent: opts.UserAgent,
		strict:    opts.Strict,
	}
}

// GetListings fetches one page of listings for q.
func (c *Client) GetListings(ctx context.Context, q models.ListingQuery) (models.ListingsPage, error) {
	var resp listingsResponse
	if err := c.getJSON(ctx, listingsPath, q.Params(), &resp); err != nil {
		return models.ListingsPage{}, err
	}

	listings := c.decodeListings(resp.PropertiesData)
	return models.ListingsPage{
		Listings:     listings,
		Received:     len(resp.PropertiesData),
		TotalMatched: resp.TotalCount,
	}, nil
}

// GetInterestedListings fetches the listings the user marked as interested.
func (c *Client) GetInterestedListings(ctx context.Context, userID string) ([]models.Listing, error) {
	var resp interestedResponse
	params := url.Values{"user_id": []string{userID}}
	if err := c.getJSON(ctx, interestedPath, params, &resp); err != nil {
		return nil, err
	}

	raw := make([]json.RawMessage, 0, len(resp.Data))
	for _, item := range resp.Data {
		raw = append(raw, item.PropertyDetails)
	}
	return c.decodeListings(raw), nil
}

// ToggleInterest adds or removes a listing from the user's interested set.
func (c *Client) ToggleInterest(ctx context.Context, userID, propertyID string, action models.InterestAction) error {
	params := url.Values{
		"user_id":            []string{userID},
		"unique_property_id": []string{propertyID},
		"intrst":             []string{"1"},
		"action":             []string{fmt.Sprintf("%d", action)},
	}

	var resp statusResponse
	if err := c.getJSON(ctx, togglePath, params, &resp); err != nil {
		return err
	}
	if resp.Status != "" && !strings.EqualFold(resp.Status, "success") {
		return fmt.Errorf("%w: interest toggle rejected: %s", models.ErrNetwork, resp.Message)
	}
	return nil
}

// GetCities fetches the supported cities in server order.
func (c *Client) GetCities(ctx context.Context) ([]models.City, error) {
	var resp citiesResponse
	if err := c.getJSON(ctx, citiesPath, nil, &resp); err != nil {
		return nil, err
	}

	cities := make([]models.City, 0, len(resp.Cities))
	for _, wc := range resp.Cities {
		city := models.City{ID: string(wc.Value), Label: strings.TrimSpace(wc.Label)}
		if city.ID == "" || city.Label == "" {
			c.logDropped("city", fmt.Errorf("%w: city without id or label", models.ErrMalformedResponse))
			continue
		}
		cities = append(cities, city)
	}
	return cities, nil
}

// GetLocalities fetches locality suggestions for input within a city.
func (c *Client) GetLocalities(ctx context.Context, cityID, input string) ([]models.Suggestion, error) {
	params := url.Values{
		"city_id": []string{cityID},
		"input":   []string{input},
	}

	var resp localitiesResponse
	if err := c.getJSON(ctx, localitiesPath, params, &resp); err != nil {
		return nil, err
	}
	if !strings.EqualFold(resp.Status, "success") {
		return []models.Suggestion{}, nil
	}

	suggestions := make([]models.Suggestion, 0, len(resp.Places))
	for _, p := range resp.Places {
		s, err := p.suggestion()
		if err != nil {
			c.logDropped("locality", err)
			continue
		}
		suggestions = append(suggestions, s)
	}
	return suggestions, nil
}

// GetProfile fetches the profile of the given user.
func (c *Client) GetProfile(ctx context.Context, userID string) (models.Profile, error) {
	var resp []wireProfile
	params := url.Values{"user_id": []string{userID}}
	if err := c.getJSON(ctx, profilePath, params, &resp); err != nil {
		return models.Profile{}, err
	}
	if len(resp) == 0 {
		return models.Profile{}, fmt.Errorf("%w: empty profile response", models.ErrMalformedResponse)
	}

	p := resp[0]
	return models.Profile{
		UserID: userID,
		Name:   string(p.Name),
		Email:  string(p.Email),
		Mobile: string(p.Mobile),
	}, nil
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, v any) error {
	requestID := uuid.NewString()
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.WithError(err).WithFields(logrus.Fields{
			"path":       path,
			"request_id": requestID,
		}).Error("Remote request failed")
		return fmt.Errorf("%w: GET %s: %w", models.ErrNetwork, path, err)
	}
	defer resp.Body.Close()

	fields := logrus.Fields{
		"path":        path,
		"request_id":  requestID,
		"status":      resp.StatusCode,
		"duration_ms": time.Since(start).Milliseconds(),
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		c.logger.WithFields(fields).WithField("body", string(body)).Error("Remote request returned error status")
		return fmt.Errorf("%w: GET %s: status %d", models.ErrNetwork, path, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: GET %s: read body: %w", models.ErrNetwork, path, err)
	}

	if err := json.Unmarshal(body, v); err != nil {
		c.logger.WithError(err).WithFields(fields).Error("Failed to parse response")
		return fmt.Errorf("%w: GET %s: %v", models.ErrMalformedResponse, path, err)
	}

	c.logger.WithFields(fields).Debug("Remote request completed")
	return nil
}

func (c *Client) logDropped(kind string, err error) {
	entry := c.logger.WithError(err).WithField("record", kind)
	if c.strict {
		entry.Warn("Dropped malformed record")
		return
	}
	entry.Debug("Dropped malformed record")
}
