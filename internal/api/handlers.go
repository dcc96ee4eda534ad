package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"homefeed/client/config"
	"homefeed/client/internal/feed"
	"homefeed/client/internal/models"
)

// FeedService is the part of feed.Session the UI layer may call.
type FeedService interface {
	Open(ctx context.Context) (feed.Feed, error)
	LoadMore(ctx context.Context) (feed.Feed, error)
	Refresh(ctx context.Context) (feed.Feed, error)
	ApplyQuery(ctx context.Context, text string, f models.ListingFilters) (feed.Feed, error)
	SearchText() string
	Filters() models.ListingFilters
	Catalog() *config.FilterCatalog

	Cities(ctx context.Context, q string) ([]models.City, error)
	Location() models.ActiveLocation
	ResolveLocation(ctx context.Context) (models.ActiveLocation, error)
	SelectCity(ctx context.Context, cityID string) (feed.Feed, error)
	ClearCity(ctx context.Context) (models.ActiveLocation, error)

	Suggest(ctx context.Context, text string) ([]models.Suggestion, error)
	SelectSuggestion(ctx context.Context, picked models.Suggestion) (feed.Feed, error)

	ToggleInterest(ctx context.Context, propertyID string) (bool, error)
	Wishlist(ctx context.Context) ([]models.Listing, error)
	Profile(ctx context.Context) (models.Profile, error)
	Teardown(ctx context.Context) error
}

type Handler struct {
	session FeedService
	logger  *logrus.Logger
}

// FeedParams are the optional query parameters of GET /feed.
type FeedParams struct {
	Search *string `form:"search"`
	models.ListingFilters
}

type CityRequest struct {
	CityID string `json:"city_id" binding:"required"`
}

type LocationResponse struct {
	Location models.ActiveLocation `json:"location"`
	Status   string                `json:"status,omitempty"`
}

func NewHandler(session FeedService, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		session: session,
		logger:  logger,
	}
}

// statusFor maps a session error to the HTTP status the UI sees.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNetwork), errors.Is(err, models.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrInterestDisabled):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrInvalidFilter), errors.Is(err, models.ErrCityNotFound):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error, msg string) {
	status := statusFor(err)
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"path":   c.FullPath(),
		"status": status,
	})
	if status >= http.StatusInternalServerError {
		entry.Error(msg)
	} else {
		entry.Warn(msg)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) GetFeed(c *gin.Context) {
	var params FeedParams
	if err := c.ShouldBindQuery(&params); err != nil {
		h.logger.WithError(err).Warn("Failed to parse feed parameters")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed parameters"})
		return
	}

	if params.Search == nil && params.ListingFilters == (models.ListingFilters{}) {
		result, err := h.session.Open(c.Request.Context())
		if err != nil {
			h.fail(c, err, "Failed to open feed")
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	text := h.session.SearchText()
	if params.Search != nil {
		text = *params.Search
	}
	filters := h.session.Filters()
	if params.ListingFilters != (models.ListingFilters{}) {
		filters = params.ListingFilters
	}

	result, err := h.session.ApplyQuery(c.Request.Context(), text, filters)
	if err != nil {
		h.fail(c, err, "Failed to apply feed query")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetMore(c *gin.Context) {
	result, err := h.session.LoadMore(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to load more listings")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) RefreshFeed(c *gin.Context) {
	result, err := h.session.Refresh(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to refresh feed")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) GetFilters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"catalog": h.session.Catalog(),
		"current": h.session.Filters(),
	})
}

func (h *Handler) GetCities(c *gin.Context) {
	cities, err := h.session.Cities(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.fail(c, err, "Failed to get cities")
		return
	}
	c.JSON(http.StatusOK, cities)
}

func (h *Handler) GetLocation(c *gin.Context) {
	c.JSON(http.StatusOK, LocationResponse{Location: h.session.Location()})
}

// ResolveLocation always answers 200: a failed resolution is a location
// state, reported in the status field.
func (h *Handler) ResolveLocation(c *gin.Context) {
	loc, err := h.session.ResolveLocation(c.Request.Context())
	resp := LocationResponse{Location: loc}
	if err != nil {
		resp.Status = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) SetLocation(c *gin.Context) {
	var req CityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Warn("Invalid city request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "city_id is required"})
		return
	}

	result, err := h.session.SelectCity(c.Request.Context(), req.CityID)
	if err != nil {
		h.fail(c, err, "Failed to select city")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ClearLocation(c *gin.Context) {
	loc, err := h.session.ClearCity(c.Request.Context())
	resp := LocationResponse{Location: loc}
	if err != nil {
		resp.Status = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetSuggestions(c *gin.Context) {
	suggestions, err := h.session.Suggest(c.Request.Context(), c.Query("text"))
	if errors.Is(err, models.ErrStaleResponse) {
		// A newer keystroke owns the result
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.fail(c, err, "Failed to get suggestions")
		return
	}
	c.JSON(http.StatusOK, suggestions)
}

func (h *Handler) SelectSuggestion(c *gin.Context) {
	var picked models.Suggestion
	if err := c.ShouldBindJSON(&picked); err != nil || picked.Label == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "A suggestion with a label is required"})
		return
	}

	result, err := h.session.SelectSuggestion(c.Request.Context(), picked)
	if err != nil {
		h.fail(c, err, "Failed to select suggestion")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) ToggleInterest(c *gin.Context) {
	id := c.Param("id")
	liked, err := h.session.ToggleInterest(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err, "Failed to toggle interest")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"unique_property_id": id,
		"is_interested":      liked,
	})
}

func (h *Handler) GetWishlist(c *gin.Context) {
	listings, err := h.session.Wishlist(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get wishlist")
		return
	}
	c.JSON(http.StatusOK, listings)
}

func (h *Handler) GetProfile(c *gin.Context) {
	profile, err := h.session.Profile(c.Request.Context())
	if err != nil {
		h.fail(c, err, "Failed to get profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.session.Teardown(c.Request.Context()); err != nil {
		h.fail(c, err, "Failed to tear down session")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}
