package location

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"

	"homefeed/client/internal/models"
	"homefeed/client/internal/store"
)

// PositionProvider is the device location capability.
type PositionProvider interface {
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (orb.Point, error)
}

// ReverseGeocoder turns a position into a city name.
type ReverseGeocoder interface {
	ReverseGeocode(ctx context.Context, p orb.Point) (string, error)
}

// CityMatcher finds a supported city by its exact label.
type CityMatcher interface {
	Match(name string) (models.City, bool)
}

// Resolver determines the active city. A manual selection is sticky for the
// rest of the session and always beats device resolution, including device
// results that arrive after the selection was made.
type Resolver struct {
	positions PositionProvider
	geocoder  ReverseGeocoder
	matcher   CityMatcher
	store     store.KeyValueStore
	logger    *logrus.Logger

	mu      sync.Mutex
	gen     uint64
	sticky  bool
	current models.ActiveLocation
}

func NewResolver(positions PositionProvider, geocoder ReverseGeocoder, matcher CityMatcher, kv store.KeyValueStore, logger *logrus.Logger) *Resolver {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Resolver{
		positions: positions,
		geocoder:  geocoder,
		matcher:   matcher,
		store:     kv,
		logger:    logger,
		current:   models.UnknownLocation(),
	}
}

// Resolve derives the active location from the device position.
//
// The returned location is always safe to use. A non-nil error is a status,
// not a failure: ErrPermissionDenied or a geocoding error means the location
// degraded to unknown, ErrStaleResponse means a newer selection won and the
// returned location is that selection.
func (r *Resolver) Resolve(ctx context.Context) (models.ActiveLocation, error) {
	r.mu.Lock()
	if r.sticky {
		loc := r.current
		r.mu.Unlock()
		return loc, nil
	}
	r.gen++
	gen := r.gen
	r.mu.Unlock()

	loc, status := r.fromDevice(ctx)
	if status != nil {
		r.logger.WithError(status).Warn("Location resolution degraded to unknown city")
	}

	if !r.commit(ctx, gen, loc) {
		r.logger.WithFields(logrus.Fields{
			"source": loc.Source,
			"label":  loc.Label,
		}).Debug("Discarded late device location")
		return r.Current(), models.ErrStaleResponse
	}
	return loc, status
}

func (r *Resolver) fromDevice(ctx context.Context) (models.ActiveLocation, error) {
	granted, err := r.positions.RequestPermission(ctx)
	if err != nil {
		return models.UnknownLocation(), fmt.Errorf("%w: %v", models.ErrPermissionDenied, err)
	}
	if !granted {
		return models.UnknownLocation(), models.ErrPermissionDenied
	}

	pos, err := r.positions.CurrentPosition(ctx)
	if err != nil {
		return models.UnknownLocation(), fmt.Errorf("failed to get current position: %w", err)
	}

	name, err := r.geocoder.ReverseGeocode(ctx, pos)
	if err != nil {
		return models.UnknownLocation(), fmt.Errorf("failed to reverse geocode position: %w", err)
	}

	city, ok := r.matcher.Match(name)
	if !ok {
		r.logger.WithField("city", name).Info("Device city is not a supported city")
		return models.ActiveLocation{Source: models.LocationDevice, Label: name}, nil
	}
	return models.ActiveLocation{Source: models.LocationDevice, CityID: city.ID, Label: city.Label}, nil
}

// commit stores loc if no newer resolution or selection started since gen.
// Only usable locations are persisted.
func (r *Resolver) commit(ctx context.Context, gen uint64, loc models.ActiveLocation) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return false
	}
	r.current = loc
	if loc.Usable() {
		r.persist(ctx, loc)
	}
	return true
}

// SetManual makes city the active location until cleared.
func (r *Resolver) SetManual(ctx context.Context, city models.City) models.ActiveLocation {
	loc := models.ActiveLocation{Source: models.LocationManual, CityID: city.ID, Label: city.Label}

	r.mu.Lock()
	r.gen++
	r.sticky = true
	r.current = loc
	r.persist(ctx, loc)
	r.mu.Unlock()

	r.logger.WithFields(logrus.Fields{
		"city_id": city.ID,
		"label":   city.Label,
	}).Info("Manual city selected")
	return loc
}

// ClearManual drops the manual selection. The next Resolve uses the device again.
func (r *Resolver) ClearManual(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.sticky = false
	r.current = models.UnknownLocation()

	if err := r.store.Remove(ctx, store.KeyActiveCity); err != nil {
		r.logger.WithError(err).Warn("Failed to remove persisted location")
	}
}

// Restore loads the location persisted by an earlier session as the starting
// point. A restored location is not sticky: a device resolution replaces it.
func (r *Resolver) Restore(ctx context.Context) (models.ActiveLocation, bool, error) {
	var loc models.ActiveLocation
	found, err := store.GetJSON(ctx, r.store, store.KeyActiveCity, &loc)
	if err != nil || !found {
		return r.Current(), false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sticky {
		return r.current, false, nil
	}
	r.current = loc
	return loc, true, nil
}

// Current returns the active location.
func (r *Resolver) Current() models.ActiveLocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Reset returns to the unknown location and invalidates resolutions in flight.
func (r *Resolver) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gen++
	r.sticky = false
	r.current = models.UnknownLocation()
}

func (r *Resolver) persist(ctx context.Context, loc models.ActiveLocation) {
	if err := store.SetJSON(ctx, r.store, store.KeyActiveCity, loc); err != nil {
		r.logger.WithError(err).Warn("Failed to persist location")
	}
}
