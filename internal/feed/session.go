package feed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"homefeed/client/config"
	"homefeed/client/internal/cities"
	"homefeed/client/internal/interest"
	"homefeed/client/internal/listings"
	"homefeed/client/internal/location"
	"homefeed/client/internal/models"
	"homefeed/client/internal/profile"
	"homefeed/client/internal/scheduler"
	"homefeed/client/internal/store"
	"homefeed/client/internal/suggest"
)

// Remote is every remote endpoint the feed uses.
type Remote interface {
	listings.ListingsAPI
	interest.InterestAPI
	cities.CityAPI
	suggest.LocalityAPI
	profile.ProfileAPI
}

// Collaborators are the external capabilities a session is built on.
type Collaborators struct {
	Remote    Remote
	Positions location.PositionProvider
	Geocoder  location.ReverseGeocoder
	Store     store.KeyValueStore
	Identity  interest.Identity
	Catalog   *config.FilterCatalog
}

type Options struct {
	PageSize        int
	RefreshInterval time.Duration

	// Scopes queries while the active location has no usable city
	DefaultCity models.City

	// Served by the city directory until a city list is loaded. Defaults to
	// the default city alone.
	SeedCities []models.City

	Strict     bool
	Search     suggest.Options
	ProfileTTL time.Duration
}

// Feed is what the feed screen renders.
type Feed struct {
	Location   models.ActiveLocation `json:"location"`
	CityID     string                `json:"city_id"`
	SearchText string                `json:"search_text"`
	Filters    models.ListingFilters `json:"filters"`
	Listings   []models.Listing      `json:"listings"`
	Page       int                   `json:"page"`
	HasMore    bool                  `json:"has_more"`
	FromCache  bool                  `json:"from_cache"`
	FetchedAt  time.Time             `json:"fetched_at"`
}

// Session owns the feed state of one signed-in (or anonymous) user and is
// the only way to read or change it.
type Session struct {
	opts     Options
	logger   *logrus.Logger
	store    store.KeyValueStore
	identity interest.Identity
	catalog  *config.FilterCatalog

	cities    *cities.Directory
	resolver  *location.Resolver
	fetcher   *listings.Fetcher
	overlay   *interest.Overlay
	scheduler *scheduler.Scheduler
	searcher  *suggest.Searcher
	profiles  *profile.Cache

	mu         sync.RWMutex
	searchText string
	filters    models.ListingFilters
}

func NewSession(c Collaborators, opts Options, logger *logrus.Logger) *Session {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.PageSize <= 0 {
		opts.PageSize = 10
	}

	directory := cities.NewDirectory(c.Remote, c.Store, logger)
	seed := opts.SeedCities
	if len(seed) == 0 && opts.DefaultCity.ID != "" {
		seed = []models.City{opts.DefaultCity}
	}
	directory.SetSeed(seed)
	return &Session{
		opts:      opts,
		logger:    logger,
		store:     c.Store,
		identity:  c.Identity,
		catalog:   c.Catalog,
		cities:    directory,
		resolver:  location.NewResolver(c.Positions, c.Geocoder, directory, c.Store, logger),
		fetcher:   listings.NewFetcher(c.Remote, c.Store, opts.Strict, logger),
		overlay:   interest.NewOverlay(c.Remote, c.Identity, c.Store, 0, logger),
		scheduler: scheduler.NewScheduler(logger),
		searcher:  suggest.NewSearcher(c.Remote, c.Store, opts.Search, logger),
		profiles:  profile.NewCache(c.Remote, c.Store, opts.ProfileTTL, logger),
		filters:   c.Catalog.Defaults(),
	}
}

// Init restores persisted state, then loads the cities and resolves the
// location while the interest set syncs, and finally arms the refresh
// timer. A returned error means the city list could not be loaded; the
// location is then resolved against the seed cities and the session stays
// usable with the default city.
func (s *Session) Init(ctx context.Context) error {
	s.restore(ctx)
	s.overlay.Start(ctx)

	// A city failure is reported, not propagated, so the interest sync
	// keeps its context.
	var citiesErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := s.cities.Load(gctx); err != nil {
			citiesErr = fmt.Errorf("load cities: %w", err)
		}
		loc, status := s.resolver.Resolve(gctx)
		entry := s.logger.WithFields(logrus.Fields{
			"source":  loc.Source,
			"city_id": loc.CityID,
			"label":   loc.Label,
		})
		if status != nil {
			entry = entry.WithField("status", status.Error())
		}
		entry.Info("Resolved location")
		return nil
	})
	g.Go(func() error {
		s.syncInterest(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.scheduler.Start(ctx, s.opts.RefreshInterval, s.refresh)
	return citiesErr
}

func (s *Session) restore(ctx context.Context) {
	if _, err := s.cities.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to restore cities")
	}
	if _, _, err := s.resolver.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to restore location")
	}
	if _, err := s.fetcher.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to restore feed snapshot")
	}
	if _, err := s.overlay.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to restore interest overlay")
	}
	if err := s.searcher.Restore(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to restore recent suggestions")
	}
}

func (s *Session) syncInterest(ctx context.Context) {
	if _, ok := s.identity.UserID(); !ok {
		return
	}
	if _, err := s.overlay.LoadRemoteInterestSet(ctx); err != nil {
		s.logger.WithError(err).Warn("Interest sync failed")
	}
}

// refresh is the scheduler's job: revalidate the current query and resync
// the interest set.
func (s *Session) refresh(ctx context.Context) error {
	if _, err := s.fetcher.Revalidate(ctx, s.Query()); err != nil {
		return err
	}
	s.syncInterest(ctx)
	return nil
}

// Query builds the listing query for the current location, search and filters.
func (s *Session) Query() models.ListingQuery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return models.ListingQuery{
		CityID:     s.cityIDLocked(),
		SearchText: s.searchText,
		Page:       1,
		PageSize:   s.opts.PageSize,
	}.WithFilters(s.filters)
}

func (s *Session) cityIDLocked() string {
	if loc := s.resolver.Current(); loc.Usable() {
		return loc.CityID
	}
	return s.opts.DefaultCity.ID
}

// Open returns the first page of the current query, from the cache when it has one.
func (s *Session) Open(ctx context.Context) (Feed, error) {
	return s.fetch(ctx, listings.Replace)
}

// LoadMore appends the next page of the current query.
func (s *Session) LoadMore(ctx context.Context) (Feed, error) {
	return s.fetch(ctx, listings.Append)
}

// Refresh is pull-to-refresh: a forced revalidation through the scheduler,
// so it never overlaps a timer refresh.
func (s *Session) Refresh(ctx context.Context) (Feed, error) {
	err := s.scheduler.Trigger(ctx)
	if errors.Is(err, scheduler.ErrNotStarted) {
		err = s.refresh(ctx)
	}
	if err != nil {
		return Feed{}, err
	}
	feed, err := s.Open(ctx)
	feed.FromCache = false
	return feed, err
}

func (s *Session) fetch(ctx context.Context, mode listings.Mode) (Feed, error) {
	q := s.Query()
	page, err := s.fetcher.Fetch(ctx, q, mode)
	if err != nil {
		return Feed{}, err
	}
	return Feed{
		Location:   s.resolver.Current(),
		CityID:     q.CityID,
		SearchText: q.SearchText,
		Filters:    q.Filters(),
		Listings:   s.overlay.Merge(page.Listings),
		Page:       page.Page,
		HasMore:    page.HasMore,
		FromCache:  page.FromCache,
		FetchedAt:  page.FetchedAt,
	}, nil
}

// ApplyFilters validates f against the filter catalog and opens the feed for it.
func (s *Session) ApplyFilters(ctx context.Context, f models.ListingFilters) (Feed, error) {
	normalized, err := s.catalog.Normalize(f)
	if err != nil {
		return Feed{}, err
	}

	s.mu.Lock()
	s.filters = normalized
	s.mu.Unlock()
	return s.Open(ctx)
}

// ApplyQuery sets the search text and the filters together and opens the
// feed once for the combined query.
func (s *Session) ApplyQuery(ctx context.Context, text string, f models.ListingFilters) (Feed, error) {
	normalized, err := s.catalog.Normalize(f)
	if err != nil {
		return Feed{}, err
	}

	s.mu.Lock()
	s.searchText = strings.TrimSpace(text)
	s.filters = normalized
	s.mu.Unlock()
	return s.Open(ctx)
}

// SearchText returns the search text in effect.
func (s *Session) SearchText() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.searchText
}

// ClearFilters resets the filters to the catalog's cleared state.
func (s *Session) ClearFilters(ctx context.Context) (Feed, error) {
	s.mu.Lock()
	s.filters = s.catalog.Cleared()
	s.mu.Unlock()
	return s.Open(ctx)
}

// Filters returns the filters in effect.
func (s *Session) Filters() models.ListingFilters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filters
}

// Catalog returns the accepted filter values.
func (s *Session) Catalog() *config.FilterCatalog {
	return s.catalog
}

// Search opens the feed for text. Blank text clears the search.
func (s *Session) Search(ctx context.Context, text string) (Feed, error) {
	s.mu.Lock()
	s.searchText = strings.TrimSpace(text)
	s.mu.Unlock()
	return s.Open(ctx)
}

// Suggest returns locality suggestions for text in the current city.
func (s *Session) Suggest(ctx context.Context, text string) ([]models.Suggestion, error) {
	s.mu.RLock()
	cityID := s.cityIDLocked()
	s.mu.RUnlock()
	return s.searcher.Suggest(ctx, cityID, text)
}

// SelectSuggestion records picked as a recent pick and searches for it.
func (s *Session) SelectSuggestion(ctx context.Context, picked models.Suggestion) (Feed, error) {
	if _, err := s.searcher.Select(ctx, picked); err != nil {
		s.logger.WithError(err).Warn("Failed to record recent suggestion")
	}
	return s.Search(ctx, picked.Label)
}

// RecentSuggestions returns the recent picks, most recent first.
func (s *Session) RecentSuggestions() []models.Suggestion {
	return s.searcher.Recent()
}

// Cities returns the supported cities whose label contains q.
// Without a loaded list the seed cities are searched and the load error
// is logged.
func (s *Session) Cities(ctx context.Context, q string) ([]models.City, error) {
	if _, err := s.cities.Load(ctx); err != nil {
		if !s.cities.Available() {
			return nil, err
		}
		s.logger.WithError(err).Warn("Searching seed cities")
	}
	return s.cities.Search(q), nil
}

// Location returns the active location.
func (s *Session) Location() models.ActiveLocation {
	return s.resolver.Current()
}

// ResolveLocation re-runs device resolution. See location.Resolver.Resolve
// for the meaning of the returned status.
func (s *Session) ResolveLocation(ctx context.Context) (models.ActiveLocation, error) {
	if _, err := s.cities.Load(ctx); err != nil {
		s.logger.WithError(err).Warn("Resolving location without a city list")
	}
	return s.resolver.Resolve(ctx)
}

// SelectCity makes the city with the given id the manual location and
// opens its feed.
func (s *Session) SelectCity(ctx context.Context, cityID string) (Feed, error) {
	_, loadErr := s.cities.Load(ctx)
	city, ok := s.cities.Lookup(cityID)
	if !ok {
		if loadErr != nil {
			return Feed{}, loadErr
		}
		return Feed{}, fmt.Errorf("%w: %q", models.ErrCityNotFound, cityID)
	}
	s.resolver.SetManual(ctx, city)
	return s.Open(ctx)
}

// ClearCity drops the manual location and resolves from the device again.
func (s *Session) ClearCity(ctx context.Context) (models.ActiveLocation, error) {
	s.resolver.ClearManual(ctx)
	return s.ResolveLocation(ctx)
}

// ToggleInterest flips the like flag of a listing.
func (s *Session) ToggleInterest(ctx context.Context, propertyID string) (bool, error) {
	return s.overlay.Toggle(ctx, propertyID)
}

// Wishlist returns the user's interested listings.
func (s *Session) Wishlist(ctx context.Context) ([]models.Listing, error) {
	return s.overlay.Wishlist(ctx)
}

// Profile returns the signed-in user's profile.
func (s *Session) Profile(ctx context.Context) (models.Profile, error) {
	userID, ok := s.identity.UserID()
	if !ok {
		return models.Profile{}, models.ErrInterestDisabled
	}
	return s.profiles.Get(ctx, userID)
}

// Teardown ends the session on logout: timers stop, undelivered toggles are
// dropped, in-memory state is cleared and user data is removed from the
// store. The city list and recent suggestions are kept.
func (s *Session) Teardown(ctx context.Context) error {
	s.scheduler.Stop()
	s.searcher.Cancel()
	s.overlay.Reset()
	s.fetcher.Reset()
	s.resolver.Reset()

	s.mu.Lock()
	s.searchText = ""
	s.filters = s.catalog.Defaults()
	s.mu.Unlock()

	if err := s.profiles.Invalidate(ctx); err != nil {
		s.logger.WithError(err).Warn("Failed to invalidate cached profile")
	}
	if err := store.RemoveAll(ctx, s.store, store.UserScopedKeys...); err != nil {
		s.logger.WithError(err).Error("Failed to remove user data")
		return err
	}
	s.logger.Info("Session torn down")
	return nil
}

// Close stops background work without touching stored state.
func (s *Session) Close() error {
	s.scheduler.Stop()
	s.searcher.Cancel()
	return s.overlay.Close()
}
