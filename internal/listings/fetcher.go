package listings

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"homefeed/client/internal/models"
	"homefeed/client/internal/store"
)

// ListingsAPI is the remote source of listing pages.
type ListingsAPI interface {
	GetListings(ctx context.Context, q models.ListingQuery) (models.ListingsPage, error)
}

type Mode int

const (
	// Replace starts the result set over from page 1.
	Replace Mode = iota
	// Append extends the result set with its next page.
	Append
)

func (m Mode) String() string {
	switch m {
	case Replace:
		return "replace"
	case Append:
		return "append"
	default:
		return "unknown"
	}
}

// Page is the state of one result set after a fetch.
type Page struct {
	Signature string

	// Every listing loaded so far for the signature. Shared between callers,
	// must not be modified.
	Listings []models.Listing

	// Last page number loaded
	Page    int
	HasMore bool

	// Served from the cache without a network call
	FromCache bool

	// Joined a fetch another caller had already started
	Shared bool

	FetchedAt time.Time
}

// Upper bound for one shared load.
const defaultLoadTimeout = 30 * time.Second

type resultSet struct {
	listings  []models.Listing
	nextPage  int
	hasMore   bool
	fetchedAt time.Time
}

// Fetcher loads paginated listings. There is at most one network fetch in
// flight per query signature; concurrent callers share its result.
type Fetcher struct {
	api    ListingsAPI
	store  store.KeyValueStore
	logger *logrus.Logger
	strict bool
	group  singleflight.Group

	loadTimeout time.Duration

	mu       sync.RWMutex
	gen      uint64
	sets     map[string]*resultSet
	snapshot *models.FeedSnapshot
}

func NewFetcher(api ListingsAPI, kv store.KeyValueStore, strict bool, logger *logrus.Logger) *Fetcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Fetcher{
		api:    api,
		store:  kv,
		logger: logger,
		strict: strict,
		sets:   make(map[string]*resultSet),

		loadTimeout: defaultLoadTimeout,
	}
}

// Restore loads the snapshot persisted by an earlier session so the first
// Replace fetch for its signature is served without a network call.
func (f *Fetcher) Restore(ctx context.Context) (bool, error) {
	var snap models.FeedSnapshot
	found, err := store.GetJSON(ctx, f.store, store.KeyFeedSnapshot, &snap)
	if err != nil || !found {
		return false, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snapshot == nil {
		f.snapshot = &snap
	}
	f.logger.WithFields(logrus.Fields{
		"signature": snap.Signature,
		"count":     len(snap.Listings),
	}).Debug("Restored feed snapshot")
	return true, nil
}

// Fetch loads listings for q. In Replace mode a cached result set for the
// same signature is served as is; only Revalidate refreshes it. In Append
// mode the next unfetched page is loaded and q.Page is ignored.
//
// On error the existing result set is left untouched.
func (f *Fetcher) Fetch(ctx context.Context, q models.ListingQuery, mode Mode) (Page, error) {
	return f.fetch(ctx, q, mode, false)
}

// Revalidate reloads page 1 of q from the network, replacing any cached result.
func (f *Fetcher) Revalidate(ctx context.Context, q models.ListingQuery) (Page, error) {
	return f.fetch(ctx, q, Replace, true)
}

func (f *Fetcher) fetch(ctx context.Context, q models.ListingQuery, mode Mode, force bool) (Page, error) {
	sig := q.Signature()

	if mode == Replace && !force {
		if page, ok := f.cached(sig, q.PageSize); ok {
			return page, nil
		}
	}

	f.mu.RLock()
	gen := f.gen
	f.mu.RUnlock()

	// Joined callers share the load; it outlives the caller that started it.
	key := fmt.Sprintf("%d:%s", gen, sig)
	ch := f.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.loadTimeout)
		defer cancel()
		return f.load(loadCtx, q, sig, mode, gen)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return Page{}, ctx.Err()
	}
	if res.Err != nil {
		return Page{}, res.Err
	}

	page := res.Val.(Page)
	page.Shared = res.Shared
	if res.Shared {
		f.logger.WithFields(logrus.Fields{
			"signature": sig,
			"mode":      mode.String(),
		}).Debug("Coalesced duplicate listings request")
	}
	return page, nil
}

func (f *Fetcher) cached(sig string, pageSize int) (Page, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if set, ok := f.sets[sig]; ok {
		page := pageOf(sig, set)
		page.FromCache = true
		return page, true
	}

	if f.snapshot == nil || f.snapshot.Signature != sig {
		return Page{}, false
	}

	set := &resultSet{
		listings:  f.snapshot.Listings,
		nextPage:  2,
		hasMore:   pageSize > 0 && len(f.snapshot.Listings) == pageSize,
		fetchedAt: f.snapshot.FetchedAt,
	}
	f.sets[sig] = set
	page := pageOf(sig, set)
	page.FromCache = true
	return page, true
}

func (f *Fetcher) load(ctx context.Context, q models.ListingQuery, sig string, mode Mode, gen uint64) (Page, error) {
	f.mu.RLock()
	base := f.sets[sig]
	f.mu.RUnlock()

	pageNum := 1
	if mode == Append && base != nil {
		if !base.hasMore {
			return pageOf(sig, base), nil
		}
		pageNum = base.nextPage
	}

	req := q
	req.Page = pageNum

	fields := logrus.Fields{
		"signature": sig,
		"city_id":   q.CityID,
		"mode":      mode.String(),
		"page":      pageNum,
	}

	start := time.Now()
	resp, err := f.api.GetListings(ctx, req)
	if err != nil {
		f.logger.WithError(err).WithFields(fields).Error("Failed to fetch listings")
		return Page{}, err
	}

	fetched := f.valid(resp.Listings)
	next := &resultSet{
		nextPage:  pageNum + 1,
		hasMore:   q.PageSize > 0 && resp.Received == q.PageSize,
		fetchedAt: time.Now(),
	}
	if pageNum > 1 {
		next.listings = appendUnique(base.listings, fetched)
	} else {
		next.listings = fetched
	}

	f.mu.Lock()
	if f.gen != gen {
		f.mu.Unlock()
		f.logger.WithFields(fields).Debug("Discarded listings fetched before reset")
		return Page{}, models.ErrStaleResponse
	}
	f.sets[sig] = next
	f.mu.Unlock()

	if pageNum == 1 {
		f.saveSnapshot(ctx, gen, models.FeedSnapshot{
			Signature: sig,
			Listings:  fetched,
			FetchedAt: next.fetchedAt,
		})
	}

	fields["received"] = resp.Received
	fields["kept"] = len(fetched)
	fields["has_more"] = next.hasMore
	fields["duration_ms"] = time.Since(start).Milliseconds()
	f.logger.WithFields(fields).Info("Fetched listings")

	return pageOf(sig, next), nil
}

// valid drops listings that cannot be displayed.
func (f *Fetcher) valid(listings []models.Listing) []models.Listing {
	kept := make([]models.Listing, 0, len(listings))
	for _, l := range listings {
		if err := l.Validate(); err != nil {
			if f.strict {
				f.logger.WithError(err).Warn("Dropped malformed listing")
			}
			continue
		}
		kept = append(kept, l)
	}
	return kept
}

func (f *Fetcher) saveSnapshot(ctx context.Context, gen uint64, snap models.FeedSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.gen != gen {
		return
	}
	f.snapshot = &snap
	if err := store.SetJSON(ctx, f.store, store.KeyFeedSnapshot, snap); err != nil {
		f.logger.WithError(err).Warn("Failed to persist feed snapshot")
	}
}

// Snapshot returns the first-page snapshot kept for cold starts.
func (f *Fetcher) Snapshot() (models.FeedSnapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.snapshot == nil {
		return models.FeedSnapshot{}, false
	}
	return *f.snapshot, true
}

// Reset drops every result set and the snapshot. Fetches still in flight
// complete with ErrStaleResponse and store nothing.
func (f *Fetcher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.sets = make(map[string]*resultSet)
	f.snapshot = nil
}

func pageOf(sig string, set *resultSet) Page {
	return Page{
		Signature: sig,
		Listings:  set.listings,
		Page:      set.nextPage - 1,
		HasMore:   set.hasMore,
		FetchedAt: set.fetchedAt,
	}
}

// appendUnique returns a new slice with the listings of next that are not
// already in base.
func appendUnique(base, next []models.Listing) []models.Listing {
	seen := make(map[string]struct{}, len(base)+len(next))
	out := make([]models.Listing, 0, len(base)+len(next))
	for _, l := range base {
		seen[l.UniquePropertyID] = struct{}{}
		out = append(out, l)
	}
	for _, l := range next {
		if _, dup := seen[l.UniquePropertyID]; dup {
			continue
		}
		seen[l.UniquePropertyID] = struct{}{}
		out = append(out, l)
	}
	return out
}
