package cities

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/cases"

	"homefeed/client/internal/models"
	"homefeed/client/internal/store"
)

// CityAPI is the remote source of supported cities.
type CityAPI interface {
	GetCities(ctx context.Context) ([]models.City, error)
}

// Directory holds the canonical list of supported cities for the session.
type Directory struct {
	api    CityAPI
	store  store.KeyValueStore
	logger *logrus.Logger
	group  singleflight.Group

	mu     sync.RWMutex
	cities []models.City
	loaded bool

	// Offline list used until a remote or persisted list is loaded
	seed []models.City
}

func NewDirectory(api CityAPI, kv store.KeyValueStore, logger *logrus.Logger) *Directory {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Directory{api: api, store: kv, logger: logger}
}

// Restore loads the list persisted by an earlier session. It reports whether
// one was found.
func (d *Directory) Restore(ctx context.Context) (bool, error) {
	var persisted []models.City
	found, err := store.GetJSON(ctx, d.store, store.KeyCities, &persisted)
	if err != nil || !found || len(persisted) == 0 {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.loaded {
		d.cities = persisted
		d.loaded = true
	}
	d.logger.WithField("count", len(persisted)).Debug("Restored persisted cities")
	return true, nil
}

// Load returns the supported cities in server order. The remote list is
// fetched at most once per session; concurrent callers share one request.
// Errors are returned as is and nothing is cached, so callers may retry.
func (d *Directory) Load(ctx context.Context) ([]models.City, error) {
	if cities, ok := d.snapshot(); ok {
		return cities, nil
	}

	v, err, _ := d.group.Do(store.KeyCities, func() (interface{}, error) {
		if cities, ok := d.snapshot(); ok {
			return cities, nil
		}

		cities, err := d.api.GetCities(ctx)
		if err != nil {
			d.logger.WithError(err).Error("Failed to load cities")
			return nil, err
		}

		d.mu.Lock()
		d.cities = cities
		d.loaded = true
		d.mu.Unlock()

		if err := store.SetJSON(ctx, d.store, store.KeyCities, cities); err != nil {
			d.logger.WithError(err).Warn("Failed to persist cities")
		}
		d.logger.WithField("count", len(cities)).Info("Loaded cities")
		return cities, nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]models.City)), nil
}

// SetSeed sets the offline list that Search, Match and Lookup fall back to
// while no city list is loaded. Load still reports remote failures.
func (d *Directory) SetSeed(cities []models.City) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.seed = clone(cities)
}

// Available reports whether Search, Match and Lookup have cities to serve.
func (d *Directory) Available() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded || len(d.seed) > 0
}

// Search returns the cities whose label contains substring, ignoring case,
// in source order. An empty substring matches every city.
func (d *Directory) Search(substring string) []models.City {
	cities := d.known()
	needle := cases.Fold().String(strings.TrimSpace(substring))

	matches := make([]models.City, 0, len(cities))
	for _, c := range cities {
		if strings.Contains(cases.Fold().String(c.Label), needle) {
			matches = append(matches, c)
		}
	}
	return matches
}

// Match finds the city whose label equals name, ignoring case.
func (d *Directory) Match(name string) (models.City, bool) {
	cities := d.known()
	want := cases.Fold().String(strings.TrimSpace(name))
	if want == "" {
		return models.City{}, false
	}
	for _, c := range cities {
		if cases.Fold().String(c.Label) == want {
			return c, true
		}
	}
	return models.City{}, false
}

// Lookup finds a city by id.
func (d *Directory) Lookup(id string) (models.City, bool) {
	cities := d.known()
	for _, c := range cities {
		if c.ID == id {
			return c, true
		}
	}
	return models.City{}, false
}

func (d *Directory) snapshot() ([]models.City, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return clone(d.cities), d.loaded
}

// known returns the loaded list, or the seed while none is loaded.
func (d *Directory) known() []models.City {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.loaded {
		return clone(d.cities)
	}
	return clone(d.seed)
}

func clone(cities []models.City) []models.City {
	out := make([]models.City, len(cities))
	copy(out, cities)
	return out
}
