package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"homefeed/client/internal/models"
)

const cacheFileName = "reverse_geocode_cache.json"

// Geocoder turns coordinates into a city name using Nominatim reverse lookups.
type Geocoder struct {
	logger     *logrus.Logger
	reverseURL string
	cacheDir   string
	cache      map[string]string
	cacheLock  sync.RWMutex
	client     *http.Client
	limiter    *rate.Limiter
}

func NewGeocoder(logger *logrus.Logger, reverseURL, cacheDir string, ratePerSec float64) *Geocoder {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if ratePerSec <= 0 {
		ratePerSec = 1
	}

	g := &Geocoder{
		logger:     logger,
		reverseURL: reverseURL,
		cacheDir:   cacheDir,
		cache:      make(map[string]string),
		client:     &http.Client{Timeout: 10 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSec), 1),
	}

	if cacheDir != "" {
		if err := os.MkdirAll(cacheDir, 0755); err != nil {
			logger.WithError(err).Warn("Could not create geocode cache directory")
		}
		g.loadCache()
	}

	return g
}

// cacheKey rounds to roughly 100m so nearby fixes share an entry.
func cacheKey(p orb.Point) string {
	return fmt.Sprintf("%.3f|%.3f", p.Lat(), p.Lon())
}

func (g *Geocoder) loadCache() {
	cacheFile := filepath.Join(g.cacheDir, cacheFileName)
	data, err := os.ReadFile(cacheFile)
	if err != nil {
		g.logger.Warnf("Could not load geocode cache: %v", err)
		return
	}

	g.cacheLock.Lock()
	defer g.cacheLock.Unlock()
	if err := json.Unmarshal(data, &g.cache); err != nil {
		g.logger.Errorf("Failed to parse geocode cache: %v", err)
		return
	}

	g.logger.Infof("Loaded %d cached positions", len(g.cache))
}

func (g *Geocoder) saveCache() {
	if g.cacheDir == "" {
		return
	}

	g.cacheLock.RLock()
	data, err := json.Marshal(g.cache)
	g.cacheLock.RUnlock()
	if err != nil {
		g.logger.Errorf("Failed to marshal geocode cache: %v", err)
		return
	}

	cacheFile := filepath.Join(g.cacheDir, cacheFileName)
	if err := os.WriteFile(cacheFile, data, 0644); err != nil {
		g.logger.Errorf("Failed to save geocode cache: %v", err)
		return
	}

	g.logger.Debug("Saved geocode cache to disk")
}

// ReverseGeocode returns the city name for the given position.
func (g *Geocoder) ReverseGeocode(ctx context.Context, p orb.Point) (string, error) {
	key := cacheKey(p)

	g.cacheLock.RLock()
	city, ok := g.cache[key]
	g.cacheLock.RUnlock()
	if ok {
		g.logger.WithFields(logrus.Fields{
			"latitude":  p.Lat(),
			"longitude": p.Lon(),
			"city":      city,
			"source":    "cache",
		}).Debug("Found city in cache")
		return city, nil
	}

	// Respect Nominatim's usage policy
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}

	params := url.Values{
		"lat":            []string{strconv.FormatFloat(p.Lat(), 'f', -1, 64)},
		"lon":            []string{strconv.FormatFloat(p.Lon(), 'f', -1, 64)},
		"format":         []string{"geojson"},
		"zoom":           []string{"10"},
		"addressdetails": []string{"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.reverseURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "HomeFeed Client/1.0")
	req.Header.Set("Accept-Language", "en-IN,en;q=0.9")

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.WithError(err).Error("Reverse geocoding request failed")
		return "", fmt.Errorf("%w: reverse geocoding: %w", models.ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: reverse geocoding: status %d", models.ErrNetwork, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %w", models.ErrNetwork, err)
	}

	city, err = cityFromFeatureCollection(body)
	if err != nil {
		g.logger.WithError(err).WithFields(logrus.Fields{
			"latitude":  p.Lat(),
			"longitude": p.Lon(),
		}).Warn("No city in reverse geocoding result")
		return "", err
	}

	g.logger.WithFields(logrus.Fields{
		"latitude":  p.Lat(),
		"longitude": p.Lon(),
		"city":      city,
		"source":    "nominatim",
	}).Info("Successfully reverse geocoded position")

	g.cacheLock.Lock()
	g.cache[key] = city
	g.cacheLock.Unlock()

	go g.saveCache()

	return city, nil
}

var addressCityKeys = []string{"city", "town", "municipality", "state_district", "county"}

func cityFromFeatureCollection(body []byte) (string, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to parse response: %v", models.ErrMalformedResponse, err)
	}
	if len(fc.Features) == 0 {
		return "", errors.New("no results found for position")
	}

	address, ok := fc.Features[0].Properties["address"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: result has no address", models.ErrMalformedResponse)
	}
	for _, k := range addressCityKeys {
		if v, ok := address[k].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", errors.New("no city in address")
}
