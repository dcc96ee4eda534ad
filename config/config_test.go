package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homefeed/client/internal/models"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Feed.PageSize)
	assert.Equal(t, 2*time.Minute, cfg.Feed.RefreshInterval)
	assert.Equal(t, 300*time.Millisecond, cfg.Search.Debounce)
	assert.Equal(t, 5, cfg.Search.RecentSize)
	assert.Equal(t, 10*time.Minute, cfg.Profile.TTL)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.True(t, cfg.API.Strict)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("FEED_PAGE_SIZE", "50")
	t.Setenv("FEED_REFRESH_INTERVAL", "30s")
	t.Setenv("SERVER_CORS_ORIGINS", "http://a.test,http://b.test")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Feed.PageSize)
	assert.Equal(t, 30*time.Second, cfg.Feed.RefreshInterval)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
}

func TestLoadFilterCatalog_Embedded(t *testing.T) {
	catalog, err := LoadFilterCatalog("")
	require.NoError(t, err)

	assert.Equal(t, int64(1000), catalog.MinPrice)
	assert.Equal(t, int64(30000000), catalog.MaxPrice)
	assert.Equal(t, "Sell", catalog.DefaultPropertyFor)
	assert.Contains(t, catalog.PropertyTypes, "Apartment")
	assert.Len(t, catalog.Bedrooms, 8)
}

func TestLoadFilterCatalog_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "filters.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_price: 10\nmax_price: 5\n"), 0644))

	_, err := LoadFilterCatalog(path)
	assert.Error(t, err)

	_, err = LoadFilterCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFilterCatalog_Normalize(t *testing.T) {
	catalog, err := LoadFilterCatalog("")
	require.NoError(t, err)

	tests := []struct {
		name     string
		in       models.ListingFilters
		expected models.ListingFilters
		invalid  bool
	}{
		{
			name:     "Buy label maps to Sell",
			in:       models.ListingFilters{PropertyFor: "Buy"},
			expected: models.ListingFilters{PropertyFor: "Sell", MinPrice: 1000, MaxPrice: 30000000},
		},
		{
			name:     "Explicit prices kept",
			in:       models.ListingFilters{PropertyFor: "Rent", Bedrooms: "2 BHK", MinPrice: 5000, MaxPrice: 90000},
			expected: models.ListingFilters{PropertyFor: "Rent", Bedrooms: "2 BHK", MinPrice: 5000, MaxPrice: 90000},
		},
		{
			name:    "Unknown property type",
			in:      models.ListingFilters{PropertyType: "Castle"},
			invalid: true,
		},
		{
			name:    "Inverted price range",
			in:      models.ListingFilters{MinPrice: 9000, MaxPrice: 10},
			invalid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := catalog.Normalize(tt.in)
			if tt.invalid {
				assert.True(t, errors.Is(err, models.ErrInvalidFilter))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestFilterCatalog_Cleared(t *testing.T) {
	catalog, err := LoadFilterCatalog("")
	require.NoError(t, err)

	cleared := catalog.Cleared()
	assert.Equal(t, "Sell", cleared.PropertyFor)
	assert.Equal(t, catalog.MinPrice, cleared.MinPrice)
	assert.Empty(t, catalog.Defaults().PropertyFor)
}
