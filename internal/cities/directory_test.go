package cities

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"homefeed/client/internal/models"
	"homefeed/client/internal/store"
)

type mockCityAPI struct {
	mock.Mock
}

func (m *mockCityAPI) GetCities(ctx context.Context) ([]models.City, error) {
	args := m.Called(ctx)
	cities, _ := args.Get(0).([]models.City)
	return cities, args.Error(1)
}

var testCities = []models.City{
	{ID: "4", Label: "Hyderabad"},
	{ID: "6", Label: "Chennai"},
	{ID: "9", Label: "Secunderabad"},
	{ID: "12", Label: "Bengaluru"},
}

func TestDirectory_LoadOnce(t *testing.T) {
	api := new(mockCityAPI)
	api.On("GetCities", mock.Anything).Return(testCities, nil).Once()
	kv := store.NewMemoryStore()
	d := NewDirectory(api, kv, logrus.New())

	cities, err := d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCities, cities)

	// Served from memory afterwards
	cities, err = d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCities, cities)
	api.AssertNumberOfCalls(t, "GetCities", 1)

	var persisted []models.City
	found, err := store.GetJSON(context.Background(), kv, store.KeyCities, &persisted)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, testCities, persisted)
}

func TestDirectory_LoadCoalesces(t *testing.T) {
	api := new(mockCityAPI)
	api.On("GetCities", mock.Anything).
		After(50*time.Millisecond).
		Return(testCities, nil).Once()
	d := NewDirectory(api, store.NewMemoryStore(), logrus.New())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cities, err := d.Load(context.Background())
			assert.NoError(t, err)
			assert.Len(t, cities, len(testCities))
		}()
	}
	wg.Wait()
	api.AssertNumberOfCalls(t, "GetCities", 1)
}

func TestDirectory_LoadErrorIsSurfaced(t *testing.T) {
	api := new(mockCityAPI)
	api.On("GetCities", mock.Anything).Return(nil, models.ErrNetwork).Once()
	api.On("GetCities", mock.Anything).Return(testCities, nil).Once()
	d := NewDirectory(api, store.NewMemoryStore(), logrus.New())

	_, err := d.Load(context.Background())
	assert.True(t, errors.Is(err, models.ErrNetwork))

	// A retry after a failure goes back to the network
	cities, err := d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCities, cities)
	api.AssertExpectations(t)
}

func TestDirectory_Restore(t *testing.T) {
	kv := store.NewMemoryStore()
	require.NoError(t, store.SetJSON(context.Background(), kv, store.KeyCities, testCities[:2]))

	api := new(mockCityAPI)
	d := NewDirectory(api, kv, logrus.New())

	found, err := d.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, found)

	cities, err := d.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testCities[:2], cities)
	api.AssertNotCalled(t, "GetCities", mock.Anything)

	empty := NewDirectory(api, store.NewMemoryStore(), logrus.New())
	found, err = empty.Restore(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDirectory_Search(t *testing.T) {
	api := new(mockCityAPI)
	api.On("GetCities", mock.Anything).Return(testCities, nil)
	d := NewDirectory(api, store.NewMemoryStore(), logrus.New())
	_, err := d.Load(context.Background())
	require.NoError(t, err)

	tests := []struct {
		name     string
		query    string
		expected []string
	}{
		{"Empty matches all", "", []string{"4", "6", "9", "12"}},
		{"Case insensitive", "HYDER", []string{"4"}},
		{"Substring keeps source order", "bad", []string{"4", "9"}},
		{"Trimmed", "  chen ", []string{"6"}},
		{"No match", "Mumbai", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ids := []string{}
			for _, c := range d.Search(tt.query) {
				ids = append(ids, c.ID)
			}
			assert.Equal(t, tt.expected, ids)
		})
	}
}

func TestDirectory_MatchAndLookup(t *testing.T) {
	api := new(mockCityAPI)
	api.On("GetCities", mock.Anything).Return(testCities, nil)
	d := NewDirectory(api, store.NewMemoryStore(), logrus.New())

	// Nothing loaded yet
	_, ok := d.Match("Hyderabad")
	assert.False(t, ok)

	_, err := d.Load(context.Background())
	require.NoError(t, err)

	city, ok := d.Match("hyderabad")
	assert.True(t, ok)
	assert.Equal(t, "4", city.ID)

	// Exact match only
	_, ok = d.Match("Hyd")
	assert.False(t, ok)
	_, ok = d.Match("")
	assert.False(t, ok)

	city, ok = d.Lookup("6")
	assert.True(t, ok)
	assert.Equal(t, "Chennai", city.Label)

	_, ok = d.Lookup("99")
	assert.False(t, ok)
}

func TestDirectory_SeedServesUntilLoaded(t *testing.T) {
	api := new(mockCityAPI)
	api.On("GetCities", mock.Anything).Return(nil, models.ErrNetwork).Once()
	api.On("GetCities", mock.Anything).Return(testCities, nil).Once()
	d := NewDirectory(api, store.NewMemoryStore(), logrus.New())
	assert.False(t, d.Available())

	d.SetSeed([]models.City{{ID: "4", Label: "Hyderabad"}})
	assert.True(t, d.Available())

	// The failure is still reported, lookups use the seed
	_, err := d.Load(context.Background())
	assert.True(t, errors.Is(err, models.ErrNetwork))

	city, ok := d.Match("HYDERABAD")
	assert.True(t, ok)
	assert.Equal(t, "4", city.ID)
	_, ok = d.Lookup("6")
	assert.False(t, ok)
	assert.Len(t, d.Search(""), 1)

	// A loaded list replaces the seed
	_, err = d.Load(context.Background())
	require.NoError(t, err)
	city, ok = d.Lookup("6")
	assert.True(t, ok)
	assert.Equal(t, "Chennai", city.Label)
	assert.Len(t, d.Search(""), len(testCities))
	api.AssertExpectations(t)
}
