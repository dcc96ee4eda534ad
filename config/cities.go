package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"homefeed/client/internal/models"
)

var (
	// supportedCities seeds the city directory while the cities endpoint
	// is unreachable and no list was persisted.
	supportedCities = []models.City{
		{ID: "4", Label: "Hyderabad"},
	}
	citiesLock sync.RWMutex
)

// LoadSupportedCities replaces the built-in city seed with the JSON list
// of {"id", "label"} objects at path.
func LoadSupportedCities(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to get absolute path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return fmt.Errorf("failed to read cities file: %w", err)
	}

	var cities []models.City
	if err := json.Unmarshal(data, &cities); err != nil {
		return fmt.Errorf("failed to parse cities file: %w", err)
	}
	for i, c := range cities {
		if c.ID == "" || c.Label == "" {
			return fmt.Errorf("cities file: entry %d needs an id and a label", i)
		}
	}

	citiesLock.Lock()
	defer citiesLock.Unlock()
	supportedCities = cities
	return nil
}

// SupportedCities returns a copy of the city seed.
func SupportedCities() []models.City {
	citiesLock.RLock()
	defer citiesLock.RUnlock()

	cities := make([]models.City, len(supportedCities))
	copy(cities, supportedCities)
	return cities
}

// GetCityByID returns a seeded city by id
func GetCityByID(id string) (models.City, bool) {
	citiesLock.RLock()
	defer citiesLock.RUnlock()

	for _, city := range supportedCities {
		if city.ID == id {
			return city, true
		}
	}
	return models.City{}, false
}

// DefaultCity returns the city queries fall back to: the seeded city with
// the configured id, or the configured id and label as given.
func (c *Config) DefaultCity() models.City {
	if city, ok := GetCityByID(c.Feed.DefaultCityID); ok {
		return city
	}
	return models.City{ID: c.Feed.DefaultCityID, Label: c.Feed.DefaultCityLabel}
}
