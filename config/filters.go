package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"

	"homefeed/client/internal/models"
)

//go:embed filters.yaml
var defaultFilters []byte

// Option is a labelled filter value.
type Option struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

// FilterCatalog lists the values each listing filter accepts.
type FilterCatalog struct {
	PropertyFor        []Option `yaml:"property_for" json:"property_for"`
	DefaultPropertyFor string   `yaml:"default_property_for" json:"default_property_for"`
	PropertyTypes      []string `yaml:"property_types" json:"property_types"`
	Bedrooms           []string `yaml:"bedrooms" json:"bedrooms"`
	PossessionStatuses []string `yaml:"possession_statuses" json:"possession_statuses"`
	MinPrice           int64    `yaml:"min_price" json:"min_price"`
	MaxPrice           int64    `yaml:"max_price" json:"max_price"`
}

// LoadFilterCatalog reads the catalog at path, or the embedded one when path is empty.
func LoadFilterCatalog(path string) (*FilterCatalog, error) {
	data := defaultFilters
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		data, err = os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read filter catalog: %w", err)
		}
	}

	var catalog FilterCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse filter catalog: %w", err)
	}
	if catalog.MaxPrice > 0 && catalog.MinPrice > catalog.MaxPrice {
		return nil, fmt.Errorf("filter catalog: min_price %d above max_price %d", catalog.MinPrice, catalog.MaxPrice)
	}
	return &catalog, nil
}

// Defaults returns the filters a fresh feed starts with.
func (c *FilterCatalog) Defaults() models.ListingFilters {
	return models.ListingFilters{
		MinPrice: c.MinPrice,
		MaxPrice: c.MaxPrice,
	}
}

// Cleared returns the filters after the user clears them all.
func (c *FilterCatalog) Cleared() models.ListingFilters {
	f := c.Defaults()
	f.PropertyFor = c.DefaultPropertyFor
	return f
}

// Normalize maps option labels to their values, fills missing prices and
// rejects values outside the catalog.
func (c *FilterCatalog) Normalize(f models.ListingFilters) (models.ListingFilters, error) {
	propertyFor, ok := c.propertyForValue(f.PropertyFor)
	if !ok {
		return f, fmt.Errorf("%w: property_for %q", models.ErrInvalidFilter, f.PropertyFor)
	}
	f.PropertyFor = propertyFor

	if !allowed(c.PropertyTypes, f.PropertyType) {
		return f, fmt.Errorf("%w: property_type %q", models.ErrInvalidFilter, f.PropertyType)
	}
	if !allowed(c.Bedrooms, f.Bedrooms) {
		return f, fmt.Errorf("%w: bedrooms %q", models.ErrInvalidFilter, f.Bedrooms)
	}
	if !allowed(c.PossessionStatuses, f.PossessionStatus) {
		return f, fmt.Errorf("%w: possession_status %q", models.ErrInvalidFilter, f.PossessionStatus)
	}

	if f.MinPrice <= 0 {
		f.MinPrice = c.MinPrice
	}
	if f.MaxPrice <= 0 {
		f.MaxPrice = c.MaxPrice
	}
	if f.MaxPrice > 0 && f.MinPrice > f.MaxPrice {
		return f, fmt.Errorf("%w: min_price %d above max_price %d", models.ErrInvalidFilter, f.MinPrice, f.MaxPrice)
	}
	return f, nil
}

func (c *FilterCatalog) propertyForValue(v string) (string, bool) {
	if v == "" {
		return "", true
	}
	for _, opt := range c.PropertyFor {
		if opt.Value == v || opt.Label == v {
			return opt.Value, true
		}
	}
	return "", false
}

func allowed(options []string, v string) bool {
	if v == "" {
		return true
	}
	for _, opt := range options {
		if opt == v {
			return true
		}
	}
	return false
}
