package config

import (
	"time"

	"github.com/caarlos0/env/v6"
)

type Config struct {
	// API configuration for the remote listings service
	API struct {
		BaseURL   string        `env:"API_BASE_URL" envDefault:"https://api.meetowner.in"`
		Timeout   time.Duration `env:"API_TIMEOUT" envDefault:"10s"`
		UserAgent string        `env:"API_USER_AGENT" envDefault:"HomeFeed Client/1.0"`

		// Log every dropped listing record as a malformed response
		Strict bool `env:"API_STRICT" envDefault:"true"`
	}

	Feed struct {
		PageSize        int           `env:"FEED_PAGE_SIZE" envDefault:"10"`
		RefreshInterval time.Duration `env:"FEED_REFRESH_INTERVAL" envDefault:"2m"`

		// Used whenever the active location has no usable city id
		DefaultCityID    string `env:"FEED_DEFAULT_CITY_ID" envDefault:"4"`
		DefaultCityLabel string `env:"FEED_DEFAULT_CITY_LABEL" envDefault:"Hyderabad"`

		// JSON list of cities served while the cities endpoint is unreachable
		CitiesPath string `env:"FEED_CITIES_PATH"`
	}

	Search struct {
		Debounce       time.Duration `env:"SEARCH_DEBOUNCE" envDefault:"300ms"`
		RecentSize     int           `env:"SEARCH_RECENT_SIZE" envDefault:"5"`
		MaxSuggestions int           `env:"SEARCH_MAX_SUGGESTIONS" envDefault:"10"`
	}

	Profile struct {
		TTL time.Duration `env:"PROFILE_TTL" envDefault:"10m"`
	}

	Store struct {
		// One of sqlite, redis, memory
		Backend   string `env:"STORE_BACKEND" envDefault:"sqlite"`
		Path      string `env:"STORE_PATH" envDefault:"data/homefeed.db"`
		KeyPrefix string `env:"STORE_KEY_PREFIX" envDefault:"homefeed:"`

		RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string `env:"REDIS_PASSWORD"`
		RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

		// Maximum number of retries for writes hitting a busy database
		MaxRetries int `env:"STORE_MAX_RETRIES" envDefault:"3"`

		// Delay between retries
		RetryDelay time.Duration `env:"STORE_RETRY_DELAY" envDefault:"50ms"`
	}

	Geocoder struct {
		ReverseURL string  `env:"GEOCODER_REVERSE_URL" envDefault:"https://nominatim.openstreetmap.org/reverse"`
		CacheDir   string  `env:"GEOCODER_CACHE_DIR"`
		RatePerSec float64 `env:"GEOCODER_RATE" envDefault:"1"`
	}

	Device struct {
		// Static position used by the CLI in place of a device GPS
		Latitude  float64 `env:"DEVICE_LAT"`
		Longitude float64 `env:"DEVICE_LNG"`
		Granted   bool    `env:"DEVICE_LOCATION_GRANTED" envDefault:"false"`
	}

	Session struct {
		UserID string `env:"SESSION_USER_ID"`
	}

	Server struct {
		Address     string   `env:"SERVER_ADDRESS" envDefault:":5250"`
		CORSOrigins []string `env:"SERVER_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
	}

	FiltersPath string `env:"FILTERS_PATH"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
