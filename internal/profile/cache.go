package profile

import (
	"context"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"homefeed/client/internal/models"
	"homefeed/client/internal/store"
)

// ProfileAPI fetches a user's profile.
type ProfileAPI interface {
	GetProfile(ctx context.Context, userID string) (models.Profile, error)
}

// Cache keeps the signed-in user's profile for a fixed time to live.
type Cache struct {
	api    ProfileAPI
	store  store.KeyValueStore
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewCache(api ProfileAPI, kv store.KeyValueStore, ttl time.Duration, logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Cache{api: api, store: kv, ttl: ttl, logger: logger, now: time.Now}
}

// Get returns the cached profile of userID while it is younger than the TTL,
// otherwise fetches and caches a fresh one.
func (c *Cache) Get(ctx context.Context, userID string) (models.Profile, error) {
	var cached models.CachedProfile
	found, err := store.GetJSON(ctx, c.store, store.KeyProfile, &cached)
	if err != nil {
		c.logger.WithError(err).Warn("Failed to read cached profile")
	}
	if found && cached.Profile.UserID == userID && c.now().Sub(cached.FetchedAt) < c.ttl {
		return cached.Profile, nil
	}

	p, err := c.api.GetProfile(ctx, userID)
	if err != nil {
		c.logger.WithError(err).WithField("user_id", userID).Error("Failed to fetch profile")
		return models.Profile{}, err
	}

	entry := models.CachedProfile{Profile: p, FetchedAt: c.now()}
	if err := store.SetJSON(ctx, c.store, store.KeyProfile, entry); err != nil {
		c.logger.WithError(err).Warn("Failed to cache profile")
	}
	return p, nil
}

// Invalidate drops the cached profile.
func (c *Cache) Invalidate(ctx context.Context) error {
	return c.store.Remove(ctx, store.KeyProfile)
}
