package suggest

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"homefeed/client/internal/models"
	"homefeed/client/internal/store"
	"homefeed/client/internal/timer"
)

// LocalityAPI is the remote locality autocomplete.
type LocalityAPI interface {
	GetLocalities(ctx context.Context, cityID, input string) ([]models.Suggestion, error)
}

type Options struct {
	Debounce time.Duration

	// Size of the recently selected list
	RecentSize int

	// Remote suggestions kept per lookup
	MaxSuggestions int
}

// Searcher serves debounced locality suggestions with recent picks first.
type Searcher struct {
	api       LocalityAPI
	store     store.KeyValueStore
	logger    *logrus.Logger
	opts      Options
	debouncer *timer.Debouncer

	mu      sync.Mutex
	recents []models.Suggestion
}

func NewSearcher(api LocalityAPI, kv store.KeyValueStore, opts Options, logger *logrus.Logger) *Searcher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if opts.RecentSize <= 0 {
		opts.RecentSize = 5
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 10
	}
	return &Searcher{
		api:       api,
		store:     kv,
		logger:    logger,
		opts:      opts,
		debouncer: timer.NewDebouncer(opts.Debounce),
	}
}

type result struct {
	suggestions []models.Suggestion
	err         error
}

// Suggest returns suggestions for text within a city. Only the last call of
// a burst reaches the network; the calls it superseded, and calls whose
// lookup finished after a newer one started, return ErrStaleResponse.
// Blank text returns no suggestions and cancels any pending lookup.
func (s *Searcher) Suggest(ctx context.Context, cityID, text string) ([]models.Suggestion, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.debouncer.Cancel()
		return []models.Suggestion{}, nil
	}

	out := make(chan result, 1)
	s.debouncer.Call(func(seq uint64) {
		suggestions := s.lookup(ctx, cityID, text)
		if !s.debouncer.Latest(seq) {
			s.logger.WithField("text", text).Debug("Discarded stale suggestions")
			out <- result{err: models.ErrStaleResponse}
			return
		}
		out <- result{suggestions: suggestions}
	}, func() {
		out <- result{err: models.ErrStaleResponse}
	})

	select {
	case r := <-out:
		return r.suggestions, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup never fails: a remote error falls back to the recent picks.
func (s *Searcher) lookup(ctx context.Context, cityID, text string) []models.Suggestion {
	remote, err := s.api.GetLocalities(ctx, cityID, text)
	recents := s.Recent()
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"city_id": cityID,
			"text":    text,
		}).Warn("Locality lookup failed, using recent picks")
		return recents
	}

	if len(remote) > s.opts.MaxSuggestions {
		remote = remote[:s.opts.MaxSuggestions]
	}

	seen := make(map[string]struct{}, len(recents))
	merged := make([]models.Suggestion, 0, len(recents)+len(remote))
	for _, r := range recents {
		seen[r.ID] = struct{}{}
		merged = append(merged, r)
	}
	for _, r := range remote {
		if _, dup := seen[r.ID]; dup {
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// Select records a picked suggestion as the most recent one.
func (s *Searcher) Select(ctx context.Context, picked models.Suggestion) ([]models.Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	recents := make([]models.Suggestion, 0, s.opts.RecentSize)
	recents = append(recents, picked)
	for _, r := range s.recents {
		if len(recents) == s.opts.RecentSize {
			break
		}
		if r.ID != picked.ID {
			recents = append(recents, r)
		}
	}
	s.recents = recents

	if err := store.SetJSON(ctx, s.store, store.KeyRecentSuggestions, recents); err != nil {
		s.logger.WithError(err).Warn("Failed to persist recent suggestions")
		return cloneSuggestions(recents), err
	}
	return cloneSuggestions(recents), nil
}

// Recent returns the recent picks, most recent first.
func (s *Searcher) Recent() []models.Suggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneSuggestions(s.recents)
}

// Restore loads the recent picks persisted by an earlier session.
func (s *Searcher) Restore(ctx context.Context) error {
	var recents []models.Suggestion
	found, err := store.GetJSON(ctx, s.store, store.KeyRecentSuggestions, &recents)
	if err != nil || !found {
		return err
	}
	if len(recents) > s.opts.RecentSize {
		recents = recents[:s.opts.RecentSize]
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recents = recents
	return nil
}

// Cancel drops any pending lookup.
func (s *Searcher) Cancel() {
	s.debouncer.Cancel()
}

func cloneSuggestions(in []models.Suggestion) []models.Suggestion {
	out := make([]models.Suggestion, len(in))
	copy(out, in)
	return out
}
