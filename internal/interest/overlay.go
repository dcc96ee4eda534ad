package interest

import (
	"context"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"homefeed/client/internal/models"
	"homefeed/client/internal/queue"
	"homefeed/client/internal/store"
)

const defaultQueueSize = 64

// InterestAPI is the remote side of the interest overlay.
type InterestAPI interface {
	ToggleInterest(ctx context.Context, userID, propertyID string, action models.InterestAction) error
	GetInterestedListings(ctx context.Context, userID string) ([]models.Listing, error)
}

// Identity supplies the signed-in user, if any.
type Identity interface {
	UserID() (string, bool)
}

// StaticIdentity is a fixed user id. The empty value means signed out.
type StaticIdentity string

func (s StaticIdentity) UserID() (string, bool) {
	return string(s), s != ""
}

type entry struct {
	// Shown to the user
	liked bool

	// Last value the server acknowledged
	confirmed bool

	// Sequence number of the latest toggle and toggles still in flight
	seq      uint64
	inFlight int

	// Overlay clock value of the last local change
	changed uint64

	state State
}

// syncMark is the overlay's position when a server sync was issued.
type syncMark struct {
	gen   uint64
	clock uint64
}

// Overlay tracks the like flag of each listing. Toggles apply locally at
// once and reach the server in issue order through a single-worker queue;
// a failed toggle reverts the flag unless a newer toggle superseded it.
type Overlay struct {
	api       InterestAPI
	identity  Identity
	store     store.KeyValueStore
	logger    *logrus.Logger
	queueSize int

	mu      sync.RWMutex
	entries map[string]*entry
	queue   *queue.ToggleQueue
	ctx     context.Context

	// clock advances on every local change, gen on every Reset
	clock uint64
	gen   uint64
}

func NewOverlay(api InterestAPI, identity Identity, kv store.KeyValueStore, queueSize int, logger *logrus.Logger) *Overlay {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Overlay{
		api:       api,
		identity:  identity,
		store:     kv,
		logger:    logger,
		queueSize: queueSize,
		entries:   make(map[string]*entry),
	}
}

// Start begins delivering toggles to the server. It is a no-op while
// delivery is running.
func (o *Overlay) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ctx = ctx
	if o.queue == nil {
		o.startQueueLocked()
	}
}

func (o *Overlay) startQueueLocked() {
	q := queue.NewToggleQueue(o.queueSize, o.logger)
	q.Subscribe(o.deliver)
	q.Start(o.ctx)
	o.queue = q
}

// Close stops delivery. Toggles not yet delivered fail with
// queue.ErrQueueClosed and are rolled back.
func (o *Overlay) Close() error {
	o.mu.Lock()
	q := o.queue
	o.queue = nil
	o.mu.Unlock()

	if q == nil {
		return nil
	}
	err := q.Close()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.abandonInFlightLocked()
	return err
}

// Restore loads the confirmed records persisted by an earlier session.
func (o *Overlay) Restore(ctx context.Context) (int, error) {
	var records []models.InterestRecord
	found, err := store.GetJSON(ctx, o.store, store.KeyInterestOverlay, &records)
	if err != nil || !found {
		return 0, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range records {
		if _, ok := o.entries[r.UniquePropertyID]; ok {
			continue
		}
		o.entries[r.UniquePropertyID] = &entry{liked: r.Liked, confirmed: r.Liked, state: StateConfirmed}
	}
	return len(records), nil
}

// Merge returns a copy of listings with IsInterested taken from the overlay.
// Listings the overlay does not know are not interested.
func (o *Overlay) Merge(listings []models.Listing) []models.Listing {
	o.mu.RLock()
	defer o.mu.RUnlock()

	merged := make([]models.Listing, len(listings))
	for i, l := range listings {
		e, ok := o.entries[l.UniquePropertyID]
		l.IsInterested = ok && e.liked
		merged[i] = l
	}
	return merged
}

// Liked reports the displayed like flag of a listing.
func (o *Overlay) Liked(propertyID string) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[propertyID]
	return ok && e.liked
}

// StateOf reports the sync state of a listing's like flag.
func (o *Overlay) StateOf(propertyID string) State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if e, ok := o.entries[propertyID]; ok {
		return e.state
	}
	return StateIdle
}

// Toggle flips the like flag of a listing and waits for the server to apply
// it. It returns the flag as displayed afterwards: on failure that is the
// reverted value. A cancelled ctx stops the wait, not the delivery.
func (o *Overlay) Toggle(ctx context.Context, propertyID string) (bool, error) {
	userID, ok := o.identity.UserID()
	if !ok {
		return false, models.ErrInterestDisabled
	}

	o.mu.Lock()
	e, ok := o.entries[propertyID]
	if !ok {
		e = &entry{state: StateIdle}
		o.entries[propertyID] = e
	}
	o.setState(propertyID, e, StatePending)
	e.liked = !e.liked
	e.seq++
	e.inFlight++
	o.touchLocked(e)
	toggle := models.NewInterestToggle(userID, propertyID, e.liked, e.seq)
	q := o.queue
	o.mu.Unlock()

	o.logger.WithFields(logrus.Fields{
		"unique_property_id": propertyID,
		"liked":              toggle.Liked,
		"seq":                toggle.Seq,
	}).Debug("Queued interest toggle")

	if q == nil {
		o.complete(ctx, toggle, queue.ErrQueueClosed)
		return o.Liked(propertyID), queue.ErrQueueClosed
	}
	if err := q.Push(toggle); err != nil {
		o.complete(ctx, toggle, err)
		return o.Liked(propertyID), err
	}

	select {
	case err := <-toggle.Done:
		return o.Liked(propertyID), err
	case <-ctx.Done():
		return o.Liked(propertyID), ctx.Err()
	}
}

// deliver is the queue handler; it runs on the single queue worker.
func (o *Overlay) deliver(ctx context.Context, toggle *models.InterestToggle) error {
	err := o.api.ToggleInterest(ctx, toggle.UserID, toggle.UniquePropertyID, models.ActionFor(toggle.Liked))
	o.complete(ctx, toggle, err)
	return err
}

// complete applies the outcome of one toggle. A failure only reverts the
// flag when no newer toggle for the listing has been issued.
func (o *Overlay) complete(ctx context.Context, toggle *models.InterestToggle, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	e, ok := o.entries[toggle.UniquePropertyID]
	if !ok {
		return
	}
	e.inFlight--
	o.touchLocked(e)

	fields := logrus.Fields{
		"unique_property_id": toggle.UniquePropertyID,
		"seq":                toggle.Seq,
		"latest_seq":         e.seq,
	}

	if err == nil {
		e.confirmed = toggle.Liked
		o.persistLocked(ctx)
	}

	switch {
	case err != nil && toggle.Seq == e.seq:
		e.liked = e.confirmed
		o.setState(toggle.UniquePropertyID, e, StateRolledBack)
		o.logger.WithError(err).WithFields(fields).Warn("Interest toggle failed, rolled back")
	case e.inFlight == 0:
		e.liked = e.confirmed
		if err == nil {
			o.setState(toggle.UniquePropertyID, e, StateConfirmed)
		}
	default:
		o.logger.WithError(err).WithFields(fields).Debug("Superseded interest toggle completed")
	}
}

// LoadRemoteInterestSet fetches the user's interested listings and makes
// the server's answer the overlay's truth. Listings with toggles still in
// flight keep their displayed flag.
func (o *Overlay) LoadRemoteInterestSet(ctx context.Context) (map[string]struct{}, error) {
	listings, err := o.fetchInterested(ctx)
	if err != nil {
		return nil, err
	}
	return idSet(listings), nil
}

// Wishlist returns the user's interested listings merged with the overlay.
func (o *Overlay) Wishlist(ctx context.Context) ([]models.Listing, error) {
	listings, err := o.fetchInterested(ctx)
	if err != nil {
		return nil, err
	}
	return o.Merge(listings), nil
}

func (o *Overlay) fetchInterested(ctx context.Context) ([]models.Listing, error) {
	userID, ok := o.identity.UserID()
	if !ok {
		return nil, models.ErrInterestDisabled
	}

	mark := o.mark()
	listings, err := o.api.GetInterestedListings(ctx, userID)
	if err != nil {
		o.logger.WithError(err).Error("Failed to load interested listings")
		return nil, err
	}
	if !o.reconcile(ctx, idSet(listings), mark) {
		return nil, models.ErrStaleResponse
	}
	return listings, nil
}

func (o *Overlay) mark() syncMark {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return syncMark{gen: o.gen, clock: o.clock}
}

func (o *Overlay) touchLocked(e *entry) {
	o.clock++
	e.changed = o.clock
}

// Reconcile applies the server's interested set as of now.
func (o *Overlay) Reconcile(ctx context.Context, interested map[string]struct{}) {
	o.reconcile(ctx, interested, o.mark())
}

// reconcile applies a server set fetched from mark onwards. Listings changed
// locally since mark keep their state, since the reply may predate the
// change. A Reset since mark discards the reply.
func (o *Overlay) reconcile(ctx context.Context, interested map[string]struct{}, mark syncMark) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gen != mark.gen {
		o.logger.Debug("Discarded interest sync from before reset")
		return false
	}

	for id := range interested {
		if _, ok := o.entries[id]; !ok {
			o.entries[id] = &entry{state: StateIdle}
		}
	}

	kept := 0
	for id, e := range o.entries {
		if e.changed > mark.clock {
			kept++
			continue
		}
		_, liked := interested[id]
		e.confirmed = liked
		if e.inFlight > 0 {
			kept++
			continue
		}
		e.liked = liked
		if !liked {
			delete(o.entries, id)
			continue
		}
		o.setState(id, e, StateConfirmed)
	}

	o.logger.WithFields(logrus.Fields{
		"interested": len(interested),
		"kept_local": kept,
	}).Info("Reconciled interest overlay")
	o.persistLocked(ctx)
	return true
}

// Reset forgets every record and restarts delivery. Toggles not yet
// delivered fail with queue.ErrQueueClosed.
func (o *Overlay) Reset() {
	o.mu.Lock()
	q := o.queue
	o.queue = nil
	o.mu.Unlock()

	if q != nil {
		q.Close()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.entries = make(map[string]*entry)
	if o.queue == nil && o.ctx != nil {
		o.startQueueLocked()
	}
}

// abandonInFlightLocked reverts toggles that will never be delivered.
func (o *Overlay) abandonInFlightLocked() {
	for id, e := range o.entries {
		if e.inFlight == 0 {
			continue
		}
		e.inFlight = 0
		e.liked = e.confirmed
		o.touchLocked(e)
		o.setState(id, e, StateRolledBack)
	}
}

func (o *Overlay) setState(id string, e *entry, to State) {
	if !CanTransition(e.state, to) {
		o.logger.WithFields(logrus.Fields{
			"unique_property_id": id,
			"from":               e.state.String(),
			"to":                 to.String(),
		}).Warn("Unexpected interest state transition")
	}
	e.state = to
}

// persistLocked stores the confirmed flags; unconfirmed intents are never
// persisted.
func (o *Overlay) persistLocked(ctx context.Context) {
	records := make([]models.InterestRecord, 0, len(o.entries))
	for id, e := range o.entries {
		if e.confirmed {
			records = append(records, models.InterestRecord{UniquePropertyID: id, Liked: true})
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UniquePropertyID < records[j].UniquePropertyID
	})

	if err := store.SetJSON(ctx, o.store, store.KeyInterestOverlay, records); err != nil {
		o.logger.WithError(err).Warn("Failed to persist interest overlay")
	}
}

func idSet(listings []models.Listing) map[string]struct{} {
	set := make(map[string]struct{}, len(listings))
	for _, l := range listings {
		set[l.UniquePropertyID] = struct{}{}
	}
	return set
}
