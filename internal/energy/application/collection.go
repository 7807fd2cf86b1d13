package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	energy "energy-gauge/internal/energy/domain"
	"energy-gauge/internal/logging"
	"energy-gauge/internal/observability/metrics"

	"go.uber.org/zap"
)

// ErrStale is returned by Refresh when a newer refresh or a period change
// superseded the result.
var ErrStale = errors.New("energy: refresh superseded")

// ErrInvalidPeriod is returned by SetPeriod when end precedes start.
var ErrInvalidPeriod = errors.New("energy: period end before start")

const defaultRefreshTimeout = 30 * time.Second

// Subscriber receives every new snapshot of a collection.
type Subscriber func(energy.Data)

// Collection is a subscribable energy snapshot for one period. While it has
// subscribers it refreshes shortly after each hourly statistics run until the
// period ends.
type Collection struct {
	key            string
	host           HostSource
	loader         *Loader
	clock          Clock
	log            *logging.Throttled
	refreshTimeout time.Duration

	mu            sync.Mutex
	prefs         *energy.Preferences
	start         time.Time
	end           time.Time
	compare       bool
	subscribers   map[uint64]Subscriber
	nextID        uint64
	active        int
	generation    uint64
	latest        *energy.Data
	refreshTimer  Timer
	rolloverTimer Timer
	closed        bool
}

// CollectionOption customizes a collection.
type CollectionOption func(*Collection)

// WithClock assigns a clock.
func WithClock(clock Clock) CollectionOption {
	return func(c *Collection) {
		c.clock = clock
	}
}

// WithLogger assigns the error logger.
func WithLogger(log *logging.Throttled) CollectionOption {
	return func(c *Collection) {
		c.log = log
	}
}

// WithPreferences seeds the preferences so the first refresh skips fetching them.
func WithPreferences(prefs energy.Preferences) CollectionOption {
	return func(c *Collection) {
		c.prefs = &prefs
	}
}

// WithRefreshTimeout bounds scheduled refreshes.
func WithRefreshTimeout(timeout time.Duration) CollectionOption {
	return func(c *Collection) {
		if timeout > 0 {
			c.refreshTimeout = timeout
		}
	}
}

// NewCollection constructs a collection for an already normalized key. The
// period starts as the default window and follows the calendar day.
func NewCollection(key string, host HostSource, loader *Loader, opts ...CollectionOption) (*Collection, error) {
	if host == nil || loader == nil {
		return nil, errors.New("energy: nil collection dependency")
	}
	c := &Collection{
		key:            key,
		host:           host,
		loader:         loader,
		clock:          systemClock{},
		refreshTimeout: defaultRefreshTimeout,
		subscribers:    make(map[uint64]Subscriber),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logging.NewThrottled(zap.NewNop(), 0)
	}
	c.start, c.end = energy.DefaultWindow(c.clock.Now())
	c.mu.Lock()
	c.scheduleRolloverLocked()
	c.mu.Unlock()
	return c, nil
}

// Key returns the collection key.
func (c *Collection) Key() string {
	return c.key
}

// Subscribe registers fn. It receives the latest snapshot immediately when
// one exists; the first subscriber triggers a refresh.
func (c *Collection) Subscribe(fn Subscriber) func() {
	id, latest, first := c.attach(fn)
	c.deliverInitial(fn, latest, first)
	var once sync.Once
	return func() {
		once.Do(func() { c.detach(id) })
	}
}

func (c *Collection) attach(fn Subscriber) (uint64, *energy.Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	id := c.nextID
	c.subscribers[id] = fn
	c.active++
	return id, c.latest, c.active == 1
}

func (c *Collection) deliverInitial(fn Subscriber, latest *energy.Data, first bool) {
	if latest != nil {
		fn(*latest)
	}
	if first {
		go c.refreshInBackground()
	}
}

// detach removes a subscriber and returns how many remain.
func (c *Collection) detach(id uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.subscribers[id]; !ok {
		return c.active
	}
	delete(c.subscribers, id)
	c.active--
	if c.active < 1 {
		c.stopRefreshLocked()
	}
	return c.active
}

// Active returns the number of subscribers.
func (c *Collection) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Window returns the current period and compare flag.
func (c *Collection) Window() (time.Time, time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start, c.end, c.compare
}

// Latest returns the most recent snapshot.
func (c *Collection) Latest() (energy.Data, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest == nil {
		return energy.Data{}, false
	}
	return *c.latest, true
}

// Preferences returns the cached preferences.
func (c *Collection) Preferences() (energy.Preferences, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.prefs == nil {
		return energy.Preferences{}, false
	}
	return *c.prefs, true
}

// ClearPrefs drops the cached preferences; the next refresh fetches them.
func (c *Collection) ClearPrefs() {
	c.mu.Lock()
	c.prefs = nil
	c.mu.Unlock()
}

// SetPeriod changes the window. A zero end means open ended. The day
// rollover stays scheduled only while the window is today.
func (c *Collection) SetPeriod(start, end time.Time) error {
	if !end.IsZero() && end.Before(start) {
		return fmt.Errorf("%w: %s < %s", ErrInvalidPeriod, end, start)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start, c.end = start, end
	c.generation++
	if energy.IsToday(start, end, c.clock.Now()) {
		if c.rolloverTimer == nil {
			c.scheduleRolloverLocked()
		}
	} else {
		c.stopRolloverLocked()
	}
	return nil
}

// SetCompare toggles loading of the comparison window.
func (c *Collection) SetCompare(compare bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.compare != compare {
		c.compare = compare
		c.generation++
	}
}

// Refresh loads a new snapshot and delivers it to the subscribers. A result
// overtaken by a newer refresh or period change is dropped with ErrStale.
func (c *Collection) Refresh(ctx context.Context) error {
	begin := time.Now()
	err := c.refresh(ctx)
	result := metrics.ResultSuccess
	switch {
	case errors.Is(err, ErrStale):
		result = metrics.ResultStale
	case err != nil:
		result = metrics.ResultError
	}
	metrics.ObserveRefresh(c.key, result, time.Since(begin))
	return err
}

func (c *Collection) refresh(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrStale
	}
	c.generation++
	generation := c.generation
	prefs := c.prefs
	c.mu.Unlock()

	if prefs == nil {
		fetched, err := c.host.GetPreferences(ctx)
		if err != nil {
			return fmt.Errorf("energy: load preferences: %w", err)
		}
		prefs = &fetched
		c.mu.Lock()
		if c.prefs == nil {
			c.prefs = prefs
		}
		c.mu.Unlock()
	}

	c.mu.Lock()
	c.scheduleRefreshLocked()
	start, end, compare := c.start, c.end, c.compare
	c.mu.Unlock()

	data, err := c.loader.Load(ctx, *prefs, start, end, compare)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if generation != c.generation || c.closed {
		c.mu.Unlock()
		return ErrStale
	}
	c.latest = &data
	subscribers := make([]Subscriber, 0, len(c.subscribers))
	for _, fn := range c.subscribers {
		subscribers = append(subscribers, fn)
	}
	c.mu.Unlock()

	for _, fn := range subscribers {
		fn(data)
	}
	return nil
}

func (c *Collection) refreshInBackground() {
	ctx, cancel := context.WithTimeout(context.Background(), c.refreshTimeout)
	defer cancel()
	if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
		c.log.Error("energy collection refresh failed", err, zap.String("collection", c.key))
	}
}

// scheduleRefreshLocked arms the next hourly refresh while there are
// subscribers and the period has not ended.
func (c *Collection) scheduleRefreshLocked() {
	c.stopRefreshLocked()
	now := c.clock.Now()
	if c.active < 1 || (!c.end.IsZero() && !c.end.After(now)) {
		return
	}
	c.refreshTimer = c.clock.AfterFunc(energy.NextRefresh(now).Sub(now), c.refreshInBackground)
}

func (c *Collection) stopRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// scheduleRolloverLocked moves the window to the new day one hour after the
// current window's day ends.
func (c *Collection) scheduleRolloverLocked() {
	now := c.clock.Now()
	c.rolloverTimer = c.clock.AfterFunc(energy.NextRollover(c.start).Sub(now), c.rollover)
}

func (c *Collection) stopRolloverLocked() {
	if c.rolloverTimer != nil {
		c.rolloverTimer.Stop()
		c.rolloverTimer = nil
	}
}

func (c *Collection) rollover() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	now := c.clock.Now()
	c.start, c.end = energy.StartOfDay(now), energy.EndOfDay(now)
	c.generation++
	c.scheduleRolloverLocked()
	active := c.active > 0
	c.mu.Unlock()
	if active {
		c.refreshInBackground()
	}
}

// Close stops all timers and discards in-flight refreshes.
func (c *Collection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.generation++
	c.stopRefreshLocked()
	c.stopRolloverLocked()
}
