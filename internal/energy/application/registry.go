package application

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	energy "energy-gauge/internal/energy/domain"
)

// ErrUnknownCollection is returned for keys without a live collection.
var ErrUnknownCollection = errors.New("energy: unknown collection")

// CollectionState describes a live collection.
type CollectionState struct {
	Key         string    `json:"key"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end,omitempty"`
	Compare     bool      `json:"compare"`
	Subscribers int       `json:"subscribers"`
	Loaded      bool      `json:"loaded"`
}

// Registry owns the live collections by key. A collection is created on its
// first subscriber and closed when the last one leaves.
type Registry struct {
	host   HostSource
	loader *Loader
	opts   []CollectionOption

	mu          sync.Mutex
	collections map[string]*Collection
}

// NewRegistry constructs a registry; opts apply to every collection it creates.
func NewRegistry(host HostSource, loader *Loader, opts ...CollectionOption) (*Registry, error) {
	if host == nil || loader == nil {
		return nil, errors.New("energy: nil registry dependency")
	}
	return &Registry{
		host:        host,
		loader:      loader,
		opts:        opts,
		collections: make(map[string]*Collection),
	}, nil
}

// Subscribe attaches fn to the collection for a configured key ("" or an
// energy_ prefixed name). The returned function unsubscribes.
func (r *Registry) Subscribe(configuredKey string, fn Subscriber) (func(), error) {
	key, err := energy.CollectionKey(configuredKey)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	collection, ok := r.collections[key]
	if !ok {
		collection, err = NewCollection(key, r.host, r.loader, r.opts...)
		if err != nil {
			r.mu.Unlock()
			return nil, err
		}
		r.collections[key] = collection
	}
	id, latest, first := collection.attach(fn)
	r.mu.Unlock()

	collection.deliverInitial(fn, latest, first)

	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, collection, id) })
	}, nil
}

func (r *Registry) release(key string, collection *Collection, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if collection.detach(id) > 0 {
		return
	}
	if r.collections[key] == collection {
		delete(r.collections, key)
	}
	collection.Close()
}

// Lookup returns a live collection by normalized key (e.g. "_energy").
func (r *Registry) Lookup(key string) (*Collection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	collection, ok := r.collections[key]
	return collection, ok
}

// Keys lists the live collection keys.
func (r *Registry) Keys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]string, 0, len(r.collections))
	for key := range r.collections {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (r *Registry) snapshot() []*Collection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Collection, 0, len(r.collections))
	for _, collection := range r.collections {
		out = append(out, collection)
	}
	return out
}

// ClearPreferences drops cached preferences everywhere and refreshes the
// collections that have subscribers.
func (r *Registry) ClearPreferences(ctx context.Context) error {
	var errs []error
	for _, collection := range r.snapshot() {
		collection.ClearPrefs()
		if collection.Active() == 0 {
			continue
		}
		if err := collection.Refresh(ctx); err != nil && !errors.Is(err, ErrStale) {
			errs = append(errs, fmt.Errorf("%s: %w", collection.Key(), err))
		}
	}
	return errors.Join(errs...)
}

// SavePreferences stores new preferences on the host and reloads every collection.
func (r *Registry) SavePreferences(ctx context.Context, prefs energy.Preferences) (energy.Preferences, error) {
	saved, err := r.host.SavePreferences(ctx, prefs)
	if err != nil {
		return energy.Preferences{}, fmt.Errorf("energy: save preferences: %w", err)
	}
	return saved, r.ClearPreferences(ctx)
}

// States describes every live collection, ordered by key.
func (r *Registry) States() []CollectionState {
	collections := r.snapshot()
	out := make([]CollectionState, 0, len(collections))
	for _, collection := range collections {
		start, end, compare := collection.Window()
		_, loaded := collection.Latest()
		out = append(out, CollectionState{
			Key:         collection.Key(),
			Start:       start,
			End:         end,
			Compare:     compare,
			Subscribers: collection.Active(),
			Loaded:      loaded,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// find accepts a normalized key ("_energy") or a configured one ("energy_x").
func (r *Registry) find(key string) (*Collection, error) {
	if !strings.HasPrefix(key, "_") {
		normalized, err := energy.CollectionKey(key)
		if err != nil {
			return nil, err
		}
		key = normalized
	}
	collection, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, key)
	}
	return collection, nil
}

// Refresh reloads one collection now.
func (r *Registry) Refresh(ctx context.Context, key string) error {
	collection, err := r.find(key)
	if err != nil {
		return err
	}
	return collection.Refresh(ctx)
}

// SetPeriod moves a collection to a new window and reloads it.
func (r *Registry) SetPeriod(ctx context.Context, key string, start, end time.Time) error {
	collection, err := r.find(key)
	if err != nil {
		return err
	}
	if err := collection.SetPeriod(start, end); err != nil {
		return err
	}
	return ignoreStale(collection.Refresh(ctx))
}

// SetCompare toggles the comparison window of a collection and reloads it.
func (r *Registry) SetCompare(ctx context.Context, key string, compare bool) error {
	collection, err := r.find(key)
	if err != nil {
		return err
	}
	collection.SetCompare(compare)
	return ignoreStale(collection.Refresh(ctx))
}

func ignoreStale(err error) error {
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}
