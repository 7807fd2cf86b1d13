package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	card "energy-gauge/internal/card/domain"
	energyapp "energy-gauge/internal/energy/application"
	energy "energy-gauge/internal/energy/domain"
	"energy-gauge/internal/observability/metrics"

	"go.uber.org/zap"
)

const defaultPublishTimeout = 10 * time.Second

// Collections hands out energy snapshots by collection key.
type Collections interface {
	Subscribe(configuredKey string, fn energyapp.Subscriber) (func(), error)
}

// Notifier publishes readings outside the process.
type Notifier interface {
	Publish(ctx context.Context, reading Reading) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

type binding struct {
	card        card.Card
	reading     Reading
	data        *energy.Data
	unsubscribe func()
}

// Service keeps the latest reading of every configured card.
type Service struct {
	collections    Collections
	notifier       Notifier
	clock          Clock
	log            *zap.Logger
	publishTimeout time.Duration

	mu        sync.RWMutex
	order     []string
	bindings  map[string]*binding
	listeners map[uint64]func(Reading)
	nextID    uint64
}

// ServiceOption customizes the gauge service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *zap.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.log = logger
		}
	}
}

// NewService constructs a gauge service.
func NewService(collections Collections, opts ...ServiceOption) (*Service, error) {
	if collections == nil {
		return nil, errors.New("gauge: nil collections")
	}
	service := &Service{
		collections:    collections,
		clock:          systemClock{},
		log:            zap.NewNop(),
		publishTimeout: defaultPublishTimeout,
		bindings:       make(map[string]*binding),
		listeners:      make(map[uint64]func(Reading)),
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// Start binds every card to its collection.
func (s *Service) Start(cards []card.Card) error {
	for _, c := range cards {
		if err := s.bind(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) bind(c card.Card) error {
	s.mu.Lock()
	if _, ok := s.bindings[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	b := &binding{card: c, reading: Evaluate(c, nil, s.clock.Now())}
	s.bindings[c.ID] = b
	s.mu.Unlock()

	unsubscribe, err := s.collections.Subscribe(c.Config.CollectionKey, func(data energy.Data) {
		s.handle(b, data)
	})
	if err != nil {
		return fmt.Errorf("gauge: card %s: %w", c.ID, err)
	}

	s.mu.Lock()
	if s.bindings[c.ID] != b {
		s.mu.Unlock()
		unsubscribe()
		return nil
	}
	b.unsubscribe = unsubscribe
	s.mu.Unlock()
	return nil
}

func (s *Service) handle(b *binding, data energy.Data) {
	reading := Evaluate(b.card, &data, s.clock.Now())

	s.mu.Lock()
	if s.bindings[b.card.ID] != b {
		s.mu.Unlock()
		return
	}
	b.reading = reading
	b.data = &data
	listeners := make([]func(Reading), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.mu.Unlock()

	metrics.IncReading(reading.CardID, string(reading.Status))
	if reading.Status == StatusOK {
		metrics.SetGaugeValue(reading.CardID, string(reading.Gauge), reading.Value)
	}
	for _, fn := range listeners {
		fn(reading)
	}
	if s.notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, reading); err != nil {
			s.log.Warn("publish reading failed", zap.String("card", reading.CardID), zap.Error(err))
		}
	}
}

// UpdateCard replaces a card's configuration and rebinds it.
func (s *Service) UpdateCard(cfg card.Config) (card.Card, error) {
	c, err := cfg.Resolve()
	if err != nil {
		return card.Card{}, err
	}
	s.mu.Lock()
	var previous func()
	if old, ok := s.bindings[c.ID]; ok {
		previous = old.unsubscribe
	}
	s.mu.Unlock()

	if err := s.bind(c); err != nil {
		return card.Card{}, err
	}
	if previous != nil {
		previous()
	}
	return c, nil
}

// Readings returns the latest reading of every card in configuration order.
func (s *Service) Readings() []Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Reading, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.bindings[id].reading)
	}
	return out
}

// Reading returns the latest reading of a card.
func (s *Service) Reading(cardID string) (Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[cardID]
	if !ok {
		return Reading{}, card.ErrNotFound
	}
	return b.reading, nil
}

// Card returns a card's resolved configuration.
func (s *Service) Card(cardID string) (card.Card, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bindings[cardID]
	if !ok {
		return card.Card{}, card.ErrNotFound
	}
	return b.card, nil
}

// Listen registers fn for every new reading until cancel is called.
func (s *Service) Listen(fn func(Reading)) (cancel func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Stop releases every collection subscription.
func (s *Service) Stop() {
	s.mu.Lock()
	var unsubscribes []func()
	for _, b := range s.bindings {
		if b.unsubscribe != nil {
			unsubscribes = append(unsubscribes, b.unsubscribe)
			b.unsubscribe = nil
		}
	}
	s.mu.Unlock()
	for _, unsubscribe := range unsubscribes {
		unsubscribe()
	}
}
