package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	gaugeapp "energy-gauge/internal/gauge/application"
	"energy-gauge/internal/observability/metrics"
)

const (
	sinkWebhook = "webhook"

	EventBandChanged = "band_changed"
)

// Clock provides time for cooldowns.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

type sendRecord struct {
	at   time.Time
	hash string
}

// BandNotifier sends an alert through a channel when a card's severity band
// changes between two successful readings.
type BandNotifier struct {
	channel      Channel
	template     *Template
	clock        Clock
	cooldown     time.Duration
	dedupeWindow time.Duration

	mu    sync.Mutex
	bands map[string]string
	sent  map[string]sendRecord
}

// Option configures the band notifier.
type Option func(*BandNotifier)

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *BandNotifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithCooldown sets a minimum interval between alerts for the same card.
func WithCooldown(interval time.Duration) Option {
	return func(n *BandNotifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical alerts within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *BandNotifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewBandNotifier constructs a band change notifier.
func NewBandNotifier(channel Channel, template *Template, opts ...Option) (*BandNotifier, error) {
	if channel == nil {
		return nil, errors.New("band notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &BandNotifier{
		channel:  channel,
		template: template,
		clock:    systemClock{},
		bands:    make(map[string]string),
		sent:     make(map[string]sendRecord),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Publish implements gaugeapp.Notifier. Only successful readings whose band
// differs from the last seen band produce an alert; the first reading of a
// card only records its band.
func (n *BandNotifier) Publish(ctx context.Context, reading gaugeapp.Reading) error {
	if n == nil || reading.Status != gaugeapp.StatusOK || reading.Band == "" {
		return nil
	}
	n.mu.Lock()
	previous, seen := n.bands[reading.CardID]
	n.bands[reading.CardID] = reading.Band
	n.mu.Unlock()
	if !seen || previous == reading.Band {
		return nil
	}

	alert := newAlert(reading, previous)
	message, err := n.template.Render(alert)
	if err != nil {
		return err
	}
	alert.Message = message
	if !n.shouldSend(reading.CardID, message) {
		return nil
	}
	if err := n.channel.Send(ctx, alert); err != nil {
		metrics.IncPublish(sinkWebhook, metrics.ResultError)
		return err
	}
	metrics.IncPublish(sinkWebhook, metrics.ResultSuccess)
	n.markSent(reading.CardID, message)
	return nil
}

func newAlert(reading gaugeapp.Reading, previous string) Alert {
	name := reading.Name
	if name == "" {
		name = reading.CardID
	}
	window := ""
	if !reading.Start.IsZero() {
		window = reading.Start.Format(time.RFC3339) + " - " + reading.End.Format(time.RFC3339)
	}
	return Alert{
		Event:     EventBandChanged,
		CardID:    reading.CardID,
		Card:      name,
		Gauge:     string(reading.Gauge),
		Previous:  previous,
		Current:   reading.Band,
		Value:     reading.Value,
		Formatted: reading.Formatted,
		Unit:      reading.Unit,
		Window:    window,
		At:        reading.UpdatedAt,
	}
}

func (n *BandNotifier) shouldSend(cardID, content string) bool {
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	now := n.clock.Now().UTC()
	n.mu.Lock()
	record, ok := n.sent[cardID]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hashContent(content) && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *BandNotifier) markSent(cardID, content string) {
	n.mu.Lock()
	n.sent[cardID] = sendRecord{at: n.clock.Now().UTC(), hash: hashContent(content)}
	n.mu.Unlock()
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}
