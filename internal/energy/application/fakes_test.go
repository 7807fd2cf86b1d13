package application

import (
	"context"
	"sort"
	"sync"
	"time"

	energy "energy-gauge/internal/energy/domain"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	timer := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, timer)
	return timer
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

// pending returns the fire times of armed timers, earliest first.
func (c *fakeClock) pending() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []time.Time
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired {
			out = append(out, timer.at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *fakeClock) scheduled() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves time forward and runs due timers synchronously.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, timer := range c.timers {
		if !timer.stopped && !timer.fired && !timer.at.After(c.now) {
			timer.fired = true
			due = append(due, timer)
		}
	}
	c.mu.Unlock()
	for _, timer := range due {
		timer.fn()
	}
}

type fakeHost struct {
	mu           sync.Mutex
	prefs        energy.Preferences
	info         energy.Info
	entries      []energy.ConfigEntry
	co2Entity    string
	lengthUnit   string
	prefsCalls   int
	saved        []energy.Preferences
	fossilCalls  []energy.FossilRequest
	fossilResult energy.FossilConsumption
	prefsErr     error
}

func (h *fakeHost) GetPreferences(context.Context) (energy.Preferences, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.prefsCalls++
	return h.prefs, h.prefsErr
}

func (h *fakeHost) SavePreferences(_ context.Context, prefs energy.Preferences) (energy.Preferences, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.saved = append(h.saved, prefs)
	h.prefs = prefs
	return prefs, nil
}

func (h *fakeHost) GetInfo(context.Context) (energy.Info, error) {
	return h.info, nil
}

func (h *fakeHost) GetConfigEntries(_ context.Context, domain string) ([]energy.ConfigEntry, error) {
	var out []energy.ConfigEntry
	for _, entry := range h.entries {
		if entry.Domain == domain {
			out = append(out, entry)
		}
	}
	return out, nil
}

func (h *fakeHost) FindEntity(_ context.Context, platform, unit string) (string, bool, error) {
	if platform == "co2signal" && unit == "%" && h.co2Entity != "" {
		return h.co2Entity, true, nil
	}
	return "", false, nil
}

func (h *fakeHost) GetFossilEnergyConsumption(_ context.Context, req energy.FossilRequest) (energy.FossilConsumption, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fossilCalls = append(h.fossilCalls, req)
	return h.fossilResult, nil
}

func (h *fakeHost) LengthUnit(context.Context) (string, error) {
	return h.lengthUnit, nil
}

func (h *fakeHost) prefsCallCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.prefsCalls
}

type fakeStats struct {
	mu       sync.Mutex
	series   map[string][]energy.StatisticValue
	requests []energy.StatisticsRequest
	onFetch  func() // runs once, on the next fetch
}

func (s *fakeStats) FetchStatistics(_ context.Context, req energy.StatisticsRequest) (energy.Statistics, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	hook := s.onFetch
	s.onFetch = nil
	out := make(energy.Statistics)
	for _, id := range req.StatisticIDs {
		if values, ok := s.series[id]; ok {
			out[id] = append([]energy.StatisticValue(nil), values...)
		}
	}
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (s *fakeStats) GetStatisticMetadata(_ context.Context, ids []string) ([]energy.StatisticMetadata, error) {
	out := make([]energy.StatisticMetadata, 0, len(ids))
	for _, id := range ids {
		out = append(out, energy.StatisticMetadata{StatisticID: id, HasSum: true})
	}
	return out, nil
}

func (s *fakeStats) requestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func samples(from time.Time, sums ...float64) []energy.StatisticValue {
	out := make([]energy.StatisticValue, 0, len(sums))
	for i, sum := range sums {
		sum := sum
		start := from.Add(time.Duration(i) * time.Hour)
		out = append(out, energy.StatisticValue{
			Start: energy.At(start),
			End:   energy.At(start.Add(time.Hour)),
			Sum:   &sum,
		})
	}
	return out
}

func homePreferences() energy.Preferences {
	return energy.Preferences{Sources: []energy.Source{
		energy.GridSource{
			FlowFrom: []energy.FlowFromGrid{{StatEnergyFrom: "sensor.grid_import"}},
			FlowTo:   []energy.FlowToGrid{{StatEnergyTo: "sensor.grid_export"}},
		},
		energy.SolarSource{StatEnergyFrom: "sensor.solar"},
		energy.WaterSource{StatEnergyFrom: "sensor.water"},
	}}
}
