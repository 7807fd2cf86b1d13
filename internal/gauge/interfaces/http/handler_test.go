package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"energy-gauge/internal/auth"
	card "energy-gauge/internal/card/domain"
	energyapp "energy-gauge/internal/energy/application"
	energy "energy-gauge/internal/energy/domain"
	gaugeapp "energy-gauge/internal/gauge/application"
)

type fakeCollections struct {
	mu          sync.Mutex
	subscribers map[string][]energyapp.Subscriber
}

func (f *fakeCollections) Subscribe(key string, fn energyapp.Subscriber) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribers == nil {
		f.subscribers = make(map[string][]energyapp.Subscriber)
	}
	f.subscribers[key] = append(f.subscribers[key], fn)
	return func() {}, nil
}

func (f *fakeCollections) deliver(key string, data energy.Data) {
	f.mu.Lock()
	subscribers := append([]energyapp.Subscriber(nil), f.subscribers[key]...)
	f.mu.Unlock()
	for _, fn := range subscribers {
		fn(data)
	}
}

func series(start time.Time, sums ...float64) []energy.StatisticValue {
	out := make([]energy.StatisticValue, 0, len(sums))
	for i, sum := range sums {
		sum := sum
		at := start.Add(time.Duration(i) * time.Hour)
		out = append(out, energy.StatisticValue{Start: energy.At(at), End: energy.At(at.Add(time.Hour)), Sum: &sum})
	}
	return out
}

func homeSnapshot() energy.Data {
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	name := "Solar inverter"
	unit := "kWh"
	return energy.Data{
		Start: start,
		End:   energy.EndOfDay(start),
		Prefs: energy.Preferences{Sources: []energy.Source{
			energy.GridSource{
				FlowFrom: []energy.FlowFromGrid{{StatEnergyFrom: "sensor.grid_import"}},
				FlowTo:   []energy.FlowToGrid{{StatEnergyTo: "sensor.grid_export"}},
			},
			energy.SolarSource{StatEnergyFrom: "sensor.solar"},
		}},
		Stats: energy.Statistics{
			"sensor.solar":       series(start, 0, 100),
			"sensor.grid_export": series(start, 0, 20),
			"sensor.grid_import": series(start, 0, 50),
		},
		StatsMetadata: map[string]energy.StatisticMetadata{
			"sensor.solar": {StatisticID: "sensor.solar", Name: &name, StatisticsUnitOfMeasurement: &unit},
		},
	}
}

func newTestService(t *testing.T, cfgs ...card.Config) (*gaugeapp.Service, *fakeCollections) {
	t.Helper()
	collections := &fakeCollections{}
	service, err := gaugeapp.NewService(collections)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	cards := make([]card.Card, 0, len(cfgs))
	for _, cfg := range cfgs {
		c, err := cfg.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		cards = append(cards, c)
	}
	if err := service.Start(cards); err != nil {
		t.Fatalf("start: %v", err)
	}
	return service, collections
}

func TestGaugeHandlerReadings(t *testing.T) {
	service, collections := newTestService(t, card.Config{ID: "home"}, card.Config{ID: "solar", GaugeType: energy.GaugeSelfConsumption})
	collections.deliver("", homeSnapshot())
	handler, err := NewGaugeHandler(service, nil)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var readings []gaugeapp.Reading
	if err := json.Unmarshal(resp.Body.Bytes(), &readings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(readings) != 2 || readings[0].Formatted != "61.5" || readings[1].Formatted != "80.0" {
		t.Fatalf("unexpected readings %+v", readings)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges/solar", nil))
	var reading gaugeapp.Reading
	if err := json.Unmarshal(resp.Body.Bytes(), &reading); err != nil || reading.CardID != "solar" {
		t.Fatalf("unexpected reading %s (%v)", resp.Body.String(), err)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges/missing", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/api/v1/gauges", nil))
	if resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
}

func TestHandlersHonourCardScope(t *testing.T) {
	service, collections := newTestService(t, card.Config{ID: "home"}, card.Config{ID: "solar", GaugeType: energy.GaugeSelfConsumption})
	collections.deliver("", homeSnapshot())
	gauges, err := NewGaugeHandler(service, nil)
	if err != nil {
		t.Fatalf("new gauge handler: %v", err)
	}
	cards, err := NewCardHandler(service)
	if err != nil {
		t.Fatalf("new card handler: %v", err)
	}
	scoped := func(method, path string) *http.Request {
		req := httptest.NewRequest(method, path, nil)
		identity := auth.Identity{Subject: "kiosk", Role: auth.RoleViewer, Cards: []string{"solar"}}
		return req.WithContext(auth.WithIdentity(req.Context(), identity))
	}

	resp := httptest.NewRecorder()
	gauges.ServeHTTP(resp, scoped(http.MethodGet, "/api/v1/gauges"))
	var readings []gaugeapp.Reading
	if err := json.Unmarshal(resp.Body.Bytes(), &readings); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(readings) != 1 || readings[0].CardID != "solar" {
		t.Fatalf("expected only the solar card, got %+v", readings)
	}

	for _, path := range []string{"/api/v1/gauges/home", "/api/v1/gauges/home/export.pdf"} {
		resp = httptest.NewRecorder()
		gauges.ServeHTTP(resp, scoped(http.MethodGet, path))
		if resp.Code != http.StatusNotFound {
			t.Fatalf("%s: expected 404 outside the token scope, got %d", path, resp.Code)
		}
	}
	resp = httptest.NewRecorder()
	gauges.ServeHTTP(resp, scoped(http.MethodGet, "/api/v1/gauges/solar"))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected scoped card readable, got %d", resp.Code)
	}

	resp = httptest.NewRecorder()
	cards.ServeHTTP(resp, scoped(http.MethodGet, "/api/v1/cards/home"))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected card config hidden, got %d", resp.Code)
	}
}

func TestGaugeHandlerExports(t *testing.T) {
	needle := false
	service, collections := newTestService(t, card.Config{ID: "home"}, card.Config{ID: "bar", Needle: &needle})
	collections.deliver("", homeSnapshot())
	handler, _ := NewGaugeHandler(service, nil)

	cases := []struct {
		path        string
		contentType string
		magic       []byte
	}{
		{"/api/v1/gauges/home/export.pdf", contentTypePDF, []byte("%PDF")},
		{"/api/v1/gauges/bar/export.pdf", contentTypePDF, []byte("%PDF")},
		{"/api/v1/gauges/home/export.xlsx", contentTypeXLSX, []byte("PK")},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d (%s)", tc.path, resp.Code, resp.Body.String())
		}
		if resp.Header().Get("Content-Type") != tc.contentType {
			t.Fatalf("%s: unexpected content type %s", tc.path, resp.Header().Get("Content-Type"))
		}
		if !bytes.HasPrefix(resp.Body.Bytes(), tc.magic) {
			t.Fatalf("%s: unexpected body prefix", tc.path)
		}
		if !strings.Contains(resp.Header().Get("Content-Disposition"), "attachment") {
			t.Fatalf("%s: expected attachment disposition", tc.path)
		}
	}

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/gauges/missing/export.pdf", nil))
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestCardHandlerUpdate(t *testing.T) {
	service, collections := newTestService(t, card.Config{ID: "home"})
	collections.deliver("", homeSnapshot())
	handler, err := NewCardHandler(service)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}

	body := `{"decimals": 0, "severity": {"green": 60, "yellow": 30, "red": 0}}`
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, "/api/v1/cards/home", strings.NewReader(body)))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	collections.deliver("", homeSnapshot())
	reading, _ := service.Reading("home")
	if reading.Formatted != "62" || reading.Label != "green" {
		t.Fatalf("expected updated card applied, got %+v", reading)
	}

	cases := []struct {
		path string
		body string
		code int
	}{
		{"/api/v1/cards/home", `{"id": "other"}`, http.StatusBadRequest},
		{"/api/v1/cards/home", `{"gauge_type": "co2"}`, http.StatusBadRequest},
		{"/api/v1/cards/home", `{"min": 100, "max": 0}`, http.StatusBadRequest},
		{"/api/v1/cards/home", `not json`, http.StatusBadRequest},
		{"/api/v1/cards/missing", `{}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPut, tc.path, strings.NewReader(tc.body)))
		if resp.Code != tc.code {
			t.Fatalf("%s %s: expected %d, got %d", tc.path, tc.body, tc.code, resp.Code)
		}
	}

	resp = httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/cards/home", nil))
	var cfg card.Config
	if err := json.Unmarshal(resp.Body.Bytes(), &cfg); err != nil || cfg.Decimals == nil || *cfg.Decimals != 0 {
		t.Fatalf("unexpected card config %s", resp.Body.String())
	}
}

type fakeControl struct {
	refreshed []string
	start     time.Time
	end       time.Time
	compare   bool
	cleared   int
	saved     *energy.Preferences
	err       error
}

func (f *fakeControl) States() []energyapp.CollectionState {
	return []energyapp.CollectionState{{Key: "_energy", Subscribers: 1}}
}

func (f *fakeControl) Refresh(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.refreshed = append(f.refreshed, key)
	return nil
}

func (f *fakeControl) SetPeriod(_ context.Context, _ string, start, end time.Time) error {
	f.start, f.end = start, end
	return f.err
}

func (f *fakeControl) SetCompare(_ context.Context, _ string, compare bool) error {
	f.compare = compare
	return f.err
}

func (f *fakeControl) ClearPreferences(context.Context) error {
	f.cleared++
	return f.err
}

func (f *fakeControl) SavePreferences(_ context.Context, prefs energy.Preferences) (energy.Preferences, error) {
	if f.err != nil {
		return energy.Preferences{}, f.err
	}
	f.saved = &prefs
	return prefs, nil
}

func TestCollectionHandlerSavesPreferences(t *testing.T) {
	control := &fakeControl{}
	handler, err := NewCollectionHandler(control)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	do := func(method, body string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(method, "/api/v1/energy/preferences", strings.NewReader(body)))
		return resp
	}

	body := `{"energy_sources":[{"type":"solar","stat_energy_from":"sensor.solar"}],"device_consumption":[]}`
	resp := do(http.MethodPut, body)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"sensor.solar"`) {
		t.Fatalf("unexpected save response %d %s", resp.Code, resp.Body.String())
	}
	if control.saved == nil || len(control.saved.ByType().Solar) != 1 {
		t.Fatalf("expected solar source saved, got %+v", control.saved)
	}
	if resp := do(http.MethodPut, `{"energy_sources":[{"type":"wind"}]}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown source type, got %d", resp.Code)
	}
	if resp := do(http.MethodGet, ""); resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", resp.Code)
	}
	control.err = errors.New("host unavailable")
	if resp := do(http.MethodPut, body); resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestCollectionHandlerActions(t *testing.T) {
	control := &fakeControl{}
	handler, err := NewCollectionHandler(control)
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	do := func(method, path, body string) *httptest.ResponseRecorder {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(method, path, strings.NewReader(body)))
		return resp
	}

	if resp := do(http.MethodGet, "/api/v1/collections", ""); resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), "_energy") {
		t.Fatalf("unexpected list response %d %s", resp.Code, resp.Body.String())
	}
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/refresh", ""); resp.Code != http.StatusAccepted || len(control.refreshed) != 1 {
		t.Fatalf("expected refresh accepted, got %d", resp.Code)
	}
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/period", `{"start":"2026-02-01T00:00:00Z"}`); resp.Code != http.StatusAccepted {
		t.Fatalf("expected period accepted, got %d", resp.Code)
	}
	if !control.start.Equal(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)) || !control.end.IsZero() {
		t.Fatalf("unexpected period %s - %s", control.start, control.end)
	}
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/period", `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without start, got %d", resp.Code)
	}
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/compare", `{"compare":true}`); resp.Code != http.StatusAccepted || !control.compare {
		t.Fatalf("expected compare accepted, got %d", resp.Code)
	}
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/rewind", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown action, got %d", resp.Code)
	}
	if resp := do(http.MethodPost, "/api/v1/energy/preferences/clear", ""); resp.Code != http.StatusNoContent || control.cleared != 1 {
		t.Fatalf("expected preferences cleared, got %d", resp.Code)
	}

	control.err = fmt.Errorf("%w: _energy_x", energyapp.ErrUnknownCollection)
	if resp := do(http.MethodPost, "/api/v1/collections/_energy_x/refresh", ""); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown collection, got %d", resp.Code)
	}
	control.err = energyapp.ErrInvalidPeriod
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/period", `{"start":"2026-02-01T00:00:00Z","end":"2026-01-01T00:00:00Z"}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid period, got %d", resp.Code)
	}
	control.err = errors.New("connection lost")
	if resp := do(http.MethodPost, "/api/v1/collections/_energy/refresh", ""); resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestStreamHandlerDeliversReadings(t *testing.T) {
	broker := NewSSEBroker(nil)
	snapshot := func() []gaugeapp.Reading {
		return []gaugeapp.Reading{{CardID: "home", Status: gaugeapp.StatusLoading}}
	}
	server := httptest.NewServer(NewStreamHandler(broker, snapshot))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream request: %v", err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Fatalf("unexpected content type %s", resp.Header.Get("Content-Type"))
	}

	reader := bufio.NewReader(resp.Body)
	nextData := func(event string) string {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read stream: %v", err)
			}
			if strings.TrimSpace(line) != "event: "+event {
				continue
			}
			data, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read data: %v", err)
			}
			return strings.TrimPrefix(strings.TrimSpace(data), "data: ")
		}
	}

	if ready := nextData("ready"); !strings.Contains(ready, "client_id") {
		t.Fatalf("unexpected ready payload %s", ready)
	}
	var initial gaugeapp.Reading
	if err := json.Unmarshal([]byte(nextData("reading")), &initial); err != nil || initial.Status != gaugeapp.StatusLoading {
		t.Fatalf("expected initial snapshot, got %+v (%v)", initial, err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broker.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	broker.Notify(gaugeapp.Reading{CardID: "home", Status: gaugeapp.StatusOK, Value: 61.5})
	var update gaugeapp.Reading
	if err := json.Unmarshal([]byte(nextData("reading")), &update); err != nil || update.Value != 61.5 {
		t.Fatalf("expected streamed update, got %+v (%v)", update, err)
	}

	cancel()
	deadline = time.Now().Add(2 * time.Second)
	for broker.Clients() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if broker.Clients() != 0 {
		t.Fatalf("expected client removed after disconnect")
	}
}

func TestParseColor(t *testing.T) {
	if c := parseColor("var(--success-color)"); c != (rgb{67, 160, 71}) {
		t.Fatalf("unexpected theme colour %+v", c)
	}
	if c := parseColor("#ff8000"); c != (rgb{255, 128, 0}) {
		t.Fatalf("unexpected hex colour %+v", c)
	}
	if c := parseColor("teal"); c != (rgb{158, 158, 158}) {
		t.Fatalf("unexpected fallback colour %+v", c)
	}
}

func TestBuildReportPDFOutOfRangeValue(t *testing.T) {
	for _, needle := range []bool{true, false} {
		needle := needle
		maxValue := 50.0
		c, err := card.Config{ID: "home", Max: &maxValue, Needle: &needle}.Resolve()
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		report := gaugeapp.Report{
			Card: c,
			Reading: gaugeapp.Reading{
				CardID:    "home",
				Status:    gaugeapp.StatusOK,
				Value:     90,
				Formatted: "90.0",
				Min:       c.Min,
				Max:       c.Max,
				Needle:    needle,
				Color:     "var(--success-color)",
			},
			GeneratedAt: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC),
		}
		body, err := BuildReportPDF(report)
		if err != nil {
			t.Fatalf("needle=%v: build pdf: %v", needle, err)
		}
		if !bytes.HasPrefix(body, []byte("%PDF")) {
			t.Fatalf("needle=%v: not a pdf", needle)
		}
	}
}
