package http

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"energy-gauge/internal/auth"
	gaugeapp "energy-gauge/internal/gauge/application"
	"energy-gauge/internal/observability/metrics"
)

const clientBuffer = 16

// streamEvent is an encoded reading of one card.
type streamEvent struct {
	cardID  string
	payload []byte
}

// SSEBroker fans out readings to connected clients.
type SSEBroker struct {
	mu      sync.Mutex
	clients map[string]chan streamEvent
	log     *zap.Logger
}

// NewSSEBroker constructs a broker.
func NewSSEBroker(logger *zap.Logger) *SSEBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SSEBroker{clients: make(map[string]chan streamEvent), log: logger}
}

// Notify broadcasts a reading. It is registered with gaugeapp.Service.Listen.
func (b *SSEBroker) Notify(reading gaugeapp.Reading) {
	if b == nil {
		return
	}
	payload, err := json.Marshal(reading)
	if err != nil {
		b.log.Warn("encode reading failed", zap.String("card", reading.CardID), zap.Error(err))
		return
	}
	b.broadcast(streamEvent{cardID: reading.CardID, payload: payload})
}

// Subscribe registers a new client and returns its id and channel.
func (b *SSEBroker) Subscribe() (string, <-chan streamEvent) {
	if b == nil {
		return "", nil
	}
	id := uuid.NewString()
	ch := make(chan streamEvent, clientBuffer)
	b.mu.Lock()
	b.clients[id] = ch
	b.mu.Unlock()
	metrics.AddStreamClients(1)
	b.log.Debug("stream client connected", zap.String("client_id", id))
	return id, ch
}

// Unsubscribe removes a client.
func (b *SSEBroker) Unsubscribe(id string) {
	if b == nil || id == "" {
		return
	}
	b.mu.Lock()
	ch, ok := b.clients[id]
	delete(b.clients, id)
	b.mu.Unlock()
	if !ok {
		return
	}
	close(ch)
	metrics.AddStreamClients(-1)
	b.log.Debug("stream client disconnected", zap.String("client_id", id))
}

// Clients returns the number of connected clients.
func (b *SSEBroker) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *SSEBroker) broadcast(event streamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.clients {
		select {
		case ch <- event:
		default:
			b.log.Debug("stream client lagging, reading dropped", zap.String("client_id", id))
		}
	}
}

// StreamHandler serves the SSE reading stream. New clients first receive the
// current reading of every card their token may read.
type StreamHandler struct {
	broker   *SSEBroker
	snapshot func() []gaugeapp.Reading
}

// NewStreamHandler constructs a stream handler.
func NewStreamHandler(broker *SSEBroker, snapshot func() []gaugeapp.Reading) *StreamHandler {
	return &StreamHandler{broker: broker, snapshot: snapshot}
}

// ServeHTTP handles GET /api/v1/gauges/stream.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h == nil || h.broker == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "stream unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := h.broker.Subscribe()
	if ch == nil {
		http.Error(w, "stream not ready", http.StatusServiceUnavailable)
		return
	}
	defer h.broker.Unsubscribe(id)

	_, _ = w.Write([]byte("event: ready\ndata: {\"client_id\":\"" + id + "\"}\n\n"))
	if h.snapshot != nil {
		for _, reading := range visibleReadings(r, h.snapshot()) {
			payload, err := json.Marshal(reading)
			if err != nil {
				continue
			}
			writeEvent(w, payload)
		}
	}
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case event, ok := <-ch:
			if !ok {
				return
			}
			if !auth.CanReadCard(r.Context(), event.cardID) {
				continue
			}
			writeEvent(w, event.payload)
			flusher.Flush()
		case <-notify:
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, payload []byte) {
	_, _ = w.Write([]byte("event: reading\n"))
	_, _ = w.Write([]byte("data: "))
	_, _ = w.Write(payload)
	_, _ = w.Write([]byte("\n\n"))
}
