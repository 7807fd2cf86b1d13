package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"energy-gauge/internal/auth"
	card "energy-gauge/internal/card/domain"
	energy "energy-gauge/internal/energy/domain"
	gaugeapp "energy-gauge/internal/gauge/application"
	"energy-gauge/internal/observability/metrics"
)

const (
	gaugesPath = "/api/v1/gauges"
	cardsPath  = "/api/v1/cards/"

	contentTypePDF  = "application/pdf"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// GaugeHandler provides reading and export endpoints.
type GaugeHandler struct {
	service *gaugeapp.Service
	log     *zap.Logger
}

// NewGaugeHandler constructs a handler.
func NewGaugeHandler(service *gaugeapp.Service, logger *zap.Logger) (*GaugeHandler, error) {
	if service == nil {
		return nil, errors.New("gauge handler: nil service")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GaugeHandler{service: service, log: logger}, nil
}

// ServeHTTP handles /api/v1/gauges and subroutes.
func (h *GaugeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if r.URL.Path == gaugesPath {
		writeJSON(w, http.StatusOK, visibleReadings(r, h.service.Readings()))
		return
	}
	path := strings.TrimPrefix(r.URL.Path, gaugesPath+"/")
	parts := strings.Split(path, "/")
	if !auth.CanReadCard(r.Context(), parts[0]) {
		respondError(w, card.ErrNotFound)
		return
	}
	switch {
	case len(parts) == 1 && parts[0] != "":
		reading, err := h.service.Reading(parts[0])
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, reading)
	case len(parts) == 2 && parts[1] == "export.pdf":
		h.handleExport(w, parts[0], "pdf")
	case len(parts) == 2 && parts[1] == "export.xlsx":
		h.handleExport(w, parts[0], "xlsx")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *GaugeHandler) handleExport(w http.ResponseWriter, cardID, format string) {
	begin := time.Now()
	report, err := h.service.Report(cardID)
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(begin))
		respondError(w, err)
		return
	}
	var (
		body        []byte
		contentType string
	)
	switch format {
	case "pdf":
		body, err = BuildReportPDF(report)
		contentType = contentTypePDF
	default:
		body, err = BuildReportXLSX(report)
		contentType = contentTypeXLSX
	}
	if err != nil {
		metrics.ObserveExport(format, metrics.ResultError, time.Since(begin))
		h.log.Error("export failed", zap.String("card", cardID), zap.String("format", format), zap.Error(err))
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	metrics.ObserveExport(format, metrics.ResultSuccess, time.Since(begin))
	filename := cardID + "-" + report.GeneratedAt.Format("20060102") + "." + format
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// CardHandler replaces card configurations at runtime.
type CardHandler struct {
	service *gaugeapp.Service
}

// NewCardHandler constructs a handler.
func NewCardHandler(service *gaugeapp.Service) (*CardHandler, error) {
	if service == nil {
		return nil, errors.New("card handler: nil service")
	}
	return &CardHandler{service: service}, nil
}

type cardResponse struct {
	Card    card.Config      `json:"card"`
	Reading gaugeapp.Reading `json:"reading"`
}

// ServeHTTP handles GET and PUT /api/v1/cards/{card}.
func (h *CardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cardID := strings.TrimPrefix(r.URL.Path, cardsPath)
	if cardID == "" || strings.Contains(cardID, "/") || !auth.CanReadCard(r.Context(), cardID) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	switch r.Method {
	case http.MethodGet:
		c, err := h.service.Card(cardID)
		if err != nil {
			respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, c.Config)
	case http.MethodPut:
		if _, err := h.service.Card(cardID); err != nil {
			respondError(w, err)
			return
		}
		var cfg card.Config
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		if cfg.ID == "" {
			cfg.ID = cardID
		}
		if cfg.ID != cardID {
			http.Error(w, "card id does not match path", http.StatusBadRequest)
			return
		}
		updated, err := h.service.UpdateCard(cfg)
		if err != nil {
			respondError(w, err)
			return
		}
		reading, _ := h.service.Reading(updated.ID)
		writeJSON(w, http.StatusOK, cardResponse{Card: updated.Config, Reading: reading})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// visibleReadings drops the cards the caller's token is not scoped to.
func visibleReadings(r *http.Request, readings []gaugeapp.Reading) []gaugeapp.Reading {
	out := make([]gaugeapp.Reading, 0, len(readings))
	for _, reading := range readings {
		if auth.CanReadCard(r.Context(), reading.CardID) {
			out = append(out, reading)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, card.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, card.ErrMissingID),
		errors.Is(err, card.ErrInvalidRange),
		errors.Is(err, card.ErrInvalidDecimals),
		errors.Is(err, energy.ErrUnknownGauge),
		errors.Is(err, energy.ErrInvalidCollectionKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
