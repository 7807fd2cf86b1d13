package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	energyapp "energy-gauge/internal/energy/application"
	energy "energy-gauge/internal/energy/domain"
)

const (
	collectionsPath     = "/api/v1/collections"
	preferencesPath     = "/api/v1/energy/preferences"
	clearPreferencePath = preferencesPath + "/clear"
)

// CollectionControl drives the live energy collections.
type CollectionControl interface {
	States() []energyapp.CollectionState
	Refresh(ctx context.Context, key string) error
	SetPeriod(ctx context.Context, key string, start, end time.Time) error
	SetCompare(ctx context.Context, key string, compare bool) error
	ClearPreferences(ctx context.Context) error
	SavePreferences(ctx context.Context, prefs energy.Preferences) (energy.Preferences, error)
}

// CollectionHandler provides collection control endpoints.
type CollectionHandler struct {
	control CollectionControl
}

// NewCollectionHandler constructs a handler.
func NewCollectionHandler(control CollectionControl) (*CollectionHandler, error) {
	if control == nil {
		return nil, errors.New("collection handler: nil control")
	}
	return &CollectionHandler{control: control}, nil
}

type periodRequest struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end"`
}

type compareRequest struct {
	Compare bool `json:"compare"`
}

// ServeHTTP handles /api/v1/collections, its subroutes and the energy preferences.
func (h *CollectionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == preferencesPath:
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.savePreferences(w, r)
	case r.URL.Path == clearPreferencePath:
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if err := h.control.ClearPreferences(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case r.URL.Path == collectionsPath:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, http.StatusOK, h.control.States())
	case strings.HasPrefix(r.URL.Path, collectionsPath+"/"):
		h.handleAction(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *CollectionHandler) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, collectionsPath+"/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	key, action := parts[0], parts[1]

	var err error
	switch action {
	case "refresh":
		err = h.control.Refresh(r.Context(), key)
	case "period":
		var req periodRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil || req.Start.IsZero() {
			http.Error(w, "start is required (RFC3339)", http.StatusBadRequest)
			return
		}
		var end time.Time
		if req.End != nil {
			end = *req.End
		}
		err = h.control.SetPeriod(r.Context(), key, req.Start, end)
	case "compare":
		var req compareRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			http.Error(w, "invalid json body", http.StatusBadRequest)
			return
		}
		err = h.control.SetCompare(r.Context(), key, req.Compare)
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if err != nil {
		respondCollectionError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// savePreferences stores the preferences on the host, then every collection
// drops its cached copy and refreshes.
func (h *CollectionHandler) savePreferences(w http.ResponseWriter, r *http.Request) {
	var prefs energy.Preferences
	if err := json.NewDecoder(r.Body).Decode(&prefs); err != nil {
		http.Error(w, "invalid energy preferences: "+err.Error(), http.StatusBadRequest)
		return
	}
	saved, err := h.control.SavePreferences(r.Context(), prefs)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func respondCollectionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, energyapp.ErrUnknownCollection):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, energy.ErrInvalidCollectionKey):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, energyapp.ErrStale):
		w.WriteHeader(http.StatusConflict)
	case errors.Is(err, energyapp.ErrInvalidPeriod):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusBadGateway)
	}
}
