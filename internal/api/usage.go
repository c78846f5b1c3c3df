package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/goodtune/activityd/internal/storage"
	"github.com/goodtune/activityd/internal/usage"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

const defaultListLimit = 100

// UsageHandler handles usage record requests.
type UsageHandler struct {
	store  storage.UsageStore
	logger zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(store storage.UsageStore, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		store:  store,
		logger: logger.With().Str("handler", "usage").Logger(),
	}
}

// List returns usage records matching the query parameters user_id,
// category, since (a duration), limit and offset.
func (h *UsageHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r, time.Now())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	records, err := h.store.List(r.Context(), filter)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to list usage records")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve usage records")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// Get returns a specific record by ID.
func (h *UsageHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	record, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Usage record not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("Failed to get usage record")
		writeError(w, http.StatusInternalServerError, "Failed to retrieve usage record")
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func parseFilter(r *http.Request, now time.Time) (storage.UsageFilter, error) {
	query := r.URL.Query()
	filter := storage.UsageFilter{Limit: defaultListLimit}

	if raw := query.Get("user_id"); raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return filter, errors.New("invalid user_id")
		}
		filter.UserID = userID
	}

	if raw := query.Get("category"); raw != "" {
		category, err := usage.ParseCategory(raw)
		if err != nil {
			return filter, err
		}
		filter.Category = category
	}

	if raw := query.Get("since"); raw != "" {
		since, err := time.ParseDuration(raw)
		if err != nil || since <= 0 {
			return filter, errors.New("invalid since duration")
		}
		start := now.Add(-since)
		filter.StartTime = &start
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, errors.New("invalid limit")
		}
		filter.Limit = limit
	}

	if raw := query.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return filter, errors.New("invalid offset")
		}
		filter.Offset = offset
	}

	return filter, nil
}
