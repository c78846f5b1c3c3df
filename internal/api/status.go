package api

import (
	"net/http"
	"time"

	"github.com/goodtune/activityd/internal/usage"
)

// Journal is the read side of the usage journal.
type Journal interface {
	OpenCategories() []usage.Category
	Open(category usage.Category) (*usage.Record, bool)
	Login() (*usage.Record, bool)
}

// IdleState reports the detector state.
type IdleState interface {
	Idle() bool
	HooksInstalled() bool
}

// StatusResponse describes the live tracking state.
type StatusResponse struct {
	Idle           bool           `json:"idle"`
	HooksInstalled bool           `json:"hooks_installed"`
	Login          *usage.Record  `json:"login,omitempty"`
	Open           []usage.Record `json:"open"`
	Time           time.Time      `json:"time"`
}

// StatusHandler serves the live tracking state.
type StatusHandler struct {
	journal Journal
	idle    IdleState
}

// NewStatusHandler creates a status handler.
func NewStatusHandler(journal Journal, idle IdleState) *StatusHandler {
	return &StatusHandler{journal: journal, idle: idle}
}

// Get returns the current login, open spans and idle state.
func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Idle:           h.idle.Idle(),
		HooksInstalled: h.idle.HooksInstalled(),
		Open:           []usage.Record{},
		Time:           time.Now(),
	}

	if login, ok := h.journal.Login(); ok {
		resp.Login = login
	}
	for _, category := range h.journal.OpenCategories() {
		if record, ok := h.journal.Open(category); ok {
			resp.Open = append(resp.Open, *record)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
