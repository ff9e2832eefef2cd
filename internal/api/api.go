// Package api serves a read-only HTTP view of the pool.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"YieldKeeper/internal/metrics"
	"YieldKeeper/internal/model"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Reader is the read side of the ledger.
type Reader interface {
	Pool() model.GlobalPool
	Position(owner model.Address) (model.Position, bool)
	PendingReward(owner model.Address) (uint64, bool)
	Positions() []model.Position
	Markets() []model.Market
	Events(ctx context.Context, limit int) ([]model.Event, error)
}

type handler struct {
	reader Reader
	log    *zap.Logger
}

// positionView is a position with its unallocated pending reward.
type positionView struct {
	model.Position
	PendingReward uint64 `json:"pending_reward"`
}

// poolView adds the derived state to the pool record.
type poolView struct {
	model.GlobalPool
	State model.PoolState `json:"state"`
}

// NewRouter mounts every read-only route.
func NewRouter(reader Reader, mc *metrics.Collector, logger *zap.Logger) http.Handler {
	h := &handler{reader: reader, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", h.health)
	r.Get("/pool", h.pool)
	r.Get("/positions", h.positions)
	r.Get("/positions/{owner}", h.position)
	r.Get("/markets", h.markets)
	r.Get("/events", h.events)
	r.Method(http.MethodGet, "/metrics", mc.Handler())
	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) pool(w http.ResponseWriter, _ *http.Request) {
	p := h.reader.Pool()
	writeJSON(w, http.StatusOK, poolView{GlobalPool: p, State: p.State()})
}

func (h *handler) positions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reader.Positions())
}

func (h *handler) position(w http.ResponseWriter, r *http.Request) {
	owner := model.Address(chi.URLParam(r, "owner"))
	pos, ok := h.reader.Position(owner)
	if !ok {
		writeJSONError(w, http.StatusNotFound, errors.New("position not found"))
		return
	}
	pending, _ := h.reader.PendingReward(owner)
	writeJSON(w, http.StatusOK, positionView{Position: pos, PendingReward: pending})
}

func (h *handler) markets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reader.Markets())
}

func (h *handler) events(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventLimit)
	}
	events, err := h.reader.Events(r.Context(), limit)
	if err != nil {
		h.log.Error("list events", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, errors.New("events unavailable"))
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
