package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"bs-app/home-core/internal/auth"
	"bs-app/home-core/internal/feed"
	"bs-app/home-core/internal/home"
	"bs-app/home-core/internal/metrics"
	"bs-app/home-core/internal/store"
)

// stateFetcher loads the snapshot for an owner; nil state with nil error
// means the account has no home yet.
type stateFetcher interface {
	FetchHomeState(ctx context.Context, ownerUserID string) (*home.State, error)
}

// homeQueries is the slice of the store the mutation endpoints touch.
type homeQueries interface {
	GetHomeOwner(ctx context.Context, id string) (store.HomeOwner, error)
	GetDeviceRef(ctx context.Context, id string) (store.DeviceRef, error)
	UpdateDevicePosition(ctx context.Context, id string, position home.Point, changedAt time.Time) (home.DeviceRow, error)
	UpdateDeviceOn(ctx context.Context, id string, isOn bool, changedAt time.Time) (home.DeviceRow, error)
	GetRoomRef(ctx context.Context, id string) (store.RoomRef, error)
	UpdateRoomShape(ctx context.Context, id string, polygon []home.Point, bbox *home.BBox) (home.RoomRow, error)
	GetRoutine(ctx context.Context, id string) (home.RoutineRow, error)
	UpdateRoutineStatus(ctx context.Context, id string, status home.RoutineStatus) (home.RoutineRow, error)
	StampRoutineRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) (home.RoutineRow, error)
	ResolveRoomSlugs(ctx context.Context, homeID string, slugs []string) (map[string]string, error)
	BulkSetDevices(ctx context.Context, homeID string, roomIDs, types []string, isOn bool, changedAt time.Time) error
	ListDevices(ctx context.Context, homeID string) ([]home.DeviceRow, error)
}

// routineRunOffset is the fixed forward schedule stamped on next_run_at
// after a run. The routine's cadence string is display-only.
const routineRunOffset = 6 * time.Hour

type Handler struct {
	log      zerolog.Logger
	pool     *store.Pool
	sessions auth.Resolver
	internal *auth.InternalChecker
	metrics  *metrics.Metrics
	feed     feed.Publisher

	queries homeQueries
	state   stateFetcher
	now     func() time.Time
}

func NewHandler(log zerolog.Logger, pool *store.Pool, sessions auth.Resolver, internal *auth.InternalChecker, m *metrics.Metrics, pub feed.Publisher) *Handler {
	h := &Handler{
		log:      log,
		pool:     pool,
		sessions: sessions,
		internal: internal,
		metrics:  m,
		feed:     pub,
		now:      time.Now,
	}
	if pub == nil {
		h.feed = feed.NopPublisher{}
	}
	if pool != nil {
		q := pool.Queries()
		h.queries = q
		h.state = store.NewStateService(log, q)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Use(h.accessLog)

	// Health
	r.Get("/healthz", h.handleHealthz)
	r.Get("/readyz", h.handleReadyZ)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	// API
	r.Route("/api", func(r chi.Router) {
		r.Route("/v1", func(r chi.Router) {
			r.Route("/home", func(r chi.Router) {
				r.Get("/state", h.handleHomeState)
				r.Get("/plan.svg", h.handlePlanSVG)
				r.Post("/device", h.handleDevicePosition)
				r.Post("/toggle", h.handleDeviceToggle)
				r.Post("/room", h.handleRoomShape)
				r.Post("/routines", h.handleRoutine)
			})
		})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		h.writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.metrics.ObserveHTTPRequest(r.Method, r.URL.Path, ww.Status(), time.Since(start))
		h.log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Int64("duration_ms", time.Since(start).Milliseconds()).
			Msg("http_request")
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	resp := map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": msg,
		},
	}
	if details != nil {
		resp["error"].(map[string]any)["details"] = details
	}
	h.writeJSON(w, status, resp)
}

func decodeJSONStrict(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return errors.New("unexpected extra data after JSON body")
		}
		return err
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// authenticate resolves the caller from the Authorization header. A false
// return means the response is already written.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (auth.User, bool) {
	token := bearerToken(r)
	if token == "" {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authorization token", nil)
		return auth.User{}, false
	}
	user, ok := h.sessions.Resolve(token)
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid session", nil)
		return auth.User{}, false
	}
	return user, true
}

// requireInternal enforces the staff capability on the control-panel writes.
func (h *Handler) requireInternal(w http.ResponseWriter, user auth.User) bool {
	if !h.internal.IsInternal(user) {
		h.writeError(w, http.StatusForbidden, "forbidden", "internal users only", nil)
		return false
	}
	return true
}

func (h *Handler) ensureQueries(w http.ResponseWriter) bool {
	if h.queries == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return false
	}
	return true
}

func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleReadyZ(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.pool == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	if err := h.pool.Ping(ctx); err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not ready", map[string]any{"error": err.Error()})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}

// handleHomeState returns the caller's full snapshot, or 204 when the
// account has no home yet. Owners read their own home; no internal
// capability needed.
func (h *Handler) handleHomeState(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.state == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	state, err := h.state.FetchHomeState(r.Context(), user.ID)
	if err != nil {
		h.log.Error().Err(err).Msg("home state fetch failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}
	if state == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}
