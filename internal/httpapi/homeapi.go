package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/jackc/pgx/v5"

	"bs-app/home-core/internal/home"
	"bs-app/home-core/internal/planrender"
)

type devicePositionRequest struct {
	DeviceID string      `json:"deviceId"`
	HomeID   string      `json:"homeId,omitempty"`
	Position *home.Point `json:"position"`
}

type deviceToggleRequest struct {
	DeviceID  string `json:"deviceId"`
	NextState *bool  `json:"nextState"`
	HomeID    string `json:"homeId,omitempty"`
}

type roomShapeRequest struct {
	RoomID  string        `json:"roomId"`
	HomeID  string        `json:"homeId,omitempty"`
	Polygon *[]home.Point `json:"polygon"`
	BBox    *home.BBox    `json:"bbox,omitempty"`
}

type routineRequest struct {
	Action    string `json:"action"`
	RoutineID string `json:"routineId"`
	Status    string `json:"status,omitempty"`
	HomeID    string `json:"homeId,omitempty"`
}

// handleDevicePosition moves a device marker. Internal-role scoped; the
// position is written verbatim and last_changed_at stamped.
func (h *Handler) handleDevicePosition(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !h.requireInternal(w, user) {
		return
	}

	var req devicePositionRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.DeviceID == "" || req.Position == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "deviceId and position are required", nil)
		return
	}
	if !h.ensureQueries(w) {
		return
	}

	ref, err := h.queries.GetDeviceRef(r.Context(), req.DeviceID)
	if err != nil {
		h.writeRefError(w, err, "device")
		return
	}
	if req.HomeID != "" && ref.HomeID != req.HomeID {
		h.writeError(w, http.StatusForbidden, "forbidden", "device does not belong to this home", nil)
		return
	}

	row, err := h.queries.UpdateDevicePosition(r.Context(), req.DeviceID, *req.Position, h.now().UTC())
	if err != nil {
		h.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("device position update failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}

	device := home.MapDevice(row)
	h.feed.PublishDevice(device)
	h.metrics.IncFeedEvent()
	h.writeJSON(w, http.StatusOK, map[string]any{"device": device})
}

// handleDeviceToggle flips a device on or off. Stricter than the other
// endpoints: besides the internal role, the owning home's owner must be the
// caller.
func (h *Handler) handleDeviceToggle(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !h.requireInternal(w, user) {
		return
	}

	var req deviceToggleRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.DeviceID == "" || req.NextState == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "deviceId and nextState (boolean) are required", nil)
		return
	}
	if !h.ensureQueries(w) {
		return
	}

	ref, err := h.queries.GetDeviceRef(r.Context(), req.DeviceID)
	if err != nil {
		h.writeRefError(w, err, "device")
		return
	}
	if req.HomeID != "" && ref.HomeID != req.HomeID {
		h.writeError(w, http.StatusForbidden, "forbidden", "device does not belong to this home", nil)
		return
	}

	// Ownership check on top of the role check. A failed home lookup is
	// treated as an absent owner, matching the tolerant read elsewhere.
	if owner, err := h.queries.GetHomeOwner(r.Context(), ref.HomeID); err == nil {
		if owner.OwnerUserID != nil && *owner.OwnerUserID != "" && *owner.OwnerUserID != user.ID {
			h.writeError(w, http.StatusForbidden, "forbidden", "device not owned by this user", nil)
			return
		}
	}

	row, err := h.queries.UpdateDeviceOn(r.Context(), req.DeviceID, *req.NextState, h.now().UTC())
	if err != nil {
		h.log.Error().Err(err).Str("device_id", req.DeviceID).Msg("device toggle failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}

	device := home.MapDevice(row)
	h.metrics.IncDeviceToggle(string(device.Type), device.IsOn)
	h.feed.PublishDevice(device)
	h.metrics.IncFeedEvent()
	h.writeJSON(w, http.StatusOK, map[string]any{"device": device})
}

// handleRoomShape rewrites a room's polygon and bbox verbatim. An empty
// polygon is valid and reverts the room to bbox-only rendering. No
// server-side bbox recomputation: the client is the source of truth for
// their consistency.
func (h *Handler) handleRoomShape(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !h.requireInternal(w, user) {
		return
	}

	var req roomShapeRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.RoomID == "" || req.Polygon == nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "roomId and polygon are required", nil)
		return
	}
	if !h.ensureQueries(w) {
		return
	}

	ref, err := h.queries.GetRoomRef(r.Context(), req.RoomID)
	if err != nil {
		h.writeRefError(w, err, "room")
		return
	}
	if req.HomeID != "" && ref.HomeID != req.HomeID {
		h.writeError(w, http.StatusForbidden, "forbidden", "room does not belong to this home", nil)
		return
	}

	row, err := h.queries.UpdateRoomShape(r.Context(), req.RoomID, *req.Polygon, req.BBox)
	if err != nil {
		h.log.Error().Err(err).Str("room_id", req.RoomID).Msg("room shape update failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"room": home.MapRoom(row)})
}

// handleRoutine toggles a routine's status or runs its actions.
func (h *Handler) handleRoutine(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if !h.requireInternal(w, user) {
		return
	}

	var req routineRequest
	if err := decodeJSONStrict(r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "invalid json body", map[string]any{"error": err.Error()})
		return
	}
	if req.RoutineID == "" || req.Action == "" {
		h.writeError(w, http.StatusBadRequest, "validation_failed", "action and routineId are required", nil)
		return
	}
	if !h.ensureQueries(w) {
		return
	}

	row, err := h.queries.GetRoutine(r.Context(), req.RoutineID)
	if err != nil {
		h.writeRefError(w, err, "routine")
		return
	}
	routine := home.MapRoutine(row)
	if req.HomeID != "" && routine.HomeID != req.HomeID {
		h.writeError(w, http.StatusForbidden, "forbidden", "routine does not belong to this home", nil)
		return
	}

	switch req.Action {
	case "toggle":
		h.runRoutineToggle(w, r, routine, req.Status)
	case "run":
		h.runRoutineRun(w, r, routine)
	default:
		h.writeError(w, http.StatusBadRequest, "validation_failed", "unknown action", nil)
	}
}

func (h *Handler) runRoutineToggle(w http.ResponseWriter, r *http.Request, routine home.Routine, status string) {
	// Omitted status falls back to the current one, so a bare toggle request
	// is effectively a no-op write.
	next := routine.Status
	switch home.RoutineStatus(status) {
	case home.RoutineActive, home.RoutinePaused:
		next = home.RoutineStatus(status)
	default:
		if status != "" {
			h.writeError(w, http.StatusBadRequest, "validation_failed", "status must be active or paused", nil)
			return
		}
	}

	row, err := h.queries.UpdateRoutineStatus(r.Context(), routine.ID, next)
	if err != nil {
		h.log.Error().Err(err).Str("routine_id", routine.ID).Msg("routine toggle failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"routine": home.MapRoutine(row)})
}

func (h *Handler) runRoutineRun(w http.ResponseWriter, r *http.Request, routine home.Routine) {
	start := h.now()
	ctx := r.Context()

	if len(routine.Actions) > 0 {
		slugSet := map[string]struct{}{}
		var slugs []string
		for _, action := range routine.Actions {
			for _, slug := range action.Rooms {
				if _, seen := slugSet[slug]; !seen {
					slugSet[slug] = struct{}{}
					slugs = append(slugs, slug)
				}
			}
		}

		roomIDBySlug := map[string]string{}
		if len(slugs) > 0 {
			resolved, err := h.queries.ResolveRoomSlugs(ctx, routine.HomeID, slugs)
			if err != nil {
				h.log.Error().Err(err).Str("routine_id", routine.ID).Msg("slug resolution failed")
				h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
				return
			}
			roomIDBySlug = resolved
		}

		for _, action := range routine.Actions {
			var roomIDs []string
			for _, slug := range action.Rooms {
				if id, ok := roomIDBySlug[slug]; ok {
					roomIDs = append(roomIDs, id)
				}
			}
			types := make([]string, 0, len(action.DeviceTypes))
			for _, t := range action.DeviceTypes {
				types = append(types, string(t))
			}
			// An action with nothing to match is a no-op, not an error.
			if len(roomIDs) == 0 || len(types) == 0 {
				continue
			}

			setState := false
			if action.SetState != nil {
				setState = *action.SetState
			}
			if err := h.queries.BulkSetDevices(ctx, routine.HomeID, roomIDs, types, setState, h.now().UTC()); err != nil {
				h.log.Error().Err(err).Str("routine_id", routine.ID).Msg("routine bulk update failed")
				h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
				return
			}
		}
	}

	deviceRows, err := h.queries.ListDevices(ctx, routine.HomeID)
	if err != nil {
		h.log.Error().Err(err).Str("home_id", routine.HomeID).Msg("device list failed after run")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}
	devices := make([]home.Device, 0, len(deviceRows))
	for _, row := range deviceRows {
		device := home.MapDevice(row)
		devices = append(devices, device)
		h.feed.PublishDevice(device)
		h.metrics.IncFeedEvent()
	}

	now := h.now().UTC()
	updatedRow, err := h.queries.StampRoutineRun(ctx, routine.ID, now, now.Add(routineRunOffset))
	if err != nil {
		h.log.Error().Err(err).Str("routine_id", routine.ID).Msg("routine stamp failed")
		h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
		return
	}

	h.metrics.IncRoutineRun()
	h.metrics.ObserveRoutineRunDuration(h.now().Sub(start))
	h.writeJSON(w, http.StatusOK, map[string]any{
		"devices":  devices,
		"routines": []home.Routine{home.MapRoutine(updatedRow)},
	})
}

// writeRefError maps an entity lookup failure to 404 (absent) or 500.
func (h *Handler) writeRefError(w http.ResponseWriter, err error, entity string) {
	if errors.Is(err, pgx.ErrNoRows) {
		h.writeError(w, http.StatusNotFound, "not_found", entity+" not found", nil)
		return
	}
	h.log.Error().Err(err).Str("entity", entity).Msg("lookup failed")
	h.writeError(w, http.StatusInternalServerError, "db_error", err.Error(), nil)
}

// handlePlanSVG renders the current floor-plan overlay (room shapes plus
// device markers) at the requested pixel size.
func (h *Handler) handlePlanSVG(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}
	if h.state == nil {
		h.writeError(w, http.StatusServiceUnavailable, "db_unavailable", "database not configured", nil)
		return
	}

	state, err := h.state.FetchHomeState(r.Context(), user.ID)
	if err != nil || state == nil {
		state = home.DemoState()
	}

	width := queryFloat(r, "width", 1200)
	height := queryFloat(r, "height", 900)

	w.Header().Set("Content-Type", "image/svg+xml")
	if err := planrender.RenderSVG(w, state, width, height); err != nil {
		h.log.Error().Err(err).Msg("plan render failed")
	}
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 || v > 10000 {
		return fallback
	}
	return v
}
