package home

import (
	"encoding/json"
	"strconv"
	"time"

	"bs-app/home-core/internal/geometry"
)

// Raw rows mirror what the persistence boundary actually hands back: ids may
// arrive as strings or numbers, geometry as structured values or JSON text,
// and any field may simply be absent. The Map* functions below are total:
// every shape failure falls back to a safe default instead of an error, so a
// half-broken row still produces a renderable entity.

// HomeRow is the loose shape of a homes row.
type HomeRow struct {
	ID           any        `json:"id"`
	Name         *string    `json:"name"`
	OwnerUserID  *string    `json:"owner_user_id"`
	PlanAssetURL *string    `json:"plan_asset_url"`
	CreatedAt    *time.Time `json:"created_at"`
}

// RoomRow is the loose shape of a rooms row; Polygon and BBox may be
// structured values, JSON text, or garbage.
type RoomRow struct {
	ID             any        `json:"id"`
	HomeID         any        `json:"home_id"`
	Name           *string    `json:"name"`
	Slug           *string    `json:"slug"`
	Polygon        any        `json:"polygon"`
	BBox           any        `json:"bbox"`
	SortOrder      *int       `json:"sort_order"`
	Telemetry      *Telemetry `json:"telemetry"`
	PlanAssetURL   *string    `json:"plan_asset_url"`
	DetailImageURL *string    `json:"detail_image_url"`
}

// DeviceRow is the loose shape of a devices row.
type DeviceRow struct {
	ID            any        `json:"id"`
	HomeID        any        `json:"home_id"`
	RoomID        any        `json:"room_id"`
	Type          *string    `json:"type"`
	Name          *string    `json:"name"`
	Position      any        `json:"position"`
	IsOn          *bool      `json:"is_on"`
	LastChangedAt *time.Time `json:"last_changed_at"`
}

// RoutineRow is the loose shape of a routines row; Actions may be structured
// or JSON text.
type RoutineRow struct {
	ID          any        `json:"id"`
	HomeID      any        `json:"home_id"`
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	Status      *string    `json:"status"`
	Cadence     *string    `json:"cadence"`
	NextRunAt   *time.Time `json:"next_run_at"`
	LastRunAt   *time.Time `json:"last_run_at"`
	Actions     any        `json:"actions"`
	SortOrder   *int       `json:"sort_order"`
}

func asID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case []byte:
		return string(id)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return ""
	}
}

func strOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}

func intOr(n *int, fallback int) int {
	if n == nil {
		return fallback
	}
	return *n
}

// MapHome converts a homes row, defaulting the name and plan asset.
func MapHome(row HomeRow) Home {
	return Home{
		ID:           asID(row.ID),
		Name:         strOr(row.Name, "Mi casa"),
		OwnerUserID:  strOr(row.OwnerUserID, ""),
		PlanAssetURL: strOr(row.PlanAssetURL, FallbackPlanURL),
		CreatedAt:    row.CreatedAt,
	}
}

// MapRoom converts a rooms row. Geometry parsing is tolerant; an unreadable
// polygon yields an empty one and the room renders from its bbox, if any.
func MapRoom(row RoomRow) Room {
	return Room{
		ID:             asID(row.ID),
		HomeID:         asID(row.HomeID),
		Name:           strOr(row.Name, "Ambiente"),
		Slug:           strOr(row.Slug, ""),
		Polygon:        geometry.ParsePolygon(row.Polygon),
		BBox:           geometry.ParseBBox(row.BBox),
		SortOrder:      intOr(row.SortOrder, 0),
		Telemetry:      row.Telemetry,
		PlanAssetURL:   strOr(row.PlanAssetURL, ""),
		DetailImageURL: strOr(row.DetailImageURL, ""),
	}
}

// MapDevice converts a devices row. Unknown types fall back to light, a
// missing position centers the marker.
func MapDevice(row DeviceRow) Device {
	pos := geometry.Point{X: 0.5, Y: 0.5}
	if pts := geometry.ParsePolygon([]any{rawPoint(row.Position)}); len(pts) == 1 {
		pos = pts[0]
	}

	typ := DeviceLight
	if row.Type != nil && DeviceType(*row.Type) == DeviceAC {
		typ = DeviceAC
	}

	isOn := false
	if row.IsOn != nil {
		isOn = *row.IsOn
	}

	return Device{
		ID:            asID(row.ID),
		HomeID:        asID(row.HomeID),
		RoomID:        asID(row.RoomID),
		Type:          typ,
		Name:          strOr(row.Name, "Dispositivo"),
		Position:      pos,
		IsOn:          isOn,
		LastChangedAt: row.LastChangedAt,
	}
}

// rawPoint normalizes the stored position into the map shape ParsePolygon
// filters, decoding JSON text if needed.
func rawPoint(raw any) any {
	switch v := raw.(type) {
	case map[string]any:
		return v
	case geometry.Point:
		return map[string]any{"x": v.X, "y": v.Y}
	case []byte:
		var m map[string]any
		if err := json.Unmarshal(v, &m); err != nil {
			return nil
		}
		return m
	case string:
		var m map[string]any
		if err := json.Unmarshal([]byte(v), &m); err != nil {
			return nil
		}
		return m
	default:
		return nil
	}
}

// MapRoutine converts a routines row. Invalid entries in the actions list
// are dropped silently; an unknown status reads as active.
func MapRoutine(row RoutineRow) Routine {
	status := RoutineActive
	if row.Status != nil && RoutineStatus(*row.Status) == RoutinePaused {
		status = RoutinePaused
	}

	return Routine{
		ID:          asID(row.ID),
		HomeID:      asID(row.HomeID),
		Name:        strOr(row.Name, "Rutina"),
		Description: strOr(row.Description, ""),
		Status:      status,
		Cadence:     strOr(row.Cadence, ""),
		NextRunAt:   row.NextRunAt,
		LastRunAt:   row.LastRunAt,
		Actions:     ParseActions(row.Actions),
		SortOrder:   intOr(row.SortOrder, 0),
	}
}

// ParseActions decodes a stored actions list, keeping only entries that pass
// IsRoutineAction. Accepts a structured slice or JSON text; anything else is
// an empty list.
func ParseActions(raw any) []RoutineAction {
	switch v := raw.(type) {
	case nil:
		return nil
	case []RoutineAction:
		out := make([]RoutineAction, len(v))
		copy(out, v)
		return out
	case []any:
		var out []RoutineAction
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok || !IsRoutineAction(m) {
				continue
			}
			out = append(out, actionFromMap(m))
		}
		return out
	case []byte:
		var decoded []any
		if err := json.Unmarshal(v, &decoded); err != nil {
			return nil
		}
		return ParseActions(decoded)
	case string:
		var decoded []any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil
		}
		return ParseActions(decoded)
	default:
		return nil
	}
}

// IsRoutineAction reports whether a decoded object is a usable action:
// rooms absent or a list, device_types absent or a list, set_state absent or
// boolean.
func IsRoutineAction(m map[string]any) bool {
	if v, ok := m["rooms"]; ok {
		if _, isList := v.([]any); !isList && v != nil {
			return false
		}
	}
	if v, ok := m["device_types"]; ok {
		if _, isList := v.([]any); !isList && v != nil {
			return false
		}
	}
	if v, ok := m["set_state"]; ok {
		if _, isBool := v.(bool); !isBool && v != nil {
			return false
		}
	}
	return true
}

func actionFromMap(m map[string]any) RoutineAction {
	var a RoutineAction
	if rooms, ok := m["rooms"].([]any); ok {
		for _, r := range rooms {
			if s, ok := r.(string); ok && s != "" {
				a.Rooms = append(a.Rooms, s)
			}
		}
	}
	if types, ok := m["device_types"].([]any); ok {
		for _, t := range types {
			if s, ok := t.(string); ok {
				switch DeviceType(s) {
				case DeviceLight, DeviceAC:
					a.DeviceTypes = append(a.DeviceTypes, DeviceType(s))
				}
			}
		}
	}
	if b, ok := m["set_state"].(bool); ok {
		a.SetState = &b
	}
	return a
}
