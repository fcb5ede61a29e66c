// Package home defines the portal's domain entities and the total
// conversions from loosely-typed persisted rows into them.
package home

import (
	"time"

	"bs-app/home-core/internal/geometry"
)

// Point and BBox alias the geometry package's normalized-coordinate types;
// domain code speaks the same shapes the parsers produce.
type (
	Point = geometry.Point
	BBox  = geometry.BBox
)

// DeviceType distinguishes the two simulated device families.
type DeviceType string

const (
	DeviceLight DeviceType = "light"
	DeviceAC    DeviceType = "ac"
)

// RoutineStatus is the toggleable state of a routine.
type RoutineStatus string

const (
	RoutineActive RoutineStatus = "active"
	RoutinePaused RoutineStatus = "paused"
)

// Home is the floor-plan container. Created outside this core; read-only
// here except for its plan asset reference.
type Home struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	OwnerUserID  string     `json:"owner_user_id"`
	PlanAssetURL string     `json:"plan_asset_url"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// Telemetry is the latest ambient reading reported for a room.
type Telemetry struct {
	TemperatureC *float64   `json:"temperature_c,omitempty"`
	Humidity     *float64   `json:"humidity,omitempty"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Room is a polygonal zone of the plan. The polygon's point order defines
// its edge sequence; a non-empty polygon has at least three points. BBox,
// when present, is the axis-aligned bound of the polygon and doubles as the
// fallback rendering shape for rooms without one.
type Room struct {
	ID             string           `json:"id"`
	HomeID         string           `json:"home_id"`
	Name           string           `json:"name"`
	Slug           string           `json:"slug,omitempty"`
	Polygon        []geometry.Point `json:"polygon"`
	BBox           *geometry.BBox   `json:"bbox,omitempty"`
	SortOrder      int              `json:"sort_order"`
	Telemetry      *Telemetry       `json:"telemetry,omitempty"`
	PlanAssetURL   string           `json:"plan_asset_url,omitempty"`
	DetailImageURL string           `json:"detail_image_url,omitempty"`
}

// Device is a simulated light or AC unit pinned to a room at a normalized
// marker position.
type Device struct {
	ID            string         `json:"id"`
	HomeID        string         `json:"home_id"`
	RoomID        string         `json:"room_id"`
	Type          DeviceType     `json:"type"`
	Name          string         `json:"name"`
	Position      geometry.Point `json:"position"`
	IsOn          bool           `json:"is_on"`
	LastChangedAt *time.Time     `json:"last_changed_at,omitempty"`
}

// RoutineAction selects devices by room slug and device type and sets their
// state. An action with no resolvable rooms or no device types is a no-op.
type RoutineAction struct {
	Rooms       []string     `json:"rooms,omitempty"`
	DeviceTypes []DeviceType `json:"device_types,omitempty"`
	SetState    *bool        `json:"set_state,omitempty"`
}

// Routine is a named bulk action over the home's devices. Cadence is
// descriptive text only; scheduling uses a fixed forward offset on run.
type Routine struct {
	ID          string          `json:"id"`
	HomeID      string          `json:"home_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Status      RoutineStatus   `json:"status"`
	Cadence     string          `json:"cadence,omitempty"`
	NextRunAt   *time.Time      `json:"next_run_at,omitempty"`
	LastRunAt   *time.Time      `json:"last_run_at,omitempty"`
	Actions     []RoutineAction `json:"actions,omitempty"`
	SortOrder   int             `json:"sort_order"`
}

// State is the full snapshot the portal renders and mutates optimistically.
// It is composed at fetch time, never persisted as one row.
type State struct {
	Home     Home      `json:"home"`
	Rooms    []Room    `json:"rooms"`
	Devices  []Device  `json:"devices"`
	Routines []Routine `json:"routines"`
}

// RoomBBox returns the room's stored bbox, falling back to the bound of its
// polygon. Nil when the room has neither.
func (r Room) RoomBBox() *geometry.BBox {
	if r.BBox != nil {
		b := *r.BBox
		return &b
	}
	return geometry.ComputeBBox(r.Polygon)
}

// RoomStatus reports whether any light or AC in the room is on. One device
// on is enough to mark the category lit.
type RoomStatus struct {
	LightsOn bool `json:"lights_on"`
	ACOn     bool `json:"ac_on"`
}

// StatusForRoom computes the per-category status over the room's devices.
func StatusForRoom(roomID string, devices []Device) RoomStatus {
	var st RoomStatus
	for _, d := range devices {
		if d.RoomID != roomID || !d.IsOn {
			continue
		}
		switch d.Type {
		case DeviceLight:
			st.LightsOn = true
		case DeviceAC:
			st.ACOn = true
		}
	}
	return st
}

// ClampPosition keeps an interactively edited marker off the extreme edge
// of the plan image.
func ClampPosition(p geometry.Point) geometry.Point {
	return geometry.Point{X: clamp01(p.X), Y: clamp01(p.Y)}
}

func clamp01(v float64) float64 {
	const lo, hi = 0.01, 0.99
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
