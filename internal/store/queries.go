package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"bs-app/home-core/internal/geometry"
	"bs-app/home-core/internal/home"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

// Geometry columns (polygon, bbox, position, actions) are jsonb. They are
// scanned into raw bytes and left loose on the row; the home package's
// tolerant parsers own the decode.

const getHomeForOwner = `-- name: GetHomeForOwner :one
SELECT id, name, owner_user_id, plan_asset_url, created_at
FROM homes
WHERE owner_user_id = $1
ORDER BY created_at ASC
LIMIT 1
`

func (q *Queries) GetHomeForOwner(ctx context.Context, ownerUserID string) (home.HomeRow, error) {
	row := q.db.QueryRow(ctx, getHomeForOwner, ownerUserID)
	var i home.HomeRow
	var id string
	err := row.Scan(&id, &i.Name, &i.OwnerUserID, &i.PlanAssetURL, &i.CreatedAt)
	i.ID = id
	return i, err
}

const getHomeOwner = `-- name: GetHomeOwner :one
SELECT id, owner_user_id
FROM homes
WHERE id = $1
`

// HomeOwner is the minimal home projection the toggle endpoint checks.
type HomeOwner struct {
	ID          string
	OwnerUserID *string
}

func (q *Queries) GetHomeOwner(ctx context.Context, id string) (HomeOwner, error) {
	row := q.db.QueryRow(ctx, getHomeOwner, id)
	var i HomeOwner
	err := row.Scan(&i.ID, &i.OwnerUserID)
	return i, err
}

const listRooms = `-- name: ListRooms :many
SELECT r.id,
       r.home_id,
       r.name,
       r.slug,
       r.polygon,
       r.bbox,
       r.sort_order,
       r.plan_asset_url,
       r.detail_image_url,
       t.temperature_c,
       t.humidity,
       t.updated_at
FROM rooms r
LEFT JOIN LATERAL (
  SELECT temperature_c, humidity, updated_at
  FROM room_telemetry
  WHERE room_id = r.id
  ORDER BY updated_at DESC
  LIMIT 1
) t ON true
WHERE r.home_id = $1
ORDER BY r.sort_order ASC, r.created_at ASC
`

func (q *Queries) ListRooms(ctx context.Context, homeID string) ([]home.RoomRow, error) {
	rows, err := q.db.Query(ctx, listRooms, homeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []home.RoomRow
	for rows.Next() {
		var i home.RoomRow
		var id, hid string
		var polygon, bbox []byte
		var tempC, humidity *float64
		var updatedAt *time.Time
		if err := rows.Scan(&id, &hid, &i.Name, &i.Slug, &polygon, &bbox,
			&i.SortOrder, &i.PlanAssetURL, &i.DetailImageURL,
			&tempC, &humidity, &updatedAt); err != nil {
			return nil, err
		}
		i.ID, i.HomeID = id, hid
		i.Polygon, i.BBox = polygon, bbox
		if tempC != nil || humidity != nil || updatedAt != nil {
			i.Telemetry = &home.Telemetry{TemperatureC: tempC, Humidity: humidity, UpdatedAt: updatedAt}
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deviceColumns = `id, home_id, room_id, type, name, position, is_on, last_changed_at`

const listDevices = `-- name: ListDevices :many
SELECT ` + deviceColumns + `
FROM devices
WHERE home_id = $1
ORDER BY created_at ASC
`

func scanDeviceRow(row pgx.Row) (home.DeviceRow, error) {
	var i home.DeviceRow
	var id, hid, rid string
	var position []byte
	err := row.Scan(&id, &hid, &rid, &i.Type, &i.Name, &position, &i.IsOn, &i.LastChangedAt)
	i.ID, i.HomeID, i.RoomID = id, hid, rid
	i.Position = position
	return i, err
}

func (q *Queries) ListDevices(ctx context.Context, homeID string) ([]home.DeviceRow, error) {
	rows, err := q.db.Query(ctx, listDevices, homeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []home.DeviceRow
	for rows.Next() {
		i, err := scanDeviceRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getDeviceRef = `-- name: GetDeviceRef :one
SELECT id, home_id, room_id, is_on
FROM devices
WHERE id = $1
`

// DeviceRef is the ownership projection the mutation endpoints validate
// before writing.
type DeviceRef struct {
	ID     string
	HomeID string
	RoomID string
	IsOn   bool
}

func (q *Queries) GetDeviceRef(ctx context.Context, id string) (DeviceRef, error) {
	row := q.db.QueryRow(ctx, getDeviceRef, id)
	var i DeviceRef
	err := row.Scan(&i.ID, &i.HomeID, &i.RoomID, &i.IsOn)
	return i, err
}

const updateDevicePosition = `-- name: UpdateDevicePosition :one
UPDATE devices
SET position = $2::jsonb,
    last_changed_at = $3
WHERE id = $1
RETURNING ` + deviceColumns + `
`

func (q *Queries) UpdateDevicePosition(ctx context.Context, id string, position geometry.Point, changedAt time.Time) (home.DeviceRow, error) {
	encoded, err := json.Marshal(position)
	if err != nil {
		return home.DeviceRow{}, err
	}
	return scanDeviceRow(q.db.QueryRow(ctx, updateDevicePosition, id, string(encoded), changedAt))
}

const updateDeviceOn = `-- name: UpdateDeviceOn :one
UPDATE devices
SET is_on = $2,
    last_changed_at = $3
WHERE id = $1
RETURNING ` + deviceColumns + `
`

func (q *Queries) UpdateDeviceOn(ctx context.Context, id string, isOn bool, changedAt time.Time) (home.DeviceRow, error) {
	return scanDeviceRow(q.db.QueryRow(ctx, updateDeviceOn, id, isOn, changedAt))
}

const getRoomRef = `-- name: GetRoomRef :one
SELECT id, home_id
FROM rooms
WHERE id = $1
`

// RoomRef is the ownership projection for room mutations.
type RoomRef struct {
	ID     string
	HomeID string
}

func (q *Queries) GetRoomRef(ctx context.Context, id string) (RoomRef, error) {
	row := q.db.QueryRow(ctx, getRoomRef, id)
	var i RoomRef
	err := row.Scan(&i.ID, &i.HomeID)
	return i, err
}

const updateRoomShape = `-- name: UpdateRoomShape :one
UPDATE rooms
SET polygon = $2::jsonb,
    bbox = $3::jsonb
WHERE id = $1
RETURNING id, home_id, name, slug, polygon, bbox, sort_order, plan_asset_url, detail_image_url
`

// UpdateRoomShape writes the polygon and bbox verbatim; the caller is the
// source of truth for their consistency.
func (q *Queries) UpdateRoomShape(ctx context.Context, id string, polygon []geometry.Point, bbox *geometry.BBox) (home.RoomRow, error) {
	if polygon == nil {
		polygon = []geometry.Point{}
	}
	encodedPolygon, err := json.Marshal(polygon)
	if err != nil {
		return home.RoomRow{}, err
	}
	var encodedBBox any
	if bbox != nil {
		raw, err := json.Marshal(bbox)
		if err != nil {
			return home.RoomRow{}, err
		}
		encodedBBox = string(raw)
	}

	row := q.db.QueryRow(ctx, updateRoomShape, id, string(encodedPolygon), encodedBBox)
	var i home.RoomRow
	var rid, hid string
	var rawPolygon, rawBBox []byte
	err = row.Scan(&rid, &hid, &i.Name, &i.Slug, &rawPolygon, &rawBBox,
		&i.SortOrder, &i.PlanAssetURL, &i.DetailImageURL)
	i.ID, i.HomeID = rid, hid
	i.Polygon, i.BBox = rawPolygon, rawBBox
	return i, err
}

const routineColumns = `id, home_id, name, description, status, cadence, next_run_at, last_run_at, actions, sort_order`

const listRoutines = `-- name: ListRoutines :many
SELECT ` + routineColumns + `
FROM routines
WHERE home_id = $1
ORDER BY sort_order ASC, created_at ASC
`

func scanRoutineRow(row pgx.Row) (home.RoutineRow, error) {
	var i home.RoutineRow
	var id, hid string
	var actions []byte
	err := row.Scan(&id, &hid, &i.Name, &i.Description, &i.Status, &i.Cadence,
		&i.NextRunAt, &i.LastRunAt, &actions, &i.SortOrder)
	i.ID, i.HomeID = id, hid
	i.Actions = actions
	return i, err
}

func (q *Queries) ListRoutines(ctx context.Context, homeID string) ([]home.RoutineRow, error) {
	rows, err := q.db.Query(ctx, listRoutines, homeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []home.RoutineRow
	for rows.Next() {
		i, err := scanRoutineRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const getRoutine = `-- name: GetRoutine :one
SELECT ` + routineColumns + `
FROM routines
WHERE id = $1
`

func (q *Queries) GetRoutine(ctx context.Context, id string) (home.RoutineRow, error) {
	return scanRoutineRow(q.db.QueryRow(ctx, getRoutine, id))
}

const updateRoutineStatus = `-- name: UpdateRoutineStatus :one
UPDATE routines
SET status = $2
WHERE id = $1
RETURNING ` + routineColumns + `
`

func (q *Queries) UpdateRoutineStatus(ctx context.Context, id string, status home.RoutineStatus) (home.RoutineRow, error) {
	return scanRoutineRow(q.db.QueryRow(ctx, updateRoutineStatus, id, string(status)))
}

const stampRoutineRun = `-- name: StampRoutineRun :one
UPDATE routines
SET last_run_at = $2,
    next_run_at = $3
WHERE id = $1
RETURNING ` + routineColumns + `
`

func (q *Queries) StampRoutineRun(ctx context.Context, id string, lastRunAt, nextRunAt time.Time) (home.RoutineRow, error) {
	return scanRoutineRow(q.db.QueryRow(ctx, stampRoutineRun, id, lastRunAt, nextRunAt))
}

const resolveRoomSlugs = `-- name: ResolveRoomSlugs :many
SELECT id, slug
FROM rooms
WHERE home_id = $1
  AND slug = ANY($2)
`

// ResolveRoomSlugs maps room slugs to ids, scoped to one home. Slugs with no
// matching room are simply absent from the result.
func (q *Queries) ResolveRoomSlugs(ctx context.Context, homeID string, slugs []string) (map[string]string, error) {
	rows, err := q.db.Query(ctx, resolveRoomSlugs, homeID, slugs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var id string
		var slug *string
		if err := rows.Scan(&id, &slug); err != nil {
			return nil, err
		}
		if slug != nil && *slug != "" {
			out[*slug] = id
		}
	}
	return out, rows.Err()
}

const bulkSetDevices = `-- name: BulkSetDevices :exec
UPDATE devices
SET is_on = $4,
    last_changed_at = $5
WHERE home_id = $1
  AND room_id = ANY($2)
  AND type = ANY($3)
`

// BulkSetDevices flips every device matching the room/type filter in one
// statement.
func (q *Queries) BulkSetDevices(ctx context.Context, homeID string, roomIDs, types []string, isOn bool, changedAt time.Time) error {
	_, err := q.db.Exec(ctx, bulkSetDevices, homeID, roomIDs, types, isOn, changedAt)
	return err
}
