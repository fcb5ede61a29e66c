// Package syncctl is the client half of the home module: it loads the
// snapshot (falling back to the demo home), applies user mutations
// optimistically, reconciles against the server, polls on a coarse interval
// and merges pushed device changes from the feed.
package syncctl

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bs-app/home-core/internal/feed"
	"bs-app/home-core/internal/geometry"
	"bs-app/home-core/internal/home"
)

// Phase is the controller's lifecycle state.
type Phase string

const (
	PhaseUninitialized Phase = "uninitialized"
	PhaseLoading       Phase = "loading"
	PhaseReady         Phase = "ready"
)

// Advisory texts shown when the demo snapshot substitutes for real data.
// The no-data and fetch-error cases differ only in this text, not in
// control flow.
const (
	AdvisoryNoData     = "No encontramos datos en la base, mostramos el demo precargado."
	AdvisoryFetchError = "No pudimos leer el servidor, usando demo offline."
)

// DefaultPollInterval is the coarse refresh net; the feed is the primary
// update path.
const DefaultPollInterval = 4500 * time.Millisecond

// Config is injected at construction; nothing is read from the environment
// at call sites.
type Config struct {
	// PollInterval overrides DefaultPollInterval when positive.
	PollInterval time.Duration
	// BypassInternal short-circuits remote mutations: optimistic local
	// state is applied and no request leaves the process.
	BypassInternal bool
}

func (c Config) pollInterval() time.Duration {
	if c.PollInterval > 0 {
		return c.PollInterval
	}
	return DefaultPollInterval
}

// Controller owns the local snapshot. All state access is serialized behind
// one mutex; the poll loop, the feed handler and user mutations each take it
// for the duration of a single update, so updates are atomic with respect to
// each other but ordering between a racing poll response and a push event is
// last-writer-wins by arrival order.
type Controller struct {
	log  zerolog.Logger
	api  API
	feed feed.Subscriber
	cfg  Config

	mu          sync.Mutex
	phase       Phase
	state       *home.State
	advisory    string
	editMode    bool
	toggling    map[string]uint64 // device id -> latest in-flight toggle seq
	toggleSeq   uint64
	releaseFeed func()
	feedHomeID  string
}

// New builds a controller. sub may be nil when no feed is available; the
// controller then relies on polling alone.
func New(log zerolog.Logger, api API, sub feed.Subscriber, cfg Config) *Controller {
	return &Controller{
		log:      log,
		api:      api,
		feed:     sub,
		cfg:      cfg,
		phase:    PhaseUninitialized,
		toggling: map[string]uint64{},
	}
}

// Load fetches the snapshot and transitions to ready. A nil snapshot or a
// fetch failure substitutes the demo home with the matching advisory; the
// module always ends up with renderable state.
func (c *Controller) Load(ctx context.Context) {
	c.mu.Lock()
	if c.phase == PhaseUninitialized {
		c.phase = PhaseLoading
	}
	c.mu.Unlock()

	state, err := c.api.FetchState(ctx)

	c.mu.Lock()
	switch {
	case err != nil:
		c.log.Warn().Err(err).Msg("home fetch error")
		c.state = home.DemoState()
		c.advisory = AdvisoryFetchError
	case state == nil:
		c.state = home.DemoState()
		c.advisory = AdvisoryNoData
	default:
		c.state = state
		c.advisory = ""
	}
	c.phase = PhaseReady
	homeID := c.state.Home.ID
	c.mu.Unlock()

	c.ensureSubscription(homeID)
}

// Run drives the session: an initial load, then the fixed-interval poll
// until the context ends. Polling is a no-op while the demo home is active.
func (c *Controller) Run(ctx context.Context) {
	c.Load(ctx)

	ticker := time.NewTicker(c.cfg.pollInterval())
	defer ticker.Stop()
	defer c.releaseSubscription()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if home.IsDemoHome(c.HomeID()) {
				continue
			}
			c.Load(ctx)
		}
	}
}

// ensureSubscription keeps exactly one feed subscription alive, keyed to the
// current home id. Demo homes get none. The previous subscription is
// released deterministically when the home changes so no stale listener
// stays pointed at the old topic.
func (c *Controller) ensureSubscription(homeID string) {
	c.mu.Lock()
	if c.feedHomeID == homeID {
		c.mu.Unlock()
		return
	}
	release := c.releaseFeed
	c.releaseFeed = nil
	c.feedHomeID = ""
	c.mu.Unlock()

	if release != nil {
		release()
	}
	if c.feed == nil || home.IsDemoHome(homeID) {
		return
	}

	release, err := c.feed.SubscribeDevices(homeID, c.MergeDevice)
	if err != nil {
		c.log.Warn().Err(err).Str("home_id", homeID).Msg("feed subscribe failed")
		return
	}

	c.mu.Lock()
	c.releaseFeed = release
	c.feedHomeID = homeID
	c.mu.Unlock()
}

func (c *Controller) releaseSubscription() {
	c.mu.Lock()
	release := c.releaseFeed
	c.releaseFeed = nil
	c.feedHomeID = ""
	c.mu.Unlock()
	if release != nil {
		release()
	}
}

// MergeDevice folds one pushed device row into local state: replace the row
// with the same id, append when unseen. Independent of the poll cycle; a
// slow poll response arriving later can overwrite it (accepted
// last-writer-wins).
func (c *Controller) MergeDevice(device home.Device) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil || device.ID == "" {
		return
	}
	for i, d := range c.state.Devices {
		if d.ID == device.ID {
			c.state.Devices[i] = device
			return
		}
	}
	c.state.Devices = append(c.state.Devices, device)
}

// ToggleDevice optimistically flips the device, then settles against the
// server: rollback on failure, reconcile is_on/last_changed_at on success
// (the server owns the timestamp). A newer toggle for the same device
// supersedes an older in-flight one; the stale response is dropped.
func (c *Controller) ToggleDevice(ctx context.Context, deviceID string, nextState bool) {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return
	}
	prev, found := c.deviceStateLocked(deviceID)
	if !found {
		c.mu.Unlock()
		return
	}
	c.toggleSeq++
	seq := c.toggleSeq
	c.toggling[deviceID] = seq
	c.setDeviceOnLocked(deviceID, nextState, nil)
	homeID := c.state.Home.ID
	c.mu.Unlock()

	if c.cfg.BypassInternal {
		c.settleToggle(deviceID, seq)
		return
	}

	device, err := c.api.ToggleDevice(ctx, homeID, deviceID, nextState)

	c.mu.Lock()
	if c.toggling[deviceID] != seq {
		// Superseded by a newer toggle; neither reconcile nor roll back.
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.log.Warn().Err(err).Str("device_id", deviceID).Msg("toggle failed, rolling back")
		c.setDeviceOnLocked(deviceID, prev, nil)
	} else if device.ID != "" {
		c.setDeviceOnLocked(device.ID, device.IsOn, device.LastChangedAt)
	}
	delete(c.toggling, deviceID)
	c.mu.Unlock()
}

func (c *Controller) settleToggle(deviceID string, seq uint64) {
	c.mu.Lock()
	if c.toggling[deviceID] == seq {
		delete(c.toggling, deviceID)
	}
	c.mu.Unlock()
}

func (c *Controller) deviceStateLocked(deviceID string) (bool, bool) {
	for _, d := range c.state.Devices {
		if d.ID == deviceID {
			return d.IsOn, true
		}
	}
	return false, false
}

func (c *Controller) setDeviceOnLocked(deviceID string, isOn bool, changedAt *time.Time) {
	for i, d := range c.state.Devices {
		if d.ID == deviceID {
			c.state.Devices[i].IsOn = isOn
			if changedAt != nil {
				c.state.Devices[i].LastChangedAt = changedAt
			}
			return
		}
	}
}

// UpdateDevicePosition moves a marker, clamped away from the plan edge. The
// optimistic value is kept regardless of the remote outcome: geometry edits
// are low-stakes and frequently corrected, so no rollback by policy.
func (c *Controller) UpdateDevicePosition(ctx context.Context, deviceID string, position geometry.Point) {
	position = home.ClampPosition(position)

	c.mu.Lock()
	if c.state == nil || !c.editMode {
		c.mu.Unlock()
		return
	}
	for i, d := range c.state.Devices {
		if d.ID == deviceID {
			c.state.Devices[i].Position = position
			break
		}
	}
	homeID := c.state.Home.ID
	c.mu.Unlock()

	if c.cfg.BypassInternal {
		return
	}
	if _, err := c.api.UpdateDevicePosition(ctx, homeID, deviceID, position); err != nil {
		c.log.Warn().Err(err).Str("device_id", deviceID).Msg("position update failed, keeping local value")
	}
}

// UpdateRoomPolygon rewrites a room's shape, deriving the bbox locally.
// Same no-rollback policy as positions.
func (c *Controller) UpdateRoomPolygon(ctx context.Context, roomID string, polygon []geometry.Point) {
	bbox := geometry.ComputeBBox(polygon)

	c.mu.Lock()
	if c.state == nil || !c.editMode {
		c.mu.Unlock()
		return
	}
	for i, r := range c.state.Rooms {
		if r.ID == roomID {
			c.state.Rooms[i].Polygon = polygon
			c.state.Rooms[i].BBox = bbox
			break
		}
	}
	homeID := c.state.Home.ID
	c.mu.Unlock()

	if c.cfg.BypassInternal {
		return
	}
	if _, err := c.api.UpdateRoomShape(ctx, homeID, roomID, polygon, bbox); err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("room shape update failed, keeping local value")
	}
}

// ToggleRoutine optimistically flips the routine's status; fire-and-forget
// remotely.
func (c *Controller) ToggleRoutine(ctx context.Context, routineID string, status home.RoutineStatus) {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return
	}
	for i, r := range c.state.Routines {
		if r.ID == routineID {
			c.state.Routines[i].Status = status
			break
		}
	}
	homeID := c.state.Home.ID
	c.mu.Unlock()

	if c.cfg.BypassInternal {
		return
	}
	if _, err := c.api.ToggleRoutine(ctx, homeID, routineID, status); err != nil {
		c.log.Warn().Err(err).Str("routine_id", routineID).Msg("routine toggle failed")
	}
}

// RunRoutine is not optimistic: it waits for the server, replaces the
// device list wholesale and merges the returned routines by id, appending
// unseen ones.
func (c *Controller) RunRoutine(ctx context.Context, routineID string) {
	c.mu.Lock()
	if c.state == nil {
		c.mu.Unlock()
		return
	}
	homeID := c.state.Home.ID
	c.mu.Unlock()

	if c.cfg.BypassInternal {
		return
	}

	devices, routines, err := c.api.RunRoutine(ctx, homeID, routineID)
	if err != nil {
		c.log.Warn().Err(err).Str("routine_id", routineID).Msg("routine run failed")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return
	}
	if devices != nil {
		c.state.Devices = devices
	}
	for _, updated := range routines {
		merged := false
		for i, r := range c.state.Routines {
			if r.ID == updated.ID {
				c.state.Routines[i] = updated
				merged = true
				break
			}
		}
		if !merged {
			c.state.Routines = append(c.state.Routines, updated)
		}
	}
}

// SetEditMode gates whether geometry mutations are reachable at all. It is
// a client-side gate only; server authorization is enforced independently.
func (c *Controller) SetEditMode(on bool) {
	c.mu.Lock()
	c.editMode = on
	c.mu.Unlock()
}

func (c *Controller) EditMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editMode
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Advisory returns the demo-substitution message, empty when real data is
// loaded.
func (c *Controller) Advisory() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.advisory
}

// HomeID returns the active home id, empty before the first load.
func (c *Controller) HomeID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return ""
	}
	return c.state.Home.ID
}

// IsToggling reports whether the device has an unsettled toggle in flight;
// the UI disables it meanwhile.
func (c *Controller) IsToggling(deviceID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.toggling[deviceID]
	return busy
}

// Snapshot returns a deep-enough copy of the current state for rendering;
// slices are copied so the caller cannot race the controller.
func (c *Controller) Snapshot() *home.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return nil
	}
	cp := &home.State{
		Home:     c.state.Home,
		Rooms:    append([]home.Room(nil), c.state.Rooms...),
		Devices:  append([]home.Device(nil), c.state.Devices...),
		Routines: append([]home.Routine(nil), c.state.Routines...),
	}
	return cp
}

// OverallStatus aggregates the per-room status over the whole home.
func (c *Controller) OverallStatus() home.RoomStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	var overall home.RoomStatus
	if c.state == nil {
		return overall
	}
	for _, room := range c.state.Rooms {
		st := home.StatusForRoom(room.ID, c.state.Devices)
		overall.LightsOn = overall.LightsOn || st.LightsOn
		overall.ACOn = overall.ACOn || st.ACOn
	}
	return overall
}

// Consumption returns the derived power estimate for the current snapshot.
func (c *Controller) Consumption() home.Consumption {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return home.Consumption{}
	}
	return home.EstimateConsumption(c.state.Devices)
}
