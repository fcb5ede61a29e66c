package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"bs-app/home-core/internal/home"
	"bs-app/home-core/internal/store"
)

func boolp(v bool) *bool { return &v }

func strp(s string) *string { return &s }

func TestDevicePosition_success(t *testing.T) {
	pub := &recordingFeed{}
	var gotPos home.Point
	var gotStamp time.Time
	q := &fakeQueries{
		getDeviceRef: func(_ context.Context, id string) (store.DeviceRef, error) {
			if id != "dev-1" {
				t.Fatalf("unexpected device id %q", id)
			}
			return store.DeviceRef{ID: "dev-1", HomeID: "home-1", RoomID: "room-1"}, nil
		},
		updateDevicePosition: func(_ context.Context, id string, pos home.Point, changedAt time.Time) (home.DeviceRow, error) {
			gotPos = pos
			gotStamp = changedAt
			return home.DeviceRow{
				ID: id, HomeID: "home-1", RoomID: "room-1",
				Name: strp("Luz central"), Position: pos,
			}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, pub)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/device", "tok-internal",
		`{"deviceId":"dev-1","homeId":"home-1","position":{"x":0.4,"y":0.6}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotPos != (home.Point{X: 0.4, Y: 0.6}) {
		t.Fatalf("position not written verbatim: %+v", gotPos)
	}
	if !gotStamp.Equal(fixedNow) {
		t.Fatalf("expected last_changed_at %v, got %v", fixedNow, gotStamp)
	}
	if len(pub.devices) != 1 || pub.devices[0].ID != "dev-1" {
		t.Fatalf("expected one feed event for dev-1, got %+v", pub.devices)
	}

	body := decodeBody(t, rr)
	dev, _ := body["device"].(map[string]any)
	if dev["name"] != "Luz central" {
		t.Fatalf("unexpected device in response: %s", rr.Body.String())
	}
}

func TestDevicePosition_validation(t *testing.T) {
	h := newTestHandler(&fakeQueries{}, &fakeState{}, nil)

	cases := []string{
		`{"position":{"x":0.4,"y":0.6}}`,
		`{"deviceId":"dev-1"}`,
		`{"deviceId":"dev-1","position":{"x":0.4,"y":0.6}} trailing`,
		`{"deviceId":"dev-1","position":{"x":0.4,"y":0.6},"extra":1}`,
		`not json`,
	}
	for _, body := range cases {
		rr := doRequest(t, h, http.MethodPost, "/api/v1/home/device", "tok-internal", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rr.Code)
		}
		if code := errorCode(t, rr); code != "validation_failed" {
			t.Fatalf("body %q: expected validation_failed, got %q", body, code)
		}
	}
}

func TestDevicePosition_notFoundAndHomeMismatch(t *testing.T) {
	q := &fakeQueries{
		getDeviceRef: func(_ context.Context, id string) (store.DeviceRef, error) {
			if id == "dev-missing" {
				return store.DeviceRef{}, pgx.ErrNoRows
			}
			return store.DeviceRef{ID: id, HomeID: "home-1"}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/device", "tok-internal",
		`{"deviceId":"dev-missing","position":{"x":0.5,"y":0.5}}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "not_found" {
		t.Fatalf("expected not_found, got %q", code)
	}

	rr = doRequest(t, h, http.MethodPost, "/api/v1/home/device", "tok-internal",
		`{"deviceId":"dev-1","homeId":"home-other","position":{"x":0.5,"y":0.5}}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on home mismatch, got %d", rr.Code)
	}
}

func TestDeviceToggle_success(t *testing.T) {
	pub := &recordingFeed{}
	q := &fakeQueries{
		getDeviceRef: func(context.Context, string) (store.DeviceRef, error) {
			return store.DeviceRef{ID: "dev-1", HomeID: "home-1", IsOn: false}, nil
		},
		getHomeOwner: func(_ context.Context, id string) (store.HomeOwner, error) {
			return store.HomeOwner{ID: id, OwnerUserID: strp("user-1")}, nil
		},
		updateDeviceOn: func(_ context.Context, id string, isOn bool, changedAt time.Time) (home.DeviceRow, error) {
			if !isOn {
				t.Fatal("expected nextState true to be written")
			}
			return home.DeviceRow{
				ID: id, HomeID: "home-1", Type: strp("ac"),
				IsOn: boolp(isOn), LastChangedAt: &changedAt,
			}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, pub)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/toggle", "tok-internal",
		`{"deviceId":"dev-1","nextState":true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(pub.devices) != 1 || !pub.devices[0].IsOn {
		t.Fatalf("expected feed event with is_on=true, got %+v", pub.devices)
	}
	body := decodeBody(t, rr)
	dev, _ := body["device"].(map[string]any)
	if dev["is_on"] != true {
		t.Fatalf("unexpected device in response: %s", rr.Body.String())
	}
}

func TestDeviceToggle_ownershipCheck(t *testing.T) {
	q := &fakeQueries{
		getDeviceRef: func(context.Context, string) (store.DeviceRef, error) {
			return store.DeviceRef{ID: "dev-1", HomeID: "home-1"}, nil
		},
		getHomeOwner: func(context.Context, string) (store.HomeOwner, error) {
			return store.HomeOwner{ID: "home-1", OwnerUserID: strp("someone-else")}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/toggle", "tok-internal",
		`{"deviceId":"dev-1","nextState":true}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign owner, got %d", rr.Code)
	}
}

func TestDeviceToggle_ownerLookupFailureProceeds(t *testing.T) {
	q := &fakeQueries{
		getDeviceRef: func(context.Context, string) (store.DeviceRef, error) {
			return store.DeviceRef{ID: "dev-1", HomeID: "home-1"}, nil
		},
		getHomeOwner: func(context.Context, string) (store.HomeOwner, error) {
			return store.HomeOwner{}, errors.New("owner lookup timed out")
		},
		updateDeviceOn: func(_ context.Context, id string, isOn bool, changedAt time.Time) (home.DeviceRow, error) {
			return home.DeviceRow{ID: id, HomeID: "home-1", IsOn: boolp(isOn)}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/toggle", "tok-internal",
		`{"deviceId":"dev-1","nextState":false}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected the toggle to proceed past a failed owner lookup, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeviceToggle_requiresBooleanNextState(t *testing.T) {
	h := newTestHandler(&fakeQueries{}, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/toggle", "tok-internal",
		`{"deviceId":"dev-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without nextState, got %d", rr.Code)
	}
}

func TestRoomShape_emptyPolygonIsValid(t *testing.T) {
	var gotPolygon []home.Point
	var gotBBox *home.BBox
	q := &fakeQueries{
		getRoomRef: func(context.Context, string) (store.RoomRef, error) {
			return store.RoomRef{ID: "room-1", HomeID: "home-1"}, nil
		},
		updateRoomShape: func(_ context.Context, id string, polygon []home.Point, bbox *home.BBox) (home.RoomRow, error) {
			gotPolygon = polygon
			gotBBox = bbox
			return home.RoomRow{ID: id, HomeID: "home-1"}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/room", "tok-internal",
		`{"roomId":"room-1","polygon":[]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for empty polygon, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotPolygon == nil || len(gotPolygon) != 0 {
		t.Fatalf("expected empty polygon written verbatim, got %+v", gotPolygon)
	}
	if gotBBox != nil {
		t.Fatalf("expected nil bbox, got %+v", gotBBox)
	}
}

func TestRoomShape_writesVerbatim(t *testing.T) {
	var gotPolygon []home.Point
	var gotBBox *home.BBox
	q := &fakeQueries{
		getRoomRef: func(context.Context, string) (store.RoomRef, error) {
			return store.RoomRef{ID: "room-1", HomeID: "home-1"}, nil
		},
		updateRoomShape: func(_ context.Context, id string, polygon []home.Point, bbox *home.BBox) (home.RoomRow, error) {
			gotPolygon = polygon
			gotBBox = bbox
			return home.RoomRow{ID: id, HomeID: "home-1"}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	// The bbox is stored as sent, even when inconsistent with the polygon.
	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/room", "tok-internal",
		`{"roomId":"room-1","polygon":[{"x":0.1,"y":0.1},{"x":0.5,"y":0.1},{"x":0.5,"y":0.4}],"bbox":{"x":0,"y":0,"width":1,"height":1}}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(gotPolygon) != 3 {
		t.Fatalf("expected 3 points, got %+v", gotPolygon)
	}
	if gotBBox == nil || gotBBox.Width != 1 {
		t.Fatalf("expected bbox written verbatim, got %+v", gotBBox)
	}
}

func TestRoomShape_missingPolygonIs400(t *testing.T) {
	h := newTestHandler(&fakeQueries{}, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/room", "tok-internal",
		`{"roomId":"room-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 when polygon field is absent, got %d", rr.Code)
	}
}

func TestRoutineToggle(t *testing.T) {
	var gotStatus home.RoutineStatus
	q := &fakeQueries{
		getRoutine: func(_ context.Context, id string) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1", Status: strp("active")}, nil
		},
		updateRoutineStatus: func(_ context.Context, id string, status home.RoutineStatus) (home.RoutineRow, error) {
			gotStatus = status
			s := string(status)
			return home.RoutineRow{ID: id, HomeID: "home-1", Status: &s}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"toggle","routineId":"rt-1","status":"paused"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotStatus != home.RoutinePaused {
		t.Fatalf("expected paused written, got %q", gotStatus)
	}
	body := decodeBody(t, rr)
	rt, _ := body["routine"].(map[string]any)
	if rt["status"] != "paused" {
		t.Fatalf("unexpected routine in response: %s", rr.Body.String())
	}
}

func TestRoutineToggle_omittedStatusKeepsCurrent(t *testing.T) {
	var gotStatus home.RoutineStatus
	q := &fakeQueries{
		getRoutine: func(_ context.Context, id string) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1", Status: strp("paused")}, nil
		},
		updateRoutineStatus: func(_ context.Context, id string, status home.RoutineStatus) (home.RoutineRow, error) {
			gotStatus = status
			s := string(status)
			return home.RoutineRow{ID: id, Status: &s}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"toggle","routineId":"rt-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotStatus != home.RoutinePaused {
		t.Fatalf("expected current status rewritten, got %q", gotStatus)
	}
}

func TestRoutineToggle_invalidStatus(t *testing.T) {
	q := &fakeQueries{
		getRoutine: func(_ context.Context, id string) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1"}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"toggle","routineId":"rt-1","status":"sleeping"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", rr.Code)
	}
}

func TestRoutineRun(t *testing.T) {
	pub := &recordingFeed{}
	actions := `[
		{"rooms":["living","kitchen"],"device_types":["light"],"set_state":true},
		{"rooms":["master"],"device_types":["ac"]}
	]`

	type bulkCall struct {
		roomIDs []string
		types   []string
		isOn    bool
	}
	var bulkCalls []bulkCall
	var stampedLast, stampedNext time.Time

	q := &fakeQueries{
		getRoutine: func(_ context.Context, id string) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1", Actions: actions}, nil
		},
		resolveRoomSlugs: func(_ context.Context, homeID string, slugs []string) (map[string]string, error) {
			if homeID != "home-1" {
				t.Fatalf("unexpected home id %q", homeID)
			}
			if len(slugs) != 3 {
				t.Fatalf("expected deduped slugs living/kitchen/master, got %v", slugs)
			}
			// master does not resolve; its action becomes a no-op.
			return map[string]string{"living": "room-1", "kitchen": "room-2"}, nil
		},
		bulkSetDevices: func(_ context.Context, homeID string, roomIDs, types []string, isOn bool, _ time.Time) error {
			bulkCalls = append(bulkCalls, bulkCall{roomIDs: roomIDs, types: types, isOn: isOn})
			return nil
		},
		listDevices: func(context.Context, string) ([]home.DeviceRow, error) {
			return []home.DeviceRow{
				{ID: "dev-1", HomeID: "home-1", RoomID: "room-1", Type: strp("light"), IsOn: boolp(true)},
				{ID: "dev-2", HomeID: "home-1", RoomID: "room-2", Type: strp("light"), IsOn: boolp(true)},
			}, nil
		},
		stampRoutineRun: func(_ context.Context, id string, lastRunAt, nextRunAt time.Time) (home.RoutineRow, error) {
			stampedLast = lastRunAt
			stampedNext = nextRunAt
			return home.RoutineRow{ID: id, HomeID: "home-1", LastRunAt: &lastRunAt, NextRunAt: &nextRunAt}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, pub)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"run","routineId":"rt-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	if len(bulkCalls) != 1 {
		t.Fatalf("expected one bulk write (second action unresolvable), got %d", len(bulkCalls))
	}
	if len(bulkCalls[0].roomIDs) != 2 || bulkCalls[0].types[0] != "light" || !bulkCalls[0].isOn {
		t.Fatalf("unexpected bulk write: %+v", bulkCalls[0])
	}
	if !stampedLast.Equal(fixedNow) {
		t.Fatalf("expected last_run_at %v, got %v", fixedNow, stampedLast)
	}
	if !stampedNext.Equal(fixedNow.Add(6 * time.Hour)) {
		t.Fatalf("expected next_run_at six hours out, got %v", stampedNext)
	}
	if len(pub.devices) != 2 {
		t.Fatalf("expected a feed event per device, got %d", len(pub.devices))
	}

	body := decodeBody(t, rr)
	devices, _ := body["devices"].([]any)
	routines, _ := body["routines"].([]any)
	if len(devices) != 2 || len(routines) != 1 {
		t.Fatalf("unexpected response shape: %s", rr.Body.String())
	}
}

func TestRoutineRun_noActions(t *testing.T) {
	resolveCalled := false
	bulkCalled := false
	q := &fakeQueries{
		getRoutine: func(_ context.Context, id string) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1"}, nil
		},
		resolveRoomSlugs: func(context.Context, string, []string) (map[string]string, error) {
			resolveCalled = true
			return nil, nil
		},
		bulkSetDevices: func(context.Context, string, []string, []string, bool, time.Time) error {
			bulkCalled = true
			return nil
		},
		listDevices: func(context.Context, string) ([]home.DeviceRow, error) {
			return nil, nil
		},
		stampRoutineRun: func(_ context.Context, id string, lastRunAt, nextRunAt time.Time) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1"}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"run","routineId":"rt-1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if resolveCalled || bulkCalled {
		t.Fatal("expected no resolution or bulk writes for an action-less routine")
	}
}

func TestRoutine_unknownAction(t *testing.T) {
	q := &fakeQueries{
		getRoutine: func(_ context.Context, id string) (home.RoutineRow, error) {
			return home.RoutineRow{ID: id, HomeID: "home-1"}, nil
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"reboot","routineId":"rt-1"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown action, got %d", rr.Code)
	}
}

func TestRoutine_notFound(t *testing.T) {
	q := &fakeQueries{
		getRoutine: func(context.Context, string) (home.RoutineRow, error) {
			return home.RoutineRow{}, pgx.ErrNoRows
		},
	}
	h := newTestHandler(q, &fakeState{}, nil)

	rr := doRequest(t, h, http.MethodPost, "/api/v1/home/routines", "tok-internal",
		`{"action":"run","routineId":"rt-missing"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestPlanSVG(t *testing.T) {
	state := &fakeState{
		fetch: func(context.Context, string) (*home.State, error) {
			return home.DemoState(), nil
		},
	}
	h := newTestHandler(&fakeQueries{}, state, nil)

	rr := doRequest(t, h, http.MethodGet, "/api/v1/home/plan.svg?width=600&height=450", "tok-plain", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/svg+xml" {
		t.Fatalf("expected image/svg+xml, got %q", ct)
	}
	if !strings.Contains(rr.Body.String(), "<svg") {
		t.Fatal("expected SVG markup in response")
	}
}

func TestPlanSVG_fetchFailureFallsBackToDemo(t *testing.T) {
	state := &fakeState{
		fetch: func(context.Context, string) (*home.State, error) {
			return nil, errors.New("db down")
		},
	}
	h := newTestHandler(&fakeQueries{}, state, nil)

	rr := doRequest(t, h, http.MethodGet, "/api/v1/home/plan.svg", "tok-plain", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 via demo fallback, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "<svg") {
		t.Fatal("expected SVG markup in response")
	}
}
