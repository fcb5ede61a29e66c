package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"bs-app/home-core/internal/home"
)

type fakeStateQuerier struct {
	getHomeForOwner func(ctx context.Context, ownerUserID string) (home.HomeRow, error)
	listRooms       func(ctx context.Context, homeID string) ([]home.RoomRow, error)
	listDevices     func(ctx context.Context, homeID string) ([]home.DeviceRow, error)
	listRoutines    func(ctx context.Context, homeID string) ([]home.RoutineRow, error)
}

func (f *fakeStateQuerier) GetHomeForOwner(ctx context.Context, ownerUserID string) (home.HomeRow, error) {
	return f.getHomeForOwner(ctx, ownerUserID)
}

func (f *fakeStateQuerier) ListRooms(ctx context.Context, homeID string) ([]home.RoomRow, error) {
	return f.listRooms(ctx, homeID)
}

func (f *fakeStateQuerier) ListDevices(ctx context.Context, homeID string) ([]home.DeviceRow, error) {
	return f.listDevices(ctx, homeID)
}

func (f *fakeStateQuerier) ListRoutines(ctx context.Context, homeID string) ([]home.RoutineRow, error) {
	return f.listRoutines(ctx, homeID)
}

func strp(s string) *string { return &s }

func TestFetchHomeState_noHomeRow(t *testing.T) {
	q := &fakeStateQuerier{
		getHomeForOwner: func(context.Context, string) (home.HomeRow, error) {
			return home.HomeRow{}, pgx.ErrNoRows
		},
	}
	svc := NewStateService(zerolog.Nop(), q)

	state, err := svc.FetchHomeState(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state for unprovisioned owner, got %+v", state)
	}
}

func TestFetchHomeState_lookupErrorDegradesToNil(t *testing.T) {
	q := &fakeStateQuerier{
		getHomeForOwner: func(context.Context, string) (home.HomeRow, error) {
			return home.HomeRow{}, errors.New("connection refused")
		},
	}
	svc := NewStateService(zerolog.Nop(), q)

	state, err := svc.FetchHomeState(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if state != nil {
		t.Fatalf("expected nil state on lookup failure, got %+v", state)
	}
}

func TestFetchHomeState_emptyIDReadsAsMissing(t *testing.T) {
	q := &fakeStateQuerier{
		getHomeForOwner: func(context.Context, string) (home.HomeRow, error) {
			return home.HomeRow{}, nil
		},
	}
	svc := NewStateService(zerolog.Nop(), q)

	state, err := svc.FetchHomeState(context.Background(), "user-1")
	if err != nil || state != nil {
		t.Fatalf("expected nil, nil for empty home id, got %+v, %v", state, err)
	}
}

func TestFetchHomeState_composesCollections(t *testing.T) {
	q := &fakeStateQuerier{
		getHomeForOwner: func(_ context.Context, owner string) (home.HomeRow, error) {
			if owner != "user-1" {
				t.Fatalf("unexpected owner %q", owner)
			}
			return home.HomeRow{ID: "home-1", Name: strp("Casa"), OwnerUserID: strp("user-1")}, nil
		},
		listRooms: func(_ context.Context, homeID string) ([]home.RoomRow, error) {
			if homeID != "home-1" {
				t.Fatalf("unexpected home id %q", homeID)
			}
			return []home.RoomRow{{ID: "room-1", Name: strp("Living")}}, nil
		},
		listDevices: func(context.Context, string) ([]home.DeviceRow, error) {
			return []home.DeviceRow{{ID: "dev-1", RoomID: "room-1"}}, nil
		},
		listRoutines: func(context.Context, string) ([]home.RoutineRow, error) {
			return []home.RoutineRow{{ID: "rt-1"}}, nil
		},
	}
	svc := NewStateService(zerolog.Nop(), q)

	state, err := svc.FetchHomeState(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if state == nil {
		t.Fatal("expected a composed state")
	}
	if state.Home.ID != "home-1" || state.Home.Name != "Casa" {
		t.Fatalf("unexpected home: %+v", state.Home)
	}
	if len(state.Rooms) != 1 || state.Rooms[0].Name != "Living" {
		t.Fatalf("unexpected rooms: %+v", state.Rooms)
	}
	if len(state.Devices) != 1 || state.Devices[0].ID != "dev-1" {
		t.Fatalf("unexpected devices: %+v", state.Devices)
	}
	if len(state.Routines) != 1 || state.Routines[0].ID != "rt-1" {
		t.Fatalf("unexpected routines: %+v", state.Routines)
	}
}

func TestFetchHomeState_partialFailureKeepsRest(t *testing.T) {
	q := &fakeStateQuerier{
		getHomeForOwner: func(context.Context, string) (home.HomeRow, error) {
			return home.HomeRow{ID: "home-1"}, nil
		},
		listRooms: func(context.Context, string) ([]home.RoomRow, error) {
			return nil, errors.New("rooms query timed out")
		},
		listDevices: func(context.Context, string) ([]home.DeviceRow, error) {
			return []home.DeviceRow{{ID: "dev-1"}}, nil
		},
		listRoutines: func(context.Context, string) ([]home.RoutineRow, error) {
			return nil, errors.New("routines query timed out")
		},
	}
	svc := NewStateService(zerolog.Nop(), q)

	state, err := svc.FetchHomeState(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if state == nil {
		t.Fatal("expected a state despite partial failures")
	}
	if state.Rooms == nil || len(state.Rooms) != 0 {
		t.Fatalf("expected empty rooms slice, got %+v", state.Rooms)
	}
	if len(state.Devices) != 1 {
		t.Fatalf("expected surviving devices, got %+v", state.Devices)
	}
	if state.Routines == nil || len(state.Routines) != 0 {
		t.Fatalf("expected empty routines slice, got %+v", state.Routines)
	}
}
