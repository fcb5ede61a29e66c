package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"bs-app/home-core/internal/home"
)

// StateQuerier is the slice of the query layer the compose service reads.
type StateQuerier interface {
	GetHomeForOwner(ctx context.Context, ownerUserID string) (home.HomeRow, error)
	ListRooms(ctx context.Context, homeID string) ([]home.RoomRow, error)
	ListDevices(ctx context.Context, homeID string) ([]home.DeviceRow, error)
	ListRoutines(ctx context.Context, homeID string) ([]home.RoutineRow, error)
}

// StateService loads the full snapshot for an owner.
type StateService struct {
	log zerolog.Logger
	q   StateQuerier
}

func NewStateService(log zerolog.Logger, q StateQuerier) *StateService {
	return &StateService{log: log, q: q}
}

// FetchHomeState composes {home, rooms, devices, routines} for the owner's
// single home (earliest-created when several exist). A missing home is a
// normal outcome for an unprovisioned account and returns nil, nil. A failed
// collection fetch degrades to an empty collection; partial data beats total
// failure.
func (s *StateService) FetchHomeState(ctx context.Context, ownerUserID string) (*home.State, error) {
	homeRow, err := s.q.GetHomeForOwner(ctx, ownerUserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		s.log.Warn().Err(err).Str("owner", ownerUserID).Msg("home lookup failed")
		return nil, nil
	}

	h := home.MapHome(homeRow)
	if h.ID == "" {
		return nil, nil
	}

	state := &home.State{
		Home:     h,
		Rooms:    []home.Room{},
		Devices:  []home.Device{},
		Routines: []home.Routine{},
	}

	if rows, err := s.q.ListRooms(ctx, h.ID); err != nil {
		s.log.Warn().Err(err).Str("home_id", h.ID).Msg("room fetch failed")
	} else {
		for _, r := range rows {
			state.Rooms = append(state.Rooms, home.MapRoom(r))
		}
	}

	if rows, err := s.q.ListDevices(ctx, h.ID); err != nil {
		s.log.Warn().Err(err).Str("home_id", h.ID).Msg("device fetch failed")
	} else {
		for _, d := range rows {
			state.Devices = append(state.Devices, home.MapDevice(d))
		}
	}

	if rows, err := s.q.ListRoutines(ctx, h.ID); err != nil {
		s.log.Warn().Err(err).Str("home_id", h.ID).Msg("routine fetch failed")
	} else {
		for _, r := range rows {
			state.Routines = append(state.Routines, home.MapRoutine(r))
		}
	}

	return state, nil
}
