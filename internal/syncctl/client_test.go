package syncctl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bs-app/home-core/internal/geometry"
	"bs-app/home-core/internal/home"
)

func TestClient_FetchState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/home/state", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(home.State{Home: home.Home{ID: "home-1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok-1")
	state, err := c.FetchState(context.Background())
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, "home-1", state.Home.ID)
}

func TestClient_FetchState_noContentMeansNoHome(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	state, err := c.FetchState(context.Background())
	require.NoError(t, err)
	assert.Nil(t, state)
}

func TestClient_ToggleDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/home/toggle", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "dev-1", body["deviceId"])
		assert.Equal(t, "home-1", body["homeId"])
		assert.Equal(t, true, body["nextState"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"device": home.Device{ID: "dev-1", IsOn: true},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	device, err := c.ToggleDevice(context.Background(), "home-1", "dev-1", true)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", device.ID)
	assert.True(t, device.IsOn)
}

func TestClient_errorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"forbidden","message":"internal users only"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	_, err := c.ToggleDevice(context.Background(), "home-1", "dev-1", true)
	require.Error(t, err)

	apiErr, ok := err.(*APIError)
	require.True(t, ok, "expected *APIError, got %T", err)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "forbidden", apiErr.Code)
	assert.Contains(t, apiErr.Error(), "internal users only")
}

func TestClient_RunRoutine(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "run", body["action"])
		assert.Equal(t, "rt-1", body["routineId"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"devices":  []home.Device{{ID: "dev-1"}},
			"routines": []home.Routine{{ID: "rt-1"}},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	devices, routines, err := c.RunRoutine(context.Background(), "home-1", "rt-1")
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Len(t, routines, 1)
}

func TestClient_UpdateRoomShape_nilPolygonSentAsEmptyList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		polygon, ok := body["polygon"].([]any)
		require.True(t, ok, "polygon must be a JSON array, got %T", body["polygon"])
		assert.Empty(t, polygon)

		_ = json.NewEncoder(w).Encode(map[string]any{"room": home.Room{ID: "room-1"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	room, err := c.UpdateRoomShape(context.Background(), "home-1", "room-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "room-1", room.ID)
}

func TestClient_UpdateDevicePosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			DeviceID string         `json:"deviceId"`
			Position geometry.Point `json:"position"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, geometry.Point{X: 0.4, Y: 0.6}, body.Position)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"device": home.Device{ID: body.DeviceID, Position: body.Position},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1")
	device, err := c.UpdateDevicePosition(context.Background(), "home-1", "dev-1", geometry.Point{X: 0.4, Y: 0.6})
	require.NoError(t, err)
	assert.Equal(t, geometry.Point{X: 0.4, Y: 0.6}, device.Position)
}
