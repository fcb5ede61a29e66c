package syncctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bs-app/home-core/internal/geometry"
	"bs-app/home-core/internal/home"
)

// API is the remote surface the controller mutates against. Implementations
// must be safe for concurrent use.
type API interface {
	FetchState(ctx context.Context) (*home.State, error)
	UpdateDevicePosition(ctx context.Context, homeID, deviceID string, position geometry.Point) (home.Device, error)
	ToggleDevice(ctx context.Context, homeID, deviceID string, nextState bool) (home.Device, error)
	UpdateRoomShape(ctx context.Context, homeID, roomID string, polygon []geometry.Point, bbox *geometry.BBox) (home.Room, error)
	ToggleRoutine(ctx context.Context, homeID, routineID string, status home.RoutineStatus) (home.Routine, error)
	RunRoutine(ctx context.Context, homeID, routineID string) ([]home.Device, []home.Routine, error)
}

// Client talks to a homed instance over JSON/HTTP with a bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient builds a client. The 10s timeout bounds every mutation call, so
// a hung request cannot pin a device in the busy set forever.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return errNoContent
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var errNoContent = fmt.Errorf("no content")

// APIError carries the server's error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

func decodeAPIError(resp *http.Response) error {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&envelope)
	return &APIError{
		Status:  resp.StatusCode,
		Code:    envelope.Error.Code,
		Message: envelope.Error.Message,
	}
}

// FetchState loads the caller's snapshot; nil, nil means the account has no
// home provisioned yet.
func (c *Client) FetchState(ctx context.Context) (*home.State, error) {
	var state home.State
	err := c.do(ctx, http.MethodGet, "/api/v1/home/state", nil, &state)
	if err == errNoContent {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (c *Client) UpdateDevicePosition(ctx context.Context, homeID, deviceID string, position geometry.Point) (home.Device, error) {
	var out struct {
		Device home.Device `json:"device"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/home/device", map[string]any{
		"deviceId": deviceID,
		"homeId":   homeID,
		"position": position,
	}, &out)
	return out.Device, err
}

func (c *Client) ToggleDevice(ctx context.Context, homeID, deviceID string, nextState bool) (home.Device, error) {
	var out struct {
		Device home.Device `json:"device"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/home/toggle", map[string]any{
		"deviceId":  deviceID,
		"homeId":    homeID,
		"nextState": nextState,
	}, &out)
	return out.Device, err
}

func (c *Client) UpdateRoomShape(ctx context.Context, homeID, roomID string, polygon []geometry.Point, bbox *geometry.BBox) (home.Room, error) {
	if polygon == nil {
		polygon = []geometry.Point{}
	}
	var out struct {
		Room home.Room `json:"room"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/home/room", map[string]any{
		"roomId":  roomID,
		"homeId":  homeID,
		"polygon": polygon,
		"bbox":    bbox,
	}, &out)
	return out.Room, err
}

func (c *Client) ToggleRoutine(ctx context.Context, homeID, routineID string, status home.RoutineStatus) (home.Routine, error) {
	var out struct {
		Routine home.Routine `json:"routine"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/home/routines", map[string]any{
		"action":    "toggle",
		"routineId": routineID,
		"homeId":    homeID,
		"status":    string(status),
	}, &out)
	return out.Routine, err
}

func (c *Client) RunRoutine(ctx context.Context, homeID, routineID string) ([]home.Device, []home.Routine, error) {
	var out struct {
		Devices  []home.Device  `json:"devices"`
		Routines []home.Routine `json:"routines"`
	}
	err := c.do(ctx, http.MethodPost, "/api/v1/home/routines", map[string]any{
		"action":    "run",
		"routineId": routineID,
		"homeId":    homeID,
	}, &out)
	return out.Devices, out.Routines, err
}
