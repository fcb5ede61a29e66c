package home

import "strings"

// FallbackPlanURL is the bundled plan image used when a home row carries no
// asset reference.
const FallbackPlanURL = "/planos/home-plan.jpg"

// demoPrefix marks the hardcoded fallback home. Polling and the change feed
// are disabled for demo homes.
const demoPrefix = "demo"

// IsDemoHome reports whether an id belongs to the fallback snapshot.
func IsDemoHome(id string) bool {
	return strings.HasPrefix(id, demoPrefix)
}

func f(v float64) *float64 { return &v }
func b(v bool) *bool       { return &v }

// DemoState returns a fresh copy of the fallback snapshot. Every call
// allocates anew so callers can mutate their copy freely.
func DemoState() *State {
	return &State{
		Home: Home{
			ID:           "demo-home",
			Name:         "Casa demo",
			OwnerUserID:  "demo-user",
			PlanAssetURL: FallbackPlanURL,
		},
		Rooms: []Room{
			{
				ID: "room-living", HomeID: "demo-home", Name: "Living / Comedor", Slug: "living",
				Polygon:      points(0.05, 0.05, 0.55, 0.05, 0.55, 0.38, 0.05, 0.38),
				BBox:         bbox(0.05, 0.05, 0.5, 0.33),
				SortOrder:    1,
				Telemetry:    &Telemetry{TemperatureC: f(22.5), Humidity: f(48)},
				PlanAssetURL: "/planos/living.png",
			},
			{
				ID: "room-kitchen", HomeID: "demo-home", Name: "Cocina", Slug: "kitchen",
				Polygon:      points(0.58, 0.05, 0.93, 0.05, 0.93, 0.32, 0.58, 0.32),
				BBox:         bbox(0.58, 0.05, 0.35, 0.27),
				SortOrder:    2,
				Telemetry:    &Telemetry{TemperatureC: f(24), Humidity: f(52)},
				PlanAssetURL: "/planos/cocina.png",
			},
			{
				ID: "room-master", HomeID: "demo-home", Name: "Dormitorio principal", Slug: "master",
				Polygon:      points(0.05, 0.42, 0.42, 0.42, 0.42, 0.9, 0.05, 0.9),
				BBox:         bbox(0.05, 0.42, 0.37, 0.48),
				SortOrder:    3,
				Telemetry:    &Telemetry{TemperatureC: f(21.8), Humidity: f(50)},
				PlanAssetURL: "/planos/habitacion-leon.jpg",
			},
			{
				ID: "room-bedroom2", HomeID: "demo-home", Name: "Dormitorio 2 / Oficina", Slug: "bedroom2",
				Polygon:      points(0.45, 0.45, 0.93, 0.45, 0.93, 0.9, 0.45, 0.9),
				BBox:         bbox(0.45, 0.45, 0.48, 0.45),
				SortOrder:    4,
				Telemetry:    &Telemetry{TemperatureC: f(23.1), Humidity: f(46)},
				PlanAssetURL: "/planos/habitacion-eloy.jpg",
			},
		},
		Devices: []Device{
			demoDevice("device-living-light-1", "room-living", DeviceLight, "Luz central", 0.22, 0.16, true),
			demoDevice("device-living-light-2", "room-living", DeviceLight, "Lampara pie", 0.38, 0.24, false),
			demoDevice("device-living-ac", "room-living", DeviceAC, "Aire split", 0.48, 0.18, true),
			demoDevice("device-kitchen-light", "room-kitchen", DeviceLight, "Cielorraso", 0.7, 0.16, true),
			demoDevice("device-kitchen-ac", "room-kitchen", DeviceAC, "Extractor / AC", 0.84, 0.18, false),
			demoDevice("device-master-light", "room-master", DeviceLight, "Cabecera", 0.24, 0.64, false),
			demoDevice("device-master-lamp", "room-master", DeviceLight, "Velador", 0.28, 0.8, true),
			demoDevice("device-master-ac", "room-master", DeviceAC, "Aire dormitorio", 0.38, 0.68, false),
			demoDevice("device-bedroom2-light", "room-bedroom2", DeviceLight, "Luz principal", 0.62, 0.65, true),
			demoDevice("device-bedroom2-ac", "room-bedroom2", DeviceAC, "Aire escritorio", 0.78, 0.72, false),
		},
		Routines: []Routine{
			{
				ID: "routine-goodnight", HomeID: "demo-home", Name: "Buenas noches",
				Description: "Apaga todas las luces de la casa.",
				Status:      RoutineActive, Cadence: "Todos los dias 23:30", SortOrder: 1,
				Actions: []RoutineAction{{
					Rooms:       []string{"living", "kitchen", "master", "bedroom2"},
					DeviceTypes: []DeviceType{DeviceLight},
					SetState:    b(false),
				}},
			},
			{
				ID: "routine-movie", HomeID: "demo-home", Name: "Modo cine",
				Description: "Living a media luz, aire encendido.",
				Status:      RoutineActive, Cadence: "Manual", SortOrder: 2,
				Actions: []RoutineAction{
					{Rooms: []string{"living"}, DeviceTypes: []DeviceType{DeviceLight}, SetState: b(false)},
					{Rooms: []string{"living"}, DeviceTypes: []DeviceType{DeviceAC}, SetState: b(true)},
				},
			},
			{
				ID: "routine-wakeup", HomeID: "demo-home", Name: "Despertar",
				Description: "Enciende luces de dormitorios.",
				Status:      RoutinePaused, Cadence: "Lun-Vie 07:00", SortOrder: 3,
				Actions: []RoutineAction{{
					Rooms:       []string{"master", "bedroom2"},
					DeviceTypes: []DeviceType{DeviceLight},
					SetState:    b(true),
				}},
			},
		},
	}
}

func points(xy ...float64) []Point {
	pts := make([]Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		pts = append(pts, Point{X: xy[i], Y: xy[i+1]})
	}
	return pts
}

func bbox(x, y, w, h float64) *BBox {
	return &BBox{X: x, Y: y, Width: w, Height: h}
}

func demoDevice(id, roomID string, typ DeviceType, name string, x, y float64, on bool) Device {
	return Device{
		ID: id, HomeID: "demo-home", RoomID: roomID,
		Type: typ, Name: name,
		Position: Point{X: x, Y: y},
		IsOn:     on,
	}
}
