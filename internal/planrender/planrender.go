// Package planrender draws the floor-plan overlay — room shapes with their
// on/off tint plus device markers — as SVG or PNG. Normalized coordinates
// scale to the requested pixel size; canvas Y grows upward, so rows are
// flipped on the way in.
package planrender

import (
	"image/color"
	"image/png"
	"io"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/rasterizer"
	"github.com/tdewolff/canvas/renderers/svg"

	"bs-app/home-core/internal/home"
)

var (
	roomIdle    = color.RGBA{R: 226, G: 232, B: 240, A: 255}
	roomLit     = color.RGBA{R: 254, G: 243, B: 199, A: 255}
	roomOutline = color.RGBA{R: 71, G: 85, B: 105, A: 255}
	markerOff   = color.RGBA{R: 148, G: 163, B: 184, A: 255}
	markerLight = color.RGBA{R: 245, G: 158, B: 11, A: 255}
	markerAC    = color.RGBA{R: 14, G: 165, B: 233, A: 255}
)

const markerRadius = 7.0

type pathRenderer interface {
	RenderPath(path *canvas.Path, style canvas.Style, m canvas.Matrix)
}

// RenderSVG writes the overlay as an SVG document of the given pixel size.
func RenderSVG(w io.Writer, state *home.State, width, height float64) error {
	r := svg.New(w, width, height, nil)
	renderState(r, state, width, height)
	return r.Close()
}

// RenderPNG writes the overlay as a PNG of the given pixel size.
func RenderPNG(w io.Writer, state *home.State, width, height float64) error {
	rast := rasterizer.New(width, height, canvas.DPI(96), canvas.DefaultColorSpace)
	renderState(rast, state, width, height)
	return png.Encode(w, rast)
}

func renderState(r pathRenderer, state *home.State, width, height float64) {
	bg := canvas.DefaultStyle
	bg.Fill = canvas.Paint{Color: canvas.White}
	r.RenderPath(canvas.Rectangle(width, height), bg, canvas.Identity)

	if state == nil {
		return
	}

	for _, room := range state.Rooms {
		drawRoom(r, room, state.Devices, width, height)
	}
	for _, device := range state.Devices {
		drawDevice(r, device, width, height)
	}
}

func drawRoom(r pathRenderer, room home.Room, devices []home.Device, width, height float64) {
	points := room.Polygon
	if len(points) < 3 {
		// Fall back to the bbox shape for rooms with no usable polygon.
		bb := room.RoomBBox()
		if bb == nil {
			return
		}
		points = []home.Point{
			{X: bb.X, Y: bb.Y},
			{X: bb.X + bb.Width, Y: bb.Y},
			{X: bb.X + bb.Width, Y: bb.Y + bb.Height},
			{X: bb.X, Y: bb.Y + bb.Height},
		}
	}

	cp := &canvas.Path{}
	for i, p := range points {
		x := p.X * width
		y := height - p.Y*height
		if i == 0 {
			cp.MoveTo(x, y)
		} else {
			cp.LineTo(x, y)
		}
	}
	cp.Close()

	fill := roomIdle
	if st := home.StatusForRoom(room.ID, devices); st.LightsOn {
		fill = roomLit
	}

	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: fill}
	style.Stroke = canvas.Paint{Color: roomOutline}
	style.StrokeWidth = 2.0
	r.RenderPath(cp, style, canvas.Identity)
}

func drawDevice(r pathRenderer, device home.Device, width, height float64) {
	fill := markerOff
	if device.IsOn {
		switch device.Type {
		case home.DeviceAC:
			fill = markerAC
		default:
			fill = markerLight
		}
	}

	style := canvas.DefaultStyle
	style.Fill = canvas.Paint{Color: fill}
	style.Stroke = canvas.Paint{Color: roomOutline}
	style.StrokeWidth = 1.0

	marker := canvas.Circle(markerRadius)
	marker = marker.Translate(device.Position.X*width, height-device.Position.Y*height)
	r.RenderPath(marker, style, canvas.Identity)
}
