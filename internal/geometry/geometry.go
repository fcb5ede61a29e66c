// Package geometry converts stored room shapes between their persisted
// representation and normalized unit coordinates. Coordinates are fractions
// of the plan image's width/height, so the same shape renders at any pixel
// resolution.
//
// Parsing is deliberately tolerant: the persistence layer may hand back
// polygons and boxes as structured values or as JSON-encoded text depending
// on the driver, and a malformed stored shape must never take down the
// rendering path. Bad input degrades to an empty polygon or a nil box.
package geometry

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Point is a normalized coordinate pair in [0,1].
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// BBox is an axis-aligned bounding box in normalized coordinates.
type BBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// ParsePolygon accepts a slice of {x,y} values, a JSON-encoded string (or
// byte slice) of the same, or anything else, which yields an empty polygon.
// Malformed points are filtered out rather than failing the whole parse, so
// a partially corrupt row still renders the points that survive.
func ParsePolygon(raw any) []Point {
	switch v := raw.(type) {
	case nil:
		return []Point{}
	case []Point:
		out := make([]Point, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]Point, 0, len(v))
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			x, okX := asFloat(m["x"])
			y, okY := asFloat(m["y"])
			if !okX || !okY {
				continue
			}
			out = append(out, Point{X: x, Y: y})
		}
		return out
	case []byte:
		return parsePolygonJSON(v)
	case string:
		return parsePolygonJSON([]byte(v))
	default:
		return []Point{}
	}
}

func parsePolygonJSON(data []byte) []Point {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return []Point{}
	}
	if _, again := decoded.(string); again {
		// A doubly-encoded string would recurse forever; one level is enough.
		return []Point{}
	}
	return ParsePolygon(decoded)
}

// ParseBBox applies the same tolerant parsing to the four-field box.
// Returns nil on any unparseable input.
func ParseBBox(raw any) *BBox {
	switch v := raw.(type) {
	case nil:
		return nil
	case BBox:
		b := v
		return &b
	case *BBox:
		if v == nil {
			return nil
		}
		b := *v
		return &b
	case map[string]any:
		x, okX := asFloat(v["x"])
		y, okY := asFloat(v["y"])
		w, okW := asFloat(v["width"])
		h, okH := asFloat(v["height"])
		if !okX || !okY || !okW || !okH {
			return nil
		}
		return &BBox{X: x, Y: y, Width: w, Height: h}
	case []byte:
		return parseBBoxJSON(v)
	case string:
		return parseBBoxJSON([]byte(v))
	default:
		return nil
	}
}

func parseBBoxJSON(data []byte) *BBox {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil
	}
	if _, again := decoded.(string); again {
		return nil
	}
	return ParseBBox(decoded)
}

// ComputeBBox returns the axis-aligned bounding box over the points, or nil
// for an empty polygon.
func ComputeBBox(points []Point) *BBox {
	if len(points) == 0 {
		return nil
	}
	mp := make(orb.MultiPoint, len(points))
	for i, p := range points {
		mp[i] = orb.Point{p.X, p.Y}
	}
	bound := mp.Bound()
	return &BBox{
		X:      bound.Min.X(),
		Y:      bound.Min.Y(),
		Width:  bound.Max.X() - bound.Min.X(),
		Height: bound.Max.Y() - bound.Min.Y(),
	}
}

// ToSVGPoints maps each normalized point into pixel space and joins the
// pairs into the coordinate list an SVG polygon expects. Point order is
// preserved; it defines the edge sequence of the rendered shape.
func ToSVGPoints(points []Point, width, height float64) string {
	var sb strings.Builder
	for i, p := range points {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatFloat(p.X*width, 'f', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p.Y*height, 'f', -1, 64))
	}
	return sb.String()
}

// ToCSSPolygon renders the points as a CSS clip-path polygon() argument.
func ToCSSPolygon(points []Point) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = strconv.FormatFloat(p.X*100, 'f', -1, 64) + "% " +
			strconv.FormatFloat(p.Y*100, 'f', -1, 64) + "%"
	}
	return strings.Join(parts, ", ")
}
