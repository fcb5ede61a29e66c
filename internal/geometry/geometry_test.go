package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePolygon_structured(t *testing.T) {
	raw := []any{
		map[string]any{"x": 0.1, "y": 0.2},
		map[string]any{"x": 0.5, "y": 0.6},
	}
	got := ParsePolygon(raw)
	assert.Equal(t, []Point{{X: 0.1, Y: 0.2}, {X: 0.5, Y: 0.6}}, got)
}

func TestParsePolygon_jsonText(t *testing.T) {
	got := ParsePolygon(`[{"x":0.25,"y":0.75},{"x":0.5,"y":0.5}]`)
	assert.Equal(t, []Point{{X: 0.25, Y: 0.75}, {X: 0.5, Y: 0.5}}, got)

	got = ParsePolygon([]byte(`[{"x":0,"y":1}]`))
	assert.Equal(t, []Point{{X: 0, Y: 1}}, got)
}

func TestParsePolygon_filtersMalformedPoints(t *testing.T) {
	raw := []any{
		map[string]any{"x": 0.1, "y": 0.2},
		map[string]any{"x": "bad", "y": 0.3},
		map[string]any{"y": 0.4},
		"not a point",
		map[string]any{"x": 0.9, "y": 0.9},
	}
	got := ParsePolygon(raw)
	assert.Equal(t, []Point{{X: 0.1, Y: 0.2}, {X: 0.9, Y: 0.9}}, got)
}

func TestParsePolygon_badInputYieldsEmpty(t *testing.T) {
	assert.Empty(t, ParsePolygon(nil))
	assert.Empty(t, ParsePolygon(42))
	assert.Empty(t, ParsePolygon("not json"))
	// A doubly-encoded string stops after one decode level.
	assert.Empty(t, ParsePolygon(`"[{\"x\":0.1,\"y\":0.2}]"`))
}

func TestParsePolygon_copiesInput(t *testing.T) {
	src := []Point{{X: 0.1, Y: 0.1}}
	got := ParsePolygon(src)
	require.Len(t, got, 1)
	got[0].X = 0.9
	assert.Equal(t, 0.1, src[0].X)
}

func TestParseBBox(t *testing.T) {
	b := ParseBBox(map[string]any{"x": 0.1, "y": 0.2, "width": 0.3, "height": 0.4})
	require.NotNil(t, b)
	assert.Equal(t, BBox{X: 0.1, Y: 0.2, Width: 0.3, Height: 0.4}, *b)

	b = ParseBBox(`{"x":0.2,"y":0.2,"width":0.5,"height":0.5}`)
	require.NotNil(t, b)
	assert.Equal(t, BBox{X: 0.2, Y: 0.2, Width: 0.5, Height: 0.5}, *b)

	assert.Nil(t, ParseBBox(nil))
	assert.Nil(t, ParseBBox(map[string]any{"x": 0.1, "y": 0.2}))
	assert.Nil(t, ParseBBox("nope"))
}

func TestComputeBBox(t *testing.T) {
	assert.Nil(t, ComputeBBox(nil))
	assert.Nil(t, ComputeBBox([]Point{}))

	b := ComputeBBox([]Point{{X: 0.2, Y: 0.3}, {X: 0.6, Y: 0.5}, {X: 0.4, Y: 0.2}})
	require.NotNil(t, b)
	assert.InDelta(t, 0.2, b.X, 1e-9)
	assert.InDelta(t, 0.2, b.Y, 1e-9)
	assert.InDelta(t, 0.4, b.Width, 1e-9)
	assert.InDelta(t, 0.3, b.Height, 1e-9)
}

func TestToSVGPoints(t *testing.T) {
	pts := []Point{{X: 0.5, Y: 0.5}, {X: 0.25, Y: 1}}
	assert.Equal(t, "50,25 25,50", ToSVGPoints(pts, 100, 50))
	assert.Equal(t, "", ToSVGPoints(nil, 100, 50))
}

func TestToCSSPolygon(t *testing.T) {
	pts := []Point{{X: 0.1, Y: 0.2}, {X: 0.5, Y: 0.5}}
	assert.Equal(t, "10% 20%, 50% 50%", ToCSSPolygon(pts))
}
