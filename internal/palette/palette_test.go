package palette_test

import (
	"image/color"
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/palette"
)

func TestRandomPaletteIsDeterministic(t *testing.T) {
	a := palette.RandomPalette(rand.New(rand.NewSource(7)))
	b := palette.RandomPalette(rand.New(rand.NewSource(7)))
	if a != b {
		t.Fatalf("expected equal seeds to give equal palettes")
	}
	if a[1] != (color.RGBA{R: 235, G: 235, B: 230, A: 255}) {
		t.Fatalf("expected the fixed neutral, got %v", a[1])
	}
	for i, c := range a {
		if c.A != 255 {
			t.Fatalf("color %d is not opaque: %v", i, c)
		}
	}
}

func TestAccentCycles(t *testing.T) {
	p := palette.RandomPalette(rand.New(rand.NewSource(1)))
	for i := 0; i < 6; i++ {
		if p.Accent(i) != p[2+i%3] {
			t.Fatalf("accent %d: expected palette entry %d", i, 2+i%3)
		}
	}
	if p.Accent(-1) != p.Accent(1) {
		t.Fatalf("expected negative indices to mirror")
	}
}

func TestShimmered(t *testing.T) {
	p := palette.RandomPalette(rand.New(rand.NewSource(3)))
	if palette.Shimmered(p, -1, rand.New(rand.NewSource(3))) != p {
		t.Fatalf("expected a negative shimmer to leave the palette alone")
	}
	s := palette.Shimmered(p, 1, rand.New(rand.NewSource(3)))
	if s[0] != p[0] || s[1] != p[1] {
		t.Fatalf("expected base and neutral untouched")
	}
}

func TestLinear(t *testing.T) {
	for _, tc := range []struct {
		hex  string
		want mgl32.Vec4
	}{
		{"#000000", mgl32.Vec4{0, 0, 0, 1}},
		{"#ffffff", mgl32.Vec4{1, 1, 1, 1}},
		{"#808080", mgl32.Vec4{0.2158605, 0.2158605, 0.2158605, 1}},
	} {
		c, err := palette.Parse(tc.hex)
		if err != nil {
			t.Fatalf("Parse(%s): %v", tc.hex, err)
		}
		if got := palette.Linear(c); !got.ApproxEqualThreshold(tc.want, 1e-4) {
			t.Fatalf("%s: expected %v, got %v", tc.hex, tc.want, got)
		}
	}
	if _, err := palette.Parse("not a color"); err == nil {
		t.Fatalf("expected a malformed color to fail")
	}
}
