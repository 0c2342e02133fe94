// Package palette provides material colour palettes. Palettes are generated
// in HSV and handed to shaders as linear-light RGBA.
package palette

import (
	"fmt"
	"image/color"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
)

// Palette holds five RGBA colors: a dark base, a neutral, and three accents.
type Palette [5]color.RGBA

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// hsb converts hue/saturation/brightness in 0-100 ranges to RGBA.
func hsb(h, s, b float64) color.RGBA {
	hue := h * 3.6
	sat := clamp(s/100.0, 0, 1)
	bright := clamp(b/100.0, 0, 1)

	c := colorful.Hsv(hue, sat, bright)
	red, green, blue := c.RGB255()
	return color.RGBA{R: red, G: green, B: blue, A: 255}
}

// RandomPalette returns a palette using HSV generation.
func RandomPalette(r *rand.Rand) Palette {
	p := Palette{}
	p[0] = hsb(r.Float64()*100, r.Float64()*100, r.Float64()*30)
	p[1] = color.RGBA{R: 235, G: 235, B: 230, A: 255}
	for i := 2; i < 5; i++ {
		p[i] = hsb(r.Float64()*100, r.Float64()*50+25, r.Float64()*50+25)
	}
	return p
}

// Shimmered applies a brightness jitter to accent colors 2..4 when shimmer >= 0.
func Shimmered(p Palette, shimmer int, r *rand.Rand) Palette {
	if shimmer < 0 {
		return p
	}

	out := p
	for i := 2; i < 5; i++ {
		c := colorful.Color{R: float64(out[i].R) / 255, G: float64(out[i].G) / 255, B: float64(out[i].B) / 255}
		h, s, v := c.Hsv()
		v = clamp(v+(r.Float64()-0.5)*0.2, 0, 1)

		red, green, blue := colorful.Hsv(h, s, v).RGB255()
		out[i] = color.RGBA{R: red, G: green, B: blue, A: 255}
	}
	return out
}

// Accent returns the i-th accent color, cycling through the three accents.
func (p Palette) Accent(i int) color.RGBA {
	if i < 0 {
		i = -i
	}
	return p[2+i%3]
}

// Linear converts an sRGB color to linear-light RGBA, the space shaders
// blend in.
func Linear(c color.RGBA) mgl32.Vec4 {
	cf := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}
	r, g, b := cf.LinearRgb()
	return mgl32.Vec4{float32(r), float32(g), float32(b), float32(c.A) / 255}
}

// Parse reads a "#rrggbb" hex color.
func Parse(hex string) (color.RGBA, error) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("palette: %w", err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 255}, nil
}
