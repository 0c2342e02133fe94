// Package geom provides the 3D geometric helpers the engine needs on top of
// mgl32:
// - Translation/rotation/scale composition and decomposition
// - Packing of affine 4x4 matrices into three 4-component rows
// - Axis-aligned bounding boxes
// - Polygon triangulation
package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl32.Vec3
	Max mgl32.Vec3
}

// EmptyBox returns a box that contains nothing; extending it with any point
// yields a degenerate box around that point.
func EmptyBox() Box {
	inf := float32(math.Inf(1))
	return Box{
		Min: mgl32.Vec3{inf, inf, inf},
		Max: mgl32.Vec3{-inf, -inf, -inf},
	}
}

// Extend grows the box to include p.
func (b Box) Extend(p mgl32.Vec3) Box {
	for i := 0; i < 3; i++ {
		b.Min[i] = float32(math.Min(float64(b.Min[i]), float64(p[i])))
		b.Max[i] = float32(math.Max(float64(b.Max[i]), float64(p[i])))
	}
	return b
}

// IsEmpty reports whether the box contains no point.
func (b Box) IsEmpty() bool { return b.Min[0] > b.Max[0] }

func (b Box) Center() mgl32.Vec3 { return b.Min.Add(b.Max).Mul(0.5) }
func (b Box) Size() mgl32.Vec3   { return b.Max.Sub(b.Min) }

// BoundsOf computes the bounds of tightly packed xyz positions.
func BoundsOf(positions []float32) Box {
	box := EmptyBox()
	for i := 0; i+2 < len(positions); i += 3 {
		box = box.Extend(mgl32.Vec3{positions[i], positions[i+1], positions[i+2]})
	}
	return box
}

// Compose returns T * R * S.
func Compose(t mgl32.Vec3, r mgl32.Quat, s mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(t[0], t[1], t[2]).
		Mul4(r.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
}

// Decompose splits an affine matrix into translation, rotation and scale.
// Shear is discarded.
func Decompose(m mgl32.Mat4) (t mgl32.Vec3, r mgl32.Quat, s mgl32.Vec3) {
	t = m.Col(3).Vec3()
	s = mgl32.Vec3{m.Col(0).Vec3().Len(), m.Col(1).Vec3().Len(), m.Col(2).Vec3().Len()}
	if m.Mat3().Det() < 0 {
		s[0] = -s[0]
	}

	var rot mgl32.Mat4
	for c := 0; c < 3; c++ {
		col := m.Col(c).Vec3()
		if s[c] != 0 {
			col = col.Mul(1 / s[c])
		}
		rot.SetCol(c, col.Vec4(0))
	}
	rot.SetCol(3, mgl32.Vec4{0, 0, 0, 1})
	r = mgl32.Mat4ToQuat(rot).Normalize()
	return t, r, s
}

// IsAffine reports whether the bottom row of m is (0, 0, 0, 1).
func IsAffine(m mgl32.Mat4) bool {
	return m.At(3, 0) == 0 && m.At(3, 1) == 0 && m.At(3, 2) == 0 && m.At(3, 3) == 1
}

// PackAffine encodes the top three rows of m as three 4-component rows, with
// the translation folded into the fourth component of each row. This is the
// layout shaders read back as three RGBA texels or three vec4 uniforms.
func PackAffine(m mgl32.Mat4) [12]float32 {
	var rows [12]float32
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			rows[r*4+c] = m.At(r, c)
		}
	}
	return rows
}

// UnpackAffine is the inverse of PackAffine, restoring the implied bottom row
// (0, 0, 0, 1).
func UnpackAffine(rows [12]float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	for r := 0; r < 3; r++ {
		for c := 0; c < 4; c++ {
			m.Set(r, c, rows[r*4+c])
		}
	}
	return m
}

// ApproxEqual compares two matrices component-wise within eps.
func ApproxEqual(a, b mgl32.Mat4, eps float32) bool {
	return a.ApproxEqualThreshold(b, eps)
}

// Validate returns an error if m contains NaN or infinite values.
func Validate(m mgl32.Mat4) error {
	for i, v := range m {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return fmt.Errorf("geom: matrix component %d is %v", i, v)
		}
	}
	return nil
}
