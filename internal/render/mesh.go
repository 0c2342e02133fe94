package render

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/geom"
	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/memory"
)

// Material is the surface description shared by primitives.
type Material struct {
	Name      string
	BaseColor mgl32.Vec4 // linear RGBA
}

// DefaultMaterial is a plain light grey.
func DefaultMaterial() *Material {
	return &Material{Name: "default", BaseColor: mgl32.Vec4{0.8, 0.8, 0.8, 1}}
}

// Primitive is one drawable piece of geometry. Its attributes live in the
// GPU-vertex arena.
type Primitive struct {
	Mode      gpu.PrimitiveMode
	Positions *memory.Accessor // Vec3 Float
	Normals   *memory.Accessor // Vec3 Float, optional
	Colors    *memory.Accessor // Vec4 Float, optional
	Indices   *memory.Accessor // Scalar UnsignedShort or UnsignedInt, optional
	Material  *Material
	Bounds    geom.Box
}

// VertexCount returns the number of vertices.
func (p *Primitive) VertexCount() int { return p.Positions.Count() }

// DrawCount returns the number of vertices one draw of p emits.
func (p *Primitive) DrawCount() int {
	if p.Indices != nil {
		return p.Indices.Count()
	}
	return p.Positions.Count()
}

// Validate checks accessor shapes.
func (p *Primitive) Validate() error {
	if p.Positions == nil {
		return fmt.Errorf("render: primitive has no positions")
	}
	check := func(name string, a *memory.Accessor, comp memory.CompositionType) error {
		if a == nil {
			return nil
		}
		if a.Composition() != comp || a.Element() != memory.Float {
			return fmt.Errorf("render: %s accessor is %s/%s, want %s/float", name, a.Composition(), a.Element(), comp)
		}
		if a.Count() != p.Positions.Count() {
			return fmt.Errorf("render: %s has %d elements, positions have %d", name, a.Count(), p.Positions.Count())
		}
		return nil
	}
	if err := check("position", p.Positions, memory.Vec3); err != nil {
		return err
	}
	if err := check("normal", p.Normals, memory.Vec3); err != nil {
		return err
	}
	if err := check("color", p.Colors, memory.Vec4); err != nil {
		return err
	}
	if p.Indices != nil {
		if p.Indices.Composition() != memory.Scalar ||
			(p.Indices.Element() != memory.UnsignedShort && p.Indices.Element() != memory.UnsignedInt) {
			return fmt.Errorf("render: index accessor is %s/%s", p.Indices.Composition(), p.Indices.Element())
		}
	}
	return nil
}

// Mesh is a named set of primitives, shared by every MeshRenderer that draws
// it.
type Mesh struct {
	Name       string
	Primitives []*Primitive
}

// Bounds returns the union of the primitive bounds.
func (m *Mesh) Bounds() geom.Box {
	box := geom.EmptyBox()
	for _, p := range m.Primitives {
		if !p.Bounds.IsEmpty() {
			box = box.Extend(p.Bounds.Min).Extend(p.Bounds.Max)
		}
	}
	return box
}

// Geometry is tightly packed vertex data to copy into the vertex arena.
type Geometry struct {
	Mode      gpu.PrimitiveMode
	Positions []float32 // xyz
	Normals   []float32 // xyz, optional
	Colors    []float32 // rgba, optional
	Indices   []uint32  // optional
}

// NewPrimitive copies g into a fresh view of buf.
func NewPrimitive(buf *memory.Buffer, name string, g Geometry, mat *Material) (*Primitive, error) {
	n := len(g.Positions) / 3
	if n == 0 || len(g.Positions)%3 != 0 {
		return nil, fmt.Errorf("render: %s: %d position floats", name, len(g.Positions))
	}
	if g.Normals != nil && len(g.Normals) != 3*n {
		return nil, fmt.Errorf("render: %s: %d normal floats for %d vertices", name, len(g.Normals), n)
	}
	if g.Colors != nil && len(g.Colors) != 4*n {
		return nil, fmt.Errorf("render: %s: %d color floats for %d vertices", name, len(g.Colors), n)
	}
	for _, i := range g.Indices {
		if int(i) >= n {
			return nil, fmt.Errorf("render: %s: index %d out of range [0, %d)", name, i, n)
		}
	}

	size := 12 * n
	if g.Normals != nil {
		size += 12 * n
	}
	if g.Colors != nil {
		size += 16 * n
	}
	size += 4 * len(g.Indices)
	view, err := buf.TakeBufferView(size, 0, false)
	if err != nil {
		return nil, fmt.Errorf("render: %s: %w", name, err)
	}
	view.SetName(name)

	if mat == nil {
		mat = DefaultMaterial()
	}
	p := &Primitive{Mode: g.Mode, Material: mat, Bounds: geom.BoundsOf(g.Positions)}
	if p.Positions, err = takeFloats(view, memory.Vec3, g.Positions); err != nil {
		return nil, err
	}
	if g.Normals != nil {
		if p.Normals, err = takeFloats(view, memory.Vec3, g.Normals); err != nil {
			return nil, err
		}
	}
	if g.Colors != nil {
		if p.Colors, err = takeFloats(view, memory.Vec4, g.Colors); err != nil {
			return nil, err
		}
	}
	if len(g.Indices) > 0 {
		if p.Indices, err = view.TakeAccessor(memory.Scalar, memory.UnsignedInt, len(g.Indices)); err != nil {
			return nil, err
		}
		for i, idx := range g.Indices {
			p.Indices.SetScalar(i, float64(idx))
		}
	}
	return p, nil
}

func takeFloats(view *memory.BufferView, comp memory.CompositionType, data []float32) (*memory.Accessor, error) {
	acc, err := view.TakeAccessor(comp, memory.Float, len(data)/comp.NumComponents())
	if err != nil {
		return nil, err
	}
	dst, err := acc.ContiguousFloat32()
	if err != nil {
		return nil, err
	}
	copy(dst, data)
	acc.MarkDirty()
	return acc, nil
}

// NewCubeMesh builds an axis-aligned cube of edge size centred on the
// origin, with per-face normals.
func NewCubeMesh(buf *memory.Buffer, size float32, mat *Material) (*Mesh, error) {
	h := size / 2
	faces := []struct {
		normal mgl32.Vec3
		u, v   mgl32.Vec3
	}{
		{mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 0, 1}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, -1}},
		{mgl32.Vec3{0, -1, 0}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 0, 1}},
		{mgl32.Vec3{0, 0, 1}, mgl32.Vec3{1, 0, 0}, mgl32.Vec3{0, 1, 0}},
		{mgl32.Vec3{0, 0, -1}, mgl32.Vec3{-1, 0, 0}, mgl32.Vec3{0, 1, 0}},
	}

	var g Geometry
	g.Mode = gpu.Triangles
	for f, face := range faces {
		center := face.normal.Mul(h)
		for _, corner := range [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}} {
			p := center.Add(face.u.Mul(corner[0] * h)).Add(face.v.Mul(corner[1] * h))
			g.Positions = append(g.Positions, p[0], p[1], p[2])
			g.Normals = append(g.Normals, face.normal[0], face.normal[1], face.normal[2])
		}
		base := uint32(f * 4)
		g.Indices = append(g.Indices, base, base+1, base+2, base, base+2, base+3)
	}
	p, err := NewPrimitive(buf, "cube", g, mat)
	if err != nil {
		return nil, err
	}
	return &Mesh{Name: "cube", Primitives: []*Primitive{p}}, nil
}

// NewPlaneMesh builds a width×depth plane in XZ facing +Y.
func NewPlaneMesh(buf *memory.Buffer, width, depth float32, mat *Material) (*Mesh, error) {
	w, d := width/2, depth/2
	g := Geometry{
		Mode:      gpu.Triangles,
		Positions: []float32{-w, 0, d, w, 0, d, w, 0, -d, -w, 0, -d},
		Normals:   []float32{0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1, 0},
		Indices:   []uint32{0, 1, 2, 0, 2, 3},
	}
	p, err := NewPrimitive(buf, "plane", g, mat)
	if err != nil {
		return nil, err
	}
	return &Mesh{Name: "plane", Primitives: []*Primitive{p}}, nil
}

// NewPolygonMesh builds a flat regular polygon in XY facing +Z, triangulated
// with earcut.
func NewPolygonMesh(buf *memory.Buffer, sides int, radius float32, mat *Material) (*Mesh, error) {
	outline := geom.RegularPolygon(sides, radius)
	indices, err := geom.Triangulate(outline)
	if err != nil {
		return nil, fmt.Errorf("render: polygon mesh: %w", err)
	}

	g := Geometry{Mode: gpu.Triangles, Indices: indices}
	for _, pt := range outline {
		g.Positions = append(g.Positions, pt[0], pt[1], 0)
		g.Normals = append(g.Normals, 0, 0, 1)
	}
	name := fmt.Sprintf("polygon-%d", sides)
	p, err := NewPrimitive(buf, name, g, mat)
	if err != nil {
		return nil, err
	}
	return &Mesh{Name: name, Primitives: []*Primitive{p}}, nil
}
