package convert

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/components"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/geom"
	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/palette"
	"github.com/irfansharif/garnet/internal/render"
)

var convertLogger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GARNET_DEBUG_ECS") == "1" {
		convertLogger = log.New(os.Stdout, "[convert] ", log.Ltime|log.Lmsgprefix)
	}
}

// Result is what an import produced.
type Result struct {
	Roots  []ecs.EntityUID // entities of the scene's root nodes
	Nodes  []ecs.EntityUID // entity per document node, by node index
	Meshes []*render.Mesh  // by document mesh index
}

// Import copies doc into w: buffers into the GPU-vertex arena, views and
// accessors onto that copy, meshes into render meshes and nodes into
// entities. The component types must be registered. On error the entities
// created so far are deleted; arena space already taken is not reclaimed.
func Import(w *ecs.World, doc *Document) (*Result, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	accessors, err := mapAccessors(w.Memory.Buffer(memory.GPUVertexData), doc)
	if err != nil {
		return nil, err
	}
	materials, err := mapMaterials(doc)
	if err != nil {
		return nil, err
	}
	res := &Result{}
	for i, m := range doc.Meshes {
		mesh, err := mapMesh(i, m, accessors, materials)
		if err != nil {
			return nil, fmt.Errorf("convert: mesh %d: %w", i, err)
		}
		res.Meshes = append(res.Meshes, mesh)
	}

	if err := res.createNodes(w, doc); err != nil {
		for _, uid := range res.Nodes {
			_ = w.Entities.DeleteEntity(uid)
		}
		return nil, err
	}
	for _, n := range doc.Roots() {
		res.Roots = append(res.Roots, res.Nodes[n])
	}
	convertLogger.Printf("imported %d nodes (%d roots), %d meshes, %d accessors",
		len(res.Nodes), len(res.Roots), len(res.Meshes), len(accessors))
	return res, nil
}

// mapAccessors copies each document buffer into the arena behind whatever
// is already taken and maps the document's views and accessors onto it at
// their stated offsets.
func mapAccessors(arena *memory.Buffer, doc *Document) ([]*memory.Accessor, error) {
	views := make([]*memory.BufferView, len(doc.BufferViews))
	next := arena.TakenBytes()
	for b, buf := range doc.Buffers {
		base := (next + 7) &^ 7
		end := base + buf.ByteLength
		if end > arena.ByteLength() {
			return nil, fmt.Errorf("convert: buffer %d: %w: needs [%d, %d) of %d bytes",
				b, memory.ErrCapacityExceeded, base, end, arena.ByteLength())
		}
		copy(arena.Bytes()[base:end], buf.Data[:buf.ByteLength])

		for i, v := range doc.BufferViews {
			if v.Buffer != b {
				continue
			}
			view, err := arena.TakeBufferViewWithByteOffset(base+v.ByteOffset, v.ByteLength, v.ByteStride, v.ByteStride != 0)
			if err != nil {
				return nil, fmt.Errorf("convert: buffer view %d: %w", i, err)
			}
			name := v.Name
			if name == "" {
				name = fmt.Sprintf("import/%d", i)
			}
			view.SetName(name)
			views[i] = view
		}
		next = max(end, arena.TakenBytes())
	}
	arena.MarkDirty()

	accessors := make([]*memory.Accessor, len(doc.Accessors))
	for i, a := range doc.Accessors {
		comp, err := memory.CompositionTypeFromString(a.Type)
		if err != nil {
			return nil, fmt.Errorf("convert: accessor %d: %w", i, err)
		}
		elem, err := memory.ElementTypeFromGL(a.ComponentType)
		if err != nil {
			return nil, fmt.Errorf("convert: accessor %d: %w", i, err)
		}
		stride := doc.BufferViews[a.BufferView].ByteStride
		acc, err := views[a.BufferView].TakeAccessorWithByteOffset(comp, elem, a.Count, a.ByteOffset, stride)
		if err != nil {
			return nil, fmt.Errorf("convert: accessor %d: %w", i, err)
		}
		accessors[i] = acc
	}
	return accessors, nil
}

func mapMaterials(doc *Document) ([]*render.Material, error) {
	out := make([]*render.Material, len(doc.Materials))
	for i, m := range doc.Materials {
		mat := render.DefaultMaterial()
		mat.Name = m.Name
		switch {
		case m.Color != "":
			c, err := palette.Parse(m.Color)
			if err != nil {
				return nil, fmt.Errorf("convert: material %d: %w", i, err)
			}
			mat.BaseColor = palette.Linear(c)
		case m.BaseColorFactor != nil:
			mat.BaseColor = mgl32.Vec4(*m.BaseColorFactor)
		}
		out[i] = mat
	}
	return out, nil
}

func mapMesh(index int, m Mesh, accessors []*memory.Accessor, materials []*render.Material) (*render.Mesh, error) {
	mesh := &render.Mesh{Name: m.Name}
	for j, p := range m.Primitives {
		prim := &render.Primitive{
			Mode:      gpu.Triangles,
			Positions: accessors[p.Attributes["POSITION"]],
			Material:  render.DefaultMaterial(),
		}
		if p.Mode != nil {
			prim.Mode = gpu.PrimitiveMode(*p.Mode)
		}
		if a, ok := p.Attributes["NORMAL"]; ok {
			prim.Normals = accessors[a]
		}
		if a, ok := p.Attributes["COLOR_0"]; ok {
			prim.Colors = accessors[a]
		}
		if p.Indices != nil {
			prim.Indices = accessors[*p.Indices]
		}
		if p.Material != nil {
			prim.Material = materials[*p.Material]
		}
		if err := prim.Validate(); err != nil {
			return nil, fmt.Errorf("primitive %d: %w", j, err)
		}
		prim.Bounds = geom.EmptyBox()
		for i := 0; i < prim.Positions.Count(); i++ {
			prim.Bounds = prim.Bounds.Extend(prim.Positions.GetVec3(i))
		}
		mesh.Primitives = append(mesh.Primitives, prim)
	}
	if mesh.Name == "" {
		mesh.Name = fmt.Sprintf("mesh-%d", index)
	}
	return mesh, nil
}

func (res *Result) createNodes(w *ecs.World, doc *Document) error {
	graphs := make([]*components.SceneGraph, len(doc.Nodes))
	for i, n := range doc.Nodes {
		uid := w.Entities.CreateEntity().UID()
		res.Nodes = append(res.Nodes, uid)

		tr, err := ecs.AddComponent[*components.Transform](w, uid)
		if err != nil {
			return fmt.Errorf("convert: node %d: %w", i, err)
		}
		if err := setLocal(tr, n); err != nil {
			return fmt.Errorf("convert: node %d: %w", i, err)
		}
		if graphs[i], err = ecs.AddComponent[*components.SceneGraph](w, uid); err != nil {
			return fmt.Errorf("convert: node %d: %w", i, err)
		}
		if n.Mesh == nil {
			continue
		}
		m, err := ecs.AddComponent[*components.Mesh](w, uid)
		if err != nil {
			return fmt.Errorf("convert: node %d: %w", i, err)
		}
		m.Set(res.Meshes[*n.Mesh])
		if _, err := ecs.AddComponent[*components.MeshRenderer](w, uid); err != nil {
			return fmt.Errorf("convert: node %d: %w", i, err)
		}
	}
	for i, n := range doc.Nodes {
		for _, c := range n.Children {
			if err := graphs[i].AddChild(graphs[c]); err != nil {
				return fmt.Errorf("convert: node %d: %w", i, err)
			}
		}
	}
	return nil
}

func setLocal(tr *components.Transform, n Node) error {
	if n.Matrix != nil {
		m := mgl32.Mat4(*n.Matrix)
		if err := geom.Validate(m); err != nil {
			return err
		}
		if !geom.IsAffine(m) {
			return fmt.Errorf("%w: node matrix is not affine", ErrInvalidDocument)
		}
		tr.SetMatrix(m)
		return nil
	}
	if n.Translation != nil {
		tr.SetTranslation(mgl32.Vec3(*n.Translation))
	}
	if n.Rotation != nil {
		r := *n.Rotation
		tr.SetRotation(mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}.Normalize())
	}
	if n.Scale != nil {
		tr.SetScale(mgl32.Vec3(*n.Scale))
	}
	return nil
}
