package components

import (
	"fmt"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/geom"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

// Mesh points an entity at shared geometry. Its local bounds are kept in
// the CPU arena for picking.
type Mesh struct {
	ecs.Base
	mesh *render.Mesh
}

func (m *Mesh) DeclareMembers() {
	m.RegisterMember(memory.CPUGeneric, "boundsMin", memory.Vec3, memory.Float)
	m.RegisterMember(memory.CPUGeneric, "boundsMax", memory.Vec3, memory.Float)
}

// Set assigns the geometry. Renderers that already loaded a previous mesh
// keep drawing it until they are hidden.
func (m *Mesh) Set(mesh *render.Mesh) {
	m.mesh = mesh
	b := mesh.Bounds()
	if b.IsEmpty() {
		b = geom.Box{}
	}
	m.Field(0).SetVec3(b.Min)
	m.Field(1).SetVec3(b.Max)
}

func (m *Mesh) Mesh() *render.Mesh { return m.mesh }

// Bounds returns the local bounding box.
func (m *Mesh) Bounds() geom.Box {
	return geom.Box{Min: m.Field(0).Vec3(), Max: m.Field(1).Vec3()}
}

// MeshRenderer draws its entity's mesh at its scene graph world matrix.
//
// Lifecycle: Create waits for a mesh, Load creates the mesh's GPU buffers
// through the strategy, Mount binds the vertex layout, and the renderer
// then stays in Render, where the type's bulk hook draws every scheduled
// renderer once per pass. Hide moves it through Unmount to Discard, which
// releases the mesh.
type MeshRenderer struct {
	ecs.Base
	loaded *render.Mesh
}

func (r *MeshRenderer) DeclareMembers() {
	r.RegisterMember(memory.CPUGeneric, "layers", memory.Scalar, memory.UnsignedInt, 1)
}

func (r *MeshRenderer) OnCreate(ctx *ecs.Context) error {
	if m, ok := ecs.GetComponent[*Mesh](ctx.World, r.Entity()); ok && m.Mesh() != nil {
		r.MoveStageTo(ecs.Load)
	}
	return nil
}

func (r *MeshRenderer) OnLoad(ctx *ecs.Context) error {
	m, ok := ecs.GetComponent[*Mesh](ctx.World, r.Entity())
	if !ok || m.Mesh() == nil {
		return fmt.Errorf("%w: entity %d", ErrNoMesh, r.Entity())
	}
	s, err := render.FromWorld(ctx.World)
	if err != nil {
		return err
	}
	if err := s.LoadMesh(m.Mesh()); err != nil {
		return err
	}
	r.loaded = m.Mesh()
	r.MoveStageTo(ecs.Mount)
	return nil
}

func (r *MeshRenderer) OnMount(ctx *ecs.Context) error {
	s, err := render.FromWorld(ctx.World)
	if err != nil {
		return err
	}
	if err := s.BindVertexLayout(r.loaded); err != nil {
		return err
	}
	r.MoveStageTo(ecs.Render)
	return nil
}

func (r *MeshRenderer) OnUnmount(ctx *ecs.Context) error {
	r.MoveStageTo(ecs.Discard)
	return nil
}

func (r *MeshRenderer) OnDiscard(ctx *ecs.Context) error {
	r.release(ctx.World)
	return nil
}

// OnDestroy releases the mesh of a renderer deleted before it was hidden.
func (r *MeshRenderer) OnDestroy(w *ecs.World) { r.release(w) }

func (r *MeshRenderer) release(w *ecs.World) {
	if r.loaded == nil {
		return
	}
	if s, err := render.FromWorld(w); err == nil {
		s.ReleaseMesh(r.loaded)
	}
	r.loaded = nil
}

// Hide stops drawing the renderer for good and releases its mesh.
func (r *MeshRenderer) Hide() {
	if r.Stage() != ecs.Discard {
		r.MoveStageTo(ecs.Unmount)
	}
}

// Visible reports whether the renderer is being drawn.
func (r *MeshRenderer) Visible() bool { return r.Stage() == ecs.Render }

// Layers is the bitmask of render layers the renderer belongs to.
func (r *MeshRenderer) Layers() uint32 { return uint32(r.Field(0).Scalar()) }

func (r *MeshRenderer) SetLayers(mask uint32) { r.Field(0).SetScalar(float64(mask)) }

// LayerFilter admits entities whose mesh renderer shares a layer with mask,
// for use as a RenderPass filter.
func LayerFilter(w *ecs.World, mask uint32) func(ecs.EntityUID) bool {
	return func(uid ecs.EntityUID) bool {
		r, ok := ecs.GetComponent[*MeshRenderer](w, uid)
		return ok && r.Layers()&mask != 0
	}
}

// rendererHooks are the MeshRenderer type's bulk hooks. They hold the
// batch scratch space reused across passes.
type rendererHooks struct {
	batches []render.Batch
	index   map[*render.Mesh]int
}

func (h *rendererHooks) prerender(ctx *ecs.Context) error {
	s, err := render.FromWorld(ctx.World)
	if err != nil {
		return err
	}
	return s.Prerender(ctx)
}

// render groups the pass's scheduled renderers by mesh and draws each group
// instanced, indexing instances by scene graph SID.
func (h *rendererHooks) render(ctx *ecs.Context) error {
	if h.index == nil {
		h.index = make(map[*render.Mesh]int)
	}
	h.batches = h.batches[:0]
	clear(h.index)

	for _, sid := range ctx.Scheduled {
		c, ok := ctx.World.Components.Component(ctx.Type, sid)
		if !ok {
			continue
		}
		r := c.(*MeshRenderer)
		if r.loaded == nil {
			continue
		}
		sg, ok := ecs.GetComponent[*SceneGraph](ctx.World, r.Entity())
		if !ok {
			continue
		}
		i, ok := h.index[r.loaded]
		if !ok {
			i = len(h.batches)
			h.index[r.loaded] = i
			if i < cap(h.batches) {
				h.batches = h.batches[:i+1]
				h.batches[i].Mesh = r.loaded
				h.batches[i].Instances = h.batches[i].Instances[:0]
			} else {
				h.batches = append(h.batches, render.Batch{Mesh: r.loaded})
			}
		}
		h.batches[i].Instances = append(h.batches[i].Instances, sg.SID())
	}
	if len(h.batches) == 0 {
		return nil
	}
	s, err := render.FromWorld(ctx.World)
	if err != nil {
		return err
	}
	return s.Draw(ctx, h.batches)
}
