package components

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

// SceneGraph places an entity in the hierarchy. Its world matrix,
// parentWorld × local, is stored in the GPU instance arena at the
// instance's SID, which is what the renderer indexes.
//
// Parent and child links are plain pointers between live instances. They
// are cut when either side is deleted, and deleting an entity deletes its
// children first.
type SceneGraph struct {
	ecs.Base
	parent   *SceneGraph
	children []*SceneGraph
	world    mgl32.Mat4
	clean    bool
}

var _ ecs.Parent = (*SceneGraph)(nil)

func (s *SceneGraph) DeclareMembers() {
	s.RegisterMember(memory.GPUInstanceData, render.InstanceMember, memory.Mat3x4, memory.Float,
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0)
}

func (s *SceneGraph) OnCreate(ctx *ecs.Context) error {
	s.MoveStageTo(ecs.Logic)
	return nil
}

// OnLogic flushes a pending world matrix to the arena.
func (s *SceneGraph) OnLogic(ctx *ecs.Context) error {
	s.WorldMatrix()
	return nil
}

func (s *SceneGraph) OnDestroy(w *ecs.World) {
	if s.parent != nil {
		s.parent.RemoveChild(s)
	}
	for _, c := range s.children {
		c.parent = nil
		c.markDirty()
	}
	s.children = nil
}

// AddChild links child under s, detaching it from any previous parent.
func (s *SceneGraph) AddChild(child *SceneGraph) error {
	for p := s; p != nil; p = p.parent {
		if p == child {
			return fmt.Errorf("%w: entity %d under %d", ErrSceneGraphCycle, child.Entity(), s.Entity())
		}
	}
	if child.parent == s {
		return nil
	}
	if child.parent != nil {
		child.parent.RemoveChild(child)
	}
	child.parent = s
	s.children = append(s.children, child)
	child.markDirty()
	return nil
}

// RemoveChild unlinks child, which becomes a root. It reports whether child
// was linked under s.
func (s *SceneGraph) RemoveChild(child *SceneGraph) bool {
	for i, c := range s.children {
		if c != child {
			continue
		}
		s.children = append(s.children[:i], s.children[i+1:]...)
		child.parent = nil
		child.markDirty()
		return true
	}
	return false
}

func (s *SceneGraph) Parent() *SceneGraph { return s.parent }

func (s *SceneGraph) Children() []*SceneGraph { return s.children }

// ChildEntities lists the entities of the direct children.
func (s *SceneGraph) ChildEntities() []ecs.EntityUID {
	out := make([]ecs.EntityUID, len(s.children))
	for i, c := range s.children {
		out[i] = c.Entity()
	}
	return out
}

// WorldMatrix returns parentWorld × local, recomputing it (and writing it
// to the arena) if anything on the path to the root changed.
func (s *SceneGraph) WorldMatrix() mgl32.Mat4 {
	if s.clean {
		return s.world
	}
	local := mgl32.Ident4()
	if t, ok := ecs.GetComponent[*Transform](s.World(), s.Entity()); ok {
		local = t.Matrix()
	}
	if s.parent != nil {
		local = s.parent.WorldMatrix().Mul4(local)
	}
	s.world = local
	s.clean = true
	s.Field(0).SetAffine(s.world)
	return s.world
}

// markDirty invalidates s and every descendant. A dirty node's descendants
// are always dirty, so the walk stops at the first dirty one.
func (s *SceneGraph) markDirty() {
	if !s.clean {
		return
	}
	s.clean = false
	for _, c := range s.children {
		c.markDirty()
	}
}
