package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/geom"
	"github.com/irfansharif/garnet/internal/memory"
)

const (
	fieldTranslate = iota
	fieldRotate
	fieldScale
)

// Transform is an entity's local translation, rotation and scale. The
// values live in the CPU arena; the composed matrix is cached.
type Transform struct {
	ecs.Base
	local mgl32.Mat4
	clean bool
}

func (t *Transform) DeclareMembers() {
	t.RegisterMember(memory.CPUGeneric, "translate", memory.Vec3, memory.Float)
	t.RegisterMember(memory.CPUGeneric, "rotate", memory.Vec4, memory.Float, 0, 0, 0, 1)
	t.RegisterMember(memory.CPUGeneric, "scale", memory.Vec3, memory.Float, 1, 1, 1)
}

func (t *Transform) OnCreate(ctx *ecs.Context) error {
	t.invalidate()
	t.MoveStageTo(ecs.Logic)
	return nil
}

func (t *Transform) OnDestroy(w *ecs.World) { t.invalidate() }

func (t *Transform) Translation() mgl32.Vec3 { return t.Field(fieldTranslate).Vec3() }
func (t *Transform) Scale() mgl32.Vec3       { return t.Field(fieldScale).Vec3() }

func (t *Transform) Rotation() mgl32.Quat {
	v := t.Field(fieldRotate).Vec4()
	return mgl32.Quat{W: v[3], V: v.Vec3()}
}

func (t *Transform) SetTranslation(v mgl32.Vec3) {
	t.Field(fieldTranslate).SetVec3(v)
	t.invalidate()
}

func (t *Transform) SetRotation(q mgl32.Quat) {
	t.Field(fieldRotate).SetVec4(q.V.Vec4(q.W))
	t.invalidate()
}

func (t *Transform) SetScale(v mgl32.Vec3) {
	t.Field(fieldScale).SetVec3(v)
	t.invalidate()
}

// Translate moves the transform by d.
func (t *Transform) Translate(d mgl32.Vec3) { t.SetTranslation(t.Translation().Add(d)) }

// SetMatrix decomposes an affine matrix into the three members.
func (t *Transform) SetMatrix(m mgl32.Mat4) {
	tr, r, s := geom.Decompose(m)
	t.Field(fieldTranslate).SetVec3(tr)
	t.Field(fieldRotate).SetVec4(r.V.Vec4(r.W))
	t.Field(fieldScale).SetVec3(s)
	t.invalidate()
}

// Matrix returns the local matrix T * R * S.
func (t *Transform) Matrix() mgl32.Mat4 {
	if !t.clean {
		t.local = geom.Compose(t.Translation(), t.Rotation(), t.Scale())
		t.clean = true
	}
	return t.local
}

func (t *Transform) invalidate() {
	t.clean = false
	if sg, ok := ecs.GetComponent[*SceneGraph](t.World(), t.Entity()); ok {
		sg.markDirty()
	}
}
