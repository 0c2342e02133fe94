package components

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

const (
	fieldView = iota
	fieldProjection
	fieldLens
	fieldOrthographic
)

// Camera derives view and projection matrices for a render pass. The view
// is the inverse of the entity's scene graph world matrix. Both matrices
// are mirrored into the uniform arena every Logic stage.
type Camera struct {
	ecs.Base
}

var _ render.Camera = (*Camera)(nil)

func (c *Camera) DeclareMembers() {
	identity := []float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}
	c.RegisterMember(memory.UBOGeneric, "view", memory.Mat4, memory.Float, identity...)
	c.RegisterMember(memory.UBOGeneric, "projection", memory.Mat4, memory.Float, identity...)
	// fovy (radians) or height, aspect, near, far
	c.RegisterMember(memory.CPUGeneric, "lens", memory.Vec4, memory.Float, float64(mgl32.DegToRad(45)), 1, 0.1, 100)
	c.RegisterMember(memory.CPUGeneric, "orthographic", memory.Scalar, memory.UnsignedByte)
}

func (c *Camera) OnCreate(ctx *ecs.Context) error {
	c.MoveStageTo(ecs.Logic)
	return nil
}

func (c *Camera) OnLogic(ctx *ecs.Context) error {
	c.Field(fieldView).SetMat4(c.ViewMatrix())
	c.Field(fieldProjection).SetMat4(c.ProjectionMatrix())
	return nil
}

// SetPerspective configures a perspective projection; fovy is in radians.
func (c *Camera) SetPerspective(fovy, aspect, near, far float32) {
	c.Field(fieldLens).SetVec4(mgl32.Vec4{fovy, aspect, near, far})
	c.Field(fieldOrthographic).SetScalar(0)
}

// SetOrthographic configures an orthographic projection height units tall.
func (c *Camera) SetOrthographic(height, aspect, near, far float32) {
	c.Field(fieldLens).SetVec4(mgl32.Vec4{height, aspect, near, far})
	c.Field(fieldOrthographic).SetScalar(1)
}

// SetAspect updates the aspect ratio, typically on window resize.
func (c *Camera) SetAspect(aspect float32) {
	lens := c.Field(fieldLens).Vec4()
	lens[1] = aspect
	c.Field(fieldLens).SetVec4(lens)
}

func (c *Camera) Orthographic() bool { return c.Field(fieldOrthographic).Scalar() != 0 }

func (c *Camera) ViewMatrix() mgl32.Mat4 {
	sg, ok := ecs.GetComponent[*SceneGraph](c.World(), c.Entity())
	if !ok {
		return mgl32.Ident4()
	}
	return sg.WorldMatrix().Inv()
}

func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	lens := c.Field(fieldLens).Vec4()
	if c.Orthographic() {
		h := lens[0] / 2
		w := h * lens[1]
		return mgl32.Ortho(-w, w, -h, h, lens[2], lens[3])
	}
	return mgl32.Perspective(lens[0], lens[1], lens[2], lens[3])
}
