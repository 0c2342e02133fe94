package ecs

import (
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/memory"
)

// TypeID identifies a registered component type. IDs are dense and assigned
// in registration order, which is also dispatch order.
type TypeID int

// SID is the dense index of a component instance within its type's storage.
type SID int

// Member describes one field of a component type.
type Member struct {
	Use         memory.BufferUse
	Name        string
	Composition memory.CompositionType
	Element     memory.ElementType
	Initial     []float64
}

func (m Member) sameShape(o Member) bool {
	return m.Use == o.Use && m.Name == o.Name && m.Composition == o.Composition &&
		m.Element == o.Element && slices.Equal(m.Initial, o.Initial)
}

func (m Member) String() string {
	return fmt.Sprintf("%s %s/%s@%s", m.Name, m.Composition, m.Element, m.Use)
}

// Component is implemented by every concrete component type. Concrete types
// embed Base and declare their fields in DeclareMembers by calling
// RegisterMember, identically for every instance.
type Component interface {
	ecsBase() *Base
	DeclareMembers()
}

// Base carries the bookkeeping shared by every component instance: identity,
// stage and the arena slots bound to its members.
type Base struct {
	world  *World
	info   *typeInfo
	typ    TypeID
	sid    SID
	entity EntityUID
	stage  Stage
	done   bool // discard callback has run

	members []Member
	fields  []Field
}

func (b *Base) ecsBase() *Base { return b }

// RegisterMember declares one field. It must be called from DeclareMembers,
// in the same order with the same arguments for every instance of a type.
func (b *Base) RegisterMember(use memory.BufferUse, name string, comp memory.CompositionType, elem memory.ElementType, initial ...float64) {
	b.members = append(b.members, Member{
		Use:         use,
		Name:        name,
		Composition: comp,
		Element:     elem,
		Initial:     initial,
	})
}

// MoveStageTo schedules the instance in stage s from the next dispatch of
// that stage onwards. Discard is terminal.
func (b *Base) MoveStageTo(s Stage) {
	if b.stage == s || b.stage == Discard || b.info == nil {
		return
	}
	b.info.moveStage(b.sid, b.stage, s)
	b.stage = s
}

func (b *Base) World() *World     { return b.world }
func (b *Base) TypeID() TypeID    { return b.typ }
func (b *Base) SID() SID          { return b.sid }
func (b *Base) Entity() EntityUID { return b.entity }
func (b *Base) Stage() Stage      { return b.stage }

// Field returns the arena slot of the i-th declared member.
func (b *Base) Field(i int) Field { return b.fields[i] }

// FieldByName returns the arena slot of the named member.
func (b *Base) FieldByName(name string) (Field, bool) {
	for i, m := range b.members {
		if m.Name == name {
			return b.fields[i], true
		}
	}
	return Field{}, false
}

// Field is one instance's slot within a member accessor. It borrows the
// arena; it must not be used after its component is deleted.
type Field struct {
	acc   *memory.Accessor
	index int
	raw   []byte
}

func (f Field) Accessor() *memory.Accessor { return f.acc }
func (f Field) Index() int                 { return f.index }
func (f Field) Bytes() []byte              { return f.raw }

// Floats returns the slot as a zero-copy float32 slice. The member must use
// the Float element type.
func (f Field) Floats() []float32 { return f.acc.ElementFloat32(f.index) }

func (f Field) Scalar() float64        { return f.acc.GetScalar(f.index) }
func (f Field) SetScalar(v float64)    { f.acc.SetScalar(f.index, v) }
func (f Field) Vec3() mgl32.Vec3       { return f.acc.GetVec3(f.index) }
func (f Field) SetVec3(v mgl32.Vec3)   { f.acc.SetVec3(f.index, v) }
func (f Field) Vec4() mgl32.Vec4       { return f.acc.GetVec4(f.index) }
func (f Field) SetVec4(v mgl32.Vec4)   { f.acc.SetVec4(f.index, v) }
func (f Field) Mat4() mgl32.Mat4       { return f.acc.GetMat4(f.index) }
func (f Field) SetMat4(m mgl32.Mat4)   { f.acc.SetMat4(f.index, m) }
func (f Field) Affine() mgl32.Mat4     { return f.acc.GetAffine(f.index) }
func (f Field) SetAffine(m mgl32.Mat4) { f.acc.SetAffine(f.index, m) }
func (f Field) Set(values ...float64)  { f.acc.Set(f.index, values...) }
func (f Field) Get() []float64         { return f.acc.Get(f.index) }
func (f Field) MarkDirty()             { f.acc.MarkDirty() }
