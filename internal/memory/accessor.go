package memory

import (
	"encoding/binary"
	"fmt"
	"math"
	"unsafe"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/geom"
)

// Accessor is a typed, strided read/write window over a BufferView. It is the
// single translation point between logical values (scalars, vectors,
// matrices) and the bytes in the arena. Multi-byte components are stored
// little-endian, which is what every supported GPU backend expects.
type Accessor struct {
	view               *BufferView
	byteOffsetInView   int
	byteOffsetInBuffer int
	composition        CompositionType
	element            ElementType
	count              int
	byteStride         int
	elementBytes       int
	takenCount         int
}

func newAccessor(view *BufferView, byteOffsetInView int, comp CompositionType, elem ElementType, count, byteStride int) *Accessor {
	return &Accessor{
		view:               view,
		byteOffsetInView:   byteOffsetInView,
		byteOffsetInBuffer: view.byteOffset + byteOffsetInView,
		composition:        comp,
		element:            elem,
		count:              count,
		byteStride:         byteStride,
		elementBytes:       comp.NumComponents() * elem.ByteSize(),
	}
}

func (a *Accessor) raw() []byte { return a.view.buffer.raw }

func (a *Accessor) elementStart(i int) int { return a.byteOffsetInBuffer + i*a.byteStride }

// ElementBytes returns the bytes of element i. The slice aliases the arena.
func (a *Accessor) ElementBytes(i int) []byte {
	if i < 0 || i >= a.count {
		panic(fmt.Sprintf("memory: accessor index %d out of range [0, %d)", i, a.count))
	}
	start := a.elementStart(i)
	end := start + a.elementBytes
	return a.raw()[start:end:end]
}

// ElementFloat32 returns element i as a zero-copy float32 slice.
func (a *Accessor) ElementFloat32(i int) []float32 {
	if a.element != Float {
		panic(fmt.Sprintf("memory: float32 view over %s accessor", a.element))
	}
	return float32s(a.ElementBytes(i))
}

// TakeOne hands out the next untouched element's bytes, typically to back the
// fields of one component instance. Taking more than Count elements is a
// programming error.
func (a *Accessor) TakeOne() []byte {
	if a.takenCount >= a.count {
		panic(fmt.Sprintf("memory: accessor exhausted (%d of %d elements taken)", a.takenCount, a.count))
	}
	b := a.ElementBytes(a.takenCount)
	a.takenCount++
	return b
}

// TakeOneFloat32 is TakeOne for Float accessors, returning a typed slice.
func (a *Accessor) TakeOneFloat32() []float32 {
	if a.element != Float {
		panic(fmt.Sprintf("memory: float32 view over %s accessor", a.element))
	}
	return float32s(a.TakeOne())
}

// Get decodes element i into float64 components.
func (a *Accessor) Get(i int) []float64 {
	out := make([]float64, a.composition.NumComponents())
	a.GetInto(i, out)
	return out
}

// GetInto decodes element i into dst, which must hold at least
// NumComponents values.
func (a *Accessor) GetInto(i int, dst []float64) {
	b := a.ElementBytes(i)
	size := a.element.ByteSize()
	n := min(len(dst), a.composition.NumComponents())
	for c := 0; c < n; c++ {
		dst[c] = readComponent(b[c*size:], a.element)
	}
}

// Set encodes values into element i. Extra values are ignored; missing ones
// leave the existing components untouched.
func (a *Accessor) Set(i int, values ...float64) {
	b := a.ElementBytes(i)
	size := a.element.ByteSize()
	n := min(len(values), a.composition.NumComponents())
	for c := 0; c < n; c++ {
		writeComponent(b[c*size:], a.element, values[c])
	}
	a.view.buffer.version++
}

func (a *Accessor) component(i, c int) float64 {
	b := a.ElementBytes(i)
	return readComponent(b[c*a.element.ByteSize():], a.element)
}

// GetScalar returns the first component of element i.
func (a *Accessor) GetScalar(i int) float64 { return a.component(i, 0) }

// SetScalar writes the first component of element i.
func (a *Accessor) SetScalar(i int, v float64) { a.Set(i, v) }

// GetVec2 returns element i as a 2-vector.
func (a *Accessor) GetVec2(i int) mgl32.Vec2 {
	var v mgl32.Vec2
	for c := range v {
		v[c] = float32(a.component(i, c))
	}
	return v
}

// GetVec3 returns element i as a 3-vector.
func (a *Accessor) GetVec3(i int) mgl32.Vec3 {
	var v mgl32.Vec3
	for c := range v {
		v[c] = float32(a.component(i, c))
	}
	return v
}

// GetVec4 returns element i as a 4-vector.
func (a *Accessor) GetVec4(i int) mgl32.Vec4 {
	var v mgl32.Vec4
	for c := range v {
		v[c] = float32(a.component(i, c))
	}
	return v
}

// SetVec2 writes a 2-vector into element i.
func (a *Accessor) SetVec2(i int, v mgl32.Vec2) { a.Set(i, float64(v[0]), float64(v[1])) }

// SetVec3 writes a 3-vector into element i.
func (a *Accessor) SetVec3(i int, v mgl32.Vec3) {
	a.Set(i, float64(v[0]), float64(v[1]), float64(v[2]))
}

// SetVec4 writes a 4-vector into element i.
func (a *Accessor) SetVec4(i int, v mgl32.Vec4) {
	a.Set(i, float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3]))
}

// GetMat3 returns element i as a column-major 3x3 matrix.
func (a *Accessor) GetMat3(i int) mgl32.Mat3 {
	var m mgl32.Mat3
	for c := range m {
		m[c] = float32(a.component(i, c))
	}
	return m
}

// SetMat3 writes a column-major 3x3 matrix into element i.
func (a *Accessor) SetMat3(i int, m mgl32.Mat3) {
	values := make([]float64, len(m))
	for c, x := range m {
		values[c] = float64(x)
	}
	a.Set(i, values...)
}

// GetMat4 returns element i as a column-major 4x4 matrix.
func (a *Accessor) GetMat4(i int) mgl32.Mat4 {
	var m mgl32.Mat4
	for c := range m {
		m[c] = float32(a.component(i, c))
	}
	return m
}

// SetMat4 writes a column-major 4x4 matrix into element i.
func (a *Accessor) SetMat4(i int, m mgl32.Mat4) {
	values := make([]float64, len(m))
	for c, x := range m {
		values[c] = float64(x)
	}
	a.Set(i, values...)
}

// GetAffine decodes a Mat3x4 element into a 4x4 matrix with bottom row
// (0, 0, 0, 1).
func (a *Accessor) GetAffine(i int) mgl32.Mat4 {
	var rows [12]float32
	for c := range rows {
		rows[c] = float32(a.component(i, c))
	}
	return geom.UnpackAffine(rows)
}

// SetAffine encodes the top three rows of m into a Mat3x4 element.
func (a *Accessor) SetAffine(i int, m mgl32.Mat4) {
	rows := geom.PackAffine(m)
	values := make([]float64, len(rows))
	for c, x := range rows {
		values[c] = float64(x)
	}
	a.Set(i, values...)
}

// ContiguousView returns all elements as one byte slice. Only valid for
// tightly packed (SoA) data.
func (a *Accessor) ContiguousView() ([]byte, error) {
	if a.view.isAoS || a.byteStride != a.elementBytes {
		return nil, fmt.Errorf("%w: stride %d, element %d bytes", ErrNotContiguous, a.byteStride, a.elementBytes)
	}
	start := a.byteOffsetInBuffer
	end := start + a.count*a.elementBytes
	return a.raw()[start:end:end], nil
}

// ContiguousFloat32 is ContiguousView for Float accessors.
func (a *Accessor) ContiguousFloat32() ([]float32, error) {
	if a.element != Float {
		return nil, fmt.Errorf("%w: want FLOAT, have %s", ErrElementType, a.element)
	}
	b, err := a.ContiguousView()
	if err != nil {
		return nil, err
	}
	return float32s(b), nil
}

// MarkDirty records a mutation made through a borrowed element slice.
func (a *Accessor) MarkDirty() { a.view.buffer.version++ }

func (a *Accessor) BufferView() *BufferView      { return a.view }
func (a *Accessor) Buffer() *Buffer              { return a.view.buffer }
func (a *Accessor) Composition() CompositionType { return a.composition }
func (a *Accessor) Element() ElementType         { return a.element }
func (a *Accessor) Count() int                   { return a.count }
func (a *Accessor) ByteStride() int              { return a.byteStride }
func (a *Accessor) ElementByteLength() int       { return a.elementBytes }
func (a *Accessor) ByteOffsetInBuffer() int      { return a.byteOffsetInBuffer }
func (a *Accessor) ByteOffsetInBufferView() int  { return a.byteOffsetInView }
func (a *Accessor) TakenCount() int              { return a.takenCount }
func (a *Accessor) ByteLength() int              { return a.count * a.elementBytes }

func readComponent(b []byte, elem ElementType) float64 {
	switch elem {
	case Byte:
		return float64(int8(b[0]))
	case UnsignedByte:
		return float64(b[0])
	case Short:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case UnsignedShort:
		return float64(binary.LittleEndian.Uint16(b))
	case Int:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case UnsignedInt:
		return float64(binary.LittleEndian.Uint32(b))
	case Float:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Double:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		panic(fmt.Sprintf("memory: unknown element type %d", uint32(elem)))
	}
}

func writeComponent(b []byte, elem ElementType, v float64) {
	switch elem {
	case Byte:
		b[0] = byte(int8(v))
	case UnsignedByte:
		b[0] = uint8(v)
	case Short:
		binary.LittleEndian.PutUint16(b, uint16(int16(v)))
	case UnsignedShort:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case Int:
		binary.LittleEndian.PutUint32(b, uint32(int32(v)))
	case UnsignedInt:
		binary.LittleEndian.PutUint32(b, uint32(v))
	case Float:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Double:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		panic(fmt.Sprintf("memory: unknown element type %d", uint32(elem)))
	}
}

// float32s reinterprets b as float32s. b must start at a 4-byte aligned
// address, which every accessor offset guarantees.
func float32s(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), len(b)/4)
}
