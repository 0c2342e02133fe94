package memory

import "fmt"

// CompositionType is the logical shape of one accessor element.
type CompositionType int

const (
	Scalar CompositionType = iota
	Vec2
	Vec3
	Vec4
	Mat3
	Mat4
	// Mat3x4 holds the top three rows of an affine 4x4 matrix as three
	// 4-component rows. The bottom row is implied to be (0, 0, 0, 1).
	Mat3x4
)

var compositionTypes = []CompositionType{Scalar, Vec2, Vec3, Vec4, Mat3, Mat4, Mat3x4}

// NumComponents returns the number of scalar components in one element.
func (c CompositionType) NumComponents() int {
	switch c {
	case Scalar:
		return 1
	case Vec2:
		return 2
	case Vec3:
		return 3
	case Vec4:
		return 4
	case Mat3:
		return 9
	case Mat4:
		return 16
	case Mat3x4:
		return 12
	default:
		return 0
	}
}

func (c CompositionType) String() string {
	switch c {
	case Scalar:
		return "SCALAR"
	case Vec2:
		return "VEC2"
	case Vec3:
		return "VEC3"
	case Vec4:
		return "VEC4"
	case Mat3:
		return "MAT3"
	case Mat4:
		return "MAT4"
	case Mat3x4:
		return "MAT3x4"
	default:
		return "UNKNOWN"
	}
}

// CompositionTypeFromString parses the glTF-style accessor type names
// ("SCALAR", "VEC3", "MAT4", ...).
func CompositionTypeFromString(s string) (CompositionType, error) {
	for _, c := range compositionTypes {
		if c.String() == s {
			return c, nil
		}
	}
	return 0, fmt.Errorf("memory: unknown composition type %q", s)
}

// ElementType is the numeric type of each scalar component. Values match
// the GL enums so they can be handed to the backend unchanged.
type ElementType uint32

const (
	Byte          ElementType = 5120
	UnsignedByte  ElementType = 5121
	Short         ElementType = 5122
	UnsignedShort ElementType = 5123
	Int           ElementType = 5124
	UnsignedInt   ElementType = 5125
	Float         ElementType = 5126
	Double        ElementType = 5130
)

var elementTypes = []ElementType{Byte, UnsignedByte, Short, UnsignedShort, Int, UnsignedInt, Float, Double}

// ByteSize returns the width of one component in bytes.
func (e ElementType) ByteSize() int {
	switch e {
	case Byte, UnsignedByte:
		return 1
	case Short, UnsignedShort:
		return 2
	case Int, UnsignedInt, Float:
		return 4
	case Double:
		return 8
	default:
		return 0
	}
}

// alignment returns the byte alignment an element's offset must satisfy.
// Everything is at least 4-byte aligned; 8-byte types need 8.
func (e ElementType) alignment() int {
	if e.ByteSize() == 8 {
		return 8
	}
	return 4
}

func (e ElementType) String() string {
	switch e {
	case Byte:
		return "BYTE"
	case UnsignedByte:
		return "UNSIGNED_BYTE"
	case Short:
		return "SHORT"
	case UnsignedShort:
		return "UNSIGNED_SHORT"
	case Int:
		return "INT"
	case UnsignedInt:
		return "UNSIGNED_INT"
	case Float:
		return "FLOAT"
	case Double:
		return "DOUBLE"
	default:
		return fmt.Sprintf("ElementType(%d)", uint32(e))
	}
}

// ElementTypeFromGL maps a GL component-type enum onto an ElementType.
func ElementTypeFromGL(code uint32) (ElementType, error) {
	for _, e := range elementTypes {
		if uint32(e) == code {
			return e, nil
		}
	}
	return 0, fmt.Errorf("memory: unknown element type %d", code)
}

// BufferUse tags the allocation purpose of one of the four arenas.
type BufferUse int

const (
	GPUInstanceData BufferUse = iota // per-instance data exposed to shaders
	GPUVertexData                    // vertex attributes and indices
	UBOGeneric                       // small uniform-block data
	CPUGeneric                       // CPU-only scratch data
)

// BufferUses lists every buffer use in a stable order.
var BufferUses = []BufferUse{GPUInstanceData, GPUVertexData, UBOGeneric, CPUGeneric}

func (u BufferUse) String() string {
	switch u {
	case GPUInstanceData:
		return "gpu-instance"
	case GPUVertexData:
		return "gpu-vertex"
	case UBOGeneric:
		return "ubo-generic"
	case CPUGeneric:
		return "cpu-generic"
	default:
		return "unknown"
	}
}

// alignUp rounds n up to a multiple of align (a power of two).
func alignUp(n, align int) int {
	return (n + align - 1) &^ (align - 1)
}
