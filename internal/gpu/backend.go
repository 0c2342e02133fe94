// Package gpu defines the GPU backend the engine core consumes. Buffers,
// textures, programs and transform-feedback objects are opaque handles; the
// core only pre-formats bytes to the backend's alignment rules (4-component
// texels, column-major 16-element matrices) and hands them over.
package gpu

// Handle is an opaque GPU object name. The zero handle means "none" (for
// framebuffers: the default framebuffer).
type Handle uint32

// BufferTarget selects the binding point of a buffer.
type BufferTarget int

const (
	ArrayBuffer BufferTarget = iota
	ElementArrayBuffer
	UniformBuffer
	TransformFeedbackBuffer
)

func (t BufferTarget) String() string {
	switch t {
	case ArrayBuffer:
		return "array"
	case ElementArrayBuffer:
		return "element-array"
	case UniformBuffer:
		return "uniform"
	case TransformFeedbackBuffer:
		return "transform-feedback"
	default:
		return "unknown"
	}
}

// Usage hints how often a buffer's contents change.
type Usage int

const (
	StaticDraw Usage = iota
	DynamicDraw
	StreamDraw
)

// PrimitiveMode values match the GL enums.
type PrimitiveMode uint32

const (
	Points        PrimitiveMode = 0x0000
	Lines         PrimitiveMode = 0x0001
	LineStrip     PrimitiveMode = 0x0003
	Triangles     PrimitiveMode = 0x0004
	TriangleStrip PrimitiveMode = 0x0005
	TriangleFan   PrimitiveMode = 0x0006
)

// TextureFormat is the internal format of a float data texture.
type TextureFormat int

const (
	RGBA32F TextureFormat = iota
	RGBA16F
)

func (f TextureFormat) String() string {
	if f == RGBA16F {
		return "RGBA16F"
	}
	return "RGBA32F"
}

// TexelBytes returns the byte size of one texel in this format.
func (f TextureFormat) TexelBytes() int {
	if f == RGBA16F {
		return 8
	}
	return 16
}

// TextureDesc describes a 2D data texture.
type TextureDesc struct {
	Width, Height int
	Format        TextureFormat
}

// VertexAttribute describes one vertex attribute binding of the currently
// bound vertex array. Type is the GL component-type enum.
type VertexAttribute struct {
	Location   uint32
	Buffer     Handle
	Size       int32
	Type       uint32
	Normalized bool
	Stride     int32
	Offset     int
	Divisor    uint32
}

// Capabilities reports what the backend supports.
type Capabilities struct {
	FloatTexture        bool // RGBA32F sampling
	HalfFloatTexture    bool // RGBA16F sampling
	UniformBuffer       bool
	TransformFeedback   bool
	MaxUniformBlockSize int // bytes
	MaxTextureSize      int // texels per edge
}

// Backend is the set of GPU operations the core relies on.
type Backend interface {
	Capabilities() Capabilities

	// CreateBuffer allocates size bytes and uploads data (which may be nil
	// or shorter than size) at offset 0.
	CreateBuffer(target BufferTarget, size int, data []byte, usage Usage) (Handle, error)
	UpdateBuffer(target BufferTarget, buffer Handle, offset int, data []byte) error
	BindBuffer(target BufferTarget, buffer Handle)
	BindBufferBase(target BufferTarget, index uint32, buffer Handle)
	DeleteBuffer(buffer Handle)

	CreateVertexArray() (Handle, error)
	BindVertexArray(vao Handle)
	VertexAttribPointer(attr VertexAttribute)
	DeleteVertexArray(vao Handle)

	CreateTexture(desc TextureDesc, data []byte) (Handle, error)
	UpdateTexture(texture Handle, desc TextureDesc, data []byte) error
	BindTexture(unit uint32, texture Handle)
	DeleteTexture(texture Handle)

	// CreateProgram compiles and links a program. Failures are returned as
	// *ShaderError. Non-empty feedbackVaryings are captured interleaved.
	CreateProgram(vertexSource, fragmentSource string, feedbackVaryings []string) (Handle, error)
	UseProgram(program Handle)
	UniformBlockBinding(program Handle, block string, binding uint32) error
	SetUniformInt(program Handle, name string, v int32)
	SetUniformInts(program Handle, name string, v []int32)
	SetUniformVec4(program Handle, name string, v [4]float32)
	SetUniformMat4(program Handle, name string, m [16]float32)
	DeleteProgram(program Handle)

	BindFramebuffer(framebuffer Handle)
	Viewport(x, y, width, height int32)
	Clear(color *[4]float32, depth bool)

	DrawArraysInstanced(mode PrimitiveMode, first, count, instances int32)
	DrawElementsInstanced(mode PrimitiveMode, count int32, indexType uint32, offset int, instances int32)

	CreateTransformFeedback() (Handle, error)
	// BeginTransformFeedback binds tf with buffer as its capture target,
	// disables rasterisation and starts capturing primitives of mode.
	BeginTransformFeedback(tf Handle, buffer Handle, mode PrimitiveMode)
	EndTransformFeedback()
	DrawTransformFeedback(mode PrimitiveMode, tf Handle)
	DeleteTransformFeedback(tf Handle)
}
