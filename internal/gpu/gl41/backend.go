// Package gl41 implements gpu.Backend on an OpenGL 4.1 core context. All
// methods must be called on the thread that owns the context.
package gl41

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/irfansharif/garnet/internal/gpu"
)

var glLogger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GARNET_DEBUG_RENDER") == "1" {
		glLogger = log.New(os.Stdout, "[gl41] ", log.Ltime|log.Lmsgprefix)
	}
}

// Backend is the OpenGL 4.1 core backend.
type Backend struct {
	caps gpu.Capabilities
}

var _ gpu.Backend = (*Backend)(nil)

// New queries the current context's limits. gl.Init must already have been
// called with the context current.
func New() *Backend {
	var maxBlock, maxTex int32
	gl.GetIntegerv(gl.MAX_UNIFORM_BLOCK_SIZE, &maxBlock)
	gl.GetIntegerv(gl.MAX_TEXTURE_SIZE, &maxTex)

	b := &Backend{caps: gpu.Capabilities{
		FloatTexture:        true,
		HalfFloatTexture:    true,
		UniformBuffer:       true,
		TransformFeedback:   true,
		MaxUniformBlockSize: int(maxBlock),
		MaxTextureSize:      int(maxTex),
	}}
	glLogger.Printf("%s, max uniform block %d bytes, max texture %d",
		gl.GoStr(gl.GetString(gl.VERSION)), maxBlock, maxTex)
	return b
}

func (b *Backend) Capabilities() gpu.Capabilities { return b.caps }

func target(t gpu.BufferTarget) uint32 {
	switch t {
	case gpu.ElementArrayBuffer:
		return gl.ELEMENT_ARRAY_BUFFER
	case gpu.UniformBuffer:
		return gl.UNIFORM_BUFFER
	case gpu.TransformFeedbackBuffer:
		return gl.TRANSFORM_FEEDBACK_BUFFER
	default:
		return gl.ARRAY_BUFFER
	}
}

func usage(u gpu.Usage) uint32 {
	switch u {
	case gpu.DynamicDraw:
		return gl.DYNAMIC_DRAW
	case gpu.StreamDraw:
		return gl.STREAM_DRAW
	default:
		return gl.STATIC_DRAW
	}
}

// ptr returns a pointer to the first byte of data, or nil for empty data.
func ptr(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	return gl.Ptr(&data[0])
}

func (b *Backend) CreateBuffer(t gpu.BufferTarget, size int, data []byte, u gpu.Usage) (gpu.Handle, error) {
	if len(data) > size {
		return 0, fmt.Errorf("gl41: %d bytes do not fit buffer of %d", len(data), size)
	}
	var h uint32
	gl.GenBuffers(1, &h)
	if h == 0 {
		return 0, fmt.Errorf("gl41: glGenBuffers returned 0")
	}
	gl.BindBuffer(target(t), h)
	gl.BufferData(target(t), size, nil, usage(u))
	if len(data) > 0 {
		gl.BufferSubData(target(t), 0, len(data), ptr(data))
	}
	return gpu.Handle(h), nil
}

func (b *Backend) UpdateBuffer(t gpu.BufferTarget, buffer gpu.Handle, offset int, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	gl.BindBuffer(target(t), uint32(buffer))
	gl.BufferSubData(target(t), offset, len(data), ptr(data))
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("gl41: buffer %d update [%d, %d): GL error 0x%x", buffer, offset, offset+len(data), e)
	}
	return nil
}

func (b *Backend) BindBuffer(t gpu.BufferTarget, buffer gpu.Handle) {
	gl.BindBuffer(target(t), uint32(buffer))
}

func (b *Backend) BindBufferBase(t gpu.BufferTarget, index uint32, buffer gpu.Handle) {
	gl.BindBufferBase(target(t), index, uint32(buffer))
}

func (b *Backend) DeleteBuffer(buffer gpu.Handle) {
	h := uint32(buffer)
	gl.DeleteBuffers(1, &h)
}

func (b *Backend) CreateVertexArray() (gpu.Handle, error) {
	var h uint32
	gl.GenVertexArrays(1, &h)
	if h == 0 {
		return 0, fmt.Errorf("gl41: glGenVertexArrays returned 0")
	}
	return gpu.Handle(h), nil
}

func (b *Backend) BindVertexArray(vao gpu.Handle) { gl.BindVertexArray(uint32(vao)) }

func (b *Backend) VertexAttribPointer(attr gpu.VertexAttribute) {
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(attr.Buffer))
	gl.EnableVertexAttribArray(attr.Location)
	switch attr.Type {
	case gl.FLOAT, gl.HALF_FLOAT, gl.DOUBLE:
		gl.VertexAttribPointer(attr.Location, attr.Size, attr.Type, attr.Normalized, attr.Stride, gl.PtrOffset(attr.Offset))
	default:
		if attr.Normalized {
			gl.VertexAttribPointer(attr.Location, attr.Size, attr.Type, true, attr.Stride, gl.PtrOffset(attr.Offset))
		} else {
			gl.VertexAttribIPointer(attr.Location, attr.Size, attr.Type, attr.Stride, gl.PtrOffset(attr.Offset))
		}
	}
	gl.VertexAttribDivisor(attr.Location, attr.Divisor)
}

func (b *Backend) DeleteVertexArray(vao gpu.Handle) {
	h := uint32(vao)
	gl.DeleteVertexArrays(1, &h)
}

func textureFormat(f gpu.TextureFormat) (internal int32, xtype uint32) {
	if f == gpu.RGBA16F {
		return gl.RGBA16F, gl.HALF_FLOAT
	}
	return gl.RGBA32F, gl.FLOAT
}

func (b *Backend) CreateTexture(desc gpu.TextureDesc, data []byte) (gpu.Handle, error) {
	if b.caps.MaxTextureSize > 0 && (desc.Width > b.caps.MaxTextureSize || desc.Height > b.caps.MaxTextureSize) {
		return 0, fmt.Errorf("gl41: texture %dx%d exceeds max size %d", desc.Width, desc.Height, b.caps.MaxTextureSize)
	}
	var h uint32
	gl.GenTextures(1, &h)
	gl.BindTexture(gl.TEXTURE_2D, h)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)

	internal, xtype := textureFormat(desc.Format)
	size := desc.Width * desc.Height * desc.Format.TexelBytes()
	if len(data) == size {
		gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, gl.RGBA, xtype, ptr(data))
	} else {
		gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, gl.RGBA, xtype, nil)
		if len(data) > 0 {
			if err := b.UpdateTexture(gpu.Handle(h), desc, data); err != nil {
				gl.DeleteTextures(1, &h)
				return 0, err
			}
		}
	}
	return gpu.Handle(h), nil
}

// UpdateTexture uploads data as whole rows starting at row 0. A trailing
// partial row is uploaded as a one-row sub-image.
func (b *Backend) UpdateTexture(texture gpu.Handle, desc gpu.TextureDesc, data []byte) error {
	rowBytes := desc.Width * desc.Format.TexelBytes()
	if len(data) > rowBytes*desc.Height {
		return fmt.Errorf("gl41: %d bytes overflow %dx%d texture", len(data), desc.Width, desc.Height)
	}
	_, xtype := textureFormat(desc.Format)
	gl.BindTexture(gl.TEXTURE_2D, uint32(texture))

	rows := len(data) / rowBytes
	if rows > 0 {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(desc.Width), int32(rows), gl.RGBA, xtype, ptr(data[:rows*rowBytes]))
	}
	if rest := data[rows*rowBytes:]; len(rest) > 0 {
		texels := len(rest) / desc.Format.TexelBytes()
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, int32(rows), int32(texels), 1, gl.RGBA, xtype, ptr(rest))
	}
	return nil
}

func (b *Backend) BindTexture(unit uint32, texture gpu.Handle) {
	gl.ActiveTexture(gl.TEXTURE0 + unit)
	gl.BindTexture(gl.TEXTURE_2D, uint32(texture))
}

func (b *Backend) DeleteTexture(texture gpu.Handle) {
	h := uint32(texture)
	gl.DeleteTextures(1, &h)
}

func (b *Backend) CreateProgram(vertexSource, fragmentSource string, feedbackVaryings []string) (gpu.Handle, error) {
	vs, err := compileShader(vertexSource, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)

	fs, err := compileShader(fragmentSource, gl.FRAGMENT_SHADER)
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	if len(feedbackVaryings) > 0 {
		names := make([]string, len(feedbackVaryings))
		for i, v := range feedbackVaryings {
			names[i] = v + "\x00"
		}
		cnames, free := gl.Strs(names...)
		gl.TransformFeedbackVaryings(program, int32(len(names)), cnames, gl.INTERLEAVED_ATTRIBS)
		free()
	}
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(logText))
		gl.DeleteProgram(program)
		return 0, &gpu.ShaderError{Stage: "link", Log: logText, Source: vertexSource}
	}
	return gpu.Handle(program), nil
}

func compileShader(source string, shaderType uint32) (uint32, error) {
	shader := gl.CreateShader(shaderType)
	csource, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csource, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		logText := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(logText))
		gl.DeleteShader(shader)

		stage := "vertex"
		if shaderType == gl.FRAGMENT_SHADER {
			stage = "fragment"
		}
		return 0, &gpu.ShaderError{Stage: stage, Log: logText, Source: source}
	}
	return shader, nil
}

func (b *Backend) UseProgram(program gpu.Handle) { gl.UseProgram(uint32(program)) }

func (b *Backend) UniformBlockBinding(program gpu.Handle, block string, binding uint32) error {
	index := gl.GetUniformBlockIndex(uint32(program), gl.Str(block+"\x00"))
	if index == gl.INVALID_INDEX {
		return fmt.Errorf("gl41: program %d has no uniform block %q", program, block)
	}
	gl.UniformBlockBinding(uint32(program), index, binding)
	return nil
}

func location(program gpu.Handle, name string) int32 {
	return gl.GetUniformLocation(uint32(program), gl.Str(name+"\x00"))
}

func (b *Backend) SetUniformInt(program gpu.Handle, name string, v int32) {
	gl.ProgramUniform1i(uint32(program), location(program, name), v)
}

func (b *Backend) SetUniformInts(program gpu.Handle, name string, v []int32) {
	if len(v) == 0 {
		return
	}
	gl.ProgramUniform1iv(uint32(program), location(program, name), int32(len(v)), &v[0])
}

func (b *Backend) SetUniformVec4(program gpu.Handle, name string, v [4]float32) {
	gl.ProgramUniform4fv(uint32(program), location(program, name), 1, &v[0])
}

func (b *Backend) SetUniformMat4(program gpu.Handle, name string, m [16]float32) {
	gl.ProgramUniformMatrix4fv(uint32(program), location(program, name), 1, false, &m[0])
}

func (b *Backend) DeleteProgram(program gpu.Handle) { gl.DeleteProgram(uint32(program)) }

func (b *Backend) BindFramebuffer(framebuffer gpu.Handle) {
	gl.BindFramebuffer(gl.FRAMEBUFFER, uint32(framebuffer))
}

func (b *Backend) Viewport(x, y, width, height int32) { gl.Viewport(x, y, width, height) }

func (b *Backend) Clear(color *[4]float32, depth bool) {
	var mask uint32
	if color != nil {
		gl.ClearColor(color[0], color[1], color[2], color[3])
		mask |= gl.COLOR_BUFFER_BIT
	}
	if depth {
		gl.Enable(gl.DEPTH_TEST)
		mask |= gl.DEPTH_BUFFER_BIT
	}
	if mask != 0 {
		gl.Clear(mask)
	}
}

func (b *Backend) DrawArraysInstanced(mode gpu.PrimitiveMode, first, count, instances int32) {
	gl.DrawArraysInstanced(uint32(mode), first, count, instances)
}

func (b *Backend) DrawElementsInstanced(mode gpu.PrimitiveMode, count int32, indexType uint32, offset int, instances int32) {
	gl.DrawElementsInstanced(uint32(mode), count, indexType, gl.PtrOffset(offset), instances)
}

func (b *Backend) CreateTransformFeedback() (gpu.Handle, error) {
	var h uint32
	gl.GenTransformFeedbacks(1, &h)
	if h == 0 {
		return 0, fmt.Errorf("gl41: glGenTransformFeedbacks returned 0")
	}
	return gpu.Handle(h), nil
}

func (b *Backend) BeginTransformFeedback(tf gpu.Handle, buffer gpu.Handle, mode gpu.PrimitiveMode) {
	gl.BindTransformFeedback(gl.TRANSFORM_FEEDBACK, uint32(tf))
	gl.BindBufferBase(gl.TRANSFORM_FEEDBACK_BUFFER, 0, uint32(buffer))
	gl.Enable(gl.RASTERIZER_DISCARD)
	gl.BeginTransformFeedback(uint32(mode))
}

func (b *Backend) EndTransformFeedback() {
	gl.EndTransformFeedback()
	gl.Disable(gl.RASTERIZER_DISCARD)
	gl.BindTransformFeedback(gl.TRANSFORM_FEEDBACK, 0)
}

func (b *Backend) DrawTransformFeedback(mode gpu.PrimitiveMode, tf gpu.Handle) {
	gl.DrawTransformFeedback(uint32(mode), uint32(tf))
}

func (b *Backend) DeleteTransformFeedback(tf gpu.Handle) {
	h := uint32(tf)
	gl.DeleteTransformFeedbacks(1, &h)
}
