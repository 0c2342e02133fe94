// Package gputest provides an in-memory gpu.Backend that records every call
// and keeps copies of uploaded data, so GPU-facing code can be tested
// without a GL context.
package gputest

import (
	"fmt"
	"strings"

	"github.com/irfansharif/garnet/internal/gpu"
)

// Texture is the recorded state of a texture.
type Texture struct {
	Desc gpu.TextureDesc
	Data []byte
}

// Program is the recorded state of a linked program.
type Program struct {
	Vertex, Fragment string
	Varyings         []string
	Blocks           map[string]uint32
	Ints             map[string][]int32
	Vec4s            map[string][4]float32
	Mat4s            map[string][16]float32
}

// Draw is one recorded draw call.
type Draw struct {
	Mode      gpu.PrimitiveMode
	Count     int32
	Instances int32
	Indexed   bool
	Program   gpu.Handle
	VAO       gpu.Handle
	Feedback  bool // issued while transform feedback was active
}

// Recorder implements gpu.Backend in memory.
type Recorder struct {
	Caps  gpu.Capabilities
	Calls []string

	Buffers      map[gpu.Handle][]byte
	Textures     map[gpu.Handle]*Texture
	Programs     map[gpu.Handle]*Program
	VertexArrays map[gpu.Handle][]gpu.VertexAttribute
	Feedbacks    map[gpu.Handle]gpu.Handle // tf object → capture buffer
	Bases        map[string]gpu.Handle     // "target/index" → buffer
	Units        map[uint32]gpu.Handle     // texture unit → texture
	Draws        []Draw

	Program     gpu.Handle
	VertexArray gpu.Handle
	Framebuffer gpu.Handle
	Rect        [4]int32 // last viewport

	// FailShader makes CreateProgram fail with a compile error for any
	// source containing this substring.
	FailShader string

	next           gpu.Handle
	activeFeedback gpu.Handle
}

var _ gpu.Backend = (*Recorder)(nil)

// FullCapabilities reports a backend that supports everything.
func FullCapabilities() gpu.Capabilities {
	return gpu.Capabilities{
		FloatTexture:        true,
		HalfFloatTexture:    true,
		UniformBuffer:       true,
		TransformFeedback:   true,
		MaxUniformBlockSize: 16 * 1024,
		MaxTextureSize:      4096,
	}
}

// New returns a recorder reporting caps.
func New(caps gpu.Capabilities) *Recorder {
	return &Recorder{
		Caps:         caps,
		Buffers:      make(map[gpu.Handle][]byte),
		Textures:     make(map[gpu.Handle]*Texture),
		Programs:     make(map[gpu.Handle]*Program),
		VertexArrays: make(map[gpu.Handle][]gpu.VertexAttribute),
		Feedbacks:    make(map[gpu.Handle]gpu.Handle),
		Bases:        make(map[string]gpu.Handle),
		Units:        make(map[uint32]gpu.Handle),
	}
}

func (r *Recorder) record(format string, args ...any) {
	r.Calls = append(r.Calls, fmt.Sprintf(format, args...))
}

func (r *Recorder) handle() gpu.Handle {
	r.next++
	return r.next
}

// CallCount returns how many recorded calls start with prefix.
func (r *Recorder) CallCount(prefix string) int {
	n := 0
	for _, c := range r.Calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

// Base returns the buffer bound to target at index.
func (r *Recorder) Base(target gpu.BufferTarget, index uint32) gpu.Handle {
	return r.Bases[fmt.Sprintf("%s/%d", target, index)]
}

func (r *Recorder) Capabilities() gpu.Capabilities { return r.Caps }

func (r *Recorder) CreateBuffer(target gpu.BufferTarget, size int, data []byte, usage gpu.Usage) (gpu.Handle, error) {
	if len(data) > size {
		return 0, fmt.Errorf("gputest: %d bytes do not fit buffer of %d", len(data), size)
	}
	h := r.handle()
	buf := make([]byte, size)
	copy(buf, data)
	r.Buffers[h] = buf
	r.record("CreateBuffer %s %d", target, size)
	return h, nil
}

func (r *Recorder) UpdateBuffer(target gpu.BufferTarget, buffer gpu.Handle, offset int, data []byte) error {
	buf, ok := r.Buffers[buffer]
	if !ok {
		return fmt.Errorf("gputest: unknown buffer %d", buffer)
	}
	if offset+len(data) > len(buf) {
		return fmt.Errorf("gputest: update [%d, %d) overflows buffer of %d", offset, offset+len(data), len(buf))
	}
	copy(buf[offset:], data)
	r.record("UpdateBuffer %s %d %d", target, buffer, len(data))
	return nil
}

func (r *Recorder) BindBuffer(target gpu.BufferTarget, buffer gpu.Handle) {
	r.record("BindBuffer %s %d", target, buffer)
}

func (r *Recorder) BindBufferBase(target gpu.BufferTarget, index uint32, buffer gpu.Handle) {
	r.Bases[fmt.Sprintf("%s/%d", target, index)] = buffer
	r.record("BindBufferBase %s %d %d", target, index, buffer)
}

func (r *Recorder) DeleteBuffer(buffer gpu.Handle) {
	delete(r.Buffers, buffer)
	r.record("DeleteBuffer %d", buffer)
}

func (r *Recorder) CreateVertexArray() (gpu.Handle, error) {
	h := r.handle()
	r.VertexArrays[h] = nil
	r.record("CreateVertexArray %d", h)
	return h, nil
}

func (r *Recorder) BindVertexArray(vao gpu.Handle) {
	r.VertexArray = vao
	r.record("BindVertexArray %d", vao)
}

func (r *Recorder) VertexAttribPointer(attr gpu.VertexAttribute) {
	r.VertexArrays[r.VertexArray] = append(r.VertexArrays[r.VertexArray], attr)
	r.record("VertexAttribPointer %d", attr.Location)
}

func (r *Recorder) DeleteVertexArray(vao gpu.Handle) {
	delete(r.VertexArrays, vao)
	r.record("DeleteVertexArray %d", vao)
}

func (r *Recorder) CreateTexture(desc gpu.TextureDesc, data []byte) (gpu.Handle, error) {
	size := desc.Width * desc.Height * desc.Format.TexelBytes()
	if len(data) > size {
		return 0, fmt.Errorf("gputest: %d bytes do not fit %dx%d %s texture", len(data), desc.Width, desc.Height, desc.Format)
	}
	h := r.handle()
	tex := &Texture{Desc: desc, Data: make([]byte, size)}
	copy(tex.Data, data)
	r.Textures[h] = tex
	r.record("CreateTexture %dx%d %s", desc.Width, desc.Height, desc.Format)
	return h, nil
}

func (r *Recorder) UpdateTexture(texture gpu.Handle, desc gpu.TextureDesc, data []byte) error {
	tex, ok := r.Textures[texture]
	if !ok {
		return fmt.Errorf("gputest: unknown texture %d", texture)
	}
	if len(data) > len(tex.Data) {
		return fmt.Errorf("gputest: %d bytes overflow texture of %d", len(data), len(tex.Data))
	}
	copy(tex.Data, data)
	r.record("UpdateTexture %d %d", texture, len(data))
	return nil
}

func (r *Recorder) BindTexture(unit uint32, texture gpu.Handle) {
	r.Units[unit] = texture
	r.record("BindTexture %d %d", unit, texture)
}

func (r *Recorder) DeleteTexture(texture gpu.Handle) {
	delete(r.Textures, texture)
	r.record("DeleteTexture %d", texture)
}

func (r *Recorder) CreateProgram(vertexSource, fragmentSource string, feedbackVaryings []string) (gpu.Handle, error) {
	if r.FailShader != "" {
		if strings.Contains(vertexSource, r.FailShader) {
			return 0, &gpu.ShaderError{Stage: "vertex", Log: "0:1: forced failure", Source: vertexSource}
		}
		if strings.Contains(fragmentSource, r.FailShader) {
			return 0, &gpu.ShaderError{Stage: "fragment", Log: "0:1: forced failure", Source: fragmentSource}
		}
	}
	h := r.handle()
	r.Programs[h] = &Program{
		Vertex:   vertexSource,
		Fragment: fragmentSource,
		Varyings: append([]string(nil), feedbackVaryings...),
		Blocks:   make(map[string]uint32),
		Ints:     make(map[string][]int32),
		Vec4s:    make(map[string][4]float32),
		Mat4s:    make(map[string][16]float32),
	}
	r.record("CreateProgram %d", h)
	return h, nil
}

func (r *Recorder) UseProgram(program gpu.Handle) {
	r.Program = program
	r.record("UseProgram %d", program)
}

func (r *Recorder) UniformBlockBinding(program gpu.Handle, block string, binding uint32) error {
	p, ok := r.Programs[program]
	if !ok {
		return fmt.Errorf("gputest: unknown program %d", program)
	}
	if !strings.Contains(p.Vertex, block) && !strings.Contains(p.Fragment, block) {
		return fmt.Errorf("gputest: program %d has no uniform block %q", program, block)
	}
	p.Blocks[block] = binding
	r.record("UniformBlockBinding %d %s %d", program, block, binding)
	return nil
}

func (r *Recorder) SetUniformInt(program gpu.Handle, name string, v int32) {
	if p, ok := r.Programs[program]; ok {
		p.Ints[name] = []int32{v}
	}
	r.record("SetUniformInt %s %d", name, v)
}

func (r *Recorder) SetUniformInts(program gpu.Handle, name string, v []int32) {
	if p, ok := r.Programs[program]; ok {
		p.Ints[name] = append([]int32(nil), v...)
	}
	r.record("SetUniformInts %s %d", name, len(v))
}

func (r *Recorder) SetUniformVec4(program gpu.Handle, name string, v [4]float32) {
	if p, ok := r.Programs[program]; ok {
		p.Vec4s[name] = v
	}
	r.record("SetUniformVec4 %s", name)
}

func (r *Recorder) SetUniformMat4(program gpu.Handle, name string, m [16]float32) {
	if p, ok := r.Programs[program]; ok {
		p.Mat4s[name] = m
	}
	r.record("SetUniformMat4 %s", name)
}

func (r *Recorder) DeleteProgram(program gpu.Handle) {
	delete(r.Programs, program)
	r.record("DeleteProgram %d", program)
}

func (r *Recorder) BindFramebuffer(framebuffer gpu.Handle) {
	r.Framebuffer = framebuffer
	r.record("BindFramebuffer %d", framebuffer)
}

func (r *Recorder) Viewport(x, y, width, height int32) {
	r.Rect = [4]int32{x, y, width, height}
	r.record("Viewport %d %d %d %d", x, y, width, height)
}

func (r *Recorder) Clear(color *[4]float32, depth bool) {
	r.record("Clear color=%t depth=%t", color != nil, depth)
}

func (r *Recorder) DrawArraysInstanced(mode gpu.PrimitiveMode, first, count, instances int32) {
	r.Draws = append(r.Draws, Draw{
		Mode: mode, Count: count, Instances: instances,
		Program: r.Program, VAO: r.VertexArray, Feedback: r.activeFeedback != 0,
	})
	r.record("DrawArraysInstanced %d %d %d", first, count, instances)
}

func (r *Recorder) DrawElementsInstanced(mode gpu.PrimitiveMode, count int32, indexType uint32, offset int, instances int32) {
	r.Draws = append(r.Draws, Draw{
		Mode: mode, Count: count, Instances: instances, Indexed: true,
		Program: r.Program, VAO: r.VertexArray, Feedback: r.activeFeedback != 0,
	})
	r.record("DrawElementsInstanced %d %d", count, instances)
}

func (r *Recorder) CreateTransformFeedback() (gpu.Handle, error) {
	h := r.handle()
	r.Feedbacks[h] = 0
	r.record("CreateTransformFeedback %d", h)
	return h, nil
}

func (r *Recorder) BeginTransformFeedback(tf gpu.Handle, buffer gpu.Handle, mode gpu.PrimitiveMode) {
	r.Feedbacks[tf] = buffer
	r.activeFeedback = tf
	r.record("BeginTransformFeedback %d %d", tf, buffer)
}

func (r *Recorder) EndTransformFeedback() {
	r.activeFeedback = 0
	r.record("EndTransformFeedback")
}

func (r *Recorder) DrawTransformFeedback(mode gpu.PrimitiveMode, tf gpu.Handle) {
	r.Draws = append(r.Draws, Draw{Mode: mode, Program: r.Program, VAO: r.VertexArray})
	r.record("DrawTransformFeedback %d", tf)
}

func (r *Recorder) DeleteTransformFeedback(tf gpu.Handle) {
	delete(r.Feedbacks, tf)
	r.record("DeleteTransformFeedback %d", tf)
}
