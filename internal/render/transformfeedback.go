package render

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/memory"
)

// Uniform bindings of the capture program's blocks.
const (
	cumulativeBinding = 1
	entitiesBinding   = 2
	primitivesBinding = 3
	layoutsBinding    = 4
)

// Bytes of one lookup table block, and of the primitive layout block (three
// arrays of MaxFeedbackPrimitives vec4s).
const (
	tableBytes  = MaxFeedbackSegments * 4
	layoutBytes = 3 * MaxFeedbackPrimitives * texelBytes
)

// feedbackMesh is a loaded mesh and the layout slots of its primitives.
type feedbackMesh struct {
	refs  int
	slots []int
}

// transformFeedbackStrategy pre-transforms every scheduled vertex into a
// capture buffer, then draws the captured triangles in one call. The
// capture pass has no vertex inputs: each output vertex is resolved to its
// instance and primitive through three per-frame lookup tables, and reads
// its attributes from the vertex arena and its world matrix from the
// instance arena, both bound as float textures.
type transformFeedbackStrategy struct {
	world   *ecs.World
	backend gpu.Backend
	region  instanceRegion

	instances *arenaTexture
	vertices  *arenaTexture
	capture   gpu.Handle // program
	present   gpu.Handle // program

	tables     [3]gpu.Handle // cumulative, entities, primitives
	layouts    gpu.Handle
	layoutData []byte
	meshes     map[*Mesh]*feedbackMesh
	freeSlots  []int

	feedback        gpu.Handle
	emptyVAO        gpu.Handle
	presentVAO      gpu.Handle
	captureBuffer   gpu.Handle
	captureVertices int

	segments         FeedbackTables
	scratch          []byte
	view, projection [16]float32
	stats            Stats
}

var _ Strategy = (*transformFeedbackStrategy)(nil)

func newTransformFeedback(w *ecs.World, backend gpu.Backend, region instanceRegion) (_ Strategy, err error) {
	s := &transformFeedbackStrategy{
		world:      w,
		backend:    backend,
		region:     region,
		layoutData: make([]byte, layoutBytes),
		meshes:     make(map[*Mesh]*feedbackMesh),
	}
	defer func() {
		if err != nil {
			s.Close()
		}
	}()
	for slot := MaxFeedbackPrimitives - 1; slot >= 0; slot-- {
		s.freeSlots = append(s.freeSlots, slot)
	}

	width := w.Memory.Config().Width
	if s.instances, err = newArenaTexture(backend, region.buffer, width, gpu.RGBA32F); err != nil {
		return nil, err
	}
	if s.vertices, err = newArenaTexture(backend, w.Memory.Buffer(memory.GPUVertexData), width, gpu.RGBA32F); err != nil {
		return nil, err
	}

	if s.capture, err = backend.CreateProgram(feedbackCaptureVertexSource, feedbackCaptureFragmentSource, feedbackVaryings); err != nil {
		return nil, err
	}
	if s.present, err = backend.CreateProgram(feedbackPresentVertexSource, fragmentShaderSource, nil); err != nil {
		return nil, err
	}
	for _, block := range []struct {
		name    string
		binding uint32
	}{
		{"FeedbackCumulative", cumulativeBinding},
		{"FeedbackEntities", entitiesBinding},
		{"FeedbackPrimitives", primitivesBinding},
		{"FeedbackLayouts", layoutsBinding},
	} {
		if err = backend.UniformBlockBinding(s.capture, block.name, block.binding); err != nil {
			return nil, err
		}
	}
	backend.SetUniformInt(s.capture, "uInstances", 0)
	backend.SetUniformInt(s.capture, "uVertices", 1)
	backend.SetUniformInt(s.capture, "uTextureWidth", int32(width))
	backend.SetUniformInt(s.capture, "uVertexWidth", int32(width))
	backend.SetUniformInt(s.capture, "uInstanceOffset", int32(region.texelOffset()))

	for i := range s.tables {
		if s.tables[i], err = backend.CreateBuffer(gpu.UniformBuffer, tableBytes, nil, gpu.StreamDraw); err != nil {
			return nil, err
		}
	}
	if s.layouts, err = backend.CreateBuffer(gpu.UniformBuffer, layoutBytes, nil, gpu.DynamicDraw); err != nil {
		return nil, err
	}
	if s.feedback, err = backend.CreateTransformFeedback(); err != nil {
		return nil, err
	}
	if s.emptyVAO, err = backend.CreateVertexArray(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *transformFeedbackStrategy) Name() string { return "transform-feedback" }
func (s *transformFeedbackStrategy) Kind() Kind   { return TransformFeedback }
func (s *transformFeedbackStrategy) Stats() Stats { return s.stats }

// LoadMesh assigns each primitive a layout slot describing where its
// attributes live in the vertex arena.
func (s *transformFeedbackStrategy) LoadMesh(m *Mesh) error {
	if fm, ok := s.meshes[m]; ok {
		fm.refs++
		return nil
	}
	for _, p := range m.Primitives {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("render: mesh %s: %w", m.Name, err)
		}
		if p.Mode != gpu.Triangles {
			return fmt.Errorf("render: mesh %s: transform feedback draws triangle lists only", m.Name)
		}
		if p.Positions.Buffer().Use() != memory.GPUVertexData {
			return fmt.Errorf("render: mesh %s: positions live in %s, not the vertex arena", m.Name, p.Positions.Buffer().Use())
		}
	}
	if len(m.Primitives) > len(s.freeSlots) {
		return fmt.Errorf("render: mesh %s: %d primitives, %d of %d layout slots free",
			m.Name, len(m.Primitives), len(s.freeSlots), MaxFeedbackPrimitives)
	}

	fm := &feedbackMesh{refs: 1}
	for _, p := range m.Primitives {
		slot := s.freeSlots[len(s.freeSlots)-1]
		s.freeSlots = s.freeSlots[:len(s.freeSlots)-1]
		fm.slots = append(fm.slots, slot)
		s.writeLayout(slot, p)
	}
	s.meshes[m] = fm
	if err := s.backend.UpdateBuffer(gpu.UniformBuffer, s.layouts, 0, s.layoutData); err != nil {
		return err
	}
	renderLogger.Printf("loaded mesh %s into feedback slots %v", m.Name, fm.slots)
	return nil
}

func (s *transformFeedbackStrategy) writeLayout(slot int, p *Primitive) {
	put := func(array, slot int, values [4]uint32) {
		off := (array*MaxFeedbackPrimitives + slot) * texelBytes
		for i, v := range values {
			binary.LittleEndian.PutUint32(s.layoutData[off+4*i:], v)
		}
	}
	floats := func(a *memory.Accessor) (offset, stride int32) {
		if a == nil {
			return -1, 0
		}
		return int32(a.ByteOffsetInBuffer() / 4), int32(a.ByteStride() / 4)
	}
	pOff, pStride := floats(p.Positions)
	nOff, nStride := floats(p.Normals)
	put(0, slot, [4]uint32{uint32(pOff), uint32(pStride), uint32(nOff), uint32(nStride)})

	index := [4]uint32{uint32(0xFFFFFFFF)} // -1
	if p.Indices != nil {
		if p.Indices.Element() == memory.UnsignedShort {
			index = [4]uint32{uint32(p.Indices.ByteOffsetInBuffer() / 2), 1}
		} else {
			index = [4]uint32{uint32(p.Indices.ByteOffsetInBuffer() / 4), 0}
		}
	}
	put(1, slot, index)

	c := p.Material.BaseColor
	put(2, slot, [4]uint32{math.Float32bits(c[0]), math.Float32bits(c[1]), math.Float32bits(c[2]), math.Float32bits(c[3])})
}

// BindVertexLayout has nothing to bind per mesh: the capture pass reads
// attributes by address.
func (s *transformFeedbackStrategy) BindVertexLayout(m *Mesh) error {
	if _, ok := s.meshes[m]; !ok {
		return fmt.Errorf("render: mesh %s bound before it was loaded", m.Name)
	}
	return nil
}

func (s *transformFeedbackStrategy) ReleaseMesh(m *Mesh) {
	fm, ok := s.meshes[m]
	if !ok {
		return
	}
	fm.refs--
	if fm.refs > 0 {
		return
	}
	s.freeSlots = append(s.freeSlots, fm.slots...)
	delete(s.meshes, m)
	renderLogger.Printf("released mesh %s", m.Name)
}

func (s *transformFeedbackStrategy) Prerender(ctx *ecs.Context) error {
	start := time.Now()
	for _, tex := range []*arenaTexture{s.instances, s.vertices} {
		n, err := tex.sync()
		if err != nil {
			return fmt.Errorf("render: %s texture upload: %w", tex.buffer.Name(), err)
		}
		if n > 0 {
			s.stats.Uploads++
			s.stats.UploadedBytes += int64(n)
		}
	}
	s.stats.LastPrerenderTimeUs = since(start)
	return nil
}

// Draw fills the lookup tables segment by segment, one segment per
// (instance, primitive) pair, flushing a capture and present pass whenever
// the tables fill up.
func (s *transformFeedbackStrategy) Draw(ctx *ecs.Context, batches []Batch) error {
	start := time.Now()
	s.view, s.projection = passCamera(ctx)
	s.stats.DrawCalls = 0
	s.segments.Reset()

	for _, b := range batches {
		fm, ok := s.meshes[b.Mesh]
		if !ok {
			return fmt.Errorf("render: mesh %s drawn before it was loaded", b.Mesh.Name)
		}
		for i, p := range b.Mesh.Primitives {
			for _, sid := range b.Instances {
				if s.segments.Len() == MaxFeedbackSegments {
					if err := s.flush(); err != nil {
						return err
					}
				}
				if err := s.segments.Append(p.DrawCount(), int(sid), fm.slots[i]); err != nil {
					return err
				}
			}
		}
	}
	if err := s.flush(); err != nil {
		return err
	}
	s.stats.LastDrawTimeUs = since(start)
	return nil
}

// flush captures the vertices of the pending segments and draws them.
func (s *transformFeedbackStrategy) flush() error {
	total := s.segments.Total()
	if total == 0 {
		s.segments.Reset()
		return nil
	}
	if err := s.ensureCapture(total); err != nil {
		return err
	}
	b := s.backend
	for i, table := range [][]int32{s.segments.Cumulative, s.segments.Entities, s.segments.Primitives} {
		s.scratch = pack(s.scratch, table)
		if err := b.UpdateBuffer(gpu.UniformBuffer, s.tables[i], 0, s.scratch); err != nil {
			return err
		}
		b.BindBufferBase(gpu.UniformBuffer, uint32(cumulativeBinding+i), s.tables[i])
	}
	b.BindBufferBase(gpu.UniformBuffer, layoutsBinding, s.layouts)

	b.UseProgram(s.capture)
	b.SetUniformInt(s.capture, "uSegments", int32(s.segments.Len()))
	b.BindTexture(0, s.instances.handle)
	b.BindTexture(1, s.vertices.handle)
	b.BindVertexArray(s.emptyVAO)
	b.BeginTransformFeedback(s.feedback, s.captureBuffer, gpu.Triangles)
	b.DrawArraysInstanced(gpu.Triangles, 0, int32(total), 1)
	b.EndTransformFeedback()

	b.UseProgram(s.present)
	b.SetUniformMat4(s.present, "uView", s.view)
	b.SetUniformMat4(s.present, "uProjection", s.projection)
	b.BindVertexArray(s.presentVAO)
	b.DrawTransformFeedback(gpu.Triangles, s.feedback)
	b.BindVertexArray(0)

	s.stats.DrawCalls += 2
	s.segments.Reset()
	return nil
}

// ensureCapture grows the capture buffer, and the vertex array reading it,
// to hold at least vertices captured vertices.
func (s *transformFeedbackStrategy) ensureCapture(vertices int) error {
	if vertices <= s.captureVertices {
		return nil
	}
	size := 1024
	for size < vertices {
		size *= 2
	}
	if s.captureBuffer != 0 {
		s.backend.DeleteBuffer(s.captureBuffer)
		s.backend.DeleteVertexArray(s.presentVAO)
		s.captureBuffer, s.presentVAO, s.captureVertices = 0, 0, 0
	}
	buf, err := s.backend.CreateBuffer(gpu.TransformFeedbackBuffer, size*feedbackVertexBytes, nil, gpu.StreamDraw)
	if err != nil {
		return fmt.Errorf("render: capture buffer: %w", err)
	}
	vao, err := s.backend.CreateVertexArray()
	if err != nil {
		s.backend.DeleteBuffer(buf)
		return err
	}
	s.backend.BindVertexArray(vao)
	for loc := uint32(0); loc < uint32(len(feedbackVaryings)); loc++ {
		s.backend.VertexAttribPointer(gpu.VertexAttribute{
			Location: loc,
			Buffer:   buf,
			Size:     4,
			Type:     uint32(memory.Float),
			Stride:   feedbackVertexBytes,
			Offset:   int(loc) * texelBytes,
		})
	}
	s.backend.BindVertexArray(0)
	s.captureBuffer, s.presentVAO, s.captureVertices = buf, vao, size
	renderLogger.Printf("capture buffer sized for %d vertices", size)
	return nil
}

func (s *transformFeedbackStrategy) Close() {
	b := s.backend
	if s.instances != nil {
		s.instances.close()
	}
	if s.vertices != nil {
		s.vertices.close()
	}
	for _, h := range []gpu.Handle{s.capture, s.present} {
		if h != 0 {
			b.DeleteProgram(h)
		}
	}
	for _, h := range append(s.tables[:], s.layouts, s.captureBuffer) {
		if h != 0 {
			b.DeleteBuffer(h)
		}
	}
	for _, h := range []gpu.Handle{s.emptyVAO, s.presentVAO} {
		if h != 0 {
			b.DeleteVertexArray(h)
		}
	}
	if s.feedback != 0 {
		b.DeleteTransformFeedback(s.feedback)
	}
	s.meshes = nil
}
