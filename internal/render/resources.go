package render

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/memory"
)

type primitiveGPU struct {
	id  int
	ibo gpu.Handle
	vao gpu.Handle
}

type meshGPU struct {
	refs  int
	prims []*primitiveGPU
	vbos  map[*memory.BufferView]gpu.Handle
	bound bool
}

// meshCache owns the per-mesh GPU buffers and vertex arrays shared by the
// instanced strategies, and the per-instance SID buffer their vertex arrays
// read from.
type meshCache struct {
	backend       gpu.Backend
	meshes        map[*Mesh]*meshGPU
	nextPrimitive int

	instanceIDs gpu.Handle
	capacity    int // SIDs the instance buffer holds
	scratch     []byte
}

func newMeshCache(backend gpu.Backend, capacity int) (*meshCache, error) {
	ids, err := backend.CreateBuffer(gpu.ArrayBuffer, 4*capacity, nil, gpu.StreamDraw)
	if err != nil {
		return nil, fmt.Errorf("render: instance id buffer: %w", err)
	}
	return &meshCache{
		backend:     backend,
		meshes:      make(map[*Mesh]*meshGPU),
		instanceIDs: ids,
		capacity:    capacity,
	}, nil
}

func (c *meshCache) load(m *Mesh) error {
	if mg, ok := c.meshes[m]; ok {
		mg.refs++
		return nil
	}
	mg := &meshGPU{refs: 1, vbos: make(map[*memory.BufferView]gpu.Handle)}
	for _, p := range m.Primitives {
		if err := p.Validate(); err != nil {
			c.free(mg)
			return fmt.Errorf("render: mesh %s: %w", m.Name, err)
		}
		pg := &primitiveGPU{id: c.nextPrimitive}
		c.nextPrimitive++
		for _, acc := range []*memory.Accessor{p.Positions, p.Normals, p.Colors} {
			if acc == nil {
				continue
			}
			view := acc.BufferView()
			if _, ok := mg.vbos[view]; ok {
				continue
			}
			vbo, err := c.backend.CreateBuffer(gpu.ArrayBuffer, view.ByteLength(), view.Bytes(), gpu.StaticDraw)
			if err != nil {
				c.free(mg)
				return err
			}
			mg.vbos[view] = vbo
		}
		if p.Indices != nil {
			data, err := p.Indices.ContiguousView()
			if err != nil {
				c.free(mg)
				return fmt.Errorf("render: mesh %s indices: %w", m.Name, err)
			}
			ibo, err := c.backend.CreateBuffer(gpu.ElementArrayBuffer, len(data), data, gpu.StaticDraw)
			if err != nil {
				c.free(mg)
				return err
			}
			pg.ibo = ibo
		}
		mg.prims = append(mg.prims, pg)
	}
	c.meshes[m] = mg
	renderLogger.Printf("loaded mesh %s: %d primitives, %d vertex buffers", m.Name, len(mg.prims), len(mg.vbos))
	return nil
}

func (c *meshCache) bind(m *Mesh) error {
	mg, ok := c.meshes[m]
	if !ok {
		return fmt.Errorf("render: mesh %s bound before it was loaded", m.Name)
	}
	if mg.bound {
		return nil
	}
	for i, p := range m.Primitives {
		pg := mg.prims[i]
		vao, err := c.backend.CreateVertexArray()
		if err != nil {
			return err
		}
		pg.vao = vao
		c.backend.BindVertexArray(vao)
		c.attrib(mg, attribPosition, p.Positions)
		c.attrib(mg, attribNormal, p.Normals)
		c.attrib(mg, attribColor, p.Colors)
		c.backend.VertexAttribPointer(gpu.VertexAttribute{
			Location: attribInstance,
			Buffer:   c.instanceIDs,
			Size:     1,
			Type:     uint32(memory.UnsignedInt),
			Divisor:  1,
		})
		if pg.ibo != 0 {
			c.backend.BindBuffer(gpu.ElementArrayBuffer, pg.ibo)
		}
	}
	c.backend.BindVertexArray(0)
	mg.bound = true
	return nil
}

func (c *meshCache) attrib(mg *meshGPU, location uint32, acc *memory.Accessor) {
	if acc == nil {
		return
	}
	c.backend.VertexAttribPointer(gpu.VertexAttribute{
		Location: location,
		Buffer:   mg.vbos[acc.BufferView()],
		Size:     int32(acc.Composition().NumComponents()),
		Type:     uint32(acc.Element()),
		Stride:   int32(acc.ByteStride()),
		Offset:   acc.ByteOffsetInBufferView(),
	})
}

// draw issues one instanced draw per primitive of b. prepare runs before
// each primitive's draw to set per-primitive uniforms.
func (c *meshCache) draw(b Batch, prepare func(p *Primitive)) (int, error) {
	mg, ok := c.meshes[b.Mesh]
	if !ok || !mg.bound {
		return 0, fmt.Errorf("render: mesh %s drawn before its layout was bound", b.Mesh.Name)
	}
	if len(b.Instances) == 0 {
		return 0, nil
	}
	if len(b.Instances) > c.capacity {
		return 0, fmt.Errorf("render: %d instances of %s exceed capacity %d", len(b.Instances), b.Mesh.Name, c.capacity)
	}
	c.scratch = encodeSIDs(c.scratch[:0], b.Instances)
	if err := c.backend.UpdateBuffer(gpu.ArrayBuffer, c.instanceIDs, 0, c.scratch); err != nil {
		return 0, err
	}

	calls := 0
	for i, p := range b.Mesh.Primitives {
		pg := mg.prims[i]
		prepare(p)
		c.backend.BindVertexArray(pg.vao)
		if p.Indices != nil {
			c.backend.DrawElementsInstanced(p.Mode, int32(p.Indices.Count()), uint32(p.Indices.Element()), 0, int32(len(b.Instances)))
		} else {
			c.backend.DrawArraysInstanced(p.Mode, 0, int32(p.VertexCount()), int32(len(b.Instances)))
		}
		calls++
	}
	c.backend.BindVertexArray(0)
	return calls, nil
}

func (c *meshCache) release(m *Mesh) {
	mg, ok := c.meshes[m]
	if !ok {
		return
	}
	mg.refs--
	if mg.refs > 0 {
		return
	}
	c.free(mg)
	delete(c.meshes, m)
	renderLogger.Printf("released mesh %s", m.Name)
}

func (c *meshCache) free(mg *meshGPU) {
	for _, pg := range mg.prims {
		if pg.vao != 0 {
			c.backend.DeleteVertexArray(pg.vao)
		}
		if pg.ibo != 0 {
			c.backend.DeleteBuffer(pg.ibo)
		}
	}
	for _, vbo := range mg.vbos {
		c.backend.DeleteBuffer(vbo)
	}
}

func (c *meshCache) close() {
	for m, mg := range c.meshes {
		c.free(mg)
		delete(c.meshes, m)
	}
	c.backend.DeleteBuffer(c.instanceIDs)
}

// primitiveID returns the stable id assigned to p when its mesh was loaded.
func (c *meshCache) primitiveID(m *Mesh, i int) int {
	return c.meshes[m].prims[i].id
}

func encodeSIDs(dst []byte, sids []ecs.SID) []byte {
	for _, sid := range sids {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(sid))
	}
	return dst
}

// arenaTexture mirrors one arena as a width×height RGBA float texture,
// re-uploading the taken region whenever the arena's version moves.
type arenaTexture struct {
	backend gpu.Backend
	buffer  *memory.Buffer
	desc    gpu.TextureDesc
	handle  gpu.Handle

	version  uint64
	uploaded bool
	scratch  []byte
}

func newArenaTexture(backend gpu.Backend, buf *memory.Buffer, width int, format gpu.TextureFormat) (*arenaTexture, error) {
	caps := backend.Capabilities()
	height := buf.ByteLength() / (width * texelBytes)
	if width > caps.MaxTextureSize || height > caps.MaxTextureSize {
		return nil, fmt.Errorf("%w: %dx%d texture exceeds max edge %d", ErrCapabilityMissing, width, height, caps.MaxTextureSize)
	}
	desc := gpu.TextureDesc{Width: width, Height: height, Format: format}
	h, err := backend.CreateTexture(desc, nil)
	if err != nil {
		return nil, fmt.Errorf("render: %s texture: %w", buf.Name(), err)
	}
	renderLogger.Printf("created %dx%d %s texture over %s", width, height, format, buf.Name())
	return &arenaTexture{backend: backend, buffer: buf, desc: desc, handle: h}, nil
}

// sync uploads the taken region if the arena changed since the last upload
// and returns the number of bytes sent.
func (t *arenaTexture) sync() (int, error) {
	if t.uploaded && t.buffer.Version() == t.version {
		return 0, nil
	}
	data := t.buffer.TakenRegion()
	if t.desc.Format == gpu.RGBA16F {
		t.scratch = encodeHalf(t.scratch[:0], data)
		data = t.scratch
	}
	if err := t.backend.UpdateTexture(t.handle, t.desc, data); err != nil {
		return 0, err
	}
	t.version = t.buffer.Version()
	t.uploaded = true
	return len(data), nil
}

func (t *arenaTexture) close() { t.backend.DeleteTexture(t.handle) }

// instanced is the part shared by the strategies that draw meshes with
// instanced draws, one per primitive and batch.
type instanced struct {
	world   *ecs.World
	backend gpu.Backend
	region  instanceRegion
	meshes  *meshCache
	program gpu.Handle
	stats   Stats
}

func newInstanced(w *ecs.World, backend gpu.Backend, region instanceRegion, vertexSource string) (*instanced, error) {
	program, err := backend.CreateProgram(vertexSource, fragmentShaderSource, nil)
	if err != nil {
		return nil, err
	}
	meshes, err := newMeshCache(backend, region.accessor.Count())
	if err != nil {
		backend.DeleteProgram(program)
		return nil, err
	}
	return &instanced{world: w, backend: backend, region: region, meshes: meshes, program: program}, nil
}

func (s *instanced) LoadMesh(m *Mesh) error         { return s.meshes.load(m) }
func (s *instanced) BindVertexLayout(m *Mesh) error { return s.meshes.bind(m) }
func (s *instanced) ReleaseMesh(m *Mesh)            { s.meshes.release(m) }
func (s *instanced) Stats() Stats                   { return s.stats }

// drawBatches sets the pass camera and draws every batch with the already
// bound program and instance resource.
func (s *instanced) drawBatches(ctx *ecs.Context, batches []Batch) error {
	start := time.Now()
	view, projection := passCamera(ctx)
	s.backend.SetUniformMat4(s.program, "uView", view)
	s.backend.SetUniformMat4(s.program, "uProjection", projection)

	calls := 0
	for _, b := range batches {
		n, err := s.meshes.draw(b, s.setMaterial)
		if err != nil {
			return err
		}
		calls += n
	}
	s.stats.DrawCalls = calls
	s.stats.LastDrawTimeUs = since(start)
	return nil
}

func (s *instanced) setMaterial(p *Primitive) {
	s.backend.SetUniformVec4(s.program, "uBaseColor", p.Material.BaseColor)
	var useColors int32
	if p.Colors != nil {
		useColors = 1
	}
	s.backend.SetUniformInt(s.program, "uUseVertexColor", useColors)
}

func (s *instanced) close() {
	s.meshes.close()
	s.backend.DeleteProgram(s.program)
}
