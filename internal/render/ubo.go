package render

import (
	"fmt"
	"time"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu"
)

// instanceBlockBinding is the uniform binding point of the instance block.
const instanceBlockBinding = 0

// uniformBufferStrategy binds the view holding the world matrices as a
// uniform block of vec4 rows. It is the cheapest path but bounded by the
// driver's maximum block size.
type uniformBufferStrategy struct {
	*instanced
	buffer  gpu.Handle
	version uint64
	synced  bool
}

var _ Strategy = (*uniformBufferStrategy)(nil)

func newUniformBuffer(w *ecs.World, backend gpu.Backend, region instanceRegion) (Strategy, error) {
	size := region.view.ByteLength()
	rows := size / texelBytes
	base, err := newInstanced(w, backend, region, uniformBufferVertexSource(rows))
	if err != nil {
		return nil, err
	}
	if err := backend.UniformBlockBinding(base.program, "Instances", instanceBlockBinding); err != nil {
		base.close()
		return nil, err
	}
	buffer, err := backend.CreateBuffer(gpu.UniformBuffer, size, nil, gpu.DynamicDraw)
	if err != nil {
		base.close()
		return nil, fmt.Errorf("render: instance uniform buffer: %w", err)
	}
	backend.SetUniformInt(base.program, "uInstanceOffset", int32(region.viewTexelOffset()))
	renderLogger.Printf("instance block: %d rows, %d bytes", rows, size)
	return &uniformBufferStrategy{instanced: base, buffer: buffer}, nil
}

func (s *uniformBufferStrategy) Name() string { return "uniform-buffer" }
func (s *uniformBufferStrategy) Kind() Kind   { return UniformBuffer }

func (s *uniformBufferStrategy) Prerender(ctx *ecs.Context) error {
	start := time.Now()
	buf := s.region.buffer
	if !s.synced || buf.Version() != s.version {
		data := s.region.view.Bytes()
		if err := s.backend.UpdateBuffer(gpu.UniformBuffer, s.buffer, 0, data); err != nil {
			return fmt.Errorf("render: instance block upload: %w", err)
		}
		s.version, s.synced = buf.Version(), true
		s.stats.Uploads++
		s.stats.UploadedBytes += int64(len(data))
	}
	s.stats.LastPrerenderTimeUs = since(start)
	return nil
}

func (s *uniformBufferStrategy) Draw(ctx *ecs.Context, batches []Batch) error {
	s.backend.UseProgram(s.program)
	s.backend.BindBufferBase(gpu.UniformBuffer, instanceBlockBinding, s.buffer)
	return s.drawBatches(ctx, batches)
}

func (s *uniformBufferStrategy) Close() {
	s.instanced.close()
	s.backend.DeleteBuffer(s.buffer)
}
