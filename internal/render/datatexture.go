package render

import (
	"fmt"
	"time"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu"
)

// dataTextureStrategy samples world matrices from the whole instance arena
// uploaded as a float texture. Instance sid's matrix is the three texels
// starting at offset + 3*sid.
type dataTextureStrategy struct {
	*instanced
	texture *arenaTexture
}

var _ Strategy = (*dataTextureStrategy)(nil)

func newDataTexture(w *ecs.World, backend gpu.Backend, region instanceRegion) (Strategy, error) {
	caps := backend.Capabilities()
	var format gpu.TextureFormat
	switch {
	case caps.FloatTexture:
		format = gpu.RGBA32F
	case caps.HalfFloatTexture:
		renderLogger.Printf("RGBA32F textures unavailable, falling back to RGBA16F")
		format = gpu.RGBA16F
	default:
		return nil, fmt.Errorf("%w: data texture needs RGBA32F or RGBA16F sampling", ErrCapabilityMissing)
	}

	width := w.Memory.Config().Width
	texture, err := newArenaTexture(backend, region.buffer, width, format)
	if err != nil {
		return nil, err
	}
	base, err := newInstanced(w, backend, region, dataTextureVertexSource)
	if err != nil {
		texture.close()
		return nil, err
	}
	backend.SetUniformInt(base.program, "uInstances", 0)
	backend.SetUniformInt(base.program, "uTextureWidth", int32(width))
	backend.SetUniformInt(base.program, "uInstanceOffset", int32(region.texelOffset()))
	return &dataTextureStrategy{instanced: base, texture: texture}, nil
}

func (s *dataTextureStrategy) Name() string { return "data-texture" }
func (s *dataTextureStrategy) Kind() Kind   { return DataTexture }

// Format reports the texture precision in use.
func (s *dataTextureStrategy) Format() gpu.TextureFormat { return s.texture.desc.Format }

func (s *dataTextureStrategy) Prerender(ctx *ecs.Context) error {
	start := time.Now()
	n, err := s.texture.sync()
	if err != nil {
		return fmt.Errorf("render: instance texture upload: %w", err)
	}
	if n > 0 {
		s.stats.Uploads++
		s.stats.UploadedBytes += int64(n)
	}
	s.stats.LastPrerenderTimeUs = since(start)
	return nil
}

func (s *dataTextureStrategy) Draw(ctx *ecs.Context, batches []Batch) error {
	s.backend.UseProgram(s.program)
	s.backend.BindTexture(0, s.texture.handle)
	return s.drawBatches(ctx, batches)
}

func (s *dataTextureStrategy) Close() {
	s.instanced.close()
	s.texture.close()
}
