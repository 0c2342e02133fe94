// Package render exposes the packed GPU-instance arena to the shading stage.
//
// A Strategy is selected once per run. All strategies share the same
// contract: one-time per-mesh GPU buffers, a lazily bound vertex layout, a
// per-tick re-upload of the instance region when it changed, and instanced
// draws of every scheduled mesh. They differ in how per-instance world
// matrices reach the vertex stage:
// 1. Data-Texture: the instance arena reinterpreted as an RGBA float texture.
// 2. Uniform-Buffer: the instance region bound as a uniform block.
// 3. Transform-Feedback: vertices pre-transformed into a capture buffer,
// resolved per vertex through three small lookup tables.
package render

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/memory"
)

var renderLogger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GARNET_DEBUG_RENDER") == "1" {
		renderLogger = log.New(os.Stdout, "[render] ", log.Ltime|log.Lmsgprefix)
	}
}

// The component type and member holding per-instance world matrices.
const (
	InstanceType   = "SceneGraph"
	InstanceMember = "worldMatrix"
)

// Vertex attribute locations shared by every program.
const (
	attribPosition = 0
	attribNormal   = 1
	attribColor    = 2
	attribInstance = 3
)

// ErrCapabilityMissing is returned when the backend lacks a capability the
// requested strategy strictly requires.
var ErrCapabilityMissing = errors.New("render: required GPU capability missing")

// Kind selects a strategy.
type Kind int

const (
	Auto Kind = iota
	DataTexture
	UniformBuffer
	TransformFeedback
)

func (k Kind) String() string {
	switch k {
	case DataTexture:
		return "datatexture"
	case UniformBuffer:
		return "ubo"
	case TransformFeedback:
		return "transformfeedback"
	default:
		return "auto"
	}
}

// ParseKind parses a strategy name as printed by Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Auto, DataTexture, UniformBuffer, TransformFeedback} {
		if strings.EqualFold(s, k.String()) {
			return k, nil
		}
	}
	return Auto, fmt.Errorf("render: unknown strategy %q", s)
}

// Batch is every instance of one mesh drawn in the current pass. Instances
// are SIDs of the instance component type.
type Batch struct {
	Mesh      *Mesh
	Instances []ecs.SID
}

// Camera supplies the matrices of a render pass.
type Camera interface {
	ViewMatrix() mgl32.Mat4
	ProjectionMatrix() mgl32.Mat4
}

// Stats tracks rendering performance metrics.
type Stats struct {
	LastPrerenderTimeUs float64 // time spent in the last Prerender call
	LastDrawTimeUs      float64 // time spent in the last Draw call
	DrawCalls           int     // draw calls issued by the last Draw
	Uploads             int     // instance uploads since start
	UploadedBytes       int64
}

// Strategy re-expresses the packed instance data as a GPU resource and
// draws with it.
type Strategy interface {
	ecs.Strategy
	Kind() Kind
	// LoadMesh creates the mesh's GPU buffers. It is reference counted;
	// repeated loads of one mesh share its buffers.
	LoadMesh(m *Mesh) error
	// BindVertexLayout binds the mesh's vertex arrays, once.
	BindVertexLayout(m *Mesh) error
	// Prerender re-uploads the instance region if it changed.
	Prerender(ctx *ecs.Context) error
	// Draw draws batches into the current render pass.
	Draw(ctx *ecs.Context, batches []Batch) error
	// ReleaseMesh drops one reference, deleting GPU buffers with the last.
	ReleaseMesh(m *Mesh)
	Stats() Stats
	Close()
}

// FromWorld returns the world's rendering strategy.
func FromWorld(w *ecs.World) (Strategy, error) {
	s, ok := w.System.Strategy().(Strategy)
	if !ok {
		return nil, ecs.ErrNoStrategy
	}
	return s, nil
}

// New selects and constructs a strategy for the world's registered backend.
// The instance component type must already be registered.
//
// Auto prefers the uniform-buffer strategy and falls back to the data
// texture when uniform blocks are missing or too small for the instance
// region. The data texture prefers RGBA32F and falls back to RGBA16F.
func New(kind Kind, w *ecs.World) (Strategy, error) {
	backend, err := w.GPU.Current()
	if err != nil {
		return nil, err
	}
	region, err := instanceRegionOf(w)
	if err != nil {
		return nil, err
	}
	caps := backend.Capabilities()

	if kind == Auto {
		if uboFits(caps, region) {
			kind = UniformBuffer
		} else {
			renderLogger.Printf("uniform blocks unavailable for %d-byte instance region, using data texture", region.view.ByteLength())
			kind = DataTexture
		}
	}

	switch kind {
	case DataTexture:
		return newDataTexture(w, backend, region)
	case UniformBuffer:
		if !uboFits(caps, region) {
			return nil, fmt.Errorf("%w: uniform block of %d bytes (max %d, supported %t)",
				ErrCapabilityMissing, region.view.ByteLength(), caps.MaxUniformBlockSize, caps.UniformBuffer)
		}
		return newUniformBuffer(w, backend, region)
	case TransformFeedback:
		// The capture pass reads its segment tables from uniform blocks.
		if !caps.TransformFeedback || !caps.FloatTexture || !caps.UniformBuffer {
			return nil, fmt.Errorf("%w: transform feedback needs transform feedback, float textures and uniform blocks", ErrCapabilityMissing)
		}
		return newTransformFeedback(w, backend, region)
	default:
		return nil, fmt.Errorf("render: unknown strategy kind %d", kind)
	}
}

func uboFits(caps gpu.Capabilities, region instanceRegion) bool {
	return caps.UniformBuffer && region.view.ByteLength() <= caps.MaxUniformBlockSize
}

// instanceRegion locates the world matrices inside the instance arena.
type instanceRegion struct {
	typ      ecs.TypeID
	buffer   *memory.Buffer
	view     *memory.BufferView
	accessor *memory.Accessor
}

// texelOffset is the accessor's first texel within the whole buffer.
func (r instanceRegion) texelOffset() int {
	return r.accessor.ByteOffsetInBuffer() / texelBytes
}

// viewTexelOffset is the accessor's first texel within its view.
func (r instanceRegion) viewTexelOffset() int {
	return r.accessor.ByteOffsetInBufferView() / texelBytes
}

func instanceRegionOf(w *ecs.World) (instanceRegion, error) {
	typ, ok := w.Components.TypeByName(InstanceType)
	if !ok {
		return instanceRegion{}, fmt.Errorf("render: %w: %s", ecs.ErrTypeNotRegistered, InstanceType)
	}
	acc, ok := w.Components.Accessor(typ, InstanceMember)
	if !ok || acc.Composition() != memory.Mat3x4 || acc.Element() != memory.Float {
		return instanceRegion{}, fmt.Errorf("render: %s.%s must be a float mat3x4 member", InstanceType, InstanceMember)
	}
	if acc.Buffer().Use() != memory.GPUInstanceData {
		return instanceRegion{}, fmt.Errorf("render: %s.%s lives in %s, not the instance arena", InstanceType, InstanceMember, acc.Buffer().Use())
	}
	return instanceRegion{typ: typ, buffer: acc.Buffer(), view: acc.BufferView(), accessor: acc}, nil
}

// passCamera finds the camera of the pass's camera entity.
func passCamera(ctx *ecs.Context) (view, projection mgl32.Mat4) {
	view, projection = mgl32.Ident4(), mgl32.Ident4()
	if ctx.Pass == nil {
		return view, projection
	}
	e, ok := ctx.World.Entities.Entity(ctx.Pass.Camera)
	if !ok {
		return view, projection
	}
	for _, t := range e.Types() {
		c, _ := e.Component(t)
		if cam, ok := c.(Camera); ok {
			return cam.ViewMatrix(), cam.ProjectionMatrix()
		}
	}
	return view, projection
}

func since(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e3
}
