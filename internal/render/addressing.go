package render

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/x448/float16"

	"github.com/irfansharif/garnet/internal/geom"
	"github.com/irfansharif/garnet/internal/memory"
)

// texelBytes is the size of one RGBA32F texel, and of one vec4 in a std140
// uniform array.
const texelBytes = memory.Channels * memory.ChannelBytes

// rowsPerInstance is the number of texels (or vec4s) one affine world matrix
// occupies.
const rowsPerInstance = 3

// TexelAddress returns the texel coordinates of row (0-2) of instance sid's
// world matrix, in a texture of the given width whose matrices start at
// texel offset. Shaders compute the same address.
func TexelAddress(offset, sid, row, width int) (x, y int) {
	idx := offset + sid*rowsPerInstance + row
	return idx % width, idx / width
}

// DecodeInstanceTexels reconstructs instance sid's world matrix from RGBA
// texel data laid out width texels per row.
func DecodeInstanceTexels(texels []float32, width, offset, sid int) (mgl32.Mat4, error) {
	var rows [12]float32
	for r := 0; r < rowsPerInstance; r++ {
		x, y := TexelAddress(offset, sid, r, width)
		i := (y*width + x) * memory.Channels
		if i+memory.Channels > len(texels) {
			return mgl32.Mat4{}, fmt.Errorf("render: texel (%d, %d) outside %d texels of data", x, y, len(texels)/memory.Channels)
		}
		copy(rows[r*4:r*4+4], texels[i:i+memory.Channels])
	}
	return geom.UnpackAffine(rows), nil
}

// TexelsFromBytes decodes little-endian texel data in the given precision.
func TexelsFromBytes(data []byte, half bool) []float32 {
	if half {
		out := make([]float32, len(data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(data[2*i:])).Float32()
		}
		return out
	}
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return out
}

// encodeHalf converts little-endian float32 data to half floats, appending
// to dst.
func encodeHalf(dst, src []byte) []byte {
	for i := 0; i+4 <= len(src); i += 4 {
		f := math.Float32frombits(binary.LittleEndian.Uint32(src[i:]))
		dst = binary.LittleEndian.AppendUint16(dst, float16.Fromfloat32(f).Bits())
	}
	return dst
}

// MaxFeedbackSegments is the number of (primitive, instance) segments one
// transform-feedback pass can resolve: each table is a 4 KiB block of
// ivec4s.
const MaxFeedbackSegments = 1024

// FeedbackTables are the per-frame lookup tables of the transform-feedback
// strategy. Segment k covers output vertices [Cumulative[k-1],
// Cumulative[k]) and belongs to instance Entities[k] drawing primitive
// Primitives[k]. The vertex stage finds k with a linear scan and subtracts
// Cumulative[k-1] to get the vertex index within the primitive.
type FeedbackTables struct {
	Cumulative []int32
	Entities   []int32
	Primitives []int32
}

// Reset empties the tables, keeping their storage.
func (t *FeedbackTables) Reset() {
	t.Cumulative = t.Cumulative[:0]
	t.Entities = t.Entities[:0]
	t.Primitives = t.Primitives[:0]
}

// Len returns the number of segments.
func (t *FeedbackTables) Len() int { return len(t.Cumulative) }

// Total returns the number of vertices covered by all segments.
func (t *FeedbackTables) Total() int {
	if len(t.Cumulative) == 0 {
		return 0
	}
	return int(t.Cumulative[len(t.Cumulative)-1])
}

// Append adds a segment of count vertices.
func (t *FeedbackTables) Append(count int, entity, primitive int) error {
	if t.Len() >= MaxFeedbackSegments {
		return fmt.Errorf("render: more than %d feedback segments", MaxFeedbackSegments)
	}
	t.Cumulative = append(t.Cumulative, int32(t.Total()+count))
	t.Entities = append(t.Entities, int32(entity))
	t.Primitives = append(t.Primitives, int32(primitive))
	return nil
}

// ResolveVertex mirrors the vertex stage's scan: it maps an output vertex
// to its instance, primitive and vertex index within the primitive.
func (t *FeedbackTables) ResolveVertex(vertex int) (entity, primitive, local int, ok bool) {
	subtract := 0
	for k, cum := range t.Cumulative {
		if vertex < int(cum) {
			return int(t.Entities[k]), int(t.Primitives[k]), vertex - subtract, vertex >= 0
		}
		subtract = int(cum)
	}
	return 0, 0, 0, false
}

// pack encodes one table as a std140 array of ivec4, MaxFeedbackSegments/4
// entries long.
func pack(dst []byte, table []int32) []byte {
	dst = dst[:0]
	for i := 0; i < MaxFeedbackSegments; i++ {
		var v int32
		if i < len(table) {
			v = table[i]
		}
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
	}
	return dst
}
