package convert_test

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/components"
	"github.com/irfansharif/garnet/internal/convert"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu/gputest"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

func newWorld(t *testing.T) *ecs.World {
	t.Helper()
	w, err := ecs.NewWorld(memory.Config{Width: 64, Height: 64, UniformHeight: 1})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	if err := components.Register(w, components.Capacities{Nodes: 8, Cameras: 1, Meshes: 8}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return w
}

func intp(i int) *int { return &i }

var (
	trianglePositions = []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}
	triangleNormals   = []float32{0, 0, 1, 0, 0, 1, 0, 0, 1}
	triangleIndices   = []uint16{0, 1, 2}
)

// triangleData lays out positions (36 bytes), normals (36 bytes) and
// 16-bit indices (6 bytes) back to back.
func triangleData() []byte {
	var buf bytes.Buffer
	for _, f := range append(append([]float32{}, trianglePositions...), triangleNormals...) {
		_ = binary.Write(&buf, binary.LittleEndian, math.Float32bits(f))
	}
	for _, i := range triangleIndices {
		_ = binary.Write(&buf, binary.LittleEndian, i)
	}
	return buf.Bytes()
}

// triangleDocument has a root node at (10,0,0) whose child at (0,5,0) draws
// a single indexed triangle.
func triangleDocument() *convert.Document {
	data := triangleData()
	return &convert.Document{
		Buffers: []convert.Buffer{{ByteLength: len(data), Data: data}},
		BufferViews: []convert.BufferView{
			{Name: "vertices", Buffer: 0, ByteOffset: 0, ByteLength: 72},
			{Name: "indices", Buffer: 0, ByteOffset: 72, ByteLength: 6},
		},
		Accessors: []convert.Accessor{
			{BufferView: 0, ByteOffset: 0, ComponentType: uint32(memory.Float), Count: 3, Type: "VEC3"},
			{BufferView: 0, ByteOffset: 36, ComponentType: uint32(memory.Float), Count: 3, Type: "VEC3"},
			{BufferView: 1, ByteOffset: 0, ComponentType: uint32(memory.UnsignedShort), Count: 3, Type: "SCALAR"},
		},
		Materials: []convert.Material{{Name: "white", Color: "#ffffff"}},
		Meshes: []convert.Mesh{{
			Name: "triangle",
			Primitives: []convert.Primitive{{
				Attributes: map[string]int{"POSITION": 0, "NORMAL": 1},
				Indices:    intp(2),
				Material:   intp(0),
			}},
		}},
		Nodes: []convert.Node{
			{Name: "root", Children: []int{1}, Translation: &[3]float32{10, 0, 0}},
			{Name: "triangle", Mesh: intp(0), Translation: &[3]float32{0, 5, 0}},
		},
		Scenes: []convert.Scene{{Nodes: []int{0}}},
	}
}

func roundTrip(t *testing.T, doc *convert.Document) *convert.Document {
	t.Helper()
	b, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out, err := convert.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return out
}

func TestImportTriangleScene(t *testing.T) {
	w := newWorld(t)
	doc := roundTrip(t, triangleDocument())
	res, err := convert.Import(w, doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(res.Roots) != 1 || len(res.Nodes) != 2 || len(res.Meshes) != 1 {
		t.Fatalf("unexpected result %d roots, %d nodes, %d meshes", len(res.Roots), len(res.Nodes), len(res.Meshes))
	}
	if res.Roots[0] != res.Nodes[0] {
		t.Fatalf("expected node 0 as the root")
	}

	child, ok := ecs.GetComponent[*components.SceneGraph](w, res.Nodes[1])
	if !ok {
		t.Fatalf("expected a scene graph node on the child")
	}
	if got := child.WorldMatrix().Col(3).Vec3(); got != (mgl32.Vec3{10, 5, 0}) {
		t.Fatalf("expected child world translation (10,5,0), got %v", got)
	}
	if _, ok := ecs.GetComponent[*components.MeshRenderer](w, res.Nodes[1]); !ok {
		t.Fatalf("expected a mesh renderer on the mesh node")
	}
	if _, ok := ecs.GetComponent[*components.Mesh](w, res.Nodes[0]); ok {
		t.Fatalf("expected no mesh on the root")
	}

	p := res.Meshes[0].Primitives[0]
	for i := 0; i < 3; i++ {
		want := mgl32.Vec3{trianglePositions[3*i], trianglePositions[3*i+1], trianglePositions[3*i+2]}
		if got := p.Positions.GetVec3(i); got != want {
			t.Fatalf("position %d: expected %v, got %v", i, want, got)
		}
		if got := p.Indices.GetScalar(i); got != float64(triangleIndices[i]) {
			t.Fatalf("index %d: expected %d, got %v", i, triangleIndices[i], got)
		}
	}
	if p.Normals.ByteOffsetInBuffer()-p.Positions.ByteOffsetInBuffer() != 36 {
		t.Fatalf("expected normals 36 bytes after positions")
	}
	if p.Material.BaseColor != (mgl32.Vec4{1, 1, 1, 1}) {
		t.Fatalf("expected a white material, got %v", p.Material.BaseColor)
	}
	if b := res.Meshes[0].Bounds(); b.Max != (mgl32.Vec3{1, 1, 0}) || b.Min != (mgl32.Vec3{}) {
		t.Fatalf("unexpected bounds %+v", b)
	}

	arena := w.Memory.Buffer(memory.GPUVertexData)
	start := p.Positions.ByteOffsetInBuffer()
	if got := arena.Bytes()[start : start+78]; !bytes.Equal(got, triangleData()) {
		t.Fatalf("expected the buffer copied verbatim into the arena")
	}
}

func TestImportAfterExistingAllocations(t *testing.T) {
	w := newWorld(t)
	arena := w.Memory.Buffer(memory.GPUVertexData)
	if _, err := arena.TakeBufferView(13, 0, false); err != nil {
		t.Fatalf("TakeBufferView: %v", err)
	}
	res, err := convert.Import(w, triangleDocument())
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	off := res.Meshes[0].Primitives[0].Positions.ByteOffsetInBuffer()
	if off < 13 || off%8 != 0 {
		t.Fatalf("expected the import placed 8-byte aligned after taken bytes, at %d", off)
	}
}

func TestImportInterleavedView(t *testing.T) {
	w := newWorld(t)
	var buf bytes.Buffer
	for v := 0; v < 3; v++ {
		for _, f := range trianglePositions[3*v : 3*v+3] {
			_ = binary.Write(&buf, binary.LittleEndian, f)
		}
		for _, f := range triangleNormals[3*v : 3*v+3] {
			_ = binary.Write(&buf, binary.LittleEndian, f)
		}
	}
	doc := &convert.Document{
		Buffers:     []convert.Buffer{{Data: buf.Bytes()}},
		BufferViews: []convert.BufferView{{Buffer: 0, ByteLength: 72, ByteStride: 24}},
		Accessors: []convert.Accessor{
			{BufferView: 0, ByteOffset: 0, ComponentType: uint32(memory.Float), Count: 3, Type: "VEC3"},
			{BufferView: 0, ByteOffset: 12, ComponentType: uint32(memory.Float), Count: 3, Type: "VEC3"},
		},
		Meshes: []convert.Mesh{{Primitives: []convert.Primitive{{Attributes: map[string]int{"POSITION": 0, "NORMAL": 1}}}}},
		Nodes:  []convert.Node{{Mesh: intp(0)}},
	}
	doc = roundTrip(t, doc)
	res, err := convert.Import(w, doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	p := res.Meshes[0].Primitives[0]
	if p.Positions.ByteStride() != 24 || p.Normals.ByteStride() != 24 {
		t.Fatalf("expected interleaved accessors, strides %d and %d", p.Positions.ByteStride(), p.Normals.ByteStride())
	}
	if !p.Positions.BufferView().IsAoS() {
		t.Fatalf("expected an interleaved view")
	}
	if got := p.Positions.GetVec3(2); got != (mgl32.Vec3{0, 1, 0}) {
		t.Fatalf("unexpected third position %v", got)
	}
	if got := p.Normals.GetVec3(1); got != (mgl32.Vec3{0, 0, 1}) {
		t.Fatalf("unexpected second normal %v", got)
	}
	if res.Meshes[0].Name != "mesh-0" {
		t.Fatalf("expected a generated mesh name, got %q", res.Meshes[0].Name)
	}
	// Without scenes every parentless node is a root.
	if len(res.Roots) != 1 {
		t.Fatalf("expected one root, got %d", len(res.Roots))
	}
}

func TestDecodeDataURI(t *testing.T) {
	data := triangleData()
	src := `{
		"buffers": [{"byteLength": 78, "uri": "data:application/octet-stream;base64,` + base64.StdEncoding.EncodeToString(data) + `"}],
		"bufferViews": [{"buffer": 0, "byteLength": 36}],
		"accessors": [{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"}],
		"meshes": [{"primitives": [{"attributes": {"POSITION": 0}}]}],
		"nodes": [{"mesh": 0, "rotation": [0, 0, 0, 1], "scale": [2, 2, 2]}],
		"scenes": [{"nodes": [0]}]
	}`
	doc, err := convert.Decode(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(doc.Buffers[0].Data, data) {
		t.Fatalf("expected the data URI decoded")
	}

	w := newWorld(t)
	res, err := convert.Import(w, doc)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	tr, _ := ecs.GetComponent[*components.Transform](w, res.Nodes[0])
	if tr.Scale() != (mgl32.Vec3{2, 2, 2}) {
		t.Fatalf("expected scale 2, got %v", tr.Scale())
	}
}

func TestDecodeRejectsInvalidDocuments(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
	}{
		{"not json", `{`},
		{"short data", `{"buffers": [{"byteLength": 8, "data": "AAAA"}]}`},
		{"external uri", `{"buffers": [{"byteLength": 4, "uri": "mesh.bin"}]}`},
		{"view outside buffer", `{"buffers": [{"data": "AAAAAA=="}], "bufferViews": [{"buffer": 0, "byteOffset": 2, "byteLength": 4}]}`},
		{"dangling view", `{"accessors": [{"bufferView": 3, "componentType": 5126, "count": 1, "type": "VEC3"}]}`},
		{"no position", `{"meshes": [{"primitives": [{"attributes": {}}]}]}`},
		{"dangling mesh", `{"nodes": [{"mesh": 0}]}`},
		{"two parents", `{"nodes": [{"children": [2]}, {"children": [2]}, {}]}`},
		{"child as root", `{"nodes": [{"children": [1]}, {}], "scenes": [{"nodes": [1]}]}`},
		{"bad default scene", `{"nodes": [{}], "scenes": [{"nodes": [0]}], "scene": 2}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := convert.Decode(strings.NewReader(tc.src)); err == nil {
				t.Fatalf("expected an error")
			}
		})
	}

	_, err := convert.Decode(strings.NewReader(`{"nodes": [{"mesh": 0}]}`))
	if !errors.Is(err, convert.ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestImportCapacityExceeded(t *testing.T) {
	w := newWorld(t)
	size := w.Memory.Buffer(memory.GPUVertexData).ByteLength() + 8
	doc := &convert.Document{Buffers: []convert.Buffer{{ByteLength: size, Data: make([]byte, size)}}}
	if _, err := convert.Import(w, doc); !errors.Is(err, memory.ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
}

func TestImportUnknownAccessorType(t *testing.T) {
	w := newWorld(t)
	doc := triangleDocument()
	doc.Accessors[0].Type = "VEC7"
	if _, err := convert.Import(w, doc); err == nil {
		t.Fatalf("expected an unknown accessor type to fail")
	}
}

func TestImportCycleRollsBack(t *testing.T) {
	w := newWorld(t)
	doc := &convert.Document{Nodes: []convert.Node{{Children: []int{1}}, {Children: []int{0}}}}
	if _, err := convert.Import(w, doc); !errors.Is(err, components.ErrSceneGraphCycle) {
		t.Fatalf("expected ErrSceneGraphCycle, got %v", err)
	}
	if n := w.Entities.Count(); n != 0 {
		t.Fatalf("expected created entities deleted, %d alive", n)
	}
}

func TestImportedMeshRenders(t *testing.T) {
	w := newWorld(t)
	rec := gputest.New(gputest.FullCapabilities())
	if err := w.GPU.Register(rec); err != nil {
		t.Fatalf("Register backend: %v", err)
	}
	s, err := render.New(render.DataTexture, w)
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	defer s.Close()
	if err := w.System.SetStrategy(s); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	w.System.SetRenderPasses(ecs.RenderPass{Name: "main", Viewport: ecs.Viewport{Width: 64, Height: 64}})

	if _, err := convert.Import(w, triangleDocument()); err != nil {
		t.Fatalf("Import: %v", err)
	}
	if err := w.System.Process(); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(rec.Draws) != 1 || rec.Draws[0].Count != 3 || !rec.Draws[0].Indexed {
		t.Fatalf("expected one indexed triangle draw, got %+v", rec.Draws)
	}
}
