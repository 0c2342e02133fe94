package app_test

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/app"
	"github.com/irfansharif/garnet/internal/components"
	"github.com/irfansharif/garnet/internal/config"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu/gputest"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

func testConfig(kind render.Kind) config.Config {
	return config.Config{
		Strategy: kind,
		Seed:     42,
		Memory:   memory.Config{Width: 64, Height: 64, UniformHeight: 1},
	}
}

func newApp(t *testing.T, kind render.Kind) (*app.App, *gputest.Recorder) {
	t.Helper()
	rec := gputest.New(gputest.FullCapabilities())
	w, _, err := app.Setup(rec, testConfig(kind))
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	a, err := app.NewApp(nil, w, app.NewView(640, 480), 42)
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	t.Cleanup(a.Close)
	return a, rec
}

func frames(t *testing.T, a *app.App, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := a.Frame(); err != nil {
			t.Fatalf("Frame: %v", err)
		}
	}
}

func TestViewScreenToWorld(t *testing.T) {
	v := app.NewView(800, 600)
	if got := v.ScreenToWorld(400, 300); got != (mgl32.Vec2{0, 0}) {
		t.Fatalf("expected the viewport centre to map to the origin, got %v", got)
	}
	// 40 pixels per unit at zoom 1; y grows upwards in the world.
	if got := v.ScreenToWorld(440, 260); !got.ApproxEqual(mgl32.Vec2{1, 1}) {
		t.Fatalf("expected (1, 1), got %v", got)
	}

	v.SetZoom(2)
	v.SetPan(5, -5)
	if got := v.ScreenToWorld(440, 300); !got.ApproxEqual(mgl32.Vec2{5.5, -5}) {
		t.Fatalf("expected (5.5, -5), got %v", got)
	}

	v.SetZoom(100)
	if v.Zoom != 8 {
		t.Fatalf("expected zoom clamped to 8, got %f", v.Zoom)
	}
	v.ResetTo(mgl32.Vec2{1, 2})
	if v.Zoom != 1 || v.PanX != 1 || v.PanY != 2 {
		t.Fatalf("unexpected view after reset: %+v", v)
	}
}

func TestCapacitiesFor(t *testing.T) {
	full := gputest.FullCapabilities()
	caps := app.CapacitiesFor(testConfig(render.Auto), full)
	if caps.Nodes != 256 || caps.Meshes != 256 || caps.Cameras != 2 {
		t.Fatalf("unexpected capacities %+v", caps)
	}
	cfg := testConfig(render.DataTexture)
	cfg.Memory = memory.DefaultConfig()
	if got := app.CapacitiesFor(cfg, full); got != components.DefaultCapacities() {
		t.Fatalf("expected default capacities for the default arenas, got %+v", got)
	}

	// Uniform blocks bound node capacity to 48 bytes per world matrix.
	for _, tc := range []struct {
		kind  render.Kind
		block int
		nodes int
	}{
		{render.UniformBuffer, 16 * 1024, 341},
		{render.UniformBuffer, 64 * 1024, 1365},
		{render.UniformBuffer, 0, 341},
		{render.Auto, 16 * 1024, 341},
	} {
		gpuCaps := gputest.FullCapabilities()
		gpuCaps.MaxUniformBlockSize = tc.block
		cfg.Strategy = tc.kind
		got := app.CapacitiesFor(cfg, gpuCaps)
		if got.Nodes != tc.nodes {
			t.Fatalf("%s with %d-byte blocks: expected %d nodes, got %d", tc.kind, tc.block, tc.nodes, got.Nodes)
		}
		if got.Meshes != components.DefaultCapacities().Meshes {
			t.Fatalf("expected mesh capacity to be unaffected, got %d", got.Meshes)
		}
	}

	// Without uniform blocks Auto can only pick the data texture.
	noUBO := gputest.FullCapabilities()
	noUBO.UniformBuffer = false
	cfg.Strategy = render.Auto
	if got := app.CapacitiesFor(cfg, noUBO); got != components.DefaultCapacities() {
		t.Fatalf("expected default capacities without uniform blocks, got %+v", got)
	}
}

func TestDefaultArenasSelectUniformBuffer(t *testing.T) {
	for _, tc := range []struct {
		kind  render.Kind
		block int
	}{
		{render.Auto, 16 * 1024},
		{render.UniformBuffer, 16 * 1024},
		{render.Auto, 64 * 1024},
		{render.UniformBuffer, 64 * 1024},
	} {
		gpuCaps := gputest.FullCapabilities()
		gpuCaps.MaxUniformBlockSize = tc.block
		cfg := testConfig(tc.kind)
		cfg.Memory = memory.DefaultConfig()
		w, strategy, err := app.Setup(gputest.New(gpuCaps), cfg)
		if err != nil {
			t.Fatalf("Setup(%s, %d-byte blocks): %v", tc.kind, tc.block, err)
		}
		if got := strategy.Kind(); got != render.UniformBuffer {
			t.Fatalf("%s with %d-byte blocks: expected the uniform-buffer strategy, got %s", tc.kind, tc.block, got)
		}
		a, err := app.NewApp(nil, w, app.NewView(640, 480), 42)
		if err != nil {
			t.Fatalf("NewApp: %v", err)
		}
		if _, err := a.CreateCluster(320, 240); err != nil {
			t.Fatalf("CreateCluster: %v", err)
		}
		frames(t, a, 2)
		a.Close()
	}
}

func TestCreateCluster(t *testing.T) {
	a, rec := newApp(t, render.DataTexture)

	cluster, err := a.CreateCluster(320, 240)
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	if cluster.Position != (mgl32.Vec2{0, 0}) {
		t.Fatalf("expected the cluster at the origin, got %v", cluster.Position)
	}
	if n := len(cluster.Children); n < 3 || n > 8 {
		t.Fatalf("expected 3 to 8 petals, got %d", n)
	}
	// Camera, root and petals.
	if got, want := a.World.Entities.Count(), 2+len(cluster.Children); got != want {
		t.Fatalf("expected %d entities, got %d", want, got)
	}

	frames(t, a, 3)
	if len(rec.Draws) == 0 {
		t.Fatalf("expected draws after three frames")
	}
	for _, d := range rec.Draws {
		if d.Instances < 1 || !d.Indexed {
			t.Fatalf("unexpected draw %+v", d)
		}
	}

	// Petals sit on a ring around the root, in world space.
	for _, uid := range cluster.Children {
		sg, ok := ecs.GetComponent[*components.SceneGraph](a.World, uid)
		if !ok {
			t.Fatalf("petal %d has no scene graph node", uid)
		}
		pos := sg.WorldMatrix().Col(3)
		if r := math.Hypot(float64(pos[0]), float64(pos[1])); math.Abs(r-1.5) > 1e-4 {
			t.Fatalf("expected petal at radius 1.5, got %f", r)
		}
	}
}

func TestClustersAreDeterministic(t *testing.T) {
	a1, _ := newApp(t, render.DataTexture)
	a2, _ := newApp(t, render.DataTexture)
	c1, err := a1.CreateCluster(100, 100)
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	c2, err := a2.CreateCluster(100, 100)
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	if c1.Seed != c2.Seed || c1.Sides != c2.Sides || len(c1.Children) != len(c2.Children) {
		t.Fatalf("expected identical clusters from one seed, got %+v and %+v", c1, c2)
	}
}

func TestDeleteClosest(t *testing.T) {
	a, _ := newApp(t, render.DataTexture)
	left, err := a.CreateCluster(120, 240)
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	right, err := a.CreateCluster(520, 240)
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	frames(t, a, 2)

	if err := a.DeleteClosest(500, 250); err != nil {
		t.Fatalf("DeleteClosest: %v", err)
	}
	clusters := a.ClusterManager.GetClusters()
	if len(clusters) != 1 || clusters[0].ID != left.ID {
		t.Fatalf("expected only the left cluster to remain, got %v", clusters)
	}
	if _, ok := a.World.Entities.Entity(right.Root); ok {
		t.Fatalf("expected the right cluster's root deleted")
	}
	for _, uid := range right.Children {
		if _, ok := a.World.Entities.Entity(uid); ok {
			t.Fatalf("expected petal %d deleted with its root", uid)
		}
	}
	if got, want := a.World.Entities.Count(), 2+len(left.Children); got != want {
		t.Fatalf("expected %d entities, got %d", want, got)
	}
	frames(t, a, 2)

	if err := a.DeleteClosest(0, 0); err != nil {
		t.Fatalf("DeleteClosest: %v", err)
	}
	if err := a.DeleteClosest(0, 0); err != nil {
		t.Fatalf("DeleteClosest with no clusters: %v", err)
	}
	if got := a.World.Entities.Count(); got != 1 {
		t.Fatalf("expected only the camera left, got %d entities", got)
	}
}

func TestIterCluster(t *testing.T) {
	a, _ := newApp(t, render.DataTexture)
	cm := a.ClusterManager
	if cm.IterCluster(true) != nil {
		t.Fatalf("expected no cluster to iterate to")
	}
	var ids []app.ClusterID
	for _, x := range []float64{100, 300, 500} {
		c, err := a.CreateCluster(x, 240)
		if err != nil {
			t.Fatalf("CreateCluster: %v", err)
		}
		ids = append(ids, c.ID)
	}
	// The last created cluster is current.
	if c := cm.IterCluster(true); c.ID != ids[0] {
		t.Fatalf("expected to wrap to %d, got %d", ids[0], c.ID)
	}
	if c := cm.IterCluster(true); c.ID != ids[1] {
		t.Fatalf("expected %d, got %d", ids[1], c.ID)
	}
	if c := cm.IterCluster(false); c.ID != ids[0] {
		t.Fatalf("expected %d, got %d", ids[0], c.ID)
	}
	if c := cm.IterCluster(false); c.ID != ids[2] {
		t.Fatalf("expected to wrap to %d, got %d", ids[2], c.ID)
	}
}

func TestSpinMovesPetals(t *testing.T) {
	a, _ := newApp(t, render.DataTexture)
	cluster, err := a.CreateCluster(320, 240)
	if err != nil {
		t.Fatalf("CreateCluster: %v", err)
	}
	petal, _ := ecs.GetComponent[*components.SceneGraph](a.World, cluster.Children[0])
	before := petal.WorldMatrix().Col(3)

	a.ClusterManager.Spin(math.Pi / 2)
	after := petal.WorldMatrix().Col(3)
	if !after.ApproxEqualThreshold(mgl32.Vec4{-before[1], before[0], before[2], 1}, 1e-4) {
		t.Fatalf("expected %v rotated a quarter turn, got %v", before, after)
	}
}

func TestCameraFollowsView(t *testing.T) {
	a, _ := newApp(t, render.DataTexture)
	a.View.SetPan(3, 4)
	a.View.SetZoom(2)
	frames(t, a, 1)

	passes := a.World.System.RenderPasses()
	if len(passes) != 1 || passes[0].Viewport.Width != 640 || passes[0].Viewport.Height != 480 {
		t.Fatalf("unexpected render passes %+v", passes)
	}
	cam, ok := ecs.GetComponent[*components.Camera](a.World, passes[0].Camera)
	if !ok {
		t.Fatalf("render pass camera has no camera component")
	}
	// The view matrix moves the pan position to the origin.
	got := cam.ViewMatrix().Mul4x1(mgl32.Vec4{3, 4, 0, 1})
	if !got.ApproxEqualThreshold(mgl32.Vec4{0, 0, -10, 1}, 1e-4) {
		t.Fatalf("expected the pan point in front of the camera, got %v", got)
	}
	if got := a.Center(); got != (mgl32.Vec2{3, 4}) {
		t.Fatalf("expected centre (3, 4), got %v", got)
	}
}

func TestAutoPrefersUniformBuffer(t *testing.T) {
	a, _ := newApp(t, render.Auto)
	if got := a.Strategy.Kind(); got != render.UniformBuffer {
		t.Fatalf("expected the uniform-buffer strategy for a 12 KiB instance region, got %s", got)
	}
}

func TestEveryStrategyDraws(t *testing.T) {
	for _, kind := range []render.Kind{render.DataTexture, render.UniformBuffer, render.TransformFeedback} {
		t.Run(kind.String(), func(t *testing.T) {
			a, rec := newApp(t, kind)
			if a.Strategy.Kind() != kind {
				t.Fatalf("expected strategy %s, got %s", kind, a.Strategy.Kind())
			}
			if _, err := a.CreateCluster(320, 240); err != nil {
				t.Fatalf("CreateCluster: %v", err)
			}
			frames(t, a, 3)
			if len(rec.Draws) == 0 {
				t.Fatalf("expected draws")
			}
		})
	}
}

const sceneDocument = `{
	"buffers": [{"byteLength": 42, "uri": "data:application/octet-stream;base64,AAAAAAAAAAAAAAAAAACAPwAAAAAAAAAAAAAAAAAAgD8AAAAAAAABAAIA"}],
	"bufferViews": [
		{"buffer": 0, "byteOffset": 0, "byteLength": 36},
		{"buffer": 0, "byteOffset": 36, "byteLength": 6}
	],
	"accessors": [
		{"bufferView": 0, "componentType": 5126, "count": 3, "type": "VEC3"},
		{"bufferView": 1, "componentType": 5123, "count": 3, "type": "SCALAR"}
	],
	"meshes": [{"primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
	"nodes": [{"mesh": 0, "translation": [2, 0, 0]}]
}`

func TestImportScene(t *testing.T) {
	a, _ := newApp(t, render.DataTexture)
	path := filepath.Join(t.TempDir(), "scene.json")
	if err := os.WriteFile(path, []byte(sceneDocument), 0o644); err != nil {
		t.Fatal(err)
	}
	res, err := a.ImportScene(path)
	if err != nil {
		t.Fatalf("ImportScene: %v", err)
	}
	if len(res.Roots) != 1 || len(res.Meshes) != 1 {
		t.Fatalf("unexpected import result %+v", res)
	}
	frames(t, a, 2)
	r, ok := ecs.GetComponent[*components.MeshRenderer](a.World, res.Roots[0])
	if !ok || !r.Visible() {
		t.Fatalf("expected the imported node rendering")
	}

	if _, err := a.ImportScene(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("expected an error for a missing file")
	}
}
