package components_test

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/components"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu/gputest"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

var testCapacities = components.Capacities{Nodes: 16, Cameras: 2, Meshes: 16}

func newWorld(t *testing.T) *ecs.World {
	t.Helper()
	w, err := ecs.NewWorld(memory.Config{Width: 64, Height: 64, UniformHeight: 1})
	if err != nil {
		t.Fatalf("NewWorld: %v", err)
	}
	if err := components.Register(w, testCapacities); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return w
}

// newRenderingWorld also installs a recording backend and a strategy.
func newRenderingWorld(t *testing.T) (*ecs.World, *gputest.Recorder, render.Strategy) {
	t.Helper()
	w := newWorld(t)
	rec := gputest.New(gputest.FullCapabilities())
	if err := w.GPU.Register(rec); err != nil {
		t.Fatalf("Register backend: %v", err)
	}
	s, err := render.New(render.Auto, w)
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	t.Cleanup(s.Close)
	if err := w.System.SetStrategy(s); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	return w, rec, s
}

func add[T ecs.Component](t *testing.T, w *ecs.World, uid ecs.EntityUID) T {
	t.Helper()
	c, err := ecs.AddComponent[T](w, uid)
	if err != nil {
		t.Fatalf("AddComponent: %v", err)
	}
	return c
}

// node creates an entity with a transform and a scene graph node, linked
// under parent if one is given.
func node(t *testing.T, w *ecs.World, parent *components.SceneGraph) (ecs.EntityUID, *components.Transform, *components.SceneGraph) {
	t.Helper()
	uid := w.Entities.CreateEntity().UID()
	tr := add[*components.Transform](t, w, uid)
	sg := add[*components.SceneGraph](t, w, uid)
	if parent != nil {
		if err := parent.AddChild(sg); err != nil {
			t.Fatalf("AddChild: %v", err)
		}
	}
	return uid, tr, sg
}

func process(t *testing.T, w *ecs.World, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		if err := w.System.Process(); err != nil {
			t.Fatalf("Process: %v", err)
		}
	}
}

func TestRegisterOrder(t *testing.T) {
	w := newWorld(t)
	for i, name := range []string{"Transform", "SceneGraph", "Camera", "Mesh", "MeshRenderer"} {
		id, ok := w.Components.TypeByName(name)
		if !ok || id != ecs.TypeID(i) {
			t.Fatalf("expected %s registered as type %d, got %d (%t)", name, i, id, ok)
		}
	}
	if err := components.Register(w, testCapacities); !errors.Is(err, ecs.ErrTypeAlreadyRegistered) {
		t.Fatalf("expected a second registration to fail, got %v", err)
	}
}

func TestWorldTranslation(t *testing.T) {
	w := newWorld(t)
	_, tr, sg := node(t, w, nil)
	tr.SetTranslation(mgl32.Vec3{1, 2, 3})

	m := sg.WorldMatrix()
	if got := m.Col(3); got != (mgl32.Vec4{1, 2, 3, 1}) {
		t.Fatalf("expected translation (1,2,3), got %v", got)
	}
	if !m.Mat3().ApproxEqual(mgl32.Ident3()) {
		t.Fatalf("expected identity rotation and scale, got %v", m.Mat3())
	}

	acc, _ := w.Components.Accessor(sg.TypeID(), render.InstanceMember)
	if got := acc.GetAffine(int(sg.SID())); !got.ApproxEqual(m) {
		t.Fatalf("instance arena holds %v, want %v", got, m)
	}
}

func TestChildWorldTranslation(t *testing.T) {
	w := newWorld(t)
	_, parentTr, parent := node(t, w, nil)
	_, childTr, child := node(t, w, parent)
	parentTr.SetTranslation(mgl32.Vec3{10, 0, 0})
	childTr.SetTranslation(mgl32.Vec3{0, 5, 0})

	if got := child.WorldMatrix().Col(3).Vec3(); got != (mgl32.Vec3{10, 5, 0}) {
		t.Fatalf("expected child world translation (10,5,0), got %v", got)
	}
	if child.Parent() != parent || len(parent.Children()) != 1 {
		t.Fatalf("expected child linked under parent")
	}
}

func TestDirtyPropagation(t *testing.T) {
	w := newWorld(t)
	_, rootTr, root := node(t, w, nil)
	_, _, mid := node(t, w, root)
	_, leafTr, leaf := node(t, w, mid)
	leafTr.SetTranslation(mgl32.Vec3{0, 0, 1})
	leaf.WorldMatrix()

	rootTr.SetRotation(mgl32.QuatRotate(mgl32.DegToRad(90), mgl32.Vec3{0, 1, 0}))
	rootTr.Translate(mgl32.Vec3{5, 0, 0})
	got := leaf.WorldMatrix().Col(3).Vec3()
	if !got.ApproxEqualThreshold(mgl32.Vec3{6, 0, 0}, 1e-5) {
		t.Fatalf("expected the leaf to follow the root to (6,0,0), got %v", got)
	}

	// Re-parenting the leaf to the root skips the middle node.
	if err := root.AddChild(leaf); err != nil {
		t.Fatalf("AddChild: %v", err)
	}
	if len(mid.Children()) != 0 || leaf.Parent() != root {
		t.Fatalf("expected the leaf moved under the root")
	}
	if !leaf.WorldMatrix().Col(3).Vec3().ApproxEqualThreshold(mgl32.Vec3{6, 0, 0}, 1e-5) {
		t.Fatalf("unexpected world translation after re-parenting: %v", leaf.WorldMatrix().Col(3))
	}
}

func TestSceneGraphRejectsCycles(t *testing.T) {
	w := newWorld(t)
	_, _, root := node(t, w, nil)
	_, _, child := node(t, w, root)
	if err := child.AddChild(root); !errors.Is(err, components.ErrSceneGraphCycle) {
		t.Fatalf("expected ErrSceneGraphCycle, got %v", err)
	}
	if err := root.AddChild(root); !errors.Is(err, components.ErrSceneGraphCycle) {
		t.Fatalf("expected ErrSceneGraphCycle for a self link, got %v", err)
	}
}

func TestDeleteEntityCascadesThroughSceneGraph(t *testing.T) {
	w := newWorld(t)
	rootUID, _, root := node(t, w, nil)
	_, _, a := node(t, w, root)
	node(t, w, root)
	node(t, w, a)
	otherUID, _, _ := node(t, w, nil)

	if err := w.Entities.DeleteEntity(rootUID); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if got := w.Entities.AliveEntities(); len(got) != 1 || got[0] != otherUID {
		t.Fatalf("expected only the unrelated entity alive, got %v", got)
	}
	sgType, _ := ecs.TypeOf[*components.SceneGraph](w)
	if got := w.Components.Live(sgType); got != 1 {
		t.Fatalf("expected one live scene graph node, got %d", got)
	}
}

func TestDeleteChildUnlinks(t *testing.T) {
	w := newWorld(t)
	_, _, root := node(t, w, nil)
	childUID, _, _ := node(t, w, root)
	if err := w.Entities.DeleteEntity(childUID); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if len(root.Children()) != 0 {
		t.Fatalf("expected the deleted child unlinked, have %d children", len(root.Children()))
	}
}

func TestMeshSIDReuse(t *testing.T) {
	w := newWorld(t)
	buf := w.Memory.Buffer(memory.GPUVertexData)
	cube, err := render.NewCubeMesh(buf, 1, nil)
	if err != nil {
		t.Fatalf("NewCubeMesh: %v", err)
	}
	var uids []ecs.EntityUID
	for i := 0; i < 5; i++ {
		uid := w.Entities.CreateEntity().UID()
		add[*components.Mesh](t, w, uid).Set(cube)
		uids = append(uids, uid)
	}
	meshType, _ := ecs.TypeOf[*components.Mesh](w)
	m, _ := ecs.GetComponent[*components.Mesh](w, uids[3])
	if m.SID() != 3 {
		t.Fatalf("expected sid 3, got %d", m.SID())
	}
	if err := w.Entities.RemoveComponentFromEntity(meshType, uids[3]); err != nil {
		t.Fatalf("RemoveComponentFromEntity: %v", err)
	}

	fresh := add[*components.Mesh](t, w, w.Entities.CreateEntity().UID())
	if fresh.SID() != 3 {
		t.Fatalf("expected the freed sid 3 reused, got %d", fresh.SID())
	}
	if b := fresh.Bounds(); b.Min != (mgl32.Vec3{}) || b.Max != (mgl32.Vec3{}) {
		t.Fatalf("expected a reused slot re-initialised, got %+v", b)
	}
}

func TestCameraMatrices(t *testing.T) {
	w := newWorld(t)
	uid, tr, _ := node(t, w, nil)
	cam := add[*components.Camera](t, w, uid)
	tr.SetTranslation(mgl32.Vec3{0, 0, 10})

	view := cam.ViewMatrix()
	if got := view.Mul4x1(mgl32.Vec4{0, 0, 0, 1}); !got.ApproxEqual(mgl32.Vec4{0, 0, -10, 1}) {
		t.Fatalf("expected the origin 10 units in front of the camera, got %v", got)
	}

	cam.SetPerspective(mgl32.DegToRad(60), 2, 0.5, 50)
	if !cam.ProjectionMatrix().ApproxEqual(mgl32.Perspective(mgl32.DegToRad(60), 2, 0.5, 50)) {
		t.Fatalf("unexpected perspective projection")
	}
	cam.SetOrthographic(10, 2, 0.1, 100)
	if !cam.Orthographic() || !cam.ProjectionMatrix().ApproxEqual(mgl32.Ortho(-10, 10, -5, 5, 0.1, 100)) {
		t.Fatalf("unexpected orthographic projection %v", cam.ProjectionMatrix())
	}
	cam.SetAspect(1)
	if !cam.ProjectionMatrix().ApproxEqual(mgl32.Ortho(-5, 5, -5, 5, 0.1, 100)) {
		t.Fatalf("aspect change not applied")
	}
}

type scene struct {
	w      *ecs.World
	rec    *gputest.Recorder
	camera ecs.EntityUID
	cube   *render.Mesh
	plane  *render.Mesh
}

func newScene(t *testing.T) *scene {
	t.Helper()
	w, rec, _ := newRenderingWorld(t)
	buf := w.Memory.Buffer(memory.GPUVertexData)
	cube, err := render.NewCubeMesh(buf, 1, nil)
	if err != nil {
		t.Fatalf("NewCubeMesh: %v", err)
	}
	plane, err := render.NewPlaneMesh(buf, 4, 4, nil)
	if err != nil {
		t.Fatalf("NewPlaneMesh: %v", err)
	}
	camUID, camTr, _ := node(t, w, nil)
	add[*components.Camera](t, w, camUID)
	camTr.SetTranslation(mgl32.Vec3{0, 0, 10})
	w.System.SetRenderPasses(ecs.RenderPass{
		Name:       "main",
		Viewport:   ecs.Viewport{Width: 640, Height: 480},
		ClearColor: &[4]float32{0, 0, 0, 1},
		ClearDepth: true,
		Camera:     camUID,
	})
	return &scene{w: w, rec: rec, camera: camUID, cube: cube, plane: plane}
}

func (s *scene) renderable(t *testing.T, mesh *render.Mesh) (ecs.EntityUID, *components.MeshRenderer) {
	t.Helper()
	uid, _, _ := node(t, s.w, nil)
	add[*components.Mesh](t, s.w, uid).Set(mesh)
	return uid, add[*components.MeshRenderer](t, s.w, uid)
}

func TestMeshRendererLifecycle(t *testing.T) {
	s := newScene(t)
	_, r := s.renderable(t, s.cube)
	if r.Stage() != ecs.Create {
		t.Fatalf("expected a new renderer in create, got %s", r.Stage())
	}

	process(t, s.w, 1)
	if !r.Visible() {
		t.Fatalf("expected the renderer to reach render within its first tick, in %s", r.Stage())
	}
	if len(s.rec.Draws) != 1 || s.rec.Draws[0].Instances != 1 || s.rec.Draws[0].Count != 36 {
		t.Fatalf("unexpected draws %+v", s.rec.Draws)
	}
	if got := s.rec.Rect; got != [4]int32{0, 0, 640, 480} {
		t.Fatalf("expected the pass viewport applied, got %v", got)
	}

	cam, _ := ecs.GetComponent[*components.Camera](s.w, s.camera)
	prog := s.rec.Programs[s.rec.Draws[0].Program]
	if got := mgl32.Mat4(prog.Mat4s["uView"]); !got.ApproxEqual(cam.ViewMatrix()) {
		t.Fatalf("expected the pass camera's view matrix, got %v", got)
	}

	process(t, s.w, 1)
	if len(s.rec.Draws) != 2 {
		t.Fatalf("expected the renderer drawn again on the next tick, have %d draws", len(s.rec.Draws))
	}

	deletes := s.rec.CallCount("DeleteBuffer")
	r.Hide()
	process(t, s.w, 1)
	if r.Stage() != ecs.Discard {
		t.Fatalf("expected the hidden renderer discarded, in %s", r.Stage())
	}
	if len(s.rec.Draws) != 2 {
		t.Fatalf("expected no draw for a hidden renderer, have %d draws", len(s.rec.Draws))
	}
	if got := s.rec.CallCount("DeleteBuffer") - deletes; got != 2 {
		t.Fatalf("expected the cube's vertex and index buffers released, saw %d deletes", got)
	}
}

func TestMeshRendererWaitsForMesh(t *testing.T) {
	s := newScene(t)
	uid, _, _ := node(t, s.w, nil)
	r := add[*components.MeshRenderer](t, s.w, uid)
	process(t, s.w, 2)
	if r.Stage() != ecs.Create || len(s.rec.Draws) != 0 {
		t.Fatalf("expected the renderer to wait in create, in %s with %d draws", r.Stage(), len(s.rec.Draws))
	}

	add[*components.Mesh](t, s.w, uid).Set(s.plane)
	process(t, s.w, 1)
	if !r.Visible() || len(s.rec.Draws) != 1 {
		t.Fatalf("expected the renderer drawn once its mesh is set, in %s with %d draws", r.Stage(), len(s.rec.Draws))
	}
}

func TestMeshRendererBatchesByMesh(t *testing.T) {
	s := newScene(t)
	var sids []ecs.SID
	for i := 0; i < 3; i++ {
		uid, _ := s.renderable(t, s.cube)
		sg, _ := ecs.GetComponent[*components.SceneGraph](s.w, uid)
		sids = append(sids, sg.SID())
	}
	for i := 0; i < 2; i++ {
		s.renderable(t, s.plane)
	}
	process(t, s.w, 1)

	if len(s.rec.Draws) != 2 {
		t.Fatalf("expected one instanced draw per mesh, got %d", len(s.rec.Draws))
	}
	if s.rec.Draws[0].Instances != 3 || s.rec.Draws[1].Instances != 2 {
		t.Fatalf("unexpected instance counts %d and %d", s.rec.Draws[0].Instances, s.rec.Draws[1].Instances)
	}
	if s.rec.Draws[0].Count != 36 || s.rec.Draws[1].Count != 6 {
		t.Fatalf("unexpected index counts %d and %d", s.rec.Draws[0].Count, s.rec.Draws[1].Count)
	}
	// The camera took scene graph sid 0.
	if sids[0] != 1 || sids[2] != 3 {
		t.Fatalf("unexpected scene graph sids %v", sids)
	}
}

func TestRenderPassLayerFilter(t *testing.T) {
	s := newScene(t)
	_, a := s.renderable(t, s.cube)
	_, b := s.renderable(t, s.cube)
	a.SetLayers(1)
	b.SetLayers(1 | 2)

	main := s.w.System.RenderPasses()[0]
	overlay := ecs.RenderPass{
		Name:     "overlay",
		Viewport: ecs.Viewport{Width: 160, Height: 120},
		Camera:   s.camera,
		Filter:   components.LayerFilter(s.w, 2),
	}
	s.w.System.SetRenderPasses(main, overlay)
	process(t, s.w, 1)

	if len(s.rec.Draws) != 2 {
		t.Fatalf("expected one draw per pass, got %d", len(s.rec.Draws))
	}
	if s.rec.Draws[0].Instances != 2 || s.rec.Draws[1].Instances != 1 {
		t.Fatalf("expected 2 instances in the main pass and 1 in the overlay, got %d and %d",
			s.rec.Draws[0].Instances, s.rec.Draws[1].Instances)
	}
	if s.w.System.LastStats().RenderPass != 2 {
		t.Fatalf("expected two render passes, got %d", s.w.System.LastStats().RenderPass)
	}
}

func TestDeleteVisibleRendererReleasesMesh(t *testing.T) {
	s := newScene(t)
	uid, _ := s.renderable(t, s.cube)
	process(t, s.w, 1)

	deletes := s.rec.CallCount("DeleteBuffer")
	if err := s.w.Entities.DeleteEntity(uid); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	if got := s.rec.CallCount("DeleteBuffer") - deletes; got != 2 {
		t.Fatalf("expected the mesh released on delete, saw %d deletes", got)
	}
	process(t, s.w, 1)
	if len(s.rec.Draws) != 1 {
		t.Fatalf("expected no draw after deletion, have %d draws", len(s.rec.Draws))
	}
}

func TestRendererHooksNeedRenderingStrategy(t *testing.T) {
	w := newWorld(t)
	s := &stubStrategy{}
	if err := w.System.SetStrategy(s); err != nil {
		t.Fatalf("SetStrategy: %v", err)
	}
	if err := w.System.Process(); !errors.Is(err, ecs.ErrNoStrategy) {
		t.Fatalf("expected the renderer hooks to reject a non-rendering strategy, got %v", err)
	}
}

type stubStrategy struct{}

func (*stubStrategy) Name() string { return "stub" }
