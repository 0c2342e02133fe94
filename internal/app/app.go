package app

import (
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/components"
	"github.com/irfansharif/garnet/internal/config"
	"github.com/irfansharif/garnet/internal/convert"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/palette"
	"github.com/irfansharif/garnet/internal/render"
)

var appLogger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GARNET_DEBUG_RUNTIME") == "1" {
		appLogger = log.New(os.Stdout, "[app] ", log.Ltime|log.Lmsgprefix)
	}
}

// App encapsulates the main application state and logic.
type App struct {
	Window         *glfw.Window // nil when running headless
	World          *ecs.World
	Strategy       render.Strategy
	View           *View
	ClusterManager *ClusterManager
	Palette        palette.Palette

	camera ecs.EntityUID
}

const (
	// instanceBytes is one node's affine world matrix in the instance arena.
	instanceBytes = 48
	// minUniformBlockSize is the smallest GL_MAX_UNIFORM_BLOCK_SIZE a 4.1
	// driver may report.
	minUniformBlockSize = 16 * 1024
)

// CapacitiesFor sizes the component pools to the arenas of cfg. When the
// uniform-buffer strategy is requested, or Auto may pick it, node capacity
// is also capped so every world matrix fits a single uniform block.
func CapacitiesFor(cfg config.Config, gpuCaps gpu.Capabilities) components.Capacities {
	caps := components.DefaultCapacities()
	texels := cfg.Memory.Width * cfg.Memory.Height
	caps.Nodes = min(caps.Nodes, texels/16)
	caps.Meshes = min(caps.Meshes, texels/16)
	// Two mat4 uniforms per camera.
	caps.Cameras = max(1, min(caps.Cameras, cfg.Memory.Width*cfg.Memory.UniformHeight/32))

	if cfg.Strategy == render.UniformBuffer || (cfg.Strategy == render.Auto && gpuCaps.UniformBuffer) {
		block := gpuCaps.MaxUniformBlockSize
		if block <= 0 {
			block = minUniformBlockSize
		}
		caps.Nodes = max(1, min(caps.Nodes, block/instanceBytes))
	}
	return caps
}

// Setup builds a world on the given backend with every component type
// registered and the configured strategy installed.
func Setup(backend gpu.Backend, cfg config.Config) (*ecs.World, render.Strategy, error) {
	w, err := ecs.NewWorld(cfg.Memory)
	if err != nil {
		return nil, nil, err
	}
	if err := w.GPU.Register(backend); err != nil {
		return nil, nil, err
	}
	if err := components.Register(w, CapacitiesFor(cfg, backend.Capabilities())); err != nil {
		return nil, nil, err
	}
	strategy, err := render.New(cfg.Strategy, w)
	if err != nil {
		return nil, nil, err
	}
	if err := w.System.SetStrategy(strategy); err != nil {
		strategy.Close()
		return nil, nil, err
	}
	appLogger.Printf("strategy %s (%s)", strategy.Name(), strategy.Kind())
	return w, strategy, nil
}

// NewApp creates a new application instance on a world returned by Setup.
func NewApp(window *glfw.Window, w *ecs.World, view *View, seed int64) (*App, error) {
	strategy, err := render.FromWorld(w)
	if err != nil {
		return nil, err
	}
	r := rand.New(rand.NewSource(seed))
	p := palette.Shimmered(palette.RandomPalette(r), 8, r)
	library, err := NewMeshLibrary(w, p)
	if err != nil {
		return nil, fmt.Errorf("app: mesh library: %w", err)
	}

	camera := w.Entities.CreateEntity().UID()
	if _, err := ecs.AddComponent[*components.Transform](w, camera); err != nil {
		return nil, err
	}
	if _, err := ecs.AddComponent[*components.SceneGraph](w, camera); err != nil {
		return nil, err
	}
	if _, err := ecs.AddComponent[*components.Camera](w, camera); err != nil {
		return nil, err
	}

	app := &App{
		Window:         window,
		World:          w,
		Strategy:       strategy,
		View:           view,
		ClusterManager: NewClusterManager(w, library, seed),
		Palette:        p,
		camera:         camera,
	}
	app.Sync()
	return app, nil
}

// CreateCluster creates a new cluster at the specified framebuffer position.
func (app *App) CreateCluster(screenX, screenY float64) (*Cluster, error) {
	seed := app.ClusterManager.IncrementSeed()
	pos := app.View.ScreenToWorld(screenX, screenY)
	cluster, err := app.ClusterManager.AddCluster(pos, seed)
	if err != nil {
		return nil, fmt.Errorf("app: cluster at %v: %w", pos, err)
	}
	app.ClusterManager.SetCurrentCluster(cluster)
	appLogger.Printf("cluster %d at (%.2f, %.2f) with %d petals, seed %d",
		cluster.ID, pos[0], pos[1], len(cluster.Children), seed)
	return cluster, nil
}

// DeleteClosest deletes the cluster closest to the given framebuffer
// position, if any.
func (app *App) DeleteClosest(screenX, screenY float64) error {
	clusters := app.ClusterManager.FindClosestClusters(app.View.ScreenToWorld(screenX, screenY))
	if len(clusters) == 0 {
		return nil // nothing to do
	}
	return app.ClusterManager.RemoveCluster(clusters[0].ID)
}

// ImportScene loads a scene document and adds its nodes to the world.
func (app *App) ImportScene(path string) (*convert.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := convert.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("app: %s: %w", path, err)
	}
	res, err := convert.Import(app.World, doc)
	if err != nil {
		return nil, fmt.Errorf("app: %s: %w", path, err)
	}
	appLogger.Printf("imported %s: %d nodes", path, len(res.Nodes))
	return res, nil
}

// Sync points the camera at the view and sizes the render pass to it.
func (app *App) Sync() {
	cam, ok := ecs.GetComponent[*components.Camera](app.World, app.camera)
	if !ok {
		return
	}
	tr, _ := ecs.GetComponent[*components.Transform](app.World, app.camera)
	app.View.Apply(cam, tr)

	bg := palette.Linear(app.Palette[1])
	app.World.System.SetRenderPasses(ecs.RenderPass{
		Name:       "main",
		Viewport:   ecs.Viewport{Width: int32(app.View.Width), Height: int32(app.View.Height)},
		ClearColor: &[4]float32{bg[0], bg[1], bg[2], 1},
		ClearDepth: true,
		Camera:     app.camera,
	})
}

// Frame runs one tick of the world.
func (app *App) Frame() error {
	app.Sync()
	return app.World.System.Process()
}

// Center returns the world position at the centre of the view.
func (app *App) Center() mgl32.Vec2 {
	return mgl32.Vec2{float32(app.View.PanX), float32(app.View.PanY)}
}

// Close releases the strategy's GPU resources.
func (app *App) Close() { app.Strategy.Close() }
