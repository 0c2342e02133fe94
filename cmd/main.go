package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/pkg/profile"

	"github.com/irfansharif/garnet/internal/app"
	"github.com/irfansharif/garnet/internal/config"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/gpu/gl41"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/render"
)

const logFlags = log.Ltime | log.Lshortfile

var runtimeLogger *log.Logger = log.New(io.Discard, "", 0)

func init() {
	// OpenGL contexts are tied to specific OS threads - let's pin to just one.
	runtime.LockOSThread()
	log.SetFlags(logFlags)

	if os.Getenv("GARNET_DEBUG_RUNTIME") == "1" {
		runtimeLogger = log.New(os.Stdout, "[runtime] ", log.Ltime|log.Lmsgprefix)
	}
}

func makeTitle(fps float64, avgFrameTime float64, entities int, renderStats render.Stats, memStats memory.Stats) string {
	return fmt.Sprintf("Garnet (%.1f FPS, %.2fms/frame, %d entities, %d draw calls/frame, %.2fµs/draw, %.2fµs/prerender, %.1f%% arena)",
		fps,
		avgFrameTime,
		entities,
		renderStats.DrawCalls,
		renderStats.LastDrawTimeUs,
		renderStats.LastPrerenderTimeUs,
		100*float64(memStats.TakenBytes)/float64(memStats.TotalBytes),
	)
}

func startProfile(p config.Profile) interface{ Stop() } {
	switch p {
	case config.CPUProfile:
		return profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	case config.MemProfile:
		return profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	default:
		return noProfile{}
	}
}

type noProfile struct{}

func (noProfile) Stop() {}

func main() {
	flag.Parse()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	p := startProfile(cfg.Profile)
	defer p.Stop()

	if err := glfw.Init(); err != nil {
		log.Fatalf("Failed to initialize GLFW: %v", err)
	}
	defer glfw.Terminate()

	// Configure GLFW window hints - use OpenGL 4.1.
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)

	window, err := glfw.CreateWindow(
		1280, // width
		960,  // height
		"Garnet",
		nil, nil,
	)
	if err != nil {
		log.Fatalf("Failed to create window: %v", err)
	}
	window.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		log.Fatalf("Failed to initialize OpenGL: %v", err)
	}

	world, strategy, err := app.Setup(gl41.New(), cfg)
	if err != nil {
		log.Fatalf("Failed to set up world: %v", err)
	}
	runtimeLogger.Printf("Rendering with the %s strategy (seed %d)", strategy.Name(), cfg.Seed)

	cw, ch := window.GetFramebufferSize()
	application, err := app.NewApp(window, world, app.NewView(cw, ch), cfg.Seed)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}
	defer application.Close()

	if cfg.Scene != "" {
		if _, err := application.ImportScene(cfg.Scene); err != nil {
			log.Fatalf("Failed to import scene: %v", err)
		}
	} else {
		// Create initial cluster manually.
		if _, err := application.CreateCluster(float64(cw)/2, float64(ch)/2); err != nil {
			log.Fatalf("Failed to create cluster: %v", err)
		}
	}

	// Initialize event handlers.
	eventHandlers := NewEventHandlers(application)

	frameCount, frameTimeSum := 0, 0.0
	lastFPSUpdate := time.Now()
	var lastTick ecs.TickStats

	// Main loop.
	for !application.Window.ShouldClose() {
		frameStart := time.Now()

		eventHandlers.handleContinuousSpin()
		eventHandlers.handleContinuousPanning()

		if err := application.Frame(); err != nil {
			log.Fatalf("Frame failed: %v", err)
		}
		lastTick = world.System.LastStats()
		application.Window.SwapBuffers()
		glfw.PollEvents()

		frameTime := time.Since(frameStart).Seconds() * 1000.0 // ms
		frameTimeSum += frameTime

		frameCount++
		now := time.Now()
		if now.Sub(lastFPSUpdate) >= time.Second {
			fps := float64(frameCount) / now.Sub(lastFPSUpdate).Seconds()
			avgFrameTime := frameTimeSum / float64(frameCount)
			frameCount, frameTimeSum = 0, 0.0
			lastFPSUpdate = now

			entities := world.Entities.Count()
			memStats := world.Memory.Stats()
			renderStats := strategy.Stats()

			application.Window.SetTitle(
				makeTitle(fps, avgFrameTime, entities, renderStats, memStats),
			)

			runtimeLogger.Println("=== Performance statistics ===")
			runtimeLogger.Printf("Frame rate:     %.1f FPS (%.2f ms/frame, %d draw calls/frame)", fps, avgFrameTime, renderStats.DrawCalls)
			runtimeLogger.Printf("Scene:          %d entities, %d clusters", entities, len(application.ClusterManager.GetClusters()))
			runtimeLogger.Printf("Tick:           #%d in %s, %d bulk hooks, %d render passes", lastTick.Tick, lastTick.Duration, lastTick.BulkHooks, lastTick.RenderPass)
			runtimeLogger.Printf("Arenas:         %d of %d bytes, %d views, %d accessors", memStats.TakenBytes, memStats.TotalBytes, memStats.Views, memStats.Accessors)
			runtimeLogger.Printf("Render time:    %.2f µs (last draw), %.2f µs (last prerender)", renderStats.LastDrawTimeUs, renderStats.LastPrerenderTimeUs)
			runtimeLogger.Printf("Uploads:        %d (%.2f MiB total)", renderStats.Uploads, float64(renderStats.UploadedBytes)/(1024.0*1024.0))
			runtimeLogger.Println("==============================")
		}
	}
}
