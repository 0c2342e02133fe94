package ecs

import (
	"fmt"
	"time"

	"github.com/irfansharif/garnet/internal/gpu"
)

// Strategy is the rendering strategy a world runs with. The concrete
// interface lives with the renderer; the scheduler only needs to know one
// has been chosen.
type Strategy interface {
	Name() string
}

// Viewport is a framebuffer rectangle in pixels.
type Viewport struct {
	X, Y, Width, Height int32
}

// RenderPass is one iteration of the Render stage.
type RenderPass struct {
	Name        string
	Framebuffer gpu.Handle // 0 is the default framebuffer
	Viewport    Viewport
	ClearColor  *[4]float32 // nil keeps the color buffer
	ClearDepth  bool
	Camera      EntityUID
	// Filter restricts the pass to a subset of entities. Nil admits all.
	Filter func(EntityUID) bool
}

// Context is handed to every bulk hook and stage callback.
type Context struct {
	World *World
	Stage Stage
	Tick  uint64
	Type  TypeID
	// Pass is the current render pass during the Render stage.
	Pass *RenderPass
	// Scheduled is the dense SID list being dispatched for Type and Stage.
	Scheduled []SID
}

// TickStats summarises one Process call.
type TickStats struct {
	Tick       uint64
	Duration   time.Duration
	Callbacks  [numStages]int // per-instance callbacks run per stage
	BulkHooks  int
	RenderPass int
}

// System drives the per-tick pipeline.
type System struct {
	world    *World
	strategy Strategy
	passes   []RenderPass
	tick     uint64
	stats    TickStats
	filtered []SID
}

func newSystem(w *World) *System {
	return &System{world: w}
}

// SetStrategy selects the rendering strategy for the rest of the run.
func (s *System) SetStrategy(strategy Strategy) error {
	if strategy == nil {
		return fmt.Errorf("ecs: nil strategy")
	}
	if s.strategy != nil {
		return fmt.Errorf("%w: %s, cannot switch to %s", ErrStrategyAlreadySelected, s.strategy.Name(), strategy.Name())
	}
	s.strategy = strategy
	ecsLogger.Printf("rendering strategy: %s", strategy.Name())
	return nil
}

// Strategy returns the selected rendering strategy, or nil.
func (s *System) Strategy() Strategy { return s.strategy }

// SetRenderPasses replaces the render passes run by the Render stage, in
// order.
func (s *System) SetRenderPasses(passes ...RenderPass) {
	s.passes = append(s.passes[:0], passes...)
}

// RenderPasses returns the configured render passes.
func (s *System) RenderPasses() []RenderPass { return s.passes }

// Tick returns the number of completed Process calls.
func (s *System) Tick() uint64 { return s.tick }

// LastStats returns the statistics of the last completed tick.
func (s *System) LastStats() TickStats { return s.stats }

// Process runs one tick: every stage in order, every type in ascending type
// id order within a stage, every scheduled instance in dense-list order
// within a type. The Render stage runs once per render pass. The first
// callback error aborts the tick and is returned.
func (s *System) Process() error {
	if s.strategy == nil {
		return ErrNoStrategy
	}
	start := time.Now()
	stats := TickStats{Tick: s.tick}

	for _, stage := range Stages {
		if stage == Render {
			if err := s.processRender(&stats); err != nil {
				return err
			}
			continue
		}
		for _, info := range s.world.Components.types {
			ctx := &Context{World: s.world, Stage: stage, Tick: s.tick, Type: info.id}
			if err := s.dispatch(info, ctx, info.rebuild(stage), &stats); err != nil {
				return err
			}
		}
	}

	s.tick++
	stats.Duration = time.Since(start)
	s.stats = stats
	return nil
}

func (s *System) processRender(stats *TickStats) error {
	if len(s.passes) == 0 {
		return nil
	}
	backend, err := s.world.GPU.Current()
	if err != nil {
		return fmt.Errorf("ecs: render stage: %w", err)
	}
	for i := range s.passes {
		pass := &s.passes[i]
		backend.BindFramebuffer(pass.Framebuffer)
		vp := pass.Viewport
		backend.Viewport(vp.X, vp.Y, vp.Width, vp.Height)
		backend.Clear(pass.ClearColor, pass.ClearDepth)
		stats.RenderPass++

		for _, info := range s.world.Components.types {
			scheduled := info.rebuild(Render)
			if pass.Filter != nil {
				s.filtered = s.filtered[:0]
				for _, sid := range scheduled {
					if c := info.instances[sid]; c != nil && pass.Filter(c.ecsBase().entity) {
						s.filtered = append(s.filtered, sid)
					}
				}
				scheduled = s.filtered
			}
			ctx := &Context{World: s.world, Stage: Render, Tick: s.tick, Type: info.id, Pass: pass}
			if err := s.dispatch(info, ctx, scheduled, stats); err != nil {
				return fmt.Errorf("%w (pass %q)", err, pass.Name)
			}
		}
	}
	return nil
}

func (s *System) dispatch(info *typeInfo, ctx *Context, scheduled []SID, stats *TickStats) error {
	ctx.Scheduled = scheduled
	if hook := info.spec.Bulk[ctx.Stage]; hook != nil {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("ecs: %s bulk %s hook: %w", info.spec.Name, ctx.Stage, err)
		}
		stats.BulkHooks++
	}

	cb := info.callbacks[ctx.Stage]
	if cb == nil {
		return nil
	}
	for _, sid := range scheduled {
		c := info.instances[sid]
		// Deleted, or moved on by an earlier callback of this dispatch.
		if c == nil || c.ecsBase().stage != ctx.Stage {
			continue
		}
		if err := cb(c, ctx); err != nil {
			return fmt.Errorf("ecs: %s sid %d %s: %w", info.spec.Name, sid, ctx.Stage, err)
		}
		stats.Callbacks[ctx.Stage]++
		if ctx.Stage == Discard {
			s.retire(info, c.ecsBase())
		}
	}
	return nil
}

// retire removes a discarded instance from scheduling; Discard runs once.
func (s *System) retire(info *typeInfo, b *Base) {
	if b.done || b.stage != Discard {
		return
	}
	info.removeFromStage(b.sid, Discard)
	b.done = true
}
