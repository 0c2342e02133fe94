// Package ecs is the entity-component core: a component registry whose
// member fields live in the memory arenas, an entity repository with
// cascading deletion, and the scheduler that drives every component instance
// through the fixed per-tick stage pipeline.
//
// Everything hangs off a World, which is constructed once at startup and
// passed explicitly; there is no package-level state besides the logger.
package ecs

import (
	"io"
	"log"
	"os"
	"reflect"

	"github.com/irfansharif/garnet/internal/gpu"
	"github.com/irfansharif/garnet/internal/memory"
)

var ecsLogger = log.New(io.Discard, "", 0)

func init() {
	if os.Getenv("GARNET_DEBUG_ECS") == "1" {
		ecsLogger = log.New(os.Stdout, "[ecs] ", log.Ltime|log.Lmsgprefix)
	}
}

// World owns the arenas, the GPU context registry, both repositories and the
// scheduler.
type World struct {
	Memory     *memory.Manager
	GPU        *gpu.Registry
	Components *ComponentRepository
	Entities   *EntityRepository
	System     *System
}

// NewWorld constructs a world whose arenas are sized from cfg.
func NewWorld(cfg memory.Config) (*World, error) {
	mm, err := memory.NewManager(cfg)
	if err != nil {
		return nil, err
	}
	w := &World{Memory: mm, GPU: gpu.NewRegistry()}
	w.Components = newComponentRepository(w)
	w.Entities = newEntityRepository(w)
	w.System = newSystem(w)
	return w, nil
}

// TypeOf returns the TypeID registered for the Go type T.
func TypeOf[T Component](w *World) (TypeID, bool) {
	var zero T
	id, ok := w.Components.byGo[reflect.TypeOf(zero)]
	return id, ok
}

// GetComponent returns the entity's component of Go type T.
func GetComponent[T Component](w *World, uid EntityUID) (T, bool) {
	var zero T
	id, ok := TypeOf[T](w)
	if !ok {
		return zero, false
	}
	c, ok := w.Entities.GetComponentOfEntity(uid, id)
	if !ok {
		return zero, false
	}
	typed, ok := c.(T)
	return typed, ok
}

// AddComponent attaches a component of Go type T to the entity.
func AddComponent[T Component](w *World, uid EntityUID) (T, error) {
	var zero T
	id, ok := TypeOf[T](w)
	if !ok {
		return zero, ErrTypeNotRegistered
	}
	c, err := w.Entities.AddComponentToEntity(id, uid)
	if err != nil {
		return zero, err
	}
	return c.(T), nil
}

// Components returns the live components of Go type T in SID order.
func Components[T Component](w *World) []T {
	id, ok := TypeOf[T](w)
	if !ok {
		return nil
	}
	all := w.Components.GetComponentsWithType(id)
	out := make([]T, len(all))
	for i, c := range all {
		out[i] = c.(T)
	}
	return out
}
