// Package components holds the concrete component types of the engine:
// local transforms, the scene graph whose world matrices fill the GPU
// instance arena, cameras, mesh references and mesh renderers.
package components

import (
	"errors"
	"fmt"

	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/render"
)

var (
	// ErrSceneGraphCycle is returned when linking a node under one of its
	// own descendants.
	ErrSceneGraphCycle = errors.New("components: scene graph cycle")
	// ErrNoMesh is returned when a mesh renderer's entity carries no mesh.
	ErrNoMesh = errors.New("components: entity has no mesh")
)

// Capacities bounds the number of live instances per type.
type Capacities struct {
	Nodes   int // Transform and SceneGraph
	Cameras int
	Meshes  int // Mesh and MeshRenderer
}

// DefaultCapacities fits comfortably in the default arenas.
func DefaultCapacities() Capacities {
	return Capacities{Nodes: 16384, Cameras: 8, Meshes: 16384}
}

// Register registers every component type, in the order the scheduler
// dispatches them: Transform, SceneGraph, Camera, Mesh, MeshRenderer.
func Register(w *ecs.World, caps Capacities) error {
	renderers := &rendererHooks{}
	for _, spec := range []ecs.TypeSpec{
		{Name: "Transform", MaxInstances: caps.Nodes, New: func() ecs.Component { return &Transform{} }},
		{Name: render.InstanceType, MaxInstances: caps.Nodes, New: func() ecs.Component { return &SceneGraph{} }},
		{Name: "Camera", MaxInstances: caps.Cameras, New: func() ecs.Component { return &Camera{} }},
		{Name: "Mesh", MaxInstances: caps.Meshes, New: func() ecs.Component { return &Mesh{} }},
		{
			Name:         "MeshRenderer",
			MaxInstances: caps.Meshes,
			New:          func() ecs.Component { return &MeshRenderer{} },
			Bulk: map[ecs.Stage]func(*ecs.Context) error{
				ecs.PreRender: renderers.prerender,
				ecs.Render:    renderers.render,
			},
		},
	} {
		if _, err := w.Components.RegisterType(spec); err != nil {
			return fmt.Errorf("components: %w", err)
		}
	}
	return nil
}
