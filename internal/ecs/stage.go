package ecs

// Stage is one phase of the per-tick pipeline. Every component instance sits
// in exactly one stage and only leaves it by calling MoveStageTo from one of
// its own callbacks.
type Stage int

const (
	Create Stage = iota
	Load
	Mount
	Logic
	PreRender
	Render
	Unmount
	Discard

	numStages
)

// Stages lists every stage in dispatch order.
var Stages = [numStages]Stage{Create, Load, Mount, Logic, PreRender, Render, Unmount, Discard}

func (s Stage) String() string {
	switch s {
	case Create:
		return "create"
	case Load:
		return "load"
	case Mount:
		return "mount"
	case Logic:
		return "logic"
	case PreRender:
		return "prerender"
	case Render:
		return "render"
	case Unmount:
		return "unmount"
	case Discard:
		return "discard"
	default:
		return "unknown"
	}
}

// Optional per-instance stage callbacks. A component type implements any
// subset; which ones it implements is resolved once at registration.
type (
	Creator     interface{ OnCreate(ctx *Context) error }
	Loader      interface{ OnLoad(ctx *Context) error }
	Mounter     interface{ OnMount(ctx *Context) error }
	LogicRunner interface{ OnLogic(ctx *Context) error }
	PreRenderer interface{ OnPreRender(ctx *Context) error }
	Renderer    interface{ OnRender(ctx *Context) error }
	Unmounter   interface{ OnUnmount(ctx *Context) error }
	Discarder   interface{ OnDiscard(ctx *Context) error }
)

// Destroyer is implemented by components that must release links or
// resources when they are deleted.
type Destroyer interface {
	OnDestroy(w *World)
}

// Parent is implemented by components that own child entities. Deleting the
// entity deletes every child first.
type Parent interface {
	ChildEntities() []EntityUID
}

type callback func(c Component, ctx *Context) error

// resolveCallbacks records which stage callbacks prototype implements.
func resolveCallbacks(prototype Component) [numStages]callback {
	var cbs [numStages]callback
	if _, ok := prototype.(Creator); ok {
		cbs[Create] = func(c Component, ctx *Context) error { return c.(Creator).OnCreate(ctx) }
	}
	if _, ok := prototype.(Loader); ok {
		cbs[Load] = func(c Component, ctx *Context) error { return c.(Loader).OnLoad(ctx) }
	}
	if _, ok := prototype.(Mounter); ok {
		cbs[Mount] = func(c Component, ctx *Context) error { return c.(Mounter).OnMount(ctx) }
	}
	if _, ok := prototype.(LogicRunner); ok {
		cbs[Logic] = func(c Component, ctx *Context) error { return c.(LogicRunner).OnLogic(ctx) }
	}
	if _, ok := prototype.(PreRenderer); ok {
		cbs[PreRender] = func(c Component, ctx *Context) error { return c.(PreRenderer).OnPreRender(ctx) }
	}
	if _, ok := prototype.(Renderer); ok {
		cbs[Render] = func(c Component, ctx *Context) error { return c.(Renderer).OnRender(ctx) }
	}
	if _, ok := prototype.(Unmounter); ok {
		cbs[Unmount] = func(c Component, ctx *Context) error { return c.(Unmounter).OnUnmount(ctx) }
	}
	if _, ok := prototype.(Discarder); ok {
		cbs[Discard] = func(c Component, ctx *Context) error { return c.(Discarder).OnDiscard(ctx) }
	}
	return cbs
}
