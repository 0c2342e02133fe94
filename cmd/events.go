package main

import (
	"log"
	"math/rand"
	"strconv"
	"time"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/irfansharif/garnet/internal/app"
)

const repeatInterval = 125 * time.Millisecond // time between successive pans when pressed down
const basePanPixels = 100.0
const spinPerSecond = 0.8 // radians

// EventHandlers manages all event handling for the application.
type EventHandlers struct {
	application *app.App

	// Space spins every cluster while held; shift+space spins the other way.
	spinDirection float32
	lastSpinTime  time.Time

	// J/K/H/L allow panning across through keypresses. They also do so
	// continuously if held.
	panKeyHeld                   bool
	panDirectionX, panDirectionY float64
	lastPanTime                  time.Time

	// Drag/pan state (per-gesture), captured on mouse press.
	isDragging                       bool
	dragStartMouseX, dragStartMouseY float64
	dragStartPanX, dragStartPanY     float64

	// Current mouse position in framebuffer pixels.
	mouseX, mouseY float64

	// Digits typed before C or D, the number of clusters to create or delete.
	inputBuffer string
}

// NewEventHandlers creates a new event handlers manager.
func NewEventHandlers(application *app.App) *EventHandlers {
	eh := &EventHandlers{
		application:  application,
		lastSpinTime: time.Now(),
		lastPanTime:  time.Now(),
	}
	eh.SetupCallbacks(application.Window)
	return eh
}

// SetupCallbacks configures all GLFW event callbacks.
func (eh *EventHandlers) SetupCallbacks(window *glfw.Window) {
	window.SetKeyCallback(func(wnd *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		eh.handleKey(key, action, mods)
	})
	window.SetMouseButtonCallback(func(wnd *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		eh.handleMouseButton(button, action) // for panning
	})
	window.SetCursorPosCallback(func(wnd *glfw.Window, xpos, ypos float64) {
		eh.handleCursorPos(xpos, ypos)
	})
	window.SetScrollCallback(func(wnd *glfw.Window, _, zoomDelta float64) {
		eh.performZoom(zoomDelta)
	})
	window.SetFramebufferSizeCallback(func(wnd *glfw.Window, newW, newH int) {
		eh.application.View.SetViewport(newW, newH)
	})
}

// handleKey handles keyboard input events.
func (eh *EventHandlers) handleKey(key glfw.Key, action glfw.Action, mods glfw.ModifierKey) {
	if action == glfw.Press {
		if key >= glfw.Key0 && key <= glfw.Key9 {
			eh.inputBuffer += string(rune('0' + int(key-glfw.Key0)))
			return
		}
		if key == glfw.KeyEscape {
			eh.inputBuffer = ""
			return
		}
		if !(key == glfw.KeyC || key == glfw.KeyD) {
			eh.inputBuffer = ""
		}
	}

	switch key {
	case glfw.KeySpace:
		eh.handleSpinKey(action, mods)
	case glfw.KeyR:
		if action == glfw.Press {
			eh.handleResetKey()
		}
	case glfw.KeyC:
		if action == glfw.Press {
			eh.handleCreateClusterKey()
		}
	case glfw.KeyD:
		if action == glfw.Press {
			eh.handleDeleteClusterKey()
		}
	case glfw.KeyM:
		if action == glfw.Press {
			eh.application.World.Memory.PrintStats()
		}
	case glfw.KeyTab:
		if action == glfw.Press {
			eh.handleClusterNavigation(mods&glfw.ModShift == 0)
		}
	case glfw.KeyJ:
		eh.handlePanKeys(action, 0 /*dx*/, -1 /*dy*/) // pan down
	case glfw.KeyK:
		eh.handlePanKeys(action, 0 /*dx*/, 1 /*dy*/) // pan up
	case glfw.KeyH:
		eh.handlePanKeys(action, -1 /*dx*/, 0 /*dy*/) // pan left
	case glfw.KeyL:
		eh.handlePanKeys(action, 1 /*dx*/, 0 /*dy*/) // pan right
	case glfw.KeyEqual:
		if action == glfw.Press && (mods&glfw.ModSuper) != 0 {
			eh.performZoom(1) // zoom in
		}
	case glfw.KeyMinus:
		if action == glfw.Press && (mods&glfw.ModSuper) != 0 {
			eh.performZoom(-1) // zoom out
		}
	}
}

// handleSpinKey starts or stops spinning on space and shift+space.
func (eh *EventHandlers) handleSpinKey(action glfw.Action, mods glfw.ModifierKey) {
	switch action {
	case glfw.Press:
		eh.spinDirection = 1
		if (mods & glfw.ModShift) != 0 {
			eh.spinDirection = -1
		}
		eh.lastSpinTime = time.Now()
	case glfw.Release:
		eh.spinDirection = 0
	}
}

// handleContinuousSpin spins the clusters by the time elapsed since the
// last frame while space is held.
func (eh *EventHandlers) handleContinuousSpin() {
	if eh.spinDirection == 0 {
		return // nothing to do
	}
	now := time.Now()
	angle := eh.spinDirection * spinPerSecond * float32(now.Sub(eh.lastSpinTime).Seconds())
	eh.application.ClusterManager.Spin(angle)
	eh.lastSpinTime = now
}

// handlePanKeys handles j/k/h/l key presses, and also releases for
// continuous panning.
func (eh *EventHandlers) handlePanKeys(action glfw.Action, dx, dy float64) {
	switch action {
	case glfw.Press:
		eh.panKeyHeld = true
		eh.panDirectionX = dx
		eh.panDirectionY = dy
		eh.performPan(dx, dy)
		eh.lastPanTime = time.Now()

	case glfw.Release:
		eh.panKeyHeld = false

	case glfw.Repeat:
		// Ignore repeat events - we handle continuous panning ourselves to
		// ensure consistent timing.
	}
}

// performPan moves the view a fixed number of screen pixels, which covers
// more of the world when zoomed out.
func (eh *EventHandlers) performPan(dx, dy float64) {
	view := eh.application.View
	d := basePanPixels * view.UnitsPerPixel()
	view.SetPan(view.PanX+dx*d, view.PanY+dy*d)
}

// handleContinuousPanning handles continuous panning while pan keys are held.
func (eh *EventHandlers) handleContinuousPanning() {
	if !eh.panKeyHeld {
		return // nothing to do
	}

	now := time.Now()
	if now.Sub(eh.lastPanTime) < repeatInterval {
		return // not enough time has passed since the last pan
	}

	eh.performPan(eh.panDirectionX, eh.panDirectionY)
	eh.lastPanTime = now
}

// handleResetKey handles R key press (reset zoom and pan to closest cluster,
// and also set cursor for subsequent tabs/shift+tabs).
func (eh *EventHandlers) handleResetKey() {
	cm := eh.application.ClusterManager
	clusters := cm.FindClosestClusters(eh.application.View.ScreenToWorld(eh.mouseX, eh.mouseY))
	if len(clusters) == 0 {
		return // nothing to do
	}
	eh.application.View.ResetTo(clusters[0].Position)
	cm.SetCurrentCluster(clusters[0])
}

// handleMouseButton handles mouse button events for panning.
func (eh *EventHandlers) handleMouseButton(button glfw.MouseButton, action glfw.Action) {
	if button != glfw.MouseButtonLeft {
		return // nothing to do
	}

	switch action {
	case glfw.Press:
		eh.isDragging = true
		eh.dragStartMouseX, eh.dragStartMouseY = eh.mouseX, eh.mouseY
		view := eh.application.View
		eh.dragStartPanX, eh.dragStartPanY = view.PanX, view.PanY
	case glfw.Release:
		eh.isDragging = false
	}
}

// handleCursorPos tracks the cursor in framebuffer pixels and drags the
// view along with it while the left button is down.
func (eh *EventHandlers) handleCursorPos(xpos, ypos float64) {
	scaleX, scaleY := eh.application.Window.GetContentScale()
	eh.mouseX, eh.mouseY = xpos*float64(scaleX), ypos*float64(scaleY)
	if !eh.isDragging {
		return
	}

	view := eh.application.View
	upp := view.UnitsPerPixel()
	dx, dy := eh.mouseX-eh.dragStartMouseX, eh.mouseY-eh.dragStartMouseY
	view.SetPan(eh.dragStartPanX-dx*upp, eh.dragStartPanY+dy*upp)
}

// performZoom handles zoom operations with cursor-centered zooming.
func (eh *EventHandlers) performZoom(zoomDelta float64) {
	view := eh.application.View
	before := view.ScreenToWorld(eh.mouseX, eh.mouseY)
	view.SetZoom(view.Zoom * (1.0 + zoomDelta*0.15))

	// Keep the world point under the cursor where it was.
	after := view.ScreenToWorld(eh.mouseX, eh.mouseY)
	view.SetPan(view.PanX+float64(before[0]-after[0]), view.PanY+float64(before[1]-after[1]))
}

// handleCreateClusterKey creates one cluster under the cursor, or a batch of
// them scattered around it.
func (eh *EventHandlers) handleCreateClusterKey() {
	count := eh.parseCount()
	spacing := 4.0 / eh.application.View.UnitsPerPixel() // pixels between cluster centres
	cols := 1
	for cols*cols < count {
		cols++
	}
	for i := 0; i < count; i++ {
		col, row := i%cols, i/cols
		x := eh.mouseX + float64(col)*spacing + rand.Float64()*spacing/4
		y := eh.mouseY + float64(row)*spacing + rand.Float64()*spacing/4
		if _, err := eh.application.CreateCluster(x, y); err != nil {
			log.Printf("Failed to create cluster: %v", err)
			return
		}
	}
}

// handleDeleteClusterKey deletes the closest cluster, or the closest few.
func (eh *EventHandlers) handleDeleteClusterKey() {
	for i, count := 0, eh.parseCount(); i < count; i++ {
		if err := eh.application.DeleteClosest(eh.mouseX, eh.mouseY); err != nil {
			log.Fatalf("Failed to delete cluster: %v", err)
		}
	}
}

// handleClusterNavigation handles tab and shift+tab key presses for cluster navigation.
func (eh *EventHandlers) handleClusterNavigation(next bool) {
	cluster := eh.application.ClusterManager.IterCluster(next)
	if cluster == nil {
		return // nothing to do
	}
	eh.application.View.ResetTo(cluster.Position)
}

// parseCount consumes the typed digits, defaulting to one.
func (eh *EventHandlers) parseCount() int {
	input := eh.inputBuffer
	eh.inputBuffer = ""
	if n, err := strconv.Atoi(input); err == nil && n > 0 {
		return n
	}
	return 1
}
