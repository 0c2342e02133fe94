package app

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/components"
)

const (
	minZoom = 0.1
	maxZoom = 8.0

	pixelsPerUnit = 40.0 // world units are this many framebuffer pixels at zoom 1
	cameraHeight  = 10.0 // the camera looks down -Z from this height
)

// View manages the current view state including zoom, pan, and viewport. Pan
// is the world position at the centre of the viewport.
type View struct {
	Zoom          float64
	PanX, PanY    float64
	Width, Height int
}

// NewView creates a new view state with default values.
func NewView(width, height int) *View {
	return &View{
		Zoom:   1.0,
		Width:  width,
		Height: height,
	}
}

// SetZoom sets the zoom level, clamping to valid range.
func (vs *View) SetZoom(zoom float64) {
	if zoom < minZoom {
		vs.Zoom = minZoom
	} else if zoom > maxZoom {
		vs.Zoom = maxZoom
	} else {
		vs.Zoom = zoom
	}
}

// SetPan sets the pan position to the given world coordinates.
func (vs *View) SetPan(x, y float64) {
	vs.PanX = x
	vs.PanY = y
}

// SetViewport updates the viewport dimensions.
func (vs *View) SetViewport(width, height int) {
	vs.Width = width
	vs.Height = height
}

// ResetTo resets zoom to 1.0 and centres the given world point.
func (vs *View) ResetTo(pos mgl32.Vec2) {
	vs.Zoom = 1.0
	vs.PanX = float64(pos[0])
	vs.PanY = float64(pos[1])
}

// UnitsPerPixel is the world distance one framebuffer pixel covers.
func (vs *View) UnitsPerPixel() float64 { return 1 / (pixelsPerUnit * vs.Zoom) }

// ScreenToWorld maps framebuffer coordinates (origin top-left, y down) to
// the world plane z=0.
func (vs *View) ScreenToWorld(x, y float64) mgl32.Vec2 {
	upp := vs.UnitsPerPixel()
	wx := vs.PanX + (x-float64(vs.Width)/2)*upp
	wy := vs.PanY - (y-float64(vs.Height)/2)*upp
	return mgl32.Vec2{float32(wx), float32(wy)}
}

// Apply points an orthographic camera at the view.
func (vs *View) Apply(cam *components.Camera, tr *components.Transform) {
	aspect := float32(1)
	if vs.Height > 0 {
		aspect = float32(vs.Width) / float32(vs.Height)
	}
	height := float32(float64(vs.Height) * vs.UnitsPerPixel())
	if height <= 0 {
		height = 1
	}
	cam.SetOrthographic(height, aspect, 0.1, 2*cameraHeight)
	tr.SetTranslation(mgl32.Vec3{float32(vs.PanX), float32(vs.PanY), cameraHeight})
}
