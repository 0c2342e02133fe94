package geom

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/rclancey/earcut"
)

// Triangulate triangulates a simple polygon using the earcut algorithm. It
// returns indices into polygon, three per triangle.
func Triangulate(polygon []mgl32.Vec2) ([]uint32, error) {
	if len(polygon) < 3 {
		return nil, fmt.Errorf("geom: degenerate polygon (%d vertices < 3)", len(polygon))
	}

	// Convert polygon points to flat coordinate array required by earcut.
	// Format: [x0, y0, x1, y1, ..., xn, yn]
	vertexCoords := make([]float64, len(polygon)*2)
	for i, point := range polygon {
		vertexCoords[i*2] = float64(point[0])
		vertexCoords[i*2+1] = float64(point[1])
	}

	triangleIndices, err := earcut.Earcut(vertexCoords, nil /* holeIndices */, 2 /* dim */)
	if err != nil {
		return nil, fmt.Errorf("geom: triangulation failed for %d-vertex polygon: %w", len(polygon), err)
	}
	if len(triangleIndices)%3 != 0 {
		return nil, fmt.Errorf("geom: invalid triangle count (indices: %d, not divisible by 3)", len(triangleIndices))
	}

	indices := make([]uint32, len(triangleIndices))
	for i, idx := range triangleIndices {
		indices[i] = uint32(idx)
	}
	return indices, nil
}

// RegularPolygon returns the vertices of a regular n-gon of the given radius
// centred on the origin, counter-clockwise.
func RegularPolygon(n int, radius float32) []mgl32.Vec2 {
	points := make([]mgl32.Vec2, n)
	for i := range points {
		angle := 2 * math.Pi * float64(i) / float64(n)
		points[i] = mgl32.Vec2{radius * float32(math.Cos(angle)), radius * float32(math.Sin(angle))}
	}
	return points
}
