package app

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/irfansharif/garnet/internal/components"
	"github.com/irfansharif/garnet/internal/ecs"
	"github.com/irfansharif/garnet/internal/memory"
	"github.com/irfansharif/garnet/internal/palette"
	"github.com/irfansharif/garnet/internal/render"
)

const (
	minSides, maxSides = 3, 8
	minRing, maxRing   = 3, 8

	// World-space sizes. Petals are children of the scaled core, so their
	// local placement is divided by coreRadius.
	ringRadius  = 1.5
	coreRadius  = 0.8
	petalRadius = 0.45
)

// ClusterID identifies a cluster for its lifetime.
type ClusterID int

// Cluster is a root entity with a ring of polygon children.
type Cluster struct {
	ID       ClusterID     // unique identifier
	Root     ecs.EntityUID // deleting it deletes the whole cluster
	Children []ecs.EntityUID
	Position mgl32.Vec2 // world position of the root
	Seed     int64      // seed used for generation (for reproducibility)
	Sides    int        // polygon sides of the petals
}

// MeshLibrary holds one polygon mesh per (sides, colour) pair. Meshes live
// in the vertex arena, which is never reclaimed, so clusters share them
// instead of building their own.
type MeshLibrary struct {
	meshes map[[2]int]*render.Mesh
	colors []mgl32.Vec4
}

// NewMeshLibrary builds polygons of every supported side count in each
// palette colour.
func NewMeshLibrary(w *ecs.World, p palette.Palette) (*MeshLibrary, error) {
	lib := &MeshLibrary{meshes: make(map[[2]int]*render.Mesh)}
	for _, c := range []int{0, 2, 3, 4} {
		lib.colors = append(lib.colors, palette.Linear(p[c]))
	}
	buf := w.Memory.Buffer(memory.GPUVertexData)
	for sides := minSides; sides <= maxSides; sides++ {
		for c, color := range lib.colors {
			mat := &render.Material{Name: fmt.Sprintf("color-%d", c), BaseColor: color}
			m, err := render.NewPolygonMesh(buf, sides, 1, mat)
			if err != nil {
				return nil, err
			}
			lib.meshes[[2]int{sides, c}] = m
		}
	}
	return lib, nil
}

// Mesh returns the unit polygon with the given sides in colour c, cycling
// through the available colours.
func (l *MeshLibrary) Mesh(sides, c int) *render.Mesh {
	sides = max(minSides, min(maxSides, sides))
	return l.meshes[[2]int{sides, c % len(l.colors)}]
}

func (l *MeshLibrary) Colors() int { return len(l.colors) }

// ClusterManager manages multiple clusters across the canvas.
type ClusterManager struct {
	world            *ecs.World
	library          *MeshLibrary
	clusters         map[ClusterID]*Cluster // map of cluster IDs to clusters
	currentClusterID ClusterID              // ID of the current cluster
	currentSeed      int64                  // current seed
	nextID           ClusterID              // next cluster ID to assign
}

// NewClusterManager creates a new cluster manager.
func NewClusterManager(w *ecs.World, library *MeshLibrary, seed int64) *ClusterManager {
	return &ClusterManager{
		world:            w,
		library:          library,
		clusters:         make(map[ClusterID]*Cluster),
		currentClusterID: -1,
		currentSeed:      seed,
	}
}

// AddCluster spawns a cluster at pos. The seed decides the petal count,
// shape and colours.
func (cm *ClusterManager) AddCluster(pos mgl32.Vec2, seed int64) (*Cluster, error) {
	r := rand.New(rand.NewSource(seed))
	ring := minRing + r.Intn(maxRing-minRing+1)
	sides := minSides + r.Intn(maxSides-minSides+1)
	color := r.Intn(cm.library.Colors())

	cluster := &Cluster{ID: cm.nextID, Position: pos, Seed: seed, Sides: sides}
	root, rootGraph, err := cm.spawn(nil, mgl32.Vec3{pos[0], pos[1], 0}, 0, coreRadius, cm.library.Mesh(sides+1, color))
	if err != nil {
		return nil, err
	}
	cluster.Root = root
	for i := 0; i < ring; i++ {
		angle := 2 * math.Pi * float64(i) / float64(ring)
		d := ringRadius / coreRadius
		at := mgl32.Vec3{float32(d * math.Cos(angle)), float32(d * math.Sin(angle)), 0.01}
		uid, _, err := cm.spawn(rootGraph, at, float32(angle), petalRadius/coreRadius, cm.library.Mesh(sides, color+1+i%2))
		if err != nil {
			_ = cm.world.Entities.DeleteEntity(root)
			return nil, err
		}
		cluster.Children = append(cluster.Children, uid)
	}

	cm.clusters[cluster.ID] = cluster
	cm.nextID++
	return cluster, nil
}

// spawn creates one renderable node under parent.
func (cm *ClusterManager) spawn(parent *components.SceneGraph, at mgl32.Vec3, angle, scale float32, mesh *render.Mesh) (ecs.EntityUID, *components.SceneGraph, error) {
	w := cm.world
	uid := w.Entities.CreateEntity().UID()
	tr, err := ecs.AddComponent[*components.Transform](w, uid)
	if err != nil {
		return uid, nil, err
	}
	tr.SetTranslation(at)
	tr.SetRotation(mgl32.QuatRotate(angle, mgl32.Vec3{0, 0, 1}))
	tr.SetScale(mgl32.Vec3{scale, scale, 1})

	sg, err := ecs.AddComponent[*components.SceneGraph](w, uid)
	if err != nil {
		return uid, nil, err
	}
	if parent != nil {
		if err := parent.AddChild(sg); err != nil {
			return uid, nil, err
		}
	}
	m, err := ecs.AddComponent[*components.Mesh](w, uid)
	if err != nil {
		return uid, nil, err
	}
	m.Set(mesh)
	if _, err := ecs.AddComponent[*components.MeshRenderer](w, uid); err != nil {
		return uid, nil, err
	}
	return uid, sg, nil
}

// RemoveCluster deletes a cluster's entities, children included.
func (cm *ClusterManager) RemoveCluster(id ClusterID) error {
	cluster, ok := cm.clusters[id]
	if !ok {
		return nil
	}
	delete(cm.clusters, id)
	return cm.world.Entities.DeleteEntity(cluster.Root)
}

// Spin rotates every cluster about its root by angle radians. Children
// follow through the scene graph.
func (cm *ClusterManager) Spin(angle float32) {
	q := mgl32.QuatRotate(angle, mgl32.Vec3{0, 0, 1})
	for _, cluster := range cm.clusters {
		if tr, ok := ecs.GetComponent[*components.Transform](cm.world, cluster.Root); ok {
			tr.SetRotation(q.Mul(tr.Rotation()))
		}
	}
}

// GetClusters returns all clusters sorted by ID (ascending).
func (cm *ClusterManager) GetClusters() []*Cluster {
	clusters := make([]*Cluster, 0, len(cm.clusters))
	for _, cluster := range cm.clusters {
		clusters = append(clusters, cluster)
	}
	sort.SliceStable(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })
	return clusters
}

// FindClosestClusters returns all clusters sorted by distance to the given point (closest first).
// For clusters at equal distance, sorts by ID (highest first).
func (cm *ClusterManager) FindClosestClusters(pos mgl32.Vec2) []*Cluster {
	type sortKey struct {
		distance float64
		ID       ClusterID
	}

	var sortKeys []sortKey
	for _, cluster := range cm.clusters {
		distance := float64(cluster.Position.Sub(pos).Len())
		sortKeys = append(sortKeys, sortKey{distance, cluster.ID})
	}

	// Sort by distance (closest first), then by ID (highest first) for ties.
	sort.Slice(sortKeys, func(i, j int) bool {
		if math.Abs(sortKeys[i].distance-sortKeys[j].distance) < 1e-4 {
			return sortKeys[i].ID > sortKeys[j].ID
		}
		return sortKeys[i].distance < sortKeys[j].distance
	})

	result := make([]*Cluster, len(sortKeys))
	for i, sortKey := range sortKeys {
		result[i] = cm.clusters[sortKey.ID]
	}
	return result
}

// SetCurrentCluster sets the current cluster directly.
func (cm *ClusterManager) SetCurrentCluster(cluster *Cluster) {
	if cluster == nil {
		cm.currentClusterID = -1
	} else {
		cm.currentClusterID = cluster.ID
	}
}

// IncrementSeed increments the seed by 1 and returns it.
func (cm *ClusterManager) IncrementSeed() int64 {
	cm.currentSeed++
	return cm.currentSeed
}

// IterCluster iterates to the next or previous cluster based on sorted cluster
// IDs (typically creation order).
func (cm *ClusterManager) IterCluster(next bool) *Cluster {
	if len(cm.clusters) == 0 {
		cm.currentClusterID = -1
		return nil
	}

	direction := 1
	if !next {
		direction = -1
	}

	ids := make([]ClusterID, 0, len(cm.clusters))
	for id := range cm.clusters {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	pos := -1
	for i, id := range ids {
		if id == cm.currentClusterID {
			pos = i
			break
		}
	}
	if pos == -1 {
		// No current cluster (or it was deleted): land on the first or last.
		if next {
			pos = len(ids) - 1
		} else {
			pos = 0
		}
	}

	newPos := (pos + direction + len(ids)) % len(ids)
	cm.currentClusterID = ids[newPos]
	return cm.clusters[cm.currentClusterID]
}
