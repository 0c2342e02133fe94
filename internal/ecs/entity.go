package ecs

import (
	"fmt"
	"sort"
)

// EntityUID is an entity handle. Zero is never issued.
type EntityUID uint32

// NoEntity is the zero handle.
const NoEntity EntityUID = 0

// Entity is the set of components attached to one UID.
type Entity struct {
	uid        EntityUID
	alive      bool
	components map[TypeID]Component
}

// UID returns the entity's handle.
func (e *Entity) UID() EntityUID { return e.uid }

// Alive reports whether the entity has not been deleted.
func (e *Entity) Alive() bool { return e.alive }

// Component returns the entity's component of type t.
func (e *Entity) Component(t TypeID) (Component, bool) {
	c, ok := e.components[t]
	return c, ok
}

// Has reports whether the entity carries a component of type t.
func (e *Entity) Has(t TypeID) bool {
	_, ok := e.components[t]
	return ok
}

// Types returns the entity's component types in ascending order.
func (e *Entity) Types() []TypeID {
	types := make([]TypeID, 0, len(e.components))
	for t := range e.components {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// EntityRepository issues entity handles and owns each entity's component
// map. UIDs of deleted entities are recycled.
type EntityRepository struct {
	world    *World
	entities []*Entity // indexed by UID; entities[0] is unused
	free     []EntityUID
	alive    int
}

func newEntityRepository(w *World) *EntityRepository {
	return &EntityRepository{world: w, entities: []*Entity{nil}}
}

// CreateEntity returns a new entity, recycling the most recently freed UID
// if there is one.
func (r *EntityRepository) CreateEntity() *Entity {
	var uid EntityUID
	if n := len(r.free); n > 0 {
		uid = r.free[n-1]
		r.free = r.free[:n-1]
		ecsLogger.Printf("recycled entity %d", uid)
	} else {
		uid = EntityUID(len(r.entities))
		r.entities = append(r.entities, nil)
	}
	e := &Entity{uid: uid, alive: true, components: make(map[TypeID]Component)}
	r.entities[uid] = e
	r.alive++
	return e
}

// Entity returns the live entity with the given UID.
func (r *EntityRepository) Entity(uid EntityUID) (*Entity, bool) {
	if uid == NoEntity || int(uid) >= len(r.entities) {
		return nil, false
	}
	e := r.entities[uid]
	if e == nil || !e.alive {
		return nil, false
	}
	return e, true
}

// Count returns the number of live entities.
func (r *EntityRepository) Count() int { return r.alive }

// AliveEntities returns the UIDs of every live entity in ascending order.
func (r *EntityRepository) AliveEntities() []EntityUID {
	out := make([]EntityUID, 0, r.alive)
	for uid, e := range r.entities {
		if e != nil && e.alive {
			out = append(out, EntityUID(uid))
		}
	}
	return out
}

// AddComponentToEntity creates a component of type t and attaches it. An
// entity holds at most one component per type; adding a type it already
// carries returns the existing component.
func (r *EntityRepository) AddComponentToEntity(t TypeID, uid EntityUID) (Component, error) {
	e, ok := r.Entity(uid)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchEntity, uid)
	}
	if c, ok := e.components[t]; ok {
		ecsLogger.Printf("entity %d already has a %s component", uid, r.world.Components.TypeName(t))
		return c, nil
	}
	c, err := r.world.Components.CreateComponent(t, uid)
	if err != nil {
		return nil, err
	}
	e.components[t] = c
	return c, nil
}

// RemoveComponentFromEntity detaches and deletes the entity's component of
// type t.
func (r *EntityRepository) RemoveComponentFromEntity(t TypeID, uid EntityUID) error {
	e, ok := r.Entity(uid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, uid)
	}
	c, ok := e.components[t]
	if !ok {
		return fmt.Errorf("%w: entity %d has no %s", ErrNoSuchComponent, uid, r.world.Components.TypeName(t))
	}
	if err := r.world.Components.DeleteComponent(t, c.ecsBase().sid); err != nil {
		return err
	}
	delete(e.components, t)
	return nil
}

// GetComponentOfEntity returns the entity's component of type t.
func (r *EntityRepository) GetComponentOfEntity(uid EntityUID, t TypeID) (Component, bool) {
	e, ok := r.Entity(uid)
	if !ok {
		return nil, false
	}
	return e.Component(t)
}

// DeleteEntity deletes the entity and all its components. Children of any
// Parent component are deleted first, recursively, so no scene-graph link
// is left dangling. Each descendant is deleted exactly once.
func (r *EntityRepository) DeleteEntity(uid EntityUID) error {
	e, ok := r.Entity(uid)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNoSuchEntity, uid)
	}
	n, err := r.deleteTree(e)
	if err != nil {
		return err
	}
	ecsLogger.Printf("deleted entity %d (%d entities in tree)", uid, n)
	return nil
}

func (r *EntityRepository) deleteTree(e *Entity) (int, error) {
	// Mark first so cycles or shared children cannot revisit this entity.
	e.alive = false
	deleted := 1
	for _, t := range e.Types() {
		p, ok := e.components[t].(Parent)
		if !ok {
			continue
		}
		children := append([]EntityUID(nil), p.ChildEntities()...)
		for _, child := range children {
			ce, ok := r.Entity(child)
			if !ok {
				continue
			}
			n, err := r.deleteTree(ce)
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
	}

	for _, t := range e.Types() {
		c := e.components[t]
		if err := r.world.Components.DeleteComponent(t, c.ecsBase().sid); err != nil {
			return deleted, err
		}
		delete(e.components, t)
	}
	r.entities[e.uid] = nil
	r.free = append(r.free, e.uid)
	r.alive--
	return deleted, nil
}
