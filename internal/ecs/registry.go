package ecs

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/irfansharif/garnet/internal/memory"
)

// texelBytes is the granularity GPU-facing member storage is aligned to, so
// that instance data can be addressed as whole RGBA float texels or vec4
// uniform array entries.
const texelBytes = memory.Channels * memory.ChannelBytes

// TypeSpec describes a component type to register.
type TypeSpec struct {
	Name         string
	MaxInstances int
	// New returns a fresh, zero instance. It is also used once at
	// registration to record the type's member layout.
	New func() Component
	// Bulk holds optional per-type hooks, invoked once per stage per tick
	// before the per-instance callbacks of that stage.
	Bulk map[Stage]func(ctx *Context) error
}

// typeInfo is the per-type table: layout, storage, instances and the dense
// per-stage schedules.
type typeInfo struct {
	id        TypeID
	spec      TypeSpec
	goType    reflect.Type
	layout    []Member
	views     map[memory.BufferUse]*memory.BufferView
	accessors []*memory.Accessor // one per member
	callbacks [numStages]callback

	instances []Component // indexed by SID, nil for holes
	free      []SID       // sorted ascending
	live      int

	// members[s] holds the SIDs currently in stage s; position[sid] is the
	// index of sid within its stage list.
	members   [numStages][]SID
	position  []int
	dirty     [numStages]bool
	scheduled [numStages][]SID // dense lists rebuilt before dispatch
}

func (t *typeInfo) addToStage(sid SID, s Stage) {
	for int(sid) >= len(t.position) {
		t.position = append(t.position, -1)
	}
	t.position[sid] = len(t.members[s])
	t.members[s] = append(t.members[s], sid)
	t.dirty[s] = true
}

func (t *typeInfo) removeFromStage(sid SID, s Stage) {
	list := t.members[s]
	i := t.position[sid]
	if i < 0 || i >= len(list) || list[i] != sid {
		return
	}
	last := len(list) - 1
	list[i] = list[last]
	t.position[list[i]] = i
	t.members[s] = list[:last]
	t.position[sid] = -1
	t.dirty[s] = true
}

func (t *typeInfo) moveStage(sid SID, from, to Stage) {
	t.removeFromStage(sid, from)
	t.addToStage(sid, to)
}

// rebuild refreshes the dense list of stage s if any instance entered or
// left it since the last rebuild.
func (t *typeInfo) rebuild(s Stage) []SID {
	if t.dirty[s] {
		t.scheduled[s] = append(t.scheduled[s][:0], t.members[s]...)
		t.dirty[s] = false
	}
	return t.scheduled[s]
}

// ComponentRepository is the type-indexed registry and factory of component
// instances.
type ComponentRepository struct {
	world  *World
	types  []*typeInfo
	byName map[string]TypeID
	byGo   map[reflect.Type]TypeID
}

func newComponentRepository(w *World) *ComponentRepository {
	return &ComponentRepository{
		world:  w,
		byName: make(map[string]TypeID),
		byGo:   make(map[reflect.Type]TypeID),
	}
}

// RegisterType records a component type's member layout and reserves its
// storage: one BufferView per buffer use the type touches and one Accessor
// per member, each sized for MaxInstances. Types are dispatched in
// registration order.
func (r *ComponentRepository) RegisterType(spec TypeSpec) (TypeID, error) {
	if spec.Name == "" || spec.New == nil || spec.MaxInstances <= 0 {
		return 0, fmt.Errorf("%w: %q needs a constructor and a positive capacity", ErrInvalidTypeSpec, spec.Name)
	}
	if _, ok := r.byName[spec.Name]; ok {
		return 0, fmt.Errorf("%w: %s", ErrTypeAlreadyRegistered, spec.Name)
	}

	prototype := spec.New()
	if prototype == nil {
		return 0, fmt.Errorf("%w: %s constructor returned nil", ErrInvalidTypeSpec, spec.Name)
	}
	goType := reflect.TypeOf(prototype)
	if _, ok := r.byGo[goType]; ok {
		return 0, fmt.Errorf("%w: %s (Go type %s)", ErrTypeAlreadyRegistered, spec.Name, goType)
	}
	prototype.DeclareMembers()

	info := &typeInfo{
		id:        TypeID(len(r.types)),
		spec:      spec,
		goType:    goType,
		layout:    prototype.ecsBase().members,
		views:     make(map[memory.BufferUse]*memory.BufferView),
		callbacks: resolveCallbacks(prototype),
	}
	if err := r.allocate(info); err != nil {
		return 0, fmt.Errorf("ecs: registering %s: %w", spec.Name, err)
	}

	r.types = append(r.types, info)
	r.byName[spec.Name] = info.id
	r.byGo[goType] = info.id
	ecsLogger.Printf("registered type %d %s: %d members, %d instances max", info.id, spec.Name, len(info.layout), spec.MaxInstances)
	return info.id, nil
}

// allocate performs the per-type half of member allocation.
func (r *ComponentRepository) allocate(info *typeInfo) error {
	info.accessors = make([]*memory.Accessor, len(info.layout))
	capacity := info.spec.MaxInstances
	for _, use := range memory.BufferUses {
		var need int
		var members []int
		for i, m := range info.layout {
			if m.Use != use {
				continue
			}
			members = append(members, i)
			need += memberSpan(m, capacity, use)
		}
		if len(members) == 0 {
			continue
		}

		buf := r.world.Memory.Buffer(use)
		if texelAligned(use) {
			if rem := buf.TakenBytes() % texelBytes; rem != 0 {
				if _, err := buf.TakeBufferView(texelBytes-rem, 0, false); err != nil {
					return err
				}
			}
		}
		view, err := buf.TakeBufferView(need, 0, false)
		if err != nil {
			return err
		}
		view.SetName(fmt.Sprintf("%s/%s", info.spec.Name, use))
		info.views[use] = view

		offset := 0
		for _, i := range members {
			m := info.layout[i]
			var acc *memory.Accessor
			if texelAligned(use) {
				acc, err = view.TakeAccessorWithByteOffset(m.Composition, m.Element, capacity, offset, 0)
			} else {
				acc, err = view.TakeAccessor(m.Composition, m.Element, capacity)
			}
			if err != nil {
				return fmt.Errorf("member %s: %w", m, err)
			}
			info.accessors[i] = acc
			offset += memberSpan(m, capacity, use)
		}
	}
	return nil
}

// memberSpan is the byte length reserved for one member across capacity
// instances.
func memberSpan(m Member, capacity int, use memory.BufferUse) int {
	n := m.Composition.NumComponents() * m.Element.ByteSize() * capacity
	if texelAligned(use) {
		return (n + texelBytes - 1) / texelBytes * texelBytes
	}
	n = (n + 3) &^ 3
	if m.Element.ByteSize() == 8 {
		n += 4 // room for an alignment correction
	}
	return n
}

func texelAligned(use memory.BufferUse) bool {
	return use == memory.GPUInstanceData || use == memory.UBOGeneric
}

func (r *ComponentRepository) info(t TypeID) (*typeInfo, error) {
	if t < 0 || int(t) >= len(r.types) {
		return nil, fmt.Errorf("%w: type id %d", ErrTypeNotRegistered, t)
	}
	return r.types[t], nil
}

// CreateComponent constructs an instance of type t for entity. The lowest
// free SID is reused first; otherwise the next SID is issued. The instance
// is bound to its arena slots, initialised with its members' initial values
// and scheduled in the Create stage.
func (r *ComponentRepository) CreateComponent(t TypeID, entity EntityUID) (Component, error) {
	info, err := r.info(t)
	if err != nil {
		return nil, err
	}

	var sid SID
	reused := len(info.free) > 0
	if reused {
		sid = info.free[0]
	} else {
		sid = SID(len(info.instances))
	}
	if int(sid) >= info.spec.MaxInstances {
		return nil, fmt.Errorf("%w: type %s holds at most %d instances",
			memory.ErrCapacityExceeded, info.spec.Name, info.spec.MaxInstances)
	}

	c := info.spec.New()
	b := c.ecsBase()
	c.DeclareMembers()
	if err := info.checkLayout(b.members); err != nil {
		return nil, err
	}

	b.world, b.info, b.typ, b.sid, b.entity = r.world, info, t, sid, entity
	b.stage, b.done = Create, false
	b.fields = make([]Field, len(info.layout))
	for i, m := range info.layout {
		acc := info.accessors[i]
		var raw []byte
		if int(sid) < acc.TakenCount() {
			raw = acc.ElementBytes(int(sid))
		} else {
			raw = acc.TakeOne()
		}
		clear(raw)
		f := Field{acc: acc, index: int(sid), raw: raw}
		if len(m.Initial) > 0 {
			f.Set(m.Initial...)
		} else {
			f.MarkDirty()
		}
		b.fields[i] = f
	}

	if reused {
		info.free = info.free[1:]
		info.instances[sid] = c
		ecsLogger.Printf("%s: reused sid %d for entity %d", info.spec.Name, sid, entity)
	} else {
		info.instances = append(info.instances, c)
	}
	info.live++
	info.addToStage(sid, Create)
	return c, nil
}

func (t *typeInfo) checkLayout(members []Member) error {
	if len(members) != len(t.layout) {
		return fmt.Errorf("%w: %s declares %d members, type has %d",
			ErrMemberLayoutMismatch, t.spec.Name, len(members), len(t.layout))
	}
	for i := range members {
		if !members[i].sameShape(t.layout[i]) {
			return fmt.Errorf("%w: %s member %d is %s, type has %s",
				ErrMemberLayoutMismatch, t.spec.Name, i, members[i], t.layout[i])
		}
	}
	return nil
}

// DeleteComponent frees the instance at sid. Its arena slot is kept and
// re-initialised when the SID is reused.
func (r *ComponentRepository) DeleteComponent(t TypeID, sid SID) error {
	info, err := r.info(t)
	if err != nil {
		return err
	}
	if sid < 0 || int(sid) >= len(info.instances) || info.instances[sid] == nil {
		return fmt.Errorf("%w: %s sid %d", ErrNoSuchComponent, info.spec.Name, sid)
	}

	c := info.instances[sid]
	if d, ok := c.(Destroyer); ok {
		d.OnDestroy(r.world)
	}
	b := c.ecsBase()
	if !b.done {
		info.removeFromStage(sid, b.stage)
	}
	b.info = nil

	info.instances[sid] = nil
	info.live--
	i := sort.Search(len(info.free), func(i int) bool { return info.free[i] >= sid })
	info.free = append(info.free, 0)
	copy(info.free[i+1:], info.free[i:])
	info.free[i] = sid
	return nil
}

// GetComponentsWithType returns the live instances of t in SID order.
func (r *ComponentRepository) GetComponentsWithType(t TypeID) []Component {
	info, err := r.info(t)
	if err != nil {
		return nil
	}
	out := make([]Component, 0, info.live)
	for _, c := range info.instances {
		if c != nil {
			out = append(out, c)
		}
	}
	return out
}

// Component returns the instance of t at sid.
func (r *ComponentRepository) Component(t TypeID, sid SID) (Component, bool) {
	info, err := r.info(t)
	if err != nil || sid < 0 || int(sid) >= len(info.instances) || info.instances[sid] == nil {
		return nil, false
	}
	return info.instances[sid], true
}

// TypeByName resolves a registered type name.
func (r *ComponentRepository) TypeByName(name string) (TypeID, bool) {
	id, ok := r.byName[name]
	return id, ok
}

// TypeName returns the registered name of t.
func (r *ComponentRepository) TypeName(t TypeID) string {
	info, err := r.info(t)
	if err != nil {
		return fmt.Sprintf("type(%d)", t)
	}
	return info.spec.Name
}

// NumTypes returns the number of registered types.
func (r *ComponentRepository) NumTypes() int { return len(r.types) }

// Live returns the number of live instances of t.
func (r *ComponentRepository) Live(t TypeID) int {
	info, err := r.info(t)
	if err != nil {
		return 0
	}
	return info.live
}

// MaxInstances returns the capacity of t.
func (r *ComponentRepository) MaxInstances(t TypeID) int {
	info, err := r.info(t)
	if err != nil {
		return 0
	}
	return info.spec.MaxInstances
}

// Layout returns the member layout of t.
func (r *ComponentRepository) Layout(t TypeID) []Member {
	info, err := r.info(t)
	if err != nil {
		return nil
	}
	return info.layout
}

// Accessor returns the shared accessor backing member name of type t.
func (r *ComponentRepository) Accessor(t TypeID, name string) (*memory.Accessor, bool) {
	info, err := r.info(t)
	if err != nil {
		return nil, false
	}
	for i, m := range info.layout {
		if m.Name == name {
			return info.accessors[i], true
		}
	}
	return nil, false
}

// View returns the BufferView holding t's members of the given use.
func (r *ComponentRepository) View(t TypeID, use memory.BufferUse) (*memory.BufferView, bool) {
	info, err := r.info(t)
	if err != nil {
		return nil, false
	}
	v, ok := info.views[use]
	return v, ok
}

// Scheduled returns the dense list of t's SIDs in stage s as of its last
// rebuild.
func (r *ComponentRepository) Scheduled(t TypeID, s Stage) []SID {
	info, err := r.info(t)
	if err != nil {
		return nil
	}
	return info.scheduled[s]
}
