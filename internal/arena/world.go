// Package arena is the authoritative simulation: the entity store, the
// fixed-step tick, collision resolution and per-viewer census snapshots.
//
// A World is not safe for concurrent use. The caller serializes Apply, Tick
// and Drain, so inbound commands only land between ticks.
package arena

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"arena-server/internal/census"
	"arena-server/internal/spatial"
)

var (
	ErrUnknownEntity  = errors.New("arena: unknown entity")
	ErrNotATank       = errors.New("arena: entity is not a tank")
	ErrNotSpawned     = errors.New("arena: tank is not spawned")
	ErrAlreadySpawned = errors.New("arena: tank is already spawned")
	ErrInvalidStat    = errors.New("arena: invalid stat index")
	ErrNoStatPoints   = errors.New("arena: no stat points left")
	ErrStatCapped     = errors.New("arena: stat is maxed")
	ErrInvalidUpgrade = errors.New("arena: upgrade not available")
	ErrUnknownCommand = errors.New("arena: unsupported command")
	ErrDesynchronized = errors.New("arena: registry and grid out of sync")
)

const (
	// tank velocity multiplier per tick
	Friction = 0.9
	// drone heading interpolation per tick
	DroneBlend = 0.2
	// drones closer than this to their owner rest and hunt
	DroneRestRange = 400.0
	DroneHuntRange = 600.0
	// projectile speed approach toward its base speed, per tick
	SpeedDecay = 0.1
)

// Config sizes the world. Zero sizes take DefaultConfig values; a zero
// OrbTarget disables the orb director and a zero Seed picks a random one.
type Config struct {
	Width            float64
	Height           float64
	ExpectedEntities int
	CellShift        uint
	OrbTarget        int
	OrbsPerTick      int
	ViewExtent       float64 // half-width of the view at field of view 1
	Seed             uint64
	Debug            bool // check registry/grid agreement after every tick
}

// DefaultConfig returns the standard 4000x4000 arena.
func DefaultConfig() Config {
	return Config{
		Width:            4000,
		Height:           4000,
		ExpectedEntities: 1024,
		CellShift:        7,
		OrbTarget:        80,
		OrbsPerTick:      2,
		ViewExtent:       1000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Width <= 0 {
		c.Width = d.Width
	}
	if c.Height <= 0 {
		c.Height = d.Height
	}
	if c.ExpectedEntities <= 0 {
		c.ExpectedEntities = d.ExpectedEntities
	}
	if c.CellShift == 0 {
		c.CellShift = d.CellShift
	}
	if c.OrbsPerTick <= 0 {
		c.OrbsPerTick = d.OrbsPerTick
	}
	if c.ViewExtent <= 0 {
		c.ViewExtent = d.ViewExtent
	}
	return c
}

// World owns every entity, the spatial grid and the id counter.
type World struct {
	cfg      Config
	entities map[ID]*Entity
	grid     *spatial.Grid
	nextID   ID
	tick     uint64
	rng      *rand.Rand
	now      func() time.Time

	pending []ConstructionRequest
	events  []Event
	orbs    int
	deleted int

	// per-tick scratch, reused to keep the steady state allocation free
	ids     []ID
	near    []spatial.ID
	visible []ID
	removed []ID
	writer  *census.Writer
	census  census.Census
}

// NewWorld creates an empty world.
func NewWorld(cfg Config) *World {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &World{
		cfg:      cfg,
		entities: make(map[ID]*Entity, cfg.ExpectedEntities),
		grid:     spatial.New(cfg.ExpectedEntities, cfg.CellShift),
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:      time.Now,
		writer:   census.NewWriter(4096),
	}
}

// Config returns the effective configuration
func (w *World) Config() Config {
	return w.cfg
}

// CurrentTick returns the number of completed ticks
func (w *World) CurrentTick() uint64 {
	return w.tick
}

// Len returns the number of registered entities
func (w *World) Len() int {
	return len(w.entities)
}

// Orbs returns the number of live orbs
func (w *World) Orbs() int {
	return w.orbs
}

// NextID allocates a fresh id. Ids start at 1 and are never reused.
func (w *World) NextID() ID {
	w.nextID++
	return w.nextID
}

// Insert adds e to the registry and the grid together.
func (w *World) Insert(e *Entity) {
	if _, ok := w.entities[e.ID]; ok {
		panic(fmt.Sprintf("arena: duplicate entity id %d", e.ID))
	}
	w.entities[e.ID] = e
	w.grid.Insert(spatial.ID(e.ID), e.Physics.Position.X, e.Physics.Position.Y, e.Display.Radius)
	if e.Kind == KindOrb {
		w.orbs++
	}
}

// Delete removes id from the registry and the grid together. A projectile
// spawned by a turret slot gives its slot back to the owner.
func (w *World) Delete(id ID) {
	e, ok := w.entities[id]
	if !ok {
		return
	}
	delete(w.entities, id)
	w.grid.Delete(spatial.ID(id))
	w.deleted++

	switch {
	case e.Kind == KindOrb:
		w.orbs--
	case e.Kind.IsProjectile() && e.Display.TurretIndex >= 0:
		owner, ok := w.entities[e.Display.Owner.Shallow]
		if !ok || owner.Tank == nil || e.Display.TurretIndex >= len(owner.Tank.Turrets) {
			return
		}
		if slot := &owner.Tank.Turrets[e.Display.TurretIndex]; slot.Spawned > 0 {
			slot.Spawned--
		}
	}
}

// Get looks up an entity.
func (w *World) Get(id ID) (*Entity, bool) {
	e, ok := w.entities[id]
	return e, ok
}

// MustGet looks up an entity that the caller knows exists. A miss means the
// registry and grid disagree, which is a bug.
func (w *World) MustGet(id ID) *Entity {
	e, ok := w.entities[id]
	if !ok {
		panic(fmt.Sprintf("arena: entity %d referenced but not registered: %v", id, ErrDesynchronized))
	}
	return e
}

// CheckInvariants verifies that the registry and the grid hold the same ids.
func (w *World) CheckInvariants() error {
	if n := w.grid.Len(); n != len(w.entities) {
		return fmt.Errorf("%w: %d registered, %d indexed", ErrDesynchronized, len(w.entities), n)
	}
	for id := range w.entities {
		if !w.grid.Contains(spatial.ID(id)) {
			return fmt.Errorf("%w: entity %d missing from grid", ErrDesynchronized, id)
		}
	}
	return nil
}

// AddTank creates an uninitialized tank for a new connection. It becomes
// Alive on its first Spawn command.
func (w *World) AddTank(conn *Connection) *Entity {
	e := &Entity{
		ID:   w.NextID(),
		Kind: KindTank,
		Conn: conn,
		Tank: &TankState{},
	}
	e.Physics.Position = Vec2{w.cfg.Width / 2, w.cfg.Height / 2}
	e.Display.Body = BodyBase
	e.Display.Turret = TurretBasic
	e.Display.Level = 1
	e.Display.TurretIndex = -1
	e.Display.Radius = Body(BodyBase).Radius
	e.Display.FieldOfView = 1
	e.Clock.LastUpdate = w.now()
	w.Insert(e)
	return e
}

// RemoveTank drops a disconnected tank along with the projectiles it owns.
func (w *World) RemoveTank(id ID) {
	w.releaseProjectiles(id)
	w.Delete(id)
}

// releaseProjectiles detaches every projectile owned by id from its turret
// slot and kills it on its next update.
func (w *World) releaseProjectiles(id ID) {
	for _, e := range w.entities {
		if e.Kind.IsProjectile() && e.Display.Owner.Shallow == id {
			e.Display.TurretIndex = -1
			e.Stats.Health = 0
		}
	}
}

// Drain returns and clears the outbound frames queued for id.
func (w *World) Drain(id ID) [][]byte {
	e, ok := w.entities[id]
	if !ok || e.Conn == nil {
		return nil
	}
	return e.Conn.Drain()
}

// Players returns the number of tanks with a connection
func (w *World) Players() int {
	n := 0
	for _, e := range w.entities {
		if e.Kind == KindTank && e.Conn != nil {
			n++
		}
	}
	return n
}

func (w *World) randomPosition(margin float64) Vec2 {
	return Vec2{
		X: margin + w.rng.Float64()*(w.cfg.Width-2*margin),
		Y: margin + w.rng.Float64()*(w.cfg.Height-2*margin),
	}
}

func (w *World) confine(p Vec2) Vec2 {
	return Vec2{Clamp(p.X, 0, w.cfg.Width), Clamp(p.Y, 0, w.cfg.Height)}
}

func (w *World) emit(ev Event) {
	ev.Tick = w.tick
	w.events = append(w.events, ev)
}
