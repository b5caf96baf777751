package arena

import (
	"time"

	"arena-server/internal/protocol"
)

// ID identifies an entity for the lifetime of the process. Zero means none.
type ID uint32

// Kind selects which behaviour branch an entity carries.
type Kind uint8

const (
	KindTank Kind = iota
	KindBullet
	KindDrone
	KindTrap
	KindOrb
)

func (k Kind) String() string {
	switch k {
	case KindTank:
		return "tank"
	case KindBullet:
		return "bullet"
	case KindDrone:
		return "drone"
	case KindTrap:
		return "trap"
	case KindOrb:
		return "orb"
	}
	return "unknown"
}

// IsProjectile reports bullet, drone and trap kinds
func (k Kind) IsProjectile() bool {
	return k == KindBullet || k == KindDrone || k == KindTrap
}

// AliveState moves Uninitialized -> Alive -> Dead.
type AliveState uint8

const (
	Uninitialized AliveState = iota
	Alive
	Dead
)

func (s AliveState) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	}
	return "unknown"
}

// Ownership links an entity to its creator (Shallow) and to the root of
// the creation chain (Deep). Both are zero for tanks and orbs.
type Ownership struct {
	Shallow ID
	Deep    ID
}

// Physics is the movement and contact component.
type Physics struct {
	Position   Vec2
	Velocity   Vec2 // knockback and recoil, damped by friction
	Steering   Vec2 // self-propelled component, recomputed each tick
	Angle      float64
	Aim        Vec2 // mouse position in world space
	Inputs     protocol.InputFlags
	Collidable bool
	Absorption float64
	Push       float64

	// partners already resolved this tick
	collisions []ID
}

// Resolved reports whether the pair with other was handled this tick
func (p *Physics) Resolved(other ID) bool {
	for _, id := range p.collisions {
		if id == other {
			return true
		}
	}
	return false
}

func (p *Physics) markResolved(other ID) {
	p.collisions = append(p.collisions, other)
}

// Display is what clients render.
type Display struct {
	Name        string
	Score       int
	Level       int
	Stats       [StatCount]int
	StatPoints  int
	Upgrades    UpgradeChoices
	Opacity     float64
	FieldOfView float64
	Body        BodyID
	Turret      TurretID
	Radius      float64
	Owner       Ownership
	TurretIndex int
}

// Stats is the combat component.
type Stats struct {
	Health          float64
	MaxHealth       float64
	DamagePerTick   float64
	DamageReduction float64
	Regen           float64
	Reload          float64 // ticks between shots
	Speed           float64
	Lifetime        int // ticks left, -1 = infinite
	State           AliveState
	LastDamageTick  uint64
	LastDamager     ID
}

// Clock tracks entity age.
type Clock struct {
	Ticks      uint64
	LastUpdate time.Time
}

// Connection queues serialized frames for the owning client.
type Connection struct {
	outbound [][]byte
	// ids included in the previous update, so removals can be signalled
	view map[ID]struct{}
}

// NewConnection creates an empty outbound queue
func NewConnection() *Connection {
	return &Connection{view: make(map[ID]struct{})}
}

// Push appends one encoded frame
func (c *Connection) Push(frame []byte) {
	c.outbound = append(c.outbound, frame)
}

// Drain returns the queued frames and clears the queue.
func (c *Connection) Drain() [][]byte {
	frames := c.outbound
	c.outbound = nil
	return frames
}

// Pending returns the number of queued frames
func (c *Connection) Pending() int {
	return len(c.outbound)
}

// Entity is one simulated object. Kind selects which of Tank, Projectile
// and Orb is set; the other two stay nil.
type Entity struct {
	ID   ID
	Kind Kind

	Physics Physics
	Display Display
	Stats   Stats
	Clock   Clock
	Conn    *Connection

	Tank       *TankState
	Projectile *ProjectileState
	Orb        *OrbState
}

// Alive reports whether the entity takes part in the simulation
func (e *Entity) Alive() bool {
	return e.Stats.State == Alive
}

// Root returns the id at the top of the ownership chain, which may be the
// entity itself.
func (e *Entity) Root() ID {
	if e.Display.Owner.Deep != 0 {
		return e.Display.Owner.Deep
	}
	return e.ID
}

// OwnedBy reports whether id appears in e's ownership chain
func (e *Entity) OwnedBy(id ID) bool {
	return id != 0 && (e.Display.Owner.Shallow == id || e.Display.Owner.Deep == id)
}

// TankState is the tank-only branch.
type TankState struct {
	Turrets []TurretSlot
	Kills   int
}

// DroneMode is the steering mode a controllable projectile used last tick.
type DroneMode uint8

const (
	ModeFree DroneMode = iota
	ModePossessed
	ModeResting
	ModeExtended
	ModeHunting
)

// ProjectileState is the bullet/drone/trap branch.
type ProjectileState struct {
	BaseSpeed    float64
	CurrentSpeed float64
	Controllable bool
	Mode         DroneMode
	Target       ID
}

// OrbState is the orb-only branch.
type OrbState struct {
	Kind       OrbKind
	Flickering bool
	Confined   bool
	Spin       float64
	Reward     int
}
