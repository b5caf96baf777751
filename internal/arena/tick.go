package arena

import (
	"fmt"
	"slices"

	"arena-server/internal/protocol"
)

// EventKind classifies gameplay events reported to the runner.
type EventKind uint8

const (
	EventSpawn EventKind = iota
	EventKilled
	EventUpgrade
)

func (k EventKind) String() string {
	switch k {
	case EventSpawn:
		return "spawn"
	case EventKilled:
		return "killed"
	case EventUpgrade:
		return "upgrade"
	}
	return "unknown"
}

// Event is something the runner may log or persist. For EventKilled,
// Entity is the victim and Other the root of whatever dealt the last hit.
type Event struct {
	Kind      EventKind
	Tick      uint64
	Entity    ID
	Other     ID
	OtherKind Kind
	Name      string
	OtherName string
	Score     int
}

// TickReport summarizes one tick.
type TickReport struct {
	Tick        uint64
	Entities    int
	Constructed int
	Deleted     int
	Collisions  int
	Events      []Event
}

const (
	colorDeath = 0xFF4040
	colorKill  = 0x40FF40
	colorChat  = 0xFFFFFF
	noticeMS   = 5000
)

func (w *World) notify(e *Entity, text string, color uint32) {
	if e.Conn == nil {
		return
	}
	e.Conn.Push(protocol.EncodeNotification(protocol.Notification{Text: text, Color: color, DurationMS: noticeMS}))
}

// Tick advances the world by one step:
//
//	A. update every entity present at the start of the tick, in id order
//	B. create the entities requested during A
//	C. reinsert into the grid and resolve collisions
//	D. queue one Update frame per connected tank
func (w *World) Tick() TickReport {
	w.tick++
	w.deleted = 0
	now := w.now()

	w.snapshotIDs()
	for _, id := range w.ids {
		e, ok := w.entities[id]
		if !ok {
			continue
		}
		e.Clock.Ticks++
		e.Clock.LastUpdate = now
		e.Physics.collisions = e.Physics.collisions[:0]

		if e.Stats.State == Dead {
			if e.Kind == KindTank {
				w.retire(e)
			} else {
				w.Delete(id)
			}
			continue
		}

		switch e.Kind {
		case KindTank:
			w.updateTank(e)
		case KindBullet, KindDrone, KindTrap:
			w.updateProjectile(e)
		case KindOrb:
			w.updateOrb(e)
		}

		if e.Stats.State == Alive && e.Stats.Health <= 0 {
			w.die(e)
		}
	}
	w.directOrbs()

	constructed := w.realize()

	w.snapshotIDs()
	collisions := w.collide()

	w.broadcast()

	if w.cfg.Debug {
		if err := w.CheckInvariants(); err != nil {
			panic(err)
		}
	}

	report := TickReport{
		Tick:        w.tick,
		Entities:    len(w.entities),
		Constructed: constructed,
		Deleted:     w.deleted,
		Collisions:  collisions,
		Events:      w.events,
	}
	w.events = nil
	return report
}

func (w *World) snapshotIDs() {
	w.ids = w.ids[:0]
	for id := range w.entities {
		w.ids = append(w.ids, id)
	}
	slices.Sort(w.ids)
}

// die moves an alive entity to Dead. It stays registered until its next
// update so viewers get one deletion census.
func (w *World) die(e *Entity) {
	e.Stats.State = Dead
	e.Physics.Collidable = false
	switch e.Kind {
	case KindTank:
		w.killed(e)
	case KindOrb:
		root, ok := w.entities[e.Stats.LastDamager]
		if ok && root.Kind == KindTank && root.Alive() {
			root.Display.Score += e.Orb.Reward
		}
	}
}

// realize turns queued construction requests into entities, first in first
// out.
func (w *World) realize() int {
	n := len(w.pending)
	for i := range w.pending {
		w.Insert(w.construct(&w.pending[i]))
	}
	clear(w.pending)
	w.pending = w.pending[:0]
	return n
}

func (w *World) construct(req *ConstructionRequest) *Entity {
	e := &Entity{ID: w.NextID(), Kind: req.Kind}
	e.Physics = Physics{
		Position:   req.Position,
		Velocity:   req.Velocity,
		Angle:      req.Angle,
		Collidable: true,
		Absorption: req.Absorption,
		Push:       req.Push,
	}
	e.Display = Display{
		Radius:      req.Radius,
		Owner:       req.Owner,
		TurretIndex: req.TurretIndex,
		Opacity:     1,
		Level:       1,
		FieldOfView: 1,
	}
	e.Stats = Stats{
		Health:          req.Health,
		MaxHealth:       req.Health,
		DamagePerTick:   req.Damage,
		DamageReduction: 1,
		Lifetime:        req.Lifetime,
		State:           Alive,
	}
	e.Clock.LastUpdate = w.now()

	switch req.Kind {
	case KindOrb:
		e.Orb = &OrbState{
			Kind:       req.Orb,
			Flickering: req.Flickering,
			Confined:   true,
			Spin:       (w.rng.Float64()*2 - 1) * OrbSpin,
			Reward:     Orbs[req.Orb].Reward,
		}
		if req.Flickering {
			e.Orb.Reward *= FlickerMultiple
		}
	case KindBullet, KindDrone, KindTrap:
		e.Projectile = &ProjectileState{
			BaseSpeed:    req.BaseSpeed,
			CurrentSpeed: req.LaunchSpeed,
			Controllable: req.Controllable,
		}
	default:
		panic(fmt.Sprintf("arena: cannot construct %v", req.Kind))
	}
	return e
}
