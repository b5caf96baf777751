package arena

import (
	"math"

	"arena-server/internal/protocol"
)

// TurretPhase is the reload state of one barrel.
type TurretPhase uint8

const (
	TurretIdle TurretPhase = iota
	TurretWarming
	TurretCooling
)

// TurretSlot is the per-barrel firing state of a tank.
type TurretSlot struct {
	Barrel  *BarrelDef
	Phase   TurretPhase
	Timer   float64 // ticks left in the current phase
	Spawned int     // live projectiles from this slot
}

// ConstructionRequest describes an entity to create once the update pass is
// over.
type ConstructionRequest struct {
	Kind         Kind
	Position     Vec2
	Velocity     Vec2
	Angle        float64
	BaseSpeed    float64
	LaunchSpeed  float64
	Health       float64
	Damage       float64
	Radius       float64
	Lifetime     int
	Owner        Ownership
	TurretIndex  int
	Absorption   float64
	Push         float64
	Controllable bool
	Orb          OrbKind
	Flickering   bool
}

func newSlots(t *TurretDef) []TurretSlot {
	slots := make([]TurretSlot, len(t.Barrels))
	for i := range t.Barrels {
		slots[i].Barrel = &t.Barrels[i]
	}
	return slots
}

// advance moves the slot one tick and reports whether it fires now.
// Idle -> Warming on demand, Warming fires once its delay has elapsed,
// Cooling waits out the reload.
func (s *TurretSlot) advance(wants bool, reload float64, full bool) bool {
	switch s.Phase {
	case TurretIdle:
		if !wants {
			return false
		}
		s.Phase, s.Timer = TurretWarming, s.Barrel.Delay*reload
	case TurretCooling:
		s.Timer--
		if s.Timer > 0 {
			return false
		}
		if !wants {
			s.Phase = TurretIdle
			return false
		}
		s.Phase, s.Timer = TurretWarming, 0
	}

	if s.Timer > 0 {
		s.Timer--
		return false
	}
	if !wants {
		s.Phase = TurretIdle
		return false
	}
	if full {
		return false
	}
	s.Phase, s.Timer = TurretCooling, reload
	return true
}

// readiness is 1 when the slot can fire and falls to 0 right after a shot
func (s *TurretSlot) readiness(reload float64) float64 {
	if s.Phase != TurretCooling || reload <= 0 {
		return 1
	}
	return Clamp(1-s.Timer/reload, 0, 1)
}

// updateTurrets steps every slot of an alive tank. Drone barrels keep
// spawning until their cap regardless of input.
func (w *World) updateTurrets(e *Entity) {
	shoot := e.Physics.Inputs.Has(protocol.InputShoot)
	for i := range e.Tank.Turrets {
		s := &e.Tank.Turrets[i]
		b := s.Barrel
		wants := shoot || b.Projectile == KindDrone
		full := b.MaxSpawned > 0 && s.Spawned >= b.MaxSpawned
		if s.advance(wants, e.Stats.Reload*b.ReloadFactor, full) {
			w.fire(e, i, s)
		}
	}
}

func (w *World) fire(e *Entity, index int, s *TurretSlot) {
	b := s.Barrel
	r := e.Display.Radius
	angle := e.Physics.Angle + b.Angle
	if b.Spread > 0 {
		angle += (w.rng.Float64()*2 - 1) * b.Spread
	}
	fwd := FromAngle(angle)
	side := FromAngle(angle + math.Pi/2)
	speed, health, damage := ProjectileStats(e.Display.Stats, b)

	req := ConstructionRequest{
		Kind:         b.Projectile,
		Position:     e.Physics.Position.Add(fwd.Scale(b.Length * r)).Add(side.Scale(b.Offset * r)),
		Angle:        angle,
		BaseSpeed:    speed,
		LaunchSpeed:  speed,
		Health:       health,
		Damage:       damage,
		Radius:       b.Width * r,
		Lifetime:     b.Lifetime,
		Owner:        Ownership{Shallow: e.ID, Deep: e.Root()},
		TurretIndex:  index,
		Absorption:   1,
		Push:         1.5,
		Controllable: b.Projectile == KindDrone,
	}
	if b.Projectile == KindTrap {
		// traps are thrown and slide to a halt
		req.BaseSpeed = 0
	}
	w.pending = append(w.pending, req)
	s.Spawned++
	e.Physics.Velocity = e.Physics.Velocity.Sub(fwd.Scale(b.Recoil))
}
