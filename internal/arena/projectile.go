package arena

import (
	"math"

	"arena-server/internal/protocol"
	"arena-server/internal/spatial"
)

// updateProjectile moves a bullet, drone or trap. Drones die with their
// owner; bullets and traps outlive it until their lifetime runs out.
func (w *World) updateProjectile(e *Entity) {
	if !e.Alive() {
		return
	}
	if e.Stats.Lifetime > 0 {
		e.Stats.Lifetime--
		if e.Stats.Lifetime == 0 {
			e.Stats.Health = 0
		}
	}

	p := e.Projectile
	p.CurrentSpeed += (p.BaseSpeed - p.CurrentSpeed) * SpeedDecay

	if e.Kind == KindDrone {
		owner, ok := w.entities[e.Display.Owner.Shallow]
		if !ok || !owner.Alive() {
			e.Stats.Health = 0
			return
		}
		w.steerDrone(e, owner)
	}

	ph := &e.Physics
	ph.Steering = FromAngle(ph.Angle).Scale(p.CurrentSpeed)
	ph.Velocity = ph.Velocity.Scale(Friction)
	ph.Position = ph.Position.Add(ph.Steering).Add(ph.Velocity)
	if e.Kind != KindBullet {
		ph.Position = w.confine(ph.Position)
	}
}

// steerDrone picks a target point from the owner's input and turns the
// drone toward it by a fixed blend factor.
//
//	possessed: owner holds shoot (chase the aim point) or repel (flee it)
//	resting:   near the owner, hunt the nearest foe or orbit the owner
//	extended:  far from the owner, return to a point ahead of it
func (w *World) steerDrone(e, owner *Entity) {
	p := e.Projectile
	in := owner.Physics.Inputs
	pos := e.Physics.Position
	var target Vec2

	switch {
	case p.Controllable && in.Has(protocol.InputShoot):
		p.Mode, p.Target = ModePossessed, 0
		target = owner.Physics.Aim
	case p.Controllable && in.Has(protocol.InputRepel):
		p.Mode, p.Target = ModePossessed, 0
		target = pos.Add(pos.Sub(owner.Physics.Aim))
	case pos.Dist(owner.Physics.Position) <= DroneRestRange:
		if foe := w.nearestFoe(e, DroneHuntRange); foe != nil {
			p.Mode, p.Target = ModeHunting, foe.ID
			target = foe.Physics.Position
			break
		}
		p.Mode, p.Target = ModeResting, 0
		around := pos.Sub(owner.Physics.Position).Angle() + 0.5
		target = owner.Physics.Position.Add(FromAngle(around).Scale(owner.Display.Radius * 3))
	default:
		p.Mode, p.Target = ModeExtended, 0
		target = owner.Physics.Position.Add(FromAngle(owner.Physics.Angle).Scale(owner.Display.Radius * 2))
	}

	if d := target.Sub(pos); d != (Vec2{}) {
		e.Physics.Angle = LerpAngle(e.Physics.Angle, d.Angle(), DroneBlend)
	}
}

// nearestFoe returns the closest alive tank or orb within rng that e could
// collide with, using the grid built in the previous collision pass.
func (w *World) nearestFoe(e *Entity, rng float64) *Entity {
	pos := e.Physics.Position
	w.near = w.grid.QueryRect(spatial.ID(e.ID), pos.X-rng, pos.Y-rng, pos.X+rng, pos.Y+rng, w.near[:0])

	var best *Entity
	bestDist := math.Inf(1)
	for _, nid := range w.near {
		o, ok := w.entities[ID(nid)]
		if !ok || !o.Alive() || (o.Kind != KindTank && o.Kind != KindOrb) {
			continue
		}
		if !MutuallyCollidable(e, o) {
			continue
		}
		if d := pos.DistSq(o.Physics.Position); d <= rng*rng && d < bestDist {
			best, bestDist = o, d
		}
	}
	return best
}
