package arena

import (
	"math"

	"arena-server/internal/spatial"
)

// TankDamageBonus multiplies the contact damage of player tanks.
const TankDamageBonus = 1.5

// Overlap returns how far two circles interpenetrate; positive means they
// touch. It is symmetric in a and b.
func Overlap(a, b *Entity) float64 {
	return a.Display.Radius + b.Display.Radius - a.Physics.Position.Dist(b.Physics.Position)
}

// MutuallyCollidable reports whether a and b may exchange damage: both are
// collidable and not dead, neither owns the other, and they do not share a
// root owner.
func MutuallyCollidable(a, b *Entity) bool {
	if a.ID == b.ID || !a.Physics.Collidable || !b.Physics.Collidable {
		return false
	}
	if a.Stats.State == Dead || b.Stats.State == Dead {
		return false
	}
	if a.OwnedBy(b.ID) || b.OwnedBy(a.ID) {
		return false
	}
	return a.Display.Owner.Deep == 0 || a.Display.Owner.Deep != b.Display.Owner.Deep
}

func contactDamage(e *Entity) float64 {
	d := e.Stats.DamagePerTick * e.Stats.DamageReduction
	if e.Kind == KindTank {
		d *= TankDamageBonus
	}
	return d
}

// Resolve exchanges knockback and damage between two overlapping entities
// and marks the pair handled for this tick. It reports whether anything was
// applied.
func Resolve(a, b *Entity, tick uint64) bool {
	if a.Stats.State == Dead || b.Stats.State == Dead || a.Stats.Health <= 0 || b.Stats.Health <= 0 {
		return false
	}
	if a.Physics.Resolved(b.ID) || b.Physics.Resolved(a.ID) {
		return false
	}
	if a.Stats.DamageReduction == 0 && b.Stats.DamageReduction == 0 {
		return false
	}
	aKnock := a.Physics.Absorption * a.Physics.Push
	bKnock := b.Physics.Absorption * b.Physics.Push
	aDmg, bDmg := contactDamage(a), contactDamage(b)
	if (aDmg == 0 && aKnock == 0) || (bDmg == 0 && bKnock == 0) {
		return false
	}
	a.Physics.markResolved(b.ID)
	b.Physics.markResolved(a.ID)

	away := a.Physics.Position.Sub(b.Physics.Position).Unit()
	if away == (Vec2{}) {
		away = Vec2{1, 0}
	}
	a.Physics.Velocity = a.Physics.Velocity.Add(away.Scale(aKnock))
	b.Physics.Velocity = b.Physics.Velocity.Sub(away.Scale(bKnock))

	// x/0 is +Inf for positive health, so a side dealing nothing never
	// drives the ratio.
	ratio := math.Max(1-a.Stats.Health/bDmg, 1-b.Stats.Health/aDmg)
	if ratio > 0 {
		aDmg *= 1 - ratio
		bDmg *= 1 - ratio
	}
	if aDmg > 0 {
		b.Stats.Health -= aDmg
		b.Stats.LastDamageTick = tick
		b.Stats.LastDamager = a.Root()
	}
	if bDmg > 0 {
		a.Stats.Health -= bDmg
		a.Stats.LastDamageTick = tick
		a.Stats.LastDamager = b.Root()
	}
	return true
}

// collide reinserts every entity at its new position in id order and
// resolves it against the neighbors the grid reports.
func (w *World) collide() int {
	n := 0
	for _, id := range w.ids {
		e, ok := w.entities[id]
		if !ok {
			continue
		}
		pos := e.Physics.Position
		w.grid.Reinsert(spatial.ID(id), pos.X, pos.Y, e.Display.Radius)
		w.near = w.grid.QueryRadius(spatial.ID(id), pos.X, pos.Y, e.Display.Radius, w.near[:0])
		for _, nid := range w.near {
			o := w.MustGet(ID(nid))
			if e.Physics.Resolved(o.ID) || o.Physics.Resolved(e.ID) {
				continue
			}
			if Overlap(e, o) <= 0 || !MutuallyCollidable(e, o) {
				continue
			}
			if Resolve(e, o, w.tick) {
				n++
			}
		}
	}
	return n
}
