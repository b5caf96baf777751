package arena

import "math"

// OrbKind selects an orb definition.
type OrbKind uint8

const (
	OrbSquare OrbKind = iota
	OrbTriangle
	OrbPentagon
	OrbAlphaPentagon
)

// OrbDef holds the stats of an orb kind. Weight is its share of director
// spawns.
type OrbDef struct {
	Name   string
	Health float64
	Damage float64
	Radius float64
	Reward int
	Weight float64
}

var Orbs = [...]OrbDef{
	OrbSquare:        {Name: "Square", Health: 10, Damage: 8, Radius: 27, Reward: 10, Weight: 0.65},
	OrbTriangle:      {Name: "Triangle", Health: 30, Damage: 8, Radius: 27, Reward: 25, Weight: 0.25},
	OrbPentagon:      {Name: "Pentagon", Health: 100, Damage: 12, Radius: 40, Reward: 130, Weight: 0.095},
	OrbAlphaPentagon: {Name: "Alpha Pentagon", Health: 3000, Damage: 20, Radius: 100, Reward: 3000, Weight: 0.005},
}

const (
	OrbFriction     = 0.95
	OrbDrift        = 0.15 // self-propelled speed per tick
	OrbSpin         = 0.01 // radians per tick
	FlickerChance   = 0.002
	FlickerMultiple = 10 // reward multiplier of flickering orbs
)

func (w *World) updateOrb(e *Entity) {
	if !e.Alive() {
		return
	}
	o := e.Orb
	if o.Flickering {
		e.Display.Opacity = 0.6 + 0.4*w.rng.Float64()
	}
	p := &e.Physics
	p.Angle = NormalizeAngle(p.Angle + o.Spin)
	p.Steering = FromAngle(p.Angle).Scale(OrbDrift)
	p.Velocity = p.Velocity.Scale(OrbFriction)
	p.Position = p.Position.Add(p.Velocity).Add(p.Steering)
	if o.Confined {
		p.Position = w.confine(p.Position)
	}
}

// directOrbs tops the orb population up toward the configured target, a
// few per tick.
func (w *World) directOrbs() {
	missing := min(w.cfg.OrbTarget-w.orbs, w.cfg.OrbsPerTick)
	for range missing {
		kind := w.pickOrb()
		def := &Orbs[kind]
		w.pending = append(w.pending, ConstructionRequest{
			Kind:        KindOrb,
			Position:    w.randomPosition(def.Radius),
			Angle:       w.rng.Float64() * 2 * math.Pi,
			Health:      def.Health,
			Damage:      def.Damage,
			Radius:      def.Radius,
			Lifetime:    -1,
			TurretIndex: -1,
			Absorption:  0.5,
			Push:        6,
			Orb:         kind,
			Flickering:  w.rng.Float64() < FlickerChance,
		})
	}
}

func (w *World) pickOrb() OrbKind {
	x := w.rng.Float64()
	for k := range Orbs {
		if x < Orbs[k].Weight {
			return OrbKind(k)
		}
		x -= Orbs[k].Weight
	}
	return OrbSquare
}
