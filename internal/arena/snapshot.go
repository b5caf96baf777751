package arena

import (
	"slices"

	"arena-server/internal/census"
	"arena-server/internal/protocol"
	"arena-server/internal/spatial"
)

// broadcast queues one Update frame for every connected tank.
func (w *World) broadcast() {
	for _, id := range w.ids {
		e, ok := w.entities[id]
		if !ok || e.Kind != KindTank || e.Conn == nil {
			continue
		}
		e.Conn.Push(w.EncodeUpdate(e))
	}
}

// ViewRect returns the world rectangle visible to viewer.
func (w *World) ViewRect(viewer *Entity) (minX, minY, maxX, maxY float64) {
	fov := viewer.Display.FieldOfView
	if fov <= 0 {
		fov = 1
	}
	half := w.cfg.ViewExtent / fov
	p := viewer.Physics.Position
	return p.X - half, p.Y - half, p.X + half, p.Y + half
}

// EncodeUpdate builds the Update frame for viewer: its own census followed
// by the alive entities in view. Entities that were in the previous frame
// but are now gone or dead are sent once more with an empty census.
func (w *World) EncodeUpdate(viewer *Entity) []byte {
	minX, minY, maxX, maxY := w.ViewRect(viewer)
	w.near = w.grid.QueryRect(spatial.ID(viewer.ID), minX, minY, maxX, maxY, w.near[:0])

	w.visible = w.visible[:0]
	for _, nid := range w.near {
		if o, ok := w.entities[ID(nid)]; ok && o.Alive() {
			w.visible = append(w.visible, o.ID)
		}
	}
	slices.Sort(w.visible)

	view := viewer.Conn.view
	w.removed = w.removed[:0]
	for id := range view {
		if _, ok := slices.BinarySearch(w.visible, id); !ok {
			w.removed = append(w.removed, id)
		}
	}
	slices.Sort(w.removed)

	wr := w.writer
	wr.Reset()
	wr.Uvarint(protocol.OpUpdate)
	wr.Uvarint(uint64(viewer.ID))
	w.fillCensus(viewer, true)
	w.census.Encode(wr)

	wr.Uvarint(uint64(len(w.visible) + len(w.removed)))
	for _, id := range w.visible {
		wr.Uvarint(uint64(id))
		w.fillCensus(w.entities[id], false)
		w.census.Encode(wr)
	}
	w.census.Reset()
	for _, id := range w.removed {
		wr.Uvarint(uint64(id))
		w.census.Encode(wr)
	}

	clear(view)
	for _, id := range w.visible {
		view[id] = struct{}{}
	}
	return slices.Clone(wr.Bytes())
}

// fillCensus loads w.census with the fields of e a viewer gets to see. The
// owner's own view adds name, score, stats, upgrades and energy.
func (w *World) fillCensus(e *Entity, self bool) {
	c := &w.census
	c.Reset()
	if e.Stats.State == Dead && !self {
		return
	}
	p := &e.Physics
	c.SetKind(uint8(e.Kind))
	c.SetPosition(float32(p.Position.X), float32(p.Position.Y))
	c.SetAngle(float32(p.Angle))
	c.SetRadius(float32(e.Display.Radius))
	c.SetHealth(float32(e.Stats.Health))
	c.SetMaxHealth(float32(e.Stats.MaxHealth))
	c.SetOpacity(float32(e.Display.Opacity))

	switch e.Kind {
	case KindTank:
		v := p.Velocity.Add(p.Steering)
		c.SetVelocity(float32(v.X), float32(v.Y))
		c.SetIdentity(uint32(e.Display.Body), uint32(e.Display.Turret))
		c.SetLevel(uint32(e.Display.Level))
		if self {
			w.fillSelf(e, c)
		}
	case KindBullet, KindDrone, KindTrap:
		v := p.Velocity.Add(p.Steering)
		c.SetVelocity(float32(v.X), float32(v.Y))
		c.SetOwner(int64(e.Display.Owner.Shallow), int64(e.Display.Owner.Deep), uint32(max(e.Display.TurretIndex, 0)))
	case KindOrb:
		flicker := uint32(0)
		if e.Orb.Flickering {
			flicker = 1
		}
		c.SetIdentity(uint32(e.Orb.Kind), flicker)
	}
}

func (w *World) fillSelf(e *Entity, c *census.Census) {
	d := &e.Display
	c.SetName(d.Name)
	c.SetScore(uint64(d.Score))
	c.SetTicks(e.Clock.Ticks)
	c.SetFieldOfView(float32(d.FieldOfView))

	stats := c.Stats[:0]
	for _, v := range d.Stats {
		stats = append(stats, uint32(v))
	}
	c.SetStats(uint32(d.StatPoints), stats)

	bodies := c.BodyChoices[:0]
	for _, b := range d.Upgrades.Bodies {
		bodies = append(bodies, uint32(b))
	}
	turrets := c.TurretPicks[:0]
	for _, t := range d.Upgrades.Turrets {
		turrets = append(turrets, uint32(t))
	}
	c.SetUpgrades(bodies, turrets)

	energy := 1.0
	if e.Tank != nil && len(e.Tank.Turrets) > 0 {
		s := &e.Tank.Turrets[0]
		energy = s.readiness(e.Stats.Reload * s.Barrel.ReloadFactor)
	}
	c.SetEnergy(float32(energy))
}
