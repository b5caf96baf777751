package arena

import (
	"fmt"

	"arena-server/internal/protocol"
)

// tank kill rewards are capped at the last level's threshold
var maxKillReward = levelScores[MaxLevel-1]

func (w *World) updateTank(e *Entity) {
	if !e.Alive() {
		return
	}
	in := e.Physics.Inputs

	if in.Has(protocol.InputLevelUp) && e.Display.Level < MaxLevel {
		e.Display.Score = max(e.Display.Score, MinScore(e.Display.Level+1))
	}
	w.applyLevel(e)
	w.applyDerived(e)

	if e.Stats.Health > 0 && e.Stats.Health < e.Stats.MaxHealth {
		e.Stats.Health = min(e.Stats.MaxHealth, e.Stats.Health+e.Stats.Regen)
	}

	var dir Vec2
	if in.Has(protocol.InputUp) {
		dir.Y--
	}
	if in.Has(protocol.InputDown) {
		dir.Y++
	}
	if in.Has(protocol.InputLeft) {
		dir.X--
	}
	if in.Has(protocol.InputRight) {
		dir.X++
	}
	p := &e.Physics
	p.Velocity = p.Velocity.Add(dir.Unit().Scale(e.Stats.Speed)).Scale(Friction)
	p.Position = w.confine(p.Position.Add(p.Velocity))
	if aim := p.Aim.Sub(p.Position); aim != (Vec2{}) {
		p.Angle = aim.Angle()
	}

	w.updateTurrets(e)
	e.Display.Upgrades = AvailableUpgrades(e.Display.Upgrades, e.Display.Body, e.Display.Turret, e.Display.Level)
}

// applyLevel raises the level to match the score and grants the stat points
// of every level passed.
func (w *World) applyLevel(e *Entity) {
	level := LevelFromScore(e.Display.Score)
	for l := e.Display.Level + 1; l <= level; l++ {
		if GrantsStatPoint(l) {
			e.Display.StatPoints++
		}
	}
	if level > e.Display.Level {
		e.Display.Level = level
	}
}

// applyDerived recomputes tank stats, keeping the health ratio across max
// health changes.
func (w *World) applyDerived(e *Entity) {
	d := Derive(Body(e.Display.Body), e.Display.Level, e.Display.Stats)
	ratio := 1.0
	if e.Stats.MaxHealth > 0 {
		ratio = e.Stats.Health / e.Stats.MaxHealth
	}
	e.Stats.MaxHealth = d.MaxHealth
	e.Stats.Health = ratio * d.MaxHealth
	e.Stats.Regen = d.Regen
	e.Stats.DamagePerTick = d.BodyDamage
	e.Stats.Reload = d.Reload
	e.Stats.Speed = d.Speed
	e.Display.FieldOfView = d.FieldOfView * Turret(e.Display.Turret).FieldOfView
	e.Display.Radius = d.Radius
}

// spawn activates an uninitialized tank with the base identities. Score
// kept from a previous life carries over into the starting level.
func (w *World) spawn(e *Entity, name string) {
	body := Body(BodyBase)
	e.Display.Name = name
	e.Display.Body = BodyBase
	e.Display.Turret = TurretBasic
	e.Display.Level = LevelFromScore(e.Display.Score)
	e.Display.Stats = [StatCount]int{}
	e.Display.StatPoints = StatPointsAt(e.Display.Level)
	e.Display.Opacity = 1
	e.Tank.Turrets = newSlots(Turret(TurretBasic))

	e.Physics = Physics{
		Position:   w.randomPosition(body.Radius * 2),
		Aim:        e.Physics.Aim,
		Inputs:     e.Physics.Inputs,
		Collidable: true,
		Absorption: body.Absorption,
		Push:       body.Push,
		collisions: e.Physics.collisions[:0],
	}
	e.Stats = Stats{
		DamageReduction: 1,
		Lifetime:        -1,
		State:           Alive,
	}
	w.applyDerived(e)
	e.Stats.Health = e.Stats.MaxHealth
	e.Display.Upgrades = AvailableUpgrades(e.Display.Upgrades, e.Display.Body, e.Display.Turret, e.Display.Level)
	w.emit(Event{Kind: EventSpawn, Entity: e.ID, Name: name, Score: e.Display.Score})
}

// retire turns a dead tank back into an uninitialized one awaiting respawn.
func (w *World) retire(e *Entity) {
	e.Stats.State = Uninitialized
	e.Display.Score /= 2
	e.Physics.Collidable = false
	e.Physics.Velocity = Vec2{}
	e.Tank.Turrets = nil
	w.releaseProjectiles(e.ID)
}

// killed credits the killer's root owner and tells both sides.
func (w *World) killed(victim *Entity) {
	ev := Event{Kind: EventKilled, Entity: victim.ID, Name: victim.Display.Name, Score: victim.Display.Score}
	killerName := "the arena"
	if root, ok := w.entities[victim.Stats.LastDamager]; ok {
		ev.Other, ev.OtherKind = root.ID, root.Kind
		switch root.Kind {
		case KindTank:
			killerName = root.Display.Name
			if root.Alive() && root.ID != victim.ID {
				root.Display.Score += min(victim.Display.Score, maxKillReward)
				root.Tank.Kills++
				w.notify(root, fmt.Sprintf("You killed %s", displayName(victim)), colorKill)
			}
		case KindOrb:
			killerName = "a " + Orbs[root.Orb.Kind].Name
		}
	}
	ev.OtherName = killerName
	w.notify(victim, fmt.Sprintf("You were killed by %s", killerName), colorDeath)
	w.emit(ev)
}

func displayName(e *Entity) string {
	if e.Display.Name == "" {
		return "an unnamed tank"
	}
	return e.Display.Name
}
