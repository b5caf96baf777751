package arena

import (
	"fmt"

	"arena-server/internal/protocol"
)

// Apply mutates the tank id according to one decoded client command. It
// must not run concurrently with Tick.
func (w *World) Apply(id ID, cmd protocol.Command) error {
	e, ok := w.entities[id]
	if !ok {
		return fmt.Errorf("apply %T to %d: %w", cmd, id, ErrUnknownEntity)
	}
	if e.Kind != KindTank {
		return fmt.Errorf("apply %T to %d: %w", cmd, id, ErrNotATank)
	}

	switch c := cmd.(type) {
	case protocol.Spawn:
		if e.Stats.State != Uninitialized {
			return ErrAlreadySpawned
		}
		w.spawn(e, c.Name)
	case protocol.Input:
		e.Physics.Inputs = c.Flags
		e.Physics.Aim = Vec2{float64(c.MouseX), float64(c.MouseY)}
	case protocol.Stats:
		return w.invest(e, c.Index)
	case protocol.Upgrade:
		return w.upgrade(e, c.Kind, c.Index)
	case protocol.Ping:
		if e.Conn != nil {
			e.Conn.Push(protocol.EncodePong())
		}
	case protocol.Chat:
		if c.Text == "" {
			return nil
		}
		frame := protocol.EncodeNotification(protocol.Notification{
			Text:       displayName(e) + ": " + c.Text,
			Color:      colorChat,
			DurationMS: noticeMS,
		})
		for _, o := range w.entities {
			if o.Kind == KindTank && o.Conn != nil {
				o.Conn.Push(frame)
			}
		}
	case protocol.Clan:
		// clan membership lives outside the simulation
	default:
		return fmt.Errorf("apply %T: %w", cmd, ErrUnknownCommand)
	}
	return nil
}

func (w *World) invest(e *Entity, index uint32) error {
	if !e.Alive() {
		return ErrNotSpawned
	}
	if index >= StatCount {
		return fmt.Errorf("stat %d: %w", index, ErrInvalidStat)
	}
	if e.Display.StatPoints == 0 {
		return ErrNoStatPoints
	}
	if e.Display.Stats[index] >= Body(e.Display.Body).StatCaps[index] {
		return fmt.Errorf("stat %s: %w", Stat(index), ErrStatCapped)
	}
	e.Display.Stats[index]++
	e.Display.StatPoints--
	return nil
}

// upgrade switches to the index-th currently offered body or turret.
func (w *World) upgrade(e *Entity, kind protocol.UpgradeKind, index uint32) error {
	if !e.Alive() {
		return ErrNotSpawned
	}
	d := &e.Display
	d.Upgrades = AvailableUpgrades(d.Upgrades, d.Body, d.Turret, d.Level)

	switch kind {
	case protocol.UpgradeBody:
		if int(index) >= len(d.Upgrades.Bodies) {
			return fmt.Errorf("body choice %d: %w", index, ErrInvalidUpgrade)
		}
		d.Body = d.Upgrades.Bodies[index]
		b := Body(d.Body)
		// refund points above the new body's caps
		for i := range d.Stats {
			if over := d.Stats[i] - b.StatCaps[i]; over > 0 {
				d.Stats[i] -= over
				d.StatPoints += over
			}
		}
		e.Physics.Absorption = b.Absorption
		e.Physics.Push = b.Push
	case protocol.UpgradeTurret:
		if int(index) >= len(d.Upgrades.Turrets) {
			return fmt.Errorf("turret choice %d: %w", index, ErrInvalidUpgrade)
		}
		w.releaseProjectiles(e.ID)
		d.Turret = d.Upgrades.Turrets[index]
		e.Tank.Turrets = newSlots(Turret(d.Turret))
	default:
		return fmt.Errorf("upgrade kind %d: %w", kind, ErrInvalidUpgrade)
	}

	w.applyDerived(e)
	d.Upgrades = AvailableUpgrades(d.Upgrades, d.Body, d.Turret, d.Level)
	w.emit(Event{Kind: EventUpgrade, Entity: e.ID, Name: d.Name, Score: d.Score})
	return nil
}
