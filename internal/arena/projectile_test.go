package arena

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/protocol"
)

func droneAt(w *World, owner *Entity, pos Vec2, angle float64) *Entity {
	return addEntity(w, ConstructionRequest{
		Kind: KindDrone, Position: pos, Angle: angle, Health: 10, Damage: 5, Radius: 20,
		Lifetime: -1, Owner: Ownership{Shallow: owner.ID, Deep: owner.ID}, TurretIndex: -1,
		Absorption: 1, Push: 1.5, BaseSpeed: 10, LaunchSpeed: 10, Controllable: true,
	})
}

func TestPossessedDroneBlendsTowardAim(t *testing.T) {
	w := newTestWorld(t)
	owner := spawnTank(t, w, "O", Vec2{1000, 1000})
	d := droneAt(w, owner, Vec2{1000, 1200}, 0)
	require.NoError(t, w.Apply(owner.ID, protocol.Input{Flags: protocol.InputShoot, MouseX: 1000, MouseY: 2200}))

	w.Tick()
	assert.Equal(t, ModePossessed, d.Projectile.Mode)
	assert.InDelta(t, DroneBlend*math.Pi/2, d.Physics.Angle, 1e-9)
}

func TestRepelledDroneTurnsAwayFromAim(t *testing.T) {
	w := newTestWorld(t)
	owner := spawnTank(t, w, "O", Vec2{1000, 1000})
	d := droneAt(w, owner, Vec2{1000, 1200}, 0)
	require.NoError(t, w.Apply(owner.ID, protocol.Input{Flags: protocol.InputRepel, MouseX: 1000, MouseY: 2200}))

	w.Tick()
	assert.Equal(t, ModePossessed, d.Projectile.Mode)
	assert.InDelta(t, -DroneBlend*math.Pi/2, d.Physics.Angle, 1e-9)
}

func TestDistantDroneReturnsToOwner(t *testing.T) {
	w := newTestWorld(t)
	owner := spawnTank(t, w, "O", Vec2{1000, 1000})
	d := droneAt(w, owner, Vec2{1000, 1600}, 0)

	w.Tick()
	assert.Equal(t, ModeExtended, d.Projectile.Mode)
	// target is one diameter ahead of the owner: (1100, 1000)
	want := LerpAngle(0, math.Atan2(1000-1600, 1100-1000), DroneBlend)
	assert.InDelta(t, want, d.Physics.Angle, 1e-9)
}

func TestRestingDroneHuntsNearestFoe(t *testing.T) {
	w := newTestWorld(t)
	owner := spawnTank(t, w, "O", Vec2{1000, 1000})
	d := droneAt(w, owner, Vec2{1000, 1200}, 0)
	far := orbAt(w, Vec2{1500, 1200})
	near := orbAt(w, Vec2{1200, 1200})

	// the grid is filled by the first collision pass
	w.Tick()
	w.Tick()
	assert.Equal(t, ModeHunting, d.Projectile.Mode)
	assert.Equal(t, near.ID, d.Projectile.Target)
	assert.NotEqual(t, far.ID, d.Projectile.Target)
}

func TestIdleDroneRests(t *testing.T) {
	w := newTestWorld(t)
	owner := spawnTank(t, w, "O", Vec2{1000, 1000})
	d := droneAt(w, owner, Vec2{1000, 1200}, 0)
	w.Tick()
	assert.Equal(t, ModeResting, d.Projectile.Mode)
	assert.Zero(t, d.Projectile.Target)
}

func TestTrapSlowsToAHalt(t *testing.T) {
	w := newTestWorld(t)
	trap := addEntity(w, ConstructionRequest{
		Kind: KindTrap, Position: Vec2{1000, 1000}, Health: 16, Damage: 7, Radius: 40,
		Lifetime: 600, TurretIndex: -1, BaseSpeed: 0, LaunchSpeed: 40,
	})
	w.Tick()
	assert.InDelta(t, 36.0, trap.Projectile.CurrentSpeed, 1e-9)
	for range 100 {
		w.Tick()
	}
	assert.Less(t, trap.Projectile.CurrentSpeed, 0.01)
}

func TestOverseerSpawnsDronesUpToCap(t *testing.T) {
	w := newTestWorld(t)
	owner := spawnTank(t, w, "O", Vec2{2000, 2000})
	owner.Display.Turret = TurretOverseer
	owner.Tank.Turrets = newSlots(Turret(TurretOverseer))

	for range 400 {
		w.Tick()
	}
	drones := 0
	for _, e := range w.entities {
		if e.Kind == KindDrone && e.Alive() {
			drones++
		}
	}
	assert.Equal(t, 8, drones)
	assert.Equal(t, 4, owner.Tank.Turrets[0].Spawned)
	assert.Equal(t, 4, owner.Tank.Turrets[1].Spawned)
}
