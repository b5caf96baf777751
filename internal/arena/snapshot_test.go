package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena-server/internal/census"
	"arena-server/internal/protocol"
)

// lastUpdate drains e's queue and decodes the final Update frame.
func lastUpdate(t *testing.T, e *Entity) *protocol.Update {
	t.Helper()
	var upd *protocol.Update
	for _, f := range e.Conn.Drain() {
		out, err := protocol.DecodeOutbound(f)
		require.NoError(t, err)
		if out.Update != nil {
			upd = out.Update
		}
	}
	require.NotNil(t, upd, "no update queued")
	return upd
}

func entry(u *protocol.Update, id ID) (census.Census, bool) {
	for _, o := range u.Others {
		if o.ID == uint32(id) {
			return o.Census, true
		}
	}
	return census.Census{}, false
}

func TestEveryConnectedTankGetsOneUpdate(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "A", Vec2{1000, 1000})
	b := w.AddTank(NewConnection())
	w.AddTank(nil)

	w.Tick()
	assert.Equal(t, 1, a.Conn.Pending())
	assert.Equal(t, 1, b.Conn.Pending(), "uninitialized tanks still get updates")
}

func TestSelfCensusCarriesPrivateFields(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "Alice", Vec2{1000, 1000})
	b := spawnTank(t, w, "Bob", Vec2{1300, 1000})
	w.Tick()

	u := lastUpdate(t, a)
	assert.Equal(t, uint32(a.ID), u.SelfID)
	self := u.Self
	assert.Equal(t, "Alice", self.Name)
	for _, tag := range []census.Tag{census.TagScore, census.TagStats, census.TagUpgrades, census.TagEnergy, census.TagFieldOfView} {
		assert.True(t, self.Has(tag), "self census missing %s", tag)
	}
	assert.Len(t, self.Stats, StatCount)
	assert.Equal(t, float32(1), self.Energy)

	other, ok := entry(u, b.ID)
	require.True(t, ok)
	assert.Equal(t, uint8(KindTank), other.Kind)
	assert.False(t, other.Has(census.TagName))
	assert.False(t, other.Has(census.TagScore))
	assert.False(t, other.Has(census.TagEnergy))
	assert.True(t, other.Has(census.TagIdentity))
	assert.InDelta(t, 1300, other.X, 1)
}

func TestEnergyDropsAfterShot(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "A", Vec2{1000, 1000})
	require.NoError(t, w.Apply(a.ID, protocol.Input{Flags: protocol.InputShoot, MouseX: 1200, MouseY: 1000}))
	w.Tick()
	u := lastUpdate(t, a)
	assert.Equal(t, float32(0), u.Self.Energy)

	bullet, ok := w.Get(a.ID + 1)
	require.True(t, ok)
	c, ok := entry(u, bullet.ID)
	require.True(t, ok)
	assert.True(t, c.Has(census.TagOwner))
	assert.Equal(t, int64(a.ID), c.Shallow)
	assert.Equal(t, int64(a.ID), c.Deep)
}

func TestRemovedEntitiesGetOneEmptyCensus(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "A", Vec2{1000, 1000})
	orb := orbAt(w, Vec2{1300, 1000})

	w.Tick()
	c, ok := entry(lastUpdate(t, a), orb.ID)
	require.True(t, ok)
	assert.Equal(t, uint8(KindOrb), c.Kind)

	w.Delete(orb.ID)
	w.Tick()
	c, ok = entry(lastUpdate(t, a), orb.ID)
	require.True(t, ok)
	assert.True(t, c.Empty())

	w.Tick()
	_, ok = entry(lastUpdate(t, a), orb.ID)
	assert.False(t, ok)
}

func TestDeadEntitiesAreSentEmpty(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "A", Vec2{1000, 1000})
	b := spawnTank(t, w, "B", Vec2{1300, 1000})
	w.Tick()
	_, ok := entry(lastUpdate(t, a), b.ID)
	require.True(t, ok)

	b.Stats.Health = 0
	w.Tick()
	require.Equal(t, Dead, b.Stats.State)
	c, ok := entry(lastUpdate(t, a), b.ID)
	require.True(t, ok)
	assert.True(t, c.Empty())

	// the dead tank still sees itself
	u := lastUpdate(t, b)
	assert.False(t, u.Self.Empty())
}

func TestViewExcludesDistantEntities(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "A", Vec2{500, 500})
	b := spawnTank(t, w, "B", Vec2{3500, 3500})
	w.Tick()
	_, ok := entry(lastUpdate(t, a), b.ID)
	assert.False(t, ok)
}

func TestUpdateEntriesAreOrderedByID(t *testing.T) {
	w := newTestWorld(t)
	a := spawnTank(t, w, "A", Vec2{1000, 1000})
	for i := range 5 {
		orbAt(w, Vec2{1100 + float64(i)*100, 1300})
	}
	w.Tick()
	u := lastUpdate(t, a)
	require.Len(t, u.Others, 5)
	for i := 1; i < len(u.Others); i++ {
		assert.Less(t, u.Others[i-1].ID, u.Others[i].ID)
	}
}
