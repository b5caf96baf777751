package census

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, in *Census) *Census {
	t.Helper()
	w := NewWriter(128)
	in.Encode(w)
	out := &Census{}
	r := NewReader(w.Bytes())
	require.NoError(t, out.Decode(r))
	require.Zero(t, r.Remaining(), "decode must consume the whole census")
	return out
}

func TestCensusRoundTripSelfView(t *testing.T) {
	in := &Census{}
	in.SetKind(0)
	in.SetPosition(100.5, -20)
	in.SetVelocity(1, 2)
	in.SetAngle(1.25)
	in.SetRadius(50)
	in.SetHealth(42)
	in.SetMaxHealth(50)
	in.SetOpacity(1)
	in.SetIdentity(2, 7)
	in.SetTicks(9001)
	in.SetLevel(15)
	in.SetName("Pilot")
	in.SetScore(938)
	in.SetStats(3, []uint32{1, 0, 2, 0, 0, 7, 0, 1})
	in.SetUpgrades([]uint32{1, 2}, []uint32{3})
	in.SetFieldOfView(0.8)
	in.SetEnergy(0.5)

	out := roundTrip(t, in)
	assert.Equal(t, in, out)
	assert.Equal(t, 17, out.Count())
}

func TestCensusRoundTripProjectile(t *testing.T) {
	in := &Census{}
	in.SetKind(2)
	in.SetPosition(1, 1)
	in.SetOwner(12, -1, 3)

	out := roundTrip(t, in)
	assert.Equal(t, in, out)
	assert.True(t, out.Has(TagOwner))
	assert.False(t, out.Has(TagName))
}

func TestEmptyCensusSignalsDeletion(t *testing.T) {
	w := NewWriter(4)
	(&Census{}).Encode(w)
	assert.Equal(t, []byte{0}, w.Bytes())

	out := &Census{}
	out.SetName("stale")
	require.NoError(t, out.Decode(NewReader(w.Bytes())))
	assert.True(t, out.Empty())
	assert.Empty(t, out.Name)
}

func TestCensusEncodesTagsInOrder(t *testing.T) {
	c := &Census{}
	c.SetRadius(2)
	c.SetKind(4)
	w := NewWriter(16)
	c.Encode(w)

	r := NewReader(w.Bytes())
	n, _ := r.Uvarint()
	assert.Equal(t, uint64(2), n)
	first, _ := r.Uvarint()
	assert.Equal(t, uint64(TagKind), first)
}

func TestCensusDecodeRejectsUnknownTag(t *testing.T) {
	out := &Census{}
	err := out.Decode(NewReader([]byte{1, 99}))
	assert.ErrorIs(t, err, ErrUnknownTag)
}

func TestCensusDecodeTruncated(t *testing.T) {
	c := &Census{}
	c.SetPosition(1, 2)
	c.SetName("abc")
	w := NewWriter(32)
	c.Encode(w)
	full := w.Bytes()

	for cut := 0; cut < len(full); cut++ {
		out := &Census{}
		err := out.Decode(NewReader(full[:cut]))
		assert.Error(t, err, "cut at %d", cut)
	}
}

func TestCensusResetKeepsStorage(t *testing.T) {
	c := &Census{}
	c.SetStats(1, []uint32{1, 2, 3})
	storage := cap(c.Stats)
	c.Reset()
	assert.True(t, c.Empty())
	assert.Len(t, c.Stats, 0)
	assert.Equal(t, storage, cap(c.Stats))
}

func TestTagString(t *testing.T) {
	assert.Equal(t, "position", TagPosition.String())
	assert.Equal(t, "tag(200)", Tag(200).String())
}
