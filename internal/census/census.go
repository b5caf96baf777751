package census

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrUnknownTag is returned when a census carries a tag outside the enumeration.
var ErrUnknownTag = errors.New("census: unknown tag")

// Tag identifies one property of an entity census.
type Tag uint8

const (
	TagKind Tag = iota
	TagPosition
	TagVelocity
	TagAngle
	TagRadius
	TagHealth
	TagMaxHealth
	TagOpacity
	TagIdentity
	TagOwner
	TagTicks
	TagLevel
	TagName
	TagScore
	TagStats
	TagUpgrades
	TagFieldOfView
	TagEnergy

	tagCount
)

var tagNames = [tagCount]string{
	"kind", "position", "velocity", "angle", "radius", "health", "max_health",
	"opacity", "identity", "owner", "ticks", "level", "name", "score", "stats",
	"upgrades", "field_of_view", "energy",
}

func (t Tag) String() string {
	if t < tagCount {
		return tagNames[t]
	}
	return fmt.Sprintf("tag(%d)", uint8(t))
}

// Census is a partial entity snapshot. Only fields whose tag is set in the
// presence mask are written or were read.
type Census struct {
	present uint32

	Kind        uint8
	X, Y        float32
	VX, VY      float32
	Angle       float32
	Radius      float32
	Health      float32
	MaxHealth   float32
	Opacity     float32
	Body        uint32
	Turret      uint32
	Shallow     int64
	Deep        int64
	TurretIndex uint32
	Ticks       uint64
	Level       uint32
	Name        string
	Score       uint64
	StatPoints  uint32
	Stats       []uint32
	BodyChoices []uint32
	TurretPicks []uint32
	FieldOfView float32
	Energy      float32
}

// Set marks a tag as present. Setters below call it for you.
func (c *Census) Set(t Tag) {
	c.present |= 1 << t
}

// Has reports whether a tag is present
func (c *Census) Has(t Tag) bool {
	return c.present&(1<<t) != 0
}

// Count returns the number of present tags
func (c *Census) Count() int {
	return bits.OnesCount32(c.present)
}

// Empty reports a deletion census
func (c *Census) Empty() bool {
	return c.present == 0
}

// Reset clears all tags, keeping slice storage for reuse
func (c *Census) Reset() {
	stats, bodies, turrets := c.Stats[:0], c.BodyChoices[:0], c.TurretPicks[:0]
	*c = Census{Stats: stats, BodyChoices: bodies, TurretPicks: turrets}
}

func (c *Census) SetKind(k uint8) { c.Kind = k; c.Set(TagKind) }
func (c *Census) SetPosition(x, y float32) { c.X, c.Y = x, y; c.Set(TagPosition) }
func (c *Census) SetVelocity(x, y float32) { c.VX, c.VY = x, y; c.Set(TagVelocity) }
func (c *Census) SetAngle(a float32) { c.Angle = a; c.Set(TagAngle) }
func (c *Census) SetRadius(r float32) { c.Radius = r; c.Set(TagRadius) }
func (c *Census) SetHealth(h float32) { c.Health = h; c.Set(TagHealth) }
func (c *Census) SetMaxHealth(h float32) { c.MaxHealth = h; c.Set(TagMaxHealth) }
func (c *Census) SetOpacity(o float32) { c.Opacity = o; c.Set(TagOpacity) }
func (c *Census) SetIdentity(body, turret uint32) {
	c.Body, c.Turret = body, turret
	c.Set(TagIdentity)
}
func (c *Census) SetOwner(shallow, deep int64, turretIndex uint32) {
	c.Shallow, c.Deep, c.TurretIndex = shallow, deep, turretIndex
	c.Set(TagOwner)
}
func (c *Census) SetTicks(t uint64) { c.Ticks = t; c.Set(TagTicks) }
func (c *Census) SetLevel(l uint32) { c.Level = l; c.Set(TagLevel) }
func (c *Census) SetName(n string) { c.Name = n; c.Set(TagName) }
func (c *Census) SetScore(s uint64) { c.Score = s; c.Set(TagScore) }
func (c *Census) SetFieldOfView(f float32) { c.FieldOfView = f; c.Set(TagFieldOfView) }
func (c *Census) SetEnergy(e float32) { c.Energy = e; c.Set(TagEnergy) }

// SetStats records unspent points and per-stat investments
func (c *Census) SetStats(points uint32, invested []uint32) {
	c.StatPoints = points
	c.Stats = append(c.Stats[:0], invested...)
	c.Set(TagStats)
}

// SetUpgrades records the pending body and turret upgrade choices
func (c *Census) SetUpgrades(bodies, turrets []uint32) {
	c.BodyChoices = append(c.BodyChoices[:0], bodies...)
	c.TurretPicks = append(c.TurretPicks[:0], turrets...)
	c.Set(TagUpgrades)
}

// Encode writes varuint(count) followed by (tag, value) pairs in tag order.
func (c *Census) Encode(w *Writer) {
	w.Uvarint(uint64(c.Count()))
	for t := Tag(0); t < tagCount; t++ {
		if !c.Has(t) {
			continue
		}
		w.Uvarint(uint64(t))
		switch t {
		case TagKind:
			w.Uvarint(uint64(c.Kind))
		case TagPosition:
			w.F32(c.X)
			w.F32(c.Y)
		case TagVelocity:
			w.F32(c.VX)
			w.F32(c.VY)
		case TagAngle:
			w.F32(c.Angle)
		case TagRadius:
			w.F32(c.Radius)
		case TagHealth:
			w.F32(c.Health)
		case TagMaxHealth:
			w.F32(c.MaxHealth)
		case TagOpacity:
			w.F32(c.Opacity)
		case TagIdentity:
			w.Uvarint(uint64(c.Body))
			w.Uvarint(uint64(c.Turret))
		case TagOwner:
			w.Varint(c.Shallow)
			w.Varint(c.Deep)
			w.Uvarint(uint64(c.TurretIndex))
		case TagTicks:
			w.Uvarint(c.Ticks)
		case TagLevel:
			w.Uvarint(uint64(c.Level))
		case TagName:
			w.String(c.Name)
		case TagScore:
			w.Uvarint(c.Score)
		case TagStats:
			w.Uvarint(uint64(c.StatPoints))
			writeList(w, c.Stats)
		case TagUpgrades:
			writeList(w, c.BodyChoices)
			writeList(w, c.TurretPicks)
		case TagFieldOfView:
			w.F32(c.FieldOfView)
		case TagEnergy:
			w.F32(c.Energy)
		}
	}
}

// Decode reads a census written by Encode. The receiver is reset first.
func (c *Census) Decode(r *Reader) error {
	c.Reset()
	n, err := r.Uvarint()
	if err != nil {
		return err
	}
	if n > uint64(tagCount) {
		return fmt.Errorf("census: %d tags exceeds enumeration: %w", n, ErrUnknownTag)
	}
	for i := uint64(0); i < n; i++ {
		raw, err := r.Uvarint()
		if err != nil {
			return err
		}
		if raw >= uint64(tagCount) {
			return fmt.Errorf("census: tag %d: %w", raw, ErrUnknownTag)
		}
		t := Tag(raw)
		if err := c.decodeValue(t, r); err != nil {
			return fmt.Errorf("census: %s: %w", t, err)
		}
		c.Set(t)
	}
	return nil
}

func (c *Census) decodeValue(t Tag, r *Reader) error {
	var err error
	switch t {
	case TagKind:
		var k uint64
		k, err = r.Uvarint()
		c.Kind = uint8(k)
	case TagPosition:
		c.X, c.Y, err = readPair(r)
	case TagVelocity:
		c.VX, c.VY, err = readPair(r)
	case TagAngle:
		c.Angle, err = r.F32()
	case TagRadius:
		c.Radius, err = r.F32()
	case TagHealth:
		c.Health, err = r.F32()
	case TagMaxHealth:
		c.MaxHealth, err = r.F32()
	case TagOpacity:
		c.Opacity, err = r.F32()
	case TagIdentity:
		if c.Body, err = readU32(r); err != nil {
			return err
		}
		c.Turret, err = readU32(r)
	case TagOwner:
		if c.Shallow, err = r.Varint(); err != nil {
			return err
		}
		if c.Deep, err = r.Varint(); err != nil {
			return err
		}
		c.TurretIndex, err = readU32(r)
	case TagTicks:
		c.Ticks, err = r.Uvarint()
	case TagLevel:
		c.Level, err = readU32(r)
	case TagName:
		c.Name, err = r.String()
	case TagScore:
		c.Score, err = r.Uvarint()
	case TagStats:
		if c.StatPoints, err = readU32(r); err != nil {
			return err
		}
		c.Stats, err = readList(r, c.Stats)
	case TagUpgrades:
		if c.BodyChoices, err = readList(r, c.BodyChoices); err != nil {
			return err
		}
		c.TurretPicks, err = readList(r, c.TurretPicks)
	case TagFieldOfView:
		c.FieldOfView, err = r.F32()
	case TagEnergy:
		c.Energy, err = r.F32()
	}
	return err
}

func readPair(r *Reader) (float32, float32, error) {
	x, err := r.F32()
	if err != nil {
		return 0, 0, err
	}
	y, err := r.F32()
	return x, y, err
}

func readU32(r *Reader) (uint32, error) {
	v, err := r.Uvarint()
	if err != nil {
		return 0, err
	}
	if v > 1<<32-1 {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

func writeList(w *Writer, list []uint32) {
	w.Uvarint(uint64(len(list)))
	for _, v := range list {
		w.Uvarint(uint64(v))
	}
}

func readList(r *Reader, dst []uint32) ([]uint32, error) {
	n, err := r.Uvarint()
	if err != nil {
		return dst, err
	}
	// every element takes at least one byte
	if n > uint64(r.Remaining()) {
		return dst, ErrShortBuffer
	}
	dst = dst[:0]
	for i := uint64(0); i < n; i++ {
		v, err := readU32(r)
		if err != nil {
			return dst, err
		}
		dst = append(dst, v)
	}
	return dst, nil
}
