package arena

import "math"

// BodyID identifies a body identity
type BodyID uint32

// TurretID identifies a turret identity
type TurretID uint32

const (
	BodyBase BodyID = iota
	BodySmasher
	BodyBooster
)

const (
	TurretBasic TurretID = iota
	TurretTwin
	TurretSniper
	TurretMachineGun
	TurretFlankGuard
	TurretOverseer
	TurretTrapper
	TurretTripleShot
)

// BodyDef holds the base stats of a body identity. Factors multiply the
// level/stat derived values.
type BodyDef struct {
	ID           BodyID
	Name         string
	Parent       BodyID
	Level        int // level required to pick it
	BaseHealth   float64
	DamageFactor float64
	SpeedFactor  float64
	FieldOfView  float64
	Radius       float64
	Absorption   float64
	Push         float64
	StatCaps     [StatCount]int
}

// BarrelDef describes one firing barrel of a turret identity.
type BarrelDef struct {
	Angle        float64 // offset from aim, radians
	Offset       float64 // lateral offset, in tank radii
	Length       float64 // muzzle distance, in tank radii
	Width        float64 // projectile radius, in tank radii
	Delay        float64 // warm-up before the first shot, fraction of reload
	ReloadFactor float64
	DamageFactor float64
	HealthFactor float64
	SpeedFactor  float64
	Recoil       float64
	Spread       float64 // random angle jitter, radians
	Projectile   Kind
	Lifetime     int // ticks, -1 = infinite
	MaxSpawned   int // 0 = unlimited
}

// TurretDef holds the barrels of a turret identity.
type TurretDef struct {
	ID          TurretID
	Name        string
	Parent      TurretID
	Level       int
	FieldOfView float64 // multiplies the body's
	Barrels     []BarrelDef
}

func caps(n int) [StatCount]int {
	var c [StatCount]int
	for i := range c {
		c[i] = n
	}
	return c
}

func smasherCaps() [StatCount]int {
	c := caps(MaxStatPoints)
	c[StatBulletSpeed], c[StatBulletPenetration], c[StatBulletDamage], c[StatReload] = 0, 0, 0, 0
	c[StatBodyDamage] = 10
	c[StatMaxHealth] = 10
	return c
}

var Bodies = []BodyDef{
	{
		ID: BodyBase, Name: "Base", Parent: BodyBase, Level: 1,
		BaseHealth: 50, DamageFactor: 1, SpeedFactor: 1, FieldOfView: 1,
		Radius: 50, Absorption: 1, Push: 8, StatCaps: caps(MaxStatPoints),
	},
	{
		ID: BodySmasher, Name: "Smasher", Parent: BodyBase, Level: 30,
		BaseHealth: 60, DamageFactor: 1.5, SpeedFactor: 1.05, FieldOfView: 0.95,
		Radius: 55, Absorption: 0.8, Push: 10, StatCaps: smasherCaps(),
	},
	{
		ID: BodyBooster, Name: "Booster", Parent: BodyBase, Level: 15,
		BaseHealth: 45, DamageFactor: 0.9, SpeedFactor: 1.2, FieldOfView: 1,
		Radius: 48, Absorption: 1.2, Push: 6, StatCaps: caps(MaxStatPoints),
	},
}

func bullet(angle float64) BarrelDef {
	return BarrelDef{
		Angle: angle, Length: 1.9, Width: 0.42, ReloadFactor: 1,
		DamageFactor: 1, HealthFactor: 1, SpeedFactor: 1, Recoil: 1,
		Projectile: KindBullet, Lifetime: 75,
	}
}

func twin(side float64, delay float64) BarrelDef {
	b := bullet(0)
	b.Offset = side * 0.5
	b.Delay = delay
	b.DamageFactor = 0.75
	b.Recoil = 0.5
	return b
}

func drone(angle float64) BarrelDef {
	return BarrelDef{
		Angle: angle, Length: 1.2, Width: 0.45, ReloadFactor: 6,
		DamageFactor: 0.7, HealthFactor: 2, SpeedFactor: 0.6,
		Projectile: KindDrone, Lifetime: -1, MaxSpawned: 4,
	}
}

var Turrets = []TurretDef{
	{ID: TurretBasic, Name: "Basic", Parent: TurretBasic, Level: 1, FieldOfView: 1,
		Barrels: []BarrelDef{bullet(0)}},
	{ID: TurretTwin, Name: "Twin", Parent: TurretBasic, Level: 15, FieldOfView: 1,
		Barrels: []BarrelDef{twin(-1, 0), twin(1, 0.5)}},
	{ID: TurretSniper, Name: "Sniper", Parent: TurretBasic, Level: 15, FieldOfView: 0.8,
		Barrels: []BarrelDef{func() BarrelDef {
			b := bullet(0)
			b.Length = 2.4
			b.ReloadFactor = 1.5
			b.SpeedFactor = 1.5
			b.Recoil = 3
			return b
		}()}},
	{ID: TurretMachineGun, Name: "Machine Gun", Parent: TurretBasic, Level: 15, FieldOfView: 1,
		Barrels: []BarrelDef{func() BarrelDef {
			b := bullet(0)
			b.Width = 0.5
			b.ReloadFactor = 0.5
			b.DamageFactor = 0.7
			b.Spread = 0.3
			return b
		}()}},
	{ID: TurretFlankGuard, Name: "Flank Guard", Parent: TurretBasic, Level: 15, FieldOfView: 1,
		Barrels: []BarrelDef{bullet(0), bullet(math.Pi)}},
	{ID: TurretOverseer, Name: "Overseer", Parent: TurretSniper, Level: 30, FieldOfView: 0.9,
		Barrels: []BarrelDef{drone(math.Pi / 2), drone(-math.Pi / 2)}},
	{ID: TurretTrapper, Name: "Trapper", Parent: TurretSniper, Level: 30, FieldOfView: 1,
		Barrels: []BarrelDef{{
			Length: 1.5, Width: 0.8, ReloadFactor: 1.5, DamageFactor: 1,
			HealthFactor: 2, SpeedFactor: 2, Recoil: 1,
			Projectile: KindTrap, Lifetime: 600,
		}}},
	{ID: TurretTripleShot, Name: "Triple Shot", Parent: TurretTwin, Level: 30, FieldOfView: 1,
		Barrels: []BarrelDef{bullet(-math.Pi / 4), bullet(0), bullet(math.Pi / 4)}},
}

// Body returns the definition for id, falling back to the base body
func Body(id BodyID) *BodyDef {
	if int(id) >= len(Bodies) {
		return &Bodies[BodyBase]
	}
	return &Bodies[id]
}

// Turret returns the definition for id, falling back to the basic turret
func Turret(id TurretID) *TurretDef {
	if int(id) >= len(Turrets) {
		return &Turrets[TurretBasic]
	}
	return &Turrets[id]
}

// UpgradeChoices are the identities a tank may switch to right now.
type UpgradeChoices struct {
	Bodies  []BodyID
	Turrets []TurretID
}

// Empty reports whether no upgrade is available
func (u UpgradeChoices) Empty() bool {
	return len(u.Bodies) == 0 && len(u.Turrets) == 0
}

// AvailableUpgrades lists children of the current identities whose level
// requirement is met. Results are appended to the slices in dst.
func AvailableUpgrades(dst UpgradeChoices, body BodyID, turret TurretID, level int) UpgradeChoices {
	dst.Bodies = dst.Bodies[:0]
	dst.Turrets = dst.Turrets[:0]
	for i := range Bodies {
		b := &Bodies[i]
		if b.ID != body && b.Parent == body && level >= b.Level {
			dst.Bodies = append(dst.Bodies, b.ID)
		}
	}
	for i := range Turrets {
		t := &Turrets[i]
		if t.ID != turret && t.Parent == turret && level >= t.Level {
			dst.Turrets = append(dst.Turrets, t.ID)
		}
	}
	return dst
}
