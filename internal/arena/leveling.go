package arena

import "math"

// Stat indexes the per-stat investment array.
type Stat uint8

const (
	StatRegeneration Stat = iota
	StatMaxHealth
	StatBodyDamage
	StatBulletSpeed
	StatBulletPenetration
	StatBulletDamage
	StatReload
	StatMovementSpeed

	StatCount = 8
)

var statNames = [StatCount]string{
	"regeneration", "max_health", "body_damage", "bullet_speed",
	"bullet_penetration", "bullet_damage", "reload", "movement_speed",
}

func (s Stat) String() string {
	if int(s) < len(statNames) {
		return statNames[s]
	}
	return "unknown"
}

const (
	MaxStatPoints = 7 // per stat on the base body
	MaxLevel      = 45
)

// minimum cumulative score per level, index 0 = level 1
var levelScores = [MaxLevel]int{
	0, 4, 13, 28, 50, 78, 113, 157, 211, 275,
	350, 437, 538, 655, 787, 938, 1109, 1301, 1516, 1757,
	2026, 2325, 2658, 3026, 3433, 3883, 4379, 4925, 5525, 6184,
	6907, 7698, 8537, 9426, 10368, 11367, 12426, 13549, 14739, 16000,
	17337, 18754, 20256, 21849, 23536,
}

// MinScore returns the score needed to reach level, clamped to [1, MaxLevel]
func MinScore(level int) int {
	if level < 1 {
		level = 1
	} else if level > MaxLevel {
		level = MaxLevel
	}
	return levelScores[level-1]
}

// LevelFromScore returns the highest level whose minimum score is met
func LevelFromScore(score int) int {
	level := 1
	for level < MaxLevel && score >= levelScores[level] {
		level++
	}
	return level
}

// GrantsStatPoint reports whether reaching level awards a stat point.
// Past 28 only every third level does.
func GrantsStatPoint(level int) bool {
	return level >= 2 && (level <= 28 || level%3 == 0)
}

// StatPointsAt returns the total points earned by the time level is reached
func StatPointsAt(level int) int {
	n := 0
	for l := 2; l <= level && l <= MaxLevel; l++ {
		if GrantsStatPoint(l) {
			n++
		}
	}
	return n
}

// Derived holds the per-tick tank stats computed from identity, level and
// stat investment.
type Derived struct {
	MaxHealth   float64
	Regen       float64 // health per tick
	BodyDamage  float64
	Reload      float64 // ticks
	Speed       float64
	FieldOfView float64
	Radius      float64
}

// Derive recomputes tank stats. All results are finite for level >= 1.
func Derive(b *BodyDef, level int, p [StatCount]int) Derived {
	l := float64(level)
	maxHealth := b.BaseHealth + 2*(l-1) + 20*float64(p[StatMaxHealth])
	return Derived{
		MaxHealth:   maxHealth,
		Regen:       (maxHealth*4*float64(p[StatRegeneration]) + maxHealth) / 25000,
		BodyDamage:  (20 + 4*float64(p[StatBodyDamage])) * b.DamageFactor,
		Reload:      15 * math.Pow(0.914, float64(p[StatReload])),
		Speed:       2.55 * b.SpeedFactor * math.Pow(1.07, float64(p[StatMovementSpeed])) / math.Pow(1.015, l-1),
		FieldOfView: b.FieldOfView * math.Pow(l, -0.08),
		Radius:      b.Radius * math.Pow(1.01, l-1),
	}
}

// ProjectileStats returns launch speed (per tick), health and damage per
// tick for a projectile fired from barrel with the given investment.
func ProjectileStats(p [StatCount]int, barrel *BarrelDef) (speed, health, damage float64) {
	speed = (20 + 3*float64(p[StatBulletSpeed])) * barrel.SpeedFactor
	health = (8 + 6*float64(p[StatBulletPenetration])) * barrel.HealthFactor
	damage = (7 + 3*float64(p[StatBulletDamage])) * barrel.DamageFactor
	return speed, health, damage
}
