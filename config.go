package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"arena-server/internal/arena"
)

// Config is the process configuration
type Config struct {
	Addr      string `mapstructure:"addr"`
	ClientDir string `mapstructure:"clientDir"`
	PublicURL string `mapstructure:"publicUrl"`
	DBPath    string `mapstructure:"dbPath"`
	LogLevel  string `mapstructure:"logLevel"`
	LogPretty bool   `mapstructure:"logPretty"`

	TickRate   int `mapstructure:"tickRate"`
	MaxPlayers int `mapstructure:"maxPlayers"`

	Arena ArenaConfig `mapstructure:"arena"`
	Admin AdminConfig `mapstructure:"admin"`

	// BanOnProtocolError records a ban for the remote address of any
	// connection that sends an undecodable frame.
	BanOnProtocolError bool `mapstructure:"banOnProtocolError"`
}

// ArenaConfig mirrors arena.Config
type ArenaConfig struct {
	Width            float64 `mapstructure:"width"`
	Height           float64 `mapstructure:"height"`
	ExpectedEntities int     `mapstructure:"expectedEntities"`
	CellShift        uint    `mapstructure:"cellShift"`
	OrbTarget        int     `mapstructure:"orbTarget"`
	OrbsPerTick      int     `mapstructure:"orbsPerTick"`
	ViewExtent       float64 `mapstructure:"viewExtent"`
	Seed             uint64  `mapstructure:"seed"`
	Debug            bool    `mapstructure:"debug"`
}

// AdminConfig holds the single admin account. PasswordHash is a bcrypt hash;
// an empty hash disables the admin endpoints.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"passwordHash"`
}

func setDefaults(v *viper.Viper) {
	def := arena.DefaultConfig()

	v.SetDefault("addr", ":8080")
	v.SetDefault("clientDir", "../client")
	v.SetDefault("publicUrl", "http://localhost:8080/")
	v.SetDefault("dbPath", "arena.db")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logPretty", false)

	v.SetDefault("tickRate", 25)
	v.SetDefault("maxPlayers", 100)

	v.SetDefault("arena.width", def.Width)
	v.SetDefault("arena.height", def.Height)
	v.SetDefault("arena.expectedEntities", def.ExpectedEntities)
	v.SetDefault("arena.cellShift", def.CellShift)
	v.SetDefault("arena.orbTarget", def.OrbTarget)
	v.SetDefault("arena.orbsPerTick", def.OrbsPerTick)
	v.SetDefault("arena.viewExtent", def.ViewExtent)
	v.SetDefault("arena.seed", 0)
	v.SetDefault("arena.debug", false)

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.passwordHash", "")

	v.SetDefault("banOnProtocolError", false)
}

// LoadConfig reads arena.json from configDir when present, then applies
// ARENA_* environment overrides (ARENA_ARENA_ORBTARGET, ARENA_TICKRATE, ...).
// An empty configDir skips the file.
func LoadConfig(configDir string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("ARENA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configDir != "" {
		v.SetConfigName("arena")
		v.SetConfigType("json")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TickRate <= 0 || c.TickRate > 1000 {
		return fmt.Errorf("config: tickRate %d out of range", c.TickRate)
	}
	if c.Arena.Width <= 0 || c.Arena.Height <= 0 {
		return fmt.Errorf("config: arena size %vx%v must be positive", c.Arena.Width, c.Arena.Height)
	}
	if c.Arena.CellShift > 16 {
		return fmt.Errorf("config: cellShift %d too large", c.Arena.CellShift)
	}
	if c.MaxPlayers <= 0 {
		return fmt.Errorf("config: maxPlayers must be positive")
	}
	return nil
}

// World converts the arena section into the simulation config
func (c Config) World() arena.Config {
	return arena.Config{
		Width:            c.Arena.Width,
		Height:           c.Arena.Height,
		ExpectedEntities: c.Arena.ExpectedEntities,
		CellShift:        c.Arena.CellShift,
		OrbTarget:        c.Arena.OrbTarget,
		OrbsPerTick:      c.Arena.OrbsPerTick,
		ViewExtent:       c.Arena.ViewExtent,
		Seed:             c.Arena.Seed,
		Debug:            c.Arena.Debug,
	}
}
