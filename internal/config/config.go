package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Tick       TickConfig       `toml:"tick"`
	Physics    PhysicsConfig    `toml:"physics"`
	Player     PlayerConfig     `toml:"player"`
	Projectile ProjectileConfig `toml:"projectile"`
	Match      MatchConfig      `toml:"match"`
	Arena      ArenaConfig      `toml:"arena"`
	Scan       ScanConfig       `toml:"scan"`
	Score      ScoreConfig      `toml:"score"`
	API        APIConfig        `toml:"api"`
	Stats      StatsConfig      `toml:"stats"`
	Database   DatabaseConfig   `toml:"database"`
	Logging    LoggingConfig    `toml:"logging"`
}

type ServerConfig struct {
	Name        string `toml:"name"`
	HTTPAddress string `toml:"http_address"`
	StartTime   int64  // set at boot, not from config
}

type TickConfig struct {
	Rate               int `toml:"rate"` // ticks per second
	MaxCommandsPerTick int `toml:"max_commands_per_tick"`
	CommandCapacity    int `toml:"command_capacity"`
	RequestQueueSize   int `toml:"request_queue_size"`
	MaxRequestsPerTick int `toml:"max_requests_per_tick"`
}

// Interval is the fixed timestep.
func (t TickConfig) Interval() time.Duration {
	return time.Second / time.Duration(t.Rate)
}

// Ticks converts a duration into a whole number of ticks, rounding up so a
// non-zero duration always lasts at least one tick.
func (t TickConfig) Ticks(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	scaled := int64(d) * int64(t.Rate)
	return int((scaled + int64(time.Second) - 1) / int64(time.Second))
}

type PhysicsConfig struct {
	CellSize           int     `toml:"cell_size"`
	LinearDamping      float64 `toml:"linear_damping"`  // velocity factor kept per second
	AngularDamping     float64 `toml:"angular_damping"` // fraction of spin lost per second
	ObstacleElasticity float64 `toml:"obstacle_elasticity"`
	BoundaryElasticity float64 `toml:"boundary_elasticity"`
	PlayerElasticity   float64 `toml:"player_elasticity"`
}

type PlayerConfig struct {
	Thrust              float64       `toml:"thrust"`   // velocity change per thrust command
	Rotation            float64       `toml:"rotation"` // angular velocity change per rotate command
	MaxSpeed            float64       `toml:"max_speed"`
	MaxHealth           int           `toml:"max_health"`
	Radius              float64       `toml:"radius"`
	Mass                float64       `toml:"mass"`
	SpawnProtection     time.Duration `toml:"spawn_protection"`
	ShootCooldown       time.Duration `toml:"shoot_cooldown"`
	SpawnAttempts       int           `toml:"spawn_attempts"`
	CollisionSpeedRatio float64       `toml:"collision_speed_ratio"` // of max speed; slower bumps are not counted
}

type ProjectileConfig struct {
	Speed        float64       `toml:"speed"`
	Radius       float64       `toml:"radius"`
	Lifetime     time.Duration `toml:"lifetime"`
	Damage       int           `toml:"damage"`
	FriendlyFire bool          `toml:"friendly_fire"`
	MaxLive      int           `toml:"max_live"` // 0 = unlimited
}

type MatchConfig struct {
	Countdown        time.Duration `toml:"countdown"`
	Duration         time.Duration `toml:"duration"`           // 0 = no timeout
	AutoRestartAfter time.Duration `toml:"auto_restart_after"` // 0 = wait for an explicit restart
}

type ArenaConfig struct {
	Width  float64 `toml:"width"`
	Height float64 `toml:"height"`
	Layout string  `toml:"layout"` // yaml obstacle layout; empty uses the built-in one
}

type ScanConfig struct {
	Radius        float64 `toml:"radius"`
	Limit         int     `toml:"limit"`
	PositionNoise float64 `toml:"position_noise"`
	VelocityNoise float64 `toml:"velocity_noise"`
	DistanceNoise float64 `toml:"distance_noise"` // fraction of the distance
}

type ScoreConfig struct {
	Kill            int    `toml:"kill"`
	Hit             int    `toml:"hit"`
	Collision       int    `toml:"collision"`
	Shot            int    `toml:"shot"`
	RemainingHealth int    `toml:"remaining_health"` // per health point left when the match ends
	ScriptsDir      string `toml:"scripts_dir"`
}

type APIConfig struct {
	ScanCooldown     time.Duration `toml:"scan_cooldown"`
	StateCooldown    time.Duration `toml:"state_cooldown"`
	ShootCooldown    time.Duration `toml:"shoot_cooldown"`
	SpectateInterval time.Duration `toml:"spectate_interval"`
	WriteTimeout     time.Duration `toml:"write_timeout"`
	ReadTimeout      time.Duration `toml:"read_timeout"`
}

type StatsConfig struct {
	CSVPath   string `toml:"csv_path"` // empty disables the CSV sink
	History   int    `toml:"history"`  // matches kept in the CSV
	QueueSize int    `toml:"queue_size"`
}

type DatabaseConfig struct {
	DSN             string        `toml:"dsn"` // empty disables the Postgres sink
	MaxOpenConns    int           `toml:"max_open_conns"`
	MaxIdleConns    int           `toml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `toml:"conn_max_lifetime"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	cfg.Server.StartTime = time.Now().Unix()
	return cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Tick.Rate <= 0:
		return fmt.Errorf("tick.rate must be positive, got %d", c.Tick.Rate)
	case c.Tick.MaxCommandsPerTick <= 0:
		return fmt.Errorf("tick.max_commands_per_tick must be positive, got %d", c.Tick.MaxCommandsPerTick)
	case c.Arena.Width <= 0 || c.Arena.Height <= 0:
		return fmt.Errorf("arena size must be positive, got %gx%g", c.Arena.Width, c.Arena.Height)
	case c.Player.MaxHealth <= 0:
		return fmt.Errorf("player.max_health must be positive, got %d", c.Player.MaxHealth)
	case c.Player.Radius <= 0 || c.Projectile.Radius <= 0:
		return fmt.Errorf("player and projectile radius must be positive")
	case c.Player.Mass <= 0:
		return fmt.Errorf("player.mass must be positive, got %g", c.Player.Mass)
	}
	return nil
}

// Default returns the built-in settings. Load starts from these.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "arena",
			HTTPAddress: "0.0.0.0:5000",
		},
		Tick: TickConfig{
			Rate:               60,
			MaxCommandsPerTick: 8,
			CommandCapacity:    1024,
			RequestQueueSize:   64,
			MaxRequestsPerTick: 32,
		},
		Physics: PhysicsConfig{
			CellSize:           32,
			LinearDamping:      0.99,
			AngularDamping:     0.1,
			ObstacleElasticity: 0.9,
			BoundaryElasticity: 1.0,
			PlayerElasticity:   1.0,
		},
		Player: PlayerConfig{
			Thrust:              5,
			Rotation:            0.08,
			MaxSpeed:            100,
			MaxHealth:           5,
			Radius:              15,
			Mass:                1,
			SpawnProtection:     3 * time.Second,
			ShootCooldown:       100 * time.Millisecond,
			SpawnAttempts:       10,
			CollisionSpeedRatio: 0.9,
		},
		Projectile: ProjectileConfig{
			Speed:    200,
			Radius:   4,
			Lifetime: 3 * time.Second,
			Damage:   1,
			MaxLive:  256,
		},
		Match: MatchConfig{
			Countdown:        time.Second,
			Duration:         30 * time.Second,
			AutoRestartAfter: 5 * time.Second,
		},
		Arena: ArenaConfig{
			Width:  800,
			Height: 600,
		},
		Scan: ScanConfig{
			Radius:        150,
			Limit:         32,
			PositionNoise: 0.8,
			VelocityNoise: 0.4,
			DistanceNoise: 0.04,
		},
		Score: ScoreConfig{
			Kill:            10,
			Hit:             2,
			Collision:       -5,
			Shot:            -1,
			RemainingHealth: -1,
		},
		API: APIConfig{
			ScanCooldown:     500 * time.Millisecond,
			StateCooldown:    500 * time.Millisecond,
			ShootCooldown:    100 * time.Millisecond,
			SpectateInterval: 50 * time.Millisecond,
			WriteTimeout:     10 * time.Second,
			ReadTimeout:      10 * time.Second,
		},
		Stats: StatsConfig{
			CSVPath:   "game_stats_last10.csv",
			History:   10,
			QueueSize: 16,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    4,
			MaxIdleConns:    1,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
