package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/pointquest/pointquest-server/internal/engine"
)

type Config struct {
	Addr  string `env:"ADDR" envDefault:":8080"`
	Debug bool   `env:"DEBUG" envDefault:"false"`

	WatchdogTick   time.Duration `env:"WATCHDOG_TICK" envDefault:"100ms"`
	ReconnectGrace time.Duration `env:"RECONNECT_GRACE" envDefault:"15s"`

	ReviveDuration  time.Duration `env:"REVIVE_DURATION" envDefault:"3s"`
	ReviveKeepAlive time.Duration `env:"REVIVE_KEEPALIVE" envDefault:"1s"`
	ReviveProximity float64       `env:"REVIVE_PROXIMITY" envDefault:"15"`

	RingInterval time.Duration `env:"BOSS_RING_INTERVAL" envDefault:"8s"`
	RingRadius   float64       `env:"BOSS_RING_RADIUS" envDefault:"20"`
	RingDamage   int           `env:"BOSS_RING_DAMAGE" envDefault:"25"`
}

// Load reads .env when present, then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Tuning() engine.Tuning {
	return engine.Tuning{
		ReviveDuration:  c.ReviveDuration,
		ReviveKeepAlive: c.ReviveKeepAlive,
		ReviveProximity: c.ReviveProximity,
		GracePeriod:     c.ReconnectGrace,
		RingInterval:    c.RingInterval,
		RingRadius:      c.RingRadius,
		RingDamage:      c.RingDamage,
	}
}
