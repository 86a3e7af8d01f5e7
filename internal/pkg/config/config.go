// Package config reads service settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/kollektive-hackathon/rps-escrow-backend/internal/escrow"
)

const (
	StorePostgres = "postgres"
	StoreSqlite   = "sqlite"
	StoreMemory   = "memory"

	ClockLocal    = "local"
	ClockDatabase = "database"
)

type Config struct {
	Port                 string
	DbUrl                string
	StoreDriver          string
	JoinTimeout          time.Duration
	RevealTimeout        time.Duration
	ClockSource          string
	PubsubEnabled        bool
	GoogleProjectId      string
	EventTopic           string
	PayoutTopic          string
	EventSubscription    string
	AuthDisabled         bool
	DeadlineScanInterval time.Duration
	CorsOrigins          []string
	CacheSize            int
}

// Escrow returns the timeouts in the shape the state machine takes.
func (c Config) Escrow() escrow.Config {
	return escrow.Config{JoinTimeout: c.JoinTimeout, RevealTimeout: c.RevealTimeout}
}

// Setup binds v to the environment and reads envFile if it exists.
func Setup(v *viper.Viper, envFile string) error {
	v.AutomaticEnv()
	v.SetDefault("PORT", ":8080")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("JOIN_TIMEOUT", escrow.DefaultTimeout.String())
	v.SetDefault("REVEAL_TIMEOUT", escrow.DefaultTimeout.String())
	v.SetDefault("CLOCK_SOURCE", ClockDatabase)
	v.SetDefault("PUBSUB_ENABLED", false)
	v.SetDefault("EVENT_TOPIC", "rps.escrow.events")
	v.SetDefault("PAYOUT_TOPIC", "rps.escrow.payouts")
	v.SetDefault("AUTH_DISABLED", false)
	v.SetDefault("DEADLINE_SCAN_INTERVAL", "1m")
	v.SetDefault("CACHE_SIZE", 1024)

	if envFile == "" {
		return nil
	}
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return nil
	}
	v.SetConfigFile(envFile)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read %s", envFile)
	}
	return nil
}

func Load(v *viper.Viper) (Config, error) {
	c := Config{
		Port:              v.GetString("PORT"),
		DbUrl:             v.GetString("DB_URL"),
		StoreDriver:       strings.ToLower(v.GetString("STORE_DRIVER")),
		ClockSource:       strings.ToLower(v.GetString("CLOCK_SOURCE")),
		PubsubEnabled:     v.GetBool("PUBSUB_ENABLED"),
		GoogleProjectId:   v.GetString("GOOGLE_PROJECT_ID"),
		EventTopic:        v.GetString("EVENT_TOPIC"),
		PayoutTopic:       v.GetString("PAYOUT_TOPIC"),
		EventSubscription: v.GetString("EVENT_SUBSCRIPTION"),
		AuthDisabled:      v.GetBool("AUTH_DISABLED"),
		CacheSize:         v.GetInt("CACHE_SIZE"),
	}
	if !strings.HasPrefix(c.Port, ":") && !strings.Contains(c.Port, ":") {
		c.Port = ":" + c.Port
	}
	for _, origin := range strings.Split(v.GetString("CORS_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			c.CorsOrigins = append(c.CorsOrigins, origin)
		}
	}

	var err error
	if c.JoinTimeout, err = duration(v, "JOIN_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if c.RevealTimeout, err = duration(v, "REVEAL_TIMEOUT"); err != nil {
		return Config{}, err
	}
	if c.DeadlineScanInterval, err = duration(v, "DEADLINE_SCAN_INTERVAL"); err != nil {
		return Config{}, err
	}

	switch c.StoreDriver {
	case StorePostgres, StoreSqlite:
		if c.DbUrl == "" {
			return Config{}, errors.Errorf("DB_URL is required for store driver %s", c.StoreDriver)
		}
	case StoreMemory:
	default:
		return Config{}, errors.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	switch c.ClockSource {
	case ClockLocal, ClockDatabase:
	default:
		return Config{}, errors.Errorf("unknown CLOCK_SOURCE %q", c.ClockSource)
	}
	if c.PubsubEnabled && c.GoogleProjectId == "" {
		return Config{}, errors.New("GOOGLE_PROJECT_ID is required when PUBSUB_ENABLED is set")
	}
	return c, nil
}

// duration accepts Go durations ("24h") and plain seconds ("86400").
func duration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if secs <= 0 {
			return 0, errors.Errorf("%s must be positive, got %d", key, secs)
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", key)
	}
	if d <= 0 {
		return 0, errors.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}
