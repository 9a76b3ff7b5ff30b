// Package config loads process configuration from the environment and
// an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the process-level configuration. Per-server settings live
// in the store, not here.
type Config struct {
	TelegramToken string        `mapstructure:"telegram_token"`
	DataPath      string        `mapstructure:"data_path"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	AdminIDs      []int64       `mapstructure:"-"`
	Debug         bool          `mapstructure:"debug"`
}

// Load reads configuration from TSWATCHER_* environment variables and,
// when path is non-empty, a YAML file. Environment wins over the file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TSWATCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data_path", "data.json")
	v.SetDefault("poll_interval", "2s")
	v.SetDefault("debug", false)

	// AutomaticEnv only resolves keys viper knows about
	for _, key := range []string{"telegram_token", "admin_ids"} {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	// admin ids arrive as "123,456" from the environment or as a YAML
	// list; normalize both through the string form
	ids, err := parseAdminIDs(v.GetStringSlice("admin_ids"))
	if err != nil {
		return Config{}, err
	}
	cfg.AdminIDs = ids

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parseAdminIDs(raw []string) ([]int64, error) {
	var ids []int64
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad admin id %q: %w", part, err)
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c Config) validate() error {
	if c.TelegramToken == "" {
		return errors.New("telegram_token is required")
	}
	if c.DataPath == "" {
		return errors.New("data_path must not be empty")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll_interval must be positive")
	}
	if len(c.AdminIDs) == 0 {
		return errors.New("at least one admin id is required")
	}
	return nil
}

// IsAdmin reports whether the user may run mutating commands.
func (c Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}
