// Package config loads arena, output and logging settings from a file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavanmanishd/bufarena"
	"github.com/pavanmanishd/bufarena/logger"
	"github.com/pavanmanishd/bufarena/output"
	"github.com/spf13/viper"
)

// ErrUnknownResetPolicy is returned for an arena.reset_policy that is
// neither "release" nor "cursors".
var ErrUnknownResetPolicy = errors.New("config: unknown reset policy")

// Config is the complete configuration.
type Config struct {
	Arena  Arena         `mapstructure:"arena"`
	Output Output        `mapstructure:"output"`
	Log    logger.Config `mapstructure:"log"`
}

// Arena configures NewArena.
type Arena struct {
	Size        int    `mapstructure:"size"`
	SkipAfter   int    `mapstructure:"skip_after"`
	Limit       int64  `mapstructure:"limit"`
	ResetPolicy string `mapstructure:"reset_policy"` // release, cursors
	MaxIdle     int    `mapstructure:"max_idle"`
}

// Output configures output.New.
type Output struct {
	BufsNum      int   `mapstructure:"bufs_num"`
	BufsSize     int   `mapstructure:"bufs_size"`
	Alignment    int64 `mapstructure:"alignment"`
	Sendfile     bool  `mapstructure:"sendfile"`
	NeedInMemory bool  `mapstructure:"need_in_memory"`
	NeedInTemp   bool  `mapstructure:"need_in_temp"`
	Limit        int64 `mapstructure:"limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arena.size", bufarena.DefaultArenaSize)
	v.SetDefault("arena.skip_after", bufarena.DefaultSkipAfter)
	v.SetDefault("arena.limit", 0)
	v.SetDefault("arena.reset_policy", "release")
	v.SetDefault("arena.max_idle", 64)

	v.SetDefault("output.bufs_num", output.DefaultBufsNum)
	v.SetDefault("output.bufs_size", output.DefaultBufsSize)
	v.SetDefault("output.alignment", output.DefaultAlignment)
	v.SetDefault("output.sendfile", false)
	v.SetDefault("output.need_in_memory", false)
	v.SetDefault("output.need_in_temp", false)
	v.SetDefault("output.limit", 0)

	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.add_source", false)
}

// Load reads path (yaml, json or toml; empty skips the file) and then
// environment variables under prefix, e.g. BUFARENA_ARENA_SIZE for
// arena.size.
func Load(path, prefix string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if prefix != "" {
		v.SetEnvPrefix(strings.TrimSuffix(prefix, "_"))
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if _, err := cfg.Arena.Policy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policy parses ResetPolicy.
func (c Arena) Policy() (bufarena.ResetPolicy, error) {
	switch strings.ToLower(c.ResetPolicy) {
	case "", "release":
		return bufarena.ResetRelease, nil
	case "cursors", "cursors_only":
		return bufarena.ResetCursorsOnly, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownResetPolicy, c.ResetPolicy)
	}
}

// Options converts the arena settings to arena options logging to log.
func (c Arena) Options(log *slog.Logger) ([]bufarena.Option, error) {
	policy, err := c.Policy()
	if err != nil {
		return nil, err
	}
	return []bufarena.Option{
		bufarena.WithSkipAfter(c.SkipAfter),
		bufarena.WithLimit(c.Limit),
		bufarena.WithResetPolicy(policy),
		bufarena.WithLogger(log),
	}, nil
}

// Options converts the output settings.
func (c Output) Options() output.Options {
	return output.Options{
		Bufs:         bufarena.Bufs{Num: c.BufsNum, Size: c.BufsSize},
		Alignment:    c.Alignment,
		Sendfile:     c.Sendfile,
		NeedInMemory: c.NeedInMemory,
		NeedInTemp:   c.NeedInTemp,
	}
}

// NewWriter builds an output.Writer over s with the configured send limit.
func (c Output) NewWriter(a *bufarena.Arena, s output.Sender) *output.Writer {
	w := output.NewWriter(a, s)
	w.Limit = c.Limit
	return w
}

// NewRecycler builds a Recycler from the arena settings.
func (c *Config) NewRecycler(log *slog.Logger) (*bufarena.Recycler, error) {
	opts, err := c.Arena.Options(log)
	if err != nil {
		return nil, err
	}
	return bufarena.NewRecycler(c.Arena.Size, c.Arena.MaxIdle, opts...), nil
}
