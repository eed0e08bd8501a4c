// Package config loads the coordinator's settings. Values come from (highest
// priority first) command-line flags, PLACER_ environment variables, a YAML
// config file, and the defaults below.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const envPrefix = "PLACER"

type ConsulConfig struct {
	Addr string `mapstructure:"addr"`

	// Name of the catalog service which data nodes register as.
	Service string `mapstructure:"service"`

	// KV prefixes. Segment metadata, what each node announces that it's
	// serving, and the commands sent to nodes.
	SegmentsPrefix string `mapstructure:"segments_prefix"`
	AnnouncePrefix string `mapstructure:"announce_prefix"`
	QueuePrefix    string `mapstructure:"queue_prefix"`
}

type ActuatorConfig struct {
	Backoff time.Duration `mapstructure:"backoff"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Consul   ConsulConfig `mapstructure:"consul"`

	RulesFile string `mapstructure:"rules_file"`
	BoltPath  string `mapstructure:"bolt_path"`

	CyclePeriod time.Duration `mapstructure:"cycle_period"`
	CycleJitter time.Duration `mapstructure:"cycle_jitter"`
	Parallelism int           `mapstructure:"parallelism"`

	// How long a node can be missing from the membership source before its
	// queue is thrown away.
	NodeExpiry time.Duration `mapstructure:"node_expiry"`

	// Tiers which load rules visit first, in this order. Unlisted tiers are
	// visited after, alphabetically.
	TierPriority []string `mapstructure:"tier_priority"`

	// Serves /metrics and /debug.
	MetricsAddr string `mapstructure:"metrics_addr"`

	Actuator ActuatorConfig `mapstructure:"actuator"`
}

// SetDefaults registers the default value of every key. Keys must have a
// default for environment variables to be picked up by Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("consul.addr", "127.0.0.1:8500")
	v.SetDefault("consul.service", "historical")
	v.SetDefault("consul.segments_prefix", "placer/segments")
	v.SetDefault("consul.announce_prefix", "placer/served")
	v.SetDefault("consul.queue_prefix", "placer/queue")
	v.SetDefault("rules_file", "rules.yaml")
	v.SetDefault("bolt_path", "placer.db")
	v.SetDefault("cycle_period", time.Minute)
	v.SetDefault("cycle_jitter", 5*time.Second)
	v.SetDefault("parallelism", 8)
	v.SetDefault("node_expiry", 5*time.Minute)
	v.SetDefault("tier_priority", []string{})
	v.SetDefault("metrics_addr", ":9090")
	v.SetDefault("actuator.backoff", 10*time.Second)
	v.SetDefault("actuator.timeout", 15*time.Minute)
}

// NewViper returns a viper instance with defaults, the environment, the given
// config file (or placer.yaml in the working directory, if it exists), and the
// flags of the given command bound. Either may be empty.
func NewViper(configPath string, cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cmd != nil {
		if err := v.BindPFlags(cmd.Flags()); err != nil {
			return nil, fmt.Errorf("binding flags: %w", err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("placer")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &nf) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	return v, nil
}

// FromViper decodes and validates a Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Load is NewViper followed by FromViper.
func Load(configPath string, cmd *cobra.Command) (*Config, error) {
	v, err := NewViper(configPath, cmd)
	if err != nil {
		return nil, err
	}

	return FromViper(v)
}

var logLevels = []interface{}{"debug", "info", "warn", "error"}

func (c ConsulConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addr, validation.Required),
		validation.Field(&c.Service, validation.Required),
		validation.Field(&c.SegmentsPrefix, validation.Required),
		validation.Field(&c.AnnouncePrefix, validation.Required, validation.NotIn(c.SegmentsPrefix)),
		validation.Field(&c.QueuePrefix, validation.Required, validation.NotIn(c.SegmentsPrefix, c.AnnouncePrefix)),
	)
}

func (c ActuatorConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Backoff, validation.Min(time.Duration(0))),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.LogLevel, validation.Required, validation.In(logLevels...)),
		validation.Field(&c.Consul),
		validation.Field(&c.RulesFile, validation.Required),
		validation.Field(&c.CyclePeriod, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.CycleJitter, validation.Min(time.Duration(0)), validation.Max(c.CyclePeriod).Exclusive()),
		validation.Field(&c.Parallelism, validation.Required, validation.Min(1)),
		validation.Field(&c.NodeExpiry, validation.Required, validation.Min(c.CyclePeriod)),
		validation.Field(&c.TierPriority, validation.Each(validation.Required)),
		validation.Field(&c.MetricsAddr, validation.Required),
		validation.Field(&c.Actuator),
	)
}

// Logger returns a production logger at the configured level, or a
// development logger if the level is debug.
func (c Config) Logger() (*zap.Logger, error) {
	if c.LogLevel == "debug" {
		return zap.NewDevelopment()
	}

	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
