// Package config holds the publisher configuration. Values come from
// command line flags, PCDPUB_* environment variables and an optional
// config file, in decreasing order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"pcdpublisher/pkg/sink"
)

const EnvPrefix = "PCDPUB"

type Config struct {
	File         string        `mapstructure:"file"`
	Topic        string        `mapstructure:"topic"`
	Schema       string        `mapstructure:"schema"`
	RateHz       float64       `mapstructure:"rate"`
	ModuleName   string        `mapstructure:"module-name"`
	FrameID      string        `mapstructure:"frame-id"`
	Sink         string        `mapstructure:"sink"`
	Target       string        `mapstructure:"target"`
	WriteTimeout time.Duration `mapstructure:"write-timeout"`
	MetricsAddr  string        `mapstructure:"metrics-addr"`
	Strict       bool          `mapstructure:"strict"`
	LogLevel     string        `mapstructure:"log-level"`
}

func Default() Config {
	return Config{
		File:         "/apollo/scans.pcd",
		Topic:        "/apollo/sensor/mid360/PointCloud",
		Schema:       "apollo.drivers.PointCloud",
		RateHz:       10,
		ModuleName:   "pcd_publisher",
		Sink:         sink.KindLog,
		WriteTimeout: time.Second,
		LogLevel:     "info",
	}
}

// BindFlags registers the configuration flags on fs and binds them to v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	d := Default()
	fs.String("config", "", "path to a YAML, TOML or JSON config file")
	fs.StringP("file", "f", d.File, "PCD (or KITTI .bin) file to replay")
	fs.String("topic", d.Topic, "channel the point clouds are published on")
	fs.String("schema", d.Schema, "message schema name announced for the channel")
	fs.Float64P("rate", "r", d.RateHz, "publish rate in Hz")
	fs.String("module-name", d.ModuleName, "module name written into every message header")
	fs.String("frame-id", d.FrameID, "optional coordinate frame id")
	fs.String("sink", d.Sink, "channel writer: "+strings.Join(sink.Kinds, ", "))
	fs.String("target", d.Target, "TCP address (tcp sink) or output path (file sink)")
	fs.Duration("write-timeout", d.WriteTimeout, "per message write deadline for the tcp sink")
	fs.String("metrics-addr", d.MetricsAddr, "serve prometheus metrics on this address when set")
	fs.Bool("strict", d.Strict, "reject binary_compressed PCD files instead of reading them as raw binary")
	fs.String("log-level", d.LogLevel, "log level: debug, info, warn, error")

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	return v.BindPFlags(fs)
}

// Load reads the optional config file and returns the validated configuration.
func Load(v *viper.Viper) (Config, error) {
	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if c.File == "" {
		return fmt.Errorf("config: file must be set")
	}
	if !(c.RateHz > 0) {
		return fmt.Errorf("config: rate must be greater than zero, got %v", c.RateHz)
	}
	if c.Topic == "" {
		return fmt.Errorf("config: topic must be set")
	}
	switch c.Sink {
	case sink.KindLog:
	case sink.KindTCP, sink.KindFile:
		if c.Target == "" {
			return fmt.Errorf("config: %s sink needs a target", c.Sink)
		}
	default:
		return fmt.Errorf("config: unknown sink %q; supported sinks are %s", c.Sink, strings.Join(sink.Kinds, ", "))
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.Set(c.LogLevel); err != nil {
		return level, fmt.Errorf("unknown log level %q; supported levels are debug, info, warn, error", c.LogLevel)
	}
	return level, nil
}
