// Package config loads server settings from the environment and an optional
// config file. Every key can be set as TLEMAP_<SECTION>_<KEY>, for example
// TLEMAP_TRACK_STEP=30s. Invalid optional values log a warning and keep their
// default; invalid required settings are returned as errors.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/yonda-yonda/tle-with-mapbox/internal/auth"
	"github.com/yonda-yonda/tle-with-mapbox/internal/groundtrack"
	"github.com/yonda-yonda/tle-with-mapbox/internal/observability"
	"github.com/yonda-yonda/tle-with-mapbox/internal/session"
	"github.com/yonda-yonda/tle-with-mapbox/internal/stream"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "TLEMAP"

// ConfigFileEnv names the variable pointing at an optional config file.
const ConfigFileEnv = "TLEMAP_CONFIG"

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Addr       string
	TrustProxy bool
}

// Config is the full server configuration.
type Config struct {
	HTTP     HTTPConfig
	Auth     auth.Config
	Session  session.Config
	Stream   stream.Config
	Tracing  observability.TracingConfig
	LogLevel slog.Level
}

func setDefaults(v *viper.Viper) {
	track := groundtrack.DefaultConfig()
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.trust_proxy", false)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("track.step", track.Step)
	v.SetDefault("track.max_duration", track.MaxDuration)
	v.SetDefault("track.max_revolutions", track.MaxRevolutions)
	v.SetDefault("animation.frame_delay", session.DefaultConfig().FrameDelay)
	v.SetDefault("stream.max_concurrent_per_ip", 10)
	v.SetDefault("stream.keepalive_interval", 30*time.Second)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "tlemap")
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("log.level", "info")
}

// New returns a viper instance bound to the environment and, when
// TLEMAP_CONFIG is set, to that file.
func New() (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads the configuration from the environment.
func Load(logger *slog.Logger) (Config, error) {
	v, err := New()
	if err != nil {
		return Config{}, err
	}
	return FromViper(v, logger)
}

// FromViper decodes and validates a configuration.
func FromViper(v *viper.Viper, logger *slog.Logger) (Config, error) {
	l := loader{v: v, logger: logger}

	cfg := Config{
		HTTP: HTTPConfig{
			Addr:       v.GetString("http.addr"),
			TrustProxy: l.boolean("http.trust_proxy", false),
		},
		Session: session.DefaultConfig(),
		Stream: stream.Config{
			TrustProxy:         l.boolean("http.trust_proxy", false),
			MaxConcurrentPerIP: l.positiveInt("stream.max_concurrent_per_ip", 10),
			KeepaliveInterval:  l.duration("stream.keepalive_interval", 30*time.Second, time.Second),
		},
		Tracing: observability.TracingConfig{
			Enabled:     l.boolean("tracing.enabled", false),
			ServiceName: v.GetString("tracing.service_name"),
			Exporter:    strings.ToLower(v.GetString("tracing.exporter")),
			Endpoint:    v.GetString("tracing.endpoint"),
			SampleRatio: l.ratio("tracing.sample_ratio", 1.0),
		},
		LogLevel: l.level("log.level", slog.LevelInfo),
	}

	defaults := groundtrack.DefaultConfig()
	cfg.Session.Track = groundtrack.Config{
		Step:           l.duration("track.step", defaults.Step, time.Second),
		MaxDuration:    l.duration("track.max_duration", defaults.MaxDuration, time.Minute),
		MaxRevolutions: l.positiveFloat("track.max_revolutions", defaults.MaxRevolutions),
	}
	cfg.Session.FrameDelay = l.duration("animation.frame_delay", cfg.Session.FrameDelay, time.Millisecond)

	enabled, err := cast.ToBoolE(v.Get("auth.enabled"))
	if err != nil {
		return cfg, errors.New("TLEMAP_AUTH_ENABLED must be a boolean value (true/false/1/0)")
	}
	cfg.Auth.Enabled = enabled
	if enabled {
		cfg.Auth.Token = v.GetString("auth.token")
		if cfg.Auth.Token == "" {
			return cfg, errors.New("TLEMAP_AUTH_TOKEN is required when auth is enabled")
		}
	}

	return cfg, nil
}

// loader reads typed values, warning and falling back on bad input.
type loader struct {
	v      *viper.Viper
	logger *slog.Logger
}

func (l loader) warn(key string, value any, def any) {
	l.logger.Warn("invalid config value, using default",
		"key", envName(key),
		"value", value,
		"default", def,
	)
}

func (l loader) boolean(key string, def bool) bool {
	raw := l.v.Get(key)
	b, err := cast.ToBoolE(raw)
	if err != nil {
		l.warn(key, raw, def)
		return def
	}
	return b
}

func (l loader) positiveInt(key string, def int) int {
	raw := l.v.Get(key)
	n, err := cast.ToIntE(raw)
	if err != nil || n < 1 {
		l.warn(key, raw, def)
		return def
	}
	return n
}

func (l loader) positiveFloat(key string, def float64) float64 {
	raw := l.v.Get(key)
	f, err := cast.ToFloat64E(raw)
	if err != nil || f <= 0 {
		l.warn(key, raw, def)
		return def
	}
	return f
}

func (l loader) ratio(key string, def float64) float64 {
	raw := l.v.Get(key)
	f, err := cast.ToFloat64E(raw)
	if err != nil || f < 0 || f > 1 {
		l.warn(key, raw, def)
		return def
	}
	return f
}

// duration accepts Go duration strings; values below min fall back.
func (l loader) duration(key string, def, min time.Duration) time.Duration {
	raw := l.v.Get(key)
	d, err := cast.ToDurationE(raw)
	if err != nil || d < min {
		l.warn(key, raw, def)
		return def
	}
	return d
}

func (l loader) level(key string, def slog.Level) slog.Level {
	raw := l.v.GetString(key)
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		l.warn(key, raw, def)
		return def
	}
	return lvl
}

func envName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}
