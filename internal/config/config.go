package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/routeplay/internal/clock"
	"github.com/loykin/routeplay/internal/frame"
	"github.com/loykin/routeplay/internal/logger"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// ROUTEPLAY_PLAYBACK_SPEED=2 or ROUTEPLAY_SERVER_LISTEN=:9000.
const EnvPrefix = "ROUTEPLAY"

// Config represents the top-level TOML structure.
type Config struct {
	EnvFiles []string        `toml:"env_files" mapstructure:"env_files"`
	Server   *ServerConfig   `toml:"server" mapstructure:"server"`
	Playback PlaybackConfig  `toml:"playback" mapstructure:"playback"`
	Metrics  MetricsConfig   `toml:"metrics" mapstructure:"metrics"`
	Log      logger.Config   `toml:"log" mapstructure:"log"`
	History  []HistoryConfig `toml:"history" mapstructure:"history"`

	// path of the file this config was read from
	ConfigPath string `toml:"-" mapstructure:"-"`
}

type ServerConfig struct {
	Listen        string     `toml:"listen" mapstructure:"listen"`
	BasePath      string     `toml:"base_path" mapstructure:"base_path"`
	JWTSecret     string     `toml:"jwt_secret" mapstructure:"jwt_secret"`
	PIDFile       string     `toml:"pidfile" mapstructure:"pidfile"`
	LogFile       string     `toml:"logfile" mapstructure:"logfile"`
	TLSMinVersion string     `toml:"tls_min_version" mapstructure:"tls_min_version"`
	TLSMaxVersion string     `toml:"tls_max_version" mapstructure:"tls_max_version"`
	TLS           *TLSConfig `toml:"tls" mapstructure:"tls"`
}

type TLSConfig struct {
	Enabled      bool        `toml:"enabled" mapstructure:"enabled"`
	CertFile     string      `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string      `toml:"key_file" mapstructure:"key_file"`
	Dir          string      `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool        `toml:"auto_generate" mapstructure:"auto_generate"`
	AutoGen      *AutoGenTLS `toml:"auto_gen" mapstructure:"auto_gen"`
}

type AutoGenTLS struct {
	CommonName   string   `toml:"common_name" mapstructure:"common_name"`
	Organization string   `toml:"organization" mapstructure:"organization"`
	DNSNames     []string `toml:"dns_names" mapstructure:"dns_names"`
	IPAddresses  []string `toml:"ip_addresses" mapstructure:"ip_addresses"`
	ValidDays    int      `toml:"valid_days" mapstructure:"valid_days"`
}

// PlaybackConfig describes the scheduler the daemon runs.
type PlaybackConfig struct {
	Name          string        `toml:"name" mapstructure:"name"`
	Timeline      string        `toml:"timeline" mapstructure:"timeline"` // JSON/TOML/YAML document, relative to the config file
	FrameInterval time.Duration `toml:"frame_interval" mapstructure:"frame_interval"`
	Speed         float64       `toml:"speed" mapstructure:"speed"`
	Autoplay      bool          `toml:"autoplay" mapstructure:"autoplay"`
	Loop          bool          `toml:"loop" mapstructure:"loop"` // rewind and play again on scheduler-complete
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

// HistoryConfig is one audit sink; see history/factory for DSN schemes.
type HistoryConfig struct {
	DSN    string `toml:"dsn" mapstructure:"dsn"`
	Buffer int    `toml:"buffer" mapstructure:"buffer"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("playback.name", "default")
	v.SetDefault("playback.frame_interval", frame.DefaultInterval)
	v.SetDefault("playback.speed", clock.DefaultSpeed)
	v.SetDefault("metrics.listen", ":9090")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var c Config
	_ = v.Unmarshal(&c)
	return &c
}

// LoadConfig reads a TOML file, applies defaults and ROUTEPLAY_* environment
// overrides, resolves relative paths against the file's directory and
// validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	c.ConfigPath = path

	base := filepath.Dir(path)
	c.Playback.Timeline = resolve(base, c.Playback.Timeline)
	for i := range c.EnvFiles {
		c.EnvFiles[i] = resolve(base, c.EnvFiles[i])
	}
	if c.Server != nil && c.Server.TLS != nil {
		c.Server.TLS.Dir = resolve(base, c.Server.TLS.Dir)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks value ranges that the scheduler and server rely on.
func (c *Config) Validate() error {
	var errs []error
	if s := c.Playback.Speed; s < clock.MinSpeed || s > clock.MaxSpeed {
		errs = append(errs, fmt.Errorf("playback.speed %.2f outside [%.2f, %.2f]", s, clock.MinSpeed, clock.MaxSpeed))
	}
	if c.Playback.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("playback.frame_interval must be positive"))
	}
	if c.Playback.Autoplay && c.Playback.Timeline == "" {
		errs = append(errs, fmt.Errorf("playback.autoplay requires playback.timeline"))
	}
	if c.Server != nil && strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, fmt.Errorf("server.listen is required when [server] is present"))
	}
	if c.Metrics.Enabled && strings.TrimSpace(c.Metrics.Listen) == "" {
		errs = append(errs, fmt.Errorf("metrics.listen is required when metrics are enabled"))
	}
	for i, h := range c.History {
		if strings.TrimSpace(h.DSN) == "" {
			errs = append(errs, fmt.Errorf("history[%d]: dsn is required", i))
		}
		if h.Buffer < 0 {
			errs = append(errs, fmt.Errorf("history[%d]: buffer must not be negative", i))
		}
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	return errors.Join(errs...)
}

// ApplyEnvFiles loads every configured env file into the process
// environment. Variables already set are left alone.
func (c *Config) ApplyEnvFiles() error {
	for _, p := range c.EnvFiles {
		pairs, err := loadEnvFile(p)
		if err != nil {
			return fmt.Errorf("env file %s: %w", p, err)
		}
		for k, v := range pairs {
			if _, ok := os.LookupEnv(k); ok {
				continue
			}
			if err := os.Setenv(k, v); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadEnvFile parses a simple .env file and returns a slice of "KEY=VALUE" entries.
func LoadEnvFile(path string) ([]string, error) {
	m, err := loadEnvFile(path)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out, nil
}

// loadEnvFile parses a simple .env file with KEY=VALUE lines (no export, no quotes). Lines starting with # are ignored.
func loadEnvFile(path string) (map[string]string, error) {
	// Mitigate G304: sanitize user-provided path by cleaning it before use.
	clean := filepath.Clean(path)
	b, err := os.ReadFile(clean)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string)
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if i := strings.IndexByte(line, '='); i >= 0 {
			k := strings.TrimSpace(line[:i])
			v := strings.TrimSpace(line[i+1:])
			m[k] = v
		}
	}
	return m, nil
}
