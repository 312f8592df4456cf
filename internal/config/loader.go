// Package config loads service settings from defaults, an optional TOML file
// and ATTENDANCE_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/example/attendance-tracker/internal/attendance"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "ATTENDANCE_"

// FileEnv names the variable pointing at an optional TOML config file.
const FileEnv = EnvPrefix + "CONFIG_FILE"

// Storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Config captures the settings of the attendance service.
type Config struct {
	HTTPPort        int           `toml:"http_port" env:"HTTP_PORT"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	StorageDriver string `toml:"storage_driver" env:"STORAGE_DRIVER"`
	SQLitePath    string `toml:"sqlite_path" env:"SQLITE_PATH"`

	TimeZone          string        `toml:"time_zone" env:"TIME_ZONE"`
	MissingRulePolicy string        `toml:"missing_rule_policy" env:"MISSING_RULE_POLICY"`
	VoucherTTL        time.Duration `toml:"voucher_ttl" env:"VOUCHER_TTL"`

	ProjectionInterval   time.Duration `toml:"projection_interval" env:"PROJECTION_INTERVAL"`
	BadgePollInterval    time.Duration `toml:"badge_poll_interval" env:"BADGE_POLL_INTERVAL"`
	BadgePollMaxInterval time.Duration `toml:"badge_poll_max_interval" env:"BADGE_POLL_MAX_INTERVAL"`

	RuleCacheTTL  time.Duration `toml:"rule_cache_ttl" env:"RULE_CACHE_TTL"`
	RuleCacheSize int           `toml:"rule_cache_size" env:"RULE_CACHE_SIZE"`

	// StationKeys maps a station id to its argon2id key hash. In the
	// environment entries are written id:hash and separated by semicolons.
	StationKeys map[string]string `toml:"station_keys" env:"STATION_KEYS" envSeparator:";"`

	OTLPEndpoint   string `toml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	MetricsEnabled bool   `toml:"metrics_enabled" env:"METRICS_ENABLED"`

	LogLevel  string `toml:"log_level" env:"LOG_LEVEL"`
	LogFormat string `toml:"log_format" env:"LOG_FORMAT"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTPPort:             8080,
		ShutdownTimeout:      10 * time.Second,
		StorageDriver:        DriverSQLite,
		SQLitePath:           "attendance.db",
		TimeZone:             "Asia/Tokyo",
		MissingRulePolicy:    string(attendance.CreditRaw),
		VoucherTTL:           0,
		ProjectionInterval:   30 * time.Second,
		BadgePollInterval:    2 * time.Second,
		BadgePollMaxInterval: 30 * time.Second,
		RuleCacheTTL:         30 * time.Second,
		RuleCacheSize:        64,
		MetricsEnabled:       true,
		LogLevel:             "info",
		LogFormat:            "json",
	}
}

// Option adjusts what Load requires.
type Option func(*options)

type options struct {
	requireStations bool
}

// RequireStationKeys makes at least one station key mandatory. The HTTP server
// needs one; maintenance commands do not.
func RequireStationKeys() Option {
	return func(o *options) { o.requireStations = true }
}

// Load builds the configuration from defaults, the file named by
// ATTENDANCE_CONFIG_FILE and the environment, then validates the result.
//
// Missing and invalid entries are reported together, named by their
// environment variable.
func Load(opts ...Option) (Config, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv(FileEnv)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.validate(o); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return fmt.Errorf("設定ファイルに不明なキーがあります: %s", strings.Join(keys, ", "))
	}
	return nil
}

func (c Config) validate(o options) error {
	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 4)

	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		invalid = append(invalid, EnvPrefix+"HTTP_PORT")
	}
	if c.ShutdownTimeout <= 0 {
		invalid = append(invalid, EnvPrefix+"SHUTDOWN_TIMEOUT")
	}
	switch c.StorageDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			missing = append(missing, EnvPrefix+"SQLITE_PATH")
		}
	case DriverMemory:
	default:
		invalid = append(invalid, EnvPrefix+"STORAGE_DRIVER")
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil || c.TimeZone == "" {
		invalid = append(invalid, EnvPrefix+"TIME_ZONE")
	}
	if _, err := attendance.ParseMissingRulePolicy(c.MissingRulePolicy); err != nil {
		invalid = append(invalid, EnvPrefix+"MISSING_RULE_POLICY")
	}
	if c.VoucherTTL < 0 {
		invalid = append(invalid, EnvPrefix+"VOUCHER_TTL")
	}
	if c.ProjectionInterval <= 0 {
		invalid = append(invalid, EnvPrefix+"PROJECTION_INTERVAL")
	}
	if c.BadgePollInterval <= 0 {
		invalid = append(invalid, EnvPrefix+"BADGE_POLL_INTERVAL")
	}
	if c.BadgePollMaxInterval < c.BadgePollInterval {
		invalid = append(invalid, EnvPrefix+"BADGE_POLL_MAX_INTERVAL")
	}
	if c.RuleCacheTTL < 0 {
		invalid = append(invalid, EnvPrefix+"RULE_CACHE_TTL")
	}
	if c.RuleCacheSize < 0 {
		invalid = append(invalid, EnvPrefix+"RULE_CACHE_SIZE")
	}
	for id, hash := range c.StationKeys {
		if strings.TrimSpace(id) == "" || !strings.HasPrefix(hash, "$argon2id$") {
			invalid = append(invalid, EnvPrefix+"STATION_KEYS")
			break
		}
	}
	if o.requireStations && len(c.StationKeys) == 0 {
		missing = append(missing, EnvPrefix+"STATION_KEYS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("必須の環境変数が設定されていません: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}
	return nil
}

// Location resolves TimeZone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Policy returns the parsed missing-rule policy.
func (c Config) Policy() attendance.MissingRulePolicy {
	policy, _ := attendance.ParseMissingRulePolicy(c.MissingRulePolicy)
	return policy
}

// StationIDs lists the configured stations in a stable order.
func (c Config) StationIDs() []string {
	ids := make([]string, 0, len(c.StationKeys))
	for id := range c.StationKeys {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
