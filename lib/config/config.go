// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/calltally/lib/cron"
	"github.com/bureau-foundation/calltally/lib/schedule"
)

// Environment represents the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the master configuration for calltally.
type Config struct {
	Environment Environment `yaml:"environment"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Timezone is the IANA zone that defines "today" and "this month"
	// for counters and the report schedule.
	Timezone string `yaml:"timezone"`

	Paths    PathsConfig    `yaml:"paths"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Storage  StorageConfig  `yaml:"storage"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Registry RegistryConfig `yaml:"registry"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides contains fields that can be overridden per
// environment. Empty strings and zero numbers leave the base value.
type ConfigOverrides struct {
	LogLevel string          `yaml:"log_level,omitempty"`
	Timezone string          `yaml:"timezone,omitempty"`
	Paths    *PathsConfig    `yaml:"paths,omitempty"`
	Matrix   *MatrixConfig   `yaml:"matrix,omitempty"`
	Storage  *StorageConfig  `yaml:"storage,omitempty"`
	Schedule *ScheduleConfig `yaml:"schedule,omitempty"`
	Registry *RegistryConfig `yaml:"registry,omitempty"`
}

// PathsConfig configures directory locations.
type PathsConfig struct {
	// State holds the SQLite database, the registry file and the sync
	// position. Other relative defaults are derived from it.
	State string `yaml:"state"`
}

// MatrixConfig configures the homeserver connection.
type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`

	// UserID is the bot's Matrix user ID. When empty it is resolved
	// with /account/whoami at startup.
	UserID string `yaml:"user_id"`

	// AccessTokenEnv names the environment variable holding the access
	// token. Default: CALLTALLY_MATRIX_TOKEN.
	AccessTokenEnv string `yaml:"access_token_env"`

	// AccessTokenFile is an age-encrypted file holding the token, used
	// when the environment variable is unset.
	AccessTokenFile string `yaml:"access_token_file"`

	// IdentityFile holds the age identity that decrypts
	// AccessTokenFile.
	IdentityFile string `yaml:"identity_file"`

	// EnvFile is an optional .env file loaded before the token
	// variable is read. Existing environment variables win.
	EnvFile string `yaml:"env_file"`

	// SyncTimeout is the long-poll timeout of /sync. Default: 30s.
	SyncTimeout string `yaml:"sync_timeout"`
}

// StorageConfig selects the counter backend.
type StorageConfig struct {
	// Driver is memory, sqlite or postgres. Default: sqlite.
	Driver string `yaml:"driver"`

	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn"`

	// PoolSize bounds open connections for sqlite and postgres.
	PoolSize int `yaml:"pool_size"`
}

// ScheduleConfig configures report timing.
type ScheduleConfig struct {
	// DailyCron is a 5-field cron expression in Timezone.
	// Default: "0 19 * * *". Weekend matches never send.
	DailyCron string `yaml:"daily_cron"`

	// MonthlyTime is the HH:MM of the monthly report on the last
	// weekday of each month. Default: 19:00.
	MonthlyTime string `yaml:"monthly_time"`

	// SendTimeout bounds each per-chat delivery. Default: 30s.
	SendTimeout string `yaml:"send_timeout"`
}

// RegistryConfig configures the broadcast destination file.
type RegistryConfig struct {
	Path string `yaml:"path"`
}

// Default returns the default configuration. It is the base the file
// is merged into.
func Default() *Config {
	return &Config{
		Environment: Development,
		LogLevel:    "info",
		Timezone:    "Europe/Moscow",
		Paths: PathsConfig{
			State: "${HOME}/.local/state/calltally",
		},
		Matrix: MatrixConfig{
			AccessTokenEnv: "CALLTALLY_MATRIX_TOKEN",
			SyncTimeout:    "30s",
		},
		Storage: StorageConfig{
			Driver:     DriverSQLite,
			SQLitePath: "${CALLTALLY_STATE}/calltally.db",
			PoolSize:   4,
		},
		Schedule: ScheduleConfig{
			DailyCron:   "0 19 * * *",
			MonthlyTime: "19:00",
			SendTimeout: "30s",
		},
		Registry: RegistryConfig{
			Path: "${CALLTALLY_STATE}/chats.txt",
		},
	}
}

// Load loads configuration from the CALLTALLY_CONFIG environment
// variable. There is no fallback when it is unset.
func Load() (*Config, error) {
	configPath := os.Getenv("CALLTALLY_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("CALLTALLY_CONFIG environment variable not set; " +
			"set it to the path of your calltally.yaml, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, applies the environment
// section and expands path variables. It does not validate.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.applyEnvironmentOverrides()
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML once comments and trailing commas
		// are gone.
		data = jsonc.ToJSON(data)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	setString(&c.LogLevel, overrides.LogLevel)
	setString(&c.Timezone, overrides.Timezone)

	if overrides.Paths != nil {
		setString(&c.Paths.State, overrides.Paths.State)
	}
	if overrides.Matrix != nil {
		setString(&c.Matrix.HomeserverURL, overrides.Matrix.HomeserverURL)
		setString(&c.Matrix.UserID, overrides.Matrix.UserID)
		setString(&c.Matrix.AccessTokenEnv, overrides.Matrix.AccessTokenEnv)
		setString(&c.Matrix.AccessTokenFile, overrides.Matrix.AccessTokenFile)
		setString(&c.Matrix.IdentityFile, overrides.Matrix.IdentityFile)
		setString(&c.Matrix.EnvFile, overrides.Matrix.EnvFile)
		setString(&c.Matrix.SyncTimeout, overrides.Matrix.SyncTimeout)
	}
	if overrides.Storage != nil {
		setString(&c.Storage.Driver, overrides.Storage.Driver)
		setString(&c.Storage.SQLitePath, overrides.Storage.SQLitePath)
		setString(&c.Storage.PostgresDSN, overrides.Storage.PostgresDSN)
		if overrides.Storage.PoolSize != 0 {
			c.Storage.PoolSize = overrides.Storage.PoolSize
		}
	}
	if overrides.Schedule != nil {
		setString(&c.Schedule.DailyCron, overrides.Schedule.DailyCron)
		setString(&c.Schedule.MonthlyTime, overrides.Schedule.MonthlyTime)
		setString(&c.Schedule.SendTimeout, overrides.Schedule.SendTimeout)
	}
	if overrides.Registry != nil {
		setString(&c.Registry.Path, overrides.Registry.Path)
	}
}

func setString(target *string, value string) {
	if value != "" {
		*target = value
	}
}

func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.State = expandVars(c.Paths.State, vars)
	vars["CALLTALLY_STATE"] = c.Paths.State

	c.Storage.SQLitePath = expandVars(c.Storage.SQLitePath, vars)
	c.Storage.PostgresDSN = expandVars(c.Storage.PostgresDSN, vars)
	c.Registry.Path = expandVars(c.Registry.Path, vars)
	c.Matrix.AccessTokenFile = expandVars(c.Matrix.AccessTokenFile, vars)
	c.Matrix.IdentityFile = expandVars(c.Matrix.IdentityFile, vars)
	c.Matrix.EnvFile = expandVars(c.Matrix.EnvFile, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default}. vars take precedence
// over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}
		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	return errors.Join(c.ValidateLocal(), c.validateMatrix())
}

// ValidateLocal checks everything except the Matrix section. Offline
// commands (reports, export, import) need no homeserver.
func (c *Config) ValidateLocal() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %q", c.Environment))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be one of debug, info, warn, error; got %q", c.LogLevel))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		errs = append(errs, fmt.Errorf("timezone %q is not a valid IANA zone", c.Timezone))
	}

	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver must be one of memory, sqlite, postgres; got %q", c.Storage.Driver))
	}
	if c.Storage.PoolSize < 0 {
		errs = append(errs, fmt.Errorf("storage.pool_size must not be negative; got %d", c.Storage.PoolSize))
	}

	if _, err := cron.Parse(c.Schedule.DailyCron); err != nil {
		errs = append(errs, fmt.Errorf("schedule.daily_cron: %w", err))
	}
	if _, err := schedule.ParseTimeOfDay(c.Schedule.MonthlyTime); err != nil {
		errs = append(errs, fmt.Errorf("schedule.monthly_time: %w", err))
	}
	if _, err := positiveDuration("schedule.send_timeout", c.Schedule.SendTimeout); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func (c *Config) validateMatrix() error {
	var errs []error
	if c.Matrix.HomeserverURL == "" {
		errs = append(errs, errors.New("matrix.homeserver_url is required"))
	} else if parsed, err := url.Parse(c.Matrix.HomeserverURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
		errs = append(errs, fmt.Errorf("matrix.homeserver_url %q is not an absolute URL", c.Matrix.HomeserverURL))
	}
	if c.Matrix.AccessTokenEnv == "" && c.Matrix.AccessTokenFile == "" {
		errs = append(errs, errors.New("one of matrix.access_token_env or matrix.access_token_file is required"))
	}
	if c.Matrix.AccessTokenFile != "" && c.Matrix.IdentityFile == "" {
		errs = append(errs, errors.New("matrix.identity_file is required with matrix.access_token_file"))
	}
	if _, err := positiveDuration("matrix.sync_timeout", c.Matrix.SyncTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func positiveDuration(field, value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if duration <= 0 {
		return 0, fmt.Errorf("%s must be positive; got %s", field, value)
	}
	return duration, nil
}

// Location loads the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	location, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Timezone, err)
	}
	return location, nil
}

// DailySchedule parses the daily cron expression bound to the
// configured zone.
func (c *Config) DailySchedule() (cron.Schedule, error) {
	location, err := c.Location()
	if err != nil {
		return cron.Schedule{}, err
	}
	parsed, err := cron.Parse(c.Schedule.DailyCron)
	if err != nil {
		return cron.Schedule{}, fmt.Errorf("schedule.daily_cron: %w", err)
	}
	return parsed.In(location), nil
}

// MonthlyTime parses schedule.monthly_time.
func (c *Config) MonthlyTime() (schedule.TimeOfDay, error) {
	return schedule.ParseTimeOfDay(c.Schedule.MonthlyTime)
}

// SyncTimeout parses matrix.sync_timeout.
func (c *Config) SyncTimeout() (time.Duration, error) {
	return positiveDuration("matrix.sync_timeout", c.Matrix.SyncTimeout)
}

// SendTimeout parses schedule.send_timeout.
func (c *Config) SendTimeout() (time.Duration, error) {
	return positiveDuration("schedule.send_timeout", c.Schedule.SendTimeout)
}

// LoadEnvFile loads matrix.env_file into the process environment.
// Variables already set are not overwritten. A missing file is not an
// error when the path is empty.
func (c *Config) LoadEnvFile() error {
	if c.Matrix.EnvFile == "" {
		return nil
	}
	if err := godotenv.Load(c.Matrix.EnvFile); err != nil {
		return fmt.Errorf("loading env file %s: %w", c.Matrix.EnvFile, err)
	}
	return nil
}

// EnsurePaths creates the state directory and the parents of every
// configured file.
func (c *Config) EnsurePaths() error {
	directories := []string{c.Paths.State}
	if c.Storage.Driver == DriverSQLite && c.Storage.SQLitePath != "" {
		directories = append(directories, filepath.Dir(c.Storage.SQLitePath))
	}
	if c.Registry.Path != "" {
		directories = append(directories, filepath.Dir(c.Registry.Path))
	}
	for _, directory := range directories {
		if directory == "" {
			continue
		}
		if err := os.MkdirAll(directory, 0700); err != nil {
			return fmt.Errorf("creating %s: %w", directory, err)
		}
	}
	return nil
}

// SyncStatePath is where the Matrix sync position is kept.
func (c *Config) SyncStatePath() string {
	return filepath.Join(c.Paths.State, "sync.cbor")
}
