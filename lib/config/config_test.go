// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Environment != Development {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Storage.Driver = %s, want sqlite", cfg.Storage.Driver)
	}
	if cfg.Schedule.DailyCron != "0 19 * * *" || cfg.Schedule.MonthlyTime != "19:00" {
		t.Errorf("Schedule = %+v", cfg.Schedule)
	}
}

func TestLoadRequiresEnvironmentVariable(t *testing.T) {
	t.Setenv("CALLTALLY_CONFIG", "")
	_, err := Load()
	if err == nil || !strings.HasPrefix(err.Error(), "CALLTALLY_CONFIG environment variable not set") {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoadFromEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "calltally.yaml", `
matrix:
  homeserver_url: https://matrix.example.org
`)
	t.Setenv("CALLTALLY_CONFIG", path)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Matrix.HomeserverURL != "https://matrix.example.org" {
		t.Errorf("HomeserverURL = %q", cfg.Matrix.HomeserverURL)
	}
}

func TestLoadFileExpandsPaths(t *testing.T) {
	t.Setenv("HOME", "/home/dispatcher")
	path := writeConfig(t, "calltally.yaml", `
paths:
  state: ${HOME}/calltally
matrix:
  homeserver_url: https://matrix.example.org
  identity_file: ${CALLTALLY_STATE}/identity.txt
  access_token_file: ${CALLTALLY_TOKEN_DIR:-/etc/calltally}/token.age
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	checks := map[string]struct{ got, want string }{
		"paths.state":              {cfg.Paths.State, "/home/dispatcher/calltally"},
		"storage.sqlite_path":      {cfg.Storage.SQLitePath, "/home/dispatcher/calltally/calltally.db"},
		"registry.path":            {cfg.Registry.Path, "/home/dispatcher/calltally/chats.txt"},
		"matrix.identity_file":     {cfg.Matrix.IdentityFile, "/home/dispatcher/calltally/identity.txt"},
		"matrix.access_token_file": {cfg.Matrix.AccessTokenFile, "/etc/calltally/token.age"},
	}
	for field, check := range checks {
		if check.got != check.want {
			t.Errorf("%s = %q, want %q", field, check.got, check.want)
		}
	}
	if cfg.SyncStatePath() != "/home/dispatcher/calltally/sync.cbor" {
		t.Errorf("SyncStatePath = %q", cfg.SyncStatePath())
	}
}

func TestLoadFileJSONC(t *testing.T) {
	path := writeConfig(t, "calltally.jsonc", `{
  // Local test bot.
  "timezone": "Asia/Yekaterinburg",
  "matrix": {
    "homeserver_url": "https://matrix.example.org", /* staging */
  },
  "storage": {"driver": "memory",},
}`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Timezone != "Asia/Yekaterinburg" || cfg.Storage.Driver != DriverMemory {
		t.Errorf("loaded %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "calltally.yaml", `
environment: production
log_level: debug
matrix:
  homeserver_url: https://dev.example.org
storage:
  driver: sqlite
development:
  log_level: debug
production:
  log_level: warn
  matrix:
    homeserver_url: https://matrix.example.org
  storage:
    driver: postgres
    postgres_dsn: postgres://calltally@db/calltally
    pool_size: 8
  schedule:
    daily_cron: "30 18 * * mon-fri"
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.Matrix.HomeserverURL != "https://matrix.example.org" {
		t.Errorf("HomeserverURL = %q", cfg.Matrix.HomeserverURL)
	}
	if cfg.Storage.Driver != DriverPostgres || cfg.Storage.PoolSize != 8 {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Schedule.DailyCron != "30 18 * * mon-fri" {
		t.Errorf("DailyCron = %q", cfg.Schedule.DailyCron)
	}
	if cfg.Schedule.MonthlyTime != "19:00" {
		t.Errorf("MonthlyTime = %q, want the default", cfg.Schedule.MonthlyTime)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
	path := writeConfig(t, "broken.yaml", "matrix: [unterminated\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("LoadFile of broken YAML succeeded")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Matrix.HomeserverURL = "https://matrix.example.org"
		return cfg
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate(valid) = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"environment", func(c *Config) { c.Environment = "staging" }, "invalid environment"},
		{"log_level", func(c *Config) { c.LogLevel = "trace" }, "log_level"},
		{"timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"homeserver_missing", func(c *Config) { c.Matrix.HomeserverURL = "" }, "matrix.homeserver_url is required"},
		{"homeserver_relative", func(c *Config) { c.Matrix.HomeserverURL = "matrix.example.org" }, "not an absolute URL"},
		{"token_source", func(c *Config) { c.Matrix.AccessTokenEnv = "" }, "access_token_env"},
		{"identity_required", func(c *Config) { c.Matrix.AccessTokenFile = "/t.age" }, "identity_file"},
		{"sync_timeout", func(c *Config) { c.Matrix.SyncTimeout = "-1s" }, "matrix.sync_timeout"},
		{"driver", func(c *Config) { c.Storage.Driver = "redis" }, "storage.driver"},
		{"postgres_dsn", func(c *Config) { c.Storage.Driver = DriverPostgres }, "postgres_dsn"},
		{"pool_size", func(c *Config) { c.Storage.PoolSize = -1 }, "pool_size"},
		{"daily_cron", func(c *Config) { c.Schedule.DailyCron = "0 25 * * *" }, "schedule.daily_cron"},
		{"monthly_time", func(c *Config) { c.Schedule.MonthlyTime = "7pm" }, "schedule.monthly_time"},
		{"send_timeout", func(c *Config) { c.Schedule.SendTimeout = "soon" }, "schedule.send_timeout"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := valid()
			test.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func TestValidateJoinsErrors(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "loud"
	cfg.Storage.Driver = "redis"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate succeeded")
	}
	for _, want := range []string{"log_level", "storage.driver", "homeserver_url"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error %q lacks %q", err, want)
		}
	}
}

func TestValidateLocalIgnoresMatrix(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateLocal(); err != nil {
		t.Errorf("ValidateLocal(defaults without homeserver) = %v", err)
	}
	cfg.Storage.Driver = DriverPostgres
	if err := cfg.ValidateLocal(); err == nil || !strings.Contains(err.Error(), "postgres_dsn") {
		t.Errorf("ValidateLocal() = %v, want postgres_dsn error", err)
	}
}

func TestDerivedValues(t *testing.T) {
	cfg := Default()
	location, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	daily, err := cfg.DailySchedule()
	if err != nil {
		t.Fatalf("DailySchedule: %v", err)
	}
	if daily.Location().String() != location.String() {
		t.Errorf("DailySchedule zone = %s, want %s", daily.Location(), location)
	}
	// 12:00 UTC is 15:00 in Moscow, so the next run is 19:00 Moscow time.
	next, err := daily.Next(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if local := next.In(location); local.Hour() != 19 || local.Minute() != 0 || local.Day() != 10 {
		t.Errorf("Next = %v, want 2026-03-10 19:00 in %s", local, location)
	}
	monthly, err := cfg.MonthlyTime()
	if err != nil || monthly.Hour != 19 || monthly.Minute != 0 {
		t.Errorf("MonthlyTime = %v, %v", monthly, err)
	}
	if timeout, err := cfg.SendTimeout(); err != nil || timeout != 30*time.Second {
		t.Errorf("SendTimeout = %v, %v", timeout, err)
	}
	if timeout, err := cfg.SyncTimeout(); err != nil || timeout != 30*time.Second {
		t.Errorf("SyncTimeout = %v, %v", timeout, err)
	}
}

func TestLoadEnvFile(t *testing.T) {
	envPath := writeConfig(t, "calltally.env", "CALLTALLY_TEST_TOKEN=from-file\nCALLTALLY_TEST_KEEP=from-file\n")
	t.Setenv("CALLTALLY_TEST_KEEP", "from-env")
	t.Setenv("CALLTALLY_TEST_TOKEN", "")
	os.Unsetenv("CALLTALLY_TEST_TOKEN")

	cfg := Default()
	cfg.Matrix.EnvFile = envPath
	if err := cfg.LoadEnvFile(); err != nil {
		t.Fatalf("LoadEnvFile: %v", err)
	}
	if got := os.Getenv("CALLTALLY_TEST_TOKEN"); got != "from-file" {
		t.Errorf("CALLTALLY_TEST_TOKEN = %q, want from-file", got)
	}
	if got := os.Getenv("CALLTALLY_TEST_KEEP"); got != "from-env" {
		t.Errorf("CALLTALLY_TEST_KEEP = %q, want the existing value", got)
	}

	cfg.Matrix.EnvFile = filepath.Join(t.TempDir(), "missing.env")
	if err := cfg.LoadEnvFile(); err == nil {
		t.Error("LoadEnvFile of a missing file succeeded")
	}
}

func TestEnsurePaths(t *testing.T) {
	root := t.TempDir()
	cfg := Default()
	cfg.Paths.State = filepath.Join(root, "state")
	cfg.Storage.SQLitePath = filepath.Join(root, "db", "calltally.db")
	cfg.Registry.Path = filepath.Join(root, "registry", "chats.txt")
	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, directory := range []string{"state", "db", "registry"} {
		if info, err := os.Stat(filepath.Join(root, directory)); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", directory, err)
		}
	}
}
