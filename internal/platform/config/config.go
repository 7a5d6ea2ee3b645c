// Package config loads the service configuration from a YAML file, then lets
// environment variables (optionally from a .env file) override single values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prefect-attendance/internal/platform/kv"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	AllowOrigins []string `yaml:"allow_origins"`
	Cert         string   `yaml:"cert"`
	Key          string   `yaml:"key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type StorageConfig struct {
	Driver string         `yaml:"driver"` // file | redis
	Dir    string         `yaml:"dir"`
	Redis  kv.RedisConfig `yaml:"redis"`
}

type AttendanceConfig struct {
	Timezone      string `yaml:"timezone"`
	DateLayout    string `yaml:"date_layout"`
	LateAfter     string `yaml:"late_after"` // HH:MM:SS, local time
	RetentionDays int    `yaml:"retention_days"`
}

type RemoteConfig struct {
	Driver           string        `yaml:"driver"` // "" (disabled) | mysql | postgres | sqlite3 | rest
	DSN              string        `yaml:"dsn"`
	URL              string        `yaml:"url"`
	APIKey           string        `yaml:"api_key"`
	AutoSyncInterval time.Duration `yaml:"auto_sync_interval"`
	KeepBackups      int           `yaml:"keep_backups"`
}

type BackupConfig struct {
	Dir        string        `yaml:"dir"`
	Interval   time.Duration `yaml:"interval"`
	Keep       int           `yaml:"keep"`
	Passphrase string        `yaml:"passphrase"`
}

type QRConfig struct {
	Secret string `yaml:"secret"`
}

type Config struct {
	Version    string           `yaml:"version"`
	Mode       string           `yaml:"mode"`
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Storage    StorageConfig    `yaml:"storage"`
	Attendance AttendanceConfig `yaml:"attendance"`
	Remote     RemoteConfig     `yaml:"remote"`
	Backup     BackupConfig     `yaml:"backup"`
	QR         QRConfig         `yaml:"qr"`
}

// Load reads path (a missing file means "defaults only"), applies .env and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	var cfg Config
	buf, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg.applyDefaults()
	cfg.applyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "release"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = "./data"
	}
	if c.Storage.Redis.Prefix == "" {
		c.Storage.Redis.Prefix = "prefect:"
	}
	if c.Attendance.Timezone == "" {
		c.Attendance.Timezone = "Local"
	}
	if c.Attendance.DateLayout == "" {
		c.Attendance.DateLayout = "1/2/2006"
	}
	if c.Attendance.LateAfter == "" {
		c.Attendance.LateAfter = "07:00:00"
	}
	if c.Attendance.RetentionDays <= 0 {
		c.Attendance.RetentionDays = 14
	}
	if c.Remote.KeepBackups <= 0 {
		c.Remote.KeepBackups = 10
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = "./backups"
	}
	if c.Backup.Keep <= 0 {
		c.Backup.Keep = 7
	}
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Mode, "PREFECT_MODE")
	set(&c.Server.Addr, "PREFECT_ADDR")
	set(&c.Log.Level, "PREFECT_LOG_LEVEL")
	set(&c.Log.Format, "PREFECT_LOG_FORMAT")
	set(&c.Storage.Driver, "PREFECT_STORAGE_DRIVER")
	set(&c.Storage.Dir, "PREFECT_STORAGE_DIR")
	set(&c.Storage.Redis.Addr, "PREFECT_REDIS_ADDR")
	set(&c.Storage.Redis.Password, "PREFECT_REDIS_PASSWORD")
	set(&c.Attendance.Timezone, "PREFECT_TIMEZONE")
	set(&c.Remote.Driver, "PREFECT_REMOTE_DRIVER")
	set(&c.Remote.DSN, "PREFECT_REMOTE_DSN")
	set(&c.Remote.URL, "PREFECT_REMOTE_URL")
	set(&c.Remote.APIKey, "PREFECT_REMOTE_API_KEY")
	set(&c.Backup.Dir, "PREFECT_BACKUP_DIR")
	set(&c.Backup.Passphrase, "PREFECT_BACKUP_PASSPHRASE")
	set(&c.QR.Secret, "PREFECT_QR_SECRET")

	if v := getenv("PREFECT_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Attendance.RetentionDays = n
		}
	}
	if v := getenv("PREFECT_AUTO_SYNC_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Remote.AutoSyncInterval = d
		}
	}
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("mode must be dev or release, got %q", c.Mode)
	}
	switch c.Storage.Driver {
	case "file", "redis":
	default:
		return fmt.Errorf("storage.driver must be file or redis, got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "redis" && c.Storage.Redis.Addr == "" {
		return errors.New("storage.redis.addr is required for the redis driver")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.LateAfter(); err != nil {
		return err
	}
	switch c.Remote.Driver {
	case "":
	case "mysql", "postgres", "sqlite3":
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn is required for the %s driver", c.Remote.Driver)
		}
	case "rest":
		if c.Remote.URL == "" {
			return errors.New("remote.url is required for the rest driver")
		}
	default:
		return fmt.Errorf("unknown remote.driver %q", c.Remote.Driver)
	}
	return nil
}

// Location resolves attendance.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Attendance.Timezone)
	if err != nil {
		return nil, fmt.Errorf("attendance.timezone: %w", err)
	}
	return loc, nil
}

// LateAfter returns attendance.late_after as an offset from local midnight.
func (c *Config) LateAfter() (time.Duration, error) {
	return ParseClock(c.Attendance.LateAfter)
}

// ParseClock parses "HH:MM" or "HH:MM:SS" into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	layout := "15:04:05"
	if strings.Count(s, ":") == 1 {
		layout = "15:04"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}
