// Package config loads gallery settings from a YAML file, .env files and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"

	"gallery/internal/store"
	"gallery/internal/store/backends"
	"gallery/internal/thumbnail"
	"gallery/internal/upload"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when no --config flag is given; it may be absent.
const DefaultPath = "gallery.yaml"

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Upload    UploadConfig    `yaml:"upload"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Auth      AuthConfig      `yaml:"auth"`
	Log       LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // sqlite3, sqlite, postgres, file, memory
	DSN    string `yaml:"dsn"`
	Key    string `yaml:"key"`
}

type UploadConfig struct {
	MaxBytes    int64 `yaml:"max_bytes"`
	Concurrency int   `yaml:"concurrency"`
}

type ThumbnailConfig struct {
	MaxEdge int `yaml:"max_edge"`
}

// AuthConfig enables HTTP basic auth when both fields are set.
// PasswordHash is a bcrypt hash (see `gallery hash-password`).
type AuthConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

func (a AuthConfig) Enabled() bool { return a.Username != "" && a.PasswordHash != "" }

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	return Config{
		Server:    ServerConfig{Addr: ":8080"},
		Store:     StoreConfig{Driver: "sqlite3", DSN: "./gallery.db", Key: store.DefaultKey},
		Upload:    UploadConfig{MaxBytes: upload.DefaultMaxBytes, Concurrency: upload.DefaultConcurrency},
		Thumbnail: ThumbnailConfig{MaxEdge: thumbnail.DefaultMaxEdge},
		Log:       LogConfig{Level: "info"},
	}
}

// Load builds the configuration. A missing file at path is not an error
// when path is DefaultPath or empty. envFiles are loaded with godotenv
// without overriding variables already set; missing ones are ignored.
func Load(path string, envFiles ...string) (Config, error) {
	cfg := Default()

	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", f, err)
		}
	}

	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("GALLERY_ADDR", &c.Server.Addr)
	str("DB_DRIVER", &c.Store.Driver)
	str("DB_CONN", &c.Store.DSN)
	str("GALLERY_STORE_KEY", &c.Store.Key)
	str("GALLERY_AUTH_USER", &c.Auth.Username)
	str("GALLERY_AUTH_HASH", &c.Auth.PasswordHash)
	str("GALLERY_LOG_LEVEL", &c.Log.Level)

	if v := os.Getenv("GALLERY_UPLOAD_MAX_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("GALLERY_UPLOAD_MAX_BYTES: %w", err)
		}
		c.Upload.MaxBytes = n
	}
	return nil
}

func (c Config) Validate() error {
	if !slices.Contains(backends.Drivers, c.Store.Driver) {
		return fmt.Errorf("store.driver %q: want one of %v", c.Store.Driver, backends.Drivers)
	}
	if c.Store.Driver != "memory" && c.Store.DSN == "" {
		return fmt.Errorf("store.dsn is required for driver %q", c.Store.Driver)
	}
	if c.Store.Key == "" {
		return errors.New("store.key must not be empty")
	}
	if (c.Auth.Username == "") != (c.Auth.PasswordHash == "") {
		return errors.New("auth.username and auth.password_hash must be set together")
	}
	return nil
}
