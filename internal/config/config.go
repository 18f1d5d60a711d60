// Package config loads service settings from defaults, an optional YAML file
// and CONSORCIA_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvFile names the variable holding the YAML path.
const EnvFile = "CONSORCIA_CONFIG"

type Config struct {
	HTTPAddr string `yaml:"http_addr"`
	GRPCAddr string `yaml:"grpc_addr"`
	// GRPCToken is the shared secret authorizer clients present. It is
	// required whenever GRPCAddr listens beyond loopback.
	GRPCToken string `yaml:"grpc_token"`
	LogLevel  string `yaml:"log_level"`

	Database Database `yaml:"database"`
	Auth     Auth     `yaml:"auth"`
	Rate     Rate     `yaml:"rate_limit"`
	Modules  Modules  `yaml:"modules"`
}

// Database is empty when the service runs on the in-memory store.
type Database struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type Auth struct {
	Secret   string        `yaml:"secret"`
	Issuer   string        `yaml:"issuer"`
	TokenTTL time.Duration `yaml:"token_ttl"`
	// Bootstrap admin, created at startup when the email is unknown.
	AdminEmail    string `yaml:"admin_email"`
	AdminPassword string `yaml:"admin_password"`
}

type Rate struct {
	PerSecond float64 `yaml:"per_second"`
	Burst     int     `yaml:"burst"`
	RedisURL  string  `yaml:"redis_url"`
}

type Modules struct {
	CacheSize int           `yaml:"cache_size"`
	CacheTTL  time.Duration `yaml:"cache_ttl"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		GRPCAddr: "127.0.0.1:9090",
		LogLevel: "info",
		Database: Database{
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 15 * time.Minute,
		},
		Auth: Auth{
			Issuer:   "consorcia",
			TokenTTL: 24 * time.Hour,
		},
		Rate: Rate{
			PerSecond: 20,
			Burst:     40,
		},
		Modules: Modules{
			CacheSize: 8,
			CacheTTL:  time.Minute,
		},
	}
}

// Load builds a Config from defaults, the file named by CONSORCIA_CONFIG and the environment.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv(EnvFile)); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = f
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	str("CONSORCIA_HTTP_ADDR", &c.HTTPAddr)
	str("CONSORCIA_GRPC_ADDR", &c.GRPCAddr)
	str("CONSORCIA_GRPC_TOKEN", &c.GRPCToken)
	str("CONSORCIA_LOG_LEVEL", &c.LogLevel)
	str("CONSORCIA_PG_DSN", &c.Database.DSN)
	integer("CONSORCIA_PG_MAX_OPEN", &c.Database.MaxOpenConns)
	integer("CONSORCIA_PG_MAX_IDLE", &c.Database.MaxIdleConns)
	duration("CONSORCIA_PG_CONN_LIFETIME", &c.Database.ConnMaxLifetime)
	str("CONSORCIA_AUTH_SECRET", &c.Auth.Secret)
	str("CONSORCIA_AUTH_ISSUER", &c.Auth.Issuer)
	duration("CONSORCIA_TOKEN_TTL", &c.Auth.TokenTTL)
	str("CONSORCIA_ADMIN_EMAIL", &c.Auth.AdminEmail)
	str("CONSORCIA_ADMIN_PASSWORD", &c.Auth.AdminPassword)
	float("CONSORCIA_RATE_PER_SEC", &c.Rate.PerSecond)
	integer("CONSORCIA_RATE_BURST", &c.Rate.Burst)
	str("CONSORCIA_REDIS_URL", &c.Rate.RedisURL)
	integer("CONSORCIA_MODULE_CACHE_SIZE", &c.Modules.CacheSize)
	duration("CONSORCIA_MODULE_CACHE_TTL", &c.Modules.CacheTTL)
	return errors.Join(errs...)
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	switch {
	case c.GRPCAddr == "":
		errs = append(errs, errors.New("grpc_addr is required"))
	case c.GRPCToken != "" && len(c.GRPCToken) < 16:
		errs = append(errs, errors.New("grpc_token must be at least 16 bytes"))
	case c.GRPCToken == "" && !loopback(c.GRPCAddr):
		errs = append(errs, errors.New("grpc_token is required when grpc_addr is not a loopback address"))
	}
	if strings.TrimSpace(c.Auth.Secret) == "" {
		errs = append(errs, errors.New("auth.secret is required"))
	} else if len(c.Auth.Secret) < 16 {
		errs = append(errs, errors.New("auth.secret must be at least 16 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if c.Rate.PerSecond < 0 || c.Rate.Burst < 0 {
		errs = append(errs, errors.New("rate_limit values must not be negative"))
	}
	if c.Rate.PerSecond > 0 && c.Rate.Burst == 0 {
		errs = append(errs, errors.New("rate_limit.burst is required when per_second is set"))
	}
	if c.Modules.CacheTTL <= 0 {
		errs = append(errs, errors.New("modules.cache_ttl must be positive"))
	}
	if (c.Auth.AdminEmail == "") != (c.Auth.AdminPassword == "") {
		errs = append(errs, errors.New("auth.admin_email and auth.admin_password go together"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// loopback reports whether addr binds only the local host.
func loopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// InMemory reports whether no database is configured.
func (c Config) InMemory() bool { return c.Database.DSN == "" }

// RateLimited reports whether request throttling is on.
func (c Config) RateLimited() bool { return c.Rate.PerSecond > 0 }
