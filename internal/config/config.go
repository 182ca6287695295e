// Package config reads server settings from the environment once at startup.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// DevSecret signs tokens when JWT_SECRET is unset outside production.
const DevSecret = "replace_me_in_production"

// Config holds the server settings.
type Config struct {
	Port    int    `env:"PORT" envDefault:"4000"`
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	Secret  string `env:"JWT_SECRET"`
	DB      DB
	File    string `env:"FILE_STORE_PATH" envDefault:"db.json"`
	Cost    int    `env:"BCRYPT_COST" envDefault:"10"`
	Cookie  Cookie
	Origins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	Seed    bool     `env:"SEED_DEMO_ACCOUNTS" envDefault:"true"`

	GRPCHealthAddr string `env:"GRPC_HEALTH_ADDR"`
	OTLPEndpoint   string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure   bool   `env:"OTEL_EXPORTER_OTLP_INSECURE"`

	// UsingDevSecret is set by Load when Secret fell back to DevSecret.
	UsingDevSecret bool
}

// DB holds relational store settings. Host, user and name must all be set
// for the relational backend to be attempted.
type DB struct {
	Host           string        `env:"DB_HOST"`
	Port           int           `env:"DB_PORT" envDefault:"5432"`
	User           string        `env:"DB_USER"`
	Password       string        `env:"DB_PASSWORD"`
	Name           string        `env:"DB_NAME"`
	SSLMode        string        `env:"DB_SSLMODE" envDefault:"disable"`
	ConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"5s"`
}

// Cookie holds identity cookie settings.
type Cookie struct {
	Name   string `env:"COOKIE_NAME" envDefault:"ips_token"`
	Secure bool   `env:"COOKIE_SECURE"`
}

// Load parses the environment, then applies command-line overrides from args
// (without the program name).
func Load(args []string) (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	fs := flag.NewFlagSet("ips-server", flag.ContinueOnError)
	port := fs.Int("port", cfg.Port, "HTTP listen port")
	file := fs.String("file-store", cfg.File, "path of the JSON credential file")
	dev := fs.Bool("dev", false, "force development mode")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.Port = *port
	cfg.File = *file
	if *dev {
		cfg.AppEnv = "development"
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Secret == "" {
		if cfg.Production() {
			return nil, errors.New("JWT_SECRET is required in production")
		}
		cfg.Secret = DevSecret
		cfg.UsingDevSecret = true
	}
	return &cfg, nil
}

// Production reports whether APP_ENV is "production".
func (c *Config) Production() bool { return c.AppEnv == "production" }

// Addr is the HTTP listen address.
func (c *Config) Addr() string { return ":" + strconv.Itoa(c.Port) }

// DatabaseDSN returns a postgres URL, or "" when the relational store is not configured.
func (c *Config) DatabaseDSN() string {
	d := c.DB
	if d.Host == "" || d.User == "" || d.Name == "" {
		return ""
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.Password != "" {
		u.User = url.UserPassword(d.User, d.Password)
	} else {
		u.User = url.User(d.User)
	}
	q := url.Values{}
	if d.SSLMode != "" {
		q.Set("sslmode", d.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
