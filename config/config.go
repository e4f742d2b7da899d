/*
Package config loads server settings from command-line flags, falling back
to environment variables, falling back to defaults.

SETTINGS:
  flag               env                 default
  -port              PORT                8080
  -db-driver         DB_DRIVER           sqlite3   (sqlite3 | postgres)
  -db                DB_DSN              club.db   (":memory:" for in-memory)
  -tz                CLUB_TIMEZONE       America/Sao_Paulo
  -rules             RULES_FILE          ""        (built-in rules)
  -log-level         LOG_LEVEL           info
  -log-format        LOG_FORMAT          console   (console | json)
  -cors-origins      CORS_ORIGINS        http://localhost:5173,http://localhost:8080
  -snapshot-interval SNAPSHOT_INTERVAL   1h        (0 disables)

A flag given on the command line always wins over the environment.
*/
package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/rs/zerolog"
)

type Config struct {
	Port             int
	DBDriver         string
	DBDSN            string
	Timezone         string
	Location         *time.Location
	RulesFile        string
	LogLevel         zerolog.Level
	LogFormat        string
	CORSOrigins      []string
	SnapshotInterval time.Duration
}

// Load parses args (without the program name) against the environment.
func Load(args []string) (Config, error) {
	return load(args, os.Getenv)
}

func load(args []string, getenv func(string) string) (Config, error) {
	env := func(key, fallback string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return fallback
	}

	fs := flag.NewFlagSet("club-server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	port := fs.String("port", env("PORT", "8080"), "HTTP server port")
	driver := fs.String("db-driver", env("DB_DRIVER", "sqlite3"), "database driver: sqlite3 or postgres")
	dsn := fs.String("db", env("DB_DSN", "club.db"), "database DSN or SQLite path")
	tz := fs.String("tz", env("CLUB_TIMEZONE", "America/Sao_Paulo"), "club time zone (IANA name)")
	rules := fs.String("rules", env("RULES_FILE", ""), "reward rules JSON file")
	level := fs.String("log-level", env("LOG_LEVEL", "info"), "log level")
	format := fs.String("log-format", env("LOG_FORMAT", "console"), "log format: console or json")
	origins := fs.String("cors-origins", env("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080"), "comma-separated CORS origins")
	interval := fs.String("snapshot-interval", env("SNAPSHOT_INTERVAL", "1h"), "leaderboard snapshot check interval")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBDriver:  *driver,
		DBDSN:     *dsn,
		Timezone:  *tz,
		RulesFile: *rules,
		LogFormat: strings.ToLower(*format),
	}

	var err error
	if cfg.Port, err = strconv.Atoi(*port); err != nil {
		return Config{}, fmt.Errorf("invalid port %q: %w", *port, err)
	}
	if cfg.LogLevel, err = zerolog.ParseLevel(strings.ToLower(*level)); err != nil {
		return Config{}, fmt.Errorf("invalid log level %q: %w", *level, err)
	}
	if cfg.SnapshotInterval, err = time.ParseDuration(*interval); err != nil {
		return Config{}, fmt.Errorf("invalid snapshot interval %q: %w", *interval, err)
	}
	for _, o := range strings.Split(*origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.CORSOrigins = append(cfg.CORSOrigins, o)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings and resolves the time zone.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("unsupported db driver %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("db dsn is required")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	if c.SnapshotInterval < 0 {
		return fmt.Errorf("snapshot interval must not be negative")
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return fmt.Errorf("unknown time zone %q: %w", c.Timezone, err)
	}
	c.Location = loc
	return nil
}

// Logger builds the process logger.
func (c Config) Logger(out io.Writer) zerolog.Logger {
	if c.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(c.LogLevel).With().Timestamp().Logger()
}
