// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON config file and
// environment variables, applied in that order.
package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// Duration is a time.Duration that reads from JSON strings such as "15m".
type Duration struct {
	time.Duration
}

// UnmarshalJSON accepts a Go duration string or a number of seconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		d.Duration = v
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", b)
	}
	d.Duration = time.Duration(secs * float64(time.Second))
	return nil
}

// MarshalJSON writes the duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"address"`

	// DatabaseDSN holds the database connection string for the application.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// JWTSecret signs access tokens.
	JWTSecret string `json:"jwt_secret"`
	// AccessTTL is the access token lifetime.
	AccessTTL Duration `json:"access_ttl"`
	// RefreshTTL is the refresh token lifetime.
	RefreshTTL Duration `json:"refresh_ttl"`

	// NotificationRetention is how long read notifications are kept.
	NotificationRetention Duration `json:"notification_retention"`
	// CleanerInterval is how often expired rows are purged.
	CleanerInterval Duration `json:"cleaner_interval"`

	// CacheTTL bounds how long a cached row is served without a change event.
	CacheTTL Duration `json:"cache_ttl"`

	// AllowedOrigins lists CORS origins for browser clients.
	AllowedOrigins []string `json:"allowed_origins"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`
}

// Default returns the built-in defaults.
func Default() *Options {
	return &Options{
		Port:                  "localhost:8080",
		Config:                "config.json",
		LogLevel:              "info",
		AccessTTL:             Duration{15 * time.Minute},
		RefreshTTL:            Duration{30 * 24 * time.Hour},
		NotificationRetention: Duration{30 * 24 * time.Hour},
		CleanerInterval:       Duration{time.Hour},
		CacheTTL:              Duration{5 * time.Minute},
		AllowedOrigins:        []string{"http://localhost:3000"},
	}
}

// Load builds Options from defaults, command-line args, the config file and
// the environment. getenv is normally os.Getenv.
func Load(args []string, getenv func(string) string) (*Options, error) {
	options := Default()

	fs := flag.NewFlagSet("nikahprep", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", options.Port, "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Config, "config", options.Config, "path to config file")
	fs.StringVar(&options.Config, "c", options.Config, "path to config file (shorthand)")
	fs.StringVar(&options.LogLevel, "l", options.LogLevel, "log level")
	fs.StringVar(&options.JWTSecret, "jwt-secret", "", "secret used to sign access tokens")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			// Flags given explicitly win over the file.
			explicit := map[string]bool{}
			fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
			fromFlags := *options
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
			if explicit["a"] {
				options.Port = fromFlags.Port
			}
			if explicit["d"] {
				options.DatabaseDSN = fromFlags.DatabaseDSN
			}
			if explicit["l"] {
				options.LogLevel = fromFlags.LogLevel
			}
			if explicit["jwt-secret"] {
				options.JWTSecret = fromFlags.JWTSecret
			}
		}
	}

	if serverAddress := getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if secret := getenv("JWT_SECRET"); secret != "" {
		options.JWTSecret = secret
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		options.LogLevel = level
	}
	if origins := getenv("ALLOWED_ORIGINS"); origins != "" {
		options.AllowedOrigins = strings.Split(origins, ",")
	}

	if err := options.validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func (o *Options) validate() error {
	var errs []error
	if o.DatabaseDSN == "" {
		errs = append(errs, errors.New("database DSN is required"))
	}
	if len(o.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT secret must be at least 16 characters"))
	}
	if (o.TLSCert == "") != (o.TLSKey == "") {
		errs = append(errs, errors.New("tls_cert and tls_key must be set together"))
	}
	return errors.Join(errs...)
}

// Parse parses the command-line flags and environment variables to set
// configuration values and exits on invalid configuration.
func Parse() *Options {
	options, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	return options
}
