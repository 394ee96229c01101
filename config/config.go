// Package config reads the gateway configuration from REL__ environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sevenitynet/reliefboard/auth"
	"github.com/sevenitynet/reliefboard/session"
)

// Config is the complete gateway configuration.
type Config struct {
	// Addr is the listen address.
	Addr string
	// BackendURL is the base URL of the relief REST backend.
	BackendURL string
	// RedisURL selects Redis session storage. Empty keeps sessions in memory.
	RedisURL string
	// RedisPrefix prefixes every Redis key; a ":" separator is added.
	RedisPrefix string
	// SessionTTL expires Redis session keys not read or written for that long. Zero keeps
	// them forever.
	SessionTTL time.Duration
	// NATSURL enables chat when set.
	NATSURL     string
	ChatSubject string

	CookieSecret string
	CookieName   string
	CookieDomain string
	CookieSecure bool

	// CookieLifetime is the validity of a newly issued client cookie.
	CookieLifetime time.Duration

	// RoutesFile overrides the embedded page table.
	RoutesFile string
	// ProfileTimeout bounds a profile fetch. Zero means no timeout.
	ProfileTimeout time.Duration
	// AwaitProfile bounds how long a guarded navigation waits for an in-flight profile.
	AwaitProfile  time.Duration
	SessionCache  int
	PersistUserID bool

	CORSAllowedOrigins string
	CSPPolicy          string
	CSPReportOnly      bool
}

// Default returns the configuration used for unset variables.
func Default() Config {
	return Config{
		Addr:           ":8080",
		RedisPrefix:    "reliefboard",
		ChatSubject:    "reliefboard.chat",
		CookieName:     auth.DefaultCookieName,
		CookieSecure:   true,
		CookieLifetime: auth.DefaultLifetime,
		SessionCache:   session.DefaultCacheSize,
		PersistUserID:  true,
	}
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("REL__ADDR", &cfg.Addr)
	str("REL__BACKEND_URL", &cfg.BackendURL)
	str("REL__REDIS_URL", &cfg.RedisURL)
	str("REL__REDIS_PREFIX", &cfg.RedisPrefix)
	duration("REL__SESSION_TTL", &cfg.SessionTTL)
	str("REL__NATS_URL", &cfg.NATSURL)
	str("REL__CHAT_SUBJECT", &cfg.ChatSubject)
	str("REL__COOKIE_SECRET", &cfg.CookieSecret)
	str("REL__COOKIE_NAME", &cfg.CookieName)
	str("REL__COOKIE_DOMAIN", &cfg.CookieDomain)
	boolean("REL__COOKIE_SECURE", &cfg.CookieSecure)
	duration("REL__COOKIE_LIFETIME", &cfg.CookieLifetime)
	str("REL__ROUTES_FILE", &cfg.RoutesFile)
	duration("REL__PROFILE_TIMEOUT", &cfg.ProfileTimeout)
	duration("REL__AWAIT_PROFILE", &cfg.AwaitProfile)
	integer("REL__SESSION_CACHE", &cfg.SessionCache)
	boolean("REL__PERSIST_USER_ID", &cfg.PersistUserID)
	str("REL__CORS_ALLOWED_ORIGINS", &cfg.CORSAllowedOrigins)
	str("REL__CSP_POLICY", &cfg.CSPPolicy)
	boolean("REL__CSP_REPORT_ONLY", &cfg.CSPReportOnly)

	if len(errs) > 0 {
		return cfg, errors.Join(errs...)
	}

	return cfg, cfg.Validate()
}

// Validate checks that required settings are present and well formed.
func (c Config) Validate() error {
	var errs []error

	if c.BackendURL == "" {
		errs = append(errs, errors.New("REL__BACKEND_URL is required"))
	} else if u, err := url.Parse(c.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("REL__BACKEND_URL %q is not an absolute URL", c.BackendURL))
	}

	if c.CookieSecret == "" {
		errs = append(errs, errors.New("REL__COOKIE_SECRET is required"))
	}
	if c.CookieName == "" {
		errs = append(errs, errors.New("REL__COOKIE_NAME must not be empty"))
	}
	if c.ChatSubject == "" {
		errs = append(errs, errors.New("REL__CHAT_SUBJECT must not be empty"))
	}
	if c.CookieLifetime <= 0 {
		errs = append(errs, errors.New("REL__COOKIE_LIFETIME must be positive"))
	}
	if c.ProfileTimeout < 0 || c.AwaitProfile < 0 || c.SessionTTL < 0 {
		errs = append(errs, errors.New("REL__ durations must not be negative"))
	}

	return errors.Join(errs...)
}
