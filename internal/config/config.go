// Package config loads application configuration from environment
// variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds
// to an environment variable.
type Config struct {
	Env    string // APP_ENV (dev, test, prod)
	Port   string // APP_PORT
	AppURL string // APP_URL, base for links in mails

	DBUser string // DB_USER
	DBPass string // DB_PASS (empty allowed)
	DBHost string // DB_HOST
	DBPort string // DB_PORT
	DBName string // DB_NAME

	AccessSecret   string // ACCESS_TOKEN_SECRET
	RefreshSecret  string // REFRESH_TOKEN_SECRET, must differ from the access secret
	Issuer         string // JWT_ISSUER
	Audience       string // JWT_AUDIENCE
	AccessTTLMin   int    // ACCESS_TOKEN_TTL_MIN
	RefreshTTLDays int    // REFRESH_TOKEN_TTL_DAYS
	BcryptCost     int    // BCRYPT_COST

	CookieSecure              bool   // COOKIE_SECURE
	RefreshReloadsPermissions bool   // REFRESH_RELOADS_PERMISSIONS
	LogoutScope               string // LOGOUT_SCOPE: session | all

	InviteTTLHours int // INVITE_TTL_HOURS
	ResetTTLMin    int // RESET_TTL_MIN

	RabbitURL       string // RABBITMQ_URL; empty disables mail publishing
	MailQueue       string // MAIL_QUEUE
	ActivityChannel string // ACTIVITY_CHANNEL (Redis pub/sub)

	LogLevel  string // LOG_LEVEL
	LogFormat string // LOG_FORMAT: json | console

	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
}

// DSN is the MySQL data source name.  parseTime maps DATETIME to
// time.Time and loc=UTC keeps times consistent.
func (c Config) DSN() string {
	auth := c.DBUser
	if c.DBPass != "" {
		auth = fmt.Sprintf("%s:%s", c.DBUser, c.DBPass)
	}
	return fmt.Sprintf("%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=UTC", auth, c.DBHost, c.DBPort, c.DBName)
}

// IsProd reports whether APP_ENV is prod or production.
func (c Config) IsProd() bool {
	return strings.EqualFold(c.Env, "prod") || strings.EqualFold(c.Env, "production")
}

// Load reads .env (when present) and the environment.  Every missing
// required variable is reported at once.
func Load() (Config, error) {
	_ = godotenv.Load()

	var l loader
	cfg := Config{
		Env:    envStr("APP_ENV", "dev"),
		Port:   envStr("APP_PORT", "8080"),
		AppURL: strings.TrimRight(envStr("APP_URL", "http://localhost:8080"), "/"),

		DBUser: l.must("DB_USER"),
		DBPass: os.Getenv("DB_PASS"),
		DBHost: l.must("DB_HOST"),
		DBPort: envStr("DB_PORT", "3306"),
		DBName: l.must("DB_NAME"),

		AccessSecret:   l.must("ACCESS_TOKEN_SECRET"),
		RefreshSecret:  l.must("REFRESH_TOKEN_SECRET"),
		Issuer:         envStr("JWT_ISSUER", "bean-counter"),
		Audience:       envStr("JWT_AUDIENCE", "bean-counter-web"),
		AccessTTLMin:   l.mustInt("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays: l.mustInt("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:     l.mustInt("BCRYPT_COST", 10),

		CookieSecure:              envBool("COOKIE_SECURE", true),
		RefreshReloadsPermissions: envBool("REFRESH_RELOADS_PERMISSIONS", false),
		LogoutScope:               strings.ToLower(envStr("LOGOUT_SCOPE", "all")),

		InviteTTLHours: l.mustInt("INVITE_TTL_HOURS", 168),
		ResetTTLMin:    l.mustInt("RESET_TTL_MIN", 30),

		RabbitURL:       os.Getenv("RABBITMQ_URL"),
		MailQueue:       envStr("MAIL_QUEUE", "mail.outbound"),
		ActivityChannel: envStr("ACTIVITY_CHANNEL", "activity.created"),

		LogLevel:  envStr("LOG_LEVEL", "info"),
		LogFormat: envStr("LOG_FORMAT", "json"),

		Redis:     LoadRedisConfig(),
		RateLimit: LoadRateLimitConfig(),
		Cache:     LoadCacheConfig(),
	}
	if cfg.AccessSecret != "" && cfg.AccessSecret == cfg.RefreshSecret {
		l.errs = append(l.errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if cfg.LogoutScope != "session" && cfg.LogoutScope != "all" {
		l.errs = append(l.errs, fmt.Errorf("invalid LOGOUT_SCOPE %q (want session or all)", cfg.LogoutScope))
	}
	if cfg.AccessTTLMin <= 0 || cfg.RefreshTTLDays <= 0 {
		l.errs = append(l.errs, errors.New("token lifetimes must be positive"))
	}
	if err := errors.Join(l.errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// loader collects missing or malformed variables instead of exiting on
// the first one.
type loader struct{ errs []error }

// must retrieves the value of a required environment variable.
func (l *loader) must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		l.errs = append(l.errs, fmt.Errorf("missing required env var: %s", key))
		return ""
	}
	return v
}

// mustInt reads an integer variable, falling back to def when unset.
// A value that does not parse is an error.
func (l *loader) mustInt(key string, def int) int {
	s := os.Getenv(key)
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		l.errs = append(l.errs, fmt.Errorf("invalid int for %s: %q", key, s))
		return def
	}
	return n
}
