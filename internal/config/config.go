package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type DB struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

type NSQ struct {
	NsqdTCPAddr        string // e.g. nsqd:4150
	LookupHTTPAddr     string // e.g. http://nsqlookupd:4161
	NotificationsTopic string // NSQ topic for notification requests
	WorkerChannel      string // NSQ channel name for workers
}

type Worker struct {
	MaxAttempts     int             // Maximum attempts for a request whose resolution fails
	BackoffSchedule []time.Duration // Requeue backoff durations
	JitterPercent   float64         // Backoff jitter percentage (0.0-1.0)
	HTTPPort        string          // Worker HTTP metrics port
}

type Identity struct {
	BaseURL  string // admin API base, e.g. http://keycloak:8080/admin/realms/apporte
	Username string
	Password string
	ClientID string
	Timeout  time.Duration
}

type SMTP struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

type WhatsApp struct {
	Enabled    bool
	GatewayURL string // message gateway, e.g. http://wa-gateway:8090
	Timeout    time.Duration
}

type Resolver struct {
	UserCacheTTL       time.Duration // staleness threshold before an identity refresh
	ResolutionCacheTTL time.Duration // per-request resolution result cache
	FallbackAdminID    string
	FallbackAdminEmail string
	FallbackAdminName  string
}

type Janitor struct {
	Schedule      string // cron expression
	RetentionDays int    // terminal records older than this are purged
}

type Config struct {
	AppName  string
	AppURL   string // base URL used in message bodies
	HTTPPort string // :8080
	DB       DB
	NSQ      NSQ
	Worker   Worker
	Identity Identity
	SMTP     SMTP
	WhatsApp WhatsApp
	Resolver Resolver
	Janitor  Janitor
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getenvFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func parseBackoffSchedule(schedule string) []time.Duration {
	if schedule == "" {
		return []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second, 1 * time.Minute, 4 * time.Minute, 10 * time.Minute}
	}

	parts := strings.Split(schedule, ",")
	durations := make([]time.Duration, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if d, err := time.ParseDuration(part); err == nil {
			durations = append(durations, d)
		}
	}

	if len(durations) == 0 {
		// Fallback to default if parsing failed
		return []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second, 1 * time.Minute, 4 * time.Minute, 10 * time.Minute}
	}

	return durations
}

func FromEnv() Config {
	return Config{
		AppName:  getenv("APP_NAME", "notify"),
		AppURL:   getenv("APP_URL", "https://app.apporte.com"),
		HTTPPort: getenv("HTTP_PORT", ":8080"),
		DB: DB{
			User: getenv("DB_USER", "postgres"),
			Pass: getenv("DB_PASS", "postgres"),
			Host: getenv("DB_HOST", "postgres"),
			Port: getenv("DB_PORT", "5432"),
			Name: getenv("DB_NAME", "notify"),
		},
		NSQ: NSQ{
			NsqdTCPAddr:        getenv("NSQD_TCP_ADDR", "nsqd:4150"),
			LookupHTTPAddr:     getenv("NSQ_LOOKUP_HTTP_ADDR", "http://nsqlookupd:4161"),
			NotificationsTopic: getenv("NSQ_NOTIFICATIONS_TOPIC", "notifications"),
			WorkerChannel:      getenv("NSQ_WORKER_CHANNEL", "workers"),
		},
		Worker: Worker{
			MaxAttempts:     getenvInt("MAX_ATTEMPTS", 3),
			BackoffSchedule: parseBackoffSchedule(getenv("BACKOFF_SCHEDULE", "")),
			JitterPercent:   getenvFloat("BACKOFF_JITTER_PCT", 0.25),
			HTTPPort:        ":" + getenv("WORKER_HTTP_PORT", "8083"),
		},
		Identity: Identity{
			BaseURL:  getenv("IDENTITY_BASE_URL", "http://keycloak:8080/admin/realms/apporte"),
			Username: getenv("IDENTITY_ADMIN_USER", "admin"),
			Password: getenv("IDENTITY_ADMIN_PASS", ""),
			ClientID: getenv("IDENTITY_CLIENT_ID", "admin-cli"),
			Timeout:  getenvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		SMTP: SMTP{
			Host: getenv("SMTP_HOST", "localhost"),
			Port: getenvInt("SMTP_PORT", 587),
			User: getenv("SMTP_USER", ""),
			Pass: getenv("SMTP_PASS", ""),
			From: getenv("SMTP_FROM", "no-reply@apporte.com"),
		},
		WhatsApp: WhatsApp{
			Enabled:    getenvBool("WHATSAPP_ENABLED", true),
			GatewayURL: getenv("WHATSAPP_GATEWAY_URL", "http://wa-gateway:8090"),
			Timeout:    getenvDuration("WHATSAPP_TIMEOUT", 30*time.Second),
		},
		Resolver: Resolver{
			UserCacheTTL:       getenvDuration("USER_CACHE_TTL", time.Hour),
			ResolutionCacheTTL: getenvDuration("RESOLUTION_CACHE_TTL", 30*time.Second),
			FallbackAdminID:    getenv("FALLBACK_ADMIN_ID", "admin-001"),
			FallbackAdminEmail: getenv("FALLBACK_ADMIN_EMAIL", "admin@apporte.com"),
			FallbackAdminName:  getenv("FALLBACK_ADMIN_NAME", "Administrator"),
		},
		Janitor: Janitor{
			Schedule:      getenv("JANITOR_SCHEDULE", "0 3 * * *"),
			RetentionDays: getenvInt("RETENTION_DAYS", 90),
		},
	}
}

func (c Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DB.User, c.DB.Pass, c.DB.Host, c.DB.Port, c.DB.Name)
}
