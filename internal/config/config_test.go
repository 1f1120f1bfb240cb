package config

import (
	"testing"
	"time"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.HTTPPort != ":8080" {
		t.Errorf("HTTPPort = %q", cfg.HTTPPort)
	}
	if cfg.NSQ.NotificationsTopic != "notifications" || cfg.NSQ.WorkerChannel != "workers" {
		t.Errorf("NSQ = %+v", cfg.NSQ)
	}
	if cfg.Worker.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d", cfg.Worker.MaxAttempts)
	}
	if cfg.Resolver.UserCacheTTL != time.Hour {
		t.Errorf("UserCacheTTL = %v", cfg.Resolver.UserCacheTTL)
	}
	if cfg.Resolver.FallbackAdminID != "admin-001" {
		t.Errorf("FallbackAdminID = %q", cfg.Resolver.FallbackAdminID)
	}
	if cfg.Janitor.RetentionDays != 90 {
		t.Errorf("RetentionDays = %d", cfg.Janitor.RetentionDays)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "notify_test")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("WHATSAPP_ENABLED", "false")
	t.Setenv("USER_CACHE_TTL", "30m")

	cfg := FromEnv()
	if cfg.DB.Host != "db.internal" || cfg.DB.Name != "notify_test" {
		t.Errorf("DB = %+v", cfg.DB)
	}
	if cfg.Worker.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d", cfg.Worker.MaxAttempts)
	}
	if cfg.WhatsApp.Enabled {
		t.Error("WhatsApp should be disabled")
	}
	if cfg.Resolver.UserCacheTTL != 30*time.Minute {
		t.Errorf("UserCacheTTL = %v", cfg.Resolver.UserCacheTTL)
	}
}

func TestDSN(t *testing.T) {
	cfg := Config{DB: DB{User: "u", Pass: "p", Host: "h", Port: "5432", Name: "n"}}
	want := "postgres://u:p@h:5432/n?sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}

func TestParseBackoffSchedule(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []time.Duration
	}{
		{
			name: "custom schedule",
			in:   "2s,30s,5m",
			want: []time.Duration{2 * time.Second, 30 * time.Second, 5 * time.Minute},
		},
		{
			name: "empty falls back to defaults",
			in:   "",
			want: []time.Duration{time.Second, 4 * time.Second, 16 * time.Second, time.Minute, 4 * time.Minute, 10 * time.Minute},
		},
		{
			name: "garbage falls back to defaults",
			in:   "not,a,schedule",
			want: []time.Duration{time.Second, 4 * time.Second, 16 * time.Second, time.Minute, 4 * time.Minute, 10 * time.Minute},
		},
		{
			name: "partial garbage keeps valid entries",
			in:   "1s,bogus,2s",
			want: []time.Duration{time.Second, 2 * time.Second},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseBackoffSchedule(tc.in)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("got %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}
