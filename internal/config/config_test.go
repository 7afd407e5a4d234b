package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"
)

func TestLoadCreatesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WeekStart != "sunday" || cfg.DefaultView != "week" || cfg.Listen == "" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
}

func TestLoadNormalizesPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`timezone: Europe/Berlin
week_start: Monday
default_view: fortnight
ics:
  - name: Team Calendar
    url: https://example.com/team.ics
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.WeekStart != "monday" {
		t.Fatalf("week_start=%q", cfg.WeekStart)
	}
	if cfg.DefaultView != "week" {
		t.Fatalf("unknown view should fall back to week, got %q", cfg.DefaultView)
	}
	if cfg.RefreshCron == "" || cfg.Database == "" || cfg.CacheDir == "" {
		t.Fatalf("missing defaults: %+v", cfg)
	}
	if cfg.ICS[0].ID != "team-calendar" {
		t.Fatalf("id=%q", cfg.ICS[0].ID)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Fatalf("location=%s", cfg.Location())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad timezone", Config{Timezone: "Mars/Base"}},
		{"missing url", Config{Timezone: "UTC", ICS: []ICSConfig{{ID: "a"}}}},
		{"reserved id", Config{Timezone: "UTC", ICS: []ICSConfig{{ID: "import", URL: "u"}}}},
		{"duplicate id", Config{Timezone: "UTC", ICS: []ICSConfig{{ID: "a", URL: "u"}, {ID: "a", URL: "v"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := DefaultConfig()
	cfg.BasicAuth = &BasicAuthConfig{Username: "u", Password: "p"}
	if err := cfg.Save(path); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.BasicAuth == nil || got.BasicAuth.Username != "u" {
		t.Fatalf("basic auth lost: %+v", got.BasicAuth)
	}
}
