package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Addr != ":8080" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.DefaultBanLength != 1440 {
		t.Errorf("DefaultBanLength = %d", cfg.DefaultBanLength)
	}
	if !cfg.Reconnect.Enabled {
		t.Error("reconnect should default on")
	}
	if got, want := cfg.Reconnect.GraceWindow(), 25*time.Second; got != want {
		t.Errorf("GraceWindow() = %v, want %v", got, want)
	}
	if len(cfg.Colors) == 0 {
		t.Fatal("empty color palette")
	}
	for _, c := range cfg.Colors {
		if c == "pope" {
			t.Fatal("reserved color must not be in the palette")
		}
	}
	if cfg.Prefs.Public.RoomMax != cfg.Prefs.Private.RoomMax {
		t.Error("templates should start from the same capacity")
	}
	if cfg.Prefs.Private.GodWord != "" {
		t.Error("god word must default unset")
	}
}

func TestUpdateFrom(t *testing.T) {
	cfg := Default()
	cfg.UpdateFrom(Config{Addr: ":9090", LogLevel: "debug"})

	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q", cfg.LogLevel)
	}
	// Zero values must not clobber existing settings.
	if cfg.DefaultBanLength != 1440 {
		t.Errorf("DefaultBanLength = %d", cfg.DefaultBanLength)
	}
	if cfg.BanDBPath != "bans.db" {
		t.Errorf("BanDBPath = %q", cfg.BanDBPath)
	}
}

func TestLoadWritesDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, resolved, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if resolved != path {
		t.Fatalf("resolved path = %q, want %q", resolved, path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Addr != Default().Addr {
		t.Fatalf("Addr = %q after default write", cfg.Addr)
	}
	if cfg.Prefs.Public.CharLimit != Default().Prefs.Public.CharLimit {
		t.Fatalf("prefs lost in round-trip: %+v", cfg.Prefs.Public)
	}
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "addr: \":9999\"\nprefs:\n  public:\n    char_limit: 99\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if cfg.Prefs.Public.CharLimit != 99 {
		t.Errorf("CharLimit = %d", cfg.Prefs.Public.CharLimit)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Prefs.Public.NameLimit != 24 {
		t.Errorf("NameLimit = %d", cfg.Prefs.Public.NameLimit)
	}
	if cfg.DefaultBanLength != 1440 {
		t.Errorf("DefaultBanLength = %d", cfg.DefaultBanLength)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PARLOR_LOG_LEVEL", "debug")
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, _, err := Load(nil, path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want env override", cfg.LogLevel)
	}
}
