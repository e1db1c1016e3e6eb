package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MarketFeeBps != 250 {
		t.Fatalf("default fee: got %d want 250", cfg.MarketFeeBps)
	}
	if cfg.RecordSlotLimit != 3 {
		t.Fatalf("default slot limit: got %d want 3", cfg.RecordSlotLimit)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// Reloading reads the file back rather than recreating it.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.DataDir != cfg.DataDir {
		t.Fatalf("reload mismatch: %q vs %q", reloaded.DataDir, cfg.DataDir)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.toml")
	content := "MarketFeeBps = 1000\nMaxIndate = -5\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MarketFeeBps != 1000 {
		t.Fatalf("fee: got %d want 1000", cfg.MarketFeeBps)
	}
	if cfg.MaxIndate != 365*86_400 {
		t.Fatalf("max indate should default: got %d", cfg.MaxIndate)
	}
	if cfg.DataDir == "" {
		t.Fatalf("data dir should default")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market.toml")
	if err := os.WriteFile(path, []byte("MarketFeeBps = 10001\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for fee above denominator")
	}

	if err := os.WriteFile(path, []byte("MarketBeneficiary = \"0x1234\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("0x0101010101010101010101010101010101010101")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if addr[0] != 1 || addr[19] != 1 {
		t.Fatalf("unexpected address: %x", addr)
	}
	if _, err := ParseAddress("zz"); err == nil {
		t.Fatalf("expected error for non-hex input")
	}
}
