package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config carries the operator-tunable parameters of a market node.
type Config struct {
	DataDir           string `toml:"DataDir"`
	MetricsAddress    string `toml:"MetricsAddress"`
	MarketAddress     string `toml:"MarketAddress"`
	VaultAddress      string `toml:"VaultAddress"`
	MarketBeneficiary string `toml:"MarketBeneficiary"`
	OwnerAddress      string `toml:"OwnerAddress"`
	AdminAddress      string `toml:"AdminAddress"`
	ConfigSuperAdmin  string `toml:"ConfigSuperAdmin"`
	MarketFeeBps      uint32 `toml:"MarketFeeBps"`
	MaxIndate         int64  `toml:"MaxIndate"`
	RecordSlotLimit   int    `toml:"RecordSlotLimit"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./market-data"
	}
	if cfg.MaxIndate <= 0 {
		cfg.MaxIndate = 365 * 86_400
	}
	if cfg.RecordSlotLimit <= 0 {
		cfg.RecordSlotLimit = 3
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9464"
	}
}

// Validate rejects configurations the engines would refuse at runtime.
func (cfg *Config) Validate() error {
	if cfg.MarketFeeBps > 10_000 {
		return fmt.Errorf("config: MarketFeeBps %d exceeds 10000", cfg.MarketFeeBps)
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"MarketAddress", cfg.MarketAddress},
		{"VaultAddress", cfg.VaultAddress},
		{"MarketBeneficiary", cfg.MarketBeneficiary},
		{"OwnerAddress", cfg.OwnerAddress},
		{"AdminAddress", cfg.AdminAddress},
		{"ConfigSuperAdmin", cfg.ConfigSuperAdmin},
	} {
		if field.value == "" {
			continue
		}
		if _, err := ParseAddress(field.value); err != nil {
			return fmt.Errorf("config: %s: %w", field.name, err)
		}
	}
	return nil
}

// ParseAddress decodes a 0x-prefixed 20-byte hex address.
func ParseAddress(s string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("invalid address %q: want 20 bytes, got %d", s, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:         "./market-data",
		MarketFeeBps:    250,
		MaxIndate:       365 * 86_400,
		RecordSlotLimit: 3,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
