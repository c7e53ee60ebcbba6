package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// TokenConfig declares a settlement asset seeded at first boot.
type TokenConfig struct {
	Symbol   string `toml:"Symbol"`
	Name     string `toml:"Name"`
	Decimals uint8  `toml:"Decimals"`
}

// AccountConfig seeds a balance at first boot.
type AccountConfig struct {
	Address string `toml:"Address"`
	Token   string `toml:"Token"`
	Amount  string `toml:"Amount"`
}

// ConstantProductPoolConfig seeds a two-asset x*y=k venue.
type ConstantProductPoolConfig struct {
	ID             string `toml:"ID"`
	TokenA         string `toml:"TokenA"`
	TokenB         string `toml:"TokenB"`
	ReserveA       string `toml:"ReserveA"`
	ReserveB       string `toml:"ReserveB"`
	FeeNumerator   uint64 `toml:"FeeNumerator"`
	FeeDenominator uint64 `toml:"FeeDenominator"`
}

// StablePoolConfig seeds an indexed-coin stable-swap venue.
type StablePoolConfig struct {
	ID             string   `toml:"ID"`
	Coins          []string `toml:"Coins"`
	Reserves       []string `toml:"Reserves"`
	Amplification  uint64   `toml:"Amplification"`
	FeeNumerator   uint64   `toml:"FeeNumerator"`
	FeeDenominator uint64   `toml:"FeeDenominator"`
}

// PriceConfig seeds a manual oracle quote at boot.
type PriceConfig struct {
	Symbol string `toml:"Symbol"`
	Rate   string `toml:"Rate"`
}

type Config struct {
	ListenAddress  string `toml:"ListenAddress"`
	MetricsAddress string `toml:"MetricsAddress"`
	DataDir        string `toml:"DataDir"`
	Env            string `toml:"Env"`
	RPCAuthToken   string `toml:"RPCAuthToken"`

	Custody  string `toml:"Custody"`
	Treasury string `toml:"Treasury"`
	// FeePpm is the settlement fee in parts per million of the value gain.
	FeePpm uint64 `toml:"FeePpm"`
	// HopDeadlineSeconds bounds each routed hop; zero disables the bound.
	HopDeadlineSeconds uint64 `toml:"HopDeadlineSeconds"`

	OracleMaxAgeSeconds   uint64 `toml:"OracleMaxAgeSeconds"`
	OracleMinObservations int    `toml:"OracleMinObservations"`

	Sellers              []string                    `toml:"Sellers"`
	Tokens               []TokenConfig               `toml:"Tokens"`
	Accounts             []AccountConfig             `toml:"Accounts"`
	ConstantProductPools []ConstantProductPoolConfig `toml:"ConstantProductPools"`
	StablePools          []StablePoolConfig          `toml:"StablePools"`
	Prices               []PriceConfig               `toml:"Prices"`
}

// Load reads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8080"
	}
	if strings.TrimSpace(cfg.MetricsAddress) == "" {
		cfg.MetricsAddress = ":9091"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./settle-data"
	}
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "local"
	}
	if cfg.OracleMinObservations < 1 {
		cfg.OracleMinObservations = 1
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Treasury) == "" {
		return fmt.Errorf("config: Treasury address required")
	}
	if cfg.FeePpm > 1_000_000 {
		return fmt.Errorf("config: FeePpm %d exceeds one million", cfg.FeePpm)
	}
	for _, pool := range cfg.ConstantProductPools {
		if pool.FeeDenominator == 0 {
			return fmt.Errorf("config: pool %s has zero fee denominator", pool.ID)
		}
	}
	for _, pool := range cfg.StablePools {
		if len(pool.Coins) != len(pool.Reserves) {
			return fmt.Errorf("config: pool %s coins and reserves differ", pool.ID)
		}
		if pool.FeeDenominator == 0 {
			return fmt.Errorf("config: pool %s has zero fee denominator", pool.ID)
		}
	}
	return nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:         ":8080",
		MetricsAddress:        ":9091",
		DataDir:               "./settle-data",
		Env:                   "local",
		Treasury:              "0x0000000000000000000000000000000000000001",
		Custody:               "0x0000000000000000000000000000000000000002",
		FeePpm:                10_000,
		OracleMaxAgeSeconds:   300,
		OracleMinObservations: 1,
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	return toml.NewEncoder(file).Encode(cfg)
}
