// Package config centralizes runtime configuration for the cfl node. It reads
// a JSON file, fills unset fields with defaults and finally applies CFL_*
// environment overrides (a .env file in the working directory is loaded
// first). Production operators place the file at /etc/cfl/config.json or point
// CONFIG_FILE elsewhere.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultPath is used when CONFIG_FILE is unset.
const DefaultPath = "/etc/cfl/config.json"

// Config holds configurable options for the cfl node. SpawnTendermint starts
// `tendermint node` as a child process; MDNS announces the gateway on the
// local network.
type Config struct {
	AppEnv          string `json:"app_env"`
	DataDir         string `json:"data_dir"`
	KeyFile         string `json:"key_file"`
	APIPort         int    `json:"api_port"`
	ABCIAddress     string `json:"abci_address"`
	RPCAddress      string `json:"rpc_address"`
	TendermintHome  string `json:"tendermint_home"`
	SpawnTendermint bool   `json:"spawn_tendermint"`
	MDNS            bool   `json:"mdns"`
	FeeRateBP       uint64 `json:"fee_rate_bp"`
	Admin           string `json:"admin"`
	SnapshotKeep    int    `json:"snapshot_keep"`
	BackupEvery     int64  `json:"backup_every"`
	MaxBackups      int    `json:"max_backups"`
	LogBufferSize   int    `json:"log_buffer_size"`
}

var cfg *Config

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		AppEnv:        "production",
		DataDir:       "data",
		KeyFile:       "cfl_key.pem",
		APIPort:       8080,
		ABCIAddress:   "unix://cfl.sock",
		RPCAddress:    "http://localhost:26657",
		FeeRateBP:     500,
		SnapshotKeep:  100,
		BackupEvery:   1000,
		MaxBackups:    20,
		LogBufferSize: 500,
	}
}

// LoadConfig reads path (if any), merges defaults and applies environment
// overrides. A missing file is not an error; a malformed one is.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load(".env", ".env.local")

	c := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			var fromFile Config
			if err := json.Unmarshal(b, &fromFile); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
			merge(c, &fromFile)
		}
	}

	if err := applyEnv(c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg = c
	return cfg, nil
}

// merge copies every non-zero field of src into dst.
func merge(dst, src *Config) {
	if src.AppEnv != "" {
		dst.AppEnv = src.AppEnv
	}
	if src.DataDir != "" {
		dst.DataDir = src.DataDir
	}
	if src.KeyFile != "" {
		dst.KeyFile = src.KeyFile
	}
	if src.APIPort != 0 {
		dst.APIPort = src.APIPort
	}
	if src.ABCIAddress != "" {
		dst.ABCIAddress = src.ABCIAddress
	}
	if src.RPCAddress != "" {
		dst.RPCAddress = src.RPCAddress
	}
	if src.TendermintHome != "" {
		dst.TendermintHome = src.TendermintHome
	}
	if src.SpawnTendermint {
		dst.SpawnTendermint = true
	}
	if src.MDNS {
		dst.MDNS = true
	}
	if src.FeeRateBP != 0 {
		dst.FeeRateBP = src.FeeRateBP
	}
	if src.Admin != "" {
		dst.Admin = src.Admin
	}
	if src.SnapshotKeep != 0 {
		dst.SnapshotKeep = src.SnapshotKeep
	}
	if src.BackupEvery != 0 {
		dst.BackupEvery = src.BackupEvery
	}
	if src.MaxBackups != 0 {
		dst.MaxBackups = src.MaxBackups
	}
	if src.LogBufferSize != 0 {
		dst.LogBufferSize = src.LogBufferSize
	}
}

func applyEnv(c *Config) error {
	if v := os.Getenv("CFL_APP_ENV"); v != "" {
		c.AppEnv = v
	}
	if v := os.Getenv("CFL_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("CFL_ABCI_ADDRESS"); v != "" {
		c.ABCIAddress = v
	}
	if v := os.Getenv("CFL_RPC_ADDRESS"); v != "" {
		c.RPCAddress = v
	}
	if v := os.Getenv("CFL_ADMIN"); v != "" {
		c.Admin = v
	}
	if v := os.Getenv("CFL_MDNS"); v != "" {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CFL_MDNS: %w", err)
		}
		c.MDNS = on
	}
	if v := os.Getenv("CFL_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("CFL_API_PORT: %w", err)
		}
		c.APIPort = port
	}
	if v := os.Getenv("CFL_FEE_RATE_BP"); v != "" {
		bp, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("CFL_FEE_RATE_BP: %w", err)
		}
		c.FeeRateBP = bp
	}
	return nil
}

// Validate rejects values the node cannot start with.
func (c *Config) Validate() error {
	if c.APIPort <= 0 || c.APIPort > 65535 {
		return fmt.Errorf("api_port %d out of range", c.APIPort)
	}
	if c.FeeRateBP > 10000 {
		return fmt.Errorf("fee_rate_bp %d exceeds 10000", c.FeeRateBP)
	}
	if c.ABCIAddress == "" {
		return errors.New("abci_address is required")
	}
	return nil
}

// DBPath is the snapshot database inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "ledger.db")
}

// Get returns the loaded configuration, or defaults when LoadConfig has not
// been called.
func Get() *Config {
	if cfg == nil {
		return Defaults()
	}
	return cfg
}
