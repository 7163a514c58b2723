// Copyright (c) 2025 The Tidal developers
//
// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/tidalprotocol/tidal/tidal"
)

// Config overrides protocol delay parameters. All fields are optional;
// a missing file keeps the defaults.
type Config struct {
	AllocationDelay   *uint32 `yaml:"allocationDelay"`
	DeallocationDelay *uint32 `yaml:"deallocationDelay"`
	WithdrawalDelay   *uint32 `yaml:"withdrawalDelay"`
}

func loadConfig(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, "config.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, nil
		}
		return nil, errors.Wrap(err, "failed to read config")
	}
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to parse config")
	}
	return &config, nil
}

func (c *Config) apply() {
	if c.AllocationDelay != nil {
		tidal.SetAllocationDelay(*c.AllocationDelay)
	}
	if c.DeallocationDelay != nil {
		tidal.SetDeallocationDelay(*c.DeallocationDelay)
	}
	if c.WithdrawalDelay != nil {
		tidal.SetWithdrawalDelay(*c.WithdrawalDelay)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tidal")
}
