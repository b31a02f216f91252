// Package config loads runtime settings from a YAML file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Device struct {
		Type      string `yaml:"type"`      // "cpu" or "cuda"
		Threads   int    `yaml:"threads"`   // 0 means all cores
		MaxMemory string `yaml:"maxMemory"` // e.g. 4GB, 512MB; empty means unlimited
	} `yaml:"device"`
	Logger struct {
		Verbosity string `yaml:"verbosity"`
	} `yaml:"logger"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}

	return &config, nil
}

// MaxMemoryBytes parses the device memory cap. Accepts a plain byte
// count or a GB/MB/KB suffix.
func (c *Config) MaxMemoryBytes() int64 {
	return ParseBytes(c.Device.MaxMemory)
}

// ParseBytes parses strings like "4GB", "100MB", "1024". Empty or "0"
// means no limit.
func ParseBytes(s string) int64 {
	if s == "" || s == "0" {
		return 0
	}
	var val int64
	var unit string
	fmt.Sscanf(s, "%d%s", &val, &unit)

	switch unit {
	case "GB", "G":
		return val * 1024 * 1024 * 1024
	case "MB", "M":
		return val * 1024 * 1024
	case "KB", "K":
		return val * 1024
	default:
		return val
	}
}
