// Package config holds the guard's runtime configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pyisolate/guard/internal/hooks/resource"
	"github.com/pyisolate/guard/internal/hooks/syscallgate"
)

// Config is the top-level configuration.
type Config struct {
	LogLevel string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`

	// PolicyFile is applied to the policy map after load and on hot reload.
	PolicyFile string `yaml:"policy_file" json:"policy_file"`

	// PinPath is the bpffs directory maps are pinned under.
	PinPath string `yaml:"pin_path" json:"pin_path" validate:"required,startswith=/"`

	EventBufferSize int `yaml:"event_buffer_size" json:"event_buffer_size" validate:"min=1,max=1048576"`

	Hooks       HooksConfig       `yaml:"hooks" json:"hooks"`
	SyscallGate SyscallGateConfig `yaml:"syscall_gate" json:"syscall_gate"`
	Resource    resource.Config   `yaml:"resource" json:"resource" validate:"-"`
}

// HooksConfig selects which hooks are loaded and attached.
type HooksConfig struct {
	FileFilter  bool `yaml:"file_filter" json:"file_filter"`
	SyscallGate bool `yaml:"syscall_gate" json:"syscall_gate"`
	Resource    bool `yaml:"resource" json:"resource"`
	Harness     bool `yaml:"harness" json:"harness"`
}

// SyscallGateConfig configures the syscall gate.
type SyscallGateConfig struct {
	Mode syscallgate.Mode `yaml:"mode" json:"mode" validate:"oneof=passthrough enforce"`
}

// DefaultConfig returns a configuration with every hook enabled.
func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "info",
		PinPath:         "/sys/fs/bpf/pyisolate",
		EventBufferSize: 4096,
		Hooks: HooksConfig{
			FileFilter:  true,
			SyscallGate: true,
			Resource:    true,
			Harness:     true,
		},
		SyscallGate: SyscallGateConfig{Mode: syscallgate.ModePassthrough},
		Resource:    resource.DefaultConfig(),
	}
}

// SetDefaults fills zero values from DefaultConfig. Hook switches are left
// alone.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.PinPath == "" {
		c.PinPath = d.PinPath
	}
	if c.EventBufferSize == 0 {
		c.EventBufferSize = d.EventBufferSize
	}
	if c.SyscallGate.Mode == "" {
		c.SyscallGate.Mode = d.SyscallGate.Mode
	}
	c.Resource.SetDefaults()
}

// Load reads a YAML or JSON configuration file on top of DefaultConfig.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewConfigFileError("read_error", path,
			fmt.Sprintf("failed to read config file: %v", err),
			"check file permissions and ensure the file is readable")
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, config)
	default:
		err = yaml.Unmarshal(data, config)
	}
	if err != nil {
		return nil, NewConfigFileError("parse_error", path,
			fmt.Sprintf("failed to parse config: %v", err),
			"check the file syntax")
	}

	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
