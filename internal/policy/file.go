package policy

import (
	"fmt"
	"os"

	"github.com/pyisolate/guard/pkg/domain"
	"gopkg.in/yaml.v3"
)

// File is the on-disk policy written by the isolation orchestrator.
type File struct {
	// AllowedPaths are exact paths; index order is file order.
	AllowedPaths []string `yaml:"allowed_paths"`

	// AllowedSyscalls feed the syscall table when the gate runs in enforce mode.
	AllowedSyscalls []string `yaml:"allowed_syscalls"`
}

// LoadFile reads and validates a policy file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	f, err := ParseFile(data)
	if err != nil {
		return nil, fmt.Errorf("policy file %s: %w", path, err)
	}
	return f, nil
}

// ParseFile decodes and validates policy YAML.
func ParseFile(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks capacity and that every path can be encoded into a slot.
func (f *File) Validate() error {
	if len(f.AllowedPaths) > domain.PolicySlots {
		return fmt.Errorf("%d allowed paths, capacity %d: %w",
			len(f.AllowedPaths), domain.PolicySlots, domain.ErrTooManyEntries)
	}
	for i, p := range f.AllowedPaths {
		if p == "" {
			return fmt.Errorf("allowed_paths[%d] is empty", i)
		}
		if _, err := domain.EncodePath(p); err != nil {
			return fmt.Errorf("allowed_paths[%d]: %w", i, err)
		}
	}
	if len(f.AllowedSyscalls) > domain.SyscallSlots {
		return fmt.Errorf("%d allowed syscalls, capacity %d: %w",
			len(f.AllowedSyscalls), domain.SyscallSlots, domain.ErrTooManyEntries)
	}
	return nil
}

// Apply rewrites the whole table from the file.
func (f *File) Apply(w Writer) error {
	return Replace(w, f.AllowedPaths)
}
