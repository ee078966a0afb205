package resource

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config tunes the resource accountant and its reader.
type Config struct {
	// SamplePeriod is the CPU clock sampling period. Every CPU sample is
	// charged this much CPU time.
	SamplePeriod time.Duration `yaml:"sample_period" json:"sample_period" validate:"min=1us"`

	// TableSize is the number of cgroups tracked at once, rounded up to a
	// power of two.
	TableSize int `yaml:"table_size" json:"table_size" validate:"min=1,max=1048576"`

	// RingBufferSize is the size in bytes of the kernel ring buffer.
	RingBufferSize int `yaml:"ring_buffer_size" json:"ring_buffer_size" validate:"min=4096"`

	// DropPollInterval controls how often kernel-side drops are folded into
	// the reader's metrics.
	DropPollInterval time.Duration `yaml:"drop_poll_interval" json:"drop_poll_interval" validate:"gt=0"`
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		SamplePeriod:     10 * time.Millisecond,
		TableSize:        1024,
		RingBufferSize:   256 * 1024,
		DropPollInterval: 5 * time.Second,
	}
}

// SetDefaults fills zero fields.
func (c *Config) SetDefaults() {
	d := DefaultConfig()
	if c.SamplePeriod == 0 {
		c.SamplePeriod = d.SamplePeriod
	}
	if c.TableSize == 0 {
		c.TableSize = d.TableSize
	}
	if c.RingBufferSize == 0 {
		c.RingBufferSize = d.RingBufferSize
	}
	if c.DropPollInterval == 0 {
		c.DropPollInterval = d.DropPollInterval
	}
}

var validate = validator.New()

// Validate checks the configuration. Field range failures are returned as
// validator.ValidationErrors.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	// ring buffer size must be a power-of-two multiple of the page size
	if c.RingBufferSize&(c.RingBufferSize-1) != 0 {
		return fmt.Errorf("ring_buffer_size must be a power of two, got %d", c.RingBufferSize)
	}
	return nil
}
