package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Parse fills the provided struct from environment variables. The struct
// should use `env` tags to define mappings.
func Parse(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
