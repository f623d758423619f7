package commands

import (
	"github.com/mosaicnetworks/hearsay/src/config"
)

// CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Hearsay config.Config `mapstructure:",squash"`
	LogFile string        `mapstructure:"log-file"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Hearsay: *config.NewDefaultConfig(),
	}
}
