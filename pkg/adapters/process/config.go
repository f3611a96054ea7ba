package process

import (
	"time"

	"github.com/aretw0/tendril/pkg/domain"
)

// Config describes one trusted command. Only commands named in the host
// configuration are ever executed; conversation input reaches them on stdin
// and through TENDRIL_* environment variables, never as arguments.
type Config struct {
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args" json:"args"`
	Environment map[string]string `yaml:"env" json:"env"`
	Dir         string            `yaml:"dir" json:"dir"`
	Timeout     time.Duration     `yaml:"timeout" json:"timeout"`
}

// Enabled reports whether a command is configured.
func (c Config) Enabled() bool {
	return c.Command != ""
}

// Validate checks the command and timeout.
func (c Config) Validate(name string) error {
	if c.Command == "" {
		return domain.NewConfigError(name, "command is required")
	}
	if c.Timeout < 0 {
		return domain.NewConfigError(name, "negative timeout")
	}
	return nil
}
