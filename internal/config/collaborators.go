package config

import (
	"github.com/aretw0/tendril/pkg/adapters/process"
	"github.com/aretw0/tendril/pkg/ports"
)

// OpenCompletion returns the configured completion command, or nil when none is set.
func (c Config) OpenCompletion() (ports.CompletionService, error) {
	if !c.Completion.Enabled() {
		return nil, nil
	}
	return process.NewCompletion(c.Completion)
}

// OpenSaver returns the configured saver command, or nil when none is set.
func (c Config) OpenSaver() (ports.ModelSaver, error) {
	if !c.Saver.Enabled() {
		return nil, nil
	}
	return process.NewSaver(c.Saver)
}
