// Package modes provides the mode dispatcher for the service-admin binary.
// The binary can run in different modes:
// - server: runs the admin server (registry, status polling, notifications, API)
// - instance: runs a monitored instance that registers with admin servers
// - all: runs both, the instance registering with the local admin server
package modes

import (
	"context"
	"fmt"
	"sort"
)

// Mode represents an operating mode of the binary
type Mode string

const (
	ModeServer   Mode = "server"
	ModeInstance Mode = "instance"
	ModeAll      Mode = "all"
)

// ValidModes lists all valid operating modes
var ValidModes = []Mode{ModeServer, ModeInstance, ModeAll}

// IsValid checks if a mode string is valid
func (m Mode) IsValid() bool {
	for _, valid := range ValidModes {
		if m == valid {
			return true
		}
	}
	return false
}

// ParseMode parses a mode string into a Mode, returning an error if invalid
func ParseMode(s string) (Mode, error) {
	mode := Mode(s)
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid mode %q, valid modes: %v", s, ValidModes)
	}
	return mode, nil
}

// Runner is the interface for mode-specific runners
type Runner interface {
	// Name returns the mode name
	Name() Mode

	// Run starts the mode's services and blocks until shutdown
	Run(ctx context.Context) error

	// Shutdown gracefully shuts down the mode's services
	Shutdown(ctx context.Context) error
}

// RunnerFactory creates a Runner for the given mode
type RunnerFactory func(cfg interface{}) (Runner, error)

// registry of runner factories
var runners = make(map[Mode]RunnerFactory)

// Register registers a runner factory for a mode
func Register(mode Mode, factory RunnerFactory) {
	runners[mode] = factory
}

// NewRunner creates a runner for the given mode
func NewRunner(mode Mode, cfg interface{}) (Runner, error) {
	factory, ok := runners[mode]
	if !ok {
		return nil, fmt.Errorf("no runner registered for mode %q", mode)
	}
	return factory(cfg)
}

// ListRegistered returns the registered modes in sorted order
func ListRegistered() []Mode {
	modes := make([]Mode, 0, len(runners))
	for m := range runners {
		modes = append(modes, m)
	}
	sort.Slice(modes, func(i, j int) bool { return modes[i] < modes[j] })
	return modes
}
