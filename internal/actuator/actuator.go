package actuator

import (
	"fmt"

	"github.com/nerrad567/garage-relay/internal/infrastructure/config"
)

// maxPin is the highest BCM pin on the 40-pin header.
const maxPin = 27

// OptionsFromConfig maps the gpio config section onto Options.
func OptionsFromConfig(cfg config.GPIOConfig) Options {
	return Options{
		Pin:             cfg.Pin,
		Hold:            cfg.Hold(),
		ActiveLow:       cfg.ActiveLow,
		RestoreInactive: cfg.RestoreInactive,
		RejectOverlap:   cfg.Overlap == config.OverlapReject,
	}
}

// New builds the actuator named by cfg.Driver. It does not acquire the line.
func New(cfg config.GPIOConfig) (Actuator, error) {
	opts := OptionsFromConfig(cfg)

	switch cfg.Driver {
	case config.DriverNoOp:
		return NewNoOp(opts), nil
	case config.DriverFake:
		return NewDriver(NewFakeBackend(), opts)
	case config.DriverRPIO:
		return NewDriver(NewRPIO(), opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
