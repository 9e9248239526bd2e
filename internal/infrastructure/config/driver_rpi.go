//go:build rpi

package config

// DefaultDriver is the actuator used when gpio.driver is not set.
// Builds tagged "rpi" target the relay hardware.
const DefaultDriver = DriverRPIO
