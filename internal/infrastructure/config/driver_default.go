//go:build !rpi

package config

// DefaultDriver is the actuator used when gpio.driver is not set.
// Untagged builds are for development hosts without the relay attached.
const DefaultDriver = DriverNoOp
