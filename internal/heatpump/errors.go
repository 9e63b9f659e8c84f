package heatpump

import "errors"

var (
	ErrUnsupportedMode    = errors.New("unsupported hvac mode")
	ErrDeviceRejected     = errors.New("device rejected command")
	ErrSetpointOutOfRange = errors.New("setpoint out of range")
	ErrBoostDuration      = errors.New("invalid boost duration")
	ErrNotASwitch         = errors.New("quantity is not a switch")
	ErrNotANumber         = errors.New("quantity is not a writable number")
	ErrValueUnknown       = errors.New("last known value unavailable")
)
