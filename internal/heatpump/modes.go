package heatpump

import (
	"fmt"

	"github.com/mhartig/idmbridge/internal/registers"
)

// HVACMode is the climate-facing operating mode.
type HVACMode int

const (
	HVACUnknown HVACMode = iota
	HVACOff
	HVACHeat
	HVACCool
	HVACAuto
)

func (m HVACMode) Valid() bool {
	return m == HVACOff || m == HVACHeat || m == HVACCool || m == HVACAuto
}

func (m HVACMode) String() string {
	switch m {
	case HVACOff:
		return "off"
	case HVACHeat:
		return "heat"
	case HVACCool:
		return "cool"
	case HVACAuto:
		return "auto"
	default:
		return "unknown"
	}
}

func ParseHVACMode(s string) (HVACMode, error) {
	switch s {
	case "off":
		return HVACOff, nil
	case "heat":
		return HVACHeat, nil
	case "cool":
		return HVACCool, nil
	case "auto":
		return HVACAuto, nil
	default:
		return HVACUnknown, fmt.Errorf("%w: %q", ErrUnsupportedMode, s)
	}
}

// System mode raw codes the mode mapping cares about.
const (
	sysStandby            = 0
	sysAutomatic          = 1
	sysAway               = 2
	sysDHWOnly            = 4
	sysHeatingCoolingOnly = 5
)

// Heat pump operating codes (register 1090).
const (
	actOff     = 0
	actHeating = 1
	actCooling = 2
)

// hvacModeOf derives the climate mode from the system-mode register, using
// the heat-pump mode to disambiguate heating/cooling-only operation. Away
// is still automatic operation with a reduced profile.
func hvacModeOf(system, action registers.Value) HVACMode {
	if !system.Valid {
		return HVACUnknown
	}
	switch system.Uint16() {
	case sysStandby, sysDHWOnly:
		return HVACOff
	case sysAutomatic, sysAway:
		return HVACAuto
	case sysHeatingCoolingOnly:
		if action.Valid {
			switch action.Uint16() {
			case actHeating:
				return HVACHeat
			case actCooling:
				return HVACCool
			}
		}
		return HVACAuto
	default:
		return HVACUnknown
	}
}

// systemModeFor maps a requested climate mode to the system-mode byte to
// write. Cooling requests on a heat-only unit are rejected before any
// network call.
func systemModeFor(m HVACMode, cooling bool) (uint16, error) {
	switch m {
	case HVACOff:
		return sysStandby, nil
	case HVACAuto:
		return sysAutomatic, nil
	case HVACHeat:
		return sysHeatingCoolingOnly, nil
	case HVACCool:
		if !cooling {
			return 0, fmt.Errorf("%w: cool on a heat-only unit", ErrUnsupportedMode)
		}
		return sysHeatingCoolingOnly, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedMode, m)
	}
}
