package registers

// Enum maps a byte-valued register to a closed set of named states.
type Enum struct {
	byCode map[uint16]string
	byName map[string]uint16
}

// Unknown is the decoded name for a raw code outside the closed set.
const Unknown = "unknown"

func NewEnum(codes map[uint16]string) *Enum {
	e := &Enum{
		byCode: make(map[uint16]string, len(codes)),
		byName: make(map[string]uint16, len(codes)),
	}
	for c, n := range codes {
		e.byCode[c] = n
		e.byName[n] = c
	}
	return e
}

// Name decodes a raw code, falling back to Unknown.
func (e *Enum) Name(code uint16) string {
	if n, ok := e.byCode[code]; ok {
		return n
	}
	return Unknown
}

// Code encodes a state name.
func (e *Enum) Code(name string) (uint16, bool) {
	c, ok := e.byName[name]
	return c, ok
}

// System mode register states (register 1005).
var SystemModes = NewEnum(map[uint16]string{
	0: "standby",
	1: "automatic",
	2: "away",
	4: "dhw_only",
	5: "heating_cooling_only",
})

// Heat pump operating states (register 1090).
var HeatPumpModes = NewEnum(map[uint16]string{
	0: "off",
	1: "heating",
	2: "cooling",
	4: "dhw",
	8: "defrosting",
})

// Heating circuit operating modes (register 1393).
var HeatingCircuitModes = NewEnum(map[uint16]string{
	0: "off",
	1: "schedule",
	2: "normal",
	3: "eco",
	4: "manual_heating",
	5: "manual_cooling",
})
