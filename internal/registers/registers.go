// Package registers holds the static iDM Navigator 2.0 Modbus register
// table: one descriptor per named quantity, plus the raw<->semantic value
// codecs for the data types the device uses.
package registers

import (
	"fmt"
	"math"
	"sort"
)

// Quantity names a single value on the device. The table is the only place
// a quantity is bound to an address.
type Quantity string

const (
	OutsideTemp           Quantity = "outside_temp"
	OutsideTempAveraged   Quantity = "outside_temp_averaged"
	InternalMessage       Quantity = "internal_message"
	SystemMode            Quantity = "system_mode"
	SmartGridStatus       Quantity = "smart_grid_status"
	BufferTemp            Quantity = "buffer_temp"
	CoolingBufferTemp     Quantity = "cooling_buffer_temp"
	DHWTempBottom         Quantity = "dhw_temp_bottom"
	DHWTempTop            Quantity = "dhw_temp_top"
	DHWOutletTemp         Quantity = "dhw_outlet_temp"
	DHWTargetTemp         Quantity = "dhw_target_temp"
	HeatPumpFlowTemp      Quantity = "heat_pump_flow_temp"
	HeatPumpReturnTemp    Quantity = "heat_pump_return_temp"
	SourceInletTemp       Quantity = "source_inlet_temp"
	SourceOutletTemp      Quantity = "source_outlet_temp"
	AirIntakeTemp         Quantity = "air_intake_temp"
	HeatPumpMode          Quantity = "heat_pump_mode"
	HeatingDemand         Quantity = "heating_demand"
	CoolingDemand         Quantity = "cooling_demand"
	DHWDemand             Quantity = "dhw_demand"
	EVUContact            Quantity = "evu_contact"
	ErrorState            Quantity = "error_state"
	Compressor1Status     Quantity = "compressor1_status"
	Compressor2Status     Quantity = "compressor2_status"
	LoadingPumpStatus     Quantity = "loading_pump_status"
	CircuitTemp           Quantity = "heating_circuit_temp"
	CircuitRoomTemp       Quantity = "heating_circuit_room_temp"
	CircuitTargetTemp     Quantity = "heating_circuit_target_temp"
	Humidity              Quantity = "humidity"
	HeatingCircuitMode    Quantity = "heating_circuit_mode"
	TargetTempHeating     Quantity = "target_temp_heating"
	TargetTempCooling     Quantity = "target_temp_cooling"
	EnergyHeating         Quantity = "energy_heating"
	EnergyTotal           Quantity = "energy_total"
	EnergyCooling         Quantity = "energy_cooling"
	EnergyDHW             Quantity = "energy_dhw"
	CurrentPower          Quantity = "current_power"
	PowerConsumption      Quantity = "heat_pump_power_consumption"
	ThermalOutput         Quantity = "thermal_output"
)

// DataType is the wire representation of a register.
type DataType int

const (
	TypeFloat32 DataType = iota // two registers, low word first
	TypeWord                    // one register, unsigned
	TypeUChar                   // one register, low byte significant
	TypeBool                    // one register, 0 or 1
)

func (t DataType) String() string {
	switch t {
	case TypeFloat32:
		return "float32"
	case TypeWord:
		return "word"
	case TypeUChar:
		return "uchar"
	case TypeBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Access is the register access mode.
type Access int

const (
	ReadOnly Access = iota
	ReadWrite
)

// Descriptor is one immutable register-map entry.
type Descriptor struct {
	Quantity Quantity
	Address  uint16
	Type     DataType
	Access   Access

	// Optional legal range. Used for write validation and for spotting
	// "not available" sentinels on decode.
	Min, Max float64
	HasRange bool

	Unit string
	Enum *Enum
}

// Width is the number of 16-bit registers the entry occupies.
func (d Descriptor) Width() uint16 {
	if d.Type == TypeFloat32 {
		return 2
	}
	return 1
}

// Value is a decoded register value. Valid is false when the device
// signalled "not available" (sentinel raw values, NaN floats).
type Value struct {
	Type  DataType
	Num   float64
	Flag  bool
	Valid bool
}

func FloatValue(v float64) Value { return Value{Type: TypeFloat32, Num: v, Valid: true} }
func WordValue(v uint16) Value   { return Value{Type: TypeWord, Num: float64(v), Valid: true} }
func UCharValue(v uint8) Value   { return Value{Type: TypeUChar, Num: float64(v), Valid: true} }
func BoolValue(v bool) Value     { return Value{Type: TypeBool, Flag: v, Valid: true} }

// Uint16 returns the value as a raw word. Bool maps to 0/1.
func (v Value) Uint16() uint16 {
	if v.Type == TypeBool {
		if v.Flag {
			return 1
		}
		return 0
	}
	return uint16(v.Num)
}

// Values is one poll cycle's decoded snapshot content.
type Values map[Quantity]Value

// Clone returns an independent copy.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	for k, val := range v {
		out[k] = val
	}
	return out
}

// Table is the process-wide register map.
type Table struct {
	byName  map[Quantity]Descriptor
	ordered []Descriptor
}

// New validates the descriptors (no duplicate names, no address overlap)
// and returns an address-ordered table.
func New(descs []Descriptor) (*Table, error) {
	t := &Table{byName: make(map[Quantity]Descriptor, len(descs))}
	for _, d := range descs {
		if _, dup := t.byName[d.Quantity]; dup {
			return nil, fmt.Errorf("registers: duplicate quantity %q", d.Quantity)
		}
		t.byName[d.Quantity] = d
		t.ordered = append(t.ordered, d)
	}
	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i].Address < t.ordered[j].Address })
	for i := 1; i < len(t.ordered); i++ {
		prev, cur := t.ordered[i-1], t.ordered[i]
		if prev.Address+prev.Width() > cur.Address {
			return nil, fmt.Errorf("registers: %q (addr %d, width %d) overlaps %q (addr %d)",
				prev.Quantity, prev.Address, prev.Width(), cur.Quantity, cur.Address)
		}
	}
	return t, nil
}

// Describe looks up a quantity's descriptor.
func (t *Table) Describe(q Quantity) (Descriptor, error) {
	d, ok := t.byName[q]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownQuantity, q)
	}
	return d, nil
}

// All returns the descriptors in address order. Callers must not mutate
// the returned slice.
func (t *Table) All() []Descriptor {
	return t.ordered
}

// Decode turns raw registers into a Value. regs must hold Width() words.
// Sentinel raw values decode to an invalid Value rather than an error.
func Decode(d Descriptor, regs []uint16) (Value, error) {
	if len(regs) != int(d.Width()) {
		return Value{}, fmt.Errorf("registers: decode %q: want %d registers, got %d", d.Quantity, d.Width(), len(regs))
	}
	switch d.Type {
	case TypeFloat32:
		bits := uint32(regs[1])<<16 | uint32(regs[0])
		f := float64(math.Float32frombits(bits))
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{Type: TypeFloat32}, nil
		}
		if f == -1 && d.HasRange && d.Min >= 0 {
			return Value{Type: TypeFloat32}, nil
		}
		return FloatValue(f), nil
	case TypeWord:
		if regs[0] == 0xFFFF && d.HasRange && d.Min >= 0 {
			return Value{Type: TypeWord}, nil
		}
		return WordValue(regs[0]), nil
	case TypeUChar:
		b := uint8(regs[0] & 0xFF)
		if b == 0xFF && d.HasRange {
			return Value{Type: TypeUChar}, nil
		}
		return UCharValue(b), nil
	case TypeBool:
		return BoolValue(regs[0] != 0), nil
	default:
		return Value{}, fmt.Errorf("registers: decode %q: unhandled type %v", d.Quantity, d.Type)
	}
}

// Encode turns a Value into raw registers for a write. The value must be
// representable in the descriptor's type.
func Encode(d Descriptor, v Value) ([]uint16, error) {
	switch d.Type {
	case TypeFloat32:
		bits := math.Float32bits(float32(v.Num))
		return []uint16{uint16(bits & 0xFFFF), uint16(bits >> 16)}, nil
	case TypeWord:
		if v.Num < 0 || v.Num > math.MaxUint16 {
			return nil, fmt.Errorf("registers: encode %q: %v out of word range", d.Quantity, v.Num)
		}
		return []uint16{uint16(v.Num)}, nil
	case TypeUChar:
		if v.Num < 0 || v.Num > 0xFF {
			return nil, fmt.Errorf("registers: encode %q: %v out of uchar range", d.Quantity, v.Num)
		}
		return []uint16{uint16(v.Num)}, nil
	case TypeBool:
		return []uint16{v.Uint16()}, nil
	default:
		return nil, fmt.Errorf("registers: encode %q: unhandled type %v", d.Quantity, d.Type)
	}
}
