package registers

// Register addresses and ranges follow the iDM Navigator 2.0 Modbus TCP
// documentation (see README). Two corrections against older register lists:
// humidity at 1392 is a UCHAR (a FLOAT there would collide with 1393), and
// the cooling setpoint sits at 1696 so it clears the two-register heating
// setpoint at 1694.
var defaultDescriptors = []Descriptor{
	{Quantity: OutsideTemp, Address: 1000, Type: TypeFloat32, Access: ReadOnly, Min: -50, Max: 50, HasRange: true, Unit: "°C"},
	{Quantity: OutsideTempAveraged, Address: 1002, Type: TypeFloat32, Access: ReadOnly, Min: -50, Max: 50, HasRange: true, Unit: "°C"},
	{Quantity: InternalMessage, Address: 1004, Type: TypeWord, Access: ReadOnly},
	{Quantity: SystemMode, Address: 1005, Type: TypeWord, Access: ReadWrite, Min: 0, Max: 5, HasRange: true, Enum: SystemModes},
	{Quantity: SmartGridStatus, Address: 1006, Type: TypeWord, Access: ReadOnly},
	{Quantity: BufferTemp, Address: 1008, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: CoolingBufferTemp, Address: 1010, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: DHWTempBottom, Address: 1012, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: DHWTempTop, Address: 1014, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: DHWOutletTemp, Address: 1030, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: DHWTargetTemp, Address: 1032, Type: TypeUChar, Access: ReadWrite, Min: 35, Max: 95, HasRange: true, Unit: "°C"},
	{Quantity: HeatPumpFlowTemp, Address: 1050, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: HeatPumpReturnTemp, Address: 1052, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: SourceInletTemp, Address: 1056, Type: TypeFloat32, Access: ReadOnly, Min: -20, Max: 50, HasRange: true, Unit: "°C"},
	{Quantity: SourceOutletTemp, Address: 1058, Type: TypeFloat32, Access: ReadOnly, Min: -20, Max: 50, HasRange: true, Unit: "°C"},
	{Quantity: AirIntakeTemp, Address: 1060, Type: TypeFloat32, Access: ReadOnly, Min: -50, Max: 50, HasRange: true, Unit: "°C"},
	{Quantity: HeatPumpMode, Address: 1090, Type: TypeWord, Access: ReadOnly, Enum: HeatPumpModes},
	{Quantity: HeatingDemand, Address: 1091, Type: TypeBool, Access: ReadWrite},
	{Quantity: CoolingDemand, Address: 1092, Type: TypeBool, Access: ReadWrite},
	{Quantity: DHWDemand, Address: 1093, Type: TypeBool, Access: ReadWrite},
	{Quantity: EVUContact, Address: 1098, Type: TypeBool, Access: ReadOnly},
	{Quantity: ErrorState, Address: 1099, Type: TypeWord, Access: ReadWrite},
	{Quantity: Compressor1Status, Address: 1100, Type: TypeBool, Access: ReadOnly},
	{Quantity: Compressor2Status, Address: 1101, Type: TypeBool, Access: ReadOnly},
	{Quantity: LoadingPumpStatus, Address: 1104, Type: TypeBool, Access: ReadOnly},
	{Quantity: CircuitTemp, Address: 1350, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "°C"},
	{Quantity: CircuitRoomTemp, Address: 1364, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 40, HasRange: true, Unit: "°C"},
	{Quantity: CircuitTargetTemp, Address: 1378, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 40, HasRange: true, Unit: "°C"},
	{Quantity: Humidity, Address: 1392, Type: TypeUChar, Access: ReadOnly, Min: 0, Max: 100, HasRange: true, Unit: "%"},
	{Quantity: HeatingCircuitMode, Address: 1393, Type: TypeWord, Access: ReadWrite, Min: 0, Max: 5, HasRange: true, Enum: HeatingCircuitModes},
	{Quantity: TargetTempHeating, Address: 1694, Type: TypeFloat32, Access: ReadWrite, Min: 15, Max: 30, HasRange: true, Unit: "°C"},
	{Quantity: TargetTempCooling, Address: 1696, Type: TypeWord, Access: ReadWrite, Min: 15, Max: 30, HasRange: true, Unit: "°C"},
	{Quantity: EnergyHeating, Address: 1748, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 1e6, HasRange: true, Unit: "kWh"},
	{Quantity: EnergyTotal, Address: 1750, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 1e6, HasRange: true, Unit: "kWh"},
	{Quantity: EnergyCooling, Address: 1752, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 1e6, HasRange: true, Unit: "kWh"},
	{Quantity: EnergyDHW, Address: 1754, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 1e6, HasRange: true, Unit: "kWh"},
	{Quantity: CurrentPower, Address: 1790, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 20, HasRange: true, Unit: "kW"},
	{Quantity: PowerConsumption, Address: 4122, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 20, HasRange: true, Unit: "kW"},
	{Quantity: ThermalOutput, Address: 4126, Type: TypeFloat32, Access: ReadOnly, Min: 0, Max: 25, HasRange: true, Unit: "kW"},
}

var defaultTable = func() *Table {
	t, err := New(defaultDescriptors)
	if err != nil {
		panic(err)
	}
	return t
}()

// Default returns the iDM register map. The table is validated once at
// package init; an overlap in the literal data is a programming error.
func Default() *Table {
	return defaultTable
}
