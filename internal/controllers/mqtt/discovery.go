package mqttctrl

import (
	"encoding/json"
	"fmt"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mhartig/idmbridge/internal/heatpump"
	"github.com/mhartig/idmbridge/internal/registers"
)

// Home Assistant MQTT discovery payloads, using the abbreviated keys the
// discovery schema documents. Entities list two availability topics: the
// bridge-level one (the connection will) and the per-device one, so an
// entity goes unavailable when either the bridge dies or its pump stops
// answering.

type hassDevice struct {
	IDs          string `json:"ids"`
	Name         string `json:"name"`
	Manufacturer string `json:"mf,omitempty"`
	Model        string `json:"mdl,omitempty"`
}

type hassAvailability struct {
	Topic string `json:"t"`
}

type hassEntity struct {
	Name              string             `json:"name"`
	UniqueID          string             `json:"uniq_id"`
	Availability      []hassAvailability `json:"avty"`
	AvailabilityMode  string             `json:"avty_mode"`
	StateTopic        string             `json:"stat_t"`
	ValueTemplate     string             `json:"val_tpl,omitempty"`
	UnitOfMeasurement string             `json:"unit_of_meas,omitempty"`
	DeviceClass       string             `json:"dev_cla,omitempty"`
	StateClass        string             `json:"stat_cla,omitempty"`
	CommandTopic      string             `json:"cmd_t,omitempty"`
	CommandTemplate   string             `json:"cmd_tpl,omitempty"`
	PayloadOn         string             `json:"pl_on,omitempty"`
	PayloadOff        string             `json:"pl_off,omitempty"`
	StateOn           string             `json:"stat_on,omitempty"`
	StateOff          string             `json:"stat_off,omitempty"`
	Min               *float64           `json:"min,omitempty"`
	Max               *float64           `json:"max,omitempty"`
	Step              float64            `json:"step,omitempty"`
	Device            hassDevice         `json:"dev"`
}

type hassClimate struct {
	Name                       string             `json:"name"`
	UniqueID                   string             `json:"uniq_id"`
	Availability               []hassAvailability `json:"avty"`
	AvailabilityMode           string             `json:"avty_mode"`
	ModeStateTopic             string             `json:"mode_stat_t"`
	ModeStateTemplate          string             `json:"mode_stat_tpl"`
	ModeCommandTopic           string             `json:"mode_cmd_t"`
	ModeCommandTemplate        string             `json:"mode_cmd_tpl"`
	TemperatureStateTopic      string             `json:"temp_stat_t"`
	TemperatureStateTemplate   string             `json:"temp_stat_tpl"`
	TemperatureCommandTopic    string             `json:"temp_cmd_t"`
	TemperatureCommandTemplate string             `json:"temp_cmd_tpl"`
	CurrentTemperatureTopic    string             `json:"curr_temp_t"`
	CurrentTemperatureTemplate string             `json:"curr_temp_tpl"`
	ActionTopic                string             `json:"act_t"`
	ActionTemplate             string             `json:"act_tpl"`
	Modes                      []string           `json:"modes"`
	MinTemp                    float64            `json:"min_temp"`
	MaxTemp                    float64            `json:"max_temp"`
	TempStep                   float64            `json:"temp_step"`
	Device                     hassDevice         `json:"dev"`
}

func (c *Controller) publishDiscovery(cl mqtt.Client) {
	if c.cfg.DiscoveryPrefix == "" {
		return
	}
	for _, id := range c.order {
		c.publishDeviceDiscovery(cl, id)
	}
}

func (c *Controller) publishDeviceDiscovery(cl mqtt.Client, id string) {
	dev := hassDevice{
		IDs:          "idmbridge_" + id,
		Name:         id,
		Manufacturer: "iDM Energiesysteme",
		Model:        "Navigator 2.0",
	}
	state := c.topic(id, "state")
	avail := []hassAvailability{
		{Topic: c.bridgeAvailabilityTopic()},
		{Topic: c.topic(id, "availability")},
	}
	node := "idmbridge_" + id

	publish := func(platform, object string, payload any) {
		b, _ := json.Marshal(payload)
		topic := fmt.Sprintf("%s/%s/%s/%s/config",
			strings.TrimRight(c.cfg.DiscoveryPrefix, "/"), platform, node, object)
		cl.Publish(topic, c.cfg.QoS, true, b)
	}

	// Cooling-incapable units reject the cool command at the service layer.
	modes := []string{"off", "heat", "cool", "auto"}
	minTemp, maxTemp := 15.0, 30.0
	if d, err := c.table.Describe(registers.TargetTempHeating); err == nil && d.HasRange {
		minTemp, maxTemp = d.Min, d.Max
	}
	publish("climate", "climate", hassClimate{
		Name:                       id,
		UniqueID:                   node + "_climate",
		Availability:               avail,
		AvailabilityMode:           "all",
		ModeStateTopic:             state,
		ModeStateTemplate:          "{{ value_json.hvac_mode }}",
		ModeCommandTopic:           c.topic(id, "set/hvac_mode"),
		ModeCommandTemplate:        `{"value": "{{ value }}"}`,
		TemperatureStateTopic:      state,
		TemperatureStateTemplate:   "{{ value_json.target_temperature }}",
		TemperatureCommandTopic:    c.topic(id, "set/target_temperature"),
		TemperatureCommandTemplate: `{"value": {{ value }}}`,
		CurrentTemperatureTopic:    state,
		CurrentTemperatureTemplate: "{{ value_json.sensors.buffer_temp }}",
		ActionTopic:                state,
		ActionTemplate:             "{{ {'heating': 'heating', 'cooling': 'cooling', 'off': 'off'}.get(value_json.action, 'idle') }}",
		Modes:                      modes,
		MinTemp:                    minTemp,
		MaxTemp:                    maxTemp,
		TempStep:                   0.5,
		Device:                     dev,
	})

	for _, d := range c.table.All() {
		// Switches are published below; the climate entity owns the
		// heating setpoint.
		if d.Type == registers.TypeBool || d.Quantity == registers.TargetTempHeating {
			continue
		}
		name := string(d.Quantity)
		e := hassEntity{
			Name:              name,
			UniqueID:          node + "_" + name,
			Availability:      avail,
			AvailabilityMode:  "all",
			StateTopic:        state,
			ValueTemplate:     fmt.Sprintf("{{ value_json.sensors.%s }}", name),
			UnitOfMeasurement: d.Unit,
			Device:            dev,
		}
		switch d.Unit {
		case "°C":
			e.DeviceClass = "temperature"
			e.StateClass = "measurement"
		case "kW":
			e.DeviceClass = "power"
			e.StateClass = "measurement"
		case "%":
			e.StateClass = "measurement"
		}
		if d.Access == registers.ReadWrite && d.Unit != "" {
			// Writable setpoints become number entities, like the DHW
			// and cooling targets.
			e.StateClass = ""
			e.CommandTopic = c.topic(id, "set/"+name)
			e.CommandTemplate = `{"value": {{ value }}}`
			if d.HasRange {
				lo, hi := d.Min, d.Max
				e.Min, e.Max = &lo, &hi
			}
			e.Step = 1
			if d.Type == registers.TypeFloat32 {
				e.Step = 0.5
			}
			publish("number", name, e)
			continue
		}
		// Everything else, including the writable diagnostic words
		// (system_mode, error_state), reads as a sensor.
		publish("sensor", name, e)
	}

	for _, q := range heatpump.Switches {
		name := string(q)
		publish("switch", name, hassEntity{
			Name:             name,
			UniqueID:         node + "_" + name,
			Availability:     avail,
			AvailabilityMode: "all",
			StateTopic:       state,
			ValueTemplate:    fmt.Sprintf("{%% if value_json.sensors.%s %%}ON{%% else %%}OFF{%% endif %%}", name),
			CommandTopic:     c.topic(id, "set/"+name),
			PayloadOn:        `{"value": true}`,
			PayloadOff:       `{"value": false}`,
			StateOn:          "ON",
			StateOff:         "OFF",
			Device:           dev,
		})
	}
}
