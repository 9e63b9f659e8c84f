package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/mhartig/idmbridge/internal/heatpump"
	"github.com/mhartig/idmbridge/internal/ports"
	"github.com/mhartig/idmbridge/internal/registers"
)

type Config struct {
	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Home Assistant discovery. Empty prefix disables discovery publishing.
	DiscoveryPrefix string

	// Behavior
	QoS         byte
	RetainState bool

	Username string
	Password string
}

type Controller struct {
	svcs  map[string]ports.HeatPumpService
	order []string
	cfg   Config
	table *registers.Table

	client mqtt.Client
}

func New(svcs []ports.HeatPumpService, cfg Config) (*Controller, error) {
	// ---- defaults ----

	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "idmbridge"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "idmbridge"
	}

	if len(svcs) == 0 {
		return nil, errors.New("mqtt: at least one device is required")
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}

	c := &Controller{
		svcs:  make(map[string]ports.HeatPumpService, len(svcs)),
		cfg:   cfg,
		table: registers.Default(),
	}
	for _, svc := range svcs {
		c.svcs[svc.ID()] = svc
		c.order = append(c.order, svc.ID())
	}
	return c, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// The broker flips the bridge availability topic if the connection
	// drops without a disconnect. Entities reference it alongside their
	// per-device topic.
	opts.SetWill(c.bridgeAvailabilityTopic(), "offline", c.cfg.QoS, true)

	// Subscribe and re-announce when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		for _, suffix := range []string{"set/+", "boost", "reset_error", "refresh"} {
			token := cl.Subscribe(c.topic("+", suffix), c.cfg.QoS, c.onMessage)
			token.Wait()
		}
		cl.Publish(c.bridgeAvailabilityTopic(), c.cfg.QoS, true, "online")
		c.publishDiscovery(cl)
		for _, id := range c.order {
			c.publishState(id, c.svcs[id].Snapshot())
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	// Push state on every coordinator update.
	var unsubs []func()
	for _, id := range c.order {
		unsubs = append(unsubs, c.svcs[id].Subscribe(func(s heatpump.Snapshot) {
			c.publishState(id, s)
		}))
	}

	<-ctx.Done()
	for _, unsub := range unsubs {
		unsub()
	}
	// Per-device topics keep their last reachability state; only the
	// bridge goes offline.
	c.client.Publish(c.bridgeAvailabilityTopic(), c.cfg.QoS, true, "offline")
	c.client.Disconnect(250)
	return ctx.Err()
}

func (c *Controller) bridgeAvailabilityTopic() string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/bridge/availability"
}

type stateDTO struct {
	DeviceID          string         `json:"device_id"`
	Available         bool           `json:"available"`
	UpdatedAt         time.Time      `json:"updated_at"`
	HVACMode          string         `json:"hvac_mode"`
	Action            string         `json:"action"`
	SystemMode        string         `json:"system_mode"`
	TargetTemperature float64        `json:"target_temperature"`
	ErrorCode         uint16         `json:"error_code"`
	Sensors           map[string]any `json:"sensors"`
}

func (c *Controller) publishState(id string, s heatpump.Snapshot) {
	dto := stateDTO{
		DeviceID:          id,
		Available:         s.Available,
		UpdatedAt:         s.UpdatedAt,
		HVACMode:          s.HVACMode.String(),
		Action:            s.Action,
		SystemMode:        s.SystemMode,
		TargetTemperature: s.TargetTemperature,
		ErrorCode:         s.ErrorCode,
		Sensors:           make(map[string]any, len(s.Values)),
	}
	for q, v := range s.Values {
		if !v.Valid {
			continue
		}
		if v.Type == registers.TypeBool {
			dto.Sensors[string(q)] = v.Flag
		} else {
			dto.Sensors[string(q)] = v.Num
		}
	}
	b, _ := json.Marshal(dto)
	c.client.Publish(c.topic(id, "state"), c.cfg.QoS, c.cfg.RetainState, b)

	avail := "offline"
	if s.Available {
		avail = "online"
	}
	c.client.Publish(c.topic(id, "availability"), c.cfg.QoS, true, avail)
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/<device>/set/<field> or <base>/<device>/<command>
	prefix := strings.TrimRight(c.cfg.BaseTopic, "/") + "/"
	t := msg.Topic()
	if !strings.HasPrefix(t, prefix) {
		return
	}
	parts := strings.Split(strings.TrimPrefix(t, prefix), "/")
	svc, ok := c.svcs[parts[0]]
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	payload := msg.Payload()

	if len(parts) == 2 {
		switch parts[1] {
		case "boost":
			var req struct {
				Temperature *float64 `json:"temperature"`
				Duration    *int     `json:"duration"` // minutes
			}
			if err := json.Unmarshal(payload, &req); err != nil || req.Temperature == nil || req.Duration == nil {
				return
			}
			_ = svc.Boost(ctx, *req.Temperature, time.Duration(*req.Duration)*time.Minute)
		case "reset_error":
			_ = svc.ResetError(ctx)
		case "refresh":
			_ = svc.Refresh(ctx)
		}
		return
	}
	if len(parts) != 3 || parts[1] != "set" {
		return
	}

	// Dispatch by field
	switch field := parts[2]; field {
	case "hvac_mode":
		s, err := decodeValueStrict[string](payload)
		if err != nil {
			return
		}
		m, err := heatpump.ParseHVACMode(s)
		if err != nil {
			return
		}
		_ = svc.SetHVACMode(ctx, m)

	case "target_temperature":
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		_ = svc.SetTargetTemperature(ctx, v)

	default:
		// Anything else resolves through the register table: bool
		// quantities are switches, the rest numeric setpoints.
		q := registers.Quantity(field)
		d, err := c.table.Describe(q)
		if err != nil {
			return
		}
		if d.Type == registers.TypeBool {
			v, err := decodeValueStrict[bool](payload)
			if err != nil {
				return
			}
			_ = svc.SetSwitch(ctx, q, v)
			return
		}
		v, err := decodeValueStrict[float64](payload)
		if err != nil {
			return
		}
		_ = svc.SetNumber(ctx, q, v)
	}
}

func (c *Controller) topic(id, suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + id + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
