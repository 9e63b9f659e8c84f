// Package heatpump is the per-device context: one HeatPump owns the Modbus
// connection, the register table, the polling coordinator and the boost
// timer for a single configured unit. Nothing is shared across devices.
package heatpump

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/mhartig/idmbridge/internal/metrics"
	"github.com/mhartig/idmbridge/internal/poll"
	"github.com/mhartig/idmbridge/internal/registers"
)

// Conn is the Modbus access layer the device talks through.
type Conn interface {
	ReadBatch(ctx context.Context, descs []registers.Descriptor) (registers.Values, error)
	Write(ctx context.Context, d registers.Descriptor, v registers.Value) error
	Close() error
}

// Switches are the demand-flag quantities exposed as switch entities.
var Switches = []registers.Quantity{
	registers.HeatingDemand,
	registers.CoolingDemand,
	registers.DHWDemand,
}

type Config struct {
	ID           string
	ScanInterval time.Duration
	// Cooling marks the unit as capable of active cooling. Heat-only units
	// reject HVACCool.
	Cooling bool
	// MaxBoost bounds the boost duration. Default 4h.
	MaxBoost time.Duration
	// Metrics is optional telemetry.
	Metrics *metrics.Metrics
}

// Snapshot is the entity-facing view of one poll cycle.
type Snapshot struct {
	Available bool
	UpdatedAt time.Time

	HVACMode          HVACMode
	Action            string // heat pump operating state name
	SystemMode        string
	TargetTemperature float64
	ErrorCode         uint16

	Values registers.Values
}

type HeatPump struct {
	cfg   Config
	table *registers.Table
	conn  Conn
	coord *poll.Coordinator

	mu         sync.Mutex
	boostTimer *time.Timer
	boostPrev  registers.Value // setpoint to restore when the boost ends
}

func New(cfg Config, table *registers.Table, conn Conn) *HeatPump {
	if cfg.MaxBoost <= 0 {
		cfg.MaxBoost = 4 * time.Hour
	}
	h := &HeatPump{cfg: cfg, table: table, conn: conn}
	h.coord = poll.New(cfg.ID, h, cfg.ScanInterval)
	if cfg.Metrics != nil {
		h.coord.Subscribe(h.export)
	}
	return h
}

// export publishes one snapshot's telemetry.
func (h *HeatPump) export(ps poll.Snapshot) {
	m := h.cfg.Metrics
	m.SetAvailable(h.cfg.ID, ps.Available)
	if !ps.Available {
		return
	}
	for q, v := range ps.Values {
		if !v.Valid {
			continue
		}
		d, err := h.table.Describe(q)
		if err != nil {
			continue
		}
		var num float64
		if v.Type == registers.TypeBool {
			num = float64(v.Uint16())
		} else {
			num = v.Num
		}
		m.SetQuantity(h.cfg.ID, string(q), d.Unit, num)
	}
}

func (h *HeatPump) ID() string { return h.cfg.ID }

// Fetch reads the full register set for one poll cycle. Any group failure
// fails the cycle; the coordinator keeps the previous snapshot.
func (h *HeatPump) Fetch(ctx context.Context) (registers.Values, error) {
	start := time.Now()
	values, err := h.conn.ReadBatch(ctx, h.table.All())
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.ObserveFetch(h.cfg.ID, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return values, nil
}

// Run drives the polling loop until ctx is cancelled.
func (h *HeatPump) Run(ctx context.Context) error {
	return h.coord.Run(ctx)
}

// Close cancels a pending boost revert and releases the connection.
// In-flight transactions finish on their own timeout.
func (h *HeatPump) Close() error {
	h.mu.Lock()
	if h.boostTimer != nil {
		h.boostTimer.Stop()
		h.boostTimer = nil
	}
	h.mu.Unlock()
	return h.conn.Close()
}

func (h *HeatPump) Snapshot() Snapshot {
	return h.view(h.coord.Snapshot())
}

// Subscribe relays coordinator notifications as entity-facing snapshots.
func (h *HeatPump) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	return h.coord.Subscribe(func(ps poll.Snapshot) {
		fn(h.view(ps))
	})
}

func (h *HeatPump) Refresh(ctx context.Context) error {
	return h.coord.Refresh(ctx)
}

func (h *HeatPump) view(ps poll.Snapshot) Snapshot {
	s := Snapshot{
		Available:  ps.Available,
		UpdatedAt:  ps.UpdatedAt,
		HVACMode:   HVACUnknown,
		Action:     registers.Unknown,
		SystemMode: registers.Unknown,
		Values:     ps.Values,
	}
	sys := ps.Values[registers.SystemMode]
	act := ps.Values[registers.HeatPumpMode]
	if sys.Valid {
		s.SystemMode = h.enumName(registers.SystemMode, sys.Uint16())
	}
	if act.Valid {
		s.Action = h.enumName(registers.HeatPumpMode, act.Uint16())
	}
	s.HVACMode = hvacModeOf(sys, act)
	if v := ps.Values[registers.TargetTempHeating]; v.Valid {
		s.TargetTemperature = v.Num
	}
	if v := ps.Values[registers.ErrorState]; v.Valid {
		s.ErrorCode = v.Uint16()
	}
	return s
}

// enumName resolves a raw code through the quantity's enum table.
func (h *HeatPump) enumName(q registers.Quantity, code uint16) string {
	d, err := h.table.Describe(q)
	if err != nil || d.Enum == nil {
		return registers.Unknown
	}
	return d.Enum.Name(code)
}

// write performs a command write followed by an out-of-band refresh so the
// snapshot reflects the device's acceptance of the command.
func (h *HeatPump) write(ctx context.Context, q registers.Quantity, v registers.Value) error {
	d, err := h.table.Describe(q)
	if err != nil {
		return err
	}
	if err := h.conn.Write(ctx, d, v); err != nil {
		return err
	}
	if h.cfg.Metrics != nil {
		h.cfg.Metrics.CountWrite(h.cfg.ID)
	}
	return h.coord.Refresh(ctx)
}

// SetHVACMode writes the mapped system-mode byte and refreshes.
func (h *HeatPump) SetHVACMode(ctx context.Context, m HVACMode) error {
	code, err := systemModeFor(m, h.cfg.Cooling)
	if err != nil {
		return err
	}
	return h.write(ctx, registers.SystemMode, registers.WordValue(code))
}

// SetTargetTemperature writes the heating setpoint after range validation.
func (h *HeatPump) SetTargetTemperature(ctx context.Context, temp float64) error {
	d, err := h.table.Describe(registers.TargetTempHeating)
	if err != nil {
		return err
	}
	if d.HasRange && (temp < d.Min || temp > d.Max) {
		return fmt.Errorf("%w: %.1f outside [%.1f, %.1f]", ErrSetpointOutOfRange, temp, d.Min, d.Max)
	}
	return h.write(ctx, registers.TargetTempHeating, registers.FloatValue(temp))
}

// SetNumber writes any writable numeric register after range validation.
// Covers the setpoints outside the climate projection (DHW target,
// cooling target, heating circuit mode). Bool registers go through
// SetSwitch.
func (h *HeatPump) SetNumber(ctx context.Context, q registers.Quantity, value float64) error {
	d, err := h.table.Describe(q)
	if err != nil {
		return err
	}
	if d.Type == registers.TypeBool || d.Access != registers.ReadWrite {
		return fmt.Errorf("%w: %q", ErrNotANumber, q)
	}
	if d.HasRange && (value < d.Min || value > d.Max) {
		return fmt.Errorf("%w: %.1f outside [%.1f, %.1f]", ErrSetpointOutOfRange, value, d.Min, d.Max)
	}
	var v registers.Value
	switch d.Type {
	case registers.TypeFloat32:
		v = registers.FloatValue(value)
	case registers.TypeUChar:
		v = registers.UCharValue(uint8(value))
	default:
		v = registers.WordValue(uint16(value))
	}
	return h.write(ctx, q, v)
}

// SetSwitch writes a demand flag.
func (h *HeatPump) SetSwitch(ctx context.Context, q registers.Quantity, on bool) error {
	d, err := h.table.Describe(q)
	if err != nil {
		return err
	}
	if d.Type != registers.TypeBool || d.Access != registers.ReadWrite {
		return fmt.Errorf("%w: %q", ErrNotASwitch, q)
	}
	return h.write(ctx, q, registers.BoolValue(on))
}

// ToggleSwitch writes the complement of the last known flag value.
func (h *HeatPump) ToggleSwitch(ctx context.Context, q registers.Quantity) error {
	last, ok := h.coord.Snapshot().Values[q]
	if !ok || !last.Valid {
		return fmt.Errorf("%w: %q", ErrValueUnknown, q)
	}
	return h.SetSwitch(ctx, q, !last.Flag)
}

// ResetError writes the reset command and verifies via the refreshed
// snapshot that the device actually cleared the error.
func (h *HeatPump) ResetError(ctx context.Context) error {
	if err := h.write(ctx, registers.ErrorState, registers.WordValue(0)); err != nil {
		return err
	}
	if code := h.Snapshot().ErrorCode; code != 0 {
		return fmt.Errorf("%w: error %d still active", ErrDeviceRejected, code)
	}
	return nil
}

// Boost raises the heating setpoint for a bounded duration, then reverts to
// the prior setpoint from a local timer. The revert is best-effort: it does
// not survive a process restart.
func (h *HeatPump) Boost(ctx context.Context, temp float64, duration time.Duration) error {
	d, err := h.table.Describe(registers.TargetTempHeating)
	if err != nil {
		return err
	}
	if d.HasRange && (temp < d.Min || temp > d.Max) {
		return fmt.Errorf("%w: %.1f outside [%.1f, %.1f]", ErrSetpointOutOfRange, temp, d.Min, d.Max)
	}
	if duration <= 0 || duration > h.cfg.MaxBoost {
		return fmt.Errorf("%w: %s (max %s)", ErrBoostDuration, duration, h.cfg.MaxBoost)
	}

	prev := h.coord.Snapshot().Values[registers.TargetTempHeating]

	if err := h.write(ctx, registers.TargetTempHeating, registers.FloatValue(temp)); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.boostTimer != nil {
		// Re-arm; keep the setpoint from before the first boost.
		h.boostTimer.Stop()
		prev = h.boostPrev
	}
	h.boostPrev = prev
	h.boostTimer = time.AfterFunc(duration, func() { h.revertBoost() })
	return nil
}

func (h *HeatPump) revertBoost() {
	h.mu.Lock()
	prev := h.boostPrev
	h.boostTimer = nil
	h.mu.Unlock()

	if !prev.Valid {
		log.Printf("boost %s: no prior setpoint to restore", h.cfg.ID)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := h.write(ctx, registers.TargetTempHeating, prev); err != nil {
		log.Printf("boost %s: revert failed: %v", h.cfg.ID, err)
	}
}

// BoostActive reports whether a revert timer is armed.
func (h *HeatPump) BoostActive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.boostTimer != nil
}
