package heatpump

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/mhartig/idmbridge/internal/registers"
)

// fakeConn serves reads from a raw register map and records writes.
// Writes land in the map, so the post-command refresh sees them —
// unless ignoreWrites simulates a device refusing the command.
type fakeConn struct {
	mu           sync.Mutex
	regs         map[uint16]uint16
	writes       []writeCall
	fetches      int
	ignoreWrites bool
}

type writeCall struct {
	q registers.Quantity
	v registers.Value
}

func newFakeConn() *fakeConn {
	return &fakeConn{regs: make(map[uint16]uint16)}
}

func (f *fakeConn) setFloat(addr uint16, v float32) {
	bits := math.Float32bits(v)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = uint16(bits & 0xFFFF)
	f.regs[addr+1] = uint16(bits >> 16)
}

func (f *fakeConn) setWord(addr, v uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regs[addr] = v
}

func (f *fakeConn) ReadBatch(_ context.Context, descs []registers.Descriptor) (registers.Values, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	out := make(registers.Values, len(descs))
	for _, d := range descs {
		raw := make([]uint16, d.Width())
		for i := range raw {
			raw[i] = f.regs[d.Address+uint16(i)]
		}
		v, err := registers.Decode(d, raw)
		if err != nil {
			return nil, err
		}
		out[d.Quantity] = v
	}
	return out, nil
}

func (f *fakeConn) Write(_ context.Context, d registers.Descriptor, v registers.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, writeCall{q: d.Quantity, v: v})
	if f.ignoreWrites {
		return nil
	}
	raw, err := registers.Encode(d, v)
	if err != nil {
		return err
	}
	for i, r := range raw {
		f.regs[d.Address+uint16(i)] = r
	}
	return nil
}

func (f *fakeConn) Close() error { return nil }

func (f *fakeConn) lastWrite(t *testing.T) writeCall {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		t.Fatal("no writes recorded")
	}
	return f.writes[len(f.writes)-1]
}

func (f *fakeConn) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeConn) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

func startPump(t *testing.T, cfg Config, conn *fakeConn) *HeatPump {
	t.Helper()
	return startPumpWithTable(t, cfg, registers.Default(), conn)
}

func startPumpWithTable(t *testing.T, cfg Config, table *registers.Table, conn *fakeConn) *HeatPump {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "test"
	}
	if cfg.ScanInterval == 0 {
		cfg.ScanInterval = time.Hour
	}
	h := New(cfg, table, conn)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { _ = h.Run(ctx); close(done) }()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = h.Close()
	})

	waitFor(t, func() bool { return h.Snapshot().Available })
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestSnapshotRendersAutoFromRawTwo(t *testing.T) {
	conn := newFakeConn()
	conn.setWord(1005, 2) // away
	h := startPump(t, Config{}, conn)

	s := h.Snapshot()
	if s.HVACMode != HVACAuto {
		t.Fatalf("hvac mode = %v, want auto", s.HVACMode)
	}
	if s.SystemMode != "away" {
		t.Fatalf("system mode = %q", s.SystemMode)
	}
}

func TestSetHVACModeOffWritesStandbyAndRefreshes(t *testing.T) {
	conn := newFakeConn()
	conn.setWord(1005, 1)
	h := startPump(t, Config{}, conn)

	before := conn.fetchCount()
	if err := h.SetHVACMode(context.Background(), HVACOff); err != nil {
		t.Fatalf("SetHVACMode: %v", err)
	}
	w := conn.lastWrite(t)
	if w.q != registers.SystemMode || w.v.Uint16() != 0 {
		t.Fatalf("wrote %q=%d, want system_mode=0", w.q, w.v.Uint16())
	}
	if conn.fetchCount() <= before {
		t.Fatal("expected a refresh after the write")
	}
	if h.Snapshot().HVACMode != HVACOff {
		t.Fatalf("hvac mode after write = %v", h.Snapshot().HVACMode)
	}
}

func TestSetHVACModeCoolRejectedOnHeatOnlyUnit(t *testing.T) {
	conn := newFakeConn()
	h := startPump(t, Config{Cooling: false}, conn)

	err := h.SetHVACMode(context.Background(), HVACCool)
	if !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", conn.writeCount())
	}
}

func TestSetTargetTemperatureRange(t *testing.T) {
	conn := newFakeConn()
	h := startPump(t, Config{}, conn)

	if err := h.SetTargetTemperature(context.Background(), 22); err != nil {
		t.Fatalf("SetTargetTemperature: %v", err)
	}
	w := conn.lastWrite(t)
	if w.q != registers.TargetTempHeating || w.v.Num != 22 {
		t.Fatalf("wrote %q=%v", w.q, w.v.Num)
	}

	err := h.SetTargetTemperature(context.Background(), 40)
	if !errors.Is(err, ErrSetpointOutOfRange) {
		t.Fatalf("expected ErrSetpointOutOfRange, got %v", err)
	}
}

func TestToggleSwitchWritesComplement(t *testing.T) {
	conn := newFakeConn()
	conn.setWord(1091, 1) // heating demand on
	h := startPump(t, Config{}, conn)

	if err := h.ToggleSwitch(context.Background(), registers.HeatingDemand); err != nil {
		t.Fatalf("ToggleSwitch: %v", err)
	}
	w := conn.lastWrite(t)
	if w.q != registers.HeatingDemand || w.v.Flag {
		t.Fatalf("wrote %q=%v, want heating_demand=false", w.q, w.v.Flag)
	}
}

func TestSetSwitchRejectsNonSwitchQuantity(t *testing.T) {
	conn := newFakeConn()
	h := startPump(t, Config{}, conn)

	err := h.SetSwitch(context.Background(), registers.OutsideTemp, true)
	if !errors.Is(err, ErrNotASwitch) {
		t.Fatalf("expected ErrNotASwitch, got %v", err)
	}
}

func TestSetNumberWritesDHWTarget(t *testing.T) {
	conn := newFakeConn()
	h := startPump(t, Config{}, conn)

	before := conn.fetchCount()
	if err := h.SetNumber(context.Background(), registers.DHWTargetTemp, 45); err != nil {
		t.Fatalf("SetNumber: %v", err)
	}
	w := conn.lastWrite(t)
	if w.q != registers.DHWTargetTemp || w.v.Uint16() != 45 {
		t.Fatalf("wrote %q=%d, want dhw_target_temp=45", w.q, w.v.Uint16())
	}
	if conn.fetchCount() <= before {
		t.Fatal("expected a refresh after the write")
	}
}

func TestSetNumberRejectsOutOfRangeBeforeAnyWrite(t *testing.T) {
	conn := newFakeConn()
	h := startPump(t, Config{}, conn)

	err := h.SetNumber(context.Background(), registers.TargetTempCooling, 99)
	if !errors.Is(err, ErrSetpointOutOfRange) {
		t.Fatalf("expected ErrSetpointOutOfRange, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", conn.writeCount())
	}
}

func TestSetNumberRejectsNonNumericQuantities(t *testing.T) {
	conn := newFakeConn()
	h := startPump(t, Config{}, conn)

	for _, q := range []registers.Quantity{registers.HeatingDemand, registers.OutsideTemp} {
		err := h.SetNumber(context.Background(), q, 1)
		if !errors.Is(err, ErrNotANumber) {
			t.Fatalf("%q: expected ErrNotANumber, got %v", q, err)
		}
	}
	if conn.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", conn.writeCount())
	}
}

func TestSnapshotResolvesEnumsThroughTable(t *testing.T) {
	table, err := registers.New([]registers.Descriptor{
		{Quantity: registers.SystemMode, Address: 1005, Type: registers.TypeWord, Access: registers.ReadWrite,
			Enum: registers.NewEnum(map[uint16]string{7: "party"})},
		{Quantity: registers.HeatPumpMode, Address: 1090, Type: registers.TypeWord, Access: registers.ReadOnly,
			Enum: registers.HeatPumpModes},
	})
	if err != nil {
		t.Fatal(err)
	}
	conn := newFakeConn()
	conn.setWord(1005, 7)
	h := startPumpWithTable(t, Config{}, table, conn)

	if got := h.Snapshot().SystemMode; got != "party" {
		t.Fatalf("system mode = %q, want the table's enum name", got)
	}
}

func TestResetErrorClears(t *testing.T) {
	conn := newFakeConn()
	conn.setWord(1099, 3)
	h := startPump(t, Config{}, conn)

	if err := h.ResetError(context.Background()); err != nil {
		t.Fatalf("ResetError: %v", err)
	}
	w := conn.lastWrite(t)
	if w.q != registers.ErrorState || w.v.Uint16() != 0 {
		t.Fatalf("wrote %q=%d", w.q, w.v.Uint16())
	}
}

func TestResetErrorDeviceRejected(t *testing.T) {
	conn := newFakeConn()
	conn.setWord(1099, 3)
	conn.ignoreWrites = true
	h := startPump(t, Config{}, conn)

	err := h.ResetError(context.Background())
	if !errors.Is(err, ErrDeviceRejected) {
		t.Fatalf("expected ErrDeviceRejected, got %v", err)
	}
}

// boostTable narrows the heating setpoint range to [10, 28].
func boostTable(t *testing.T) *registers.Table {
	t.Helper()
	table, err := registers.New([]registers.Descriptor{
		{Quantity: registers.SystemMode, Address: 1005, Type: registers.TypeWord, Access: registers.ReadWrite, Min: 0, Max: 5, HasRange: true, Enum: registers.SystemModes},
		{Quantity: registers.HeatPumpMode, Address: 1090, Type: registers.TypeWord, Access: registers.ReadOnly, Enum: registers.HeatPumpModes},
		{Quantity: registers.ErrorState, Address: 1099, Type: registers.TypeWord, Access: registers.ReadWrite},
		{Quantity: registers.TargetTempHeating, Address: 1694, Type: registers.TypeFloat32, Access: registers.ReadWrite, Min: 10, Max: 28, HasRange: true, Unit: "°C"},
	})
	if err != nil {
		t.Fatalf("boost table: %v", err)
	}
	return table
}

func TestBoostAcceptsInRangeAndArmsRevert(t *testing.T) {
	conn := newFakeConn()
	conn.setFloat(1694, 21)
	h := startPumpWithTable(t, Config{MaxBoost: 4 * time.Hour}, boostTable(t), conn)

	if err := h.Boost(context.Background(), 24, 60*time.Minute); err != nil {
		t.Fatalf("Boost: %v", err)
	}
	w := conn.lastWrite(t)
	if w.q != registers.TargetTempHeating || w.v.Num != 24 {
		t.Fatalf("wrote %q=%v", w.q, w.v.Num)
	}
	if !h.BoostActive() {
		t.Fatal("revert timer not armed")
	}
}

func TestBoostRejectsOutOfRangeBeforeAnyWrite(t *testing.T) {
	conn := newFakeConn()
	h := startPumpWithTable(t, Config{}, boostTable(t), conn)

	err := h.Boost(context.Background(), 35, 60*time.Minute)
	if !errors.Is(err, ErrSetpointOutOfRange) {
		t.Fatalf("expected ErrSetpointOutOfRange, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", conn.writeCount())
	}
}

func TestBoostRejectsExcessiveDuration(t *testing.T) {
	conn := newFakeConn()
	h := startPumpWithTable(t, Config{MaxBoost: 240 * time.Minute}, boostTable(t), conn)

	err := h.Boost(context.Background(), 24, 300*time.Minute)
	if !errors.Is(err, ErrBoostDuration) {
		t.Fatalf("expected ErrBoostDuration, got %v", err)
	}
	if conn.writeCount() != 0 {
		t.Fatalf("expected no writes, got %d", conn.writeCount())
	}
}

func TestBoostRevertsToPriorSetpoint(t *testing.T) {
	conn := newFakeConn()
	conn.setFloat(1694, 21)
	h := startPumpWithTable(t, Config{}, boostTable(t), conn)

	if err := h.Boost(context.Background(), 24, 10*time.Millisecond); err != nil {
		t.Fatalf("Boost: %v", err)
	}
	waitFor(t, func() bool { return !h.BoostActive() })
	waitFor(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		if len(conn.writes) == 0 {
			return false
		}
		last := conn.writes[len(conn.writes)-1]
		return last.q == registers.TargetTempHeating && last.v.Num == 21
	})
}
