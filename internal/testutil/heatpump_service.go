package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/mhartig/idmbridge/internal/heatpump"
	"github.com/mhartig/idmbridge/internal/registers"
)

// FakeHeatPumpService is a reusable fake implementing ports.HeatPumpService.
// Put ONLY what multiple test packages need here.
type FakeHeatPumpService struct {
	mu sync.Mutex

	DeviceID string
	S        heatpump.Snapshot
	subs     []func(heatpump.Snapshot)

	RefreshCalled bool

	SetHVACModeCalled bool
	SetHVACModeArg    heatpump.HVACMode
	SetHVACModeErr    error

	SetTargetCalled bool
	SetTargetArg    float64
	SetTargetErr    error

	SetNumberCalled bool
	SetNumberQ      registers.Quantity
	SetNumberArg    float64
	SetNumberErr    error

	SetSwitchCalled bool
	SetSwitchQ      registers.Quantity
	SetSwitchArg    bool
	SetSwitchErr    error

	ToggleCalled bool
	ToggleQ      registers.Quantity

	ResetErrorCalled bool
	ResetErrorErr    error

	BoostCalled   bool
	BoostTemp     float64
	BoostDuration time.Duration
	BoostErr      error
}

func NewFakeHeatPumpService() *FakeHeatPumpService {
	return &FakeHeatPumpService{
		DeviceID: "pump",
		S: heatpump.Snapshot{
			Available:         true,
			UpdatedAt:         time.Now(),
			HVACMode:          heatpump.HVACAuto,
			Action:            "heating",
			SystemMode:        "automatic",
			TargetTemperature: 22,
			Values: registers.Values{
				registers.OutsideTemp:   registers.FloatValue(5.5),
				registers.SystemMode:    registers.WordValue(1),
				registers.HeatPumpMode:  registers.WordValue(1),
				registers.HeatingDemand: registers.BoolValue(true),
				registers.ErrorState:    registers.WordValue(0),
			},
		},
	}
}

func (f *FakeHeatPumpService) ID() string { return f.DeviceID }

func (f *FakeHeatPumpService) Snapshot() heatpump.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.S
}

func (f *FakeHeatPumpService) Subscribe(fn func(heatpump.Snapshot)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
	return func() {}
}

// Publish pushes a snapshot to all subscribers, as the coordinator would.
func (f *FakeHeatPumpService) Publish(s heatpump.Snapshot) {
	f.mu.Lock()
	f.S = s
	subs := append([]func(heatpump.Snapshot){}, f.subs...)
	f.mu.Unlock()
	for _, fn := range subs {
		fn(s)
	}
}

func (f *FakeHeatPumpService) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RefreshCalled = true
	return nil
}

func (f *FakeHeatPumpService) SetHVACMode(_ context.Context, m heatpump.HVACMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetHVACModeCalled = true
	f.SetHVACModeArg = m
	return f.SetHVACModeErr
}

func (f *FakeHeatPumpService) SetTargetTemperature(_ context.Context, temp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetTargetCalled = true
	f.SetTargetArg = temp
	return f.SetTargetErr
}

func (f *FakeHeatPumpService) SetNumber(_ context.Context, q registers.Quantity, value float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetNumberCalled = true
	f.SetNumberQ = q
	f.SetNumberArg = value
	return f.SetNumberErr
}

func (f *FakeHeatPumpService) SetSwitch(_ context.Context, q registers.Quantity, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SetSwitchCalled = true
	f.SetSwitchQ = q
	f.SetSwitchArg = on
	return f.SetSwitchErr
}

func (f *FakeHeatPumpService) ToggleSwitch(_ context.Context, q registers.Quantity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ToggleCalled = true
	f.ToggleQ = q
	return nil
}

func (f *FakeHeatPumpService) ResetError(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ResetErrorCalled = true
	return f.ResetErrorErr
}

func (f *FakeHeatPumpService) Boost(_ context.Context, temp float64, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.BoostCalled = true
	f.BoostTemp = temp
	f.BoostDuration = d
	return f.BoostErr
}
