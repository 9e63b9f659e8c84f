package ports

import (
	"context"
	"time"

	"github.com/mhartig/idmbridge/internal/heatpump"
	"github.com/mhartig/idmbridge/internal/registers"
)

// HeatPumpService is the control-plane port used by controllers (HTTP/MQTT).
type HeatPumpService interface {
	ID() string
	Snapshot() heatpump.Snapshot
	Subscribe(func(heatpump.Snapshot)) (unsubscribe func())
	Refresh(ctx context.Context) error

	SetHVACMode(ctx context.Context, m heatpump.HVACMode) error
	SetTargetTemperature(ctx context.Context, temp float64) error
	SetNumber(ctx context.Context, q registers.Quantity, value float64) error
	SetSwitch(ctx context.Context, q registers.Quantity, on bool) error
	ToggleSwitch(ctx context.Context, q registers.Quantity) error

	ResetError(ctx context.Context) error
	Boost(ctx context.Context, temp float64, duration time.Duration) error
}
