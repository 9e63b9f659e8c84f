package heatpump

import (
	"errors"
	"testing"

	"github.com/mhartig/idmbridge/internal/registers"
)

func TestParseHVACMode(t *testing.T) {
	for _, s := range []string{"off", "heat", "cool", "auto"} {
		m, err := ParseHVACMode(s)
		if err != nil {
			t.Fatalf("ParseHVACMode(%q): %v", s, err)
		}
		if m.String() != s {
			t.Fatalf("round trip %q -> %q", s, m.String())
		}
	}
	if _, err := ParseHVACMode("dry"); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestHVACModeDerivation(t *testing.T) {
	cases := []struct {
		name   string
		system registers.Value
		action registers.Value
		want   HVACMode
	}{
		{"standby is off", registers.WordValue(0), registers.WordValue(0), HVACOff},
		{"automatic is auto", registers.WordValue(1), registers.WordValue(1), HVACAuto},
		{"away is auto", registers.WordValue(2), registers.WordValue(0), HVACAuto},
		{"dhw only is off", registers.WordValue(4), registers.WordValue(4), HVACOff},
		{"heating/cooling while heating", registers.WordValue(5), registers.WordValue(1), HVACHeat},
		{"heating/cooling while cooling", registers.WordValue(5), registers.WordValue(2), HVACCool},
		{"heating/cooling idle", registers.WordValue(5), registers.WordValue(0), HVACAuto},
		{"unknown raw code", registers.WordValue(3), registers.WordValue(0), HVACUnknown},
		{"system mode unavailable", registers.Value{Type: registers.TypeWord}, registers.WordValue(1), HVACUnknown},
	}
	for _, tc := range cases {
		if got := hvacModeOf(tc.system, tc.action); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSystemModeForWrites(t *testing.T) {
	code, err := systemModeFor(HVACOff, true)
	if err != nil || code != 0 {
		t.Fatalf("off -> %d, %v", code, err)
	}
	code, err = systemModeFor(HVACAuto, false)
	if err != nil || code != 1 {
		t.Fatalf("auto -> %d, %v", code, err)
	}
	code, err = systemModeFor(HVACCool, true)
	if err != nil || code != 5 {
		t.Fatalf("cool -> %d, %v", code, err)
	}
	if _, err := systemModeFor(HVACCool, false); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
	if _, err := systemModeFor(HVACUnknown, true); !errors.Is(err, ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}
