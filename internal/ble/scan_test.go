package ble

import (
	"errors"
	"testing"
	"time"
)

func TestScanForScales(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "01257B01020304", Address: "AA:BB:CC:DD:EE:FF", RSSI: -48},
	})

	devices, err := ScanForScales(adapter, time.Second)
	if err != nil {
		t.Fatalf("ScanForScales() error = %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("got %d devices, want 1", len(devices))
	}
	if devices[0].Address != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Address = %q, want %q", devices[0].Address, "AA:BB:CC:DD:EE:FF")
	}
}

func TestScanForScalesNothingFound(t *testing.T) {
	devices, err := ScanForScales(newMockAdapter(nil), time.Second)
	if err != nil {
		t.Fatalf("ScanForScales() error = %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("got %d devices, want 0", len(devices))
	}
}

func TestScanForScalesEnableError(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.enableErr = errors.New("no controller")
	if _, err := ScanForScales(adapter, time.Second); !errors.Is(err, adapter.enableErr) {
		t.Errorf("ScanForScales() error = %v, want wrapping %v", err, adapter.enableErr)
	}
}
