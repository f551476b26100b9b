package ble

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestScanForDevices(t *testing.T) {
	devices := []Device{
		{Name: "Petkit_W5", MAC: testMAC, RSSI: -45},
		{Name: "Headphones", MAC: "11:22:33:44:55:66", RSSI: -70},
	}
	adapter := newMockAdapter(devices)

	result, err := ScanForDevices(context.Background(), adapter, 5*time.Second, func(d Device) bool {
		return strings.HasPrefix(d.Name, "Petkit")
	})
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("got %d devices, want 1", len(result))
	}
	if result[0].Name != "Petkit_W5" {
		t.Errorf("Name = %q, want %q", result[0].Name, "Petkit_W5")
	}
	if result[0].MAC != testMAC {
		t.Errorf("MAC = %q, want %q", result[0].MAC, testMAC)
	}
}

func TestScanForDevicesEmpty(t *testing.T) {
	adapter := newMockAdapter(nil)
	result, err := ScanForDevices(context.Background(), adapter, 5*time.Second, nil)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d devices, want 0", len(result))
	}
}

func TestFindDevice(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "Petkit_CTW2", MAC: testMAC, ServiceData: []byte{0, 0, 0, 0, 0, 228}},
	})

	dev, err := FindDevice(context.Background(), adapter, strings.ToLower(testMAC), time.Second)
	if err != nil {
		t.Fatalf("FindDevice() error = %v", err)
	}
	if len(dev.ServiceData) != 6 {
		t.Errorf("ServiceData = %v, want 6 bytes", dev.ServiceData)
	}

	if _, err := FindDevice(context.Background(), adapter, "00:00:00:00:00:01", time.Second); err == nil {
		t.Error("FindDevice() for an absent address should fail")
	}
}
