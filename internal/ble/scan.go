package ble

import (
	"context"
	"fmt"
	"time"
)

// ScanForDevices scans for timeout and returns the peripherals accepted by
// match. A nil match accepts every advertisement.
func ScanForDevices(ctx context.Context, adapter Adapter, timeout time.Duration, match func(Device) bool) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, match)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	return devices, nil
}

// FindDevice scans until the device with the given address is seen or
// timeout elapses.
func FindDevice(ctx context.Context, adapter Adapter, address string, timeout time.Duration) (Device, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	devices, err := ScanForDevices(ctx, adapter, timeout, func(d Device) bool {
		if addressKey(d.MAC) != addressKey(address) {
			return false
		}
		cancel()
		return true
	})
	if err != nil {
		return Device{}, err
	}
	if len(devices) == 0 {
		return Device{}, fmt.Errorf("ble: device %s not found within %s", address, timeout)
	}
	return devices[0], nil
}
