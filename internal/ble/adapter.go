// Package ble provides the BLE link to a Petkit water fountain. It owns the
// transport handle, supervises the connection with reconnection backoff, and
// drains the outgoing command queue onto the write characteristic.
package ble

import "context"

// Petkit fountain GATT UUIDs
const (
	ServiceUUID     = "0000aaa0-0000-1000-8000-00805f9b34fb"
	ReadCharUUID    = "0000aaa1-0000-1000-8000-00805f9b34fb" // device -> host notifications
	WriteCharUUID   = "0000aaa2-0000-1000-8000-00805f9b34fb" // host -> device writes
	defaultReadSize = 512
)

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Read returns the current value of the characteristic.
	Read() ([]byte, error)
	// Subscribe registers a callback for notifications on this characteristic.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name        string
	MAC         string
	RSSI        int
	ServiceData []byte // all advertised service data, concatenated
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// IsConnected reports whether the link is still up.
	IsConnected() bool
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers BLE peripherals for which match returns true.
	// Returns discovered devices once ctx is cancelled or times out.
	Scan(ctx context.Context, match func(Device) bool) ([]Device, error)
	// Connect establishes a connection to the device with the given MAC address.
	Connect(ctx context.Context, mac string) (Connection, error)
}
