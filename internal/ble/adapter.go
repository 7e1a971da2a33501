// Package ble drives a Trisa Body Analyze smart scale over Bluetooth Low
// Energy. It resolves the scale's GATT characteristics, enables
// notifications, runs the authentication handshake and streams decoded
// measurements to a sink.
package ble

import (
	"context"
	"fmt"
)

// Trisa weight scale GATT UUIDs
const (
	ScaleServiceUUID          = "00007802-0000-1000-8000-00805f9b34fb"
	MeasurementCharUUID       = "00008a21-0000-1000-8000-00805f9b34fb"
	AppendMeasurementCharUUID = "00008a22-0000-1000-8000-00805f9b34fb"
	DownloadCommandCharUUID   = "00008a81-0000-1000-8000-00805f9b34fb"
	UploadCommandCharUUID     = "00008a82-0000-1000-8000-00805f9b34fb"
	ScaleNamePrefix           = "01257B" // advertised name is prefix + hex(broadcast id)
)

// Role identifies one of the scale characteristics the session uses.
type Role int

const (
	RoleMeasurement Role = iota
	RoleAppendMeasurement
	RoleUploadCommand
	RoleDownloadCommand
)

// allRoles lists every characteristic that must exist on the scale.
var allRoles = []Role{RoleMeasurement, RoleAppendMeasurement, RoleUploadCommand, RoleDownloadCommand}

// notifyingRoles lists the characteristics the scale notifies on.
var notifyingRoles = []Role{RoleMeasurement, RoleAppendMeasurement, RoleUploadCommand}

// UUID returns the characteristic UUID for the role.
func (r Role) UUID() string {
	switch r {
	case RoleMeasurement:
		return MeasurementCharUUID
	case RoleAppendMeasurement:
		return AppendMeasurementCharUUID
	case RoleUploadCommand:
		return UploadCommandCharUUID
	case RoleDownloadCommand:
		return DownloadCommandCharUUID
	default:
		return ""
	}
}

func (r Role) String() string {
	switch r {
	case RoleMeasurement:
		return "measurement"
	case RoleAppendMeasurement:
		return "append-measurement"
	case RoleUploadCommand:
		return "upload-command"
	case RoleDownloadCommand:
		return "download-command"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Characteristic represents a BLE GATT characteristic.
type Characteristic interface {
	// Write sends data to the characteristic.
	Write(data []byte) error
	// Subscribe enables notifications and registers a callback for them.
	Subscribe(callback func(data []byte)) error
}

// Device represents a discovered BLE peripheral.
type Device struct {
	Name    string
	Address string
	RSSI    int
}

// Connection represents an active BLE connection to a peripheral.
type Connection interface {
	// DiscoverCharacteristic finds a characteristic by UUID within a service.
	DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error)
	// Disconnect terminates the connection.
	Disconnect() error
	// OnDisconnect registers a callback invoked when the connection drops.
	OnDisconnect(callback func())
}

// Adapter abstracts the BLE hardware adapter for testing.
type Adapter interface {
	// Enable powers on the BLE adapter.
	Enable() error
	// Scan discovers peripherals advertising the given service UUID or the
	// scale name prefix until ctx is cancelled.
	Scan(ctx context.Context, serviceUUID string) ([]Device, error)
	// Connect establishes a connection to the device with the given address.
	Connect(ctx context.Context, address string) (Connection, error)
}
