//go:build !linux

package ble

import "tinygo.org/x/bluetooth"

// platformAdapter returns the default adapter; only BlueZ exposes more
// than one.
func platformAdapter(string) *bluetooth.Adapter {
	return bluetooth.DefaultAdapter
}
