//go:build linux

package ble

import "tinygo.org/x/bluetooth"

// platformAdapter returns the BlueZ adapter with the given id, or the
// default adapter when id is empty.
func platformAdapter(id string) *bluetooth.Adapter {
	if id == "" {
		return bluetooth.DefaultAdapter
	}
	return bluetooth.NewAdapter(id)
}
