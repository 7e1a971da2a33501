package ble

// Event is a transport event consumed by Session.Handle.
type Event interface {
	event()
}

// ServicesResolved signals that GATT discovery may proceed.
type ServicesResolved struct{}

// NotifyEnabled confirms that notifications are on for a characteristic.
type NotifyEnabled struct {
	Role Role
}

// NotifyFailed reports that notifications could not be enabled.
type NotifyFailed struct {
	Role Role
	Err  error
}

// ValueUpdated carries a notification received from the scale.
type ValueUpdated struct {
	Role Role
	Data []byte
}

// WriteSucceeded reports the completion of a download command write.
// Opcode is the first byte of the written command.
type WriteSucceeded struct {
	Opcode byte
}

// WriteFailed reports a failed download command write.
type WriteFailed struct {
	Opcode byte
	Err    error
}

// Disconnected reports that the link to the scale dropped.
type Disconnected struct{}

func (ServicesResolved) event() {}
func (NotifyEnabled) event()    {}
func (NotifyFailed) event()     {}
func (ValueUpdated) event()     {}
func (WriteSucceeded) event()   {}
func (WriteFailed) event()      {}
func (Disconnected) event()     {}
