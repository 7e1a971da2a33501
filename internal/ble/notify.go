package ble

// NotificationTracker records which scale characteristics have
// notifications enabled. The zero value has all flags cleared.
type NotificationTracker struct {
	measurement       bool
	appendMeasurement bool
	uploadCommand     bool
}

// SetEnabled updates the flag for role. Roles that never notify are ignored.
func (t *NotificationTracker) SetEnabled(role Role, enabled bool) {
	switch role {
	case RoleMeasurement:
		t.measurement = enabled
	case RoleAppendMeasurement:
		t.appendMeasurement = enabled
	case RoleUploadCommand:
		t.uploadCommand = enabled
	}
}

// Enabled reports the flag for role.
func (t *NotificationTracker) Enabled(role Role) bool {
	switch role {
	case RoleMeasurement:
		return t.measurement
	case RoleAppendMeasurement:
		return t.appendMeasurement
	case RoleUploadCommand:
		return t.uploadCommand
	default:
		return false
	}
}

// AllEnabled reports whether every notifying characteristic is enabled.
func (t *NotificationTracker) AllEnabled() bool {
	return t.measurement && t.appendMeasurement && t.uploadCommand
}
