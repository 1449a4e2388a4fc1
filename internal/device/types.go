package device

import "time"

// Device represents a network-controlled fireplace.
//
// The generated ID doubles as the voice-platform endpoint id. The control
// address (the URL of the device's agent) is the true identity key: devices
// re-register with a fresh id after firmware resets, so all registration
// paths reconcile by address rather than id.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// ControlAddress is the base URL of the device agent.
	// Unique across non-deleted devices.
	ControlAddress string `json:"control_address"`

	PowerSource PowerSource `json:"power_source"`

	// Status is the last known on/off state. It is advisory:
	// concurrent control requests are last-writer-wins.
	Status Status `json:"status"`

	// StatusUpdatedAt is when the status was last confirmed by the device
	// agent. Nil until the first confirmed observation.
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`

	// BatteryLevel is the battery percentage for battery-powered devices.
	BatteryLevel *int `json:"battery_level,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PowerSource classifies how a device is powered.
type PowerSource string

// PowerSource constants.
const (
	PowerSourceLine    PowerSource = "line"
	PowerSourceBattery PowerSource = "battery"
)

// Status represents the last known power state of a device.
type Status string

// Status constants.
const (
	StatusOn      Status = "on"
	StatusOff     Status = "off"
	StatusUnknown Status = "unknown"
)

// Link associates an account with a device.
type Link struct {
	AccountID string     `json:"account_id"`
	DeviceID  string     `json:"device_id"`
	Status    LinkStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// LinkStatus is the per-link registration state for voice control.
type LinkStatus string

// LinkStatus constants.
const (
	// LinkStatusRegisterable marks a device eligible for voice control
	// once linking completes.
	LinkStatusRegisterable LinkStatus = "registerable"

	// LinkStatusNotRegisterable marks a device excluded from voice
	// control. Battery-powered devices are always in this state: their
	// latency and availability are too unreliable for a voice session.
	LinkStatusNotRegisterable LinkStatus = "not_registerable"

	// LinkStatusAvailable marks a device exposed to the voice platform.
	LinkStatusAvailable LinkStatus = "available"
)

// LinkStatusFor returns the link status a completed linking flow assigns
// to a device based on its power source.
func LinkStatusFor(ps PowerSource) LinkStatus {
	if ps == PowerSourceBattery {
		return LinkStatusNotRegisterable
	}
	return LinkStatusAvailable
}
