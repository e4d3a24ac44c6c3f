package domain

// PillboxDevice identifies a pillbox visible to a scan.
type PillboxDevice struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Compartment is one pillbox slot and its current lid state.
type Compartment struct {
	ID   int  `json:"id"`
	Open bool `json:"open"`
}

// DeviceState is a point-in-time snapshot of the paired pillbox. It is never
// persisted; the device transport publishes a fresh copy on every change and
// consumers (API, health monitor) read whichever snapshot is current.
type DeviceState struct {
	Connected    bool           `json:"connected"`
	BatteryLevel int            `json:"battery_level"`
	Device       *PillboxDevice `json:"device,omitempty"`
	Compartments []Compartment  `json:"compartments"`
}
