// Package events broadcasts audio service events over a kelindar/event
// dispatcher: device plug/unplug, routing changes, volume changes, and
// real-time anomalies (mix overruns, capture overflows).
package events

// Event type constants for kelindar/event.
const (
	TypeDeviceAdded uint32 = iota + 1
	TypeDeviceRemoved
	TypeRouteChanged
	TypeVolumeChanged
	TypeMixOverrun
	TypeCaptureOverflow
)

// Event is the interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DeviceAddedEvent fires when a device finishes activation and joins routing.
type DeviceAddedEvent struct {
	DeviceID  string `json:"device_id"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

func (e DeviceAddedEvent) Type() uint32 { return TypeDeviceAdded }

// DeviceRemovedEvent fires when a device leaves the graph.
type DeviceRemovedEvent struct {
	DeviceID  string `json:"device_id"`
	Direction string `json:"direction"`
	Timestamp string `json:"timestamp"`
}

func (e DeviceRemovedEvent) Type() uint32 { return TypeDeviceRemoved }

// RouteChangedEvent fires when a routing category picks a new target device.
type RouteChangedEvent struct {
	Category  string `json:"category"`
	DeviceID  string `json:"device_id,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (e RouteChangedEvent) Type() uint32 { return TypeRouteChanged }

// VolumeChangedEvent fires when a usage's volume or gain table changes.
type VolumeChangedEvent struct {
	Usage     string  `json:"usage"`
	Volume    float64 `json:"volume"`
	GainDB    float64 `json:"gain_db"`
	Timestamp string  `json:"timestamp"`
}

func (e VolumeChangedEvent) Type() uint32 { return TypeVolumeChanged }

// MixOverrunEvent fires when an output's mix loop misses its deadline and
// resets its schedule to now.
type MixOverrunEvent struct {
	DeviceID  string `json:"device_id"`
	LateBy    string `json:"late_by"`
	Timestamp string `json:"timestamp"`
}

func (e MixOverrunEvent) Type() uint32 { return TypeMixOverrun }

// CaptureOverflowEvent fires when a capture interval was lost or truncated.
type CaptureOverflowEvent struct {
	CapturerID string `json:"capturer_id"`
	Partial    bool   `json:"partial"`
	Timestamp  string `json:"timestamp"`
}

func (e CaptureOverflowEvent) Type() uint32 { return TypeCaptureOverflow }
