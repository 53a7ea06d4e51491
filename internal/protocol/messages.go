package protocol

import "time"

// DeviceAnnounce advertises a capture device joining the fleet.
type DeviceAnnounce struct {
	DeviceID     string    `json:"device_id"`
	Kind         string    `json:"kind"`
	Label        string    `json:"label,omitempty"`
	Capabilities []string  `json:"capabilities,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// DeviceHeartbeat keeps an announced device alive in the registry.
type DeviceHeartbeat struct {
	DeviceID  string    `json:"device_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	// SubjectInputEnvelope carries JSON input.Envelope submissions. A reply
	// subject, when set, receives the processed result directly.
	SubjectInputEnvelope = "input.envelope"
	// SubjectInputResult broadcasts the JSON input.Result for every routed
	// envelope.
	SubjectInputResult = "input.result"

	SubjectDeviceAnnounce        = "ctrl.device.announce"
	SubjectDeviceHeartbeatPrefix = "ctrl.device.heartbeat"
)
