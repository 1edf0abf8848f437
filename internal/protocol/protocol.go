// Package protocol defines the UDP and WebSocket wire formats of pendrag.
package protocol

import (
	"pendrag/internal/report"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// TypeHello is sent by the server right after a client connects
	TypeHello MessageType = "hello"

	// TypeReport carries one filtered report
	TypeReport MessageType = "report"

	// TypeStatus carries a status snapshot, sent on TypeStatusRequest
	TypeStatus MessageType = "status"

	// TypeStatusRequest is sent by clients to ask for TypeStatus
	TypeStatusRequest MessageType = "status_req"

	// TypePing can be used for application-level heartbeats if needed
	TypePing MessageType = "ping"
)

// Message is the generic container for all WebSocket messages
type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload,omitempty"`
}

// HelloPayload is the payload for TypeHello
type HelloPayload struct {
	ClientID string `json:"client_id"`
	Version  string `json:"version"`
}

// ReportPayload is the payload for TypeReport
type ReportPayload struct {
	report.Record
	// Phase is the filter phase after this report was processed
	Phase string `json:"phase,omitempty"`
}

// DeviceStatus is the filter state of one input channel
type DeviceStatus struct {
	Device string      `json:"device"`
	Phase  string      `json:"phase"`
	Anchor *[2]float64 `json:"anchor,omitempty"`
}

// StatusPayload is the payload for TypeStatus and GET /api/status
type StatusPayload struct {
	Threshold        float64        `json:"threshold"`
	SmoothTransition bool           `json:"smooth_transition"`
	Devices          []DeviceStatus `json:"devices"`
	Stats            map[string]any `json:"stats"`
}
