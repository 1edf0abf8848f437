package protocol

import "errors"

var (
	// ErrShortPacket is returned when a packet is smaller than its type requires
	ErrShortPacket = errors.New("udp: packet too short")

	// ErrUnknownPacket is returned for an unrecognised packet type
	ErrUnknownPacket = errors.New("udp: unknown packet type")
)
