package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/report"
)

// UDP Packet types
const (
	UDPPacketTablet     uint8 = 0x01
	UDPPacketAux        uint8 = 0x02
	UDPPacketDisconnect uint8 = 0x03
	UDPPacketRegister   uint8 = 0x10
	UDPPacketHeartbeat  uint8 = 0x11
	UDPPacketAck        uint8 = 0x12 // confirms the UDP path is open
)

// Header: [type(1)] [seq(4)] [timestamp(8)] = 13 bytes
const UDPHeaderSize = 13

// MaxDeviceLen is the longest device id that fits the wire format
const MaxDeviceLen = 255

// MaxUDPPacketSize bounds every encoded packet
const MaxUDPPacketSize = UDPHeaderSize + 26 + 1 + MaxDeviceLen

// UDPPacket represents a binary-encoded report for low-latency UDP transport.
//
// Wire format per type:
//
//	Tablet     (0x01): header + x(f64) + y(f64) + pressure(f64) + buttons(u16) + device
//	Aux        (0x02): header + buttons(u16) + device
//	Disconnect (0x03): header + device
//	Register   (0x10): header only
//	Heartbeat  (0x11): header only
//	Ack        (0x12): header only
//
// device is a length byte followed by that many bytes of id.
type UDPPacket struct {
	Type      uint8
	Seq       uint32
	Timestamp int64
	X         float64
	Y         float64
	Pressure  float64
	Buttons   uint16
	Device    string
}

// EncodeUDPPacket serializes a UDPPacket to wire format.
func EncodeUDPPacket(pkt *UDPPacket) []byte {
	device := pkt.Device
	if len(device) > MaxDeviceLen {
		device = device[:MaxDeviceLen]
	}

	size := UDPHeaderSize
	switch pkt.Type {
	case UDPPacketTablet:
		size += 26 + 1 + len(device) // x(8) + y(8) + pressure(8) + buttons(2)
	case UDPPacketAux:
		size += 2 + 1 + len(device)
	case UDPPacketDisconnect:
		size += 1 + len(device)
	}

	buf := make([]byte, size)
	buf[0] = pkt.Type
	binary.BigEndian.PutUint32(buf[1:5], pkt.Seq)
	binary.BigEndian.PutUint64(buf[5:13], uint64(pkt.Timestamp))

	payload := buf[UDPHeaderSize:]
	switch pkt.Type {
	case UDPPacketTablet:
		binary.BigEndian.PutUint64(payload[0:8], math.Float64bits(pkt.X))
		binary.BigEndian.PutUint64(payload[8:16], math.Float64bits(pkt.Y))
		binary.BigEndian.PutUint64(payload[16:24], math.Float64bits(pkt.Pressure))
		binary.BigEndian.PutUint16(payload[24:26], pkt.Buttons)
		putDevice(payload[26:], device)
	case UDPPacketAux:
		binary.BigEndian.PutUint16(payload[0:2], pkt.Buttons)
		putDevice(payload[2:], device)
	case UDPPacketDisconnect:
		putDevice(payload, device)
	}

	return buf
}

func putDevice(b []byte, device string) {
	b[0] = uint8(len(device))
	copy(b[1:], device)
}

func readDevice(b []byte) (string, error) {
	if len(b) < 1 {
		return "", fmt.Errorf("%w: missing device length", ErrShortPacket)
	}
	n := int(b[0])
	if len(b) < 1+n {
		return "", fmt.Errorf("%w: device id", ErrShortPacket)
	}
	return string(b[1 : 1+n]), nil
}

// DecodeUDPPacket deserializes wire bytes into a UDPPacket.
func DecodeUDPPacket(data []byte) (*UDPPacket, error) {
	if len(data) < UDPHeaderSize {
		return nil, ErrShortPacket
	}

	pkt := &UDPPacket{
		Type:      data[0],
		Seq:       binary.BigEndian.Uint32(data[1:5]),
		Timestamp: int64(binary.BigEndian.Uint64(data[5:13])),
	}

	var err error
	payload := data[UDPHeaderSize:]
	switch pkt.Type {
	case UDPPacketTablet:
		if len(payload) < 26 {
			return nil, fmt.Errorf("%w: tablet payload", ErrShortPacket)
		}
		pkt.X = math.Float64frombits(binary.BigEndian.Uint64(payload[0:8]))
		pkt.Y = math.Float64frombits(binary.BigEndian.Uint64(payload[8:16]))
		pkt.Pressure = math.Float64frombits(binary.BigEndian.Uint64(payload[16:24]))
		pkt.Buttons = binary.BigEndian.Uint16(payload[24:26])
		pkt.Device, err = readDevice(payload[26:])
	case UDPPacketAux:
		if len(payload) < 2 {
			return nil, fmt.Errorf("%w: aux payload", ErrShortPacket)
		}
		pkt.Buttons = binary.BigEndian.Uint16(payload[0:2])
		pkt.Device, err = readDevice(payload[2:])
	case UDPPacketDisconnect:
		pkt.Device, err = readDevice(payload)
	case UDPPacketRegister, UDPPacketHeartbeat, UDPPacketAck:
		// no payload
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnknownPacket, pkt.Type)
	}
	if err != nil {
		return nil, err
	}

	return pkt, nil
}

// PacketFromEvent builds the wire packet for a report
func PacketFromEvent(e report.Event) (*UDPPacket, bool) {
	h := e.Meta()
	pkt := &UDPPacket{Seq: h.Seq, Timestamp: h.Timestamp, Device: h.Device}
	switch ev := e.(type) {
	case *report.TabletReport:
		pkt.Type = UDPPacketTablet
		pkt.X, pkt.Y = ev.Position.X, ev.Position.Y
		pkt.Pressure = ev.Pressure
		pkt.Buttons = ev.Buttons
	case *report.AuxReport:
		pkt.Type = UDPPacketAux
		pkt.Buttons = ev.Buttons
	case *report.Disconnect:
		pkt.Type = UDPPacketDisconnect
	default:
		return nil, false
	}
	return pkt, true
}

// Event converts a report packet back into a report. Control packets
// return false.
func (pkt *UDPPacket) Event() (report.Event, bool) {
	h := report.Header{Device: pkt.Device, Seq: pkt.Seq, Timestamp: pkt.Timestamp}
	switch pkt.Type {
	case UDPPacketTablet:
		return &report.TabletReport{
			Header:   h,
			Position: r2.Vec{X: pkt.X, Y: pkt.Y},
			Pressure: pkt.Pressure,
			Buttons:  pkt.Buttons,
		}, true
	case UDPPacketAux:
		return &report.AuxReport{Header: h, Buttons: pkt.Buttons}, true
	case UDPPacketDisconnect:
		return &report.Disconnect{Header: h}, true
	default:
		return nil, false
	}
}
