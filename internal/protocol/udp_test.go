package protocol

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/report"
)

func TestTabletPacketSize(t *testing.T) {
	pkt := &UDPPacket{Type: UDPPacketTablet, Seq: 7, Device: "pen0"}
	data := EncodeUDPPacket(pkt)
	assert.Len(t, data, UDPHeaderSize+26+1+4)
	assert.Equal(t, UDPPacketTablet, data[0])
}

func TestEventRoundTrip(t *testing.T) {
	events := []report.Event{
		&report.TabletReport{
			Header:   report.Header{Device: "wacom-1", Seq: 42, Timestamp: 1700000000123},
			Position: r2.Vec{X: 1234.5, Y: -0.25},
			Pressure: 0.75,
			Buttons:  report.ButtonTip | report.ButtonBarrel2,
		},
		&report.AuxReport{Header: report.Header{Device: "wacom-1", Seq: 43}, Buttons: report.ButtonBarrel1},
		&report.Disconnect{Header: report.Header{Device: "wacom-1", Seq: 44}},
	}
	for _, e := range events {
		pkt, ok := PacketFromEvent(e)
		require.True(t, ok)

		decoded, err := DecodeUDPPacket(EncodeUDPPacket(pkt))
		require.NoError(t, err)
		got, ok := decoded.Event()
		require.True(t, ok)
		assert.Equal(t, e, got)
	}
}

func TestControlPackets(t *testing.T) {
	for _, typ := range []uint8{UDPPacketRegister, UDPPacketHeartbeat, UDPPacketAck} {
		data := EncodeUDPPacket(&UDPPacket{Type: typ, Timestamp: 99})
		assert.Len(t, data, UDPHeaderSize)

		pkt, err := DecodeUDPPacket(data)
		require.NoError(t, err)
		assert.Equal(t, typ, pkt.Type)
		assert.Equal(t, int64(99), pkt.Timestamp)
		_, ok := pkt.Event()
		assert.False(t, ok)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := DecodeUDPPacket([]byte{0x01, 0x00})
	assert.ErrorIs(t, err, ErrShortPacket)

	full := EncodeUDPPacket(&UDPPacket{Type: UDPPacketTablet, Device: "abc"})
	_, err = DecodeUDPPacket(full[:UDPHeaderSize+10])
	assert.ErrorIs(t, err, ErrShortPacket)

	// device length says 3, only 1 byte follows
	_, err = DecodeUDPPacket(full[:len(full)-2])
	assert.ErrorIs(t, err, ErrShortPacket)

	unknown := make([]byte, UDPHeaderSize)
	unknown[0] = 0x7f
	_, err = DecodeUDPPacket(unknown)
	assert.ErrorIs(t, err, ErrUnknownPacket)
}

func TestLongDeviceTruncated(t *testing.T) {
	long := strings.Repeat("x", 300)
	data := EncodeUDPPacket(&UDPPacket{Type: UDPPacketDisconnect, Device: long})
	assert.LessOrEqual(t, len(data), MaxUDPPacketSize)

	pkt, err := DecodeUDPPacket(data)
	require.NoError(t, err)
	assert.Len(t, pkt.Device, MaxDeviceLen)
}

func TestReportPayloadJSON(t *testing.T) {
	msg := Message{
		Type: TypeReport,
		Payload: ReportPayload{
			Record: report.Record{Kind: report.KindTablet, X: 3, Y: 4, Pressure: 1},
			Phase:  "anchored",
		},
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"report","payload":{"kind":"tablet","x":3,"y":4,"pressure":1,"phase":"anchored"}}`, string(data))
}
