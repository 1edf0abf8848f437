package network

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r2"

	"pendrag/internal/protocol"
	"pendrag/internal/report"
)

func TestSeqDedup(t *testing.T) {
	d := newSeqDedup()
	assert.False(t, d.isDuplicate(1))
	assert.True(t, d.isDuplicate(1))
	assert.False(t, d.isDuplicate(2))

	// unsequenced packets always pass
	assert.False(t, d.isDuplicate(0))
	assert.False(t, d.isDuplicate(0))

	// seq 1 falls out of the ring after 512 newer entries
	for i := uint32(3); i < 3+512; i++ {
		d.isDuplicate(i)
	}
	assert.False(t, d.isDuplicate(1))
}

type collector struct {
	mu     sync.Mutex
	events []report.Event
}

func (c *collector) add(e report.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) snapshot() []report.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]report.Event(nil), c.events...)
}

func TestIngestDecodesAndDedups(t *testing.T) {
	in := NewUDPIngest("127.0.0.1:0")
	var got collector
	in.OnEvent = got.add
	require.NoError(t, in.Start())
	defer in.Stop()

	conn, err := net.DialUDP("udp", nil, in.Addr().(*net.UDPAddr))
	require.NoError(t, err)
	defer conn.Close()

	tablet := protocol.EncodeUDPPacket(&protocol.UDPPacket{
		Type: protocol.UDPPacketTablet, Seq: 1, X: 10, Y: 20, Pressure: 0.5, Device: "pen",
	})
	anon := protocol.EncodeUDPPacket(&protocol.UDPPacket{Type: protocol.UDPPacketAux, Seq: 2, Buttons: 3})
	for _, b := range [][]byte{tablet, tablet, tablet, anon} {
		_, err := conn.Write(b)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	events := got.snapshot()
	tr := events[0].(*report.TabletReport)
	assert.Equal(t, r2.Vec{X: 10, Y: 20}, tr.Position)
	assert.Equal(t, "pen", tr.Device)
	// packets without a device id are keyed by producer address
	assert.Equal(t, conn.LocalAddr().String(), report.Device(events[1]))
}

func TestIngestForgetsSilentProducers(t *testing.T) {
	in := NewUDPIngest("127.0.0.1:0")
	in.producerTTL = 100 * time.Millisecond
	var got collector
	in.OnEvent = got.add
	require.NoError(t, in.Start())
	defer in.Stop()

	send := func(seq uint32) {
		conn, err := net.DialUDP("udp", nil, in.Addr().(*net.UDPAddr))
		require.NoError(t, err)
		defer conn.Close()
		_, err = conn.Write(protocol.EncodeUDPPacket(&protocol.UDPPacket{Type: protocol.UDPPacketAux, Seq: seq, Device: "pen"}))
		require.NoError(t, err)
	}

	// each dial is a new ephemeral port, like a restarted producer
	send(1)
	send(1)
	require.Eventually(t, func() bool { return len(got.snapshot()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, in.producers.Len())

	require.Eventually(t, func() bool { return in.producers.Len() == 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestReadErrorsBackOff(t *testing.T) {
	errs := readErrors{component: "test"}
	done := make(chan struct{})

	start := time.Now()
	assert.True(t, errs.failed(assert.AnError, done))
	assert.True(t, errs.failed(assert.AnError, done))
	assert.GreaterOrEqual(t, time.Since(start), 2*readErrorBackoff)
	assert.Equal(t, 2, errs.streak)

	errs.ok()
	assert.Zero(t, errs.streak)

	close(done)
	assert.False(t, errs.failed(assert.AnError, done))
}

func TestIngestAcksRegister(t *testing.T) {
	in := NewUDPIngest("127.0.0.1:0")
	require.NoError(t, in.Start())
	defer in.Stop()

	r := NewUDPReceiver(in.Addr().String())
	assert.True(t, r.Probe())
}

func TestSenderForwardsToRegisteredConsumer(t *testing.T) {
	s := NewUDPSender("127.0.0.1:0")
	require.NoError(t, s.Start())
	defer s.Stop()

	r := NewUDPReceiver(s.Addr().String())
	var got collector
	r.OnEvent = got.add
	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, s.HasConsumers, 2*time.Second, 10*time.Millisecond)

	s.Send(&report.TabletReport{Header: report.Header{Device: "pen"}, Position: r2.Vec{X: 1, Y: 2}, Pressure: 1})
	s.Send(&report.TabletReport{Header: report.Header{Device: "pen"}, Position: r2.Vec{X: 1, Y: 2}, Pressure: 1})
	s.Send(&report.AuxReport{Header: report.Header{Device: "pen"}, Buttons: report.ButtonBarrel1})

	// redundant copies are dropped by the receiver
	require.Eventually(t, func() bool { return len(got.snapshot()) == 3 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	events := got.snapshot()
	require.Len(t, events, 3)
	assert.Equal(t, report.KindTablet, events[0].Kind())
	assert.Equal(t, report.KindAux, events[2].Kind())
}

func TestSenderWithoutConsumers(t *testing.T) {
	s := NewUDPSender("127.0.0.1:0")
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.False(t, s.HasConsumers())
	s.Send(&report.Disconnect{})
}
