package network

import (
	"context"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"pendrag/internal/protocol"
	"pendrag/internal/report"
)

// ConsumerTTL is how long a consumer stays registered without a heartbeat
const ConsumerTTL = 30 * time.Second

// UDPSender forwards filtered reports to every registered consumer.
type UDPSender struct {
	addr      string
	conn      *net.UDPConn
	consumers *ttlcache.Cache[string, *net.UDPAddr]
	seq       uint32 // atomic, monotonically increasing
	done      chan struct{}
	wg        sync.WaitGroup

	contactMu sync.Mutex
	contact   map[string]bool // last contact state per device
}

// NewUDPSender creates a sender bound to addr (e.g. ":19091").
func NewUDPSender(addr string) *UDPSender {
	consumers := ttlcache.New[string, *net.UDPAddr](
		ttlcache.WithTTL[string, *net.UDPAddr](ConsumerTTL),
	)
	consumers.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *net.UDPAddr]) {
		if reason == ttlcache.EvictionReasonExpired {
			log.Printf("UDP Sender: Removing stale consumer %s", item.Key())
		}
	})
	return &UDPSender{
		addr:      addr,
		consumers: consumers,
		done:      make(chan struct{}),
		contact:   make(map[string]bool),
	}
}

// Start binds the UDP socket and begins listening for consumer registrations.
func (s *UDPSender) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	s.conn = conn

	// 1 MB write buffer for burst writes
	conn.SetWriteBuffer(1 << 20)
	// 64 KB read buffer for register/heartbeat
	conn.SetReadBuffer(1 << 16)

	log.Printf("UDP Sender: Listening on %s", conn.LocalAddr())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		s.consumers.Start()
	}()
	go s.readLoop()

	return nil
}

// Addr returns the bound address, nil before Start.
func (s *UDPSender) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}

// readLoop listens for register and heartbeat packets from consumers.
func (s *UDPSender) readLoop() {
	defer s.wg.Done()
	errs := readErrors{component: "UDP Sender"}
	buf := make([]byte, 64)
	for {
		n, remoteAddr, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if !errs.failed(err, s.done) {
				return
			}
			continue
		}
		errs.ok()

		pkt, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil {
			continue
		}

		switch pkt.Type {
		case protocol.UDPPacketRegister:
			s.register(remoteAddr, "register")

			// Reply with Ack so the consumer can confirm UDP connectivity
			ack := &protocol.UDPPacket{
				Type:      protocol.UDPPacketAck,
				Timestamp: time.Now().UnixMilli(),
			}
			s.conn.WriteToUDP(protocol.EncodeUDPPacket(ack), remoteAddr)

		case protocol.UDPPacketHeartbeat:
			s.register(remoteAddr, "heartbeat")
		}
	}
}

func (s *UDPSender) register(addr *net.UDPAddr, via string) {
	key := addr.String()
	if !s.consumers.Has(key) {
		log.Printf("UDP Sender: Consumer registered from %s (via %s)", key, via)
	}
	s.consumers.Set(key, addr, ttlcache.DefaultTTL)
}

// Send encodes a report and sends it to all registered consumers. Contact
// edges, button reports and disconnects are sent several times since UDP
// has no delivery guarantee; consumers drop the copies by sequence number.
func (s *UDPSender) Send(e report.Event) {
	pkt, ok := protocol.PacketFromEvent(e)
	if !ok {
		return
	}
	pkt.Seq = atomic.AddUint32(&s.seq, 1)

	redundancy := 1
	switch ev := e.(type) {
	case *report.TabletReport:
		if s.contactChanged(ev.Device, ev.Pressure > 0) {
			redundancy = 3
		}
	case *report.AuxReport:
		redundancy = 3
	case *report.Disconnect:
		s.contactMu.Lock()
		delete(s.contact, ev.Device)
		s.contactMu.Unlock()
		redundancy = 3
	}

	s.broadcast(protocol.EncodeUDPPacket(pkt), redundancy)
}

func (s *UDPSender) contactChanged(device string, active bool) bool {
	s.contactMu.Lock()
	defer s.contactMu.Unlock()
	prev := s.contact[device]
	s.contact[device] = active
	return prev != active
}

// broadcast sends data to all registered consumers.
func (s *UDPSender) broadcast(data []byte, redundancy int) {
	if s.conn == nil {
		return
	}
	s.consumers.Range(func(item *ttlcache.Item[string, *net.UDPAddr]) bool {
		for i := 0; i < redundancy; i++ {
			s.conn.WriteToUDP(data, item.Value())
		}
		return true
	})
}

// HasConsumers returns true if at least one consumer is registered.
func (s *UDPSender) HasConsumers() bool {
	return s.consumers.Len() > 0
}

// Stop shuts down the UDP sender.
func (s *UDPSender) Stop() {
	close(s.done)
	if s.conn != nil {
		s.consumers.Stop()
		s.conn.Close()
	}
	s.wg.Wait()
}
