package network

import (
	"log"
	"net"
	"sync"
	"time"

	"pendrag/internal/protocol"
	"pendrag/internal/report"
)

// UDPReceiver is the consumer side of the forward stream: it registers with
// a pendrag daemon and receives the filtered reports.
type UDPReceiver struct {
	hostAddr string // daemon forward address in "ip:port" format
	conn     *net.UDPConn
	done     chan struct{}
	wg       sync.WaitGroup

	// OnEvent is called for each received report
	OnEvent func(report.Event)

	// dedup ring buffer for redundant packets
	dedup *seqDedup

	// HeartbeatInterval defaults to 5s
	HeartbeatInterval time.Duration
}

// NewUDPReceiver creates a new UDP receiver for the consumer.
func NewUDPReceiver(hostAddr string) *UDPReceiver {
	return &UDPReceiver{
		hostAddr:          hostAddr,
		done:              make(chan struct{}),
		dedup:             newSeqDedup(),
		HeartbeatInterval: 5 * time.Second,
	}
}

// Probe tests whether UDP connectivity to the daemon is available.
// It sends register packets and waits for an Ack response.
// Returns true if the daemon replied within the timeout, false otherwise.
func (r *UDPReceiver) Probe() bool {
	hostUDP, err := net.ResolveUDPAddr("udp", r.hostAddr)
	if err != nil {
		log.Printf("UDP Probe: failed to resolve host: %v", err)
		return false
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		log.Printf("UDP Probe: failed to bind: %v", err)
		return false
	}
	defer conn.Close()

	// Try up to 3 times with 500ms timeout each (total max ~1.5s)
	buf := make([]byte, 64)
	for attempt := 0; attempt < 3; attempt++ {
		pkt := &protocol.UDPPacket{
			Type:      protocol.UDPPacketRegister,
			Timestamp: time.Now().UnixMilli(),
		}
		conn.WriteToUDP(protocol.EncodeUDPPacket(pkt), hostUDP)

		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue // timeout or error, retry
		}
		resp, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil {
			continue
		}
		if resp.Type == protocol.UDPPacketAck {
			log.Printf("UDP Probe: host replied with Ack (attempt %d), UDP path is open", attempt+1)
			return true
		}
	}

	log.Printf("UDP Probe: no Ack received after 3 attempts, UDP path blocked")
	return false
}

// Start opens a UDP socket, registers with the daemon, and begins receiving.
func (r *UDPReceiver) Start() error {
	hostUDP, err := net.ResolveUDPAddr("udp", r.hostAddr)
	if err != nil {
		return err
	}

	// Bind to any available local port
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: 0})
	if err != nil {
		return err
	}
	r.conn = conn

	// Large read buffer for burst receives
	conn.SetReadBuffer(1 << 20) // 1 MB

	log.Printf("UDP Receiver: Listening on %s, host=%s", conn.LocalAddr(), r.hostAddr)

	r.sendControl(protocol.UDPPacketRegister, hostUDP)

	r.wg.Add(2)
	go r.heartbeatLoop(hostUDP)
	go r.readLoop()

	return nil
}

// heartbeatLoop sends periodic heartbeat packets to keep the registration alive.
func (r *UDPReceiver) heartbeatLoop(hostAddr *net.UDPAddr) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.sendControl(protocol.UDPPacketHeartbeat, hostAddr)
		case <-r.done:
			return
		}
	}
}

// sendControl sends a register or heartbeat packet (header-only, no payload).
func (r *UDPReceiver) sendControl(pktType uint8, addr *net.UDPAddr) {
	pkt := &protocol.UDPPacket{
		Type:      pktType,
		Timestamp: time.Now().UnixMilli(),
	}
	r.conn.WriteToUDP(protocol.EncodeUDPPacket(pkt), addr)
}

// readLoop reads and dispatches incoming report packets.
func (r *UDPReceiver) readLoop() {
	defer r.wg.Done()
	errs := readErrors{component: "UDP Receiver"}
	buf := make([]byte, protocol.MaxUDPPacketSize)
	for {
		n, _, err := r.conn.ReadFromUDP(buf)
		if err != nil {
			if !errs.failed(err, r.done) {
				return
			}
			continue
		}
		errs.ok()

		pkt, err := protocol.DecodeUDPPacket(buf[:n])
		if err != nil {
			continue
		}

		ev, ok := pkt.Event()
		if !ok {
			continue
		}
		// Deduplicate redundant packets (same seq number)
		if r.dedup.isDuplicate(pkt.Seq) {
			continue
		}
		if r.OnEvent != nil {
			r.OnEvent(ev)
		}
	}
}

// Stop shuts down the UDP receiver.
func (r *UDPReceiver) Stop() {
	close(r.done)
	if r.conn != nil {
		r.conn.Close()
	}
	r.wg.Wait()
}
