package network

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"pendrag/internal/protocol"
	"pendrag/internal/report"
)

// ProducerTTL is how long the sequence history of a silent producer is kept
const ProducerTTL = 2 * time.Minute

// UDPIngest receives raw pen reports from producers (tablet bridges) and
// hands them to OnEvent in arrival order.
type UDPIngest struct {
	addr string
	conn *net.UDPConn
	done chan struct{}
	wg   sync.WaitGroup

	// OnEvent is called from the read goroutine for each decoded report
	OnEvent func(report.Event)

	// dedup history per producer address, written only by readLoop
	producers   *ttlcache.Cache[string, *seqDedup]
	producerTTL time.Duration
}

// NewUDPIngest creates an ingest listener for addr (e.g. ":19090").
func NewUDPIngest(addr string) *UDPIngest {
	producers := ttlcache.New[string, *seqDedup]()
	producers.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *seqDedup]) {
		if reason == ttlcache.EvictionReasonExpired {
			log.Printf("UDP Ingest: Forgetting silent producer %s", item.Key())
		}
	})
	return &UDPIngest{
		addr:        addr,
		done:        make(chan struct{}),
		producers:   producers,
		producerTTL: ProducerTTL,
	}
}

// Start binds the socket and begins reading.
func (u *UDPIngest) Start() error {
	laddr, err := net.ResolveUDPAddr("udp", u.addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return err
	}
	u.conn = conn

	// 1 MB read buffer for burst receives
	conn.SetReadBuffer(1 << 20)

	log.Printf("UDP Ingest: Listening on %s", conn.LocalAddr())

	u.wg.Add(2)
	go func() {
		defer u.wg.Done()
		u.producers.Start()
	}()
	go u.readLoop()
	return nil
}

// Addr returns the bound address, nil before Start.
func (u *UDPIngest) Addr() net.Addr {
	if u.conn == nil {
		return nil
	}
	return u.conn.LocalAddr()
}

func (u *UDPIngest) readLoop() {
	defer u.wg.Done()
	errs := readErrors{component: "UDP Ingest"}
	buf := make([]byte, protocol.MaxUDPPacketSize)
	for {
		n, remoteAddr, err := u.conn.ReadFromUDP(buf)
		if err != nil {
			if !errs.failed(err, u.done) {
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
		case protocol.UDPPacketRegister, protocol.UDPPacketHeartbeat:
			// producers probe the path before streaming
			ack := &protocol.UDPPacket{
				Type:      protocol.UDPPacketAck,
				Timestamp: time.Now().UnixMilli(),
			}
			u.conn.WriteToUDP(protocol.EncodeUDPPacket(ack), remoteAddr)
			continue
		case protocol.UDPPacketAck:
			continue
		}

		key := remoteAddr.String()
		var d *seqDedup
		if item := u.producers.Get(key); item != nil {
			d = item.Value()
		} else {
			log.Printf("UDP Ingest: New producer %s", key)
			d = newSeqDedup()
			u.producers.Set(key, d, u.producerTTL)
		}
		if d.isDuplicate(pkt.Seq) {
			continue
		}

		ev, ok := pkt.Event()
		if !ok || u.OnEvent == nil {
			continue
		}
		if report.Device(ev) == "" {
			ev.Meta().Device = key
		}
		u.OnEvent(ev)
	}
}

// Stop closes the socket and waits for the read loop to exit.
func (u *UDPIngest) Stop() {
	close(u.done)
	if u.conn != nil {
		u.producers.Stop()
		u.conn.Close()
	}
	u.wg.Wait()
}
