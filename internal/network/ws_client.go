package network

import (
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pendrag/internal/protocol"
)

// WSClient follows the report stream of a pendrag daemon over WebSocket
// and reconnects when the connection drops.
type WSClient struct {
	hostAddr string
	token    string
	send     chan protocol.Message
	done     chan struct{}
	once     sync.Once

	// Callbacks
	OnHello  func(protocol.HelloPayload)
	OnReport func(protocol.ReportPayload)
	OnStatus func(protocol.StatusPayload)

	// ReconnectDelay defaults to 5s
	ReconnectDelay time.Duration

	mu          sync.Mutex
	isConnected bool
}

// NewWSClient creates a new WebSocket client for hostAddr ("host:port")
func NewWSClient(hostAddr, token string) *WSClient {
	return &WSClient{
		hostAddr:       hostAddr,
		token:          token,
		send:           make(chan protocol.Message, 100),
		done:           make(chan struct{}),
		ReconnectDelay: 5 * time.Second,
	}
}

// Start begins the client loop (connect & process)
func (c *WSClient) Start() {
	go c.loop()
}

func (c *WSClient) loop() {
	for {
		c.connect()

		// If connect returns, we disconnected. Wait a bit and retry.
		select {
		case <-c.done:
			return
		case <-time.After(c.ReconnectDelay):
			log.Println("WS Client: Attempting reconnection...")
		}
	}
}

func (c *WSClient) connect() {
	u := url.URL{Scheme: "ws", Host: c.hostAddr, Path: "/ws"}
	log.Printf("WS Client: Connecting to %s", u.String())

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), header)
	if err != nil {
		log.Printf("WS Client: Connection failed: %v", err)
		return
	}
	defer conn.Close()

	c.mu.Lock()
	c.isConnected = true
	c.mu.Unlock()

	log.Println("WS Client: Connected")

	// specific done channel for this connection
	connDone := make(chan struct{})
	writerDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		c.writePump(conn, connDone)
	}()

	c.RequestStatus()
	c.readPump(conn)

	c.mu.Lock()
	c.isConnected = false
	c.mu.Unlock()

	close(connDone)
	<-writerDone
}

func (c *WSClient) readPump(conn *websocket.Conn) {
	conn.SetReadLimit(1 << 16)
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error { conn.SetReadDeadline(time.Now().Add(60 * time.Second)); return nil })
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(10*time.Second))
	})

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		// unblock ReadMessage on Close
		select {
		case <-c.done:
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WS Client: Read error: %v", err)
			}
			return
		}

		var msg struct {
			Type    protocol.MessageType `json:"type"`
			Payload json.RawMessage      `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("WS Client: Invalid message: %v", err)
			continue
		}
		c.handleMessage(msg.Type, msg.Payload)
	}
}

func (c *WSClient) writePump(conn *websocket.Conn, connDone <-chan struct{}) {
	ticker := time.NewTicker(30 * time.Second) // Ping ticker
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("WS Client: Write error: %v", err)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(protocol.Message{Type: protocol.TypePing}); err != nil {
				return
			}

		case <-connDone:
			return
		case <-c.done:
			return
		}
	}
}

func (c *WSClient) handleMessage(typ protocol.MessageType, payload json.RawMessage) {
	switch typ {
	case protocol.TypeHello:
		var p protocol.HelloPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("WS Client: Invalid hello: %v", err)
			return
		}
		log.Printf("WS Client: Session %s (server %s)", p.ClientID, p.Version)
		if c.OnHello != nil {
			c.OnHello(p)
		}

	case protocol.TypeReport:
		var p protocol.ReportPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("WS Client: Invalid report: %v", err)
			return
		}
		if c.OnReport != nil {
			c.OnReport(p)
		}

	case protocol.TypeStatus:
		var p protocol.StatusPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			log.Printf("WS Client: Invalid status: %v", err)
			return
		}
		if c.OnStatus != nil {
			c.OnStatus(p)
		}
	}
}

// RequestStatus asks the daemon for a status snapshot
func (c *WSClient) RequestStatus() {
	select {
	case c.send <- protocol.Message{Type: protocol.TypeStatusRequest}:
	default:
	}
}

// IsConnected returns true if the client is connected
func (c *WSClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected
}

// Close stops the client
func (c *WSClient) Close() {
	c.once.Do(func() { close(c.done) })
}
