// Package network implements the clock-chain's peer transport: the
// Networker capability of spec.md §6 (ready/stage/forward/reverse_peers/
// fetch_chain), built on WebSocket framing instead of the teacher's raw
// length-prefixed TCP, the way ProbeChain-go-probe and go-ethereum wire
// their devp2p/RPC transports on top of gorilla/websocket-style framed
// connections.
package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MsgType labels a network message's route.
type MsgType string

const (
	MsgHello    MsgType = "hello"
	MsgPing     MsgType = "ping"
	MsgTick     MsgType = "tick"
	MsgVote     MsgType = "vote"
	MsgGetChain MsgType = "get_chain"
	MsgChain    MsgType = "chain"
)

// Message is the envelope for all gossip and request/response traffic.
type Message struct {
	Type         MsgType         `json:"type"`
	Origin       string          `json:"origin,omitempty"`
	Redistribute int             `json:"redistribute,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Payload      json.RawMessage `json:"payload"`
}

// readWriteTimeout bounds individual WebSocket frame I/O so a stalled peer
// cannot block a worker indefinitely.
const readWriteTimeout = 30 * time.Second

// Peer represents a connected remote node over a WebSocket connection.
type Peer struct {
	ID   string
	Addr string

	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewPeer wraps an already-established WebSocket connection as a Peer
// (used for inbound connections accepted by the HTTP upgrader).
func NewPeer(id, addr string, conn *websocket.Conn) *Peer {
	return &Peer{ID: id, Addr: addr, conn: conn}
}

// Connect dials a remote peer's WebSocket endpoint. If tlsCfg is non-nil
// the connection uses wss:// with that TLS configuration.
func Connect(id, url string, tlsCfg *tls.Config) (*Peer, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		TLSClientConfig:  tlsCfg,
	}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return NewPeer(id, url, conn), nil
}

// Send writes a JSON message frame to the peer. Concurrent callers are
// serialized: gorilla/websocket connections support at most one writer at
// a time.
func (p *Peer) Send(msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	_ = p.conn.SetWriteDeadline(time.Now().Add(readWriteTimeout))
	return p.conn.WriteJSON(msg)
}

// Receive reads the next JSON message frame.
func (p *Peer) Receive() (Message, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(readWriteTimeout))
	var msg Message
	if err := p.conn.ReadJSON(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}

// upgrader is shared by all inbound connection handling. CheckOrigin is
// permissive: peer authenticity for gossip comes from mTLS (config.TLS),
// not WebSocket origin headers.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}
