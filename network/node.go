package network

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tolelom/tolchain/clock"
)

// MessageHandler is called for each received message whose route wasn't
// already consumed by Node's own gossip/fetch-chain plumbing.
type MessageHandler func(peer *Peer, msg Message)

// DefaultMaxPeers is the default limit on simultaneous peer connections.
const DefaultMaxPeers = 50

// fetchChainTimeout bounds how long FetchChain waits for a peer's reply.
const fetchChainTimeout = 10 * time.Second

// Node listens for incoming peers and manages outgoing connections; it
// implements the Networker contract (spec.md §6) consumed by
// consensus.Scheduler and clock.ForkResolver.
type Node struct {
	nodeID     string
	listenAddr string
	tlsConfig  *tls.Config // nil → plain ws://
	maxPeers   int
	minPeers   int // peers required before Ready() is true

	mu       sync.RWMutex
	peers    map[string]*Peer // peer id -> connection
	urls     map[string]string // peer id -> dial URL (reverse_peers)
	handlers map[MsgType]MessageHandler

	stageMu sync.RWMutex
	stage   string // "PING" | "SELECT", written by consensus.Scheduler

	pendingMu sync.Mutex
	pending   map[string]chan []clock.ChainEntry // correlation id -> reply channel

	server *http.Server
	stopCh chan struct{}
}

// NewNode creates a Node that will listen on listenAddr. getChain is called
// to answer inbound MsgGetChain requests with this node's own snapshot.
func NewNode(nodeID, listenAddr string, tlsCfg *tls.Config, minPeers int, getChain func() []clock.ChainEntry) *Node {
	n := &Node{
		nodeID:     nodeID,
		listenAddr: listenAddr,
		tlsConfig:  tlsCfg,
		maxPeers:   DefaultMaxPeers,
		minPeers:   minPeers,
		peers:      make(map[string]*Peer),
		urls:       make(map[string]string),
		handlers:   make(map[MsgType]MessageHandler),
		pending:    make(map[string]chan []clock.ChainEntry),
		stage:      "PING",
		stopCh:     make(chan struct{}),
	}
	n.Handle(MsgGetChain, n.handleGetChain(getChain))
	n.Handle(MsgChain, n.handleChain)
	return n
}

// Handle registers a handler for msg type, overriding any built-in one.
func (n *Node) Handle(typ MsgType, h MessageHandler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[typ] = h
}

// Start begins accepting inbound WebSocket connections.
func (n *Node) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", n.handleUpgrade)
	n.server = &http.Server{Addr: n.listenAddr, Handler: mux}
	if n.tlsConfig != nil {
		n.server.TLSConfig = n.tlsConfig
	}
	go func() {
		var err error
		if n.tlsConfig != nil {
			err = n.server.ListenAndServeTLS("", "")
		} else {
			err = n.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Printf("[network] serve error: %v", err)
		}
	}()
	return nil
}

// Stop shuts down the node and closes every peer connection.
func (n *Node) Stop() {
	close(n.stopCh)
	if n.server != nil {
		_ = n.server.Close()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.peers {
		p.Close()
	}
}

func (n *Node) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[network] upgrade error: %v", err)
		return
	}
	n.mu.RLock()
	peerCount := len(n.peers)
	n.mu.RUnlock()
	if peerCount >= n.maxPeers {
		log.Printf("[network] max peers (%d) reached, rejecting %s", n.maxPeers, r.RemoteAddr)
		conn.Close()
		return
	}
	peer := NewPeer(r.RemoteAddr, r.RemoteAddr, conn)
	n.mu.Lock()
	n.peers[peer.ID] = peer
	n.mu.Unlock()
	go n.readLoop(peer)
}

// AddPeer dials url (its ws:// or wss:// endpoint) and registers the peer
// under id, recording url in reverse_peers.
func (n *Node) AddPeer(id, url string) error {
	peer, err := Connect(id, url, n.tlsConfig)
	if err != nil {
		return err
	}
	n.mu.Lock()
	n.peers[id] = peer
	n.urls[id] = url
	n.mu.Unlock()
	go n.readLoop(peer)

	hello, err := json.Marshal(map[string]string{"node_id": n.nodeID})
	if err != nil {
		log.Printf("[network] marshal hello: %v", err)
		return nil
	}
	if err := peer.Send(Message{Type: MsgHello, Payload: hello}); err != nil {
		log.Printf("[network] send hello to %s: %v", id, err)
	}
	return nil
}

// Ready reports whether the peer set is usable (spec.md §6 ready). With
// minPeers == 0 a lone bootstrap node is always ready.
func (n *Node) Ready() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.peers) >= n.minPeers
}

// Stage returns the shared PING/SELECT gossip-prioritization flag.
func (n *Node) Stage() string {
	n.stageMu.RLock()
	defer n.stageMu.RUnlock()
	return n.stage
}

// SetStage is called by consensus.Scheduler as it transitions phases.
func (n *Node) SetStage(s string) {
	n.stageMu.Lock()
	n.stage = s
	n.stageMu.Unlock()
}

// ReversePeers returns a snapshot of peer id -> dial URL.
func (n *Node) ReversePeers() map[string]string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make(map[string]string, len(n.urls))
	for k, v := range n.urls {
		out[k] = v
	}
	return out
}

// Forward broadcasts payload to every connected peer except origin,
// best-effort (spec.md §6 forward). redistribute is carried along so
// receivers can decide whether to relay it further; this node does not
// auto-relay (the scheduler is the only originator in this design).
func (n *Node) Forward(payload []byte, route MsgType, origin string, redistribute int) {
	n.mu.RLock()
	peers := make([]*Peer, 0, len(n.peers))
	for id, p := range n.peers {
		if id == origin {
			continue
		}
		peers = append(peers, p)
	}
	n.mu.RUnlock()
	msg := Message{Type: route, Origin: origin, Redistribute: redistribute, Payload: payload}
	for _, p := range peers {
		if err := p.Send(msg); err != nil {
			log.Printf("[network] forward %s to %s: %v", route, p.ID, err)
		}
	}
}

// FetchChain blocks until peerAddr's full chain is retrieved or the
// request times out (spec.md §6 fetch_chain; §7 FetchError).
func (n *Node) FetchChain(peerAddr string) ([]clock.ChainEntry, error) {
	n.mu.RLock()
	peer, ok := n.peers[peerAddr]
	n.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("fetch chain: unknown peer %s", peerAddr)
	}

	correlationID := fmt.Sprintf("%s-%d", peerAddr, time.Now().UnixNano())
	reply := make(chan []clock.ChainEntry, 1)
	n.pendingMu.Lock()
	n.pending[correlationID] = reply
	n.pendingMu.Unlock()
	defer func() {
		n.pendingMu.Lock()
		delete(n.pending, correlationID)
		n.pendingMu.Unlock()
	}()

	req := Message{Type: MsgGetChain, Origin: n.nodeID, CorrelationID: correlationID}
	if err := peer.Send(req); err != nil {
		return nil, fmt.Errorf("fetch chain: send request: %w", err)
	}

	select {
	case chain := <-reply:
		return chain, nil
	case <-time.After(fetchChainTimeout):
		return nil, fmt.Errorf("fetch chain: timed out waiting for %s", peerAddr)
	}
}

func (n *Node) handleGetChain(getChain func() []clock.ChainEntry) MessageHandler {
	return func(peer *Peer, msg Message) {
		data, err := json.Marshal(getChain())
		if err != nil {
			log.Printf("[network] marshal chain reply: %v", err)
			return
		}
		reply := Message{Type: MsgChain, Origin: n.nodeID, CorrelationID: msg.CorrelationID, Payload: data}
		if err := peer.Send(reply); err != nil {
			log.Printf("[network] send chain reply to %s: %v", peer.ID, err)
		}
	}
}

func (n *Node) handleChain(_ *Peer, msg Message) {
	n.pendingMu.Lock()
	reply, ok := n.pending[msg.CorrelationID]
	n.pendingMu.Unlock()
	if !ok {
		return
	}
	var chain []clock.ChainEntry
	if err := json.Unmarshal(msg.Payload, &chain); err != nil {
		log.Printf("[network] unmarshal chain reply: %v", err)
		return
	}
	select {
	case reply <- chain:
	default:
	}
}

func (n *Node) readLoop(peer *Peer) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[network] readLoop panic from %s: %v", peer.ID, r)
		}
		peer.Close()
		n.mu.Lock()
		delete(n.peers, peer.ID)
		delete(n.urls, peer.ID)
		n.mu.Unlock()
	}()
	for {
		msg, err := peer.Receive()
		if err != nil {
			return
		}
		n.mu.RLock()
		h, ok := n.handlers[msg.Type]
		n.mu.RUnlock()
		if ok {
			h(peer, msg)
		}
	}
}
