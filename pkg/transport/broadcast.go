package transport

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// defaultWriteTimeout bounds how long a single write to a peer may take.
// A peer whose TCP receive window stays closed past this deadline is
// genuinely stalled, not merely slow, and gets dropped.
const defaultWriteTimeout = 3 * time.Second

// peerMissLimit is how many consecutive latest-wins overwrites a peer's
// outbound buffer can absorb (i.e. how many fan-out rounds it can go
// without draining its single slot) before it is considered stalled and
// dropped, matching spec.md §4.5's "a slow peer is dropped rather than
// blocking others."
const peerMissLimit = 3

// BroadcastOptions configures BroadcastSender.
type BroadcastOptions struct {
	Addr string
	Path string
	// WriteTimeout bounds each per-peer websocket write. Defaults to
	// defaultWriteTimeout when zero.
	WriteTimeout time.Duration
}

// BroadcastSender runs a websocket accept loop and fans the latest
// snapshot payload out to every connected peer on a best-effort basis.
// The fan-out loop reads from a single-slot, latest-wins channel so a
// slow or stalled Send caller (the transport-driver system, running
// inside the scheduler's worker pool) is never blocked by a slow peer;
// peers that can't keep up miss intermediate frames, and a peer that
// misses peerMissLimit rounds in a row is dropped.
type BroadcastSender struct {
	opts     BroadcastOptions
	upgrader websocket.Upgrader
	server   *http.Server
	listener net.Listener

	mu    sync.Mutex
	peers map[uuid.UUID]*broadcastPeer

	latest chan []byte
	done   chan struct{}
	wg     sync.WaitGroup
}

type broadcastPeer struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte

	// missed counts consecutive fan-out rounds where this peer's buffer
	// was still full of an undrained frame. Reset to 0 whenever a
	// payload is handed off to an empty slot. Only touched by fanOut
	// while holding s.mu.
	missed int
}

// NewBroadcastSender constructs a broadcast sender. Nothing is opened
// until Start.
func NewBroadcastSender(opts BroadcastOptions) *BroadcastSender {
	if opts.Path == "" {
		opts.Path = "/stream"
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &BroadcastSender{
		opts:   opts,
		peers:  make(map[uuid.UUID]*broadcastPeer),
		latest: make(chan []byte, 1),
		done:   make(chan struct{}),
	}
}

func (s *BroadcastSender) Kind() string { return string(KindBroadcast) }

// Addr reports the listener's bound address, including any port chosen
// by the OS when Addr was configured as ":0". Empty until Start succeeds.
func (s *BroadcastSender) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// PeerCount reports how many peers are currently connected.
func (s *BroadcastSender) PeerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.peers)
}

func (s *BroadcastSender) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc(s.opts.Path, s.handleConn)
	s.server = &http.Server{Handler: mux}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.server.Serve(ln)
	}()

	s.wg.Add(1)
	go s.fanOut()

	return nil
}

func (s *BroadcastSender) handleConn(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	peer := &broadcastPeer{
		id:   uuid.New(),
		conn: conn,
		send: make(chan []byte, 1),
	}

	s.mu.Lock()
	s.peers[peer.id] = peer
	s.mu.Unlock()

	s.wg.Add(1)
	go s.writePeer(peer)
}

func (s *BroadcastSender) writePeer(peer *broadcastPeer) {
	defer s.wg.Done()
	defer s.removePeer(peer.id)
	defer peer.conn.Close()

	for {
		select {
		case <-s.done:
			return
		case payload, ok := <-peer.send:
			if !ok {
				return
			}
			if err := peer.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
				return
			}
			if err := peer.conn.WriteMessage(websocket.BinaryMessage, payload); err != nil {
				return
			}
		}
	}
}

func (s *BroadcastSender) removePeer(id uuid.UUID) {
	s.mu.Lock()
	delete(s.peers, id)
	s.mu.Unlock()
}

// dropPeer closes a stalled peer's outbound channel and connection. The
// blocked writePeer goroutine (if any) observes the closed connection or
// closed channel, returns, and calls removePeer itself; closing both here
// is safe to race against that.
func (s *BroadcastSender) dropPeer(peer *broadcastPeer) {
	delete(s.peers, peer.id)
	close(peer.send)
	peer.conn.Close()
}

// fanOut drains the latest-wins queue and pushes each payload to every
// connected peer's own latest-wins channel. A peer whose channel is still
// full of an undrained frame has its stale frame overwritten with the
// newest one, same as before, but is also charged a miss; once a peer
// accumulates peerMissLimit consecutive misses it is dropped rather than
// kept connected and endlessly overwritten (spec.md §4.5, Testable
// Scenario 6).
func (s *BroadcastSender) fanOut() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.latest:
			s.mu.Lock()
			for _, peer := range s.peers {
				select {
				case peer.send <- payload:
					peer.missed = 0
				default:
					select {
					case <-peer.send:
					default:
					}
					select {
					case peer.send <- payload:
					default:
					}
					peer.missed++
					if peer.missed >= peerMissLimit {
						s.dropPeer(peer)
					}
				}
			}
			s.mu.Unlock()
		}
	}
}

func (s *BroadcastSender) Send(ctx context.Context, payload []byte) error {
	select {
	case s.latest <- payload:
		return nil
	default:
	}
	select {
	case <-s.latest:
	default:
	}
	select {
	case s.latest <- payload:
	default:
	}
	return nil
}

func (s *BroadcastSender) Stop(ctx context.Context) error {
	close(s.done)

	s.mu.Lock()
	for _, peer := range s.peers {
		close(peer.send)
	}
	s.mu.Unlock()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}
