package dnsd

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"go.uber.org/zap"

	"github.com/auralink/auralink/internal/logging"
)

// DefaultPort is the standard DNS port the captive responder binds.
const DefaultPort = 53

// Responder answers every A query on its socket with the configured address.
// It exists only while the provisioning access point is up; clients joining
// the open network resolve any name to the portal.
type Responder struct {
	answer net.IP
	port   int

	mu   sync.Mutex
	conn *net.UDPConn
	done chan struct{}
}

// NewResponder returns a responder that will answer with addr. It does not
// bind until Start.
func NewResponder(addr net.IP, port int) *Responder {
	return &Responder{answer: addr, port: port}
}

// Start binds the UDP socket and begins serving. It returns an error when
// the port cannot be bound; the serve loop itself never surfaces errors.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != nil {
		return nil
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: r.port})
	if err != nil {
		return fmt.Errorf("binding DNS responder on port %d: %w", r.port, err)
	}
	r.conn = conn
	r.done = make(chan struct{})

	go r.serve(conn, r.done)
	logging.Info("DNS responder started", zap.Int("port", r.port), zap.String("answer", r.answer.String()))
	return nil
}

// Addr reports the bound socket address, or nil before Start. Useful when
// the responder was started on an ephemeral port.
func (r *Responder) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// Stop closes the socket and waits for the serve loop to exit. Safe to call
// without a prior Start.
func (r *Responder) Stop() {
	r.mu.Lock()
	conn, done := r.conn, r.done
	r.conn, r.done = nil, nil
	r.mu.Unlock()

	if conn == nil {
		return
	}
	conn.Close()
	<-done
	logging.Info("DNS responder stopped")
}

func (r *Responder) serve(conn *net.UDPConn, done chan struct{}) {
	defer close(done)

	// 512 bytes is the classic UDP DNS limit; anything larger is not a
	// plain query and gets truncated into an unparseable datagram.
	buf := make([]byte, 512)
	for {
		n, peer, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			// Transient read errors are not fatal for a best-effort
			// responder.
			logging.Debug("DNS read error", zap.Error(err))
			continue
		}

		query, err := ParseQuery(buf[:n])
		if err != nil {
			// Malformed datagrams are dropped silently, matching how a
			// resolver treats noise on port 53.
			logging.Debug("dropping malformed DNS datagram",
				zap.String("remote", peer.String()), zap.Error(err))
			continue
		}

		resp, err := query.BuildResponse(r.answer)
		if err != nil {
			logging.Debug("DNS response build failed", zap.Error(err))
			continue
		}

		if _, err := conn.WriteToUDP(resp, peer); err != nil {
			logging.Debug("DNS response write failed",
				zap.String("remote", peer.String()), zap.Error(err))
			continue
		}
		logging.LogDNSQuery(peer.String(), query.Domain, r.answer.String())
	}
}
