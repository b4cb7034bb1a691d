package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/config"
	"github.com/asmodhias/capproxy/log"
	"github.com/asmodhias/capproxy/metrics"
	"golang.org/x/net/netutil"
)

const (
	defaultChunkSize = 4096
	acceptBackoffMax = time.Second
)

// Server accepts clients on the listen address and relays each one to the
// configured upstream in its own goroutine.
type Server struct {
	cfg     *config.Config
	store   *capture.Store
	metrics *metrics.MetricsCollector

	mu       sync.Mutex
	listener net.Listener
	acceptWg sync.WaitGroup
	sessions sync.WaitGroup
}

func NewServer(cfg *config.Config, store *capture.Store, m *metrics.MetricsCollector) *Server {
	if m == nil {
		m = metrics.NewCollector()
	}
	return &Server{
		cfg:     cfg,
		store:   store,
		metrics: m,
	}
}

// Start binds the listen address and begins accepting. A bind failure is
// returned before any connection is accepted.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return fmt.Errorf("relay already started on %s", s.listener.Addr())
	}

	addr := s.cfg.Listen.Addr()
	lc := net.ListenConfig{Control: reuseAddrControl}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		s.metrics.SetListenerStatus("error")
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if limit := s.cfg.Relay.MaxConnections; limit > 0 {
		ln = netutil.LimitListener(ln, limit)
		log.Tracef("Concurrent sessions limited to %d", limit)
	}
	s.listener = ln

	log.Infof("Proxy listening on %s, forwarding to %s", ln.Addr(), s.cfg.Upstream.Addr())
	s.metrics.SetListenerStatus("active")
	s.metrics.RecordEvent("info", fmt.Sprintf("Listening on %s", ln.Addr()))

	s.acceptWg.Add(1)
	go s.acceptLoop(ln)
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.acceptWg.Done()

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, acceptBackoffMax)
			}
			log.Errorf("Accept failed: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.sessions.Add(1)
		go func() {
			defer s.sessions.Done()
			newSession(s, c).run()
		}()
	}
}

// Stop closes the listening socket and waits for the accept loop to exit.
// Sessions already in flight keep running; see Wait.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	if ln == nil {
		return nil
	}

	err := ln.Close()
	s.acceptWg.Wait()
	s.metrics.SetListenerStatus("stopped")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// Wait blocks until every accepted session has finished or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
