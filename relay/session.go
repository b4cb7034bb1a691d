package relay

import (
	"fmt"
	"io"
	"net"
	"path/filepath"
	"time"

	"github.com/asmodhias/capproxy/capture"
	"github.com/asmodhias/capproxy/log"
	"github.com/asmodhias/capproxy/metrics"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

type session struct {
	id       string
	srv      *Server
	client   *conn
	upstream *conn
	started  time.Time
}

func newSession(srv *Server, client net.Conn) *session {
	return &session{
		id:      uuid.NewString(),
		srv:     srv,
		client:  wrapConn(client),
		started: time.Now(),
	}
}

func (s *session) run() {
	defer s.close()

	cfg := s.srv.cfg
	m := s.srv.metrics
	clientAddr := s.client.RemoteAddr().String()
	upstreamAddr := cfg.Upstream.Addr()

	m.OpenSession()
	summary := metrics.SessionLog{
		ID:        s.id,
		Client:    clientAddr,
		Upstream:  upstreamAddr,
		StartedAt: s.started,
	}
	defer func() {
		summary.Duration = time.Since(s.started).Round(time.Millisecond).String()
		m.CloseSession(summary)
	}()

	dialer := net.Dialer{Timeout: cfg.Relay.DialTimeout()}
	raw, err := dialer.Dial("tcp", upstreamAddr)
	if err != nil {
		log.Errorf("Upstream connect failed: client=%s upstream=%s leg=upstream: %v", clientAddr, upstreamAddr, err)
		m.RecordUpstreamFailure()
		m.RecordEvent("error", fmt.Sprintf("upstream %s unreachable: %v", upstreamAddr, err))
		summary.Error = err.Error()
		return
	}
	s.upstream = wrapConn(raw)
	log.Tracef("Session %s: %s -> %s", s.id, clientAddr, upstreamAddr)

	var sink io.Writer
	rec, err := s.srv.store.Begin(capture.SessionInfo{
		ID:        s.id,
		Client:    clientAddr,
		Upstream:  upstreamAddr,
		StartedAt: s.started,
	})
	if err != nil {
		log.Errorf("Session %s: relaying without capture: %v", s.id, err)
		m.RecordArtifact(0, err)
	} else {
		sink = rec
	}

	up, down := s.pump(sink)

	summary.BytesUp = uint64(up.Bytes)
	summary.BytesDown = uint64(down.Bytes)
	summary.UpReason = up.Reason.String()
	summary.DownReason = down.Reason.String()

	if rec != nil {
		r, err := rec.Finish(time.Now())
		m.RecordArtifact(recordSize(r), err)
		if err != nil {
			log.Errorf("Session %s: failed to write capture: %v", s.id, err)
			summary.Error = err.Error()
		} else {
			summary.Artifact = r.File
			log.Infof("Wrote capture bytes to %s", filepath.Join(s.srv.store.OutputPath(), r.File))
		}
	}
}

// pump runs both directions and returns once both have stopped.
func (s *session) pump(sink io.Writer) (up, down PumpResult) {
	relayCfg := s.srv.cfg.Relay
	var g errgroup.Group

	g.Go(func() error {
		up = (&Pump{
			Direction:   ClientToUpstream,
			Src:         s.client,
			Dst:         s.upstream,
			Capture:     sink,
			ChunkSize:   relayCfg.ChunkSize,
			IdleTimeout: relayCfg.IdleTimeout(),
		}).Run()
		return s.report(up)
	})
	g.Go(func() error {
		down = (&Pump{
			Direction:   UpstreamToClient,
			Src:         s.upstream,
			Dst:         s.client,
			ChunkSize:   relayCfg.ChunkSize,
			IdleTimeout: relayCfg.IdleTimeout(),
		}).Run()
		return s.report(down)
	})

	if err := g.Wait(); err != nil {
		log.Tracef("Session %s ended with error: %v", s.id, err)
	}
	return up, down
}

func (s *session) report(r PumpResult) error {
	s.srv.metrics.RecordPumpEnd(r.Reason == ReasonTimeout, r.Reason == ReasonReadError || r.Reason == ReasonWriteError)
	log.Debugf("Session %s %s: %d bytes in %d chunks, %s", s.id, r.Direction, r.Bytes, r.Chunks, r.Reason)

	if r.Err == nil || IsExpectedCloseError(r.Err) {
		return nil
	}
	return fmt.Errorf("%s %s: %w", r.Direction, r.Reason, r.Err)
}

func (s *session) close() {
	s.client.Close()
	if s.upstream != nil {
		s.upstream.Close()
	}
}

func recordSize(r *capture.Record) int64 {
	if r == nil {
		return 0
	}
	return r.Size
}
