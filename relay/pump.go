package relay

import (
	"errors"
	"io"
	"net"
	"os"
	"time"

	"github.com/asmodhias/capproxy/log"
)

type Direction string

const (
	ClientToUpstream Direction = "client->upstream"
	UpstreamToClient Direction = "upstream->client"
)

// Reason is why a pump stopped.
type Reason int

const (
	ReasonEOF Reason = iota
	ReasonTimeout
	ReasonReadError
	ReasonWriteError
)

func (r Reason) String() string {
	switch r {
	case ReasonEOF:
		return "eof"
	case ReasonTimeout:
		return "timeout"
	case ReasonReadError:
		return "read_error"
	case ReasonWriteError:
		return "write_error"
	default:
		return "unknown"
	}
}

type State int

const (
	StateRunning State = iota
	StateClosedClean
	StateClosedError
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateClosedClean:
		return "closed_clean"
	default:
		return "closed_error"
	}
}

type PumpResult struct {
	Direction Direction
	Bytes     int64
	Chunks    int
	Reason    Reason
	Err       error
}

func (r PumpResult) State() State {
	if r.Reason == ReasonEOF {
		return StateClosedClean
	}
	return StateClosedError
}

// Pump moves bytes from Src to Dst in chunks of at most ChunkSize until Src
// reaches EOF, either side fails, or a single read or write waits longer than
// IdleTimeout. Every byte written to Dst is also written to Capture, in order.
type Pump struct {
	Direction   Direction
	Src         net.Conn
	Dst         net.Conn
	Capture     io.Writer
	ChunkSize   int
	IdleTimeout time.Duration
}

func (p *Pump) Run() PumpResult {
	res := PumpResult{Direction: p.Direction}

	size := p.ChunkSize
	if size <= 0 {
		size = defaultChunkSize
	}
	buf := make([]byte, size)
	captureFailed := false

	for {
		if p.IdleTimeout > 0 {
			p.Src.SetReadDeadline(time.Now().Add(p.IdleTimeout))
		}
		n, rerr := p.Src.Read(buf)

		if n > 0 {
			if p.IdleTimeout > 0 {
				p.Dst.SetWriteDeadline(time.Now().Add(p.IdleTimeout))
			}
			w, werr := p.Dst.Write(buf[:n])
			if w > 0 {
				res.Bytes += int64(w)
				res.Chunks++
				if p.Capture != nil && !captureFailed {
					if _, cerr := p.Capture.Write(buf[:w]); cerr != nil {
						captureFailed = true
						log.Errorf("Capture write failed (%s): %v", p.Direction, cerr)
					}
				}
			}
			if werr == nil && w < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				res.Reason = classify(werr, ReasonWriteError)
				res.Err = werr
				break
			}
		}

		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				res.Reason = ReasonEOF
			} else {
				res.Reason = classify(rerr, ReasonReadError)
				res.Err = rerr
			}
			break
		}
	}

	closeWrite(p.Dst)
	return res
}

func classify(err error, fallback Reason) Reason {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return ReasonTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return fallback
}

type closeWriter interface {
	CloseWrite() error
}

// closeWrite signals end of stream to the peer behind c. Errors are
// irrelevant here: the socket may already be gone.
func closeWrite(c net.Conn) {
	if cw, ok := c.(closeWriter); ok {
		_ = cw.CloseWrite()
	}
}
