package capture

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/zeebo/blake3"
)

// Recorder streams one session's client->upstream bytes into a partial file.
// It is written by a single pump goroutine and finished after that pump has
// returned, so it carries no lock.
type Recorder struct {
	store   *Store
	info    SessionInfo
	file    *os.File
	partial string
	hasher  *blake3.Hasher
	size    int64
	err     error
	closed  bool
}

func newRecorder(s *Store, info SessionInfo, f *os.File, partial string) *Recorder {
	return &Recorder{
		store:   s,
		info:    info,
		file:    f,
		partial: partial,
		hasher:  blake3.New(),
	}
}

// Write appends p to the capture. After the first failure every call
// returns that failure; the caller decides whether to keep forwarding.
func (r *Recorder) Write(p []byte) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	if r.closed {
		return 0, os.ErrClosed
	}
	n, err := r.file.Write(p)
	if n > 0 {
		r.hasher.Write(p[:n])
		r.size += int64(n)
	}
	if err != nil {
		r.err = err
	}
	return n, err
}

func (r *Recorder) Size() int64 { return r.size }

func (r *Recorder) Err() error { return r.err }

// Finish turns the recording into an artifact named after `at`.
// On any failure the partial file is removed and no artifact exists.
func (r *Recorder) Finish(at time.Time) (*Record, error) {
	if r.closed {
		return nil, fmt.Errorf("capture %s already finished", r.info.ID)
	}
	if r.err != nil {
		r.Abort()
		return nil, fmt.Errorf("capture incomplete after %d bytes: %w", r.size, r.err)
	}

	r.closed = true
	if err := r.file.Sync(); err != nil {
		r.file.Close()
		os.Remove(r.partial)
		return nil, fmt.Errorf("failed to sync capture: %w", err)
	}
	if err := r.file.Close(); err != nil {
		os.Remove(r.partial)
		return nil, fmt.Errorf("failed to close capture: %w", err)
	}

	rec := &Record{
		ID:         r.info.ID,
		File:       r.store.ArtifactName(r.info.ID, at),
		Client:     r.info.Client,
		Upstream:   r.info.Upstream,
		StartedAt:  r.info.StartedAt,
		FinishedAt: at,
		Size:       r.size,
		Digest:     hex.EncodeToString(r.hasher.Sum(nil)),
	}

	if err := r.store.finalize(r.partial, rec); err != nil {
		os.Remove(r.partial)
		return nil, err
	}
	return rec, nil
}

// Abort drops the recording without producing an artifact.
func (r *Recorder) Abort() {
	if r.closed {
		return
	}
	r.closed = true
	r.file.Close()
	os.Remove(r.partial)
}
