package capture

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("capture not found")

// Options controls where artifacts land and how they are named.
type Options struct {
	OutputDir string
	Prefix    string
	Extension string
	Naming    string // config.NamingUnique or config.NamingTimestamp
	Index     bool
}

// SessionInfo describes the session a recorder belongs to.
type SessionInfo struct {
	ID        string
	Client    string
	Upstream  string
	StartedAt time.Time
}

// Record is one entry of captures.json.
type Record struct {
	ID         string    `json:"id"`
	File       string    `json:"file"`
	Client     string    `json:"client"`
	Upstream   string    `json:"upstream"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Size       int64     `json:"size"`
	Digest     string    `json:"blake3"`
}
