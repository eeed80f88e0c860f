// Package engine abstracts the external torrent engine that performs the
// actual peer-to-peer transfer work. Backends adapt engine-native state into
// the shared Status shape; everything above this package is backend-agnostic.
package engine

import (
	"context"
	"errors"
)

// Common errors surfaced by engine backends.
var (
	ErrUnavailable   = errors.New("torrent engine unavailable")
	ErrNotFound      = errors.New("torrent not found in engine")
	ErrInvalidMagnet = errors.New("invalid magnet link")
)

// State is the backend-independent download state.
type State string

const (
	StateMetadata    State = "metadata"
	StateDownloading State = "downloading"
	StateSeeding     State = "seeding"
	StateFinished    State = "finished"
	StateChecking    State = "checking"
	StatePaused      State = "paused"
	StateUnknown     State = "unknown"
)

// Status is a point-in-time view of one transfer, already mapped out of the
// backend's native representation. Progress is a fraction in [0, 1].
type Status struct {
	Name         string
	State        State
	HasMetadata  bool
	Progress     float64
	DownloadRate int64 // bytes/sec
	UploadRate   int64 // bytes/sec
	Peers        int
	TotalSize    int64
	Downloaded   int64
	Uploaded     int64 // cumulative, drives the seeding cutoff
	SavePath     string
}

// Engine is the control surface every backend must expose.
type Engine interface {
	// Name identifies the backend ('native', 'qbittorrent', ...).
	Name() string

	// Available reports whether the engine can accept work.
	Available() bool

	// AddMagnet starts a transfer and returns an opaque reference for it.
	AddMagnet(ctx context.Context, magnetURI, savePath string) (string, error)

	// Status fetches the current state of a transfer.
	Status(ctx context.Context, ref string) (*Status, error)

	Pause(ctx context.Context, ref string) error
	Resume(ctx context.Context, ref string) error

	// Remove drops the transfer; deleteFiles also removes downloaded data.
	Remove(ctx context.Context, ref string, deleteFiles bool) error

	// Close releases backend resources.
	Close() error
}
