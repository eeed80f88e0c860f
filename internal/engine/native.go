package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/anacrolix/torrent"
	"github.com/anacrolix/torrent/storage"

	"magnetd/internal/utils"
)

// nativeTransfer tracks per-torrent state the anacrolix client does not keep
// for us: the requested save path, the pause flag, and the last byte-counter
// sample used to derive transfer rates.
type nativeTransfer struct {
	t        *torrent.Torrent
	savePath string
	paused   bool

	lastSampleAt time.Time
	lastRead     int64
	lastWritten  int64
	downloadRate int64
	uploadRate   int64
}

// NativeEngine runs an in-process anacrolix/torrent client.
type NativeEngine struct {
	client    *torrent.Client
	logger    *utils.Logger
	mu        sync.Mutex
	transfers map[string]*nativeTransfer
}

var _ Engine = (*NativeEngine)(nil)

// NewNativeEngine creates an in-process torrent client writing under dataDir
// by default; per-download save paths override it.
func NewNativeEngine(dataDir string, logger *utils.Logger) (*NativeEngine, error) {
	cfg := torrent.NewDefaultClientConfig()
	cfg.DataDir = dataDir
	cfg.Seed = true

	client, err := torrent.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("error creating torrent client: %w", err)
	}

	return &NativeEngine{
		client:    client,
		logger:    logger,
		transfers: make(map[string]*nativeTransfer),
	}, nil
}

func (e *NativeEngine) Name() string {
	return "native"
}

func (e *NativeEngine) Available() bool {
	return e.client != nil
}

func (e *NativeEngine) AddMagnet(ctx context.Context, magnetURI, savePath string) (string, error) {
	if !strings.HasPrefix(magnetURI, "magnet:") {
		return "", ErrInvalidMagnet
	}

	spec, err := torrent.TorrentSpecFromMagnetUri(magnetURI)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidMagnet, err)
	}
	spec.Storage = storage.NewFile(savePath)

	t, _, err := e.client.AddTorrentSpec(spec)
	if err != nil {
		return "", fmt.Errorf("error adding magnet: %w", err)
	}

	ref := t.InfoHash().HexString()

	e.mu.Lock()
	e.transfers[ref] = &nativeTransfer{t: t, savePath: savePath}
	e.mu.Unlock()

	// Metadata arrives asynchronously; request all pieces once it does.
	go func() {
		select {
		case <-t.GotInfo():
			t.DownloadAll()
			e.logger.Info("Metadata fetched, downloading: %s", t.Name())
		case <-t.Closed():
		}
	}()

	return ref, nil
}

func (e *NativeEngine) Status(ctx context.Context, ref string) (*Status, error) {
	e.mu.Lock()
	tr, ok := e.transfers[ref]
	e.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}

	t := tr.t
	if t.Info() == nil {
		return &Status{
			Name:        "Fetching Metadata...",
			State:       StateMetadata,
			HasMetadata: false,
			SavePath:    tr.savePath,
		}, nil
	}

	stats := t.Stats()
	completed := t.BytesCompleted()
	total := t.Length()

	e.mu.Lock()
	tr.sampleRates(stats.BytesReadUsefulData.Int64(), stats.BytesWrittenData.Int64())
	dlRate, upRate := tr.downloadRate, tr.uploadRate
	paused := tr.paused
	e.mu.Unlock()

	state := StateDownloading
	switch {
	case paused:
		state = StatePaused
	case t.BytesMissing() == 0:
		if t.Seeding() {
			state = StateSeeding
		} else {
			state = StateFinished
		}
	}

	var progress float64
	if total > 0 {
		progress = float64(completed) / float64(total)
	}

	return &Status{
		Name:         t.Name(),
		State:        state,
		HasMetadata:  true,
		Progress:     progress,
		DownloadRate: dlRate,
		UploadRate:   upRate,
		Peers:        stats.ActivePeers,
		TotalSize:    total,
		Downloaded:   completed,
		Uploaded:     stats.BytesWrittenData.Int64(),
		SavePath:     tr.savePath,
	}, nil
}

func (e *NativeEngine) Pause(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.transfers[ref]
	if !ok {
		return ErrNotFound
	}
	tr.t.DisallowDataDownload()
	tr.t.DisallowDataUpload()
	tr.paused = true
	return nil
}

func (e *NativeEngine) Resume(ctx context.Context, ref string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	tr, ok := e.transfers[ref]
	if !ok {
		return ErrNotFound
	}
	tr.t.AllowDataDownload()
	tr.t.AllowDataUpload()
	tr.paused = false
	return nil
}

func (e *NativeEngine) Remove(ctx context.Context, ref string, deleteFiles bool) error {
	e.mu.Lock()
	tr, ok := e.transfers[ref]
	if ok {
		delete(e.transfers, ref)
	}
	e.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	var name string
	if tr.t.Info() != nil {
		name = tr.t.Name()
	}
	tr.t.Drop()

	if deleteFiles && name != "" {
		target := filepath.Join(tr.savePath, name)
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("failed to delete downloaded data: %w", err)
		}
	}
	return nil
}

func (e *NativeEngine) Close() error {
	errs := e.client.Close()
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// sampleRates derives byte-per-second rates from the cumulative counters.
// Callers must hold the engine mutex.
func (tr *nativeTransfer) sampleRates(read, written int64) {
	now := time.Now()
	if !tr.lastSampleAt.IsZero() {
		elapsed := now.Sub(tr.lastSampleAt).Seconds()
		if elapsed > 0 {
			tr.downloadRate = int64(float64(read-tr.lastRead) / elapsed)
			tr.uploadRate = int64(float64(written-tr.lastWritten) / elapsed)
		}
	}
	tr.lastSampleAt = now
	tr.lastRead = read
	tr.lastWritten = written
}
