package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	mockTotalSize    = int64(1 << 30) // 1 GiB
	mockDownloadRate = int64(64 << 20)
	mockUploadRate   = int64(8 << 20)
	mockMetadataWait = 2 * time.Second
)

// mockTorrent simulates one transfer: a short metadata phase, then time-based
// progress at a fixed rate, then seeding.
type mockTorrent struct {
	name     string
	savePath string
	addedAt  time.Time

	paused     bool
	pausedAt   time.Time
	pausedFor  time.Duration
	downloaded int64
	uploaded   int64
	lastTick   time.Time
}

// MockEngine is an in-memory engine for development and tests. No data is
// transferred; progress is simulated.
type MockEngine struct {
	mu       sync.Mutex
	torrents map[string]*mockTorrent
	counter  int

	// Tunables for tests. Zero values fall back to the defaults above.
	TotalSize    int64
	DownloadRate int64
	UploadRate   int64
	MetadataWait time.Duration
}

var _ Engine = (*MockEngine)(nil)

func NewMockEngine() *MockEngine {
	return &MockEngine{
		torrents: make(map[string]*mockTorrent),
	}
}

func (m *MockEngine) Name() string {
	return "mock"
}

func (m *MockEngine) Available() bool {
	return true
}

func (m *MockEngine) AddMagnet(ctx context.Context, magnetURI, savePath string) (string, error) {
	if _, err := hashFromMagnet(magnetURI); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.counter++
	ref := fmt.Sprintf("mock-%d", m.counter)
	now := time.Now()
	m.torrents[ref] = &mockTorrent{
		name:     fmt.Sprintf("Mock Torrent %d", m.counter),
		savePath: savePath,
		addedAt:  now,
		lastTick: now,
	}
	return ref, nil
}

func (m *MockEngine) Status(ctx context.Context, ref string) (*Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.torrents[ref]
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now()
	metadataWait := m.MetadataWait
	if metadataWait == 0 {
		metadataWait = mockMetadataWait
	}
	if now.Sub(t.addedAt) < metadataWait {
		return &Status{
			Name:        "Fetching Metadata...",
			State:       StateMetadata,
			HasMetadata: false,
			SavePath:    t.savePath,
		}, nil
	}

	total := m.TotalSize
	if total == 0 {
		total = mockTotalSize
	}
	dlRate := m.DownloadRate
	if dlRate == 0 {
		dlRate = mockDownloadRate
	}
	upRate := m.UploadRate
	if upRate == 0 {
		upRate = mockUploadRate
	}

	t.advance(now, total, dlRate, upRate)

	status := &Status{
		Name:        t.name,
		State:       StateDownloading,
		HasMetadata: true,
		Progress:    float64(t.downloaded) / float64(total),
		Peers:       8,
		TotalSize:   total,
		Downloaded:  t.downloaded,
		Uploaded:    t.uploaded,
		SavePath:    t.savePath,
	}

	switch {
	case t.paused:
		status.State = StatePaused
	case t.downloaded >= total:
		status.State = StateSeeding
		status.UploadRate = upRate
	default:
		status.DownloadRate = dlRate
		status.UploadRate = upRate
	}
	return status, nil
}

func (m *MockEngine) Pause(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.torrents[ref]
	if !ok {
		return ErrNotFound
	}
	if !t.paused {
		t.paused = true
		t.pausedAt = time.Now()
	}
	return nil
}

func (m *MockEngine) Resume(ctx context.Context, ref string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.torrents[ref]
	if !ok {
		return ErrNotFound
	}
	if t.paused {
		t.paused = false
		t.pausedFor += time.Since(t.pausedAt)
		t.lastTick = time.Now()
	}
	return nil
}

func (m *MockEngine) Remove(ctx context.Context, ref string, deleteFiles bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.torrents[ref]; !ok {
		return ErrNotFound
	}
	delete(m.torrents, ref)
	return nil
}

func (m *MockEngine) Close() error {
	return nil
}

// advance moves the simulated transfer forward to now.
func (t *mockTorrent) advance(now time.Time, total, dlRate, upRate int64) {
	if t.paused {
		return
	}
	elapsed := now.Sub(t.lastTick).Seconds()
	t.lastTick = now

	if t.downloaded < total {
		t.downloaded += int64(elapsed * float64(dlRate))
		if t.downloaded > total {
			t.downloaded = total
		}
	}
	t.uploaded += int64(elapsed * float64(upRate))
}
