package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"magnetd/internal/config"
	"magnetd/internal/engine"
)

type downEngine struct {
	*fakeEngine
}

func (downEngine) Available() bool { return false }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Downloads.Path = t.TempDir()
	cfg.Downloads.PollInterval = "1s"
	cfg.Downloads.FetchTimeout = "1s"
	cfg.Downloads.SeedRatioCutoff = 2.0
	return cfg
}

func newTestManager(t *testing.T, eng engine.Engine) *Manager {
	t.Helper()
	m, err := NewManager(testConfig(t), eng, &recordingHub{}, nil, testLogger())
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	t.Cleanup(m.Stop)
	return m
}

func TestManagerStartDownload(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.MetadataWait = time.Hour
	m := newTestManager(t, eng)

	id, err := m.StartDownload(context.Background(),
		"magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056", "")
	if err != nil {
		t.Fatalf("StartDownload() error = %v", err)
	}

	snaps := m.Snapshots()
	if len(snaps) != 1 {
		t.Fatalf("Snapshots() len = %d, want 1", len(snaps))
	}
	if snaps[0].ID != id {
		t.Errorf("id = %q, want %q", snaps[0].ID, id)
	}
	if snaps[0].Status != engine.StateMetadata {
		t.Errorf("status = %q, want %q", snaps[0].Status, engine.StateMetadata)
	}
}

func TestManagerStartDownloadInvalidMagnet(t *testing.T) {
	m := newTestManager(t, engine.NewMockEngine())

	if _, err := m.StartDownload(context.Background(), "junk", ""); !errors.Is(err, engine.ErrInvalidMagnet) {
		t.Errorf("StartDownload() error = %v, want ErrInvalidMagnet", err)
	}
}

func TestManagerStartDownloadEngineDown(t *testing.T) {
	m := newTestManager(t, downEngine{newFakeEngine()})

	_, err := m.StartDownload(context.Background(),
		"magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056", "")
	if !errors.Is(err, engine.ErrUnavailable) {
		t.Errorf("StartDownload() error = %v, want ErrUnavailable", err)
	}
}

func TestManagerCancelDownload(t *testing.T) {
	eng := engine.NewMockEngine()
	eng.MetadataWait = time.Hour
	m := newTestManager(t, eng)

	id, err := m.StartDownload(context.Background(),
		"magnet:?xt=urn:btih:c9e15763f722f23e98a29decdfae341b98d53056", "")
	if err != nil {
		t.Fatal(err)
	}

	if err := m.CancelDownload(context.Background(), id); err != nil {
		t.Fatalf("CancelDownload() error = %v", err)
	}
	if len(m.Snapshots()) != 0 {
		t.Error("snapshot still present after cancel")
	}

	if err := m.CancelDownload(context.Background(), id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second cancel error = %v, want ErrNotFound", err)
	}
}

func TestManagerPauseUnknown(t *testing.T) {
	m := newTestManager(t, engine.NewMockEngine())

	if err := m.PauseDownload(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("PauseDownload() error = %v, want ErrNotFound", err)
	}
	if err := m.ResumeDownload(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ResumeDownload() error = %v, want ErrNotFound", err)
	}
}

func TestManagerHealth(t *testing.T) {
	m := newTestManager(t, engine.NewMockEngine())

	h := m.Health()
	if h.Status != "ok" {
		t.Errorf("Status = %q, want ok", h.Status)
	}
	if !h.EngineAvailable {
		t.Error("EngineAvailable = false for mock engine")
	}
	if h.ActiveDownloads != 0 {
		t.Errorf("ActiveDownloads = %d, want 0", h.ActiveDownloads)
	}
}

func TestManagerHealthDegraded(t *testing.T) {
	m := newTestManager(t, downEngine{newFakeEngine()})

	if h := m.Health(); h.Status != "degraded" {
		t.Errorf("Status = %q, want degraded when the engine is down", h.Status)
	}
}
