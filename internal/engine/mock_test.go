package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockEngineLifecycle(t *testing.T) {
	eng := NewMockEngine()
	eng.MetadataWait = -1 // skip the metadata phase
	eng.TotalSize = 1000
	eng.DownloadRate = 1 << 40 // effectively instant

	ref, err := eng.AddMagnet(context.Background(), testMagnet(), "/downloads")
	if err != nil {
		t.Fatalf("AddMagnet() error = %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	st, err := eng.Status(context.Background(), ref)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !st.HasMetadata {
		t.Error("HasMetadata = false after metadata wait elapsed")
	}
	if st.State != StateSeeding {
		t.Errorf("State = %q, want %q at full download", st.State, StateSeeding)
	}
	if st.Downloaded != 1000 {
		t.Errorf("Downloaded = %d, want clamped to total 1000", st.Downloaded)
	}

	if err := eng.Remove(context.Background(), ref, false); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := eng.Status(context.Background(), ref); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status() after Remove error = %v, want ErrNotFound", err)
	}
}

func TestMockEngineMetadataPhase(t *testing.T) {
	eng := NewMockEngine()
	eng.MetadataWait = time.Hour

	ref, err := eng.AddMagnet(context.Background(), testMagnet(), "/downloads")
	if err != nil {
		t.Fatalf("AddMagnet() error = %v", err)
	}

	st, err := eng.Status(context.Background(), ref)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.HasMetadata {
		t.Error("HasMetadata = true during metadata phase")
	}
	if st.State != StateMetadata {
		t.Errorf("State = %q, want %q", st.State, StateMetadata)
	}
	if st.SavePath != "/downloads" {
		t.Errorf("SavePath = %q, want the requested path", st.SavePath)
	}
}

func TestMockEnginePause(t *testing.T) {
	eng := NewMockEngine()
	eng.MetadataWait = -1
	eng.TotalSize = 1 << 50 // never finishes

	ref, err := eng.AddMagnet(context.Background(), testMagnet(), "/downloads")
	if err != nil {
		t.Fatalf("AddMagnet() error = %v", err)
	}

	if err := eng.Pause(context.Background(), ref); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	st, err := eng.Status(context.Background(), ref)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StatePaused {
		t.Errorf("State = %q, want %q", st.State, StatePaused)
	}
	downloaded := st.Downloaded

	time.Sleep(10 * time.Millisecond)
	st, _ = eng.Status(context.Background(), ref)
	if st.Downloaded != downloaded {
		t.Errorf("Downloaded advanced while paused: %d -> %d", downloaded, st.Downloaded)
	}

	if err := eng.Resume(context.Background(), ref); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	st, _ = eng.Status(context.Background(), ref)
	if st.State != StateDownloading {
		t.Errorf("State = %q after resume, want %q", st.State, StateDownloading)
	}
}

func TestMockEngineRejectsBadMagnet(t *testing.T) {
	eng := NewMockEngine()
	if _, err := eng.AddMagnet(context.Background(), "not-a-magnet", "/d"); !errors.Is(err, ErrInvalidMagnet) {
		t.Errorf("AddMagnet() error = %v, want ErrInvalidMagnet", err)
	}
}
