package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"magnetd/internal/utils"
)

const testHash = "c9e15763f722f23e98a29decdfae341b98d53056"

func testMagnet() string {
	return "magnet:?xt=urn:btih:" + testHash + "&dn=Test+Torrent"
}

// fakeQbit is a minimal qBittorrent Web API.
type fakeQbit struct {
	mux      *http.ServeMux
	mu       sync.Mutex
	logins   int
	added    []string
	paused   []string
	resumed  []string
	deleted  []string
	torrents string // JSON body served by torrents/info
}

func newFakeQbit() *fakeQbit {
	f := &fakeQbit{mux: http.NewServeMux(), torrents: "[]"}

	f.mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("username") != "admin" || r.FormValue("password") != "secret" {
			fmt.Fprint(w, "Fails.")
			return
		}
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "test-session"})
		fmt.Fprint(w, "Ok.")
	})
	f.mux.HandleFunc("/api/v2/app/version", func(w http.ResponseWriter, r *http.Request) {
		if !f.authed(r) {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		fmt.Fprint(w, "v5.0.0")
	})
	f.mux.HandleFunc("/api/v2/torrents/info", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		body := f.torrents
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, body)
	})
	f.mux.HandleFunc("/api/v2/torrents/add", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		f.added = append(f.added, r.FormValue("urls"))
		f.mu.Unlock()
	})
	f.mux.HandleFunc("/api/v2/torrents/pause", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		f.paused = append(f.paused, r.FormValue("hashes"))
		f.mu.Unlock()
	})
	f.mux.HandleFunc("/api/v2/torrents/resume", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		f.resumed = append(f.resumed, r.FormValue("hashes"))
		f.mu.Unlock()
	})
	f.mux.HandleFunc("/api/v2/torrents/delete", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		f.mu.Lock()
		f.deleted = append(f.deleted, r.FormValue("hashes")+":"+r.FormValue("deleteFiles"))
		f.mu.Unlock()
	})
	return f
}

func (f *fakeQbit) authed(r *http.Request) bool {
	c, err := r.Cookie("SID")
	return err == nil && c.Value == "test-session"
}

func newTestQbit(t *testing.T) (*QBitEngine, *fakeQbit) {
	t.Helper()
	fake := newFakeQbit()
	server := httptest.NewServer(fake.mux)
	t.Cleanup(server.Close)

	eng, err := NewQBitEngine(server.URL, "admin", "secret", utils.NewLogger(false, io.Discard))
	if err != nil {
		t.Fatalf("NewQBitEngine() error = %v", err)
	}
	return eng, fake
}

func TestQbitAddMagnet(t *testing.T) {
	eng, fake := newTestQbit(t)

	ref, err := eng.AddMagnet(context.Background(), testMagnet(), "/downloads")
	if err != nil {
		t.Fatalf("AddMagnet() error = %v", err)
	}
	if ref != testHash {
		t.Errorf("ref = %q, want the magnet info-hash %q", ref, testHash)
	}
	if fake.logins != 1 {
		t.Errorf("logins = %d, want 1", fake.logins)
	}
	if len(fake.added) != 1 {
		t.Fatalf("added = %d torrents, want 1", len(fake.added))
	}
}

func TestQbitAddMagnetInvalidURI(t *testing.T) {
	eng, _ := newTestQbit(t)

	for _, uri := range []string{"", "http://example.com", "magnet:?dn=no-hash", "magnet:?xt=urn:btih:"} {
		if _, err := eng.AddMagnet(context.Background(), uri, "/downloads"); !errors.Is(err, ErrInvalidMagnet) {
			t.Errorf("AddMagnet(%q) error = %v, want ErrInvalidMagnet", uri, err)
		}
	}
}

func TestQbitStatus(t *testing.T) {
	eng, fake := newTestQbit(t)
	fake.torrents = fmt.Sprintf(`[{
		"hash": %q, "name": "Test Torrent", "size": 1000, "progress": 0.42,
		"state": "downloading", "save_path": "/downloads", "dlspeed": 512,
		"upspeed": 64, "num_leechs": 3, "num_seeds": 7, "completed": 420,
		"uploaded": 100
	}]`, testHash)

	st, err := eng.Status(context.Background(), testHash)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.Name != "Test Torrent" {
		t.Errorf("Name = %q", st.Name)
	}
	if st.State != StateDownloading {
		t.Errorf("State = %q, want %q", st.State, StateDownloading)
	}
	if !st.HasMetadata {
		t.Error("HasMetadata = false, want true")
	}
	if st.Peers != 10 {
		t.Errorf("Peers = %d, want 10", st.Peers)
	}
	if st.Downloaded != 420 || st.TotalSize != 1000 {
		t.Errorf("Downloaded/TotalSize = %d/%d, want 420/1000", st.Downloaded, st.TotalSize)
	}
}

func TestQbitStatusUnknownHash(t *testing.T) {
	eng, _ := newTestQbit(t)

	if _, err := eng.Status(context.Background(), "deadbeef"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Status() error = %v, want ErrNotFound", err)
	}
}

func TestQbitStatusMetadataPhase(t *testing.T) {
	eng, fake := newTestQbit(t)
	fake.torrents = fmt.Sprintf(`[{"hash": %q, "name": "x", "state": "metaDL"}]`, testHash)

	st, err := eng.Status(context.Background(), testHash)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if st.State != StateMetadata {
		t.Errorf("State = %q, want %q", st.State, StateMetadata)
	}
	if st.HasMetadata {
		t.Error("HasMetadata = true during metadata fetch")
	}
}

func TestQbitPauseResumeRemove(t *testing.T) {
	eng, fake := newTestQbit(t)

	if err := eng.Pause(context.Background(), testHash); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := eng.Resume(context.Background(), testHash); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if err := eng.Remove(context.Background(), testHash, true); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}

	if len(fake.paused) != 1 || fake.paused[0] != testHash {
		t.Errorf("paused = %v", fake.paused)
	}
	if len(fake.resumed) != 1 || fake.resumed[0] != testHash {
		t.Errorf("resumed = %v", fake.resumed)
	}
	if len(fake.deleted) != 1 || fake.deleted[0] != testHash+":true" {
		t.Errorf("deleted = %v", fake.deleted)
	}
}

func TestQbitConcurrentSessionUse(t *testing.T) {
	eng, fake := newTestQbit(t)
	fake.torrents = fmt.Sprintf(`[{"hash": %q, "name": "x", "state": "downloading"}]`, testHash)

	var wg sync.WaitGroup
	errs := make(chan error, 1)
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if !eng.Available() {
					select {
					case errs <- errors.New("Available() = false"):
					default:
					}
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if _, err := eng.Status(context.Background(), testHash); err != nil {
					select {
					case errs <- err:
					default:
					}
					return
				}
			}
		}()
	}
	wg.Wait()

	select {
	case err := <-errs:
		t.Fatalf("concurrent engine call error = %v", err)
	default:
	}
}

func TestQbitUnreachable(t *testing.T) {
	eng, err := NewQBitEngine("http://127.0.0.1:1", "admin", "secret", utils.NewLogger(false, io.Discard))
	if err != nil {
		t.Fatalf("NewQBitEngine() error = %v", err)
	}
	if eng.Available() {
		t.Error("Available() = true for unreachable host")
	}
	if _, err := eng.Status(context.Background(), testHash); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Status() error = %v, want ErrUnavailable", err)
	}
}

func TestMapQbitState(t *testing.T) {
	cases := map[string]State{
		"downloading": StateDownloading,
		"stalledDL":   StateDownloading,
		"metaDL":      StateMetadata,
		"uploading":   StateSeeding,
		"stalledUP":   StateSeeding,
		"pausedUP":    StateFinished,
		"pausedDL":    StatePaused,
		"checkingDL":  StateChecking,
		"moving":      StateUnknown,
	}
	for raw, want := range cases {
		if got := mapQbitState(raw); got != want {
			t.Errorf("mapQbitState(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestHashFromMagnet(t *testing.T) {
	hash, err := hashFromMagnet("magnet:?xt=urn:btih:" + strings.ToUpper(testHash))
	if err != nil {
		t.Fatalf("hashFromMagnet() error = %v", err)
	}
	if hash != testHash {
		t.Errorf("hash = %q, want lowercased %q", hash, testHash)
	}
}
