package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"magnetd/internal/utils"
)

// qbitTorrent is the subset of the qBittorrent torrents/info payload we read.
type qbitTorrent struct {
	Hash       string  `json:"hash"`
	Name       string  `json:"name"`
	Size       int64   `json:"size"`
	Progress   float64 `json:"progress"`
	State      string  `json:"state"`
	SavePath   string  `json:"save_path"`
	DLSpeed    int64   `json:"dlspeed"`
	UPSpeed    int64   `json:"upspeed"`
	NumLeechs  int     `json:"num_leechs"`
	NumSeeds   int     `json:"num_seeds"`
	Completed  int64   `json:"completed"`
	Uploaded   int64   `json:"uploaded"`
	MagnetURI  string  `json:"magnet_uri"`
	ContentDir string  `json:"content_path"`
}

// QBitEngine drives a remote qBittorrent daemon over its Web API v2.
type QBitEngine struct {
	host       string
	username   string
	password   string
	httpClient *http.Client
	logger     *utils.Logger

	sessionMu sync.Mutex // guards loggedIn and serializes login
	loggedIn  bool
}

var _ Engine = (*QBitEngine)(nil)

func NewQBitEngine(host, username, password string, logger *utils.Logger) (*QBitEngine, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &QBitEngine{
		host:     strings.TrimRight(host, "/"),
		username: username,
		password: password,
		logger:   logger,
		httpClient: &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		},
	}, nil
}

func (q *QBitEngine) Name() string {
	return "qbittorrent"
}

func (q *QBitEngine) Available() bool {
	return q.ensureLoggedIn(context.Background()) == nil
}

// login authenticates against the Web API; the SID cookie lands in the jar.
func (q *QBitEngine) login(ctx context.Context) error {
	data := url.Values{}
	data.Set("username", q.username)
	data.Set("password", q.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		q.host+"/api/v2/auth/login", strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "Ok") {
		return fmt.Errorf("qbittorrent login failed: %s", strings.TrimSpace(string(body)))
	}

	q.loggedIn = true
	return nil
}

// ensureLoggedIn probes the API and relogs when the session has expired.
func (q *QBitEngine) ensureLoggedIn(ctx context.Context) error {
	q.sessionMu.Lock()
	defer q.sessionMu.Unlock()

	if q.loggedIn {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.host+"/api/v2/app/version", nil)
		if err != nil {
			return err
		}
		resp, err := q.httpClient.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		q.loggedIn = false
		q.logger.Debug("qBittorrent session expired, logging in again")
	}
	return q.login(ctx)
}

func (q *QBitEngine) AddMagnet(ctx context.Context, magnetURI, savePath string) (string, error) {
	hash, err := hashFromMagnet(magnetURI)
	if err != nil {
		return "", err
	}

	if err := q.ensureLoggedIn(ctx); err != nil {
		return "", err
	}

	data := url.Values{}
	data.Set("urls", magnetURI)
	data.Set("savepath", savePath)

	if err := q.postForm(ctx, "/api/v2/torrents/add", data); err != nil {
		return "", err
	}
	return hash, nil
}

func (q *QBitEngine) Status(ctx context.Context, ref string) (*Status, error) {
	if err := q.ensureLoggedIn(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		q.host+"/api/v2/torrents/info?hashes="+url.QueryEscape(ref), nil)
	if err != nil {
		return nil, err
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("torrents/info returned status: %s", resp.Status)
	}

	var torrents []qbitTorrent
	if err := json.NewDecoder(resp.Body).Decode(&torrents); err != nil {
		return nil, fmt.Errorf("failed to decode torrents/info response: %w", err)
	}
	if len(torrents) == 0 {
		return nil, ErrNotFound
	}

	t := torrents[0]
	state := mapQbitState(t.State)

	return &Status{
		Name:         t.Name,
		State:        state,
		HasMetadata:  state != StateMetadata,
		Progress:     t.Progress,
		DownloadRate: t.DLSpeed,
		UploadRate:   t.UPSpeed,
		Peers:        t.NumLeechs + t.NumSeeds,
		TotalSize:    t.Size,
		Downloaded:   t.Completed,
		Uploaded:     t.Uploaded,
		SavePath:     t.SavePath,
	}, nil
}

func (q *QBitEngine) Pause(ctx context.Context, ref string) error {
	if err := q.ensureLoggedIn(ctx); err != nil {
		return err
	}
	data := url.Values{}
	data.Set("hashes", ref)
	return q.postForm(ctx, "/api/v2/torrents/pause", data)
}

func (q *QBitEngine) Resume(ctx context.Context, ref string) error {
	if err := q.ensureLoggedIn(ctx); err != nil {
		return err
	}
	data := url.Values{}
	data.Set("hashes", ref)
	return q.postForm(ctx, "/api/v2/torrents/resume", data)
}

func (q *QBitEngine) Remove(ctx context.Context, ref string, deleteFiles bool) error {
	if err := q.ensureLoggedIn(ctx); err != nil {
		return err
	}
	data := url.Values{}
	data.Set("hashes", ref)
	if deleteFiles {
		data.Set("deleteFiles", "true")
	} else {
		data.Set("deleteFiles", "false")
	}
	return q.postForm(ctx, "/api/v2/torrents/delete", data)
}

func (q *QBitEngine) Close() error {
	return nil
}

func (q *QBitEngine) postForm(ctx context.Context, path string, data url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, q.host+path,
		strings.NewReader(data.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}

// mapQbitState maps qBittorrent state strings onto the shared enum. Anything
// unrecognized is reported as unknown rather than failing.
func mapQbitState(state string) State {
	switch state {
	case "metaDL", "forcedMetaDL":
		return StateMetadata
	case "downloading", "stalledDL", "queuedDL", "forcedDL", "allocating":
		return StateDownloading
	case "uploading", "stalledUP", "queuedUP", "forcedUP":
		return StateSeeding
	case "pausedUP", "stoppedUP":
		return StateFinished
	case "pausedDL", "stoppedDL":
		return StatePaused
	case "checkingDL", "checkingUP", "checkingResumeData":
		return StateChecking
	default:
		return StateUnknown
	}
}

// hashFromMagnet extracts the btih info-hash from a magnet URI; qBittorrent
// identifies torrents by that hash.
func hashFromMagnet(magnetURI string) (string, error) {
	u, err := url.Parse(magnetURI)
	if err != nil || u.Scheme != "magnet" {
		return "", ErrInvalidMagnet
	}
	for _, xt := range u.Query()["xt"] {
		if strings.HasPrefix(xt, "urn:btih:") {
			hash := strings.ToLower(strings.TrimPrefix(xt, "urn:btih:"))
			if hash == "" {
				break
			}
			return hash, nil
		}
	}
	return "", ErrInvalidMagnet
}
