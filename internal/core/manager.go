package core

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shirou/gopsutil/disk"

	"magnetd/internal/clients/notifications"
	"magnetd/internal/config"
	"magnetd/internal/database/models"
	"magnetd/internal/engine"
	"magnetd/internal/utils"
)

// DiskStat is the storage section of a health report.
type DiskStat struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// Health is the payload of the health endpoint.
type Health struct {
	Status          string    `json:"status"`
	Engine          string    `json:"engine"`
	EngineAvailable bool      `json:"engine_available"`
	ActiveDownloads int       `json:"active_downloads"`
	Disk            *DiskStat `json:"disk,omitempty"`
}

// Manager ties the registry, engine, poller, file index and history store
// together behind the operations the API layer exposes.
type Manager struct {
	config   *config.Config
	logger   *utils.Logger
	engine   engine.Engine
	registry *Registry
	poller   *Poller
	files    *FileIndex
	history  *models.DownloadRepository
	notifier notifications.Notifier

	scheduler *cron.Cron
}

func NewManager(cfg *config.Config, eng engine.Engine, hub Broadcaster, db *sql.DB, logger *utils.Logger) (*Manager, error) {
	files, err := NewFileIndex(cfg.Downloads.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing file index: %w", err)
	}

	m := &Manager{
		config:    cfg,
		logger:    logger,
		engine:    eng,
		registry:  NewRegistry(),
		files:     files,
		scheduler: cron.New(),
	}
	if db != nil {
		m.history = models.NewDownloadRepository(db)
	}
	if cfg.Notifications.PushbulletAPIKey != "" {
		m.notifier = notifications.NewPushbulletClient(cfg.Notifications.PushbulletAPIKey, logger)
	}

	m.poller = NewPoller(m.registry, eng, hub, PollerConfig{
		Interval:           cfg.PollIntervalDuration(),
		FetchTimeout:       cfg.FetchTimeoutDuration(),
		SeedRatioCutoff:    cfg.Downloads.SeedRatioCutoff,
		RemoveDataOnCutoff: cfg.Downloads.RemoveDataOnCutoff,
	}, logger)
	m.poller.OnStarted(m.handleStarted)
	m.poller.OnFinished(m.handleFinished)
	m.poller.OnRetired(m.handleRetired)

	return m, nil
}

// Start launches the poll loop and the background maintenance jobs.
func (m *Manager) Start() {
	m.poller.Start()
	m.scheduler.AddFunc("@every 1m", m.refreshFiles)
	m.scheduler.AddFunc("@daily", m.cleanupHistory)
	m.scheduler.Start()
	m.logger.Info("Download manager started (engine: %s)", m.engine.Name())
}

// Stop halts background work and shuts down the engine.
func (m *Manager) Stop() {
	m.scheduler.Stop()
	m.poller.Stop()
	if err := m.files.Close(); err != nil {
		m.logger.Warn("Error closing file index: %v", err)
	}
	if err := m.engine.Close(); err != nil {
		m.logger.Warn("Error closing engine: %v", err)
	}
	m.logger.Info("Download manager stopped")
}

// StartDownload hands a magnet link to the engine and registers the transfer.
// An empty savePath falls back to the configured download directory.
func (m *Manager) StartDownload(ctx context.Context, magnetURI, savePath string) (string, error) {
	if savePath == "" {
		savePath = m.config.Downloads.Path
	}
	if !m.engine.Available() {
		return "", fmt.Errorf("engine %s: %w", m.engine.Name(), engine.ErrUnavailable)
	}

	ref, err := m.engine.AddMagnet(ctx, magnetURI, savePath)
	if err != nil {
		if m.notifier != nil {
			m.notifier.NotifyDownloadError("magnet download", err.Error())
		}
		return "", err
	}

	entry := m.registry.Insert(ref, savePath)
	m.logger.Info("Download %s registered (engine ref %s)", entry.ID, ref)

	if m.history != nil {
		record := &models.Download{
			ID:       entry.ID,
			Magnet:   magnetURI,
			SavePath: savePath,
			Status:   models.StatusAdded,
		}
		if err := m.history.Create(record); err != nil {
			m.logger.Warn("Failed to record download %s in history: %v", entry.ID, err)
		}
	}
	return entry.ID, nil
}

// CancelDownload removes a download and deletes its data. The registry entry
// goes before the engine call so no concurrent poll can see a dropped
// reference.
func (m *Manager) CancelDownload(ctx context.Context, id string) error {
	entry, ok := m.registry.Get(id)
	if !ok {
		return fmt.Errorf("cancel %s: %w", id, ErrNotFound)
	}
	m.registry.Remove(id)

	if err := m.engine.Remove(ctx, entry.EngineRef, true); err != nil {
		m.logger.Warn("Engine removal failed for %s: %v", id, err)
	}
	if m.history != nil {
		if err := m.history.SetStatus(id, models.StatusCancelled); err != nil {
			m.logger.Warn("Failed to mark %s cancelled in history: %v", id, err)
		}
	}
	m.logger.Info("Download %s cancelled", id)
	return nil
}

// PauseDownload suspends transfer activity for a download.
func (m *Manager) PauseDownload(ctx context.Context, id string) error {
	entry, ok := m.registry.Get(id)
	if !ok {
		return fmt.Errorf("pause %s: %w", id, ErrNotFound)
	}
	return m.engine.Pause(ctx, entry.EngineRef)
}

// ResumeDownload resumes a paused download.
func (m *Manager) ResumeDownload(ctx context.Context, id string) error {
	entry, ok := m.registry.Get(id)
	if !ok {
		return fmt.Errorf("resume %s: %w", id, ErrNotFound)
	}
	return m.engine.Resume(ctx, entry.EngineRef)
}

// Snapshots returns the latest cached status of every active download.
func (m *Manager) Snapshots() []Snapshot {
	return m.registry.Snapshots()
}

// Files lists everything under the download root.
func (m *Manager) Files() ([]FileInfo, error) {
	return m.files.List()
}

// FilePath resolves a relative path from the files listing to an absolute
// path inside the download root.
func (m *Manager) FilePath(relPath string) (string, error) {
	return m.files.Resolve(relPath)
}

// History returns the most recent download history rows.
func (m *Manager) History(limit int) ([]models.Download, error) {
	if m.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	return m.history.GetRecent(limit)
}

// Health reports engine reachability, active download count and disk usage of
// the download root.
func (m *Manager) Health() Health {
	h := Health{
		Status:          "ok",
		Engine:          m.engine.Name(),
		EngineAvailable: m.engine.Available(),
		ActiveDownloads: m.registry.Len(),
	}
	if !h.EngineAvailable {
		h.Status = "degraded"
	}
	if usage, err := disk.Usage(m.files.Root()); err == nil {
		h.Disk = &DiskStat{
			Path:        m.files.Root(),
			TotalBytes:  usage.Total,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	}
	return h
}

func (m *Manager) handleStarted(snap Snapshot) {
	m.logger.Info("Download started: %s", snap.Name)
	if m.history != nil {
		if err := m.history.SetName(snap.ID, snap.Name); err != nil {
			m.logger.Warn("Failed to record name for %s: %v", snap.ID, err)
		}
	}
	if m.notifier != nil {
		m.notifier.NotifyDownloadStart(snap.Name)
	}
}

func (m *Manager) handleFinished(snap Snapshot) {
	m.logger.Info("Download complete: %s", snap.Name)
	if m.history != nil {
		if err := m.history.SetStatus(snap.ID, models.StatusCompleted); err != nil {
			m.logger.Warn("Failed to mark %s completed in history: %v", snap.ID, err)
		}
	}
	if m.notifier != nil {
		m.notifier.NotifyDownloadComplete(snap.Name)
	}
}

func (m *Manager) handleRetired(snap Snapshot) {
	if m.history != nil {
		if err := m.history.SetStatus(snap.ID, models.StatusRetired); err != nil {
			m.logger.Warn("Failed to mark %s retired in history: %v", snap.ID, err)
		}
	}
}

func (m *Manager) refreshFiles() {
	if err := m.files.Refresh(); err != nil {
		m.logger.Warn("File index refresh failed: %v", err)
	}
}

func (m *Manager) cleanupHistory() {
	if m.history == nil || m.config.History.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -m.config.History.RetentionDays)
	deleted, err := m.history.DeleteOlderThan(cutoff)
	if err != nil {
		m.logger.Warn("History cleanup failed: %v", err)
		return
	}
	if deleted > 0 {
		m.logger.Info("History cleanup removed %d old downloads", deleted)
	}
}
