package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"magnetd/internal/engine"
	"magnetd/internal/utils"
)

// errorBackoffFactor stretches the poll interval after a tick in which every
// status fetch failed, so a down engine is not hammered once per second.
const errorBackoffFactor = 5

// Broadcaster receives each tick's batch of snapshots.
type Broadcaster interface {
	BroadcastUpdates(batch []Snapshot)
}

// PollerConfig carries the knobs for a Poller.
type PollerConfig struct {
	Interval           time.Duration
	FetchTimeout       time.Duration
	SeedRatioCutoff    float64
	RemoveDataOnCutoff bool
}

// Poller periodically fetches the status of every registered download,
// normalizes it, caches it in the registry and pushes the batch to the
// broadcaster. It also retires downloads that reached the seed ratio cutoff.
type Poller struct {
	registry   *Registry
	engine     engine.Engine
	hub        Broadcaster
	logger     *utils.Logger
	cfg        PollerConfig
	onStarted  func(Snapshot)
	onFinished func(Snapshot)
	onRetired  func(Snapshot)

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewPoller(registry *Registry, eng engine.Engine, hub Broadcaster, cfg PollerConfig, logger *utils.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	return &Poller{
		registry: registry,
		engine:   eng,
		hub:      hub,
		logger:   logger,
		cfg:      cfg,
	}
}

// OnStarted registers a hook called once per download when its metadata first
// resolves and actual transfer begins. Must be set before Start.
func (p *Poller) OnStarted(fn func(Snapshot)) {
	p.onStarted = fn
}

// OnFinished registers a hook called once per download when its status first
// transitions to a completed state. Must be set before Start.
func (p *Poller) OnFinished(fn func(Snapshot)) {
	p.onFinished = fn
}

// OnRetired registers a hook called when a download is removed for reaching
// the seed ratio cutoff. Must be set before Start.
func (p *Poller) OnRetired(fn func(Snapshot)) {
	p.onRetired = fn
}

// Start launches the poll loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.stoppedCh = make(chan struct{})
	go p.run(p.stopCh, p.stoppedCh)
	p.logger.Info("Status poller started (interval: %s)", p.cfg.Interval)
}

// Stop halts the poll loop and waits for the in-flight tick to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, stoppedCh := p.stopCh, p.stoppedCh
	p.mu.Unlock()

	close(stopCh)
	<-stoppedCh
	p.logger.Info("Status poller stopped")
}

func (p *Poller) run(stopCh, stoppedCh chan struct{}) {
	defer close(stoppedCh)
	for {
		wait := p.cfg.Interval
		if err := p.Tick(context.Background()); err != nil {
			wait = p.cfg.Interval * errorBackoffFactor
			p.logger.Warn("Poll tick failed, backing off for %s: %v", wait, err)
		}
		select {
		case <-stopCh:
			return
		case <-time.After(wait):
		}
	}
}

// Tick performs a single poll pass. A fetch failure for one entry skips that
// entry and keeps its previous cached status; Tick returns an error only when
// every fetch in the pass failed, which signals the loop to back off.
func (p *Poller) Tick(ctx context.Context) error {
	ids := p.registry.IDs()
	batch := make([]Snapshot, 0, len(ids))
	attempted, failed := 0, 0

	for _, id := range ids {
		entry, ok := p.registry.Get(id)
		if !ok {
			continue
		}
		attempted++

		fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
		st, err := p.engine.Status(fetchCtx, entry.EngineRef)
		cancel()
		if err != nil {
			failed++
			p.logger.Debug("Status fetch failed for %s: %v", entry.ID, err)
			continue
		}

		snap := Normalize(entry.ID, entry.SavePath, st)
		prev, ok := p.registry.UpdateStatus(id, snap)
		if !ok {
			continue
		}
		batch = append(batch, snap)

		if prev == engine.StateMetadata && snap.Status != engine.StateMetadata && p.onStarted != nil {
			p.onStarted(snap)
		}
		if !isComplete(prev) && isComplete(snap.Status) && p.onFinished != nil {
			p.onFinished(snap)
		}

		if p.reachedCutoff(snap.Status, st) {
			p.retire(ctx, entry, snap)
		}
	}

	if len(batch) > 0 {
		p.hub.BroadcastUpdates(batch)
	}
	if attempted > 0 && failed == attempted {
		return fmt.Errorf("all %d status fetches failed", failed)
	}
	return nil
}

func isComplete(state engine.State) bool {
	return state == engine.StateFinished || state == engine.StateSeeding
}

func (p *Poller) reachedCutoff(state engine.State, st *engine.Status) bool {
	if p.cfg.SeedRatioCutoff <= 0 || !isComplete(state) || st.TotalSize <= 0 {
		return false
	}
	return float64(st.Uploaded) >= p.cfg.SeedRatioCutoff*float64(st.TotalSize)
}

// retire removes a download that seeded past the cutoff. The registry entry
// goes first so no later pass can observe a reference the engine has already
// dropped.
func (p *Poller) retire(ctx context.Context, entry Entry, snap Snapshot) {
	if !p.registry.Remove(entry.ID) {
		return
	}
	removeCtx, cancel := context.WithTimeout(ctx, p.cfg.FetchTimeout)
	defer cancel()
	if err := p.engine.Remove(removeCtx, entry.EngineRef, p.cfg.RemoveDataOnCutoff); err != nil {
		p.logger.Warn("Failed to remove %q from engine after seed cutoff: %v", snap.Name, err)
	}
	p.logger.Info("Removed %q after reaching seed ratio cutoff", snap.Name)
	if p.onRetired != nil {
		p.onRetired(snap)
	}
}
