package core

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"magnetd/internal/engine"
)

// ErrNotFound is returned by operations referencing a download id that is not
// in the registry.
var ErrNotFound = errors.New("download not found")

// Entry is a registered download: the public id handed to API callers plus
// the engine-side reference needed to query and control the transfer.
type Entry struct {
	ID        string
	EngineRef string
	SavePath  string
	AddedAt   time.Time
}

type registryEntry struct {
	Entry
	lastStatus Snapshot
}

// Registry maps download ids to engine references and caches the latest
// normalized status per entry. All methods are safe for concurrent use; a
// removal and a status update for the same id never interleave.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*registryEntry)}
}

// Insert registers a new download and returns its generated id. The initial
// cached status is the metadata-fetch snapshot, so a subscriber connecting
// between Insert and the first poll still sees the entry.
func (r *Registry) Insert(engineRef, savePath string) Entry {
	entry := Entry{
		ID:        uuid.New().String(),
		EngineRef: engineRef,
		SavePath:  savePath,
		AddedAt:   time.Now(),
	}

	r.mu.Lock()
	r.entries[entry.ID] = &registryEntry{
		Entry:      entry,
		lastStatus: MetadataSnapshot(entry.ID, savePath),
	}
	r.mu.Unlock()

	return entry
}

// Get returns the entry for id, or false if it is not registered.
func (r *Registry) Get(id string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return e.Entry, true
}

// Remove deletes the entry for id and reports whether it was present.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[id]; !ok {
		return false
	}
	delete(r.entries, id)
	return true
}

// IDs returns the registered ids ordered by insertion time.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	entries := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e.Entry)
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AddedAt.Before(entries[j].AddedAt)
	})
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	return ids
}

// Len returns the number of registered downloads.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// UpdateStatus caches the latest snapshot for id and returns the previously
// cached state. If the entry was removed since the caller looked it up, the
// update is discarded so a cancelled download cannot be resurrected.
func (r *Registry) UpdateStatus(id string, snap Snapshot) (prev engine.State, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, found := r.entries[id]
	if !found {
		return "", false
	}
	prev = e.lastStatus.Status
	e.lastStatus = snap
	return prev, true
}

// Snapshots returns the cached status of every registered download, ordered
// by insertion time.
func (r *Registry) Snapshots() []Snapshot {
	type timedSnapshot struct {
		addedAt time.Time
		snap    Snapshot
	}
	r.mu.RLock()
	entries := make([]timedSnapshot, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, timedSnapshot{addedAt: e.AddedAt, snap: e.lastStatus})
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].addedAt.Before(entries[j].addedAt)
	})
	snaps := make([]Snapshot, len(entries))
	for i, e := range entries {
		snaps[i] = e.snap
	}
	return snaps
}
