package core

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"magnetd/internal/utils"
)

// FileInfo describes one downloaded file, with its path relative to the
// download root so it can be fed back to the file download endpoint.
type FileInfo struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// FileIndex keeps a cached listing of everything under the download root.
// An fsnotify watch marks the cache dirty on any change, so List only
// re-walks the tree when something actually happened.
type FileIndex struct {
	root    string
	logger  *utils.Logger
	watcher *fsnotify.Watcher

	mu    sync.Mutex
	files []FileInfo
	dirty bool

	wg     sync.WaitGroup
	stopCh chan struct{}
}

func NewFileIndex(root string, logger *utils.Logger) (*FileIndex, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving download root: %w", err)
	}
	if err := os.MkdirAll(absRoot, 0o755); err != nil {
		return nil, fmt.Errorf("creating download root: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	idx := &FileIndex{
		root:    absRoot,
		logger:  logger,
		watcher: watcher,
		dirty:   true,
		stopCh:  make(chan struct{}),
	}
	if err := idx.watchTree(absRoot); err != nil {
		watcher.Close()
		return nil, err
	}

	idx.wg.Add(1)
	go idx.eventLoop()
	return idx, nil
}

// Root returns the absolute download root directory.
func (idx *FileIndex) Root() string {
	return idx.root
}

// Close stops the watcher.
func (idx *FileIndex) Close() error {
	close(idx.stopCh)
	err := idx.watcher.Close()
	idx.wg.Wait()
	return err
}

// List returns the indexed files, re-walking the tree first if the cache is
// stale. The returned slice is a copy.
func (idx *FileIndex) List() ([]FileInfo, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if idx.dirty {
		if err := idx.refreshLocked(); err != nil {
			return nil, err
		}
	}
	out := make([]FileInfo, len(idx.files))
	copy(out, idx.files)
	return out, nil
}

// Refresh forces a re-walk of the download root.
func (idx *FileIndex) Refresh() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.refreshLocked()
}

// Resolve maps a relative file path from the API onto an absolute path under
// the download root, rejecting anything that would escape it.
func (idx *FileIndex) Resolve(relPath string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(relPath))
	if cleaned == "." || cleaned == string(filepath.Separator) {
		return "", fmt.Errorf("invalid file path %q", relPath)
	}
	full := filepath.Join(idx.root, cleaned)
	if full != idx.root && !strings.HasPrefix(full, idx.root+string(filepath.Separator)) {
		return "", fmt.Errorf("file path %q escapes the download directory", relPath)
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%q is a directory", relPath)
	}
	return full, nil
}

func (idx *FileIndex) refreshLocked() error {
	var files []FileInfo
	err := filepath.WalkDir(idx.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			// Entries can vanish mid-walk while a torrent is moving files.
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(idx.root, path)
		if err != nil {
			return nil
		}
		files = append(files, FileInfo{
			Name:    d.Name(),
			Path:    filepath.ToSlash(rel),
			Size:    info.Size(),
			Created: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking download directory: %w", err)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Path < files[j].Path
	})
	idx.files = files
	idx.dirty = false
	return nil
}

func (idx *FileIndex) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if werr := idx.watcher.Add(path); werr != nil {
				idx.logger.Warn("Failed to watch %s: %v", path, werr)
			}
		}
		return nil
	})
}

func (idx *FileIndex) eventLoop() {
	defer idx.wg.Done()
	for {
		select {
		case <-idx.stopCh:
			return
		case event, ok := <-idx.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := idx.watcher.Add(event.Name); err != nil {
						idx.logger.Warn("Failed to watch %s: %v", event.Name, err)
					}
				}
			}
			idx.mu.Lock()
			idx.dirty = true
			idx.mu.Unlock()
		case err, ok := <-idx.watcher.Errors:
			if !ok {
				return
			}
			idx.logger.Warn("File watcher error: %v", err)
		}
	}
}
