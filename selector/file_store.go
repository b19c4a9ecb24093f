package selector

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists Stats as a JSON file. Updates are serialized through a
// process-local mutex and written via rename so a crash can never leave a
// half-written file behind.
type FileStore struct {
	path  string
	mu    sync.Mutex
	stats Stats
}

// NewFileStore loads existing statistics from path. A corrupt or missing
// file is logged and treated as empty state.
func NewFileStore(path string) *FileStore {
	fs := &FileStore{path: path, stats: Stats{}}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("⚠️ could not read selector stats %s: %v", path, err)
		}
		return fs
	}
	var stats Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		log.Printf("⚠️ corrupt selector stats %s, starting empty: %v", path, err)
		return fs
	}
	fs.stats = stats
	return fs
}

func (fs *FileStore) Record(field, selector string, success bool) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	sels := fs.stats[field]
	if sels == nil {
		sels = make(map[string]Stat)
		fs.stats[field] = sels
	}
	st := sels[selector]
	st.Attempts++
	if success {
		st.Successes++
	}
	sels[selector] = st
	return fs.flushLocked()
}

func (fs *FileStore) Snapshot() (Stats, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.stats.Clone(), nil
}

func (fs *FileStore) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.flushLocked()
}

func (fs *FileStore) flushLocked() error {
	if dir := filepath.Dir(fs.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create stats dir: %w", err)
		}
	}
	data, err := json.MarshalIndent(fs.stats, "", "  ")
	if err != nil {
		return err
	}
	tmp := fs.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return os.Rename(tmp, fs.path)
}
