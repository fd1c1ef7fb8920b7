package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileBackend keeps one JSON file per key in a directory. Processes sharing
// the directory see each other's writes; Watch reports them via fsnotify.
type FileBackend struct {
	dir string
	mu  sync.Mutex
}

type fileEntry struct {
	Version int64           `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (f *FileBackend) path(key string) string {
	return filepath.Join(f.dir, sanitizeKey(key)+".json")
}

func (f *FileBackend) Load(_ context.Context, key string) (Entry, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read(key)
}

func (f *FileBackend) read(key string) (Entry, bool, error) {
	raw, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("read %s: %w", key, err)
	}
	var fe fileEntry
	if err := json.Unmarshal(raw, &fe); err != nil {
		// Hand the bytes up so the collection decoder reports them as malformed.
		return Entry{Data: raw}, true, nil
	}
	return Entry{Data: []byte(fe.Data), Version: fe.Version}, true, nil
}

func (f *FileBackend) Save(_ context.Context, key string, data []byte, expected int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur, _, err := f.read(key)
	if err != nil {
		return 0, err
	}
	if err := checkVersion(cur.Version, expected); err != nil {
		return cur.Version, err
	}
	next := cur.Version + 1
	if !json.Valid(data) {
		return 0, fmt.Errorf("write %s: data is not valid json", key)
	}
	raw, err := json.Marshal(fileEntry{Version: next, Data: data})
	if err != nil {
		return 0, fmt.Errorf("encode %s: %w", key, err)
	}
	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		os.Remove(tmp.Name())
		return 0, fmt.Errorf("write %s: %w", key, err)
	}
	return next, nil
}

func (f *FileBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := os.Remove(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FileBackend) Close() error { return nil }

// Watch calls onChange whenever the file for key is created or rewritten.
func (f *FileBackend) Watch(ctx context.Context, key string, onChange func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", f.dir, err)
	}
	target := f.path(key)
	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) {
					onChange()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
				// Events may have been dropped; let the caller re-read.
				onChange()
			}
		}
	}()
	return nil
}

func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_", ":", "_")
	return r.Replace(key)
}
