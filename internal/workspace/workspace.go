// Package workspace implements the on-disk cache of generated functions.
//
// Layout under the cache root:
//
//	ids/<id>.go                              explicit-id entries
//	structure/<relative-source-path>/<name>.go   location entries
//	<entry>.go.meta.yaml                     optional creation metadata
//
// Store always overwrites. Concurrent processes writing the same slot
// resolve by last write wins; writes go through a temp file and rename so
// readers never observe a partial file.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"autocode/internal/identity"
	"autocode/internal/logging"

	"gopkg.in/yaml.v3"
)

const (
	idsDir       = "ids"
	structureDir = "structure"
	sourceExt    = ".go"
	metaExt      = ".meta.yaml"
)

// ErrUncacheable is returned when an operation is given a StrategyNone key.
var ErrUncacheable = errors.New("key is not cacheable")

// Meta is the optional creation record stored beside a source file.
type Meta struct {
	Key         string    `yaml:"key"`
	Name        string    `yaml:"name,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Signature   string    `yaml:"signature,omitempty"`
	Agent       string    `yaml:"agent,omitempty"`
	Attempts    int       `yaml:"attempts,omitempty"`
	CreatedAt   time.Time `yaml:"created_at"`
}

// Entry is one cached function.
type Entry struct {
	Key    identity.Key
	Path   string
	Source string
}

// Workspace is a cache rooted at a directory.
type Workspace struct {
	root string
}

// New returns a workspace rooted at dir. The directory is created lazily.
func New(dir string) *Workspace {
	return &Workspace{root: dir}
}

// Root returns the cache root directory.
func (w *Workspace) Root() string {
	return w.root
}

// PathFor returns the source file path of a key's slot.
func (w *Workspace) PathFor(key identity.Key) (string, error) {
	switch key.Strategy {
	case identity.StrategyID:
		return filepath.Join(w.root, idsDir, key.Value+sourceExt), nil
	case identity.StrategyStructure:
		return filepath.Join(w.root, structureDir, filepath.FromSlash(key.Value)+sourceExt), nil
	default:
		return "", ErrUncacheable
	}
}

// Lookup returns the cached source for key, if any.
func (w *Workspace) Lookup(key identity.Key) (Entry, bool, error) {
	path, err := w.PathFor(key)
	if err != nil {
		return Entry{}, false, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.CacheDebug("miss: %s", key)
			return Entry{}, false, nil
		}
		return Entry{}, false, fmt.Errorf("failed to read cache entry %s: %w", path, err)
	}

	logging.CacheDebug("hit: %s (%d bytes)", key, len(data))
	return Entry{Key: key, Path: path, Source: string(data)}, true, nil
}

// Store writes source (and meta, when non-nil) to the key's slot, replacing
// whatever was there.
func (w *Workspace) Store(key identity.Key, source string, meta *Meta) (string, error) {
	path, err := w.PathFor(key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logging.CacheError("creating directory for %s: %v", key, err)
		return "", fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := writeAtomic(path, []byte(source)); err != nil {
		logging.CacheError("writing %s: %v", key, err)
		return "", fmt.Errorf("failed to write cache entry: %w", err)
	}

	metaPath := path + metaExt
	if meta == nil {
		// A stale sidecar would describe the previous generation.
		_ = os.Remove(metaPath)
	} else {
		meta.Key = key.String()
		data, err := yaml.Marshal(meta)
		if err != nil {
			return "", fmt.Errorf("failed to marshal cache metadata: %w", err)
		}
		if err := writeAtomic(metaPath, data); err != nil {
			return "", fmt.Errorf("failed to write cache metadata: %w", err)
		}
	}

	logging.Cache("stored %s -> %s", key, path)
	return path, nil
}

// ReadMeta returns the metadata sidecar of a key, if present.
func (w *Workspace) ReadMeta(key identity.Key) (*Meta, error) {
	path, err := w.PathFor(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path + metaExt)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	var m Meta
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse cache metadata: %w", err)
	}
	return &m, nil
}

// Remove deletes a key's source and metadata. Missing entries are not an error.
func (w *Workspace) Remove(key identity.Key) error {
	path, err := w.PathFor(key)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + metaExt} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove %s: %w", p, err)
		}
	}
	return nil
}

// Clear removes every cached entry.
func (w *Workspace) Clear() error {
	for _, dir := range []string{idsDir, structureDir} {
		if err := os.RemoveAll(filepath.Join(w.root, dir)); err != nil {
			return fmt.Errorf("failed to clear %s: %w", dir, err)
		}
	}
	return nil
}

// List enumerates cached entries sorted by key. Sources are not loaded.
func (w *Workspace) List() ([]Entry, error) {
	var entries []Entry

	for _, sub := range []struct {
		dir      string
		strategy identity.Strategy
	}{
		{idsDir, identity.StrategyID},
		{structureDir, identity.StrategyStructure},
	} {
		base := filepath.Join(w.root, sub.dir)
		err := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return fs.SkipAll
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, sourceExt) {
				return nil
			}
			rel, err := filepath.Rel(base, path)
			if err != nil {
				return err
			}
			value := strings.TrimSuffix(filepath.ToSlash(rel), sourceExt)
			entries = append(entries, Entry{
				Key:  identity.Key{Strategy: sub.strategy, Value: value},
				Path: path,
			})
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", base, err)
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key.String() < entries[j].Key.String()
	})
	return entries, nil
}

// ParseKey converts a key string as printed by Key.String ("ids/x",
// "structure/a/b.go/f") back to a key. Use KeyOf for cache file paths.
func ParseKey(s string) (identity.Key, error) {
	s = filepath.ToSlash(s)
	switch {
	case strings.HasPrefix(s, idsDir+"/"):
		return identity.Resolve(strings.TrimPrefix(s, idsDir+"/"), "", "")
	case strings.HasPrefix(s, structureDir+"/"):
		rest := strings.TrimPrefix(s, structureDir+"/")
		i := strings.LastIndex(rest, "/")
		if i <= 0 {
			return identity.Key{}, fmt.Errorf("%w: %q has no function name", identity.ErrInvalid, s)
		}
		return identity.Resolve("", rest[:i], rest[i+1:])
	default:
		return identity.Key{}, fmt.Errorf("%w: %q must start with ids/ or structure/", identity.ErrInvalid, s)
	}
}

// KeyOf returns the key whose source file is path. path may be absolute or
// relative to the working directory but must lie inside the cache root.
func (w *Workspace) KeyOf(path string) (identity.Key, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return identity.Key{}, err
	}
	root, err := filepath.Abs(w.root)
	if err != nil {
		return identity.Key{}, err
	}
	rel, err := filepath.Rel(root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return identity.Key{}, fmt.Errorf("%w: %s is outside the cache %s", identity.ErrInvalid, path, w.root)
	}
	if !strings.HasSuffix(rel, sourceExt) {
		return identity.Key{}, fmt.Errorf("%w: %s is not a cached source file", identity.ErrInvalid, path)
	}
	return ParseKey(strings.TrimSuffix(rel, sourceExt))
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
