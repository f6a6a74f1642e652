// Package store keeps persisted modules in a SQLite database, with an
// in-memory cache of decoded sources.
package store

import (
	"bytes"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	_ "modernc.org/sqlite"

	"github.com/chazu/nnl/graph"
	"github.com/chazu/nnl/module"
	"github.com/chazu/nnl/persist"
)

// ErrNotFound indicates the store holds no module with the requested name.
var ErrNotFound = errors.New("store: module not found")

// DefaultCacheSize is the number of decoded sources kept in memory.
const DefaultCacheSize = 64

// Entry describes one stored module.
type Entry struct {
	Name      string
	Size      int
	UpdatedAt time.Time
}

// CacheStats counts source cache lookups.
type CacheStats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// Store persists encoded modules by name.
type Store struct {
	db   *sql.DB
	path string
	log  graph.Logger

	mu     sync.Mutex
	cache  *simplelru.LRU[string, *persist.Source]
	hits   uint64
	misses uint64
}

// GetLogger returns the store package logger.
func GetLogger() graph.Logger {
	return graph.GetLogger("nnl.store")
}

// Open opens or creates the database at path. cacheSize <= 0 uses
// DefaultCacheSize.
func Open(path string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS modules (
		name TEXT PRIMARY KEY,
		version INTEGER NOT NULL,
		data BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	cache, err := simplelru.NewLRU[string, *persist.Source](cacheSize, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache: %w", err)
	}

	return &Store{db: db, path: path, log: GetLogger(), cache: cache}, nil
}

// SetLogger replaces the store's logger.
func (s *Store) SetLogger(log graph.Logger) { s.log = log }

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save encodes src and stores it under its header's module name,
// replacing any previous version.
func (s *Store) Save(src *persist.Source) error {
	name := src.Header.Module
	if name == "" {
		return errors.New("store: source has no module name")
	}
	var buf bytes.Buffer
	if err := persist.Write(&buf, src); err != nil {
		return fmt.Errorf("encoding module %s: %w", name, err)
	}
	return s.SaveRaw(name, buf.Bytes())
}

// SaveRaw stores an already encoded module.
func (s *Store) SaveRaw(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT OR REPLACE INTO modules (name, version, data, updated_at) VALUES (?, ?, ?, ?)",
		name, persist.FormatVersion, data, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("saving module %s: %w", name, err)
	}
	s.cache.Remove(name)
	s.log.Debugf("saved %s (%d bytes)", name, len(data))
	return nil
}

// LoadRaw returns the encoded bytes of a module.
func (s *Store) LoadRaw(name string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM modules WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("querying module %s: %w", name, err)
	}
	return data, nil
}

// Load returns the decoded module called name.
func (s *Store) Load(name string) (*persist.Source, error) {
	s.mu.Lock()
	if src, ok := s.cache.Get(name); ok {
		s.hits++
		s.mu.Unlock()
		return src, nil
	}
	s.misses++
	s.mu.Unlock()

	data, err := s.LoadRaw(name)
	if err != nil {
		return nil, err
	}
	src, err := persist.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding module %s: %w", name, err)
	}

	s.mu.Lock()
	s.cache.Add(name, src)
	s.mu.Unlock()
	return src, nil
}

// Delete removes a module. Deleting a missing module is not an error.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM modules WHERE name = ?", name); err != nil {
		return fmt.Errorf("deleting module %s: %w", name, err)
	}
	s.cache.Remove(name)
	return nil
}

// List returns the stored modules ordered by name.
func (s *Store) List() ([]Entry, error) {
	rows, err := s.db.Query("SELECT name, length(data), updated_at FROM modules ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var updated int64
		if err := rows.Scan(&e.Name, &e.Size, &updated); err != nil {
			return nil, fmt.Errorf("scanning module row: %w", err)
		}
		e.UpdatedAt = time.Unix(0, updated)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CacheStats reports source cache usage.
func (s *Store) CacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CacheStats{Hits: s.hits, Misses: s.misses, Len: s.cache.Len()}
}

// Compile loads name from the store and compiles it into reg. Load and
// decode failures become errors of the compile session.
func (s *Store) Compile(reg *module.Registry, name string) (*module.Session, error) {
	mod := module.New(name, s.path)
	return reg.Compile(mod, func(c *module.Compiler) error {
		src, err := s.Load(name)
		if err != nil {
			return err
		}
		return persist.Render(c, src)
	})
}

// Capture stores the current graph contents of a compiled module.
func (s *Store) Capture(b *graph.Brain, mod *module.Module) error {
	src, err := persist.Capture(b, mod)
	if err != nil {
		return err
	}
	return s.Save(src)
}
