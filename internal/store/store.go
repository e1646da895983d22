// Package store persists bot state as one JSON document per collection.
//
// Every collection lives under a single diskv key. Mutations of one collection
// are serialized through a per-collection lock held across the whole
// read-modify-write cycle, so concurrent commands and scheduler scans never
// overwrite each other's changes.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"errand-bot/pkg/errand"

	"github.com/mitchellh/go-homedir"
	"github.com/peterbourgon/diskv/v3"
)

const defaultCacheSizeMax = 1 << 20

// ErrNoChange may be returned by an Update callback to skip the write.
var ErrNoChange = errand.ErrNoChange

// Config controls where and how the store keeps its files.
type Config struct {
	// Dir is the base directory. A leading ~ expands to the user home.
	Dir string
	// CacheSizeMax bounds the in-memory read cache in bytes. Zero uses 1MiB.
	CacheSizeMax uint64
}

// Store owns the on-disk collections.
type Store struct {
	disk *diskv.Diskv
	dir  string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// envelope is the on-disk representation of one collection.
type envelope struct {
	Version uint64          `json:"version"`
	Records json.RawMessage `json:"records"`
}

// Open prepares the base directory and returns a ready store.
func Open(cfg Config) (*Store, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("open store: empty dir")
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return nil, fmt.Errorf("open store: expand dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(expanded, 0o700); err != nil {
		return nil, fmt.Errorf("open store: create dir %s: %w", expanded, err)
	}

	cacheSize := cfg.CacheSizeMax
	if cacheSize == 0 {
		cacheSize = defaultCacheSizeMax
	}

	return &Store{
		disk: diskv.New(diskv.Options{
			BasePath:     expanded,
			TempDir:      filepath.Join(expanded, ".tmp"),
			Transform:    func(string) []string { return []string{} },
			CacheSizeMax: cacheSize,
			FilePerm:     0o600,
			PathPerm:     0o700,
		}),
		dir:   expanded,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Dir returns the expanded base directory.
func (s *Store) Dir() string {
	return s.dir
}

// Dump returns the stored JSON document of one collection.
// A collection that was never written dumps as an empty document.
func (s *Store) Dump(name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, fmt.Errorf("dump collection: %w", err)
	}

	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	doc, err := s.read(name)
	if err != nil {
		return nil, fmt.Errorf("dump collection %s: %w", name, err)
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("dump collection %s: %w", name, err)
	}

	return raw, nil
}

func (s *Store) lockFor(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, exists := s.locks[name]
	if !exists {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}

	return lock
}

// read loads the envelope for name. Callers hold the collection lock.
func (s *Store) read(name string) (envelope, error) {
	if !s.disk.Has(name) {
		return envelope{Records: json.RawMessage("[]")}, nil
	}

	raw, err := s.disk.Read(name)
	if err != nil {
		return envelope{}, fmt.Errorf("read %s: %w", name, err)
	}
	var doc envelope
	if err := json.Unmarshal(raw, &doc); err != nil {
		return envelope{}, fmt.Errorf("decode %s: %w", name, err)
	}
	if len(doc.Records) == 0 || string(doc.Records) == "null" {
		doc.Records = json.RawMessage("[]")
	}

	return doc, nil
}

// write stores doc under name. Callers hold the collection lock.
func (s *Store) write(name string, doc envelope) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.disk.Write(name, raw); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("empty collection name")
	}
	if strings.ContainsAny(name, `/\. `) {
		return fmt.Errorf("invalid collection name %q", name)
	}

	return nil
}
