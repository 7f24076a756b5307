// Package registry keeps the append-only audit log of recognition
// attempts. The log is a best-effort artifact: a failed write is logged
// and swallowed so it can never fail the recognition response it records.
package registry

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Status values for one recognition attempt.
const (
	StatusOK   = "ok"
	StatusFail = "fail"
)

// Entry is one recorded recognition attempt. Name and Distance are nil
// when no confident match was found.
type Entry struct {
	TS       string   `json:"ts"`
	Name     *string  `json:"name"`
	Status   string   `json:"status"`
	Distance *float64 `json:"distance"`
}

// Registry persists entries to a JSON array on disk, newest first. It
// shares the gallery store's lock so log writes serialize with gallery
// mutations.
type Registry struct {
	mu   sync.Locker
	path string
}

// New creates a registry over the given log file path, serialized by the
// given lock. The file is created lazily on first append.
func New(path string, mu sync.Locker) *Registry {
	return &Registry{mu: mu, path: path}
}

// NewEntry builds an entry for the current moment. A nil name means the
// attempt failed to produce a confident match.
func NewEntry(name *string, distance *float64) Entry {
	status := StatusFail
	if name != nil {
		status = StatusOK
	}
	return Entry{
		TS:       time.Now().UTC().Format(time.RFC3339),
		Name:     name,
		Status:   status,
		Distance: distance,
	}
}

// Append prepends the entry and rewrites the log. Persistence failures
// are logged and swallowed.
func (r *Registry) Append(entry Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.readLocked()
	entries = append([]Entry{entry}, entries...)

	if err := r.writeLocked(entries); err != nil {
		log.Printf("Failed to write recognition registry: %v", err)
	}
}

// List returns the log newest first, read fresh from disk. A missing or
// malformed file reads as an empty log.
func (r *Registry) List() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.readLocked()
}

func (r *Registry) readLocked() []Entry {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to read recognition registry: %v", err)
		}
		return []Entry{}
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Printf("Ignoring malformed recognition registry: %v", err)
		return []Entry{}
	}
	return entries
}

func (r *Registry) writeLocked(entries []Entry) error {
	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create registry directory: %w", err)
		}
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write registry: %w", err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace registry: %w", err)
	}
	return nil
}
