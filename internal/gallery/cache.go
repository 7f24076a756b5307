package gallery

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/kozaktomas/face-gallery/internal/identity"
)

// cacheFile is the on-disk snapshot of the gallery: encodings and names are
// parallel slices ordered by filename, meta carries per-file detail for
// every scanned file including the ones without a face.
type cacheFile struct {
	Encodings [][]float32          `json:"encodings"`
	Names     []string             `json:"names"`
	Meta      map[string]cacheMeta `json:"meta"`
}

type cacheMeta struct {
	Faces int    `json:"faces"`
	PHash string `json:"phash,omitempty"`
	DHash string `json:"dhash,omitempty"`
}

// encodeCache flattens the entries into the cache layout. Encoded entries
// are emitted in filename order so the parallel slices line up with the
// sorted meta keys on load.
func encodeCache(entries map[string]*Entry) *cacheFile {
	c := &cacheFile{
		Encodings: [][]float32{},
		Names:     []string{},
		Meta:      make(map[string]cacheMeta, len(entries)),
	}

	filenames := make([]string, 0, len(entries))
	for fname := range entries {
		filenames = append(filenames, fname)
	}
	sort.Strings(filenames)

	for _, fname := range filenames {
		e := entries[fname]
		c.Meta[fname] = cacheMeta{Faces: e.Faces, PHash: e.PHash, DHash: e.DHash}
		if e.Encoding != nil {
			c.Encodings = append(c.Encodings, e.Encoding)
			c.Names = append(c.Names, e.Name)
		}
	}

	return c
}

// decodeCache rebuilds entries from the cache layout. It fails when the
// parallel slices do not line up with the meta map, in which case the
// caller falls back to a full rebuild from disk.
func decodeCache(c *cacheFile) (map[string]*Entry, error) {
	if len(c.Encodings) != len(c.Names) {
		return nil, fmt.Errorf("misaligned cache: %d encodings, %d names", len(c.Encodings), len(c.Names))
	}

	filenames := make([]string, 0, len(c.Meta))
	for fname := range c.Meta {
		filenames = append(filenames, fname)
	}
	sort.Strings(filenames)

	entries := make(map[string]*Entry, len(c.Meta))
	next := 0
	for _, fname := range filenames {
		meta := c.Meta[fname]
		e := &Entry{
			Filename: fname,
			Name:     identity.NameFromFilename(fname),
			Faces:    meta.Faces,
			PHash:    meta.PHash,
			DHash:    meta.DHash,
		}
		if meta.Faces > 0 {
			if next >= len(c.Encodings) {
				return nil, fmt.Errorf("misaligned cache: no encoding left for %s", fname)
			}
			if c.Names[next] != e.Name {
				return nil, fmt.Errorf("misaligned cache: encoding %d is %q, expected %q", next, c.Names[next], e.Name)
			}
			e.Encoding = c.Encodings[next]
			next++
		}
		entries[fname] = e
	}

	if next != len(c.Encodings) {
		return nil, fmt.Errorf("misaligned cache: %d encodings unclaimed", len(c.Encodings)-next)
	}

	return entries, nil
}

// writeCacheFile persists the cache atomically: write a sibling temp file,
// then rename over the target.
func writeCacheFile(path string, c *cacheFile) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace cache: %w", err)
	}
	return nil
}

// readCacheFile loads and decodes the cache file.
func readCacheFile(path string) (map[string]*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var c cacheFile
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse cache: %w", err)
	}

	return decodeCache(&c)
}
