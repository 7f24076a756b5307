package gallery

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/kozaktomas/face-gallery/internal/embedder"
	"github.com/kozaktomas/face-gallery/internal/fingerprint"
	"github.com/kozaktomas/face-gallery/internal/identity"
)

// Store owns the in-memory gallery, the image directory and the encodings
// cache file. One coarse mutex guards all of them; the recognition registry
// shares the same lock via Locker.
type Store struct {
	mu        sync.Mutex
	imagesDir string
	cachePath string
	faces     FaceSource
	entries   map[string]*Entry
}

// NewStore creates a store over the given image directory, creating the
// directory if needed.
func NewStore(imagesDir, cachePath string, faces FaceSource) (*Store, error) {
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory: %w", err)
	}
	return &Store{
		imagesDir: imagesDir,
		cachePath: cachePath,
		faces:     faces,
		entries:   make(map[string]*Entry),
	}, nil
}

// Locker exposes the store's mutex so sibling components (the registry)
// can share the same mutual-exclusion domain.
func (s *Store) Locker() sync.Locker {
	return &s.mu
}

// ImagesDir returns the directory the gallery images live in.
func (s *Store) ImagesDir() string {
	return s.imagesDir
}

// ImagePath validates the filename and returns its absolute location inside
// the image directory. Returns ErrNotAllowed for unsafe or non-image names
// and ErrNotFound when the file does not exist.
func (s *Store) ImagePath(filename string) (string, error) {
	if !AllowedFilename(filename) {
		return "", ErrNotAllowed
	}
	path := filepath.Join(s.imagesDir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat %s: %w", filename, err)
	}
	return path, nil
}

// LoadCache reads the persisted cache file if present. Any failure to read
// or decode leaves the gallery empty and returns false so the caller can
// fall back to a full rebuild. The image directory is not touched.
func (s *Store) LoadCache() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := readCacheFile(s.cachePath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Failed to load encodings cache: %v", err)
		}
		return false
	}

	s.entries = entries
	log.Printf("Loaded encodings cache from %s", s.cachePath)
	return true
}

// RebuildFromDisk scans the image directory in filename order, recomputes
// every encoding and rewrites the cache. Files the embedder fails on are
// skipped with a warning. Returns the number of files that contributed an
// encoding. The optional progress callback runs once per scanned file.
func (s *Store) RebuildFromDisk(ctx context.Context, progress func(filename string)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuildLocked(ctx, progress)
}

func (s *Store) rebuildLocked(ctx context.Context, progress func(filename string)) (int, error) {
	if !s.faces.Available() {
		return 0, embedder.ErrUnavailable
	}

	files, err := s.listDisk()
	if err != nil {
		return 0, err
	}

	entries := make(map[string]*Entry, len(files))
	loaded := 0
	for _, fname := range files {
		if progress != nil {
			progress(fname)
		}

		data, err := os.ReadFile(filepath.Join(s.imagesDir, fname))
		if err != nil {
			log.Printf("Skipping %s: %v", fname, err)
			continue
		}

		e := &Entry{
			Filename: fname,
			Name:     identity.NameFromFilename(fname),
		}
		if h, err := fingerprint.Compute(data); err == nil {
			e.PHash = h.PHash.String()
			e.DHash = h.DHash.String()
		}

		resp, err := s.faces.DetectFaces(ctx, data)
		if err != nil {
			if err == embedder.ErrUnavailable {
				return 0, err
			}
			if ctx.Err() != nil {
				// A canceled request must abort the rebuild, not skip the
				// remaining files and persist a gutted gallery.
				return 0, fmt.Errorf("rebuild aborted: %w", ctx.Err())
			}
			log.Printf("Skipping %s: %v", fname, err)
			continue
		}

		e.Faces = len(resp.Faces)
		if len(resp.Faces) > 0 {
			e.Encoding = resp.Faces[0].Embedding
			loaded++
		}
		entries[fname] = e
	}

	s.entries = entries
	if err := s.persistLocked(); err != nil {
		log.Printf("Failed to save encodings cache: %v", err)
	}
	log.Printf("Loaded %d known faces", loaded)
	return loaded, nil
}

// Upsert writes uploaded image bytes under a collision-free variant of the
// desired filename, computes the encoding and updates gallery and cache.
// An existing file is never overwritten.
func (s *Store) Upsert(ctx context.Context, filename string, data []byte) (*UpsertResult, error) {
	if !AllowedFilename(filename) {
		return nil, ErrNotAllowed
	}
	if !s.faces.Available() {
		return nil, embedder.ErrUnavailable
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dest := s.resolveDestName(filename)
	path := filepath.Join(s.imagesDir, dest)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to save %s: %w", dest, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to save %s: %w", dest, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to save %s: %w", dest, err)
	}

	e := &Entry{
		Filename: dest,
		Name:     identity.NameFromFilename(dest),
	}

	result := &UpsertResult{Filename: dest}
	if h, err := fingerprint.Compute(data); err == nil {
		e.PHash = h.PHash.String()
		e.DHash = h.DHash.String()
		result.DuplicateOf = s.findDuplicate(h, dest)
	}

	resp, err := s.faces.DetectFaces(ctx, data)
	if err != nil {
		// The file stays on disk; the next rebuild will pick it up or skip
		// it again. The gallery and cache are untouched.
		return nil, fmt.Errorf("failed to process uploaded image: %w", err)
	}

	e.Faces = len(resp.Faces)
	if len(resp.Faces) > 0 {
		e.Encoding = resp.Faces[0].Embedding
	}
	s.entries[dest] = e
	if err := s.persistLocked(); err != nil {
		log.Printf("Failed to save encodings cache: %v", err)
	}

	result.Faces = e.Faces
	return result, nil
}

// Remove deletes the file and rebuilds the gallery from disk; a surgical
// in-memory removal would risk leaving the cache triple inconsistent.
// Returns the rebuild's loaded count.
func (s *Store) Remove(ctx context.Context, filename string) (int, error) {
	if !AllowedFilename(filename) {
		return 0, ErrNotAllowed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := filepath.Join(s.imagesDir, filename)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to stat %s: %w", filename, err)
	}
	if err := os.Remove(path); err != nil {
		return 0, fmt.Errorf("failed to delete %s: %w", filename, err)
	}

	loaded, err := s.rebuildLocked(ctx, nil)
	if err == embedder.ErrUnavailable {
		// Deletion still holds; keep the in-memory gallery consistent with
		// the directory without recomputing anything.
		delete(s.entries, filename)
		if perr := s.persistLocked(); perr != nil {
			log.Printf("Failed to save encodings cache: %v", perr)
		}
		return 0, err
	}
	return loaded, err
}

// ListKnown reports every allowed image currently in the directory with its
// face count. Files not covered by the cache metadata get a nil count,
// never a fabricated one.
func (s *Store) ListKnown() ([]ImageInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.listDisk()
	if err != nil {
		return nil, err
	}

	images := make([]ImageInfo, 0, len(files))
	for _, fname := range files {
		info := ImageInfo{Filename: fname}
		if e, ok := s.entries[fname]; ok {
			faces := e.Faces
			info.Faces = &faces
		}
		images = append(images, info)
	}
	return images, nil
}

// Snapshot returns a point-in-time copy of the gallery ordered by filename.
// Callers match against the snapshot without holding the lock, so a slow
// embedder call never blocks concurrent mutations.
func (s *Store) Snapshot() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	filenames := make([]string, 0, len(s.entries))
	for fname := range s.entries {
		filenames = append(filenames, fname)
	}
	sort.Strings(filenames)

	snapshot := make([]Entry, 0, len(filenames))
	for _, fname := range filenames {
		snapshot = append(snapshot, *s.entries[fname])
	}
	return snapshot
}

// Count returns the number of gallery entries that carry an encoding.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, e := range s.entries {
		if e.Encoding != nil {
			n++
		}
	}
	return n
}

// Entry returns a copy of the entry for the given filename.
func (s *Store) Entry(filename string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[filename]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// EncodeFile computes a fresh encoding for an existing gallery file,
// returning the first detected face. Used by pairwise compare.
func (s *Store) EncodeFile(ctx context.Context, filename string) ([]float32, error) {
	if !s.faces.Available() {
		return nil, embedder.ErrUnavailable
	}

	path, err := s.ImagePath(filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", filename, err)
	}

	resp, err := s.faces.DetectFaces(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("cannot encode %s: %w", filename, err)
	}
	if len(resp.Faces) == 0 {
		return nil, fmt.Errorf("%s: %w", filename, ErrNoFace)
	}
	return resp.Faces[0].Embedding, nil
}

// persistLocked rewrites the cache file from the current entries.
func (s *Store) persistLocked() error {
	return writeCacheFile(s.cachePath, encodeCache(s.entries))
}

// listDisk returns the allowed image filenames in the directory, sorted.
func (s *Store) listDisk() ([]string, error) {
	dirEntries, err := os.ReadDir(s.imagesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images directory: %w", err)
	}

	files := make([]string, 0, len(dirEntries))
	for _, d := range dirEntries {
		if d.IsDir() || !AllowedFilename(d.Name()) {
			continue
		}
		files = append(files, d.Name())
	}
	return files, nil
}

// resolveDestName appends a numeric suffix before the extension until the
// name is free in the image directory.
func (s *Store) resolveDestName(filename string) string {
	ext := filepath.Ext(filename)
	base := strings.TrimSuffix(filename, ext)

	dest := filename
	for i := 1; ; i++ {
		if _, err := os.Stat(filepath.Join(s.imagesDir, dest)); os.IsNotExist(err) {
			return dest
		}
		dest = fmt.Sprintf("%s_%d%s", base, i, ext)
	}
}

// findDuplicate returns the filename of an existing entry whose pHash or
// dHash lands within the duplicate threshold, excluding the file itself.
func (s *Store) findDuplicate(h *fingerprint.Hashes, exclude string) string {
	for fname, e := range s.entries {
		if fname == exclude {
			continue
		}
		if storedHashSimilar(h.PHash, e.PHash) || storedHashSimilar(h.DHash, e.DHash) {
			return fname
		}
	}
	return ""
}

// storedHashSimilar compares a fresh hash against its hex-encoded stored
// counterpart.
func storedHashSimilar(h fingerprint.Hash, stored string) bool {
	if stored == "" {
		return false
	}
	other, ok := fingerprint.Parse(stored)
	if !ok {
		return false
	}
	return fingerprint.Similar(h, other, fingerprint.DuplicateThreshold)
}
