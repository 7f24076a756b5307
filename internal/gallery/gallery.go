// Package gallery owns the durable set of reference face images and the
// derived encodings cache. The image directory is the source of truth; the
// cache file is an optimization that can always be thrown away and rebuilt.
package gallery

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/kozaktomas/face-gallery/internal/embedder"
)

var (
	// ErrNotFound means the referenced filename does not exist in the gallery.
	ErrNotFound = errors.New("image not found")

	// ErrNotAllowed means the filename has a disallowed extension or an
	// unsafe path component.
	ErrNotAllowed = errors.New("invalid file type")

	// ErrNoFace means an operation required a face and the image had none.
	ErrNoFace = errors.New("no face found in image")
)

// allowedExtensions are the image types the gallery accepts, lowercase.
var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// AllowedFilename reports whether the name is a plain file name with an
// allowed image extension. Path separators and parent references are
// rejected so a request filename can never escape the image directory.
func AllowedFilename(name string) bool {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return false
	}
	return allowedExtensions[strings.ToLower(filepath.Ext(name))]
}

// FaceSource is the part of the embedding client the gallery needs.
type FaceSource interface {
	Available() bool
	DetectFaces(ctx context.Context, imageData []byte) (*embedder.FaceResponse, error)
}

// Entry is one gallery image and what is known about it.
type Entry struct {
	Filename string    // unique key, stable across the image's lifetime
	Name     string    // filename stem, the display identity
	Encoding []float32 // first detected face, nil when no face was found
	Faces    int       // true face count at last (re)build
	PHash    string    // DCT perceptual hash as hex, empty when not computed
	DHash    string    // difference hash as hex, empty when not computed
}

// ImageInfo is one row of the known-images listing. Faces is nil when the
// file is on disk but has not been scanned yet.
type ImageInfo struct {
	Filename string `json:"filename"`
	Faces    *int   `json:"faces"`
}

// UpsertResult describes a completed upload.
type UpsertResult struct {
	Filename    string // resolved, collision-free name
	Faces       int    // detected face count
	DuplicateOf string // existing gallery file with a near-identical hash, if any
}
