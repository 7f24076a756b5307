// Package identity derives display identities from gallery filenames.
// A file's stem is its identity; collision suffixes appended on upload
// ("alice_1.jpg") fold back into the same person for grouping.
package identity

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NameFromFilename returns the display name for a gallery file, the
// filename stem ("alice.jpg" -> "alice", "alice_1.jpg" -> "alice_1").
func NameFromFilename(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// PersonName returns the grouping identity for a gallery file: the stem
// with any trailing numeric collision suffix removed.
func PersonName(filename string) string {
	name := NameFromFilename(filename)
	if i := strings.LastIndex(name, "_"); i > 0 {
		if suffix := name[i+1:]; suffix != "" && isDigits(suffix) {
			return name[:i]
		}
	}
	return name
}

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Normalize normalizes a person name for comparison (lowercase, no
// diacritics, spaces for dashes).
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return name
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
