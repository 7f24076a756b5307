package handlers

import (
	"net/http"
	"sort"

	"github.com/kozaktomas/face-gallery/internal/gallery"
	"github.com/kozaktomas/face-gallery/internal/identity"
)

// IdentitiesHandler groups gallery images into identities by filename.
type IdentitiesHandler struct {
	store *gallery.Store
}

// NewIdentitiesHandler creates a new identities handler.
func NewIdentitiesHandler(store *gallery.Store) *IdentitiesHandler {
	return &IdentitiesHandler{store: store}
}

// identityGroup is one person with all their gallery files.
type identityGroup struct {
	Name  string   `json:"name"`
	Files []string `json:"files"`
	Faces int      `json:"faces"`
}

// List groups the gallery by person name. Numeric filename suffixes fold
// into one identity, so alice.jpg and alice_1.jpg list together; the
// grouping key ignores case and diacritics.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	groups := make(map[string]*identityGroup)
	for _, e := range h.store.Snapshot() {
		person := identity.PersonName(e.Filename)
		key := identity.Normalize(person)

		g, ok := groups[key]
		if !ok {
			g = &identityGroup{Name: person}
			groups[key] = g
		}
		g.Files = append(g.Files, e.Filename)
		g.Faces += e.Faces
	}

	identities := make([]identityGroup, 0, len(groups))
	for _, g := range groups {
		sort.Strings(g.Files)
		identities = append(identities, *g)
	}
	sort.Slice(identities, func(i, j int) bool {
		return identities[i].Name < identities[j].Name
	})

	respondJSON(w, http.StatusOK, map[string]any{"identities": identities})
}
