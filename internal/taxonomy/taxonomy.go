// Package taxonomy holds the fixed catalog of question categories and types
// that replies from the classifier are checked against.
package taxonomy

import (
	"errors"
	"fmt"
	"strings"
)

// Category is the top-level split of the catalog.
type Category string

const (
	// Medical questions are always routed to a medical information channel.
	Medical Category = "Medical"

	// NonMedical questions may be answered with a static response.
	NonMedical Category = "Non-Medical"
)

// ParseCategory maps the wire form of a category to a Category.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case Medical, NonMedical:
		return Category(s), true
	default:
		return "", false
	}
}

// ErrNotFound is returned by Lookup for a type that is not in the catalog.
var ErrNotFound = errors.New("taxonomy: type not found")

// Entry is a single classifiable type.
type Entry struct {
	Category       Category `json:"category" yaml:"category"`
	Type           string   `json:"type" yaml:"type"`
	Description    string   `json:"description" yaml:"description"`
	Keywords       []string `json:"keywords" yaml:"keywords"`
	StaticResponse string   `json:"static_response,omitempty" yaml:"static_response,omitempty"`
}

// Taxonomy is an immutable catalog. It is safe for concurrent use.
type Taxonomy struct {
	entries []Entry
	byType  map[string]int
}

// New validates entries and builds a Taxonomy. Medical entries are ordered
// before non-medical ones; input order is kept inside each category.
func New(entries []Entry) (*Taxonomy, error) {
	if len(entries) == 0 {
		return nil, errors.New("taxonomy: no entries")
	}

	var errs []error
	ordered := make([]Entry, 0, len(entries))
	for _, cat := range []Category{Medical, NonMedical} {
		for _, e := range entries {
			if e.Category == cat {
				ordered = append(ordered, cloneEntry(e))
			}
		}
	}
	for i, e := range entries {
		if _, ok := ParseCategory(string(e.Category)); !ok {
			errs = append(errs, fmt.Errorf("entry %d (%q): invalid category %q", i, e.Type, e.Category))
		}
	}

	byType := make(map[string]int, len(ordered))
	for i, e := range ordered {
		if strings.TrimSpace(e.Type) == "" {
			errs = append(errs, fmt.Errorf("%s entry %d: empty type", e.Category, i))
			continue
		}
		if _, dup := byType[e.Type]; dup {
			errs = append(errs, fmt.Errorf("duplicate type %q", e.Type))
			continue
		}
		byType[e.Type] = i
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("taxonomy: %w", errors.Join(errs...))
	}
	return &Taxonomy{entries: ordered, byType: byType}, nil
}

// AllTypes returns a copy of every entry, medical entries first.
func (t *Taxonomy) AllTypes() []Entry {
	out := make([]Entry, len(t.entries))
	for i, e := range t.entries {
		out[i] = cloneEntry(e)
	}
	return out
}

// Lookup returns the entry for typ.
func (t *Taxonomy) Lookup(typ string) (Entry, error) {
	i, ok := t.byType[typ]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrNotFound, typ)
	}
	return cloneEntry(t.entries[i]), nil
}

// StaticResponseFor returns the canned answer for typ, falling back to the
// description. An unknown type yields an empty string.
func (t *Taxonomy) StaticResponseFor(typ string) string {
	i, ok := t.byType[typ]
	if !ok {
		return ""
	}
	e := t.entries[i]
	if e.StaticResponse != "" {
		return e.StaticResponse
	}
	return e.Description
}

// Len returns the number of entries.
func (t *Taxonomy) Len() int { return len(t.entries) }

func cloneEntry(e Entry) Entry {
	if e.Keywords != nil {
		e.Keywords = append([]string(nil), e.Keywords...)
	}
	return e
}
