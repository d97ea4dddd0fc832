package contentbase

import (
	"context"
	"sort"
	"strings"
)

// Document is one stored record. Data is opaque JSON; Terms are the
// searchable field values extracted from it.
type Document struct {
	ID      string
	Version string
	Data    []byte
	Terms   map[string][]string
}

// WriteMode selects the precondition of DocumentStore.Put
type WriteMode int

const (
	// WriteCreate fails with ErrAlreadyExists when the document exists
	WriteCreate WriteMode = iota
	// WriteIfMatch fails with ErrConflict when the stored version differs
	// from the expected one, or ErrNotFound when the document is gone
	WriteIfMatch
	// WriteAlways is an unconditional upsert
	WriteAlways
)

func (m WriteMode) String() string {
	switch m {
	case WriteCreate:
		return "create"
	case WriteIfMatch:
		return "if-match"
	case WriteAlways:
		return "always"
	default:
		return "unknown"
	}
}

// DocumentStore is a versioned key/document store with conditional writes
// and term search. Every successful write returns a new version that is never
// reused for the same document.
type DocumentStore interface {
	Get(ctx context.Context, docType, id string) (*Document, error)
	Put(ctx context.Context, docType string, doc *Document, expectedVersion string, mode WriteMode) (string, error)
	// Delete removes the document. An empty expectedVersion deletes unconditionally.
	Delete(ctx context.Context, docType, id, expectedVersion string) error
	// Search returns candidate IDs. Results may be stale; callers re-check
	// the terms of what they load.
	Search(ctx context.Context, docType string, q Query) ([]string, error)
}

// TermGroup matches documents having any of Values in Field
type TermGroup struct {
	Field  string
	Values []string
}

// Query is an AND of term groups. An empty query matches every document.
type Query struct {
	Groups []TermGroup
	Limit  int // 0 = no limit
}

// Where appends a group and returns the query for chaining
func (q Query) Where(field string, values ...string) Query {
	q.Groups = append(append([]TermGroup(nil), q.Groups...), TermGroup{Field: field, Values: values})
	return q
}

// NormalizeTerm is the canonical form in which terms are stored and compared
func NormalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeTerms normalises and de-duplicates every value, dropping empty
// ones and fields left without values
func NormalizeTerms(terms map[string][]string) map[string][]string {
	out := make(map[string][]string, len(terms))
	for field, values := range terms {
		seen := make(map[string]bool, len(values))
		var norm []string
		for _, v := range values {
			v = NormalizeTerm(v)
			if v == "" || seen[v] {
				continue
			}
			seen[v] = true
			norm = append(norm, v)
		}
		if len(norm) > 0 {
			sort.Strings(norm)
			out[field] = norm
		}
	}
	return out
}

// Match reports whether terms satisfy every group of the query
func (q Query) Match(terms map[string][]string) bool {
	for _, group := range q.Groups {
		if !groupMatches(group, terms[group.Field]) {
			return false
		}
	}
	return true
}

func groupMatches(group TermGroup, have []string) bool {
	for _, want := range group.Values {
		want = NormalizeTerm(want)
		for _, h := range have {
			if NormalizeTerm(h) == want {
				return true
			}
		}
	}
	return false
}

// applyLimit sorts ids for a stable order and truncates to limit
func applyLimit(ids []string, limit int) []string {
	sort.Strings(ids)
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}
