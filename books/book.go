// Package books indexes scraped books, folding duplicates found by
// different scrapers into one document.
package books

import (
	"time"

	"github.com/adrianmcphee/contentbase"
)

// DocType is the document type books are stored under
const DocType = "book"

// TagKind classifies a book tag
type TagKind string

const (
	TagArtist     TagKind = "artist"
	TagCircle     TagKind = "circle"
	TagParody     TagKind = "parody"
	TagCharacter  TagKind = "character"
	TagConvention TagKind = "convention"
	TagGeneral    TagKind = "tag"
)

// WeakIdentityKinds are the tag kinds that, together with a shared name,
// identify the same book across sources
var WeakIdentityKinds = []TagKind{TagArtist, TagCircle}

// IsWeakIdentity reports whether tags of kind k take part in identity
func (k TagKind) IsWeakIdentity() bool {
	for _, w := range WeakIdentityKinds {
		if k == w {
			return true
		}
	}
	return false
}

// Book is one work, possibly available from several sources
type Book struct {
	ID          string               `json:"id"`
	PrimaryName string               `json:"primaryName,omitempty"`
	EnglishName string               `json:"englishName,omitempty"`
	Tags        map[TagKind][]string `json:"tags,omitempty"`
	Category    string               `json:"category,omitempty"`
	Language    string               `json:"language,omitempty"`
	Rating      float64              `json:"rating,omitempty"`
	Contents    []BookContent        `json:"contents,omitempty"`
	CreatedTime time.Time            `json:"createdTime"`
	UpdatedTime time.Time            `json:"updatedTime"`
}

// BookContent is one copy of a book at a source
type BookContent struct {
	ID        string   `json:"id"`
	Source    string   `json:"source"`
	SourceID  string   `json:"sourceId"`
	PageCount int      `json:"pageCount,omitempty"`
	Language  string   `json:"language,omitempty"`
	Sources   []string `json:"sources,omitempty"` // alternate URLs of the same copy
}

// sameCopy reports whether a and b describe the same copy at a source
func (c BookContent) sameCopy(o BookContent) bool {
	if c.ID != "" && c.ID == o.ID {
		return true
	}
	return c.Source != "" && c.Source == o.Source && c.SourceID == o.SourceID
}

// names returns the normalized names of b
func (b *Book) names() []string {
	var names []string
	for _, n := range []string{b.PrimaryName, b.EnglishName} {
		if n = contentbase.NormalizeTerm(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}

// identityTags returns the normalized weak identity tags of b as "kind:value"
func (b *Book) identityTags() []string {
	var tags []string
	for _, kind := range WeakIdentityKinds {
		for _, v := range b.Tags[kind] {
			if v = contentbase.NormalizeTerm(v); v != "" {
				tags = append(tags, string(kind)+":"+v)
			}
		}
	}
	return tags
}

// Identifiable reports whether b has enough signal to be merged: at least
// one name and one weak identity tag
func (b *Book) Identifiable() bool {
	return len(b.names()) > 0 && len(b.identityTags()) > 0
}

// Terms are the search terms stored with a book
func Terms(b *Book) map[string][]string {
	terms := map[string][]string{
		"name":     b.names(),
		"identity": b.identityTags(),
		"category": {b.Category},
		"language": {b.Language},
	}
	for kind, values := range b.Tags {
		for _, v := range values {
			terms["tag"] = append(terms["tag"], string(kind)+":"+v)
		}
	}
	for _, c := range b.Contents {
		terms["source"] = append(terms["source"], c.Source+":"+c.SourceID)
	}
	return terms
}

// NewCollection returns the book collection over store
func NewCollection(store contentbase.DocumentStore) *contentbase.Collection[Book] {
	return contentbase.NewCollection[Book](store, DocType).WithTerms(Terms)
}
