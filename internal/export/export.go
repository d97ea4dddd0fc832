// Package export dumps stored documents, optionally with their snapshot
// history, as newline-delimited JSON: one document per line.
package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/adrianmcphee/contentbase"
)

// Scanner enumerates the documents of one type.
// BackendDocumentStore implements it.
type Scanner interface {
	Scan(ctx context.Context, docType string, fn func(*contentbase.Document) error) error
}

// Record is one exported line
type Record struct {
	Type    string                  `json:"type"`
	ID      string                  `json:"id"`
	Version string                  `json:"version"`
	Terms   map[string][]string     `json:"terms,omitempty"`
	Data    json.RawMessage         `json:"data"`
	History []*contentbase.Snapshot `json:"history,omitempty"`
}

// Options controls what is exported
type Options struct {
	// History, when set, attaches each document's snapshots oldest first
	History *contentbase.SnapshotService
	// Sorted buffers the documents and writes them ordered by ID
	Sorted bool
}

// Documents writes every document of docType to w and returns how many
// were written
func Documents(ctx context.Context, w io.Writer, src Scanner, docType string, opts Options) (int, error) {
	enc := json.NewEncoder(w)
	var buffered []*Record

	count := 0
	emit := func(rec *Record) error {
		if opts.Sorted {
			buffered = append(buffered, rec)
			return nil
		}
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", docType, rec.ID, err)
		}
		count++
		return nil
	}

	err := src.Scan(ctx, docType, func(doc *contentbase.Document) error {
		rec := &Record{
			Type:    docType,
			ID:      doc.ID,
			Version: doc.Version,
			Terms:   doc.Terms,
			Data:    doc.Data,
		}
		if opts.History != nil {
			history, err := opts.History.History(ctx, docType, doc.ID)
			if err != nil {
				return fmt.Errorf("failed to load history of %s/%s: %w", docType, doc.ID, err)
			}
			rec.History = history
		}
		return emit(rec)
	})
	if err != nil {
		return count, err
	}

	if opts.Sorted {
		sort.Slice(buffered, func(i, j int) bool { return buffered[i].ID < buffered[j].ID })
		for _, rec := range buffered {
			if err := enc.Encode(rec); err != nil {
				return count, fmt.Errorf("failed to write %s/%s: %w", docType, rec.ID, err)
			}
			count++
		}
	}
	return count, nil
}

// Read decodes records written by Documents, calling fn for each
func Read(r io.Reader, fn func(*Record) error) error {
	dec := json.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err == io.EOF {
			return nil
		} else if err != nil {
			return contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{"error": err.Error()})
		}
		if err := fn(&rec); err != nil {
			return err
		}
	}
}

// Import writes the records in r into store. Existing documents are kept
// unless overwrite is set. It returns how many documents were written.
// History is not imported: snapshots describe the store they came from.
func Import(ctx context.Context, r io.Reader, store contentbase.DocumentStore, overwrite bool) (int, error) {
	mode := contentbase.WriteCreate
	if overwrite {
		mode = contentbase.WriteAlways
	}

	count := 0
	err := Read(r, func(rec *Record) error {
		if rec.Type == "" || rec.ID == "" {
			return contentbase.WithContext(contentbase.ErrInvalidData, map[string]interface{}{"reason": "record needs a type and an id"})
		}
		doc := &contentbase.Document{ID: rec.ID, Data: rec.Data, Terms: rec.Terms}
		_, err := store.Put(ctx, rec.Type, doc, "", mode)
		if contentbase.IsConflict(err) && !overwrite {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to import %s/%s: %w", rec.Type, rec.ID, err)
		}
		count++
		return nil
	})
	return count, err
}
