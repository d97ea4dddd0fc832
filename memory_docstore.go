package contentbase

import (
	"context"
	"strconv"
	"sync"
)

// MemoryDocumentStore is an in-process DocumentStore. Versions come from a
// store-wide counter, so a version is never reused even across delete and
// re-create.
type MemoryDocumentStore struct {
	mu      sync.RWMutex
	docs    map[string]map[string]*Document // docType -> id -> doc
	version uint64
}

// NewMemoryDocumentStore creates an empty store
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{docs: make(map[string]map[string]*Document)}
}

func cloneDocument(d *Document) *Document {
	c := &Document{
		ID:      d.ID,
		Version: d.Version,
		Data:    append([]byte(nil), d.Data...),
		Terms:   make(map[string][]string, len(d.Terms)),
	}
	for k, v := range d.Terms {
		c.Terms[k] = append([]string(nil), v...)
	}
	return c
}

func (s *MemoryDocumentStore) Get(ctx context.Context, docType, id string) (*Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[docType][id]
	if !ok {
		return nil, WithContext(ErrNotFound, map[string]interface{}{"type": docType, "id": id})
	}
	return cloneDocument(doc), nil
}

func (s *MemoryDocumentStore) Put(ctx context.Context, docType string, doc *Document, expectedVersion string, mode WriteMode) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if doc == nil || doc.ID == "" {
		return "", WithContext(ErrInvalidData, map[string]interface{}{"type": docType, "reason": "document id is required"})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byID := s.docs[docType]
	if byID == nil {
		byID = make(map[string]*Document)
		s.docs[docType] = byID
	}
	current, exists := byID[doc.ID]

	switch mode {
	case WriteCreate:
		if exists {
			return "", WithContext(ErrAlreadyExists, map[string]interface{}{"type": docType, "id": doc.ID})
		}
	case WriteIfMatch:
		if !exists {
			return "", WithContext(ErrNotFound, map[string]interface{}{"type": docType, "id": doc.ID})
		}
		if current.Version != expectedVersion {
			return "", WithContext(ErrConflict, map[string]interface{}{
				"type":     docType,
				"id":       doc.ID,
				"expected": expectedVersion,
				"actual":   current.Version,
			})
		}
	}

	s.version++
	stored := cloneDocument(doc)
	stored.Version = strconv.FormatUint(s.version, 10)
	stored.Terms = NormalizeTerms(doc.Terms)
	byID[doc.ID] = stored
	return stored.Version, nil
}

func (s *MemoryDocumentStore) Delete(ctx context.Context, docType, id, expectedVersion string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.docs[docType][id]
	if !ok {
		return WithContext(ErrNotFound, map[string]interface{}{"type": docType, "id": id})
	}
	if expectedVersion != "" && current.Version != expectedVersion {
		return WithContext(ErrConflict, map[string]interface{}{
			"type":     docType,
			"id":       id,
			"expected": expectedVersion,
			"actual":   current.Version,
		})
	}
	delete(s.docs[docType], id)
	return nil
}

func (s *MemoryDocumentStore) Search(ctx context.Context, docType string, q Query) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, doc := range s.docs[docType] {
		if q.Match(doc.Terms) {
			ids = append(ids, id)
		}
	}
	return applyLimit(ids, q.Limit), nil
}
