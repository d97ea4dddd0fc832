package contentbase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// documentEnvelope is the JSON object stored per document
type documentEnvelope struct {
	ID    string              `json:"id"`
	Rev   string              `json:"rev"`
	Terms map[string][]string `json:"terms,omitempty"`
	Data  json.RawMessage     `json:"data"`
}

// BackendDocumentStore persists documents on a blob Backend at
// {type}/{id}.json. Versions are backend ETags. Each write stamps a fresh rev
// into the envelope, so even a content-hash ETag changes on every write.
//
// With a TermIndex, Search queries Redis; without one it scans every
// document of the type.
type BackendDocumentStore struct {
	backend Backend
	index   *TermIndex
	logger  Logger
}

// NewBackendDocumentStore creates a store over backend. index may be nil.
func NewBackendDocumentStore(backend Backend, index *TermIndex, logger Logger) *BackendDocumentStore {
	return &BackendDocumentStore{
		backend: backend,
		index:   index,
		logger:  loggerOrNoOp(logger),
	}
}

func documentKey(docType, id string) string {
	return docType + "/" + id + ".json"
}

func decodeEnvelope(raw []byte, docType string) (*documentEnvelope, error) {
	var env documentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{
			"type":  docType,
			"error": err.Error(),
		})
	}
	return &env, nil
}

func (s *BackendDocumentStore) Get(ctx context.Context, docType, id string) (*Document, error) {
	raw, etag, err := s.backend.GetWithETag(ctx, documentKey(docType, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, WithContext(ErrNotFound, map[string]interface{}{"type": docType, "id": id})
		}
		return nil, err
	}

	env, err := decodeEnvelope(raw, docType)
	if err != nil {
		return nil, err
	}
	return &Document{ID: id, Version: etag, Data: env.Data, Terms: env.Terms}, nil
}

func (s *BackendDocumentStore) Put(ctx context.Context, docType string, doc *Document, expectedVersion string, mode WriteMode) (string, error) {
	if doc == nil || doc.ID == "" {
		return "", WithContext(ErrInvalidData, map[string]interface{}{"type": docType, "reason": "document id is required"})
	}
	if !json.Valid(doc.Data) {
		return "", WithContext(ErrInvalidData, map[string]interface{}{"type": docType, "id": doc.ID, "reason": "data is not JSON"})
	}

	terms := NormalizeTerms(doc.Terms)
	raw, err := json.Marshal(documentEnvelope{
		ID:    doc.ID,
		Rev:   NewID(),
		Terms: terms,
		Data:  doc.Data,
	})
	if err != nil {
		return "", err
	}

	key := documentKey(docType, doc.ID)
	var version string
	switch mode {
	case WriteCreate:
		version, err = s.backend.PutIfAbsent(ctx, key, raw)
	case WriteIfMatch:
		if expectedVersion == "" {
			return "", WithContext(ErrInvalidData, map[string]interface{}{"type": docType, "id": doc.ID, "reason": "expected version is required"})
		}
		version, err = s.backend.PutIfMatch(ctx, key, raw, expectedVersion)
	case WriteAlways:
		version, err = s.backend.PutIfMatch(ctx, key, raw, "")
	default:
		return "", fmt.Errorf("unknown write mode %d", mode)
	}
	if err != nil {
		return "", err
	}

	if s.index != nil {
		if err := s.index.Update(ctx, docType, doc.ID, terms); err != nil {
			// The document is written; a stale index only costs search recall
			s.logger.Warn("failed to update term index", "type", docType, "id", doc.ID, "error", err)
		}
	}
	return version, nil
}

func (s *BackendDocumentStore) Delete(ctx context.Context, docType, id, expectedVersion string) error {
	if err := s.backend.DeleteIfMatch(ctx, documentKey(docType, id), expectedVersion); err != nil {
		if IsNotFound(err) {
			return WithContext(ErrNotFound, map[string]interface{}{"type": docType, "id": id})
		}
		return err
	}

	if s.index != nil {
		if err := s.index.Remove(ctx, docType, id); err != nil {
			s.logger.Warn("failed to remove from term index", "type", docType, "id", id, "error", err)
		}
	}
	return nil
}

func (s *BackendDocumentStore) Search(ctx context.Context, docType string, q Query) ([]string, error) {
	if s.index != nil {
		return s.index.Search(ctx, docType, q)
	}

	var ids []string
	err := s.Scan(ctx, docType, func(doc *Document) error {
		if q.Match(doc.Terms) {
			ids = append(ids, doc.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applyLimit(ids, q.Limit), nil
}

// Scan calls fn for every stored document of docType, in backend listing
// order. Documents deleted during the scan are skipped, unreadable ones are
// logged and skipped. An error from fn stops the scan and is returned.
func (s *BackendDocumentStore) Scan(ctx context.Context, docType string, fn func(*Document) error) error {
	return s.backend.ListPaginated(ctx, docType+"/", func(keys []string) error {
		for _, key := range keys {
			if !strings.HasSuffix(key, ".json") {
				continue
			}
			raw, etag, err := s.backend.GetWithETag(ctx, key)
			if IsNotFound(err) {
				continue
			}
			if err != nil {
				return err
			}
			env, err := decodeEnvelope(raw, docType)
			if err != nil {
				s.logger.Warn("skipping unreadable document", "key", key, "error", err)
				continue
			}
			if err := fn(&Document{ID: env.ID, Version: etag, Data: env.Data, Terms: env.Terms}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reindex rebuilds the term index for docType from the stored documents
func (s *BackendDocumentStore) Reindex(ctx context.Context, docType string) (int, error) {
	if s.index == nil {
		return 0, fmt.Errorf("no term index configured")
	}

	count := 0
	err := s.Scan(ctx, docType, func(doc *Document) error {
		if err := s.index.Update(ctx, docType, doc.ID, doc.Terms); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}
