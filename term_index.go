package contentbase

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// TermIndex keeps document terms in Redis sets.
//
// Keys:
//
//	{prefix}:idx:{type}:{field}:{value}  set of ids having that term
//	{prefix}:ids:{type}                  set of all indexed ids
//	{prefix}:terms:{type}:{id}           JSON of the terms last indexed for id
//
// The index is updated after the document write, so it can briefly lag the
// store. Search results are candidates only.
type TermIndex struct {
	redis     *redis.Client
	keyPrefix string
}

// NewTermIndex creates an index under keyPrefix
func NewTermIndex(client *redis.Client, keyPrefix string) *TermIndex {
	return &TermIndex{redis: client, keyPrefix: keyPrefix}
}

func (ti *TermIndex) setKey(docType, field, value string) string {
	return fmt.Sprintf("%s:idx:%s:%s:%s", ti.keyPrefix, docType, field, value)
}

func (ti *TermIndex) idsKey(docType string) string {
	return fmt.Sprintf("%s:ids:%s", ti.keyPrefix, docType)
}

func (ti *TermIndex) termsKey(docType, id string) string {
	return fmt.Sprintf("%s:terms:%s:%s", ti.keyPrefix, docType, id)
}

func (ti *TermIndex) previousTerms(ctx context.Context, docType, id string) (map[string][]string, error) {
	raw, err := ti.redis.Get(ctx, ti.termsKey(docType, id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read indexed terms: %w", err)
	}

	var terms map[string][]string
	if err := json.Unmarshal(raw, &terms); err != nil {
		return nil, nil
	}
	return terms, nil
}

// Update replaces the indexed terms of id
func (ti *TermIndex) Update(ctx context.Context, docType, id string, terms map[string][]string) error {
	old, err := ti.previousTerms(ctx, docType, id)
	if err != nil {
		return err
	}
	terms = NormalizeTerms(terms)
	encoded, err := json.Marshal(terms)
	if err != nil {
		return err
	}

	_, err = ti.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, values := range old {
			for _, v := range values {
				pipe.SRem(ctx, ti.setKey(docType, field, v), id)
			}
		}
		for field, values := range terms {
			for _, v := range values {
				pipe.SAdd(ctx, ti.setKey(docType, field, v), id)
			}
		}
		pipe.SAdd(ctx, ti.idsKey(docType), id)
		pipe.Set(ctx, ti.termsKey(docType, id), encoded, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update term index for %s/%s: %w", docType, id, err)
	}
	return nil
}

// Remove drops id from the index
func (ti *TermIndex) Remove(ctx context.Context, docType, id string) error {
	old, err := ti.previousTerms(ctx, docType, id)
	if err != nil {
		return err
	}

	_, err = ti.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for field, values := range old {
			for _, v := range values {
				pipe.SRem(ctx, ti.setKey(docType, field, v), id)
			}
		}
		pipe.SRem(ctx, ti.idsKey(docType), id)
		pipe.Del(ctx, ti.termsKey(docType, id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove %s/%s from term index: %w", docType, id, err)
	}
	return nil
}

// Search unions the sets of each group and intersects the groups
func (ti *TermIndex) Search(ctx context.Context, docType string, q Query) ([]string, error) {
	if len(q.Groups) == 0 {
		ids, err := ti.redis.SMembers(ctx, ti.idsKey(docType)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list indexed ids: %w", err)
		}
		return applyLimit(ids, q.Limit), nil
	}

	var result map[string]bool
	for _, group := range q.Groups {
		if len(group.Values) == 0 {
			return []string{}, nil
		}

		keys := make([]string, len(group.Values))
		for i, v := range group.Values {
			keys[i] = ti.setKey(docType, group.Field, NormalizeTerm(v))
		}
		members, err := ti.redis.SUnion(ctx, keys...).Result()
		if err != nil && err != redis.Nil {
			return nil, fmt.Errorf("failed to query term sets: %w", err)
		}

		next := make(map[string]bool, len(members))
		for _, m := range members {
			if result == nil || result[m] {
				next[m] = true
			}
		}
		result = next
		if len(result) == 0 {
			return []string{}, nil
		}
	}

	ids := make([]string, 0, len(result))
	for id := range result {
		ids = append(ids, id)
	}
	return applyLimit(ids, q.Limit), nil
}
