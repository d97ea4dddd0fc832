package contentbase

import (
	"context"
	"time"
)

// SnapshotType is the lifecycle event a snapshot records
type SnapshotType string

const (
	SnapshotCreation     SnapshotType = "creation"
	SnapshotModification SnapshotType = "modification"
	SnapshotDeletion     SnapshotType = "deletion"
	SnapshotRollback     SnapshotType = "rollback"
)

// HasBlob reports whether snapshots of this type carry a value blob
func (t SnapshotType) HasBlob() bool {
	return t == SnapshotCreation || t == SnapshotModification
}

// SnapshotSource says who caused the event
type SnapshotSource string

const (
	SourceSystem  SnapshotSource = "system"
	SourceUser    SnapshotSource = "user"
	SourceScraper SnapshotSource = "scraper"
)

// Snapshot is the immutable record of one document lifecycle event.
// Creation and modification snapshots have a blob at snapshots/{ID} holding
// the value after the event; deletions have none; rollbacks point at the
// snapshot they restored through RollbackID.
type Snapshot struct {
	ID          string         `json:"id"`
	Time        time.Time      `json:"time"`
	Source      SnapshotSource `json:"source"`
	Type        SnapshotType   `json:"type"`
	TargetType  string         `json:"targetType"`
	TargetID    string         `json:"targetId"`
	CommitterID string         `json:"committerId,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	RollbackID  string         `json:"rollbackId,omitempty"`
}

// Validate rejects snapshots describing impossible states
func (s *Snapshot) Validate() error {
	invalid := func(reason string) error {
		return WithContext(ErrInvalidData, map[string]interface{}{
			"snapshot": s.ID,
			"reason":   reason,
		})
	}

	if s.ID == "" {
		return invalid("id is required")
	}
	if s.TargetType == "" || s.TargetID == "" {
		return invalid("target is required")
	}
	switch s.Type {
	case SnapshotCreation, SnapshotModification, SnapshotDeletion:
		if s.RollbackID != "" {
			return invalid("only rollback snapshots reference another snapshot")
		}
	case SnapshotRollback:
		if s.RollbackID == "" {
			return invalid("rollback snapshot must reference a snapshot")
		}
		if s.RollbackID == s.ID {
			return invalid("rollback snapshot references itself")
		}
	default:
		return invalid("unknown snapshot type " + string(s.Type))
	}
	return nil
}

// terms are the searchable fields of a snapshot record
func (s *Snapshot) terms() map[string][]string {
	terms := map[string][]string{
		"targetType": {s.TargetType},
		"target":     {s.TargetType + "/" + s.TargetID},
		"type":       {string(s.Type)},
		"source":     {string(s.Source)},
	}
	if s.CommitterID != "" {
		terms["committer"] = []string{s.CommitterID}
	}
	return terms
}

// SnapshotEvent carries who made a change and why. Attach it to the context
// of a write with WithSnapshotEvent; the recorded snapshots copy it.
type SnapshotEvent struct {
	Source      SnapshotSource
	CommitterID string
	Reason      string
}

type snapshotEventKey struct{}

// WithSnapshotEvent returns a context whose writes are attributed to event
func WithSnapshotEvent(ctx context.Context, event SnapshotEvent) context.Context {
	return context.WithValue(ctx, snapshotEventKey{}, event)
}

// SnapshotEventFrom returns the event attached to ctx, or a system event
func SnapshotEventFrom(ctx context.Context) SnapshotEvent {
	if event, ok := ctx.Value(snapshotEventKey{}).(SnapshotEvent); ok {
		if event.Source == "" {
			event.Source = SourceSystem
		}
		return event
	}
	return SnapshotEvent{Source: SourceSystem}
}

type rollbackTargetKey struct{}

// withRollbackTarget marks writes on ctx as restoring target, so collections
// record a rollback snapshot instead of a modification
func withRollbackTarget(ctx context.Context, target *Snapshot) context.Context {
	return context.WithValue(ctx, rollbackTargetKey{}, target)
}

func rollbackTargetFrom(ctx context.Context) *Snapshot {
	target, _ := ctx.Value(rollbackTargetKey{}).(*Snapshot)
	return target
}

// SnapshotQuery filters snapshot search. Empty fields match everything.
type SnapshotQuery struct {
	TargetType  string
	TargetID    string // requires TargetType
	Type        SnapshotType
	Source      SnapshotSource
	CommitterID string
	Limit       int
}

func (q SnapshotQuery) query() Query {
	var query Query
	if q.TargetType != "" && q.TargetID != "" {
		query = query.Where("target", q.TargetType+"/"+q.TargetID)
	} else if q.TargetType != "" {
		query = query.Where("targetType", q.TargetType)
	}
	if q.Type != "" {
		query = query.Where("type", string(q.Type))
	}
	if q.Source != "" {
		query = query.Where("source", string(q.Source))
	}
	if q.CommitterID != "" {
		query = query.Where("committer", q.CommitterID)
	}
	return query
}
