package contentbase

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SnapshotDocType is the document type snapshot records are stored under
const SnapshotDocType = "snapshot"

// snapshotBlob is the stored value of a creation or modification snapshot.
// It repeats the target identity so a blob can be checked against the
// snapshot that references it.
type snapshotBlob struct {
	TargetType string          `json:"targetType"`
	TargetID   string          `json:"targetId"`
	Value      json.RawMessage `json:"value"`
}

// SnapshotService records document history and resolves snapshot values.
// Snapshot records live in a DocumentStore; values are zstd-compressed JSON
// blobs written once to snapshots/{id} on a Backend.
type SnapshotService struct {
	docs        DocumentStore
	blobs       Backend
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	retroactive bool
	now         func() time.Time
	logger      Logger
	metrics     Metrics
}

// NewSnapshotService creates a service. Retroactive snapshots are enabled.
func NewSnapshotService(docs DocumentStore, blobs Backend) (*SnapshotService, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	return &SnapshotService{
		docs:        docs,
		blobs:       blobs,
		encoder:     encoder,
		decoder:     decoder,
		retroactive: true,
		now:         time.Now,
		logger:      &NoOpLogger{},
		metrics:     &NoOpMetrics{},
	}, nil
}

// WithRetroactiveSnapshots controls whether the first modification of a
// document without history first records its previous value
func (s *SnapshotService) WithRetroactiveSnapshots(enabled bool) *SnapshotService {
	s.retroactive = enabled
	return s
}

// WithLogger sets the logger
func (s *SnapshotService) WithLogger(logger Logger) *SnapshotService {
	s.logger = loggerOrNoOp(logger)
	return s
}

// WithMetrics sets the metrics collector
func (s *SnapshotService) WithMetrics(metrics Metrics) *SnapshotService {
	s.metrics = metricsOrNoOp(metrics)
	return s
}

func blobKey(snapshotID string) string {
	return "snapshots/" + snapshotID
}

func (s *SnapshotService) newSnapshot(ctx context.Context, typ SnapshotType, targetType, targetID string) *Snapshot {
	event := SnapshotEventFrom(ctx)
	return &Snapshot{
		ID:          NewID(),
		Time:        s.now().UTC(),
		Source:      event.Source,
		Type:        typ,
		TargetType:  targetType,
		TargetID:    targetID,
		CommitterID: event.CommitterID,
		Reason:      event.Reason,
	}
}

// record writes the blob (if any) and then the snapshot record, so a stored
// record never points at a missing blob
func (s *SnapshotService) record(ctx context.Context, snap *Snapshot, value any) (*Snapshot, error) {
	if err := snap.Validate(); err != nil {
		return nil, err
	}

	if snap.Type.HasBlob() {
		if err := s.writeBlob(ctx, snap, value); err != nil {
			return nil, err
		}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	doc := &Document{ID: snap.ID, Data: data, Terms: snap.terms()}
	if _, err := s.docs.Put(ctx, SnapshotDocType, doc, "", WriteCreate); err != nil {
		return nil, fmt.Errorf("failed to store snapshot %s: %w", snap.ID, err)
	}

	s.metrics.Increment(MetricSnapshotCreated, "type", string(snap.Type))
	s.logger.Debug("snapshot recorded",
		"id", snap.ID,
		"type", snap.Type,
		"target", snap.TargetType+"/"+snap.TargetID,
	)
	return snap, nil
}

func (s *SnapshotService) writeBlob(ctx context.Context, snap *Snapshot, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot value: %w", err)
	}
	blob, err := json.Marshal(snapshotBlob{
		TargetType: snap.TargetType,
		TargetID:   snap.TargetID,
		Value:      raw,
	})
	if err != nil {
		return err
	}

	compressed := s.encoder.EncodeAll(blob, nil)
	if _, err := s.blobs.PutIfAbsent(ctx, blobKey(snap.ID), compressed); err != nil {
		return fmt.Errorf("failed to write snapshot blob %s: %w", snap.ID, err)
	}
	s.metrics.Histogram(MetricSnapshotBlobBytes, float64(len(compressed)))
	return nil
}

// OnCreated records the initial value of a new document
func (s *SnapshotService) OnCreated(ctx context.Context, targetType, targetID string, value any) (*Snapshot, error) {
	return s.record(ctx, s.newSnapshot(ctx, SnapshotCreation, targetType, targetID), value)
}

// OnModified records the value after a modification. With retroactive
// snapshots enabled and no history for the document yet, the value before
// the change is recorded first.
func (s *SnapshotService) OnModified(ctx context.Context, targetType, targetID string, before, after any) (*Snapshot, error) {
	if s.retroactive && before != nil {
		history, err := s.Search(ctx, SnapshotQuery{TargetType: targetType, TargetID: targetID, Limit: 1})
		if err != nil {
			return nil, err
		}
		if len(history) == 0 {
			origin := s.newSnapshot(ctx, SnapshotModification, targetType, targetID)
			origin.Source = SourceSystem
			origin.CommitterID = ""
			origin.Reason = "retroactive"
			if _, err := s.record(ctx, origin, before); err != nil {
				return nil, err
			}
		}
	}
	return s.record(ctx, s.newSnapshot(ctx, SnapshotModification, targetType, targetID), after)
}

// OnDeleted records a deletion. Deletions carry no value.
func (s *SnapshotService) OnDeleted(ctx context.Context, targetType, targetID string) (*Snapshot, error) {
	return s.record(ctx, s.newSnapshot(ctx, SnapshotDeletion, targetType, targetID), nil)
}

// OnRolledBack records that the document was restored to target
func (s *SnapshotService) OnRolledBack(ctx context.Context, target *Snapshot) (*Snapshot, error) {
	if target.Type == SnapshotRollback {
		return nil, s.mismatch(target, "cannot roll back to a rollback snapshot")
	}
	snap := s.newSnapshot(ctx, SnapshotRollback, target.TargetType, target.TargetID)
	snap.RollbackID = target.ID

	recorded, err := s.record(ctx, snap, nil)
	if err == nil {
		s.metrics.Increment(MetricSnapshotRollback)
	}
	return recorded, err
}

// Get returns a snapshot by ID
func (s *SnapshotService) Get(ctx context.Context, id string) (*Snapshot, error) {
	doc, err := s.docs.Get(ctx, SnapshotDocType, id)
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(doc.Data, &snap); err != nil {
		return nil, WithContext(ErrInvalidData, map[string]interface{}{"snapshot": id, "error": err.Error()})
	}
	return &snap, nil
}

// History returns the snapshots of one document, newest first
func (s *SnapshotService) History(ctx context.Context, targetType, targetID string) ([]*Snapshot, error) {
	return s.Search(ctx, SnapshotQuery{TargetType: targetType, TargetID: targetID})
}

// Search returns matching snapshots, newest first
func (s *SnapshotService) Search(ctx context.Context, q SnapshotQuery) ([]*Snapshot, error) {
	ids, err := s.docs.Search(ctx, SnapshotDocType, q.query())
	if err != nil {
		return nil, err
	}

	snaps := make([]*Snapshot, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Get(ctx, id)
		if IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}

	// IDs are UUIDv7, so they break ties between equal timestamps in order
	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].Time.Equal(snaps[j].Time) {
			return snaps[i].Time.After(snaps[j].Time)
		}
		return snaps[i].ID > snaps[j].ID
	})
	if q.Limit > 0 && len(snaps) > q.Limit {
		snaps = snaps[:q.Limit]
	}
	return snaps, nil
}

// GetValue decodes the document value a snapshot stands for into dest.
// It reports false for deletions. A blob that is missing or belongs to
// another document, or a rollback pointing at a rollback, is ErrConsistency.
func (s *SnapshotService) GetValue(ctx context.Context, snap *Snapshot, dest any) (bool, error) {
	switch snap.Type {
	case SnapshotCreation, SnapshotModification:
		return true, s.readBlob(ctx, snap, dest)

	case SnapshotDeletion:
		return false, nil

	case SnapshotRollback:
		target, err := s.Get(ctx, snap.RollbackID)
		if IsNotFound(err) {
			return false, s.mismatch(snap, "rollback target "+snap.RollbackID+" does not exist")
		}
		if err != nil {
			return false, err
		}
		if target.Type == SnapshotRollback {
			return false, s.mismatch(snap, "rollback target "+target.ID+" is itself a rollback")
		}
		if target.TargetType != snap.TargetType || target.TargetID != snap.TargetID {
			return false, s.mismatch(snap, "rollback target belongs to "+target.TargetType+"/"+target.TargetID)
		}
		return s.GetValue(ctx, target, dest)

	default:
		return false, s.mismatch(snap, "unknown snapshot type "+string(snap.Type))
	}
}

func (s *SnapshotService) readBlob(ctx context.Context, snap *Snapshot, dest any) error {
	compressed, err := s.blobs.Get(ctx, blobKey(snap.ID))
	if IsNotFound(err) {
		return s.mismatch(snap, "blob is missing")
	}
	if err != nil {
		return err
	}

	raw, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return s.mismatch(snap, "blob is not valid zstd: "+err.Error())
	}

	var blob snapshotBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return s.mismatch(snap, "blob is not valid JSON: "+err.Error())
	}
	if blob.TargetType != snap.TargetType || blob.TargetID != snap.TargetID {
		return s.mismatch(snap, "blob belongs to "+blob.TargetType+"/"+blob.TargetID)
	}

	if err := json.Unmarshal(blob.Value, dest); err != nil {
		return s.mismatch(snap, "blob value does not decode: "+err.Error())
	}
	return nil
}

func (s *SnapshotService) mismatch(snap *Snapshot, reason string) error {
	s.metrics.Increment(MetricSnapshotMismatch)
	s.logger.Error("snapshot consistency mismatch",
		"snapshot", snap.ID,
		"target", snap.TargetType+"/"+snap.TargetID,
		"reason", reason,
	)
	return WithContext(ErrConsistency, map[string]interface{}{
		"snapshot": snap.ID,
		"type":     string(snap.Type),
		"reason":   reason,
	})
}

// Close releases the zstd decoder
func (s *SnapshotService) Close() error {
	s.decoder.Close()
	return s.encoder.Close()
}
