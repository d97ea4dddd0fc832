package contentbase

import (
	"context"
)

// RollbackResult reports the outcome of Rollback
type RollbackResult struct {
	// Snapshot is the snapshot whose value was restored. A rollback
	// snapshot is resolved to the snapshot it restored.
	Snapshot *Snapshot
	// Changed is false when the document already held the restored value
	Changed bool
}

// Rollback restores the document a snapshot belongs to.
//
// Rolling back to a creation or modification writes the snapshot's value;
// rolling back to a deletion deletes the document. The write goes through
// coll's optimistic loop and is recorded as a rollback snapshot pointing at
// the restored snapshot. When the document already matches, nothing is
// written and nothing is recorded.
func Rollback[T any](ctx context.Context, svc *SnapshotService, coll *Collection[T], snapshotID string) (*RollbackResult, error) {
	snap, err := svc.Get(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	if snap.TargetType != coll.DocType() {
		return nil, WithContext(ErrNotFound, map[string]interface{}{
			"snapshot": snapshotID,
			"type":     coll.DocType(),
		})
	}

	target := snap
	if snap.Type == SnapshotRollback {
		if target, err = svc.Get(ctx, snap.RollbackID); err != nil {
			if IsNotFound(err) {
				return nil, svc.mismatch(snap, "rollback target "+snap.RollbackID+" does not exist")
			}
			return nil, err
		}
		if target.Type == SnapshotRollback {
			return nil, svc.mismatch(snap, "rollback target "+target.ID+" is itself a rollback")
		}
		if target.TargetType != snap.TargetType || target.TargetID != snap.TargetID {
			return nil, svc.mismatch(snap, "rollback target belongs to "+target.TargetType+"/"+target.TargetID)
		}
	}

	var restored *T
	if target.Type.HasBlob() {
		restored = new(T)
		if _, err := svc.GetValue(ctx, target, restored); err != nil {
			return nil, err
		}
	}

	ctx = withRollbackTarget(ctx, target)
	changed := false

	_, err = coll.Mutate(ctx, target.TargetID, func(e *Entry[T]) (bool, error) {
		if restored == nil {
			changed = e.Value != nil
			e.Value = nil
			return changed, nil
		}

		if e.Value != nil && DeepEqual(e.Value, restored) {
			changed = false
			return false, nil
		}
		value, err := DeepCopy(restored)
		if err != nil {
			return false, err
		}
		e.Value = value
		changed = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	// Collections without snapshots do not record the rollback themselves
	if changed && coll.Snapshots() != svc {
		if _, err := svc.OnRolledBack(ctx, target); err != nil {
			return nil, err
		}
	}

	return &RollbackResult{Snapshot: target, Changed: changed}, nil
}
