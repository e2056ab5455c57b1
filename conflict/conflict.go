// Package conflict implements the Conflict Detector/Resolver (C2): diffing
// incoming entities/relationships against current graph state, classifying
// disagreements, and dispatching auto-resolution strategies, per spec §4.3.
package conflict

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

// Detector compares incoming writes against current graph state.
type Detector struct {
	store syncio.GraphStore
}

// NewDetector returns a Detector backed by store.
func NewDetector(store syncio.GraphStore) *Detector {
	return &Detector{store: store}
}

// DetectEntities implements detectConflicts for the entity half of a batch
// (spec §4.3): compares each incoming entity against its current graph
// counterpart, if any, producing one Conflict per disagreement. Conflicts
// are keyed by signature so a caller upserting into operation.conflicts
// will not duplicate re-detections of the same disagreement.
func (d *Detector) DetectEntities(ctx context.Context, incoming []syncmodel.Entity) ([]syncmodel.Conflict, error) {
	var out []syncmodel.Conflict
	for _, e := range incoming {
		current, ok, err := d.store.GetEntity(ctx, e.ID)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		diff := diffEntity(current, e)
		if len(diff) == 0 {
			continue
		}
		out = append(out, newConflict(syncmodel.ConflictEntityVersion, e.ID, "", current, e, diff))
	}
	return out, nil
}

// DetectRelationships is the relationship half of detectConflicts (spec §4.3).
func (d *Detector) DetectRelationships(ctx context.Context, incoming []syncmodel.Relationship, current map[string]syncmodel.Relationship) []syncmodel.Conflict {
	var out []syncmodel.Conflict
	for _, r := range incoming {
		cur, ok := current[r.ID]
		if !ok {
			continue
		}
		diff := diffRelationship(cur, r)
		if len(diff) == 0 {
			continue
		}
		out = append(out, newConflict(syncmodel.ConflictRelationshipConflict, "", r.ID, cur, r, diff))
	}
	return out
}

func newConflict(typ syncmodel.ConflictType, entityID, relID string, current, incoming any, diff map[string][2]any) syncmodel.Conflict {
	return syncmodel.Conflict{
		ID:             "conflict_" + signature(diff)[:16],
		Type:           typ,
		EntityID:       entityID,
		RelationshipID: relID,
		ConflictingValues: syncmodel.ConflictValues{
			Current:  current,
			Incoming: incoming,
		},
		Diff:      diff,
		Signature: signature(diff),
		Timestamp: time.Now(),
	}
}

// diffEntity computes a canonicalized field-level diff, skipping
// syncmodel.VolatileFields (spec §4.3: "normalized ordering, ignored
// volatile fields").
func diffEntity(current, incoming syncmodel.Entity) map[string][2]any {
	diff := map[string][2]any{}
	addIfChanged(diff, "name", current.Name, incoming.Name)
	addIfChanged(diff, "path", current.Path, incoming.Path)
	addIfChanged(diff, "kind", current.Kind, incoming.Kind)
	addIfChanged(diff, "type", current.Type, incoming.Type)
	for k, cv := range current.Extra {
		if syncmodel.VolatileFields[k] {
			continue
		}
		addIfChanged(diff, k, cv, incoming.Extra[k])
	}
	for k, iv := range incoming.Extra {
		if syncmodel.VolatileFields[k] {
			continue
		}
		if _, ok := current.Extra[k]; ok {
			continue
		}
		addIfChanged(diff, k, nil, iv)
	}
	return diff
}

func diffRelationship(current, incoming syncmodel.Relationship) map[string][2]any {
	diff := map[string][2]any{}
	addIfChanged(diff, "type", current.Type, incoming.Type)
	addIfChanged(diff, "fromEntityId", current.FromEntityID, incoming.FromEntityID)
	addIfChanged(diff, "toEntityId", current.ToEntityID, incoming.ToEntityID)
	addIfChanged(diff, "impact", current.Impact, incoming.Impact)
	return diff
}

func addIfChanged(diff map[string][2]any, key string, current, incoming any) {
	if fmt.Sprint(current) == fmt.Sprint(incoming) {
		return
	}
	diff[key] = [2]any{current, incoming}
}

// signature computes a stable hash over a canonicalized (sorted-key) diff,
// per spec §4.3's "stable signature" requirement.
func signature(diff map[string][2]any) string {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		pair := diff[k]
		fmt.Fprintf(h, "%s=%v|%v;", k, pair[0], pair[1])
	}
	return hex.EncodeToString(h.Sum(nil))
}
