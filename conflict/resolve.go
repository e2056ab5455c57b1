package conflict

import (
	"time"

	"github.com/syncgraph/synccore/syncmodel"
)

// Strategy is one auto-resolution handler considered by ResolveAuto. Per
// spec §4.3, resolveConflictsAuto iterates strategies by priority and
// dispatches each conflict to the first one whose CanHandle reports true.
type Strategy interface {
	Name() syncmodel.ConflictResolution
	CanHandle(c syncmodel.Conflict) bool
	Resolve(c syncmodel.Conflict) syncmodel.ConflictOutcome
}

// overwriteStrategy always takes the incoming value.
type overwriteStrategy struct{}

func (overwriteStrategy) Name() syncmodel.ConflictResolution { return syncmodel.ConflictOverwrite }
func (overwriteStrategy) CanHandle(syncmodel.Conflict) bool  { return true }
func (overwriteStrategy) Resolve(c syncmodel.Conflict) syncmodel.ConflictOutcome {
	return syncmodel.ConflictOutcome{
		Strategy:      syncmodel.ConflictOverwrite,
		ResolvedValue: c.ConflictingValues.Incoming,
		Timestamp:     time.Now(),
		ResolvedBy:    "auto",
	}
}

// mergeStrategy handles only field-disjoint diffs: it can apply a
// shallow per-field merge when the current and incoming sides never
// changed the same field to conflicting non-nil values. It defers (cannot
// handle) genuine overlapping edits, letting the next strategy in priority
// order take over.
type mergeStrategy struct{}

func (mergeStrategy) Name() syncmodel.ConflictResolution { return syncmodel.ConflictMerge }

func (mergeStrategy) CanHandle(c syncmodel.Conflict) bool {
	if c.Type != syncmodel.ConflictEntityVersion {
		return false
	}
	for _, pair := range c.Diff {
		if pair[0] != nil && pair[1] != nil {
			return false
		}
	}
	return true
}

func (mergeStrategy) Resolve(c syncmodel.Conflict) syncmodel.ConflictOutcome {
	merged := map[string]any{}
	for field, pair := range c.Diff {
		if pair[1] != nil {
			merged[field] = pair[1]
		} else {
			merged[field] = pair[0]
		}
	}
	return syncmodel.ConflictOutcome{
		Strategy:      syncmodel.ConflictMerge,
		ResolvedValue: merged,
		Timestamp:     time.Now(),
		ResolvedBy:    "auto",
	}
}

// skipStrategy leaves the current value untouched.
type skipStrategy struct{}

func (skipStrategy) Name() syncmodel.ConflictResolution { return syncmodel.ConflictSkip }
func (skipStrategy) CanHandle(syncmodel.Conflict) bool  { return true }
func (skipStrategy) Resolve(c syncmodel.Conflict) syncmodel.ConflictOutcome {
	return syncmodel.ConflictOutcome{
		Strategy:      syncmodel.ConflictSkip,
		ResolvedValue: c.ConflictingValues.Current,
		Timestamp:     time.Now(),
		ResolvedBy:    "auto",
	}
}

// strategiesByPriority orders the built-in strategies as merge > overwrite
// > skip: merge is tried first since it is the most conservative
// non-destructive option, then the caller-requested strategy is filtered to
// by name in ResolveAuto.
var strategiesByPriority = []Strategy{mergeStrategy{}, overwriteStrategy{}, skipStrategy{}}

// ResolveAuto implements resolveConflictsAuto (spec §4.3): for each
// conflict, find the first strategy matching the requested name whose
// CanHandle returns true; if the requested strategy cannot handle it,
// fall through the remaining strategies in priority order so a conflict is
// never left unresolved when options.conflictResolution != "manual". It
// returns a new slice holding a copy of every input conflict, in input
// order, with Resolved/Resolution populated on each one a strategy handled
// (all of them, given overwrite/skip both report CanHandle=true
// unconditionally); the input slice is left unchanged.
func ResolveAuto(conflicts []syncmodel.Conflict, requested syncmodel.ConflictResolution) []syncmodel.Conflict {
	ordered := orderedFor(requested)
	out := make([]syncmodel.Conflict, len(conflicts))
	for i, c := range conflicts {
		for _, s := range ordered {
			if s.CanHandle(c) {
				outcome := s.Resolve(c)
				c.Resolved = true
				c.Resolution = &outcome
				c.ResolutionStrategy = s.Name()
				break
			}
		}
		out[i] = c
	}
	return out
}

func orderedFor(requested syncmodel.ConflictResolution) []Strategy {
	ordered := make([]Strategy, 0, len(strategiesByPriority))
	for _, s := range strategiesByPriority {
		if s.Name() == requested {
			ordered = append([]Strategy{s}, ordered...)
		}
	}
	for _, s := range strategiesByPriority {
		if s.Name() != requested {
			ordered = append(ordered, s)
		}
	}
	return ordered
}
