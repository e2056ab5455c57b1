package conflict_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncgraph/synccore/conflict"
	"github.com/syncgraph/synccore/syncmodel"
)

func TestResolveAuto_Overwrite(t *testing.T) {
	conflicts := []syncmodel.Conflict{{
		Type:              syncmodel.ConflictEntityVersion,
		ConflictingValues: syncmodel.ConflictValues{Current: "old", Incoming: "new"},
		Diff:              map[string][2]any{"name": {"old", "new"}},
	}}

	out := conflict.ResolveAuto(conflicts, syncmodel.ConflictOverwrite)

	require.Len(t, out, 1)
	assert.True(t, out[0].Resolved)
	require.NotNil(t, out[0].Resolution)
	assert.Equal(t, syncmodel.ConflictOverwrite, out[0].ResolutionStrategy)
	assert.Equal(t, "new", out[0].Resolution.ResolvedValue)
}

func TestResolveAuto_Skip(t *testing.T) {
	conflicts := []syncmodel.Conflict{{
		Type:              syncmodel.ConflictEntityVersion,
		ConflictingValues: syncmodel.ConflictValues{Current: "old", Incoming: "new"},
		Diff:              map[string][2]any{"name": {"old", "new"}},
	}}

	out := conflict.ResolveAuto(conflicts, syncmodel.ConflictSkip)

	require.Len(t, out, 1)
	assert.Equal(t, syncmodel.ConflictSkip, out[0].ResolutionStrategy)
	assert.Equal(t, "old", out[0].Resolution.ResolvedValue)
}

func TestResolveAuto_MergeDisjointFields(t *testing.T) {
	conflicts := []syncmodel.Conflict{{
		Type: syncmodel.ConflictEntityVersion,
		Diff: map[string][2]any{
			"name": {"old", nil},
			"kind": {nil, "class"},
		},
	}}

	out := conflict.ResolveAuto(conflicts, syncmodel.ConflictMerge)

	require.Len(t, out, 1)
	assert.Equal(t, syncmodel.ConflictMerge, out[0].ResolutionStrategy)
	merged, ok := out[0].Resolution.ResolvedValue.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "old", merged["name"])
	assert.Equal(t, "class", merged["kind"])
}

func TestResolveAuto_MergeFallsThroughOnOverlap(t *testing.T) {
	conflicts := []syncmodel.Conflict{{
		Type: syncmodel.ConflictEntityVersion,
		Diff: map[string][2]any{
			"name": {"old", "new"}, // both sides set -> merge cannot handle
		},
		ConflictingValues: syncmodel.ConflictValues{Current: "old", Incoming: "new"},
	}}

	out := conflict.ResolveAuto(conflicts, syncmodel.ConflictMerge)

	require.Len(t, out, 1)
	// merge requested but cannot handle an overlapping field; falls through
	// to the next strategy in priority order (overwrite).
	assert.Equal(t, syncmodel.ConflictOverwrite, out[0].ResolutionStrategy)
}

func TestResolveAuto_RelationshipConflictNeverMerged(t *testing.T) {
	conflicts := []syncmodel.Conflict{{
		Type: syncmodel.ConflictRelationshipConflict,
		Diff: map[string][2]any{"toEntityId": {"a", "b"}},
		ConflictingValues: syncmodel.ConflictValues{
			Current:  syncmodel.Relationship{ToEntityID: "a"},
			Incoming: syncmodel.Relationship{ToEntityID: "b"},
		},
	}}

	out := conflict.ResolveAuto(conflicts, syncmodel.ConflictMerge)

	require.Len(t, out, 1)
	assert.Equal(t, syncmodel.ConflictOverwrite, out[0].ResolutionStrategy)
}
