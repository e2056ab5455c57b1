package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/syncgraph/synccore/syncmodel"
)

func TestUpsertConflicts_AppendsNewSignature(t *testing.T) {
	existing := []syncmodel.Conflict{{ID: "c1", Signature: "sig-a"}}
	incoming := []syncmodel.Conflict{{ID: "c2", Signature: "sig-b"}}

	got := upsertConflicts(existing, incoming)

	assert.Len(t, got, 2)
}

func TestUpsertConflicts_ReplacesMatchingSignatureInPlace(t *testing.T) {
	existing := []syncmodel.Conflict{
		{ID: "c1", Signature: "sig-a", Resolved: false},
		{ID: "c2", Signature: "sig-b", Resolved: false},
	}
	incoming := []syncmodel.Conflict{{ID: "c1-redetected", Signature: "sig-a", Resolved: true}}

	got := upsertConflicts(existing, incoming)

	assert.Len(t, got, 2, "re-detection must upsert, not duplicate")
	assert.Equal(t, "c1-redetected", got[0].ID)
	assert.True(t, got[0].Resolved)
	assert.Equal(t, "c2", got[1].ID)
}
