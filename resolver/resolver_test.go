package resolver_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syncgraph/synccore/internal/synciotest"
	"github.com/syncgraph/synccore/resolver"
	"github.com/syncgraph/synccore/syncmodel"
)

func TestResolve_StructuredRefEntity(t *testing.T) {
	store := synciotest.NewGraphStore()
	r := resolver.New(store)
	rel := &syncmodel.Relationship{ToRef: &syncmodel.Ref{Kind: syncmodel.RefEntity, ID: "ent_1"}}

	target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())

	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "ent_1", target.ID)
	assert.Equal(t, syncmodel.ResolutionEntity, target.ResolutionPath)
}

func TestResolve_FileSymbolViaLocalIndex(t *testing.T) {
	store := synciotest.NewGraphStore()
	r := resolver.New(store)
	idx := resolver.NewIndex()
	idx.Put("main.go", "Foo", "ent_foo")
	rel := &syncmodel.Relationship{ToRef: &syncmodel.Ref{Kind: syncmodel.RefFileSymbol, File: "main.go", Symbol: "Foo"}}

	target, err := r.Resolve(context.Background(), rel, "main.go", idx)

	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "ent_foo", target.ID)
	assert.Equal(t, syncmodel.ResolutionLocalIndex, target.ResolutionPath)
}

func TestResolve_FileSymbolViaStoreFallback(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_bar", Name: "Bar", File: "main.go"})
	r := resolver.New(store)
	rel := &syncmodel.Relationship{ToRef: &syncmodel.Ref{Kind: syncmodel.RefFileSymbol, File: "main.go", Name: "Bar"}}

	target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())

	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "ent_bar", target.ID)
	assert.Equal(t, syncmodel.ResolutionFileSymbol, target.ResolutionPath)
}

func TestResolve_ExternalPrefersLocalThenNearbyThenGlobal(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_global", Name: "Shared"})
	r := resolver.New(store)
	rel := &syncmodel.Relationship{ToRef: &syncmodel.Ref{Kind: syncmodel.RefExternal, Name: "Shared"}}

	target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())

	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "ent_global", target.ID)
	assert.Equal(t, syncmodel.ResolutionExternalName, target.ResolutionPath)
}

func TestResolve_TokenForms(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_a", Name: "A", File: "a.go"})
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_b", Name: "B"})
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_c", Kind: "class", Name: "C"})
	r := resolver.New(store)

	t.Run("file", func(t *testing.T) {
		rel := &syncmodel.Relationship{Metadata: &syncmodel.RelationshipMetadata{Extra: map[string]any{"toToken": "file:a.go:A"}}}
		target, err := r.Resolve(context.Background(), rel, "", resolver.NewIndex())
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, "ent_a", target.ID)
	})

	t.Run("import", func(t *testing.T) {
		rel := &syncmodel.Relationship{Metadata: &syncmodel.RelationshipMetadata{Extra: map[string]any{"toToken": "import:pkg:B"}}}
		target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, "ent_b", target.ID)
	})

	t.Run("external", func(t *testing.T) {
		rel := &syncmodel.Relationship{Metadata: &syncmodel.RelationshipMetadata{Extra: map[string]any{"toToken": "external:B"}}}
		target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, "ent_b", target.ID)
	})

	t.Run("kind-name", func(t *testing.T) {
		rel := &syncmodel.Relationship{Metadata: &syncmodel.RelationshipMetadata{Extra: map[string]any{"toToken": "class:C"}}}
		target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())
		require.NoError(t, err)
		require.NotNil(t, target)
		assert.Equal(t, "ent_c", target.ID)
	})

	t.Run("unrecognized kind returns nil", func(t *testing.T) {
		rel := &syncmodel.Relationship{Metadata: &syncmodel.RelationshipMetadata{Extra: map[string]any{"toToken": "bogus:C"}}}
		target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())
		require.NoError(t, err)
		assert.Nil(t, target)
	})
}

func TestResolve_AmbiguityFlaggedOnMultipleCandidates(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_1", Name: "Dup"})
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_2", Name: "Dup"})
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_3", Name: "Dup"})
	r := resolver.New(store)
	rel := &syncmodel.Relationship{ToRef: &syncmodel.Ref{Kind: syncmodel.RefExternal, Name: "Dup"}}

	target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())

	require.NoError(t, err)
	require.NotNil(t, target)
	assert.True(t, rel.Ambiguous)
	require.NotNil(t, rel.Metadata)
	assert.True(t, rel.Metadata.Ambiguous)
	assert.Equal(t, 3, rel.Metadata.CandidateCount)
	assert.Len(t, target.Candidates, 3)
}

func TestResolve_CurrentFileFromEntityPath(t *testing.T) {
	store := synciotest.NewGraphStore()
	store.SeedEntity(syncmodel.Entity{ID: "from_1", Path: "pkg/foo.go:Foo"})
	store.SeedSymbol(syncmodel.Candidate{ID: "ent_bar", Name: "Bar", File: "pkg/foo.go"})
	r := resolver.New(store)
	rel := &syncmodel.Relationship{
		FromEntityID: "from_1",
		ToRef:        &syncmodel.Ref{Kind: syncmodel.RefFileSymbol, Name: "Bar"},
	}

	target, err := r.Resolve(context.Background(), rel, "", resolver.NewIndex())

	require.NoError(t, err)
	require.NotNil(t, target)
	assert.Equal(t, "ent_bar", target.ID)
}

func TestResolve_NoRefOrTokenReturnsNil(t *testing.T) {
	store := synciotest.NewGraphStore()
	r := resolver.New(store)
	rel := &syncmodel.Relationship{}

	target, err := r.Resolve(context.Background(), rel, "main.go", resolver.NewIndex())

	require.NoError(t, err)
	assert.Nil(t, target)
}

func TestIndex_PutGet(t *testing.T) {
	idx := resolver.NewIndex()
	idx.Put("a.go", "X", "ent_x")
	id, ok := idx.Get("a.go", "X")
	require.True(t, ok)
	assert.Equal(t, "ent_x", id)
	assert.Equal(t, 1, idx.Len())

	_, ok = idx.Get("a.go", "Y")
	assert.False(t, ok)
}
