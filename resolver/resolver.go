package resolver

import (
	"context"
	"strings"

	"github.com/syncgraph/synccore/syncio"
	"github.com/syncgraph/synccore/syncmodel"
)

const maxCandidates = 5

// Resolver is the public contract consumed by the Operation Engine (spec §9
// design note: "Prototype-extension methods ... should be plain members of
// a dedicated Resolver interface consumed by the Engine").
type Resolver interface {
	Resolve(ctx context.Context, rel *syncmodel.Relationship, sourceFilePath string, index *Index) (*syncmodel.ResolvedTarget, error)
}

// resolver is the default Resolver implementation, backed by a GraphStore.
type resolver struct {
	store syncio.GraphStore
}

// New returns a Resolver backed by store.
func New(store syncio.GraphStore) Resolver {
	return &resolver{store: store}
}

// Resolve implements the deterministic algorithm of spec §4.2: structured
// toRef first, then string-token parsing, each walking local index, file,
// nearby directory, and global lookups in a fixed precedence order, the
// first non-empty candidate list winning. On success it also mutates rel to
// set Ambiguous/Metadata per the ambiguity rule.
func (r *resolver) Resolve(ctx context.Context, rel *syncmodel.Relationship, sourceFilePath string, index *Index) (*syncmodel.ResolvedTarget, error) {
	currentFile, err := r.currentFilePath(ctx, rel, sourceFilePath)
	if err != nil {
		return nil, err
	}

	if rel.ToRef != nil {
		target, err := r.resolveRef(ctx, rel, rel.ToRef, currentFile, index)
		if err != nil {
			return nil, err
		}
		if target != nil {
			r.applyAmbiguity(rel, target)
		}
		return target, nil
	}

	if token, ok := extraString(rel.Metadata, "toToken"); ok {
		target, err := r.resolveToken(ctx, token, currentFile, index)
		if err != nil {
			return nil, err
		}
		if target != nil {
			r.applyAmbiguity(rel, target)
		}
		return target, nil
	}

	return nil, nil
}

// currentFilePath implements spec §4.2 step 1.
func (r *resolver) currentFilePath(ctx context.Context, rel *syncmodel.Relationship, sourceFilePath string) (string, error) {
	if sourceFilePath != "" {
		return sourceFilePath, nil
	}
	if rel.FromRef != nil && rel.FromRef.File != "" {
		return rel.FromRef.File, nil
	}

	var fromID string
	if rel.FromRef != nil && rel.FromRef.ID != "" {
		fromID = rel.FromRef.ID
	} else {
		fromID = rel.FromEntityID
	}
	if fromID == "" {
		return "", nil
	}
	e, ok, err := r.store.GetEntity(ctx, fromID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return stripSymbolSuffix(e.Path), nil
}

func stripSymbolSuffix(path string) string {
	if i := strings.Index(path, ":"); i >= 0 {
		return path[:i]
	}
	return path
}

// resolveRef handles a structured toRef (spec §4.2).
func (r *resolver) resolveRef(ctx context.Context, rel *syncmodel.Relationship, ref *syncmodel.Ref, currentFile string, index *Index) (*syncmodel.ResolvedTarget, error) {
	switch ref.Kind {
	case syncmodel.RefEntity:
		return &syncmodel.ResolvedTarget{ID: ref.ID, ResolutionPath: syncmodel.ResolutionEntity}, nil

	case syncmodel.RefFileSymbol:
		name := ref.Symbol
		if name == "" {
			name = ref.Name
		}
		if ref.File != "" {
			currentFile = ref.File
		}
		if id, ok := index.Get(currentFile, name); ok {
			return &syncmodel.ResolvedTarget{ID: id, ResolutionPath: syncmodel.ResolutionLocalIndex}, nil
		}
		cands, err := r.store.FindSymbolInFile(ctx, currentFile, name)
		if err != nil {
			return nil, err
		}
		if len(cands) > 0 {
			return fromCandidates(cands, syncmodel.ResolutionFileSymbol), nil
		}
		return nil, nil

	case syncmodel.RefExternal:
		return r.resolveExternalName(ctx, ref.Name, currentFile, index)

	default:
		return nil, nil
	}
}

// resolveToken parses the four string-token forms of spec §4.2 and
// resolves each the way resolveRef would for the structured equivalent.
func (r *resolver) resolveToken(ctx context.Context, token, currentFile string, index *Index) (*syncmodel.ResolvedTarget, error) {
	switch {
	case strings.HasPrefix(token, "file:"):
		rest := strings.TrimPrefix(token, "file:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return nil, nil
		}
		path, name := parts[0], parts[1]
		if id, ok := index.Get(path, name); ok {
			return &syncmodel.ResolvedTarget{ID: id, ResolutionPath: syncmodel.ResolutionLocalIndex}, nil
		}
		cands, err := r.store.FindSymbolInFile(ctx, path, name)
		if err != nil {
			return nil, err
		}
		if len(cands) > 0 {
			return fromCandidates(cands, syncmodel.ResolutionFileSymbol), nil
		}
		return &syncmodel.ResolvedTarget{ResolutionPath: syncmodel.ResolutionFilePlaceholder}, nil

	case strings.HasPrefix(token, "import:"):
		rest := strings.TrimPrefix(token, "import:")
		parts := strings.SplitN(rest, ":", 2)
		if len(parts) != 2 {
			return nil, nil
		}
		name := parts[1]
		if id, ok := index.Get(currentFile, name); ok {
			return &syncmodel.ResolvedTarget{ID: id, ResolutionPath: syncmodel.ResolutionImportLocal}, nil
		}
		cands, err := r.store.FindSymbolsByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if len(cands) > 0 {
			return fromCandidates(cands, syncmodel.ResolutionImportName), nil
		}
		return nil, nil

	case strings.HasPrefix(token, "external:"):
		name := strings.TrimPrefix(token, "external:")
		return r.resolveExternalName(ctx, name, currentFile, index)

	default:
		// (class|interface|function|typeAlias):<name>
		parts := strings.SplitN(token, ":", 2)
		if len(parts) != 2 {
			return nil, nil
		}
		kind, name := parts[0], parts[1]
		switch kind {
		case "class", "interface", "function", "typeAlias":
			cands, err := r.store.FindSymbolByKindAndName(ctx, kind, name)
			if err != nil {
				return nil, err
			}
			if len(cands) > 0 {
				return fromCandidates(cands, syncmodel.ResolutionKindName), nil
			}
			return nil, nil
		default:
			return nil, nil
		}
	}
}

// resolveExternalName implements "prefer local-in-file, then
// nearby-directory, then global-by-name" (spec §4.2, for both the
// `external` toRef and `external:<name>` token forms).
func (r *resolver) resolveExternalName(ctx context.Context, name, currentFile string, index *Index) (*syncmodel.ResolvedTarget, error) {
	if id, ok := index.Get(currentFile, name); ok {
		return &syncmodel.ResolvedTarget{ID: id, ResolutionPath: syncmodel.ResolutionExternalLocal}, nil
	}
	if currentFile != "" {
		cands, err := r.store.FindSymbolInFile(ctx, currentFile, name)
		if err != nil {
			return nil, err
		}
		if len(cands) > 0 {
			return fromCandidates(cands, syncmodel.ResolutionExternalLocal), nil
		}
		nearby, err := r.store.FindNearbySymbols(ctx, currentFile, name, maxCandidates)
		if err != nil {
			return nil, err
		}
		if len(nearby) > 0 {
			return fromCandidates(nearby, syncmodel.ResolutionExternalLocal), nil
		}
	}
	cands, err := r.store.FindSymbolsByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(cands) > 0 {
		return fromCandidates(cands, syncmodel.ResolutionExternalName), nil
	}
	return nil, nil
}

func fromCandidates(cands []syncmodel.Candidate, path syncmodel.ResolutionPath) *syncmodel.ResolvedTarget {
	top := cands
	if len(top) > maxCandidates {
		top = top[:maxCandidates]
	}
	return &syncmodel.ResolvedTarget{ID: cands[0].ID, Candidates: top, ResolutionPath: path}
}

// applyAmbiguity sets rel.Ambiguous/rel.Metadata per spec §4.2's ambiguity
// rule: candidates.length > 1 marks the relationship and records the top-5
// plus resolution path in metadata.
func (r *resolver) applyAmbiguity(rel *syncmodel.Relationship, target *syncmodel.ResolvedTarget) {
	md := rel.EnsureMetadata()
	md.ResolvedTo = target
	md.ResolutionPath = target.ResolutionPath
	if len(target.Candidates) > 1 {
		rel.Ambiguous = true
		md.Ambiguous = true
		md.CandidateCount = len(target.Candidates)
		md.Candidates = target.Candidates
	}
}

func extraString(m *syncmodel.RelationshipMetadata, key string) (string, bool) {
	if m == nil || m.Extra == nil {
		return "", false
	}
	v, ok := m.Extra[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
