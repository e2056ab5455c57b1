package syncmodel

import "time"

// RefKind discriminates the structured toRef/fromRef variants (spec §3).
type RefKind string

const (
	RefEntity     RefKind = "entity"
	RefFileSymbol RefKind = "fileSymbol"
	RefExternal   RefKind = "external"
)

// Ref is a structured relationship endpoint reference. Exactly the fields
// relevant to Kind are populated.
type Ref struct {
	Kind   RefKind
	ID     string // RefEntity
	File   string // RefFileSymbol
	Symbol string // RefFileSymbol ("symbol" or "name" alias)
	Name   string // RefExternal, or RefFileSymbol fallback name
}

// Candidate is one resolution candidate surfaced by the Reference Resolver.
type Candidate struct {
	ID   string
	Kind string
	Name string
	File string
}

// ResolutionPath names which lookup strategy produced a resolver result
// (spec §4.2).
type ResolutionPath string

const (
	ResolutionEntity        ResolutionPath = "entity"
	ResolutionFileSymbol    ResolutionPath = "fileSymbol"
	ResolutionFilePlaceholder ResolutionPath = "file-placeholder"
	ResolutionLocalIndex    ResolutionPath = "local-index"
	ResolutionKindName      ResolutionPath = "kind-name"
	ResolutionImportLocal   ResolutionPath = "import-local"
	ResolutionImportName    ResolutionPath = "import-name"
	ResolutionExternalLocal ResolutionPath = "external-local"
	ResolutionExternalName  ResolutionPath = "external-name"
)

// ResolvedTarget is the successful output of the Reference Resolver (spec §4.2).
type ResolvedTarget struct {
	ID             string
	Candidates     []Candidate // top 5
	ResolutionPath ResolutionPath
}

// RelationshipMetadata carries resolver/ambiguity annotations and
// session/event provenance fields (spec §3).
type RelationshipMetadata struct {
	Ambiguous      bool
	CandidateCount int
	Candidates     []Candidate
	ResolutionPath ResolutionPath
	ResolvedTo     *ResolvedTarget
	Extra          map[string]any
}

// Relationship is the minimum shape the core reads/writes, opaque to the
// core beyond these fields (spec §3).
type Relationship struct {
	ID            string
	Type          string
	FromEntityID  string
	ToEntityID    string
	Created       time.Time
	LastModified  time.Time
	Version       int
	Metadata      *RelationshipMetadata
	SessionID     string
	SequenceNumber int64
	Timestamp     time.Time
	EventID       string
	Actor         string
	Annotations   map[string]string
	ChangeInfo    *ChangeInfo
	StateTransition *StateTransition
	Impact        string

	ToRef   *Ref
	FromRef *Ref

	// SourceFile tags which file produced this relationship during a batch
	// (the `__sourceFile` tag in spec §4.1.1), used by Post-resolution to
	// retry against the right LocalSymbolIndex scope.
	SourceFile string

	// Ambiguous mirrors Metadata.Ambiguous for quick access without a nil
	// check; kept in sync by the resolver.
	Ambiguous bool
}

// EnsureMetadata returns r.Metadata, allocating it if nil.
func (r *Relationship) EnsureMetadata() *RelationshipMetadata {
	if r.Metadata == nil {
		r.Metadata = &RelationshipMetadata{}
	}
	return r.Metadata
}
