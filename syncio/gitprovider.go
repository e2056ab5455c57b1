package syncio

import (
	"context"
	"time"
)

// CommitInfo is the best-effort git metadata attached to MODIFIED_BY edges
// (spec §4.1.2, §6).
type CommitInfo struct {
	Author string
	Email  string
	Hash   string
	Date   time.Time
}

// GitProvider is an optional, best-effort collaborator (spec §6). Callers
// treat any error as absence of metadata, never as a fatal condition.
type GitProvider interface {
	GetLastCommitInfo(ctx context.Context, path string) (CommitInfo, error)
	GetUnifiedDiff(ctx context.Context, path string, contextLines int) (string, error)
}

// ModuleIndexer is an optional, best-effort collaborator invoked once per
// full sync for the root package (spec §4.1.1 step 1, §6).
type ModuleIndexer interface {
	IndexModule(ctx context.Context, rootPackage string) error
}
