package syncmodel

import "time"

// Entity is the minimum shape the core reads/writes; the parser and graph
// store may carry richer implementation-specific fields behind Extra.
type Entity struct {
	ID           string
	Type         string // "symbol" for LocalSymbolIndex population, among others
	Name         string
	Path         string // file path, possibly suffixed ":<symbol>"
	Kind         string // class|interface|function|typeAlias, when known
	LastModified time.Time
	Version      int
	Extra        map[string]any
}

// LocalSymbolKey is the (filePath, symbolName) key into a LocalSymbolIndex
// (spec §3).
type LocalSymbolKey struct {
	FilePath string
	Name     string
}
