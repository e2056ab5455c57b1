package syncmodel

import "github.com/syncgraph/synccore/internal/config"

// Tuning is the live maxConcurrency/batchSize override for one operation
// (spec §3), applied at the next batch boundary.
type Tuning struct {
	MaxConcurrency int
	BatchSize      int
}

// EffectiveBatchSize resolves tuning ?? options ?? default, clamped to
// [1,5000] per spec §3/§8.
func EffectiveBatchSize(tuning *Tuning, optionsBatchSize, fallback int) int {
	v := fallback
	if optionsBatchSize > 0 {
		v = optionsBatchSize
	}
	if tuning != nil && tuning.BatchSize > 0 {
		v = tuning.BatchSize
	}
	return config.Clamp(v, 1, 5000)
}

// EffectiveMaxConcurrency resolves tuning ?? options ?? default, clamped to
// [1,64] and then further bounded by batchSize (spec §4.1.1: "clamped to
// batchSize").
func EffectiveMaxConcurrency(tuning *Tuning, optionsMaxConcurrency, fallback, batchSize int) int {
	v := fallback
	if optionsMaxConcurrency > 0 {
		v = optionsMaxConcurrency
	}
	if tuning != nil && tuning.MaxConcurrency > 0 {
		v = tuning.MaxConcurrency
	}
	v = config.Clamp(v, 1, 64)
	if v > batchSize {
		v = batchSize
	}
	if v < 1 {
		v = 1
	}
	return v
}
