package syncmodel

// OperationPhase names the progress phase reported by syncProgress events
// (spec §6, §8: "phase=completed, progress=1" on empty input).
type OperationPhase string

const (
	PhaseQueued    OperationPhase = "queued"
	PhaseParsing   OperationPhase = "parsing"
	PhaseResolving OperationPhase = "resolving"
	PhaseWriting   OperationPhase = "writing"
	PhaseCompleted OperationPhase = "completed"
)

// HealthStatus is the Monitoring Sink's health rollup (spec §4.8).
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
)
