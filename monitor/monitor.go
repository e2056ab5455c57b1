// Package monitor implements the Monitoring Sink (C8): aggregated
// operation/session/checkpoint observability, alerting, and health
// rollup, per spec §4.8.
package monitor

import (
	"sync"
	"time"

	catrate "github.com/joeycumines/go-catrate"

	"github.com/syncgraph/synccore/events"
	"github.com/syncgraph/synccore/internal/ringbuf"
	"github.com/syncgraph/synccore/syncmodel"
)

// alertRateLimit caps alertTriggered storms per severity category: at most
// 5 alerts per minute, 30 per hour, matching the "Automatic cleanup" /
// category-based design go-catrate was built for.
var alertRateLimit = map[time.Duration]int{
	time.Minute: 5,
	time.Hour:   30,
}

const (
	alertsCap = 100
	logsCap   = 1000
)

// OpPhaseRecord is one entry of opPhases (spec §4.8).
type OpPhaseRecord struct {
	Phase     syncmodel.OperationPhase
	Progress  float64
	Timestamp time.Time
}

// Metrics is the aggregated metrics block (spec §4.8).
type Metrics struct {
	OperationsTotal            int64
	OperationsSuccessful       int64
	OperationsFailed           int64
	AverageSyncTime            time.Duration
	TotalEntitiesProcessed     int64
	TotalRelationshipsProcessed int64
	ErrorRate                  float64
	ThroughputPerSec           float64
}

// SequenceStats is sessionSequenceStats (spec §4.8).
type SequenceStats struct {
	Duplicates  int64
	OutOfOrder  int64
	RecentEvents []syncmodel.SessionSequenceAnomalyEvent // cap 100
}

// Sink is the Monitoring Sink. Construct with New and Wire it to a Hub to
// begin observing.
type Sink struct {
	mu sync.RWMutex

	operations map[string]syncmodel.SyncOperation
	opPhases   map[string]OpPhaseRecord

	alerts *ringbuf.Buffer[syncmodel.AlertEvent]
	logs   *ringbuf.Buffer[syncmodel.LogEvent]

	metrics       Metrics
	syncDurations []time.Duration

	seqStats SequenceStats

	checkpointMetrics syncmodel.CheckpointMetrics

	conflictsTotal    int64
	conflictsResolved int64

	consecutiveFailures int

	healthTicker *time.Ticker
	stop         chan struct{}
	hub          *events.Hub
	alertLimiter *catrate.Limiter
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{
		operations:   make(map[string]syncmodel.SyncOperation),
		opPhases:     make(map[string]OpPhaseRecord),
		alerts:       ringbuf.New[syncmodel.AlertEvent](alertsCap),
		logs:         ringbuf.New[syncmodel.LogEvent](logsCap),
		stop:         make(chan struct{}),
		alertLimiter: catrate.NewLimiter(alertRateLimit),
	}
}

// Wire subscribes the Sink to every relevant bus on hub and starts the 30s
// health-check timer (spec §4.8).
func (s *Sink) Wire(hub *events.Hub) {
	s.hub = hub
	hub.Operation.On(s.onOperation)
	hub.Progress.On(s.onProgress)
	hub.SequenceAnomaly.On(s.onSequenceAnomaly)
	hub.ConflictsDetected.On(s.onConflictsDetected)
	hub.CheckpointMetrics.On(func(e syncmodel.CheckpointMetricsUpdatedEvent) {
		s.mu.Lock()
		s.checkpointMetrics = e.Metrics
		s.mu.Unlock()
	})
	hub.Alert.On(func(e syncmodel.AlertEvent) {
		if _, ok := s.alertLimiter.Allow(e.Severity); !ok {
			return
		}
		s.mu.Lock()
		s.alerts.Push(e)
		s.mu.Unlock()
	})
	hub.Log.On(func(e syncmodel.LogEvent) {
		s.mu.Lock()
		s.logs.Push(e)
		s.mu.Unlock()
	})

	s.healthTicker = time.NewTicker(30 * time.Second)
	go func() {
		for {
			select {
			case <-s.healthTicker.C:
				s.checkHealth()
			case <-s.stop:
				return
			}
		}
	}()
}

// Close stops the health-check timer.
func (s *Sink) Close() {
	if s.healthTicker != nil {
		s.healthTicker.Stop()
	}
	close(s.stop)
}

func (s *Sink) onOperation(e syncmodel.OperationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.operations[e.Operation.ID] = e.Operation

	switch e.Phase {
	case "started":
		s.metrics.OperationsTotal++
	case "completed":
		s.metrics.OperationsSuccessful++
		s.consecutiveFailures = 0
		s.recordDuration(e.Operation)
	case "failed", "cancelled":
		s.metrics.OperationsFailed++
		s.consecutiveFailures++
		s.recordDuration(e.Operation)
	}
	s.metrics.TotalEntitiesProcessed += int64(e.Operation.Counters.EntitiesCreated + e.Operation.Counters.EntitiesUpdated + e.Operation.Counters.EntitiesDeleted)
	s.metrics.TotalRelationshipsProcessed += int64(e.Operation.Counters.RelationshipsCreated + e.Operation.Counters.RelationshipsUpdated + e.Operation.Counters.RelationshipsDeleted)
	if s.metrics.OperationsTotal > 0 {
		s.metrics.ErrorRate = float64(s.metrics.OperationsFailed) / float64(s.metrics.OperationsTotal)
	}
}

func (s *Sink) recordDuration(op syncmodel.SyncOperation) {
	if op.EndTime == nil {
		return
	}
	d := op.EndTime.Sub(op.StartTime)
	s.syncDurations = append(s.syncDurations, d)
	if len(s.syncDurations) > 200 {
		s.syncDurations = s.syncDurations[len(s.syncDurations)-200:]
	}
	var total time.Duration
	for _, dd := range s.syncDurations {
		total += dd
	}
	s.metrics.AverageSyncTime = total / time.Duration(len(s.syncDurations))
}

func (s *Sink) onProgress(e syncmodel.SyncProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opPhases[e.OperationID] = OpPhaseRecord{Phase: e.Phase, Progress: e.Progress, Timestamp: time.Now()}
}

// ConflictStats is conflictStats (spec §4.8 supplement): running totals of
// conflict activity observed via conflictsDetected, independent of whether
// a given operation's own Conflicts slice has since been cleaned up.
type ConflictStats struct {
	Total    int64
	Resolved int64
}

func (s *Sink) onConflictsDetected(e syncmodel.ConflictsDetectedEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflictsTotal += int64(len(e.Conflicts))
	for _, c := range e.Conflicts {
		if c.Resolved {
			s.conflictsResolved++
		}
	}
}

// GetConflictStats returns a copy of conflictStats.
func (s *Sink) GetConflictStats() ConflictStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ConflictStats{Total: s.conflictsTotal, Resolved: s.conflictsResolved}
}

func (s *Sink) onSequenceAnomaly(e syncmodel.SessionSequenceAnomalyEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch e.Reason {
	case syncmodel.AnomalyDuplicate:
		s.seqStats.Duplicates++
	case syncmodel.AnomalyOutOfOrder:
		s.seqStats.OutOfOrder++
	}
	s.seqStats.RecentEvents = append(s.seqStats.RecentEvents, e)
	if len(s.seqStats.RecentEvents) > 100 {
		s.seqStats.RecentEvents = s.seqStats.RecentEvents[len(s.seqStats.RecentEvents)-100:]
	}
}

// checkHealth implements the health rollup of spec §4.8: unhealthy if
// consecutive failures > 3, degraded if consecutive failures > 0 or
// errorRate > 0.1, else healthy. Raises an alert on any non-healthy state.
func (s *Sink) checkHealth() {
	status := s.Health()
	if s.hub != nil {
		s.hub.Health.Emit(syncmodel.HealthCheckEvent{Status: status, Timestamp: time.Now()})
		if status != syncmodel.HealthHealthy {
			s.hub.Alert.Emit(syncmodel.AlertEvent{
				ID:        "health_" + string(status),
				Severity:  string(status),
				Message:   "synchronization core health check reported " + string(status),
				Timestamp: time.Now(),
			})
		}
	}
}

// Health computes the current rollup without side effects.
func (s *Sink) Health() syncmodel.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch {
	case s.consecutiveFailures > 3:
		return syncmodel.HealthUnhealthy
	case s.consecutiveFailures > 0 || s.metrics.ErrorRate > 0.1:
		return syncmodel.HealthDegraded
	default:
		return syncmodel.HealthHealthy
	}
}

// GetMetrics returns a copy of the aggregated metrics.
func (s *Sink) GetMetrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.metrics
}

// GetSequenceStats returns a copy of sessionSequenceStats.
func (s *Sink) GetSequenceStats() SequenceStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp := s.seqStats
	cp.RecentEvents = append([]syncmodel.SessionSequenceAnomalyEvent(nil), s.seqStats.RecentEvents...)
	return cp
}

// GetCheckpointMetricsSnapshot returns the latest checkpoint metrics seen.
func (s *Sink) GetCheckpointMetricsSnapshot() syncmodel.CheckpointMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpointMetrics
}

// GetAlerts returns a snapshot of the alert ring, oldest first.
func (s *Sink) GetAlerts() []syncmodel.AlertEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.alerts.Slice()
}

// GetLogs returns a snapshot of the log ring, oldest first.
func (s *Sink) GetLogs() []syncmodel.LogEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logs.Slice()
}

// Cleanup implements cleanup(maxAge?) (spec §4.8) as age-based pruning
// only: operations that ended before now-maxAge are removed together with
// their phase records. A maxAge of zero or less uses the 24h default; there
// is no full-reset mode. Alerts, logs and the aggregated metrics are not
// touched.
func (s *Sink) Cleanup(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}
	cutoff := time.Now().Add(-maxAge)

	for id, op := range s.operations {
		if op.EndTime != nil && op.EndTime.Before(cutoff) {
			delete(s.operations, id)
			delete(s.opPhases, id)
		}
	}
}
