package crosscat

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    incorporateCounter prometheus.Counter
//	    queryHistogram     prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordIncorporate(duration time.Duration, err error) {
//	    p.incorporateCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordIncorporate is called after each row incorporation.
	// duration is the total time taken, err is nil if successful.
	RecordIncorporate(duration time.Duration, err error)

	// RecordSweep is called after each full transition sweep.
	// clusters is the cluster count after the sweep.
	RecordSweep(duration time.Duration, clusters int)

	// RecordQuery is called after each logpdf or simulate evaluation.
	// cols is the number of query/target columns, err is nil if
	// successful.
	RecordQuery(cols int, duration time.Duration, err error)

	// RecordSnapshot is called after each snapshot save.
	RecordSnapshot(duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordIncorporate(time.Duration, error) {}
func (NoopMetricsCollector) RecordSweep(time.Duration, int)         {}
func (NoopMetricsCollector) RecordQuery(int, time.Duration, error)  {}
func (NoopMetricsCollector) RecordSnapshot(time.Duration, error)    {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	IncorporateCount  atomic.Int64
	IncorporateErrors atomic.Int64
	SweepCount        atomic.Int64
	SweepTotalNanos   atomic.Int64
	QueryCount        atomic.Int64
	QueryErrors       atomic.Int64
	QueryTotalNanos   atomic.Int64
	SnapshotCount     atomic.Int64
	SnapshotErrors    atomic.Int64
}

// RecordIncorporate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordIncorporate(duration time.Duration, err error) {
	b.IncorporateCount.Add(1)
	if err != nil {
		b.IncorporateErrors.Add(1)
	}
}

// RecordSweep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSweep(duration time.Duration, clusters int) {
	b.SweepCount.Add(1)
	b.SweepTotalNanos.Add(duration.Nanoseconds())
}

// RecordQuery implements MetricsCollector.
func (b *BasicMetricsCollector) RecordQuery(cols int, duration time.Duration, err error) {
	b.QueryCount.Add(1)
	b.QueryTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.QueryErrors.Add(1)
	}
}

// RecordSnapshot implements MetricsCollector.
func (b *BasicMetricsCollector) RecordSnapshot(duration time.Duration, err error) {
	b.SnapshotCount.Add(1)
	if err != nil {
		b.SnapshotErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		IncorporateCount:  b.IncorporateCount.Load(),
		IncorporateErrors: b.IncorporateErrors.Load(),
		SweepCount:        b.SweepCount.Load(),
		SweepAvgNanos:     b.avgSweepNanos(),
		QueryCount:        b.QueryCount.Load(),
		QueryErrors:       b.QueryErrors.Load(),
		QueryAvgNanos:     b.avgQueryNanos(),
		SnapshotCount:     b.SnapshotCount.Load(),
		SnapshotErrors:    b.SnapshotErrors.Load(),
	}
}

func (b *BasicMetricsCollector) avgSweepNanos() int64 {
	count := b.SweepCount.Load()
	if count == 0 {
		return 0
	}
	return b.SweepTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) avgQueryNanos() int64 {
	count := b.QueryCount.Load()
	if count == 0 {
		return 0
	}
	return b.QueryTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	IncorporateCount  int64
	IncorporateErrors int64
	SweepCount        int64
	SweepAvgNanos     int64
	QueryCount        int64
	QueryErrors       int64
	QueryAvgNanos     int64
	SnapshotCount     int64
	SnapshotErrors    int64
}
