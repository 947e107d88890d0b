package nestward

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
//	    stepCounter   prometheus.Counter
//	    scanHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordHomingStep(duration time.Duration, err error) {
//	    p.stepCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordLearnSample is called after each committed learning-walk
	// sample. duration is the total time taken, err is nil if successful.
	RecordLearnSample(duration time.Duration, err error)

	// RecordScan is called after each homing fan scan.
	// samples is the number of candidate headings evaluated.
	RecordScan(samples int, duration time.Duration, err error)

	// RecordHomingStep is called after each committed homing step,
	// including the scan that selected it.
	RecordHomingStep(duration time.Duration, err error)

	// RecordWalk is called once when a walk reaches a terminal state.
	RecordWalk(stage Stage, steps int, duration time.Duration, outcome Outcome)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordLearnSample(time.Duration, error)        {}
func (NoopMetricsCollector) RecordScan(int, time.Duration, error)          {}
func (NoopMetricsCollector) RecordHomingStep(time.Duration, error)         {}
func (NoopMetricsCollector) RecordWalk(Stage, int, time.Duration, Outcome) {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	LearnSampleCount      atomic.Int64
	LearnSampleErrors     atomic.Int64
	LearnSampleTotalNanos atomic.Int64
	ScanCount             atomic.Int64
	ScanSamples           atomic.Int64
	ScanErrors            atomic.Int64
	ScanTotalNanos        atomic.Int64
	HomingStepCount       atomic.Int64
	HomingStepErrors      atomic.Int64
	HomingStepTotalNanos  atomic.Int64
	WalkCount             atomic.Int64
	WalkSteps             atomic.Int64
	WalkTotalNanos        atomic.Int64
	WalksReached          atomic.Int64
	WalksCapExceeded      atomic.Int64
	WalksCancelled        atomic.Int64
}

// RecordLearnSample implements MetricsCollector.
func (b *BasicMetricsCollector) RecordLearnSample(duration time.Duration, err error) {
	b.LearnSampleCount.Add(1)
	b.LearnSampleTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.LearnSampleErrors.Add(1)
	}
}

// RecordScan implements MetricsCollector.
func (b *BasicMetricsCollector) RecordScan(samples int, duration time.Duration, err error) {
	b.ScanCount.Add(1)
	b.ScanSamples.Add(int64(samples))
	b.ScanTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.ScanErrors.Add(1)
	}
}

// RecordHomingStep implements MetricsCollector.
func (b *BasicMetricsCollector) RecordHomingStep(duration time.Duration, err error) {
	b.HomingStepCount.Add(1)
	b.HomingStepTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.HomingStepErrors.Add(1)
	}
}

// RecordWalk implements MetricsCollector.
func (b *BasicMetricsCollector) RecordWalk(stage Stage, steps int, duration time.Duration, outcome Outcome) {
	b.WalkCount.Add(1)
	b.WalkSteps.Add(int64(steps))
	b.WalkTotalNanos.Add(duration.Nanoseconds())
	switch outcome {
	case OutcomeReached:
		b.WalksReached.Add(1)
	case OutcomeCapExceeded:
		b.WalksCapExceeded.Add(1)
	case OutcomeCancelled:
		b.WalksCancelled.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		LearnSampleCount:    b.LearnSampleCount.Load(),
		LearnSampleErrors:   b.LearnSampleErrors.Load(),
		LearnSampleAvgNanos: b.getAvgLearnSampleNanos(),
		ScanCount:           b.ScanCount.Load(),
		ScanSamples:         b.ScanSamples.Load(),
		ScanErrors:          b.ScanErrors.Load(),
		ScanAvgNanos:        b.getAvgScanNanos(),
		HomingStepCount:     b.HomingStepCount.Load(),
		HomingStepErrors:    b.HomingStepErrors.Load(),
		HomingStepAvgNanos:  b.getAvgHomingStepNanos(),
		WalkCount:           b.WalkCount.Load(),
		WalkSteps:           b.WalkSteps.Load(),
		WalksReached:        b.WalksReached.Load(),
		WalksCapExceeded:    b.WalksCapExceeded.Load(),
		WalksCancelled:      b.WalksCancelled.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgLearnSampleNanos() int64 {
	count := b.LearnSampleCount.Load()
	if count == 0 {
		return 0
	}
	return b.LearnSampleTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgScanNanos() int64 {
	count := b.ScanCount.Load()
	if count == 0 {
		return 0
	}
	return b.ScanTotalNanos.Load() / count
}

func (b *BasicMetricsCollector) getAvgHomingStepNanos() int64 {
	count := b.HomingStepCount.Load()
	if count == 0 {
		return 0
	}
	return b.HomingStepTotalNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	LearnSampleCount    int64
	LearnSampleErrors   int64
	LearnSampleAvgNanos int64
	ScanCount           int64
	ScanSamples         int64
	ScanErrors          int64
	ScanAvgNanos        int64
	HomingStepCount     int64
	HomingStepErrors    int64
	HomingStepAvgNanos  int64
	WalkCount           int64
	WalkSteps           int64
	WalksReached        int64
	WalksCapExceeded    int64
	WalksCancelled      int64
}
