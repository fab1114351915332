package crosscat

import (
	"log/slog"
	"math/rand/v2"
)

type options struct {
	seed          uint64
	seedSet       bool
	alpha         float64 // <= 0 means draw from the grid
	assignments   map[int]int
	accuracy      int
	exactShortcut bool
	logger        *Logger
	metrics       MetricsCollector
}

// Option configures View constructor/load behavior.
//
// Today options primarily exist to avoid exploding the API surface
// (e.g. seed-specific constructor variants).
type Option func(*options)

// WithSeed fixes the view's random stream. Two views built with the
// same seed, data and options evolve identically under Transition.
//
// Without this option a fresh random seed is drawn per view.
func WithSeed(seed uint64) Option {
	return func(o *options) {
		o.seed = seed
		o.seedSet = true
	}
}

// WithAlpha fixes the initial CRP concentration instead of drawing it
// from the hyper grid. TransitionAlpha may still move it afterwards.
func WithAlpha(alpha float64) Option {
	return func(o *options) {
		o.alpha = alpha
	}
}

// WithPartition fixes the initial row partition instead of simulating
// one from the CRP prior. Labels must be contiguous 0..K-1 and the map
// must cover exactly the constructed rows.
func WithPartition(assignments map[int]int) Option {
	return func(o *options) {
		o.assignments = assignments
	}
}

// WithAccuracy sets the number of importance-sampling proposals drawn
// per requested sample when a query touches conditional columns.
// Higher is more accurate and slower. Default 20.
func WithAccuracy(accuracy int) Option {
	return func(o *options) {
		if accuracy > 0 {
			o.accuracy = accuracy
		}
	}
}

// WithExactShortcut controls whether queries over unconditional columns
// only use the exact finite-mixture form instead of importance
// sampling. Enabled by default; disabling it is mainly useful for
// testing the sampler against the exact path.
func WithExactShortcut(enabled bool) Option {
	return func(o *options) {
		o.exactShortcut = enabled
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := crosscat.NewJSONLogger(slog.LevelInfo)
//	v, _ := crosscat.New(data, dims, crosscat.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithMetrics sets the metrics collector for operational metrics.
// Pass nil to disable metrics collection.
//
// Example with basic in-memory metrics:
//
//	collector := &crosscat.BasicMetricsCollector{}
//	v, _ := crosscat.New(data, dims, crosscat.WithMetrics(collector))
//	// ... later
//	stats := collector.GetStats()
func WithMetrics(collector MetricsCollector) Option {
	return func(o *options) {
		if collector == nil {
			collector = NoopMetricsCollector{}
		}
		o.metrics = collector
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		accuracy:      defaultAccuracy,
		exactShortcut: true,
		logger:        NoopLogger(),
		metrics:       NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if !o.seedSet {
		o.seed = rand.Uint64()
	}
	return o
}

// defaultAccuracy is the importance-sampling proposal multiplier.
const defaultAccuracy = 20
