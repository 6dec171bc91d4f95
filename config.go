package oldgen

import "go.uber.org/zap"

// Tunable constants, named after spec.md §6's table of compile-time
// constants. The Default* values are the Config defaults NewConfig
// fills in; the With* options override them per GC, which is how
// cmd/oldgendemo sets the segment size from a flag.
const (
	// DefaultSegmentSize is the size in bytes of one aligned segment.
	DefaultSegmentSize = 1 << 20 // 1 MiB, matches the teacher's span/segment granularity
	// DefaultMinLog2 is the smallest size-class exponent (MIN_LOG2).
	DefaultMinLog2 = 4 // 16-byte minimum block
	// DefaultAllocaCount is the default Config.AllocaCount (ALLOCA_CNT).
	// Nothing else in the package reads it: the capability count is set
	// by Init's numCaps and grown by AddCapabilities.
	DefaultAllocaCount = 32
	// MarkArrayChunkLength is CHUNK in spec.md §4.3: the maximum number of
	// pointer-array slots enqueued per ARRAY mark-queue entry.
	MarkArrayChunkLength = 128
	// DefaultMaxFree bounds the global free-segment pool (spec.md §4.8).
	DefaultMaxFree = 256
)

// Config collects the tunables and collaborators a GC needs at Init time.
// Zero value is not usable; use NewConfig.
type Config struct {
	SegmentSize   int
	MinLog2       uint
	AllocaCount   int
	MaxFree       int64
	NumSizeClasses int

	Oracle         HeapOracle
	Pauser         Pauser
	BlockAllocator BlockAllocator
	Scavenger      Scavenger

	Logger  *zap.Logger
	Metrics *Metrics
}

// Option mutates a Config. The functional-options shape mirrors the
// knob surface spec.md §6 calls out as compile-time constants; here they
// are runtime-configurable so cmd/oldgendemo and tests can exercise
// multiple configurations in one process.
type Option func(*Config)

// NewConfig builds a Config with the package defaults plus the given
// collaborators, which are mandatory (there is no sensible default for
// an external oracle or pause mechanism).
func NewConfig(oracle HeapOracle, pauser Pauser, blockAlloc BlockAllocator, opts ...Option) *Config {
	cfg := &Config{
		SegmentSize:    DefaultSegmentSize,
		MinLog2:        DefaultMinLog2,
		AllocaCount:    DefaultAllocaCount,
		MaxFree:        DefaultMaxFree,
		NumSizeClasses: 16,
		Oracle:         oracle,
		Pauser:         pauser,
		BlockAllocator: blockAlloc,
		Scavenger:      noopScavenger{},
		Logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics()
	}
	return cfg
}

// WithSegmentSize overrides DefaultSegmentSize.
func WithSegmentSize(n int) Option { return func(c *Config) { c.SegmentSize = n } }

// WithMinLog2 overrides DefaultMinLog2.
func WithMinLog2(n uint) Option { return func(c *Config) { c.MinLog2 = n } }

// WithAllocaCount overrides DefaultAllocaCount.
func WithAllocaCount(n int) Option { return func(c *Config) { c.AllocaCount = n } }

// WithMaxFree overrides DefaultMaxFree.
func WithMaxFree(n int64) Option { return func(c *Config) { c.MaxFree = n } }

// WithNumSizeClasses sets how many size-classed pools the heap keeps.
func WithNumSizeClasses(n int) Option { return func(c *Config) { c.NumSizeClasses = n } }

// WithScavenger installs the young-generation scavenger collaborator
// (spec.md §9, "todo_link" open question).
func WithScavenger(s Scavenger) Option { return func(c *Config) { c.Scavenger = s } }

// WithLogger installs a structured logger. Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option { return func(c *Config) { c.Logger = l } }

// WithMetrics installs a pre-constructed Metrics (e.g. one registered
// against a non-default Prometheus registry). Defaults to NewMetrics().
func WithMetrics(m *Metrics) Option { return func(c *Config) { c.Metrics = m } }

type noopScavenger struct{}

func (noopScavenger) NotifyDirty(*Segment) {}
