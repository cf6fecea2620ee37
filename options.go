package cadence

import "time"

const (
	defaultBatchSize      = 10
	defaultPollInterval   = 30 * time.Second
	defaultClaimTTL       = 5 * time.Minute
	defaultAdvanceTimeout = 30 * time.Second
	defaultDueCheck       = 0
)

// Config defines how the engine schedules, advances and dispatches enrollments.
type Config struct {
	BatchSize         int
	PollInterval      time.Duration
	Location          *time.Location
	DefaultTime       TimeOfDay
	Clock             Clock
	IDGenerator       IDGenerator
	Dispatcher        Dispatcher
	Logger            Logger
	Metrics           Metrics
	RetryPolicy       RetryPolicy
	FailureClassifier FailureClassifier
	ClaimTTL          time.Duration
	AdvanceTimeout    time.Duration
	DueInterval       time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.DefaultTime == (TimeOfDay{}) {
		c.DefaultTime = DefaultTimeOfDay
	}
	if c.Clock == nil {
		c.Clock = SystemClock{}
	}
	if c.IDGenerator == nil {
		c.IDGenerator = UUIDGenerator{}
	}
	if c.Dispatcher == nil {
		c.Dispatcher = NopDispatcher{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.FailureClassifier == nil {
		c.FailureClassifier = defaultFailureClassifier
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = defaultClaimTTL
	}
	if c.AdvanceTimeout < 0 {
		c.AdvanceTimeout = 0
	} else if c.AdvanceTimeout == 0 {
		c.AdvanceTimeout = defaultAdvanceTimeout
	}
	if c.DueInterval <= 0 {
		c.DueInterval = defaultDueCheck
	}

	return c
}

func (c Config) stepClock() StepClock {
	return StepClock{Location: c.Location, DefaultTime: c.DefaultTime}
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}

	return cfg.withDefaults()
}

// Option configures engine behavior.
type Option func(*Config)

// WithBatchSize sets the default number of enrollments processed per batch.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithPollInterval sets the delay between polls in Scheduler.Run.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.PollInterval = interval
	}
}

// WithLocation sets the time zone used for step day and time arithmetic.
func WithLocation(loc *time.Location) Option {
	return func(c *Config) {
		c.Location = loc
	}
}

// WithDefaultTime sets the time of day for steps without an explicit time.
func WithDefaultTime(tod TimeOfDay) Option {
	return func(c *Config) {
		c.DefaultTime = tod
	}
}

// WithClock sets the engine clock.
func WithClock(clock Clock) Option {
	return func(c *Config) {
		c.Clock = clock
	}
}

// WithIDGenerator sets the generator for enrollment and activity ids.
func WithIDGenerator(gen IDGenerator) Option {
	return func(c *Config) {
		c.IDGenerator = gen
	}
}

// WithDispatcher sets the automation engine dispatcher.
func WithDispatcher(d Dispatcher) Option {
	return func(c *Config) {
		c.Dispatcher = d
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithMetrics sets the engine metrics recorder.
func WithMetrics(metrics Metrics) Option {
	return func(c *Config) {
		c.Metrics = metrics
	}
}

// WithRetryPolicy sets the retry ceiling and backoff for failed advances.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Config) {
		c.RetryPolicy = policy
	}
}

// WithFailureClassifier sets the failure classifier for retry/dead-letter decisions.
func WithFailureClassifier(classifier FailureClassifier) Option {
	return func(c *Config) {
		c.FailureClassifier = classifier
	}
}

// WithClaimTTL sets how long a claimed enrollment stays leased to one runner.
func WithClaimTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.ClaimTTL = ttl
	}
}

// WithAdvanceTimeout sets a per-enrollment advance timeout. A negative value disables it.
func WithAdvanceTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.AdvanceTimeout = timeout
	}
}

// WithDueInterval sets the minimum interval between due count samples.
// Use a positive value to enable sampling or zero to keep it disabled.
// The default is disabled.
func WithDueInterval(interval time.Duration) Option {
	return func(c *Config) {
		c.DueInterval = interval
	}
}
