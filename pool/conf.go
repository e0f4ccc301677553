package pool

import (
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/benny-edlund/task-pool/alloc"
)

// Option configures a Pool at construction time.
type Option func(*config)

type config struct {
	workerCount   int
	queueCapacity int
	blockOnFull   bool
	priority      bool

	allocator alloc.Provider
	logger    *zap.Logger
	limiter   *rate.Limiter

	maxAttempts  int
	retryInitial time.Duration
	retryMax     time.Duration

	pinWorkers     bool
	shutdownPolicy ShutdownPolicy
}

func defaultConfig() *config {
	return &config{
		workerCount:    runtime.GOMAXPROCS(0),
		allocator:      alloc.Heap(),
		logger:         zap.NewNop(),
		maxAttempts:    1,
		retryInitial:   100 * time.Millisecond,
		retryMax:       5 * time.Second,
		shutdownPolicy: Graceful,
	}
}

// WithWorkerCount sets the number of workers. The count is fixed for the
// pool's lifetime unless Resize is called. Defaults to runtime.GOMAXPROCS(0).
func WithWorkerCount(count int) Option {
	return func(cfg *config) {
		if count > 0 {
			cfg.workerCount = count
		}
	}
}

// WithQueueCapacity bounds the task queue. Submissions beyond the bound fail
// with ErrQueueFull, or block when WithBlockOnFull is also set. The default
// queue is unbounded.
func WithQueueCapacity(capacity int) Option {
	return func(cfg *config) {
		if capacity > 0 {
			cfg.queueCapacity = capacity
		}
	}
}

// WithBlockOnFull makes Submit wait for queue space instead of failing with
// ErrQueueFull. Only meaningful together with WithQueueCapacity.
func WithBlockOnFull() Option {
	return func(cfg *config) {
		cfg.blockOnFull = true
	}
}

// WithPriorityScheduling orders the queue by the priority passed to Submit
// via WithPriority: lower values run first, FIFO among equals. Without this
// option the queue is plain FIFO and per-task priorities are ignored.
func WithPriorityScheduling() Option {
	return func(cfg *config) {
		cfg.priority = true
	}
}

// WithAllocator injects the allocation strategy used for the pool's internal
// bookkeeping records. Defaults to alloc.Heap().
func WithAllocator(provider alloc.Provider) Option {
	return func(cfg *config) {
		if provider != nil {
			cfg.allocator = provider
		}
	}
}

// WithRetryPolicy retries failing task bodies up to maxAttempts times with
// exponential backoff starting at initialDelay. Cancellation is never
// retried. Default is a single attempt.
func WithRetryPolicy(maxAttempts int, initialDelay time.Duration) Option {
	return func(cfg *config) {
		if maxAttempts > 0 {
			cfg.maxAttempts = maxAttempts
		}
		if initialDelay > 0 {
			cfg.retryInitial = initialDelay
		}
	}
}

// WithRateLimit caps task starts at tasksPerSecond with the given burst.
// Useful when tasks call out to an external service.
func WithRateLimit(tasksPerSecond float64, burst int) Option {
	return func(cfg *config) {
		if tasksPerSecond > 0 && burst > 0 {
			cfg.limiter = rate.NewLimiter(rate.Limit(tasksPerSecond), burst)
		}
	}
}

// WithCPUAffinity locks each worker to an OS thread and pins it to a core on
// platforms that support it. Intended for CPU-bound workloads.
func WithCPUAffinity() Option {
	return func(cfg *config) {
		cfg.pinWorkers = true
	}
}

// WithLogger sets the structured logger for pool lifecycle events, recovered
// panics and retry notices. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithShutdownPolicy sets the policy used by Close. Defaults to Graceful.
func WithShutdownPolicy(policy ShutdownPolicy) Option {
	return func(cfg *config) {
		cfg.shutdownPolicy = policy
	}
}

// SubmitOption adjusts a single submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	priority int
	token    *Token
}

// WithPriority assigns the task's scheduling priority; lower values run
// first. Ignored unless the pool was built with WithPriorityScheduling.
func WithPriority(priority int) SubmitOption {
	return func(o *submitOptions) {
		o.priority = priority
	}
}

// WithToken associates the task with a caller-owned cancellation token,
// typically shared across a group of related tasks. Without it the task
// gets its own token, reachable through Future.Cancel.
func WithToken(token *Token) SubmitOption {
	return func(o *submitOptions) {
		if token != nil {
			o.token = token
		}
	}
}
