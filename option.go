package volkv

const (
	// DefaultCacheCapacity bounds the page cache in node images, not bytes.
	DefaultCacheCapacity = 200_000

	// MinCacheCapacity must hold a full root-to-leaf path plus the siblings
	// touched by a structural delete.
	MinCacheCapacity = 16
)

// Options configures volume behavior.
type Options struct {
	cacheCapacity int
	logger        Logger
	autoDelete    bool
}

func defaultOptions() Options {
	return Options{
		cacheCapacity: DefaultCacheCapacity,
		logger:        DiscardLogger{},
	}
}

// Option configures a volume using the functional options pattern.
type Option func(*Options)

// WithCacheCapacity sets the maximum number of node images kept in memory.
// Values below MinCacheCapacity are raised to it.
func WithCacheCapacity(n int) Option {
	return func(o *Options) {
		o.cacheCapacity = n
	}
}

// WithLogger routes diagnostics (expiry-worker failures, eviction flush
// errors) to the given logger instead of discarding them.
func WithLogger(l Logger) Option {
	return func(o *Options) {
		o.logger = l
	}
}

// WithAutoDelete starts the TTL expiry worker as part of Open.
func WithAutoDelete() Option {
	return func(o *Options) {
		o.autoDelete = true
	}
}
