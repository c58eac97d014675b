package eventstore

// Store wires a LogStore, KVCache, Bus and variant Registry into the
// cohesive pipeline spec.md describes: Save (C6), aggregate reads (C5), and
// — via SubscribableStore — subscription and replay (C7). Namespace scopes
// this store's durable-consumer queue names so multiple logical stores can
// share a bus without cross-consumption (spec.md §4.4).
type Store struct {
	Namespace string

	log      LogStore
	cache    KVCache
	bus      Bus
	registry *Registry
	codec    *Codec
	clock    Clock
	logger   Logger
}

// StoreOption configures a Store at construction time.
type StoreOption func(*Store)

// WithClock overrides the default SystemClock, primarily for tests.
func WithClock(c Clock) StoreOption {
	return func(s *Store) { s.clock = c }
}

// WithLogger overrides the default NopLogger.
func WithLogger(l Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// NewStore constructs a Store over the three capability ports plus the
// variant registry used to encode/decode envelopes.
func NewStore(namespace string, log LogStore, cache KVCache, bus Bus, registry *Registry, opts ...StoreOption) *Store {
	s := &Store{
		Namespace: namespace,
		log:       log,
		cache:     cache,
		bus:       bus,
		registry:  registry,
		codec:     NewCodec(registry),
		clock:     SystemClock{},
		logger:    NopLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log returns the underlying LogStore, for callers that need direct access
// (e.g. the unifier, or a custom read path not expressed as an Aggregate).
func (s *Store) Log() LogStore { return s.log }

// Cache returns the underlying KVCache.
func (s *Store) Cache() KVCache { return s.cache }

// Bus returns the underlying Bus.
func (s *Store) Bus() Bus { return s.bus }

// Registry returns the variant registry this store's codec resolves
// against.
func (s *Store) Registry() *Registry { return s.registry }
