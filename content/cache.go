package content

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash"
	"github.com/outofforest/logger"
	"github.com/outofforest/mass"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/outofforest/tilestream/checksum"
	"github.com/outofforest/tilestream/decode"
	"github.com/outofforest/tilestream/queue"
	"github.com/outofforest/tilestream/source"
	"github.com/outofforest/tilestream/types"
)

const (
	numOfShards    = 16
	massSize       = 64
	defaultWorkers = 4
)

var (
	// ErrUnknownKey is returned when cache does not contain the entry.
	ErrUnknownKey = errors.New("unknown content key")

	// ErrEvicted is returned by futures of entries evicted before fetch completed.
	ErrEvicted = errors.New("content evicted")
)

// State is the state of the cache entry.
type State uint8

// Entry states.
const (
	StateUnknown State = iota
	StatePending
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateReady:
		return "Ready"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Payload is the fetched and decoded content. Digest is computed from Data when the fetch completes and is verified
// by consumers before Data is used.
type Payload struct {
	Key     types.ContentKey
	Locator string
	Data    []byte
	Image   image.Image
	Format  string
	Digest  types.Digest
}

// Config stores cache configuration.
type Config struct {
	// Fetcher downloads content bytes.
	Fetcher source.Fetcher

	// Decoder decodes fetched bytes. Defaults to decode.Raw.
	Decoder decode.Decoder

	// Workers is the number of concurrent fetches.
	Workers int
}

// Stats reports cache counters.
type Stats struct {
	Loads     uint64
	Hits      uint64
	Fetches   uint64
	Failures  uint64
	Evictions uint64
}

// Key computes content key of the locator.
func Key(locator string) types.ContentKey {
	return types.ContentKey(xxhash.Sum64([]byte(locator)))
}

// New creates new content cache.
func New(config Config) (*Cache, error) {
	if config.Fetcher == nil {
		return nil, errors.New("fetcher is not configured")
	}
	if config.Decoder == nil {
		config.Decoder = decode.Raw
	}
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}

	c := &Cache{
		config:   config,
		requests: queue.New[request](),
	}
	for i := range c.shards {
		s := &c.shards[i]
		s.entries = map[types.ContentKey]*entry{}
		s.massEntry = mass.New[entry](massSize)
		s.massFuture = mass.New[Future](massSize)
	}
	return c, nil
}

// Cache deduplicates asynchronous content fetches by key. Each Load acquires a reference and each TryEvict releases
// one. Entry is removed when the last reference is released.
type Cache struct {
	config   Config
	shards   [numOfShards]shard
	requests *queue.Queue[request]

	loads     atomic.Uint64
	hits      atomic.Uint64
	fetches   atomic.Uint64
	failures  atomic.Uint64
	evictions atomic.Uint64
}

// Run runs fetch workers.
func (c *Cache) Run(ctx context.Context) error {
	workCh := make(chan request)
	return parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("dispatcher", parallel.Fail, func(ctx context.Context) error {
			defer close(workCh)

			dispatch := func(r request) {
				select {
				case workCh <- r:
				case <-ctx.Done():
					c.complete(ctx, r, Payload{}, errors.WithStack(ctx.Err()))
				}
			}

			for {
				c.requests.Drain(dispatch)

				select {
				case <-ctx.Done():
					c.requests.Drain(dispatch)
					return errors.WithStack(ctx.Err())
				case <-c.requests.Notify():
				}
			}
		})
		for i := range c.config.Workers {
			spawn(fmt.Sprintf("worker-%02d", i), parallel.Fail, func(ctx context.Context) error {
				for r := range workCh {
					c.fetch(ctx, r)
				}
				return errors.WithStack(ctx.Err())
			})
		}
		return nil
	})
}

// Load starts fetching content of the locator unless it is pending or ready already, and acquires reference to the
// entry.
func (c *Cache) Load(locator string) types.ContentKey {
	key := Key(locator)
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	c.loads.Add(1)
	if e, exists := s.entries[key]; exists {
		e.Refs++
		if e.State == StateFailed {
			instrumentLoad(false)
			c.start(s, e)
		} else {
			instrumentLoad(true)
			c.hits.Add(1)
		}
		return key
	}

	instrumentLoad(false)
	cacheEntries.Inc()

	e := s.massEntry.New()
	e.Key = key
	e.Locator = locator
	e.Refs = 1
	s.entries[key] = e
	c.start(s, e)

	return key
}

// TryGet returns payload if it is ready.
func (c *Cache) TryGet(key types.ContentKey) (Payload, bool) {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.State != StateReady {
		return Payload{}, false
	}
	return e.Payload, true
}

// GetAsync returns future resolved when fetch completes. For ready and failed entries returned future is resolved
// already.
func (c *Cache) GetAsync(key types.ContentKey) *Future {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return resolvedFuture(Payload{}, errors.Wrapf(ErrUnknownKey, "key: %d", key))
	}
	return e.Future
}

// TryEvict releases reference to the entry. When the last reference is released, entry is removed and pending fetch
// is canceled. It returns true if entry has been removed.
func (c *Cache) TryEvict(key types.ContentKey) bool {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return false
	}
	if e.Refs > 1 {
		e.Refs--
		return false
	}

	delete(s.entries, key)
	cacheEntries.Dec()
	instrumentEviction()
	c.evictions.Add(1)

	if e.State == StatePending {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Future.resolve(Payload{}, errors.Wrapf(ErrEvicted, "key: %d", key))
	}
	e.State = StateUnknown
	e.Refs = 0
	e.Payload = Payload{}
	e.Cancel = nil

	return true
}

// Reload restarts fetch of failed entry. It returns true if fetch has been restarted.
func (c *Cache) Reload(key types.ContentKey) bool {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists || e.State != StateFailed {
		return false
	}
	c.start(s, e)
	return true
}

// State returns state of the entry.
func (c *Cache) State(key types.ContentKey) State {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return StateUnknown
	}
	return e.State
}

// Err returns the error of the last failed fetch of the entry.
func (c *Cache) Err(key types.ContentKey) error {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return errors.Wrapf(ErrUnknownKey, "key: %d", key)
	}
	return e.Err
}

// Refs returns the number of references held to the entry.
func (c *Cache) Refs(key types.ContentKey) uint64 {
	s := c.shard(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[key]
	if !exists {
		return 0
	}
	return e.Refs
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	var n int
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats returns cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Loads:     c.loads.Load(),
		Hits:      c.hits.Load(),
		Fetches:   c.fetches.Load(),
		Failures:  c.failures.Load(),
		Evictions: c.evictions.Load(),
	}
}

func (c *Cache) shard(key types.ContentKey) *shard {
	return &c.shards[uint64(key)%numOfShards]
}

// start must be called under the lock of the shard.
func (c *Cache) start(s *shard, e *entry) {
	e.Attempt++
	e.State = StatePending
	e.Err = nil
	e.Future = newFuture(s.massFuture)
	c.requests.Push(request{Entry: e, Attempt: e.Attempt})
}

func (c *Cache) fetch(ctx context.Context, r request) {
	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := c.shard(r.Entry.Key)
	s.mu.Lock()
	if !s.current(r) {
		s.mu.Unlock()
		return
	}
	r.Entry.Cancel = cancel
	locator := r.Entry.Locator
	s.mu.Unlock()

	start := time.Now()
	payload, err := c.load(fetchCtx, r.Entry.Key, locator)
	instrumentFetch(err, time.Since(start).Seconds())

	c.complete(ctx, r, payload, err)
}

func (c *Cache) load(ctx context.Context, key types.ContentKey, locator string) (Payload, error) {
	data, err := c.config.Fetcher.Fetch(ctx, locator)
	if err != nil {
		return Payload{}, errors.Wrapf(err, "fetching %q failed", locator)
	}

	res, err := c.config.Decoder.Decode(data)
	if err != nil {
		return Payload{}, errors.Wrapf(err, "decoding %q failed", locator)
	}

	return Payload{
		Key:     key,
		Locator: locator,
		Data:    res.Data,
		Image:   res.Image,
		Format:  res.Format,
		Digest:  checksum.Sum(res.Data),
	}, nil
}

// complete ignores results of evicted and restarted entries.
func (c *Cache) complete(ctx context.Context, r request, payload Payload, err error) {
	s := c.shard(r.Entry.Key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.current(r) {
		return
	}

	e := r.Entry
	e.Cancel = nil
	c.fetches.Add(1)
	if err != nil {
		c.failures.Add(1)
		e.State = StateFailed
		e.Err = err
		logger.Get(ctx).Warn("Fetching content failed",
			zap.String("locator", e.Locator),
			zap.Uint64("key", uint64(e.Key)),
			zap.Error(err))
		e.Future.resolve(Payload{}, err)
		return
	}

	e.State = StateReady
	e.Payload = payload
	e.Future.resolve(payload, nil)
}

type request struct {
	Entry   *entry
	Attempt uint64
}

type entry struct {
	Key     types.ContentKey
	Locator string
	State   State
	Refs    uint64
	Attempt uint64
	Payload Payload
	Err     error
	Future  *Future
	Cancel  context.CancelFunc
}

type shard struct {
	mu         sync.Mutex
	entries    map[types.ContentKey]*entry
	massEntry  *mass.Mass[entry]
	massFuture *mass.Mass[Future]
}

// current must be called under the lock of the shard.
func (s *shard) current(r request) bool {
	e, exists := s.entries[r.Entry.Key]
	return exists && e == r.Entry && e.Attempt == r.Attempt && e.State == StatePending
}
