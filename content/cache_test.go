package content

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/tilestream/checksum"
	"github.com/outofforest/tilestream/decode"
	"github.com/outofforest/tilestream/source"
)

const (
	waitFor = 5 * time.Second
	tick    = time.Millisecond
)

func waitForState(requireT *require.Assertions, c *Cache, locator string, state State) {
	requireT.Eventually(func() bool {
		return c.State(Key(locator)) == state
	}, waitFor, tick)
}

func TestKeyIsStable(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(Key("https://example.com/a.png"), Key("https://example.com/a.png"))
	requireT.NotEqual(Key("https://example.com/a.png"), Key("https://example.com/b.png"))
}

func TestNewRequiresFetcher(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestLoadDeduplicates(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	src := source.NewMemory()
	src.Put("a", []byte("content"))
	src.Pause()

	c := RunInTest(t, Config{Fetcher: src})

	key1 := c.Load("a")
	key2 := c.Load("a")
	requireT.Equal(key1, key2)
	requireT.Equal(1, c.Len())
	requireT.EqualValues(2, c.Refs(key1))

	requireT.Eventually(func() bool {
		return src.Waiting() == 1
	}, waitFor, tick)
	requireT.Equal(StatePending, c.State(key1))

	_, exists := c.TryGet(key1)
	requireT.False(exists)

	src.Resume()
	payload, err := c.GetAsync(key1).Wait(ctx)
	requireT.NoError(err)
	requireT.Equal([]byte("content"), payload.Data)
	requireT.Equal("a", payload.Locator)
	requireT.Equal(key1, payload.Key)
	requireT.Equal(checksum.Sum([]byte("content")), payload.Digest)

	c.Load("a")
	requireT.Equal(1, src.Calls("a"))

	stats := c.Stats()
	requireT.EqualValues(3, stats.Loads)
	requireT.EqualValues(2, stats.Hits)
	requireT.EqualValues(1, stats.Fetches)
}

func TestConcurrentLoadsFetchOnce(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	src := source.NewMemory()
	src.Put("a", []byte("a"))
	src.Put("b", []byte("b"))

	c := RunInTest(t, Config{Fetcher: src, Workers: 8})

	wg := sync.WaitGroup{}
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Load("a")
			c.Load("b")
		}()
	}
	wg.Wait()

	for _, locator := range []string{"a", "b"} {
		payload, err := c.GetAsync(Key(locator)).Wait(ctx)
		requireT.NoError(err)
		requireT.Equal([]byte(locator), payload.Data)
		requireT.Equal(1, src.Calls(locator))
		requireT.EqualValues(16, c.Refs(Key(locator)))
	}
}

func TestTryGetReady(t *testing.T) {
	requireT := require.New(t)

	src := source.NewMemory()
	src.Put("a", []byte("content"))
	c := RunInTest(t, Config{Fetcher: src})

	key := c.Load("a")
	waitForState(requireT, c, "a", StateReady)

	payload, exists := c.TryGet(key)
	requireT.True(exists)
	requireT.Equal([]byte("content"), payload.Data)

	f := c.GetAsync(key)
	requireT.True(f.Resolved())
	payload, err := f.Result()
	requireT.NoError(err)
	requireT.Equal([]byte("content"), payload.Data)
}

func TestGetAsyncUnknownKey(t *testing.T) {
	requireT := require.New(t)

	c := RunInTest(t, Config{Fetcher: source.NewMemory()})

	f := c.GetAsync(Key("missing"))
	requireT.True(f.Resolved())
	_, err := f.Result()
	requireT.True(errors.Is(err, ErrUnknownKey))
}

func TestEvictPendingCancelsFetch(t *testing.T) {
	requireT := require.New(t)

	src := source.NewMemory()
	src.Put("a", []byte("content"))
	src.Pause()

	c := RunInTest(t, Config{Fetcher: src})

	key := c.Load("a")
	requireT.Eventually(func() bool {
		return src.Waiting() == 1
	}, waitFor, tick)

	f := c.GetAsync(key)
	requireT.True(c.TryEvict(key))
	requireT.False(c.TryEvict(key))

	_, err := f.Result()
	requireT.True(errors.Is(err, ErrEvicted))

	requireT.Eventually(func() bool {
		return src.Waiting() == 0
	}, waitFor, tick)

	_, exists := c.TryGet(key)
	requireT.False(exists)
	requireT.Equal(StateUnknown, c.State(key))
	requireT.Zero(c.Len())
	requireT.Zero(c.Stats().Fetches)
}

func TestEvictBeforeFetchStartsIgnoresResult(t *testing.T) {
	requireT := require.New(t)

	src := source.NewMemory()
	src.Put("a", []byte("content"))

	c, err := New(Config{Fetcher: src})
	requireT.NoError(err)

	key := c.Load("a")
	requireT.True(c.TryEvict(key))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	<-done

	requireT.Zero(src.Calls("a"))
	_, exists := c.TryGet(key)
	requireT.False(exists)
}

func TestEvictReleasesReferences(t *testing.T) {
	requireT := require.New(t)

	src := source.NewMemory()
	src.Put("a", []byte("content"))
	c := RunInTest(t, Config{Fetcher: src})

	key := c.Load("a")
	c.Load("a")
	waitForState(requireT, c, "a", StateReady)

	requireT.False(c.TryEvict(key))
	_, exists := c.TryGet(key)
	requireT.True(exists)

	requireT.True(c.TryEvict(key))
	_, exists = c.TryGet(key)
	requireT.False(exists)
	requireT.EqualValues(1, c.Stats().Evictions)

	c.Load("a")
	waitForState(requireT, c, "a", StateReady)
	requireT.Equal(2, src.Calls("a"))
}

func TestFailureAndReload(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	src := source.NewMemory()
	c := RunInTest(t, Config{Fetcher: src})

	key := c.Load("a")
	_, err := c.GetAsync(key).Wait(ctx)
	requireT.True(errors.Is(err, source.ErrNotFound))
	requireT.Equal(StateFailed, c.State(key))
	requireT.True(errors.Is(c.Err(key), source.ErrNotFound))
	requireT.EqualValues(1, c.Stats().Failures)

	_, exists := c.TryGet(key)
	requireT.False(exists)

	requireT.False(c.Reload(Key("unknown")))

	src.Put("a", []byte("content"))
	requireT.True(c.Reload(key))
	payload, err := c.GetAsync(key).Wait(ctx)
	requireT.NoError(err)
	requireT.Equal([]byte("content"), payload.Data)
	requireT.False(c.Reload(key))
	requireT.NoError(c.Err(key))
}

func TestLoadRestartsFailedFetch(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	src := source.NewMemory()
	c := RunInTest(t, Config{Fetcher: src})

	key := c.Load("a")
	_, err := c.GetAsync(key).Wait(ctx)
	requireT.Error(err)

	src.Put("a", []byte("content"))
	c.Load("a")
	payload, err := c.GetAsync(key).Wait(ctx)
	requireT.NoError(err)
	requireT.Equal([]byte("content"), payload.Data)
	requireT.EqualValues(2, c.Refs(key))
}

func TestDecoderIsApplied(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	img := image.NewGray(image.Rect(0, 0, 2, 2))
	buf := &bytes.Buffer{}
	requireT.NoError(png.Encode(buf, img))

	src := source.NewMemory()
	src.Put("a.png", buf.Bytes())
	src.Put("broken.png", buf.Bytes()[:10])

	d, err := decode.New()
	requireT.NoError(err)
	t.Cleanup(d.Close)

	c := RunInTest(t, Config{Fetcher: src, Decoder: d})

	payload, err := c.GetAsync(c.Load("a.png")).Wait(ctx)
	requireT.NoError(err)
	requireT.Equal("png", payload.Format)
	requireT.Equal(img.Bounds(), payload.Image.Bounds())

	_, err = c.GetAsync(c.Load("broken.png")).Wait(ctx)
	requireT.Error(err)
}

func TestFutureThen(t *testing.T) {
	requireT := require.New(t)

	src := source.NewMemory()
	src.Put("a", []byte("content"))
	src.Pause()
	c := RunInTest(t, Config{Fetcher: src})

	key := c.Load("a")
	results := make(chan []byte, 2)
	c.GetAsync(key).Then(func(payload Payload, err error) {
		results <- payload.Data
	})

	src.Resume()
	requireT.Equal([]byte("content"), <-results)

	c.GetAsync(key).Then(func(payload Payload, err error) {
		results <- payload.Data
	})
	requireT.Equal([]byte("content"), <-results)
}

func TestUnrelatedKeysDoNotBlock(t *testing.T) {
	requireT := require.New(t)
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	slow := source.NewMemory()
	slow.Put("slow", []byte("slow"))
	slow.Pause()
	defer slow.Resume()

	fast := source.NewMemory()
	fast.Put("fast", []byte("fast"))

	r := source.NewRouter()
	r.Route("", source.FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		if locator == "slow" {
			return slow.Fetch(ctx, locator)
		}
		return fast.Fetch(ctx, locator)
	}))

	c := RunInTest(t, Config{Fetcher: r, Workers: 2})

	c.Load("slow")
	requireT.Eventually(func() bool {
		return slow.Waiting() == 1
	}, waitFor, tick)

	payload, err := c.GetAsync(c.Load("fast")).Wait(ctx)
	requireT.NoError(err)
	requireT.Equal([]byte("fast"), payload.Data)
	requireT.Equal(StatePending, c.State(Key("slow")))
}

func TestStateString(t *testing.T) {
	require.Equal(t, "Ready", StateReady.String())
	require.Equal(t, "Unknown", State(100).String())
}
