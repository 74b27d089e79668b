package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestRouter(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	mem := NewMemory()
	mem.Put("mem://a", []byte("a"))

	r := NewRouter()
	r.Route("mem", mem)
	r.Route("", FetcherFunc(func(ctx context.Context, locator string) ([]byte, error) {
		return []byte("default:" + locator), nil
	}))

	data, err := r.Fetch(ctx, "mem://a")
	requireT.NoError(err)
	requireT.Equal([]byte("a"), data)

	data, err = r.Fetch(ctx, "relative/path")
	requireT.NoError(err)
	requireT.Equal([]byte("default:relative/path"), data)

	_, err = r.Fetch(ctx, "ftp://host/file")
	requireT.True(errors.Is(err, ErrUnsupportedScheme))
}

func TestMemory(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	m := NewMemory()
	_, err := m.Fetch(ctx, "missing")
	requireT.True(errors.Is(err, ErrNotFound))

	m.Put("a", []byte{1})
	data, err := m.Fetch(ctx, "a")
	requireT.NoError(err)
	requireT.Equal([]byte{1}, data)

	failure := errors.New("failure")
	m.Fail("a", failure)
	_, err = m.Fetch(ctx, "a")
	requireT.Equal(failure, err)

	m.Put("a", []byte{2})
	data, err = m.Fetch(ctx, "a")
	requireT.NoError(err)
	requireT.Equal([]byte{2}, data)

	requireT.Equal(3, m.Calls("a"))
	requireT.Equal(1, m.Calls("missing"))
}

func TestMemoryPause(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	m := NewMemory()
	m.Put("a", []byte{1})
	m.Pause()

	result := make(chan []byte, 1)
	go func() {
		data, err := m.Fetch(ctx, "a")
		if err != nil {
			panic(err)
		}
		result <- data
	}()

	requireT.Eventually(func() bool {
		return m.Waiting() == 1
	}, time.Second, time.Millisecond)

	m.Resume()
	requireT.Equal([]byte{1}, <-result)
	requireT.Zero(m.Waiting())
}

func TestMemoryPauseCanceled(t *testing.T) {
	requireT := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())

	m := NewMemory()
	m.Put("a", []byte{1})
	m.Pause()
	defer m.Resume()

	result := make(chan error, 1)
	go func() {
		_, err := m.Fetch(ctx, "a")
		result <- err
	}()

	requireT.Eventually(func() bool {
		return m.Waiting() == 1
	}, time.Second, time.Millisecond)

	cancel()
	requireT.True(errors.Is(<-result, context.Canceled))
}

func TestFile(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	root := t.TempDir()
	requireT.NoError(os.MkdirAll(filepath.Join(root, "1", "0"), 0o700))
	requireT.NoError(os.WriteFile(filepath.Join(root, "1", "0", "1.png"), []byte("tile"), 0o600))
	requireT.NoError(os.WriteFile(filepath.Join(root, "empty"), nil, 0o600))

	f := NewFile(root)

	data, err := f.Fetch(ctx, "1/0/1.png")
	requireT.NoError(err)
	requireT.Equal([]byte("tile"), data)

	data, err = f.Fetch(ctx, "file:///1/0/1.png")
	requireT.NoError(err)
	requireT.Equal([]byte("tile"), data)

	data, err = f.Fetch(ctx, "../../1/0/1.png")
	requireT.NoError(err)
	requireT.Equal([]byte("tile"), data)

	data, err = f.Fetch(ctx, "empty")
	requireT.NoError(err)
	requireT.Empty(data)

	_, err = f.Fetch(ctx, "1/0/2.png")
	requireT.True(errors.Is(err, ErrNotFound))

	_, err = f.Fetch(ctx, "1")
	requireT.Error(err)
}

func TestHTTP(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tile":
			_, _ = w.Write([]byte("tile"))
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(server.Close)

	h := NewHTTP(server.Client())

	data, err := h.Fetch(ctx, server.URL+"/tile")
	requireT.NoError(err)
	requireT.Equal([]byte("tile"), data)

	_, err = h.Fetch(ctx, server.URL+"/missing")
	requireT.True(errors.Is(err, ErrNotFound))

	_, err = h.Fetch(ctx, server.URL+"/broken")
	requireT.Error(err)
	requireT.False(errors.Is(err, ErrNotFound))
}

func TestHTTPCanceled(t *testing.T) {
	requireT := require.New(t)

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(server.Close)
	t.Cleanup(func() {
		close(release)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewHTTP(server.Client()).Fetch(ctx, server.URL)
	requireT.True(errors.Is(err, context.DeadlineExceeded))
}

func TestSQLite(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	writer, err := CreateSQLite(ctx, path)
	requireT.NoError(err)
	requireT.NoError(writer.Put(ctx, Address{Z: 2, X: 1, Y: 3}, []byte("tile")))
	requireT.NoError(writer.Close())

	db, err := OpenSQLite(ctx, path)
	requireT.NoError(err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	data, err := db.Fetch(ctx, "mbtiles:///2/1/3.png")
	requireT.NoError(err)
	requireT.Equal([]byte("tile"), data)

	var row uint32
	requireT.NoError(db.db.QueryRowContext(ctx,
		`SELECT tile_row FROM tiles WHERE zoom_level = 2 AND tile_column = 1`).Scan(&row))
	requireT.EqualValues(0, row)

	_, err = db.Fetch(ctx, "mbtiles:///2/1/2")
	requireT.True(errors.Is(err, ErrNotFound))

	_, err = db.Fetch(ctx, "mbtiles:///2/1")
	requireT.Error(err)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), "")
	require.Error(t, err)
}

func TestOpenSQLiteIsReadOnly(t *testing.T) {
	requireT := require.New(t)
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "tiles.mbtiles")
	_, err := OpenSQLite(ctx, path)
	requireT.Error(err)
	_, err = os.Stat(path)
	requireT.True(errors.Is(err, os.ErrNotExist))

	writer, err := CreateSQLite(ctx, path)
	requireT.NoError(err)
	requireT.NoError(writer.Close())

	db, err := OpenSQLite(ctx, path)
	requireT.NoError(err)
	t.Cleanup(func() {
		_ = db.Close()
	})

	requireT.Error(db.Put(ctx, Address{Z: 0, X: 0, Y: 0}, []byte("tile")))
	_, err = db.Fetch(ctx, "mbtiles:///0/0/0")
	requireT.True(errors.Is(err, ErrNotFound))
}

func TestRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedis(ctx, RedisConfig{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond})
	require.Error(t, err)
}

func TestRedisKey(t *testing.T) {
	require.Equal(t, "tile:3:2:1", redisKey(Address{Z: 3, X: 2, Y: 1}))
}

func TestParseAddress(t *testing.T) {
	requireT := require.New(t)

	a, err := ParseAddress("https://tiles.example.com/4/5/6.png")
	requireT.NoError(err)
	requireT.Equal(Address{Z: 4, X: 5, Y: 6}, a)
	requireT.Equal("4/5/6", a.String())

	a, err = ParseAddress("redis:///0/0/0")
	requireT.NoError(err)
	requireT.Equal(Address{}, a)

	for _, locator := range []string{
		"redis:///1/2/0",
		"redis:///1/0/2",
		"redis:///1/0",
		"redis:///a/0/0",
		"redis:///-1/0/0",
	} {
		_, err := ParseAddress(locator)
		requireT.Error(err, locator)
	}
}
