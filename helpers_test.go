package interceptor

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cygnal-app/interceptor/cache"
	"github.com/cygnal-app/interceptor/settings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// upstream headers used by the tile server, changeable between requests
type tileHeaders struct {
	mu           sync.Mutex
	cacheControl string
	expires      string
	status       int
}

func (h *tileHeaders) set(cacheControl, expires string, status int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cacheControl = cacheControl
	h.expires = expires
	h.status = status
}

func (h *tileHeaders) get() (string, string, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cacheControl, h.expires, h.status
}

type fixture struct {
	t        *testing.T
	store    cache.Store
	settings *settings.Static
	clock    *clock

	app   *httptest.Server
	tiles *httptest.Server

	appRequests  atomic.Int64
	tileRequests atomic.Int64
	tileHeaders  tileHeaders
	missingAsset atomic.Value
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:     t,
		store: cache.NewMemoryStore(),
		clock: newClock(),
	}
	f.tileHeaders.set("max-age=60", "", http.StatusOK)

	tileRouter := chi.NewRouter()
	tileRouter.Get("/{z}/{x}/{y}.png", func(w http.ResponseWriter, r *http.Request) {
		n := f.tileRequests.Add(1)
		cc, expires, status := f.tileHeaders.get()
		if cc != "" {
			w.Header().Set("Cache-Control", cc)
		}
		if expires != "" {
			w.Header().Set("Expires", expires)
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("X-Tile-Server", "test")
		w.WriteHeader(status)
		fmt.Fprintf(w, "tile %s/%s/%s #%d", chi.URLParam(r, "z"), chi.URLParam(r, "x"), chi.URLParam(r, "y"), n)
	})
	f.tiles = httptest.NewServer(tileRouter)
	t.Cleanup(f.tiles.Close)

	appRouter := chi.NewRouter()
	appRouter.Get("/", func(w http.ResponseWriter, r *http.Request) {
		f.appRequests.Add(1)
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html>index</html>"))
	})
	appRouter.Get("/static/{name}", func(w http.ResponseWriter, r *http.Request) {
		f.appRequests.Add(1)
		if missing, _ := f.missingAsset.Load().(string); chi.URLParam(r, "name") == missing {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("asset " + chi.URLParam(r, "name")))
	})
	api := func(w http.ResponseWriter, r *http.Request) {
		f.appRequests.Add(1)
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Write([]byte(`{"method":"` + r.Method + `"}`))
	}
	appRouter.HandleFunc("/api/*", api)
	appRouter.HandleFunc("/apiv2/*", api)
	f.app = httptest.NewServer(appRouter)
	t.Cleanup(f.app.Close)

	s, err := settings.NewStatic(settings.TileServer{Name: "test", URL: f.tiles.URL + "/{z}/{x}/{y}.png"})
	require.NoError(t, err)
	f.settings = s
	return f
}

func (f *fixture) config(version string) Config {
	logger := zerolog.Nop()
	return Config{
		Store:     f.store,
		Settings:  f.settings,
		AppOrigin: f.app.URL,
		AppName:   "cygnal",
		Version:   version,
		Manifest:  []string{"static/main.js", "/static/style.css"},
		Logger:    &logger,
		Now:       f.clock.Now,
	}
}

func (f *fixture) interceptor(version string) *Interceptor {
	f.t.Helper()
	i, err := New(f.config(version))
	require.NoError(f.t, err)
	return i
}

func (f *fixture) tileURL(z, x, y int) string {
	return fmt.Sprintf("%s/%d/%d/%d.png", f.tiles.URL, z, x, y)
}

// get requests the URL through the interceptor and returns the body.
func get(t *testing.T, i *Interceptor, url string) (*http.Response, string) {
	t.Helper()
	res, err := i.Client().Get(url)
	require.NoError(t, err)
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, string(body)
}

func (f *fixture) tileEntry(i *Interceptor, url string) (cache.Entry, error) {
	return f.store.Get(context.Background(), i.TileNamespace(), url)
}

// faultyStore fails selected operations of an underlying store.
type faultyStore struct {
	cache.Store
	getErr             error
	deleteNamespaceErr map[string]error

	// putErr is returned once putsBeforeErr writes went through
	putErr        error
	putsBeforeErr int
	puts          atomic.Int64
}

func (s *faultyStore) Put(ctx context.Context, namespace string, e cache.Entry) error {
	if s.putErr != nil && s.puts.Add(1) > int64(s.putsBeforeErr) {
		return s.putErr
	}
	return s.Store.Put(ctx, namespace, e)
}

func (s *faultyStore) Get(ctx context.Context, namespace, key string) (cache.Entry, error) {
	if s.getErr != nil {
		return cache.Entry{}, s.getErr
	}
	return s.Store.Get(ctx, namespace, key)
}

func (s *faultyStore) DeleteNamespace(ctx context.Context, namespace string) error {
	if err, ok := s.deleteNamespaceErr[namespace]; ok {
		return err
	}
	return s.Store.DeleteNamespace(ctx, namespace)
}
