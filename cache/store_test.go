package cache

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	memSQLite, err := NewSQLiteStore("")
	require.NoError(t, err)
	level, err := NewLevelDBStore(filepath.Join(t.TempDir(), "leveldb"))
	require.NoError(t, err)

	all := map[string]Store{
		"memory":        NewMemoryStore(),
		"sqlite":        sqlite,
		"sqlite-memory": memSQLite,
		"leveldb":       level,
	}
	if s3 := s3Store(t); s3 != nil {
		all["s3"] = s3
	}
	for _, s := range all {
		s := s
		t.Cleanup(func() { s.Close() })
	}
	return all
}

// s3Store connects to the object store given by the INTERCEPTOR_TEST_S3_* variables.
func s3Store(t *testing.T) Store {
	endpoint := os.Getenv("INTERCEPTOR_TEST_S3_ENDPOINT")
	if endpoint == "" {
		return nil
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds: credentials.NewStaticV4(
			os.Getenv("INTERCEPTOR_TEST_S3_ACCESS_KEY"),
			os.Getenv("INTERCEPTOR_TEST_S3_SECRET_KEY"),
			"",
		),
	})
	require.NoError(t, err)
	bucket := os.Getenv("INTERCEPTOR_TEST_S3_BUCKET")
	return NewS3StoreWithClient(client, bucket, "test-"+time.Now().Format("20060102150405.000000000"))
}

func testEntry(url string) Entry {
	return Entry{
		URL:                 url,
		StatusCode:          200,
		Header:              http.Header{"Content-Type": {"image/png"}, "Cache-Control": {"max-age=60"}},
		Body:                []byte{0x89, 'P', 'N', 'G', 0, 1, 2},
		CachedAt:            time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CacheControlSeconds: 60,
	}
}

func TestStores(t *testing.T) {
	for name, store := range stores(t) {
		store := store
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("MissingKey", func(t *testing.T) {
				_, err := store.Get(ctx, "app-tiles", "https://tile.example/0/0/0.png")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("RoundTrip", func(t *testing.T) {
				e := testEntry("https://tile.example/1/2/3.png?apikey=x")
				require.NoError(t, store.Put(ctx, "app-tiles", e))
				got, err := store.Get(ctx, "app-tiles", e.URL)
				require.NoError(t, err)
				assert.Equal(t, e.URL, got.URL)
				assert.Equal(t, e.StatusCode, got.StatusCode)
				assert.Equal(t, e.Header, got.Header)
				assert.Equal(t, e.Body, got.Body)
				assert.True(t, e.CachedAt.Equal(got.CachedAt))
				assert.Equal(t, e.CacheControlSeconds, got.CacheControlSeconds)
			})

			t.Run("LastWriteWins", func(t *testing.T) {
				e := testEntry("https://tile.example/4/5/6.png")
				require.NoError(t, store.Put(ctx, "app-tiles", e))
				e.Body = []byte("second")
				require.NoError(t, store.Put(ctx, "app-tiles", e))
				got, err := store.Get(ctx, "app-tiles", e.URL)
				require.NoError(t, err)
				assert.Equal(t, []byte("second"), got.Body)
			})

			t.Run("NamespacesAreIsolated", func(t *testing.T) {
				e := testEntry("https://app.example/index.html")
				require.NoError(t, store.Put(ctx, "app-v1", e))
				_, err := store.Get(ctx, "app-v2", e.URL)
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("Delete", func(t *testing.T) {
				e := testEntry("https://tile.example/7/8/9.png")
				require.NoError(t, store.Put(ctx, "app-tiles", e))
				require.NoError(t, store.Delete(ctx, "app-tiles", e.URL))
				_, err := store.Get(ctx, "app-tiles", e.URL)
				assert.ErrorIs(t, err, ErrNotFound)
				// deleting again is not an error
				assert.NoError(t, store.Delete(ctx, "app-tiles", e.URL))
			})

			t.Run("KeysAndNamespaces", func(t *testing.T) {
				require.NoError(t, store.Open(ctx, "empty-v0"))
				require.NoError(t, store.Put(ctx, "keys-tiles", testEntry("https://b.example/1.png")))
				require.NoError(t, store.Put(ctx, "keys-tiles", testEntry("https://a.example/1.png")))

				keys, err := store.Keys(ctx, "keys-tiles")
				require.NoError(t, err)
				assert.Equal(t, []string{"https://a.example/1.png", "https://b.example/1.png"}, keys)

				keys, err = store.Keys(ctx, "empty-v0")
				require.NoError(t, err)
				assert.Empty(t, keys)

				namespaces, err := store.Namespaces(ctx)
				require.NoError(t, err)
				assert.Contains(t, namespaces, "empty-v0")
				assert.Contains(t, namespaces, "keys-tiles")
			})

			t.Run("DeleteNamespace", func(t *testing.T) {
				require.NoError(t, store.Put(ctx, "old-v1", testEntry("https://app.example/")))
				require.NoError(t, store.Put(ctx, "old-v1", testEntry("https://app.example/main.js")))
				require.NoError(t, store.DeleteNamespace(ctx, "old-v1"))

				namespaces, err := store.Namespaces(ctx)
				require.NoError(t, err)
				assert.NotContains(t, namespaces, "old-v1")
				keys, err := store.Keys(ctx, "old-v1")
				require.NoError(t, err)
				assert.Empty(t, keys)
				_, err = store.Get(ctx, "old-v1", "https://app.example/")
				assert.ErrorIs(t, err, ErrNotFound)
			})

			t.Run("ConcurrentAccess", func(t *testing.T) {
				var wg sync.WaitGroup
				for i := 0; i < 8; i++ {
					wg.Add(1)
					go func() {
						defer wg.Done()
						e := testEntry("https://tile.example/concurrent.png")
						assert.NoError(t, store.Put(ctx, "app-tiles", e))
						_, err := store.Get(ctx, "app-tiles", e.URL)
						assert.NoError(t, err)
					}()
				}
				wg.Wait()
			})
		})
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	e := testEntry("https://tile.example/1/1/1.png")
	require.NoError(t, store.Put(ctx, "app-tiles", e))

	e.Body[0] = 'X'
	e.Header.Set("Content-Type", "text/plain")

	got, err := store.Get(ctx, "app-tiles", e.URL)
	require.NoError(t, err)
	assert.Equal(t, byte(0x89), got.Body[0])
	assert.Equal(t, "image/png", got.Header.Get("Content-Type"))
}

func TestCorruptEntry(t *testing.T) {
	_, err := decodeEntry([]byte("not gob"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestNamespaceNames(t *testing.T) {
	assert.Equal(t, "cygnal-v2", AssetNamespace("cygnal", "v2"))
	assert.Equal(t, "cygnal-tiles", TileNamespace("cygnal"))
}
