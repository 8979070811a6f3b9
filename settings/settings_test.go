package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const carto = "https://{a-c}.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}.png"

func TestExpandTemplate(t *testing.T) {
	urls := ExpandTemplate(carto)
	require.Len(t, urls, 3)
	assert.Equal(t, "https://a.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}.png", urls[0])
	assert.Equal(t, "https://c.basemaps.cartocdn.com/rastertiles/voyager/{z}/{x}/{y}.png", urls[2])
}

func TestExpandTemplateWithoutRotation(t *testing.T) {
	tpl := "https://tile.thunderforest.com/cycle/{z}/{x}/{y}.png?apikey=secret"
	assert.Equal(t, []string{tpl}, ExpandTemplate(tpl))
}

func TestTileOrigins(t *testing.T) {
	origins, err := TileOrigins([]TileServer{
		{Name: "cartodb-voyager", URL: carto},
		{Name: "opencyclemap", URL: "https://tile.thunderforest.com/cycle/{z}/{x}/{y}.png?apikey=secret"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://a.basemaps.cartocdn.com",
		"https://b.basemaps.cartocdn.com",
		"https://c.basemaps.cartocdn.com",
		"https://tile.thunderforest.com",
	}, origins)
}

func TestTileOriginsRejectsRelative(t *testing.T) {
	_, err := TileOrigins([]TileServer{{Name: "bad", URL: "/tiles/{z}/{x}/{y}.png"}})
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	s, err := NewStatic(TileServer{Name: "carto", URL: carto})
	require.NoError(t, err)

	_, ok := s.TileCachingDuration()
	assert.False(t, ok)

	s.SetTileCachingDuration(3600)
	d, ok := s.TileCachingDuration()
	assert.True(t, ok)
	assert.Equal(t, int64(3600), d)

	s.UnsetTileCachingDuration()
	d, ok = s.TileCachingDuration()
	assert.False(t, ok)
	assert.Equal(t, DefaultTileCachingDuration, d)

	assert.Len(t, s.KnownTileOrigins(), 3)
}

func TestFileIsReadLive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	f := NewFile(path, zerolog.Nop())

	// missing file behaves like empty settings
	_, ok := f.TileCachingDuration()
	assert.False(t, ok)
	assert.Empty(t, f.KnownTileOrigins())

	require.NoError(t, os.WriteFile(path, []byte(`
tileCachingDuration: 60
tileServers:
  - name: carto
    url: `+carto+`
`), 0o644))
	d, ok := f.TileCachingDuration()
	assert.True(t, ok)
	assert.Equal(t, int64(60), d)
	assert.Len(t, f.KnownTileOrigins(), 3)

	require.NoError(t, os.WriteFile(path, []byte("tileCachingDuration: 0\n"), 0o644))
	d, ok = f.TileCachingDuration()
	assert.True(t, ok)
	assert.Equal(t, int64(0), d)
	assert.Empty(t, f.KnownTileOrigins())
}
