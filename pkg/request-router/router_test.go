package router

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type origins []string

func (o origins) KnownTileOrigins() []string { return o }

func newRouter(t *testing.T, tiles origins) *Router {
	t.Helper()
	rt, err := New("https://app.example", "", tiles)
	require.NoError(t, err)
	return rt
}

func TestClassify(t *testing.T) {
	rt := newRouter(t, origins{"https://a.tile.example", "https://b.tile.example"})

	tests := []struct {
		method string
		url    string
		want   Classification
	}{
		{"GET", "https://app.example/", Asset},
		{"GET", "https://app.example/static/js/main.js", Asset},
		{"GET", "https://APP.example:443/index.html", Asset},
		{"GET", "https://app.example/api/reports", APIPassthrough},
		{"POST", "https://app.example/api/reports", APIPassthrough},
		{"GET", "https://app.example/api", APIPassthrough},
		{"GET", "https://app.example/apidocs", APIPassthrough},
		{"GET", "https://app.example/apiv2/reports", APIPassthrough},
		{"POST", "https://app.example/api-legacy/vote", APIPassthrough},
		{"GET", "https://app.example/static/api/x.js", Asset},
		{"POST", "https://app.example/index.html", Ignore},
		{"GET", "https://a.tile.example/10/512/384.png", Tile},
		{"GET", "https://b.tile.example/10/512/384.png?apikey=x", Tile},
		{"HEAD", "https://a.tile.example/10/512/384.png", Ignore},
		{"GET", "https://c.tile.example/10/512/384.png", Ignore},
		{"GET", "http://app.example/", Ignore},
		{"GET", "https://other.example/", Ignore},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(tt.method, tt.url, nil)
		assert.Equal(t, tt.want, rt.Classify(r), "%s %s", tt.method, tt.url)
	}
}

func TestTileOriginsAreLive(t *testing.T) {
	tiles := &liveOrigins{}
	rt, err := New("https://app.example", "/api", tiles)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "https://tile.example/1/1/1.png", nil)
	assert.Equal(t, Ignore, rt.Classify(r))

	tiles.list = []string{"https://tile.example"}
	assert.Equal(t, Tile, rt.Classify(r))
}

func TestCustomAPIPrefix(t *testing.T) {
	rt, err := New("https://app.example/ignored/path", "backend", nil)
	require.NoError(t, err)
	assert.Equal(t, "https://app.example", rt.AppOrigin())
	assert.Equal(t, APIPassthrough, rt.Classify(httptest.NewRequest("PUT", "https://app.example/backend/x", nil)))
	assert.Equal(t, Asset, rt.Classify(httptest.NewRequest("GET", "https://app.example/api/x", nil)))
}

func TestNewRejectsRelativeOrigin(t *testing.T) {
	_, err := New("/relative", "", nil)
	assert.Error(t, err)
}

type liveOrigins struct{ list []string }

func (l *liveOrigins) KnownTileOrigins() []string { return l.list }
