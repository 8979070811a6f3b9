// Package router decides how an outbound request is handled by the caching layer.
package router

import (
	"net/http"
	"strings"

	cachekey "github.com/cygnal-app/interceptor/pkg/cache-key"
)

// Classification is the handling category of a request.
type Classification int

const (
	// Ignore requests go to the network untouched.
	Ignore Classification = iota
	// APIPassthrough requests are same-origin API calls. They go to the network and are never stored.
	APIPassthrough
	// Tile requests are handled by the tile cache.
	Tile
	// Asset requests are handled cache-first from the versioned asset namespace.
	Asset
)

func (c Classification) String() string {
	switch c {
	case APIPassthrough:
		return "api"
	case Tile:
		return "tile"
	case Asset:
		return "asset"
	default:
		return "ignore"
	}
}

// DefaultAPIPrefix is the path prefix of the application API.
const DefaultAPIPrefix = "/api"

// TileOrigins is the source of the known tile server origins.
type TileOrigins interface {
	KnownTileOrigins() []string
}

// Router classifies requests. It holds no mutable state.
type Router struct {
	appOrigin string
	apiPrefix string
	tiles     TileOrigins
}

// New creates a router for the application origin.
// The tile origins are queried on every classification.
func New(appOrigin, apiPrefix string, tiles TileOrigins) (*Router, error) {
	origin, err := cachekey.ParseOrigin(appOrigin)
	if err != nil {
		return nil, err
	}
	if apiPrefix == "" {
		apiPrefix = DefaultAPIPrefix
	}
	if !strings.HasPrefix(apiPrefix, "/") {
		apiPrefix = "/" + apiPrefix
	}
	return &Router{appOrigin: origin, apiPrefix: apiPrefix, tiles: tiles}, nil
}

// AppOrigin returns the normalized application origin.
func (rt *Router) AppOrigin() string {
	return rt.appOrigin
}

// Classify returns the handling category of the request.
//
// Same-origin requests under the API prefix are passthrough whatever their method.
// Everything else that is not a GET is ignored. Of the remaining requests,
// those for a known tile origin are tiles and same-origin ones are assets.
func (rt *Router) Classify(r *http.Request) Classification {
	if r.URL == nil || r.URL.Host == "" {
		return Ignore
	}
	origin := cachekey.Origin(r.URL)
	if origin == rt.appOrigin {
		if strings.HasPrefix(r.URL.Path, rt.apiPrefix) {
			return APIPassthrough
		}
		if r.Method != http.MethodGet && r.Method != "" {
			return Ignore
		}
		return Asset
	}
	if r.Method != http.MethodGet && r.Method != "" {
		return Ignore
	}
	if rt.isTileOrigin(origin) {
		return Tile
	}
	return Ignore
}


func (rt *Router) isTileOrigin(origin string) bool {
	if rt.tiles == nil {
		return false
	}
	for _, o := range rt.tiles.KnownTileOrigins() {
		if o == origin {
			return true
		}
	}
	return false
}
