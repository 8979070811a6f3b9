// Package settings exposes the user settings the caching layer depends on.
//
// The values are owned by the application. The caching layer re-reads them on
// every request and never keeps a copy across requests.
package settings

import (
	"fmt"
	"regexp"
	"sort"

	cachekey "github.com/cygnal-app/interceptor/pkg/cache-key"
)

// DefaultTileCachingDuration is the "unset" value of the tile caching duration.
const DefaultTileCachingDuration int64 = -1

// Provider is the read side of the application settings.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// TileCachingDuration returns the configured tile caching duration in seconds.
	// The boolean is false when no value is set.
	// Zero or negative values defer to the response headers.
	TileCachingDuration() (int64, bool)
	// KnownTileOrigins returns the origins of all configured tile servers.
	KnownTileOrigins() []string
}

// TileServer is a configured map tile source.
type TileServer struct {
	Name        string `yaml:"name"`
	URL         string `yaml:"url"`
	Attribution string `yaml:"attribution,omitempty"`
}

// rotation matches subdomain rotation placeholders such as "{a-c}".
var rotation = regexp.MustCompile(`\{([a-z])-([a-z])\}`)

// ExpandTemplate returns every concrete URL a tile URL template can produce
// with respect to subdomain rotation. Other placeholders ({z}, {x}, {y}) are left untouched.
func ExpandTemplate(template string) []string {
	loc := rotation.FindStringSubmatchIndex(template)
	if loc == nil {
		return []string{template}
	}
	from, to := template[loc[2]], template[loc[4]]
	if from > to {
		from, to = to, from
	}
	out := make([]string, 0, int(to-from)+1)
	for c := from; c <= to; c++ {
		expanded := template[:loc[0]] + string(c) + template[loc[1]:]
		// templates can contain more than one rotation
		out = append(out, ExpandTemplate(expanded)...)
	}
	return out
}

// TileOrigins resolves the origins of a set of tile URL templates.
// The result is sorted and free of duplicates.
func TileOrigins(servers []TileServer) ([]string, error) {
	seen := make(map[string]struct{})
	for _, server := range servers {
		for _, u := range ExpandTemplate(server.URL) {
			origin, err := cachekey.ParseOrigin(u)
			if err != nil {
				return nil, fmt.Errorf("tile server %q: %w", server.Name, err)
			}
			seen[origin] = struct{}{}
		}
	}
	origins := make([]string, 0, len(seen))
	for origin := range seen {
		origins = append(origins, origin)
	}
	sort.Strings(origins)
	return origins, nil
}
