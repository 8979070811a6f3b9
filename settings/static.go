package settings

import (
	"sync"
)

// Static is an in-memory Provider whose values can be changed at runtime.
type Static struct {
	mu                  sync.RWMutex
	tileCachingDuration int64
	durationSet         bool
	origins             []string
}

// NewStatic creates a provider for the given tile servers, with the
// tile caching duration unset.
func NewStatic(servers ...TileServer) (*Static, error) {
	origins, err := TileOrigins(servers)
	if err != nil {
		return nil, err
	}
	return &Static{origins: origins, tileCachingDuration: DefaultTileCachingDuration}, nil
}

func (s *Static) TileCachingDuration() (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tileCachingDuration, s.durationSet
}

// SetTileCachingDuration sets the override, in seconds.
func (s *Static) SetTileCachingDuration(seconds int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tileCachingDuration = seconds
	s.durationSet = true
}

// UnsetTileCachingDuration restores the "unset" state.
func (s *Static) UnsetTileCachingDuration() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tileCachingDuration = DefaultTileCachingDuration
	s.durationSet = false
}

func (s *Static) KnownTileOrigins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.origins))
	copy(out, s.origins)
	return out
}

// SetTileServers replaces the configured tile servers.
func (s *Static) SetTileServers(servers ...TileServer) error {
	origins, err := TileOrigins(servers)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origins = origins
	return nil
}
