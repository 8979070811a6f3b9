package interceptor

import (
	"github.com/VictoriaMetrics/metrics"
)

type counters struct {
	set *metrics.Set

	tileHits      *metrics.Counter
	tileMisses    *metrics.Counter
	tileStores    *metrics.Counter
	tileEvictions *metrics.Counter
	assetHits     *metrics.Counter
	assetMisses   *metrics.Counter
	passthrough   *metrics.Counter
	purged        *metrics.Counter
}

func newCounters() *counters {
	set := metrics.NewSet()
	return &counters{
		set:           set,
		tileHits:      set.NewCounter("interceptor_tile_hits_total"),
		tileMisses:    set.NewCounter("interceptor_tile_misses_total"),
		tileStores:    set.NewCounter("interceptor_tile_stores_total"),
		tileEvictions: set.NewCounter("interceptor_tile_evictions_total"),
		assetHits:     set.NewCounter("interceptor_asset_hits_total"),
		assetMisses:   set.NewCounter("interceptor_asset_misses_total"),
		passthrough:   set.NewCounter("interceptor_passthrough_total"),
		purged:        set.NewCounter("interceptor_purged_total"),
	}
}
