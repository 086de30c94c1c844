// Package cache provides the in-memory result cache of the lottery proxy.
//
// A Manager maps one key per resource to an Entry holding the payload, its
// creation time and its TTL. GetData returns the cached payload while the
// entry is fresh and otherwise calls the supplied fetch function, stores the
// result and returns it. Fetch errors are returned unchanged and nothing is
// stored.
//
// # TTL Policy
//
// The TTL of a new entry depends on its key and its payload:
//
//   - ticket-* keys use TTLPolicy.Ticket (default 300s)
//   - results-style keys whose payload reports a draw in progress use
//     TTLPolicy.Live (default 30s)
//   - everything else uses TTLPolicy.Default (default 1800s)
//
// # Basic Usage
//
//	manager := cache.NewManager(cache.DefaultTTLPolicy())
//
//	res, err := manager.GetData(ctx, cache.DrawResultsKey("1259409102").String(),
//		func(ctx context.Context) (any, error) {
//			return fetchDrawResults(ctx)
//		})
//	if err != nil {
//		return err
//	}
//	w.Header().Set("X-Cache-TTL", strconv.Itoa(res.RemainingTTL))
//
// # Concurrency
//
// The entry map is guarded by a mutex that is never held while fetching.
// Two concurrent misses on one key both fetch and the later store wins.
//
// # Metrics
//
//   - lottery_cache_hits_total{resource}
//   - lottery_cache_misses_total{resource}
//   - lottery_cache_entries
//   - lottery_cache_clears_total
//   - lottery_cache_evictions_total
package cache
