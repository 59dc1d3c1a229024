// Package metrics provides Prometheus instrumentation for pns-indexer.
package metrics

// ScanTick records one scan loop tick for a chain.
func ScanTick(chain, status string) {
	if !enabled {
		return
	}
	scanTicksTotal.WithLabelValues(chain, status).Inc()
}

// ScanLag records the head-to-checkpoint distance for a chain.
func ScanLag(chain string, blocks int64) {
	if !enabled {
		return
	}
	scanLagBlocks.WithLabelValues(chain).Set(float64(blocks))
}

// EventDecoded records one decoded log entry.
func EventDecoded(chain, kind string) {
	if !enabled {
		return
	}
	eventsDecodedTotal.WithLabelValues(chain, kind).Inc()
}

// EventsApplied records freshly applied events for a chain.
func EventsApplied(chain string, n int) {
	if !enabled || n == 0 {
		return
	}
	eventsAppliedTotal.WithLabelValues(chain).Add(float64(n))
}

// RecordsStale records record writes discarded as stale.
func RecordsStale(chain string, n int) {
	if !enabled || n == 0 {
		return
	}
	staleRecordsTotal.WithLabelValues(chain).Add(float64(n))
}

// FetchQuery records one ranged log query attempt.
func FetchQuery(chain, status string) {
	if !enabled {
		return
	}
	fetchQueriesTotal.WithLabelValues(chain, status).Inc()
}

// FetchHalving records one adaptive chunk size halving.
func FetchHalving(chain string) {
	if !enabled {
		return
	}
	fetchHalvingsTotal.WithLabelValues(chain).Inc()
}

// JobEnqueued records one sync job enqueue.
func JobEnqueued(targetChain, jobType string) {
	if !enabled {
		return
	}
	jobsEnqueuedTotal.WithLabelValues(targetChain, jobType).Inc()
}

// JobDispatch records one job dispatch attempt outcome.
func JobDispatch(targetChain, outcome string) {
	if !enabled {
		return
	}
	jobDispatchTotal.WithLabelValues(targetChain, outcome).Inc()
}
