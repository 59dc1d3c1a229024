// Package indexer drives event ingestion: the chunked log fetcher and the
// per-chain checkpointed scan loop that feeds the mapping store.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/time/rate"

	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/observability/metrics"
)

// FetchConfig tunes the chunked fetcher.
type FetchConfig struct {
	MaxChunk   int64         // largest block span per query
	MaxRetries int           // transient retry ceiling per sub-range
	BaseDelay  time.Duration // first backoff step
	MaxDelay   time.Duration // backoff cap
	RPS        float64       // query rate limit, 0 disables
}

func (c FetchConfig) withDefaults() FetchConfig {
	if c.MaxChunk <= 0 {
		c.MaxChunk = 2000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 5
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	return c
}

// RangeError reports a sub-range the fetcher could not retrieve after
// exhausting shrinking and retries. The caller restarts from this boundary;
// blocks before From were fetched successfully.
type RangeError struct {
	Chain string
	From  int64
	To    int64
	Err   error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("fetching %s logs [%d, %d]: %v", e.Chain, e.From, e.To, e.Err)
}

func (e *RangeError) Unwrap() error { return e.Err }

// Fetcher retrieves gap-free log ranges from one chain, splitting the range
// into bounded chunks and adapting the chunk size to provider pushback.
type Fetcher struct {
	source  chains.LogSource
	chain   string
	cfg     FetchConfig
	limiter *rate.Limiter
	logger  *slog.Logger

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewFetcher creates a fetcher over one chain's log source.
func NewFetcher(source chains.LogSource, chain string, cfg FetchConfig, logger *slog.Logger) *Fetcher {
	cfg = cfg.withDefaults()
	var limiter *rate.Limiter
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), 1)
	}
	return &Fetcher{
		source:  source,
		chain:   chain,
		cfg:     cfg,
		limiter: limiter,
		logger:  logger.With("component", "fetcher", "chain", chain),
		sleep:   sleepCtx,
	}
}

// Fetch retrieves every log in [from, to] in ascending block order. The range
// is walked in chunks no larger than MaxChunk; a rate-limit or oversized-range
// rejection halves the chunk size for the rest of the call, down to a single
// block. The chunk size resets on the next call.
func (f *Fetcher) Fetch(ctx context.Context, base chains.LogQuery, from, to int64) ([]chains.RawLog, error) {
	chunk := f.cfg.MaxChunk
	var out []chains.RawLog

	cur := from
	for cur <= to {
		end := min(cur+chunk-1, to)

		q := base
		q.FromBlock = cur
		q.ToBlock = end

		logs, err := f.query(ctx, q, chunk == 1)
		if err != nil {
			if shrinkable(err) && chunk > 1 {
				chunk = max(chunk/2, 1)
				metrics.FetchHalving(f.chain)
				f.logger.Warn("provider rejected range, shrinking chunk",
					"from", cur, "to", end, "chunk", chunk, "error", err)
				continue
			}
			return nil, &RangeError{Chain: f.chain, From: cur, To: to, Err: err}
		}

		out = append(out, logs...)
		cur = end + 1
	}
	return out, nil
}

// query issues one sub-range request, retrying transient failures with
// backoff. Shrinkable rejections return immediately so Fetch can narrow the
// range, except at the minimum chunk size where a rate limit is just another
// transient failure.
func (f *Fetcher) query(ctx context.Context, q chains.LogQuery, atMinChunk bool) ([]chains.RawLog, error) {
	for attempt := 0; ; attempt++ {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		logs, err := f.source.Logs(ctx, q)
		if err == nil {
			metrics.FetchQuery(f.chain, "ok")
			return logs, nil
		}
		metrics.FetchQuery(f.chain, "error")

		if shrinkable(err) && !(atMinChunk && chains.IsRateLimited(err)) {
			return nil, err
		}
		if !shouldRetry(err, attempt, f.cfg.MaxRetries) {
			return nil, err
		}

		delay := backoffDelay(f.cfg.BaseDelay, f.cfg.MaxDelay, attempt)
		f.logger.Debug("retrying sub-range",
			"from", q.FromBlock, "to", q.ToBlock, "attempt", attempt+1, "delay", delay, "error", err)
		if err := f.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// shrinkable reports whether the provider's answer calls for a narrower
// query rather than a plain retry.
func shrinkable(err error) bool {
	return chains.IsRangeTooLarge(err) || chains.IsRateLimited(err)
}

// shouldRetry decides whether a failed attempt is worth repeating as-is.
func shouldRetry(err error, attempt, maxRetries int) bool {
	if attempt >= maxRetries {
		return false
	}
	return chains.IsTransient(err)
}

// backoffDelay doubles the base delay per attempt, capped at maxDelay, with
// up to 25% jitter so concurrent loops spread out against the provider.
func backoffDelay(base, maxDelay time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
