package syncer

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/observability/metrics"
	"github.com/pnslabs/pns-indexer/internal/storage"
)

// DispatchConfig tunes one target chain's dispatch worker.
type DispatchConfig struct {
	Interval   time.Duration // claim poll period
	ClaimLimit int           // max jobs per claim
	MaxRetries int           // retry ceiling before a job fails
	BaseDelay  time.Duration // first retry backoff step
	MaxDelay   time.Duration // backoff cap
	Lease      time.Duration // in-flight claim lease before a reclaim
}

func (c DispatchConfig) withDefaults() DispatchConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.ClaimLimit <= 0 {
		c.ClaimLimit = 20
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 8
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Minute
	}
	if c.Lease <= 0 {
		c.Lease = 5 * time.Minute
	}
	return c
}

// JobQueue is the slice of the mapping store the dispatcher drives. The mark
// methods stamp mirror bookkeeping once a propagation job lands, so the sync
// loop stops re-planning writes the counterpart already holds.
type JobQueue interface {
	ClaimJobs(ctx context.Context, targetChain string, limit int, now time.Time) ([]storage.SyncJob, error)
	CompleteJob(ctx context.Context, id string) error
	ReleaseJob(ctx context.Context, id string, nextAttempt time.Time, lastError string) error
	FailJob(ctx context.Context, id, lastError string) error
	ReapStaleJobs(ctx context.Context, targetChain string, cutoff time.Time) (int64, error)
	MarkMirrored(ctx context.Context, nameHash, keyHash string, version int64) error
	MarkSynced(ctx context.Context, nameHash string, mirrorSlot int64, at time.Time) error
}

// Dispatcher is the job worker for one target chain: it claims pending jobs
// and submits them to the chain's submission endpoint. One dispatcher per
// target chain, so a throttled chain never starves the other's queue.
type Dispatcher struct {
	queue     JobQueue
	submitter chains.Submitter
	target    string
	cfg       DispatchConfig
	logger    *slog.Logger

	now func() time.Time
}

// NewDispatcher creates the dispatch worker for one target chain.
func NewDispatcher(queue JobQueue, submitter chains.Submitter, target string, cfg DispatchConfig, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		submitter: submitter,
		target:    target,
		cfg:       cfg.withDefaults(),
		logger:    logger.With("component", "dispatcher", "target", target),
		now:       time.Now,
	}
}

// Run polls the queue until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.logger.Info("dispatch worker starting", "interval", d.cfg.Interval)
	for {
		if err := d.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			d.logger.Error("dispatch tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			d.logger.Info("dispatch worker stopping")
			return
		case <-ticker.C:
		}
	}
}

// Tick reclaims expired leases, then claims one batch of due jobs and submits
// each. Per-job failures never abort the batch; each job settles its own
// status.
func (d *Dispatcher) Tick(ctx context.Context) error {
	reaped, err := d.queue.ReapStaleJobs(ctx, d.target, d.now().Add(-d.cfg.Lease))
	if err != nil {
		return err
	}
	if reaped > 0 {
		d.logger.Warn("requeued stalled in-flight jobs", "count", reaped, "lease", d.cfg.Lease)
	}

	jobs, err := d.queue.ClaimJobs(ctx, d.target, d.cfg.ClaimLimit, d.now())
	if err != nil {
		return err
	}
	for i := range jobs {
		if err := d.dispatch(ctx, &jobs[i]); err != nil {
			return err
		}
	}
	return nil
}

// dispatch submits one claimed job and settles its status. The returned
// error reflects queue bookkeeping failures only; submission failures are
// absorbed into the job's retry state.
func (d *Dispatcher) dispatch(ctx context.Context, job *storage.SyncJob) error {
	instr := chains.Instruction{
		Kind:     job.JobType,
		NameHash: job.NameHash,
		KeyHash:  job.KeyHash,
		Version:  job.Version,
		Payload:  job.Payload,
	}

	tx, err := d.submitter.Submit(ctx, instr)
	switch {
	case err == nil:
		metrics.JobDispatch(d.target, "ok")
		d.logger.Info("job submitted",
			"job_id", job.ID, "job_type", job.JobType, "name_hash", job.NameHash, "tx", tx)
		if err := d.queue.CompleteJob(ctx, job.ID); err != nil {
			return err
		}
		return d.markApplied(ctx, job)

	case chains.IsSuperseded(err):
		// The target already reflects a newer version; the desired end state
		// was reached by a later write. A successful no-op.
		metrics.JobDispatch(d.target, "superseded")
		d.logger.Info("job superseded",
			"job_id", job.ID, "job_type", job.JobType, "name_hash", job.NameHash, "version", job.Version)
		if err := d.queue.CompleteJob(ctx, job.ID); err != nil {
			return err
		}
		return d.markApplied(ctx, job)

	case job.RetryCount+1 > d.cfg.MaxRetries:
		metrics.JobDispatch(d.target, "failed")
		d.logger.Error("job failed permanently",
			"job_id", job.ID, "job_type", job.JobType, "name_hash", job.NameHash,
			"retries", job.RetryCount, "error", err)
		return d.queue.FailJob(ctx, job.ID, err.Error())

	default:
		next := d.now().Add(retryDelay(d.cfg.BaseDelay, d.cfg.MaxDelay, job.RetryCount))
		metrics.JobDispatch(d.target, "retry")
		d.logger.Warn("job submission failed, will retry",
			"job_id", job.ID, "job_type", job.JobType, "name_hash", job.NameHash,
			"attempt", job.RetryCount+1, "next_attempt", next, "error", err)
		return d.queue.ReleaseJob(ctx, job.ID, next, err.Error())
	}
}

// markApplied stamps mirror bookkeeping for a job the target now reflects.
// A superseded job marks too: the target holds at least this version.
func (d *Dispatcher) markApplied(ctx context.Context, job *storage.SyncJob) error {
	switch job.JobType {
	case storage.JobUpsertRecord, storage.JobDeleteRecord:
		return d.queue.MarkMirrored(ctx, job.NameHash, job.KeyHash, job.Version)
	case storage.JobMirrorDomain:
		// Slot zero stamps last_synced_at without touching a slot the mirror's
		// own confirmation event has already recorded.
		return d.queue.MarkSynced(ctx, job.NameHash, 0, d.now())
	}
	return nil
}

// retryDelay doubles per retry, capped, with up to 25% jitter.
func retryDelay(base, maxDelay time.Duration, retryCount int) time.Duration {
	d := base
	for i := 0; i < retryCount && d < maxDelay; i++ {
		d *= 2
	}
	if d > maxDelay {
		d = maxDelay
	}
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
}
