package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/observability/metrics"
	"github.com/pnslabs/pns-indexer/internal/storage"
)

// Scan states, visible through Status for health reporting.
const (
	StateIdle     = "idle"
	StateScanning = "scanning"
	StateApplying = "applying"
	StateFaulted  = "faulted"
)

// ScanConfig tunes one chain's scan loop.
type ScanConfig struct {
	BatchSize  int64         // max blocks per window
	Interval   time.Duration // tick period
	StartBlock int64         // first block to scan when no checkpoint exists
}

func (c ScanConfig) withDefaults() ScanConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 500
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Second
	}
	return c
}

// ScanStore is the slice of the mapping store the scanner drives.
type ScanStore interface {
	Checkpoint(ctx context.Context, chain string) (int64, bool, error)
	SetCheckpoint(ctx context.Context, chain string, position int64) error
	ApplyBatch(ctx context.Context, batch *storage.Batch, planner storage.JobPlanner) (*storage.BatchResult, error)
}

// Scanner runs the checkpointed fetch/decode/apply loop for one chain. A
// window's mutations, the propagation jobs it implies, and the checkpoint
// advance land in one transaction, so a crash at any point replays the same
// window idempotently and never drops a job.
type Scanner struct {
	endpoint *chains.Endpoint
	fetcher  *Fetcher
	store    ScanStore
	planner  storage.JobPlanner
	cfg      ScanConfig
	logger   *slog.Logger

	state    string
	lastTick time.Time
	lastErr  error
}

// NewScanner creates the scan loop for one chain endpoint. A nil planner
// applies batches without enqueueing propagation jobs.
func NewScanner(endpoint *chains.Endpoint, fetcher *Fetcher, store ScanStore, planner storage.JobPlanner, cfg ScanConfig, logger *slog.Logger) *Scanner {
	return &Scanner{
		endpoint: endpoint,
		fetcher:  fetcher,
		store:    store,
		planner:  planner,
		cfg:      cfg.withDefaults(),
		logger:   logger.With("component", "scanner", "chain", endpoint.Name),
		state:    StateIdle,
	}
}

// Status reports the scanner's current state, the time of its last completed
// tick, and the last tick error if the scanner is faulted.
func (s *Scanner) Status() (state string, lastTick time.Time, lastErr error) {
	return s.state, s.lastTick, s.lastErr
}

// Run ticks the scan loop until the context is canceled. A faulted tick is
// logged and retried from the same checkpoint on the next tick.
func (s *Scanner) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("scan loop starting", "interval", s.cfg.Interval, "batch_size", s.cfg.BatchSize)
	for {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("scan tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			s.logger.Info("scan loop stopping")
			return
		case <-ticker.C:
		}
	}
}

// Tick runs one scan cycle: read head and checkpoint, fetch and decode the
// next window, then apply it atomically together with the jobs it implies.
// The checkpoint only moves when the whole window applied.
func (s *Scanner) Tick(ctx context.Context) (err error) {
	defer func() {
		s.lastErr = err
		if err != nil {
			s.state = StateFaulted
			metrics.ScanTick(s.endpoint.Name, "error")
			return
		}
		s.state = StateIdle
		s.lastTick = time.Now()
		metrics.ScanTick(s.endpoint.Name, "ok")
	}()

	s.state = StateScanning

	head, err := s.endpoint.Source.Head(ctx)
	if err != nil {
		return fmt.Errorf("reading chain head: %w", err)
	}

	cp, ok, err := s.store.Checkpoint(ctx, s.endpoint.Name)
	if err != nil {
		return fmt.Errorf("reading checkpoint: %w", err)
	}
	if !ok {
		cp = s.cfg.StartBlock - 1
		if err := s.store.SetCheckpoint(ctx, s.endpoint.Name, cp); err != nil {
			return fmt.Errorf("seeding checkpoint: %w", err)
		}
		s.logger.Info("seeded checkpoint", "position", cp)
	}

	metrics.ScanLag(s.endpoint.Name, max(head-cp, 0))
	if head <= cp {
		return nil
	}

	from := cp + 1
	to := min(cp+s.cfg.BatchSize, head)

	logs, err := s.fetcher.Fetch(ctx, s.endpoint.Query, from, to)
	if err != nil {
		return err
	}

	batch, err := s.decodeWindow(ctx, logs, from, to)
	if err != nil {
		return err
	}

	s.state = StateApplying
	result, err := s.store.ApplyBatch(ctx, batch, s.planner)
	if err != nil {
		return fmt.Errorf("applying batch [%d, %d]: %w", from, to, err)
	}

	metrics.EventsApplied(s.endpoint.Name, len(result.Domains)+len(result.Records))
	metrics.RecordsStale(s.endpoint.Name, result.StaleRecords)
	for _, job := range result.Jobs {
		metrics.JobEnqueued(job.TargetChain, job.JobType)
	}
	if !result.Empty() || result.Replayed > 0 {
		s.logger.Info("batch applied",
			"from", from, "to", to,
			"domains", len(result.Domains), "records", len(result.Records),
			"jobs", len(result.Jobs),
			"replayed", result.Replayed, "stale", result.StaleRecords)
	}
	return nil
}

// decodeWindow decodes one fetched window into a batch. Unrecognized and
// reorg-removed entries are counted and skipped; a malformed known event
// aborts the window so the checkpoint stays put.
func (s *Scanner) decodeWindow(ctx context.Context, logs []chains.RawLog, from, to int64) (*storage.Batch, error) {
	batch := &storage.Batch{
		Chain:     s.endpoint.Name,
		FromBlock: from,
		ToBlock:   to,
	}

	for _, raw := range logs {
		if raw.Removed {
			s.logger.Warn("skipping reorg-removed log", "block", raw.Block, "tx", raw.TxHash)
			continue
		}
		ev, err := s.endpoint.Decoder.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("decoding log %s[%d]: %w", raw.TxHash, raw.LogIndex, err)
		}
		metrics.EventDecoded(s.endpoint.Name, eventKind(ev))

		if err := s.appendEvent(ctx, batch, ev); err != nil {
			return nil, err
		}
	}
	return batch, nil
}

// appendEvent translates one typed event into batch changes.
func (s *Scanner) appendEvent(ctx context.Context, batch *storage.Batch, ev chains.Event) error {
	ref := ev.Ref()
	eref := storage.EventRef{TxHash: ref.TxHash, LogIndex: ref.LogIndex, Block: ref.Block}

	switch e := ev.(type) {
	case *chains.Registration:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			Label:        &e.Label,
			OwnerPrimary: &e.Owner,
			Expiration:   &e.Expires,
		}))

	case *chains.Renewal:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			Expiration: &e.Expires,
		}))

	case *chains.OwnerTransfer:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			OwnerPrimary: &e.NewOwner,
		}))

	case *chains.ResolverChanged:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			Resolver: &e.Resolver,
		}))

	case *chains.WrapChanged:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			WrapState: &e.State,
			NFTMint:   &e.NFTMint,
		}))

	case *chains.DomainMirrored:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			OwnerMirror: &e.Delegate,
			Expiration:  &e.Expires,
			Synced:      true,
		}))

	case *chains.DelegateUpdated:
		batch.Domains = append(batch.Domains, s.domainChange(eref, e.NameHash, storage.DomainChange{
			OwnerMirror: &e.Delegate,
		}))

	case *chains.RecordSet:
		rc := storage.RecordChange{
			Ref:         eref,
			NameHash:    e.NameHash,
			KeyHash:     e.KeyHash,
			Key:         e.Key,
			RecordType:  e.RecordType,
			Value:       e.Value,
			SourceChain: e.SourceChain,
			Version:     e.Version,
			Tombstone:   e.Tombstone,
		}
		if err := s.fillRecordValue(ctx, &rc); err != nil {
			return err
		}
		batch.Records = append(batch.Records, rc)

	case *chains.Unrecognized:
		s.logger.Debug("skipping unrecognized event",
			"tx", ref.TxHash, "index", ref.LogIndex, "signature", e.Signature)
	}
	return nil
}

// domainChange stamps the per-chain cursor columns onto a change.
func (s *Scanner) domainChange(ref storage.EventRef, nameHash string, dc storage.DomainChange) storage.DomainChange {
	dc.Ref = ref
	dc.NameHash = nameHash
	if s.endpoint.Name == chains.ChainSolana {
		dc.MirrorSlot = &ref.Block
	} else {
		dc.PrimaryBlock = &ref.Block
		dc.PrimaryTx = &ref.TxHash
	}
	return dc
}

// fillRecordValue resolves the payload for record events that announce a
// write without carrying the bytes. A missing account reads as a tombstone.
func (s *Scanner) fillRecordValue(ctx context.Context, rc *storage.RecordChange) error {
	if rc.Tombstone || len(rc.Value) > 0 || s.endpoint.Records == nil {
		return nil
	}
	// Echoes of the counterpart chain's own writes stay value-less; they are
	// stale by construction and only bump mirror bookkeeping.
	if rc.SourceChain != s.endpoint.Name {
		return nil
	}
	value, err := s.endpoint.Records.RecordValue(ctx, rc.NameHash, rc.KeyHash)
	if err != nil {
		return fmt.Errorf("reading record value %s/%s: %w", rc.NameHash, rc.KeyHash, err)
	}
	if value == nil {
		rc.Tombstone = true
		return nil
	}
	rc.Value = value
	return nil
}

func eventKind(ev chains.Event) string {
	switch ev.(type) {
	case *chains.Registration:
		return "registration"
	case *chains.Renewal:
		return "renewal"
	case *chains.OwnerTransfer:
		return "transfer"
	case *chains.ResolverChanged:
		return "resolver"
	case *chains.RecordSet:
		return "record"
	case *chains.WrapChanged:
		return "wrap"
	case *chains.DomainMirrored:
		return "mirrored"
	case *chains.DelegateUpdated:
		return "delegate"
	default:
		return "unrecognized"
	}
}
