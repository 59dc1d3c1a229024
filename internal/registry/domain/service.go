package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pnslabs/pns-indexer/internal/storage"
	"github.com/pnslabs/pns-indexer/internal/validation"
)

// Common errors returned by the registry service.
var (
	ErrNotFound     = errors.New("domain not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrJobNotFound  = errors.New("job not found")
	ErrJobNotFailed = errors.New("job is not in a retryable state")
)

// RegistryStore defines the storage reads the registry domain needs.
type RegistryStore interface {
	GetDomain(ctx context.Context, nameHash string) (*storage.Domain, error)
	GetDomainByLabel(ctx context.Context, label string) (*storage.Domain, error)
	ListDomainsByOwner(ctx context.Context, owner string, limit int) ([]storage.Domain, error)
	ListRecords(ctx context.Context, nameHash string) ([]storage.Record, error)
	GetRecord(ctx context.Context, nameHash, keyHash string) (*storage.Record, error)
}

// JobStore defines the job queue operations the operator surface needs.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*storage.SyncJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]storage.SyncJob, error)
	RequeueJob(ctx context.Context, id string) error
	CountJobs(ctx context.Context) (map[string]int64, error)
}

// ScanProgress defines the checkpoint reads the health surface needs.
type ScanProgress interface {
	Checkpoint(ctx context.Context, chain string) (int64, bool, error)
	EventsApplied(ctx context.Context, chain string) (int64, error)
}

// StatusReporter exposes one scan loop's live state.
type StatusReporter interface {
	Status() (state string, lastTick time.Time, lastErr error)
}

// Service answers the read-only registry queries and the operator job
// actions. All data comes from the mapping store; the service never touches
// a chain.
type Service struct {
	store    RegistryStore
	jobs     JobStore
	progress ScanProgress
	scanners map[string]StatusReporter

	now func() time.Time
}

// NewService creates the registry read service.
func NewService(store RegistryStore, jobs JobStore, progress ScanProgress) *Service {
	return &Service{
		store:    store,
		jobs:     jobs,
		progress: progress,
		scanners: make(map[string]StatusReporter),
		now:      time.Now,
	}
}

// WatchScanner registers a chain's scan loop for health reporting.
func (s *Service) WatchScanner(chain string, reporter StatusReporter) {
	s.scanners[chain] = reporter
}

// Lookup resolves a domain by label or by 0x-prefixed name hash.
func (s *Service) Lookup(ctx context.Context, nameOrHash string) (*DomainView, error) {
	var (
		d   *storage.Domain
		err error
	)
	if validation.IsNameHash(nameOrHash) {
		d, err = s.store.GetDomain(ctx, validation.NormalizeHash(nameOrHash))
	} else {
		if verr := validation.ValidateLabel(nameOrHash); verr != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, verr)
		}
		d, err = s.store.GetDomainByLabel(ctx, nameOrHash)
	}
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("looking up domain: %w", err)
	}
	view := s.domainView(d)
	return &view, nil
}

// ByOwner lists domains owned by an address on either chain.
func (s *Service) ByOwner(ctx context.Context, owner string, limit int) ([]DomainView, error) {
	if err := validation.ValidateOwner(owner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	ds, err := s.store.ListDomainsByOwner(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("listing domains: %w", err)
	}
	views := make([]DomainView, len(ds))
	for i := range ds {
		views[i] = s.domainView(&ds[i])
	}
	return views, nil
}

// Records lists a domain's records, tombstones included.
func (s *Service) Records(ctx context.Context, nameOrHash string) ([]RecordView, error) {
	d, err := s.Lookup(ctx, nameOrHash)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.ListRecords(ctx, d.NameHash)
	if err != nil {
		return nil, fmt.Errorf("listing records: %w", err)
	}
	views := make([]RecordView, len(rs))
	for i, r := range rs {
		views[i] = RecordView{
			KeyHash:         r.KeyHash,
			Key:             r.Key,
			RecordType:      r.RecordType,
			Value:           r.Value,
			SourceChain:     r.SourceChain,
			Version:         r.Version,
			MirroredVersion: r.MirroredVersion,
			Tombstone:       r.Tombstone(),
			UpdatedAt:       r.UpdatedAt,
		}
	}
	return views, nil
}

// Status reports indexing health: per-chain scan progress plus job counts.
// Healthy means no scan loop is faulted.
func (s *Service) Status(ctx context.Context) (*StatusView, error) {
	view := &StatusView{Healthy: true}

	for chain, reporter := range s.scanners {
		cs := ChainStatus{Chain: chain}
		state, lastTick, lastErr := reporter.Status()
		cs.State = state
		cs.LastTick = lastTick
		if lastErr != nil {
			cs.LastError = lastErr.Error()
		}
		if cs.State == "faulted" {
			view.Healthy = false
		}

		cp, ok, err := s.progress.Checkpoint(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("reading %s checkpoint: %w", chain, err)
		}
		cs.Checkpoint = cp
		cs.HasCheckpoint = ok

		applied, err := s.progress.EventsApplied(ctx, chain)
		if err != nil {
			return nil, fmt.Errorf("counting %s events: %w", chain, err)
		}
		cs.EventsApplied = applied

		view.Chains = append(view.Chains, cs)
	}

	counts, err := s.jobs.CountJobs(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting jobs: %w", err)
	}
	view.Jobs = counts
	return view, nil
}

// Jobs lists sync jobs for the operator surface.
func (s *Service) Jobs(ctx context.Context, filter storage.JobFilter) ([]JobView, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	js, err := s.jobs.ListJobs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	views := make([]JobView, len(js))
	for i, j := range js {
		views[i] = jobView(&j)
	}
	return views, nil
}

// RetryJob moves a failed job back to pending.
func (s *Service) RetryJob(ctx context.Context, id string) (*JobView, error) {
	if err := s.jobs.RequeueJob(ctx, id); err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrJobNotFound
		case errors.Is(err, storage.ErrBadStatus):
			return nil, ErrJobNotFailed
		default:
			return nil, fmt.Errorf("requeueing job: %w", err)
		}
	}
	j, err := s.jobs.GetJob(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reading job: %w", err)
	}
	view := jobView(j)
	return &view, nil
}

func (s *Service) domainView(d *storage.Domain) DomainView {
	return DomainView{
		NameHash:     d.NameHash,
		Label:        d.Label,
		OwnerPrimary: d.OwnerPrimary,
		OwnerMirror:  d.OwnerMirror,
		Expiration:   d.Expiration,
		Expired:      d.Expired(s.now()),
		Resolver:     d.Resolver,
		WrapState:    d.WrapState,
		NFTMint:      d.NFTMint,
		PrimaryBlock: d.PrimaryBlock,
		PrimaryTx:    d.PrimaryTx,
		MirrorSlot:   d.MirrorSlot,
		LastSyncedAt: d.LastSyncedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

func jobView(j *storage.SyncJob) JobView {
	return JobView{
		ID:            j.ID,
		JobType:       j.JobType,
		TargetChain:   j.TargetChain,
		NameHash:      j.NameHash,
		KeyHash:       j.KeyHash,
		Version:       j.Version,
		Status:        j.Status,
		RetryCount:    j.RetryCount,
		LastError:     j.LastError,
		NextAttemptAt: j.NextAttemptAt,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}
