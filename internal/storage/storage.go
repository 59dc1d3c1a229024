// Package storage is the mapping store: the durable domain/record/job tables
// that are the single source of truth for API reads and the sync engine.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pnslabs/pns-indexer/internal/config"
)

// Job types. Each names the target-chain instruction the dispatcher submits.
const (
	JobMirrorDomain   = "mirror_domain"
	JobUpsertRecord   = "upsert_record"
	JobDeleteRecord   = "delete_record"
	JobSetWrapState   = "set_wrap_state"
	JobUpdateDelegate = "update_delegate"
	JobMarkCheckpoint = "mark_checkpoint"
)

// Job statuses.
const (
	JobPending  = "pending"
	JobInFlight = "in_flight"
	JobDone     = "done"
	JobFailed   = "failed"
)

// Domain is one registered name. Rows are created on the first observed
// registration and never deleted; expiry is a marker, not a removal.
type Domain struct {
	NameHash     string
	Label        string
	OwnerPrimary string
	OwnerMirror  string
	Expiration   int64
	Resolver     string
	WrapState    string
	NFTMint      string
	PrimaryBlock int64
	PrimaryTx    string
	MirrorSlot   int64
	LastSyncedAt time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Expired reports whether the domain's registration has lapsed.
func (d *Domain) Expired(now time.Time) bool {
	return d.Expiration > 0 && now.Unix() >= d.Expiration
}

// Record is one key/value attribute of a domain. Version is the per-key
// monotonic write counter; MirroredVersion is the highest version the
// counterpart chain has confirmed back.
type Record struct {
	NameHash        string
	KeyHash         string
	Key             string
	RecordType      string
	Value           []byte
	SourceChain     string
	Version         int64
	MirroredVersion int64
	UpdatedAt       time.Time
}

// Tombstone reports whether the record was deleted by an empty write.
func (r *Record) Tombstone() bool { return len(r.Value) == 0 }

// SyncJob is one queued cross-chain propagation task.
type SyncJob struct {
	ID            string
	JobType       string
	TargetChain   string
	NameHash      string
	KeyHash       string
	Payload       []byte
	Version       int64
	Status        string
	RetryCount    int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// JobFilter restricts ListJobs.
type JobFilter struct {
	Status      string
	TargetChain string
	JobType     string
	NameHash    string
	Limit       int
}

// EventRef identifies one on-chain event within a batch. Together with the
// batch's chain it forms the idempotency key for replayed windows.
type EventRef struct {
	TxHash   string
	LogIndex uint32
	Block    int64
}

// DomainChange is one event's effect on domain-level fields. Nil pointers
// leave the column untouched; Expiration only ever moves forward.
type DomainChange struct {
	Ref          EventRef
	NameHash     string
	Label        *string
	OwnerPrimary *string
	OwnerMirror  *string
	Resolver     *string
	WrapState    *string
	NFTMint      *string
	Expiration   *int64
	PrimaryBlock *int64
	PrimaryTx    *string
	MirrorSlot   *int64
	Synced       bool // mirror confirmation: stamp last_synced_at

	// PriorWrapState is filled in by ApplyBatch on returned changes so the
	// sync service can enforce wrap exclusivity against the pre-change state.
	PriorWrapState string
}

// RecordChange is one event's effect on a record. Version zero asks the
// store to assign the next version in the key's sequence (authoritative-chain
// origin writes); a non-zero version is applied only if strictly greater than
// the stored one.
type RecordChange struct {
	Ref         EventRef
	NameHash    string
	KeyHash     string
	Key         string
	RecordType  string
	Value       []byte
	SourceChain string
	Version     int64
	Tombstone   bool
}

// Batch is one fully-decoded scan window. ApplyBatch applies every change and
// advances the chain's checkpoint to ToBlock as a single logical unit.
type Batch struct {
	Chain     string
	FromBlock int64
	ToBlock   int64
	Domains   []DomainChange
	Records   []RecordChange
}

// AppliedRecord is one accepted record write: the change, the version the
// store assigned, and the mirrored version as it stood before the write.
type AppliedRecord struct {
	Change           RecordChange
	Version          int64
	PriorMirrored    int64
	PriorSourceChain string
}

// BatchResult reports what a batch actually did. Replayed changes (identity
// already in the applied-events ledger) and stale record versions are counted
// but have no effect. DomainRows carries the post-merge row for every name the
// batch touched; Jobs carries the propagation jobs the planner derived, which
// committed in the same transaction as the batch.
type BatchResult struct {
	Chain        string
	Domains      []DomainChange
	Records      []AppliedRecord
	DomainRows   map[string]*Domain
	Jobs         []*SyncJob
	Replayed     int
	StaleRecords int
}

// Empty reports whether the batch changed nothing new.
func (r *BatchResult) Empty() bool {
	return len(r.Domains) == 0 && len(r.Records) == 0
}

// DomainStore handles domain reads and mirror bookkeeping.
type DomainStore interface {
	GetDomain(ctx context.Context, nameHash string) (*Domain, error)
	GetDomainByLabel(ctx context.Context, label string) (*Domain, error)
	ListDomainsByOwner(ctx context.Context, owner string, limit int) ([]Domain, error)
	// MarkSynced stamps the mirror bookkeeping after a mirror_domain job
	// lands; the mirror's own confirmation event later carries the real slot.
	MarkSynced(ctx context.Context, nameHash string, mirrorSlot int64, at time.Time) error
}

// RecordStore handles record reads and mirror bookkeeping.
type RecordStore interface {
	GetRecord(ctx context.Context, nameHash, keyHash string) (*Record, error)
	ListRecords(ctx context.Context, nameHash string) ([]Record, error)
	// MarkMirrored raises the record's mirrored version; lower values are
	// ignored.
	MarkMirrored(ctx context.Context, nameHash, keyHash string, version int64) error
}

// JobStore owns the SyncJob queue lifecycle.
type JobStore interface {
	EnqueueJob(ctx context.Context, job *SyncJob) error
	GetJob(ctx context.Context, id string) (*SyncJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]SyncJob, error)
	// ClaimJobs atomically moves up to limit due pending jobs for the target
	// chain to in_flight and returns them.
	ClaimJobs(ctx context.Context, targetChain string, limit int, now time.Time) ([]SyncJob, error)
	CompleteJob(ctx context.Context, id string) error
	// ReleaseJob returns an in-flight job to pending with an incremented
	// retry count and a backoff deadline.
	ReleaseJob(ctx context.Context, id string, nextAttempt time.Time, lastError string) error
	FailJob(ctx context.Context, id, lastError string) error
	// RequeueJob moves a failed job back to pending (operator action).
	// A missing id is ErrNotFound; any other status is ErrBadStatus.
	RequeueJob(ctx context.Context, id string) error
	// ReapStaleJobs returns in-flight jobs claimed before cutoff to pending,
	// recovering claims orphaned by a crash mid-dispatch.
	ReapStaleJobs(ctx context.Context, targetChain string, cutoff time.Time) (int64, error)
	CountJobs(ctx context.Context) (map[string]int64, error)
}

// JobPlanner derives the propagation jobs one applied batch implies.
// ApplyBatch calls it inside the batch transaction, so a window's mutations
// and its jobs commit or roll back together.
type JobPlanner interface {
	PlanJobs(result *BatchResult) ([]*SyncJob, error)
}

// ScanStore handles checkpoints and atomic batch application.
type ScanStore interface {
	Checkpoint(ctx context.Context, chain string) (int64, bool, error)
	// SetCheckpoint seeds or forces a chain's cursor (startup/backfill only;
	// scans advance it through ApplyBatch).
	SetCheckpoint(ctx context.Context, chain string, position int64) error
	// ApplyBatch applies all changes, plans and enqueues the resulting sync
	// jobs, and advances the checkpoint in one transaction. Changes whose
	// event identity was already applied are skipped, so re-applying a window
	// after a crash has no effect. A nil planner enqueues nothing.
	ApplyBatch(ctx context.Context, batch *Batch, planner JobPlanner) (*BatchResult, error)
	// EventsApplied returns the total events recorded for a chain.
	EventsApplied(ctx context.Context, chain string) (int64, error)
}

// Store combines all storage interfaces with lifecycle methods. Consumers
// declare their own narrower interfaces where practical.
type Store interface {
	DomainStore
	RecordStore
	JobStore
	ScanStore

	Close() error
	Migrate(ctx context.Context) error
}

// New creates a store based on configuration.
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
