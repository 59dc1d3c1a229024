package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL mode so scan loops and API reads don't block each other
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Domains: one row per registered name, never deleted
	CREATE TABLE IF NOT EXISTS domains (
		name_hash TEXT PRIMARY KEY,
		label TEXT,
		owner_primary TEXT,
		owner_mirror TEXT,
		expiration INTEGER NOT NULL DEFAULT 0,
		resolver TEXT,
		wrap_state TEXT NOT NULL DEFAULT 'none',
		nft_mint TEXT,
		primary_block INTEGER NOT NULL DEFAULT 0,
		primary_tx TEXT,
		mirror_slot INTEGER NOT NULL DEFAULT 0,
		last_synced_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Records: versioned key/value attributes per domain
	CREATE TABLE IF NOT EXISTS records (
		name_hash TEXT NOT NULL,
		key_hash TEXT NOT NULL,
		key TEXT,
		record_type TEXT NOT NULL,
		value BLOB,
		source_chain TEXT NOT NULL,
		version INTEGER NOT NULL,
		mirrored_version INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (name_hash, key_hash)
	);

	-- Sync jobs: queued cross-chain propagation tasks
	CREATE TABLE IF NOT EXISTS sync_jobs (
		id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		target_chain TEXT NOT NULL,
		name_hash TEXT,
		key_hash TEXT,
		payload BLOB,
		version INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		retry_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT,
		next_attempt_at INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Per-chain scan cursor
	CREATE TABLE IF NOT EXISTS checkpoints (
		chain TEXT PRIMARY KEY,
		position INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	-- Idempotency ledger: one row per applied on-chain event
	CREATE TABLE IF NOT EXISTS applied_events (
		chain TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index INTEGER NOT NULL,
		block INTEGER NOT NULL,
		PRIMARY KEY (chain, tx_hash, log_index)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_domains_owner_primary ON domains(owner_primary);
	CREATE INDEX IF NOT EXISTS idx_domains_owner_mirror ON domains(owner_mirror);
	CREATE INDEX IF NOT EXISTS idx_domains_label ON domains(label);
	CREATE INDEX IF NOT EXISTS idx_records_name_hash ON records(name_hash);
	CREATE INDEX IF NOT EXISTS idx_jobs_claim ON sync_jobs(status, target_chain, next_attempt_at);
	CREATE INDEX IF NOT EXISTS idx_applied_events_chain ON applied_events(chain);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("database migrations complete")
	return nil
}

const domainColumns = `name_hash, label, owner_primary, owner_mirror, expiration, resolver,
	wrap_state, nft_mint, primary_block, primary_tx, mirror_slot, last_synced_at, created_at, updated_at`

func scanDomain(row interface{ Scan(...any) error }) (*Domain, error) {
	var d Domain
	var label, ownerP, ownerM, resolver, mint, tx sql.NullString
	var synced, created, updated int64
	err := row.Scan(&d.NameHash, &label, &ownerP, &ownerM, &d.Expiration, &resolver,
		&d.WrapState, &mint, &d.PrimaryBlock, &tx, &d.MirrorSlot, &synced, &created, &updated)
	if err != nil {
		return nil, err
	}
	d.Label = strOr(label)
	d.OwnerPrimary = strOr(ownerP)
	d.OwnerMirror = strOr(ownerM)
	d.Resolver = strOr(resolver)
	d.NFTMint = strOr(mint)
	d.PrimaryTx = strOr(tx)
	d.LastSyncedAt = fromUnix(synced)
	d.CreatedAt = fromUnix(created)
	d.UpdatedAt = fromUnix(updated)
	return &d, nil
}

// GetDomain retrieves a domain by its name hash
func (s *SQLiteStore) GetDomain(ctx context.Context, nameHash string) (*Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE name_hash = ?`
	d, err := scanDomain(s.db.QueryRowContext(ctx, query, nameHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// GetDomainByLabel retrieves a domain by its human-readable label
func (s *SQLiteStore) GetDomainByLabel(ctx context.Context, label string) (*Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains WHERE label = ?`
	d, err := scanDomain(s.db.QueryRowContext(ctx, query, label))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDomainsByOwner lists domains owned by an identity on either chain
func (s *SQLiteStore) ListDomainsByOwner(ctx context.Context, owner string, limit int) ([]Domain, error) {
	query := `SELECT ` + domainColumns + ` FROM domains
		WHERE owner_primary = ? OR owner_mirror = ?
		ORDER BY label LIMIT ?`
	rows, err := s.db.QueryContext(ctx, query, owner, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var domains []Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		domains = append(domains, *d)
	}
	return domains, rows.Err()
}

// MarkSynced stamps mirror bookkeeping after a mirror_domain job lands
func (s *SQLiteStore) MarkSynced(ctx context.Context, nameHash string, mirrorSlot int64, at time.Time) error {
	query := `UPDATE domains SET mirror_slot = ?, last_synced_at = ?, updated_at = ?
		WHERE name_hash = ? AND mirror_slot <= ?`
	_, err := s.db.ExecContext(ctx, query, mirrorSlot, toUnix(at), time.Now().Unix(), nameHash, mirrorSlot)
	return err
}

const recordColumns = `name_hash, key_hash, key, record_type, value, source_chain,
	version, mirrored_version, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	var key sql.NullString
	var updated int64
	err := row.Scan(&r.NameHash, &r.KeyHash, &key, &r.RecordType, &r.Value, &r.SourceChain,
		&r.Version, &r.MirroredVersion, &updated)
	if err != nil {
		return nil, err
	}
	r.Key = strOr(key)
	r.UpdatedAt = fromUnix(updated)
	return &r, nil
}

// GetRecord retrieves one record by its composite key
func (s *SQLiteStore) GetRecord(ctx context.Context, nameHash, keyHash string) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE name_hash = ? AND key_hash = ?`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, nameHash, keyHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRecords lists all records for a domain, tombstones included
func (s *SQLiteStore) ListRecords(ctx context.Context, nameHash string) ([]Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE name_hash = ? ORDER BY key_hash`
	rows, err := s.db.QueryContext(ctx, query, nameHash)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// MarkMirrored raises a record's mirrored version
func (s *SQLiteStore) MarkMirrored(ctx context.Context, nameHash, keyHash string, version int64) error {
	query := `UPDATE records SET mirrored_version = ? WHERE name_hash = ? AND key_hash = ? AND mirrored_version < ?`
	_, err := s.db.ExecContext(ctx, query, version, nameHash, keyHash, version)
	return err
}

const jobColumns = `id, job_type, target_chain, name_hash, key_hash, payload, version,
	status, retry_count, last_error, next_attempt_at, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*SyncJob, error) {
	var j SyncJob
	var nameHash, keyHash, lastErr sql.NullString
	var next, created, updated int64
	err := row.Scan(&j.ID, &j.JobType, &j.TargetChain, &nameHash, &keyHash, &j.Payload, &j.Version,
		&j.Status, &j.RetryCount, &lastErr, &next, &created, &updated)
	if err != nil {
		return nil, err
	}
	j.NameHash = strOr(nameHash)
	j.KeyHash = strOr(keyHash)
	j.LastError = strOr(lastErr)
	j.NextAttemptAt = fromUnix(next)
	j.CreatedAt = fromUnix(created)
	j.UpdatedAt = fromUnix(updated)
	return &j, nil
}

// EnqueueJob appends a new pending sync job
func (s *SQLiteStore) EnqueueJob(ctx context.Context, job *SyncJob) error {
	return insertJobSQLite(ctx, s.db, job)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertJobSQLite(ctx context.Context, db execer, job *SyncJob) error {
	if job.ID == "" {
		job.ID = generateID()
	}
	if job.Status == "" {
		job.Status = JobPending
	}
	now := time.Now().Unix()
	query := `INSERT INTO sync_jobs (id, job_type, target_chain, name_hash, key_hash, payload,
		version, status, retry_count, next_attempt_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`
	_, err := db.ExecContext(ctx, query, job.ID, job.JobType, job.TargetChain,
		nullStr(job.NameHash), nullStr(job.KeyHash), job.Payload, job.Version, job.Status,
		toUnix(job.NextAttemptAt), now, now)
	return err
}

// GetJob retrieves a job by ID
func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE id = ?`
	j, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// ListJobs lists jobs matching the filter
func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]SyncJob, error) {
	query := `SELECT ` + jobColumns + ` FROM sync_jobs WHERE 1=1`
	var args []any
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.TargetChain != "" {
		query += ` AND target_chain = ?`
		args = append(args, filter.TargetChain)
	}
	if filter.JobType != "" {
		query += ` AND job_type = ?`
		args = append(args, filter.JobType)
	}
	if filter.NameHash != "" {
		query += ` AND name_hash = ?`
		args = append(args, filter.NameHash)
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

// ClaimJobs atomically moves due pending jobs to in_flight
func (s *SQLiteStore) ClaimJobs(ctx context.Context, targetChain string, limit int, now time.Time) ([]SyncJob, error) {
	query := `UPDATE sync_jobs SET status = ?, updated_at = ?
		WHERE id IN (
			SELECT id FROM sync_jobs
			WHERE status = ? AND target_chain = ? AND next_attempt_at <= ?
			ORDER BY created_at LIMIT ?
		)
		RETURNING ` + jobColumns
	rows, err := s.db.QueryContext(ctx, query, JobInFlight, now.Unix(), JobPending, targetChain, now.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []SyncJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (s *SQLiteStore) setJobStatus(ctx context.Context, id, from, to string, extra string, args ...any) error {
	query := `UPDATE sync_jobs SET status = ?, updated_at = ?` + extra + ` WHERE id = ? AND status = ?`
	all := append([]any{to, time.Now().Unix()}, args...)
	all = append(all, id, from)
	res, err := s.db.ExecContext(ctx, query, all...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrBadStatus
	}
	return nil
}

// CompleteJob moves an in-flight job to done
func (s *SQLiteStore) CompleteJob(ctx context.Context, id string) error {
	return s.setJobStatus(ctx, id, JobInFlight, JobDone, ``)
}

// ReleaseJob returns an in-flight job to pending with backoff
func (s *SQLiteStore) ReleaseJob(ctx context.Context, id string, nextAttempt time.Time, lastError string) error {
	return s.setJobStatus(ctx, id, JobInFlight, JobPending,
		`, retry_count = retry_count + 1, next_attempt_at = ?, last_error = ?`,
		nextAttempt.Unix(), lastError)
}

// FailJob moves an in-flight job to failed for operator attention
func (s *SQLiteStore) FailJob(ctx context.Context, id, lastError string) error {
	return s.setJobStatus(ctx, id, JobInFlight, JobFailed, `, last_error = ?`, lastError)
}

// RequeueJob moves a failed job back to pending. A missing id reports
// ErrNotFound so the operator surface can answer 404 rather than 409.
func (s *SQLiteStore) RequeueJob(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM sync_jobs WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if status != JobFailed {
		return ErrBadStatus
	}

	_, err = tx.ExecContext(ctx, `UPDATE sync_jobs SET status = ?, retry_count = 0,
		next_attempt_at = 0, last_error = NULL, updated_at = ? WHERE id = ?`,
		JobPending, time.Now().Unix(), id)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ReapStaleJobs returns in-flight jobs claimed before cutoff to pending. A
// claim that old means the dispatcher died between claim and settle.
func (s *SQLiteStore) ReapStaleJobs(ctx context.Context, targetChain string, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE sync_jobs
		SET status = ?, last_error = 'claim lease expired', updated_at = ?
		WHERE status = ? AND target_chain = ? AND updated_at < ?`,
		JobPending, time.Now().Unix(), JobInFlight, targetChain, cutoff.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountJobs returns job counts grouped by status
func (s *SQLiteStore) CountJobs(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_jobs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// Checkpoint returns a chain's scan cursor
func (s *SQLiteStore) Checkpoint(ctx context.Context, chain string) (int64, bool, error) {
	var pos int64
	err := s.db.QueryRowContext(ctx, `SELECT position FROM checkpoints WHERE chain = ?`, chain).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return pos, true, nil
}

// SetCheckpoint seeds or forces a chain's scan cursor
func (s *SQLiteStore) SetCheckpoint(ctx context.Context, chain string, position int64) error {
	query := `INSERT INTO checkpoints (chain, position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chain) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, query, chain, position, time.Now().Unix())
	return err
}

// EventsApplied returns the total events recorded for a chain
func (s *SQLiteStore) EventsApplied(ctx context.Context, chain string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM applied_events WHERE chain = ?`, chain).Scan(&n)
	return n, err
}

// ApplyBatch applies a decoded scan window, enqueues the jobs the planner
// derives from it, and advances the checkpoint in one transaction. Events
// already present in the applied-events ledger are skipped, which makes
// crash-replay of a window a no-op; because the jobs commit with the batch, a
// crash never separates an applied write from its propagation job.
func (s *SQLiteStore) ApplyBatch(ctx context.Context, batch *Batch, planner JobPlanner) (*BatchResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}
	defer tx.Rollback()

	result := &BatchResult{Chain: batch.Chain, DomainRows: make(map[string]*Domain)}
	now := time.Now().Unix()

	for _, dc := range batch.Domains {
		fresh, err := insertAppliedEventSQLite(ctx, tx, batch.Chain, dc.Ref)
		if err != nil {
			return nil, err
		}
		if !fresh {
			result.Replayed++
			continue
		}
		applied, row, err := applyDomainChangeSQLite(ctx, tx, dc, now)
		if err != nil {
			return nil, err
		}
		result.Domains = append(result.Domains, applied)
		result.DomainRows[applied.NameHash] = row
	}

	for _, rc := range batch.Records {
		fresh, err := insertAppliedEventSQLite(ctx, tx, batch.Chain, rc.Ref)
		if err != nil {
			return nil, err
		}
		if !fresh {
			result.Replayed++
			continue
		}
		accepted, applied, err := applyRecordChangeSQLite(ctx, tx, batch.Chain, rc, now)
		if err != nil {
			return nil, err
		}
		if accepted {
			result.Records = append(result.Records, applied)
		} else {
			result.StaleRecords++
		}
	}

	if planner != nil && !result.Empty() {
		jobs, err := planner.PlanJobs(result)
		if err != nil {
			return nil, fmt.Errorf("planning sync jobs: %w", err)
		}
		for _, job := range jobs {
			if err := insertJobSQLite(ctx, tx, job); err != nil {
				return nil, fmt.Errorf("enqueueing %s job for %s: %w", job.JobType, job.NameHash, err)
			}
		}
		result.Jobs = jobs
	}

	// Advance the cursor, never backwards
	_, err = tx.ExecContext(ctx, `INSERT INTO checkpoints (chain, position, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(chain) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at
		WHERE excluded.position > checkpoints.position`,
		batch.Chain, batch.ToBlock, now)
	if err != nil {
		return nil, fmt.Errorf("advancing checkpoint: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing batch: %w", err)
	}
	return result, nil
}

func insertAppliedEventSQLite(ctx context.Context, tx *sql.Tx, chain string, ref EventRef) (bool, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO applied_events (chain, tx_hash, log_index, block)
		VALUES (?, ?, ?, ?) ON CONFLICT DO NOTHING`,
		chain, ref.TxHash, ref.LogIndex, ref.Block)
	if err != nil {
		return false, fmt.Errorf("recording event %s/%d: %w", ref.TxHash, ref.LogIndex, err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func applyDomainChangeSQLite(ctx context.Context, tx *sql.Tx, dc DomainChange, now int64) (DomainChange, *Domain, error) {
	cur, err := scanDomain(tx.QueryRowContext(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE name_hash = ?`, dc.NameHash))
	if errors.Is(err, sql.ErrNoRows) {
		cur = &Domain{NameHash: dc.NameHash, WrapState: "none", CreatedAt: fromUnix(now)}
	} else if err != nil {
		return dc, nil, fmt.Errorf("reading domain %s: %w", dc.NameHash, err)
	}

	dc.PriorWrapState = cur.WrapState
	merged := mergeDomainChange(*cur, dc)

	_, err = tx.ExecContext(ctx, `INSERT INTO domains (`+domainColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name_hash) DO UPDATE SET
			label = excluded.label,
			owner_primary = excluded.owner_primary,
			owner_mirror = excluded.owner_mirror,
			expiration = excluded.expiration,
			resolver = excluded.resolver,
			wrap_state = excluded.wrap_state,
			nft_mint = excluded.nft_mint,
			primary_block = excluded.primary_block,
			primary_tx = excluded.primary_tx,
			mirror_slot = excluded.mirror_slot,
			last_synced_at = excluded.last_synced_at,
			updated_at = excluded.updated_at`,
		merged.NameHash, nullStr(merged.Label), nullStr(merged.OwnerPrimary), nullStr(merged.OwnerMirror),
		merged.Expiration, nullStr(merged.Resolver), merged.WrapState, nullStr(merged.NFTMint),
		merged.PrimaryBlock, nullStr(merged.PrimaryTx), merged.MirrorSlot, toUnix(merged.LastSyncedAt),
		toUnix(merged.CreatedAt), now)
	if err != nil {
		return dc, nil, fmt.Errorf("upserting domain %s: %w", dc.NameHash, err)
	}
	merged.UpdatedAt = fromUnix(now)
	return dc, &merged, nil
}

func applyRecordChangeSQLite(ctx context.Context, tx *sql.Tx, chain string, rc RecordChange, now int64) (bool, AppliedRecord, error) {
	cur, err := scanRecord(tx.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM records WHERE name_hash = ? AND key_hash = ?`,
		rc.NameHash, rc.KeyHash))
	if errors.Is(err, sql.ErrNoRows) {
		cur = nil
	} else if err != nil {
		return false, AppliedRecord{}, fmt.Errorf("reading record %s/%s: %w", rc.NameHash, rc.KeyHash, err)
	}

	var curVersion, curMirrored int64
	var curSource string
	if cur != nil {
		curVersion = cur.Version
		curMirrored = cur.MirroredVersion
		curSource = cur.SourceChain
	}

	// A version-less tombstone from the chain that is not the stored source,
	// over a row already deleted, is the counterpart confirming a dispatched
	// delete. It advances mirror bookkeeping and nothing else.
	if rc.Version == 0 && rc.Tombstone && cur != nil && cur.Tombstone() && chain != cur.SourceChain {
		if curVersion > curMirrored {
			if _, err := tx.ExecContext(ctx,
				`UPDATE records SET mirrored_version = ? WHERE name_hash = ? AND key_hash = ?`,
				curVersion, rc.NameHash, rc.KeyHash); err != nil {
				return false, AppliedRecord{}, fmt.Errorf("bumping mirrored version: %w", err)
			}
		}
		return false, AppliedRecord{}, nil
	}

	version := rc.Version
	if version == 0 {
		version = curVersion + 1
	}

	if version <= curVersion {
		// Stale. A stale write observed on the chain that is not the stored
		// source is the mirror's own confirmation looping back: remember how
		// far the mirror has caught up.
		if cur != nil && chain != cur.SourceChain && rc.Version > curMirrored {
			if _, err := tx.ExecContext(ctx,
				`UPDATE records SET mirrored_version = ? WHERE name_hash = ? AND key_hash = ?`,
				rc.Version, rc.NameHash, rc.KeyHash); err != nil {
				return false, AppliedRecord{}, fmt.Errorf("bumping mirrored version: %w", err)
			}
		}
		return false, AppliedRecord{}, nil
	}

	value := rc.Value
	if rc.Tombstone {
		value = nil
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name_hash, key_hash) DO UPDATE SET
			key = excluded.key,
			record_type = excluded.record_type,
			value = excluded.value,
			source_chain = excluded.source_chain,
			version = excluded.version,
			updated_at = excluded.updated_at`,
		rc.NameHash, rc.KeyHash, nullStr(rc.Key), rc.RecordType, value, rc.SourceChain,
		version, curMirrored, now)
	if err != nil {
		return false, AppliedRecord{}, fmt.Errorf("upserting record %s/%s: %w", rc.NameHash, rc.KeyHash, err)
	}

	return true, AppliedRecord{
		Change:           rc,
		Version:          version,
		PriorMirrored:    curMirrored,
		PriorSourceChain: curSource,
	}, nil
}

// mergeDomainChange folds a partial change into the current row. Expiration
// only moves forward.
func mergeDomainChange(d Domain, dc DomainChange) Domain {
	if dc.Label != nil {
		d.Label = *dc.Label
	}
	if dc.OwnerPrimary != nil {
		d.OwnerPrimary = *dc.OwnerPrimary
	}
	if dc.OwnerMirror != nil {
		d.OwnerMirror = *dc.OwnerMirror
	}
	if dc.Resolver != nil {
		d.Resolver = *dc.Resolver
	}
	if dc.WrapState != nil {
		d.WrapState = *dc.WrapState
	}
	if dc.NFTMint != nil {
		d.NFTMint = *dc.NFTMint
	}
	if dc.Expiration != nil && *dc.Expiration > d.Expiration {
		d.Expiration = *dc.Expiration
	}
	if dc.PrimaryBlock != nil {
		d.PrimaryBlock = *dc.PrimaryBlock
	}
	if dc.PrimaryTx != nil {
		d.PrimaryTx = *dc.PrimaryTx
	}
	if dc.MirrorSlot != nil && *dc.MirrorSlot > d.MirrorSlot {
		d.MirrorSlot = *dc.MirrorSlot
	}
	if dc.Synced {
		d.LastSyncedAt = time.Now().UTC()
	}
	return d
}
