package storage

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

const (
	testNameHash = "0x" + "11" + "11111111111111111111111111111111111111111111111111111111111111"
	testKeyHash  = "0x" + "22" + "22222222222222222222222222222222222222222222222222222222222222"
	testOwner    = "0x1111111111111111111111111111111111111111"
)

func ref(tx string, logIndex uint32, block int64) EventRef {
	return EventRef{TxHash: tx, LogIndex: logIndex, Block: block}
}

func registration(block int64) *Batch {
	expiration := time.Now().Add(24 * time.Hour).Unix()
	return &Batch{
		Chain:     "polygon",
		FromBlock: block,
		ToBlock:   block,
		Domains: []DomainChange{{
			Ref:          ref(fmt.Sprintf("0xreg%d", block), 0, block),
			NameHash:     testNameHash,
			Label:        strp("alice"),
			OwnerPrimary: strp(testOwner),
			Expiration:   &expiration,
			PrimaryBlock: &block,
			PrimaryTx:    strp(fmt.Sprintf("0xreg%d", block)),
		}},
	}
}

func recordWrite(block, version int64, value []byte) *Batch {
	return &Batch{
		Chain:     "polygon",
		FromBlock: block,
		ToBlock:   block,
		Records: []RecordChange{{
			Ref:         ref(fmt.Sprintf("0xrec%d", block), 0, block),
			NameHash:    testNameHash,
			KeyHash:     testKeyHash,
			Key:         "avatar",
			RecordType:  "text",
			Value:       value,
			SourceChain: "polygon",
			Version:     version,
		}},
	}
}

func strp(s string) *string { return &s }

func TestApplyBatchRegistration(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	result, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)
	require.Len(t, result.Domains, 1)
	assert.Equal(t, 0, result.Replayed)

	d, err := store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Label)
	assert.Equal(t, testOwner, d.OwnerPrimary)
	assert.Equal(t, "none", d.WrapState)
	assert.Equal(t, int64(100), d.PrimaryBlock)

	byLabel, err := store.GetDomainByLabel(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, testNameHash, byLabel.NameHash)

	cp, ok, err := store.Checkpoint(ctx, "polygon")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(100), cp)

	applied, err := store.EventsApplied(ctx, "polygon")
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied)
}

func TestApplyBatchReplayIsNoop(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := registration(100)
	_, err := store.ApplyBatch(ctx, batch, nil)
	require.NoError(t, err)

	// Same window again, as after a crash between apply and scan resume
	result, err := store.ApplyBatch(ctx, batch, nil)
	require.NoError(t, err)
	assert.True(t, result.Empty())
	assert.Equal(t, 1, result.Replayed)

	applied, err := store.EventsApplied(ctx, "polygon")
	require.NoError(t, err)
	assert.Equal(t, int64(1), applied, "ledger records each event once")
}

func TestApplyBatchPartialReplay(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)

	// A wider window containing the already-applied event plus a new one
	expiration := time.Now().Add(48 * time.Hour).Unix()
	wide := registration(100)
	wide.ToBlock = 101
	wide.Domains = append(wide.Domains, DomainChange{
		Ref:        ref("0xrenew101", 0, 101),
		NameHash:   testNameHash,
		Expiration: &expiration,
	})

	result, err := store.ApplyBatch(ctx, wide, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Replayed)
	require.Len(t, result.Domains, 1)

	d, err := store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)
	assert.Equal(t, expiration, d.Expiration)
}

func TestCheckpointNeverRegresses(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetCheckpoint(ctx, "polygon", 500))

	// A replayed old window must not pull the cursor backwards
	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)

	cp, ok, err := store.Checkpoint(ctx, "polygon")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(500), cp)
}

func TestCheckpointMissingChain(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Checkpoint(context.Background(), "solana")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestExpirationOnlyMovesForward(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)
	d, err := store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)

	// An out-of-order event carrying an older expiration loses
	older := d.Expiration - 3600
	batch := &Batch{
		Chain: "polygon", FromBlock: 101, ToBlock: 101,
		Domains: []DomainChange{{
			Ref:        ref("0xold101", 0, 101),
			NameHash:   testNameHash,
			Expiration: &older,
		}},
	}
	_, err = store.ApplyBatch(ctx, batch, nil)
	require.NoError(t, err)

	after, err := store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)
	assert.Equal(t, d.Expiration, after.Expiration)
}

func TestRecordVersionAssignment(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)

	// Version zero asks for the next in sequence
	result, err := store.ApplyBatch(ctx, recordWrite(101, 0, []byte("v1")), nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(1), result.Records[0].Version)

	result, err = store.ApplyBatch(ctx, recordWrite(102, 0, []byte("v2")), nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(2), result.Records[0].Version)

	// An explicit higher version applies
	result, err = store.ApplyBatch(ctx, recordWrite(103, 7, []byte("v7")), nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(7), result.Records[0].Version)

	// An explicit lower or equal version is stale
	result, err = store.ApplyBatch(ctx, recordWrite(104, 7, []byte("late")), nil)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 1, result.StaleRecords)

	rec, err := store.GetRecord(ctx, testNameHash, testKeyHash)
	require.NoError(t, err)
	assert.Equal(t, []byte("v7"), rec.Value)
	assert.Equal(t, int64(7), rec.Version)
}

func TestRecordTombstone(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, recordWrite(101, 0, []byte("hello")), nil)
	require.NoError(t, err)

	del := recordWrite(102, 0, nil)
	del.Records[0].Tombstone = true
	result, err := store.ApplyBatch(ctx, del, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	rec, err := store.GetRecord(ctx, testNameHash, testKeyHash)
	require.NoError(t, err)
	assert.True(t, rec.Tombstone())
	assert.Equal(t, int64(2), rec.Version, "deletes advance the version like any write")

	records, err := store.ListRecords(ctx, testNameHash)
	require.NoError(t, err)
	require.Len(t, records, 1, "tombstones stay listed")
}

func TestMirrorEchoBumpsMirroredVersion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, recordWrite(101, 0, []byte("hello")), nil)
	require.NoError(t, err)

	// The mirror chain announcing the same version back is stale as a write
	// but proves how far the mirror has caught up.
	echo := &Batch{
		Chain: "solana", FromBlock: 9000, ToBlock: 9000,
		Records: []RecordChange{{
			Ref:         ref("5oLEcho", 0, 9000),
			NameHash:    testNameHash,
			KeyHash:     testKeyHash,
			RecordType:  "text",
			Value:       []byte("hello"),
			SourceChain: "polygon",
			Version:     1,
		}},
	}
	result, err := store.ApplyBatch(ctx, echo, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 1, result.StaleRecords)

	rec, err := store.GetRecord(ctx, testNameHash, testKeyHash)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.MirroredVersion)
	assert.Equal(t, []byte("hello"), rec.Value, "echo never rewrites the value")
}

func TestMarkMirrored(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, recordWrite(101, 5, []byte("x")), nil)
	require.NoError(t, err)

	require.NoError(t, store.MarkMirrored(ctx, testNameHash, testKeyHash, 4))
	rec, err := store.GetRecord(ctx, testNameHash, testKeyHash)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.MirroredVersion)

	// Lower values are ignored
	require.NoError(t, store.MarkMirrored(ctx, testNameHash, testKeyHash, 2))
	rec, err = store.GetRecord(ctx, testNameHash, testKeyHash)
	require.NoError(t, err)
	assert.Equal(t, int64(4), rec.MirroredVersion)
}

func TestWrapChangeCarriesPriorState(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)

	wrap := &Batch{
		Chain: "solana", FromBlock: 9000, ToBlock: 9000,
		Domains: []DomainChange{{
			Ref:       ref("5oLWrap", 0, 9000),
			NameHash:  testNameHash,
			WrapState: strp("solana"),
			NFTMint:   strp("Mint111"),
		}},
	}
	result, err := store.ApplyBatch(ctx, wrap, nil)
	require.NoError(t, err)
	require.Len(t, result.Domains, 1)
	assert.Equal(t, "none", result.Domains[0].PriorWrapState)

	d, err := store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)
	assert.Equal(t, "solana", d.WrapState)
	assert.Equal(t, "Mint111", d.NFTMint)

	// The merged row the batch returns matches what was stored
	row := result.DomainRows[testNameHash]
	require.NotNil(t, row)
	assert.Equal(t, "solana", row.WrapState)
	assert.Equal(t, "Mint111", row.NFTMint)
}

func TestMarkSynced(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.MarkSynced(ctx, testNameHash, 9000, now))

	d, err := store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), d.MirrorSlot)
	assert.Equal(t, now.Unix(), d.LastSyncedAt.Unix())

	// A stale confirmation does not rewind the slot
	require.NoError(t, store.MarkSynced(ctx, testNameHash, 8000, now.Add(time.Minute)))
	d, err = store.GetDomain(ctx, testNameHash)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), d.MirrorSlot)
}

func TestListDomainsByOwnerEitherChain(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, registration(100), nil)
	require.NoError(t, err)

	mirror := "SoDelegate1111111111111111111111111111111111"
	batch := &Batch{
		Chain: "solana", FromBlock: 9000, ToBlock: 9000,
		Domains: []DomainChange{{
			Ref:         ref("5oLDel", 0, 9000),
			NameHash:    testNameHash,
			OwnerMirror: &mirror,
		}},
	}
	_, err = store.ApplyBatch(ctx, batch, nil)
	require.NoError(t, err)

	byPrimary, err := store.ListDomainsByOwner(ctx, testOwner, 10)
	require.NoError(t, err)
	require.Len(t, byPrimary, 1)

	byMirror, err := store.ListDomainsByOwner(ctx, mirror, 10)
	require.NoError(t, err)
	require.Len(t, byMirror, 1)
	assert.Equal(t, testNameHash, byMirror[0].NameHash)
}

func TestGetDomainNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetDomain(context.Background(), testNameHash)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetDomainByLabel(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.GetRecord(context.Background(), testNameHash, testKeyHash)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJobQueueLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	job := &SyncJob{
		JobType:     JobMirrorDomain,
		TargetChain: "solana",
		NameHash:    testNameHash,
		Payload:     []byte(`{"owner":"0x1"}`),
		Version:     100,
	}
	require.NoError(t, store.EnqueueJob(ctx, job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, JobPending, job.Status)

	// Claim moves it to in_flight
	claimed, err := store.ClaimJobs(ctx, "solana", 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, job.ID, claimed[0].ID)
	assert.Equal(t, JobInFlight, claimed[0].Status)

	// Nothing left to claim
	again, err := store.ClaimJobs(ctx, "solana", 10, now)
	require.NoError(t, err)
	assert.Empty(t, again)

	require.NoError(t, store.CompleteJob(ctx, job.ID))
	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobDone, got.Status)
}

func TestJobReleaseBackoff(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	job := &SyncJob{JobType: JobUpsertRecord, TargetChain: "solana", NameHash: testNameHash}
	require.NoError(t, store.EnqueueJob(ctx, job))

	claimed, err := store.ClaimJobs(ctx, "solana", 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	next := now.Add(time.Minute)
	require.NoError(t, store.ReleaseJob(ctx, job.ID, next, "relayer timeout"))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "relayer timeout", got.LastError)

	// Not due yet
	early, err := store.ClaimJobs(ctx, "solana", 10, now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Empty(t, early)

	// Due after the backoff
	due, err := store.ClaimJobs(ctx, "solana", 10, now.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func TestJobFailAndRequeue(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	job := &SyncJob{JobType: JobSetWrapState, TargetChain: "polygon", NameHash: testNameHash}
	require.NoError(t, store.EnqueueJob(ctx, job))

	_, err := store.ClaimJobs(ctx, "polygon", 10, now)
	require.NoError(t, err)
	require.NoError(t, store.FailJob(ctx, job.ID, "out of retries"))

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobFailed, got.Status)

	require.NoError(t, store.RequeueJob(ctx, job.ID))
	got, err = store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Empty(t, got.LastError)

	// Requeue of a non-failed job is a status violation
	assert.ErrorIs(t, store.RequeueJob(ctx, job.ID), ErrBadStatus)
}

func TestClaimJobsScopedToTarget(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueJob(ctx, &SyncJob{JobType: JobMirrorDomain, TargetChain: "solana"}))
	require.NoError(t, store.EnqueueJob(ctx, &SyncJob{JobType: JobMarkCheckpoint, TargetChain: "polygon"}))

	claimed, err := store.ClaimJobs(ctx, "solana", 10, time.Now())
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "solana", claimed[0].TargetChain)
}

func TestListJobsFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.EnqueueJob(ctx, &SyncJob{
		JobType: JobMirrorDomain, TargetChain: "solana", NameHash: testNameHash,
	}))
	require.NoError(t, store.EnqueueJob(ctx, &SyncJob{
		JobType: JobUpsertRecord, TargetChain: "solana", NameHash: testNameHash, KeyHash: testKeyHash,
	}))
	require.NoError(t, store.EnqueueJob(ctx, &SyncJob{
		JobType: JobMarkCheckpoint, TargetChain: "polygon",
	}))

	byType, err := store.ListJobs(ctx, JobFilter{JobType: JobUpsertRecord})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, testKeyHash, byType[0].KeyHash)

	byTarget, err := store.ListJobs(ctx, JobFilter{TargetChain: "solana"})
	require.NoError(t, err)
	assert.Len(t, byTarget, 2)

	byName, err := store.ListJobs(ctx, JobFilter{NameHash: testNameHash})
	require.NoError(t, err)
	assert.Len(t, byName, 2)

	counts, err := store.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts[JobPending])
}

// stubPlanner returns canned jobs, or an error, and counts invocations.
type stubPlanner struct {
	jobs  []*SyncJob
	err   error
	calls int
}

func (p *stubPlanner) PlanJobs(result *BatchResult) ([]*SyncJob, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.jobs, nil
}

func TestApplyBatchEnqueuesPlannedJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	planner := &stubPlanner{jobs: []*SyncJob{{
		JobType:     JobMirrorDomain,
		TargetChain: "solana",
		NameHash:    testNameHash,
		Version:     100,
	}}}

	result, err := store.ApplyBatch(ctx, registration(100), planner)
	require.NoError(t, err)
	assert.Equal(t, 1, planner.calls)
	require.Len(t, result.Jobs, 1)
	assert.NotEmpty(t, result.Jobs[0].ID)

	jobs, err := store.ListJobs(ctx, JobFilter{Status: JobPending})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, JobMirrorDomain, jobs[0].JobType)

	// An empty replayed window plans nothing
	_, err = store.ApplyBatch(ctx, registration(100), planner)
	require.NoError(t, err)
	assert.Equal(t, 1, planner.calls)
}

func TestApplyBatchPlannerFailureRollsBack(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	failing := &stubPlanner{err: fmt.Errorf("queue table locked")}
	_, err := store.ApplyBatch(ctx, registration(100), failing)
	require.Error(t, err)

	// Nothing committed: no domain, no checkpoint, no ledger entry
	_, err = store.GetDomain(ctx, testNameHash)
	assert.ErrorIs(t, err, ErrNotFound)
	_, ok, err := store.Checkpoint(ctx, "polygon")
	require.NoError(t, err)
	assert.False(t, ok)

	// The same window re-applies in full once planning succeeds
	planner := &stubPlanner{jobs: []*SyncJob{{
		JobType: JobMirrorDomain, TargetChain: "solana", NameHash: testNameHash,
	}}}
	result, err := store.ApplyBatch(ctx, registration(100), planner)
	require.NoError(t, err)
	require.Len(t, result.Domains, 1)
	require.Len(t, result.Jobs, 1)

	jobs, err := store.ListJobs(ctx, JobFilter{Status: JobPending})
	require.NoError(t, err)
	assert.Len(t, jobs, 1)
}

func TestDeleteEchoSettles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.ApplyBatch(ctx, recordWrite(101, 0, []byte("hello")), nil)
	require.NoError(t, err)

	del := recordWrite(102, 0, nil)
	del.Records[0].Tombstone = true
	_, err = store.ApplyBatch(ctx, del, nil)
	require.NoError(t, err)

	// The mirror's delete event carries no version. Over a row already
	// tombstoned it settles the loop instead of re-propagating.
	echo := &Batch{
		Chain: "solana", FromBlock: 9100, ToBlock: 9100,
		Records: []RecordChange{{
			Ref:         ref("5oLDelEcho", 0, 9100),
			NameHash:    testNameHash,
			KeyHash:     testKeyHash,
			RecordType:  "text",
			SourceChain: "solana",
			Version:     0,
			Tombstone:   true,
		}},
	}
	result, err := store.ApplyBatch(ctx, echo, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.Equal(t, 1, result.StaleRecords)

	rec, err := store.GetRecord(ctx, testNameHash, testKeyHash)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rec.Version, "echo never advances the version")
	assert.Equal(t, "polygon", rec.SourceChain)
	assert.Equal(t, int64(2), rec.MirroredVersion)

	// A version-less mirror tombstone over a live row is a real user delete
	_, err = store.ApplyBatch(ctx, recordWrite(103, 0, []byte("back")), nil)
	require.NoError(t, err)
	live := &Batch{
		Chain: "solana", FromBlock: 9200, ToBlock: 9200,
		Records: []RecordChange{{
			Ref:         ref("5oLUserDel", 0, 9200),
			NameHash:    testNameHash,
			KeyHash:     testKeyHash,
			RecordType:  "text",
			SourceChain: "solana",
			Tombstone:   true,
		}},
	}
	result, err = store.ApplyBatch(ctx, live, nil)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, int64(4), result.Records[0].Version)
}

func TestReapStaleJobs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	stuck := &SyncJob{JobType: JobMirrorDomain, TargetChain: "solana", NameHash: testNameHash}
	require.NoError(t, store.EnqueueJob(ctx, stuck))
	fresh := &SyncJob{JobType: JobUpsertRecord, TargetChain: "solana", NameHash: testNameHash}
	require.NoError(t, store.EnqueueJob(ctx, fresh))

	claimed, err := store.ClaimJobs(ctx, "solana", 10, now)
	require.NoError(t, err)
	require.Len(t, claimed, 2)

	// A cutoff in the past reaps nothing; the claims are fresh
	n, err := store.ReapStaleJobs(ctx, "solana", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, n)

	// A cutoff past the claim time reclaims both
	n, err = store.ReapStaleJobs(ctx, "solana", now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := store.GetJob(ctx, stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, JobPending, got.Status)
	assert.Equal(t, "claim lease expired", got.LastError)
	assert.Zero(t, got.RetryCount, "a reclaim is not a submission failure")

	reclaimed, err := store.ClaimJobs(ctx, "solana", 10, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, reclaimed, 2)
}

func TestRequeueJobMissing(t *testing.T) {
	store := newTestStore(t)

	err := store.RequeueJob(context.Background(), "no-such-id")
	assert.ErrorIs(t, err, ErrNotFound)
}
