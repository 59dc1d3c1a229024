package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnslabs/pns-indexer/internal/storage"
)

var testHash = "0x" + strings.Repeat("ab", 32)

type fakeStore struct {
	domains  map[string]*storage.Domain
	byLabel  map[string]*storage.Domain
	byOwner  map[string][]storage.Domain
	records  map[string][]storage.Record
	jobs     map[string]*storage.SyncJob
	requeued []string
	cps      map[string]int64
	applied  map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		domains: make(map[string]*storage.Domain),
		byLabel: make(map[string]*storage.Domain),
		byOwner: make(map[string][]storage.Domain),
		records: make(map[string][]storage.Record),
		jobs:    make(map[string]*storage.SyncJob),
		cps:     make(map[string]int64),
		applied: make(map[string]int64),
	}
}

func (f *fakeStore) GetDomain(ctx context.Context, nameHash string) (*storage.Domain, error) {
	d, ok := f.domains[nameHash]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetDomainByLabel(ctx context.Context, label string) (*storage.Domain, error) {
	d, ok := f.byLabel[label]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) ListDomainsByOwner(ctx context.Context, owner string, limit int) ([]storage.Domain, error) {
	ds := f.byOwner[owner]
	if len(ds) > limit {
		ds = ds[:limit]
	}
	return ds, nil
}

func (f *fakeStore) ListRecords(ctx context.Context, nameHash string) ([]storage.Record, error) {
	return f.records[nameHash], nil
}

func (f *fakeStore) GetRecord(ctx context.Context, nameHash, keyHash string) (*storage.Record, error) {
	return nil, storage.ErrNotFound
}

func (f *fakeStore) GetJob(ctx context.Context, id string) (*storage.SyncJob, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return j, nil
}

func (f *fakeStore) ListJobs(ctx context.Context, filter storage.JobFilter) ([]storage.SyncJob, error) {
	var out []storage.SyncJob
	for _, j := range f.jobs {
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, *j)
	}
	return out, nil
}

func (f *fakeStore) RequeueJob(ctx context.Context, id string) error {
	j, ok := f.jobs[id]
	if !ok {
		return storage.ErrNotFound
	}
	if j.Status != storage.JobFailed {
		return storage.ErrBadStatus
	}
	j.Status = storage.JobPending
	f.requeued = append(f.requeued, id)
	return nil
}

func (f *fakeStore) CountJobs(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	for _, j := range f.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

func (f *fakeStore) Checkpoint(ctx context.Context, chain string) (int64, bool, error) {
	cp, ok := f.cps[chain]
	return cp, ok, nil
}

func (f *fakeStore) EventsApplied(ctx context.Context, chain string) (int64, error) {
	return f.applied[chain], nil
}

type fakeReporter struct {
	state    string
	lastTick time.Time
	lastErr  error
}

func (r *fakeReporter) Status() (string, time.Time, error) {
	return r.state, r.lastTick, r.lastErr
}

func testService(f *fakeStore) *Service {
	return NewService(f, f, f)
}

func TestLookupByHash(t *testing.T) {
	f := newFakeStore()
	f.domains[testHash] = &storage.Domain{NameHash: testHash, Label: "alice", Expiration: 1}

	svc := testService(f)
	svc.now = func() time.Time { return time.Unix(100, 0) }

	view, err := svc.Lookup(context.Background(), "0xAB"+testHash[4:])
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Label)
	assert.True(t, view.Expired, "expiration 1 is long past")
}

func TestLookupByLabel(t *testing.T) {
	f := newFakeStore()
	f.byLabel["alice"] = &storage.Domain{NameHash: testHash, Label: "alice", Expiration: 0}

	view, err := testService(f).Lookup(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, testHash, view.NameHash)
	assert.False(t, view.Expired, "zero expiration never expires")
}

func TestLookupRejectsGarbage(t *testing.T) {
	_, err := testService(newFakeStore()).Lookup(context.Background(), "Not A Label!")
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestLookupNotFound(t *testing.T) {
	_, err := testService(newFakeStore()).Lookup(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestByOwnerValidatesAddress(t *testing.T) {
	_, err := testService(newFakeStore()).ByOwner(context.Background(), "bogus!", 10)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestByOwnerClampsLimit(t *testing.T) {
	owner := "0x" + strings.Repeat("ab", 20)
	f := newFakeStore()
	for i := 0; i < 60; i++ {
		f.byOwner[owner] = append(f.byOwner[owner], storage.Domain{NameHash: testHash})
	}

	views, err := testService(f).ByOwner(context.Background(), owner, 0)
	require.NoError(t, err)
	assert.Len(t, views, 50, "zero limit falls back to the default")
}

func TestRecordsIncludeTombstones(t *testing.T) {
	f := newFakeStore()
	f.byLabel["alice"] = &storage.Domain{NameHash: testHash, Label: "alice"}
	f.records[testHash] = []storage.Record{
		{NameHash: testHash, KeyHash: "0xk1", Key: "email", Value: []byte("a@b.c"), Version: 3},
		{NameHash: testHash, KeyHash: "0xk2", Key: "avatar", Version: 5},
	}

	views, err := testService(f).Records(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.False(t, views[0].Tombstone)
	assert.True(t, views[1].Tombstone, "empty value reads as a tombstone")
}

func TestStatusHealthy(t *testing.T) {
	f := newFakeStore()
	f.cps["polygon"] = 1234
	f.applied["polygon"] = 99
	f.jobs["j1"] = &storage.SyncJob{ID: "j1", Status: storage.JobPending}

	svc := testService(f)
	svc.WatchScanner("polygon", &fakeReporter{state: "idle", lastTick: time.Now()})

	view, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, view.Healthy)
	require.Len(t, view.Chains, 1)
	assert.Equal(t, int64(1234), view.Chains[0].Checkpoint)
	assert.Equal(t, int64(99), view.Chains[0].EventsApplied)
	assert.Equal(t, int64(1), view.Jobs[storage.JobPending])
}

func TestStatusFaultedScanner(t *testing.T) {
	f := newFakeStore()
	svc := testService(f)
	svc.WatchScanner("solana", &fakeReporter{state: "faulted", lastErr: errors.New("rpc down")})

	view, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, view.Healthy)
	assert.Equal(t, "rpc down", view.Chains[0].LastError)
}

func TestRetryJob(t *testing.T) {
	f := newFakeStore()
	f.jobs["j1"] = &storage.SyncJob{ID: "j1", Status: storage.JobFailed}

	view, err := testService(f).RetryJob(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, storage.JobPending, view.Status)
	assert.Equal(t, []string{"j1"}, f.requeued)
}

func TestRetryJobNotFailed(t *testing.T) {
	f := newFakeStore()
	f.jobs["j1"] = &storage.SyncJob{ID: "j1", Status: storage.JobDone}

	_, err := testService(f).RetryJob(context.Background(), "j1")
	require.ErrorIs(t, err, ErrJobNotFailed)
}

func TestRetryJobMissing(t *testing.T) {
	_, err := testService(newFakeStore()).RetryJob(context.Background(), "nope")
	require.ErrorIs(t, err, ErrJobNotFound)
}
