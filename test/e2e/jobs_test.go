//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/storage"
	"github.com/pnslabs/pns-indexer/pkg/client"
)

func TestJobsRequireAPIKey(t *testing.T) {
	noKey := newClient("")

	_, err := noKey.ListJobs(context.Background(), client.JobListOptions{Limit: 1})
	assertHTTPError(t, err, "UNAUTHORIZED")

	badKey := newClient("pns_key_wrong")
	_, err = badKey.ListJobs(context.Background(), client.JobListOptions{Limit: 1})
	assertHTTPError(t, err, "UNAUTHORIZED")
}

func TestJobListAndRetry(t *testing.T) {
	ctx := context.Background()
	nameHash := nameHashFor(800)

	job := &storage.SyncJob{
		JobType:     storage.JobMirrorDomain,
		TargetChain: chains.ChainSolana,
		NameHash:    nameHash,
		Payload:     []byte(`{"owner":"0x1","expiration":0}`),
	}
	require.NoError(t, testCtx.Store.EnqueueJob(ctx, job))
	require.NotEmpty(t, job.ID, "enqueue assigns an ID")

	require.NoError(t, testCtx.Store.FailJob(ctx, job.ID, "relayer unreachable"))

	c := newClient(testAPIKey)

	failed, err := c.ListJobs(ctx, client.JobListOptions{
		Status:   storage.JobFailed,
		NameHash: nameHash,
	})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].ID)
	assert.Equal(t, "relayer unreachable", failed[0].LastError)

	retried, err := c.RetryJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.JobPending, retried.Status)
}

func TestRetryJobNotFound(t *testing.T) {
	c := newClient(testAPIKey)

	_, err := c.RetryJob(context.Background(), "00000000-0000-0000-0000-000000000000")
	assertHTTPError(t, err, "NOT_FOUND")
}

func TestRetryJobNotRetryable(t *testing.T) {
	ctx := context.Background()

	job := &storage.SyncJob{
		JobType:     storage.JobMarkCheckpoint,
		TargetChain: chains.ChainSolana,
		NameHash:    nameHashFor(801),
		Payload:     []byte(`{"block":1}`),
	}
	require.NoError(t, testCtx.Store.EnqueueJob(ctx, job))

	c := newClient(testAPIKey)

	// Pending jobs are not retryable; only failed ones move back.
	_, err := c.RetryJob(ctx, job.ID)
	assertHTTPError(t, err, "NOT_RETRYABLE")
}
