//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/storage"
	clientpkg "github.com/pnslabs/pns-indexer/pkg/client"
)

func TestStatusReflectsScanProgress(t *testing.T) {
	// Push the authoritative chain's checkpoint forward.
	applyBatch(t, registrationBatch(nameHashFor(900), "e2e-status", ownerFor(900), 9000))

	c := newClient("")

	status, err := c.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)

	var polygon *clientpkg.ChainStatus
	for i := range status.Chains {
		if status.Chains[i].Chain == chains.ChainPolygon {
			polygon = &status.Chains[i]
		}
	}
	require.NotNil(t, polygon, "status reports the watched chain")
	assert.Equal(t, "idle", polygon.State)
	assert.True(t, polygon.HasCheckpoint)
	assert.GreaterOrEqual(t, polygon.Checkpoint, int64(9000))
	assert.Greater(t, polygon.EventsApplied, int64(0))
}

func TestStatusCountsJobs(t *testing.T) {
	ctx := context.Background()
	c := newClient("")

	before, err := c.GetStatus(ctx)
	require.NoError(t, err)

	job := &storage.SyncJob{
		JobType:     storage.JobMirrorDomain,
		TargetChain: chains.ChainSolana,
		NameHash:    nameHashFor(901),
		Payload:     []byte(`{"owner":"0x1","expiration":0}`),
	}
	require.NoError(t, testCtx.Store.EnqueueJob(ctx, job))

	after, err := c.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, before.Jobs[storage.JobPending]+1, after.Jobs[storage.JobPending])
}
