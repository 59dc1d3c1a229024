// Package transport provides HTTP handlers for the registry read API.
package transport

import (
	"time"

	"github.com/pnslabs/pns-indexer/internal/registry/domain"
)

// DomainResponse is the HTTP shape of one domain.
type DomainResponse struct {
	NameHash     string `json:"nameHash"`
	Label        string `json:"label,omitempty"`
	OwnerPrimary string `json:"ownerPrimary"`
	OwnerMirror  string `json:"ownerMirror,omitempty"`
	Expiration   int64  `json:"expiration"`
	Expired      bool   `json:"expired"`
	Resolver     string `json:"resolver,omitempty"`
	WrapState    string `json:"wrapState"`
	NFTMint      string `json:"nftMint,omitempty"`
	PrimaryBlock int64  `json:"primaryBlock,omitempty"`
	PrimaryTx    string `json:"primaryTx,omitempty"`
	MirrorSlot   int64  `json:"mirrorSlot,omitempty"`
	LastSyncedAt string `json:"lastSyncedAt,omitempty"`
	UpdatedAt    string `json:"updatedAt"`
}

// RecordResponse is the HTTP shape of one record.
type RecordResponse struct {
	KeyHash         string `json:"keyHash"`
	Key             string `json:"key,omitempty"`
	RecordType      string `json:"recordType"`
	Value           []byte `json:"value,omitempty"`
	SourceChain     string `json:"sourceChain"`
	Version         int64  `json:"version"`
	MirroredVersion int64  `json:"mirroredVersion"`
	Tombstone       bool   `json:"tombstone,omitempty"`
	UpdatedAt       string `json:"updatedAt"`
}

// ChainStatusResponse is one chain's scan progress.
type ChainStatusResponse struct {
	Chain         string `json:"chain"`
	Checkpoint    int64  `json:"checkpoint"`
	HasCheckpoint bool   `json:"hasCheckpoint"`
	State         string `json:"state"`
	LastTick      string `json:"lastTick,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	EventsApplied int64  `json:"eventsApplied"`
}

// StatusResponse is the indexer health summary.
type StatusResponse struct {
	Healthy bool                  `json:"healthy"`
	Chains  []ChainStatusResponse `json:"chains"`
	Jobs    map[string]int64      `json:"jobs"`
}

// JobResponse is the HTTP shape of one sync job.
type JobResponse struct {
	ID            string `json:"id"`
	JobType       string `json:"jobType"`
	TargetChain   string `json:"targetChain"`
	NameHash      string `json:"nameHash"`
	KeyHash       string `json:"keyHash,omitempty"`
	Version       int64  `json:"version"`
	Status        string `json:"status"`
	RetryCount    int    `json:"retryCount"`
	LastError     string `json:"lastError,omitempty"`
	NextAttemptAt string `json:"nextAttemptAt,omitempty"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func fromDomain(v domain.DomainView) DomainResponse {
	return DomainResponse{
		NameHash:     v.NameHash,
		Label:        v.Label,
		OwnerPrimary: v.OwnerPrimary,
		OwnerMirror:  v.OwnerMirror,
		Expiration:   v.Expiration,
		Expired:      v.Expired,
		Resolver:     v.Resolver,
		WrapState:    v.WrapState,
		NFTMint:      v.NFTMint,
		PrimaryBlock: v.PrimaryBlock,
		PrimaryTx:    v.PrimaryTx,
		MirrorSlot:   v.MirrorSlot,
		LastSyncedAt: fmtTime(v.LastSyncedAt),
		UpdatedAt:    fmtTime(v.UpdatedAt),
	}
}

func fromRecord(v domain.RecordView) RecordResponse {
	return RecordResponse{
		KeyHash:         v.KeyHash,
		Key:             v.Key,
		RecordType:      v.RecordType,
		Value:           v.Value,
		SourceChain:     v.SourceChain,
		Version:         v.Version,
		MirroredVersion: v.MirroredVersion,
		Tombstone:       v.Tombstone,
		UpdatedAt:       fmtTime(v.UpdatedAt),
	}
}

func fromJob(v domain.JobView) JobResponse {
	return JobResponse{
		ID:            v.ID,
		JobType:       v.JobType,
		TargetChain:   v.TargetChain,
		NameHash:      v.NameHash,
		KeyHash:       v.KeyHash,
		Version:       v.Version,
		Status:        v.Status,
		RetryCount:    v.RetryCount,
		LastError:     v.LastError,
		NextAttemptAt: fmtTime(v.NextAttemptAt),
		CreatedAt:     fmtTime(v.CreatedAt),
		UpdatedAt:     fmtTime(v.UpdatedAt),
	}
}

func fromStatus(v *domain.StatusView) StatusResponse {
	resp := StatusResponse{Healthy: v.Healthy, Jobs: v.Jobs}
	for _, cs := range v.Chains {
		resp.Chains = append(resp.Chains, ChainStatusResponse{
			Chain:         cs.Chain,
			Checkpoint:    cs.Checkpoint,
			HasCheckpoint: cs.HasCheckpoint,
			State:         cs.State,
			LastTick:      fmtTime(cs.LastTick),
			LastError:     cs.LastError,
			EventsApplied: cs.EventsApplied,
		})
	}
	return resp
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
