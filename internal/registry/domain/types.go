// Package domain contains the read-model logic for the name registry API.
package domain

import "time"

// DomainView is one registered name as the API presents it.
type DomainView struct {
	NameHash     string
	Label        string
	OwnerPrimary string
	OwnerMirror  string
	Expiration   int64
	Expired      bool
	Resolver     string
	WrapState    string
	NFTMint      string
	PrimaryBlock int64
	PrimaryTx    string
	MirrorSlot   int64
	LastSyncedAt time.Time
	UpdatedAt    time.Time
}

// RecordView is one record attached to a domain.
type RecordView struct {
	KeyHash         string
	Key             string
	RecordType      string
	Value           []byte
	SourceChain     string
	Version         int64
	MirroredVersion int64
	Tombstone       bool
	UpdatedAt       time.Time
}

// ChainStatus is one chain's scan progress.
type ChainStatus struct {
	Chain         string
	Checkpoint    int64
	HasCheckpoint bool
	State         string
	LastTick      time.Time
	LastError     string
	EventsApplied int64
}

// StatusView is the indexer health summary.
type StatusView struct {
	Healthy bool
	Chains  []ChainStatus
	Jobs    map[string]int64 // status -> count
}

// JobView is one sync job as the operator API presents it.
type JobView struct {
	ID            string
	JobType       string
	TargetChain   string
	NameHash      string
	KeyHash       string
	Version       int64
	Status        string
	RetryCount    int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
