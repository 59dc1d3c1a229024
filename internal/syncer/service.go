package syncer

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pnslabs/pns-indexer/internal/chains"
	"github.com/pnslabs/pns-indexer/internal/storage"
)

// Config binds the service to a two-chain deployment.
type Config struct {
	PrimaryChain string
	MirrorChain  string
	Policy       Policy
}

// Service turns applied batches into propagation jobs toward the counterpart
// chain. It never talks to a chain itself; the dispatcher does. The scanner
// hands it to ApplyBatch as the JobPlanner, so the jobs it plans commit in the
// same transaction as the batch that implied them.
type Service struct {
	cfg    Config
	logger *slog.Logger
}

// New creates the sync service.
func New(cfg Config, logger *slog.Logger) (*Service, error) {
	if cfg.Policy == "" {
		cfg.Policy = PolicyPrimaryPriority
	}
	if !cfg.Policy.Valid() {
		return nil, fmt.Errorf("unknown conflict policy %q", cfg.Policy)
	}
	return &Service{
		cfg:    cfg,
		logger: logger.With("component", "syncer"),
	}, nil
}

// counterpart returns the chain a mutation from chain must be propagated to.
func (s *Service) counterpart(chain string) string {
	if chain == s.cfg.PrimaryChain {
		return s.cfg.MirrorChain
	}
	return s.cfg.PrimaryChain
}

// Job payloads: the serialized target-chain instruction parameters.
type upsertRecordPayload struct {
	Key         string `json:"key,omitempty"`
	RecordType  string `json:"recordType"`
	Value       []byte `json:"value,omitempty"`
	SourceChain string `json:"sourceChain"`
}

type mirrorDomainPayload struct {
	Label      string `json:"label,omitempty"`
	Owner      string `json:"owner"`
	Expiration int64  `json:"expiration"`
	Resolver   string `json:"resolver,omitempty"`
	SourceTx   string `json:"sourceTx"`
}

type wrapStatePayload struct {
	State   string `json:"state"`
	NFTMint string `json:"nftMint,omitempty"`
}

type updateDelegatePayload struct {
	Delegate string `json:"delegate"`
}

type markCheckpointPayload struct {
	Block  int64  `json:"block"`
	TxHash string `json:"txHash,omitempty"`
}

// PlanJobs translates one applied batch into jobs. Stale versions and
// mirror-side bookkeeping produce nothing; that silence is the steady state
// of a healthy sync loop.
func (s *Service) PlanJobs(result *storage.BatchResult) ([]*storage.SyncJob, error) {
	target := s.counterpart(result.Chain)
	var jobs []*storage.SyncJob

	var maxBlock int64
	var maxTx string
	note := func(ref storage.EventRef) {
		if ref.Block > maxBlock {
			maxBlock = ref.Block
			maxTx = ref.TxHash
		}
	}

	for _, ar := range result.Records {
		note(ar.Change.Ref)
		jobs = append(jobs, s.planRecord(target, ar)...)
	}

	// One mirror_domain per name per batch; later changes in the window
	// already folded into the merged row the payload is read from.
	mirrored := make(map[string]bool)

	for _, dc := range result.Domains {
		note(dc.Ref)
		planned, err := s.planDomain(result, target, dc, mirrored)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, planned...)
	}

	if len(jobs) > 0 && result.Chain == s.cfg.PrimaryChain {
		jobs = append(jobs, &storage.SyncJob{
			JobType:     storage.JobMarkCheckpoint,
			TargetChain: target,
			Version:     maxBlock,
			Payload:     mustJSON(markCheckpointPayload{Block: maxBlock, TxHash: maxTx}),
		})
	}

	for _, job := range jobs {
		s.logger.Info("sync job planned",
			"job_type", job.JobType, "target", job.TargetChain,
			"name_hash", job.NameHash, "version", job.Version)
	}
	return jobs, nil
}

func (s *Service) planRecord(target string, ar storage.AppliedRecord) []*storage.SyncJob {
	rc := ar.Change
	outcome := Decide(s.cfg.Policy, s.cfg.PrimaryChain, rc.SourceChain, ar.Version, ar.PriorMirrored)
	if outcome == Stale {
		s.logger.Debug("record write already reflected",
			"name_hash", rc.NameHash, "key_hash", rc.KeyHash,
			"version", ar.Version, "mirrored", ar.PriorMirrored)
		return nil
	}

	if len(rc.Value) > chains.MaxRecordLength {
		s.logger.Warn("record too large to mirror, skipping",
			"name_hash", rc.NameHash, "key_hash", rc.KeyHash,
			"size", len(rc.Value), "max", chains.MaxRecordLength)
		return nil
	}

	jobType := storage.JobUpsertRecord
	if rc.Tombstone {
		jobType = storage.JobDeleteRecord
	}
	return []*storage.SyncJob{{
		JobType:     jobType,
		TargetChain: target,
		NameHash:    rc.NameHash,
		KeyHash:     rc.KeyHash,
		Version:     ar.Version,
		Payload: mustJSON(upsertRecordPayload{
			Key:         rc.Key,
			RecordType:  rc.RecordType,
			Value:       rc.Value,
			SourceChain: rc.SourceChain,
		}),
	}}
}

func (s *Service) planDomain(result *storage.BatchResult, target string, dc storage.DomainChange, mirrored map[string]bool) ([]*storage.SyncJob, error) {
	var jobs []*storage.SyncJob

	if dc.WrapState != nil {
		jobs = append(jobs, s.planWrap(target, dc)...)
	}

	// Only authoritative-chain state changes are pushed to the mirror.
	// Mirror-side changes to delegate or sync bookkeeping stay local.
	if result.Chain != s.cfg.PrimaryChain {
		return jobs, nil
	}
	if dc.Label == nil && dc.OwnerPrimary == nil && dc.Expiration == nil && dc.Resolver == nil {
		return jobs, nil
	}
	if mirrored[dc.NameHash] {
		return jobs, nil
	}
	mirrored[dc.NameHash] = true

	domain := result.DomainRows[dc.NameHash]
	if domain == nil {
		return nil, fmt.Errorf("applied batch missing merged row for %s", dc.NameHash)
	}

	jobs = append(jobs, &storage.SyncJob{
		JobType:     storage.JobMirrorDomain,
		TargetChain: target,
		NameHash:    dc.NameHash,
		Version:     dc.Ref.Block,
		Payload: mustJSON(mirrorDomainPayload{
			Label:      domain.Label,
			Owner:      domain.OwnerPrimary,
			Expiration: domain.Expiration,
			Resolver:   domain.Resolver,
			SourceTx:   dc.Ref.TxHash,
		}),
	})

	// An owner transfer revokes the previous owner's mirror-side delegate;
	// the new owner re-authorizes one explicitly.
	if dc.OwnerPrimary != nil && domain.OwnerMirror != "" {
		jobs = append(jobs, &storage.SyncJob{
			JobType:     storage.JobUpdateDelegate,
			TargetChain: target,
			NameHash:    dc.NameHash,
			Version:     dc.Ref.Block,
			Payload:     mustJSON(updateDelegatePayload{Delegate: ""}),
		})
	}
	return jobs, nil
}

// planWrap enforces wrap exclusivity: when a wrap lands while the other
// state is still active, the clearing job is enqueued ahead of the wrap job.
// Unwrap-then-wrap is explicit, never implied by the wrap itself.
func (s *Service) planWrap(target string, dc storage.DomainChange) []*storage.SyncJob {
	next := *dc.WrapState
	prior := dc.PriorWrapState
	if next == prior {
		return nil
	}
	var jobs []*storage.SyncJob

	if next != chains.WrapNone && prior != chains.WrapNone {
		jobs = append(jobs, &storage.SyncJob{
			JobType:     storage.JobSetWrapState,
			TargetChain: target,
			NameHash:    dc.NameHash,
			Version:     dc.Ref.Block,
			Payload:     mustJSON(wrapStatePayload{State: chains.WrapNone}),
		})
	}

	var mint string
	if dc.NFTMint != nil {
		mint = *dc.NFTMint
	}
	return append(jobs, &storage.SyncJob{
		JobType:     storage.JobSetWrapState,
		TargetChain: target,
		NameHash:    dc.NameHash,
		Version:     dc.Ref.Block,
		Payload:     mustJSON(wrapStatePayload{State: next, NFTMint: mint}),
	})
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err) // static payload shapes, cannot fail
	}
	return b
}
