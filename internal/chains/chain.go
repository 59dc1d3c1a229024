// Package chains defines the chain-facing contracts shared by the indexer:
// raw log retrieval, instruction submission, and the typed event model the
// per-chain decoders produce. Concrete implementations live in the evm and
// solana subpackages.
package chains

import (
	"context"
	"encoding/json"
)

// Well-known chain names. The primary/mirror roles are assigned by config;
// these are just the identifiers used in storage rows and job targets.
const (
	ChainPolygon = "polygon"
	ChainSolana  = "solana"
)

// LogQuery bounds one raw log request. FromBlock/ToBlock are inclusive and
// denote blocks on EVM chains and slots on Solana.
type LogQuery struct {
	Addresses []string
	Topics    []string
	FromBlock int64
	ToBlock   int64
}

// RawLog is one undecoded log entry in chain-neutral form. Block carries the
// slot number on Solana; LogIndex is the position of the entry within its
// transaction so that (TxHash, LogIndex) uniquely identifies the event.
type RawLog struct {
	Chain    string
	Address  string
	Topics   []string
	Data     []byte
	Block    int64
	TxHash   string
	LogIndex uint32
	Removed  bool
}

// LogSource retrieves raw logs and the current head from one chain's RPC
// endpoint. Implementations must classify provider failures through the
// error helpers in errors.go so the fetcher can react to rate limits and
// oversized ranges.
type LogSource interface {
	Head(ctx context.Context) (int64, error)
	Logs(ctx context.Context, q LogQuery) ([]RawLog, error)
}

// Instruction is one propagation payload bound for a chain's submission
// endpoint. Payload is the serialized target-chain call parameters; Version
// is the source version stamp the target uses to reject stale replays.
type Instruction struct {
	Kind     string          `json:"kind"`
	NameHash string          `json:"nameHash"`
	KeyHash  string          `json:"keyHash,omitempty"`
	Version  int64           `json:"version"`
	Payload  json.RawMessage `json:"payload"`
}

// Submitter hands an instruction to a chain's transaction submission
// endpoint. Submission is asynchronous: the returned identifier is the
// relayer/transaction reference, and finality is observed later by that
// chain's own scan loop. A submission the target rejects as already
// superseded must surface ErrSuperseded.
type Submitter interface {
	Submit(ctx context.Context, instr Instruction) (string, error)
}

// RecordReader fetches the current stored payload for one record directly
// from chain state. Chains whose events announce record writes without the
// written bytes provide one so the scanner can fill in the value.
type RecordReader interface {
	RecordValue(ctx context.Context, nameHash, keyHash string) ([]byte, error)
}

// Decoder maps one raw log entry to a typed event. Logs that match no known
// signature decode to *Unrecognized, never to an error; a non-nil error means
// a recognized event had a malformed body.
type Decoder interface {
	Decode(raw RawLog) (Event, error)
}

// Endpoint bundles everything the scanner and dispatcher need for one chain.
type Endpoint struct {
	Name      string
	Source    LogSource
	Decoder   Decoder
	Submitter Submitter
	Records   RecordReader // nil on chains whose events carry the value inline
	Query     LogQuery     // address/topic filter for the chain's contract group
}

// Registry holds the configured chain endpoints keyed by name.
type Registry struct {
	endpoints map[string]*Endpoint
}

// NewRegistry creates an empty chain registry.
func NewRegistry() *Registry {
	return &Registry{endpoints: make(map[string]*Endpoint)}
}

// Register adds an endpoint to the registry.
func (r *Registry) Register(e *Endpoint) {
	r.endpoints[e.Name] = e
}

// Get retrieves an endpoint by chain name.
func (r *Registry) Get(name string) (*Endpoint, bool) {
	e, ok := r.endpoints[name]
	return e, ok
}

// Names returns the registered chain names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}
