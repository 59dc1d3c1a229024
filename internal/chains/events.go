package chains

// Record types attached to a domain. Values are opaque bytes; interpretation
// is type-dependent.
const (
	RecordTypeAddress     = "address"
	RecordTypeText        = "text"
	RecordTypeContentHash = "contenthash"
	RecordTypeCustom      = "custom"
)

// Wrap states: which chain, if any, holds the active NFT wrapper for a
// domain. At most one is active at a time.
const (
	WrapNone    = "none"
	WrapPolygon = "polygon"
	WrapSolana  = "solana"
)

// MaxRecordLength bounds record payloads, matching the mirror program's
// account size.
const MaxRecordLength = 512

// Ref identifies one on-chain event. (Chain, TxHash, LogIndex) is globally
// unique and is the idempotency key for replayed scan windows.
type Ref struct {
	Chain    string
	Block    int64
	TxHash   string
	LogIndex uint32
}

// Event is the decoded form of one raw log entry. The concrete types below
// are the only implementations.
type Event interface {
	Ref() Ref
}

// Base carries the event identity shared by all variants.
type Base struct {
	Origin Ref
}

func (b Base) Ref() Ref { return b.Origin }

// NewBase builds the embedded identity for a decoded event.
func NewBase(raw RawLog) Base {
	return Base{Origin: Ref{
		Chain:    raw.Chain,
		Block:    raw.Block,
		TxHash:   raw.TxHash,
		LogIndex: raw.LogIndex,
	}}
}

// Registration is a first-time (or post-expiry) name registration on the
// authoritative chain.
type Registration struct {
	Base
	NameHash string
	Label    string
	Owner    string
	Expires  int64
}

// Renewal extends a name's expiration on the authoritative chain.
type Renewal struct {
	Base
	NameHash string
	Expires  int64
}

// OwnerTransfer changes a name's owner on the authoritative chain.
type OwnerTransfer struct {
	Base
	NameHash string
	NewOwner string
}

// ResolverChanged points a name at a new resolver.
type ResolverChanged struct {
	Base
	NameHash string
	Resolver string
}

// RecordSet is a record write (or tombstone delete) for one
// (nameHash, keyHash) pair. Version is zero for authoritative-chain origin
// writes, where the store assigns the next version; mirror-chain events carry
// the explicit version stamped into the transaction.
type RecordSet struct {
	Base
	NameHash    string
	KeyHash     string
	Key         string
	RecordType  string
	Value       []byte
	SourceChain string
	Version     int64
	Tombstone   bool
}

// WrapChanged moves a domain's NFT wrapper state. State names which chain now
// holds the wrapper ("none" on unwrap); NFTMint is the mirror-side mint when
// present.
type WrapChanged struct {
	Base
	NameHash string
	State    string
	NFTMint  string
}

// DomainMirrored is the mirror program's confirmation that authoritative
// domain state landed on the mirror chain.
type DomainMirrored struct {
	Base
	NameHash     string
	Delegate     string
	PolygonOwner string
	Expires      int64
}

// DelegateUpdated changes the mirror-chain delegate allowed to co-sign
// record writes.
type DelegateUpdated struct {
	Base
	NameHash string
	Delegate string
}

// Unrecognized is a log entry whose signature matched no known event shape.
// Scans count and skip these.
type Unrecognized struct {
	Base
	Signature string
}
