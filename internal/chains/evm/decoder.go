package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pnslabs/pns-indexer/internal/chains"
)

// Event signatures for the registry, resolver, and wrapper contracts. The
// topic table below is the single place a new event shape gets added.
var (
	topicNameRegistered     = sigHash("NameRegistered(bytes32,address,string,uint256)")
	topicNameRenewed        = sigHash("NameRenewed(bytes32,uint256)")
	topicTransfer           = sigHash("Transfer(bytes32,address)")
	topicNewResolver        = sigHash("NewResolver(bytes32,address)")
	topicTextChanged        = sigHash("TextChanged(bytes32,bytes32,string,bytes)")
	topicAddrChanged        = sigHash("AddrChanged(bytes32,address)")
	topicContenthashChanged = sigHash("ContenthashChanged(bytes32,bytes)")
	topicRecordCleared      = sigHash("RecordCleared(bytes32,bytes32)")
	topicNameWrapped        = sigHash("NameWrapped(bytes32,address,uint256)")
	topicNameUnwrapped      = sigHash("NameUnwrapped(bytes32,address)")
)

// Well-known record key hashes for the single-purpose resolver events.
var (
	keyHashAddr        = crypto.Keccak256Hash([]byte("addr")).Hex()
	keyHashContenthash = crypto.Keccak256Hash([]byte("contenthash")).Hex()
)

func sigHash(sig string) common.Hash {
	return crypto.Keccak256Hash([]byte(sig))
}

// ABI argument lists for the non-indexed event payloads.
var (
	typString, _  = abi.NewType("string", "", nil)
	typUint256, _ = abi.NewType("uint256", "", nil)
	typAddress, _ = abi.NewType("address", "", nil)
	typBytes, _   = abi.NewType("bytes", "", nil)

	argsRegistered  = abi.Arguments{{Type: typString}, {Type: typUint256}}
	argsUint256     = abi.Arguments{{Type: typUint256}}
	argsAddress     = abi.Arguments{{Type: typAddress}}
	argsTextChanged = abi.Arguments{{Type: typString}, {Type: typBytes}}
	argsBytes       = abi.Arguments{{Type: typBytes}}
)

// Decoder maps raw registry/resolver/wrapper logs to typed events.
type Decoder struct{}

// NewDecoder creates the EVM event decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Topics returns the topic0 filter covering every event the decoder knows.
func (d *Decoder) Topics() []string {
	return []string{
		topicNameRegistered.Hex(),
		topicNameRenewed.Hex(),
		topicTransfer.Hex(),
		topicNewResolver.Hex(),
		topicTextChanged.Hex(),
		topicAddrChanged.Hex(),
		topicContenthashChanged.Hex(),
		topicRecordCleared.Hex(),
		topicNameWrapped.Hex(),
		topicNameUnwrapped.Hex(),
	}
}

// Decode maps one raw log to a typed event. Unknown signatures decode to
// *Unrecognized; a malformed body of a known event is an error.
func (d *Decoder) Decode(raw chains.RawLog) (chains.Event, error) {
	if len(raw.Topics) == 0 {
		return &chains.Unrecognized{Base: chains.NewBase(raw)}, nil
	}
	topic0 := common.HexToHash(raw.Topics[0])
	nameHash := topicHex(raw, 1)

	switch topic0 {
	case topicNameRegistered:
		vals, err := argsRegistered.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking NameRegistered: %w", err)
		}
		return &chains.Registration{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			Owner:    topicAddr(raw, 2),
			Label:    vals[0].(string),
			Expires:  bigToInt64(vals[1]),
		}, nil

	case topicNameRenewed:
		vals, err := argsUint256.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking NameRenewed: %w", err)
		}
		return &chains.Renewal{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			Expires:  bigToInt64(vals[0]),
		}, nil

	case topicTransfer:
		vals, err := argsAddress.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking Transfer: %w", err)
		}
		return &chains.OwnerTransfer{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			NewOwner: addrHex(vals[0].(common.Address)),
		}, nil

	case topicNewResolver:
		vals, err := argsAddress.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking NewResolver: %w", err)
		}
		return &chains.ResolverChanged{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			Resolver: addrHex(vals[0].(common.Address)),
		}, nil

	case topicTextChanged:
		vals, err := argsTextChanged.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking TextChanged: %w", err)
		}
		value := vals[1].([]byte)
		return &chains.RecordSet{
			Base:        chains.NewBase(raw),
			NameHash:    nameHash,
			KeyHash:     topicHex(raw, 2),
			Key:         vals[0].(string),
			RecordType:  chains.RecordTypeText,
			Value:       value,
			SourceChain: raw.Chain,
			Tombstone:   len(value) == 0,
		}, nil

	case topicAddrChanged:
		vals, err := argsAddress.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking AddrChanged: %w", err)
		}
		return &chains.RecordSet{
			Base:        chains.NewBase(raw),
			NameHash:    nameHash,
			KeyHash:     keyHashAddr,
			Key:         "addr",
			RecordType:  chains.RecordTypeAddress,
			Value:       []byte(addrHex(vals[0].(common.Address))),
			SourceChain: raw.Chain,
		}, nil

	case topicContenthashChanged:
		vals, err := argsBytes.Unpack(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("unpacking ContenthashChanged: %w", err)
		}
		value := vals[0].([]byte)
		return &chains.RecordSet{
			Base:        chains.NewBase(raw),
			NameHash:    nameHash,
			KeyHash:     keyHashContenthash,
			Key:         "contenthash",
			RecordType:  chains.RecordTypeContentHash,
			Value:       value,
			SourceChain: raw.Chain,
			Tombstone:   len(value) == 0,
		}, nil

	case topicRecordCleared:
		return &chains.RecordSet{
			Base:        chains.NewBase(raw),
			NameHash:    nameHash,
			KeyHash:     topicHex(raw, 2),
			RecordType:  chains.RecordTypeCustom,
			SourceChain: raw.Chain,
			Tombstone:   true,
		}, nil

	case topicNameWrapped:
		return &chains.WrapChanged{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			State:    raw.Chain,
		}, nil

	case topicNameUnwrapped:
		return &chains.WrapChanged{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			State:    chains.WrapNone,
		}, nil
	}

	return &chains.Unrecognized{Base: chains.NewBase(raw), Signature: topic0.Hex()}, nil
}

func topicHex(raw chains.RawLog, i int) string {
	if i >= len(raw.Topics) {
		return ""
	}
	return strings.ToLower(raw.Topics[i])
}

func topicAddr(raw chains.RawLog, i int) string {
	if i >= len(raw.Topics) {
		return ""
	}
	return addrHex(common.BytesToAddress(common.HexToHash(raw.Topics[i]).Bytes()))
}

func addrHex(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func bigToInt64(v any) int64 {
	b, ok := v.(interface{ Int64() int64 })
	if !ok {
		return 0
	}
	return b.Int64()
}
