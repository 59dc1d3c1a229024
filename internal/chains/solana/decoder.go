package solana

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/gagliardetto/solana-go"

	"github.com/pnslabs/pns-indexer/internal/chains"
)

// Anchor event discriminators: the first 8 bytes of sha256("event:<Name>").
var (
	discDomainMirrored   = eventDiscriminator("DomainMirrored")
	discRecordUpdated    = eventDiscriminator("RecordUpdated")
	discRecordDeleted    = eventDiscriminator("RecordDeleted")
	discWrapStateChanged = eventDiscriminator("WrapStateChanged")
	discDelegateUpdated  = eventDiscriminator("DelegateUpdated")
)

func eventDiscriminator(name string) []byte {
	h := sha256.Sum256([]byte("event:" + name))
	return h[:8]
}

// Decoder maps the mirror program's event payloads to typed events.
type Decoder struct{}

// NewDecoder creates the anchor event decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode parses one event payload. Unknown discriminators decode to
// *Unrecognized; a truncated body of a known event is an error.
func (d *Decoder) Decode(raw chains.RawLog) (chains.Event, error) {
	if len(raw.Data) < 8 {
		return &chains.Unrecognized{Base: chains.NewBase(raw)}, nil
	}
	disc := raw.Data[:8]
	r := reader{buf: raw.Data[8:]}

	switch {
	case bytes.Equal(disc, discDomainMirrored):
		ev := &chains.DomainMirrored{
			Base:         chains.NewBase(raw),
			NameHash:     hashHex(r.bytes(32)),
			Delegate:     r.pubkey(),
			PolygonOwner: "0x" + hex.EncodeToString(r.bytes(20)),
			Expires:      int64(r.u64()),
		}
		return finish(ev, &r, "DomainMirrored")

	case bytes.Equal(disc, discRecordUpdated):
		ev := &chains.RecordSet{
			Base:        chains.NewBase(raw),
			NameHash:    hashHex(r.bytes(32)),
			KeyHash:     hashHex(r.bytes(32)),
			RecordType:  recordTypeName(r.u8()),
			SourceChain: chainName(r.u8()),
			Version:     int64(r.u64()),
		}
		return finish(ev, &r, "RecordUpdated")

	case bytes.Equal(disc, discRecordDeleted):
		ev := &chains.RecordSet{
			Base:        chains.NewBase(raw),
			NameHash:    hashHex(r.bytes(32)),
			KeyHash:     hashHex(r.bytes(32)),
			RecordType:  chains.RecordTypeCustom,
			SourceChain: chains.ChainSolana,
			Tombstone:   true,
		}
		return finish(ev, &r, "RecordDeleted")

	case bytes.Equal(disc, discWrapStateChanged):
		nameHash := hashHex(r.bytes(32))
		state := wrapStateName(r.u8())
		ev := &chains.WrapChanged{
			Base:     chains.NewBase(raw),
			NameHash: nameHash,
			State:    state,
			NFTMint:  r.optionPubkey(),
		}
		return finish(ev, &r, "WrapStateChanged")

	case bytes.Equal(disc, discDelegateUpdated):
		ev := &chains.DelegateUpdated{
			Base:     chains.NewBase(raw),
			NameHash: hashHex(r.bytes(32)),
			Delegate: r.pubkey(),
		}
		return finish(ev, &r, "DelegateUpdated")
	}

	return &chains.Unrecognized{Base: chains.NewBase(raw), Signature: hex.EncodeToString(disc)}, nil
}

func finish(ev chains.Event, r *reader, name string) (chains.Event, error) {
	if r.err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, r.err)
	}
	return ev, nil
}

func recordTypeName(v uint8) string {
	switch v {
	case 0:
		return chains.RecordTypeAddress
	case 1:
		return chains.RecordTypeText
	case 2:
		return chains.RecordTypeContentHash
	default:
		return chains.RecordTypeCustom
	}
}

func chainName(v uint8) string {
	if v == 1 {
		return chains.ChainSolana
	}
	return chains.ChainPolygon
}

func wrapStateName(v uint8) string {
	switch v {
	case 1:
		return chains.WrapPolygon
	case 2:
		return chains.WrapSolana
	default:
		return chains.WrapNone
	}
}

func hashHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// reader is a cursor over a borsh-encoded buffer. The first short read sets
// err and every later read returns zero values, so call sites check err once.
type reader struct {
	buf []byte
	pos int
	err error
}

func (r *reader) bytes(n int) []byte {
	if r.err != nil {
		return make([]byte, n)
	}
	if r.pos+n > len(r.buf) {
		r.err = fmt.Errorf("need %d bytes at offset %d, have %d", n, r.pos, len(r.buf)-r.pos)
		return make([]byte, n)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) skip(n int) {
	r.bytes(n)
}

func (r *reader) u8() uint8 {
	return r.bytes(1)[0]
}

func (r *reader) u64() uint64 {
	return binary.LittleEndian.Uint64(r.bytes(8))
}

func (r *reader) pubkey() string {
	return solana.PublicKeyFromBytes(r.bytes(32)).String()
}

// optionPubkey reads a borsh Option<Pubkey>: a presence byte, then the key.
func (r *reader) optionPubkey() string {
	if r.u8() == 0 {
		return ""
	}
	return r.pubkey()
}

func (r *reader) lenPrefixed() []byte {
	n := binary.LittleEndian.Uint32(r.bytes(4))
	return r.bytes(int(n))
}
