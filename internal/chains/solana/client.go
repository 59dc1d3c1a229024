// Package solana implements the chains contracts for the mirror chain: a
// signature-walking log source over the anchor program, the anchor event
// decoder, and a record account reader for events that announce writes
// without the written bytes.
package solana

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/pnslabs/pns-indexer/internal/chains"
)

// programDataPrefix marks anchor event payloads in transaction log output.
const programDataPrefix = "Program data: "

// signaturePageLimit caps one getSignaturesForAddress page.
const signaturePageLimit = 1000

// Client is a chains.LogSource over one Solana RPC endpoint, scoped to a
// single program's transaction history.
type Client struct {
	rc      *rpc.Client
	program solana.PublicKey
}

// New connects to a Solana RPC endpoint and binds it to the mirror program.
func New(rpcURL, programID string) (*Client, error) {
	program, err := solana.PublicKeyFromBase58(programID)
	if err != nil {
		return nil, fmt.Errorf("parsing program id %q: %w", programID, err)
	}
	return &Client{rc: rpc.New(rpcURL), program: program}, nil
}

// Head returns the latest finalized slot.
func (c *Client) Head(ctx context.Context) (int64, error) {
	slot, err := c.rc.GetSlot(ctx, rpc.CommitmentFinalized)
	if err != nil {
		return 0, chains.ClassifyRPCError(err)
	}
	return int64(slot), nil
}

// Logs returns the program's event payloads in the slot range. Solana has no
// ranged log filter, so the client walks the program's signature history
// newest-first until it passes the range, then fetches the matching
// transactions oldest-first.
func (c *Client) Logs(ctx context.Context, q chains.LogQuery) ([]chains.RawLog, error) {
	sigs, err := c.signaturesInRange(ctx, q.FromBlock, q.ToBlock)
	if err != nil {
		return nil, err
	}

	var raw []chains.RawLog
	for i := len(sigs) - 1; i >= 0; i-- {
		entries, err := c.transactionLogs(ctx, sigs[i])
		if err != nil {
			return nil, err
		}
		raw = append(raw, entries...)
	}
	return raw, nil
}

func (c *Client) signaturesInRange(ctx context.Context, from, to int64) ([]*rpc.TransactionSignature, error) {
	var (
		matched []*rpc.TransactionSignature
		before  solana.Signature
	)
	limit := signaturePageLimit

	for {
		opts := &rpc.GetSignaturesForAddressOpts{
			Limit:      &limit,
			Commitment: rpc.CommitmentFinalized,
		}
		if !before.IsZero() {
			opts.Before = before
		}
		page, err := c.rc.GetSignaturesForAddressWithOpts(ctx, c.program, opts)
		if err != nil {
			return nil, chains.ClassifyRPCError(err)
		}
		if len(page) == 0 {
			return matched, nil
		}

		for _, s := range page {
			slot := int64(s.Slot)
			if slot > to {
				continue
			}
			if slot < from {
				return matched, nil
			}
			if s.Err != nil {
				continue
			}
			matched = append(matched, s)
		}

		if len(page) < limit {
			return matched, nil
		}
		before = page[len(page)-1].Signature
	}
}

func (c *Client) transactionLogs(ctx context.Context, sig *rpc.TransactionSignature) ([]chains.RawLog, error) {
	opts := &rpc.GetTransactionOpts{
		Encoding:                       solana.EncodingBase64,
		Commitment:                     rpc.CommitmentFinalized,
		MaxSupportedTransactionVersion: &rpc.MaxSupportedTransactionVersion0,
	}
	tx, err := c.rc.GetTransaction(ctx, sig.Signature, opts)
	if err != nil {
		return nil, chains.ClassifyRPCError(err)
	}
	if tx.Meta == nil {
		return nil, nil
	}

	var raw []chains.RawLog
	var idx uint32
	for _, line := range tx.Meta.LogMessages {
		payload, ok := strings.CutPrefix(line, programDataPrefix)
		if !ok {
			continue
		}
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			continue
		}
		raw = append(raw, chains.RawLog{
			Chain:    chains.ChainSolana,
			Address:  c.program.String(),
			Data:     data,
			Block:    int64(tx.Slot),
			TxHash:   sig.Signature.String(),
			LogIndex: idx,
		})
		idx++
	}
	return raw, nil
}

// RecordValue reads the current payload of one record PDA. Record events on
// this chain carry only the version stamp, so the scanner calls this to fill
// in accepted values. A missing account yields nil bytes and no error.
func (c *Client) RecordValue(ctx context.Context, nameHash, keyHash string) ([]byte, error) {
	nh, err := parseHash(nameHash)
	if err != nil {
		return nil, fmt.Errorf("parsing name hash: %w", err)
	}
	kh, err := parseHash(keyHash)
	if err != nil {
		return nil, fmt.Errorf("parsing key hash: %w", err)
	}

	domainPDA, _, err := solana.FindProgramAddress([][]byte{[]byte("domain"), nh}, c.program)
	if err != nil {
		return nil, fmt.Errorf("deriving domain address: %w", err)
	}
	recordPDA, _, err := solana.FindProgramAddress([][]byte{[]byte("record"), domainPDA.Bytes(), kh}, c.program)
	if err != nil {
		return nil, fmt.Errorf("deriving record address: %w", err)
	}

	info, err := c.rc.GetAccountInfo(ctx, recordPDA)
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, chains.ClassifyRPCError(err)
	}
	if info.Value == nil {
		return nil, nil
	}
	return recordAccountData(info.Value.Data.GetBinary())
}

// recordAccountData extracts the payload from a serialized record account:
// 8-byte account discriminator, 32-byte domain key, 32-byte key hash, type
// and source bytes, two u64 counters, then a length-prefixed payload.
func recordAccountData(buf []byte) ([]byte, error) {
	r := reader{buf: buf}
	r.skip(8 + 32 + 32 + 1 + 1 + 8 + 8)
	data := r.lenPrefixed()
	if r.err != nil {
		return nil, fmt.Errorf("malformed record account: %w", r.err)
	}
	return data, nil
}

func parseHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(strings.ToLower(s), "0x"))
	if err != nil {
		return nil, err
	}
	if len(b) != 32 {
		return nil, fmt.Errorf("hash is %d bytes, want 32", len(b))
	}
	return b, nil
}
