// Package evm implements the chains contracts for the authoritative EVM
// chain: an ethclient-backed log source and the registry/resolver/wrapper
// event decoder.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/pnslabs/pns-indexer/internal/chains"
)

// Client is a chains.LogSource over one EVM RPC endpoint.
type Client struct {
	ec    *ethclient.Client
	chain string
}

// Dial connects to an EVM RPC endpoint.
func Dial(ctx context.Context, rpcURL, chain string) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s rpc: %w", chain, err)
	}
	return &Client{ec: ec, chain: chain}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.ec.Close()
}

// Head returns the latest block number.
func (c *Client) Head(ctx context.Context) (int64, error) {
	n, err := c.ec.BlockNumber(ctx)
	if err != nil {
		return 0, chains.ClassifyRPCError(err)
	}
	return int64(n), nil
}

// Logs issues one bounded eth_getLogs query. Provider rejections are
// classified so the fetcher can shrink the range or back off.
func (c *Client) Logs(ctx context.Context, q chains.LogQuery) ([]chains.RawLog, error) {
	fq := ethereum.FilterQuery{
		FromBlock: big.NewInt(q.FromBlock),
		ToBlock:   big.NewInt(q.ToBlock),
	}
	for _, a := range q.Addresses {
		fq.Addresses = append(fq.Addresses, common.HexToAddress(a))
	}
	if len(q.Topics) > 0 {
		topics := make([]common.Hash, 0, len(q.Topics))
		for _, t := range q.Topics {
			topics = append(topics, common.HexToHash(t))
		}
		fq.Topics = [][]common.Hash{topics}
	}

	logs, err := c.ec.FilterLogs(ctx, fq)
	if err != nil {
		return nil, chains.ClassifyRPCError(err)
	}

	raw := make([]chains.RawLog, 0, len(logs))
	for _, l := range logs {
		topics := make([]string, 0, len(l.Topics))
		for _, t := range l.Topics {
			topics = append(topics, t.Hex())
		}
		raw = append(raw, chains.RawLog{
			Chain:    c.chain,
			Address:  addrHex(l.Address),
			Topics:   topics,
			Data:     l.Data,
			Block:    int64(l.BlockNumber),
			TxHash:   l.TxHash.Hex(),
			LogIndex: uint32(l.Index),
			Removed:  l.Removed,
		})
	}
	return raw, nil
}
