// Package heads provides the dispatch chain's notion of the current block:
// the immutable header snapshot the execution subprovider anchors its state
// view and block context to.
package heads

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type (
	// BlockContext describes the execution environment derived from one
	// block header. It is immutable once constructed.
	BlockContext struct {
		Number      *big.Int
		ParentHash  common.Hash
		UncleHash   common.Hash
		Coinbase    common.Address
		Root        common.Hash
		TxHash      common.Hash
		ReceiptHash common.Hash
		Bloom       []byte
		Difficulty  *big.Int
		GasLimit    uint64
		GasUsed     uint64
		Time        uint64
		Extra       []byte
	}

	// Source supplies the current block context.
	Source interface {
		CurrentBlock(ctx context.Context) (*BlockContext, error)
	}
)

// rpcHeader mirrors the header fields of an eth_getBlockByNumber response.
type rpcHeader struct {
	Number           *hexutil.Big   `json:"number"`
	ParentHash       common.Hash    `json:"parentHash"`
	Sha3Uncles       common.Hash    `json:"sha3Uncles"`
	Miner            common.Address `json:"miner"`
	StateRoot        common.Hash    `json:"stateRoot"`
	TransactionsRoot common.Hash    `json:"transactionsRoot"`
	ReceiptsRoot     common.Hash    `json:"receiptsRoot"`
	LogsBloom        hexutil.Bytes  `json:"logsBloom"`
	Difficulty       *hexutil.Big   `json:"difficulty"`
	GasLimit         hexutil.Uint64 `json:"gasLimit"`
	GasUsed          hexutil.Uint64 `json:"gasUsed"`
	Timestamp        hexutil.Uint64 `json:"timestamp"`
	ExtraData        hexutil.Bytes  `json:"extraData"`
}

func (h *rpcHeader) toBlockContext() *BlockContext {
	ctx := &BlockContext{
		Number:      (*big.Int)(h.Number),
		ParentHash:  h.ParentHash,
		UncleHash:   h.Sha3Uncles,
		Coinbase:    h.Miner,
		Root:        h.StateRoot,
		TxHash:      h.TransactionsRoot,
		ReceiptHash: h.ReceiptsRoot,
		Bloom:       h.LogsBloom,
		Difficulty:  (*big.Int)(h.Difficulty),
		GasLimit:    uint64(h.GasLimit),
		GasUsed:     uint64(h.GasUsed),
		Time:        uint64(h.Timestamp),
		Extra:       h.ExtraData,
	}
	if ctx.Number == nil {
		ctx.Number = new(big.Int)
	}
	if ctx.Difficulty == nil {
		ctx.Difficulty = new(big.Int)
	}
	return ctx
}
