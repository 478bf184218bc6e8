// Package txargs defines the wire shape of a transaction given by the caller.
// Numeric fields are arbitrary-precision and hex-encoded; optional fields are
// pointers so that "absent" and "zero" stay distinguishable, which is what
// the autofill precedence rules depend on.
package txargs

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TransactionArgs represents the arguments of a call or a transaction
// submission. Fields left nil by the caller may be filled with computed
// defaults; fields the caller supplied always win over autofilled values.
type TransactionArgs struct {
	From     *common.Address `json:"from"`
	To       *common.Address `json:"to"`
	Gas      *hexutil.Uint64 `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Value    *hexutil.Big    `json:"value"`
	Nonce    *hexutil.Uint64 `json:"nonce"`

	// Data and Input carry the calldata. Input is the newer name and takes
	// precedence when both are set.
	Data  *hexutil.Bytes `json:"data"`
	Input *hexutil.Bytes `json:"input"`
}

// Sender returns the from address, or the zero address if unset.
func (args *TransactionArgs) Sender() common.Address {
	if args.From == nil {
		return common.Address{}
	}
	return *args.From
}

// Payload returns the calldata, preferring Input over Data.
func (args *TransactionArgs) Payload() []byte {
	if args.Input != nil {
		return *args.Input
	}
	if args.Data != nil {
		return *args.Data
	}
	return nil
}

// Amount returns the transferred value, never nil.
func (args *TransactionArgs) Amount() *big.Int {
	if args.Value == nil {
		return new(big.Int)
	}
	return (*big.Int)(args.Value)
}

// Price returns the gas price, never nil.
func (args *TransactionArgs) Price() *big.Int {
	if args.GasPrice == nil {
		return new(big.Int)
	}
	return (*big.Int)(args.GasPrice)
}
