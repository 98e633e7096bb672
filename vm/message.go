package vm

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// Message is the on-chain message the applier consumes: a chain-signed
// call from one account actor to any actor, metered by a three-part gas
// price (spec.md §4.H inputs).
type Message struct {
	From       address.Address
	To         address.Address
	Nonce      uint64
	Value      big.Int
	GasLimit   int64
	GasFeeCap  big.Int
	GasPremium big.Int
	Method     abi.MethodNum
	Params     []byte
}
