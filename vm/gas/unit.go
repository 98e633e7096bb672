// Package gas implements gas accounting for message application (spec.md
// §4.H): a per-execution Tracker, an epoch-selected Pricelist of charges,
// and the settlement math that turns a spent/limit/fee-cap/premium tuple
// into a base-fee burn, miner tip, overestimation burn and refund.
package gas

import (
	"github.com/filecoin-project/go-state-types/big"
)

// Unit is a quantity of gas. Signed, since a handful of VM operations can
// refund more gas than they charged within the same call.
type Unit int64

// Zero is the zero gas value.
var Zero = Unit(0)

// SystemGasLimit bounds implicit, non-chargeable system messages
// (cron ticks, genesis construction) generously rather than leaving them
// unbounded.
const SystemGasLimit = Unit(1_000_000_000_000_000_000)

// AsBigInt widens a Unit to a big.Int for use in token-amount arithmetic.
func (u Unit) AsBigInt() big.Int { return big.NewInt(int64(u)) }

// ToTokens returns the cost of u gas at the given per-unit price.
func (u Unit) ToTokens(price big.Int) big.Int {
	return big.Mul(u.AsBigInt(), price)
}
