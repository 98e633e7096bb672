package gas

import (
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
)

// Pricelist prices the handful of operations the message applier itself
// performs (spec.md §4.H step 1); actor-internal gas charges are out of
// scope (spec.md §1 Non-goals: actor business logic).
type Pricelist interface {
	OnChainMessage(msgSize int) GasCharge
	OnChainReturnValue(dataSize int) GasCharge
	OnMethodInvocation(value big.Int, method abi.MethodNum) GasCharge
	OnIpldGet() GasCharge
	OnIpldPut(dataSize int) GasCharge
	OnCreateActor() GasCharge
}

// pricelistV0 is the one schedule this module ships. The actual numeric
// schedule is a protocol parameter that lives upstream in
// specs-actors/go-state-types; these values are illustrative, sized to
// be in the right ballpark rather than consensus-exact.
type pricelistV0 struct{}

var _ Pricelist = pricelistV0{}

const (
	v0MsgBytesCost      = Unit(2)
	v0MsgBaseCost       = Unit(38863)
	v0ReturnBytesCost   = Unit(1)
	v0InvokeBaseCost    = Unit(29233)
	v0InvokeValueCost   = Unit(500)
	v0IpldGetCost       = Unit(10)
	v0IpldPutBaseCost   = Unit(20)
	v0IpldPutBytesCost  = Unit(2)
	v0CreateActorCost   = Unit(1_100_000)
	v0CreateActorBurn   = Unit(36_000_000)
)

func (pricelistV0) OnChainMessage(msgSize int) GasCharge {
	return newGasCharge("OnChainMessage", v0MsgBaseCost, v0MsgBytesCost*Unit(msgSize))
}

func (pricelistV0) OnChainReturnValue(dataSize int) GasCharge {
	return newGasCharge("OnChainReturnValue", 0, v0ReturnBytesCost*Unit(dataSize))
}

func (pricelistV0) OnMethodInvocation(value big.Int, method abi.MethodNum) GasCharge {
	compute := v0InvokeBaseCost
	if !value.IsZero() {
		compute += v0InvokeValueCost
	}
	return newGasCharge("OnMethodInvocation", compute, 0)
}

func (pricelistV0) OnIpldGet() GasCharge {
	return newGasCharge("OnIpldGet", v0IpldGetCost, 0)
}

func (pricelistV0) OnIpldPut(dataSize int) GasCharge {
	return newGasCharge("OnIpldPut", v0IpldPutBaseCost, v0IpldPutBytesCost*Unit(dataSize))
}

func (pricelistV0) OnCreateActor() GasCharge {
	return newGasCharge("OnCreateActor", v0CreateActorCost, v0CreateActorBurn)
}

// PricelistByEpoch selects the schedule in force at epoch. A single
// schedule is shipped today; the epoch parameter is kept so a later
// network-version-gated schedule change (as upstream protocol upgrades
// do) slots in without changing every call site.
func PricelistByEpoch(epoch abi.ChainEpoch) Pricelist {
	return pricelistV0{}
}
