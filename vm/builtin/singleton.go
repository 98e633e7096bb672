package builtin

import (
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-core/vm/dispatch"
	"github.com/filecoin-project/venus-core/vm/runtime"
)

func noopConstructor(rt runtime.Runtime, params *runtime.EmptyReturn) (*runtime.EmptyReturn, error) {
	return nil, nil
}

// RewardActor is the gas-tip credit sink (spec.md §4.H step 7). The
// applier moves value into it directly through the state tree; it has no
// callable behavior of its own in this module's scope (the teacher's
// per-epoch reward computation lives in specactors/builtin/reward and is
// out of scope per spec.md §1's non-goals).
type RewardActor struct{}

var _ dispatch.Actor = (*RewardActor)(nil)

// Code implements dispatch.Actor.
func (RewardActor) Code() cid.Cid { return RewardCode }

// Exports implements dispatch.Actor.
func (RewardActor) Exports() []dispatch.Method {
	return []dispatch.Method{MethodSend: nil, MethodConstructor: noopConstructor}
}

// SystemActor is the implicit-message receiver: cron-style and
// genesis-only calls address it, but it exports no user-callable method.
type SystemActor struct{}

var _ dispatch.Actor = (*SystemActor)(nil)

// Code implements dispatch.Actor.
func (SystemActor) Code() cid.Cid { return SystemCode }

// Exports implements dispatch.Actor.
func (SystemActor) Exports() []dispatch.Method {
	return []dispatch.Method{MethodSend: nil, MethodConstructor: noopConstructor}
}

// BurntFundsActor is the base-fee and overestimation burn sink (spec.md
// §4.H step 7). Like RewardActor, it is credited directly by the
// applier and exports only a no-op constructor.
type BurntFundsActor struct{}

var _ dispatch.Actor = (*BurntFundsActor)(nil)

// Code implements dispatch.Actor.
func (BurntFundsActor) Code() cid.Cid { return BurntFundsCode }

// Exports implements dispatch.Actor.
func (BurntFundsActor) Exports() []dispatch.Method {
	return []dispatch.Method{MethodSend: nil, MethodConstructor: noopConstructor}
}
