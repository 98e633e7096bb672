// Package vm implements the message applier (spec.md §4.H): Env.ApplyMessage
// charges on-chain gas, validates the sender, sandboxes state-tree writes
// in a transaction, dispatches to the receiver's builtin actor code, and
// settles gas between the sender, the reward actor, and the burnt-funds
// actor. Grounded on the teacher's pkg/vm/vmcontext/vmcontext.go and the
// original's core/vm/runtime/impl/env.cpp, which this port follows
// step-for-step where the two agree.
package vm

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/state"
	"github.com/filecoin-project/venus-core/vm/builtin"
	"github.com/filecoin-project/venus-core/vm/dispatch"
	"github.com/filecoin-project/venus-core/vm/gas"
	"github.com/filecoin-project/venus-core/vmerrors"
)

// Env is the fixed context one or more messages are applied against: a
// single parent state, a single epoch's pricelist, and the compiled-in
// actor registry.
type Env struct {
	Store     ipld.Store
	State     state.Tree
	Pricelist gas.Pricelist
	Epoch     abi.ChainEpoch
	BaseFee   big.Int
	Registry  *dispatch.Registry
}

// NewEnv builds an Env for a given parent state and epoch, selecting the
// epoch's pricelist automatically.
func NewEnv(store ipld.Store, tree state.Tree, epoch abi.ChainEpoch, baseFee big.Int, registry *dispatch.Registry) *Env {
	return &Env{
		Store:     store,
		State:     tree,
		Pricelist: gas.PricelistByEpoch(epoch),
		Epoch:     epoch,
		BaseFee:   baseFee,
		Registry:  registry,
	}
}

// DefaultRegistry builds the registry of builtin actors this module
// ships (spec.md §11).
func DefaultRegistry() *dispatch.Registry {
	return dispatch.NewRegistry(
		builtin.AccountActor{},
		builtin.InitActor{},
		builtin.RewardActor{},
		builtin.SystemActor{},
		builtin.BurntFundsActor{},
	)
}

// ApplyMessage implements spec.md §4.H's eight-step algorithm.
func (env *Env) ApplyMessage(ctx context.Context, msg *Message, msgSize int) (ret *ApplyRet, err error) {
	defer func() {
		if r := recover(); r != nil {
			if abortErr, ok := r.(*vmerrors.Error); ok && abortErr.Kind == vmerrors.KindFatal {
				ret, err = nil, abortErr
				return
			}
			panic(r)
		}
	}()

	if msg.GasLimit <= 0 {
		return nil, errors.New("vm: non-positive gas limit")
	}

	// Step 1: on-chain message gas.
	msgGasCost := env.Pricelist.OnChainMessage(msgSize)
	tracker := gas.NewTracker(gas.Unit(msg.GasLimit))
	if !tracker.TryCharge(msgGasCost) {
		penalty := big.Mul(big.NewInt(int64(msgGasCost.Total())), env.BaseFee)
		return failureRet(exitcode.SysErrOutOfGas, penalty), nil
	}
	penalty := big.Mul(big.NewInt(msg.GasLimit), env.BaseFee)

	// Step 2: sender validation.
	fromActor, ok, err := env.State.TryGet(ctx, msg.From)
	if err != nil {
		return nil, err
	}
	if !ok || fromActor.Code != builtin.AccountCode {
		return failureRet(exitcode.SysErrSenderInvalid, penalty), nil
	}
	if msg.Nonce != fromActor.Nonce {
		return failureRet(exitcode.SysErrSenderStateInvalid, penalty), nil
	}
	gasCost := big.Mul(big.NewInt(msg.GasLimit), msg.GasFeeCap)
	if fromActor.Balance.LessThan(gasCost) {
		return failureRet(exitcode.SysErrSenderStateInvalid, penalty), nil
	}
	if err := env.State.MutateActor(ctx, msg.From, func(act *state.Actor) error {
		act.Balance = big.Sub(act.Balance, gasCost)
		act.Nonce++
		return nil
	}); err != nil {
		return nil, err
	}

	// Step 3: execution sandbox.
	exec := &Execution{env: env, tracker: tracker, store: NewChargingStore(env.Store, env.Pricelist, tracker)}
	if err := env.State.TxBegin(); err != nil {
		return nil, err
	}

	// Step 4: send.
	retBytes, code, sendErr := exec.send(ctx, msg.From, msg.To, msg.Method, msg.Params, msg.Value)
	if sendErr != nil {
		_ = env.State.TxRevert()
		return nil, sendErr
	}

	// Step 5: return-value gas.
	if code == exitcode.Ok && len(retBytes) > 0 {
		if !tracker.TryCharge(env.Pricelist.OnChainReturnValue(len(retBytes))) {
			code = exitcode.SysErrOutOfGas
			retBytes = nil
		}
	}

	// Step 6: commit or revert.
	if code != exitcode.Ok {
		if err := env.State.TxRevert(); err != nil {
			return nil, err
		}
	} else {
		if err := env.State.TxEnd(); err != nil {
			return nil, err
		}
	}

	// Step 7: gas settlement.
	used := int64(tracker.GasUsed)
	if used < 0 {
		used = 0
	}
	if used > msg.GasLimit {
		used = msg.GasLimit
	}
	outputs := gas.ComputeGasOutputs(used, msg.GasLimit, env.BaseFee, msg.GasFeeCap, msg.GasPremium)
	if err := env.settle(ctx, msg.From, gasCost, outputs); err != nil {
		return nil, err
	}

	// A base fee above the message's fee cap means the sender underpaid
	// for inclusion; the excess is a penalty on the block producer, not a
	// burn or tip, matching the original's success-path penalty formula
	// (distinct from the early-exit penalties above, which cover the
	// sender never having had a chance to pay at all).
	finalPenalty := big.Zero()
	if env.BaseFee.GreaterThan(msg.GasFeeCap) {
		finalPenalty = big.Mul(big.Sub(env.BaseFee, msg.GasFeeCap), big.NewInt(used))
	}

	return &ApplyRet{
		Receipt: MessageReceipt{ExitCode: code, Return: retBytes, GasUsed: used},
		Penalty: finalPenalty,
		Reward:  outputs.MinerTip,
		Outputs: outputs,
	}, nil
}

// settle distributes the gas reserve debited from from in step 2 between
// the burnt-funds actor, the reward actor, and a refund back to from, per
// spec.md §4.H step 7. The reserve (gasCost) was already deducted from
// from's balance; only the already-prepaid amount moves here, so the sum
// of the three credits below must equal gasCost exactly.
func (env *Env) settle(ctx context.Context, from address.Address, gasCost big.Int, outputs gas.GasOutputs) error {
	credits := []struct {
		to     address.Address
		amount big.Int
	}{
		{builtin.BurntFundsActorAddr, big.Add(outputs.BaseFeeBurn, outputs.OverEstimationBurn)},
		{builtin.RewardActorAddr, outputs.MinerTip},
		{from, outputs.Refund},
	}
	for _, c := range credits {
		if c.amount.IsZero() {
			continue
		}
		if err := env.State.MutateActor(ctx, c.to, func(act *state.Actor) error {
			act.Balance = big.Add(act.Balance, c.amount)
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// ApplyImplicitMessage runs a message outside normal gas accounting, for
// cron-style system calls and genesis construction (spec.md §12's two
// special entry points, grounded on the teacher's LegacyVM.ApplyImplicitMessage
// and the original's Env::applyImplicitMessage).
func (env *Env) ApplyImplicitMessage(ctx context.Context, msg *Message) (*MessageReceipt, error) {
	exec := newExecution(env, gas.SystemGasLimit.AsBigInt().Int64())
	if err := env.State.TxBegin(); err != nil {
		return nil, err
	}
	retBytes, code, err := exec.send(ctx, msg.From, msg.To, msg.Method, msg.Params, msg.Value)
	if err != nil {
		_ = env.State.TxRevert()
		return nil, err
	}
	if code != exitcode.Ok {
		if err := env.State.TxRevert(); err != nil {
			return nil, err
		}
	} else if err := env.State.TxEnd(); err != nil {
		return nil, err
	}
	return &MessageReceipt{ExitCode: code, Return: retBytes}, nil
}

// ApplyGenesisMessage is ApplyImplicitMessage under the name the genesis
// builder calls it by (teacher's LegacyVM.ApplyGenesisMessage): genesis
// construction has no prior nonce or balance to validate against, so it
// reuses the implicit path rather than ApplyMessage's sender checks.
func (env *Env) ApplyGenesisMessage(ctx context.Context, from, to address.Address, method abi.MethodNum, value big.Int, params []byte) (*MessageReceipt, error) {
	return env.ApplyImplicitMessage(ctx, &Message{From: from, To: to, Value: value, Method: method, Params: params})
}
