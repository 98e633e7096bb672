package vm

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/state"
	"github.com/filecoin-project/venus-core/vm/builtin"
	"github.com/filecoin-project/venus-core/vm/gas"
	vmrt "github.com/filecoin-project/venus-core/vm/runtime"
	"github.com/filecoin-project/venus-core/vmerrors"
)

// Execution tracks one top-level message's gas and charging store across
// however many nested sends it makes (spec.md §4.H step 3's sandbox,
// grounded on the original's Execution and the teacher's invocationContext).
type Execution struct {
	env     *Env
	tracker *gas.Tracker
	store   *ChargingStore
}

func newExecution(env *Env, limit int64) *Execution {
	tracker := gas.NewTracker(gas.Unit(limit))
	return &Execution{
		env:     env,
		tracker: tracker,
		store:   NewChargingStore(env.Store, env.Pricelist, tracker),
	}
}

// invocation is the Runtime seen by one actor method call: Execution
// scoped down to a single (caller, receiver, value) triple. Its states
// mirror spec.md §4.H's Entered -> ActorResolved -> ValueTransferred ->
// Invoked -> Returned|Aborted machine implicitly, by only existing once
// those steps have already succeeded.
type invocation struct {
	context.Context
	exec     *Execution
	caller   address.Address
	receiver address.Address
	value    big.Int
}

var _ vmrt.Runtime = (*invocation)(nil)

func (i *invocation) Epoch() abi.ChainEpoch       { return i.exec.env.Epoch }
func (i *invocation) Caller() address.Address     { return i.caller }
func (i *invocation) Receiver() address.Address   { return i.receiver }
func (i *invocation) ValueReceived() big.Int      { return i.value }
func (i *invocation) StateTree() state.Tree       { return i.exec.env.State }
func (i *invocation) Store() ipld.Store           { return i.exec.store }

func (i *invocation) Charge(charge gas.GasCharge) {
	i.exec.tracker.Charge(charge, "actor charge %s", charge.Name)
}

func (i *invocation) Send(to address.Address, method abi.MethodNum, params []byte, value big.Int) ([]byte, exitcode.ExitCode) {
	ret, ec, err := i.exec.sendWithRevert(i.Context, i.receiver, to, method, params, value)
	if err != nil {
		panic(vmerrors.Fatal(err, "nested send to %s failed", to))
	}
	return ret, ec
}

func (i *invocation) CreateActor(addr address.Address, code cid.Cid) error {
	return i.exec.env.State.Set(i.Context, addr, &state.Actor{Code: code, Balance: big.Zero()})
}

func (i *invocation) Abortf(code exitcode.ExitCode, msg string, args ...interface{}) {
	panic(vmerrors.Abort(code, msg, args...))
}

// send implements spec.md §4.H step 4: it is not itself transactional
// (the caller decides whether to wrap it in sendWithRevert).
func (e *Execution) send(ctx context.Context, from, to address.Address, method abi.MethodNum, params []byte, value big.Int) ([]byte, exitcode.ExitCode, error) {
	toActor, ok, err := e.env.State.TryGet(ctx, to)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		// Charges here run before any dispatch.Dispatch call, so an
		// out-of-gas condition must be reported as an exit code rather
		// than left to panic past Dispatch's recover boundary.
		if !e.tracker.TryCharge(e.env.Pricelist.OnCreateActor()) {
			return nil, exitcode.SysErrOutOfGas, nil
		}
		idAddr, err := e.env.State.RegisterNewAddress(ctx, to)
		if err != nil {
			return nil, 0, err
		}
		if err := e.env.State.Set(ctx, idAddr, &state.Actor{Code: builtin.AccountCode, Balance: big.Zero()}); err != nil {
			return nil, 0, err
		}
		toActor, _, err = e.env.State.TryGet(ctx, idAddr)
		if err != nil {
			return nil, 0, err
		}
		to = idAddr
	}

	if !e.tracker.TryCharge(e.env.Pricelist.OnMethodInvocation(value, method)) {
		return nil, exitcode.SysErrOutOfGas, nil
	}

	callerID, err := e.env.State.LookupID(ctx, from)
	if err != nil {
		return nil, 0, err
	}
	receiverID, err := e.env.State.LookupID(ctx, to)
	if err != nil {
		return nil, 0, err
	}

	if !value.IsZero() {
		if value.Sign() < 0 {
			return nil, exitcode.SysErrForbidden, nil
		}
		if err := transfer(ctx, e.env.State, callerID, receiverID, value); err != nil {
			return nil, exitcode.SysErrInsufficientFunds, nil
		}
	}

	if method == builtin.MethodSend {
		return nil, exitcode.Ok, nil
	}

	dispatcher, ok := e.env.Registry.Get(toActor.Code)
	if !ok {
		return nil, exitcode.SysErrInvalidReceiver, nil
	}

	inv := &invocation{Context: ctx, exec: e, caller: callerID, receiver: receiverID, value: value}
	ret, ec := dispatcher.Dispatch(inv, method, params)
	return ret, ec, nil
}

// sendWithRevert runs send inside its own transaction layer, reverting it
// on a non-OK exit and otherwise merging it into the parent (spec.md
// §4.H step 4's nested sends via Execution.sendWithRevert).
func (e *Execution) sendWithRevert(ctx context.Context, from, to address.Address, method abi.MethodNum, params []byte, value big.Int) ([]byte, exitcode.ExitCode, error) {
	if err := e.env.State.TxBegin(); err != nil {
		return nil, 0, err
	}
	ret, ec, err := e.send(ctx, from, to, method, params, value)
	if err != nil {
		_ = e.env.State.TxRevert()
		return nil, 0, err
	}
	if ec != exitcode.Ok {
		if rerr := e.env.State.TxRevert(); rerr != nil {
			return nil, 0, rerr
		}
		return nil, ec, nil
	}
	if eerr := e.env.State.TxEnd(); eerr != nil {
		return nil, 0, eerr
	}
	return ret, ec, nil
}

func transfer(ctx context.Context, tree state.Tree, from, to address.Address, amount big.Int) error {
	if from == to {
		return nil
	}
	fromActor, err := tree.Get(ctx, from)
	if err != nil {
		return err
	}
	if fromActor.Balance.LessThan(amount) {
		return vmerrors.Inconsistent("insufficient balance in %s to transfer %s", from, amount)
	}
	if err := tree.MutateActor(ctx, from, func(act *state.Actor) error {
		act.Balance = big.Sub(act.Balance, amount)
		return nil
	}); err != nil {
		return err
	}
	return tree.MutateActor(ctx, to, func(act *state.Actor) error {
		act.Balance = big.Add(act.Balance, amount)
		return nil
	})
}
