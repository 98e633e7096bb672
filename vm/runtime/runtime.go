// Package runtime defines the actor invocation surface (spec.md §6's
// "actor invoker interface"), kept apart from package vm so that builtin
// actor implementations can depend on it without vm depending on them in
// turn, the same separation the teacher keeps between
// internal/pkg/vm/internal/runtime and internal/pkg/vm/actor/builtin/*.
package runtime

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/state"
	"github.com/filecoin-project/venus-core/vm/gas"
)

// Runtime is the capability surface a builtin actor's exported methods
// see as their first argument. It embeds context.Context so the same
// value satisfies both a dispatcher's ctx parameter and an actor method's
// narrower Runtime parameter type.
type Runtime interface {
	context.Context

	// Epoch is the chain epoch the enclosing message is applied at.
	Epoch() abi.ChainEpoch
	// Caller is the id address of the actor that sent this invocation.
	Caller() address.Address
	// Receiver is the id address of the actor being invoked.
	Receiver() address.Address
	// ValueReceived is the balance moved to Receiver as part of this call.
	ValueReceived() big.Int

	// StateTree exposes the sandboxed actor state tree.
	StateTree() state.Tree
	// Store is the charging IPLD store backing actor-state access.
	Store() ipld.Store

	// Charge debits gas for the given charge, aborting with
	// exitcode.SysErrOutOfGas if the tracker is exhausted.
	Charge(charge gas.GasCharge)

	// Send invokes method on to with the given params and value, within a
	// nested transaction that reverts on a non-OK exit.
	Send(to address.Address, method abi.MethodNum, params []byte, value big.Int) ([]byte, exitcode.ExitCode)

	// CreateActor installs a freshly-constructed actor record at addr.
	CreateActor(addr address.Address, code cid.Cid) error

	// Abortf halts the invocation with the given exit code.
	Abortf(code exitcode.ExitCode, msg string, args ...interface{})
}

// EmptyReturn is the return value of actor methods that carry no result,
// mirroring go-state-types' abi.EmptyValue.
type EmptyReturn struct{}
