package builtin

import (
	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/exitcode"
	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-core/vm/dispatch"
	"github.com/filecoin-project/venus-core/vm/runtime"
)

// InitActor owns address-to-id allocation. Its state lives directly in
// the id-1 actor's Head as state.InitActorState; StateTree.LookupID and
// StateTree.RegisterNewAddress already read and mutate it, so this actor
// only needs to expose Exec, the method user messages call to launch a
// new actor instance (grounded on the teacher's
// internal/pkg/vm/actor/builtin/initactor.Actor.Exec).
type InitActor struct{}

var _ dispatch.Actor = (*InitActor)(nil)

// Code implements dispatch.Actor.
func (InitActor) Code() cid.Cid { return InitCode }

const methodExec = 2

// Exports implements dispatch.Actor.
func (InitActor) Exports() []dispatch.Method {
	return []dispatch.Method{
		MethodSend:        nil,
		MethodConstructor: initConstructor,
		methodExec:        initExec,
	}
}

func initConstructor(rt runtime.Runtime, params *runtime.EmptyReturn) (*runtime.EmptyReturn, error) {
	// state.Tree lazily defaults the init actor's state on first read
	// (see state.loadInitState), so there is nothing to initialize here.
	return nil, nil
}

// ExecParams names the actor code to instantiate and the constructor
// params to invoke it with.
type ExecParams struct {
	CodeCid []byte
	Params  []byte
}

// ExecReturn carries the public and id address of the newly created
// actor.
type ExecReturn struct {
	IDAddress     []byte
	RobustAddress []byte
}

// isKnownBuiltinCode restricts Exec to the actors this module ships,
// except the init actor itself.
func isKnownBuiltinCode(code cid.Cid) bool {
	switch code {
	case AccountCode, RewardCode, SystemCode, BurntFundsCode:
		return true
	default:
		return false
	}
}

// initExec creates a new actor of the given builtin code, assigns it an
// id via the init actor's own address map, and sends its constructor
// message with the value attached to this call.
func initExec(rt runtime.Runtime, params *ExecParams) (*ExecReturn, error) {
	code, err := cid.Cast(params.CodeCid)
	if err != nil {
		rt.Abortf(exitcode.ErrIllegalArgument, "malformed code cid: %s", err)
	}
	if !isKnownBuiltinCode(code) {
		rt.Abortf(exitcode.ErrIllegalArgument, "cannot exec unknown actor code %s", code)
	}

	robust, err := address.NewFromBytes(params.Params)
	if err != nil {
		// Exec's robust address is carried in Params when the caller is
		// minting a fresh pubkey-style address rather than re-execing an
		// existing one; a decode failure just means there is none.
		robust = address.Undef
	}

	target := robust
	if target == address.Undef {
		target = rt.Caller()
	}

	idAddr, err := rt.StateTree().RegisterNewAddress(rt, target)
	if err != nil {
		return nil, err
	}
	if err := rt.CreateActor(idAddr, code); err != nil {
		return nil, err
	}

	if _, ec := rt.Send(idAddr, MethodConstructor, params.Params, rt.ValueReceived()); ec != exitcode.Ok {
		rt.Abortf(ec, "constructor for %s failed", idAddr)
	}

	return &ExecReturn{IDAddress: idAddr.Bytes(), RobustAddress: target.Bytes()}, nil
}
