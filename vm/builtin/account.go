package builtin

import (
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/state"
	"github.com/filecoin-project/venus-core/vm/dispatch"
	"github.com/filecoin-project/venus-core/vm/runtime"
)

// AccountState is the account actor's only state: the public-key-style
// address it was created for, stored as raw bytes since go-address's
// Address keeps its fields unexported and CBOR-gen generated types
// encode Address via Bytes()/NewFromBytes rather than generic
// reflection. The id address that indexes it in the state tree is
// assigned separately by the init actor.
type AccountState struct {
	AddressBytes []byte
}

// AccountActor holds the balance and nonce of a single non-id address.
// It is auto-created by a Send to an unresolvable address (spec.md §4.H
// step 4a); the only method it exports is its constructor.
type AccountActor struct{}

var _ dispatch.Actor = (*AccountActor)(nil)

// Code implements dispatch.Actor.
func (AccountActor) Code() cid.Cid { return AccountCode }

// Exports implements dispatch.Actor: only the constructor is callable.
func (AccountActor) Exports() []dispatch.Method {
	return []dispatch.Method{
		MethodSend:        nil,
		MethodConstructor: accountConstructor,
	}
}

// ConstructorParams carries the pubkey-style address a new account actor
// is created for, encoded as raw address bytes.
type ConstructorParams struct {
	AddressBytes []byte
}

// accountConstructor records the pubkey-style address an account actor
// was created for, so GetAddress-style callers can resolve it back.
func accountConstructor(rt runtime.Runtime, params *ConstructorParams) (*runtime.EmptyReturn, error) {
	if params == nil {
		return nil, nil
	}
	data, err := cbor.DumpObject(AccountState{AddressBytes: params.AddressBytes})
	if err != nil {
		return nil, err
	}
	head := ipld.NewCbCid(data)
	if err := rt.Store().Put(rt, head, data); err != nil {
		return nil, err
	}
	return nil, rt.StateTree().MutateActor(rt, rt.Receiver(), func(act *state.Actor) error {
		act.Head = head
		return nil
	})
}
