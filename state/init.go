package state

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-core/hamt"
	"github.com/filecoin-project/venus-core/ipld"
)

// InitActorID is the well-known actor-id of the init actor, the only
// place a non-ID address is ever resolved to or assigned an id.
const InitActorID = 1

// FirstNonSingletonActorID is the first id RegisterNewAddress hands out;
// ids below it are reserved for actors constructed directly by genesis.
const FirstNonSingletonActorID = 100

// InitActorState is the init actor's on-chain state: the next id to hand
// out, and a HAMT from address bytes to the id already assigned to them.
type InitActorState struct {
	NextID      uint64
	AddressMap  cid.Cid
	NetworkName string
}

var errInitActorMissing = errors.New("state: init actor not registered")

func (t *tree) loadInitState(ctx context.Context) (*Actor, InitActorState, error) {
	act, ok, err := t.tryGetByID(ctx, InitActorID)
	if err != nil {
		return nil, InitActorState{}, err
	}
	if !ok {
		return nil, InitActorState{}, errInitActorMissing
	}
	if act.Head == cid.Undef {
		return act, InitActorState{NextID: FirstNonSingletonActorID}, nil
	}
	data, err := t.store.Get(ctx, act.Head)
	if err != nil {
		return nil, InitActorState{}, errors.Wrap(err, "loading init actor head")
	}
	var st InitActorState
	if err := cbor.DecodeInto(data, &st); err != nil {
		return nil, InitActorState{}, errors.Wrap(err, "decoding init actor state")
	}
	return act, st, nil
}

// lookupInAddressMap resolves a non-ID address through the init actor's
// address map, without registering it.
func (t *tree) lookupInAddressMap(ctx context.Context, addr address.Address) (uint64, error) {
	_, st, err := t.loadInitState(ctx)
	if err != nil {
		return 0, err
	}
	if st.AddressMap == cid.Undef {
		return 0, errors.Errorf("state: address %s is not registered", addr)
	}
	addrMap, err := hamt.LoadHAMT(ctx, t.store, st.AddressMap)
	if err != nil {
		return 0, errors.Wrap(err, "loading init actor address map")
	}
	var id uint64
	if err := addrMap.Get(ctx, t.store, addr.Bytes(), &id); err != nil {
		if _, ok := err.(hamt.ErrNotFound); ok {
			return 0, errors.Errorf("state: address %s is not registered", addr)
		}
		return 0, err
	}
	return id, nil
}

// RegisterNewAddress implements Tree: assigns addr the next free actor-id,
// recording the mapping in the init actor's address map. An ID address is
// returned unchanged; an address already registered gets back the ID
// address it was assigned earlier.
func (t *tree) RegisterNewAddress(ctx context.Context, addr address.Address) (address.Address, error) {
	if addr.Protocol() == address.ID {
		return addr, nil
	}
	if id, err := t.resolveID(ctx, addr); err == nil {
		return address.NewIDAddress(id)
	}

	act, st, err := t.loadInitState(ctx)
	if err != nil {
		return address.Undef, err
	}

	var addrMap *hamt.Root
	if st.AddressMap == cid.Undef {
		addrMap = hamt.NewHAMT()
	} else {
		addrMap, err = hamt.LoadHAMT(ctx, t.store, st.AddressMap)
		if err != nil {
			return address.Undef, errors.Wrap(err, "loading init actor address map")
		}
	}

	newID := st.NextID
	if _, err := addrMap.Set(ctx, t.store, addr.Bytes(), newID); err != nil {
		return address.Undef, errors.Wrap(err, "recording new address")
	}
	newAddrMapRoot, err := addrMap.Flush(ctx, t.store)
	if err != nil {
		return address.Undef, errors.Wrap(err, "flushing init actor address map")
	}

	st.NextID = newID + 1
	st.AddressMap = newAddrMapRoot
	data, err := cbor.DumpObject(st)
	if err != nil {
		return address.Undef, err
	}
	newHead := ipld.NewCbCid(data)
	if err := t.store.Put(ctx, newHead, data); err != nil {
		return address.Undef, err
	}

	updated := *act
	updated.Head = newHead
	t.set(InitActorID, &updated)

	idAddr, err := address.NewIDAddress(newID)
	if err != nil {
		return address.Undef, err
	}
	t.top().lookup[addr.String()] = newID
	return idAddr, nil
}
