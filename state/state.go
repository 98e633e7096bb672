// Package state implements the actor state tree (spec §3, §4.F): a HAMT of
// 8-byte big-endian actor-id keys to Actor records, wrapped in a small
// versioned envelope, with an explicit stack of transaction overlays so a
// message application can be sandboxed and cleanly reverted without ever
// mutating the committed HAMT until Flush.
package state

import (
	"context"
	"fmt"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-core/ipld"
)

// Actor is one entry of the state tree: the CID of its code, the CID of
// its own head object, its call nonce, and its balance.
type Actor struct {
	Code    cid.Cid
	Head    cid.Cid
	Nonce   uint64
	Balance big.Int
}

// StateRoot is the CBOR object a tipset's StateRoot CID resolves to. The
// version field lets the tree evolve (a bare HAMT CID, with no wrapper,
// was version 0 and is accepted by LoadStateRoot for backward compatibility).
type StateRoot struct {
	Version uint64
	Actors  cid.Cid
	Info    cid.Cid
}

// ErrActorNotFound is returned by Get (but not TryGet) when an address has
// no actor.
var ErrActorNotFound = errors.New("state: actor not found")

// Tree is the actor state tree's read/write surface. Mutations made
// between TxBegin and TxEnd/TxRevert are only visible to calls made on the
// same Tree afterward; Flush requires the transaction stack to be back to
// its single base layer.
type Tree interface {
	Get(ctx context.Context, addr address.Address) (*Actor, error)
	TryGet(ctx context.Context, addr address.Address) (*Actor, bool, error)
	Set(ctx context.Context, addr address.Address, act *Actor) error
	Remove(ctx context.Context, addr address.Address) error
	MutateActor(ctx context.Context, addr address.Address, fn func(*Actor) error) error
	LookupID(ctx context.Context, addr address.Address) (address.Address, error)
	RegisterNewAddress(ctx context.Context, addr address.Address) (address.Address, error)
	ForEach(ctx context.Context, fn func(address.Address, *Actor) error) error

	TxBegin() error
	TxRevert() error
	TxEnd() error

	Flush(ctx context.Context) (cid.Cid, error)
}

// LoadStateRoot decodes a state root CID, accepting both the wrapped
// StateRoot envelope (version >= 1) and a bare HAMT CID (version 0).
func LoadStateRoot(ctx context.Context, store ipld.Store, root cid.Cid) (StateRoot, error) {
	data, err := store.Get(ctx, root)
	if err != nil {
		return StateRoot{}, err
	}
	var sr StateRoot
	if err := cbor.DecodeInto(data, &sr); err == nil && sr.Actors != cid.Undef {
		return sr, nil
	}
	// not a 3-field envelope: treat root itself as the bare HAMT CID.
	return StateRoot{Version: 0, Actors: root}, nil
}

func actorKey(id uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[7-i] = byte(id >> (8 * i))
	}
	return b[:]
}

func keyToID(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("state: malformed actor key of length %d", len(key))
	}
	var id uint64
	for _, b := range key {
		id = id<<8 | uint64(b)
	}
	return id, nil
}
