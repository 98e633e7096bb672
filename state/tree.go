package state

import (
	"context"

	"github.com/filecoin-project/go-address"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/pkg/errors"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/venus-core/hamt"
	"github.com/filecoin-project/venus-core/ipld"
)

// txLayer is one frame of the transaction overlay stack: writes and
// removals not yet merged into a parent frame, plus a cache of address
// resolutions made while this frame was on top.
type txLayer struct {
	actors  map[uint64]*Actor
	removed map[uint64]struct{}
	lookup  map[string]uint64
}

func newTxLayer() *txLayer {
	return &txLayer{
		actors:  make(map[uint64]*Actor),
		removed: make(map[uint64]struct{}),
		lookup:  make(map[string]uint64),
	}
}

// tree is the HAMT-backed Tree implementation. It always carries at least
// one tx layer; Flush is only legal when exactly one remains.
type tree struct {
	store ipld.Store
	byID  *hamt.Root
	tx    []*txLayer
}

var _ Tree = (*tree)(nil)

// NewTree returns an empty state tree.
func NewTree(store ipld.Store) *tree {
	return &tree{
		store: store,
		byID:  hamt.NewHAMT(),
		tx:    []*txLayer{newTxLayer()},
	}
}

// LoadTree loads an existing state tree from its root CID.
func LoadTree(ctx context.Context, store ipld.Store, root cid.Cid) (*tree, error) {
	sr, err := LoadStateRoot(ctx, store, root)
	if err != nil {
		return nil, errors.Wrap(err, "loading state root")
	}
	byID, err := hamt.LoadHAMT(ctx, store, sr.Actors)
	if err != nil {
		return nil, errors.Wrap(err, "loading actor hamt")
	}
	return &tree{store: store, byID: byID, tx: []*txLayer{newTxLayer()}}, nil
}

func (t *tree) top() *txLayer { return t.tx[len(t.tx)-1] }

// resolveID finds the actor-id behind addr, consulting the tx stack's
// cached lookups before falling through to the init actor's address map.
func (t *tree) resolveID(ctx context.Context, addr address.Address) (uint64, error) {
	if addr.Protocol() == address.ID {
		return address.IDFromAddress(addr)
	}
	key := addr.String()
	for i := len(t.tx) - 1; i >= 0; i-- {
		if id, ok := t.tx[i].lookup[key]; ok {
			return id, nil
		}
	}
	id, err := t.lookupInAddressMap(ctx, addr)
	if err != nil {
		return 0, err
	}
	t.top().lookup[key] = id
	return id, nil
}

// tryGetByID walks the tx stack for id, falling back to the committed
// HAMT and memoizing a hit into the top layer.
func (t *tree) tryGetByID(ctx context.Context, id uint64) (*Actor, bool, error) {
	for i := len(t.tx) - 1; i >= 0; i-- {
		layer := t.tx[i]
		if _, gone := layer.removed[id]; gone {
			return nil, false, nil
		}
		if act, ok := layer.actors[id]; ok {
			return act, true, nil
		}
	}

	var act Actor
	err := t.byID.Get(ctx, t.store, actorKey(id), &act)
	if err != nil {
		if _, ok := err.(hamt.ErrNotFound); ok {
			return nil, false, nil
		}
		return nil, false, err
	}
	t.top().actors[id] = &act
	return &act, true, nil
}

func (t *tree) set(id uint64, act *Actor) {
	layer := t.top()
	layer.actors[id] = act
	delete(layer.removed, id)
}

// Get implements Tree.
func (t *tree) Get(ctx context.Context, addr address.Address) (*Actor, error) {
	act, ok, err := t.TryGet(ctx, addr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrActorNotFound
	}
	return act, nil
}

// TryGet implements Tree.
func (t *tree) TryGet(ctx context.Context, addr address.Address) (*Actor, bool, error) {
	id, err := t.resolveID(ctx, addr)
	if err != nil {
		return nil, false, nil //nolint:nilerr // unresolved address simply has no actor
	}
	return t.tryGetByID(ctx, id)
}

// Set implements Tree.
func (t *tree) Set(ctx context.Context, addr address.Address, act *Actor) error {
	id, err := t.resolveID(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", addr)
	}
	t.set(id, act)
	return nil
}

// Remove implements Tree.
func (t *tree) Remove(ctx context.Context, addr address.Address) error {
	id, err := t.resolveID(ctx, addr)
	if err != nil {
		return errors.Wrapf(err, "resolving %s", addr)
	}
	layer := t.top()
	delete(layer.actors, id)
	layer.removed[id] = struct{}{}
	return nil
}

// MutateActor implements Tree.
func (t *tree) MutateActor(ctx context.Context, addr address.Address, fn func(*Actor) error) error {
	act, err := t.Get(ctx, addr)
	if err != nil {
		return err
	}
	cp := *act
	if err := fn(&cp); err != nil {
		return err
	}
	return t.Set(ctx, addr, &cp)
}

// LookupID implements Tree.
func (t *tree) LookupID(ctx context.Context, addr address.Address) (address.Address, error) {
	id, err := t.resolveID(ctx, addr)
	if err != nil {
		return address.Undef, err
	}
	return address.NewIDAddress(id)
}

// ForEach implements Tree: tx-local writes take precedence over the
// committed HAMT, and ids removed anywhere on the stack are skipped.
func (t *tree) ForEach(ctx context.Context, fn func(address.Address, *Actor) error) error {
	removed := make(map[uint64]struct{})
	for _, layer := range t.tx {
		for id := range layer.removed {
			removed[id] = struct{}{}
		}
	}
	seen := make(map[uint64]struct{})
	visit := func(id uint64, act *Actor) error {
		if _, gone := removed[id]; gone {
			return nil
		}
		if _, done := seen[id]; done {
			return nil
		}
		seen[id] = struct{}{}
		addr, err := address.NewIDAddress(id)
		if err != nil {
			return err
		}
		return fn(addr, act)
	}

	for i := len(t.tx) - 1; i >= 0; i-- {
		for id, act := range t.tx[i].actors {
			if err := visit(id, act); err != nil {
				return err
			}
		}
	}

	return t.byID.ForEach(ctx, t.store, func(key []byte, val *cbg.Deferred) error {
		id, err := keyToID(key)
		if err != nil {
			return err
		}
		var act Actor
		if err := cbor.DecodeInto(val.Raw, &act); err != nil {
			return err
		}
		return visit(id, &act)
	})
}

// flushTxInto applies the single remaining tx layer's writes and
// removals to the committed HAMT.
func (t *tree) flushTxInto(ctx context.Context) error {
	if len(t.tx) != 1 {
		return errors.New("state: flush requires a single transaction layer")
	}
	layer := t.tx[0]
	for id := range layer.removed {
		if err := t.byID.Remove(ctx, t.store, actorKey(id)); err != nil {
			if _, ok := err.(hamt.ErrNotFound); !ok {
				return err
			}
		}
	}
	for id, act := range layer.actors {
		if _, err := t.byID.Set(ctx, t.store, actorKey(id), act); err != nil {
			return err
		}
	}
	t.tx[0] = newTxLayer()
	return nil
}

// Flush implements Tree.
func (t *tree) Flush(ctx context.Context) (cid.Cid, error) {
	if err := t.flushTxInto(ctx); err != nil {
		return cid.Undef, err
	}
	hamtRoot, err := t.byID.Flush(ctx, t.store)
	if err != nil {
		return cid.Undef, err
	}
	sr := StateRoot{Version: 1, Actors: hamtRoot, Info: cid.Undef}
	data, err := cbor.DumpObject(sr)
	if err != nil {
		return cid.Undef, err
	}
	c := ipld.NewCbCid(data)
	if err := t.store.Put(ctx, c, data); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

// TxBegin implements Tree: pushes a new, empty overlay.
func (t *tree) TxBegin() error {
	t.tx = append(t.tx, newTxLayer())
	return nil
}

// TxRevert implements Tree: discards the top overlay entirely.
func (t *tree) TxRevert() error {
	if len(t.tx) <= 1 {
		return errors.New("state: no transaction to revert")
	}
	t.tx = t.tx[:len(t.tx)-1]
	return nil
}

// TxEnd implements Tree: merges the top overlay into its parent. A
// removal and a write for the same id never coexist within one layer, so
// applying removals before writes is enough to make the child's final
// state win over the parent's.
func (t *tree) TxEnd() error {
	if len(t.tx) <= 1 {
		return errors.New("state: no transaction to end")
	}
	child := t.tx[len(t.tx)-1]
	parent := t.tx[len(t.tx)-2]
	for id := range child.removed {
		delete(parent.actors, id)
		parent.removed[id] = struct{}{}
	}
	for id, act := range child.actors {
		parent.actors[id] = act
		delete(parent.removed, id)
	}
	for k, v := range child.lookup {
		parent.lookup[k] = v
	}
	t.tx = t.tx[:len(t.tx)-1]
	return nil
}
