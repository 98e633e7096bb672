package state

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-address"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/ipld"
)

func mustIDAddr(t *testing.T, id uint64) address.Address {
	t.Helper()
	a, err := address.NewIDAddress(id)
	require.NoError(t, err)
	return a
}

func withInitActor(t *testing.T, tr *tree) {
	t.Helper()
	require.NoError(t, tr.Set(context.Background(), mustIDAddr(t, InitActorID), &Actor{Head: cid.Undef}))
}

func TestTxRevertDiscardsChanges(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)

	a1 := mustIDAddr(t, 101)
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 1, Balance: big.NewInt(10)}))

	require.NoError(t, tr.TxBegin())
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 2, Balance: big.NewInt(20)}))
	a2 := mustIDAddr(t, 102)
	require.NoError(t, tr.Set(ctx, a2, &Actor{Nonce: 0, Balance: big.NewInt(5)}))

	require.NoError(t, tr.TxRevert())

	act, err := tr.Get(ctx, a1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), act.Nonce)

	_, ok, err := tr.TryGet(ctx, a2)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTxEndMergesIntoParent(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)

	a1 := mustIDAddr(t, 101)
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 1}))

	require.NoError(t, tr.TxBegin())
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 2}))
	require.NoError(t, tr.TxEnd())

	act, err := tr.Get(ctx, a1)
	require.NoError(t, err)
	require.Equal(t, uint64(2), act.Nonce)
}

func TestTxEndRemovalDominatesParentWrite(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)

	a1 := mustIDAddr(t, 101)
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 1}))

	require.NoError(t, tr.TxBegin())
	require.NoError(t, tr.Remove(ctx, a1))
	require.NoError(t, tr.TxEnd())

	_, ok, err := tr.TryGet(ctx, a1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFlushRequiresSingleLayer(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)
	require.NoError(t, tr.TxBegin())
	_, err := tr.Flush(ctx)
	require.Error(t, err)
}

func TestFlushAndReload(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	tr := NewTree(store)
	withInitActor(t, tr)

	a1 := mustIDAddr(t, 101)
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 7, Balance: big.NewInt(42)}))

	root, err := tr.Flush(ctx)
	require.NoError(t, err)

	reloaded, err := LoadTree(ctx, store, root)
	require.NoError(t, err)

	act, err := reloaded.Get(ctx, a1)
	require.NoError(t, err)
	require.Equal(t, uint64(7), act.Nonce)
	require.True(t, big.NewInt(42).Equals(act.Balance))
}

func TestRegisterNewAddressThenLookupID(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)

	addr, err := address.NewActorAddress([]byte("an-actor-address"))
	require.NoError(t, err)

	idAddr, err := tr.RegisterNewAddress(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, address.ID, idAddr.Protocol())

	looked, err := tr.LookupID(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, idAddr, looked)

	again, err := tr.RegisterNewAddress(ctx, addr)
	require.NoError(t, err)
	require.Equal(t, idAddr, again)
}

func TestLookupIDFailsForUnregisteredAddress(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)

	addr, err := address.NewActorAddress([]byte("never-registered"))
	require.NoError(t, err)

	_, err = tr.LookupID(ctx, addr)
	require.Error(t, err)
}

func TestForEachSkipsRemovedAndReflectsOverwrite(t *testing.T) {
	ctx := context.Background()
	tr := NewTree(ipld.NewMemStore())
	withInitActor(t, tr)

	a1 := mustIDAddr(t, 101)
	a2 := mustIDAddr(t, 102)
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 1}))
	require.NoError(t, tr.Set(ctx, a2, &Actor{Nonce: 2}))
	require.NoError(t, tr.Remove(ctx, a2))
	require.NoError(t, tr.Set(ctx, a1, &Actor{Nonce: 99}))

	seen := map[address.Address]uint64{}
	require.NoError(t, tr.ForEach(ctx, func(addr address.Address, act *Actor) error {
		seen[addr] = act.Nonce
		return nil
	}))

	require.Equal(t, map[address.Address]uint64{a1: 99, mustIDAddr(t, InitActorID): 0}, seen)
}
