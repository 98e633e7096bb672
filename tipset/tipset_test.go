package tipset

import (
	"context"
	"testing"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	cbor "github.com/ipfs/go-ipld-cbor"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/ipld"
)

func putHeader(t *testing.T, store ipld.Store, h Header) *Header {
	t.Helper()
	data, err := cbor.DumpObject(h)
	require.NoError(t, err)
	c := ipld.NewCbCid(data)
	require.NoError(t, store.Put(context.Background(), c, data))
	loaded, err := LoadHeader(context.Background(), store, c)
	require.NoError(t, err)
	return loaded
}

func TestNewTipSetValidatesAgreement(t *testing.T) {
	store := ipld.NewMemStore()
	h1 := putHeader(t, store, Header{Height: 10, ParentStateRoot: ipld.NewCbCid([]byte("root")), ParentWeight: big.NewInt(1)})

	ts, err := NewTipSet([]*Header{h1})
	require.NoError(t, err)
	require.Equal(t, 1, len(ts.Headers()))
	require.Equal(t, abi.ChainEpoch(10), ts.Height())
}

func TestNewTipSetRejectsHeightMismatch(t *testing.T) {
	store := ipld.NewMemStore()
	h1 := putHeader(t, store, Header{Height: 10, ParentWeight: big.NewInt(1)})
	h2 := putHeader(t, store, Header{Height: 11, ParentWeight: big.NewInt(1)})

	_, err := NewTipSet([]*Header{h1, h2})
	require.Error(t, err)
}

func TestLoaderCachesByKey(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	h1 := putHeader(t, store, Header{Height: 5, ParentWeight: big.NewInt(2)})

	l, err := NewLoader(store, 16)
	require.NoError(t, err)

	key := NewTipSetKey(h1.Cid())
	ts1, err := l.Load(ctx, key)
	require.NoError(t, err)
	ts2, err := l.Load(ctx, key)
	require.NoError(t, err)
	require.Same(t, ts1, ts2)
}

func TestLoaderFailsOnMissingHeader(t *testing.T) {
	store := ipld.NewMemStore()
	l, err := NewLoader(store, 16)
	require.NoError(t, err)

	missing := ipld.NewCbCid([]byte("nope"))
	_, err = l.Load(context.Background(), NewTipSetKey(missing))
	require.Error(t, err)
}
