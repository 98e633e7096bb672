package buffer

import (
	"context"
	"testing"

	cbor "github.com/ipfs/go-ipld-cbor"
	mh "github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/ipld"
)

func init() {
	cbor.RegisterCborType(struct{ Name string }{})
	cbor.RegisterCborType(struct {
		Name string
		Leaf interface{}
	}{})
}

func TestFlushPromotesReachableBlocks(t *testing.T) {
	ctx := context.Background()
	backing := ipld.NewMemStore()
	buf := New(backing)

	leaf := struct{ Name string }{Name: "leaf"}
	leafNd, err := cbor.WrapObject(leaf, mh.BLAKE2B_MIN+31, 32)
	require.NoError(t, err)
	require.NoError(t, buf.Put(ctx, leafNd.Cid(), leafNd.RawData()))

	root := struct {
		Name string
		Leaf interface{}
	}{Name: "root", Leaf: leafNd.Cid()}
	rootNd, err := cbor.WrapObject(root, mh.BLAKE2B_MIN+31, 32)
	require.NoError(t, err)
	require.NoError(t, buf.Put(ctx, rootNd.Cid(), rootNd.RawData()))

	require.Equal(t, 2, buf.Len())

	has, err := backing.Has(ctx, rootNd.Cid())
	require.NoError(t, err)
	require.False(t, has)

	require.NoError(t, buf.Flush(ctx, rootNd.Cid()))

	require.Equal(t, 0, buf.Len())
	has, err = backing.Has(ctx, rootNd.Cid())
	require.NoError(t, err)
	require.True(t, has)
	has, err = backing.Has(ctx, leafNd.Cid())
	require.NoError(t, err)
	require.True(t, has)
}

func TestFlushFailsOnDanglingReference(t *testing.T) {
	ctx := context.Background()
	backing := ipld.NewMemStore()
	buf := New(backing)

	missingLeaf := ipld.NewCbCid([]byte("never written"))
	root := struct {
		Name string
		Leaf interface{}
	}{Name: "root", Leaf: missingLeaf}
	rootNd, err := cbor.WrapObject(root, mh.BLAKE2B_MIN+31, 32)
	require.NoError(t, err)
	require.NoError(t, buf.Put(ctx, rootNd.Cid(), rootNd.RawData()))

	err = buf.Flush(ctx, rootNd.Cid())
	require.Error(t, err)
}

func TestGetPrefersLocalOverBacking(t *testing.T) {
	ctx := context.Background()
	backing := ipld.NewMemStore()
	buf := New(backing)

	data := []byte("buffered only")
	c := ipld.NewRawCid(data)
	require.NoError(t, buf.Put(ctx, c, data))

	got, err := buf.Get(ctx, c)
	require.NoError(t, err)
	require.Equal(t, data, got)

	has, err := backing.Has(ctx, c)
	require.NoError(t, err)
	require.False(t, has)
}
