package walk

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

func TestReachableChain(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()

	leaf := struct{ Name string }{Name: "leaf"}
	leafNd, err := cbor.WrapObject(leaf, mh.BLAKE2B_MIN+31, 32)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, leafNd.Cid(), leafNd.RawData()))

	root := struct {
		Name string
		Leaf interface{}
	}{Name: "root", Leaf: leafNd.Cid()}
	rootNd, err := cbor.WrapObject(root, mh.BLAKE2B_MIN+31, 32)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, rootNd.Cid(), rootNd.RawData()))

	links, err := Links(ctx, store, rootNd.Cid())
	require.NoError(t, err)
	require.Len(t, links, 1)
	require.Equal(t, leafNd.Cid(), links[0])

	reachable, err := Reachable(ctx, store, rootNd.Cid())
	require.NoError(t, err)
	require.Len(t, reachable, 2)
}

func TestLinksOfRawBlockIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	data := []byte("opaque payload")
	c := ipld.NewRawCid(data)
	require.NoError(t, store.Put(ctx, c, data))

	links, err := Links(ctx, store, c)
	require.NoError(t, err)
	require.Empty(t, links)
}
