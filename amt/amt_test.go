package amt

import (
	"context"
	"testing"

	cbg "github.com/whyrusleeping/cbor-gen"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/ipld"
)

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewAMT()

	require.NoError(t, r.Set(ctx, store, 0, "zero"))
	require.NoError(t, r.Set(ctx, store, 1000, "thousand"))
	require.NoError(t, r.Set(ctx, store, 1<<20, "million-ish"))
	require.EqualValues(t, 3, r.Count)

	var out string
	require.NoError(t, r.Get(ctx, store, 0, &out))
	require.Equal(t, "zero", out)
	require.NoError(t, r.Get(ctx, store, 1000, &out))
	require.Equal(t, "thousand", out)
	require.NoError(t, r.Get(ctx, store, 1<<20, &out))
	require.Equal(t, "million-ish", out)

	require.Error(t, r.Get(ctx, store, 7, &out))
}

func TestFlushAndReload(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewAMT()
	for i := uint64(0); i < 600; i++ {
		require.NoError(t, r.Set(ctx, store, i, i))
	}

	root, err := r.Flush(ctx, store)
	require.NoError(t, err)

	loaded, err := LoadAMT(ctx, store, root)
	require.NoError(t, err)
	require.EqualValues(t, 600, loaded.Count)

	var out uint64
	require.NoError(t, loaded.Get(ctx, store, 599, &out))
	require.EqualValues(t, 599, out)
}

func TestRemoveCollapsesHeight(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewAMT()
	require.NoError(t, r.Set(ctx, store, 5, "five"))
	baseHeight := r.Height

	require.NoError(t, r.Set(ctx, store, 1<<20, "far"))
	require.Greater(t, r.Height, baseHeight)

	require.NoError(t, r.Remove(ctx, store, 1<<20))
	require.EqualValues(t, 1, r.Count)
	require.Equal(t, baseHeight, r.Height)

	var out string
	require.NoError(t, r.Get(ctx, store, 5, &out))
	require.Equal(t, "five", out)
}

func TestAppendAssignsSequentialIndex(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewAMT()

	i0, err := r.Append(ctx, store, "a")
	require.NoError(t, err)
	require.EqualValues(t, 0, i0)

	i1, err := r.Append(ctx, store, "b")
	require.NoError(t, err)
	require.EqualValues(t, 1, i1)
}

func TestForEachVisitsInOrder(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewAMT()
	indices := []uint64{5, 2, 900, 3}
	for _, i := range indices {
		require.NoError(t, r.Set(ctx, store, i, i))
	}

	var seen []uint64
	require.NoError(t, r.ForEach(ctx, store, func(i uint64, d *cbg.Deferred) error {
		seen = append(seen, i)
		return nil
	}))
	require.Equal(t, []uint64{2, 3, 5, 900}, seen)
}
