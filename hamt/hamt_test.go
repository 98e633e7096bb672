package hamt

import (
	"context"
	"fmt"
	"testing"

	cbg "github.com/whyrusleeping/cbor-gen"
	"github.com/stretchr/testify/require"

	"github.com/filecoin-project/venus-core/ipld"
)

func TestSetGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewHAMT()

	added, err := r.Set(ctx, store, []byte("alpha"), "one")
	require.NoError(t, err)
	require.True(t, added)

	added, err = r.Set(ctx, store, []byte("alpha"), "uno")
	require.NoError(t, err)
	require.False(t, added)

	var out string
	require.NoError(t, r.Get(ctx, store, []byte("alpha"), &out))
	require.Equal(t, "uno", out)

	require.Error(t, r.Get(ctx, store, []byte("missing"), &out))
}

func TestBucketSplitsOnOverflow(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewHAMT()

	keys := make([][]byte, 0, 200)
	for i := 0; i < 200; i++ {
		k := []byte(fmt.Sprintf("key-%d", i))
		keys = append(keys, k)
		_, err := r.Set(ctx, store, k, i)
		require.NoError(t, err)
	}

	for i, k := range keys {
		var out int
		require.NoError(t, r.Get(ctx, store, k, &out))
		require.Equal(t, i, out)
	}
}

func TestFlushAndReload(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewHAMT()
	for i := 0; i < 100; i++ {
		_, err := r.Set(ctx, store, []byte(fmt.Sprintf("k%d", i)), i)
		require.NoError(t, err)
	}

	root, err := r.Flush(ctx, store)
	require.NoError(t, err)

	loaded, err := LoadHAMT(ctx, store, root)
	require.NoError(t, err)

	var out int
	require.NoError(t, loaded.Get(ctx, store, []byte("k42"), &out))
	require.Equal(t, 42, out)
}

func TestRemoveAndCollapse(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewHAMT()

	keys := make([][]byte, 0, 50)
	for i := 0; i < 50; i++ {
		k := []byte(fmt.Sprintf("item-%d", i))
		keys = append(keys, k)
		_, err := r.Set(ctx, store, k, i)
		require.NoError(t, err)
	}

	for _, k := range keys[1:] {
		require.NoError(t, r.Remove(ctx, store, k))
	}

	var out int
	require.NoError(t, r.Get(ctx, store, keys[0], &out))
	require.Equal(t, 0, out)

	for _, k := range keys[1:] {
		require.Error(t, r.Get(ctx, store, k, &out))
	}
}

func TestForEachVisitsAll(t *testing.T) {
	ctx := context.Background()
	store := ipld.NewMemStore()
	r := NewHAMT()

	want := map[string]int{}
	for i := 0; i < 40; i++ {
		k := fmt.Sprintf("fe-%d", i)
		want[k] = i
		_, err := r.Set(ctx, store, []byte(k), i)
		require.NoError(t, err)
	}

	got := map[string]int{}
	require.NoError(t, r.ForEach(ctx, store, func(key []byte, val *cbg.Deferred) error {
		var v int
		if err := decodeValue(val.Raw, &v); err != nil {
			return err
		}
		got[string(key)] = v
		return nil
	}))
	require.Equal(t, want, got)
}
