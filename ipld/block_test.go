package ipld

import (
	"context"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCbCidDeterministic(t *testing.T) {
	data := []byte("hello world")
	c1 := NewCbCid(data)
	c2 := NewCbCid(data)
	assert.Equal(t, c1, c2)
	assert.EqualValues(t, cid.DagCBOR, c1.Prefix().Codec)
}

func TestAsCbCidRoundTrip(t *testing.T) {
	data := []byte("round trip me")
	c := NewCbCid(data)
	cb, ok := AsCbCid(c)
	require.True(t, ok)

	raw := NewRawCid(data)
	_, ok = AsCbCid(raw)
	assert.False(t, ok)
	assert.NotEqual(t, CbCid{}, cb)
}

func TestMemStorePutGetHas(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	data := []byte("block contents")
	c := NewCbCid(data)

	has, err := s.Has(ctx, c)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, s.Put(ctx, c, data))
	require.NoError(t, s.Put(ctx, c, data)) // idempotent

	has, err = s.Has(ctx, c)
	require.NoError(t, err)
	assert.True(t, has)

	got, err := s.Get(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, 1, s.Len())
}

func TestMemStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	_, err := s.Get(ctx, NewCbCid([]byte("nope")))
	assert.ErrorIs(t, err, ErrNotFound)
}
