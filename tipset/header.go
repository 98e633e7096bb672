// Package tipset resolves tipset keys (sets of block header cids sharing
// a height and parent set) to materialized, validated TipSet objects,
// backed by an LRU cache over the block store (spec.md §4.G).
package tipset

import (
	"context"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/filecoin-project/venus-core/ipld"
)

// Header is the subset of a block header the engine needs: enough to
// validate tipset agreement and to find a message's parent state.
type Header struct {
	Height          abi.ChainEpoch
	Parents         []cid.Cid
	ParentStateRoot cid.Cid
	ParentWeight    big.Int
	ParentBaseFee   big.Int

	cid cid.Cid
}

// Cid is the header's own CID, set when it's read from the store.
func (h *Header) Cid() cid.Cid { return h.cid }

// LoadHeader reads and decodes a single block header by CID.
func LoadHeader(ctx context.Context, store ipld.Store, c cid.Cid) (*Header, error) {
	data, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var h Header
	if err := cbor.DecodeInto(data, &h); err != nil {
		return nil, err
	}
	h.cid = c
	return &h, nil
}
