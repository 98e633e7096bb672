package vm

import (
	"context"

	"github.com/ipfs/go-cid"

	"github.com/filecoin-project/venus-core/ipld"
	"github.com/filecoin-project/venus-core/vm/gas"
)

// ChargingStore wraps a block store so every Get/Put charges the
// pricelist's onIpldGet/onIpldPut against a tracker, the Go counterpart
// of the original's ChargingIpld / the teacher's GasChargeBlockStore.
type ChargingStore struct {
	inner     ipld.Store
	pricelist gas.Pricelist
	tracker   *gas.Tracker
}

var _ ipld.Store = (*ChargingStore)(nil)

// NewChargingStore wraps inner with gas accounting against tracker.
func NewChargingStore(inner ipld.Store, pricelist gas.Pricelist, tracker *gas.Tracker) *ChargingStore {
	return &ChargingStore{inner: inner, pricelist: pricelist, tracker: tracker}
}

// Has implements ipld.Store, uncharged: existence checks are not priced
// by the pricelist (it only defines onIpldGet/onIpldPut).
func (s *ChargingStore) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return s.inner.Has(ctx, c)
}

// Get implements ipld.Store, charging onIpldGet before reading.
func (s *ChargingStore) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	s.tracker.Charge(s.pricelist.OnIpldGet(), "ipld get %s", c)
	return s.inner.Get(ctx, c)
}

// Put implements ipld.Store, charging onIpldPut for the block's size
// before writing.
func (s *ChargingStore) Put(ctx context.Context, c cid.Cid, data []byte) error {
	s.tracker.Charge(s.pricelist.OnIpldPut(len(data)), "ipld put %s", c)
	return s.inner.Put(ctx, c, data)
}
