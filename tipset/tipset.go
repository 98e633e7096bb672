package tipset

import (
	"sort"

	"github.com/filecoin-project/go-state-types/abi"
	"github.com/filecoin-project/go-state-types/big"
	"github.com/ipfs/go-cid"
	"github.com/pkg/errors"
)

// TipSet is a validated set of block headers sharing one height and
// parent set, sorted by CID (the canonical Filecoin tipset ordering).
type TipSet struct {
	key     TipSetKey
	headers []*Header
}

// NewTipSet validates that headers agree on height, parents, parent
// state root, parent weight and parent base fee, then builds the TipSet
// sorted by header CID.
func NewTipSet(headers []*Header) (*TipSet, error) {
	if len(headers) == 0 {
		return nil, errors.New("tipset: no headers")
	}
	first := headers[0]
	cids := make([]cid.Cid, len(headers))
	for i, h := range headers {
		if h.Height != first.Height {
			return nil, errors.Errorf("tipset: height mismatch at %s: %d != %d", h.Cid(), h.Height, first.Height)
		}
		if !NewTipSetKey(h.Parents...).Equals(NewTipSetKey(first.Parents...)) {
			return nil, errors.Errorf("tipset: parent mismatch at %s", h.Cid())
		}
		if h.ParentStateRoot != first.ParentStateRoot {
			return nil, errors.Errorf("tipset: parent state root mismatch at %s", h.Cid())
		}
		if !h.ParentWeight.Equals(first.ParentWeight) {
			return nil, errors.Errorf("tipset: parent weight mismatch at %s", h.Cid())
		}
		if !h.ParentBaseFee.Equals(first.ParentBaseFee) {
			return nil, errors.Errorf("tipset: parent base fee mismatch at %s", h.Cid())
		}
		cids[i] = h.Cid()
	}

	sorted := append([]*Header(nil), headers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cid().String() < sorted[j].Cid().String() })

	return &TipSet{key: NewTipSetKey(cids...), headers: sorted}, nil
}

// Key returns the tipset's normalized key.
func (ts *TipSet) Key() TipSetKey { return ts.key }

// Height is the tipset's height, shared by every member header.
func (ts *TipSet) Height() abi.ChainEpoch { return ts.headers[0].Height }

// ParentStateRoot is the state root every member header's application
// started from.
func (ts *TipSet) ParentStateRoot() cid.Cid { return ts.headers[0].ParentStateRoot }

// ParentWeight is the chain weight accumulated up to (not including)
// this tipset.
func (ts *TipSet) ParentWeight() big.Int { return ts.headers[0].ParentWeight }

// ParentBaseFee is the base fee message application against this
// tipset's parent state should use.
func (ts *TipSet) ParentBaseFee() big.Int { return ts.headers[0].ParentBaseFee }

// Parents is the key of this tipset's own parent set.
func (ts *TipSet) Parents() TipSetKey { return NewTipSetKey(ts.headers[0].Parents...) }

// Headers returns the tipset's member headers in canonical sorted order.
func (ts *TipSet) Headers() []*Header { return ts.headers }
