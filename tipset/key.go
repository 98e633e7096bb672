package tipset

import (
	"sort"
	"strings"

	"github.com/ipfs/go-cid"
)

// TipSetKey is the set of block header CIDs sharing one height and parent
// set, normalized to a sorted, deduplicated slice so two keys built from
// the same headers in any order compare equal.
type TipSetKey struct {
	cids []cid.Cid
}

// NewTipSetKey builds a key from a set of header cids.
func NewTipSetKey(cids ...cid.Cid) TipSetKey {
	sorted := sortedUniqueCids(cids)
	return TipSetKey{cids: sorted}
}

func sortedUniqueCids(cids []cid.Cid) []cid.Cid {
	seen := make(map[cid.Cid]struct{}, len(cids))
	out := make([]cid.Cid, 0, len(cids))
	for _, c := range cids {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Cids returns the key's member cids in canonical sorted order.
func (k TipSetKey) Cids() []cid.Cid { return k.cids }

// Len returns the number of headers in the set.
func (k TipSetKey) Len() int { return len(k.cids) }

// String is the key's canonical, order-independent textual form, used
// both for display and as the Loader cache's lookup key.
func (k TipSetKey) String() string {
	parts := make([]string, len(k.cids))
	for i, c := range k.cids {
		parts[i] = c.String()
	}
	return strings.Join(parts, ",")
}

// Equals reports whether two keys contain the same cids.
func (k TipSetKey) Equals(other TipSetKey) bool {
	return k.String() == other.String()
}
