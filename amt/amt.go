// Package amt implements the u64-indexed sparse array used for ordered
// collections in the chain state (message lists, receipt lists, and
// anywhere else a dense, content-addressed sequence is needed). It is a
// trie keyed by the index's big-endian digits in a configurable base
// (spec §4.D): each node holds up to width=1<<bits children or values,
// selected by the next digit of the index, with a bitmap recording which
// slots are occupied so empty slots cost nothing to encode.
package amt

import (
	"bytes"
	"context"
	"fmt"
	"math/bits"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/venus-core/ipld"
)

var log = logging.Logger("amt")

func init() {
	cbor.RegisterCborType(Root{})
	cbor.RegisterCborType(Node{})
}

// DefaultBitWidth is the branching factor used when none is specified: 8
// bits of the index per level, a fanout of 256.
const DefaultBitWidth = 8

// maxIndexBits bounds how large an index may be: every index fits in 63
// bits, leaving the top bit of a uint64 unused.
const maxIndexBits = 63

// MaxIndex is the largest index this trie can address for the default bit
// width.
const MaxIndex = uint64(1)<<maxIndexBits - 1

// Root is the (de)serializable handle to an AMT: its branching factor,
// current height, element count, and the top node.
type Root struct {
	Bits   uint64
	Height uint64
	Count  uint64
	Node   Node
}

// Node is one trie node: a bitmap of occupied slots, the CIDs of child
// nodes (for interior nodes) or the encoded values (for leaves), in
// bitmap order.
type Node struct {
	Bmap   []byte
	Links  []cid.Cid
	Values []*cbg.Deferred

	expLinks []cid.Cid
	expVals  []*cbg.Deferred
	cache    []*Node
}

// ErrNotFound is returned when an index has never been Set.
type ErrNotFound struct{ Index uint64 }

func (e ErrNotFound) Error() string { return fmt.Sprintf("amt: index %d not found", e.Index) }

// NewAMT returns an empty AMT with the default bit width.
func NewAMT() *Root {
	return &Root{Bits: DefaultBitWidth}
}

// LoadAMT loads an existing AMT root from store.
func LoadAMT(ctx context.Context, store ipld.Store, c cid.Cid) (*Root, error) {
	data, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var r Root
	if err := cbor.DecodeInto(data, &r); err != nil {
		return nil, fmt.Errorf("decoding amt root: %w", err)
	}
	if r.Bits == 0 {
		r.Bits = DefaultBitWidth
	}
	if height := int(r.Height); uint64(height)*r.Bits >= 64 {
		return nil, fmt.Errorf("amt height out of bounds: %d", r.Height)
	}
	return &r, nil
}

func (r *Root) width() uint64          { return 1 << r.Bits }
func (r *Root) nodesForHeight(h int) uint64 {
	return nodesForHeight(r.Bits, h)
}

func nodesForHeight(bitWidth uint64, height int) uint64 {
	shift := bitWidth * uint64(height)
	if shift >= 64 {
		// 2^shift exceeds every uint64 index; saturate so range checks
		// against it never trigger further growth.
		return ^uint64(0)
	}
	return 1 << shift
}

// Set stores val at index i, growing the tree's height first if i does not
// yet fit. Count grows only when i was not already occupied.
func (r *Root) Set(ctx context.Context, store ipld.Store, i uint64, val interface{}) error {
	if i > MaxIndex {
		return fmt.Errorf("amt: index %d out of range", i)
	}

	var b []byte
	if m, ok := val.(cbg.CBORMarshaler); ok {
		buf := new(bytes.Buffer)
		if err := m.MarshalCBOR(buf); err != nil {
			return err
		}
		b = buf.Bytes()
	} else {
		enc, err := cbor.DumpObject(val)
		if err != nil {
			return err
		}
		b = enc
	}

	for i >= r.nodesForHeight(int(r.Height)+1) {
		if !r.Node.empty() {
			if err := r.Node.flush(ctx, store, r.Bits, int(r.Height)); err != nil {
				return err
			}
			c, err := putNode(ctx, store, &r.Node)
			if err != nil {
				return err
			}
			r.Node = Node{Bmap: setBit(nil, 0), Links: []cid.Cid{c}}
		}
		r.Height++
	}

	added, err := r.Node.set(ctx, store, r.Bits, int(r.Height), i, &cbg.Deferred{Raw: b})
	if err != nil {
		return err
	}
	if added {
		r.Count++
	}
	return nil
}

// Append stores val at the next unused sequential index (Count) and
// returns that index.
func (r *Root) Append(ctx context.Context, store ipld.Store, val interface{}) (uint64, error) {
	i := r.Count
	if err := r.Set(ctx, store, i, val); err != nil {
		return 0, err
	}
	return i, nil
}

// BatchSet stores each value at its slice position.
func (r *Root) BatchSet(ctx context.Context, store ipld.Store, vals []cbg.CBORMarshaler) error {
	for i, v := range vals {
		if err := r.Set(ctx, store, uint64(i), v); err != nil {
			return err
		}
	}
	return nil
}

// Get decodes the value at index i into out.
func (r *Root) Get(ctx context.Context, store ipld.Store, i uint64, out interface{}) error {
	if i > MaxIndex {
		return fmt.Errorf("amt: index %d out of range", i)
	}
	if i >= r.nodesForHeight(int(r.Height)+1) {
		return ErrNotFound{Index: i}
	}
	return r.Node.get(ctx, store, r.Bits, int(r.Height), i, out)
}

// Remove deletes the value at index i, collapsing the tree's height while
// the root's only occupied child sits at slot 0 and height remains above
// zero.
func (r *Root) Remove(ctx context.Context, store ipld.Store, i uint64) error {
	if i > MaxIndex {
		return fmt.Errorf("amt: index %d out of range", i)
	}
	if i >= r.nodesForHeight(int(r.Height)+1) {
		return ErrNotFound{Index: i}
	}
	if err := r.Node.delete(ctx, store, r.Bits, int(r.Height), i); err != nil {
		return err
	}
	r.Count--

	for r.Height > 0 {
		set, _ := getBit(r.Node.Bmap, 0)
		if !set || popcount(r.Node.Bmap) != 1 {
			break
		}
		sub, err := r.Node.loadChild(ctx, store, r.Bits, 0, false)
		if err != nil {
			return err
		}
		r.Node = *sub
		r.Height--
	}
	return nil
}

// ForEach visits every occupied index in ascending order.
func (r *Root) ForEach(ctx context.Context, store ipld.Store, cb func(uint64, *cbg.Deferred) error) error {
	return r.Node.forEachAt(ctx, store, r.Bits, int(r.Height), 0, 0, cb)
}

// Flush persists the tree (writing any dirty child nodes) and returns the
// CID of the root object.
func (r *Root) Flush(ctx context.Context, store ipld.Store) (cid.Cid, error) {
	if err := r.Node.flush(ctx, store, r.Bits, int(r.Height)); err != nil {
		return cid.Undef, err
	}
	data, err := cbor.DumpObject(r)
	if err != nil {
		return cid.Undef, err
	}
	c := ipld.NewCbCid(data)
	if err := store.Put(ctx, c, data); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

func putNode(ctx context.Context, store ipld.Store, n *Node) (cid.Cid, error) {
	data, err := cbor.DumpObject(n)
	if err != nil {
		return cid.Undef, err
	}
	c := ipld.NewCbCid(data)
	if err := store.Put(ctx, c, data); err != nil {
		return cid.Undef, err
	}
	return c, nil
}

func (n *Node) empty() bool { return popcount(n.Bmap) == 0 }

func (n *Node) expandValues(width uint64) {
	if len(n.expVals) != 0 {
		return
	}
	n.expVals = make([]*cbg.Deferred, width)
	for x := uint64(0); x < width; x++ {
		if set, ix := getBit(n.Bmap, x); set {
			n.expVals[x] = n.Values[ix]
		}
	}
}

func (n *Node) expandLinks(width uint64) {
	n.cache = make([]*Node, width)
	n.expLinks = make([]cid.Cid, width)
	for x := uint64(0); x < width; x++ {
		if set, ix := getBit(n.Bmap, x); set {
			n.expLinks[x] = n.Links[ix]
		}
	}
}

func (n *Node) set(ctx context.Context, store ipld.Store, bitWidth uint64, height int, i uint64, val *cbg.Deferred) (bool, error) {
	width := uint64(1) << bitWidth
	if height == 0 {
		n.expandValues(width)
		already, _ := getBit(n.Bmap, i)
		n.expVals[i] = val
		n.Bmap = setBit(n.Bmap, i)
		return !already, nil
	}
	nfh := nodesForHeight(bitWidth, height)
	subn, err := n.loadChild(ctx, store, bitWidth, i/nfh, true)
	if err != nil {
		return false, err
	}
	return subn.set(ctx, store, bitWidth, height-1, i%nfh, val)
}

func (n *Node) get(ctx context.Context, store ipld.Store, bitWidth uint64, height int, i uint64, out interface{}) error {
	width := uint64(1) << bitWidth
	nfh := nodesForHeight(bitWidth, height)
	subi := i / nfh
	set, _ := getBit(n.Bmap, subi)
	if !set {
		return ErrNotFound{Index: i}
	}
	if height == 0 {
		n.expandValues(width)
		d := n.expVals[i]
		if um, ok := out.(cbg.CBORUnmarshaler); ok {
			return um.UnmarshalCBOR(bytes.NewReader(d.Raw))
		}
		return cbor.DecodeInto(d.Raw, out)
	}
	subn, err := n.loadChild(ctx, store, bitWidth, subi, false)
	if err != nil {
		return err
	}
	return subn.get(ctx, store, bitWidth, height-1, i%nfh, out)
}

func (n *Node) delete(ctx context.Context, store ipld.Store, bitWidth uint64, height int, i uint64) error {
	width := uint64(1) << bitWidth
	nfh := nodesForHeight(bitWidth, height)
	subi := i / nfh
	set, _ := getBit(n.Bmap, subi)
	if !set {
		return ErrNotFound{Index: i}
	}
	if height == 0 {
		n.expandValues(width)
		n.expVals[i] = nil
		clearBit(n.Bmap, i)
		return nil
	}
	subn, err := n.loadChild(ctx, store, bitWidth, subi, false)
	if err != nil {
		return err
	}
	if err := subn.delete(ctx, store, bitWidth, height-1, i%nfh); err != nil {
		return err
	}
	if subn.empty() {
		clearBit(n.Bmap, subi)
		n.cache[subi] = nil
		n.expLinks[subi] = cid.Undef
	}
	return nil
}

func (n *Node) loadChild(ctx context.Context, store ipld.Store, bitWidth uint64, i uint64, create bool) (*Node, error) {
	width := uint64(1) << bitWidth
	if n.cache == nil {
		n.expandLinks(width)
	} else if c := n.cache[i]; c != nil {
		return c, nil
	}

	set, _ := getBit(n.Bmap, i)
	var subn *Node
	if set {
		data, err := store.Get(ctx, n.expLinks[i])
		if err != nil {
			return nil, err
		}
		var sn Node
		if err := cbor.DecodeInto(data, &sn); err != nil {
			return nil, fmt.Errorf("decoding amt node: %w", err)
		}
		subn = &sn
	} else {
		if !create {
			return nil, fmt.Errorf("amt: no node at subindex %d", i)
		}
		subn = &Node{}
		n.Bmap = setBit(n.Bmap, i)
	}
	n.cache[i] = subn
	return subn, nil
}

func (n *Node) forEachAt(ctx context.Context, store ipld.Store, bitWidth uint64, height int, start, offset uint64, cb func(uint64, *cbg.Deferred) error) error {
	width := uint64(1) << bitWidth
	if height == 0 {
		n.expandValues(width)
		for i, v := range n.expVals {
			if v == nil {
				continue
			}
			ix := offset + uint64(i)
			if ix < start {
				continue
			}
			if err := cb(ix, v); err != nil {
				return err
			}
		}
		return nil
	}
	if n.cache == nil {
		n.expandLinks(width)
	}
	subCount := nodesForHeight(bitWidth, height)
	for i, v := range n.expLinks {
		var sub *Node
		if n.cache[i] != nil {
			sub = n.cache[i]
		} else if v != cid.Undef {
			data, err := store.Get(ctx, v)
			if err != nil {
				return err
			}
			var sn Node
			if err := cbor.DecodeInto(data, &sn); err != nil {
				return fmt.Errorf("decoding amt node: %w", err)
			}
			sub = &sn
		} else {
			continue
		}
		offs := offset + uint64(i)*subCount
		if start >= offs+subCount {
			continue
		}
		if err := sub.forEachAt(ctx, store, bitWidth, height-1, start, offs, cb); err != nil {
			return err
		}
	}
	return nil
}

// flush recursively encodes dirty child nodes into the Links/Values
// slices that will be CBOR-serialized, bottom-up.
func (n *Node) flush(ctx context.Context, store ipld.Store, bitWidth uint64, depth int) error {
	width := uint64(1) << bitWidth
	if depth == 0 {
		if len(n.expVals) == 0 {
			return nil
		}
		n.Values = nil
		n.Bmap = nil
		for i := uint64(0); i < width; i++ {
			if v := n.expVals[i]; v != nil {
				n.Values = append(n.Values, v)
				n.Bmap = setBit(n.Bmap, i)
			}
		}
		return nil
	}
	if len(n.expLinks) == 0 {
		return nil
	}
	n.Bmap = nil
	n.Links = nil
	for i := uint64(0); i < width; i++ {
		if subn := n.cache[i]; subn != nil {
			if err := subn.flush(ctx, store, bitWidth, depth-1); err != nil {
				return err
			}
			c, err := putNode(ctx, store, subn)
			if err != nil {
				return err
			}
			n.expLinks[i] = c
		}
		if n.expLinks[i] != cid.Undef {
			n.Links = append(n.Links, n.expLinks[i])
			n.Bmap = setBit(n.Bmap, i)
		}
	}
	return nil
}

func getBit(bmap []byte, i uint64) (bool, int) {
	byteIdx := i / 8
	if int(byteIdx) >= len(bmap) {
		return false, 0
	}
	if bmap[byteIdx]&(1<<(i%8)) == 0 {
		return false, 0
	}
	count := 0
	for b := uint64(0); b < byteIdx; b++ {
		count += bits.OnesCount8(bmap[b])
	}
	mask := byte((1 << (i % 8)) - 1)
	count += bits.OnesCount8(bmap[byteIdx] & mask)
	return true, count
}

func setBit(bmap []byte, i uint64) []byte {
	byteIdx := i / 8
	for uint64(len(bmap)) <= byteIdx {
		bmap = append(bmap, 0)
	}
	bmap[byteIdx] |= 1 << (i % 8)
	return bmap
}

func clearBit(bmap []byte, i uint64) {
	byteIdx := i / 8
	if int(byteIdx) >= len(bmap) {
		return
	}
	bmap[byteIdx] &^= 1 << (i % 8)
}

func popcount(bmap []byte) int {
	n := 0
	for _, b := range bmap {
		n += bits.OnesCount8(b)
	}
	return n
}
