// Package hamt implements a byte-keyed hash array mapped trie, the map
// data structure behind the actor state tree (spec §4.E, §4.F): each node
// holds a compact, bitmap-indexed array of pointers, where a pointer is
// either an inline bucket of up to three key/value entries or a link to a
// child node one level deeper. A full bucket splits into a child node on
// insert; a child that shrinks back to a single small bucket folds back
// into its parent on delete, keeping the trie's shape symmetric under
// insert/delete pairs.
package hamt

import (
	"bytes"
	"context"
	"fmt"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	blake2b "github.com/minio/blake2b-simd"
	cbg "github.com/whyrusleeping/cbor-gen"

	"github.com/filecoin-project/venus-core/ipld"
)

// DefaultBitWidth consumes 5 bits of the key's hash per level, a fanout of
// 32.
const DefaultBitWidth = 5

// bucketSize bounds how many key/value pairs an inline bucket holds before
// it splits into a child node.
const bucketSize = 3

// KV is one inline bucket entry.
type KV struct {
	Key   []byte
	Value *cbg.Deferred
}

// Pointer is one slot of a Node's compact pointer array: either an inline
// bucket (IsLink false) or a link to a child node (IsLink true).
type Pointer struct {
	IsLink bool
	Link   cid.Cid
	KVs    []*KV

	cache *Node
}

// Node is one trie level: a bitmap of occupied digit slots and the compact
// array of pointers in bitmap order.
type Node struct {
	Bitfield []byte
	Pointers []*Pointer
}

// Root is the (de)serializable handle to a HAMT.
type Root struct {
	Bits uint64
	Node Node
}

// ErrNotFound is returned when a key has never been Set.
type ErrNotFound struct{ Key []byte }

func (e ErrNotFound) Error() string { return fmt.Sprintf("hamt: key %x not found", e.Key) }

// NewHAMT returns an empty HAMT with the default bit width.
func NewHAMT() *Root {
	return &Root{Bits: DefaultBitWidth}
}

// LoadHAMT loads an existing HAMT root from store.
func LoadHAMT(ctx context.Context, store ipld.Store, c cid.Cid) (*Root, error) {
	data, err := store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	var r Root
	if err := cbor.DecodeInto(data, &r); err != nil {
		return nil, fmt.Errorf("decoding hamt root: %w", err)
	}
	if r.Bits == 0 {
		r.Bits = DefaultBitWidth
	}
	return &r, nil
}

func hashKey(key []byte) [32]byte {
	return blake2b.Sum256(key)
}

// bitsAt extracts bitWidth bits of hash starting at bit offset
// depth*bitWidth, most-significant-bit first.
func bitsAt(hash []byte, bitWidth uint64, depth int) uint64 {
	bitOffset := uint64(depth) * bitWidth
	var v uint64
	for i := uint64(0); i < bitWidth; i++ {
		byteIdx := (bitOffset + i) / 8
		if int(byteIdx) >= len(hash) {
			return v << (bitWidth - i)
		}
		bitIdx := 7 - (bitOffset+i)%8
		bit := (hash[byteIdx] >> bitIdx) & 1
		v = (v << 1) | uint64(bit)
	}
	return v
}

func marshalValue(val interface{}) ([]byte, error) {
	if m, ok := val.(cbg.CBORMarshaler); ok {
		buf := new(bytes.Buffer)
		if err := m.MarshalCBOR(buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return cbor.DumpObject(val)
}

func decodeValue(raw []byte, out interface{}) error {
	if um, ok := out.(cbg.CBORUnmarshaler); ok {
		return um.UnmarshalCBOR(bytes.NewReader(raw))
	}
	return cbor.DecodeInto(raw, out)
}

// Set stores val under key, returning whether a new entry was created
// (false means an existing key's value was overwritten).
func (r *Root) Set(ctx context.Context, store ipld.Store, key []byte, val interface{}) (bool, error) {
	raw, err := marshalValue(val)
	if err != nil {
		return false, err
	}
	hash := hashKey(key)
	return r.Node.set(ctx, store, r.Bits, 0, hash[:], key, &cbg.Deferred{Raw: raw})
}

// Get decodes the value stored under key into out.
func (r *Root) Get(ctx context.Context, store ipld.Store, key []byte, out interface{}) error {
	hash := hashKey(key)
	return r.Node.get(ctx, store, r.Bits, 0, hash[:], key, out)
}

// Remove deletes key, folding a child node back into an inline bucket when
// it shrinks to one small bucket.
func (r *Root) Remove(ctx context.Context, store ipld.Store, key []byte) error {
	hash := hashKey(key)
	return r.Node.delete(ctx, store, r.Bits, 0, hash[:], key)
}

// ForEach visits every stored key/value pair; order is bitmap order within
// a node, depth-first, and is not sorted by key.
func (r *Root) ForEach(ctx context.Context, store ipld.Store, cb func(key []byte, val *cbg.Deferred) error) error {
	return r.Node.forEach(ctx, store, cb)
}

// Flush persists dirty child nodes and the root object, returning its CID.
func (r *Root) Flush(ctx context.Context, store ipld.Store) (cid.Cid, error) {
	if err := r.Node.flush(ctx, store); err != nil {
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

func (n *Node) loadChild(ctx context.Context, store ipld.Store, p *Pointer) (*Node, error) {
	if p.cache != nil {
		return p.cache, nil
	}
	data, err := store.Get(ctx, p.Link)
	if err != nil {
		return nil, err
	}
	var cn Node
	if err := cbor.DecodeInto(data, &cn); err != nil {
		return nil, fmt.Errorf("decoding hamt node: %w", err)
	}
	p.cache = &cn
	return &cn, nil
}

func (n *Node) set(ctx context.Context, store ipld.Store, bitWidth uint64, depth int, hash []byte, key []byte, val *cbg.Deferred) (bool, error) {
	idx := bitsAt(hash, bitWidth, depth)
	set, pos := getBit(n.Bitfield, idx)
	if !set {
		n.Bitfield = setBit(n.Bitfield, idx)
		p := &Pointer{KVs: []*KV{{Key: append([]byte(nil), key...), Value: val}}}
		n.Pointers = insertPointer(n.Pointers, pos, p)
		return true, nil
	}

	p := n.Pointers[pos]
	if p.IsLink {
		child, err := n.loadChild(ctx, store, p)
		if err != nil {
			return false, err
		}
		return child.set(ctx, store, bitWidth, depth+1, hash, key, val)
	}

	for _, kv := range p.KVs {
		if bytes.Equal(kv.Key, key) {
			kv.Value = val
			return false, nil
		}
	}
	if len(p.KVs) < bucketSize {
		p.KVs = append(p.KVs, &KV{Key: append([]byte(nil), key...), Value: val})
		return true, nil
	}

	// bucket is full: split into a child node one level deeper.
	entries := append(append([]*KV{}, p.KVs...), &KV{Key: append([]byte(nil), key...), Value: val})
	child := &Node{}
	for _, kv := range entries {
		kvHash := hashKey(kv.Key)
		if _, err := child.set(ctx, store, bitWidth, depth+1, kvHash[:], kv.Key, kv.Value); err != nil {
			return false, err
		}
	}
	p.KVs = nil
	p.IsLink = true
	p.cache = child
	return true, nil
}

func (n *Node) get(ctx context.Context, store ipld.Store, bitWidth uint64, depth int, hash []byte, key []byte, out interface{}) error {
	idx := bitsAt(hash, bitWidth, depth)
	set, pos := getBit(n.Bitfield, idx)
	if !set {
		return ErrNotFound{Key: key}
	}
	p := n.Pointers[pos]
	if p.IsLink {
		child, err := n.loadChild(ctx, store, p)
		if err != nil {
			return err
		}
		return child.get(ctx, store, bitWidth, depth+1, hash, key, out)
	}
	for _, kv := range p.KVs {
		if bytes.Equal(kv.Key, key) {
			return decodeValue(kv.Value.Raw, out)
		}
	}
	return ErrNotFound{Key: key}
}

func (n *Node) delete(ctx context.Context, store ipld.Store, bitWidth uint64, depth int, hash []byte, key []byte) error {
	idx := bitsAt(hash, bitWidth, depth)
	set, pos := getBit(n.Bitfield, idx)
	if !set {
		return ErrNotFound{Key: key}
	}
	p := n.Pointers[pos]
	if p.IsLink {
		child, err := n.loadChild(ctx, store, p)
		if err != nil {
			return err
		}
		if err := child.delete(ctx, store, bitWidth, depth+1, hash, key); err != nil {
			return err
		}
		if kvs, ok := child.collapsible(); ok {
			p.IsLink = false
			p.KVs = kvs
			p.cache = nil
			p.Link = cid.Undef
		}
		return nil
	}
	for i, kv := range p.KVs {
		if bytes.Equal(kv.Key, key) {
			p.KVs = append(p.KVs[:i], p.KVs[i+1:]...)
			if len(p.KVs) == 0 {
				clearBit(n.Bitfield, idx)
				n.Pointers = removePointer(n.Pointers, pos)
			}
			return nil
		}
	}
	return ErrNotFound{Key: key}
}

// collapsible reports whether n has shrunk to exactly one occupied slot
// holding an inline bucket no larger than bucketSize, in which case its
// parent can replace its link pointer with that bucket directly.
func (n *Node) collapsible() ([]*KV, bool) {
	if popcount(n.Bitfield) != 1 {
		return nil, false
	}
	p := n.Pointers[0]
	if p.IsLink || len(p.KVs) > bucketSize {
		return nil, false
	}
	return p.KVs, true
}

func (n *Node) forEach(ctx context.Context, store ipld.Store, cb func(key []byte, val *cbg.Deferred) error) error {
	for _, p := range n.Pointers {
		if p.IsLink {
			child, err := n.loadChild(ctx, store, p)
			if err != nil {
				return err
			}
			if err := child.forEach(ctx, store, cb); err != nil {
				return err
			}
			continue
		}
		for _, kv := range p.KVs {
			if err := cb(kv.Key, kv.Value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) flush(ctx context.Context, store ipld.Store) error {
	for _, p := range n.Pointers {
		if p.IsLink && p.cache != nil {
			if err := p.cache.flush(ctx, store); err != nil {
				return err
			}
			data, err := cbor.DumpObject(p.cache)
			if err != nil {
				return err
			}
			c := ipld.NewCbCid(data)
			if err := store.Put(ctx, c, data); err != nil {
				return err
			}
			p.Link = c
		}
	}
	return nil
}

func insertPointer(ps []*Pointer, pos int, p *Pointer) []*Pointer {
	ps = append(ps, nil)
	copy(ps[pos+1:], ps[pos:])
	ps[pos] = p
	return ps
}

func removePointer(ps []*Pointer, pos int) []*Pointer {
	return append(ps[:pos], ps[pos+1:]...)
}
