// Package ipld defines the content-addressed block store contract shared by
// every backing store in venus-core: the in-memory test store, the on-disk
// badger store, the CAR+index archive, and the buffered writer that wraps
// any of them.
package ipld

import (
	"context"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	blake2b "github.com/minio/blake2b-simd"
	"github.com/pkg/errors"
)

// CbCid is the 32-byte blake2b-256 digest used to key every dag-cbor block.
// It is the fixed-size row key of the CAR index (spec §4.B) and the map key
// of the buffered writer (spec §4.C).
type CbCid [32]byte

// cborBlakePrefix canonically encodes "dag-cbor + blake2b-256 + 32 bytes"
// when a CID is embedded inside CBOR as a tag-42 byte string (spec §3).
var cborBlakePrefix = [6]byte{0x01, 0x71, 0xA0, 0xE4, 0x02, 0x20}

// CborBlakePrefix returns a copy of the six-byte dag-cbor/blake2b-256/32
// prefix.
func CborBlakePrefix() [6]byte { return cborBlakePrefix }

// ErrNotFound is returned by Store.Get when the key is absent. It is the
// spec's "NotFound" error kind (§7) for the block-store boundary.
var ErrNotFound = errors.New("ipld: block not found")

// Block is an immutable (CID, bytes) pair. CID equality implies bytes
// equality by construction: CID = blake2b256(bytes) under the dag-cbor
// prefix above, or under the raw codec for raw bytes.
type Block struct {
	Cid   cid.Cid
	Bytes []byte
}

// NewCbBlock hashes data with blake2b-256 and wraps it as a dag-cbor block.
func NewCbBlock(data []byte) Block {
	return Block{Cid: NewCbCid(data), Bytes: data}
}

// NewCbCid returns the dag-cbor/blake2b-256 CID for data.
func NewCbCid(data []byte) cid.Cid {
	sum := blake2b.Sum256(data)
	digest, err := mh.Encode(sum[:], mh.BLAKE2B_MIN+31)
	if err != nil {
		// BLAKE2B_MIN+31 selects the 32-byte blake2b-256 code; encoding a
		// fixed-length digest under a registered code cannot fail.
		panic(err)
	}
	return cid.NewCidV1(cid.DagCBOR, digest)
}

// NewRawCid returns the raw/blake2b-256 CID for data, used for opaque
// payloads that are not dag-cbor objects.
func NewRawCid(data []byte) cid.Cid {
	sum := blake2b.Sum256(data)
	digest, err := mh.Encode(sum[:], mh.BLAKE2B_MIN+31)
	if err != nil {
		panic(err)
	}
	return cid.NewCidV1(cid.Raw, digest)
}

// AsCbCid extracts the 32-byte blake2b digest from a dag-cbor CID produced
// by NewCbCid. It returns false for any other codec/hash combination.
func AsCbCid(c cid.Cid) (CbCid, bool) {
	if c.Prefix().Codec != cid.DagCBOR {
		return CbCid{}, false
	}
	decoded, err := mh.Decode(c.Hash())
	if err != nil || decoded.Code != mh.BLAKE2B_MIN+31 || len(decoded.Digest) != 32 {
		return CbCid{}, false
	}
	var out CbCid
	copy(out[:], decoded.Digest)
	return out, true
}

// Store is the capability every block-store variant (§4.A/§9 "Polymorphism
// over stores") implements: an opaque content-addressed key-value map from
// CID to bytes. Put is idempotent.
type Store interface {
	Has(ctx context.Context, c cid.Cid) (bool, error)
	Get(ctx context.Context, c cid.Cid) ([]byte, error)
	Put(ctx context.Context, c cid.Cid, data []byte) error
}

// ToBlocksBlock adapts a Block to the go-block-format.Block interface so it
// can flow through go-car and go-ipfs-blockstore helpers.
func (b Block) ToBlocksBlock() blocks.Block {
	blk, err := blocks.NewBlockWithCid(b.Bytes, b.Cid)
	if err != nil {
		// Cid was computed from Bytes by construction; NewBlockWithCid only
		// rejects a mismatch, which cannot happen here.
		panic(err)
	}
	return blk
}
