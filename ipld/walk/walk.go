// Package walk traverses dag-cbor DAGs one block at a time, following the
// tag-42 CID links go-ipld-cbor extracts from a decoded node. It underlies
// both CAR export (which needs every block reachable from a root) and the
// buffered writer's flush (spec §4.C, §4.I).
package walk

import (
	"context"

	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"

	"github.com/filecoin-project/venus-core/ipld"
)

// Links decodes the dag-cbor block at root and returns the cids it links
// to, in encoding order. Non-dag-cbor roots (raw blocks) have no links.
func Links(ctx context.Context, store ipld.Store, root cid.Cid) ([]cid.Cid, error) {
	if root.Prefix().Codec != cid.DagCBOR {
		return nil, nil
	}
	data, err := store.Get(ctx, root)
	if err != nil {
		return nil, err
	}
	blk := ipld.Block{Cid: root, Bytes: data}.ToBlocksBlock()
	nd, err := cbor.DecodeBlock(blk)
	if err != nil {
		return nil, err
	}
	links := nd.Links()
	out := make([]cid.Cid, len(links))
	for i, l := range links {
		out[i] = l.Cid
	}
	return out, nil
}

// Reachable returns every cid reachable from root, root included, doing a
// breadth-first traversal that visits each block at most once. store must
// contain every block this walk needs to decode, or the traversal fails
// with whatever error store.Get returns for the missing cid.
func Reachable(ctx context.Context, store ipld.Store, root cid.Cid) ([]cid.Cid, error) {
	visited := NewSet()
	queue := []cid.Cid{root}
	var out []cid.Cid
	for len(queue) > 0 {
		c := queue[0]
		queue = queue[1:]
		if !visited.Visit(c) {
			continue
		}
		out = append(out, c)
		links, err := Links(ctx, store, c)
		if err != nil {
			return nil, err
		}
		queue = append(queue, links...)
	}
	return out, nil
}
