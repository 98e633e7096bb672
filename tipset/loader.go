package tipset

import (
	"context"

	lru "github.com/hashicorp/golang-lru"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-core/ipld"
)

var log = logging.Logger("tipset")

// DefaultCacheSize is the loader's default ARC cache capacity.
const DefaultCacheSize = 8192

// Loader resolves tipset keys to validated TipSets, caching the result
// of each resolution. The cache is a plain capacity-bounded ARC rather
// than the weak-reference cache spec.md describes, since Go has no
// first-class weak references; an explicit size cap with LRU/LFU hybrid
// eviction is the behaviorally adequate substitute spec.md §9 allows.
type Loader struct {
	store ipld.Store
	cache *lru.ARCCache
}

// NewLoader constructs a Loader over store with an ARC cache of the
// given size.
func NewLoader(store ipld.Store, size int) (*Loader, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	c, err := lru.NewARC(size)
	if err != nil {
		return nil, errors.Wrap(err, "constructing tipset cache")
	}
	return &Loader{store: store, cache: c}, nil
}

// Load resolves key to a TipSet, reading and validating each member
// header from the block store on a cache miss.
func (l *Loader) Load(ctx context.Context, key TipSetKey) (*TipSet, error) {
	cacheKey := key.String()
	if v, ok := l.cache.Get(cacheKey); ok {
		return v.(*TipSet), nil
	}

	headers := make([]*Header, 0, key.Len())
	for _, c := range key.Cids() {
		h, err := LoadHeader(ctx, l.store, c)
		if err != nil {
			return nil, errors.Wrapf(err, "loading header %s", c)
		}
		headers = append(headers, h)
	}

	ts, err := NewTipSet(headers)
	if err != nil {
		return nil, err
	}

	l.cache.Add(cacheKey, ts)
	log.Debugw("loaded tipset", "key", cacheKey, "height", ts.Height())
	return ts, nil
}
