// Package car implements the CAR+index archive store (spec §4.B, §6): an
// append-only CAR file holding length-prefixed (cid, payload) items, paired
// with a sorted on-disk index of fixed-width rows that map a block's key to
// its byte offset in the file. New writes land first in an in-memory
// "written" set and are visible immediately; a background merge folds them
// into the on-disk index so lookups stay a single binary search.
package car

import (
	"bufio"
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	cbor "github.com/ipfs/go-ipld-cbor"
	logging "github.com/ipfs/go-log/v2"
	gocar "github.com/ipld/go-car"
	carutil "github.com/ipld/go-car/util"
	varint "github.com/multiformats/go-varint"
	"github.com/pkg/errors"

	"github.com/filecoin-project/venus-core/ipld"
)

var log = logging.Logger("ipld/car")

// Header is the dag-cbor object occupying the first length-prefixed item of
// a CAR file.
type Header = gocar.CarHeader

// Store is a content-addressed Store backed by a CAR file and its index.
// It supports one writer and any number of concurrent readers (spec §5):
// reads take the index under a read lock and the file under a body lock;
// writes take the write lock and append, then fold into the written set
// under its own lock so a concurrent reader of the index is never blocked
// by an in-flight append.
type Store struct {
	carPath string
	idxPath string

	roots []cid.Cid

	carFile *os.File

	writeMu    sync.Mutex // serializes Put; owns nextOffset
	nextOffset uint64

	bodyMu sync.Mutex // serializes seek+read for Get against the shared fd

	idxMu sync.RWMutex
	idx   *Index

	writtenMu sync.RWMutex
	written   []row // rows appended since the last successful merge, sorted by key

	flushMu  sync.Mutex
	flushing bool
}

var _ ipld.Store = (*Store)(nil)

// Create creates a new CAR file at carPath (and an empty index at idxPath)
// with the given DAG roots and writes the dag-cbor header item.
func Create(carPath, idxPath string, roots []cid.Cid) (*Store, error) {
	f, err := os.OpenFile(carPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "creating car file")
	}
	hb, err := cbor.DumpObject(Header{Roots: roots, Version: 1})
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "encoding car header")
	}
	if err := carutil.LdWrite(f, hb); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "writing car header")
	}
	off, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := writeIndex(idxPath, nil); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "writing empty index")
	}
	return &Store{
		carPath:    carPath,
		idxPath:    idxPath,
		roots:      roots,
		carFile:    f,
		nextOffset: uint64(off),
		idx:        &Index{},
	}, nil
}

// Open opens an existing CAR file and its index for read/write.
func Open(carPath, idxPath string) (*Store, error) {
	f, err := os.OpenFile(carPath, os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "opening car file")
	}
	br := bufio.NewReader(f)
	hb, err := carutil.LdRead(br)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "reading car header")
	}
	var hdr Header
	if err := cbor.DecodeInto(hb, &hdr); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "decoding car header")
	}

	idx, err := loadIndex(idxPath)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "loading index")
	}

	// br may have buffered past the header item; new items are appended
	// after the last existing one, at the end of the file.
	end, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Store{
		carPath:    carPath,
		idxPath:    idxPath,
		roots:      hdr.Roots,
		carFile:    f,
		nextOffset: uint64(end),
		idx:        idx,
	}, nil
}

// Close closes the underlying file handle.
func (s *Store) Close() error {
	return s.carFile.Close()
}

// Roots returns the DAG roots recorded in the CAR header.
func (s *Store) Roots() []cid.Cid { return s.roots }

func toKey(c cid.Cid) [32]byte {
	if cb, ok := ipld.AsCbCid(c); ok {
		return [32]byte(cb)
	}
	// raw (non dag-cbor) cids are keyed by their own multihash digest so
	// the index still gives a fixed-width, content-derived key.
	var out [32]byte
	h := c.Hash()
	copy(out[:], h[len(h)-32:])
	return out
}

// Has implements ipld.Store.
func (s *Store) Has(ctx context.Context, c cid.Cid) (bool, error) {
	key := toKey(c)
	if _, _, ok := s.findWritten(key); ok {
		return true, nil
	}
	s.idxMu.RLock()
	_, _, ok := s.idx.find(key)
	s.idxMu.RUnlock()
	return ok, nil
}

// Get implements ipld.Store.
func (s *Store) Get(ctx context.Context, c cid.Cid) ([]byte, error) {
	key := toKey(c)

	if off, blocks64, ok := s.findWritten(key); ok {
		return s.readAt(off, blocks64)
	}

	s.idxMu.RLock()
	off, blocks64, ok := s.idx.find(key)
	s.idxMu.RUnlock()
	if !ok {
		return nil, ipld.ErrNotFound
	}
	return s.readAt(off, blocks64)
}

// readAt reads the (cid, payload) item starting at off and returns the
// payload bytes. The row's block-count ceiling is not used; the length
// comes from the item's own varint prefix.
func (s *Store) readAt(off uint64, _ uint32) ([]byte, error) {
	s.bodyMu.Lock()
	defer s.bodyMu.Unlock()

	if _, err := s.carFile.Seek(int64(off), io.SeekStart); err != nil {
		return nil, err
	}
	r := bufio.NewReader(s.carFile)
	item, err := carutil.LdRead(r)
	if err != nil {
		return nil, errors.Wrap(err, "reading car item")
	}
	n, itemCid, err := cid.CidFromBytes(item)
	if err != nil {
		return nil, errors.Wrap(err, "decoding item cid")
	}
	_ = itemCid
	return item[n:], nil
}

// Put implements ipld.Store. It appends the block to the CAR file and
// records its location in the written set; the row only reaches the
// on-disk index on the next Flush.
func (s *Store) Put(ctx context.Context, c cid.Cid, data []byte) error {
	key := toKey(c)
	if has, err := s.Has(ctx, c); err != nil {
		return err
	} else if has {
		return nil
	}

	s.writeMu.Lock()
	off := s.nextOffset
	if _, err := s.carFile.Seek(int64(off), io.SeekStart); err != nil {
		s.writeMu.Unlock()
		return err
	}
	if err := carutil.LdWrite(s.carFile, c.Bytes(), data); err != nil {
		s.writeMu.Unlock()
		return errors.Wrap(err, "appending car item")
	}
	written := varint.UvarintSize(uint64(len(c.Bytes())+len(data))) + len(c.Bytes()) + len(data)
	s.nextOffset = off + uint64(written)
	s.writeMu.Unlock()

	r := row{key: key, offset: off, maxSize64: maxSize64(uint64(len(data)))}
	s.writtenMu.Lock()
	i := sort.Search(len(s.written), func(i int) bool { return bytesGE(s.written[i].key, key) })
	s.written = append(s.written, row{})
	copy(s.written[i+1:], s.written[i:])
	s.written[i] = r
	n := len(s.written)
	s.writtenMu.Unlock()

	if n >= flushThreshold {
		s.asyncFlush()
	}
	return nil
}

// flushThreshold is how many unmerged rows accumulate before a background
// flush is kicked off automatically; Flush can also be called directly.
const flushThreshold = 4096

func (s *Store) findWritten(key [32]byte) (offset uint64, blocks32 uint32, ok bool) {
	s.writtenMu.RLock()
	defer s.writtenMu.RUnlock()
	i := sort.Search(len(s.written), func(i int) bool { return bytesGE(s.written[i].key, key) })
	if i >= len(s.written) || s.written[i].key != key {
		return 0, 0, false
	}
	return s.written[i].offset, s.written[i].maxSize64, true
}

// asyncFlush starts a background merge if one is not already running; if
// one is, it returns at once. Rows appended after a running flush took its
// snapshot stay in the written set until the next flush.
func (s *Store) asyncFlush() {
	s.flushMu.Lock()
	if s.flushing {
		s.flushMu.Unlock()
		return
	}
	s.flushing = true
	s.flushMu.Unlock()

	go func() {
		if err := s.doFlush(); err != nil {
			log.Errorw("background index flush failed", "err", err)
		}
		s.flushMu.Lock()
		s.flushing = false
		s.flushMu.Unlock()
	}()
}

// Flush merges the written set into the on-disk index synchronously,
// first waiting for any flush already in progress to finish.
func (s *Store) Flush(ctx context.Context) error {
	for {
		s.flushMu.Lock()
		if !s.flushing {
			s.flushing = true
			s.flushMu.Unlock()
			break
		}
		s.flushMu.Unlock()
		time.Sleep(time.Millisecond)
	}
	err := s.doFlush()
	s.flushMu.Lock()
	s.flushing = false
	s.flushMu.Unlock()
	return err
}

func (s *Store) doFlush() error {
	s.writtenMu.RLock()
	fresh := make([]row, len(s.written))
	copy(fresh, s.written)
	s.writtenMu.RUnlock()
	if len(fresh) == 0 {
		return nil
	}

	s.idxMu.RLock()
	existing := make([]row, len(s.idx.rows))
	copy(existing, s.idx.rows)
	s.idxMu.RUnlock()

	merged := mergeRows(existing, fresh)
	if err := writeIndex(s.idxPath, merged); err != nil {
		return errors.Wrap(err, "writing merged index")
	}
	newIdx, err := loadIndex(s.idxPath)
	if err != nil {
		return errors.Wrap(err, "reloading merged index")
	}

	s.idxMu.Lock()
	s.idx = newIdx
	s.idxMu.Unlock()

	flushedKeys := make(map[[32]byte]struct{}, len(fresh))
	for _, r := range fresh {
		flushedKeys[r.key] = struct{}{}
	}
	s.writtenMu.Lock()
	remaining := s.written[:0:0]
	for _, r := range s.written {
		if _, done := flushedKeys[r.key]; !done {
			remaining = append(remaining, r)
		}
	}
	s.written = remaining
	s.writtenMu.Unlock()
	return nil
}

// ToBlock is a convenience used when bridging to go-ipld-format consumers
// that expect a blocks.Block rather than raw bytes.
func ToBlock(c cid.Cid, data []byte) blocks.Block {
	b, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		panic(err)
	}
	return b
}
