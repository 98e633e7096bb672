package ipld

import (
	"context"

	badger "github.com/dgraph-io/badger/v2"
	"github.com/ipfs/go-cid"
	logging "github.com/ipfs/go-log/v2"
	"github.com/pkg/errors"
)

var logDisk = logging.Logger("ipld/diskstore")

// DiskStore is a badger-backed Store used for the small-records key-value
// database spec.md §6 calls for alongside the CAR+index archive (genesis
// CID, default wallet address, interpreter cache, chain-head weight, and
// any block the engine needs durable but does not want inside the CAR).
type DiskStore struct {
	db *badger.DB
}

var _ Store = (*DiskStore)(nil)

// OpenDiskStore opens (creating if absent) a badger database at dir.
func OpenDiskStore(dir string) (*DiskStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening badger store at %s", dir)
	}
	return &DiskStore{db: db}, nil
}

// Close releases the underlying badger database.
func (d *DiskStore) Close() error {
	return d.db.Close()
}

// Has implements Store.
func (d *DiskStore) Has(_ context.Context, c cid.Cid) (bool, error) {
	found := false
	err := d.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(c.Bytes())
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// Get implements Store.
func (d *DiskStore) Get(_ context.Context, c cid.Cid) ([]byte, error) {
	var out []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(c.Bytes())
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Put implements Store. Re-putting an existing CID is a no-op.
func (d *DiskStore) Put(ctx context.Context, c cid.Cid, data []byte) error {
	has, err := d.Has(ctx, c)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	err = d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(c.Bytes(), data)
	})
	if err != nil {
		logDisk.Errorw("put failed", "cid", c, "err", err)
	}
	return err
}
