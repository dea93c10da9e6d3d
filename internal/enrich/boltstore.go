package enrich

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"time"

	"github.com/AdguardTeam/golibs/errors"
	bolt "go.etcd.io/bbolt"
)

// Names of the buckets of the bolt cache database.
var (
	bucketEntries = []byte("entries")
	bucketFailed  = []byte("failed")
)

// boltOpenTimeout is the time to wait for the lock of the database file held
// by another process.
const boltOpenTimeout = 1 * time.Second

// BoltStore keeps a snapshot in a bolt database file.  Each resolved address
// is a key of the entries bucket with a gob-encoded *Entry value, each failed
// address is a key of the failed bucket.
type BoltStore struct {
	path string
}

// NewBoltStore returns a store keeping the snapshot in the bolt database at
// path.
func NewBoltStore(path string) (s *BoltStore) {
	return &BoltStore{
		path: path,
	}
}

// type check
var _ Store = (*BoltStore)(nil)

// open opens the database.
func (s *BoltStore) open() (db *bolt.DB, err error) {
	db, err = bolt.Open(s.path, DefaultPermFile, &bolt.Options{Timeout: boltOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	return db, nil
}

// Load implements the [Store] interface for *BoltStore.
func (s *BoltStore) Load() (snap *Snapshot, err error) {
	snap = &Snapshot{Entries: map[string]*Entry{}}

	_, err = os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return snap, nil
	}

	db, err := s.open()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return nil, err
	}
	defer func() { err = errors.WithDeferred(err, db.Close()) }()

	err = db.View(func(tx *bolt.Tx) (txErr error) {
		return loadBuckets(tx, snap)
	})
	if err != nil {
		return nil, fmt.Errorf("loading cache db: %w", err)
	}

	return snap, nil
}

// loadBuckets reads the contents of the buckets into snap.
func loadBuckets(tx *bolt.Tx, snap *Snapshot) (err error) {
	if b := tx.Bucket(bucketEntries); b != nil {
		err = b.ForEach(func(k, v []byte) (decErr error) {
			e := &Entry{}
			decErr = gob.NewDecoder(bytes.NewReader(v)).Decode(e)
			if decErr != nil {
				return fmt.Errorf("decoding entry %q: %w", k, decErr)
			}

			snap.Entries[string(k)] = e

			return nil
		})
		if err != nil {
			// Don't wrap the error since it's informative enough as is.
			return err
		}
	}

	if b := tx.Bucket(bucketFailed); b != nil {
		// Keys are iterated in the byte-sorted order.
		return b.ForEach(func(k, _ []byte) (_ error) {
			snap.Failed = append(snap.Failed, string(k))

			return nil
		})
	}

	return nil
}

// Save implements the [Store] interface for *BoltStore.  Both buckets are
// replaced in a single transaction.
func (s *BoltStore) Save(snap *Snapshot) (err error) {
	db, err := s.open()
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}
	defer func() { err = errors.WithDeferred(err, db.Close()) }()

	err = db.Update(func(tx *bolt.Tx) (txErr error) {
		return saveBuckets(tx, snap)
	})
	if err != nil {
		return fmt.Errorf("saving cache db: %w", err)
	}

	return nil
}

// saveBuckets recreates the buckets with the contents of snap.
func saveBuckets(tx *bolt.Tx, snap *Snapshot) (err error) {
	entries, err := recreateBucket(tx, bucketEntries)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	for addr, e := range snap.Entries {
		buf := &bytes.Buffer{}
		err = gob.NewEncoder(buf).Encode(e)
		if err != nil {
			return fmt.Errorf("encoding entry %q: %w", addr, err)
		}

		err = entries.Put([]byte(addr), buf.Bytes())
		if err != nil {
			return fmt.Errorf("putting entry %q: %w", addr, err)
		}
	}

	failed, err := recreateBucket(tx, bucketFailed)
	if err != nil {
		// Don't wrap the error since it's informative enough as is.
		return err
	}

	for _, addr := range snap.Failed {
		err = failed.Put([]byte(addr), []byte{})
		if err != nil {
			return fmt.Errorf("putting failed %q: %w", addr, err)
		}
	}

	return nil
}

// recreateBucket deletes the bucket with the given name, if any, and creates
// an empty one.
func recreateBucket(tx *bolt.Tx, name []byte) (b *bolt.Bucket, err error) {
	if tx.Bucket(name) != nil {
		err = tx.DeleteBucket(name)
		if err != nil {
			return nil, fmt.Errorf("deleting bucket %q: %w", name, err)
		}
	}

	b, err = tx.CreateBucket(name)
	if err != nil {
		return nil, fmt.Errorf("creating bucket %q: %w", name, err)
	}

	return b, nil
}
