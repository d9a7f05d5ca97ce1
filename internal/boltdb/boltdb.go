// Package boltdb keeps the persistent content-hash index used for duplicate detection across runs.
package boltdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

var Buckets = struct {
	Metadata []byte
	Hashes   []byte
}{
	Metadata: []byte("__metadata__"),
	Hashes:   []byte("hashes"),
}

var MetadataKeys = struct {
	Version []byte
}{
	Version: []byte("version"),
}

const currentVersion = 1

var ErrUnsupportedVersion = errors.New("unsupported index version")

// Index maps content hashes to the id of the Content row that first claimed them.
type Index struct {
	db *bbolt.DB
}

func New(path string) (_ *Index, err error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bbolt.Tx) (err error) {
		// Ensure buckets exist
		var metadata *bbolt.Bucket
		if metadata, err = tx.CreateBucketIfNotExists(Buckets.Metadata); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(Buckets.Hashes); err != nil {
			return err
		}

		// Get the current version of the index
		var version int
		if versionBytes := metadata.Get(MetadataKeys.Version); versionBytes == nil {
			version = 0
		} else if err = json.Unmarshal(versionBytes, &version); err != nil {
			return err
		}
		if version > currentVersion {
			return fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
		}

		// Set the current version of the index
		if versionBytes, err := json.Marshal(currentVersion); err != nil {
			return err
		} else if err = metadata.Put(MetadataKeys.Version, versionBytes); err != nil {
			return err
		}

		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Index{db}, nil
}

func (i *Index) Close() error {
	return i.db.Close()
}

func encodeID(id uint) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(id))
	return b
}

func decodeID(b []byte) uint {
	return uint(binary.BigEndian.Uint64(b))
}

// Claim records contentID as the owner of hash unless another id already owns it. It returns the owning id, and
// whether this call (or an earlier claim by the same id) holds it.
func (i *Index) Claim(hash string, contentID uint) (owner uint, claimed bool, err error) {
	err = i.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Hashes)
		if existing := bucket.Get([]byte(hash)); existing != nil {
			owner = decodeID(existing)
			claimed = owner == contentID
			return nil
		}
		owner, claimed = contentID, true
		return bucket.Put([]byte(hash), encodeID(contentID))
	})
	return owner, claimed, err
}

// Release removes the claim on hash, if contentID holds it.
func (i *Index) Release(hash string, contentID uint) error {
	return i.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(Buckets.Hashes)
		if existing := bucket.Get([]byte(hash)); existing != nil && decodeID(existing) == contentID {
			return bucket.Delete([]byte(hash))
		}
		return nil
	})
}

// Lookup returns the owner of hash, or false if it is unclaimed.
func (i *Index) Lookup(hash string) (owner uint, ok bool, err error) {
	err = i.db.View(func(tx *bbolt.Tx) error {
		if existing := tx.Bucket(Buckets.Hashes).Get([]byte(hash)); existing != nil {
			owner, ok = decodeID(existing), true
		}
		return nil
	})
	return owner, ok, err
}

func (i *Index) Count() (count int, err error) {
	err = i.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(Buckets.Hashes).Stats().KeyN
		return nil
	})
	return count, err
}
