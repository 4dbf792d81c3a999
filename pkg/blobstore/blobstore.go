// Package blobstore holds large entity payloads outside the primary
// key/value path (spec §4.C). Payloads at or above a size threshold are
// content-addressed by xxhash64 and written once; entities reference them by
// hash instead of carrying the bytes inline, so two identical attachments
// share storage.
package blobstore

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	bolt "go.etcd.io/bbolt"

	"github.com/nounverb/nvdb/pkg/logging"
	"github.com/nounverb/nvdb/pkg/nverrors"
	"github.com/nounverb/nvdb/pkg/storage"
)

// Threshold is the minimum payload size that gets routed through the blob
// store instead of being inlined in the owning record.
const Threshold = 4 * 1024 // 4 KiB

var bucketName = []byte("blobs")

// Store content-addresses payloads by xxhash64 digest, keeping a bbolt index
// of digest -> backing-storage key and delegating actual bytes to a
// storage.Adapter so blobs share the same filesystem/cloud backends as
// everything else.
type Store struct {
	adapter storage.Adapter
	db      *bolt.DB
	log     logging.Logger

	mu sync.Mutex
}

// Open creates or opens the bbolt index file at indexPath, backed by
// adapter for the actual blob bytes.
func Open(indexPath string, adapter storage.Adapter, log logging.Logger) (*Store, error) {
	if log == nil {
		log = logging.NoOp()
	}
	db, err := bolt.Open(indexPath, 0o644, nil)
	if err != nil {
		return nil, nverrors.Wrap("blobstore.Open", nverrors.KindFatalStorage, "open bbolt index: %v", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, nverrors.Wrap("blobstore.Open", nverrors.KindFatalStorage, "init bucket: %v", err)
	}
	return &Store{adapter: adapter, db: db, log: logging.Named(log, "blobstore")}, nil
}

// ShouldStore reports whether a payload of this size belongs in the blob
// store rather than being inlined.
func ShouldStore(size int) bool { return size >= Threshold }

// Digest returns the content-address for a payload without storing it.
func Digest(data []byte) uint64 { return xxhash.Sum64(data) }

// Put stores data content-addressed, returning its digest. Writing the same
// bytes twice is a no-op on the second call (the index already has an
// entry), so callers never need to de-duplicate before calling Put.
func (s *Store) Put(ctx context.Context, data []byte) (uint64, error) {
	digest := Digest(data)
	key := blobKey(digest)

	s.mu.Lock()
	defer s.mu.Unlock()

	exists := false
	if err := s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketName).Get(digestBytes(digest)) != nil
		return nil
	}); err != nil {
		return 0, nverrors.Wrap("blobstore.Put", nverrors.KindFatalStorage, "index read: %v", err)
	}
	if exists {
		return digest, nil
	}

	if err := s.adapter.Put(ctx, key, data); err != nil {
		return 0, nverrors.Wrap("blobstore.Put", nverrors.KindTransientStorage, "write blob: %v", err)
	}
	if err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(digestBytes(digest), []byte(key))
	}); err != nil {
		return 0, nverrors.Wrap("blobstore.Put", nverrors.KindFatalStorage, "index write: %v", err)
	}
	s.log.Debugw("stored blob", "digest", digest, "size", len(data))
	return digest, nil
}

// Resolve lazily rehydrates the payload for digest. Callers hold only the
// digest in the entity record; the bytes are fetched on demand.
func (s *Store) Resolve(ctx context.Context, digest uint64) ([]byte, error) {
	var key string
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(digestBytes(digest))
		if v == nil {
			return nverrors.New("blobstore.Resolve", nverrors.KindNotFound, nverrors.ErrNotFound)
		}
		key = string(v)
		return nil
	}); err != nil {
		return nil, err
	}
	data, err := s.adapter.Get(ctx, key)
	if err != nil {
		return nil, nverrors.Wrap("blobstore.Resolve", nverrors.KindNotFound, "fetch blob: %v", err)
	}
	return data, nil
}

// Delete removes both the index entry and the backing payload.
func (s *Store) Delete(ctx context.Context, digest uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	if err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(digestBytes(digest))
		if v != nil {
			key = string(v)
		}
		return nil
	}); err != nil {
		return nverrors.Wrap("blobstore.Delete", nverrors.KindFatalStorage, "index read: %v", err)
	}
	if key == "" {
		return nil
	}
	if err := s.adapter.Delete(ctx, key); err != nil {
		return nverrors.Wrap("blobstore.Delete", nverrors.KindTransientStorage, "delete blob: %v", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete(digestBytes(digest))
	})
}

// Close closes the underlying bbolt index. The backing storage.Adapter is
// owned by the caller and closed separately.
func (s *Store) Close() error {
	return s.db.Close()
}

func blobKey(digest uint64) string {
	return fmt.Sprintf("blob:%016x", digest)
}

func digestBytes(digest uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, digest)
	return b
}
