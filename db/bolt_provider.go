package db

import (
	"bytes"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"
)

var defaultBucket = []byte("default")

// BoltProvider implements DatabaseProvider for go.etcd.io/bbolt, the
// production backend named in go.mod. Adapted from the teacher's
// LevelDBProvider: same interface shape (Get returns nil,nil for a missing
// key rather than an error), same single-file embedded-store posture.
type BoltProvider struct {
	once sync.Once
	db   *bbolt.DB
}

// NewBoltProvider opens (creating if necessary) a bbolt file at path and
// ensures the default bucket exists.
func NewBoltProvider(path string) (DatabaseProvider, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(defaultBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create default bucket: %w", err)
	}
	return &BoltProvider{db: db}, nil
}

func (p *BoltProvider) Get(key []byte) ([]byte, error) {
	var value []byte
	err := p.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(defaultBucket).Get(key)
		if v != nil {
			value = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (p *BoltProvider) GetBatch(keys [][]byte) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	err := p.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(defaultBucket)
		for _, key := range keys {
			v := b.Get(key)
			if v == nil {
				continue
			}
			result[string(key)] = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (p *BoltProvider) Put(key, value []byte) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(defaultBucket).Put(key, value)
	})
}

func (p *BoltProvider) Delete(key []byte) error {
	return p.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(defaultBucket).Delete(key)
	})
}

func (p *BoltProvider) Has(key []byte) (bool, error) {
	var exists bool
	err := p.db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(defaultBucket).Get(key) != nil
		return nil
	})
	return exists, err
}

func (p *BoltProvider) Close() error {
	var err error
	p.once.Do(func() {
		err = p.db.Close()
	})
	return err
}

func (p *BoltProvider) Batch() DatabaseBatch {
	return &boltBatch{provider: p}
}

// IteratePrefix iterates over all key-value pairs with the given prefix, in
// key order. The callback returns false to stop iteration early.
func (p *BoltProvider) IteratePrefix(prefix []byte, callback func(key, value []byte) bool) error {
	return p.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(defaultBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if !callback(k, v) {
				break
			}
		}
		return nil
	})
}

// boltBatch accumulates puts/deletes in memory and applies them in a single
// bbolt transaction on Write, matching the teacher's batch-then-commit shape.
type boltBatch struct {
	provider *BoltProvider
	puts     [][2][]byte
	deletes  [][]byte
}

func (b *boltBatch) Put(key, value []byte) {
	b.puts = append(b.puts, [2][]byte{key, value})
}

func (b *boltBatch) Delete(key []byte) {
	b.deletes = append(b.deletes, key)
}

func (b *boltBatch) Write() error {
	return b.provider.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(defaultBucket)
		for _, kv := range b.puts {
			if err := bucket.Put(kv[0], kv[1]); err != nil {
				return err
			}
		}
		for _, k := range b.deletes {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *boltBatch) Reset() {
	b.puts = b.puts[:0]
	b.deletes = b.deletes[:0]
}

func (b *boltBatch) Close() {}
