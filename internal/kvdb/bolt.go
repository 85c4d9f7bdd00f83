package kvdb

import (
	"bytes"
	"fmt"
	"log/slog"
	"time"

	bolt "go.etcd.io/bbolt"

	"IDXCORE/internal/errs"
)

var defaultBucket = []byte("documents")

// Bolt 所有数据放在一个bucket里
type Bolt struct {
	db     *bolt.DB
	path   string
	bucket []byte
}

func (s *Bolt) WithDataPath(path string) *Bolt {
	s.path = path
	return s
}

func (s *Bolt) WithBucket(bucket string) *Bolt {
	s.bucket = []byte(bucket)
	return s
}

func (s *Bolt) Open() error {
	if len(s.bucket) == 0 {
		s.bucket = defaultBucket
	}
	db, err := bolt.Open(s.GetDbPath(), 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return fmt.Errorf("open bolt %s: %w", s.path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.db = db
	slog.Info("bolt opened", slog.String("path", s.path), slog.String("bucket", string(s.bucket)))
	return nil
}

func (s *Bolt) GetDbPath() string {
	return s.path
}

func (s *Bolt) Set(k, v []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put(k, v)
	})
}

func (s *Bolt) BatchSet(keys, values [][]byte) error {
	if len(keys) != len(values) {
		return errs.Newf(errs.ErrInvalidState, "batch set with %d keys and %d values", len(keys), len(values))
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for i, key := range keys {
			if err := b.Put(key, values[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Bolt) Get(k []byte) ([]byte, error) {
	var val []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		// 事务结束后bolt返回的切片失效，必须拷贝
		if v := tx.Bucket(s.bucket).Get(k); v != nil {
			val = bytes.Clone(v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if val == nil {
		return nil, errs.Newf(errs.ErrNotFound, "key %q", k)
	}
	return val, nil
}

func (s *Bolt) BatchGet(keys [][]byte) ([][]byte, error) {
	values := make([][]byte, len(keys))
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for i, key := range keys {
			if v := b.Get(key); v != nil {
				values[i] = bytes.Clone(v)
			}
		}
		return nil
	})
	return values, err
}

func (s *Bolt) Delete(k []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete(k)
	})
}

func (s *Bolt) BatchDelete(keys [][]byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)
		for _, key := range keys {
			if err := b.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Bolt) Has(k []byte) bool {
	var exists bool
	_ = s.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(s.bucket).Get(k) != nil
		return nil
	})
	return exists
}

func (s *Bolt) IterDB(fn func(k, v []byte) error) int64 {
	var count int64
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).ForEach(func(k, v []byte) error {
			if err := fn(k, v); err != nil {
				return err
			}
			count++
			return nil
		})
	})
	if err != nil {
		slog.Error("IterDB stopped with error", "error", err)
	}
	return count
}

func (s *Bolt) IterKey(fn func(k []byte) error) int64 {
	return s.IterDB(func(k, _ []byte) error {
		return fn(k)
	})
}

func (s *Bolt) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
