package kvdb

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"

	"IDXCORE/internal/errs"
)

type Badger struct {
	db   *badger.DB
	path string
}

func (b *Badger) WithDataPath(path string) *Badger {
	b.path = path
	return b
}

func (b *Badger) Open() error {
	dataDir := b.GetDbPath()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create badger dir %s: %w", dataDir, err)
	}
	option := badger.DefaultOptions(dataDir).WithNumVersionsToKeep(1).WithLoggingLevel(badger.WARNING)
	db, err := badger.Open(option)
	if err != nil {
		return fmt.Errorf("open badger %s: %w", dataDir, err)
	}
	b.db = db
	slog.Info("badger opened", slog.String("path", dataDir))
	return nil
}

func (b *Badger) GetDbPath() string {
	return b.path
}

// CheckAndGC 回收 value log，记录回收前后的大小变化
func (b *Badger) CheckAndGC() {
	lsmSize1, vlogSize1 := b.db.Size()
	// 一次GC释放空间后可能让下一次GC成为可能，所以循环执行
	for {
		err := b.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) {
			slog.Error("badger run value log GC failed", "error", err)
		}
		break
	}
	lsmSize2, vlogSize2 := b.db.Size()
	if vlogSize2 < vlogSize1 {
		slog.Info("badger GC completed",
			"saved_bytes", vlogSize1-vlogSize2,
			"lsm_change", lsmSize2-lsmSize1,
			"vlog_before", vlogSize1,
			"vlog_after", vlogSize2,
		)
	} else {
		slog.Debug("badger GC finished", "msg", "collect zero garbage")
	}
}

func (b *Badger) Set(k, v []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, v)
	})
}

// BatchSet 事务太大时先提交已有部分，再开新事务继续写
func (b *Badger) BatchSet(keys, values [][]byte) error {
	if len(keys) != len(values) {
		return errs.Newf(errs.ErrInvalidState, "batch set with %d keys and %d values", len(keys), len(values))
	}
	txn := b.db.NewTransaction(true)
	defer func() { txn.Discard() }()
	for i, key := range keys {
		err := txn.Set(key, values[i])
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err = txn.Commit(); err != nil {
				return err
			}
			txn = b.db.NewTransaction(true)
			err = txn.Set(key, values[i])
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (b *Badger) Get(k []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			return err
		}
		// item.Value 里的切片只在闭包内有效，必须拷贝
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, errs.Newf(errs.ErrNotFound, "key %q", k)
	}
	return val, err
}

func (b *Badger) BatchGet(keys [][]byte) ([][]byte, error) {
	values := make([][]byte, len(keys))
	err := b.db.View(func(txn *badger.Txn) error {
		for i, key := range keys {
			item, err := txn.Get(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if values[i], err = item.ValueCopy(nil); err != nil {
				return err
			}
		}
		return nil
	})
	return values, err
}

func (b *Badger) Delete(k []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (b *Badger) BatchDelete(keys [][]byte) error {
	txn := b.db.NewTransaction(true)
	defer func() { txn.Discard() }()
	for _, key := range keys {
		err := txn.Delete(key)
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err = txn.Commit(); err != nil {
				return err
			}
			txn = b.db.NewTransaction(true)
			err = txn.Delete(key)
		}
		if err != nil {
			return err
		}
	}
	return txn.Commit()
}

func (b *Badger) Has(k []byte) bool {
	var exists bool
	_ = b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		exists = err == nil
		return nil
	})
	return exists
}

func (b *Badger) IterDB(fn func(k []byte, v []byte) error) int64 {
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			k := item.Key()
			if err := item.Value(func(v []byte) error {
				return fn(k, v)
			}); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		slog.Error("IterDB stopped with error", "error", err)
	}
	return count
}

func (b *Badger) IterKey(fn func(k []byte) error) int64 {
	var count int64
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		// 只遍历key时不预取value
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := fn(it.Item().Key()); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		slog.Error("IterKey stopped with error", "error", err)
	}
	return count
}

func (b *Badger) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}
