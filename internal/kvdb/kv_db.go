package kvdb

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// 支持的两种KV存储引擎
const (
	BOLT = iota
	BADGER
)

// ParseEngine 配置里的引擎名转成常量，无法识别时返回false
func ParseEngine(name string) (int, bool) {
	switch strings.ToLower(name) {
	case "bolt", "bbolt":
		return BOLT, true
	case "badger":
		return BADGER, true
	}
	return 0, false
}

// IKeyValueDB 正排索引的存储接口
type IKeyValueDB interface {
	Open() error                              // 初始化DB
	GetDbPath() string                        // 获取存储数据的目录
	Set(k, v []byte) error                    // 写入k v
	BatchSet(keys, values [][]byte) error     // 批量写入
	Get(k []byte) ([]byte, error)             // 读取key对应的value，key不存在时返回 ErrNotFound
	BatchGet(keys [][]byte) ([][]byte, error) // 批量读取，结果与keys一一对应，不存在的key对应nil
	Delete(k []byte) error                    // 删除
	BatchDelete(keys [][]byte) error          // 批量删除
	Has(k []byte) bool                        // 判断某个key是否存在
	IterDB(fn func(k, v []byte) error) int64  // 遍历数据库，返回数据的条数
	IterKey(fn func(k []byte) error) int64    // 遍历所有的key，返回数据条数
	Close() error                             // 把内存中的数据flush到磁盘，同时释放文件锁
}

// GetKvDb 按引擎类型打开path处的数据库，父目录不存在时自动创建
func GetKvDb(dbtype int, path string) (IKeyValueDB, error) {
	parentPath := filepath.Dir(path)
	info, err := os.Stat(parentPath)
	if os.IsNotExist(err) {
		slog.Info("父目录不存在，自动创建", slog.String("path", parentPath))
		if err := os.MkdirAll(parentPath, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", parentPath, err)
		}
	} else if err == nil && info.Mode().IsRegular() {
		// 父路径本该是目录却是个普通文件，删掉重建
		slog.Warn("父路径本该是目录，但却是一个文件，尝试删除并重建",
			slog.String("path", parentPath),
			slog.Int64("file_size", info.Size()),
			slog.Time("file_mtime", info.ModTime()))
		if err := os.Remove(parentPath); err != nil {
			return nil, fmt.Errorf("remove file %s: %w", parentPath, err)
		}
		if err := os.MkdirAll(parentPath, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", parentPath, err)
		}
	}

	var db IKeyValueDB
	switch dbtype {
	case BADGER:
		db = new(Badger).WithDataPath(path)
	default:
		db = new(Bolt).WithDataPath(path)
	}
	if err := db.Open(); err != nil {
		return nil, err
	}
	return db, nil
}
