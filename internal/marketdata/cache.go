package marketdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"chattrack/internal/logger"
	"chattrack/internal/market"

	"github.com/parquet-go/parquet-go"
)

const cacheKeyLayout = "200601021504"

// Cache 把查询结果按 symbol/interval/区间写成 parquet 文件，总大小超过上限时
// 按修改时间从旧到新淘汰。
type Cache struct {
	dir   string
	limit int64
	mu    sync.Mutex
}

func NewCache(dir string, limitBytes int64) (*Cache, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("cache dir 不能为空")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建缓存目录失败: %w", err)
	}
	return &Cache{dir: dir, limit: limitBytes}, nil
}

// Path 返回查询对应的缓存文件路径。
func (c *Cache) Path(q Query) string {
	sym := strings.NewReplacer("/", "-", "\\", "-").Replace(strings.ToUpper(q.Symbol))
	name := fmt.Sprintf("%s_%s_%s_%s.parquet", sym, q.Interval,
		q.Start.UTC().Format(cacheKeyLayout), q.End.UTC().Format(cacheKeyLayout))
	return filepath.Join(c.dir, name)
}

// Get 读取缓存，返回 K 线与文件修改时间。损坏的文件会被删除并视为未命中。
func (c *Cache) Get(q Query) (market.Candles, time.Time, bool) {
	path := c.Path(q)
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, false
	}
	rows, err := parquet.ReadFile[market.Candle](path)
	if err != nil {
		logger.Warnf("[marketdata] 缓存文件损坏，已删除 %s: %v", path, err)
		_ = os.Remove(path)
		return nil, time.Time{}, false
	}
	cs := market.Normalize(rows)
	if len(cs) == 0 {
		return nil, time.Time{}, false
	}
	return cs, info.ModTime(), true
}

// Put 写入缓存并执行容量淘汰。
func (c *Cache) Put(q Query, cs market.Candles) error {
	if len(cs) == 0 {
		return nil
	}
	path := c.Path(q)
	c.mu.Lock()
	defer c.mu.Unlock()
	tmp := path + ".tmp"
	if err := parquet.WriteFile(tmp, []market.Candle(cs)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	c.enforceLimit()
	return nil
}

type cacheFile struct {
	path  string
	size  int64
	mtime time.Time
}

func (c *Cache) enforceLimit() {
	if c.limit <= 0 {
		return
	}
	entries, err := filepath.Glob(filepath.Join(c.dir, "*.parquet"))
	if err != nil {
		return
	}
	var total int64
	files := make([]cacheFile, 0, len(entries))
	for _, p := range entries {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, cacheFile{path: p, size: info.Size(), mtime: info.ModTime()})
	}
	if total <= c.limit {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })
	for _, f := range files {
		if total <= c.limit {
			break
		}
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			continue
		}
		total -= f.size
		logger.Debugf("[marketdata] 缓存淘汰 %s (%d bytes)", filepath.Base(f.path), f.size)
	}
}
