package intent

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"chattrack/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AliasFile 映射别名文件：
//
//	aliases:
//	  berkshire: BRK.B
type AliasFile struct {
	Aliases map[string]string `yaml:"aliases"`
}

// Registry 持有从文件加载的别名表，文件变化时热更新。
type Registry struct {
	path string
	v    *viper.Viper

	mu      sync.RWMutex
	table   AliasTable
	version int64
}

// NewRegistry 读取别名文件并开始监听；path 为空时只使用内置表且不监听。
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path), table: DefaultAliases()}
	if r.path == "" {
		return r, nil
	}
	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取别名文件失败: %w", err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("[intent] 别名文件重载失败: %v", err)
		}
	})
	v.WatchConfig()
	return r, nil
}

// Table 返回当前别名表快照。
func (r *Registry) Table() AliasTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.table
}

// Version 返回成功加载的次数。
func (r *Registry) Version() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version
}

func (r *Registry) reload() error {
	file, err := readAliasFile(r.path)
	if err != nil {
		return err
	}
	table := NewAliasTable(file.Aliases)
	r.mu.Lock()
	r.table = table
	r.version++
	r.mu.Unlock()
	logger.Infof("[intent] 已加载 %d 个别名 (%s)", len(file.Aliases), filepath.Base(r.path))
	return nil
}

func readAliasFile(path string) (AliasFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return AliasFile{}, fmt.Errorf("读取别名文件失败: %w", err)
	}
	var f AliasFile
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return AliasFile{}, fmt.Errorf("解析别名文件失败: %w", err)
	}
	return f, nil
}
