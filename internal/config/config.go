package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// EnvPrefix 为环境变量覆盖前缀，例如 CHATTRACK_ENGINE_FEE_RATE。
const EnvPrefix = "CHATTRACK"

// envKeys 列出允许通过环境变量覆盖的键（密钥类配置不落盘）。
var envKeys = []string{
	"app.log_level",
	"app.http_addr",
	"alpaca.enabled",
	"alpaca.api_key",
	"alpaca.api_secret",
	"metrics.remote_url",
	"runner.workers",
}

// Load 读取配置文件（支持 include 合并）与环境变量覆盖，再补默认值并校验。
// path 为空时只使用默认值和环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if strings.TrimSpace(path) != "" {
		files, err := resolveConfigIncludes(path)
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			if err := mergeConfigFile(v, file); err != nil {
				return nil, fmt.Errorf("读取配置文件失败 (%s): %w", file, err)
			}
		}
	}
	setKeys := make(keySet)
	collectSettingsKeys(v.AllSettings(), setKeys)
	applyEnvOverrides(v, setKeys)

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.applyDefaults(setKeys)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default 返回只含默认值的配置，测试与离线工具使用。
func Default() *Config {
	var cfg Config
	cfg.applyDefaults(keySet{})
	return &cfg
}

func applyEnvOverrides(v *viper.Viper, keys keySet) {
	for _, key := range envKeys {
		name := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		raw, ok := os.LookupEnv(name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v.Set(key, strings.TrimSpace(raw))
		keys.mark(key)
	}
}

func mergeConfigFile(v *viper.Viper, path string) error {
	tmp := viper.New()
	tmp.SetConfigFile(path)
	if err := tmp.ReadInConfig(); err != nil {
		return err
	}
	settings := tmp.AllSettings()
	delete(settings, "include")
	return v.MergeConfigMap(settings)
}

// resolveConfigIncludes 按深度优先展开 include，被包含文件先于包含者合并。
func resolveConfigIncludes(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var ordered []string
	seen := make(map[string]bool)
	stack := make(map[string]bool)
	var walk func(string) error
	walk = func(p string) error {
		p = filepath.Clean(p)
		if stack[p] {
			return fmt.Errorf("检测到 include 循环: %s", p)
		}
		if seen[p] {
			return nil
		}
		stack[p] = true
		includes, err := parseIncludeList(p)
		if err != nil {
			return fmt.Errorf("解析 include 失败 (%s): %w", p, err)
		}
		for _, inc := range includes {
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(p), inc)
			}
			if err := walk(inc); err != nil {
				return err
			}
		}
		delete(stack, p)
		seen[p] = true
		ordered = append(ordered, p)
		return nil
	}
	if err := walk(abs); err != nil {
		return nil, err
	}
	return ordered, nil
}

func parseIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	raw := v.Get("include")
	if raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		if s, isStr := raw.(string); isStr {
			items = []any{s}
		} else {
			return nil, fmt.Errorf("include 必须是字符串数组")
		}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		str, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("include 只支持字符串")
		}
		if str = strings.TrimSpace(str); str != "" {
			out = append(out, str)
		}
	}
	return out, nil
}

func collectSettingsKeys(settings map[string]any, dest keySet) {
	if dest == nil || len(settings) == 0 {
		return
	}
	flattenConfigKeys("", settings, dest)
}

func flattenConfigKeys(prefix string, node any, dest keySet) {
	m, ok := node.(map[string]any)
	if !ok {
		dest.mark(prefix)
		return
	}
	for k, v := range m {
		next := strings.ToLower(strings.TrimSpace(k))
		if next == "" {
			continue
		}
		if prefix != "" {
			next = prefix + "." + next
		}
		flattenConfigKeys(next, v, dest)
	}
}
