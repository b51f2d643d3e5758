package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	levelVar   slog.LevelVar
	loggerMu   sync.RWMutex
	baseLogger *slog.Logger
	format     = "text"
	output     io.Writer = os.Stdout
)

func init() {
	levelVar.Set(slog.LevelInfo)
	baseLogger = newLogger(output, format)
}

func newLogger(w io.Writer, f string) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	opts := &slog.HandlerOptions{Level: &levelVar}
	if f == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// SetOutput 替换日志输出目标（如 stdout+文件）。
func SetOutput(w io.Writer) {
	loggerMu.Lock()
	output = w
	baseLogger = newLogger(output, format)
	loggerMu.Unlock()
}

// SetFormat 切换 text/json 输出格式，未知值回退到 text。
func SetFormat(f string) {
	f = strings.ToLower(strings.TrimSpace(f))
	if f != "json" {
		f = "text"
	}
	loggerMu.Lock()
	format = f
	baseLogger = newLogger(output, format)
	loggerMu.Unlock()
}

// SetLevel 设置全局日志级别，未知值按 info 处理。
func SetLevel(level string) {
	levelVar.Set(ParseLevel(level))
}

// ParseLevel 将配置中的级别字符串转换为 slog.Level。
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func activeLogger() *slog.Logger {
	loggerMu.RLock()
	l := baseLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if baseLogger == nil {
		baseLogger = newLogger(output, format)
	}
	return baseLogger
}

// Slog 暴露底层 *slog.Logger，供需要结构化字段的调用方使用。
func Slog() *slog.Logger {
	return activeLogger()
}

func Debugf(format string, v ...any) {
	activeLogger().Debug(fmt.Sprintf(format, v...))
}

func Infof(format string, v ...any) {
	activeLogger().Info(fmt.Sprintf(format, v...))
}

func Warnf(format string, v ...any) {
	activeLogger().Warn(fmt.Sprintf(format, v...))
}

func Errorf(format string, v ...any) {
	activeLogger().Error(fmt.Sprintf(format, v...))
}

// InfoBlock 逐行输出多行文本（启动摘要等）。
func InfoBlock(block string) {
	block = strings.TrimSpace(block)
	if block == "" {
		return
	}
	for _, line := range strings.Split(block, "\n") {
		Infof("%s", line)
	}
}
