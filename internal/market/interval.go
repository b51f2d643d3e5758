package market

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ParseInterval 解析 "1m", "5m", "1h", "1d", "1w" 等周期。
func ParseInterval(interval string) (time.Duration, error) {
	interval = strings.ToLower(strings.TrimSpace(interval))
	if len(interval) < 2 {
		return 0, fmt.Errorf("周期格式错误: %q", interval)
	}
	unit := interval[len(interval)-1]
	n, err := strconv.Atoi(interval[:len(interval)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("周期格式错误: %q", interval)
	}
	switch unit {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("不支持的周期单位: %q", interval)
	}
}

// AlignDown 将毫秒时间戳向下对齐到 step 网格。
func AlignDown(ts, step int64) int64 {
	if step <= 0 {
		return ts
	}
	rem := ts % step
	if rem < 0 {
		rem += step
	}
	return ts - rem
}
