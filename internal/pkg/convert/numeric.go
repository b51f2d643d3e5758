// Package convert 把外部数据源返回的松散数值字段转换为 float64。
package convert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ToFloat64 接受数字、数字字符串和 json.Number；无法解析或非有限值返回 0。
func ToFloat64(v any) float64 {
	f, _ := Float(v)
	return f
}

// Float 与 ToFloat64 相同，但额外报告是否解析成功。
func Float(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
