package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// backtestSchema 约束 POST /api/backtest 的请求体。
const backtestSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "text": {"type": "string", "maxLength": 2000},
    "instructions": {"type": "array", "maxItems": 100, "items": {"type": "string", "maxLength": 2000}},
    "actions": {
      "type": "array",
      "maxItems": 200,
      "items": {
        "type": "object",
        "required": ["type"],
        "properties": {
          "type": {"type": "string", "enum": ["set_capital", "buy", "sell", "allocate", "rebalance", "schedule", "rule", "liquidate", "set_dates", "set_relative_dates", "noop"]},
          "ts": {"type": ["integer", "null"], "minimum": 0},
          "payload": {"type": ["object", "null"]}
        }
      }
    },
    "candles": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["t", "c"],
          "properties": {
            "t": {"type": "integer"},
            "o": {"type": "number"},
            "h": {"type": "number"},
            "l": {"type": "number"},
            "c": {"type": "number"},
            "v": {"type": "number"}
          }
        }
      }
    },
    "symbols": {"type": "array", "maxItems": 50, "items": {"type": "string", "minLength": 1, "maxLength": 32}},
    "start_capital": {"type": "number", "exclusiveMinimum": 0},
    "interval": {"type": "string", "pattern": "^[0-9]+[mhdw]$"},
    "aggregate": {"type": "string", "pattern": "^[0-9]+[mhdw]$"},
    "start": {"type": "string"},
    "end": {"type": "string"}
  },
  "anyOf": [
    {"required": ["text"]},
    {"required": ["instructions"]},
    {"required": ["actions"]}
  ]
}`

type requestSchema struct {
	schema *jsonschema.Schema
}

func compileBacktestSchema() (*requestSchema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("backtest.json", strings.NewReader(backtestSchema)); err != nil {
		return nil, fmt.Errorf("加载回测请求 schema 失败: %w", err)
	}
	schema, err := compiler.Compile("backtest.json")
	if err != nil {
		return nil, fmt.Errorf("编译回测请求 schema 失败: %w", err)
	}
	return &requestSchema{schema: schema}, nil
}

// Validate 校验原始 JSON。
func (r *requestSchema) Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("请求体不是合法 JSON: %w", err)
	}
	if err := r.schema.Validate(doc); err != nil {
		return fmt.Errorf("请求体校验失败: %w", err)
	}
	return nil
}
