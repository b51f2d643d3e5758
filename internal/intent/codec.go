package intent

import (
	"encoding/json"
	"fmt"
)

// Envelope 是动作的 JSON 外层：{"type": ..., "ts": ..., "payload": {...}}。
type Envelope struct {
	Type    Kind            `json:"type"`
	TS      int64           `json:"ts,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Encode 编码单个动作。
func Encode(a Action) (Envelope, error) {
	if a == nil {
		return Envelope{}, fmt.Errorf("action 为空")
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return Envelope{}, fmt.Errorf("编码 %s 失败: %w", a.Kind(), err)
	}
	return Envelope{Type: a.Kind(), TS: a.TriggerAt(), Payload: raw}, nil
}

// Decode 解码并通过构造函数重新校验。
func Decode(env Envelope) (Action, error) {
	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	var (
		act Action
		err error
	)
	switch env.Type {
	case KindSetCapital:
		var v SetCapital
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewSetCapital(v.Value)
		}
	case KindBuy:
		var v Buy
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewBuy(v.Symbol, v.Qty, v.Notional, v.All)
		}
	case KindSell:
		var v Sell
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewSell(v.Symbol, v.Qty, v.Notional, v.All)
		}
	case KindAllocate, "rebalance":
		var v Allocate
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewAllocate(v.Symbol, v.Weight)
		}
	case KindSchedule:
		var v Schedule
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewSchedule(v)
		}
	case KindRule:
		var v Rule
		if err = json.Unmarshal(payload, &v); err == nil {
			switch v.Name {
			case RuleMovingAverage:
				act, err = NewMovingAverageRule(v.Period)
			case RuleTrailingStop:
				act, err = NewTrailingStopRule(v.Threshold)
			default:
				err = fmt.Errorf("未知规则: %q", v.Name)
			}
		}
	case KindLiquidate:
		act = Liquidate{}
	case KindSetDateRange:
		var v SetDateRange
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewDateRange(v.Start, v.End, v.Interval)
		}
	case KindSetRelativeDates:
		var v SetRelativeDateRange
		if err = json.Unmarshal(payload, &v); err == nil {
			act, err = NewRelativeDateRange(v.Amount, v.Unit, v.Interval)
		}
	case KindNoOp:
		var v NoOp
		if err = json.Unmarshal(payload, &v); err == nil {
			act = v
		}
	default:
		return nil, fmt.Errorf("未知动作类型: %q", env.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("解码 %s 失败: %w", env.Type, err)
	}
	return WithTrigger(act, env.TS), nil
}

// List 是可直接 JSON 编解码的有序动作列表。
type List []Action

func (l List) MarshalJSON() ([]byte, error) {
	out := make([]Envelope, 0, len(l))
	for _, a := range l {
		env, err := Encode(a)
		if err != nil {
			return nil, err
		}
		out = append(out, env)
	}
	return json.Marshal(out)
}

func (l *List) UnmarshalJSON(data []byte) error {
	var envs []Envelope
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	out := make(List, 0, len(envs))
	for i, env := range envs {
		a, err := Decode(env)
		if err != nil {
			return fmt.Errorf("actions[%d]: %w", i, err)
		}
		out = append(out, a)
	}
	*l = out
	return nil
}
