package intake

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"

	"trade_executor/internal/models"
)

// Envelope: решение плюс снимок состояния, на котором оно принято.
// Account и Position необязательны: раннер дочитает их у биржи.
type Envelope struct {
	Decision     models.Decision      `json:"decision"`
	Account      *models.AccountInfo  `json:"account,omitempty"`
	Position     *models.PositionInfo `json:"position,omitempty"`
	CurrentPrice float64              `json:"current_price,omitempty"`
}

// Price: цена из конверта или из самого решения.
func (e Envelope) Price() decimal.Decimal {
	if e.CurrentPrice > 0 {
		return decimal.NewFromFloat(e.CurrentPrice)
	}
	if e.Decision.CurrentPrice > 0 {
		return decimal.NewFromFloat(e.Decision.CurrentPrice)
	}
	return decimal.Zero
}

// Decode принимает JSON или YAML. Голое решение без обёртки тоже допустимо.
func Decode(data []byte) (Envelope, error) {
	doc, err := parse(data)
	if err != nil {
		return Envelope{}, err
	}

	m, ok := doc.(map[string]any)
	if !ok {
		return Envelope{}, fmt.Errorf("intake: document must be an object, got %T", doc)
	}
	if _, wrapped := m["decision"]; !wrapped {
		m = map[string]any{"decision": m}
	}

	if err := validateSchema(m); err != nil {
		return Envelope{}, err
	}

	raw, err := sonic.Marshal(m)
	if err != nil {
		return Envelope{}, fmt.Errorf("intake: re-encode: %w", err)
	}
	var env Envelope
	if err := sonic.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("intake: decode envelope: %w", err)
	}

	env.Decision.Symbol = strings.ToUpper(strings.TrimSpace(env.Decision.Symbol))
	if env.Position != nil && env.Position.Symbol == "" {
		env.Position.Symbol = env.Decision.Symbol
	}
	return env, nil
}

func DecodeFile(path string) (Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Envelope{}, fmt.Errorf("intake: read %s: %w", path, err)
	}
	return Decode(data)
}

// parse: JSON через sonic, всё остальное как YAML. Результат: дерево из map[string]any.
func parse(data []byte) (any, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("intake: empty document")
	}

	var doc any
	if trimmed[0] == '{' || trimmed[0] == '[' {
		if err := sonic.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("intake: parse json: %w", err)
		}
		return doc, nil
	}

	if err := yaml.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("intake: parse yaml: %w", err)
	}
	return normalizeYAML(doc)
}

// normalizeYAML: yaml.v2 отдаёт map[interface{}]interface{}, схеме и sonic нужны строковые ключи.
func normalizeYAML(v any) (any, error) {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("intake: non-string key %v", k)
			}
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint64:
		return float64(val), nil
	default:
		return val, nil
	}
}
