package intake

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "envelope.json"

// decimal-поля приходят и числом, и строкой
const envelopeSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["decision"],
  "properties": {
    "decision": {
      "type": "object",
      "required": ["symbol", "action"],
      "properties": {
        "symbol":            {"type": "string", "minLength": 1},
        "action":            {"type": "string", "minLength": 1},
        "leverage":          {"type": "integer"},
        "position_size_pct": {"type": "number"},
        "position_size_usd": {"type": "number"},
        "stop_loss_pct":     {"type": "number"},
        "take_profit_pct":   {"type": "number"},
        "stop_loss":         {"type": "number"},
        "take_profit":       {"type": "number"},
        "current_price":     {"type": "number"},
        "confidence":        {"type": "number"},
        "reasoning":         {"type": "string"}
      }
    },
    "account": {
      "type": "object",
      "required": ["available_balance"],
      "properties": {
        "available_balance":    {"type": ["number", "string"]},
        "total_wallet_balance": {"type": ["number", "string"]}
      }
    },
    "position": {
      "type": "object",
      "required": ["position_amt"],
      "properties": {
        "symbol":       {"type": "string"},
        "position_amt": {"type": ["number", "string"]},
        "entry_price":  {"type": ["number", "string"]},
        "leverage":     {"type": "integer"}
      }
    },
    "current_price": {"type": "number", "minimum": 0}
  }
}`

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, strings.NewReader(envelopeSchema)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

func validateSchema(doc map[string]any) error {
	sch, err := compiledSchema()
	if err != nil {
		return fmt.Errorf("intake: compile schema: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		return fmt.Errorf("intake: invalid envelope: %w", err)
	}
	return nil
}
