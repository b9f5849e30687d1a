package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/fmp-data/internal/model"
)

// decodePage turns a provider body into records. Items are decoded field
// by field from their raw JSON; unknown keys are ignored and an item
// missing a required field is rejected on its own.
//
// A top-level array holds the items directly. An object holds them under
// et.ItemsPath (absent key = no items) and may carry the symbol the
// items belong to; without ItemsPath the object is a single item.
func decodePage(et *model.EntityType, body []byte, symbols []string) ([]model.Record, int, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, 0, 0, nil
	}

	var items []json.RawMessage
	var envelopeSymbol string

	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, 0, 0, fmt.Errorf("decode item array: %w", err)
		}
	case '{':
		if et.ItemsPath == "" {
			items = []json.RawMessage{trimmed}
			break
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return nil, 0, 0, fmt.Errorf("decode envelope: %w", err)
		}
		if raw, ok := obj["symbol"]; ok {
			_ = json.Unmarshal(raw, &envelopeSymbol)
		}
		raw, ok := obj[et.ItemsPath]
		if !ok || isNull(raw) {
			return nil, 0, 0, nil
		}
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, 0, 0, fmt.Errorf("decode %s: %w", et.ItemsPath, err)
		}
	default:
		return nil, 0, 0, errors.New("payload is neither an array nor an object")
	}

	defaultSymbol := envelopeSymbol
	if defaultSymbol == "" && len(symbols) == 1 {
		defaultSymbol = symbols[0]
	}

	records := make([]model.Record, 0, len(items))
	rejected := 0
	for _, item := range items {
		rec, ok := decodeItem(et, item, defaultSymbol)
		if !ok {
			rejected++
			continue
		}
		records = append(records, rec)
	}

	return records, len(items), rejected, nil
}

func decodeItem(et *model.EntityType, item json.RawMessage, defaultSymbol string) (model.Record, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(item, &fields); err != nil || fields == nil {
		return model.Record{}, false
	}

	symbolField := symbolFieldOf(et)
	values := make(map[string]any, len(et.Fields))

	for _, f := range et.Fields {
		raw, present := fields[f.ProviderKey()]
		if !present || isNull(raw) {
			if f.Name == symbolField && defaultSymbol != "" {
				values[f.Name] = defaultSymbol
				continue
			}
			if f.Required {
				return model.Record{}, false
			}
			values[f.Name] = nil
			continue
		}

		v, err := decodeValue(raw)
		if err != nil {
			return model.Record{}, false
		}
		values[f.Name] = v
	}

	rec := model.Record{Entity: et.ID, Values: values}
	if s, ok := values[symbolField].(string); ok {
		rec.Symbol = model.NormalizeSymbol(s)
	}
	return rec, true
}

// symbolFieldOf returns the column holding the ticker, if any.
func symbolFieldOf(et *model.EntityType) string {
	if et.SymbolField != "" {
		return et.SymbolField
	}
	if _, ok := et.Field("symbol"); ok {
		return "symbol"
	}
	return ""
}

func decodeValue(raw json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}
