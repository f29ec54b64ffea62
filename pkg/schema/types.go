package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Type defines the contract for field coercion.
type Type interface {
	// Name returns the human-readable name of the type (e.g., "string", "bool").
	Name() string
	// Coerce converts value into the type's canonical representation.
	Coerce(value any) (any, error)
}

// StringType accepts any scalar and formats it as a string.
type StringType struct{}

func (t *StringType) Name() string { return "string" }

func (t *StringType) Coerce(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case bool, int, int64:
		return fmt.Sprint(v), nil
	default:
		return nil, fmt.Errorf("expected string, got %T", value)
	}
}

// BoolType accepts booleans and the yes/no words callers use. Uncertain answers
// ("not sure", "unknown") are kept as the string "unknown" so the field still
// counts as answered.
type BoolType struct{}

func (t *BoolType) Name() string { return "bool" }

var boolWords = map[string]bool{
	"true": true, "yes": true, "y": true, "yeah": true, "yep": true, "1": true,
	"false": false, "no": false, "n": false, "nope": false, "0": false,
}

var unknownWords = map[string]bool{
	"unknown": true, "not sure": true, "unsure": true, "don't know": true, "maybe": true,
}

func (t *BoolType) Coerce(value any) (any, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		word := strings.Trim(strings.ToLower(strings.TrimSpace(v)), ".!")
		if b, ok := boolWords[word]; ok {
			return b, nil
		}
		if unknownWords[word] {
			return "unknown", nil
		}
		return nil, fmt.Errorf("expected yes/no, got %q", v)
	case float64:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	case int:
		if v == 0 || v == 1 {
			return v == 1, nil
		}
	}
	return nil, fmt.Errorf("expected bool, got %T", value)
}

// NumberType accepts numbers and numeric strings, returning float64.
type NumberType struct{}

func (t *NumberType) Name() string { return "number" }

func (t *NumberType) Coerce(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("expected number, got %q", v)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("expected number, got %T", value)
	}
}

// String creates a string type.
func String() Type { return &StringType{} }

// Bool creates a boolean type.
func Bool() Type { return &BoolType{} }

// Number creates a numeric type.
func Number() Type { return &NumberType{} }

// ParseType converts a type name to a Type.
func ParseType(typeStr string) (Type, error) {
	switch typeStr {
	case "string":
		return String(), nil
	case "bool":
		return Bool(), nil
	case "number", "float", "int":
		return Number(), nil
	default:
		return nil, fmt.Errorf("unsupported type: %s", typeStr)
	}
}

// ParseTypeMap converts a map of field names to type strings into a Schema.
// Example: {"animal_contained": "bool", "animal_weight": "number"}
func ParseTypeMap(typeMap map[string]string) (Schema, error) {
	result := make(Schema)
	for key, typeStr := range typeMap {
		t, err := ParseType(typeStr)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", key, err)
		}
		result[key] = t
	}
	return result, nil
}
