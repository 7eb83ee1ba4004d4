// Package codec implements the engine's value encoding: a small tagged-value
// model (null, bool, int, float, text, bytes, list, map) with a canonical
// textual serialization used both for on-disk storage and for the
// byte-exact equality check that produces a "nochange" save outcome.
package codec

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the shape of a stored value so Decode knows how to rehydrate
// the raw bytes recorded alongside it.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindText
	KindBytes
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindText:
		return "text"
	case KindBytes:
		return "bytes"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "unknown"
	}
}

// Encoded is the canonical on-disk form of a value: a kind tag plus the
// textual (or raw, for KindBytes) serialization. Two Encoded values with the
// same Kind and identical Raw bytes represent the same value — this is what
// makes "nochange" detection byte-exact.
type Encoded struct {
	Kind Kind
	Raw  []byte
}

// Equal reports whether two encodings represent the same canonical value.
func (e Encoded) Equal(other Encoded) bool {
	return e.Kind == other.Kind && string(e.Raw) == string(other.Raw)
}

// Encode produces the canonical encoding of a Go value already promoted to
// one of: nil, bool, int64, float64, string, []byte, []any, map[string]any.
// Use Promote first to turn a raw textual CLI argument into one of these.
func Encode(v any) (Encoded, error) {
	switch val := v.(type) {
	case nil:
		return Encoded{Kind: KindNull}, nil
	case bool:
		return Encoded{Kind: KindBool, Raw: []byte(strconv.FormatBool(val))}, nil
	case int:
		return Encoded{Kind: KindInt, Raw: []byte(strconv.FormatInt(int64(val), 10))}, nil
	case int64:
		return Encoded{Kind: KindInt, Raw: []byte(strconv.FormatInt(val, 10))}, nil
	case float64:
		return Encoded{Kind: KindFloat, Raw: []byte(strconv.FormatFloat(val, 'g', -1, 64))}, nil
	case string:
		return Encoded{Kind: KindText, Raw: []byte(val)}, nil
	case []byte:
		raw := make([]byte, len(val))
		copy(raw, val)
		return Encoded{Kind: KindBytes, Raw: raw}, nil
	case []any, map[string]any:
		raw, err := json.Marshal(val)
		if err != nil {
			return Encoded{}, fmt.Errorf("codec: marshal complex value: %w", err)
		}
		kind := KindList
		if _, ok := val.(map[string]any); ok {
			kind = KindMap
		}
		return Encoded{Kind: kind, Raw: raw}, nil
	default:
		return Encoded{}, fmt.Errorf("codec: unsupported value type %T", v)
	}
}

// Decode rehydrates an Encoded back into its Go shape.
func Decode(e Encoded) (any, error) {
	switch e.Kind {
	case KindNull:
		return nil, nil
	case KindBool:
		return strconv.ParseBool(string(e.Raw))
	case KindInt:
		return strconv.ParseInt(string(e.Raw), 10, 64)
	case KindFloat:
		return strconv.ParseFloat(string(e.Raw), 64)
	case KindText:
		return string(e.Raw), nil
	case KindBytes:
		raw := make([]byte, len(e.Raw))
		copy(raw, e.Raw)
		return raw, nil
	case KindList:
		var out []any
		if err := json.Unmarshal(e.Raw, &out); err != nil {
			return nil, fmt.Errorf("codec: unmarshal list: %w", err)
		}
		return repromoteNumbers(out).([]any), nil
	case KindMap:
		var out map[string]any
		if err := json.Unmarshal(e.Raw, &out); err != nil {
			return nil, fmt.Errorf("codec: unmarshal map: %w", err)
		}
		return repromoteNumbers(out).(map[string]any), nil
	default:
		return nil, fmt.Errorf("codec: unknown kind %d", e.Kind)
	}
}

// Promote parses a raw textual input (as arrives from a CLI argument or any
// other text-only caller) into the richest Go shape it can: "true"/"false"
// become bool, integers become int64, JSON objects/arrays become
// map[string]any/[]any. Anything else is returned unchanged as a string.
func Promote(text string) any {
	trimmed := strings.TrimSpace(text)
	switch trimmed {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	if (strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")) ||
		(strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]")) {
		var out any
		if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
			return normalizeJSON(out)
		}
	}
	return text
}

// normalizeJSON converts the generic any produced by encoding/json
// (map[string]interface{}, []interface{}, float64, ...) into the exact
// shapes Encode expects, recursively.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]any, len(val))
		for k, vv := range val {
			out[k] = normalizeJSON(vv)
		}
		return out
	case []interface{}:
		out := make([]any, len(val))
		for i, vv := range val {
			out[i] = normalizeJSON(vv)
		}
		return out
	default:
		return val
	}
}

// repromoteNumbers walks a structure json.Unmarshal produced into interface{}
// targets and turns every whole-valued float64 back into int64. encoding/json
// never hands back int64 for an interface{} target, so without this step
// every integer nested inside a decoded list or map would silently become a
// float on a round trip through Encode/Decode.
func repromoteNumbers(v any) any {
	switch val := v.(type) {
	case float64:
		if i := int64(val); float64(i) == val {
			return i
		}
		return val
	case map[string]any:
		for k, vv := range val {
			val[k] = repromoteNumbers(vv)
		}
		return val
	case []any:
		for i, vv := range val {
			val[i] = repromoteNumbers(vv)
		}
		return val
	default:
		return val
	}
}

// Stringify produces the text form of a value used for full-text indexing:
// the same canonical form Encode produces, rendered as a string.
func Stringify(v any) (string, error) {
	enc, err := Encode(v)
	if err != nil {
		return "", err
	}
	return string(enc.Raw), nil
}
