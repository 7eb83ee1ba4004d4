package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// SplitPath splits a dotted path ("user.address.city" or "items.0.name")
// into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// GetPath traverses root (a decoded value) following segments, where a
// segment against a map[string]any is a key lookup and a segment against a
// []any is parsed as an integer index. It reports false if any segment is
// missing, out of range, or the current value is not a mapping/sequence.
func GetPath(root any, segments []string) (any, bool) {
	cur := root
	for _, seg := range segments {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// SetPath returns a copy of root with the value at segments replaced by
// newVal, mutating nested maps/slices in place along the way. It fails if
// any intermediate segment does not exist or is not a mapping/sequence —
// patch never creates intermediate structure.
func SetPath(root any, segments []string, newVal any) (any, error) {
	if len(segments) == 0 {
		return newVal, nil
	}
	seg := segments[0]
	switch c := root.(type) {
	case map[string]any:
		if len(segments) == 1 {
			c[seg] = newVal
			return c, nil
		}
		child, ok := c[seg]
		if !ok {
			return nil, fmt.Errorf("codec: segment %q does not exist", seg)
		}
		updated, err := SetPath(child, segments[1:], newVal)
		if err != nil {
			return nil, err
		}
		c[seg] = updated
		return c, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(c) {
			return nil, fmt.Errorf("codec: segment %q is not a valid index", seg)
		}
		if len(segments) == 1 {
			c[idx] = newVal
			return c, nil
		}
		updated, err := SetPath(c[idx], segments[1:], newVal)
		if err != nil {
			return nil, err
		}
		c[idx] = updated
		return c, nil
	default:
		return nil, fmt.Errorf("codec: segment %q: parent is not a mapping or sequence", seg)
	}
}
