package workflow

import (
	"fmt"
	"strconv"
)

// State is the open key/value bag free-standing steps share across one
// pipeline run. It is owned by a single run and is not safe for concurrent
// use.
type State map[string]any

// String returns the value at key as a string.
func (s State) String(key string) (string, bool) {
	v, ok := s[key]
	if !ok {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case fmt.Stringer:
		return t.String(), true
	default:
		return fmt.Sprint(t), true
	}
}

// Int returns the value at key as an int. Strings are parsed, so values
// decoded from JSON or CLI flags are accepted.
func (s State) Int(key string) (int, bool) {
	v, ok := s[key]
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case int:
		return t, true
	case int32:
		return int(t), true
	case int64:
		return int(t), true
	case float64:
		if t != float64(int(t)) {
			return 0, false
		}
		return int(t), true
	case string:
		n, err := strconv.Atoi(t)
		if err != nil {
			return 0, false
		}
		return n, true
	default:
		return 0, false
	}
}

// Set stores value at key.
func (s State) Set(key string, value any) {
	s[key] = value
}

// Delete removes key. Deleting a missing key is a no-op.
func (s State) Delete(key string) {
	delete(s, key)
}
