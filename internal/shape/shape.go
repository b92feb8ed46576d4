// Package shape normalizes list responses whose layout varies between
// server builds: a bare array, or an object holding the array under one of
// several keys.
package shape

import (
	"bytes"
	"encoding/json"
	"fmt"

	apperrors "github.com/labtrack/labtrack-client/pkg/errors"
)

// ListKeys are probed in order on object responses.
var ListKeys = []string{"items", "list", "records"}

// List extracts a sequence of T from raw. It returns a shape-mismatch error
// (never a panic) when no sequence can be found; callers treat that as an
// empty result.
func List[T any](raw json.RawMessage) ([]T, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, apperrors.ShapeMismatch("response data is empty")
	}

	switch trimmed[0] {
	case '[':
		return decode[T](trimmed)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return []T{}, apperrors.ShapeMismatch(err.Error())
		}
		for _, key := range ListKeys {
			v, ok := obj[key]
			if !ok {
				continue
			}
			v = bytes.TrimSpace(v)
			if len(v) == 0 || v[0] != '[' {
				continue
			}
			return decode[T](v)
		}
		return []T{}, apperrors.ShapeMismatch(fmt.Sprintf("no list under any of %v", ListKeys))
	default:
		return []T{}, apperrors.ShapeMismatch("response data is neither a list nor an object")
	}
}

// Total returns an explicit total count carried next to the list, if the
// server sent one.
func Total(raw json.RawMessage) (int, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return 0, false
	}
	var obj struct {
		Total *int `json:"total"`
	}
	if err := json.Unmarshal(trimmed, &obj); err != nil || obj.Total == nil {
		return 0, false
	}
	return *obj.Total, true
}

func decode[T any](arr []byte) ([]T, error) {
	out := []T{}
	if err := json.Unmarshal(arr, &out); err != nil {
		return []T{}, apperrors.ShapeMismatch(err.Error())
	}
	return out, nil
}
