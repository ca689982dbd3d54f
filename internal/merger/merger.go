// Package merger combines per-chunk extraction payloads into one result.
package merger

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MergeError reports a payload that could not be combined. Callers treat it
// as transient unless marked otherwise.
type MergeError struct {
	ChunkIndex int
	Message    string
	Cause      error
}

func (e *MergeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("merge chunk %d: %s: %v", e.ChunkIndex, e.Message, e.Cause)
	}
	return fmt.Sprintf("merge chunk %d: %s", e.ChunkIndex, e.Message)
}

func (e *MergeError) Unwrap() error { return e.Cause }

// Merge combines next into acc and returns the result. Neither input is
// mutated. For a key present in both:
//   - two objects merge recursively
//   - two arrays concatenate, deduplicated by canonical encoding in order
//     of first appearance
//   - otherwise the accumulated value wins once populated; an unpopulated
//     slot (null or empty string) takes the incoming value
//
// Zero and false count as populated. The operation is associative, so
// folding chunks pairwise in order gives the same result as a single
// n-way merge.
func Merge(acc, next map[string]any) map[string]any {
	out := make(map[string]any, len(acc)+len(next))
	for k, v := range acc {
		out[k] = v
	}
	for k, nv := range next {
		av, exists := out[k]
		if !exists {
			out[k] = nv
			continue
		}
		ao, aIsObj := av.(map[string]any)
		no, nIsObj := nv.(map[string]any)
		if aIsObj && nIsObj {
			out[k] = Merge(ao, no)
			continue
		}
		aa, aIsArr := av.([]any)
		na, nIsArr := nv.([]any)
		if aIsArr && nIsArr {
			out[k] = mergeArrays(aa, na)
			continue
		}
		if !populated(av) && populated(nv) {
			out[k] = nv
		}
	}
	return out
}

// MergeAll folds the raw chunk payloads in index order. Each payload must
// decode to a JSON object.
func MergeAll(payloads []json.RawMessage) (map[string]any, error) {
	acc := map[string]any{}
	for i, raw := range payloads {
		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, &MergeError{ChunkIndex: i, Message: "payload is not a JSON object", Cause: err}
		}
		acc = Merge(acc, obj)
	}
	return acc, nil
}

func populated(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	default:
		return true
	}
}

func mergeArrays(a, b []any) []any {
	out := make([]any, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, v := range append(append([]any{}, a...), b...) {
		key := canonical(v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// canonical encodes a value with object keys sorted at every level so that
// equal values always produce the same bytes.
func canonical(v any) string {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, _ := json.Marshal(k)
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, canonical(t[k])...)
		}
		return string(append(buf, '}'))
	case []any:
		buf := []byte{'['}
		for i, e := range t {
			if i > 0 {
				buf = append(buf, ',')
			}
			buf = append(buf, canonical(e)...)
		}
		return string(append(buf, ']'))
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
