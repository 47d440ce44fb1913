// Package canonical produces stable byte encodings of analysis requests so
// that equal requests map to equal fingerprints across processes.
//
// Rules:
//   - Floats rounded to 9 decimal places
//   - Object keys sorted alphabetically
//   - No whitespace
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// F9 formats a float64 to exactly 9 decimal places.
//
// Example:
//
//	F9(1.23456789012345) // returns "1.234567890"
//	F9(0.5)              // returns "0.500000000"
func F9(x float64) string {
	return strconv.FormatFloat(x, 'f', 9, 64)
}

// Round9 rounds a float64 to 9 decimal places. Values too large to carry
// nine decimals are returned unchanged.
func Round9(x float64) float64 {
	const factor = 1e9
	if math.IsNaN(x) || math.IsInf(x, 0) || math.Abs(x) > 1e9 {
		return x
	}
	return math.Round(x*factor) / factor
}

// JSONBytes encodes v as canonical JSON. v is first marshaled with
// encoding/json, so struct tags apply; the result is then decoded into a
// generic tree, floats are rounded with Round9, and the tree re-encoded
// with sorted keys.
func JSONBytes(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}

	normalized, err := normalize(tree)
	if err != nil {
		return nil, err
	}
	// encoding/json sorts map keys
	return json.Marshal(normalized)
}

func normalize(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			t[k] = n
		}
		return t, nil
	case []any:
		for i, child := range t {
			n, err := normalize(child)
			if err != nil {
				return nil, err
			}
			t[i] = n
		}
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, fmt.Errorf("canonical number %q: %w", t, err)
		}
		if r := Round9(f); r != 0 {
			return r, nil
		}
		return 0.0, nil // drop negative zero
	default:
		return v, nil
	}
}

// Fingerprint returns the hex SHA-256 of "op|" followed by the canonical
// JSON of v.
func Fingerprint(op string, v any) (string, error) {
	payload, err := JSONBytes(v)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(op))
	h.Write([]byte{'|'})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil)), nil
}
