package canonical

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FuzzRound9 checks Round9 never panics and is idempotent
func FuzzRound9(f *testing.F) {
	f.Add(float64(1.234567890123))
	f.Add(float64(0.0))
	f.Add(float64(-999.999999999))
	f.Add(float64(1e10))

	f.Fuzz(func(t *testing.T, value float64) {
		_ = F9(value)

		rounded := Round9(value)
		roundedTwice := Round9(rounded)
		if rounded != roundedTwice && rounded == rounded {
			t.Errorf("Round9 not idempotent: %.9f != %.9f", rounded, roundedTwice)
		}
	})
}

// FuzzJSONBytes checks canonicalisation of arbitrary JSON documents
func FuzzJSONBytes(f *testing.F) {
	f.Add([]byte(`{"a":1,"b":2}`))
	f.Add([]byte(`{"nested":{"key":"value"}}`))
	f.Add([]byte(`[]`))
	f.Add([]byte(`null`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var obj any
		if err := json.Unmarshal(data, &obj); err != nil {
			return
		}

		first, err := JSONBytes(obj)
		if err != nil {
			return
		}
		var again any
		if err := json.Unmarshal(first, &again); err != nil {
			t.Fatalf("canonical output is not JSON: %v", err)
		}
		second, err := JSONBytes(again)
		if err != nil {
			t.Fatalf("re-canonicalising failed: %v", err)
		}
		if string(first) != string(second) {
			t.Errorf("not stable: %s != %s", first, second)
		}
	})
}

func TestFingerprintIgnoresKeyOrderAndFloatNoise(t *testing.T) {
	a := map[string]any{"x": 1.0000000001, "y": []float64{1, 2}}
	b := map[string]any{"y": []float64{1, 2}, "x": 1.0}

	fa, err := Fingerprint("forecast", a)
	require.NoError(t, err)
	fb, err := Fingerprint("forecast", b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	fc, err := Fingerprint("simulate_scenario", b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestJSONBytesSortsKeys(t *testing.T) {
	type req struct {
		Zeta  float64 `json:"zeta"`
		Alpha string  `json:"alpha"`
	}
	out, err := JSONBytes(req{Zeta: 0.1234567891234, Alpha: "a"})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":"a","zeta":0.123456789}`, string(out))
}

func TestHMACRoundTrip(t *testing.T) {
	key := []byte("journal-key")
	sig, err := SignHMAC(map[string]int{"k": 3}, key)
	require.NoError(t, err)

	payload, err := JSONBytes(map[string]int{"k": 3})
	require.NoError(t, err)
	assert.NoError(t, VerifyBytes(payload, sig, key))
	assert.ErrorIs(t, VerifyBytes([]byte(`{"k":4}`), sig, key), ErrInvalidSignature)
}
