package discovery

import (
	"testing"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProperties_RoundTrip(t *testing.T) {
	props := map[string]string{
		interfaces.WireIDKey:    "9f0c6a5e-7b7c-4c1e-9d1f-3f2a1b0c4d5e",
		interfaces.WiringURLKey: "https://10.0.0.1:8443/wiring",
		"description":           `say "hi" twice`,
		"port":                  "8443",
		"x-y":                   "a",
		"padded":                "007",
		"negzero":               "-0",
		"cost":                  "$HOME",
		"multi line":            "one\ntwo = three",
		"":                      "empty key",
	}

	value, err := MarshalProperties(props)
	require.NoError(t, err)
	assert.Contains(t, value, `"inaetics.wiring.http.url":"https://10.0.0.1:8443/wiring"`)

	got, err := UnmarshalProperties(value)
	require.NoError(t, err)
	assert.Equal(t, props, got)
}

func TestProperties_SortedKeys(t *testing.T) {
	value, err := MarshalProperties(map[string]string{"b": "2", "a": "1"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"1","b":"2"}`, value)
}

func TestProperties_Empty(t *testing.T) {
	value, err := MarshalProperties(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", value)

	got, err := UnmarshalProperties(value)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = UnmarshalProperties("")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestProperties_Malformed(t *testing.T) {
	for _, value := range []string{
		`url="https://10.0.0.1"`,
		`{"port": 8443}`,
		`["a", "b"]`,
		`{"url": "https://10.0.0.1"`,
	} {
		_, err := UnmarshalProperties(value)
		assert.ErrorIs(t, err, interfaces.ErrEncoding, value)
	}
}
