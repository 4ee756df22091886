package discovery

import (
	"testing"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name string
		root string
		key  string
		want Key
	}{
		{"wire", "inaetics/discovery", "/inaetics/discovery/z1/n1/w1", Key{"z1", "n1", "w1"}},
		{"root with slashes", "/inaetics/discovery/", "inaetics/discovery/z1/n1/w1", Key{"z1", "n1", "w1"}},
		{"node directory", "inaetics/discovery", "/inaetics/discovery/z1/n1", Key{"z1", "n1", ""}},
		{"trailing segments", "inaetics/discovery", "/inaetics/discovery/z1/n1/w1/extra", Key{"z1", "n1", "w1"}},
		{"trailing slash", "inaetics/discovery", "/inaetics/discovery/z1/n1/w1/", Key{"z1", "n1", "w1"}},
		{"empty root", "", "/z1/n1/w1", Key{"z1", "n1", "w1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.root, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKey_Malformed(t *testing.T) {
	for _, key := range []string{
		"/inaetics/discovery",
		"/inaetics/discovery/z1",
		"/other/root/z1/n1/w1",
		"/inaetics/discoveryx/z1/n1/w1",
		"/inaetics/discovery//n1/w1",
		"/inaetics/discovery/z1//w1",
		"/inaetics/discovery/z1/n1//w1",
	} {
		t.Run(key, func(t *testing.T) {
			_, err := ParseKey("inaetics/discovery", key)
			assert.ErrorIs(t, err, interfaces.ErrMalformedKey)
		})
	}
}

func TestKeyBuilders(t *testing.T) {
	assert.Equal(t, "/inaetics/discovery/z1/n1", NodeKey("inaetics/discovery", "z1", "n1"))
	assert.Equal(t, "/inaetics/discovery/z1/n1/w1", WireKey("/inaetics/discovery/", "z1", "n1", "w1"))

	k, err := ParseKey("inaetics/discovery", WireKey("inaetics/discovery", "z1", "n1", "w1"))
	require.NoError(t, err)
	assert.Equal(t, Key{"z1", "n1", "w1"}, k)
}
