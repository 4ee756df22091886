package registry

import (
	"testing"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Match(t *testing.T) {
	attrs := map[string]string{
		"zone":                   "z1",
		"node":                   "n1",
		interfaces.WireIDKey:     "w1",
		interfaces.WiringURLKey:  "https://10.0.0.1:8443/wire",
		"service.ranking":        "10",
		"description":            "Primary  Wire",
		"Case.Sensitive.Example": "yes",
	}

	tests := []struct {
		filter string
		want   bool
	}{
		{"", true},
		{"   ", true},
		{"(zone=z1)", true},
		{"(zone=z2)", false},
		{"( zone = z1)", false},
		{"(missing=x)", false},
		{"(zone=*)", true},
		{"(missing=*)", false},
		{"(inaetics.wiring.http.url=https://*)", true},
		{"(inaetics.wiring.http.url=http://*)", false},
		{"(inaetics.wiring.http.url=*:8443*)", true},
		{"(inaetics.wiring.http.url=*/wire)", true},
		{"(inaetics.wiring.http.url=https://*10.0*wire)", true},
		{"(inaetics.wiring.http.url=https://*wire*10.0)", false},
		{"(&(zone=z1)(node=n1))", true},
		{"(&(zone=z1)(node=n2))", false},
		{"(|(zone=z2)(node=n1))", true},
		{"(|(zone=z2)(node=n2))", false},
		{"(!(zone=z2))", true},
		{"(!(zone=z1))", false},
		{"(&(zone=z1)(|(node=n9)(!(missing=*))))", true},
		{"(service.ranking>=5)", true},
		{"(service.ranking>=50)", false},
		{"(service.ranking<=10)", true},
		{"(service.ranking<=9)", false},
		{"(zone>=z0)", true},
		{"(description~=primarywire)", true},
		{"(description~=secondary)", false},
		{"(case.sensitive.example=yes)", true},
	}

	for _, tt := range tests {
		t.Run(tt.filter, func(t *testing.T) {
			f, err := ParseFilter(tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Match(attrs))
		})
	}
}

func TestFilter_Escapes(t *testing.T) {
	f, err := ParseFilter(`(name=a\*b\(c\))`)
	require.NoError(t, err)

	assert.True(t, f.Match(map[string]string{"name": "a*b(c)"}))
	assert.False(t, f.Match(map[string]string{"name": "axb(c)"}))
}

func TestFilter_Invalid(t *testing.T) {
	for _, s := range []string{
		"zone=z1",
		"(zone=z1",
		"(zone=z1))",
		"(=z1)",
		"(zone)",
		"(&)",
		"(|)",
		"(!)",
		"(zone<z1)",
		"(zone=a(b)",
		`(zone=a\`,
		"(zone=z1)(node=n1)",
	} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseFilter(s)
			assert.ErrorIs(t, err, interfaces.ErrInvalidFilter)
		})
	}
}

func TestFilter_String(t *testing.T) {
	f := MustParseFilter("  (zone=z1) ")
	assert.Equal(t, "(zone=z1)", f.String())

	var nilFilter *Filter
	assert.True(t, nilFilter.Match(nil))
	assert.Equal(t, "", nilFilter.String())
}
