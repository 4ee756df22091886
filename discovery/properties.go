package discovery

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/inaetics/node-wiring-go/interfaces"
)

// MarshalProperties renders endpoint properties as a JSON object with sorted
// keys. Keys and values are kept byte for byte.
func MarshalProperties(props map[string]string) (string, error) {
	if props == nil {
		props = map[string]string{}
	}
	b, err := json.Marshal(props)
	if err != nil {
		return "", fmt.Errorf("%w: %w", interfaces.ErrEncoding, err)
	}
	return string(b), nil
}

// UnmarshalProperties parses a value written by MarshalProperties. An empty
// value decodes to no properties.
func UnmarshalProperties(value string) (map[string]string, error) {
	props := map[string]string{}
	if strings.TrimSpace(value) == "" {
		return props, nil
	}
	if err := json.Unmarshal([]byte(value), &props); err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrEncoding, err)
	}
	return props, nil
}
