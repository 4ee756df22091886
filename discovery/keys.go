package discovery

import (
	"fmt"
	"path"
	"strings"

	"github.com/inaetics/node-wiring-go/interfaces"
)

// Key is a parsed discovery key. Wire is empty for a node directory.
type Key struct {
	Zone string
	Node string
	Wire string
}

// ParseKey splits key, which must live below root, into zone, node and wire.
// A key naming only a node directory is valid and has an empty Wire.
// Segments below the wire are ignored.
func ParseKey(root, key string) (Key, error) {
	root = strings.Trim(root, "/")
	rel := strings.Trim(key, "/")
	if root != "" {
		if !strings.HasPrefix(rel, root+"/") {
			return Key{}, fmt.Errorf("%w: %q is not below %q", interfaces.ErrMalformedKey, key, root)
		}
		rel = strings.TrimPrefix(rel, root+"/")
	}

	parts := strings.Split(rel, "/")
	if len(parts) < 2 {
		return Key{}, fmt.Errorf("%w: %q", interfaces.ErrMalformedKey, key)
	}

	k := Key{Zone: parts[0], Node: parts[1]}
	if len(parts) > 2 {
		k.Wire = parts[2]
	}
	if k.Zone == "" || k.Node == "" || (len(parts) > 2 && k.Wire == "") {
		return Key{}, fmt.Errorf("%w: %q has empty segments", interfaces.ErrMalformedKey, key)
	}
	return k, nil
}

// NodeKey is the directory holding every wire of node.
func NodeKey(root, zone, node string) string {
	return path.Join("/", root, zone, node)
}

// WireKey is the key advertising one wire of node.
func WireKey(root, zone, node, wire string) string {
	return path.Join("/", root, zone, node, wire)
}
