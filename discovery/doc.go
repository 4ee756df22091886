// Package discovery keeps the node registry in sync with the etcd v2
// discovery tree and advertises this node's own wiring endpoints there.
//
// Keys follow <root>/<zone>/<node>/<wire>. The value of a wire key holds the
// endpoint properties as a JSON object of strings.
package discovery
