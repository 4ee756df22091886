// Package main (cmd/nodewiring) runs the node side of the wiring fabric.
//
// It keeps a CA-signed client certificate in the key storage directory,
// mirrors the etcd discovery tree into an in-memory node registry and
// advertises the node's own wiring endpoints. A status API exposes the
// registry and the trust state.
//
// Configuration comes from an optional YAML file, NODEWIRING_* environment
// variables and command line flags, in increasing order of precedence.
//
// The process exits with status 2 when the key storage directory becomes
// unusable.
//
// Example:
//
//	nodewiring --config=node.yaml \
//	    --ca-host=ca.local --ca-port=8888 \
//	    --etcd-host=10.0.0.2 --zone=zone-a \
//	    --advertise=echo=https://10.0.0.5:8443/echo
package main
