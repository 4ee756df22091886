// Package common holds process-wide helpers shared by the binaries: logger
// construction and build metadata.
package common

// Version is overridden at build time with -ldflags "-X ...common.Version=...".
var Version = "dev"

// PackageName is used as the namespace of exported metrics.
const PackageName = "nodewiring"
