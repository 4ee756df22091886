// Package config loads the node wiring configuration.
//
// Sources, later ones winning: built-in defaults, a YAML file, NODEWIRING_
// environment variables (NODEWIRING_TRUST_CA_HOST for trust.ca.host) and
// command line overrides. Numeric and duration values that are missing or
// malformed fall back to their default with a warning.
package config
