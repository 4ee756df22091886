// Package main (cmd/wiringctl) is a command line client for the status API
// of a nodewiring process.
//
//	nodes                      list discovered nodes
//	node <id>                  show one node and its endpoints
//	trust                      show the trust worker state
//	artifact <kind>            print a public certificate artifact
//	refresh                    force a certificate rotation
//	advertise --wire-id --url  advertise an own endpoint
//	withdraw <wire id>         stop advertising an own endpoint
package main
