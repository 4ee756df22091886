/*
Package api holds the wire types and server configuration shared by the node
wiring HTTP surfaces.

It is organized into subpackages:

 1. cfssl - client for a CFSSL-compatible signing service, plus a handler
    serving the same API from an in-process CA for development and tests
 2. clients - client library for the node status API

# Status API

The status API is served by the httpserver package:

  - GET /api/v1/nodes - nodes known to the discovery registry
  - GET /api/v1/nodes/{nodeID} - one node with its wiring endpoints
  - GET /api/v1/trust/state - trust worker state, last rotation and last error
  - GET /api/v1/trust/{artifact} - current certificate, full bundle, CA certificate or public key
  - POST /api/v1/trust/refresh - rekey on the next trust cycle
  - GET /api/v1/endpoints - own wiring endpoints
  - POST /api/v1/endpoints - advertise an own wiring endpoint
  - DELETE /api/v1/endpoints/{wireID} - stop advertising an own wiring endpoint

The private key is never served.
*/
package api
