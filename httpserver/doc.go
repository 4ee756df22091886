/*
Package httpserver serves the status API of a wiring node.

The API is read-mostly. It exposes the nodes known to the discovery
registry, the state of the trust worker and the public parts of the
current certificate generation. It also lets local services advertise
their own wiring endpoints through the discovery watcher.

# Routes

  - GET    /api/v1/nodes
  - GET    /api/v1/nodes/{nodeID}
  - GET    /api/v1/trust/state
  - GET    /api/v1/trust/{artifact}
  - POST   /api/v1/trust/refresh
  - GET    /api/v1/endpoints
  - POST   /api/v1/endpoints
  - DELETE /api/v1/endpoints/{wireID}

The private key is never served; requesting it answers 403.

# Operations

/livez, /readyz, /drain and /undrain drive load balancer health checks.
Shutdown drains first, then stops the API and metrics servers. Metrics
are served on a separate address; see package metrics.
*/
package httpserver
