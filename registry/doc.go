// Package registry keeps the in-memory directory of discovered nodes and the
// wiring endpoints they offer.
//
// The discovery watcher feeds the Registry through AddNode and RemoveNode.
// Endpoints are identified by their wire id: adding a node twice, or adding
// an endpoint under a wire id that is already known, changes nothing and
// notifies nobody. Removing endpoints never deletes the node entry itself.
//
// Components interested in endpoints register an
// interfaces.WiringEndpointListener together with an LDAP-style filter (see
// Filter). Filters see the endpoint properties plus the "zone" and "node"
// attributes of the owning node:
//
//	reg.RegisterListener("(&(zone=z1)(inaetics.wiring.http.url=https://*))", l)
//
// A new registration is immediately told about every matching endpoint
// already known. The local wiring admin registers with WithSelfRegistration
// and then only learns about removals.
//
// Listener callbacks run synchronously on the goroutine applying the
// mutation. They may call AddNode and RemoveNode (the change is queued) but
// must not register or unregister listeners. Other goroutines may, their
// registrations are queued behind the running dispatch.
package registry
