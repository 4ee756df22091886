/*
Package clients provides the client library for the node wiring status API.

StatusClient implements api.StatusProvider over HTTP:

  - Nodes, Node - read the discovery registry
  - TrustState, TrustArtifact - inspect the current trust material
  - RefreshTrust - force a certificate rotation
  - AddEndpoint, RemoveEndpoint - manage the node's own wiring endpoints

# Example Usage

	client := clients.NewStatusClient("http://127.0.0.1:8080", 10*time.Second)

	nodes, err := client.Nodes(ctx)
	if err != nil {
	    return err
	}
	for _, n := range nodes {
	    fmt.Println(n.ZoneID, n.NodeID, n.WireIDs())
	}
*/
package clients
