package etcd

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startDNS serves records for the SRV name it is given and NXDOMAIN otherwise.
func startDNS(t *testing.T, name string, records []*dns.SRV) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			if r.Question[0].Name != name {
				m.Rcode = dns.RcodeNameError
			}
			for _, rec := range records {
				if m.Rcode != dns.RcodeSuccess {
					break
				}
				rec.Hdr = dns.RR_Header{Name: name, Rrtype: dns.TypeSRV, Class: dns.ClassINET, Ttl: 60}
				m.Answer = append(m.Answer, rec)
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestResolveSRV(t *testing.T) {
	addr := startDNS(t, "_etcd-client._tcp.example.org.", []*dns.SRV{
		{Priority: 20, Weight: 10, Port: 2379, Target: "etcd-c.example.org."},
		{Priority: 10, Weight: 5, Port: 2379, Target: "etcd-b.example.org."},
		{Priority: 10, Weight: 50, Port: 4001, Target: "etcd-a.example.org."},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	endpoints, err := ResolveSRV(ctx, "example.org", addr)
	require.NoError(t, err)
	require.Len(t, endpoints, 3)

	assert.Equal(t, "etcd-a.example.org:4001", endpoints[0].String())
	assert.Equal(t, "etcd-b.example.org", endpoints[1].Host)
	assert.Equal(t, 2379, endpoints[1].Port)
	assert.Equal(t, "etcd-c.example.org", endpoints[2].Host)
}

func TestResolveSRV_NoRecords(t *testing.T) {
	addr := startDNS(t, "_etcd-client._tcp.example.org.", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := ResolveSRV(ctx, "example.org.", addr)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	_, err = ResolveSRV(ctx, "other.org", addr)
	assert.ErrorIs(t, err, interfaces.ErrStoreUnreachable)
}
