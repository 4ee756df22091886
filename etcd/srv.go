package etcd

import (
	"context"
	"fmt"
	"net"
	"sort"
	"strconv"
	"strings"

	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/miekg/dns"
)

// SRVService is the service label etcd advertises its client endpoints under.
const SRVService = "_etcd-client._tcp"

// fallbackNameserver is used when resolv.conf cannot be read.
const fallbackNameserver = "127.0.0.53:53"

// Endpoint is one etcd client endpoint found through DNS.
type Endpoint struct {
	Host     string
	Port     int
	Priority uint16
	Weight   uint16
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ResolveSRV looks up the SRV records of _etcd-client._tcp.<domain> and
// returns the endpoints ordered by priority, then by descending weight.
// An empty nameserver means the first one listed in /etc/resolv.conf.
func ResolveSRV(ctx context.Context, domain, nameserver string) ([]Endpoint, error) {
	if nameserver == "" {
		nameserver = systemNameserver()
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(SRVService+"."+strings.Trim(domain, ".")), dns.TypeSRV)
	m.RecursionDesired = true

	c := new(dns.Client)
	in, _, err := c.ExchangeContext(ctx, m, nameserver)
	if err != nil {
		return nil, fmt.Errorf("%w: srv lookup for %s: %w", interfaces.ErrStoreUnreachable, domain, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%w: srv lookup for %s: %s", interfaces.ErrStoreUnreachable, domain, dns.RcodeToString[in.Rcode])
	}

	endpoints := make([]Endpoint, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if srv, ok := answer.(*dns.SRV); ok {
			endpoints = append(endpoints, Endpoint{
				Host:     strings.TrimSuffix(srv.Target, "."),
				Port:     int(srv.Port),
				Priority: srv.Priority,
				Weight:   srv.Weight,
			})
		}
	}
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("%w: no srv records for %s", interfaces.ErrNotFound, domain)
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		if endpoints[i].Priority != endpoints[j].Priority {
			return endpoints[i].Priority < endpoints[j].Priority
		}
		return endpoints[i].Weight > endpoints[j].Weight
	})
	return endpoints, nil
}

func systemNameserver() string {
	conf, err := dns.ClientConfigFromFile("/etc/resolv.conf")
	if err != nil || len(conf.Servers) == 0 {
		return fallbackNameserver
	}
	return net.JoinHostPort(conf.Servers[0], conf.Port)
}
