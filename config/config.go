package config

import (
	"time"

	"github.com/google/uuid"
)

// Configuration keys.
const (
	KeyCAHost           = "trust.ca.host"
	KeyCAPort           = "trust.ca.port"
	KeyCATimeout        = "trust.ca.timeout"
	KeyKeyStorage       = "trust.key.storage"
	KeyRefreshInterval  = "trust.refresh.interval"
	KeyRefreshThreshold = "trust.refresh.threshold"

	KeyEtcdRoot    = "discovery.etcd.root"
	KeyEtcdHost    = "discovery.etcd.host"
	KeyEtcdPort    = "discovery.etcd.port"
	KeyEtcdTTL     = "discovery.etcd.ttl"
	KeyEtcdTimeout = "discovery.etcd.timeout"
	KeyEtcdSRV     = "discovery.etcd.srv"
	KeyZone        = "discovery.zone"
	KeyNode        = "discovery.node"

	KeyHTTPListen  = "http.listen"
	KeyHTTPMetrics = "http.metrics"
)

type Config struct {
	Trust     TrustConfig
	Discovery DiscoveryConfig
	HTTP      HTTPConfig
}

type TrustConfig struct {
	CAHost          string
	CAPort          int
	CATimeout       time.Duration
	KeyStorage      string
	RefreshInterval time.Duration
	Threshold       time.Duration
}

type DiscoveryConfig struct {
	Root        string
	EtcdHost    string
	EtcdPort    int
	TTL         time.Duration
	EtcdTimeout time.Duration
	// SRVDomain, when set, locates etcd through DNS SRV records and takes
	// precedence over EtcdHost and EtcdPort.
	SRVDomain string
	Zone      string
	NodeID    string
}

type HTTPConfig struct {
	ListenAddr  string
	MetricsAddr string
}

// Defaults returns the built-in configuration. Every call picks a new random
// node id.
func Defaults() Config {
	return Config{
		Trust: TrustConfig{
			CAHost:          "localhost",
			CAPort:          8888,
			CATimeout:       2 * time.Second,
			KeyStorage:      "/tmp/inaeticstrustmanager",
			RefreshInterval: 5 * time.Second,
			Threshold:       30 * time.Second,
		},
		Discovery: DiscoveryConfig{
			Root:        "inaetics/discovery",
			EtcdHost:    "127.0.0.1",
			EtcdPort:    4001,
			TTL:         30 * time.Second,
			EtcdTimeout: 10 * time.Second,
			Zone:        "inaetics-testing",
			NodeID:      uuid.NewString(),
		},
		HTTP: HTTPConfig{
			ListenAddr:  "127.0.0.1:8080",
			MetricsAddr: "127.0.0.1:8090",
		},
	}
}
