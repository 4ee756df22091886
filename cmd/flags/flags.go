package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/inaetics/node-wiring-go/api"
	"github.com/inaetics/node-wiring-go/common"
	"github.com/inaetics/node-wiring-go/config"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, listenAddr, metricsAddr string) *api.HTTPServerConfig {
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// ConfigOverrides maps the configuration flags that were set explicitly to
// their configuration keys. Unset flags are left out so file and environment
// values still apply.
func ConfigOverrides(cCtx *cli.Context) map[string]any {
	overrides := map[string]any{}
	for _, f := range ConfigFlags {
		name := f.Names()[0]
		if !cCtx.IsSet(name) {
			continue
		}
		overrides[configKeys[name]] = cCtx.Value(name)
	}
	return overrides
}

var configKeys = map[string]string{
	CAHostFlag.Name:           config.KeyCAHost,
	CAPortFlag.Name:           config.KeyCAPort,
	KeyStorageFlag.Name:       config.KeyKeyStorage,
	RefreshIntervalFlag.Name:  config.KeyRefreshInterval,
	RefreshThresholdFlag.Name: config.KeyRefreshThreshold,
	EtcdRootFlag.Name:         config.KeyEtcdRoot,
	EtcdHostFlag.Name:         config.KeyEtcdHost,
	EtcdPortFlag.Name:         config.KeyEtcdPort,
	EtcdTTLFlag.Name:          config.KeyEtcdTTL,
	EtcdSRVFlag.Name:          config.KeyEtcdSRV,
	ZoneFlag.Name:             config.KeyZone,
	NodeFlag.Name:             config.KeyNode,
	ListenAddrFlag.Name:       config.KeyHTTPListen,
	MetricsAddrFlag.Name:      config.KeyHTTPMetrics,
}

var ConfigFileFlag = &cli.StringFlag{
	Name:    "config",
	Aliases: []string{"c"},
	Usage:   "YAML configuration file",
}

var EnvFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Usage: "dotenv file with NODEWIRING_ variables",
}

var CAHostFlag = &cli.StringFlag{
	Name:  "ca-host",
	Usage: "CFSSL certificate authority host",
}
var CAPortFlag = &cli.StringFlag{
	Name:  "ca-port",
	Usage: "CFSSL certificate authority port",
}
var KeyStorageFlag = &cli.StringFlag{
	Name:  "key-storage",
	Usage: "directory holding the node's key material",
}
var RefreshIntervalFlag = &cli.StringFlag{
	Name:  "refresh-interval",
	Usage: "time between trust checks, in seconds or as a duration",
}
var RefreshThresholdFlag = &cli.StringFlag{
	Name:  "refresh-threshold",
	Usage: "rotate certificates expiring within this window",
}
var EtcdRootFlag = &cli.StringFlag{
	Name:  "etcd-root",
	Usage: "root of the discovery tree",
}
var EtcdHostFlag = &cli.StringFlag{
	Name:  "etcd-host",
	Usage: "etcd host",
}
var EtcdPortFlag = &cli.StringFlag{
	Name:  "etcd-port",
	Usage: "etcd port",
}
var EtcdTTLFlag = &cli.StringFlag{
	Name:  "etcd-ttl",
	Usage: "TTL of advertised discovery keys",
}
var EtcdSRVFlag = &cli.StringFlag{
	Name:  "etcd-srv",
	Usage: "DNS domain to look up etcd SRV records in, overrides etcd-host and etcd-port",
}
var ZoneFlag = &cli.StringFlag{
	Name:  "zone",
	Usage: "discovery zone of this node",
}
var NodeFlag = &cli.StringFlag{
	Name:  "node",
	Usage: "node id, random when unset",
}
var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Usage: "address to listen on for the status API",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Usage: "address to listen on for Prometheus metrics",
}

// ConfigFlags override configuration file and environment values.
var ConfigFlags = []cli.Flag{
	CAHostFlag,
	CAPortFlag,
	KeyStorageFlag,
	RefreshIntervalFlag,
	RefreshThresholdFlag,
	EtcdRootFlag,
	EtcdHostFlag,
	EtcdPortFlag,
	EtcdTTLFlag,
	EtcdSRVFlag,
	ZoneFlag,
	NodeFlag,
	ListenAddrFlag,
	MetricsAddrFlag,
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
}
