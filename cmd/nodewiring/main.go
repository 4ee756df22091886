package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/inaetics/node-wiring-go/api/cfssl"
	"github.com/inaetics/node-wiring-go/cmd/flags"
	"github.com/inaetics/node-wiring-go/config"
	"github.com/inaetics/node-wiring-go/cryptoutils"
	"github.com/inaetics/node-wiring-go/discovery"
	"github.com/inaetics/node-wiring-go/etcd"
	"github.com/inaetics/node-wiring-go/httpserver"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/inaetics/node-wiring-go/registry"
	"github.com/inaetics/node-wiring-go/storage"
	"github.com/inaetics/node-wiring-go/trustmanager"
	"github.com/urfave/cli/v2"
)

var flagAdvertise = &cli.StringSliceFlag{
	Name:  "advertise",
	Usage: "own endpoint to advertise as wireId=url, may be repeated",
}

var flagStatusMTLS = &cli.BoolFlag{
	Name:  "status-mtls",
	Value: false,
	Usage: "serve the status API over mutual TLS with the node's own certificate",
}

func main() {
	app := &cli.App{
		Name:  "nodewiring",
		Usage: "Keep a node's client certificate fresh and mirror the wiring discovery tree",
		Flags: append(append([]cli.Flag{
			flags.ConfigFileFlag,
			flags.EnvFileFlag,
			flagAdvertise,
			flagStatusMTLS,
			flags.LogServiceFlagFn("nodewiring"),
		}, flags.ConfigFlags...), flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	advertised, err := parseAdvertise(cCtx.StringSlice(flagAdvertise.Name))
	if err != nil {
		return err
	}

	loader := config.NewLoader(
		config.WithConfigFile(cCtx.String(flags.ConfigFileFlag.Name)),
		config.WithEnvFile(cCtx.String(flags.EnvFileFlag.Name)),
		config.WithOverrides(flags.ConfigOverrides(cCtx)),
	)
	cfg, err := loader.Load(logger)
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		return err
	}
	logger = logger.With("node", cfg.Discovery.NodeID, "zone", cfg.Discovery.Zone)

	// Trust
	codec, err := cryptoutils.NewDefaultCodec(cryptoutils.DefaultPersonalization)
	if err != nil {
		logger.Error("Failed to seed key generator", "err", err)
		return err
	}

	caClient := cfssl.NewClient(cfg.Trust.CAHost, cfg.Trust.CAPort, codec, cfg.Trust.CATimeout, logger)
	store := storage.NewFileStore(cfg.Trust.KeyStorage, logger)
	if err := store.EnsureStorageDir(); err != nil {
		logger.Error("Key storage unusable", "err", err, "dir", cfg.Trust.KeyStorage)
		return err
	}

	worker := trustmanager.NewWorker(trustmanager.Config{
		RefreshInterval: cfg.Trust.RefreshInterval,
		Threshold:       cfg.Trust.Threshold,
	}, codec, caClient, store, logger)
	reloader := trustmanager.NewTLSReloader(cfg.Trust.KeyStorage, worker, logger)

	// Discovery
	etcdHost, etcdPort := cfg.Discovery.EtcdHost, cfg.Discovery.EtcdPort
	if cfg.Discovery.SRVDomain != "" {
		srvCtx, srvCancel := context.WithTimeout(context.Background(), cfg.Discovery.EtcdTimeout)
		endpoints, err := etcd.ResolveSRV(srvCtx, cfg.Discovery.SRVDomain, "")
		srvCancel()
		if err != nil {
			logger.Error("Failed to locate etcd", "err", err, "domain", cfg.Discovery.SRVDomain)
			return err
		}
		etcdHost, etcdPort = endpoints[0].Host, endpoints[0].Port
		logger.Info("Located etcd through DNS", "endpoint", endpoints[0].String(), "candidates", len(endpoints))
	}

	reg := registry.New(logger)
	if _, err := reg.RegisterListener("", &logListener{log: logger.With("component", "wiring")}); err != nil {
		logger.Error("Failed to register wiring listener", "err", err)
		return err
	}
	etcdClient := etcd.NewClient(etcdHost, etcdPort, logger,
		etcd.WithRequestTimeout(cfg.Discovery.EtcdTimeout))
	watcher, err := discovery.NewWatcher(discovery.Config{
		Root:   cfg.Discovery.Root,
		Zone:   cfg.Discovery.Zone,
		NodeID: cfg.Discovery.NodeID,
		TTL:    cfg.Discovery.TTL,
	}, etcdClient, reg, logger)
	if err != nil {
		logger.Error("Failed to create discovery watcher", "err", err)
		return err
	}

	// Status API
	serverCfg := flags.ConfigureServer(cCtx, logger, cfg.HTTP.ListenAddr, cfg.HTTP.MetricsAddr)
	if cCtx.Bool(flagStatusMTLS.Name) {
		serverCfg.TLSConfig = reloader.ServerTLSConfig()
	}
	server, err := httpserver.New(serverCfg, httpserver.NewHandler(reg, worker, watcher, logger))
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker.Start(ctx)
	reloader.StartAsync()
	if err := watcher.Start(ctx); err != nil {
		logger.Error("Failed to start discovery watcher", "err", err)
		return err
	}
	for _, ep := range advertised {
		if err := watcher.AddOwnEndpoint(ctx, ep); err != nil {
			logger.Warn("Own endpoint not advertised yet", "err", err, "wireId", ep.WireID())
		}
	}
	server.RunInBackground()

	// Wait for termination signal
	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Node wiring is running, press Ctrl+C to stop")
	var runErr error
	select {
	case <-exit:
		logger.Info("Shutdown signal received")
	case <-worker.Done():
		runErr = worker.Err()
		logger.Error("Trust worker stopped", "err", runErr)
	}

	// Reverse start order
	server.Shutdown()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := watcher.Stop(stopCtx); err != nil {
		logger.Warn("Discovery watcher did not clean up", "err", err)
	}
	reg.Close()
	reloader.Stop()
	worker.Shutdown()
	cancel()

	logger.Info("Shutdown complete")

	if errors.Is(runErr, interfaces.ErrStorageUnavailable) {
		return cli.Exit(runErr.Error(), 2)
	}
	return runErr
}

// parseAdvertise turns wireId=url pairs into endpoint descriptions.
func parseAdvertise(values []string) ([]*interfaces.WiringEndpointDescription, error) {
	endpoints := make([]*interfaces.WiringEndpointDescription, 0, len(values))
	for _, v := range values {
		wireID, url, ok := strings.Cut(v, "=")
		wireID, url = strings.TrimSpace(wireID), strings.TrimSpace(url)
		if !ok || wireID == "" || url == "" {
			return nil, fmt.Errorf("invalid --%s value %q, want wireId=url", flagAdvertise.Name, v)
		}
		endpoints = append(endpoints, interfaces.NewWiringEndpointDescription(wireID, map[string]string{
			interfaces.WiringURLKey: url,
		}))
	}
	return endpoints, nil
}
