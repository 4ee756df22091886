package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/inaetics/node-wiring-go/api/cfssl"
	"github.com/inaetics/node-wiring-go/cmd/flags"
	"github.com/inaetics/node-wiring-go/kms"
	"github.com/urfave/cli/v2"
)

var flagListenAddr = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8888",
	Usage: "address to serve the CFSSL API on",
}
var flagSeed = &cli.StringFlag{
	Name:  "seed",
	Usage: "hex-encoded seed of at least 32 bytes; a random CA key is used when empty",
}
var flagCommonName = &cli.StringFlag{
	Name:  "common-name",
	Value: "INAETICS development CA",
	Usage: "common name of the CA certificate",
}
var flagLeafValidity = &cli.DurationFlag{
	Name:  "leaf-validity",
	Value: kms.DefaultLeafValidity,
	Usage: "lifetime of issued certificates",
}

func main() {
	app := &cli.App{
		Name:  "devca",
		Usage: "Serve a CFSSL-compatible certificate authority for development",
		Flags: []cli.Flag{
			flagListenAddr,
			flagSeed,
			flagCommonName,
			flagLeafValidity,
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogUidFlag,
			flags.LogServiceFlagFn("devca"),
		},
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			var ca *kms.LocalCA
			var err error
			if seedHex := cCtx.String(flagSeed.Name); seedHex != "" {
				seed, decodeErr := hex.DecodeString(seedHex)
				if decodeErr != nil {
					return fmt.Errorf("invalid seed: %w", decodeErr)
				}
				ca, err = kms.NewLocalCAFromSeed(seed, cCtx.String(flagCommonName.Name))
			} else {
				ca, err = kms.NewLocalCA(cCtx.String(flagCommonName.Name))
			}
			if err != nil {
				logger.Error("Failed to create CA", "err", err)
				return err
			}
			ca.WithLeafValidity(cCtx.Duration(flagLeafValidity.Name))

			mux := chi.NewRouter()
			mux.Use(func(next http.Handler) http.Handler {
				return httplogger.LoggingMiddlewareSlog(logger, next)
			})
			cfssl.NewHandler(ca, logger).RegisterRoutes(mux)

			srv := &http.Server{
				Addr:              cCtx.String(flagListenAddr.Name),
				Handler:           mux,
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				logger.Info("Starting development CA", "listenAddress", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("CA server failed", "err", err)
				}
			}()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)
			<-exit
			logger.Info("Shutdown signal received")

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
