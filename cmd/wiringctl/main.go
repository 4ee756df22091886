package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/inaetics/node-wiring-go/api"
	"github.com/inaetics/node-wiring-go/api/clients"
	"github.com/inaetics/node-wiring-go/interfaces"
	"github.com/urfave/cli/v2"
)

var flagServerAddr = &cli.StringFlag{
	Name:  "server-addr",
	Value: "http://127.0.0.1:8080",
	Usage: "status API address of the node",
}
var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 10 * time.Second,
	Usage: "request timeout",
}
var flagWireID = &cli.StringFlag{
	Name:     "wire-id",
	Required: true,
	Usage:    "wire id of the endpoint",
}
var flagURL = &cli.StringFlag{
	Name:  "url",
	Usage: "transport URL of the endpoint",
}
var flagProperty = &cli.StringSliceFlag{
	Name:  "property",
	Usage: "additional endpoint property as key=value, may be repeated",
}

func main() {
	app := &cli.App{
		Name:  "wiringctl",
		Usage: "Inspect and drive a node wiring process through its status API",
		Flags: []cli.Flag{
			flagServerAddr,
			flagTimeout,
		},
		Commands: []*cli.Command{
			{
				Name:  "nodes",
				Usage: "list discovered nodes",
				Action: func(cCtx *cli.Context) error {
					nodes, err := newClient(cCtx).Nodes(cCtx.Context)
					if err != nil {
						return fmt.Errorf("could not list nodes: %w", err)
					}
					return printJSON(nodes)
				},
			},
			{
				Name:      "node",
				Usage:     "show one node",
				ArgsUsage: "<node id>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return errors.New("expected a node id")
					}
					node, err := newClient(cCtx).Node(cCtx.Context, cCtx.Args().First())
					if err != nil {
						return fmt.Errorf("could not get node: %w", err)
					}
					return printJSON(node)
				},
			},
			{
				Name:  "trust",
				Usage: "show the trust worker state",
				Action: func(cCtx *cli.Context) error {
					state, err := newClient(cCtx).TrustState(cCtx.Context)
					if err != nil {
						return fmt.Errorf("could not get trust state: %w", err)
					}
					return printJSON(state)
				},
			},
			{
				Name:      "artifact",
				Usage:     "print a public trust artifact",
				ArgsUsage: "<certificate|full-bundle|ca-certificate|public-key>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return errors.New("expected an artifact kind")
					}
					content, err := newClient(cCtx).TrustArtifact(cCtx.Context, interfaces.ArtifactKind(cCtx.Args().First()))
					if err != nil {
						return fmt.Errorf("could not get artifact: %w", err)
					}
					_, err = os.Stdout.Write(content)
					return err
				},
			},
			{
				Name:  "refresh",
				Usage: "force a certificate rotation",
				Action: func(cCtx *cli.Context) error {
					return newClient(cCtx).RefreshTrust(cCtx.Context)
				},
			},
			{
				Name:  "advertise",
				Usage: "advertise an own endpoint",
				Flags: []cli.Flag{flagWireID, flagURL, flagProperty},
				Action: func(cCtx *cli.Context) error {
					props, err := parseProperties(cCtx.StringSlice(flagProperty.Name))
					if err != nil {
						return err
					}
					if url := cCtx.String(flagURL.Name); url != "" {
						props[interfaces.WiringURLKey] = url
					}
					resp, err := newClient(cCtx).AddEndpoint(cCtx.Context, &api.EndpointRequest{
						WireID:     cCtx.String(flagWireID.Name),
						Properties: props,
					})
					if err != nil {
						return fmt.Errorf("could not advertise endpoint: %w", err)
					}
					return printJSON(resp)
				},
			},
			{
				Name:      "withdraw",
				Usage:     "stop advertising an own endpoint",
				ArgsUsage: "<wire id>",
				Action: func(cCtx *cli.Context) error {
					if cCtx.NArg() != 1 {
						return errors.New("expected a wire id")
					}
					return newClient(cCtx).RemoveEndpoint(cCtx.Context, cCtx.Args().First())
				},
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newClient(cCtx *cli.Context) api.StatusProvider {
	return clients.NewStatusClient(cCtx.String(flagServerAddr.Name), cCtx.Duration(flagTimeout.Name))
}

func parseProperties(values []string) (map[string]string, error) {
	props := make(map[string]string, len(values))
	for _, v := range values {
		key, value, ok := strings.Cut(v, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid property %q, want key=value", v)
		}
		props[strings.TrimSpace(key)] = value
	}
	return props, nil
}

func printJSON(v any) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
