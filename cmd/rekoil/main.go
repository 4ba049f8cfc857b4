package main

import (
	"context"
	"log"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"
)

const (
	configKey      = "config"
	heapsKey       = "heaps"
	metricsAddrKey = "metrics-addr"
	verboseKey     = "verbose"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := &cli.Command{
		Name:  "rekoil",
		Usage: "Reactive extrema tracking demos",
		Commands: []*cli.Command{
			{
				Name:  "stream",
				Usage: "Stream random walks into series sharing one axis",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    configKey,
						Aliases: []string{"c"},
						Usage:   "YAML file describing the series",
					},
					&cli.BoolFlag{
						Name:  heapsKey,
						Usage: "Print the axis heaps after the run",
					},
					&cli.StringFlag{
						Name:  metricsAddrKey,
						Usage: "Serve Prometheus metrics on this address while streaming",
					},
					&cli.BoolFlag{
						Name:  verboseKey,
						Usage: "Log every propagation pass",
					},
				},
				Action: stream,
			},
		},
	}
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
