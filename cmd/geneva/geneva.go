package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/getlantern/geneva/v2"
	"github.com/getlantern/geneva/v2/internal/config"
	"github.com/getlantern/geneva/v2/internal/pipeline"
	"github.com/getlantern/geneva/v2/triggers"
)

func main() {
	configFlag := &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "read configuration from `FILE`",
	}

	app := &cli.App{
		Name:                   "geneva",
		Usage:                  "apply Geneva packet-manipulation strategies",
		UseShortOptionHandling: true,
		Commands: []*cli.Command{
			{
				Name:  "dot",
				Usage: "output the strategy graph as an SVG",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "verbose",
						Usage:   "also print the graph in dot format",
						Aliases: []string{"v"},
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Value:   "output.svg",
					},
				},
				ArgsUsage: "STRATEGY",
				Action:    dot,
			},
			{
				Name:  "intercept",
				Usage: "Run a strategy on live network traffic delivered through NFQUEUE",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "strategy",
						Usage: "strategy to apply, overriding the configuration",
					},
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "read the strategy from `FILE`",
					},
					&cli.UintFlag{
						Name:  "outbound-queue",
						Usage: "NFQUEUE number carrying outbound packets",
						Value: config.DefaultOutboundQueue,
					},
					&cli.UintFlag{
						Name:  "inbound-queue",
						Usage: "NFQUEUE number carrying inbound packets",
						Value: config.DefaultInboundQueue,
					},
					&cli.StringFlag{
						Name:  "log-level",
						Usage: "trace, debug, info, warn or error",
					},
				},
				Action: interceptCmd,
			},
			{
				Name:  "run-pcap",
				Usage: "Run a PCAP file through a strategy and output the resulting packets in a new PCAP",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:    "force",
						Usage:   "Overwrite destination file if it exists",
						Aliases: []string{"f"},
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Usage:   "describe every packet and its outputs",
						Aliases: []string{"v"},
					},
					&cli.StringFlag{
						Name:     "input",
						Aliases:  []string{"i"},
						Required: true,
					},
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Required: true,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "number of packets processed concurrently",
						Value: pipeline.DefaultWorkers,
					},
				},
				ArgsUsage: "STRATEGY",
				Action:    runPcap,
			},
			{
				Name:      "validate",
				Usage:     "validate that a strategy is well-formed and print its canonical form",
				ArgsUsage: "STRATEGY",
				Action: func(c *cli.Context) error {
					return validate(c, c.Args().First())
				},
			},
			{
				Name:  "strategies",
				Usage: "list the built-in published strategies",
				Action: func(c *cli.Context) error {
					for i, s := range geneva.Strategies {
						fmt.Fprintf(c.App.Writer, "%2d  %s\n", i, s)
					}
					return nil
				},
			},
			{
				Name:  "fields",
				Usage: "list the header fields that triggers and tamper actions accept",
				Action: func(c *cli.Context) error {
					fmt.Fprintf(c.App.Writer, "IP:  %s\n", strings.Join(triggers.IPFields(), " "))
					fmt.Fprintf(c.App.Writer, "TCP: %s\n", strings.Join(triggers.TCPFields(), " "))
					return nil
				},
			},
			{
				Name:  "config",
				Usage: "print the effective configuration",
				Flags: []cli.Flag{
					configFlag,
					&cli.StringFlag{
						Name:  "format",
						Usage: "yaml or json",
						Value: "yaml",
					},
				},
				Action: printConfig,
			},
		},
	}

	if err := app.RunContext(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func validate(c *cli.Context, s string) error {
	st, err := geneva.NewStrategy(s)
	if err != nil {
		return cli.Exit(fmt.Sprintf("invalid strategy: %v", err), 1)
	}

	fmt.Fprintln(c.App.Writer, st)

	return nil
}
