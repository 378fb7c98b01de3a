package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/fix-session-engine/internal/initiatorapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "initiator",
		Usage: "Initiates and maintains a FIX session with a counterparty",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server-host",
				Value: "localhost",
				Usage: "The host on which the acceptor is accessible",
			},
			&cli.IntFlag{
				Name:  "server-port",
				Value: 9876,
				Usage: "The port the acceptor is listening on (its HTTP port when TRANSPORT=ws)",
			},
			&cli.IntFlag{
				Name:  "metrics-port",
				Value: 0,
				Usage: "The port to expose /metrics on, disabled when 0",
			},
		},
		Action: func(cCtx *cli.Context) error {
			host := cCtx.String("server-host")
			port := cCtx.Int("server-port")
			metricsPort := cCtx.Int("metrics-port")
			return initiatorapp.Run(host, port, metricsPort)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
