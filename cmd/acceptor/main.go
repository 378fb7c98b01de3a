package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/fix-session-engine/internal/acceptorapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "acceptor",
		Usage: "Accepts FIX sessions from counterparties",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Value: 9876,
				Usage: "The TCP port to accept FIX connections on",
			},
			&cli.IntFlag{
				Name:  "http-port",
				Value: 3000,
				Usage: "The port serving WebSocket connections at /fix and metrics at /metrics",
			},
		},
		Action: func(cCtx *cli.Context) error {
			port := cCtx.Int("port")
			httpPort := cCtx.Int("http-port")
			return acceptorapp.Run(port, httpPort)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
