package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// flagEnv maps each global flag to the environment variable it overrides.
// Flags are applied to the environment before the configuration is read so
// that validation sees the final values.
var flagEnv = map[string]string{
	"realtime-url": "REALTIME_URL",
	"transport":    "REALTIME_TRANSPORT",
	"path":         "REALTIME_PATH",
	"user-id":      "AUTH_USER_ID",
	"token-file":   "AUTH_TOKEN_FILE",
	"api-url":      "API_BASE_URL",
	"database-url": "DATABASE_URL",
	"http-addr":    "HTTP_ADDR",
	"log-level":    "LOG_LEVEL",
	"log-format":   "LOG_FORMAT",
}

func main() {
	app := &cli.App{
		Name:        "ticketsync",
		Version:     version,
		Usage:       "realtime ticket synchronization client",
		Description: "Keeps a service desk ticket list and message feed in sync with the realtime push service",
		Flags: []cli.Flag{
			// REALTIME
			&cli.StringFlag{
				Name:    "realtime-url",
				Usage:   "Base URL of the realtime push service",
				Aliases: []string{"u"},
			},
			&cli.StringFlag{
				Name:  "transport",
				Usage: "Realtime transport: [websocket socketio]",
			},
			&cli.StringFlag{
				Name:  "path",
				Usage: "Handshake path on the realtime service",
			},
			// AUTH
			&cli.StringFlag{
				Name:  "user-id",
				Usage: "User whose room is joined. Resolved from the token when empty.",
			},
			&cli.StringFlag{
				Name:  "token-file",
				Usage: "File holding the bearer token, re-read on refresh",
			},
			// TICKET API
			&cli.StringFlag{
				Name:  "api-url",
				Usage: "Base URL of the paginated ticket API",
			},
			// STORE
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "Postgres URL for read state. In-memory when empty.",
			},
			// LOGGING
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Logging level: [debug info warn error]",
				Aliases: []string{"l"},
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Logging format: [json text]",
			},
		},
		Before: applyFlagOverrides,
		Commands: []*cli.Command{
			{
				Name:        "watch",
				Usage:       "Connect and log every realtime event",
				Description: "Connects to the realtime service, loads the first ticket page and logs messages, tickets and connection changes until interrupted",
				Action:      runWatch,
			},
			{
				Name:        "serve",
				Usage:       "Connect and serve the synchronized view over HTTP",
				Description: "Connects to the realtime service and exposes state, tickets and messages on the local view API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "http-addr",
						Usage: "Listen address of the view API",
					},
				},
				Before: applyFlagOverrides,
				Action: runServe,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("program shutdown", "error", err)
		os.Exit(1)
	}
}

// applyFlagOverrides exports every explicitly set flag to its environment
// variable.
func applyFlagOverrides(c *cli.Context) error {
	for flag, env := range flagEnv {
		if !c.IsSet(flag) {
			continue
		}
		if err := os.Setenv(env, c.String(flag)); err != nil {
			return err
		}
	}
	return nil
}
