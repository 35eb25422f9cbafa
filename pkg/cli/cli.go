package cli

import (
	"context"

	"github.com/urfave/cli/v3"
)

const version = "0.1.0"

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	cmd := &cli.Command{
		Name:    "engram",
		Usage:   "Persistent memory store for AI agent tools",
		Version: version,
		Commands: []*cli.Command{
			newCommand(),
			showCommand(),
			listCommand(),
			searchCommand(),
			updateCommand(),
			forgetCommand(),
			cleanupCommand(),
			exportCommand(),
			importCommand(),
			serveCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
