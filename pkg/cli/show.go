package cli

import (
	"context"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func showCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "show",
		Usage:     "Show a memory by ID",
		ArgsUsage: "<memory-id>",
		Flags:     globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			id := c.Args().First()
			if id == "" {
				return goerr.New("memory-id argument is required")
			}

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			found, err := uc.Get(ctx, model.MemoryID(id))
			if err != nil {
				return err
			}
			if found == nil {
				return goerr.New("no such memory", goerr.V("id", id))
			}

			return printJSON(c.Root().Writer, found)
		},
	}
}
