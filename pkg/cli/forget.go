package cli

import (
	"context"
	"fmt"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func forgetCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:      "forget",
		Usage:     "Delete a memory by ID",
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

			if err := uc.Delete(ctx, model.MemoryID(id)); err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "forgot %s\n", id)
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "cleanup",
		Usage: "Delete all expired memories",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			deleted, err := uc.Cleanup(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(c.Root().Writer, "deleted %d expired memories\n", deleted)
			return nil
		},
	}
}
