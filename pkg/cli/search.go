package cli

import (
	"context"

	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func searchCommand() *cli.Command {
	var (
		cfg   config
		query string
		limit int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "query",
			Aliases:     []string{"q"},
			Usage:       "Free-text query; omit to browse recent memories",
			Destination: &query,
		},
		&cli.IntFlag{
			Name:        "limit",
			Aliases:     []string{"l"},
			Usage:       "Maximum number of results (capped at 20)",
			Value:       memory.DefaultSearchLimit,
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "search",
		Usage: "Search memories by text and semantic similarity",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			results, err := uc.Search(ctx, memory.SearchInput{
				Query: query,
				Limit: int(limit),
			})
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, results)
		},
	}
}
