package cli

import (
	"context"

	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func newCommand() *cli.Command {
	var (
		cfg        config
		subject    string
		content    string
		tags       []string
		ttlDays    float64
		importance float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "subject",
			Aliases:     []string{"s"},
			Usage:       "Short subject line (max 160 chars)",
			Required:    true,
			Destination: &subject,
		},
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "Body of the memory",
			Required:    true,
			Destination: &content,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "Tag to attach (repeatable, max 32)",
			Destination: &tags,
		},
		&cli.FloatFlag{
			Name:        "ttl-days",
			Usage:       "Retention window in days",
			Destination: &ttlDays,
		},
		&cli.FloatFlag{
			Name:        "importance",
			Usage:       "Ranking weight between 0 and 1",
			Destination: &importance,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "new",
		Usage: "Store a new memory",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			input := memory.InsertInput{
				Subject: subject,
				Content: content,
				Tags:    tags,
			}
			if c.IsSet("ttl-days") {
				input.TTLDays = &ttlDays
			}
			if c.IsSet("importance") {
				input.Importance = &importance
			}

			stored, err := uc.Insert(ctx, input)
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, stored)
		},
	}
}
