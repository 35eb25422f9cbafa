package cli

import (
	"context"
	"time"

	"github.com/m-mizutani/engram/pkg/model"
	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func updateCommand() *cli.Command {
	var (
		cfg        config
		subject    string
		content    string
		tags       []string
		ttlDays    float64
		expiresAt  string
		importance float64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "subject",
			Aliases:     []string{"s"},
			Usage:       "New subject",
			Destination: &subject,
		},
		&cli.StringFlag{
			Name:        "content",
			Aliases:     []string{"c"},
			Usage:       "New content",
			Destination: &content,
		},
		&cli.StringSliceFlag{
			Name:        "tag",
			Aliases:     []string{"t"},
			Usage:       "Replacement tag (repeatable)",
			Destination: &tags,
		},
		&cli.FloatFlag{
			Name:        "ttl-days",
			Usage:       "New retention window in days, relative to now",
			Destination: &ttlDays,
		},
		&cli.StringFlag{
			Name:        "expires-at",
			Usage:       "Absolute expiry timestamp (RFC3339); overrides --ttl-days",
			Destination: &expiresAt,
		},
		&cli.FloatFlag{
			Name:        "importance",
			Usage:       "New ranking weight between 0 and 1",
			Destination: &importance,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:      "update",
		Usage:     "Update fields of an existing memory",
		ArgsUsage: "<memory-id>",
		Flags:     flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			id := c.Args().First()
			if id == "" {
				return goerr.New("memory-id argument is required")
			}

			var input memory.UpdateInput
			if c.IsSet("subject") {
				input.Subject = &subject
			}
			if c.IsSet("content") {
				input.Content = &content
			}
			if c.IsSet("tag") {
				input.Tags = &tags
			}
			if c.IsSet("ttl-days") {
				input.TTLDays = &ttlDays
			}
			if c.IsSet("expires-at") {
				parsed, err := time.Parse(time.RFC3339, expiresAt)
				if err != nil {
					return goerr.Wrap(err, "invalid expires-at timestamp",
						goerr.V("value", expiresAt))
				}
				input.ExpiresAt = &parsed
			}
			if c.IsSet("importance") {
				input.Importance = &importance
			}

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			updated, err := uc.Update(ctx, model.MemoryID(id), input)
			if err != nil {
				return err
			}
			if updated == nil {
				return goerr.New("no such memory", goerr.V("id", id))
			}

			return printJSON(c.Root().Writer, updated)
		},
	}
}
