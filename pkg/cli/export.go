package cli

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/m-mizutani/engram/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func exportCommand() *cli.Command {
	var (
		cfg    config
		output string
		format string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "Output file path; defaults to stdout",
			Destination: &output,
		},
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "Output format (json or yaml)",
			Value:       "json",
			Destination: &format,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export all memories in stable backup order",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			memories, err := uc.Export(ctx)
			if err != nil {
				return err
			}

			w := io.Writer(c.Root().Writer)
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return goerr.Wrap(err, "failed to create output file",
						goerr.V("path", output))
				}
				defer f.Close()
				w = f
			}

			switch format {
			case "json":
				encoder := json.NewEncoder(w)
				encoder.SetIndent("", "  ")
				if err := encoder.Encode(memories); err != nil {
					return goerr.Wrap(err, "failed to encode export")
				}
			case "yaml":
				if err := yaml.NewEncoder(w).Encode(memories); err != nil {
					return goerr.Wrap(err, "failed to encode export")
				}
			default:
				return goerr.New("unsupported format", goerr.V("format", format))
			}

			return nil
		},
	}
}

func importCommand() *cli.Command {
	var (
		cfg    config
		input  string
		format string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Input file path",
			Required:    true,
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "format",
			Aliases:     []string{"f"},
			Usage:       "Input format (json or yaml)",
			Value:       "json",
			Destination: &format,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "import",
		Usage: "Import memories from a backup file in one transaction",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			raw, err := os.ReadFile(input)
			if err != nil {
				return goerr.Wrap(err, "failed to read input file", goerr.V("path", input))
			}

			var items []memory.ImportItem
			switch format {
			case "json":
				if err := json.Unmarshal(raw, &items); err != nil {
					return goerr.Wrap(err, "failed to parse import file")
				}
			case "yaml":
				if err := yaml.Unmarshal(raw, &items); err != nil {
					return goerr.Wrap(err, "failed to parse import file")
				}
			default:
				return goerr.New("unsupported format", goerr.V("format", format))
			}

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			imported, err := uc.Import(ctx, items)
			if err != nil {
				return err
			}

			return printJSON(c.Root().Writer, map[string]int{"imported": imported})
		},
	}
}
