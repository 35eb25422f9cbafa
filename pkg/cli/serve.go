package cli

import (
	"context"

	server "github.com/m-mizutani/engram/pkg/service/mcp"
	"github.com/m-mizutani/engram/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var cfg config

	return &cli.Command{
		Name:  "serve",
		Usage: "Expose the memory store as an MCP server over stdio",
		Flags: globalFlags(&cfg),
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setup(ctx)

			uc, repo, err := cfg.newUseCase(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			logging.From(ctx).Info("starting MCP server",
				"db_path", cfg.dbPath,
				"full_text", uc.FullTextEnabled(),
				"version", version)

			srv := server.New(uc, version)
			if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil {
				return goerr.Wrap(err, "MCP server terminated")
			}

			return nil
		},
	}
}
