package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/dispatch/internal"
	"github.com/starford/dispatch/internal/mcpserver"
	"github.com/starford/dispatch/internal/site"
	pkgconfig "github.com/starford/dispatch/pkg/config"
)

var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// withRuntime builds the runtime for one-shot commands. Logs go to stderr so
// stdout carries only command output.
func withRuntime(cmd *cli.Command, fn func(rt *internal.Runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	rt, err := internal.NewRuntime(cfg, internal.NewLogger(cfg, os.Stderr))
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func requireArgs(cmd *cli.Command, n int, usage string) error {
	if cmd.NArg() < n {
		return fmt.Errorf("usage: %s %s", cmd.Name, usage)
	}
	return nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}

	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		limit := rt.Config.Vault.ScanLimit
		if cmd.IsSet("limit") {
			limit = int(cmd.Int("limit"))
		}
		docs, err := rt.Service.Scan(ctx, limit)
		if err != nil {
			return err
		}
		return printJSON(cmd.Root().Writer, docs)
	})
}

func status(ctx context.Context, cmd *cli.Command) error {
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		st := rt.Service.Status(ctx)
		if err := printJSON(cmd.Root().Writer, st); err != nil {
			return err
		}
		if !st.OK {
			return cli.Exit("repository is not ready to publish: "+st.Error, 2)
		}
		return nil
	})
}

func publishCmd(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1, "<source-path> [slug]"); err != nil {
		return err
	}
	source := cmd.Args().Get(0)
	slug := cmd.Args().Get(1)
	if slug == "" {
		slug = site.SlugFromFilename(filepath.Base(source))
	}
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		res, err := rt.Service.Publish(ctx, source, slug)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.Root().Writer, res.URL)
		return err
	})
}

func unpublishCmd(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1, "<slug>"); err != nil {
		return err
	}
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		res, err := rt.Service.Unpublish(ctx, cmd.Args().First())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.Root().Writer, res.TargetPath)
		return err
	})
}

func diff(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 1, "<slug>"); err != nil {
		return err
	}
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		res, err := rt.Service.Diff(ctx, cmd.Args().First())
		if err != nil {
			return err
		}
		w := cmd.Root().Writer
		switch {
		case !res.Published:
			_, err = fmt.Fprintf(w, "%s is not published\n", res.Slug)
		case !res.Differs:
			_, err = fmt.Fprintf(w, "%s is in sync with %s\n", res.Slug, res.PublishedURL)
		default:
			_, err = io.WriteString(w, res.Diff)
		}
		return err
	})
}

func history(ctx context.Context, cmd *cli.Command) error {
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		h, err := rt.Service.History(ctx, cmd.String("slug"), int(cmd.Int("limit")))
		if err != nil {
			return err
		}
		return printJSON(cmd.Root().Writer, h)
	})
}

func tag(ctx context.Context, cmd *cli.Command) error {
	if err := requireArgs(cmd, 2, "<path> <tag>"); err != nil {
		return err
	}
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		tags, err := rt.Service.AddTag(ctx, cmd.Args().Get(0), cmd.Args().Get(1))
		if err != nil {
			return err
		}
		return printJSON(cmd.Root().Writer, tags)
	})
}

func assetsCmd(ctx context.Context, cmd *cli.Command) error {
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		rep, err := rt.Service.Assets(ctx)
		if err != nil {
			return err
		}
		if cmd.Bool("folders") {
			return printJSON(cmd.Root().Writer, rep.Folders())
		}
		return printJSON(cmd.Root().Writer, rep)
	})
}

func mcp(_ context.Context, cmd *cli.Command) error {
	return withRuntime(cmd, func(rt *internal.Runtime) error {
		return mcpserver.New(rt.Service, version).ServeStdio()
	})
}

func main() {
	cmd := &cli.Command{
		Name:    "dispatch",
		Usage:   "Reconcile a Markdown vault with a git-backed blog and publish or unpublish posts",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, live events, watcher and status poller",
				Action: serve,
			},
			{
				Name:  "scan",
				Usage: "List publishable vault documents as JSON",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Usage: "Maximum documents (0 = all)"},
				},
				Action: scan,
			},
			{
				Name:   "status",
				Usage:  "Show the publication repository state",
				Action: status,
			},
			{
				Name:      "publish",
				Usage:     "Publish a vault document",
				ArgsUsage: "<source-path> [slug]",
				Action:    publishCmd,
			},
			{
				Name:      "unpublish",
				Usage:     "Move a published post back to drafts",
				ArgsUsage: "<slug>",
				Action:    unpublishCmd,
			},
			{
				Name:      "diff",
				Usage:     "Show drift between a vault document and its published copy",
				ArgsUsage: "<slug>",
				Action:    diff,
			},
			{
				Name:  "history",
				Usage: "Show recorded publish transitions and commits",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "slug", Usage: "Limit to one document"},
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Maximum entries"},
				},
				Action: history,
			},
			{
				Name:      "tag",
				Usage:     "Add a tag to a document's header",
				ArgsUsage: "<path> <tag>",
				Action:    tag,
			},
			{
				Name:  "assets",
				Usage: "Report CDN asset usage across the vault and the site",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "folders", Usage: "Only list CDN folders"},
				},
				Action: assetsCmd,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
