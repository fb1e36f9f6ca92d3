// Command resolve resolves instruments and analyzes portfolios from the
// command line.
//
// Usage:
//
//	resolve one --name "MSCI World" --isin IE00B4L5Y983
//	resolve bulk --file holdings.yaml
//	resolve analyze --file portfolio.yaml
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"FinResolve/internal/di"
	"FinResolve/internal/domain/models"
	"FinResolve/pkg/config"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "resolve",
		Usage:   "Resolve financial instruments against local and remote sources",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML config (defaults only when empty)",
				EnvVars: []string{"FINRESOLVE_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error); overrides the config",
			},
			&cli.Float64Flag{
				Name:  "min-confidence",
				Usage: "Override the minimum confidence (0-1]",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Fail instead of returning partial results",
			},
		},
		Commands: []*cli.Command{
			oneCommand(),
			bulkCommand(),
			analyzeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func oneCommand() *cli.Command {
	return &cli.Command{
		Name:  "one",
		Usage: "Resolve a single instrument",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Instrument name"},
			&cli.StringFlag{Name: "isin", Aliases: []string{"i"}, Usage: "ISIN"},
			&cli.StringFlag{Name: "value", Value: "0", Usage: "Position value"},
		},
		Action: func(c *cli.Context) error {
			value, err := decimal.NewFromString(c.String("value"))
			if err != nil {
				return fmt.Errorf("invalid --value: %w", err)
			}
			q := models.InstrumentQuery{
				Name:  c.String("name"),
				ISIN:  models.NormalizeISIN(c.String("isin")),
				Value: value,
			}

			return withToolkit(c, func(ctx context.Context, tk *di.Toolkit, opts models.ResolveOptions) error {
				res, err := tk.Resolver.ResolveOne(ctx, q, opts)
				if err != nil {
					return err
				}
				return writeJSON(c.App.Writer, res)
			})
		},
	}
}

func bulkCommand() *cli.Command {
	return &cli.Command{
		Name:  "bulk",
		Usage: "Resolve every holding of a YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Holdings YAML file", Required: true},
		},
		Action: func(c *cli.Context) error {
			p, err := readPortfolio(c.String("file"))
			if err != nil {
				return err
			}

			return withToolkit(c, func(ctx context.Context, tk *di.Toolkit, opts models.ResolveOptions) error {
				res, err := tk.Resolver.ResolveBulk(ctx, p.Queries(), opts, func(pr models.BulkProgress) {
					fmt.Fprintf(c.App.ErrWriter, "\r%d/%d resolved", pr.Completed, pr.Total)
				})
				fmt.Fprintln(c.App.ErrWriter)
				if err != nil {
					return err
				}
				return writeJSON(c.App.Writer, res)
			})
		},
	}
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Analyze the look-through exposure of a portfolio YAML file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Portfolio YAML file", Required: true},
			&cli.BoolFlag{Name: "cache-report", Usage: "Print the cache report to stderr afterwards"},
		},
		Action: func(c *cli.Context) error {
			p, err := readPortfolio(c.String("file"))
			if err != nil {
				return err
			}

			return withToolkit(c, func(ctx context.Context, tk *di.Toolkit, opts models.ResolveOptions) error {
				res, err := tk.Portfolios.Analyze(ctx, p, opts)
				if err != nil {
					return err
				}
				if c.Bool("cache-report") {
					fmt.Fprintln(c.App.ErrWriter, tk.Caches.Report())
				}
				return writeJSON(c.App.Writer, res)
			})
		},
	}
}

// withToolkit loads the config, wires the resolution stack and runs fn
// until it returns or the process is interrupted.
func withToolkit(c *cli.Context, fn func(context.Context, *di.Toolkit, models.ResolveOptions) error) error {
	cfg, err := config.LoadWithEnv(c.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	cfg.Log.Format = "console"
	cfg.Log.Output = "stderr"
	cfg.Kafka.Jobs.Enabled = false

	tk, err := di.InitializeToolkit(cfg)
	if err != nil {
		return err
	}
	defer tk.Close()

	opts := tk.Resolver.Defaults()
	if v := c.Float64("min-confidence"); v > 0 {
		opts.MinConfidence = v
	}
	if c.Bool("strict") {
		opts.AllowPartial = false
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx, tk, opts)
}

// readPortfolio reads a holdings file of the form
//
//	id: my-portfolio
//	holdings:
//	  - name: iShares Core MSCI World UCITS ETF
//	    isin: IE00B4L5Y983
//	    value: 12000
func readPortfolio(path string) (models.Portfolio, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return models.Portfolio{}, fmt.Errorf("read holdings: %w", err)
	}
	var p models.Portfolio
	if err := yaml.Unmarshal(b, &p); err != nil {
		return models.Portfolio{}, fmt.Errorf("parse holdings %s: %w", path, err)
	}
	if p.ID == "" {
		p.ID = path
	}
	if len(p.Holdings) == 0 {
		return models.Portfolio{}, fmt.Errorf("%s has no holdings", path)
	}
	return p, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
