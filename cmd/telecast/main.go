// Package main provides the CLI entry point for telecast.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/ideamans/go-l10n"
	"github.com/urfave/cli/v2"

	"github.com/user/telecast/pkg/adapters/logger"
	"github.com/user/telecast/pkg/config"
	"github.com/user/telecast/pkg/ports"
)

var version = "dev"

func main() {
	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %s", err))
		os.Exit(1)
	}
}

func newApp(out, errOut io.Writer) *cli.App {
	return &cli.App{
		Name:      "telecast",
		Usage:     l10n.T("Stream a projected display over RTP"),
		UsageText: "telecast [global options] command [command options]",
		Description: l10n.T("telecast negotiates a hardware or recorder based H.264 encoder, " +
			"captures a projected display and streams it with audio to an RTP receiver."),
		Version:   version,
		Writer:    out,
		ErrWriter: errOut,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    l10n.T("YAML configuration file"),
				EnvVars:  []string{"TELECAST_CONFIG"},
				Category: l10n.T("Configuration"),
			},
			&cli.StringFlag{
				Name:     "log-level",
				Aliases:  []string{"l"},
				Usage:    l10n.T("Log level (debug, info, warn, error)"),
				Category: l10n.T("Logging"),
			},
			&cli.BoolFlag{
				Name:     "quiet",
				Aliases:  []string{"q"},
				Usage:    l10n.T("Suppress all log output"),
				Category: l10n.T("Logging"),
			},
		},
		Commands: []*cli.Command{
			streamCommand(),
			probeCommand(),
			geometryCommand(),
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					fmt.Fprintln(c.App.Writer, l10n.F("telecast version %s", version))
					return nil
				},
			},
		},
	}
}

// loadConfig reads the configuration file, if any, and validates it.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.String("config"); path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if level := c.String("log-level"); level != "" {
		cfg.LogLevel = level
	}
	return cfg, nil
}

func newLogger(c *cli.Context, cfg config.Config) ports.Logger {
	if c.Bool("quiet") {
		return logger.NewNoop()
	}
	level := ports.ParseLogLevel(cfg.LogLevel)
	if c.App.Writer == os.Stdout {
		return logger.NewConsole(level).WithTimestamps()
	}
	return logger.NewWriter(level, c.App.Writer, c.App.ErrWriter).WithTimestamps()
}
