// Copyright 2025 The WordServe Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements the docserve symbol search server and CLI.

docserve answers "symbols starting with..." queries against the search shards
a documentation generator such as Doxygen emits. Shards are loaded lazily,
one per query, and cached for the lifetime of the process.

# Usage

Start the msgpack IPC server (the default command):

	docserve --config ~/.config/docserve/config.toml

Search interactively, or run a single query:

	docserve cli --limit 10
	docserve query SetValue

Convert a directory of Doxygen shards into the native msgpack format, or into
an embedded badger store:

	docserve import --from html/search --pattern "functions_{key}.js" --to data
	docserve import --from html/search --badger data/shards.db

# Configuration

Runtime configuration lives in a TOML file, created with defaults when
missing:

	[engine]
	max_results = 50
	debounce_ms = 40

	[shards]
	backend = "dir"
	dir = "data"
	pattern = "{key}.msgpack"
	partition = "prefix"

Shards published by Doxygen use the table scheme:

	[shards]
	backend = "http"
	url = "https://example.org/docs/html/search"
	pattern = "{key}.js"
	format = "doxygen"
	partition = "table"
	table_chars = "_abcdefghilmnopqrstuvw~"

# IPC Protocol

The server reads msgpack requests from stdin and writes msgpack responses to
stdout; see package server for the frames. Logs always go to stderr.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	termcli "github.com/bastiangx/docserve/internal/cli"
	"github.com/bastiangx/docserve/internal/logger"
	"github.com/bastiangx/docserve/internal/utils"
	"github.com/bastiangx/docserve/pkg/config"
	"github.com/bastiangx/docserve/pkg/engine"
	"github.com/bastiangx/docserve/pkg/server"
	"github.com/bastiangx/docserve/pkg/shards"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v2"
)

const (
	Version = "0.1.0-beta"
	AppName = "docserve"
	gh      = "https://github.com/bastiangx/docserve"
)

// sigHandler is a simple handler for OS signals to exit normally.
func sigHandler() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		os.Exit(0)
	}()
}

func main() {
	sigHandler()
	if err := newApp().RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:        AppName,
		Usage:       "Fast prefix search over generated API documentation",
		Version:     Version,
		HideVersion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config.toml (default: user config dir)",
			},
			&cli.StringFlag{
				Name:  "data",
				Usage: "Directory containing shard files; overrides shards.dir and selects the dir backend",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"d"},
				Usage:   "Toggle debug mode",
			},
		},
		Before: func(c *cli.Context) error {
			logger.Setup(c.Bool("debug"))
			return nil
		},
		Action: serveCommand,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the msgpack IPC server on stdin/stdout",
				Action: serveCommand,
			},
			{
				Name:   "cli",
				Usage:  "Search interactively",
				Action: cliCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of results to show (default from config)",
					},
					&cli.BoolFlag{
						Name:  "no-filter",
						Usage: "Disable input filtering",
					},
				},
			},
			{
				Name:      "query",
				Usage:     "Run a single query and print the results",
				ArgsUsage: "<text>",
				Action:    queryCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of results to show (default from config)",
					},
				},
			},
			{
				Name:   "import",
				Usage:  "Convert a directory of shards into msgpack files or a badger store",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "from",
						Usage:    "Directory containing the source shards",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "pattern",
						Usage: "Source shard file name pattern",
						Value: "{key}.js",
					},
					&cli.StringFlag{
						Name:  "format",
						Usage: "Source format: doxygen, msgpack or json (default: from pattern)",
					},
					&cli.StringFlag{
						Name:  "to",
						Usage: "Output directory for msgpack shards",
					},
					&cli.StringFlag{
						Name:  "out-pattern",
						Usage: "Output shard file name pattern",
						Value: "{key}.msgpack",
					},
					&cli.StringFlag{
						Name:  "badger",
						Usage: "Output badger store directory",
					},
				},
			},
			{
				Name:   "version",
				Usage:  "Show current version",
				Action: versionCommand,
			},
		},
	}
}

// loadConfig resolves the config file and applies the global flags.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, path, err := config.LoadConfigWithPriority(c.String("config"))
	if err != nil {
		return nil, err
	}
	log.Debugf("Using config file: %s", config.GetActiveConfigPath(path))

	if data := c.String("data"); data != "" {
		dir := data
		if resolver, err := utils.NewPathResolver(); err == nil {
			dir = resolver.GetDataDir(data, cfg.Shards.Pattern)
		} else {
			log.Warnf("Failed to initialize path resolver: %v", err)
		}
		cfg.Shards.Backend = "dir"
		cfg.Shards.Dir = dir
	}
	log.Debug("Shard source", "backend", cfg.Shards.Backend, "dir", cfg.Shards.Dir, "pattern", cfg.Shards.Pattern)
	return cfg, nil
}

func openEngine(c *cli.Context) (*config.Config, *engine.Engine, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init engine: %w", err)
	}
	return cfg, eng, nil
}

func serveCommand(c *cli.Context) error {
	cfg, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Warm(c.Context); err != nil {
		log.Warnf("Some preload shards are unavailable: %v", err)
	}

	showStartupInfo(cfg)
	srv := server.NewServer(eng, cfg.Server)
	if err := srv.Start(c.Context); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

func cliCommand(c *cli.Context) error {
	cfg, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	log.Debug("Input info:", "limit", c.Int("limit"), "noFilter", c.Bool("no-filter"))
	handler := termcli.NewInputHandler(eng, cfg.CLI,
		termcli.WithIO(os.Stdin, c.App.Writer),
		termcli.WithLimit(c.Int("limit")),
		termcli.WithNoFilter(c.Bool("no-filter")),
	)
	return handler.Start(c.Context)
}

func queryCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return errors.New("query needs the text to search for")
	}
	cfg, eng, err := openEngine(c)
	if err != nil {
		return err
	}
	defer eng.Close()

	text := strings.Join(c.Args().Slice(), " ")
	limit := c.Int("limit")
	if limit <= 0 {
		limit = cfg.CLI.DefaultLimit
	}
	out, err := eng.Complete(c.Context, text, limit)
	if err != nil {
		return err
	}
	termcli.NewRenderer(c.App.Writer, cfg.CLI.ShowSignature).Results(text, out.Results, out.Elapsed)
	return nil
}

func importCommand(c *cli.Context) error {
	to, badgerPath := c.String("to"), c.String("badger")
	if (to == "") == (badgerPath == "") {
		return errors.New("import needs exactly one of --to or --badger")
	}

	srcCfg := config.ShardsConfig{Pattern: c.String("pattern"), Format: c.String("format")}
	decoder, err := engine.NewDecoder(srcCfg)
	if err != nil {
		return err
	}
	src, err := shards.NewDirSource(c.String("from"), srcCfg.Pattern)
	if err != nil {
		return err
	}
	keys, err := src.Keys()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return fmt.Errorf("no shards matching %q in %s", srcCfg.Pattern, c.String("from"))
	}

	var sink shards.Sink
	if to != "" {
		if sink, err = shards.NewDirSink(to, c.String("out-pattern")); err != nil {
			return err
		}
	} else {
		db, err := shards.OpenBadgerSource(badgerPath, false)
		if err != nil {
			return err
		}
		defer db.Close()
		sink = db
	}

	stats, err := shards.Transcode(c.Context, src, keys, decoder, shards.MsgpackCodec{}, sink)
	if err != nil {
		return fmt.Errorf("import failed after %d shards: %w", stats.Shards, err)
	}
	fmt.Fprintf(c.App.Writer, "Imported %d shards (%s tokens, %s entries)\n",
		stats.Shards, utils.FormatWithCommas(int64(stats.Tokens)), utils.FormatWithCommas(int64(stats.Entries)))
	return nil
}

func versionCommand(c *cli.Context) error {
	l := log.NewWithOptions(c.App.ErrWriter, log.Options{
		ReportCaller:    false,
		ReportTimestamp: false,
		Prefix:          "",
	})

	styles := log.DefaultStyles()
	styles.Values["version"] = lipgloss.NewStyle().Bold(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"}).
		Background(lipgloss.AdaptiveColor{Light: "#f2e9e1", Dark: "#26233a"})
	styles.Values["gh"] = lipgloss.NewStyle().Italic(true).
		Foreground(lipgloss.AdaptiveColor{Light: "#575279", Dark: "#e0def4"})
	l.SetStyles(styles)

	l.Print("")
	l.Print("[ DocServe ] Serves really fast symbol search!")
	l.Print("", "version", Version)
	l.Print("")
	l.Print("use -h or --help to see available options")
	l.Print("Github Repo", "gh", gh)
	return nil
}

// showStartupInfo displays some basic info about the init process.
func showStartupInfo(cfg *config.Config) {
	currentLevel := log.GetLevel()
	log.SetLevel(log.InfoLevel)
	defer log.SetLevel(currentLevel)

	log.Infof("DocServe %s [ pid %d ]", Version, os.Getpid())
	log.Info("shards", "backend", cfg.Shards.Backend, "partition", cfg.Shards.Partition, "pattern", cfg.Shards.Pattern)
	log.Info("status: ready")
}
