package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/docforge/internal/config"
)

var CLI struct {
	Config  string `short:"c" help:"Configuration file path" default:"docforge.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Build struct {
		Source        string `short:"s" help:"Source directory (overrides config)"`
		Output        string `short:"o" help:"Output directory (overrides config)"`
		FailOnWarning bool   `help:"Treat warnings as build failure"`
		WarningsFile  string `short:"w" help:"Also write warnings and errors to this file"`
	} `cmd:"" help:"Build the documentation site once"`

	Serve struct {
		Listen string `short:"l" help:"HTTP listen address (overrides config)"`
	} `cmd:"" help:"Watch sources, rebuild incrementally and serve with live reload"`

	Clean struct{} `cmd:"" help:"Remove rendered output and the persistent artifact cache"`

	Stats struct{} `cmd:"" help:"Show artifact cache statistics"`
}

func main() {
	ctx := kong.Parse(&CLI)

	logLevel := slog.LevelInfo
	if CLI.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	var err error
	switch ctx.Command() {
	case "build":
		err = runBuild(cfg)
	case "serve":
		err = runServe(cfg)
	case "clean":
		err = runClean(cfg)
	case "stats":
		err = runStats(cfg)
	default:
		slog.Error("Unknown command", "command", ctx.Command())
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Command failed", "command", ctx.Command(), "error", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	if _, err := os.Stat(CLI.Config); os.IsNotExist(err) {
		slog.Debug("No configuration file, using defaults", "path", CLI.Config)
		return config.Default()
	}
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		slog.Error("Failed to load configuration", "path", CLI.Config, "error", err)
		os.Exit(1)
	}
	return cfg
}
