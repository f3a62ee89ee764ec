package main

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/rs/zerolog"

	"github.com/aristath/treasury/internal/config"
	"github.com/aristath/treasury/internal/di"
	"github.com/aristath/treasury/pkg/logger"
)

// app bundles what every command needs
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
}

// setup loads and validates configuration, then wires the container.
// Callers must call close when done.
func setup(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, container: container}, nil
}

func (a *app) close() {
	if err := a.container.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close history database")
	}
}

// printMarkdown renders markdown for the terminal, falling back to raw text
func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(120),
	)
	if err != nil {
		fmt.Print(md)
		return
	}
	out, err := r.Render(md)
	if err != nil {
		fmt.Print(md)
		return
	}
	fmt.Print(out)
}
