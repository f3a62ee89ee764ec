// Package main is the entry point for treasury, the public-company bitcoin holdings tracker.
//
// Each run fetches the holdings table, commits it as one immutable daily period in
// history.db, reconciles it against the previous period and sends a digest of the
// entities that moved. The serve command does the same on a cron schedule and exposes
// a read-only HTTP API.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))

	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(&runCmd{}, "pipeline")
	commander.Register(&serveCmd{}, "pipeline")
	commander.Register(&historyCmd{}, "history")
	commander.Register(&exportCmd{}, "history")
	commander.Register(&backupCmd{}, "history")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
