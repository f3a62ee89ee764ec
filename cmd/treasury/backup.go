package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/subcommands"
)

type backupCmd struct {
	list bool
}

func (*backupCmd) Name() string     { return "backup" }
func (*backupCmd) Synopsis() string { return "upload a backup of history.db to the configured bucket" }
func (*backupCmd) Usage() string {
	return `treasury backup [-list]

  Snapshots history.db, uploads the archive and rotates old backups.
  Requires BACKUP_ENABLED=true and bucket credentials.
`
}

func (c *backupCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.list, "list", false, "List existing backups instead of creating one.")
}

func (c *backupCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	a, err := setup(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.close()

	svc := a.container.Backup
	if svc == nil {
		fmt.Fprintln(os.Stderr, "backups are disabled (set BACKUP_ENABLED=true)")
		return subcommands.ExitFailure
	}

	if c.list {
		backups, err := svc.ListBackups(ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		for _, b := range backups {
			fmt.Printf("%s\t%s\t%s\n", b.Filename, humanize.Bytes(uint64(b.SizeBytes)), humanize.Time(b.Timestamp))
		}
		return subcommands.ExitSuccess
	}

	if err := svc.Backup(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Println("Backup uploaded")
	return subcommands.ExitSuccess
}
