// Command stockhistory keeps per-ticker daily price histories with derived return metrics
// up to date in a document store.
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
	commander.Register(&syncCmd{}, "")
	commander.Register(&scheduleCmd{}, "")
	commander.Register(&showCmd{}, "")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}
