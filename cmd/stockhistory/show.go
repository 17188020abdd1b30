package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"StockHistory/internal/store"

	"github.com/google/subcommands"
)

type showCmd struct{}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "print the stored price history of a ticker" }
func (*showCmd) Usage() string {
	return `stockhistory show <ticker>

  Prints every stored document of the ticker in date order as a JSON array.
`
}

func (*showCmd) SetFlags(*flag.FlagSet) {}

func (*showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "show requires exactly one ticker")
		return subcommands.ExitUsageError
	}
	ticker := f.Arg(0)

	a, err := openApp(ctx, false)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()

	docs, err := a.store.ListDocuments(ctx, ticker)
	if err != nil {
		a.log.WithError(err).Error("list documents")
		return subcommands.ExitFailure
	}
	if len(docs) == 0 {
		fmt.Fprintf(os.Stderr, "no documents for %s\n", ticker)
		return subcommands.ExitFailure
	}

	if err := printDocuments(os.Stdout, docs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printDocuments(w io.Writer, docs []store.Document) error {
	fields := make([]map[string]any, len(docs))
	for i, d := range docs {
		fields[i] = d.Fields
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(fields)
}
