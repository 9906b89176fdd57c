package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/docuchat/ingest/config"
	"github.com/docuchat/ingest/internal/db"
)

const usage = `Usage: ingestctl [-config path] <command>

Commands:
  status                     Live queue dashboard
  reindex [-dry-run]         Move all files into the configured namespace
                             and queue them for reindexing
`

func main() {
	configPath := flag.String("config", "", "Path to yaml config file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.New(cfg.Database.ConnectionString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	switch flag.Arg(0) {
	case "status":
		err = runDashboard(database)
	case "reindex":
		err = runReindex(database, cfg.Index.Namespace, flag.Args()[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runReindex(database *db.DB, namespace string, args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Only count the files that would be reindexed")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	if *dryRun {
		count, err := database.CountReindexable(ctx, namespace)
		if err != nil {
			return err
		}
		fmt.Printf("%d file(s) would be reindexed into namespace %q\n", count, namespace)
		return nil
	}

	count, err := database.ReassignNamespace(ctx, namespace)
	if err != nil {
		return err
	}
	fmt.Printf("Queued %d file(s) for reindexing into namespace %q\n", count, namespace)
	return nil
}
