// scripts/prune-history.go - Manual cleanup of old run history
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/steveyegge/gauntlet/internal/config"
	"github.com/steveyegge/gauntlet/internal/history"
)

func main() {
	ctx := context.Background()

	dbPath := os.Getenv("GAUNTLET_HISTORY_DB")
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "Usage: prune-history <db-path> [max-age]  (or set GAUNTLET_HISTORY_DB)")
		os.Exit(1)
	}

	// Keep 30 days unless told otherwise; "7d", "12h" etc. are accepted
	maxAge := 30 * 24 * time.Hour
	if len(os.Args) > 2 {
		d, err := config.ParseDuration(os.Args[2])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		maxAge = d
	}

	fmt.Printf("Opening history: %s\n", dbPath)

	store, err := history.Open(ctx, dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	cutoff := time.Now().Add(-maxAge)
	fmt.Printf("Pruning runs started before %s...\n", cutoff.Format(time.DateTime))

	pruned, err := store.Prune(ctx, cutoff)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during prune: %v\n", err)
		os.Exit(1)
	}

	if pruned > 0 {
		fmt.Printf("✓ Pruned %d run(s)\n", pruned)
	} else {
		fmt.Println("✓ No runs older than the cutoff")
	}
}
