// Database migration CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/ajitpratap0/stockfunk/internal/config"
	"github.com/ajitpratap0/stockfunk/internal/db"
)

func main() {
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "Database connection URL")
	migrationsDir := flag.String("migrations", "migrations", "Path to migrations directory")
	flag.Parse()

	config.InitLogger("info", "console")

	if *dbURL == "" {
		fmt.Fprintln(os.Stderr, "Error: -db flag or DATABASE_URL is required")
		os.Exit(1)
	}

	migrator, err := db.NewMigrator(*dbURL, *migrationsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open migration connection: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = migrator.Close() }()

	if err := migrator.Up(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
}
