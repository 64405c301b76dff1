// Command migrate applies or inspects the database schema without starting
// the server.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/darthbatman/TypeSense/internal/adapter/postgres"
	"github.com/darthbatman/TypeSense/internal/platform/logging"
)

func main() {
	_ = godotenv.Load()

	var (
		databaseURL = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		status      = flag.Bool("status", false, "Print current and latest schema versions and exit")
		timeout     = flag.Duration("timeout", 2*time.Minute, "Overall timeout")
		verbose     = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Database URL required (--database or DATABASE_URL env)")
	}

	level := "info"
	if *verbose {
		level = "debug"
	}
	logging.InitLogger(level, "text")

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, *databaseURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()
	slog.Info("Connected to database", "url", sanitizeURL(*databaseURL))

	before, err := postgres.GetMigrationStatus(ctx, pool)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}

	if *status {
		slog.Info("Migration status", "current", before.Current, "latest", before.Latest, "pending", before.Pending())
		return
	}

	if before.Pending() <= 0 {
		slog.Info("Schema is up to date", "version", before.Current)
		return
	}

	start := time.Now()
	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	slog.Info("Migration complete", "from", before.Current, "to", before.Latest, "duration", time.Since(start))
}

// sanitizeURL strips credentials so the URL is safe to log.
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
