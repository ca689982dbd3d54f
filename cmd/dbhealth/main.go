// dbhealth pings the configured database and exits non-zero on failure.
// Useful as a container readiness probe and for checking a DSN locally.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/schemaflow/schemaflow/internal/common"
	"github.com/schemaflow/schemaflow/internal/repository"
)

func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := common.LoadConfig()
	if cfg.Database.DSN == "" {
		log.Error("DB_URL is required")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:         cfg.Database.DSN,
		MaxConns:    1,
		DialTimeout: 5 * time.Second,
	}, log)
	if err != nil {
		os.Exit(1)
	}
	defer repository.Close(pool, log)

	if err := repository.HealthCheck(ctx, pool, 5*time.Second, log); err != nil {
		log.Error("database unhealthy", "error", err)
		os.Exit(1)
	}
	log.Info("database healthy")
}
