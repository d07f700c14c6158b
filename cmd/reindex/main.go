// Command reindex wipes the projection store and the record cache so the
// event stream can be replayed from the beginning into a fresh index.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/contentpipe/search-projector/internal/projection"
	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/contentpipe/search-projector/pkg/logger"
	"github.com/contentpipe/search-projector/pkg/postgres"
	"github.com/contentpipe/search-projector/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	if !*yes {
		fmt.Print("this wipes all projection records; continue? [y/N] ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			fmt.Println("aborted")
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := postgres.New(cfg.Postgres)
	if err != nil {
		slog.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	pgStore := projection.NewPostgresStore(pg)
	var store projection.RecordStore = pgStore
	if rdb, err := redis.NewClient(cfg.Redis); err != nil {
		slog.Warn("redis unavailable, skipping cache flush", "error", err)
	} else {
		defer rdb.Close()
		store = projection.NewCachedStore(pgStore, rdb, cfg.Redis, nil)
	}

	if err := store.Clear(ctx); err != nil {
		slog.Error("clear failed", "error", err)
		os.Exit(1)
	}
	slog.Info("projection store cleared; replay the content event stream to rebuild the index")
}
