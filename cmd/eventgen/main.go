// Command eventgen publishes a synthetic content lifecycle to the event
// topic for local testing: create, draft, update, publish.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/pkg/config"
	"github.com/contentpipe/search-projector/pkg/kafka"
	"github.com/contentpipe/search-projector/pkg/logger"
	"github.com/google/uuid"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	app := flag.String("app", "demo-app", "owning app id")
	count := flag.Int("count", 1, "number of content items to generate")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, "text")

	producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ContentEvents)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i := 0; i < *count; i++ {
		contentID := content.ContentID(uuid.NewString())
		stream := cfg.Projector.StreamPrefix + string(contentID)
		events := lifecycle(stream, content.AppID(*app), contentID)

		batch := make([]kafka.Event, 0, len(events))
		for _, event := range events {
			batch = append(batch, kafka.Event{Key: stream, Value: event})
		}
		if err := producer.PublishBatch(ctx, batch); err != nil {
			slog.Error("publish failed", "content_id", contentID, "error", err)
			os.Exit(1)
		}
		slog.Info("lifecycle published", "content_id", contentID, "events", len(events))
	}
}

func lifecycle(stream string, app content.AppID, id content.ContentID) []content.Event {
	now := time.Now().UTC()
	base := content.Event{
		Stream:    stream,
		AppID:     app,
		ContentID: id,
		SchemaID:  "article",
	}
	created := base
	created.Kind = content.KindCreated
	created.OccurredAt = now
	created.Payload = &content.Payload{Text: "city park playground"}

	draft := base
	draft.Kind = content.KindDraftCreated
	draft.OccurredAt = now.Add(time.Second)

	updated := base
	updated.Kind = content.KindUpdated
	updated.OccurredAt = now.Add(2 * time.Second)
	updated.Payload = &content.Payload{
		Text: "city park playground with fountain",
		Shapes: []content.GeoShape{{
			Field: "location",
			Points: []content.GeoPoint{
				{Lat: 52.52, Lon: 13.40},
				{Lat: 52.53, Lon: 13.41},
				{Lat: 52.51, Lon: 13.42},
			},
		}},
	}

	published := base
	published.Kind = content.KindPublished
	published.OccurredAt = now.Add(3 * time.Second)

	return []content.Event{created, draft, updated, published}
}
