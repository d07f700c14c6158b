package projection

import (
	"context"
	"log/slog"
	"time"

	"github.com/contentpipe/search-projector/internal/content"
	"github.com/contentpipe/search-projector/internal/index"
	"github.com/contentpipe/search-projector/pkg/config"
	apperrors "github.com/contentpipe/search-projector/pkg/errors"
	"github.com/contentpipe/search-projector/pkg/kafka"
	"github.com/contentpipe/search-projector/pkg/metrics"
	"github.com/contentpipe/search-projector/pkg/resilience"
	"golang.org/x/sync/errgroup"
)

// Driver orchestrates one event batch end to end: load the touched
// projection records, reduce the events into coalesced index commands,
// execute the commands, and only then persist the mutated records. A
// failed execute aborts the batch before anything is saved, so at-least-
// once redelivery can safely replay it in full.
type Driver struct {
	store   RecordStore
	index   index.Executor
	ids     index.IDSource
	cfg     config.ProjectorConfig
	metrics *metrics.Metrics
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger
}

// NewDriver creates a Driver. metrics may be nil.
func NewDriver(store RecordStore, executor index.Executor, ids index.IDSource, cfg config.ProjectorConfig, m *metrics.Metrics) *Driver {
	return &Driver{
		store:   store,
		index:   executor,
		ids:     ids,
		cfg:     cfg,
		metrics: m,
		breaker: resilience.NewCircuitBreaker("search-index", resilience.CircuitBreakerConfig{}),
		logger:  slog.Default().With("component", "projection-driver"),
	}
}

// OnBatch processes one ordered batch of events. Events from streams
// outside the content prefix and events of unknown kinds are ignored.
func (d *Driver) OnBatch(ctx context.Context, events []content.Event) error {
	accepted := d.filter(events)
	if len(accepted) == 0 {
		d.countBatch("empty")
		return nil
	}

	keys := distinctKeys(accepted)
	start := time.Now()
	records, err := d.store.Load(ctx, keys)
	if err != nil {
		d.countBatch("failed")
		return apperrors.Newf(apperrors.ErrStoreUnavailable, "loading %d records: %v", len(keys), err)
	}
	d.observe("load", start)

	start = time.Now()
	result := Reduce(records, accepted, d.ids)
	d.observe("reduce", start)

	commands := result.Commands.Ordered()
	if len(commands) > 0 {
		start = time.Now()
		if err := d.execute(ctx, commands); err != nil {
			d.countBatch("failed")
			return apperrors.Newf(apperrors.ErrIndexUnavailable, "executing %d commands: %v", len(commands), err)
		}
		d.observe("execute", start)
	}

	if len(result.Dirty) > 0 {
		dirty := make([]*Record, 0, len(result.Dirty))
		for _, rec := range result.Dirty {
			dirty = append(dirty, rec)
		}
		start = time.Now()
		if err := d.store.Save(ctx, dirty); err != nil {
			d.countBatch("failed")
			return apperrors.Newf(apperrors.ErrStoreUnavailable, "saving %d records: %v", len(dirty), err)
		}
		d.observe("save", start)
		if d.metrics != nil {
			d.metrics.RecordsSavedTotal.Add(float64(len(dirty)))
		}
	}

	d.countBatch("ok")
	if d.metrics != nil {
		d.metrics.BatchSize.Observe(float64(len(accepted)))
		for _, event := range accepted {
			d.metrics.EventsTotal.WithLabelValues(string(event.Kind)).Inc()
		}
		for _, cmd := range commands {
			d.metrics.CommandsTotal.WithLabelValues(string(cmd.Kind())).Inc()
		}
		d.metrics.CoalescedTotal.Add(float64(result.Commands.Merged()))
	}
	d.logger.Info("batch processed",
		"events", len(accepted),
		"items", len(keys),
		"commands", len(commands),
		"coalesced", result.Commands.Merged(),
		"records_saved", len(result.Dirty),
	)
	return nil
}

// HandleBatch adapts the driver to the Kafka batch consumer. Messages that
// fail to decode are logged and skipped; decoding problems are permanent
// and redelivery cannot fix them.
func (d *Driver) HandleBatch() kafka.BatchHandler {
	return func(ctx context.Context, msgs []kafka.Message) error {
		events := make([]content.Event, 0, len(msgs))
		for _, msg := range msgs {
			event, err := kafka.DecodeJSON[content.Event](msg.Value)
			if err != nil {
				d.logger.Error("skipping undecodable event",
					"key", string(msg.Key),
					"offset", msg.Offset,
					"error", err,
				)
				continue
			}
			events = append(events, event)
		}
		return d.OnBatch(ctx, events)
	}
}

// ClearAll wipes the search index and the projection store for a full
// reindex. Both clears run concurrently.
func (d *Driver) ClearAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.index.Clear(gctx)
	})
	g.Go(func() error {
		return d.store.Clear(gctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if d.metrics != nil {
		d.metrics.ReindexTotal.Inc()
	}
	d.logger.Info("index and projection store cleared")
	return nil
}

// execute runs the command list against the index behind the circuit
// breaker, a bounded retry, and an execution timeout. Exhausted retries
// surface as a batch failure; the redelivery layer owns further attempts.
func (d *Driver) execute(ctx context.Context, commands []index.Command) error {
	return resilience.Retry(ctx, "index-execute", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		return d.breaker.Execute(func() error {
			return resilience.WithTimeout(ctx, d.cfg.ExecuteTimeout, "index-execute", func(ctx context.Context) error {
				return d.index.Execute(ctx, commands)
			})
		})
	})
}

func (d *Driver) filter(events []content.Event) []content.Event {
	accepted := make([]content.Event, 0, len(events))
	for _, event := range events {
		if !event.FromStream(d.cfg.StreamPrefix) {
			continue
		}
		if !event.Kind.Known() {
			d.logger.Debug("ignoring unknown event kind",
				"kind", event.Kind,
				"stream", event.Stream,
			)
			continue
		}
		accepted = append(accepted, event)
	}
	return accepted
}

func distinctKeys(events []content.Event) []content.ItemKey {
	seen := make(map[content.ItemKey]struct{}, len(events))
	keys := make([]content.ItemKey, 0, len(events))
	for _, event := range events {
		key := event.Key()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func (d *Driver) observe(stage string, start time.Time) {
	if d.metrics != nil {
		d.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	}
}

func (d *Driver) countBatch(outcome string) {
	if d.metrics != nil {
		d.metrics.BatchesTotal.WithLabelValues(outcome).Inc()
	}
}
