package main

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"arena-server/internal/arena"
)

const instrumentationName = "arena-server"

// gameMetrics records tick statistics on the global meter; without an
// installed provider every instrument is a no-op.
type gameMetrics struct {
	tickDuration metric.Float64Histogram
	collisions   metric.Int64Counter
	constructed  metric.Int64Counter
	events       metric.Int64Counter
	dropped      metric.Int64Counter
	entityGauge  metric.Int64ObservableGauge
	playerGauge  metric.Int64ObservableGauge

	entities atomic.Int64
	players  atomic.Int64
}

func newGameMetrics() (*gameMetrics, error) {
	m := otel.Meter(instrumentationName)
	gm := &gameMetrics{}

	var err error
	gm.tickDuration, err = m.Float64Histogram(
		"arena.tick.duration",
		metric.WithDescription("Wall time of one simulation tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating tick histogram: %w", err)
	}

	gm.collisions, err = m.Int64Counter(
		"arena.collisions",
		metric.WithDescription("Collision pairs resolved"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating collision counter: %w", err)
	}

	gm.constructed, err = m.Int64Counter(
		"arena.entities.constructed",
		metric.WithDescription("Entities realized from construction requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating construction counter: %w", err)
	}

	gm.events, err = m.Int64Counter(
		"arena.events",
		metric.WithDescription("Gameplay events by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating event counter: %w", err)
	}

	gm.dropped, err = m.Int64Counter(
		"arena.frames.dropped",
		metric.WithDescription("Outbound frames dropped because a client was too slow"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}

	gm.entityGauge, err = m.Int64ObservableGauge(
		"arena.entities",
		metric.WithDescription("Entities in the world"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating entity gauge: %w", err)
	}
	gm.playerGauge, err = m.Int64ObservableGauge(
		"arena.players",
		metric.WithDescription("Connected players"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating player gauge: %w", err)
	}

	_, err = m.RegisterCallback(
		func(ctx context.Context, o metric.Observer) error {
			o.ObserveInt64(gm.entityGauge, gm.entities.Load())
			o.ObserveInt64(gm.playerGauge, gm.players.Load())
			return nil
		},
		gm.entityGauge, gm.playerGauge,
	)
	if err != nil {
		return nil, fmt.Errorf("registering gauge callback: %w", err)
	}
	return gm, nil
}

func (gm *gameMetrics) recordTick(ctx context.Context, r arena.TickReport, took time.Duration, players int) {
	gm.tickDuration.Record(ctx, float64(took.Microseconds())/1000)
	gm.collisions.Add(ctx, int64(r.Collisions))
	gm.constructed.Add(ctx, int64(r.Constructed))
	for _, ev := range r.Events {
		gm.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", ev.Kind.String())))
	}
	gm.entities.Store(int64(r.Entities))
	gm.players.Store(int64(players))
}

func (gm *gameMetrics) recordDropped(ctx context.Context, n int) {
	if n > 0 {
		gm.dropped.Add(ctx, int64(n))
	}
}
