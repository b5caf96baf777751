package main

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"arena-server/internal/arena"
	"arena-server/internal/protocol"
)

const serverVersion = "1.0.0"

var ErrServerFull = errors.New("server full")

// Broadcaster receives the binary frames queued for one tank. SendBinary
// reports false when the frame was dropped.
type Broadcaster interface {
	SendBinary(data []byte) bool
}

// Game owns the world. Commands and ticks are serialized by mu, so a command
// is never applied in the middle of a tick.
type Game struct {
	mu        sync.Mutex
	world     *arena.World
	clients   map[arena.ID]Broadcaster
	cfg       Config
	interval  time.Duration
	analytics *Analytics
	metrics   *gameMetrics
}

// NewGame creates the world described by cfg. analytics may be nil.
func NewGame(cfg Config, analytics *Analytics) (*Game, error) {
	m, err := newGameMetrics()
	if err != nil {
		return nil, err
	}
	return &Game{
		world:     arena.NewWorld(cfg.World()),
		clients:   make(map[arena.ID]Broadcaster),
		cfg:       cfg,
		interval:  time.Second / time.Duration(cfg.TickRate),
		analytics: analytics,
		metrics:   m,
	}, nil
}

// Join creates an uninitialized tank for a new connection
func (g *Game) Join(b Broadcaster) (arena.ID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.clients) >= g.cfg.MaxPlayers {
		return 0, ErrServerFull
	}
	e := g.world.AddTank(arena.NewConnection())
	g.clients[e.ID] = b
	return e.ID, nil
}

// Leave removes a connection's tank and its projectiles
func (g *Game) Leave(id arena.ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.clients[id]; !ok {
		return
	}
	delete(g.clients, id)
	g.world.RemoveTank(id)
}

// Handle applies one decoded command. Frames it queues for the sender
// (a Pong) are flushed immediately; everything else goes out with the
// next tick.
func (g *Game) Handle(id arena.ID, cmd protocol.Command) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.world.Apply(id, cmd); err != nil {
		return err
	}
	if _, ok := cmd.(protocol.Ping); ok {
		g.flush(id)
	}
	return nil
}

// Step runs one tick and delivers its frames
func (g *Game) Step() arena.TickReport {
	g.mu.Lock()
	defer g.mu.Unlock()

	start := time.Now()
	report := g.world.Tick()
	dropped := 0
	for id := range g.clients {
		dropped += g.flush(id)
	}
	took := time.Since(start)

	ctx := context.Background()
	g.metrics.recordTick(ctx, report, took, len(g.clients))
	g.metrics.recordDropped(ctx, dropped)
	g.track(report.Events)
	if g.analytics != nil {
		g.analytics.SetConcurrentPeers(len(g.clients))
	}

	if took > g.interval {
		log.Warn().Uint64("tick", report.Tick).Dur("took", took).Int("entities", report.Entities).Msg("slow tick")
	} else if report.Tick%uint64(g.cfg.TickRate*10) == 0 {
		log.Debug().
			Uint64("tick", report.Tick).
			Int("entities", report.Entities).
			Int("players", len(g.clients)).
			Int("collisions", report.Collisions).
			Dur("took", took).
			Msg("tick")
	}
	return report
}

// flush sends id's queued frames and returns how many were dropped.
func (g *Game) flush(id arena.ID) int {
	b, ok := g.clients[id]
	if !ok {
		return 0
	}
	dropped := 0
	for _, frame := range g.world.Drain(id) {
		if !b.SendBinary(frame) {
			dropped++
		}
	}
	return dropped
}

func (g *Game) track(events []arena.Event) {
	for _, ev := range events {
		switch ev.Kind {
		case arena.EventSpawn:
			log.Info().Uint32("entity", uint32(ev.Entity)).Str("name", ev.Name).Msg("spawn")
			g.trackEvent(EvtSpawn, ev.Entity, ev.Name, nil)
		case arena.EventUpgrade:
			g.trackEvent(EvtUpgrade, ev.Entity, ev.Name, map[string]any{"score": ev.Score})
		case arena.EventKilled:
			log.Info().
				Uint32("entity", uint32(ev.Entity)).
				Str("name", ev.Name).
				Uint32("killer", uint32(ev.Other)).
				Str("killer_name", ev.OtherName).
				Int("score", ev.Score).
				Msg("tank killed")
			g.trackEvent(EvtDeath, ev.Entity, ev.Name, map[string]any{"score": ev.Score, "killer": ev.OtherName})
			if ev.Other != 0 && ev.OtherKind == arena.KindTank {
				g.trackEvent(EvtKill, ev.Other, ev.OtherName, map[string]any{"victim": ev.Name})
			}
		}
	}
}

func (g *Game) trackEvent(kind string, id arena.ID, name string, data map[string]any) {
	if g.analytics == nil {
		return
	}
	var raw []byte
	if data != nil {
		raw, _ = json.Marshal(data)
	}
	g.analytics.Track(kind, uint32(id), name, string(raw))
}

// Run ticks at the configured rate until ctx is cancelled
func (g *Game) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	log.Info().Int("tick_rate", g.cfg.TickRate).Msg("game loop started")
	for {
		select {
		case <-ticker.C:
			g.Step()
		case <-ctx.Done():
			log.Info().Uint64("tick", g.CurrentTick()).Msg("game loop stopped")
			return
		}
	}
}

// CurrentTick returns the number of completed ticks
func (g *Game) CurrentTick() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.world.CurrentTick()
}

// PlayerCount returns the number of connected players
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.clients)
}

// Info describes the arena to clients and the /info endpoint
func (g *Game) Info() protocol.ServerInfo {
	g.mu.Lock()
	defer g.mu.Unlock()
	wc := g.world.Config()
	return protocol.ServerInfo{
		Name:        "arena",
		Version:     serverVersion,
		TickRate:    g.cfg.TickRate,
		ArenaWidth:  wc.Width,
		ArenaHeight: wc.Height,
		Players:     len(g.clients),
		MaxPlayers:  g.cfg.MaxPlayers,
		Entities:    g.world.Len(),
	}
}
