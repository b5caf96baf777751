package main

import (
	"database/sql"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Event types for analytics tracking
const (
	EvtConnect       = "connect"
	EvtDisconnect    = "disconnect"
	EvtSpawn         = "spawn"
	EvtKill          = "kill"
	EvtDeath         = "death"
	EvtUpgrade       = "upgrade"
	EvtProtocolError = "protocol_error"
)

const (
	analyticsQueueSize = 1024
	analyticsBatchSize = 50
	analyticsFlushIvl  = 5 * time.Second
)

// AnalyticsEvent represents a single trackable event
type AnalyticsEvent struct {
	Type      string
	EntityID  uint32
	Name      string
	Data      string // JSON metadata (optional)
	Timestamp time.Time
}

// Analytics handles event tracking with batched background writes
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	mu              sync.RWMutex
	concurrentPeers int
	dropped         int
}

// NewAnalytics creates and starts the analytics background writer. A nil db
// keeps the live counters but persists nothing.
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsQueueSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType string, entityID uint32, name, data string) {
	select {
	case a.events <- AnalyticsEvent{
		Type:      evtType,
		EntityID:  entityID,
		Name:      name,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// the tick loop never waits on the database
		a.mu.Lock()
		a.dropped++
		a.mu.Unlock()
	}
}

// SetConcurrentPeers updates live player count metric
func (a *Analytics) SetConcurrentPeers(n int) {
	a.mu.Lock()
	a.concurrentPeers = n
	a.mu.Unlock()
}

// LiveMetrics returns the live peer count and the number of dropped events
func (a *Analytics) LiveMetrics() (peers, dropped int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.concurrentPeers, a.dropped
}

// Stop flushes pending events and shuts down the writer
func (a *Analytics) Stop() {
	close(a.stop)
	a.wg.Wait()
}

// writer is the background goroutine that batches and writes events to DB
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, 64)
	ticker := time.NewTicker(analyticsFlushIvl)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for drained := false; !drained; {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					drained = true
				}
			}
			a.flush(batch)
			return
		}
	}
}

// flush writes a batch of events to the database
func (a *Analytics) flush(events []AnalyticsEvent) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Error().Err(err).Msg("analytics: begin tx")
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, entity_id, name, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Error().Err(err).Msg("analytics: prepare")
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		eid := sql.NullInt64{Int64: int64(evt.EntityID), Valid: evt.EntityID > 0}
		name := sql.NullString{String: evt.Name, Valid: evt.Name != ""}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, eid, name, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Error().Err(err).Str("type", evt.Type).Msg("analytics: insert")
		}
	}
	if err := tx.Commit(); err != nil {
		log.Error().Err(err).Int("events", len(events)).Msg("analytics: commit")
	}
}

// --- Query methods for the admin API ---

// EventCounts returns counts of each event type for the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	result := make(map[string]int)
	if a.db == nil {
		return result, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT event_type, COUNT(*) FROM analytics_events
		WHERE created_at >= date('now', '-' || ? || ' days')
		GROUP BY event_type ORDER BY COUNT(*) DESC
	`, days)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var evtType string
		var count int
		if err := rows.Scan(&evtType, &count); err != nil {
			continue
		}
		result[evtType] = count
	}
	return result, rows.Err()
}

// TopKillers returns the names with the most recorded kills
func (a *Analytics) TopKillers(limit int) ([]NameCount, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT name, COUNT(*) as cnt FROM analytics_events
		WHERE event_type = ? AND name IS NOT NULL AND name != ''
		GROUP BY name ORDER BY cnt DESC, name LIMIT ?
	`, EvtKill, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			continue
		}
		result = append(result, nc)
	}
	return result, rows.Err()
}

// HighestScores returns the best score reached per name at death
func (a *Analytics) HighestScores(limit int) ([]NameCount, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT name, MAX(CAST(json_extract(data, '$.score') AS INTEGER)) as best
		FROM analytics_events
		WHERE event_type = ? AND json_valid(data) AND name IS NOT NULL
		GROUP BY name ORDER BY best DESC, name LIMIT ?
	`, EvtDeath, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []NameCount
	for rows.Next() {
		var nc NameCount
		if err := rows.Scan(&nc.Name, &nc.Count); err != nil {
			continue
		}
		result = append(result, nc)
	}
	return result, rows.Err()
}

// NameCount pairs a player name with a count or score
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}
