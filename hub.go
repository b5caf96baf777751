package main

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	maxConnsPerIP = 5
	maxTotalConns = 1000
)

// Hub tracks connected clients and connects them to the game
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	game       *Game
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	// Persistence & admin; db and analytics may be nil
	db        *DB
	auth      *Auth
	analytics *Analytics
	cfg       Config
}

// NewHub creates a new Hub
func NewHub(cfg Config, game *Game, db *DB, auth *Auth, analytics *Analytics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		game:       game,
		ipConns:    make(map[string]int),
		db:         db,
		auth:       auth,
		analytics:  analytics,
		cfg:        cfg,
	}
}

// CanAccept applies the connection limits and the ban list
func (h *Hub) CanAccept(ip string) bool {
	if h.IsBanned(ip) {
		return false
	}
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

// IsBanned reports whether ip is on the ban list
func (h *Hub) IsBanned(ip string) bool {
	if h.db == nil || h.auth == nil {
		return false
	}
	banned, err := h.db.IsBanned(h.auth.HashAddr(ip))
	if err != nil {
		log.Error().Err(err).Str("ip", ip).Msg("ban lookup failed")
		return false
	}
	return banned
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.track(EvtConnect, client, "")

		case client := <-h.unregister:
			// leave first so the game stops sending before the channel closes
			h.game.Leave(client.entity)
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			h.track(EvtDisconnect, client, "")
			log.Info().Str("conn", client.id).Uint32("entity", uint32(client.entity)).Msg("client left")
		}
	}
}

// ProtocolError handles a frame that failed to decode. The connection is
// dropped by the caller; the address is banned when configured to.
func (h *Hub) ProtocolError(c *Client, err error) {
	log.Warn().Err(err).Str("conn", c.id).Str("ip", c.remoteAddr).Msg("protocol error, dropping connection")
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	h.track(EvtProtocolError, c, string(data))
	if !h.cfg.BanOnProtocolError || h.db == nil || h.auth == nil {
		return
	}
	if err := h.db.AddBan(h.auth.HashAddr(c.remoteAddr), "protocol error: "+err.Error()); err != nil {
		log.Error().Err(err).Str("ip", c.remoteAddr).Msg("recording ban")
	}
}

func (h *Hub) track(kind string, c *Client, data string) {
	if h.analytics != nil {
		h.analytics.Track(kind, uint32(c.entity), "", data)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
