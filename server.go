package main

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"github.com/vmihailenco/msgpack/v5"

	"arena-server/internal/protocol"
)

const qrSize = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// Serve static files with no-cache so browsers always revalidate
	fs := http.FileServer(http.Dir(clientDir))
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		fs.ServeHTTP(w, r)
	}))

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveWS(hub, w, r)
	})

	mux.HandleFunc("GET /info", func(w http.ResponseWriter, r *http.Request) {
		info := hub.game.Info()
		if r.URL.Query().Get("format") == "json" {
			writeJSON(w, http.StatusOK, info)
			return
		}
		body, err := msgpack.Marshal(&info)
		if err != nil {
			http.Error(w, "encoding failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/msgpack")
		w.Write(body)
	})

	mux.HandleFunc("GET /qr.png", func(w http.ResponseWriter, r *http.Request) {
		png, err := qrcode.Encode(hub.cfg.PublicURL, qrcode.Medium, qrSize)
		if err != nil {
			log.Error().Err(err).Str("url", hub.cfg.PublicURL).Msg("qr encode failed")
			http.Error(w, "qr encoding failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "max-age=3600")
		w.Write(png)
	})

	setupAdminRoutes(mux, hub)
	return mux
}

func serveWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	ip := extractIP(r)
	if !hub.CanAccept(ip) {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Str("ip", ip).Msg("upgrade failed")
		return
	}

	client := NewClient(hub, conn, ip)
	frame, err := protocol.EncodeServerInfo(hub.game.Info())
	if err != nil {
		log.Error().Err(err).Msg("encoding server info")
		conn.Close()
		return
	}
	client.SendBinary(frame)

	id, err := hub.game.Join(client)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()))
		conn.Close()
		return
	}
	client.entity = id

	hub.TrackConnect(ip)
	hub.register <- client
	log.Info().Str("conn", client.id).Str("ip", ip).Uint32("entity", uint32(id)).Msg("client joined")

	go client.WritePump()
	go client.ReadPump()
}

func setupAdminRoutes(mux *http.ServeMux, hub *Hub) {
	mux.HandleFunc("POST /admin/login", func(w http.ResponseWriter, r *http.Request) {
		if hub.auth == nil {
			http.Error(w, "admin disabled", http.StatusNotFound)
			return
		}
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		token, err := hub.auth.Login(req.Username, req.Password, extractIP(r))
		switch {
		case errors.Is(err, ErrAdminDisabled):
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		case errors.Is(err, ErrTooManyAttempts):
			http.Error(w, err.Error(), http.StatusTooManyRequests)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		log.Info().Str("ip", extractIP(r)).Msg("admin login")
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	})

	mux.HandleFunc("GET /admin/bans", requireAdmin(hub, func(w http.ResponseWriter, r *http.Request) {
		bans, err := hub.db.ListBans()
		if err != nil {
			log.Error().Err(err).Msg("listing bans")
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, bans)
	}))

	mux.HandleFunc("POST /admin/unban", requireAdmin(hub, func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Hash string `json:"hash"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Hash == "" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		found, err := hub.db.RemoveBan(req.Hash)
		if err != nil {
			log.Error().Err(err).Msg("removing ban")
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		if !found {
			http.Error(w, "no such ban", http.StatusNotFound)
			return
		}
		log.Info().Str("hash", req.Hash).Msg("ban lifted")
		w.WriteHeader(http.StatusNoContent)
	}))

	mux.HandleFunc("GET /admin/stats", requireAdmin(hub, func(w http.ResponseWriter, r *http.Request) {
		counts, err := hub.analytics.EventCounts(7)
		if err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		killers, err := hub.analytics.TopKillers(10)
		if err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		scores, err := hub.analytics.HighestScores(10)
		if err != nil {
			http.Error(w, "database error", http.StatusInternalServerError)
			return
		}
		peers, dropped := hub.analytics.LiveMetrics()
		writeJSON(w, http.StatusOK, map[string]any{
			"events":         counts,
			"top_killers":    killers,
			"high_scores":    scores,
			"players":        peers,
			"dropped_events": dropped,
			"tick":           hub.game.CurrentTick(),
		})
	}))
}

// requireAdmin rejects requests without a valid admin bearer token
func requireAdmin(hub *Hub, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if hub.auth == nil || hub.db == nil || hub.analytics == nil {
			http.Error(w, "admin disabled", http.StatusNotFound)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if _, err := hub.auth.ValidateToken(token); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("writing json response")
	}
}
