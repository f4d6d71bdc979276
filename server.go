package main

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	qrcode "github.com/skip2/go-qrcode"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
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

// SetupRoutes configures the HTTP surface: the WebSocket endpoint plus a
// small read-only API for health, leaderboard and spectate links.
func SetupRoutes(hub *Hub) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// WebSocket endpoint
	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		ip := extractIP(req)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			hub.log.Warn("upgrade", zap.Error(err))
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]interface{}{
			"status":   "ok",
			"clients":  hub.ClientCount(),
			"sessions": hub.sessions.Count(),
			"queued":   hub.matchmaker.QueuedCount(),
			"matches":  hub.matches.ActiveMatches(),
		})
	})

	r.Get("/leaderboard", func(w http.ResponseWriter, req *http.Request) {
		entries, err := hub.db.GetLeaderboard(50)
		if err != nil {
			http.Error(w, "leaderboard unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, entries)
	})

	// QR code for a spectate link, scannable from a phone
	r.Get("/qr/{matchID}", func(w http.ResponseWriter, req *http.Request) {
		matchID := chi.URLParam(req, "matchID")
		if hub.matches.World(matchID) == nil {
			http.Error(w, "match not found", http.StatusNotFound)
			return
		}
		link := fmt.Sprintf("http://%s/watch/%s", req.Host, matchID)
		png, err := qrcode.Encode(link, qrcode.Medium, 256)
		if err != nil {
			http.Error(w, "qr encode failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})

	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
