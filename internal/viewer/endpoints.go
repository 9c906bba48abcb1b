package viewer

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/miktos/realtime-viewer/internal/frontend"
)

// staticMux serves the browser client plus a small discovery endpoint that
// tells it where the channel actually landed after port negotiation.
func (s *Server) staticMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/config.json", s.handleConfig)
	mux.HandleFunc("/health", s.handleHealth)

	handler := s.cfg.StaticHandler
	if handler == nil {
		handler = frontend.Handler()
	}
	if handler == nil {
		log.Printf("[viewer] no embedded frontend, serving placeholder page")
		handler = http.HandlerFunc(s.handlePlaceholder)
	}
	mux.Handle("/", handler)
	return mux
}

func (s *Server) channelMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// handleConfig reports the negotiated addresses. Clients load the page from
// the static port, then dial whatever channel address this returns.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	body := map[string]any{
		"http_port": s.httpPort,
		"ws_port":   s.wsPort,
		"ws_url":    fmt.Sprintf("ws://%s:%d/ws", s.cfg.Host, s.wsPort),
		"quality":   s.quality,
	}
	s.mu.RUnlock()
	body["layout"] = s.views.Layout()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"state":   state,
		"clients": s.clientCount.Load(),
	})
}

func (s *Server) handlePlaceholder(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<!doctype html><title>Miktos Viewer</title><p>Viewer backend is running. Build with -tags embed for the bundled client.</p>")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[viewer] ws upgrade: %v", err)
		return
	}

	c := newClient(conn)

	s.mu.RLock()
	done := s.done
	reg := s.register
	s.mu.RUnlock()
	if done == nil {
		conn.Close()
		return
	}
	select {
	case reg <- c:
	case <-done:
		conn.Close()
		return
	}

	go s.readPump(c, done)
}

// checkOrigin allows same-host and local origins; previews are a local
// development surface, not an internet-facing one.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	if hostname := parsed.Hostname(); hostname == "localhost" || hostname == "127.0.0.1" || hostname == "::1" {
		return true
	}
	// Pages served from our own static port carry that port in the origin.
	s.mu.RLock()
	httpPort := s.httpPort
	s.mu.RUnlock()
	return strings.HasSuffix(host, fmt.Sprintf(":%d", httpPort))
}
