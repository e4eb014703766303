// Package server is the thin HTTP shell around the engine: the /ws
// push endpoint, the status and recent-alerts endpoints and the
// Prometheus exposition.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"duetto/internal/engine"
	"duetto/internal/hub"
)

// Server serves the push protocol and the status surface.
type Server struct {
	hub      *hub.Hub
	engine   *engine.Engine
	mux      *http.ServeMux
	httpSrv  *http.Server
	upgrader websocket.Upgrader
}

// New builds a server bound to host:port.
func New(host string, port int, h *hub.Hub, eng *engine.Engine) *Server {
	s := &Server{
		hub:    h,
		engine: eng,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Alerts are public; any origin may subscribe.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/alerts/recent", s.handleRecent)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.httpSrv = &http.Server{
		Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled, then shuts down gracefully. A
// bind failure is returned to the caller and is fatal.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpSrv.Shutdown(shutdownCtx)
	}()

	log.Printf("Listening on %s", s.httpSrv.Addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return errors.Wrap(err, "serve")
}

// handleWS upgrades the connection, attaches it to the hub and reads
// (and discards) inbound frames until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Warning: websocket upgrade failed: %v", err)
		return
	}

	client := newWSClient(conn)
	s.hub.Attach(client)
	defer s.hub.Detach(client.ID())

	// Inbound frames are keep-alives only.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	status := "stopped"
	if st.Running {
		status = "running"
	}
	writeJSON(w, map[string]any{
		"status":       status,
		"connections":  st.Connections,
		"alerts_count": st.RecentCount,
	})
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	alerts := s.hub.Recent(limit)
	w.Header().Set("Content-Type", "application/json")
	if len(alerts) == 0 {
		// A nil slice would encode as null; clients expect an array.
		w.Write([]byte("[]\n"))
		return
	}
	if err := json.NewEncoder(w).Encode(alerts); err != nil {
		log.Printf("Warning: encoding recent alerts: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Warning: encoding response: %v", err)
	}
}
