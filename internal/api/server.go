// Package api provides the HTTP API and report stream of the pendrag daemon.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"

	"pendrag/internal/config"
	"pendrag/internal/filter"
	"pendrag/internal/network"
	"pendrag/internal/service"
)

// Version is reported in /health and the WebSocket hello
var Version = "dev"

// Server provides HTTP API for status and configuration
type Server struct {
	configMgr *config.Manager
	svc       *service.Service
	wsMgr     *WSManager

	mu      sync.Mutex
	handler http.Handler
	httpSrv *http.Server
}

// NewServer creates a new API server
func NewServer(configMgr *config.Manager, svc *service.Service) *Server {
	s := &Server{
		configMgr: configMgr,
		svc:       svc,
	}
	s.wsMgr = newWSManager(s)
	return s
}

// Handler returns the HTTP handler and starts the WebSocket hub on first use
func (s *Server) Handler() http.Handler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handler != nil {
		return s.handler
	}

	go s.wsMgr.start()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/properties", s.handleProperties)
	mux.HandleFunc("/ws", s.wsMgr.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	s.handler = s.authMiddleware(s.recoverMiddleware(mux))
	return s.handler
}

// Start starts the API server on the specified port. It blocks until the
// server is shut down.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)

	// Diagnostic: producers on other machines need one of these
	if ips, err := network.GetLocalIPs(); err == nil {
		for _, ip := range ips {
			log.Printf("API: Found local IPv4 %s", ip)
		}
	}

	ln, err := net.Listen("tcp4", addr)
	if err != nil {
		log.Printf("API: Failed to listen on %s: %v", addr, err)
		return err
	}
	log.Printf("API: Listening on %s", ln.Addr())

	srv := &http.Server{Handler: s.Handler()}
	s.mu.Lock()
	s.httpSrv = srv
	s.mu.Unlock()

	if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
		log.Printf("API: Server stopped: %v", err)
		return err
	}
	return nil
}

// Shutdown stops the HTTP server and the WebSocket hub
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()

	s.wsMgr.stop()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Sink returns the service sink that streams reports to WebSocket clients
func (s *Server) Sink() service.Sink {
	return s.wsMgr.BroadcastReport
}

// recoverMiddleware prevents panics from crashing the whole server
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("API: Recovered from panic: %v", err)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authMiddleware checks the bearer token if one is configured
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		// read per request so a token change applies without a restart
		if token := s.configMgr.Get().API.Token; token != "" {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// handleConfig handles GET (read) and POST (update) for configuration.
// A POST body is merged over the current configuration.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.configMgr.Get())

	case http.MethodPost:
		newCfg := s.configMgr.Get()
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			http.Error(w, "Invalid configuration data", http.StatusBadRequest)
			return
		}

		log.Printf("API: Receiving configuration update from %s", r.RemoteAddr)

		if err := s.configMgr.Set(newCfg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.configMgr.Save(); err != nil {
			log.Printf("API: Failed to save configuration: %v", err)
			http.Error(w, "Failed to save configuration", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, s.configMgr.Get())

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	st := s.svc.Status()
	st.Stats["ws.clients"] = s.wsMgr.clientCount()
	writeJSON(w, http.StatusOK, st)
}

// handleProperties handles GET /api/properties
func (s *Server) handleProperties(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":       filter.PluginName,
		"properties": filter.Properties(),
	})
}

// handleHealth handles GET /health (for monitoring)
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
}
