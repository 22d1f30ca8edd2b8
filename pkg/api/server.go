// Package api serves the local read-only status surface: health, session
// and safety state, and Prometheus metrics. It binds to loopback by
// default and never exposes order entry.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	json "github.com/goccy/go-json"

	"github.com/uhyunpark/hyperflow/pkg/dms"
	"github.com/uhyunpark/hyperflow/pkg/exchange"
	"github.com/uhyunpark/hyperflow/pkg/nonce"
	"github.com/uhyunpark/hyperflow/pkg/session"
)

// Server exposes the trader's runtime state over HTTP.
type Server struct {
	router *mux.Router
	log    *zap.Logger

	sess   *session.Machine
	dms    *dms.Scheduler
	nonces *nonce.Manager
	client *exchange.Client

	httpSrv *http.Server
}

func NewServer(sess *session.Machine, sched *dms.Scheduler, nonces *nonce.Manager, client *exchange.Client, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		router: mux.NewRouter(),
		log:    log,
		sess:   sess,
		dms:    sched,
		nonces: nonces,
		client: client,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	s.router.Handle("/metrics", promhttp.Handler())
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the full route stack, CORS included.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.router)
}

// Start blocks serving until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info("status server starting", zap.String("addr", addr))
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

type statusResponse struct {
	Phase         string     `json:"phase"`
	LastHeartbeat *time.Time `json:"lastHeartbeat,omitempty"`
	DMS           dmsStatus  `json:"dms"`
	Nonce         nonceStats `json:"nonce"`
	RestingOrders int        `json:"restingOrders"`
	Timestamp     time.Time  `json:"timestamp"`
}

type dmsStatus struct {
	State    string     `json:"state"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

type nonceStats struct {
	Last       int64 `json:"last"`
	WindowSize int   `json:"windowSize"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Timestamp: time.Now().UTC()}

	if s.sess != nil {
		resp.Phase = s.sess.Phase().String()
		if hb := s.sess.LastHeartbeat(); !hb.IsZero() {
			resp.LastHeartbeat = &hb
		}
	}
	if s.dms != nil {
		resp.DMS.State = s.dms.State().String()
		if dl := s.dms.Deadline(); !dl.IsZero() {
			resp.DMS.Deadline = &dl
		}
	}
	if s.nonces != nil {
		last, recent := s.nonces.Snapshot()
		resp.Nonce = nonceStats{Last: last, WindowSize: len(recent)}
	}
	if s.client != nil {
		resp.RestingOrders = len(s.client.RestingRefs())
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
