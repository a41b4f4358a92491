// Package service exposes the client state over HTTP.
package service

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/linecrypto/clearnode/src/client"
	"github.com/linecrypto/clearnode/src/metrics"
	"github.com/linecrypto/clearnode/src/net"
	"github.com/linecrypto/clearnode/src/rpc"
	"github.com/sirupsen/logrus"
)

// Client is the part of client.Client the service reads.
type Client interface {
	State() client.State
	ConnectionStatus() net.Status
	Address() string
	RetryCount() int
	ExpireTimestamp() uint64
	PendingCount() int
	Channels() []rpc.Channel
	Balances() []rpc.Balance
	Sessions() *client.SessionRegistry
}

// Status is the body of GET /status.
type Status struct {
	State         string              `json:"state"`
	Connection    string              `json:"connection"`
	Authenticated bool                `json:"authenticated"`
	Address       string              `json:"address"`
	RetryCount    int                 `json:"retry_count"`
	Expire        uint64              `json:"expire"`
	Pending       int                 `json:"pending"`
	Sessions      client.SessionStats `json:"sessions"`
}

// Service ...
type Service struct {
	bindAddress string
	client      Client
	metrics     *metrics.Metrics
	router      chi.Router
	server      *http.Server
	logger      *logrus.Entry
}

// NewService creates the service and its routes. m may be nil, in which case
// /metrics is not served.
func NewService(bindAddress string, c Client, m *metrics.Metrics, logger *logrus.Entry) *Service {
	s := &Service{
		bindAddress: bindAddress,
		client:      c,
		metrics:     m,
		logger:      logger,
	}

	s.router = s.routes()
	s.server = &http.Server{
		Addr:              bindAddress,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

func (s *Service) routes() chi.Router {
	s.logger.Debug("Registering API handlers")

	r := chi.NewRouter()
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors)

	r.Get("/status", s.GetStatus)
	r.Get("/channels", s.GetChannels)
	r.Get("/balances", s.GetBalances)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.GetSessions)
		r.Get("/{id}", s.GetSession)
	})

	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	return r
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		next.ServeHTTP(w, r)
	})
}

// Handler returns the router, for embedding in another server.
func (s *Service) Handler() http.Handler {
	return s.router
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := s.server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Shutdown stops the server.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// GetStatus ...
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	state := s.client.State()

	writeJSON(w, http.StatusOK, Status{
		State:         state.String(),
		Connection:    s.client.ConnectionStatus().String(),
		Authenticated: state == client.Authenticated,
		Address:       s.client.Address(),
		RetryCount:    s.client.RetryCount(),
		Expire:        s.client.ExpireTimestamp(),
		Pending:       s.client.PendingCount(),
		Sessions:      s.client.Sessions().Stats(),
	})
}

// GetChannels ...
func (s *Service) GetChannels(w http.ResponseWriter, r *http.Request) {
	channels := s.client.Channels()
	if channels == nil {
		channels = []rpc.Channel{}
	}
	writeJSON(w, http.StatusOK, channels)
}

// GetBalances ...
func (s *Service) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances := s.client.Balances()
	if balances == nil {
		balances = []rpc.Balance{}
	}
	writeJSON(w, http.StatusOK, balances)
}

// GetSessions lists application sessions. ?status=open restricts the list to
// open sessions.
func (s *Service) GetSessions(w http.ResponseWriter, r *http.Request) {
	var sessions []*client.AppSession

	switch r.URL.Query().Get("status") {
	case "", "all":
		sessions = s.client.Sessions().All()
	case string(client.SessionOpen):
		sessions = s.client.Sessions().Active()
	case string(client.SessionClosed):
		sessions = []*client.AppSession{}
		for _, as := range s.client.Sessions().All() {
			if as.Status == client.SessionClosed {
				sessions = append(sessions, as)
			}
		}
	default:
		http.Error(w, "unknown status filter", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, sessions)
}

// GetSession ...
func (s *Service) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	as, ok := s.client.Sessions().Get(id)
	if !ok {
		s.logger.WithField("id", id).Debug("Unknown app session")
		http.Error(w, "app session not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, as)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
