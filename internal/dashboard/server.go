// Package dashboard serves the bot's operational status over HTTP.
package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/twei55/otcbot/internal/config"
)

// StatusSource exposes the bot runtime state the dashboard reports.
type StatusSource interface {
	StartedAt() time.Time
	LastHeartbeat() string
}

// AlertSource reports how many unanswered-message checks are in flight.
type AlertSource interface {
	PendingAlerts() int
}

// ListCounter exposes the sizes of the loaded user and group lists.
type ListCounter interface {
	Counts() config.ListCounts
}

type Server struct {
	router    *chi.Mux
	server    *http.Server
	bot       StatusSource
	alerts    AlertSource
	lists     ListCounter
	logger    *logrus.Logger
	addr      string
	authToken string
}

type Config struct {
	Addr      string
	AuthToken string
}

// Status is the /api/status payload.
type Status struct {
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	Uptime        string     `json:"uptime"`
	LastHeartbeat string     `json:"last_heartbeat"`
	PendingAlerts int        `json:"pending_alerts"`
	Lists         ListCounts `json:"lists"`
}

// ListCounts mirrors the loaded list sizes for the JSON payload.
type ListCounts struct {
	AllowedUsers    int `json:"allowed_users"`
	LargeGroups     int `json:"large_groups"`
	AllGroups       int `json:"all_groups"`
	MonitoredGroups int `json:"monitored_groups"`
}

func NewServer(cfg Config, bot StatusSource, alerts AlertSource, lists ListCounter, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Server{
		router:    chi.NewRouter(),
		bot:       bot,
		alerts:    alerts,
		lists:     lists,
		logger:    logger,
		addr:      cfg.Addr,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/api/status", s.handleStatus)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	s.logger.Infof("Starting dashboard server on %s", s.addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
		s.logger.WithError(err).Error("Failed to encode health response")
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	counts := s.lists.Counts()
	started := s.bot.StartedAt()

	status := Status{
		Status:        "running",
		StartedAt:     started,
		Uptime:        time.Since(started).Round(time.Second).String(),
		LastHeartbeat: s.bot.LastHeartbeat(),
		PendingAlerts: s.alerts.PendingAlerts(),
		Lists: ListCounts{
			AllowedUsers:    counts.AllowedUsers,
			LargeGroups:     counts.LargeGroups,
			AllGroups:       counts.AllGroups,
			MonitoredGroups: counts.MonitoredGroups,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.WithError(err).Error("Failed to encode status response")
	}
}
