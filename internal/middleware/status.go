package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/wa-ai-replybot-go/internal/config"
	"github.com/wa-ai-replybot-go/internal/models"
)

// StatusSource supplies the dashboard view
type StatusSource interface {
	LoginStatus() models.LoginStatus
	Stats(ctx context.Context) models.Stats
	Settings() models.Settings
}

type statusResponse struct {
	Login    models.LoginStatus `json:"login"`
	Stats    models.Stats       `json:"stats"`
	Settings settingsView       `json:"settings"`
}

type settingsView struct {
	Version      uint64    `json:"version"`
	PrivateReply bool      `json:"private_reply"`
	GroupReply   bool      `json:"group_reply"`
	Keywords     int       `json:"keywords"`
	LoadedAt     time.Time `json:"loaded_at"`
}

// NewRouter builds the monitoring routes
func NewRouter(metricsPath string, source StatusSource, logger *logrus.Logger) *mux.Router {
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	router := mux.NewRouter()
	router.Handle(metricsPath, promhttp.Handler())

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	router.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		s := source.Settings()
		resp := statusResponse{
			Login: source.LoginStatus(),
			Stats: source.Stats(r.Context()),
			Settings: settingsView{
				Version:      s.Version,
				PrivateReply: s.PrivateReply,
				GroupReply:   s.GroupReply,
				Keywords:     len(s.Keywords),
				LoadedAt:     s.LoadedAt,
			},
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			logger.WithError(err).Warn("Failed to write status response")
		}
	}).Methods(http.MethodGet)

	return router
}

// NewServer creates the metrics/status HTTP server
func NewServer(cfg *config.MonitoringConfig, source StatusSource, logger *logrus.Logger) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      NewRouter(cfg.Path, source, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
