package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sentinelflow/internal/models"
)

//go:embed templates/*.html static/*
var webFS embed.FS

const maxSampleBytes = 64 << 10

type Engine interface {
	Ingest(s models.Sample) models.NodeState
	ListNodes() []models.NodeState
	Node(agentID string) (models.NodeState, bool)
}

type AlertStore interface {
	RecentAlerts(ctx context.Context, agentID string, limit int) ([]models.AlertEvent, error)
	SaveTelegramSettings(ctx context.Context, token, chatID string) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Notifier interface {
	Update(token, chatID string)
	Send(ctx context.Context, msg string) error
}

type IngestObserver interface {
	ObserveIngest(d time.Duration)
}

type Server struct {
	engine   Engine
	alerts   AlertStore
	db       Pinger
	notify   Notifier
	observer IngestObserver
	gatherer prometheus.Gatherer
	hub      *Hub
	log      *slog.Logger
	tpl      *template.Template
}

type Deps struct {
	Engine   Engine
	Alerts   AlertStore
	DB       Pinger
	Notify   Notifier
	Observer IngestObserver
	Gatherer prometheus.Gatherer
	Hub      *Hub
}

func NewServer(d Deps, logger *slog.Logger) *Server {
	tpl := template.Must(template.New("all").Funcs(template.FuncMap{
		"risk": func(v float64) string { return fmt.Sprintf("%.1f", v) },
	}).ParseFS(webFS, "templates/*.html"))
	return &Server{
		engine:   d.Engine,
		alerts:   d.Alerts,
		db:       d.DB,
		notify:   d.Notify,
		observer: d.Observer,
		gatherer: d.Gatherer,
		hub:      d.Hub,
		log:      logger,
		tpl:      tpl,
	}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /ingest", s.handleIngest)
	mux.HandleFunc("GET /nodes", s.handleListNodes)
	mux.HandleFunc("GET /nodes/{id}", s.handleNode)
	mux.HandleFunc("GET /api/alerts", s.handleAlerts)
	mux.HandleFunc("POST /settings/telegram", s.handleSettingsTelegram)
	mux.HandleFunc("POST /api/alerts/test-telegram", s.handleTestTelegram)
	mux.HandleFunc("GET /dashboard", s.handleDashboard)
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)
	if s.hub != nil {
		mux.HandleFunc("GET /ws", s.hub.ServeWS)
	}
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	staticFS, _ := fs.Sub(webFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	return logMiddleware(mux, s.log)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "SentinelFlow server with risk engine running"})
}

type ingestResponse struct {
	Status    string  `json:"status"`
	AgentID   string  `json:"agent_id"`
	RiskScore float64 `json:"risk_score"`
	LastAlert *string `json:"last_alert"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var sample models.Sample
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSampleBytes))
	if err := dec.Decode(&sample); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := validateSample(sample); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	sample.Timestamp = sample.Timestamp.UTC()

	node := s.engine.Ingest(sample)
	if s.observer != nil {
		s.observer.ObserveIngest(time.Since(start))
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Status:    "received",
		AgentID:   node.AgentID,
		RiskScore: node.RiskScore,
		LastAlert: node.LastAlert,
	})
}

func validateSample(s models.Sample) error {
	if strings.TrimSpace(s.AgentID) == "" {
		return errors.New("agent_id is required")
	}
	if s.Timestamp.IsZero() {
		return errors.New("timestamp is required")
	}
	counters := map[string]int64{
		"bytes_sent":   s.BytesSent,
		"bytes_recv":   s.BytesRecv,
		"packets_sent": s.PacketsSent,
		"packets_recv": s.PacketsRecv,
	}
	if s.SynCount.Valid {
		counters["syn_count"] = s.SynCount.N
	}
	if s.UniqueDstPorts.Valid {
		counters["unique_dst_ports"] = s.UniqueDstPorts.N
	}
	for name, v := range counters {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListNodes())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	node, ok := s.engine.Node(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown agent")
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	alerts, err := s.alerts.RecentAlerts(r.Context(), r.URL.Query().Get("agent_id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleSettingsTelegram(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token  string `json:"token"`
		ChatID string `json:"chat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	token := strings.TrimSpace(req.Token)
	chatID := strings.TrimSpace(req.ChatID)
	if err := s.alerts.SaveTelegramSettings(r.Context(), token, chatID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.notify.Update(token, chatID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTestTelegram(w http.ResponseWriter, r *http.Request) {
	if err := s.notify.Send(r.Context(), "SentinelFlow test alert: Telegram integration is working"); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{"nodes": s.engine.ListNodes()}
	if err := s.tpl.ExecuteTemplate(w, "dashboard.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
