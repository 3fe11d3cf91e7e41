package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"driveguardian/go-backend/internal/detection"
	"driveguardian/go-backend/internal/history"
	"driveguardian/go-backend/internal/models"
	"driveguardian/go-backend/internal/scoring"
	"driveguardian/go-backend/internal/services"
	"driveguardian/go-backend/internal/store"
)

const Version = "1.0"

type Deps struct {
	Repo        *store.Repository
	StoreName   string
	Metrics     *services.Metrics
	Alerter     services.Alerter
	Params      detection.Params
	Logger      *zap.Logger
	CORSOrigins string
	Now         func() time.Time
}

// Handler serves the REST API and the WebSocket endpoint. Hours and
// calendar days in the aggregates are taken in the server's local zone.
type Handler struct {
	repo        *store.Repository
	storeName   string
	metrics     *services.Metrics
	alerter     services.Alerter
	params      detection.Params
	logger      *zap.Logger
	corsOrigins string
	now         func() time.Time
	startedAt   time.Time

	clients *WebSocketClients
}

func New(d Deps) *Handler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Metrics == nil {
		d.Metrics = services.NewMetrics()
	}
	if d.Alerter == nil {
		d.Alerter = services.NewLogAlerter(d.Logger)
	}
	if d.CORSOrigins == "" {
		d.CORSOrigins = "*"
	}
	return &Handler{
		repo:        d.Repo,
		storeName:   d.StoreName,
		metrics:     d.Metrics,
		alerter:     d.Alerter,
		params:      d.Params,
		logger:      d.Logger,
		corsOrigins: d.CORSOrigins,
		now:         d.Now,
		startedAt:   d.Now(),
		clients:     newWebSocketClients(),
	}
}

// Routes registers every endpoint on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWebSocket)

	mux.HandleFunc("/api/health", h.get(h.handleHealth))
	mux.HandleFunc("/api/metrics", h.get(h.handleMetrics))
	mux.Handle("/metrics", h.metrics.Handler())

	mux.HandleFunc("/api/history", h.get(h.handleHistory))
	mux.HandleFunc("/api/history/export", h.get(h.handleExport))
	mux.HandleFunc("/api/analytics", h.get(h.handleAnalytics))
	mux.HandleFunc("/api/charts", h.get(h.handleCharts))
	mux.HandleFunc("/api/achievements", h.get(h.handleAchievements))
	mux.HandleFunc("/api/encouragement", h.get(h.handleEncouragement))
	mux.HandleFunc("/api/last-session", h.get(h.handleLastSession))

	mux.HandleFunc("/api/publish", h.post(h.handlePublish))
	mux.HandleFunc("/api/community", h.get(h.handleCommunity))
	mux.HandleFunc("/api/community/stats", h.get(h.handleCommunityStats))

	mux.HandleFunc("/api/auth/login", h.post(h.handleLogin))
	mux.HandleFunc("/api/auth/logout", h.post(h.handleLogout))
	mux.HandleFunc("/api/auth/me", h.get(h.handleMe))
}

func (h *Handler) enableCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", h.corsOrigins)
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func (h *Handler) method(m string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.enableCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != m {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func (h *Handler) get(next http.HandlerFunc) http.HandlerFunc  { return h.method(http.MethodGet, next) }
func (h *Handler) post(next http.HandlerFunc) http.HandlerFunc { return h.method(http.MethodPost, next) }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, history.ErrUnknownRange),
		errors.Is(err, history.ErrUnknownSort),
		errors.Is(err, history.ErrUnknownFilter),
		errors.Is(err, services.ErrUnknownFormat),
		errors.Is(err, store.ErrInvalidLogin):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotLoggedIn):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, services.ErrNoHistory):
		return http.StatusNotFound
	case errors.Is(err, store.ErrNoLastSession):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		h.metrics.IncrementErrors()
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "Internal server error", code)
		return
	}
	http.Error(w, err.Error(), code)
}

func (h *Handler) Health(ctx context.Context) models.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	hs := models.HealthStatus{
		Status:         "healthy",
		Store:          h.storeName,
		StoreHealthy:   true,
		ActiveSessions: h.metrics.GetActiveSessions(),
		Uptime:         h.now().Sub(h.startedAt),
		Version:        Version,
	}
	if err := h.repo.Ping(ctx); err != nil {
		h.logger.Warn("store ping failed", zap.String("store", h.storeName), zap.Error(err))
		hs.Status = "degraded"
		hs.StoreHealthy = false
	}
	return hs
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	hs := h.Health(r.Context())
	code := http.StatusOK
	if !hs.StoreHealthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, hs)
}

func (h *Handler) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := h.metrics.Snapshot()
	m["system_uptime_sec"] = int(h.now().Sub(h.startedAt).Seconds())
	m["timestamp"] = h.now().Format(time.RFC3339)
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.History(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []models.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := services.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	list, err := h.repo.History(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	body, err := services.Export(list, format)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, services.ExportFilename(h.now(), format)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// rangedHistory loads the history and parses the range query parameter.
func (h *Handler) rangedHistory(r *http.Request) ([]models.SessionRecord, history.TimeRange, error) {
	tr, err := history.ParseTimeRange(r.URL.Query().Get("range"))
	if err != nil {
		return nil, "", err
	}
	list, err := h.repo.History(r.Context())
	return list, tr, err
}

func (h *Handler) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	list, tr, err := h.rangedHistory(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history.Summarize(list, tr, h.now()))
}

func (h *Handler) handleCharts(w http.ResponseWriter, r *http.Request) {
	list, tr, err := h.rangedHistory(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	now := h.now()
	writeJSON(w, http.StatusOK, history.BuildCharts(history.Filter(list, tr, now), now))
}

func (h *Handler) handleAchievements(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.History(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history.Achievements(list, h.now().Location()))
}

func (h *Handler) handleEncouragement(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.History(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history.Encourage(list))
}

type lastSessionResponse struct {
	models.SessionRecord
	Badge string `json:"badge"`
}

func (h *Handler) handleLastSession(w http.ResponseWriter, r *http.Request) {
	rec, err := h.repo.LastSession(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lastSessionResponse{SessionRecord: rec, Badge: scoring.Badge(rec.Score)})
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req models.PublishRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request", http.StatusBadRequest)
			return
		}
	}
	j, err := h.repo.Publish(r.Context(), req, h.now())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, j)
}

type communityEntry struct {
	models.PublishedJourney
	Tags []string `json:"tags"`
}

func (h *Handler) handleCommunity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := history.ParseCommunityFilter(q.Get("filter"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	sortParam := q.Get("sort")
	if sortParam == "" && filter == history.FilterTop {
		sortParam = string(history.SortScoreDesc)
	}
	sort, err := history.ParseSort(sortParam)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	all, err := h.repo.Published(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	list := history.ListJourneys(all, history.CommunityQuery{Filter: filter, Search: q.Get("search"), Sort: sort}, h.now())
	out := make([]communityEntry, len(list))
	for i, j := range list {
		out[i] = communityEntry{PublishedJourney: j, Tags: history.Tags(j)}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCommunityStats(w http.ResponseWriter, r *http.Request) {
	all, err := h.repo.Published(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history.Community(all))
}

var providerDomains = map[string]string{
	"google":    "gmail.com",
	"microsoft": "outlook.com",
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	email := strings.TrimSpace(req.Email)
	if req.Provider != "" {
		domain, ok := providerDomains[strings.ToLower(req.Provider)]
		if !ok {
			http.Error(w, "Unknown login provider", http.StatusBadRequest)
			return
		}
		email = fmt.Sprintf("driver%d@%s", rand.IntN(1000), domain)
	} else if email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	if err := h.repo.Login(r.Context(), email); err != nil {
		h.fail(w, r, err)
		return
	}
	h.logger.Info("driver logged in", zap.String("driver", email), zap.String("provider", req.Provider))
	writeJSON(w, http.StatusOK, models.LoginState{LoggedIn: true, Driver: email})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Logout(r.Context()); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LoginState{})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	state, err := h.repo.LoginState(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// NewMonitor builds a monitor for one connection. extra receives the tone
// edges in addition to the server-wide alerter.
func (h *Handler) NewMonitor(clientID string, extra services.Alerter) *services.Monitor {
	alerter := h.alerter
	if extra != nil {
		alerter = services.Multi{h.alerter, extra}
	}
	return services.NewMonitor(clientID, services.MonitorDeps{
		Params:  h.params,
		Saver:   h.repo,
		Alerter: alerter,
		Metrics: h.metrics,
		Logger:  h.logger,
		Now:     h.now,
	})
}

// CurrentDriver is the logged-in identity, or empty.
func (h *Handler) CurrentDriver(ctx context.Context) string {
	state, err := h.repo.LoginState(ctx)
	if err != nil {
		h.logger.Warn("could not read login state", zap.Error(err))
		return ""
	}
	return state.Driver
}
