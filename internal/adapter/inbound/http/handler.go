package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mcpgate/mcpgate/internal/adapter/outbound/backup"
	"github.com/mcpgate/mcpgate/internal/adapter/outbound/settings"
	"github.com/mcpgate/mcpgate/internal/domain/accesslog"
	"github.com/mcpgate/mcpgate/internal/domain/auth"
	"github.com/mcpgate/mcpgate/internal/domain/principal"
	"github.com/mcpgate/mcpgate/internal/service"
)

// ToolForwarder relays an authenticated tool-invocation request to the
// downstream transport. The gateway owns the authorization decision; what
// happens on the wire afterwards belongs to the forwarder.
type ToolForwarder interface {
	// Forward handles one tool call. scope narrows the downstream target:
	// empty for the global route, a group name, or "server:<name>".
	Forward(w http.ResponseWriter, r *http.Request, scope string)
}

// apiResponse is the uniform JSON envelope.
type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Handler exposes the gateway over HTTP.
type Handler struct {
	gateway   *service.GatewayService
	logs      *service.AccessLogService
	backups   *backup.Manager
	store     *settings.FileStore
	forwarder ToolForwarder
	metrics   *Metrics
	registry  *prometheus.Registry
	logger    *slog.Logger
}

// NewHandler wires the HTTP surface to its services.
func NewHandler(
	gateway *service.GatewayService,
	logs *service.AccessLogService,
	backups *backup.Manager,
	store *settings.FileStore,
	forwarder ToolForwarder,
	metrics *Metrics,
	registry *prometheus.Registry,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		gateway:   gateway,
		logs:      logs,
		backups:   backups,
		store:     store,
		forwarder: forwarder,
		metrics:   metrics,
		registry:  registry,
		logger:    logger,
	}
}

// Routes builds the full route table with middleware applied.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))

	// Tool-invocation routes.
	mux.Handle("/mcp", h.guardTool(h.handleToolGlobal))
	mux.Handle("/mcp/{group}", h.guardTool(h.handleToolGroup))
	mux.Handle("/mcp/server/{server}", h.guardTool(h.handleToolServer))

	// Admin routes.
	mux.Handle("GET /api/logs", h.guardAdmin(h.handleLogsQuery))
	mux.Handle("GET /api/logs/stats", h.guardAdmin(h.handleLogsStats))
	mux.Handle("DELETE /api/logs", h.guardAdmin(h.handleLogsClear))
	mux.Handle("GET /api/backups", h.guardAdmin(h.handleBackupsList))
	mux.Handle("POST /api/backups", h.guardAdmin(h.handleBackupCreate))
	mux.Handle("POST /api/backups/restore", h.guardAdmin(h.handleBackupRestore))

	var handler http.Handler = mux
	handler = MetricsMiddleware(h.metrics)(handler)
	handler = RequestIDMiddleware(h.logger)(handler)
	return handler
}

// --- auth guards ------------------------------------------------------------

// guard authenticates the request for the given route kind and, on success,
// invokes next with the principal bound to the request context. The binding
// lives in the per-request context only, so it vanishes on every exit path.
func (h *Handler) guard(route auth.RouteKind, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		creds := ExtractCredentials(r)

		p, err := h.gateway.Authenticate(r.Context(), creds, route)
		if err != nil {
			h.rejectAuth(w, r, route, err)
			return
		}

		h.metrics.AuthDecisions.WithLabelValues(string(p.Mode), "allow").Inc()
		ctx := principal.WithPrincipal(r.Context(), p)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) guardTool(next http.HandlerFunc) http.Handler {
	return h.guard(auth.RouteTool, next)
}

func (h *Handler) guardAdmin(next http.HandlerFunc) http.Handler {
	return h.guard(auth.RouteAdmin, next)
}

func (h *Handler) rejectAuth(w http.ResponseWriter, r *http.Request, route auth.RouteKind, err error) {
	status := http.StatusUnauthorized
	outcome := accesslog.OutcomeRejected
	if errors.Is(err, auth.ErrForbidden) {
		status = http.StatusForbidden
		outcome = accesslog.OutcomeForbidden
	}

	h.metrics.AuthDecisions.WithLabelValues("none", string(outcome)).Inc()
	if route == auth.RouteTool {
		h.logs.Record(r.Context(), nil, r.URL.Path, outcome, "", "")
	}

	writeJSON(w, status, apiResponse{
		Success: false,
		Error:   auth.SafeErrorMessage(err),
	})
}

// --- tool routes ------------------------------------------------------------

func (h *Handler) handleToolGlobal(w http.ResponseWriter, r *http.Request) {
	if !h.routingFlags().EnableGlobalRoute {
		httpNotFound(w)
		return
	}
	h.forwardTool(w, r, "")
}

func (h *Handler) handleToolGroup(w http.ResponseWriter, r *http.Request) {
	if !h.routingFlags().EnableGroupNameRoute {
		httpNotFound(w)
		return
	}
	h.forwardTool(w, r, r.PathValue("group"))
}

func (h *Handler) handleToolServer(w http.ResponseWriter, r *http.Request) {
	h.forwardTool(w, r, "server:"+r.PathValue("server"))
}

func (h *Handler) forwardTool(w http.ResponseWriter, r *http.Request, scope string) {
	p, _ := principal.FromContext(r.Context())
	h.logs.Record(r.Context(), p, r.URL.Path, accesslog.OutcomeAllowed, scope, "")
	h.forwarder.Forward(w, r, scope)
}

// routingFlags reads the route-enable flags fresh so toggling them takes
// effect without a restart. On read failure both stay enabled; the auth
// guard has already applied the locked-down defaults.
func (h *Handler) routingFlags() settings.RoutingConfig {
	doc, err := h.store.Load()
	if err != nil {
		return settings.RoutingConfig{EnableGlobalRoute: true, EnableGroupNameRoute: true}
	}
	return doc.SystemConfig.Routing
}

// --- auth routes ------------------------------------------------------------

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Username and password required"})
		return
	}

	token, err := h.gateway.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, apiResponse{
			Success: false,
			Error:   auth.SafeErrorMessage(err),
		})
		return
	}

	writeJSON(w, http.StatusOK, apiResponse{
		Success: true,
		Data:    map[string]string{"token": token},
	})
}

// --- admin: access log ------------------------------------------------------

func (h *Handler) handleLogsQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := accesslog.Filter{
		Username:   q.Get("username"),
		ServerName: q.Get("server"),
		ToolName:   q.Get("tool"),
		Outcome:    accesslog.Outcome(q.Get("outcome")),
		Limit:      queryInt(q.Get("limit")),
		Offset:     queryInt(q.Get("offset")),
	}
	if t, ok := queryTime(q.Get("since")); ok {
		filter.Since = &t
	}
	if t, ok := queryTime(q.Get("until")); ok {
		filter.Until = &t
	}

	page, err := h.logs.Query(r.Context(), filter)
	if err != nil {
		h.internalError(w, r, "querying access log", err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: page})
}

func (h *Handler) handleLogsStats(w http.ResponseWriter, r *http.Request) {
	windowDays := queryInt(r.URL.Query().Get("days"))
	stats, err := h.logs.Stats(r.Context(), windowDays)
	if err != nil {
		h.internalError(w, r, "aggregating access log", err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: stats})
}

func (h *Handler) handleLogsClear(w http.ResponseWriter, r *http.Request) {
	if before, ok := queryTime(r.URL.Query().Get("before")); ok {
		deleted, err := h.logs.Prune(r.Context(), before)
		if err != nil {
			h.internalError(w, r, "pruning access log", err)
			return
		}
		writeJSON(w, http.StatusOK, apiResponse{
			Success: true,
			Data:    map[string]int64{"deleted": deleted},
		})
		return
	}

	if err := h.logs.Clear(r.Context()); err != nil {
		h.internalError(w, r, "clearing access log", err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Access log cleared"})
}

// --- admin: backups ---------------------------------------------------------

func (h *Handler) handleBackupsList(w http.ResponseWriter, r *http.Request) {
	records, err := h.backups.List()
	if err != nil {
		h.internalError(w, r, "listing backups", err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: records})
}

func (h *Handler) handleBackupCreate(w http.ResponseWriter, r *http.Request) {
	rec, err := h.backups.Create()
	if err != nil {
		h.internalError(w, r, "creating backup", err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusOK, apiResponse{
			Success: true,
			Message: "No settings file to back up",
		})
		return
	}
	h.metrics.BackupsCreated.Inc()
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: rec})
}

type restoreRequest struct {
	Location string `json:"location"`
}

func (h *Handler) handleBackupRestore(w http.ResponseWriter, r *http.Request) {
	var req restoreRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil || req.Location == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Success: false, Error: "Backup location required"})
		return
	}

	err := h.backups.Restore(req.Location)
	switch {
	case errors.Is(err, backup.ErrBackupNotFound):
		writeJSON(w, http.StatusNotFound, apiResponse{Success: false, Error: "Backup not found"})
	case errors.Is(err, backup.ErrBackupValidationFailed):
		writeJSON(w, http.StatusUnprocessableEntity, apiResponse{Success: false, Error: "Backup is not a valid settings document"})
	case err != nil:
		h.internalError(w, r, "restoring backup", err)
	default:
		writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "Settings restored"})
	}
}

// --- misc -------------------------------------------------------------------

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: "ok"})
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	LoggerFromContext(r.Context()).Error(op, "error", err)
	writeJSON(w, http.StatusInternalServerError, apiResponse{
		Success: false,
		Error:   auth.SafeErrorMessage(auth.ErrInternal),
	})
}

func writeJSON(w http.ResponseWriter, status int, body apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func httpNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, apiResponse{Success: false, Error: "Route disabled"})
}

func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func queryTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
