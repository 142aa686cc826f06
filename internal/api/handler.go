// Package api provides HTTP handlers for the dynamic query REST API.
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"dynaquery/internal/domain"
	"dynaquery/internal/service/query"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxBodyBytes      = 64 << 10
	maxQuestionLength = 2000
)

// QueryRunner runs the query pipeline. Implemented by query.Service.
type QueryRunner interface {
	Run(ctx context.Context, req query.Request) *query.Result
	History(ctx context.Context, filter domain.QueryRunFilter) ([]domain.QueryRun, int64, error)
}

// SchemaCache serves and invalidates tenant schema snapshots.
// Implemented by schema.Provider.
type SchemaCache interface {
	domain.SchemaSource
	ClearCache(tenant domain.TenantID)
}

// Pinger reports whether the target database is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler serves the /v1 API.
type Handler struct {
	queries   QueryRunner
	validator domain.QueryValidator
	schema    SchemaCache
	changes   chan<- domain.SchemaChange
	db        Pinger
	logger    *slog.Logger
}

// NewHandler creates a Handler. changes may be nil, in which case schema
// change notifications clear the cache directly.
func NewHandler(
	queries QueryRunner,
	validator domain.QueryValidator,
	schema SchemaCache,
	changes chan<- domain.SchemaChange,
	db Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		queries:   queries,
		validator: validator,
		schema:    schema,
		changes:   changes,
		db:        db,
		logger:    logger.With("component", "api"),
	}
}

// errorBody is the JSON error shape shared by every endpoint.
type errorBody struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Errors  []string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Code: status, Message: msg})
}

func writeDomainError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	body := errorBody{Code: status, Message: err.Error()}
	var v *domain.ValidationError
	if errors.As(err, &v) {
		body.Message = v.Message
		body.Errors = v.Reasons
	}
	if status == http.StatusInternalServerError {
		body.Message = "internal error"
	}
	writeJSON(w, status, body)
}

// decodeBody reads a JSON body, rejecting unknown fields and oversized input.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ErrValidation("request body is required")
		}
		return domain.ErrValidation("invalid request body: %v", err)
	}
	return nil
}

// tenantFrom returns the authenticated tenant or writes a 401.
func tenantFrom(w http.ResponseWriter, r *http.Request) (domain.TenantID, bool) {
	t, ok := domain.TenantFromContext(r.Context())
	if !ok || !t.Valid() {
		writeError(w, http.StatusUnauthorized, "unauthorized: no tenant in request")
		return 0, false
	}
	return t, true
}

// Healthz reports liveness and target database reachability.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			h.logger.Warn("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parsePage(r *http.Request) (domain.PageRequest, error) {
	p := domain.PageRequest{PageToken: r.URL.Query().Get("page_token")}
	if v := strings.TrimSpace(r.URL.Query().Get("max_results")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, domain.ErrValidation("max_results must be a positive integer")
		}
		p.MaxResults = n
	}
	return p, nil
}
