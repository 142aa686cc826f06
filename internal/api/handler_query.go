package api

import (
	"net/http"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"dynaquery/internal/domain"
	"dynaquery/internal/service/query"
)

// RunQueryRequest is the body of POST /v1/queries.
type RunQueryRequest struct {
	Question  string `json:"question"`
	Format    string `json:"format,omitempty"`
	DeliverTo string `json:"deliver_to,omitempty"`
}

// ValidateQueryRequest is the body of POST /v1/queries/validate.
type ValidateQueryRequest struct {
	SQL string `json:"sql"`
}

// QueryRunView is the JSON rendering of an audited run.
type QueryRunView struct {
	ID             string    `json:"id"`
	Request        string    `json:"request"`
	GeneratedSQL   *string   `json:"generated_sql,omitempty"`
	ExecutedSQL    *string   `json:"executed_sql,omitempty"`
	Status         string    `json:"status"`
	FailedStage    *string   `json:"failed_stage,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	RowCount       *int64    `json:"row_count,omitempty"`
	Truncated      bool      `json:"truncated"`
	DurationMs     *int64    `json:"duration_ms,omitempty"`
	DeliveryStatus *string   `json:"delivery_status,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// HistoryResponse is the body of GET /v1/queries/history.
type HistoryResponse struct {
	Runs          []QueryRunView `json:"runs"`
	Total         int64          `json:"total"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

var knownFormats = map[domain.ReportFormat]bool{
	domain.FormatDisplay: true,
	domain.FormatVoice:   true,
	domain.FormatEmail:   true,
	domain.FormatCSV:     true,
	domain.FormatSummary: true,
}

// RunQuery handles POST /v1/queries. The response body is always the
// pipeline result; the status reflects the failed stage.
func (h *Handler) RunQuery(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var body RunQueryRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	body.Question = strings.TrimSpace(body.Question)
	switch {
	case body.Question == "":
		writeError(w, http.StatusBadRequest, "question is required")
		return
	case utf8.RuneCountInString(body.Question) > maxQuestionLength:
		writeError(w, http.StatusBadRequest, "question is too long")
		return
	}
	format := domain.ReportFormat(strings.ToLower(strings.TrimSpace(body.Format)))
	if format == "" {
		format = domain.FormatDisplay
	}
	if !knownFormats[format] {
		writeError(w, http.StatusBadRequest, "unknown format "+string(format))
		return
	}
	if body.DeliverTo != "" {
		if _, err := mail.ParseAddress(body.DeliverTo); err != nil {
			writeError(w, http.StatusBadRequest, "deliver_to must be an email address")
			return
		}
	}

	res := h.queries.Run(r.Context(), query.Request{
		Tenant:    tenant,
		Question:  body.Question,
		Format:    format,
		DeliverTo: body.DeliverTo,
	})

	status := http.StatusOK
	if !res.Success {
		status = http.StatusInternalServerError
		if err := res.Err(); err != nil {
			status = httpStatusFromDomainError(err)
		}
	}
	writeJSON(w, status, res)
}

// ValidateQuery handles POST /v1/queries/validate: a dry run of the
// validator for the caller's tenant. Nothing is executed.
func (h *Handler) ValidateQuery(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var body ValidateQueryRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeDomainError(w, err)
		return
	}
	if strings.TrimSpace(body.SQL) == "" {
		writeError(w, http.StatusBadRequest, "sql is required")
		return
	}

	res := h.validator.Validate(body.SQL, tenant)
	if res.Errors == nil {
		res.Errors = []string{}
	}
	status := http.StatusOK
	if !res.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// QueryHistory handles GET /v1/queries/history.
func (h *Handler) QueryHistory(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	page, err := parsePage(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	filter := domain.QueryRunFilter{Tenant: tenant, Page: page}
	if s := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))); s != "" {
		if s != domain.RunStatusSucceeded && s != domain.RunStatusFailed {
			writeError(w, http.StatusBadRequest, "status must be SUCCEEDED or FAILED")
			return
		}
		filter.Status = &s
	}
	if v := r.URL.Query().Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be an RFC 3339 timestamp")
			return
		}
		filter.From = &from
	}

	runs, total, err := h.queries.History(r.Context(), filter)
	if err != nil {
		h.logger.Error("list query history", "tenant", int64(tenant), "error", err)
		writeDomainError(w, err)
		return
	}

	out := HistoryResponse{
		Runs:          make([]QueryRunView, 0, len(runs)),
		Total:         total,
		NextPageToken: domain.NextPageToken(page.Offset(), page.Limit(), total),
	}
	for _, run := range runs {
		out.Runs = append(out.Runs, QueryRunView{
			ID:             run.ID,
			Request:        run.Request,
			GeneratedSQL:   run.GeneratedSQL,
			ExecutedSQL:    run.ExecutedSQL,
			Status:         run.Status,
			FailedStage:    run.FailedStage,
			ErrorMessage:   run.ErrorMessage,
			RowCount:       run.RowCount,
			Truncated:      run.Truncated,
			DurationMs:     run.DurationMs,
			DeliveryStatus: run.DeliveryStatus,
			CreatedAt:      run.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
