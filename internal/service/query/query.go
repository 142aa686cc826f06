// Package query orchestrates the generate, validate, execute, format and
// deliver stages of a natural-language query run.
package query

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"dynaquery/internal/domain"
)

// Stage names a pipeline step.
type Stage string

// Pipeline stages in execution order.
const (
	StageGenerate Stage = "generate"
	StageValidate Stage = "validate"
	StageExecute  Stage = "execute"
	StageFormat   Stage = "format"
	StageDeliver  Stage = "deliver"
)

// Request is one natural-language query.
type Request struct {
	Tenant   domain.TenantID
	Question string
	Format   domain.ReportFormat
	// DeliverTo, when set, emails the report to this address.
	DeliverTo string
}

// Result is the structured outcome of a run. A failed run carries the stage
// that failed and why; later stages never run. Delivery is reported
// separately and does not affect Success.
type Result struct {
	RunID       string                  `json:"run_id"`
	Success     bool                    `json:"success"`
	FailedStage Stage                   `json:"failed_stage,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Errors      []string                `json:"errors,omitempty"`
	Explanation string                  `json:"explanation,omitempty"`
	SQL         string                  `json:"sql,omitempty"`
	Execution   *domain.ExecutionResult `json:"execution,omitempty"`
	Report      *domain.FormattedReport `json:"report,omitempty"`
	Delivery    *DeliveryOutcome        `json:"delivery,omitempty"`

	err error
}

// Err returns the typed domain error behind a failed run, or nil.
func (r *Result) Err() error { return r.err }

// DeliveryOutcome reports the optional delivery step.
type DeliveryOutcome struct {
	Channel   string `json:"channel"`
	To        string `json:"to"`
	Delivered bool   `json:"delivered"`
	Error     string `json:"error,omitempty"`
}

// Service runs the query pipeline.
type Service struct {
	generator domain.QueryGenerator
	validator domain.QueryValidator
	executor  domain.QueryExecutor
	formatter domain.ReportFormatter
	mailer    domain.Mailer
	runs      domain.QueryRunRepository
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a new Service.
func NewService(gen domain.QueryGenerator, val domain.QueryValidator, exec domain.QueryExecutor, f domain.ReportFormatter, logger *slog.Logger) *Service {
	return &Service{
		generator: gen,
		validator: val,
		executor:  exec,
		formatter: f,
		logger:    logger.With("component", "query-service"),
		now:       time.Now,
	}
}

// SetMailer enables email delivery. Without a mailer, delivery requests are
// reported as not delivered.
func (s *Service) SetMailer(m domain.Mailer) {
	s.mailer = m
}

// SetRunRepository enables the query run history.
func (s *Service) SetRunRepository(repo domain.QueryRunRepository) {
	s.runs = repo
}

// Run executes the pipeline for req. It never returns nil and never panics.
func (s *Service) Run(ctx context.Context, req Request) (res *Result) {
	start := s.now()
	res = &Result{RunID: domain.NewID()}
	run := &domain.QueryRun{ID: res.RunID, Tenant: req.Tenant, Request: req.Question, CreatedAt: start.UTC()}
	stage := StageGenerate

	log := s.logger.With("run_id", res.RunID, "tenant", int64(req.Tenant))
	defer func() {
		if p := recover(); p != nil {
			log.Error("query pipeline panicked", "stage", string(stage), "panic", fmt.Sprint(p))
			if stage == StageDeliver {
				res.Delivery = &DeliveryOutcome{Channel: "email", To: req.DeliverTo, Error: "internal error"}
			} else {
				s.failRun(res, stage, fmt.Errorf("internal error"))
			}
		}
		s.record(ctx, run, res, start)
		if res.Success {
			log.Info("query run succeeded", "rows", res.Execution.RowCount, "truncated", res.Execution.Truncated)
		} else {
			log.Info("query run failed", "stage", string(res.FailedStage), "error", res.Error)
		}
	}()

	if !req.Tenant.Valid() {
		s.failRun(res, StageValidate, domain.ErrValidation("tenant id must be positive"))
		return res
	}

	// Generate
	q, err := s.generator.Generate(ctx, req.Question, req.Tenant)
	if err == nil && q.Empty() {
		err = domain.ErrGeneration(nil, "failed to generate SQL: empty query")
	}
	if err != nil {
		var ge *domain.GenerationError
		if !errors.As(err, &ge) {
			err = domain.ErrGeneration(err, "failed to generate SQL: %v", err)
		}
		s.failRun(res, StageGenerate, err)
		return res
	}
	res.Explanation = q.Explanation
	run.GeneratedSQL = &q.SQL

	// Validate
	stage = StageValidate
	v := s.validator.Validate(q.SQL, req.Tenant)
	if !v.Valid {
		verr := &domain.ValidationError{Message: "query validation failed", Reasons: v.Errors}
		s.failRun(res, StageValidate, verr)
		res.Errors = v.Errors
		return res
	}
	res.SQL = v.SQL
	run.ExecutedSQL = &v.SQL

	// Execute
	stage = StageExecute
	exec := s.executor.Execute(ctx, v.SQL)
	res.Execution = &exec
	if !exec.Success {
		msg := "query execution failed"
		if exec.Error != nil {
			msg = *exec.Error
		}
		s.failRun(res, StageExecute, &domain.ExecutionError{Message: msg})
		return res
	}

	// Format
	stage = StageFormat
	report := s.formatter.Format(exec.Data, q.ExpectedColumns, req.Format)
	res.Report = &report
	res.Success = true

	// Deliver
	if to := strings.TrimSpace(req.DeliverTo); to != "" {
		stage = StageDeliver
		res.Delivery = s.deliver(ctx, log, req, to, q, exec)
	}
	return res
}

func (s *Service) failRun(res *Result, stage Stage, err error) {
	res.Success = false
	res.FailedStage = stage
	res.Error = err.Error()
	res.err = err
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		res.Error = ve.Message
		res.Errors = ve.Reasons
	}
}

// deliver emails the report. Its failure is reported in the outcome only.
func (s *Service) deliver(ctx context.Context, log *slog.Logger, req Request, to string, q domain.GeneratedQuery, exec domain.ExecutionResult) *DeliveryOutcome {
	out := &DeliveryOutcome{Channel: "email", To: to}
	if s.mailer == nil {
		out.Error = "email delivery is not configured"
		return out
	}

	email := s.formatter.Format(exec.Data, q.ExpectedColumns, domain.FormatEmail)
	csv := s.formatter.Format(exec.Data, q.ExpectedColumns, domain.FormatCSV)

	var body strings.Builder
	if q.Explanation != "" {
		fmt.Fprintf(&body, "<p>%s</p>\n", html.EscapeString(q.Explanation))
	}
	body.WriteString(email.HTML)

	msg := &domain.EmailMessage{
		To:          to,
		Subject:     "Query results: " + subjectLine(req.Question),
		HTMLBody:    body.String(),
		CSVFilename: "results.csv",
	}
	if csv.Text != "" {
		msg.CSVAttachment = []byte(csv.Text)
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		log.Warn("report delivery failed", "error", err)
		out.Error = err.Error()
		return out
	}
	out.Delivered = true
	return out
}

func (s *Service) record(ctx context.Context, run *domain.QueryRun, res *Result, start time.Time) {
	if s.runs == nil {
		return
	}
	run.Status = domain.RunStatusSucceeded
	if !res.Success {
		run.Status = domain.RunStatusFailed
		stage := string(res.FailedStage)
		run.FailedStage = &stage
		msg := res.Error
		if len(res.Errors) > 0 {
			msg += ": " + strings.Join(res.Errors, "; ")
		}
		run.ErrorMessage = &msg
	}
	if res.Execution != nil && res.Execution.Success {
		n := int64(res.Execution.RowCount)
		run.RowCount = &n
		run.Truncated = res.Execution.Truncated
	}
	if res.Delivery != nil {
		status := "FAILED"
		if res.Delivery.Delivered {
			status = "DELIVERED"
		}
		run.DeliveryStatus = &status
	}
	d := s.now().Sub(start).Milliseconds()
	run.DurationMs = &d

	if err := s.runs.Insert(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Warn("record query run", "run_id", run.ID, "error", err)
	}
}

// History lists past runs for the filter's tenant.
func (s *Service) History(ctx context.Context, filter domain.QueryRunFilter) ([]domain.QueryRun, int64, error) {
	if s.runs == nil {
		return nil, 0, domain.ErrNotFound("query history is not enabled")
	}
	return s.runs.List(ctx, filter)
}

func subjectLine(question string) string {
	q := strings.Join(strings.Fields(question), " ")
	if r := []rune(q); len(r) > 80 {
		q = string(r[:77]) + "..."
	}
	return q
}
