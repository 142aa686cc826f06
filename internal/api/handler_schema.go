package api

import (
	"net/http"
	"strings"

	"dynaquery/internal/domain"
)

// SchemaChangeRequest is the body of POST /v1/schema/changes.
type SchemaChangeRequest struct {
	Reason string `json:"reason,omitempty"`
}

// GetSchema handles GET /v1/schema. With ?format=prompt it returns the text
// rendering handed to the generator.
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	if strings.EqualFold(r.URL.Query().Get("format"), "prompt") {
		text, err := h.schema.GetSchemaForPrompt(r.Context(), tenant)
		if err != nil {
			h.logger.Error("render schema prompt", "tenant", int64(tenant), "error", err)
			writeDomainError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(text))
		return
	}

	snap, err := h.schema.GetSchema(r.Context(), tenant)
	if err != nil {
		h.logger.Error("load schema", "tenant", int64(tenant), "error", err)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// ClearSchemaCache handles DELETE /v1/schema/cache for the caller's tenant.
func (h *Handler) ClearSchemaCache(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}
	h.schema.ClearCache(tenant)
	w.WriteHeader(http.StatusNoContent)
}

// NotifySchemaChange handles POST /v1/schema/changes. The change is queued
// for the schema watcher; callers may only invalidate their own tenant.
func (h *Handler) NotifySchemaChange(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantFrom(w, r)
	if !ok {
		return
	}

	var body SchemaChangeRequest
	if r.ContentLength != 0 {
		if err := decodeBody(w, r, &body); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if h.changes == nil {
		h.schema.ClearCache(tenant)
		w.WriteHeader(http.StatusAccepted)
		return
	}

	change := domain.SchemaChange{Tenant: &tenant, Reason: body.Reason}
	select {
	case h.changes <- change:
		w.WriteHeader(http.StatusAccepted)
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "schema watcher is busy")
	}
}
