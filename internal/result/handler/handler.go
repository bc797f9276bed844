// Package handler exposes the result lifecycle over HTTP. The capability
// gate is enforced here, before the service runs; a rejected transition on a
// real result is itself recorded in the audit trail.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"limscore/internal/capability"
	"limscore/internal/result/models"
	"limscore/internal/result/service"
	"limscore/internal/result/store"
	"limscore/internal/tenantscope"
	"limscore/pkg/platform/audit"
	"limscore/pkg/platform/httputil"

	id "limscore/pkg/domain"
	dErrors "limscore/pkg/domain-errors"
)

// Service is the lifecycle surface the handler depends on.
type Service interface {
	Enter(ctx context.Context, tenantID id.TenantID, p id.Principal, params service.EnterParams) (*service.EnterOutcome, error)
	Edit(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID, params service.EditParams) (*service.EditOutcome, error)
	Verify(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID) (*service.VerifyOutcome, error)
	Release(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID) (*service.ReleaseOutcome, error)
	Amend(ctx context.Context, tenantID id.TenantID, p id.Principal, resultID id.ResultID, params service.AmendParams) (*service.AmendOutcome, error)
	Get(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) (*models.TestResult, error)
	GetByAssignment(ctx context.Context, tenantID id.TenantID, assignmentID id.AssignmentID) (*models.TestResult, error)
	List(ctx context.Context, tenantID id.TenantID, filter store.ListFilter) ([]*models.TestResult, error)
	ListAmendments(ctx context.Context, tenantID id.TenantID, resultID id.ResultID) ([]models.ResultAmendment, error)
}

// Handler handles result lifecycle endpoints.
type Handler struct {
	logger  *slog.Logger
	results Service
	gate    *capability.Gate
	trail   *audit.Trail
}

// New creates a result Handler.
func New(results Service, gate *capability.Gate, trail *audit.Trail, logger *slog.Logger) *Handler {
	return &Handler{
		logger:  logger,
		results: results,
		gate:    gate,
		trail:   trail,
	}
}

// Register registers the result routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/results", h.handleEnter)
	r.Get("/results", h.handleList)
	r.Get("/results/{resultID}", h.handleGet)
	r.Patch("/results/{resultID}", h.handleEdit)
	r.Post("/results/{resultID}/verify", h.handleVerify)
	r.Post("/results/{resultID}/release", h.handleRelease)
	r.Post("/results/{resultID}/amend", h.handleAmend)
	r.Get("/results/{resultID}/amendments", h.handleListAmendments)
	r.Get("/results/{resultID}/audit", h.handleResultAudit)
	r.Get("/assignments/{assignmentID}/result", h.handleGetByAssignment)
	r.Get("/audit", h.handleTenantAudit)
}

// authorize resolves the tenant scope and checks the capability gate. A
// denied attempt against a concrete result is recorded in the audit trail;
// the record is best effort since no state changed.
func (h *Handler) authorize(ctx context.Context, transition capability.Transition, subjectID string) (id.TenantID, id.Principal, error) {
	tenantID, p, err := tenantscope.Resolve(ctx)
	if err != nil {
		return id.TenantID{}, id.Principal{}, err
	}
	if !h.gate.Authorize(p, transition) {
		if _, err := h.trail.Record(ctx, tenantID, subjectID, audit.ActionAccessDenied, p.UserID,
			"capability check rejected "+string(transition), "", ""); err != nil {
			h.logger.ErrorContext(ctx, "failed to record denied attempt", "error", err)
		}
		return id.TenantID{}, id.Principal{}, dErrors.Newf(dErrors.CodeForbidden, "role %q may not %s results", p.Role, transition)
	}
	return tenantID, p, nil
}

func (h *Handler) handleEnter(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, p, err := h.authorize(ctx, capability.TransitionEnter, "")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var req enterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	assignmentID, err := id.ParseAssignmentID(req.AssignmentID)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid assignment id"))
		return
	}

	source := models.DataSource(req.Source)
	if req.Source == "" {
		source = models.SourceManual
	}
	out, err := h.results.Enter(ctx, tenantID, p, service.EnterParams{
		AssignmentID:   assignmentID,
		Value:          req.Value,
		Unit:           req.Unit,
		Interpretation: req.Interpretation,
		Remarks:        req.Remarks,
		Kind:           models.ResultKind(req.Kind),
		Source:         source,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "enter result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, enterResponse(out))
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, p, err := h.authorize(ctx, capability.TransitionEnter, chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	var req editRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	out, err := h.results.Edit(ctx, tenantID, p, resultID, service.EditParams{
		Value:          req.Value,
		Interpretation: req.Interpretation,
		Remarks:        req.Remarks,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "edit result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, editResponse(out))
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, p, err := h.authorize(ctx, capability.TransitionVerify, chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	out, err := h.results.Verify(ctx, tenantID, p, resultID)
	if err != nil {
		h.writeServiceError(ctx, w, "verify result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verifyResponse(out))
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, p, err := h.authorize(ctx, capability.TransitionRelease, chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	out, err := h.results.Release(ctx, tenantID, p, resultID)
	if err != nil {
		h.writeServiceError(ctx, w, "release result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, releaseResponse(out))
}

func (h *Handler) handleAmend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, p, err := h.authorize(ctx, capability.TransitionAmend, chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	var req amendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	out, err := h.results.Amend(ctx, tenantID, p, resultID, service.AmendParams{
		NewValue: req.NewValue,
		Reason:   req.Reason,
	})
	if err != nil {
		h.writeServiceError(ctx, w, "amend result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, amendResponse{Result: out.Result, Amendment: out.Amendment})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, _, err := tenantscope.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	result, err := h.results.Get(ctx, tenantID, resultID)
	if err != nil {
		h.writeServiceError(ctx, w, "get result", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetByAssignment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, _, err := tenantscope.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid assignment id"))
		return
	}

	result, err := h.results.GetByAssignment(ctx, tenantID, assignmentID)
	if err != nil {
		h.writeServiceError(ctx, w, "get result by assignment", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, _, err := tenantscope.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	q := r.URL.Query()
	filter := store.ListFilter{
		Status: models.ResultStatus(q.Get("status")),
		Flag:   id.Flag(q.Get("flag")),
		Source: models.DataSource(q.Get("source")),
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "unknown status filter"))
		return
	}

	results, err := h.results.List(ctx, tenantID, filter)
	if err != nil {
		h.writeServiceError(ctx, w, "list results", err)
		return
	}
	if results == nil {
		results = []*models.TestResult{}
	}
	httputil.WriteJSON(w, http.StatusOK, results)
}

func (h *Handler) handleListAmendments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, _, err := tenantscope.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	amendments, err := h.results.ListAmendments(ctx, tenantID, resultID)
	if err != nil {
		h.writeServiceError(ctx, w, "list amendments", err)
		return
	}
	if amendments == nil {
		amendments = []models.ResultAmendment{}
	}
	httputil.WriteJSON(w, http.StatusOK, amendments)
}

func (h *Handler) handleResultAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, _, err := tenantscope.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	resultID, err := id.ParseResultID(chi.URLParam(r, "resultID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid result id"))
		return
	}

	entries, err := h.trail.ListBySubject(ctx, tenantID, resultID.String())
	if err != nil {
		h.writeServiceError(ctx, w, "list result audit", err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleTenantAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tenantID, _, err := tenantscope.Resolve(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries, err := h.trail.ListByTenant(ctx, tenantID)
	if err != nil {
		h.writeServiceError(ctx, w, "list tenant audit", err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "operation failed",
			"operation", op,
			"error", err.Error(),
		)
	}
	httputil.WriteError(w, err)
}
