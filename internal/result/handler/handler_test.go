package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"limscore/internal/capability"
	"limscore/internal/platform/middleware"
	"limscore/internal/qc"
	"limscore/internal/refrange"
	"limscore/internal/result/service"
	"limscore/internal/result/store"
	"limscore/pkg/platform/audit"
	auditmemory "limscore/pkg/platform/audit/store/memory"

	id "limscore/pkg/domain"
)

// The handler suite runs the full HTTP stack against in-memory stores: the
// identity middleware, the capability gate and the real lifecycle service.
type HandlerSuite struct {
	suite.Suite

	router     chi.Router
	auditStore *auditmemory.InMemoryStore
	checker    *qc.StaticChecker

	tenant      id.TenantID
	otherTenant id.TenantID
	techID      id.UserID
	managerID   id.UserID
	scientistID id.UserID
	adminID     id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.tenant = id.TenantID(uuid.New())
	s.otherTenant = id.TenantID(uuid.New())
	s.techID = id.UserID(uuid.New())
	s.managerID = id.UserID(uuid.New())
	s.scientistID = id.UserID(uuid.New())
	s.adminID = id.UserID(uuid.New())

	s.auditStore = auditmemory.NewInMemoryStore()
	s.checker = qc.NewStaticChecker()
	trail := audit.NewTrail(s.auditStore)
	svc := service.New(store.NewInMemoryStore(), trail, refrange.NewInMemorySource(), s.checker,
		service.WithLogger(logger),
	)

	h := New(svc, capability.NewGate(), trail, logger)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.ClientMetadata)
	r.Use(middleware.Identity(logger))
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path string, body any, tenant id.TenantID, user id.UserID, role string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if !tenant.IsNil() {
		req.Header.Set(middleware.HeaderTenantID, tenant.String())
	}
	if !user.IsNil() {
		req.Header.Set(middleware.HeaderUserID, user.String())
	}
	req.Header.Set(middleware.HeaderUserRole, role)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *HandlerSuite) enterResult() string {
	w := s.do(http.MethodPost, "/results", enterRequest{
		AssignmentID: uuid.NewString(),
		Value:        "95",
		Kind:         "quantitative",
	}, s.tenant, s.techID, "technologist")
	s.Require().Equal(http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Result struct {
			ID           string `json:"id"`
			AssignmentID string `json:"assignment_id"`
		} `json:"result"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))

	assignmentID, err := id.ParseAssignmentID(resp.Result.AssignmentID)
	s.Require().NoError(err)
	s.checker.SetPassed(assignmentID, true)
	return resp.Result.ID
}

func (s *HandlerSuite) TestEnterReturnsCreated() {
	resultID := s.enterResult()
	s.NotEmpty(resultID)
}

func (s *HandlerSuite) TestMissingTenantHeaderIsUnauthorized() {
	w := s.do(http.MethodGet, "/results", nil, id.TenantID{}, s.techID, "technologist")
	s.Equal(http.StatusUnauthorized, w.Code)
}

func (s *HandlerSuite) TestReceptionistMayNotEnterResults() {
	w := s.do(http.MethodPost, "/results", enterRequest{
		AssignmentID: uuid.NewString(),
		Value:        "95",
		Kind:         "quantitative",
	}, s.tenant, s.techID, "receptionist")
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestDeniedVerifyAttemptIsAudited() {
	resultID := s.enterResult()

	w := s.do(http.MethodPost, "/results/"+resultID+"/verify", nil, s.tenant, s.techID, "technologist")
	s.Equal(http.StatusForbidden, w.Code)

	entries, err := s.auditStore.ListBySubject(context.Background(), s.tenant, resultID)
	s.Require().NoError(err)
	denied := 0
	for _, e := range entries {
		if e.Action == audit.ActionAccessDenied {
			denied++
		}
	}
	s.Equal(1, denied)
}

func (s *HandlerSuite) TestFullLifecycleOverHTTP() {
	resultID := s.enterResult()

	w := s.do(http.MethodPost, "/results/"+resultID+"/verify", nil, s.tenant, s.managerID, "lab_manager")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/results/"+resultID+"/release", nil, s.tenant, s.scientistID, "scientist")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, "/results/"+resultID+"/amend", amendRequest{
		NewValue: "97",
		Reason:   "instrument recalibration",
	}, s.tenant, s.adminID, "vendor_admin")
	s.Require().Equal(http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Result struct {
			Status  string `json:"status"`
			Version int    `json:"version"`
		} `json:"result"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	s.Equal("amended", resp.Result.Status)
	s.Equal(2, resp.Result.Version)

	w = s.do(http.MethodGet, "/results/"+resultID+"/amendments", nil, s.tenant, s.managerID, "lab_manager")
	s.Require().Equal(http.StatusOK, w.Code)
	var amendments []json.RawMessage
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &amendments))
	s.Len(amendments, 1)
}

func (s *HandlerSuite) TestReleaseBeforeVerifyIsUnprocessable() {
	resultID := s.enterResult()

	w := s.do(http.MethodPost, "/results/"+resultID+"/release", nil, s.tenant, s.scientistID, "scientist")
	s.Equal(http.StatusUnprocessableEntity, w.Code)
}

func (s *HandlerSuite) TestScientistMayNotAmend() {
	resultID := s.enterResult()

	w := s.do(http.MethodPost, "/results/"+resultID+"/amend", amendRequest{
		NewValue: "97",
		Reason:   "attempted correction",
	}, s.tenant, s.scientistID, "scientist")
	s.Equal(http.StatusForbidden, w.Code)
}

func (s *HandlerSuite) TestCrossTenantGetIsNotFound() {
	resultID := s.enterResult()

	w := s.do(http.MethodGet, "/results/"+resultID, nil, s.otherTenant, s.techID, "technologist")
	s.Equal(http.StatusNotFound, w.Code)
}

func (s *HandlerSuite) TestInvalidResultIDIsBadRequest() {
	w := s.do(http.MethodGet, "/results/not-a-uuid", nil, s.tenant, s.techID, "technologist")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestDuplicateEnterConflicts() {
	assignment := uuid.NewString()
	req := enterRequest{AssignmentID: assignment, Value: "95", Kind: "quantitative"}

	w := s.do(http.MethodPost, "/results", req, s.tenant, s.techID, "technologist")
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodPost, "/results", req, s.tenant, s.techID, "technologist")
	s.Equal(http.StatusConflict, w.Code)
}

func (s *HandlerSuite) TestTenantAuditListsOwnEntriesOnly() {
	resultID := s.enterResult()

	w := s.do(http.MethodGet, "/audit", nil, s.tenant, s.managerID, "lab_manager")
	s.Require().Equal(http.StatusOK, w.Code)
	var own []audit.Entry
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &own))
	s.Require().NotEmpty(own)
	s.Equal(resultID, own[0].SubjectID)

	w = s.do(http.MethodGet, "/audit", nil, s.otherTenant, s.managerID, "lab_manager")
	s.Require().Equal(http.StatusOK, w.Code)
	var foreign []audit.Entry
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &foreign))
	s.Empty(foreign)
}

func (s *HandlerSuite) TestListFiltersRejectUnknownStatus() {
	w := s.do(http.MethodGet, "/results?status=bogus", nil, s.tenant, s.techID, "technologist")
	s.Equal(http.StatusBadRequest, w.Code)
}

func (s *HandlerSuite) TestGetByAssignment() {
	assignment := uuid.NewString()
	w := s.do(http.MethodPost, "/results", enterRequest{
		AssignmentID: assignment,
		Value:        "95",
		Kind:         "quantitative",
	}, s.tenant, s.techID, "technologist")
	s.Require().Equal(http.StatusCreated, w.Code)

	w = s.do(http.MethodGet, "/assignments/"+assignment+"/result", nil, s.tenant, s.techID, "technologist")
	s.Require().Equal(http.StatusOK, w.Code)

	var result struct {
		AssignmentID string `json:"assignment_id"`
	}
	s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &result))
	s.Equal(assignment, result.AssignmentID)
}
