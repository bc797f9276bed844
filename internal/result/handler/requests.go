package handler

import (
	"limscore/internal/result/models"
	"limscore/internal/result/service"
)

type enterRequest struct {
	AssignmentID   string `json:"assignment_id"`
	Value          string `json:"value"`
	Unit           string `json:"unit,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
	Kind           string `json:"kind"`
	Source         string `json:"source,omitempty"`
}

type editRequest struct {
	Value          string `json:"value,omitempty"`
	Interpretation string `json:"interpretation,omitempty"`
	Remarks        string `json:"remarks,omitempty"`
}

type amendRequest struct {
	NewValue string `json:"new_value"`
	Reason   string `json:"reason"`
}

// resultResponse wraps a result with the advisories the operation produced.
// Warnings are non-blocking; the operation already succeeded.
type resultResponse struct {
	Result   *models.TestResult `json:"result"`
	Warnings []string           `json:"warnings,omitempty"`
}

type amendResponse struct {
	Result    *models.TestResult     `json:"result"`
	Amendment models.ResultAmendment `json:"amendment"`
}

func enterResponse(out *service.EnterOutcome) resultResponse {
	resp := resultResponse{Result: out.Result}
	if out.Warning != "" {
		resp.Warnings = append(resp.Warnings, out.Warning)
	}
	return resp
}

func editResponse(out *service.EditOutcome) resultResponse {
	resp := resultResponse{Result: out.Result}
	if out.Warning != "" {
		resp.Warnings = append(resp.Warnings, out.Warning)
	}
	return resp
}

func verifyResponse(out *service.VerifyOutcome) resultResponse {
	resp := resultResponse{Result: out.Result}
	if out.AlreadyVerified {
		resp.Warnings = append(resp.Warnings, "result was already verified")
	}
	return resp
}

func releaseResponse(out *service.ReleaseOutcome) resultResponse {
	resp := resultResponse{Result: out.Result}
	if out.DeliveryWarning != "" {
		resp.Warnings = append(resp.Warnings, out.DeliveryWarning)
	}
	return resp
}
