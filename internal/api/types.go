package api

import (
	"github.com/harborwallet/walletkit-backend/internal/approval"
	"github.com/harborwallet/walletkit-backend/internal/session"
)

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type DecisionRequest struct {
	Approved *bool `json:"approved"`
}

type ApprovalListResponse struct {
	Approvals []approval.PendingApproval `json:"approvals"`
}

type SessionListResponse struct {
	Sessions []session.Session `json:"sessions"`
}

type NetworkListResponse struct {
	Networks []string `json:"networks"`
}
