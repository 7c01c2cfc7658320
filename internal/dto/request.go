package dto

import "cenate-turnos/backend/internal/model"

// ── 排班申请 DTO ──

// SaveDraftRequest 保存草稿：创建本人在该周期的申请，或替换其 PENDING 明细
type SaveDraftRequest struct {
	PeriodID      string       `json:"period_id"      binding:"required,uuid"`
	GeneralRemark *string      `json:"general_remark" binding:"omitempty,max=1000"`
	Details       []TurnoInput `json:"details"        binding:"max=500,dive"`
}

// RequestChangesRequest 审核员要求修改
type RequestChangesRequest struct {
	Remark string `json:"remark" binding:"required,max=1000"`
}

// DecideDetailRequest 审核单条明细
type DecideDetailRequest struct {
	Decision       string  `json:"decision"        binding:"required,oneof=ASSIGNED NOT_APPROVED"`
	ClinicalRemark *string `json:"clinical_remark" binding:"omitempty,max=1000"`
}

// RequestListRequest 按周期查询申请
type RequestListRequest struct {
	PaginationRequest
	PeriodID string `form:"period_id" binding:"required,uuid"`
	State    string `form:"state"     binding:"omitempty,oneof=DRAFT SUBMITTED UNDER_REVIEW APPROVED REJECTED PARTIALLY_APPROVED VOIDED"`
}

// MyRequestQuery 查询本人申请
type MyRequestQuery struct {
	PeriodID string `form:"period_id" binding:"omitempty,uuid"`
}

// RequestResponse 申请响应
type RequestResponse struct {
	ID            string               `json:"id"`
	PeriodID      string               `json:"period_id"`
	RequesterID   string               `json:"requester_id"`
	State         string               `json:"state"`
	GeneralRemark string               `json:"general_remark,omitempty"`
	SubmittedAt   *string              `json:"submitted_at,omitempty"`
	ReviewedBy    *string              `json:"reviewed_by,omitempty"`
	ReviewedAt    *string              `json:"reviewed_at,omitempty"`
	Version       int                  `json:"version"`
	CreatedAt     string               `json:"created_at"`
	UpdatedAt     string               `json:"updated_at"`
	Details       []DetailResponse     `json:"details"`
	Summary       model.RequestSummary `json:"summary"`
}

// StagedDecisionResponse 暂存（可撤销）的审核结论
type StagedDecisionResponse struct {
	RequestID     string `json:"request_id"`
	DetailID      string `json:"detail_id"`
	Decision      string `json:"decision"`
	Previous      string `json:"previous"`
	Status        string `json:"status"`
	CommitsAt     string `json:"commits_at"`
	UndoWindowSec int    `json:"undo_window_sec"`
	Error         string `json:"error,omitempty"`
}
