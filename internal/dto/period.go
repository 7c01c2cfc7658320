package dto

// ── 周期模块 DTO ──

// CreatePeriodRequest 创建周期请求
type CreatePeriodRequest struct {
	Code         string `json:"code"         binding:"required,len=6,numeric"` // YYYYMM
	Description  string `json:"description"  binding:"required,min=2,max=200"`
	Instructions string `json:"instructions" binding:"omitempty,max=4000"`
	StartDate    string `json:"start_date"   binding:"required"` // "2026-02-01"
	EndDate      string `json:"end_date"     binding:"required"` // "2026-02-28"
}

// UpdatePeriodRequest 更新周期请求（仅 DRAFT）
type UpdatePeriodRequest struct {
	Description  *string `json:"description"  binding:"omitempty,min=2,max=200"`
	Instructions *string `json:"instructions" binding:"omitempty,max=4000"`
	StartDate    *string `json:"start_date"`
	EndDate      *string `json:"end_date"`
}

// ReopenPeriodRequest 重新开放周期请求
type ReopenPeriodRequest struct {
	EndDate string `json:"end_date" binding:"required"`
}

// PeriodListRequest 周期列表查询参数
type PeriodListRequest struct {
	PaginationRequest
	State string `form:"state" binding:"omitempty,oneof=DRAFT ACTIVE OPEN_FOR_SUBMISSION CLOSED VOIDED"`
	Year  int    `form:"year"  binding:"omitempty,min=2000,max=2100"`
}

// PeriodResponse 周期信息响应
type PeriodResponse struct {
	ID              string `json:"id"`
	Code            string `json:"code"`
	Description     string `json:"description"`
	Instructions    string `json:"instructions,omitempty"`
	StartDate       string `json:"start_date"`
	EndDate         string `json:"end_date"`
	State           string `json:"state"`
	AcceptsRequests bool   `json:"accepts_requests"`
	Version         int    `json:"version"`
	CreatedAt       string `json:"created_at"`
	UpdatedAt       string `json:"updated_at"`
}

// PeriodStatsResponse 周期统计
type PeriodStatsResponse struct {
	PeriodID          string         `json:"period_id"`
	TotalRequests     int64          `json:"total_requests"`
	SubmittedRequests int64          `json:"submitted_requests"`
	ByState           map[string]int `json:"by_state"`
}
