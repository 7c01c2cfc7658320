package dto

// ── 不可用时间 DTO ──

// CreateUnavailabilityRequest 登记不可用时间
type CreateUnavailabilityRequest struct {
	Date   string  `json:"date"   binding:"required"`                             // YYYY-MM-DD
	Slot   *string `json:"slot"   binding:"omitempty,oneof=MORNING AFTERNOON"` // 为空表示全天
	Reason string  `json:"reason" binding:"omitempty,max=200"`
}

// UnavailabilityListRequest 查询参数
type UnavailabilityListRequest struct {
	From string `form:"from"` // YYYY-MM-DD
	To   string `form:"to"`
}

// UnavailabilityResponse 不可用时间响应
type UnavailabilityResponse struct {
	ID        string  `json:"id"`
	StaffID   string  `json:"staff_id"`
	Date      string  `json:"date"`
	Slot      *string `json:"slot,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	CreatedAt string  `json:"created_at"`
}
