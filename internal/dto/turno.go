package dto

// ── 班次配置 DTO ──

// TurnoInput 单条班次明细输入，按 (date, slot, specialty_id) 唯一
type TurnoInput struct {
	SpecialtyID      string `json:"specialty_id"       binding:"required,max=50"`
	Date             string `json:"date"               binding:"required"` // YYYY-MM-DD
	Slot             string `json:"slot"               binding:"required"` // MORNING | AFTERNOON
	RemoteEnabled    bool   `json:"remote_enabled"`
	InPersonEnabled  bool   `json:"in_person_enabled"`
	RemoteQuantity   int    `json:"remote_quantity"`
	InPersonQuantity int    `json:"in_person_quantity"`
}

// TurnoPreviewRequest 预览请求：返回规范化后的明细，不落库
type TurnoPreviewRequest struct {
	Items []TurnoInput `json:"items" binding:"required,min=1,max=200,dive"`
}

// DetailResponse 明细响应
type DetailResponse struct {
	ID               string  `json:"id,omitempty"`
	SpecialtyID      string  `json:"specialty_id"`
	Date             string  `json:"date"`
	Slot             string  `json:"slot"`
	RemoteEnabled    bool    `json:"remote_enabled"`
	InPersonEnabled  bool    `json:"in_person_enabled"`
	RemoteQuantity   int     `json:"remote_quantity"`
	InPersonQuantity int     `json:"in_person_quantity"`
	State            string  `json:"state"`
	ClinicalRemark   string  `json:"clinical_remark,omitempty"`
	DecidedBy        *string `json:"decided_by,omitempty"`
	DecidedAt        *string `json:"decided_at,omitempty"`
}
