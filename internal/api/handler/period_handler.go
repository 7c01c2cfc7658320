package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/service"
	"cenate-turnos/backend/pkg/response"
)

// PeriodHandler 周期模块 HTTP 处理器
type PeriodHandler struct {
	periodSvc service.PeriodService
}

// NewPeriodHandler 创建 PeriodHandler
func NewPeriodHandler(periodSvc service.PeriodService) *PeriodHandler {
	return &PeriodHandler{periodSvc: periodSvc}
}

// ListPeriods 获取周期列表
// GET /api/v1/periods
func (h *PeriodHandler) ListPeriods(c *gin.Context) {
	var req dto.PeriodListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	list, total, err := h.periodSvc.List(c.Request.Context(), &req)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetPeriod 获取周期详情
// GET /api/v1/periods/:id
func (h *PeriodHandler) GetPeriod(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}

	period, err := h.periodSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// GetStats 周期申请统计
// GET /api/v1/periods/:id/stats
func (h *PeriodHandler) GetStats(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}

	stats, err := h.periodSvc.Stats(c.Request.Context(), id)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, stats)
}

// CreatePeriod 创建周期
// POST /api/v1/periods
func (h *PeriodHandler) CreatePeriod(c *gin.Context) {
	var req dto.CreatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.Created(c, period)
}

// UpdatePeriod 更新草稿周期
// PUT /api/v1/periods/:id
func (h *PeriodHandler) UpdatePeriod(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}

	var req dto.UpdatePeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Update(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// ActivatePeriod 激活周期
// PUT /api/v1/periods/:id/activate
func (h *PeriodHandler) ActivatePeriod(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Activate(c.Request.Context(), id, callerID)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// ReopenPeriod 延长并重新开放周期
// PUT /api/v1/periods/:id/reopen
func (h *PeriodHandler) ReopenPeriod(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}

	var req dto.ReopenPeriodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Reopen(c.Request.Context(), id, &req, callerID)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// ClosePeriod 关闭周期
// PUT /api/v1/periods/:id/close
func (h *PeriodHandler) ClosePeriod(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	period, err := h.periodSvc.Close(c.Request.Context(), id, callerID)
	if err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, period)
}

// VoidPeriod 作废周期
// DELETE /api/v1/periods/:id
func (h *PeriodHandler) VoidPeriod(c *gin.Context) {
	id, ok := mustParam(c, "id", "周期ID不能为空")
	if !ok {
		return
	}
	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	if err := h.periodSvc.Void(c.Request.Context(), id, callerID); err != nil {
		h.handlePeriodError(c, err)
		return
	}

	response.OK(c, nil)
}

// handlePeriodError 统一处理周期模块业务错误
func (h *PeriodHandler) handlePeriodError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrPeriodNotFound):
		response.NotFound(c, 15001, "周期不存在")
	case errors.Is(err, service.ErrPeriodCodeExists):
		response.Conflict(c, 15002, "周期编码已存在")
	case errors.Is(err, service.ErrPeriodCodeInvalid):
		response.BadRequest(c, 15003, "周期编码必须为 YYYYMM")
	case errors.Is(err, service.ErrPeriodHasRequests):
		response.Conflict(c, 15004, "周期下已有申请，不能作废")
	default:
		if !writeWorkflowError(c, err) {
			response.InternalError(c)
		}
	}
}
