package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/service"
	"cenate-turnos/backend/pkg/response"
)

// RequestHandler 排班申请 HTTP 处理器
type RequestHandler struct {
	requestSvc service.RequestService
	stagedSvc  service.StagedDecisionService
}

// NewRequestHandler 创建 RequestHandler
func NewRequestHandler(requestSvc service.RequestService, stagedSvc service.StagedDecisionService) *RequestHandler {
	return &RequestHandler{requestSvc: requestSvc, stagedSvc: stagedSvc}
}

// SaveDraft 保存本人在周期内的草稿
// PUT /api/v1/requests/draft
func (h *RequestHandler) SaveDraft(c *gin.Context) {
	var req dto.SaveDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.SaveDraft(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// ListMine 本人的申请；带 period_id 时返回该周期的申请
// GET /api/v1/requests/my
func (h *RequestHandler) ListMine(c *gin.Context) {
	var q dto.MyRequestQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	if q.PeriodID != "" {
		result, err := h.requestSvc.GetMine(c.Request.Context(), actor, q.PeriodID)
		if err != nil {
			h.handleRequestError(c, err)
			return
		}
		response.OK(c, result)
		return
	}

	list, err := h.requestSvc.ListMine(c.Request.Context(), actor)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ListByPeriod 审核视图：按周期列出申请
// GET /api/v1/requests
func (h *RequestHandler) ListByPeriod(c *gin.Context) {
	var req dto.RequestListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	list, total, err := h.requestSvc.ListByPeriod(c.Request.Context(), actor, &req)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OKPage(c, list, total, req.GetPage(), req.GetPageSize())
}

// GetRequest 申请详情
// GET /api/v1/requests/:id
func (h *RequestHandler) GetRequest(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.GetByID(c.Request.Context(), actor, id)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// AttachDetail 新增或覆盖一条明细
// POST /api/v1/requests/:id/details
func (h *RequestHandler) AttachDetail(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}

	var req dto.TurnoInput
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.AttachDetail(c.Request.Context(), actor, id, &req)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// RemoveDetail 删除一条 PENDING 明细
// DELETE /api/v1/requests/:id/details/:detailId
func (h *RequestHandler) RemoveDetail(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	detailID, ok := mustParam(c, "detailId", "明细ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.RemoveDetail(c.Request.Context(), actor, id, detailID)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// Submit 提交申请
// POST /api/v1/requests/:id/submit
func (h *RequestHandler) Submit(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.Submit(c.Request.Context(), actor, id)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// RequestChanges 审核员要求修改
// POST /api/v1/requests/:id/request-changes
func (h *RequestHandler) RequestChanges(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}

	var req dto.RequestChangesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.RequestChanges(c.Request.Context(), actor, id, req.Remark)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// DecideDetail 立即写入单条明细的审核结论
// PUT /api/v1/requests/:id/details/:detailId/decision
func (h *RequestHandler) DecideDetail(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	detailID, ok := mustParam(c, "detailId", "明细ID不能为空")
	if !ok {
		return
	}

	var req dto.DecideDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.DecideDetail(c.Request.Context(), actor, id, detailID, model.DetailState(req.Decision), req.ClinicalRemark)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// StageDecision 暂存审核结论，撤销窗口结束后写库
// POST /api/v1/requests/:id/details/:detailId/staged-decision
func (h *RequestHandler) StageDecision(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	detailID, ok := mustParam(c, "detailId", "明细ID不能为空")
	if !ok {
		return
	}

	var req dto.DecideDetailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.stagedSvc.Stage(c.Request.Context(), actor, id, detailID, &req)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, response.Response{Code: 0, Message: "success", Data: result})
}

// GetStagedDecision 查询暂存审核的状态
// GET /api/v1/requests/:id/details/:detailId/staged-decision
func (h *RequestHandler) GetStagedDecision(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	detailID, ok := mustParam(c, "detailId", "明细ID不能为空")
	if !ok {
		return
	}

	result, err := h.stagedSvc.Get(id, detailID)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// UndoStagedDecision 窗口内撤销暂存审核
// DELETE /api/v1/requests/:id/details/:detailId/staged-decision
func (h *RequestHandler) UndoStagedDecision(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	detailID, ok := mustParam(c, "detailId", "明细ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.stagedSvc.Undo(actor, id, detailID)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// Cancel 作废申请
// POST /api/v1/requests/:id/cancel
func (h *RequestHandler) Cancel(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	result, err := h.requestSvc.Cancel(c.Request.Context(), actor, id)
	if err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, result)
}

// DeleteRequest 删除草稿
// DELETE /api/v1/requests/:id
func (h *RequestHandler) DeleteRequest(c *gin.Context) {
	id, ok := mustParam(c, "id", "申请ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	if err := h.requestSvc.Delete(c.Request.Context(), actor, id); err != nil {
		h.handleRequestError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleRequestError 统一处理排班申请业务错误
func (h *RequestHandler) handleRequestError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRequestNotFound):
		response.NotFound(c, 16001, "申请不存在")
	case errors.Is(err, service.ErrDetailNotFound):
		response.NotFound(c, 16002, "申请明细不存在")
	case errors.Is(err, service.ErrRequestNotVisible):
		response.Forbidden(c, 16003, "无权查看或操作该申请")
	case errors.Is(err, service.ErrRequestEmpty):
		response.BadRequest(c, 16004, "申请至少包含一条明细")
	case errors.Is(err, service.ErrInvalidDecision):
		response.BadRequest(c, 16005, "审核结论必须为 ASSIGNED 或 NOT_APPROVED")
	case errors.Is(err, service.ErrPeriodNotFound):
		response.NotFound(c, 15001, "周期不存在")
	case errors.Is(err, service.ErrPeriodNotOpen):
		response.Conflict(c, 16006, "周期当前不接受申请")
	case errors.Is(err, service.ErrAvailabilityUnknown):
		response.Error(c, http.StatusServiceUnavailable, 16007, "暂时无法确认班次可用性，请稍后重试")
	case errors.Is(err, service.ErrCheckSuperseded):
		response.Conflict(c, 16008, "已有更新的提交正在处理")
	case errors.Is(err, service.ErrNoStagedDecision):
		response.NotFound(c, 16009, "没有可撤销的暂存审核")
	default:
		if !writeWorkflowError(c, err) {
			response.InternalError(c)
		}
	}
}
