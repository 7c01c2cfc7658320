package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/service"
	"cenate-turnos/backend/pkg/response"
)

// UnavailabilityHandler 员工不可用时间 HTTP 处理器
type UnavailabilityHandler struct {
	unavailabilitySvc service.UnavailabilityService
}

// NewUnavailabilityHandler 创建 UnavailabilityHandler
func NewUnavailabilityHandler(unavailabilitySvc service.UnavailabilityService) *UnavailabilityHandler {
	return &UnavailabilityHandler{unavailabilitySvc: unavailabilitySvc}
}

// ListMine 本人的不可用时间
// GET /api/v1/unavailabilities
func (h *UnavailabilityHandler) ListMine(c *gin.Context) {
	var req dto.UnavailabilityListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.unavailabilitySvc.ListMine(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleUnavailabilityError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// Create 登记不可用时间
// POST /api/v1/unavailabilities
func (h *UnavailabilityHandler) Create(c *gin.Context) {
	var req dto.CreateUnavailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.unavailabilitySvc.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleUnavailabilityError(c, err)
		return
	}

	response.Created(c, result)
}

// Delete 删除不可用时间
// DELETE /api/v1/unavailabilities/:id
func (h *UnavailabilityHandler) Delete(c *gin.Context) {
	id, ok := mustParam(c, "id", "记录ID不能为空")
	if !ok {
		return
	}
	actor, ok := MustGetActor(c)
	if !ok {
		return
	}

	if err := h.unavailabilitySvc.Delete(c.Request.Context(), id, actor); err != nil {
		h.handleUnavailabilityError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleUnavailabilityError 统一处理不可用时间业务错误
func (h *UnavailabilityHandler) handleUnavailabilityError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrUnavailabilityNotFound):
		response.NotFound(c, 17001, "不可用时间记录不存在")
	case errors.Is(err, service.ErrUnavailabilityNotOwner):
		response.Forbidden(c, 17002, "只能操作本人的不可用时间")
	default:
		if !writeWorkflowError(c, err) {
			response.InternalError(c)
		}
	}
}
