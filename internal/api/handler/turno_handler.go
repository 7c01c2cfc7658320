package handler

import (
	"github.com/gin-gonic/gin"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/service"
	"cenate-turnos/backend/pkg/response"
)

// TurnoHandler 班次配置预览
type TurnoHandler struct {
	configurator *service.TurnoConfigurator
	calendar     *service.Calendar
}

// NewTurnoHandler 创建 TurnoHandler
func NewTurnoHandler(configurator *service.TurnoConfigurator, calendar *service.Calendar) *TurnoHandler {
	return &TurnoHandler{configurator: configurator, calendar: calendar}
}

// Preview 校验并规范化班次明细，不落库
// POST /api/v1/turnos/preview
func (h *TurnoHandler) Preview(c *gin.Context) {
	var req dto.TurnoPreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	details, err := h.configurator.Preview(req.Items, h.calendar.Today())
	if err != nil {
		if !writeWorkflowError(c, err) {
			response.InternalError(c)
		}
		return
	}

	response.OK(c, gin.H{"list": details})
}
