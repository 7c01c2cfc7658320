package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/service"
	pkgerrors "cenate-turnos/backend/pkg/errors"
	"cenate-turnos/backend/pkg/response"
)

// writeWorkflowError 处理各模块共用的流程错误，已写入响应时返回 true
func writeWorkflowError(c *gin.Context, err error) bool {
	var unavailable *pkgerrors.SlotUnavailableError
	switch {
	case errors.As(err, &unavailable):
		conflicts := make([]dto.SlotConflictResponse, 0, len(unavailable.Conflicts))
		for _, sc := range unavailable.Conflicts {
			conflicts = append(conflicts, dto.SlotConflictResponse{
				Date:   model.FormatDate(sc.Date),
				Slot:   sc.Slot,
				Reason: sc.Reason,
			})
		}
		response.ErrorWithData(c, http.StatusUnprocessableEntity, 11004, "所选班次不可用", gin.H{
			"dates":     unavailable.Dates(),
			"conflicts": conflicts,
		})
	case errors.Is(err, pkgerrors.ErrInvalidDateRange):
		response.BadRequest(c, 11001, "日期范围无效")
	case errors.Is(err, pkgerrors.ErrPastDate):
		response.BadRequest(c, 11002, "不能选择过去的日期")
	case errors.Is(err, pkgerrors.ErrEmptySelection):
		response.BadRequest(c, 11003, "至少选择一种出诊方式且数量大于 0")
	case errors.Is(err, pkgerrors.ErrForbiddenTransition):
		response.Forbidden(c, 11005, "当前状态或角色不允许该操作")
	case errors.Is(err, pkgerrors.ErrAlreadyTerminal):
		response.Conflict(c, 11006, "已处于终态，不能再修改")
	case errors.Is(err, pkgerrors.ErrOptimisticLock):
		response.Conflict(c, 11007, "数据已被其他操作修改，请刷新后重试")
	case errors.Is(err, pkgerrors.ErrBackendCommitFailed):
		response.Error(c, http.StatusBadGateway, 11008, "提交失败，已回滚")
	case errors.Is(err, service.ErrDateFormat):
		response.BadRequest(c, 11009, "日期格式无效，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidSlot):
		response.BadRequest(c, 11010, "班次无效")
	case errors.Is(err, service.ErrSpecialtyMissing):
		response.BadRequest(c, 11011, "缺少专科")
	default:
		return false
	}
	return true
}
