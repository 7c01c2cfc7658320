package handler

import "cenate-turnos/backend/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Period         *PeriodHandler
	Request        *RequestHandler
	Turno          *TurnoHandler
	Unavailability *UnavailabilityHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Period:         NewPeriodHandler(svc.Period),
		Request:        NewRequestHandler(svc.Request, svc.StagedDecision),
		Turno:          NewTurnoHandler(svc.Turno, svc.Calendar),
		Unavailability: NewUnavailabilityHandler(svc.Unavailability),
	}
}
