package service

import (
	"time"

	"go.uber.org/zap"

	"cenate-turnos/backend/config"
	"cenate-turnos/backend/internal/repository"
	"cenate-turnos/backend/pkg/availability"
)

// 暂存审核写库的超时
const stagedCommitTimeout = 10 * time.Second

// Service 所有 Service 的聚合入口
type Service struct {
	Calendar       *Calendar
	Turno          *TurnoConfigurator
	Validator      *ConflictValidator
	Period         PeriodService
	Request        RequestService
	Unavailability UnavailabilityService
	StagedDecision StagedDecisionService
}

// NewService 创建 Service 聚合
// oracle 为可用性来源；invalidator 为可选的可用性缓存（未启用 Redis 时传 nil）
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	oracle availability.Oracle,
	invalidator AvailabilityInvalidator,
	logger *zap.Logger,
) *Service {
	calendar := NewCalendar(cfg.Workflow.Location(), nil)
	turno := NewTurnoConfigurator()
	validator := NewConflictValidator(oracle, ConflictValidatorOptions{
		Timeout:  cfg.Workflow.OracleTimeout,
		FailOpen: cfg.Workflow.FailOpen,
	}, logger.Named("conflict"))

	requests := NewRequestService(repo, turno, validator, calendar, logger)

	return &Service{
		Calendar:       calendar,
		Turno:          turno,
		Validator:      validator,
		Period:         NewPeriodService(repo, calendar, logger),
		Request:        requests,
		Unavailability: NewUnavailabilityService(repo, calendar, invalidator, logger),
		StagedDecision: NewStagedDecisionService(requests, repo.Request, StagedDecisionOptions{
			Window:        cfg.Workflow.UndoWindow,
			CommitTimeout: stagedCommitTimeout,
		}, logger.Named("staged")),
	}
}
