package service

import (
	"context"
	"errors"
	"regexp"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/repository"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// ── 周期模块业务错误 ──

var (
	ErrPeriodNotFound    = errors.New("周期不存在")
	ErrPeriodCodeExists  = errors.New("周期编码已存在")
	ErrPeriodCodeInvalid = errors.New("周期编码必须为 YYYYMM")
	ErrPeriodHasRequests = errors.New("周期下已有申请，不能作废")
	ErrPeriodNotOpen     = errors.New("周期当前不接受申请")
)

var periodCodePattern = regexp.MustCompile(`^\d{4}(0[1-9]|1[0-2])$`)

// PeriodService 周期业务接口
type PeriodService interface {
	Create(ctx context.Context, req *dto.CreatePeriodRequest, callerID string) (*dto.PeriodResponse, error)
	GetByID(ctx context.Context, id string) (*dto.PeriodResponse, error)
	List(ctx context.Context, req *dto.PeriodListRequest) ([]dto.PeriodResponse, int64, error)
	Update(ctx context.Context, id string, req *dto.UpdatePeriodRequest, callerID string) (*dto.PeriodResponse, error)
	Activate(ctx context.Context, id string, callerID string) (*dto.PeriodResponse, error)
	Reopen(ctx context.Context, id string, req *dto.ReopenPeriodRequest, callerID string) (*dto.PeriodResponse, error)
	Close(ctx context.Context, id string, callerID string) (*dto.PeriodResponse, error)
	Void(ctx context.Context, id string, callerID string) error
	Stats(ctx context.Context, id string) (*dto.PeriodStatsResponse, error)
}

type periodService struct {
	repo     *repository.Repository
	calendar *Calendar
	logger   *zap.Logger
}

// NewPeriodService 创建 PeriodService 实例
func NewPeriodService(repo *repository.Repository, calendar *Calendar, logger *zap.Logger) PeriodService {
	return &periodService{repo: repo, calendar: calendar, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *periodService) Create(ctx context.Context, req *dto.CreatePeriodRequest, callerID string) (*dto.PeriodResponse, error) {
	if !periodCodePattern.MatchString(req.Code) {
		return nil, ErrPeriodCodeInvalid
	}
	startDate, err := parseDate(req.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := parseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateDateRange(startDate, endDate); err != nil {
		return nil, err
	}

	exists, err := s.repo.Period.ExistsByCode(ctx, req.Code)
	if err != nil {
		s.logger.Error("检查周期编码失败", zap.String("code", req.Code), zap.Error(err))
		return nil, err
	}
	if exists {
		return nil, ErrPeriodCodeExists
	}

	period := &model.Period{
		Code:         req.Code,
		Description:  req.Description,
		Instructions: req.Instructions,
		StartDate:    startDate,
		EndDate:      endDate,
		State:        model.PeriodDraft,
	}
	period.CreatedBy = &callerID
	period.UpdatedBy = &callerID

	if err := s.repo.Period.Create(ctx, period); err != nil {
		s.logger.Error("创建周期失败", zap.String("code", req.Code), zap.Error(err))
		return nil, err
	}

	s.logger.Info("周期已创建", zap.String("period_id", period.PeriodID), zap.String("code", period.Code))
	return toPeriodResponse(period), nil
}

// ────────────────────── GetByID ──────────────────────

func (s *periodService) GetByID(ctx context.Context, id string) (*dto.PeriodResponse, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return toPeriodResponse(period), nil
}

// ────────────────────── List ──────────────────────

func (s *periodService) List(ctx context.Context, req *dto.PeriodListRequest) ([]dto.PeriodResponse, int64, error) {
	periods, total, err := s.repo.Period.List(ctx, repository.PeriodFilter{
		State:  model.PeriodState(req.State),
		Year:   req.Year,
		Offset: req.GetOffset(),
		Limit:  req.GetPageSize(),
	})
	if err != nil {
		s.logger.Error("列出周期失败", zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.PeriodResponse, 0, len(periods))
	for i := range periods {
		result = append(result, *toPeriodResponse(&periods[i]))
	}
	return result, total, nil
}

// ────────────────────── Update ──────────────────────

func (s *periodService) Update(ctx context.Context, id string, req *dto.UpdatePeriodRequest, callerID string) (*dto.PeriodResponse, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if period.State.Terminal() {
		return nil, pkgerrors.ErrAlreadyTerminal
	}
	if period.State != model.PeriodDraft {
		return nil, pkgerrors.ErrForbiddenTransition
	}

	if req.Description != nil {
		period.Description = *req.Description
	}
	if req.Instructions != nil {
		period.Instructions = *req.Instructions
	}
	if req.StartDate != nil {
		if period.StartDate, err = parseDate(*req.StartDate); err != nil {
			return nil, err
		}
	}
	if req.EndDate != nil {
		if period.EndDate, err = parseDate(*req.EndDate); err != nil {
			return nil, err
		}
	}
	if err := model.ValidateDateRange(period.StartDate, period.EndDate); err != nil {
		return nil, err
	}

	if err := s.save(ctx, period, callerID); err != nil {
		return nil, err
	}
	return toPeriodResponse(period), nil
}

// ────────────────────── Activate ──────────────────────

func (s *periodService) Activate(ctx context.Context, id string, callerID string) (*dto.PeriodResponse, error) {
	return s.transition(ctx, id, callerID, "激活", (*model.Period).Activate)
}

// ────────────────────── Reopen ──────────────────────

func (s *periodService) Reopen(ctx context.Context, id string, req *dto.ReopenPeriodRequest, callerID string) (*dto.PeriodResponse, error) {
	proposedEnd, err := parseDate(req.EndDate)
	if err != nil {
		return nil, err
	}
	today := s.calendar.Today()
	return s.transition(ctx, id, callerID, "重新开放", func(p *model.Period) error {
		return p.Reopen(proposedEnd, today)
	})
}

// ────────────────────── Close ──────────────────────

func (s *periodService) Close(ctx context.Context, id string, callerID string) (*dto.PeriodResponse, error) {
	return s.transition(ctx, id, callerID, "关闭", (*model.Period).Close)
}

// ────────────────────── Void ──────────────────────

func (s *periodService) Void(ctx context.Context, id string, callerID string) error {
	period, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	counts, err := s.repo.Request.CountByPeriod(ctx, id)
	if err != nil {
		s.logger.Error("统计周期申请失败", zap.String("period_id", id), zap.Error(err))
		return err
	}
	for _, n := range counts {
		if n > 0 {
			return ErrPeriodHasRequests
		}
	}

	if err := period.Void(); err != nil {
		return err
	}
	return s.save(ctx, period, callerID)
}

// ────────────────────── Stats ──────────────────────

func (s *periodService) Stats(ctx context.Context, id string) (*dto.PeriodStatsResponse, error) {
	if _, err := s.load(ctx, id); err != nil {
		return nil, err
	}

	counts, err := s.repo.Request.CountByPeriod(ctx, id)
	if err != nil {
		s.logger.Error("统计周期申请失败", zap.String("period_id", id), zap.Error(err))
		return nil, err
	}

	stats := &dto.PeriodStatsResponse{PeriodID: id, ByState: make(map[string]int, len(counts))}
	for state, n := range counts {
		stats.ByState[string(state)] = int(n)
		stats.TotalRequests += n
		if state != model.RequestDraft && state != model.RequestVoided {
			stats.SubmittedRequests += n
		}
	}
	return stats, nil
}

// ── 内部方法 ──

func (s *periodService) load(ctx context.Context, id string) (*model.Period, error) {
	period, err := s.repo.Period.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		s.logger.Error("查询周期失败", zap.String("period_id", id), zap.Error(err))
		return nil, err
	}
	return period, nil
}

// transition 加载周期，执行状态迁移并持久化；迁移失败时不写库
func (s *periodService) transition(ctx context.Context, id, callerID, action string, apply func(*model.Period) error) (*dto.PeriodResponse, error) {
	period, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	from := period.State
	if err := apply(period); err != nil {
		return nil, err
	}
	if err := s.save(ctx, period, callerID); err != nil {
		return nil, err
	}

	s.logger.Info("周期状态变更",
		zap.String("period_id", id),
		zap.String("action", action),
		zap.String("from", string(from)),
		zap.String("to", string(period.State)),
	)
	return toPeriodResponse(period), nil
}

func (s *periodService) save(ctx context.Context, period *model.Period, callerID string) error {
	period.Touch(callerID, s.calendar.Now())
	if err := s.repo.Period.Update(ctx, period); err != nil {
		s.logger.Error("更新周期失败", zap.String("period_id", period.PeriodID), zap.Error(err))
		return err
	}
	return nil
}

func toPeriodResponse(p *model.Period) *dto.PeriodResponse {
	return &dto.PeriodResponse{
		ID:              p.PeriodID,
		Code:            p.Code,
		Description:     p.Description,
		Instructions:    p.Instructions,
		StartDate:       model.FormatDate(p.StartDate),
		EndDate:         model.FormatDate(p.EndDate),
		State:           string(p.State),
		AcceptsRequests: p.State.AcceptsRequests(),
		Version:         p.Version,
		CreatedAt:       formatTime(p.CreatedAt),
		UpdatedAt:       formatTime(p.UpdatedAt),
	}
}
