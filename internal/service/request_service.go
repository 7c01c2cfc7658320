package service

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/repository"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// ── 排班申请业务错误 ──

var (
	ErrRequestNotFound   = errors.New("申请不存在")
	ErrRequestNotVisible = errors.New("无权查看该申请")
	ErrDetailNotFound    = errors.New("申请明细不存在")
	ErrRequestEmpty      = model.ErrRequestEmpty
	ErrInvalidDecision   = model.ErrInvalidDecision
)

// RequestService 排班申请流程接口
// 每个操作都显式接收当前操作人
type RequestService interface {
	SaveDraft(ctx context.Context, actor model.Actor, req *dto.SaveDraftRequest) (*dto.RequestResponse, error)
	AttachDetail(ctx context.Context, actor model.Actor, requestID string, in *dto.TurnoInput) (*dto.RequestResponse, error)
	RemoveDetail(ctx context.Context, actor model.Actor, requestID, detailID string) (*dto.RequestResponse, error)
	Submit(ctx context.Context, actor model.Actor, requestID string) (*dto.RequestResponse, error)
	RequestChanges(ctx context.Context, actor model.Actor, requestID, remark string) (*dto.RequestResponse, error)
	DecideDetail(ctx context.Context, actor model.Actor, requestID, detailID string, decision model.DetailState, clinicalRemark *string) (*dto.RequestResponse, error)
	Cancel(ctx context.Context, actor model.Actor, requestID string) (*dto.RequestResponse, error)
	Delete(ctx context.Context, actor model.Actor, requestID string) error
	GetByID(ctx context.Context, actor model.Actor, requestID string) (*dto.RequestResponse, error)
	GetMine(ctx context.Context, actor model.Actor, periodID string) (*dto.RequestResponse, error)
	ListMine(ctx context.Context, actor model.Actor) ([]dto.RequestResponse, error)
	ListByPeriod(ctx context.Context, actor model.Actor, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error)
}

type requestService struct {
	repo         *repository.Repository
	configurator *TurnoConfigurator
	validator    *ConflictValidator
	calendar     *Calendar
	logger       *zap.Logger
}

// NewRequestService 创建 RequestService 实例
func NewRequestService(
	repo *repository.Repository,
	configurator *TurnoConfigurator,
	validator *ConflictValidator,
	calendar *Calendar,
	logger *zap.Logger,
) RequestService {
	return &requestService{
		repo:         repo,
		configurator: configurator,
		validator:    validator,
		calendar:     calendar,
		logger:       logger,
	}
}

// ────────────────────── SaveDraft ──────────────────────

// SaveDraft 创建本人在该周期的申请，或用 details 整体替换其 PENDING 明细
func (s *requestService) SaveDraft(ctx context.Context, actor model.Actor, req *dto.SaveDraftRequest) (*dto.RequestResponse, error) {
	if _, err := s.openPeriod(ctx, req.PeriodID); err != nil {
		return nil, err
	}
	built, err := s.configurator.BuildAll(req.Details, s.calendar.Today())
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.Request.GetByPeriodAndRequester(ctx, req.PeriodID, actor.UserID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Error("查询申请失败", zap.String("period_id", req.PeriodID), zap.Error(err))
		return nil, err
	}

	now := s.calendar.Now()

	if existing == nil {
		r := &model.ShiftRequest{
			PeriodID:    req.PeriodID,
			RequesterID: actor.UserID,
			State:       model.RequestDraft,
			Details:     built,
		}
		if req.GeneralRemark != nil {
			r.GeneralRemark = *req.GeneralRemark
		}
		r.Version = 1
		r.CreatedAt = now
		r.CreatedBy = &actor.UserID
		r.Touch(actor.UserID, now)

		if err := s.repo.Request.Create(ctx, r); err != nil {
			s.logger.Error("创建申请失败", zap.String("period_id", req.PeriodID), zap.Error(err))
			return nil, err
		}
		s.logger.Info("申请草稿已创建",
			zap.String("request_id", r.RequestID),
			zap.String("requester_id", actor.UserID),
			zap.Int("details", len(r.Details)),
		)
		return toRequestResponse(r), nil
	}

	if err := existing.EnsureEditable(actor); err != nil {
		return nil, err
	}
	details, err := replacePending(existing.Details, built)
	if err != nil {
		return nil, err
	}
	existing.Details = details
	if req.GeneralRemark != nil {
		existing.GeneralRemark = *req.GeneralRemark
	}
	existing.Touch(actor.UserID, now)

	if err := s.persist(ctx, existing, true); err != nil {
		return nil, err
	}
	return toRequestResponse(existing), nil
}

// ────────────────────── AttachDetail ──────────────────────

func (s *requestService) AttachDetail(ctx context.Context, actor model.Actor, requestID string, in *dto.TurnoInput) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.EnsureEditable(actor); err != nil {
		return nil, err
	}
	if _, err := s.openPeriod(ctx, r.PeriodID); err != nil {
		return nil, err
	}

	item, err := s.configurator.Build(*in, s.calendar.Today())
	if err != nil {
		return nil, err
	}
	for i := range r.Details {
		if r.Details[i].Key() == item.Key() && r.Details[i].State != model.DetailPending {
			return nil, pkgerrors.ErrAlreadyTerminal
		}
	}
	r.Details = s.configurator.Upsert(r.Details, item)
	r.Touch(actor.UserID, s.calendar.Now())

	if err := s.persist(ctx, r, true); err != nil {
		return nil, err
	}
	return toRequestResponse(r), nil
}

// ────────────────────── RemoveDetail ──────────────────────

func (s *requestService) RemoveDetail(ctx context.Context, actor model.Actor, requestID, detailID string) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.EnsureEditable(actor); err != nil {
		return nil, err
	}
	if _, err := s.openPeriod(ctx, r.PeriodID); err != nil {
		return nil, err
	}

	detail := r.FindDetail(detailID)
	if detail == nil {
		return nil, ErrDetailNotFound
	}
	if detail.State != model.DetailPending {
		return nil, pkgerrors.ErrAlreadyTerminal
	}
	r.RemoveDetail(detailID)
	r.Touch(actor.UserID, s.calendar.Now())

	if err := s.persist(ctx, r, true); err != nil {
		return nil, err
	}
	return toRequestResponse(r), nil
}

// ────────────────────── Submit ──────────────────────

// Submit 提交申请：所有 PENDING 明细通过可用性检查后整体进入 SUBMITTED，
// 任一班次不可用则整体拒绝并返回全部冲突日期。
func (s *requestService) Submit(ctx context.Context, actor model.Actor, requestID string) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.EnsureSubmittable(actor); err != nil {
		return nil, err
	}
	if _, err := s.openPeriod(ctx, r.PeriodID); err != nil {
		return nil, err
	}

	if err := s.validator.CheckAll(ctx, r.RequesterID, r.PendingDetails()); err != nil {
		if errors.Is(err, pkgerrors.ErrSlotUnavailable) {
			s.logger.Info("提交被拒绝：班次不可用",
				zap.String("request_id", requestID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	if err := r.MarkSubmitted(actor, s.calendar.Now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, r, false); err != nil {
		return nil, err
	}

	s.logger.Info("申请已提交",
		zap.String("request_id", requestID),
		zap.Int("details", len(r.Details)),
	)
	return toRequestResponse(r), nil
}

// ────────────────────── RequestChanges ──────────────────────

func (s *requestService) RequestChanges(ctx context.Context, actor model.Actor, requestID, remark string) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.RequestChanges(actor, remark, s.calendar.Now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, r, false); err != nil {
		return nil, err
	}
	return toRequestResponse(r), nil
}

// ────────────────────── DecideDetail ──────────────────────

func (s *requestService) DecideDetail(ctx context.Context, actor model.Actor, requestID, detailID string, decision model.DetailState, clinicalRemark *string) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	detail := r.FindDetail(detailID)
	if detail == nil {
		return nil, ErrDetailNotFound
	}

	from := r.State
	if err := r.DecideDetail(actor, detail, decision, clinicalRemark, s.calendar.Now()); err != nil {
		return nil, err
	}

	err = s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if err := txRepo.Request.UpdateDetail(ctx, detail); err != nil {
			return err
		}
		return txRepo.Request.Update(ctx, r)
	})
	if err != nil {
		s.logger.Error("保存审核结论失败",
			zap.String("request_id", requestID),
			zap.String("detail_id", detailID),
			zap.Error(err),
		)
		return nil, err
	}

	if r.State != from {
		s.logger.Info("申请状态变更",
			zap.String("request_id", requestID),
			zap.String("from", string(from)),
			zap.String("to", string(r.State)),
		)
	}
	return toRequestResponse(r), nil
}

// ────────────────────── Cancel ──────────────────────

func (s *requestService) Cancel(ctx context.Context, actor model.Actor, requestID string) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := r.Cancel(actor, s.calendar.Now()); err != nil {
		return nil, err
	}
	if err := s.persist(ctx, r, false); err != nil {
		return nil, err
	}
	return toRequestResponse(r), nil
}

// ────────────────────── Delete ──────────────────────

// Delete 仅申请人可删除 DRAFT 申请
func (s *requestService) Delete(ctx context.Context, actor model.Actor, requestID string) error {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return err
	}
	if !r.IsOwnedBy(actor) {
		return pkgerrors.ErrForbiddenTransition
	}
	if r.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	if r.State != model.RequestDraft {
		return pkgerrors.ErrForbiddenTransition
	}

	if err := s.repo.Request.Delete(ctx, requestID, actor.UserID); err != nil {
		s.logger.Error("删除申请失败", zap.String("request_id", requestID), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── 查询 ──────────────────────

func (s *requestService) GetByID(ctx context.Context, actor model.Actor, requestID string) (*dto.RequestResponse, error) {
	r, err := s.load(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !r.IsOwnedBy(actor) && !actor.IsReviewer() {
		return nil, ErrRequestNotVisible
	}
	return toRequestResponse(r), nil
}

func (s *requestService) GetMine(ctx context.Context, actor model.Actor, periodID string) (*dto.RequestResponse, error) {
	r, err := s.repo.Request.GetByPeriodAndRequester(ctx, periodID, actor.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		s.logger.Error("查询申请失败", zap.String("period_id", periodID), zap.Error(err))
		return nil, err
	}
	return toRequestResponse(r), nil
}

func (s *requestService) ListMine(ctx context.Context, actor model.Actor) ([]dto.RequestResponse, error) {
	reqs, err := s.repo.Request.ListByRequester(ctx, actor.UserID)
	if err != nil {
		s.logger.Error("列出申请失败", zap.String("requester_id", actor.UserID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.RequestResponse, 0, len(reqs))
	for i := range reqs {
		result = append(result, *toRequestResponse(&reqs[i]))
	}
	return result, nil
}

func (s *requestService) ListByPeriod(ctx context.Context, actor model.Actor, req *dto.RequestListRequest) ([]dto.RequestResponse, int64, error) {
	if !actor.IsReviewer() {
		return nil, 0, ErrRequestNotVisible
	}
	reqs, total, err := s.repo.Request.List(ctx, repository.RequestFilter{
		PeriodID: req.PeriodID,
		State:    model.RequestState(req.State),
		Offset:   req.GetOffset(),
		Limit:    req.GetPageSize(),
	})
	if err != nil {
		s.logger.Error("列出周期申请失败", zap.String("period_id", req.PeriodID), zap.Error(err))
		return nil, 0, err
	}

	result := make([]dto.RequestResponse, 0, len(reqs))
	for i := range reqs {
		result = append(result, *toRequestResponse(&reqs[i]))
	}
	return result, total, nil
}

// ── 内部方法 ──

func (s *requestService) load(ctx context.Context, requestID string) (*model.ShiftRequest, error) {
	r, err := s.repo.Request.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		s.logger.Error("查询申请失败", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}
	return r, nil
}

// openPeriod 周期存在且当前接受申请
func (s *requestService) openPeriod(ctx context.Context, periodID string) (*model.Period, error) {
	period, err := s.repo.Period.GetByID(ctx, periodID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPeriodNotFound
		}
		s.logger.Error("查询周期失败", zap.String("period_id", periodID), zap.Error(err))
		return nil, err
	}
	if !period.State.AcceptsRequests() {
		return nil, ErrPeriodNotOpen
	}
	return period, nil
}

// persist 乐观锁更新表头；withDetails 时在同一事务中替换明细
func (s *requestService) persist(ctx context.Context, r *model.ShiftRequest, withDetails bool) error {
	err := s.repo.Transaction(ctx, func(txRepo *repository.Repository) error {
		if withDetails {
			if err := txRepo.Request.ReplaceDetails(ctx, r.RequestID, r.Details); err != nil {
				return err
			}
		}
		return txRepo.Request.Update(ctx, r)
	})
	if err != nil {
		s.logger.Error("保存申请失败", zap.String("request_id", r.RequestID), zap.Error(err))
		return err
	}
	return nil
}

// replacePending 已审核明细原样保留，PENDING 明细整体替换为 built；
// 与已审核明细同键的输入返回 ALREADY_TERMINAL。
func replacePending(current, built []model.ShiftRequestDetail) ([]model.ShiftRequestDetail, error) {
	decided := make(map[model.DetailKey]bool)
	pending := make(map[model.DetailKey]model.ShiftRequestDetail)
	next := make([]model.ShiftRequestDetail, 0, len(current)+len(built))
	for _, d := range current {
		if d.State == model.DetailPending {
			pending[d.Key()] = d
			continue
		}
		decided[d.Key()] = true
		next = append(next, d)
	}

	for _, d := range built {
		key := d.Key()
		if decided[key] {
			return nil, pkgerrors.ErrAlreadyTerminal
		}
		if old, ok := pending[key]; ok {
			d.DetailID = old.DetailID
			d.RequestID = old.RequestID
			d.CreatedAt = old.CreatedAt
		}
		next = append(next, d)
	}
	return next, nil
}

func toRequestResponse(r *model.ShiftRequest) *dto.RequestResponse {
	model.SortDetails(r.Details)
	details := make([]dto.DetailResponse, 0, len(r.Details))
	for i := range r.Details {
		details = append(details, toDetailResponse(&r.Details[i]))
	}
	return &dto.RequestResponse{
		ID:            r.RequestID,
		PeriodID:      r.PeriodID,
		RequesterID:   r.RequesterID,
		State:         string(r.State),
		GeneralRemark: r.GeneralRemark,
		SubmittedAt:   formatTimePtr(r.SubmittedAt),
		ReviewedBy:    r.ReviewedBy,
		ReviewedAt:    formatTimePtr(r.ReviewedAt),
		Version:       r.Version,
		CreatedAt:     formatTime(r.CreatedAt),
		UpdatedAt:     formatTime(r.UpdatedAt),
		Details:       details,
		Summary:       r.Summary(),
	}
}
