package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/repository"
	"cenate-turnos/backend/pkg/availability"
	pkgerrors "cenate-turnos/backend/pkg/errors"
	"cenate-turnos/backend/pkg/redis"
)

// ── 不可用时间业务错误 ──

var (
	ErrUnavailabilityNotFound = errors.New("不可用时间记录不存在")
	ErrUnavailabilityNotOwner = errors.New("只能操作本人的不可用时间")
)

// defaultUnavailableReason 未填写原因时返回给申请人的说明
const defaultUnavailableReason = "该时段已登记为不可用"

// UnavailabilityService 员工不可用时间业务接口
type UnavailabilityService interface {
	Create(ctx context.Context, req *dto.CreateUnavailabilityRequest, staffID string) (*dto.UnavailabilityResponse, error)
	ListMine(ctx context.Context, req *dto.UnavailabilityListRequest, staffID string) ([]dto.UnavailabilityResponse, error)
	Delete(ctx context.Context, id string, actor model.Actor) error
}

// AvailabilityInvalidator 登记或删除不可用时间后清除缓存
type AvailabilityInvalidator interface {
	Invalidate(ctx context.Context, staffID string) error
}

type unavailabilityService struct {
	repo        *repository.Repository
	calendar    *Calendar
	invalidator AvailabilityInvalidator
	logger      *zap.Logger
}

// NewUnavailabilityService 创建 UnavailabilityService 实例；invalidator 可为 nil
func NewUnavailabilityService(repo *repository.Repository, calendar *Calendar, invalidator AvailabilityInvalidator, logger *zap.Logger) UnavailabilityService {
	return &unavailabilityService{repo: repo, calendar: calendar, invalidator: invalidator, logger: logger}
}

// ────────────────────── Create ──────────────────────

func (s *unavailabilityService) Create(ctx context.Context, req *dto.CreateUnavailabilityRequest, staffID string) (*dto.UnavailabilityResponse, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if date.Before(s.calendar.Today()) {
		return nil, pkgerrors.ErrPastDate
	}

	u := &model.StaffUnavailability{
		StaffID: staffID,
		Date:    date,
		Reason:  req.Reason,
	}
	if req.Slot != nil && *req.Slot != "" {
		slot := model.Slot(*req.Slot)
		if !slot.Valid() {
			return nil, ErrInvalidSlot
		}
		u.Slot = &slot
	}
	u.CreatedBy = &staffID
	u.UpdatedBy = &staffID

	if err := s.repo.Unavailability.Create(ctx, u); err != nil {
		s.logger.Error("登记不可用时间失败", zap.String("staff_id", staffID), zap.Error(err))
		return nil, err
	}
	s.invalidate(ctx, staffID)

	return toUnavailabilityResponse(u), nil
}

// ────────────────────── ListMine ──────────────────────

func (s *unavailabilityService) ListMine(ctx context.Context, req *dto.UnavailabilityListRequest, staffID string) ([]dto.UnavailabilityResponse, error) {
	var from, to *time.Time
	if req.From != "" {
		t, err := parseDate(req.From)
		if err != nil {
			return nil, err
		}
		from = &t
	}
	if req.To != "" {
		t, err := parseDate(req.To)
		if err != nil {
			return nil, err
		}
		to = &t
	}
	if from != nil && to != nil {
		if err := model.ValidateDateRange(*from, *to); err != nil {
			return nil, err
		}
	}

	list, err := s.repo.Unavailability.ListByStaff(ctx, staffID, from, to)
	if err != nil {
		s.logger.Error("查询不可用时间失败", zap.String("staff_id", staffID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.UnavailabilityResponse, 0, len(list))
	for i := range list {
		result = append(result, *toUnavailabilityResponse(&list[i]))
	}
	return result, nil
}

// ────────────────────── Delete ──────────────────────

func (s *unavailabilityService) Delete(ctx context.Context, id string, actor model.Actor) error {
	u, err := s.repo.Unavailability.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUnavailabilityNotFound
		}
		s.logger.Error("查询不可用时间失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if u.StaffID != actor.UserID && !actor.IsAdmin() {
		return ErrUnavailabilityNotOwner
	}

	if err := s.repo.Unavailability.Delete(ctx, id, actor.UserID); err != nil {
		s.logger.Error("删除不可用时间失败", zap.String("id", id), zap.Error(err))
		return err
	}
	s.invalidate(ctx, u.StaffID)
	return nil
}

func (s *unavailabilityService) invalidate(ctx context.Context, staffID string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, staffID); err != nil {
		s.logger.Warn("清除可用性缓存失败", zap.String("staff_id", staffID), zap.Error(err))
	}
}

func toUnavailabilityResponse(u *model.StaffUnavailability) *dto.UnavailabilityResponse {
	resp := &dto.UnavailabilityResponse{
		ID:        u.UnavailabilityID,
		StaffID:   u.StaffID,
		Date:      model.FormatDate(u.Date),
		Reason:    u.Reason,
		CreatedAt: formatTime(u.CreatedAt),
	}
	if u.Slot != nil {
		slot := string(*u.Slot)
		resp.Slot = &slot
	}
	return resp
}

// ── 内置可用性查询：基于 staff_unavailabilities ──

type unavailabilityOracle struct {
	repo repository.UnavailabilityRepository
}

// NewUnavailabilityOracle 以员工登记的不可用时间作为可用性来源
func NewUnavailabilityOracle(repo repository.UnavailabilityRepository) availability.Oracle {
	return &unavailabilityOracle{repo: repo}
}

func (o *unavailabilityOracle) QueryAvailability(ctx context.Context, staffID string, date time.Time, slot string) (*availability.Result, error) {
	s := model.Slot(slot)
	if !s.Valid() {
		return nil, ErrInvalidSlot
	}
	list, err := o.repo.FindCovering(ctx, staffID, model.CivilDate(date), s)
	if err != nil {
		return nil, err
	}
	for i := range list {
		if !list[i].Covers(s) {
			continue
		}
		reason := list[i].Reason
		if reason == "" {
			reason = defaultUnavailableReason
		}
		return &availability.Result{Available: false, Reason: reason}, nil
	}
	return &availability.Result{Available: true}, nil
}

// ── Redis 缓存装饰 ──

// AvailabilityCache 可用性结果缓存（*redis.Client 满足该接口）
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, key string) (*redis.CachedAvailability, error)
	SetAvailability(ctx context.Context, key string, v *redis.CachedAvailability, ttl time.Duration) error
	DeleteAvailability(ctx context.Context, staffID string) error
}

// CachedOracle 在 Oracle 之前加一层短 TTL 缓存；缓存故障时直接查询下游
type CachedOracle struct {
	next   availability.Oracle
	cache  AvailabilityCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedOracle 创建带缓存的 Oracle
func NewCachedOracle(next availability.Oracle, cache AvailabilityCache, ttl time.Duration, logger *zap.Logger) *CachedOracle {
	return &CachedOracle{next: next, cache: cache, ttl: ttl, logger: logger}
}

// QueryAvailability 先读缓存，未命中时查询下游并写回；下游错误不缓存
func (o *CachedOracle) QueryAvailability(ctx context.Context, staffID string, date time.Time, slot string) (*availability.Result, error) {
	key := staffID + ":" + model.FormatDate(date) + ":" + slot

	cached, err := o.cache.GetAvailability(ctx, key)
	if err != nil {
		o.logger.Debug("读取可用性缓存失败", zap.String("key", key), zap.Error(err))
	} else if cached != nil {
		return &availability.Result{Available: cached.Available, Reason: cached.Reason}, nil
	}

	res, err := o.next.QueryAvailability(ctx, staffID, date, slot)
	if err != nil {
		return nil, err
	}

	if err := o.cache.SetAvailability(ctx, key, &redis.CachedAvailability{Available: res.Available, Reason: res.Reason}, o.ttl); err != nil {
		o.logger.Debug("写入可用性缓存失败", zap.String("key", key), zap.Error(err))
	}
	return res, nil
}

// Invalidate 清除某员工的全部缓存
func (o *CachedOracle) Invalidate(ctx context.Context, staffID string) error {
	return o.cache.DeleteAvailability(ctx, staffID)
}
