package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"cenate-turnos/backend/internal/model"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// PeriodFilter 周期列表过滤条件
type PeriodFilter struct {
	State  model.PeriodState
	Year   int
	Offset int
	Limit  int
}

// PeriodRepository 周期数据访问接口
type PeriodRepository interface {
	Create(ctx context.Context, period *model.Period) error
	GetByID(ctx context.Context, id string) (*model.Period, error)
	ExistsByCode(ctx context.Context, code string) (bool, error)
	List(ctx context.Context, filter PeriodFilter) ([]model.Period, int64, error)
	Update(ctx context.Context, period *model.Period) error
}

type periodRepo struct {
	db *gorm.DB
}

// NewPeriodRepo 创建 PeriodRepository 实例
func NewPeriodRepo(db *gorm.DB) PeriodRepository {
	return &periodRepo{db: db}
}

func (r *periodRepo) Create(ctx context.Context, period *model.Period) error {
	return r.db.WithContext(ctx).Create(period).Error
}

func (r *periodRepo) GetByID(ctx context.Context, id string) (*model.Period, error) {
	var period model.Period
	err := r.db.WithContext(ctx).
		Where("period_id = ?", id).
		First(&period).Error
	if err != nil {
		return nil, err
	}
	return &period, nil
}

func (r *periodRepo) ExistsByCode(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Period{}).
		Where("code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (r *periodRepo) List(ctx context.Context, filter PeriodFilter) ([]model.Period, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.Period{})
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}
	if filter.Year > 0 {
		from := time.Date(filter.Year, 1, 1, 0, 0, 0, 0, time.UTC)
		query = query.Where("start_date >= ? AND start_date < ?", from, from.AddDate(1, 0, 0))
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var periods []model.Period
	err := query.
		Order("start_date DESC, code DESC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&periods).Error
	return periods, total, err
}

// Update 基于 version 的乐观锁更新
func (r *periodRepo) Update(ctx context.Context, period *model.Period) error {
	oldVersion := period.Version
	result := r.db.WithContext(ctx).
		Model(period).
		Where("period_id = ? AND version = ?", period.PeriodID, oldVersion).
		Updates(map[string]interface{}{
			"description":  period.Description,
			"instructions": period.Instructions,
			"start_date":   period.StartDate,
			"end_date":     period.EndDate,
			"state":        period.State,
			"updated_at":   period.UpdatedAt,
			"updated_by":   period.UpdatedBy,
			"version":      oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	period.Version = oldVersion + 1
	return nil
}
