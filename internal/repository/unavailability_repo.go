package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"cenate-turnos/backend/internal/model"
)

// UnavailabilityRepository 员工不可用时间数据访问接口
type UnavailabilityRepository interface {
	Create(ctx context.Context, u *model.StaffUnavailability) error
	GetByID(ctx context.Context, id string) (*model.StaffUnavailability, error)
	ListByStaff(ctx context.Context, staffID string, from, to *time.Time) ([]model.StaffUnavailability, error)
	FindCovering(ctx context.Context, staffID string, date time.Time, slot model.Slot) ([]model.StaffUnavailability, error)
	Delete(ctx context.Context, id string, deletedBy string) error
}

type unavailabilityRepo struct {
	db *gorm.DB
}

// NewUnavailabilityRepo 创建 UnavailabilityRepository 实例
func NewUnavailabilityRepo(db *gorm.DB) UnavailabilityRepository {
	return &unavailabilityRepo{db: db}
}

func (r *unavailabilityRepo) Create(ctx context.Context, u *model.StaffUnavailability) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *unavailabilityRepo) GetByID(ctx context.Context, id string) (*model.StaffUnavailability, error) {
	var u model.StaffUnavailability
	err := r.db.WithContext(ctx).Where("unavailability_id = ?", id).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *unavailabilityRepo) ListByStaff(ctx context.Context, staffID string, from, to *time.Time) ([]model.StaffUnavailability, error) {
	query := r.db.WithContext(ctx).Where("staff_id = ?", staffID)
	if from != nil {
		query = query.Where("date >= ?", *from)
	}
	if to != nil {
		query = query.Where("date <= ?", *to)
	}

	var list []model.StaffUnavailability
	err := query.Order("date ASC, slot ASC NULLS FIRST").Find(&list).Error
	return list, err
}

// FindCovering 查询覆盖指定日期班次的记录（全天记录 slot 为 NULL）
func (r *unavailabilityRepo) FindCovering(ctx context.Context, staffID string, date time.Time, slot model.Slot) ([]model.StaffUnavailability, error) {
	var list []model.StaffUnavailability
	err := r.db.WithContext(ctx).
		Where("staff_id = ? AND date = ? AND (slot IS NULL OR slot = ?)", staffID, date, slot).
		Order("slot ASC NULLS FIRST").
		Find(&list).Error
	return list, err
}

func (r *unavailabilityRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.StaffUnavailability{}).
		Where("unavailability_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}
