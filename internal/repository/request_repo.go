package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cenate-turnos/backend/internal/model"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// RequestFilter 申请列表过滤条件
type RequestFilter struct {
	PeriodID string
	State    model.RequestState
	Offset   int
	Limit    int
}

// RequestRepository 排班申请数据访问接口
type RequestRepository interface {
	Create(ctx context.Context, req *model.ShiftRequest) error
	GetByID(ctx context.Context, id string) (*model.ShiftRequest, error)
	GetByPeriodAndRequester(ctx context.Context, periodID, requesterID string) (*model.ShiftRequest, error)
	ListByRequester(ctx context.Context, requesterID string) ([]model.ShiftRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]model.ShiftRequest, int64, error)
	CountByPeriod(ctx context.Context, periodID string) (map[model.RequestState]int64, error)
	Update(ctx context.Context, req *model.ShiftRequest) error
	UpdateDetail(ctx context.Context, detail *model.ShiftRequestDetail) error
	ReplaceDetails(ctx context.Context, requestID string, details []model.ShiftRequestDetail) error
	Delete(ctx context.Context, id string, deletedBy string) error
}

type requestRepo struct {
	db *gorm.DB
}

// NewRequestRepo 创建 RequestRepository 实例
func NewRequestRepo(db *gorm.DB) RequestRepository {
	return &requestRepo{db: db}
}

func orderedDetails(db *gorm.DB) *gorm.DB {
	return db.Order("date ASC, slot DESC, specialty_id ASC")
}

func (r *requestRepo) Create(ctx context.Context, req *model.ShiftRequest) error {
	for i := range req.Details {
		if req.Details[i].DetailID == "" {
			req.Details[i].DetailID = uuid.NewString()
		}
	}
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *requestRepo) GetByID(ctx context.Context, id string) (*model.ShiftRequest, error) {
	var req model.ShiftRequest
	err := r.db.WithContext(ctx).
		Preload("Details", orderedDetails).
		Where("request_id = ?", id).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepo) GetByPeriodAndRequester(ctx context.Context, periodID, requesterID string) (*model.ShiftRequest, error) {
	var req model.ShiftRequest
	err := r.db.WithContext(ctx).
		Preload("Details", orderedDetails).
		Where("period_id = ? AND requester_id = ?", periodID, requesterID).
		First(&req).Error
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepo) ListByRequester(ctx context.Context, requesterID string) ([]model.ShiftRequest, error) {
	var reqs []model.ShiftRequest
	err := r.db.WithContext(ctx).
		Preload("Details", orderedDetails).
		Where("requester_id = ?", requesterID).
		Order("created_at DESC").
		Find(&reqs).Error
	return reqs, err
}

func (r *requestRepo) List(ctx context.Context, filter RequestFilter) ([]model.ShiftRequest, int64, error) {
	query := r.db.WithContext(ctx).Model(&model.ShiftRequest{})
	if filter.PeriodID != "" {
		query = query.Where("period_id = ?", filter.PeriodID)
	}
	if filter.State != "" {
		query = query.Where("state = ?", filter.State)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var reqs []model.ShiftRequest
	err := query.
		Preload("Details", orderedDetails).
		Order("submitted_at ASC NULLS LAST, created_at ASC").
		Offset(filter.Offset).
		Limit(filter.Limit).
		Find(&reqs).Error
	return reqs, total, err
}

func (r *requestRepo) CountByPeriod(ctx context.Context, periodID string) (map[model.RequestState]int64, error) {
	var rows []struct {
		State model.RequestState
		Count int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.ShiftRequest{}).
		Select("state, COUNT(*) AS count").
		Where("period_id = ?", periodID).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[model.RequestState]int64, len(rows))
	for _, row := range rows {
		counts[row.State] = row.Count
	}
	return counts, nil
}

// Update 基于 version 的乐观锁更新（仅表头字段，明细通过 ReplaceDetails / UpdateDetail 维护）
func (r *requestRepo) Update(ctx context.Context, req *model.ShiftRequest) error {
	oldVersion := req.Version
	result := r.db.WithContext(ctx).
		Model(&model.ShiftRequest{}).
		Where("request_id = ? AND version = ?", req.RequestID, oldVersion).
		Updates(map[string]interface{}{
			"state":          req.State,
			"general_remark": req.GeneralRemark,
			"submitted_at":   req.SubmittedAt,
			"reviewed_by":    req.ReviewedBy,
			"reviewed_at":    req.ReviewedAt,
			"updated_at":     req.UpdatedAt,
			"updated_by":     req.UpdatedBy,
			"version":        oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	req.Version = oldVersion + 1
	return nil
}

func (r *requestRepo) UpdateDetail(ctx context.Context, detail *model.ShiftRequestDetail) error {
	return r.db.WithContext(ctx).
		Model(&model.ShiftRequestDetail{}).
		Where("detail_id = ?", detail.DetailID).
		Updates(map[string]interface{}{
			"state":           detail.State,
			"clinical_remark": detail.ClinicalRemark,
			"decided_by":      detail.DecidedBy,
			"decided_at":      detail.DecidedAt,
			"updated_at":      detail.UpdatedAt,
		}).Error
}

// ReplaceDetails 用 details 覆盖申请的全部明细（须在事务中调用）
// 已有 ID 的明细保留原 ID，新明细在此生成 ID
func (r *requestRepo) ReplaceDetails(ctx context.Context, requestID string, details []model.ShiftRequestDetail) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("request_id = ?", requestID).Delete(&model.ShiftRequestDetail{}).Error; err != nil {
		return err
	}
	if len(details) == 0 {
		return nil
	}
	for i := range details {
		details[i].RequestID = requestID
		if details[i].DetailID == "" {
			details[i].DetailID = uuid.NewString()
		}
	}
	return db.Create(&details).Error
}

// Delete 删除明细并软删除申请
func (r *requestRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("request_id = ?", id).Delete(&model.ShiftRequestDetail{}).Error; err != nil {
			return err
		}
		return tx.Model(&model.ShiftRequest{}).
			Where("request_id = ?", id).
			Updates(map[string]interface{}{
				"deleted_by": deletedBy,
				"deleted_at": gorm.Expr("NOW()"),
			}).Error
	})
}
