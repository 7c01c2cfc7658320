package service

import (
	"errors"
	"strings"
	"time"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// ── 班次配置业务错误 ──

var (
	ErrInvalidSlot      = errors.New("班次无效，应为 MORNING 或 AFTERNOON")
	ErrSpecialtyMissing = errors.New("缺少专科")
)

// 单个模式的数量上限
const maxTurnoQuantity = 99

// TurnoConfigurator 根据用户输入构造一条申请明细，不做任何持久化
type TurnoConfigurator struct{}

// NewTurnoConfigurator 创建 TurnoConfigurator
func NewTurnoConfigurator() *TurnoConfigurator {
	return &TurnoConfigurator{}
}

// Build 校验并规范化输入：
// 日期不得早于 today（PAST_DATE）；数量截断到 [0, 99]，未启用的模式数量置 0；
// 没有任何已启用且数量 ≥ 1 的模式时返回 EMPTY_SELECTION。
func (c *TurnoConfigurator) Build(in dto.TurnoInput, today time.Time) (model.ShiftRequestDetail, error) {
	var detail model.ShiftRequestDetail

	specialty := strings.TrimSpace(in.SpecialtyID)
	if specialty == "" {
		return detail, ErrSpecialtyMissing
	}
	slot := model.Slot(strings.ToUpper(strings.TrimSpace(in.Slot)))
	if !slot.Valid() {
		return detail, ErrInvalidSlot
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return detail, err
	}
	if date.Before(model.CivilDate(today)) {
		return detail, pkgerrors.ErrPastDate
	}

	detail = model.ShiftRequestDetail{
		SpecialtyID:      specialty,
		Date:             date,
		Slot:             slot,
		RemoteEnabled:    in.RemoteEnabled,
		InPersonEnabled:  in.InPersonEnabled,
		RemoteQuantity:   clampQuantity(in.RemoteEnabled, in.RemoteQuantity),
		InPersonQuantity: clampQuantity(in.InPersonEnabled, in.InPersonQuantity),
		State:            model.DetailPending,
	}
	if !detail.HasSelection() {
		return model.ShiftRequestDetail{}, pkgerrors.ErrEmptySelection
	}
	return detail, nil
}

// BuildAll 依次构造并按 (date, slot, specialty) 去重，后出现的输入覆盖先前的
func (c *TurnoConfigurator) BuildAll(inputs []dto.TurnoInput, today time.Time) ([]model.ShiftRequestDetail, error) {
	details := make([]model.ShiftRequestDetail, 0, len(inputs))
	for _, in := range inputs {
		d, err := c.Build(in, today)
		if err != nil {
			return nil, err
		}
		details = model.UpsertDetail(details, d)
	}
	return details, nil
}

// Upsert 同一键的明细替换旧明细，否则追加
func (c *TurnoConfigurator) Upsert(details []model.ShiftRequestDetail, item model.ShiftRequestDetail) []model.ShiftRequestDetail {
	return model.UpsertDetail(details, item)
}

// Preview 构造并返回规范化后的明细，不落库
func (c *TurnoConfigurator) Preview(inputs []dto.TurnoInput, today time.Time) ([]dto.DetailResponse, error) {
	details, err := c.BuildAll(inputs, today)
	if err != nil {
		return nil, err
	}
	model.SortDetails(details)
	result := make([]dto.DetailResponse, 0, len(details))
	for i := range details {
		result = append(result, toDetailResponse(&details[i]))
	}
	return result, nil
}

func clampQuantity(enabled bool, q int) int {
	if !enabled || q < 0 {
		return 0
	}
	if q > maxTurnoQuantity {
		return maxTurnoQuantity
	}
	return q
}

func toDetailResponse(d *model.ShiftRequestDetail) dto.DetailResponse {
	return dto.DetailResponse{
		ID:               d.DetailID,
		SpecialtyID:      d.SpecialtyID,
		Date:             model.FormatDate(d.Date),
		Slot:             string(d.Slot),
		RemoteEnabled:    d.RemoteEnabled,
		InPersonEnabled:  d.InPersonEnabled,
		RemoteQuantity:   d.RemoteQuantity,
		InPersonQuantity: d.InPersonQuantity,
		State:            string(d.State),
		ClinicalRemark:   d.ClinicalRemark,
		DecidedBy:        d.DecidedBy,
		DecidedAt:        formatTimePtr(d.DecidedAt),
	}
}
