package model

import (
	"time"

	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// PeriodState 周期状态
type PeriodState string

const (
	PeriodDraft             PeriodState = "DRAFT"
	PeriodActive            PeriodState = "ACTIVE"
	PeriodOpenForSubmission PeriodState = "OPEN_FOR_SUBMISSION"
	PeriodClosed            PeriodState = "CLOSED"
	PeriodVoided            PeriodState = "VOIDED"
)

// periodTransitions 周期状态迁移表：from → 允许的 to
var periodTransitions = map[PeriodState]map[PeriodState]bool{
	PeriodDraft: {
		PeriodActive: true, PeriodOpenForSubmission: true, PeriodClosed: true, PeriodVoided: true,
	},
	PeriodActive: {
		PeriodOpenForSubmission: true, PeriodClosed: true, PeriodVoided: true,
	},
	PeriodOpenForSubmission: {
		PeriodOpenForSubmission: true, PeriodClosed: true, PeriodVoided: true,
	},
	PeriodClosed: {
		PeriodOpenForSubmission: true, PeriodClosed: true, PeriodVoided: true,
	},
	PeriodVoided: {},
}

// Valid 是否为已知状态
func (s PeriodState) Valid() bool {
	_, ok := periodTransitions[s]
	return ok
}

// Terminal VOIDED 之后不再接受任何迁移
func (s PeriodState) Terminal() bool { return s == PeriodVoided }

// AcceptsRequests 仅 ACTIVE / OPEN_FOR_SUBMISSION 可新建或修改申请
func (s PeriodState) AcceptsRequests() bool {
	return s == PeriodActive || s == PeriodOpenForSubmission
}

// CanTransitionTo 查询迁移表
func (s PeriodState) CanTransitionTo(to PeriodState) bool {
	return periodTransitions[s][to]
}

// Period 申请周期表 — 对应 periods
type Period struct {
	PeriodID     string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"period_id"`
	Code         string      `gorm:"type:varchar(6);not null"                       json:"code"` // YYYYMM
	Description  string      `gorm:"type:varchar(200);not null"                     json:"description"`
	Instructions string      `gorm:"type:text"                                      json:"instructions,omitempty"`
	StartDate    time.Time   `gorm:"type:date;not null"                             json:"start_date"`
	EndDate      time.Time   `gorm:"type:date;not null"                             json:"end_date"`
	State        PeriodState `gorm:"type:varchar(30);not null;default:'DRAFT'"      json:"state"`
	VersionedModel
}

// TableName 指定表名
func (Period) TableName() string { return "periods" }

// ValidateDateRange end_date >= start_date
func ValidateDateRange(start, end time.Time) error {
	if CivilDate(end).Before(CivilDate(start)) {
		return pkgerrors.ErrInvalidDateRange
	}
	return nil
}

func (p *Period) transition(to PeriodState) error {
	if p.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	if !p.State.CanTransitionTo(to) {
		return pkgerrors.ErrForbiddenTransition
	}
	p.State = to
	return nil
}

// Reopen 以 max(end_date, today) 为下限延长周期并重新开放提交。
// 失败时不修改周期。
func (p *Period) Reopen(proposedEnd, today time.Time) error {
	if p.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	minAllowedEnd := MaxDate(CivilDate(p.EndDate), CivilDate(today))
	proposedEnd = CivilDate(proposedEnd)
	if proposedEnd.Before(minAllowedEnd) {
		return pkgerrors.ErrInvalidDateRange
	}
	if err := p.transition(PeriodOpenForSubmission); err != nil {
		return err
	}
	p.EndDate = proposedEnd
	return nil
}

// Close 关闭周期；已有的草稿申请在提交时被拒绝，不做追溯处理
func (p *Period) Close() error {
	return p.transition(PeriodClosed)
}

// Activate DRAFT → ACTIVE
func (p *Period) Activate() error {
	return p.transition(PeriodActive)
}

// Void 作废周期（是否存在申请由调用方检查）
func (p *Period) Void() error {
	return p.transition(PeriodVoided)
}
