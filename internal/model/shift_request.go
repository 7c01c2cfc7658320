package model

import (
	"sort"
	"time"

	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// RequestState 申请状态
type RequestState string

const (
	RequestDraft             RequestState = "DRAFT"
	RequestSubmitted         RequestState = "SUBMITTED"
	RequestUnderReview       RequestState = "UNDER_REVIEW"
	RequestApproved          RequestState = "APPROVED"
	RequestRejected          RequestState = "REJECTED"
	RequestPartiallyApproved RequestState = "PARTIALLY_APPROVED"
	RequestVoided            RequestState = "VOIDED"
)

// requestTransitions 申请状态迁移表：from → 允许的 to
var requestTransitions = map[RequestState]map[RequestState]bool{
	RequestDraft: {
		RequestSubmitted: true, RequestVoided: true,
	},
	RequestSubmitted: {
		RequestUnderReview: true, RequestApproved: true, RequestRejected: true,
		RequestPartiallyApproved: true, RequestVoided: true,
	},
	RequestUnderReview: {
		RequestSubmitted: true, RequestUnderReview: true, RequestApproved: true,
		RequestRejected: true, RequestPartiallyApproved: true, RequestVoided: true,
	},
	RequestApproved:          {},
	RequestRejected:          {},
	RequestPartiallyApproved: {},
	RequestVoided:            {},
}

// Valid 是否为已知状态
func (s RequestState) Valid() bool {
	_, ok := requestTransitions[s]
	return ok
}

// Terminal 没有出边的状态
func (s RequestState) Terminal() bool {
	return s.Valid() && len(requestTransitions[s]) == 0
}

// CanTransitionTo 查询迁移表
func (s RequestState) CanTransitionTo(to RequestState) bool {
	return requestTransitions[s][to]
}

// InReview SUBMITTED / UNDER_REVIEW 可以审核明细
func (s RequestState) InReview() bool {
	return s == RequestSubmitted || s == RequestUnderReview
}

// Editable 申请人可以编辑明细的状态
func (s RequestState) Editable() bool {
	return s == RequestDraft || s == RequestUnderReview
}

// DetailState 明细状态
type DetailState string

const (
	DetailPending     DetailState = "PENDING"
	DetailAssigned    DetailState = "ASSIGNED"
	DetailNotApproved DetailState = "NOT_APPROVED"
)

// IsDecision 审核结论只能是 ASSIGNED / NOT_APPROVED
func (s DetailState) IsDecision() bool {
	return s == DetailAssigned || s == DetailNotApproved
}

// Slot 班次
type Slot string

const (
	SlotMorning   Slot = "MORNING"
	SlotAfternoon Slot = "AFTERNOON"
)

// Valid 是否为已知班次
func (s Slot) Valid() bool { return s == SlotMorning || s == SlotAfternoon }

// ShiftRequest 排班申请表 — 对应 shift_requests（每人每周期一份）
type ShiftRequest struct {
	RequestID     string       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"request_id"`
	PeriodID      string       `gorm:"type:uuid;not null"                             json:"period_id"`
	RequesterID   string       `gorm:"type:uuid;not null"                             json:"requester_id"`
	State         RequestState `gorm:"type:varchar(30);not null;default:'DRAFT'"      json:"state"`
	GeneralRemark string       `gorm:"type:varchar(1000)"                             json:"general_remark,omitempty"`
	SubmittedAt   *time.Time   `json:"submitted_at,omitempty"`
	ReviewedBy    *string      `gorm:"type:uuid"                                      json:"reviewed_by,omitempty"`
	ReviewedAt    *time.Time   `json:"reviewed_at,omitempty"`
	VersionedModel

	// 关联
	Details []ShiftRequestDetail `gorm:"foreignKey:RequestID;references:RequestID" json:"details"`
	Period  *Period              `gorm:"foreignKey:PeriodID;references:PeriodID"   json:"period,omitempty"`
}

// TableName 指定表名
func (ShiftRequest) TableName() string { return "shift_requests" }

// ShiftRequestDetail 申请明细（turno）— 对应 shift_request_details
type ShiftRequestDetail struct {
	DetailID         string      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"detail_id"`
	RequestID        string      `gorm:"type:uuid;not null"                             json:"request_id"`
	SpecialtyID      string      `gorm:"type:varchar(50);not null"                      json:"specialty_id"`
	Date             time.Time   `gorm:"type:date;not null"                             json:"date"`
	Slot             Slot        `gorm:"type:varchar(10);not null"                      json:"slot"`
	RemoteEnabled    bool        `gorm:"not null;default:false"                         json:"remote_enabled"`
	InPersonEnabled  bool        `gorm:"not null;default:false"                         json:"in_person_enabled"`
	RemoteQuantity   int         `gorm:"type:smallint;not null;default:0"               json:"remote_quantity"`
	InPersonQuantity int         `gorm:"type:smallint;not null;default:0"               json:"in_person_quantity"`
	State            DetailState `gorm:"type:varchar(20);not null;default:'PENDING'"    json:"state"`
	ClinicalRemark   string      `gorm:"type:varchar(1000)"                             json:"clinical_remark,omitempty"`
	DecidedBy        *string     `gorm:"type:uuid"                                      json:"decided_by,omitempty"`
	DecidedAt        *time.Time  `json:"decided_at,omitempty"`
	CreatedAt        time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"created_at"`
	UpdatedAt        time.Time   `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"updated_at"`
}

// TableName 指定表名
func (ShiftRequestDetail) TableName() string { return "shift_request_details" }

// DetailKey 明细的业务主键 (date, slot, specialty)
type DetailKey struct {
	Date        string
	Slot        Slot
	SpecialtyID string
}

// Key 返回明细的业务主键
func (d *ShiftRequestDetail) Key() DetailKey {
	return DetailKey{Date: FormatDate(d.Date), Slot: d.Slot, SpecialtyID: d.SpecialtyID}
}

// HasSelection 至少一种已启用的模式数量 ≥ 1
func (d *ShiftRequestDetail) HasSelection() bool {
	return (d.RemoteEnabled && d.RemoteQuantity > 0) || (d.InPersonEnabled && d.InPersonQuantity > 0)
}

// ── 状态机 ──

func (r *ShiftRequest) transition(to RequestState) error {
	if r.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	if !r.State.CanTransitionTo(to) {
		return pkgerrors.ErrForbiddenTransition
	}
	r.State = to
	return nil
}

// IsOwnedBy 是否为申请人本人
func (r *ShiftRequest) IsOwnedBy(actor Actor) bool {
	return actor.UserID != "" && actor.UserID == r.RequesterID
}

// EnsureEditable 申请人在 DRAFT / UNDER_REVIEW 状态下才能修改明细
func (r *ShiftRequest) EnsureEditable(actor Actor) error {
	if !r.IsOwnedBy(actor) {
		return pkgerrors.ErrForbiddenTransition
	}
	if r.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	if !r.State.Editable() {
		return pkgerrors.ErrForbiddenTransition
	}
	return nil
}

// EnsureSubmittable 检查提交前置条件（周期与可用性由调用方检查）
func (r *ShiftRequest) EnsureSubmittable(actor Actor) error {
	if !r.IsOwnedBy(actor) {
		return pkgerrors.ErrForbiddenTransition
	}
	if r.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	if !r.State.CanTransitionTo(RequestSubmitted) {
		return pkgerrors.ErrForbiddenTransition
	}
	if len(r.Details) == 0 {
		return ErrRequestEmpty
	}
	return nil
}

// MarkSubmitted 进入 SUBMITTED，明细保持 PENDING
func (r *ShiftRequest) MarkSubmitted(actor Actor, now time.Time) error {
	if err := r.EnsureSubmittable(actor); err != nil {
		return err
	}
	if err := r.transition(RequestSubmitted); err != nil {
		return err
	}
	r.SubmittedAt = &now
	r.Touch(actor.UserID, now)

	// 重新提交时若已无 PENDING 明细，直接落到最终状态
	if next := AggregateState(r.State, r.Details); next != r.State {
		return r.transition(next)
	}
	return nil
}

// RequestChanges 审核员要求修改：SUBMITTED / UNDER_REVIEW → UNDER_REVIEW
func (r *ShiftRequest) RequestChanges(actor Actor, remark string, now time.Time) error {
	if !actor.IsReviewer() {
		return pkgerrors.ErrForbiddenTransition
	}
	if err := r.transition(RequestUnderReview); err != nil {
		return err
	}
	r.GeneralRemark = remark
	r.markReviewed(actor, now)
	return nil
}

// DecideDetail 审核单条明细并重新计算申请状态。
// 申请须处于 SUBMITTED / UNDER_REVIEW，明细须为 PENDING。
func (r *ShiftRequest) DecideDetail(actor Actor, detail *ShiftRequestDetail, decision DetailState, clinicalRemark *string, now time.Time) error {
	if !actor.IsReviewer() {
		return pkgerrors.ErrForbiddenTransition
	}
	if !decision.IsDecision() {
		return ErrInvalidDecision
	}
	if r.State.Terminal() {
		return pkgerrors.ErrAlreadyTerminal
	}
	if !r.State.InReview() {
		return pkgerrors.ErrForbiddenTransition
	}
	if detail.State != DetailPending {
		return pkgerrors.ErrAlreadyTerminal
	}

	detail.State = decision
	if clinicalRemark != nil {
		detail.ClinicalRemark = *clinicalRemark
	}
	detail.DecidedBy = &actor.UserID
	detail.DecidedAt = &now
	detail.UpdatedAt = now

	if next := AggregateState(r.State, r.Details); next != r.State {
		if err := r.transition(next); err != nil {
			return err
		}
	}
	r.markReviewed(actor, now)
	return nil
}

// Cancel 申请人（或管理员）作废申请：DRAFT / SUBMITTED / UNDER_REVIEW → VOIDED
func (r *ShiftRequest) Cancel(actor Actor, now time.Time) error {
	if !r.IsOwnedBy(actor) && !actor.IsAdmin() {
		return pkgerrors.ErrForbiddenTransition
	}
	if err := r.transition(RequestVoided); err != nil {
		return err
	}
	r.Touch(actor.UserID, now)
	return nil
}

func (r *ShiftRequest) markReviewed(actor Actor, now time.Time) {
	r.ReviewedBy = &actor.UserID
	r.ReviewedAt = &now
	r.Touch(actor.UserID, now)
}

// AggregateState 由明细结论推导申请状态：
// 全部 ASSIGNED → APPROVED；全部 NOT_APPROVED → REJECTED；
// 无 PENDING 且结论混合 → PARTIALLY_APPROVED；仍有 PENDING 时保持 current。
func AggregateState(current RequestState, details []ShiftRequestDetail) RequestState {
	if len(details) == 0 {
		return current
	}
	var assigned, rejected int
	for i := range details {
		switch details[i].State {
		case DetailAssigned:
			assigned++
		case DetailNotApproved:
			rejected++
		default:
			return current
		}
	}
	switch {
	case rejected == 0:
		return RequestApproved
	case assigned == 0:
		return RequestRejected
	default:
		return RequestPartiallyApproved
	}
}

// ── 明细集合 ──

// FindDetail 按 ID 查找明细
func (r *ShiftRequest) FindDetail(detailID string) *ShiftRequestDetail {
	for i := range r.Details {
		if r.Details[i].DetailID == detailID {
			return &r.Details[i]
		}
	}
	return nil
}

// UpsertDetail 按 (date, slot, specialty) 替换已有明细，否则追加。
// 被替换的明细保留原 ID。
func UpsertDetail(details []ShiftRequestDetail, item ShiftRequestDetail) []ShiftRequestDetail {
	key := item.Key()
	for i := range details {
		if details[i].Key() == key {
			item.DetailID = details[i].DetailID
			item.RequestID = details[i].RequestID
			item.CreatedAt = details[i].CreatedAt
			details[i] = item
			return details
		}
	}
	return append(details, item)
}

// RemoveDetail 删除指定明细，返回是否找到
func (r *ShiftRequest) RemoveDetail(detailID string) bool {
	for i := range r.Details {
		if r.Details[i].DetailID == detailID {
			r.Details = append(r.Details[:i], r.Details[i+1:]...)
			return true
		}
	}
	return false
}

// PendingDetails 返回仍待审核的明细
func (r *ShiftRequest) PendingDetails() []ShiftRequestDetail {
	var out []ShiftRequestDetail
	for _, d := range r.Details {
		if d.State == DetailPending {
			out = append(out, d)
		}
	}
	return out
}

// SortDetails 按日期、班次、专科排序
func SortDetails(details []ShiftRequestDetail) {
	sort.SliceStable(details, func(i, j int) bool {
		a, b := details[i], details[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.Slot != b.Slot {
			return a.Slot == SlotMorning
		}
		return a.SpecialtyID < b.SpecialtyID
	})
}

// ── 汇总 ──

// RequestSummary 申请汇总
type RequestSummary struct {
	TotalDetails        int                 `json:"total_details"`
	TotalShifts         int                 `json:"total_shifts"`
	TotalRemote         int                 `json:"total_remote"`
	TotalInPerson       int                 `json:"total_in_person"`
	SpecialtiesWithTurn int                 `json:"specialties_with_turn"`
	ByState             map[DetailState]int `json:"by_state"`
}

// Summary 计算申请汇总
func (r *ShiftRequest) Summary() RequestSummary {
	s := RequestSummary{ByState: map[DetailState]int{}}
	specialties := make(map[string]struct{})
	for _, d := range r.Details {
		s.TotalDetails++
		if d.RemoteEnabled {
			s.TotalRemote += d.RemoteQuantity
		}
		if d.InPersonEnabled {
			s.TotalInPerson += d.InPersonQuantity
		}
		s.ByState[d.State]++
		specialties[d.SpecialtyID] = struct{}{}
	}
	s.TotalShifts = s.TotalRemote + s.TotalInPerson
	s.SpecialtiesWithTurn = len(specialties)
	return s
}
