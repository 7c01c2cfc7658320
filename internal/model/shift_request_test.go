package model

import (
	"errors"
	"testing"
	"time"

	pkgerrors "cenate-turnos/backend/pkg/errors"
)

var (
	staff    = Actor{UserID: "staff-1", Role: RoleStaff}
	reviewer = Actor{UserID: "reviewer-1", Role: RoleReviewer}
	now      = time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
)

func newSubmittedRequest(n int) *ShiftRequest {
	r := &ShiftRequest{RequestID: "req-1", RequesterID: staff.UserID, State: RequestSubmitted}
	for i := 0; i < n; i++ {
		r.Details = append(r.Details, ShiftRequestDetail{
			DetailID:        string(rune('a' + i)),
			Date:            date("2026-01-20").AddDate(0, 0, i),
			Slot:            SlotMorning,
			SpecialtyID:     "cardio",
			InPersonEnabled: true, InPersonQuantity: 1,
			State: DetailPending,
		})
	}
	return r
}

func TestShiftRequest_PartiallyApproved(t *testing.T) {
	r := newSubmittedRequest(3)
	decisions := []DetailState{DetailAssigned, DetailAssigned, DetailNotApproved}

	for i, d := range decisions {
		if err := r.DecideDetail(reviewer, &r.Details[i], d, nil, now); err != nil {
			t.Fatalf("第 %d 条审核失败: %v", i, err)
		}
		if i < 2 && r.State != RequestSubmitted {
			t.Errorf("仍有 PENDING 时状态应保持 SUBMITTED，实际=%s", r.State)
		}
	}
	if r.State != RequestPartiallyApproved {
		t.Fatalf("期望 PARTIALLY_APPROVED，实际=%s", r.State)
	}

	// 已审核的明细不能再次审核
	if err := r.DecideDetail(reviewer, &r.Details[0], DetailNotApproved, nil, now); !errors.Is(err, pkgerrors.ErrAlreadyTerminal) {
		t.Errorf("期望 ErrAlreadyTerminal，实际: %v", err)
	}
}

func TestShiftRequest_AggregateIsOrderIndependent(t *testing.T) {
	decisions := []DetailState{DetailAssigned, DetailNotApproved, DetailAssigned}
	orders := [][]int{{0, 1, 2}, {0, 2, 1}, {1, 0, 2}, {1, 2, 0}, {2, 0, 1}, {2, 1, 0}}

	for _, order := range orders {
		r := newSubmittedRequest(3)
		for _, i := range order {
			if err := r.DecideDetail(reviewer, &r.Details[i], decisions[i], nil, now); err != nil {
				t.Fatalf("order=%v: 审核失败: %v", order, err)
			}
		}
		if r.State != RequestPartiallyApproved {
			t.Errorf("order=%v: 期望 PARTIALLY_APPROVED，实际=%s", order, r.State)
		}
	}
}

func TestAggregateState(t *testing.T) {
	mk := func(states ...DetailState) []ShiftRequestDetail {
		out := make([]ShiftRequestDetail, len(states))
		for i, s := range states {
			out[i].State = s
		}
		return out
	}
	cases := []struct {
		name    string
		details []ShiftRequestDetail
		want    RequestState
	}{
		{"全部通过", mk(DetailAssigned, DetailAssigned), RequestApproved},
		{"全部驳回", mk(DetailNotApproved, DetailNotApproved), RequestRejected},
		{"混合", mk(DetailAssigned, DetailNotApproved), RequestPartiallyApproved},
		{"仍有待审", mk(DetailAssigned, DetailPending), RequestUnderReview},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := AggregateState(RequestUnderReview, tc.details); got != tc.want {
				t.Errorf("期望 %s，实际 %s", tc.want, got)
			}
		})
	}
}

func TestShiftRequest_DecideDetail_Guards(t *testing.T) {
	r := newSubmittedRequest(1)
	if err := r.DecideDetail(staff, &r.Details[0], DetailAssigned, nil, now); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("非审核员应为 ErrForbiddenTransition，实际: %v", err)
	}
	if err := r.DecideDetail(reviewer, &r.Details[0], DetailPending, nil, now); !errors.Is(err, ErrInvalidDecision) {
		t.Errorf("期望 ErrInvalidDecision，实际: %v", err)
	}

	r.State = RequestVoided
	if err := r.DecideDetail(reviewer, &r.Details[0], DetailAssigned, nil, now); !errors.Is(err, pkgerrors.ErrAlreadyTerminal) {
		t.Errorf("作废后应为 ErrAlreadyTerminal，实际: %v", err)
	}

	r.State = RequestDraft
	if err := r.DecideDetail(reviewer, &r.Details[0], DetailAssigned, nil, now); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("DRAFT 应为 ErrForbiddenTransition，实际: %v", err)
	}
	if r.Details[0].State != DetailPending {
		t.Error("失败的审核不应修改明细")
	}
}

func TestShiftRequest_MarkSubmitted(t *testing.T) {
	empty := &ShiftRequest{RequesterID: staff.UserID, State: RequestDraft}
	if err := empty.MarkSubmitted(staff, now); !errors.Is(err, ErrRequestEmpty) {
		t.Errorf("期望 ErrRequestEmpty，实际: %v", err)
	}
	if empty.State != RequestDraft {
		t.Errorf("空申请状态不应改变，实际=%s", empty.State)
	}

	r := newSubmittedRequest(1)
	r.State = RequestDraft
	if err := r.MarkSubmitted(reviewer, now); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("非申请人提交应为 ErrForbiddenTransition，实际: %v", err)
	}
	if err := r.MarkSubmitted(staff, now); err != nil {
		t.Fatalf("提交失败: %v", err)
	}
	if r.State != RequestSubmitted || r.SubmittedAt == nil {
		t.Errorf("期望 SUBMITTED 且记录提交时间，实际=%s", r.State)
	}
	if r.Details[0].State != DetailPending {
		t.Errorf("提交后明细应保持 PENDING，实际=%s", r.Details[0].State)
	}
}

func TestShiftRequest_RequestChangesAndResubmit(t *testing.T) {
	r := newSubmittedRequest(1)
	if err := r.RequestChanges(staff, "x", now); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("非审核员应为 ErrForbiddenTransition，实际: %v", err)
	}
	if err := r.RequestChanges(reviewer, "请调整日期", now); err != nil {
		t.Fatalf("RequestChanges 失败: %v", err)
	}
	if r.State != RequestUnderReview || r.GeneralRemark != "请调整日期" {
		t.Errorf("期望 UNDER_REVIEW 且备注更新，实际=%s %q", r.State, r.GeneralRemark)
	}
	if err := r.EnsureEditable(staff); err != nil {
		t.Errorf("UNDER_REVIEW 应可编辑，实际: %v", err)
	}
	if err := r.MarkSubmitted(staff, now); err != nil || r.State != RequestSubmitted {
		t.Errorf("重新提交应成功，实际 err=%v state=%s", err, r.State)
	}
}

func TestShiftRequest_ResubmitAllDecided(t *testing.T) {
	r := newSubmittedRequest(2)
	r.State = RequestUnderReview
	r.Details[0].State = DetailAssigned
	r.Details[1].State = DetailNotApproved

	if err := r.MarkSubmitted(staff, now); err != nil {
		t.Fatalf("重新提交失败: %v", err)
	}
	if r.State != RequestPartiallyApproved {
		t.Errorf("全部已审核时应直接为 PARTIALLY_APPROVED，实际=%s", r.State)
	}
}

func TestShiftRequest_Cancel(t *testing.T) {
	for _, s := range []RequestState{RequestDraft, RequestSubmitted, RequestUnderReview} {
		r := &ShiftRequest{RequesterID: staff.UserID, State: s}
		if err := r.Cancel(staff, now); err != nil || r.State != RequestVoided {
			t.Errorf("从 %s 作废应成功，实际 err=%v", s, err)
		}
		if err := r.Cancel(staff, now); !errors.Is(err, pkgerrors.ErrAlreadyTerminal) {
			t.Errorf("重复作废应为 ErrAlreadyTerminal，实际: %v", err)
		}
	}

	r := &ShiftRequest{RequesterID: staff.UserID, State: RequestDraft}
	if err := r.Cancel(reviewer, now); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("他人作废应为 ErrForbiddenTransition，实际: %v", err)
	}
	if err := r.Cancel(Actor{UserID: "admin-1", Role: RoleAdmin}, now); err != nil {
		t.Errorf("管理员作废应成功，实际: %v", err)
	}

	for _, s := range []RequestState{RequestApproved, RequestRejected, RequestPartiallyApproved} {
		r := &ShiftRequest{RequesterID: staff.UserID, State: s}
		if err := r.Cancel(staff, now); !errors.Is(err, pkgerrors.ErrAlreadyTerminal) {
			t.Errorf("%s 作废应为 ErrAlreadyTerminal，实际: %v", s, err)
		}
	}
}

func TestUpsertDetail_ReplacesByKey(t *testing.T) {
	d1 := ShiftRequestDetail{DetailID: "d1", Date: date("2026-01-20"), Slot: SlotMorning, SpecialtyID: "cardio", RemoteEnabled: true, RemoteQuantity: 1}
	details := UpsertDetail(nil, d1)

	replacement := d1
	replacement.DetailID = ""
	replacement.RemoteQuantity = 3
	details = UpsertDetail(details, replacement)

	if len(details) != 1 {
		t.Fatalf("同一键应替换，实际 %d 条", len(details))
	}
	if details[0].RemoteQuantity != 3 || details[0].DetailID != "d1" {
		t.Errorf("期望保留 ID 并更新数量，实际=%+v", details[0])
	}

	other := d1
	other.Slot = SlotAfternoon
	details = UpsertDetail(details, other)
	if len(details) != 2 {
		t.Errorf("不同班次应追加，实际 %d 条", len(details))
	}
}

func TestShiftRequest_Summary(t *testing.T) {
	r := &ShiftRequest{Details: []ShiftRequestDetail{
		{SpecialtyID: "cardio", RemoteEnabled: true, RemoteQuantity: 2, InPersonEnabled: true, InPersonQuantity: 1, State: DetailPending},
		{SpecialtyID: "cardio", InPersonEnabled: true, InPersonQuantity: 4, State: DetailAssigned},
		{SpecialtyID: "neuro", RemoteEnabled: true, RemoteQuantity: 1, State: DetailAssigned},
	}}
	s := r.Summary()
	if s.TotalShifts != 8 || s.TotalRemote != 3 || s.TotalInPerson != 5 {
		t.Errorf("汇总数量错误: %+v", s)
	}
	if s.SpecialtiesWithTurn != 2 {
		t.Errorf("期望 2 个专科，实际 %d", s.SpecialtiesWithTurn)
	}
	if s.ByState[DetailAssigned] != 2 || s.ByState[DetailPending] != 1 {
		t.Errorf("按状态统计错误: %v", s.ByState)
	}
}
