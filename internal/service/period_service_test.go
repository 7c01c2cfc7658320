package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/repository"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

func setupPeriodService() (PeriodService, *mockPeriodRepo, *mockRequestRepo) {
	periods := newMockPeriodRepo()
	requests := newMockRequestRepo()
	repo := &repository.Repository{Period: periods, Request: requests, Unavailability: newMockUnavailabilityRepo()}
	calendar := NewCalendar(time.UTC, func() time.Time { return fixedNow })
	return NewPeriodService(repo, calendar, zap.NewNop()), periods, requests
}

func TestPeriodService_Create(t *testing.T) {
	svc, _, _ := setupPeriodService()
	ctx := context.Background()

	resp, err := svc.Create(ctx, &dto.CreatePeriodRequest{
		Code:        "202602",
		Description: "2026 年 2 月排班",
		StartDate:   "2026-02-01",
		EndDate:     "2026-02-28",
	}, "admin-1")
	if err != nil {
		t.Fatalf("Create 失败: %v", err)
	}
	if resp.State != string(model.PeriodDraft) || resp.AcceptsRequests {
		t.Errorf("新周期应为 DRAFT 且不接受申请，实际=%s accepts=%v", resp.State, resp.AcceptsRequests)
	}

	_, err = svc.Create(ctx, &dto.CreatePeriodRequest{
		Code: "202602", Description: "重复", StartDate: "2026-02-01", EndDate: "2026-02-28",
	}, "admin-1")
	if !errors.Is(err, ErrPeriodCodeExists) {
		t.Errorf("期望 ErrPeriodCodeExists，实际: %v", err)
	}
}

func TestPeriodService_Create_Validation(t *testing.T) {
	svc, _, _ := setupPeriodService()

	tests := []struct {
		name string
		req  dto.CreatePeriodRequest
		want error
	}{
		{"月份非法", dto.CreatePeriodRequest{Code: "202613", StartDate: "2026-02-01", EndDate: "2026-02-28"}, ErrPeriodCodeInvalid},
		{"日期格式", dto.CreatePeriodRequest{Code: "202602", StartDate: "2026/02/01", EndDate: "2026-02-28"}, ErrDateFormat},
		{"结束早于开始", dto.CreatePeriodRequest{Code: "202602", StartDate: "2026-02-10", EndDate: "2026-02-01"}, pkgerrors.ErrInvalidDateRange},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			if _, err := svc.Create(context.Background(), &req, "admin-1"); !errors.Is(err, tt.want) {
				t.Errorf("期望 %v，实际: %v", tt.want, err)
			}
		})
	}
}

func TestPeriodService_Reopen(t *testing.T) {
	svc, periods, _ := setupPeriodService()
	ctx := context.Background()
	periods.put(&model.Period{
		PeriodID:  "p1",
		Code:      "202601",
		StartDate: mustDate("2026-01-01"),
		EndDate:   mustDate("2026-01-10"),
		State:     model.PeriodClosed,
	})

	// today=2026-01-15 > end_date，下限取 today
	_, err := svc.Reopen(ctx, "p1", &dto.ReopenPeriodRequest{EndDate: "2026-01-12"}, "admin-1")
	if !errors.Is(err, pkgerrors.ErrInvalidDateRange) {
		t.Fatalf("期望 INVALID_DATE_RANGE，实际: %v", err)
	}
	p, _ := periods.GetByID(ctx, "p1")
	if p.State != model.PeriodClosed || model.FormatDate(p.EndDate) != "2026-01-10" {
		t.Errorf("失败时周期不应变化，实际 state=%s end=%s", p.State, model.FormatDate(p.EndDate))
	}

	resp, err := svc.Reopen(ctx, "p1", &dto.ReopenPeriodRequest{EndDate: "2026-01-20"}, "admin-1")
	if err != nil {
		t.Fatalf("Reopen 失败: %v", err)
	}
	if resp.State != string(model.PeriodOpenForSubmission) || resp.EndDate != "2026-01-20" {
		t.Errorf("期望 OPEN_FOR_SUBMISSION 至 2026-01-20，实际 %s %s", resp.State, resp.EndDate)
	}
	if resp.Version != 2 {
		t.Errorf("版本号应递增为 2，实际=%d", resp.Version)
	}
}

func TestPeriodService_Reopen_TodayBoundary(t *testing.T) {
	svc, periods, _ := setupPeriodService()
	periods.put(&model.Period{PeriodID: "p1", EndDate: mustDate("2026-01-10"), State: model.PeriodClosed})

	if _, err := svc.Reopen(context.Background(), "p1", &dto.ReopenPeriodRequest{EndDate: "2026-01-15"}, "admin-1"); err != nil {
		t.Errorf("结束日期等于今天应允许，实际: %v", err)
	}
}

func TestPeriodService_Reopen_Voided(t *testing.T) {
	svc, periods, _ := setupPeriodService()
	periods.put(&model.Period{PeriodID: "p1", EndDate: mustDate("2026-01-10"), State: model.PeriodVoided})

	_, err := svc.Reopen(context.Background(), "p1", &dto.ReopenPeriodRequest{EndDate: "2026-02-01"}, "admin-1")
	if !errors.Is(err, pkgerrors.ErrAlreadyTerminal) {
		t.Errorf("期望 ALREADY_TERMINAL，实际: %v", err)
	}
}

func TestPeriodService_Lifecycle(t *testing.T) {
	svc, periods, _ := setupPeriodService()
	ctx := context.Background()
	periods.put(&model.Period{PeriodID: "p1", StartDate: mustDate("2026-02-01"), EndDate: mustDate("2026-02-28"), State: model.PeriodDraft})

	resp, err := svc.Activate(ctx, "p1", "admin-1")
	if err != nil || resp.State != string(model.PeriodActive) || !resp.AcceptsRequests {
		t.Fatalf("Activate 期望 ACTIVE，实际 resp=%+v err=%v", resp, err)
	}
	if _, err := svc.Activate(ctx, "p1", "admin-1"); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("重复激活期望 FORBIDDEN_TRANSITION，实际: %v", err)
	}

	desc := "不可修改"
	if _, err := svc.Update(ctx, "p1", &dto.UpdatePeriodRequest{Description: &desc}, "admin-1"); !errors.Is(err, pkgerrors.ErrForbiddenTransition) {
		t.Errorf("非 DRAFT 修改期望 FORBIDDEN_TRANSITION，实际: %v", err)
	}

	resp, err = svc.Close(ctx, "p1", "admin-1")
	if err != nil || resp.State != string(model.PeriodClosed) {
		t.Fatalf("Close 期望 CLOSED，实际 resp=%+v err=%v", resp, err)
	}
	if err := svc.Void(ctx, "p1", "admin-1"); err != nil {
		t.Fatalf("Void 失败: %v", err)
	}
	if _, err := svc.Close(ctx, "p1", "admin-1"); !errors.Is(err, pkgerrors.ErrAlreadyTerminal) {
		t.Errorf("VOIDED 后关闭期望 ALREADY_TERMINAL，实际: %v", err)
	}
}

func TestPeriodService_Update_Draft(t *testing.T) {
	svc, periods, _ := setupPeriodService()
	ctx := context.Background()
	periods.put(&model.Period{PeriodID: "p1", StartDate: mustDate("2026-02-01"), EndDate: mustDate("2026-02-28"), State: model.PeriodDraft})

	end := "2026-01-31"
	if _, err := svc.Update(ctx, "p1", &dto.UpdatePeriodRequest{EndDate: &end}, "admin-1"); !errors.Is(err, pkgerrors.ErrInvalidDateRange) {
		t.Errorf("期望 INVALID_DATE_RANGE，实际: %v", err)
	}

	end = "2026-03-05"
	desc := "二月及三月初"
	resp, err := svc.Update(ctx, "p1", &dto.UpdatePeriodRequest{EndDate: &end, Description: &desc}, "admin-1")
	if err != nil {
		t.Fatalf("Update 失败: %v", err)
	}
	if resp.EndDate != end || resp.Description != desc {
		t.Errorf("更新未生效: %+v", resp)
	}
}

func TestPeriodService_Void_WithRequests(t *testing.T) {
	svc, periods, requests := setupPeriodService()
	periods.put(&model.Period{PeriodID: "p1", State: model.PeriodOpenForSubmission})
	requests.put(&model.ShiftRequest{RequestID: "r1", PeriodID: "p1", RequesterID: "staff-1", State: model.RequestDraft})

	if err := svc.Void(context.Background(), "p1", "admin-1"); !errors.Is(err, ErrPeriodHasRequests) {
		t.Errorf("期望 ErrPeriodHasRequests，实际: %v", err)
	}
}

func TestPeriodService_Stats(t *testing.T) {
	svc, periods, requests := setupPeriodService()
	periods.put(&model.Period{PeriodID: "p1", State: model.PeriodOpenForSubmission})
	requests.put(&model.ShiftRequest{RequestID: "r1", PeriodID: "p1", RequesterID: "s1", State: model.RequestDraft})
	requests.put(&model.ShiftRequest{RequestID: "r2", PeriodID: "p1", RequesterID: "s2", State: model.RequestSubmitted})
	requests.put(&model.ShiftRequest{RequestID: "r3", PeriodID: "p1", RequesterID: "s3", State: model.RequestApproved})

	stats, err := svc.Stats(context.Background(), "p1")
	if err != nil {
		t.Fatalf("Stats 失败: %v", err)
	}
	if stats.TotalRequests != 3 || stats.SubmittedRequests != 2 {
		t.Errorf("期望 total=3 submitted=2，实际 %d %d", stats.TotalRequests, stats.SubmittedRequests)
	}
	if stats.ByState[string(model.RequestApproved)] != 1 {
		t.Errorf("APPROVED 计数错误: %v", stats.ByState)
	}
}

func TestPeriodService_NotFound(t *testing.T) {
	svc, _, _ := setupPeriodService()

	if _, err := svc.GetByID(context.Background(), "missing"); !errors.Is(err, ErrPeriodNotFound) {
		t.Errorf("期望 ErrPeriodNotFound，实际: %v", err)
	}
}

func TestPeriodService_List(t *testing.T) {
	svc, periods, _ := setupPeriodService()
	periods.put(&model.Period{PeriodID: "p1", StartDate: mustDate("2026-01-01"), State: model.PeriodClosed})
	periods.put(&model.Period{PeriodID: "p2", StartDate: mustDate("2026-02-01"), State: model.PeriodOpenForSubmission})
	periods.put(&model.Period{PeriodID: "p3", StartDate: mustDate("2025-12-01"), State: model.PeriodClosed})

	list, total, err := svc.List(context.Background(), &dto.PeriodListRequest{Year: 2026})
	if err != nil {
		t.Fatalf("List 失败: %v", err)
	}
	if total != 2 || list[0].ID != "p2" {
		t.Errorf("期望 2026 年 2 条且按开始日期倒序，实际 total=%d first=%s", total, list[0].ID)
	}
}
