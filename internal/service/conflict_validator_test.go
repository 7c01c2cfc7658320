package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/pkg/availability"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

func newTestValidator(oracle availability.Oracle, failOpen bool) *ConflictValidator {
	return NewConflictValidator(oracle, ConflictValidatorOptions{
		Timeout:  50 * time.Millisecond,
		FailOpen: failOpen,
	}, zap.NewNop())
}

func TestConflictValidator_Check_Available(t *testing.T) {
	v := newTestValidator(newStaticOracle(), false)

	if err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotMorning); err != nil {
		t.Errorf("可用班次不应返回错误: %v", err)
	}
}

func TestConflictValidator_Check_Unavailable(t *testing.T) {
	oracle := newStaticOracle()
	oracle.block("2026-01-20", model.SlotMorning, "休假")
	v := newTestValidator(oracle, true)

	err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotMorning)
	if !errors.Is(err, pkgerrors.ErrSlotUnavailable) {
		t.Fatalf("期望 SLOT_UNAVAILABLE，实际: %v", err)
	}
	var unavailable *pkgerrors.SlotUnavailableError
	if !errors.As(err, &unavailable) || unavailable.Conflicts[0].Reason != "休假" {
		t.Errorf("应携带不可用原因，实际: %v", err)
	}

	// 下午班次不受影响
	if err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotAfternoon); err != nil {
		t.Errorf("下午班次应可用: %v", err)
	}
}

func TestConflictValidator_Check_TimeoutFailOpen(t *testing.T) {
	v := newTestValidator(timeoutOracle{}, true)

	if err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotMorning); err != nil {
		t.Errorf("fail-open 超时应放行，实际: %v", err)
	}
}

func TestConflictValidator_Check_TimeoutFailClosed(t *testing.T) {
	v := newTestValidator(timeoutOracle{}, false)

	err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotMorning)
	if !errors.Is(err, ErrAvailabilityUnknown) {
		t.Errorf("fail-closed 超时期望 ErrAvailabilityUnknown，实际: %v", err)
	}
}

func TestConflictValidator_Check_NilResultTreatedAsFailure(t *testing.T) {
	v := newTestValidator(errorOracle{}, false)

	err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotMorning)
	if !errors.Is(err, ErrAvailabilityUnknown) {
		t.Errorf("空结果期望 ErrAvailabilityUnknown，实际: %v", err)
	}
}

func TestConflictValidator_Check_CallerCancelled(t *testing.T) {
	v := newTestValidator(timeoutOracle{}, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := v.Check(ctx, "staff-1", mustDate("2026-01-20"), model.SlotMorning)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("调用方取消期望 context.Canceled，实际: %v", err)
	}
}

func TestConflictValidator_Check_LatestWins(t *testing.T) {
	oracle := newGateOracle()
	v := NewConflictValidator(oracle, ConflictValidatorOptions{Timeout: 2 * time.Second}, zap.NewNop())
	date := mustDate("2026-01-20")

	first := make(chan error, 1)
	go func() { first <- v.Check(context.Background(), "staff-1", date, model.SlotMorning) }()
	<-oracle.started

	second := make(chan error, 1)
	go func() { second <- v.Check(context.Background(), "staff-1", date, model.SlotMorning) }()
	<-oracle.started

	select {
	case err := <-first:
		if !errors.Is(err, ErrCheckSuperseded) {
			t.Errorf("旧查询期望 ErrCheckSuperseded，实际: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("旧查询未被取代")
	}

	close(oracle.release)
	select {
	case err := <-second:
		if err != nil {
			t.Errorf("最新查询应成功，实际: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("等待最新查询超时")
	}
}

// lateAnswerOracle 首次调用在返回前等到被新查询取代，再返回已得到的结果
type lateAnswerOracle struct {
	calls  atomic.Int32
	v      *ConflictValidator
	second chan error
}

func (o *lateAnswerOracle) QueryAvailability(ctx context.Context, staffID string, date time.Time, slot string) (*availability.Result, error) {
	if o.calls.Add(1) > 1 {
		return &availability.Result{Available: true}, nil
	}
	go func() { o.second <- o.v.Check(context.Background(), staffID, date, model.Slot(slot)) }()
	<-ctx.Done()
	return &availability.Result{Available: false, Reason: "休假"}, nil
}

func TestConflictValidator_Check_AnsweredResultNotDiscarded(t *testing.T) {
	oracle := &lateAnswerOracle{second: make(chan error, 1)}
	v := NewConflictValidator(oracle, ConflictValidatorOptions{Timeout: 2 * time.Second}, zap.NewNop())
	oracle.v = v

	err := v.Check(context.Background(), "staff-1", mustDate("2026-01-20"), model.SlotMorning)
	if !errors.Is(err, pkgerrors.ErrSlotUnavailable) {
		t.Errorf("已返回的结果不应被丢弃，期望 SLOT_UNAVAILABLE，实际: %v", err)
	}

	select {
	case err := <-oracle.second:
		if err != nil {
			t.Errorf("新查询应成功，实际: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("等待新查询超时")
	}
}

func TestConflictValidator_Check_DifferentSlotsIndependent(t *testing.T) {
	oracle := newGateOracle()
	v := NewConflictValidator(oracle, ConflictValidatorOptions{Timeout: 2 * time.Second}, zap.NewNop())
	date := mustDate("2026-01-20")

	results := make(chan error, 2)
	go func() { results <- v.Check(context.Background(), "staff-1", date, model.SlotMorning) }()
	<-oracle.started
	go func() { results <- v.Check(context.Background(), "staff-1", date, model.SlotAfternoon) }()
	<-oracle.started

	close(oracle.release)
	for i := 0; i < 2; i++ {
		select {
		case err := <-results:
			if err != nil {
				t.Errorf("不同班次不应互相取代，实际: %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("等待查询超时")
		}
	}
}

func TestConflictValidator_CheckAll_AggregatesConflicts(t *testing.T) {
	oracle := newStaticOracle()
	oracle.block("2026-01-25", model.SlotAfternoon, "")
	oracle.block("2026-01-20", model.SlotMorning, "门诊")
	v := newTestValidator(oracle, true)

	details := []model.ShiftRequestDetail{
		{Date: mustDate("2026-01-25"), Slot: model.SlotAfternoon, SpecialtyID: "a"},
		{Date: mustDate("2026-01-20"), Slot: model.SlotMorning, SpecialtyID: "a"},
		{Date: mustDate("2026-01-20"), Slot: model.SlotMorning, SpecialtyID: "b"},
		{Date: mustDate("2026-01-21"), Slot: model.SlotMorning, SpecialtyID: "a"},
	}
	err := v.CheckAll(context.Background(), "staff-1", details)

	var unavailable *pkgerrors.SlotUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("期望 *SlotUnavailableError，实际: %v", err)
	}
	if len(unavailable.Conflicts) != 2 {
		t.Fatalf("同一班次只应报告一次，实际 %d 条", len(unavailable.Conflicts))
	}
	if model.FormatDate(unavailable.Conflicts[0].Date) != "2026-01-20" {
		t.Errorf("冲突应按日期升序，实际首条=%s", model.FormatDate(unavailable.Conflicts[0].Date))
	}
	if oracle.callCount() != 3 {
		t.Errorf("期望查询 3 个班次，实际 %d 次", oracle.callCount())
	}
}

func TestConflictValidator_CheckAll_Empty(t *testing.T) {
	v := newTestValidator(errorOracle{err: errors.New("down")}, false)

	if err := v.CheckAll(context.Background(), "staff-1", nil); err != nil {
		t.Errorf("无明细不应查询，实际: %v", err)
	}
}
