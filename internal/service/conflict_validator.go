package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/pkg/availability"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// ── 可用性检查业务错误 ──

var (
	ErrAvailabilityUnknown = errors.New("无法确认班次可用性")
	ErrCheckSuperseded     = errors.New("可用性检查已被同一班次的新检查取代")
)

// 批量检查的最大并发数
const maxConcurrentChecks = 8

// ConflictValidatorOptions 可用性检查配置
type ConflictValidatorOptions struct {
	Timeout  time.Duration // 单次查询超时
	FailOpen bool          // 查询失败或超时时视为可用
}

type checkKey struct {
	staffID string
	date    string
	slot    model.Slot
}

type inflightCheck struct {
	seq    uint64
	cancel context.CancelCauseFunc
}

// ConflictValidator 向可用性服务查询员工在某日某班次是否空闲。
// 同一 (staff, date, slot) 同时只保留最新一次查询，旧查询以 ErrCheckSuperseded 结束。
type ConflictValidator struct {
	oracle   availability.Oracle
	timeout  time.Duration
	failOpen bool
	logger   *zap.Logger

	mu       sync.Mutex
	seq      uint64
	inflight map[checkKey]*inflightCheck
}

// NewConflictValidator 创建 ConflictValidator
func NewConflictValidator(oracle availability.Oracle, opts ConflictValidatorOptions, logger *zap.Logger) *ConflictValidator {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	return &ConflictValidator{
		oracle:   oracle,
		timeout:  opts.Timeout,
		failOpen: opts.FailOpen,
		logger:   logger,
		inflight: make(map[checkKey]*inflightCheck),
	}
}

// Check 查询单个班次。不可用时返回 *SlotUnavailableError（errors.Is ErrSlotUnavailable）。
// 查询失败或超时：FailOpen 时记录告警并放行，否则返回 ErrAvailabilityUnknown。
// 调用方自身的 ctx 被取消时直接返回 ctx 的错误。
func (v *ConflictValidator) Check(ctx context.Context, staffID string, date time.Time, slot model.Slot) error {
	date = model.CivilDate(date)
	key := checkKey{staffID: staffID, date: model.FormatDate(date), slot: slot}

	checkCtx, cancel := context.WithCancelCause(ctx)
	seq := v.register(key, cancel)
	defer func() {
		v.unregister(key, seq)
		cancel(nil)
	}()

	queryCtx, queryCancel := context.WithTimeout(checkCtx, v.timeout)
	res, err := v.oracle.QueryAvailability(queryCtx, staffID, date, string(slot))
	queryCancel()

	// 仅在查询未完成时才按被取代处理，已返回的结果照常使用
	if err != nil && errors.Is(context.Cause(checkCtx), ErrCheckSuperseded) {
		return ErrCheckSuperseded
	}
	if err == nil && res == nil {
		err = errors.New("可用性服务返回空结果")
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if v.failOpen {
			v.logger.Warn("可用性查询失败，按可用处理",
				zap.String("staff_id", staffID),
				zap.String("date", key.date),
				zap.String("slot", string(slot)),
				zap.Error(err),
			)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrAvailabilityUnknown, err)
	}

	if !res.Available {
		return pkgerrors.NewSlotUnavailable(date, string(slot), res.Reason)
	}
	return nil
}

// CheckAll 并发检查全部明细涉及的 (date, slot)，汇总所有不可用班次为一个 SLOT_UNAVAILABLE 错误。
// 其他错误（fail-closed 下的查询失败、ctx 取消）优先返回。
func (v *ConflictValidator) CheckAll(ctx context.Context, staffID string, details []model.ShiftRequestDetail) error {
	type target struct {
		date time.Time
		slot model.Slot
	}
	seen := make(map[checkKey]bool, len(details))
	var targets []target
	for _, d := range details {
		k := checkKey{staffID: staffID, date: model.FormatDate(d.Date), slot: d.Slot}
		if seen[k] {
			continue
		}
		seen[k] = true
		targets = append(targets, target{date: model.CivilDate(d.Date), slot: d.Slot})
	}

	var (
		mu        sync.Mutex
		conflicts []pkgerrors.SlotConflict
	)
	var g errgroup.Group
	g.SetLimit(maxConcurrentChecks)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			err := v.Check(ctx, staffID, t.date, t.slot)
			var unavailable *pkgerrors.SlotUnavailableError
			if errors.As(err, &unavailable) {
				mu.Lock()
				conflicts = append(conflicts, unavailable.Conflicts...)
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(conflicts) == 0 {
		return nil
	}
	sort.Slice(conflicts, func(i, j int) bool {
		if !conflicts[i].Date.Equal(conflicts[j].Date) {
			return conflicts[i].Date.Before(conflicts[j].Date)
		}
		return conflicts[i].Slot > conflicts[j].Slot
	})
	return &pkgerrors.SlotUnavailableError{Conflicts: conflicts}
}

func (v *ConflictValidator) register(key checkKey, cancel context.CancelCauseFunc) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()

	if prior, ok := v.inflight[key]; ok {
		prior.cancel(ErrCheckSuperseded)
	}
	v.seq++
	v.inflight[key] = &inflightCheck{seq: v.seq, cancel: cancel}
	return v.seq
}

func (v *ConflictValidator) unregister(key checkKey, seq uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if cur, ok := v.inflight[key]; ok && cur.seq == seq {
		delete(v.inflight, key)
	}
}
