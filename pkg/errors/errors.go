package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
var ErrOptimisticLock = errors.New("数据已被其他操作修改，请刷新后重试")

// ── 排班申请核心错误分类 ──
//
// 本地校验类错误（INVALID_DATE_RANGE / PAST_DATE / EMPTY_SELECTION /
// FORBIDDEN_TRANSITION / ALREADY_TERMINAL）在调用处直接返回，不修改任何状态。

var (
	ErrInvalidDateRange    = errors.New("INVALID_DATE_RANGE: 日期范围无效")
	ErrPastDate            = errors.New("PAST_DATE: 不能申请过去的日期")
	ErrEmptySelection      = errors.New("EMPTY_SELECTION: 至少选择一种出诊方式且数量大于 0")
	ErrSlotUnavailable     = errors.New("SLOT_UNAVAILABLE: 时段不可用")
	ErrForbiddenTransition = errors.New("FORBIDDEN_TRANSITION: 不允许的状态流转")
	ErrAlreadyTerminal     = errors.New("ALREADY_TERMINAL: 已处于终态")
	ErrBackendCommitFailed = errors.New("BACKEND_COMMIT_FAILED: 后端提交失败")
)

// SlotConflict 单个不可用时段
type SlotConflict struct {
	Date   time.Time
	Slot   string
	Reason string
}

// SlotUnavailableError 携带全部不可用日期的 SLOT_UNAVAILABLE 错误
type SlotUnavailableError struct {
	Conflicts []SlotConflict
}

// Error 实现 error 接口
func (e *SlotUnavailableError) Error() string {
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		p := c.Date.Format("2006-01-02") + " " + c.Slot
		if c.Reason != "" {
			p += " (" + c.Reason + ")"
		}
		parts = append(parts, p)
	}
	return fmt.Sprintf("%s: %s", ErrSlotUnavailable.Error(), strings.Join(parts, "; "))
}

// Is 使 errors.Is(err, ErrSlotUnavailable) 成立
func (e *SlotUnavailableError) Is(target error) bool {
	return target == ErrSlotUnavailable
}

// Dates 返回冲突日期（去重、升序）
func (e *SlotUnavailableError) Dates() []string {
	seen := make(map[string]bool, len(e.Conflicts))
	dates := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		d := c.Date.Format("2006-01-02")
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return dates
}

// NewSlotUnavailable 构造单个时段的 SLOT_UNAVAILABLE 错误
func NewSlotUnavailable(date time.Time, slot, reason string) *SlotUnavailableError {
	return &SlotUnavailableError{Conflicts: []SlotConflict{{Date: date, Slot: slot, Reason: reason}}}
}
