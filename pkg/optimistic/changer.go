// Package optimistic 实现“先改后提交、窗口内可撤销”的乐观状态变更。
//
// Apply 立即更新可见值并开启撤销窗口；窗口内 Undo 恢复旧值且不调用后端；
// 窗口结束后执行提交，提交失败时自动回滚到旧值并通过 Pending 与 OnError 报告
// BACKEND_COMMIT_FAILED。同一实体同时只保留一个待提交变更，新的 Apply 取代旧的。
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// DefaultWindow 默认撤销窗口
const DefaultWindow = 5 * time.Second

var (
	// ErrSuperseded 待提交变更被同一实体的新 Apply 取代
	ErrSuperseded = errors.New("变更已被新的操作取代")
	// ErrClosed Changer 已关闭
	ErrClosed = errors.New("变更器已关闭")
)

// Status 待提交变更的状态
type Status int

const (
	StatusWaiting Status = iota
	StatusCommitting
	StatusCommitted
	StatusUndone
	StatusSuperseded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusWaiting:
		return "waiting"
	case StatusCommitting:
		return "committing"
	case StatusCommitted:
		return "committed"
	case StatusUndone:
		return "undone"
	case StatusSuperseded:
		return "superseded"
	case StatusFailed:
		return "failed"
	}
	return "unknown"
}

// CommitFunc 后端提交函数
type CommitFunc[V any] func(ctx context.Context, entityID string, value V) error

// Timer 可停止的定时器（*time.Timer 满足该接口）
type Timer interface {
	Stop() bool
}

// AfterFunc 定时回调工厂，测试中可替换为手动触发的实现
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options Changer 配置
type Options struct {
	Window        time.Duration
	CommitTimeout time.Duration // 0 表示不限制
	AfterFunc     AfterFunc
	OnError       func(entityID string, err error)
	Logger        *zap.Logger
}

// Pending 一次待提交的变更
type Pending[V any] struct {
	EntityID      string
	NewValue      V
	PreviousValue V
	CreatedAt     time.Time

	timer  Timer
	cancel context.CancelFunc
	status Status
	err    error
	done   chan struct{}
}

// Done 变更结束（提交、撤销、取代或失败）时关闭
func (p *Pending[V]) Done() <-chan struct{} { return p.done }

// Err Done 之后读取；提交失败时 errors.Is(err, ErrBackendCommitFailed)
func (p *Pending[V]) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Changer 按实体维护本地可见值与待提交变更
type Changer[V any] struct {
	mu      sync.Mutex
	commit  CommitFunc[V]
	opts    Options
	values  map[string]V
	pending map[string]*Pending[V]
	closed  bool
}

// New 创建 Changer
func New[V any](commit CommitFunc[V], opts Options) *Changer[V] {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = realAfterFunc
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Changer[V]{
		commit:  commit,
		opts:    opts,
		values:  make(map[string]V),
		pending: make(map[string]*Pending[V]),
	}
}

// Apply 立即将实体可见值设为 newValue，并在窗口结束后提交。
// 若该实体已有待提交变更，旧变更被取消（ErrSuperseded），
// 新变更的旧值取本次 Apply 之前的可见值，而不是最早确认的值；
// 无待提交变更时以调用方传入的 previousValue 为准。
func (c *Changer[V]) Apply(entityID string, newValue, previousValue V) *Pending[V] {
	c.mu.Lock()

	p := &Pending[V]{
		EntityID:  entityID,
		NewValue:  newValue,
		CreatedAt: time.Now(),
		done:      make(chan struct{}),
	}

	if c.closed {
		p.PreviousValue = previousValue
		c.finishLocked(p, StatusFailed, ErrClosed)
		c.mu.Unlock()
		return p
	}

	p.PreviousValue = previousValue
	if prior, ok := c.pending[entityID]; ok {
		c.stopLocked(prior)
		c.finishLocked(prior, StatusSuperseded, ErrSuperseded)
		delete(c.pending, entityID)
		// 取代时旧值取本次 Apply 之前的可见值
		if live, ok := c.values[entityID]; ok {
			p.PreviousValue = live
		}
	}

	c.values[entityID] = newValue
	c.pending[entityID] = p
	p.timer = c.opts.AfterFunc(c.opts.Window, func() { c.fire(p) })
	c.mu.Unlock()

	c.opts.Logger.Debug("暂存变更",
		zap.String("entity_id", entityID),
		zap.Duration("window", c.opts.Window),
	)
	return p
}

// Undo 在窗口内撤销待提交变更，恢复旧值，不调用后端。
// 提交已开始或不存在待提交变更时返回 false。
func (c *Changer[V]) Undo(entityID string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pending[entityID]
	if !ok || p.status != StatusWaiting {
		var zero V
		return zero, false
	}

	p.timer.Stop()
	c.values[entityID] = p.PreviousValue
	delete(c.pending, entityID)
	c.finishLocked(p, StatusUndone, nil)
	return p.PreviousValue, true
}

// Value 返回实体的本地可见值
func (c *Changer[V]) Value(entityID string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[entityID]
	return v, ok
}

// Pending 返回实体当前的待提交变更
func (c *Changer[V]) Pending(entityID string) (*Pending[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.pending[entityID]
	return p, ok
}

// StatusOf 返回变更的当前状态
func (c *Changer[V]) StatusOf(p *Pending[V]) Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return p.status
}

// Forget 丢弃实体的本地可见值（存在待提交变更时不处理）
func (c *Changer[V]) Forget(entityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.pending[entityID]; ok {
		return
	}
	delete(c.values, entityID)
}

// Close 取消全部待提交变更
func (c *Changer[V]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, p := range c.pending {
		c.stopLocked(p)
		c.values[id] = p.PreviousValue
		c.finishLocked(p, StatusFailed, ErrClosed)
		delete(c.pending, id)
	}
}

func (c *Changer[V]) fire(p *Pending[V]) {
	c.mu.Lock()
	if cur, ok := c.pending[p.EntityID]; !ok || cur != p || p.status != StatusWaiting {
		c.mu.Unlock()
		return
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if c.opts.CommitTimeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), c.opts.CommitTimeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	p.cancel = cancel
	p.status = StatusCommitting
	c.mu.Unlock()

	err := c.commit(ctx, p.EntityID, p.NewValue)
	cancel()

	c.mu.Lock()
	if p.status != StatusCommitting {
		// 提交期间被取代或关闭，结果交由新的变更决定
		c.mu.Unlock()
		return
	}
	delete(c.pending, p.EntityID)
	if err != nil {
		c.values[p.EntityID] = p.PreviousValue
		failure := fmt.Errorf("%w: %v", pkgerrors.ErrBackendCommitFailed, err)
		c.finishLocked(p, StatusFailed, failure)
		c.mu.Unlock()

		c.opts.Logger.Warn("提交失败，已回滚",
			zap.String("entity_id", p.EntityID),
			zap.Error(err),
		)
		if c.opts.OnError != nil {
			c.opts.OnError(p.EntityID, failure)
		}
		return
	}
	c.finishLocked(p, StatusCommitted, nil)
	c.mu.Unlock()
}

func (c *Changer[V]) stopLocked(p *Pending[V]) {
	if p.timer != nil {
		p.timer.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
}

func (c *Changer[V]) finishLocked(p *Pending[V], status Status, err error) {
	p.status = status
	p.err = err
	close(p.done)
}
