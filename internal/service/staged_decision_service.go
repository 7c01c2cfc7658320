package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"cenate-turnos/backend/internal/dto"
	"cenate-turnos/backend/internal/model"
	pkgerrors "cenate-turnos/backend/pkg/errors"
	"cenate-turnos/backend/pkg/optimistic"
)

// ErrNoStagedDecision 该明细没有暂存的审核结论
var ErrNoStagedDecision = errors.New("没有可撤销的暂存审核")

// 已结束的暂存结果保留时长，供客户端查询提交结果
const stagedResultRetention = 15 * time.Minute

// stagedDecision 暂存的审核结论；Decision 为 PENDING 表示未审核
type stagedDecision struct {
	Decision       model.DetailState
	ClinicalRemark *string
	Actor          model.Actor
}

// StagedDecisionService 可撤销的审核：结论立即生效于本地视图，撤销窗口结束后才写库
type StagedDecisionService interface {
	Stage(ctx context.Context, actor model.Actor, requestID, detailID string, req *dto.DecideDetailRequest) (*dto.StagedDecisionResponse, error)
	Get(requestID, detailID string) (*dto.StagedDecisionResponse, error)
	Undo(actor model.Actor, requestID, detailID string) (*dto.StagedDecisionResponse, error)
	Close()
}

type stagedDecisionService struct {
	requests RequestService
	loader   requestLoader
	changer  *optimistic.Changer[stagedDecision]
	window   time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	last map[string]*optimistic.Pending[stagedDecision]
}

// requestLoader 读取申请聚合（用于暂存前的合法性预检）
type requestLoader interface {
	GetByID(ctx context.Context, id string) (*model.ShiftRequest, error)
}

// StagedDecisionOptions 暂存审核配置
type StagedDecisionOptions struct {
	Window        time.Duration
	CommitTimeout time.Duration
	AfterFunc     optimistic.AfterFunc // 测试注入
}

// NewStagedDecisionService 创建 StagedDecisionService；提交时调用 RequestService.DecideDetail
func NewStagedDecisionService(requests RequestService, loader requestLoader, opts StagedDecisionOptions, logger *zap.Logger) StagedDecisionService {
	s := &stagedDecisionService{
		requests: requests,
		loader:   loader,
		window:   opts.Window,
		logger:   logger,
		last:     make(map[string]*optimistic.Pending[stagedDecision]),
	}
	s.changer = optimistic.New[stagedDecision](s.commit, optimistic.Options{
		Window:        opts.Window,
		CommitTimeout: opts.CommitTimeout,
		AfterFunc:     opts.AfterFunc,
		Logger:        logger,
		OnError: func(entityID string, err error) {
			logger.Error("暂存审核提交失败，已回滚", zap.String("entity_id", entityID), zap.Error(err))
		},
	})
	if s.window <= 0 {
		s.window = optimistic.DefaultWindow
	}
	return s
}

func stagedEntityID(requestID, detailID string) string {
	return requestID + "/" + detailID
}

// ────────────────────── Stage ──────────────────────

// Stage 预检结论合法后暂存；同一明细再次暂存会取代上一次
func (s *stagedDecisionService) Stage(ctx context.Context, actor model.Actor, requestID, detailID string, req *dto.DecideDetailRequest) (*dto.StagedDecisionResponse, error) {
	decision := model.DetailState(req.Decision)

	r, err := s.loader.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		s.logger.Error("查询申请失败", zap.String("request_id", requestID), zap.Error(err))
		return nil, err
	}
	detail := r.FindDetail(detailID)
	if detail == nil {
		return nil, ErrDetailNotFound
	}
	previous := detail.State

	// 在副本上预演，非法结论在暂存前即返回
	probe := *r
	probe.Details = append([]model.ShiftRequestDetail(nil), r.Details...)
	if err := probe.DecideDetail(actor, probe.FindDetail(detailID), decision, req.ClinicalRemark, time.Now()); err != nil {
		return nil, err
	}

	id := stagedEntityID(requestID, detailID)
	p := s.changer.Apply(id,
		stagedDecision{Decision: decision, ClinicalRemark: req.ClinicalRemark, Actor: actor},
		stagedDecision{Decision: previous},
	)

	s.mu.Lock()
	s.pruneLocked()
	s.last[id] = p
	s.mu.Unlock()

	go func() {
		<-p.Done()
		s.changer.Forget(id)
	}()

	return s.toResponse(requestID, detailID, p), nil
}

// ────────────────────── Get ──────────────────────

func (s *stagedDecisionService) Get(requestID, detailID string) (*dto.StagedDecisionResponse, error) {
	s.mu.Lock()
	p, ok := s.last[stagedEntityID(requestID, detailID)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNoStagedDecision
	}
	return s.toResponse(requestID, detailID, p), nil
}

// ────────────────────── Undo ──────────────────────

func (s *stagedDecisionService) Undo(actor model.Actor, requestID, detailID string) (*dto.StagedDecisionResponse, error) {
	if !actor.IsReviewer() {
		return nil, pkgerrors.ErrForbiddenTransition
	}
	id := stagedEntityID(requestID, detailID)
	if _, ok := s.changer.Undo(id); !ok {
		return nil, ErrNoStagedDecision
	}

	s.mu.Lock()
	p := s.last[id]
	s.mu.Unlock()

	s.logger.Info("暂存审核已撤销",
		zap.String("request_id", requestID),
		zap.String("detail_id", detailID),
		zap.String("actor", actor.UserID),
	)
	return s.toResponse(requestID, detailID, p), nil
}

// Close 取消全部未提交的暂存审核
func (s *stagedDecisionService) Close() {
	s.changer.Close()
}

// ── 内部方法 ──

func (s *stagedDecisionService) commit(ctx context.Context, entityID string, v stagedDecision) error {
	requestID, detailID := splitStagedEntityID(entityID)
	_, err := s.requests.DecideDetail(ctx, v.Actor, requestID, detailID, v.Decision, v.ClinicalRemark)
	if err != nil {
		return err
	}
	s.logger.Info("暂存审核已提交",
		zap.String("request_id", requestID),
		zap.String("detail_id", detailID),
		zap.String("decision", string(v.Decision)),
	)
	return nil
}

func (s *stagedDecisionService) pruneLocked() {
	cutoff := time.Now().Add(-stagedResultRetention)
	for id, p := range s.last {
		if p.CreatedAt.After(cutoff) {
			continue
		}
		select {
		case <-p.Done():
			delete(s.last, id)
		default:
		}
	}
}

func (s *stagedDecisionService) toResponse(requestID, detailID string, p *optimistic.Pending[stagedDecision]) *dto.StagedDecisionResponse {
	resp := &dto.StagedDecisionResponse{
		RequestID:     requestID,
		DetailID:      detailID,
		Decision:      string(p.NewValue.Decision),
		Previous:      string(p.PreviousValue.Decision),
		Status:        s.changer.StatusOf(p).String(),
		CommitsAt:     formatTime(p.CreatedAt.Add(s.window).UTC()),
		UndoWindowSec: int(s.window / time.Second),
	}
	if err := p.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func splitStagedEntityID(id string) (string, string) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == '/' {
			return id[:i], id[i+1:]
		}
	}
	return id, ""
}
