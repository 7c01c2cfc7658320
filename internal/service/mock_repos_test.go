package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"gorm.io/gorm"

	"cenate-turnos/backend/internal/model"
	"cenate-turnos/backend/internal/repository"
	"cenate-turnos/backend/pkg/availability"
	pkgerrors "cenate-turnos/backend/pkg/errors"
)

// ── Mock PeriodRepository ──

type mockPeriodRepo struct {
	mu      sync.Mutex
	periods map[string]*model.Period
	seq     int
}

func newMockPeriodRepo() *mockPeriodRepo {
	return &mockPeriodRepo{periods: make(map[string]*model.Period)}
}

func (m *mockPeriodRepo) put(p *model.Period) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Version == 0 {
		p.Version = 1
	}
	cp := *p
	m.periods[p.PeriodID] = &cp
}

func (m *mockPeriodRepo) Create(_ context.Context, p *model.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if p.PeriodID == "" {
		p.PeriodID = fmt.Sprintf("period-%d", m.seq)
	}
	if p.Version == 0 {
		p.Version = 1
	}
	cp := *p
	m.periods[p.PeriodID] = &cp
	return nil
}

func (m *mockPeriodRepo) GetByID(_ context.Context, id string) (*model.Period, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.periods[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockPeriodRepo) ExistsByCode(_ context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.Code == code {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPeriodRepo) List(_ context.Context, filter repository.PeriodFilter) ([]model.Period, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.Period
	for _, p := range m.periods {
		if filter.State != "" && p.State != filter.State {
			continue
		}
		if filter.Year > 0 && p.StartDate.Year() != filter.Year {
			continue
		}
		result = append(result, *p)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].StartDate.After(result[j].StartDate) })
	return result, int64(len(result)), nil
}

func (m *mockPeriodRepo) Update(_ context.Context, p *model.Period) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.periods[p.PeriodID]
	if !ok || cur.Version != p.Version {
		return pkgerrors.ErrOptimisticLock
	}
	p.Version++
	cp := *p
	m.periods[p.PeriodID] = &cp
	return nil
}

// ── Mock RequestRepository ──

type mockRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*model.ShiftRequest
	seq      int
	failNext error // 下一次写操作返回的错误
}

func newMockRequestRepo() *mockRequestRepo {
	return &mockRequestRepo{requests: make(map[string]*model.ShiftRequest)}
}

func cloneRequest(r *model.ShiftRequest) *model.ShiftRequest {
	cp := *r
	cp.Details = append([]model.ShiftRequestDetail(nil), r.Details...)
	return &cp
}

func (m *mockRequestRepo) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *mockRequestRepo) takeFailure() error {
	err := m.failNext
	m.failNext = nil
	return err
}

func (m *mockRequestRepo) put(r *model.ShiftRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Version == 0 {
		r.Version = 1
	}
	m.requests[r.RequestID] = cloneRequest(r)
}

func (m *mockRequestRepo) stored(id string) *model.ShiftRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.requests[id]; ok {
		return cloneRequest(r)
	}
	return nil
}

func (m *mockRequestRepo) Create(_ context.Context, r *model.ShiftRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	for _, existing := range m.requests {
		if existing.PeriodID == r.PeriodID && existing.RequesterID == r.RequesterID {
			return fmt.Errorf("duplicate key value violates unique constraint")
		}
	}
	if r.RequestID == "" {
		r.RequestID = m.nextID("req")
	}
	for i := range r.Details {
		r.Details[i].RequestID = r.RequestID
		if r.Details[i].DetailID == "" {
			r.Details[i].DetailID = m.nextID("detail")
		}
	}
	if r.Version == 0 {
		r.Version = 1
	}
	m.requests[r.RequestID] = cloneRequest(r)
	return nil
}

func (m *mockRequestRepo) GetByID(_ context.Context, id string) (*model.ShiftRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.requests[id]; ok {
		return cloneRequest(r), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRequestRepo) GetByPeriodAndRequester(_ context.Context, periodID, requesterID string) (*model.ShiftRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.requests {
		if r.PeriodID == periodID && r.RequesterID == requesterID {
			return cloneRequest(r), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockRequestRepo) ListByRequester(_ context.Context, requesterID string) ([]model.ShiftRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.ShiftRequest
	for _, r := range m.requests {
		if r.RequesterID == requesterID {
			result = append(result, *cloneRequest(r))
		}
	}
	return result, nil
}

func (m *mockRequestRepo) List(_ context.Context, filter repository.RequestFilter) ([]model.ShiftRequest, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.ShiftRequest
	for _, r := range m.requests {
		if filter.PeriodID != "" && r.PeriodID != filter.PeriodID {
			continue
		}
		if filter.State != "" && r.State != filter.State {
			continue
		}
		result = append(result, *cloneRequest(r))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].RequestID < result[j].RequestID })
	return result, int64(len(result)), nil
}

func (m *mockRequestRepo) CountByPeriod(_ context.Context, periodID string) (map[model.RequestState]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[model.RequestState]int64)
	for _, r := range m.requests {
		if r.PeriodID == periodID {
			counts[r.State]++
		}
	}
	return counts, nil
}

func (m *mockRequestRepo) Update(_ context.Context, r *model.ShiftRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	cur, ok := m.requests[r.RequestID]
	if !ok || cur.Version != r.Version {
		return pkgerrors.ErrOptimisticLock
	}
	r.Version++
	// 表头更新不触碰明细
	updated := cloneRequest(r)
	updated.Details = cur.Details
	m.requests[r.RequestID] = updated
	return nil
}

func (m *mockRequestRepo) UpdateDetail(_ context.Context, d *model.ShiftRequestDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	cur, ok := m.requests[d.RequestID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range cur.Details {
		if cur.Details[i].DetailID == d.DetailID {
			cur.Details[i] = *d
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (m *mockRequestRepo) ReplaceDetails(_ context.Context, requestID string, details []model.ShiftRequestDetail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.takeFailure(); err != nil {
		return err
	}
	cur, ok := m.requests[requestID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range details {
		details[i].RequestID = requestID
		if details[i].DetailID == "" {
			details[i].DetailID = m.nextID("detail")
		}
	}
	cur.Details = append([]model.ShiftRequestDetail(nil), details...)
	return nil
}

func (m *mockRequestRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.requests, id)
	return nil
}

// ── Mock UnavailabilityRepository ──

type mockUnavailabilityRepo struct {
	mu    sync.Mutex
	items map[string]*model.StaffUnavailability
	seq   int
}

func newMockUnavailabilityRepo() *mockUnavailabilityRepo {
	return &mockUnavailabilityRepo{items: make(map[string]*model.StaffUnavailability)}
}

func (m *mockUnavailabilityRepo) Create(_ context.Context, u *model.StaffUnavailability) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if u.UnavailabilityID == "" {
		u.UnavailabilityID = fmt.Sprintf("ua-%d", m.seq)
	}
	cp := *u
	m.items[u.UnavailabilityID] = &cp
	return nil
}

func (m *mockUnavailabilityRepo) GetByID(_ context.Context, id string) (*model.StaffUnavailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.items[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (m *mockUnavailabilityRepo) ListByStaff(_ context.Context, staffID string, from, to *time.Time) ([]model.StaffUnavailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.StaffUnavailability
	for _, u := range m.items {
		if u.StaffID != staffID {
			continue
		}
		if from != nil && u.Date.Before(*from) {
			continue
		}
		if to != nil && u.Date.After(*to) {
			continue
		}
		result = append(result, *u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (m *mockUnavailabilityRepo) FindCovering(_ context.Context, staffID string, date time.Time, slot model.Slot) ([]model.StaffUnavailability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []model.StaffUnavailability
	for _, u := range m.items {
		if u.StaffID == staffID && u.Date.Equal(date) && u.Covers(slot) {
			result = append(result, *u)
		}
	}
	return result, nil
}

func (m *mockUnavailabilityRepo) Delete(_ context.Context, id string, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// ── 可用性查询替身 ──

// staticOracle 按 "date|slot" 返回预设结果，未配置的班次可用
type staticOracle struct {
	mu          sync.Mutex
	unavailable map[string]string
	calls       int
}

func newStaticOracle() *staticOracle {
	return &staticOracle{unavailable: make(map[string]string)}
}

func (o *staticOracle) block(date string, slot model.Slot, reason string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.unavailable[date+"|"+string(slot)] = reason
}

func (o *staticOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

func (o *staticOracle) QueryAvailability(_ context.Context, _ string, date time.Time, slot string) (*availability.Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	if reason, ok := o.unavailable[model.FormatDate(date)+"|"+slot]; ok {
		return &availability.Result{Available: false, Reason: reason}, nil
	}
	return &availability.Result{Available: true}, nil
}

// timeoutOracle 永远不返回结果，直到 ctx 超时
type timeoutOracle struct{}

func (timeoutOracle) QueryAvailability(ctx context.Context, _ string, _ time.Time, _ string) (*availability.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// errorOracle 总是返回错误
type errorOracle struct{ err error }

func (o errorOracle) QueryAvailability(context.Context, string, time.Time, string) (*availability.Result, error) {
	return nil, o.err
}

// gateOracle 每次调用先通知 started，然后阻塞到 release 关闭或 ctx 结束
type gateOracle struct {
	started chan struct{}
	release chan struct{}
}

func newGateOracle() *gateOracle {
	return &gateOracle{started: make(chan struct{}, 8), release: make(chan struct{})}
}

func (o *gateOracle) QueryAvailability(ctx context.Context, _ string, _ time.Time, _ string) (*availability.Result, error) {
	o.started <- struct{}{}
	select {
	case <-o.release:
		return &availability.Result{Available: true}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
