package service

import (
	"errors"
	"time"

	"cenate-turnos/backend/internal/model"
)

// ErrDateFormat 日期格式错误
var ErrDateFormat = errors.New("日期格式无效，应为 YYYY-MM-DD")

// Calendar 提供当前时间与业务时区下的“今天”
type Calendar struct {
	now func() time.Time
	loc *time.Location
}

// NewCalendar 创建 Calendar；now 为 nil 时使用 time.Now
func NewCalendar(loc *time.Location, now func() time.Time) *Calendar {
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Calendar{now: now, loc: loc}
}

// Now 当前时间（UTC）
func (c *Calendar) Now() time.Time { return c.now().UTC() }

// Today 业务时区下的日历日期
func (c *Calendar) Today() time.Time { return model.Today(c.now(), c.loc) }

func parseDate(s string) (time.Time, error) {
	t, err := model.ParseDate(s)
	if err != nil {
		return time.Time{}, ErrDateFormat
	}
	return t, nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
