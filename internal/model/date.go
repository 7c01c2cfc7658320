package model

import "time"

// DateLayout 日期的传输格式
const DateLayout = "2006-01-02"

// CivilDate 截取 t 在其自身时区中的年月日，返回该日期的 UTC 零点。
// 所有日期比较都在 CivilDate 上进行。
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today 返回 now 在 loc 时区下的日历日期（loc 为 nil 时使用 UTC）
func Today(now time.Time, loc *time.Location) time.Time {
	if loc != nil {
		now = now.In(loc)
	}
	return CivilDate(now)
}

// ParseDate 解析 YYYY-MM-DD
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

// FormatDate 格式化为 YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// MaxDate 返回较晚的日期
func MaxDate(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
