package model

import "time"

// StaffUnavailability 员工不可用时间表 — 对应 staff_unavailabilities
// Slot 为空表示全天不可用
type StaffUnavailability struct {
	UnavailabilityID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"unavailability_id"`
	StaffID          string    `gorm:"type:uuid;not null"                             json:"staff_id"`
	Date             time.Time `gorm:"type:date;not null"                             json:"date"`
	Slot             *Slot     `gorm:"type:varchar(10)"                               json:"slot,omitempty"`
	Reason           string    `gorm:"type:varchar(200)"                              json:"reason,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (StaffUnavailability) TableName() string { return "staff_unavailabilities" }

// Covers 是否覆盖指定班次
func (u *StaffUnavailability) Covers(slot Slot) bool {
	return u.Slot == nil || *u.Slot == slot
}
