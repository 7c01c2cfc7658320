package model

import "errors"

var (
	// ErrRequestEmpty 没有明细的申请不能提交
	ErrRequestEmpty = errors.New("申请没有任何明细，不能提交")
	// ErrInvalidDecision 审核结论只能是 ASSIGNED 或 NOT_APPROVED
	ErrInvalidDecision = errors.New("审核结论无效")
)
