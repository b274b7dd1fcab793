package service

import (
	"errors"
	"fmt"
)

// ErrKind 业务失败类别
type ErrKind int

const (
	// KindValidation 入参非法（未知阶段、数量≤0、理由过短等），未产生任何变更
	KindValidation ErrKind = iota
	// KindPolicy 合法入参但违反业务策略（非法转移、锁定、角色不足）
	KindPolicy
	// KindNotFound 引用的实体不存在或不属于声明的父实体
	KindNotFound
	// KindConflict 前置条件已被并发请求改变（如重复锁定）
	KindConflict
)

// Error 结构化业务失败：类别 + 可读消息，供HTTP层映射状态码
type Error struct {
	Kind    ErrKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func validationErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func policyErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindPolicy, Message: fmt.Sprintf(format, args...)}
}

func notFoundErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func conflictErr(format string, args ...interface{}) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

// AsError 提取结构化业务失败，存储层等其他错误返回nil
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return nil
}
