// Package types 定义核心模块之间共享的错误分类
package types

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类（对外导出）
type ErrorKind string

const (
	// KindNotFound Task或联动配置不存在
	KindNotFound ErrorKind = "NOT_FOUND"
	// KindValidation 参数或配置结构不合法，包括重复的workflowId
	KindValidation ErrorKind = "VALIDATION"
	// KindAssignmentGap 目录中缺少预期的阶段分配
	KindAssignmentGap ErrorKind = "ASSIGNMENT_GAP"
	// KindPersistence 存储写入失败（含乐观并发冲突）
	KindPersistence ErrorKind = "PERSISTENCE"
	// KindInternal 未预期的错误，例如存储数据损坏
	KindInternal ErrorKind = "INTERNAL"
)

// Error 核心操作返回的结构化错误（对外导出）
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

// Error 实现error接口
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error {
	return e.Err
}

// Is 同类错误相等，便于 errors.Is(err, types.ErrNotFound)
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Kind == e.Kind
}

// 用于 errors.Is 比较的哨兵值
var (
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrValidation    = &Error{Kind: KindValidation}
	ErrAssignmentGap = &Error{Kind: KindAssignmentGap}
	ErrPersistence   = &Error{Kind: KindPersistence}
	ErrInternal      = &Error{Kind: KindInternal}
)

// NewError 创建结构化错误
func NewError(kind ErrorKind, op, message string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Errorf 创建不带底层错误的结构化错误
func Errorf(kind ErrorKind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf 提取错误分类，非结构化错误归为 KindInternal，nil 返回空
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
