package dto

import (
	"github.com/LENAX/stageflow/pkg/core/task"
)

// APIResponse 通用API响应结构
// 空切片和空map也会作为data输出
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

// ErrorResponse 不带data的错误响应
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
	}
}

// ErrorBody 带错误分类的错误响应数据
type ErrorBody struct {
	Kind string `json:"kind"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// TaskSnapshot 任务集合快照 {"tasks": [...]}
type TaskSnapshot struct {
	Tasks []*task.Task `json:"tasks"`
}

// PrefillResponse 当前阶段的预填数据
type PrefillResponse struct {
	TaskID  string                 `json:"taskId"`
	Stage   int                    `json:"stage"`
	Prefill map[string]interface{} `json:"prefill"`
}
